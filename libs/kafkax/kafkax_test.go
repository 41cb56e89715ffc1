package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
	if SplitBrokers("") != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestExtractChangeMetaDefaults(t *testing.T) {
	meta := ExtractChangeMeta(kafka.Message{Key: []byte("appt-1")})
	if meta.AppointmentID != "appt-1" || meta.Op != "upsert" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	meta = ExtractChangeMeta(kafka.Message{
		Key: []byte("ignored"),
		Headers: []kafka.Header{
			{Key: "appointment_id", Value: []byte("appt-2")},
			{Key: "barber_id", Value: []byte("b1")},
			{Key: "op", Value: []byte("delete")},
		},
	})
	if meta.AppointmentID != "appt-2" || meta.ResourceID != "b1" || meta.Op != "delete" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestExtractTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	msg := kafka.Message{Headers: []kafka.Header{{
		Key:   "traceparent",
		Value: []byte("00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"),
	}}}

	ctx := ExtractTraceContext(context.Background(), msg)
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || sc.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("expected trace id from header, got %v", sc.TraceID())
	}
}

func TestReadyCheckWithoutBrokers(t *testing.T) {
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatal("expected error without brokers")
	}
}
