package kafkax

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ChangeMeta identifies which appointment document a change message refers to.
type ChangeMeta struct {
	AppointmentID string
	ResourceID    string
	Op            string
}

func ExtractChangeMeta(msg kafka.Message) ChangeMeta {
	meta := ChangeMeta{
		AppointmentID: HeaderValue(msg.Headers, "appointment_id"),
		ResourceID:    HeaderValue(msg.Headers, "barber_id"),
		Op:            HeaderValue(msg.Headers, "op"),
	}
	if meta.AppointmentID == "" {
		meta.AppointmentID = string(msg.Key)
	}
	if meta.Op == "" {
		meta.Op = "upsert"
	}
	return meta
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// ExtractTraceContext returns ctx carrying the W3C trace context found in the
// message headers.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, headerCarrier(msg.Headers))
}

type headerCarrier []kafka.Header

func (c headerCarrier) Get(key string) string { return HeaderValue(c, key) }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for _, h := range c {
		keys = append(keys, h.Key)
	}
	return keys
}

// Set is a no-op; the carrier is only read from.
func (c headerCarrier) Set(string, string) {}

var _ propagation.TextMapCarrier = headerCarrier(nil)

func ReadyCheck(brokers []string) func(context.Context) error {
	return func(ctx context.Context) error {
		if len(brokers) == 0 {
			return errors.New("kafka brokers not configured")
		}
		dialer := kafka.Dialer{Timeout: 2 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", brokers[0])
		if err != nil {
			return err
		}
		_ = conn.Close()
		return nil
	}
}
