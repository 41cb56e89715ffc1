package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/md-rashed-zaman/salon-timeline/libs/kafkax"
)

const DefaultKafkaTopic = "booking.appointment.changed"

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier consumes appointment change events and fans them out.
type KafkaNotifier struct {
	*Hub
	reader     MessageReader
	logger     *slog.Logger
	retryDelay time.Duration
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    1 << 20,
	})
}

func NewKafkaNotifier(reader MessageReader, logger *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{Hub: NewHub(), reader: reader, logger: logger, retryDelay: DefaultRetryDelay}
}

// Run consumes until ctx ends, then closes the hub. Read errors are logged
// and retried.
func (n *KafkaNotifier) Run(ctx context.Context) {
	defer n.Hub.Close()
	defer n.reader.Close()

	tr := otel.Tracer("github.com/md-rashed-zaman/salon-timeline/feed")
	for {
		msg, err := n.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			n.logger.Error("kafka read error", "err", err)
			if !sleep(ctx, n.retryDelay) {
				return
			}
			continue
		}

		mctx := kafkax.ExtractTraceContext(ctx, msg)
		_, span := tr.Start(mctx, "kafka.appointment_changed")
		meta := kafkax.ExtractChangeMeta(msg)
		span.SetAttributes(
			attribute.String("appointment.id", meta.AppointmentID),
			attribute.String("messaging.kafka.topic", msg.Topic),
		)
		n.Publish(Change{AppointmentID: meta.AppointmentID, ResourceID: meta.ResourceID, Op: meta.Op})
		span.End()

		if err := n.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			n.logger.Warn("kafka commit failed", "err", err, "offset", msg.Offset)
		}
	}
}
