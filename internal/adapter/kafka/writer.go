package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/dam-data-etl/internal/domain"
	"github.com/couchcryptid/dam-data-etl/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// Notifier produces artifact events to a Kafka topic.
// It implements pipeline.Notifier.
type Notifier struct {
	writer  *kafkago.Writer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewNotifier creates a Kafka producer for the artifact event topic.
func NewNotifier(brokers []string, topic string, metrics *observability.Metrics, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Notifier{writer: w, metrics: metrics, logger: logger}
}

// Notify publishes all events in a single WriteMessages call. Events are
// keyed by artifact name so updates to one artifact stay ordered.
func (n *Notifier) Notify(ctx context.Context, events []domain.ArtifactEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		n.metrics.Publications.WithLabelValues("kafka", "error").Add(float64(len(msgs)))
		return fmt.Errorf("write artifact events to %s: %w", n.writer.Topic, err)
	}
	n.metrics.Publications.WithLabelValues("kafka", "success").Add(float64(len(msgs)))
	n.logger.Debug("artifact events sent", "topic", n.writer.Topic, "count", len(msgs))
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals an ArtifactEvent into a Kafka message.
func serializeToMessage(event domain.ArtifactEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize artifact event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Name),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Pipeline)},
			{Key: "processed_at", Value: []byte(event.PublishedAt.Format(time.RFC3339))},
		},
	}, nil
}
