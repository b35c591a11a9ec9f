// Package sink publishes finished forecast snapshots to downstream consumers.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/HatiCode/rainfall/pkg/storage"
)

// Publisher delivers a snapshot somewhere outside the forecaster.
type Publisher interface {
	Publish(ctx context.Context, s storage.Snapshot) error
	Close() error
}

// Nop discards every snapshot. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, storage.Snapshot) error { return nil }
func (Nop) Close() error                                    { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes one JSON message per snapshot, keyed by series so
// all runs for a series land on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewKafkaPublisher creates a producer for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w, logger: logger}, nil
}

// Publish serializes and writes s.
func (p *KafkaPublisher) Publish(ctx context.Context, s storage.Snapshot) error {
	msg, err := serializeToMessage(s)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write snapshot message: %w", err)
	}

	p.logger.Debug("published snapshot",
		"series", s.Series,
		"points", len(s.Points),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a Snapshot into a Kafka message.
func serializeToMessage(s storage.Snapshot) (kafkago.Message, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize snapshot: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(s.Series),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "model", Value: []byte(s.Model)},
			{Key: "generated_at", Value: []byte(s.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
