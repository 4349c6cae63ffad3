// Package kafka mirrors accepted sensor readings to a Kafka topic for
// downstream consumers. Mirroring is optional and best-effort: the webhook
// never fails because the broker is down.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/lorawan-telemetry-service/internal/config"
	"github.com/couchcryptid/lorawan-telemetry-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher produces reading messages to the mirror topic.
// It implements ingest.Mirror.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured mirror topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaMirrorTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish serializes one reading and writes it to the mirror topic.
func (p *Publisher) Publish(ctx context.Context, reading domain.SensorReading) error {
	msg, err := serializeToMessage(reading)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a SensorReading into a Kafka message keyed by
// its dedup fingerprint, so a mirrored topic compacts duplicates the same
// way the store does.
func serializeToMessage(reading domain.SensorReading) (kafkago.Message, error) {
	data, err := json.Marshal(reading)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize sensor reading: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(reading.UniqueID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "device_id", Value: []byte(reading.DeviceID)},
			{Key: "received_at", Value: []byte(reading.ReceivedAt.Format(time.RFC3339))},
		},
	}, nil
}
