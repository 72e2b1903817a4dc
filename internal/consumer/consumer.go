// Package consumer reads raw activity events from Kafka.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/wgroenewold/stream/internal/events"
	kafkautil "github.com/wgroenewold/stream/pkg/kafka"
)

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer decodes raw events from one topic.
type Consumer struct {
	reader messageReader
	topic  string
}

// NewConsumer creates a consumer group reader for at-least-once delivery.
func NewConsumer(brokers string, topic string, groupID string) (*Consumer, error) {
	if err := kafkautil.ValidateConsumerParams(brokers, topic, groupID); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)
	slog.Info("Initializing Kafka consumer",
		"brokers", brokerList,
		"topic", topic,
		"group_id", groupID,
	)

	cfg := kafkautil.NewReaderConfig(brokerList, topic, groupID)
	kafkautil.LogReaderConfig(cfg)

	return &Consumer{
		reader: kafka.NewReader(cfg),
		topic:  topic,
	}, nil
}

// ReadMessage reads the next message and decodes it. Payloads are protobuf
// unless the content-type header says JSON. On a decode error the message
// is still returned so the caller can log its offset.
func (c *Consumer) ReadMessage(ctx context.Context) (*events.RawEvent, *kafka.Message, error) {
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read message from Kafka: %w", err)
	}

	asJSON := kafkautil.HeaderValue(msg, kafkautil.HeaderContentType) == kafkautil.ContentTypeJSON
	ev, err := events.UnmarshalRawEvent(msg.Value, asJSON)
	if err != nil {
		return nil, &msg, fmt.Errorf("failed to decode event at offset %d: %w", msg.Offset, err)
	}
	return ev, &msg, nil
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	slog.Info("Closing Kafka consumer", "topic", c.topic)
	if err := c.reader.Close(); err != nil {
		slog.Error("Error closing Kafka consumer", "error", err)
		return err
	}
	slog.Info("Kafka consumer closed successfully")
	return nil
}
