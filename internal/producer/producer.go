// Package producer publishes raw events and triggered alerts to Kafka.
package producer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wgroenewold/stream/internal/events"
	kafkautil "github.com/wgroenewold/stream/pkg/kafka"
)

const maxWriteAttempts = 2

// topicRetryDelay is a var so tests can shorten it.
var topicRetryDelay = 2 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes to a single topic with synchronous, acknowledged writes.
type Producer struct {
	writer messageWriter
	topic  string
}

// New creates a producer, creating the topic first if it is missing.
func New(brokers string, topic string) (*Producer, error) {
	if err := kafkautil.ValidateProducerParams(brokers, topic); err != nil {
		return nil, err
	}
	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka producer",
		"brokers", brokerList,
		"topic", topic,
	)

	kafkautil.EnsureTopic(brokerList[0], topic)

	return &Producer{
		writer: kafkautil.NewWriter(brokerList, topic),
		topic:  topic,
	}, nil
}

// PublishEvent encodes ev as a protobuf Struct. Events for the same object
// share a partition.
func (p *Producer) PublishEvent(ctx context.Context, ev *events.RawEvent) error {
	payload, err := events.MarshalRawEvent(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	msg := kafka.Message{
		Key:   hashKey(ev.Context + "/" + ev.ObjectID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: kafkautil.HeaderContentType, Value: []byte(kafkautil.ContentTypeProtobuf)},
			{Key: "context", Value: []byte(ev.Context)},
			{Key: "action", Value: []byte(ev.Action)},
		},
		Time: ts,
	}
	return p.write(ctx, msg, "context", ev.Context, "action", ev.Action)
}

// PublishAlert encodes alert as JSON, keyed by its dispatch id.
func (p *Producer) PublishAlert(ctx context.Context, alert *events.AlertTriggered) error {
	payload, err := alert.Marshal()
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   hashKey(alert.DispatchID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: kafkautil.HeaderContentType, Value: []byte(kafkautil.ContentTypeJSON)},
			{Key: "schema_version", Value: []byte(strconv.Itoa(alert.SchemaVersion))},
			{Key: "alert_type", Value: []byte(alert.AlertType)},
		},
		Time: time.Unix(alert.EventTS, 0),
	}
	return p.write(ctx, msg, "alert_id", alert.AlertID, "record_id", alert.RecordID)
}

// write retries once when the topic is still being created.
func (p *Producer) write(ctx context.Context, msg kafka.Message, logAttrs ...any) error {
	var writeErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		writeErr = p.writer.WriteMessages(ctx, msg)
		if writeErr == nil {
			return nil
		}
		if errors.Is(writeErr, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return context.Canceled
		}

		if isUnknownTopic(writeErr) && attempt < maxWriteAttempts {
			slog.Info("Topic not ready, retrying after delay",
				append([]any{"topic", p.topic, "attempt", attempt}, logAttrs...)...)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(topicRetryDelay):
			}
			continue
		}

		slog.Error("Failed to write message to Kafka",
			append([]any{"topic", p.topic, "attempt", attempt, "error", writeErr}, logAttrs...)...)
		return fmt.Errorf("failed to write message to Kafka: %w", writeErr)
	}
	return fmt.Errorf("failed to write message to Kafka after %d attempts: %w", maxWriteAttempts, writeErr)
}

func isUnknownTopic(err error) bool {
	if errors.Is(err, kafka.UnknownTopicOrPartition) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "Unknown Topic Or Partition") || strings.Contains(s, "does not exist")
}

func hashKey(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return sum[:16]
}

// Close closes the writer.
func (p *Producer) Close() error {
	slog.Info("Closing Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		slog.Error("Error closing Kafka producer", "error", err)
		return err
	}
	slog.Info("Kafka producer closed successfully")
	return nil
}
