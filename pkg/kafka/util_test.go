package kafka

import (
	"reflect"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestParseBrokers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "", want: nil},
		{name: "single", input: "localhost:9092", want: []string{"localhost:9092"}},
		{name: "trims whitespace", input: " a:9092 , b:9092", want: []string{"a:9092", "b:9092"}},
		{name: "drops blanks", input: "a:9092,,b:9092,", want: []string{"a:9092", "b:9092"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseBrokers(tt.input)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseBrokers(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateConsumerParams(t *testing.T) {
	if err := ValidateConsumerParams("b", "t", "g"); err != nil {
		t.Errorf("ValidateConsumerParams() unexpected error = %v", err)
	}
	if err := ValidateConsumerParams("", "t", "g"); err == nil || err.Error() != "brokers cannot be empty" {
		t.Errorf("ValidateConsumerParams() error = %v, want brokers cannot be empty", err)
	}
	if err := ValidateConsumerParams("b", "", "g"); err == nil || err.Error() != "topic cannot be empty" {
		t.Errorf("ValidateConsumerParams() error = %v, want topic cannot be empty", err)
	}
	if err := ValidateConsumerParams("b", "t", ""); err == nil || err.Error() != "groupID cannot be empty" {
		t.Errorf("ValidateConsumerParams() error = %v, want groupID cannot be empty", err)
	}
}

func TestValidateProducerParams(t *testing.T) {
	if err := ValidateProducerParams("b", "t"); err != nil {
		t.Errorf("ValidateProducerParams() unexpected error = %v", err)
	}
	if err := ValidateProducerParams("", "t"); err == nil {
		t.Error("ValidateProducerParams() expected error for empty brokers")
	}
	if err := ValidateProducerParams("b", ""); err == nil {
		t.Error("ValidateProducerParams() expected error for empty topic")
	}
}

func TestNewReaderConfig(t *testing.T) {
	cfg := NewReaderConfig([]string{"a:9092"}, "stream.events", "stream-group")
	if cfg.Topic != "stream.events" || cfg.GroupID != "stream-group" {
		t.Errorf("NewReaderConfig() topic/group = %s/%s", cfg.Topic, cfg.GroupID)
	}
	if cfg.StartOffset != kafka.FirstOffset {
		t.Errorf("NewReaderConfig() StartOffset = %d, want FirstOffset", cfg.StartOffset)
	}
	if cfg.CommitInterval != CommitInterval {
		t.Errorf("NewReaderConfig() CommitInterval = %v, want %v", cfg.CommitInterval, CommitInterval)
	}
}

func TestNewWriter(t *testing.T) {
	w := NewWriter([]string{"a:9092"}, "alerts.triggered")
	defer w.Close()
	if w.Topic != "alerts.triggered" {
		t.Errorf("NewWriter() Topic = %s", w.Topic)
	}
	if w.Async {
		t.Error("NewWriter() should be synchronous")
	}
}

func TestHeaderValue(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{
		{Key: HeaderContentType, Value: []byte(ContentTypeJSON)},
		{Key: "record_id", Value: []byte("42")},
	}}
	if got := HeaderValue(msg, HeaderContentType); got != ContentTypeJSON {
		t.Errorf("HeaderValue(content-type) = %q", got)
	}
	if got := HeaderValue(msg, "missing"); got != "" {
		t.Errorf("HeaderValue(missing) = %q, want empty", got)
	}
}
