// Package events defines the messages exchanged with connectors and
// downstream consumers, and their wire encodings.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wgroenewold/stream/internal/record"
)

// SchemaVersion is stamped on every outgoing AlertTriggered.
const SchemaVersion = 1

// RawEvent is what a connector emits for one occurrence in the host
// application.
type RawEvent struct {
	Actor     string            `json:"actor"`
	Context   string            `json:"context"`
	Action    string            `json:"action"`
	ObjectID  string            `json:"object_id,omitempty"`
	Timestamp time.Time         `json:"timestamp,omitempty"`
	Summary   string            `json:"summary,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Fields returns the event as a loosely typed mapping for record.New.
// A zero timestamp is omitted so the record defaults it.
func (e *RawEvent) Fields() map[string]any {
	f := map[string]any{
		record.FieldActor:    e.Actor,
		record.FieldContext:  e.Context,
		record.FieldAction:   e.Action,
		record.FieldObjectID: e.ObjectID,
		record.FieldSummary:  e.Summary,
		record.FieldIP:       e.IP,
		record.FieldMetadata: e.Metadata,
	}
	if !e.Timestamp.IsZero() {
		f[record.FieldTimestamp] = e.Timestamp
	}
	return f
}

// RawEventFromFields builds a RawEvent from a decoded mapping, coercing
// values the same way record.New does.
func RawEventFromFields(fields map[string]any) *RawEvent {
	r := record.New(fields)
	e := &RawEvent{
		Actor:    r.Actor,
		Context:  r.Context,
		Action:   r.Action,
		ObjectID: r.ObjectID,
		Summary:  r.Summary,
		IP:       r.IP,
		Metadata: r.Metadata,
	}
	if _, ok := fields[record.FieldTimestamp]; ok {
		e.Timestamp = r.Timestamp
	}
	return e
}

// AlertTriggered is published once per successful dispatch by the broker
// notifier.
type AlertTriggered struct {
	DispatchID    string            `json:"dispatch_id"`
	SchemaVersion int               `json:"schema_version"`
	AlertID       int64             `json:"alert_id"`
	AlertType     string            `json:"alert_type"`
	RecordID      int64             `json:"record_id"`
	Context       string            `json:"context"`
	Action        string            `json:"action"`
	Actor         string            `json:"actor"`
	ObjectID      string            `json:"object_id,omitempty"`
	Summary       string            `json:"summary,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	EventTS       int64             `json:"event_ts"`
	Meta          map[string]string `json:"alert_meta,omitempty"`
}

// NewAlertTriggered builds the outgoing message for one rule and record.
func NewAlertTriggered(dispatchID string, alertID int64, alertType string, recordID int64, fields map[string]any, meta map[string]string) *AlertTriggered {
	r := record.New(fields)
	return &AlertTriggered{
		DispatchID:    dispatchID,
		SchemaVersion: SchemaVersion,
		AlertID:       alertID,
		AlertType:     alertType,
		RecordID:      recordID,
		Context:       r.Context,
		Action:        r.Action,
		Actor:         r.Actor,
		ObjectID:      r.ObjectID,
		Summary:       r.Summary,
		Metadata:      r.Metadata,
		EventTS:       r.Timestamp.Unix(),
		Meta:          meta,
	}
}

// Marshal encodes the message as JSON.
func (a *AlertTriggered) Marshal() ([]byte, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alert: %w", err)
	}
	return b, nil
}

// UnmarshalAlertTriggered decodes a JSON AlertTriggered.
func UnmarshalAlertTriggered(data []byte) (*AlertTriggered, error) {
	var a AlertTriggered
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
	}
	return &a, nil
}
