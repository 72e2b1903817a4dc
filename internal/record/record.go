// Package record defines the normalized activity log entry that flows through
// persistence, rule matching and notification.
package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SystemActor is the actor recorded for events with no interactive principal.
const SystemActor = "system"

// Field keys of the normalized mapping returned by Fields.
const (
	FieldID        = "id"
	FieldTimestamp = "timestamp"
	FieldActor     = "actor"
	FieldContext   = "context"
	FieldAction    = "action"
	FieldObjectID  = "object_id"
	FieldSummary   = "summary"
	FieldIP        = "ip"
	FieldMetadata  = "metadata"
)

var (
	// ErrMissingContext is returned by Validate when the context tag is empty.
	ErrMissingContext = errors.New("record context is required")
	// ErrMissingAction is returned by Validate when the action tag is empty.
	ErrMissingAction = errors.New("record action is required")
)

// Record is one logged occurrence. A Record is treated as immutable once
// built: New copies its inputs and WithID returns a new value.
type Record struct {
	ID        int64 // 0 until the store assigns one
	Timestamp time.Time
	Actor     string
	Context   string
	Action    string
	ObjectID  string
	Summary   string
	IP        string
	Metadata  map[string]string
}

// New builds a Record from a loosely typed source mapping such as a decoded
// JSON body or protobuf Struct. Missing keys leave the zero value; nothing is
// validated here.
func New(src map[string]any) *Record {
	r := &Record{
		ID:        int64Of(src[FieldID]),
		Timestamp: timeOf(src[FieldTimestamp]),
		Actor:     stringOf(src[FieldActor]),
		Context:   stringOf(src[FieldContext]),
		Action:    stringOf(src[FieldAction]),
		ObjectID:  stringOf(src[FieldObjectID]),
		Summary:   stringOf(src[FieldSummary]),
		IP:        stringOf(src[FieldIP]),
		Metadata:  metadataOf(src[FieldMetadata]),
	}
	if r.Actor == "" {
		// connectors that predate the actor key still send author
		r.Actor = stringOf(src["author"])
	}
	return r
}

// Validate reports whether the record carries the tags every record needs.
func (r *Record) Validate() error {
	if r == nil {
		return errors.New("record is nil")
	}
	if strings.TrimSpace(r.Context) == "" {
		return ErrMissingContext
	}
	if strings.TrimSpace(r.Action) == "" {
		return ErrMissingAction
	}
	return nil
}

// WithID returns a copy of r carrying the store-issued id.
func (r *Record) WithID(id int64) *Record {
	c := *r
	c.Metadata = copyMeta(r.Metadata)
	c.ID = id
	return &c
}

// Persisted reports whether the store has issued an id for the record.
func (r *Record) Persisted() bool {
	return r != nil && r.ID > 0
}

// Meta returns a single metadata value, or "" when absent.
func (r *Record) Meta(key string) string {
	if r == nil || r.Metadata == nil {
		return ""
	}
	return r.Metadata[key]
}

// Fields returns the full normalized mapping of the record. The returned map
// and its metadata are fresh copies owned by the caller.
func (r *Record) Fields() map[string]any {
	return map[string]any{
		FieldID:        r.ID,
		FieldTimestamp: r.Timestamp,
		FieldActor:     r.Actor,
		FieldContext:   r.Context,
		FieldAction:    r.Action,
		FieldObjectID:  r.ObjectID,
		FieldSummary:   r.Summary,
		FieldIP:        r.IP,
		FieldMetadata:  copyMeta(r.Metadata),
	}
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func int64Of(v any) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}

func timeOf(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		if !t.IsZero() {
			return t.UTC()
		}
	case *time.Time:
		if t != nil && !t.IsZero() {
			return t.UTC()
		}
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts.UTC()
		}
		if n, err := strconv.ParseInt(t, 10, 64); err == nil && n > 0 {
			return time.Unix(n, 0).UTC()
		}
	case int64:
		if t > 0 {
			return time.Unix(t, 0).UTC()
		}
	case int:
		if t > 0 {
			return time.Unix(int64(t), 0).UTC()
		}
	case float64:
		if t > 0 {
			return time.Unix(int64(t), 0).UTC()
		}
	}
	return time.Now().UTC()
}

func metadataOf(v any) map[string]string {
	out := make(map[string]string)
	switch t := v.(type) {
	case map[string]string:
		for k, val := range t {
			out[k] = val
		}
	case map[string]any:
		for k, val := range t {
			out[k] = stringOf(val)
		}
	}
	return out
}
