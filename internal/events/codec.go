package events

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeFields serializes a field mapping as a protobuf Struct. Values that
// Struct cannot hold directly are normalized first: string maps become
// objects and times become RFC 3339 strings.
func EncodeFields(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(normalize(fields))
	if err != nil {
		return nil, fmt.Errorf("failed to build struct: %w", err)
	}
	b, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal struct: %w", err)
	}
	return b, nil
}

// DecodeFields parses a protobuf Struct produced by EncodeFields.
func DecodeFields(data []byte) (map[string]any, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal struct: %w", err)
	}
	return s.AsMap(), nil
}

// DecodeJSONFields parses a JSON object into a field mapping. Numbers and
// booleans are kept as decoded; RawEventFromFields stringifies them.
func DecodeJSONFields(data []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return fields, nil
}

// MarshalRawEvent encodes an event for the wire as a protobuf Struct.
func MarshalRawEvent(e *RawEvent) ([]byte, error) {
	return EncodeFields(e.Fields())
}

// UnmarshalRawEvent decodes an event. JSON is accepted when asJSON is set;
// otherwise the payload must be a protobuf Struct. Both paths coerce
// loosely typed values through RawEventFromFields.
func UnmarshalRawEvent(data []byte, asJSON bool) (*RawEvent, error) {
	var (
		fields map[string]any
		err    error
	)
	if asJSON {
		fields, err = DecodeJSONFields(data)
	} else {
		fields, err = DecodeFields(data)
	}
	if err != nil {
		return nil, err
	}
	return RawEventFromFields(fields), nil
}

func normalize(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = val
		}
		return m
	case map[string]any:
		return normalize(t)
	case time.Time:
		if t.IsZero() {
			return nil
		}
		return t.UTC().Format(time.RFC3339Nano)
	case []string:
		list := make([]any, len(t))
		for i, s := range t {
			list[i] = s
		}
		return list
	default:
		return v
	}
}
