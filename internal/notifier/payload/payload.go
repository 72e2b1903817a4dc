// Package payload renders a matched record into channel-specific messages.
package payload

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/wgroenewold/stream/internal/record"
)

// Alert is the data every channel renders: the persisted record id, its field
// mapping and the matching rule's alert_meta.
type Alert struct {
	RecordID int64
	Fields   map[string]any
	Meta     map[string]string
}

func (a Alert) field(key string) string {
	v, ok := a.Fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Context returns the record context.
func (a Alert) Context() string { return a.field(record.FieldContext) }

// Action returns the record action.
func (a Alert) Action() string { return a.field(record.FieldAction) }

// Actor returns the record actor.
func (a Alert) Actor() string {
	if s := a.field(record.FieldActor); s != "" {
		return s
	}
	return a.field("author")
}

// Summary returns the record summary, or a synthesized one.
func (a Alert) Summary() string {
	if s := a.field(record.FieldSummary); s != "" {
		return s
	}
	return fmt.Sprintf("%s %s %s", a.Actor(), a.Action(), a.Context())
}

// Timestamp returns the record timestamp in RFC 3339, or now.
func (a Alert) Timestamp() string {
	switch t := a.Fields[record.FieldTimestamp].(type) {
	case time.Time:
		if !t.IsZero() {
			return t.UTC().Format(time.RFC3339)
		}
	case string:
		if t != "" {
			return t
		}
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// Metadata returns the record metadata as a string map.
func (a Alert) Metadata() map[string]string {
	switch m := a.Fields[record.FieldMetadata].(type) {
	case map[string]string:
		return m
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, v := range m {
			out[k] = fmt.Sprint(v)
		}
		return out
	}
	return nil
}

// EmailPayload represents email message content.
type EmailPayload struct {
	Subject string
	Body    string
}

// BuildEmailPayload builds email subject and body. The subject may be
// overridden with the "subject" alert meta key.
func BuildEmailPayload(a Alert) EmailPayload {
	subject := a.Meta["subject"]
	if subject == "" {
		subject = fmt.Sprintf("[Stream] %s %s: %s", upperFirst(a.Context()), a.Action(), a.Summary())
	}
	return EmailPayload{
		Subject: subject,
		Body:    buildEmailBody(a),
	}
}

func buildEmailBody(a Alert) string {
	var sb strings.Builder
	sb.WriteString("Stream Alert\n")
	sb.WriteString("============\n\n")
	sb.WriteString(a.Summary() + "\n\n")
	fmt.Fprintf(&sb, "Record ID: %d\n", a.RecordID)
	fmt.Fprintf(&sb, "Context: %s\n", a.Context())
	fmt.Fprintf(&sb, "Action: %s\n", a.Action())
	fmt.Fprintf(&sb, "Actor: %s\n", a.Actor())
	if obj := a.field(record.FieldObjectID); obj != "" {
		fmt.Fprintf(&sb, "Object ID: %s\n", obj)
	}
	if ip := a.field(record.FieldIP); ip != "" {
		fmt.Fprintf(&sb, "IP: %s\n", ip)
	}
	fmt.Fprintf(&sb, "Time: %s\n", a.Timestamp())

	if meta := a.Metadata(); len(meta) > 0 {
		sb.WriteString("\nDetails:\n")
		for _, k := range sortedKeys(meta) {
			fmt.Fprintf(&sb, "  %s: %s\n", k, meta[k])
		}
	}
	return sb.String()
}

// SlackPayload represents a Slack webhook payload.
type SlackPayload struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a Slack message attachment.
type Attachment struct {
	Color     string  `json:"color,omitempty"`
	Title     string  `json:"title,omitempty"`
	Text      string  `json:"text,omitempty"`
	Fields    []Field `json:"fields,omitempty"`
	Timestamp int64   `json:"ts,omitempty"`
}

// Field represents a field in a Slack attachment.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// BuildSlackPayload builds a Slack webhook payload.
func BuildSlackPayload(a Alert) SlackPayload {
	fields := []Field{
		{Title: "Context", Value: a.Context(), Short: true},
		{Title: "Action", Value: a.Action(), Short: true},
		{Title: "Actor", Value: a.Actor(), Short: true},
		{Title: "Record ID", Value: fmt.Sprintf("%d", a.RecordID), Short: true},
	}
	if obj := a.field(record.FieldObjectID); obj != "" {
		fields = append(fields, Field{Title: "Object ID", Value: obj, Short: true})
	}

	var text strings.Builder
	text.WriteString(a.Summary())
	if meta := a.Metadata(); len(meta) > 0 {
		text.WriteString("\n")
		for _, k := range sortedKeys(meta) {
			fmt.Fprintf(&text, "\n• %s: %s", k, meta[k])
		}
	}

	var ts int64
	if t, ok := a.Fields[record.FieldTimestamp].(time.Time); ok && !t.IsZero() {
		ts = t.Unix()
	}

	return SlackPayload{
		Attachments: []Attachment{
			{
				Color:     ActionColor(a.Action()),
				Title:     fmt.Sprintf("%s %s", upperFirst(a.Context()), a.Action()),
				Text:      text.String(),
				Fields:    fields,
				Timestamp: ts,
			},
		},
	}
}

// ActionColor returns the Slack attachment color for an action verb.
func ActionColor(action string) string {
	switch strings.ToLower(action) {
	case "deleted", "trashed", "spammed", "archive_blog", "removed":
		return "danger"
	case "updated", "edited", "deactivated", "password-reset":
		return "warning"
	default:
		return "good"
	}
}

// WebhookPayload represents a webhook payload.
type WebhookPayload struct {
	DispatchID string            `json:"dispatch_id"`
	RecordID   int64             `json:"record_id"`
	Context    string            `json:"context"`
	Action     string            `json:"action"`
	Actor      string            `json:"actor"`
	ObjectID   string            `json:"object_id,omitempty"`
	Summary    string            `json:"summary"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  string            `json:"timestamp"`
}

// BuildWebhookPayload builds a webhook payload tagged with dispatchID.
func BuildWebhookPayload(dispatchID string, a Alert) WebhookPayload {
	return WebhookPayload{
		DispatchID: dispatchID,
		RecordID:   a.RecordID,
		Context:    a.Context(),
		Action:     a.Action(),
		Actor:      a.Actor(),
		ObjectID:   a.field(record.FieldObjectID),
		Summary:    a.Summary(),
		Metadata:   a.Metadata(),
		Timestamp:  a.Timestamp(),
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
