// Package alert defines alert rules, how they match records, and how they are
// persisted through a Store.
package alert

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/wgroenewold/stream/internal/notifier"
	"github.com/wgroenewold/stream/internal/record"
)

// Keys accepted by Populate and New.
const (
	KeyID            = "id"
	KeyDate          = "date"
	KeyAuthor        = "author"
	KeyFilterAuthor  = "filter_author"
	KeyFilterAction  = "filter_action"
	KeyFilterContext = "filter_context"
	KeyAlertType     = "alert_type"
	KeyAlertMeta     = "alert_meta"
)

// MetaKeys is the fixed set of keys written to the rule meta store on every
// save, in write order.
var MetaKeys = []string{KeyFilterAction, KeyFilterAuthor, KeyFilterContext, KeyAlertType, KeyAlertMeta}

// Rule is a stored alert definition. Empty filters match anything; a rule with
// no filters is a broadcast rule.
type Rule struct {
	ID            int64             `json:"id"`
	Date          time.Time         `json:"date"`
	Author        string            `json:"author"`
	FilterAuthor  string            `json:"filter_author,omitempty"`
	FilterAction  string            `json:"filter_action,omitempty"`
	FilterContext string            `json:"filter_context,omitempty"`
	AlertType     string            `json:"alert_type"`
	AlertMeta     map[string]string `json:"alert_meta,omitempty"`

	// Notifier is resolved from AlertType when rules are loaded. Never
	// persisted and never populated from form data.
	Notifier notifier.Notifier `json:"-"`
}

// New builds a rule from a raw key/value payload such as a store row. Unlike
// Populate it honors the id key.
func New(raw map[string]any) *Rule {
	r := &Rule{}
	if v, ok := raw[KeyID]; ok {
		r.ID = toInt64(v)
	}
	r.Populate(raw)
	return r
}

// Populate copies whitelisted keys from raw onto the rule. Unknown keys are
// dropped, as are id and notifier. A key that is present overwrites the
// field, even with an empty value.
func (r *Rule) Populate(raw map[string]any) {
	for key, val := range raw {
		switch key {
		case KeyDate:
			if t, ok := toTime(val); ok {
				r.Date = t
			}
		case KeyAuthor:
			r.Author = toString(val)
		case KeyFilterAuthor:
			r.FilterAuthor = toString(val)
		case KeyFilterAction:
			r.FilterAction = toString(val)
		case KeyFilterContext:
			r.FilterContext = toString(val)
		case KeyAlertType:
			r.AlertType = toString(val)
		case KeyAlertMeta:
			r.AlertMeta = toMeta(val)
		}
	}
}

// Matches reports whether rec satisfies every filter the rule sets. Filters
// are checked in order context, action, author with exact comparison; the
// first mismatch stops evaluation.
func (r *Rule) Matches(rec *record.Record) bool {
	if rec == nil {
		return false
	}
	return r.check(rec.Context, rec.Action, rec.Actor)
}

// CheckRecord is Matches over a record's field mapping. The actor is read
// from "actor", falling back to "author".
func (r *Rule) CheckRecord(fields map[string]any) bool {
	actor, ok := fields[record.FieldActor]
	if !ok {
		actor = fields[KeyAuthor]
	}
	return r.check(toString(fields[record.FieldContext]), toString(fields[record.FieldAction]), toString(actor))
}

func (r *Rule) check(context, action, actor string) bool {
	if r.FilterContext != "" && context != r.FilterContext {
		return false
	}
	if r.FilterAction != "" && action != r.FilterAction {
		return false
	}
	if r.FilterAuthor != "" && actor != r.FilterAuthor {
		return false
	}
	return true
}

// IsBroadcast reports whether the rule sets no filters.
func (r *Rule) IsBroadcast() bool {
	return r.FilterContext == "" && r.FilterAction == "" && r.FilterAuthor == ""
}

// Title is the display label "<Type> when <author> <action> in <Context>".
func (r *Rule) Title() string {
	return fmt.Sprintf("%s when %s %s in %s",
		upperFirst(r.AlertType), upperFirst(r.FilterAuthor), r.FilterAction, upperFirst(r.FilterContext))
}

// MetaValue returns the stored string form of one meta key. alert_meta is
// encoded as a JSON object.
func (r *Rule) MetaValue(key string) (string, error) {
	switch key {
	case KeyFilterAction:
		return r.FilterAction, nil
	case KeyFilterAuthor:
		return r.FilterAuthor, nil
	case KeyFilterContext:
		return r.FilterContext, nil
	case KeyAlertType:
		return r.AlertType, nil
	case KeyAlertMeta:
		meta := r.AlertMeta
		if meta == nil {
			meta = map[string]string{}
		}
		b, err := json.Marshal(meta)
		if err != nil {
			return "", fmt.Errorf("failed to encode alert_meta: %w", err)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unknown meta key %q", key)
	}
}

// Clone returns a deep copy of the rule sharing only the notifier.
func (r *Rule) Clone() *Rule {
	c := *r
	if r.AlertMeta != nil {
		c.AlertMeta = make(map[string]string, len(r.AlertMeta))
		for k, v := range r.AlertMeta {
			c.AlertMeta[k] = v
		}
	}
	return &c
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	first, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(first)) + s[size:]
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int64:
		return t
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n
	default:
		return 0
	}
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// toMeta accepts a string map, a generic map, or a JSON object string.
func toMeta(v any) map[string]string {
	out := make(map[string]string)
	switch t := v.(type) {
	case map[string]string:
		for k, val := range t {
			out[k] = val
		}
	case map[string]any:
		for k, val := range t {
			out[k] = toString(val)
		}
	case string:
		if strings.TrimSpace(t) == "" {
			return out
		}
		var generic map[string]any
		if err := json.Unmarshal([]byte(t), &generic); err == nil {
			for k, val := range generic {
				out[k] = toString(val)
			}
		}
	}
	return out
}
