// Package notifier defines the contract every alert channel implements and a
// registry that resolves channels by alert type.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownType is returned by Resolve when no notifier is registered for an
// alert type.
var ErrUnknownType = errors.New("unknown alert type")

// Notifier delivers one alert for one record.
type Notifier interface {
	// Notify sends the alert. fields is the record's normalized mapping and
	// meta the rule's alert_meta; both are owned by the callee.
	Notify(ctx context.Context, recordID int64, fields map[string]any, meta map[string]string) error

	// Type returns the alert_type this notifier handles (e.g. "email", "slack").
	Type() string
}

// Func adapts a function into a Notifier of the given type.
type Func struct {
	Kind string
	Fn   func(ctx context.Context, recordID int64, fields map[string]any, meta map[string]string) error
}

// Notify calls f.Fn.
func (f Func) Notify(ctx context.Context, recordID int64, fields map[string]any, meta map[string]string) error {
	return f.Fn(ctx, recordID, fields, meta)
}

// Type returns f.Kind.
func (f Func) Type() string { return f.Kind }

// Registry manages notifiers by alert type.
type Registry struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
}

// NewRegistry creates a new notifier registry.
func NewRegistry() *Registry {
	return &Registry{
		notifiers: make(map[string]Notifier),
	}
}

// Register registers a notifier under its Type, replacing any previous one.
func (r *Registry) Register(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifiers[n.Type()] = n
}

// Get retrieves a notifier by type.
func (r *Registry) Get(alertType string) (Notifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.notifiers[alertType]
	return n, ok
}

// Resolve is Get with an error for unknown types.
func (r *Registry) Resolve(alertType string) (Notifier, error) {
	n, ok := r.Get(alertType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, alertType)
	}
	return n, nil
}

// List returns all registered types, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.notifiers))
	for t := range r.notifiers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsValidURL checks if a string is a valid HTTP/HTTPS URL.
func IsValidURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// RuleInfo identifies the rule a delivery belongs to.
type RuleInfo struct {
	ID   int64
	Type string
}

type ruleKey struct{}

// WithRule returns a context carrying the rule being dispatched.
func WithRule(ctx context.Context, info RuleInfo) context.Context {
	return context.WithValue(ctx, ruleKey{}, info)
}

// RuleFromContext returns the rule set by WithRule, if any.
func RuleFromContext(ctx context.Context) (RuleInfo, bool) {
	info, ok := ctx.Value(ruleKey{}).(RuleInfo)
	return info, ok
}
