// Package matcher selects the alert rules that apply to a record.
package matcher

import (
	"sync"

	"github.com/wgroenewold/stream/internal/alert"
	"github.com/wgroenewold/stream/internal/record"
)

// Taxonomy reports whether a (context, action) pair is registered.
type Taxonomy interface {
	Known(context, action string) bool
}

// Match returns the rules in rules that match rec, in their original order.
// Every rule is evaluated and nothing is mutated. When tax is non-nil and the
// record's (context, action) is not registered, rules that filter on context
// or action are skipped; author-only and broadcast rules still apply.
func Match(rec *record.Record, rules []*alert.Rule, tax Taxonomy) []*alert.Rule {
	if rec == nil {
		return nil
	}
	known := tax == nil || tax.Known(rec.Context, rec.Action)

	matched := make([]*alert.Rule, 0)
	for _, rule := range rules {
		if rule == nil {
			continue
		}
		if !known && (rule.FilterContext != "" || rule.FilterAction != "") {
			continue
		}
		if rule.Matches(rec) {
			matched = append(matched, rule)
		}
	}
	return matched
}

// Matcher provides thread-safe access to the active rule set.
// The set is swapped atomically when rules are reloaded.
type Matcher struct {
	mu    sync.RWMutex
	rules []*alert.Rule
	tax   Taxonomy
}

// NewMatcher creates a matcher over an initial rule set. tax may be nil.
func NewMatcher(rules []*alert.Rule, tax Taxonomy) *Matcher {
	return &Matcher{
		rules: rules,
		tax:   tax,
	}
}

// Match runs Match against the current rule set.
func (m *Matcher) Match(rec *record.Record) []*alert.Rule {
	return Match(rec, m.Snapshot(), m.tax)
}

// Snapshot returns the current rule set. Callers must not modify it; the
// slice is replaced, never mutated, by UpdateRules.
func (m *Matcher) Snapshot() []*alert.Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rules
}

// UpdateRules atomically swaps the rule set.
func (m *Matcher) UpdateRules(rules []*alert.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = rules
}

// RuleCount returns the current number of rules.
func (m *Matcher) RuleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// Taxonomy returns the taxonomy the matcher checks records against.
func (m *Matcher) Taxonomy() Taxonomy {
	return m.tax
}
