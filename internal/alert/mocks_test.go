package alert

import (
	"context"
	"sync"

	"github.com/wgroenewold/stream/internal/notifier"
)

// mockStore implements Store for testing and records every call.
type mockStore struct {
	LoadRulesFn      func(ctx context.Context) ([]*Rule, error)
	GetRuleFn        func(ctx context.Context, id int64) (*Rule, error)
	UpsertRuleFn     func(ctx context.Context, rule *Rule) (int64, error)
	UpdateRuleMetaFn func(ctx context.Context, id int64, key, value string) error
	DeleteRuleFn     func(ctx context.Context, id int64) error

	mu          sync.Mutex
	upserts     int
	metaWrites  []metaWrite
	deleteCalls []int64
}

type metaWrite struct {
	id    int64
	key   string
	value string
}

func (m *mockStore) LoadRules(ctx context.Context) ([]*Rule, error) {
	if m.LoadRulesFn != nil {
		return m.LoadRulesFn(ctx)
	}
	return nil, nil
}

func (m *mockStore) GetRule(ctx context.Context, id int64) (*Rule, error) {
	if m.GetRuleFn != nil {
		return m.GetRuleFn(ctx, id)
	}
	return nil, ErrNotFound
}

func (m *mockStore) UpsertRule(ctx context.Context, rule *Rule) (int64, error) {
	m.mu.Lock()
	m.upserts++
	m.mu.Unlock()
	if m.UpsertRuleFn != nil {
		return m.UpsertRuleFn(ctx, rule)
	}
	if rule.ID != 0 {
		return rule.ID, nil
	}
	return 1, nil
}

func (m *mockStore) UpdateRuleMeta(ctx context.Context, id int64, key, value string) error {
	m.mu.Lock()
	m.metaWrites = append(m.metaWrites, metaWrite{id: id, key: key, value: value})
	m.mu.Unlock()
	if m.UpdateRuleMetaFn != nil {
		return m.UpdateRuleMetaFn(ctx, id, key, value)
	}
	return nil
}

func (m *mockStore) DeleteRule(ctx context.Context, id int64) error {
	m.mu.Lock()
	m.deleteCalls = append(m.deleteCalls, id)
	m.mu.Unlock()
	if m.DeleteRuleFn != nil {
		return m.DeleteRuleFn(ctx, id)
	}
	return nil
}

// stubNotifier is a notifier that does nothing.
type stubNotifier struct{ kind string }

func (s stubNotifier) Type() string { return s.kind }

func (s stubNotifier) Notify(context.Context, int64, map[string]any, map[string]string) error {
	return nil
}

func newTestRegistry(kinds ...string) *notifier.Registry {
	reg := notifier.NewRegistry()
	for _, k := range kinds {
		reg.Register(stubNotifier{kind: k})
	}
	return reg
}
