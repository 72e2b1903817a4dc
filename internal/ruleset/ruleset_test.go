package ruleset

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wgroenewold/stream/internal/alert"
	"github.com/wgroenewold/stream/internal/matcher"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

type mockLoader struct {
	LoadFn func(ctx context.Context) ([]*alert.Rule, error)

	mu    sync.Mutex
	loads int
}

func (m *mockLoader) Load(ctx context.Context) ([]*alert.Rule, error) {
	m.mu.Lock()
	m.loads++
	m.mu.Unlock()
	if m.LoadFn != nil {
		return m.LoadFn(ctx)
	}
	return nil, nil
}

func (m *mockLoader) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

func TestVersioner(t *testing.T) {
	_, client := newTestRedis(t)
	v := NewVersioner(client)
	ctx := context.Background()

	got, err := v.Get(ctx)
	if err != nil || got != 0 {
		t.Fatalf("Get() on empty = %d, %v, want 0, nil", got, err)
	}
	for want := int64(1); want <= 3; want++ {
		got, err := v.Bump(ctx)
		if err != nil || got != want {
			t.Fatalf("Bump() = %d, %v, want %d", got, err, want)
		}
	}
	if got, _ := v.Get(ctx); got != 3 {
		t.Errorf("Get() = %d, want 3", got)
	}
}

func TestVersioner_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()
	if _, err := NewVersioner(client).Get(context.Background()); err == nil {
		t.Error("Get() should fail when redis is down")
	}
}

func TestReloader_StartLoadsInitialRules(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Set(VersionKey, "7")

	loader := &mockLoader{LoadFn: func(context.Context) ([]*alert.Rule, error) {
		return []*alert.Rule{{ID: 1}, {ID: 2}}, nil
	}}
	m := matcher.NewMatcher(nil, nil)
	r := NewReloader(loader, m, NewVersioner(client), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if m.RuleCount() != 2 || r.Version() != 7 {
		t.Errorf("RuleCount=%d Version=%d, want 2/7", m.RuleCount(), r.Version())
	}
}

func TestReloader_StartLoadError(t *testing.T) {
	_, client := newTestRedis(t)
	loadErr := errors.New("db down")
	loader := &mockLoader{LoadFn: func(context.Context) ([]*alert.Rule, error) { return nil, loadErr }}

	r := NewReloader(loader, matcher.NewMatcher(nil, nil), NewVersioner(client), time.Hour)
	if err := r.Start(context.Background()); !errors.Is(err, loadErr) {
		t.Errorf("Start() error = %v, want %v", err, loadErr)
	}
}

func TestReloader_CheckAndReload(t *testing.T) {
	_, client := newTestRedis(t)
	versions := NewVersioner(client)
	ctx := context.Background()

	rules := []*alert.Rule{{ID: 1}}
	loader := &mockLoader{LoadFn: func(context.Context) ([]*alert.Rule, error) { return rules, nil }}
	m := matcher.NewMatcher(nil, nil)
	r := NewReloader(loader, m, versions, time.Hour)

	if err := r.checkAndReload(ctx); err != nil {
		t.Fatal(err)
	}
	if loader.count() != 0 {
		t.Error("unchanged version should not reload")
	}

	rules = []*alert.Rule{{ID: 1}, {ID: 2}, {ID: 3}}
	if _, err := versions.Bump(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.checkAndReload(ctx); err != nil {
		t.Fatal(err)
	}
	if loader.count() != 1 || m.RuleCount() != 3 || r.Version() != 1 {
		t.Errorf("loads=%d rules=%d version=%d", loader.count(), m.RuleCount(), r.Version())
	}
}

func TestReloader_FailedReloadKeepsRules(t *testing.T) {
	_, client := newTestRedis(t)
	versions := NewVersioner(client)
	ctx := context.Background()

	m := matcher.NewMatcher([]*alert.Rule{{ID: 9}}, nil)
	loader := &mockLoader{LoadFn: func(context.Context) ([]*alert.Rule, error) { return nil, errors.New("timeout") }}
	r := NewReloader(loader, m, versions, time.Hour)

	versions.Bump(ctx)
	if err := r.checkAndReload(ctx); err == nil {
		t.Fatal("checkAndReload() should fail")
	}
	if m.RuleCount() != 1 || r.Version() != 0 {
		t.Errorf("RuleCount=%d Version=%d, previous set should stay", m.RuleCount(), r.Version())
	}
}

func TestReloader_PollLoop(t *testing.T) {
	_, client := newTestRedis(t)
	versions := NewVersioner(client)

	loader := &mockLoader{}
	r := NewReloader(loader, matcher.NewMatcher(nil, nil), versions, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	versions.Bump(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for loader.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if loader.count() < 2 {
		t.Errorf("loads = %d, want initial load plus one reload", loader.count())
	}
}

func TestReloader_ReloadNow(t *testing.T) {
	_, client := newTestRedis(t)
	loader := &mockLoader{}
	r := NewReloader(loader, matcher.NewMatcher(nil, nil), NewVersioner(client), 0)
	if r.pollInterval != DefaultPollInterval {
		t.Errorf("pollInterval = %v", r.pollInterval)
	}
	if err := r.ReloadNow(context.Background()); err != nil || loader.count() != 1 {
		t.Errorf("ReloadNow() = %v, loads = %d", err, loader.count())
	}
}
