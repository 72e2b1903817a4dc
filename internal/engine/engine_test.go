package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wgroenewold/stream/internal/alert"
	"github.com/wgroenewold/stream/internal/dispatch"
	"github.com/wgroenewold/stream/internal/events"
	"github.com/wgroenewold/stream/internal/matcher"
	"github.com/wgroenewold/stream/internal/notifier"
	"github.com/wgroenewold/stream/internal/record"
	"github.com/wgroenewold/stream/internal/taxonomy"
)

type mockRecordStore struct {
	InsertRecordFn func(ctx context.Context, rec *record.Record) (int64, error)

	mu       sync.Mutex
	inserted []*record.Record
}

func (m *mockRecordStore) InsertRecord(ctx context.Context, rec *record.Record) (int64, error) {
	m.mu.Lock()
	m.inserted = append(m.inserted, rec)
	n := len(m.inserted)
	m.mu.Unlock()
	if m.InsertRecordFn != nil {
		return m.InsertRecordFn(ctx, rec)
	}
	return int64(n), nil
}

// countingNotifier records the record ids it was called with.
type countingNotifier struct {
	mu      sync.Mutex
	records []int64
	err     error
}

func (c *countingNotifier) Type() string { return "test" }

func (c *countingNotifier) Notify(_ context.Context, recordID int64, _ map[string]any, _ map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, recordID)
	return c.err
}

func (c *countingNotifier) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

type mockMetrics struct {
	NoOpMetrics
	mu        sync.Mutex
	received  int
	errors    int
	published int
	processed int
	custom    map[string]uint64
}

func (m *mockMetrics) RecordReceived()               { m.mu.Lock(); m.received++; m.mu.Unlock() }
func (m *mockMetrics) RecordError()                  { m.mu.Lock(); m.errors++; m.mu.Unlock() }
func (m *mockMetrics) RecordPublished()              { m.mu.Lock(); m.published++; m.mu.Unlock() }
func (m *mockMetrics) RecordProcessed(time.Duration) { m.mu.Lock(); m.processed++; m.mu.Unlock() }
func (m *mockMetrics) IncrementCustom(name string)   { m.AddCustom(name, 1) }
func (m *mockMetrics) AddCustom(name string, v uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.custom == nil {
		m.custom = map[string]uint64{}
	}
	m.custom[name] += v
}

func newEngine(store RecordStore, rules []*alert.Rule, m Metrics) *Engine {
	return New(store, matcher.NewMatcher(rules, taxonomy.Default()), dispatch.New(dispatch.Options{}), m)
}

func TestEngine_Log_OneOfTwoRulesNotified(t *testing.T) {
	hit := &countingNotifier{}
	miss := &countingNotifier{}
	rules := []*alert.Rule{
		{ID: 1, AlertType: "test", FilterContext: "posts", Notifier: hit},
		{ID: 2, AlertType: "test", FilterContext: "comments", Notifier: miss},
	}
	store := &mockRecordStore{}
	m := &mockMetrics{}

	res, err := newEngine(store, rules, m).Log(context.Background(), events.RawEvent{
		Actor: "alice", Context: "posts", Action: "created",
	})
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	if hit.calls() != 1 || miss.calls() != 0 {
		t.Errorf("calls hit=%d miss=%d, want 1/0", hit.calls(), miss.calls())
	}
	if hit.records[0] != res.Record.ID || res.Record.ID != 1 {
		t.Errorf("notified record %v, stored id %d", hit.records, res.Record.ID)
	}
	if len(res.Matched) != 1 || res.Matched[0].ID != 1 {
		t.Errorf("Matched = %v", res.Matched)
	}
	if !res.KnownTaxonomy || res.Report == nil || res.Report.Succeeded != 1 {
		t.Errorf("Result = %+v", res)
	}
	if m.received != 1 || m.published != 1 || m.processed != 1 || m.custom[MetricRecordsStored] != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestEngine_Log_InvalidRecord(t *testing.T) {
	n := &countingNotifier{}
	store := &mockRecordStore{}
	eng := newEngine(store, []*alert.Rule{{ID: 1, AlertType: "test", Notifier: n}}, nil)

	_, err := eng.Log(context.Background(), events.RawEvent{Actor: "alice", Action: "created"})
	if !errors.Is(err, record.ErrMissingContext) {
		t.Errorf("Log() error = %v, want ErrMissingContext", err)
	}
	if len(store.inserted) != 0 || n.calls() != 0 {
		t.Error("invalid record must not be stored or dispatched")
	}
}

func TestEngine_Log_StoreFailureSkipsDispatch(t *testing.T) {
	tests := []struct {
		name    string
		id      int64
		err     error
		wantErr error
	}{
		{name: "driver error", err: errors.New("connection reset"), wantErr: nil},
		{name: "no id", id: 0, wantErr: ErrRecordNotStored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &countingNotifier{}
			store := &mockRecordStore{InsertRecordFn: func(context.Context, *record.Record) (int64, error) {
				return tt.id, tt.err
			}}
			m := &mockMetrics{}
			eng := newEngine(store, []*alert.Rule{{ID: 1, AlertType: "test", Notifier: n}}, m)

			res, err := eng.Log(context.Background(), events.RawEvent{Context: "posts", Action: "created"})
			if err == nil || res != nil {
				t.Fatalf("Log() = %v, %v, want error", res, err)
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Errorf("error = %v, want wrapped %v", err, tt.err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if n.calls() != 0 {
				t.Error("notifier ran without a stored record")
			}
			if m.errors != 1 {
				t.Errorf("errors = %d, want 1", m.errors)
			}
		})
	}
}

func TestEngine_Log_NotifierFailureIsReported(t *testing.T) {
	bad := &countingNotifier{err: errors.New("webhook 500")}
	good := &countingNotifier{}
	rules := []*alert.Rule{
		{ID: 1, AlertType: "test", Notifier: bad},
		{ID: 2, AlertType: "test", Notifier: good},
	}
	m := &mockMetrics{}

	res, err := newEngine(&mockRecordStore{}, rules, m).Log(context.Background(), events.RawEvent{Context: "users", Action: "login"})
	if err != nil {
		t.Fatalf("Log() error = %v, delivery failures must not surface", err)
	}
	if good.calls() != 1 {
		t.Error("healthy notifier should still run")
	}
	if res.Report.Failed != 1 || res.Report.Err() == nil {
		t.Errorf("Report = %+v", res.Report)
	}
	if m.published != 1 || m.errors != 1 {
		t.Errorf("published=%d errors=%d, want 1/1", m.published, m.errors)
	}
}

func TestEngine_Log_UnknownTaxonomy(t *testing.T) {
	scoped := &countingNotifier{}
	byAuthor := &countingNotifier{}
	broadcast := &countingNotifier{}
	rules := []*alert.Rule{
		{ID: 1, AlertType: "test", FilterContext: "acme", Notifier: scoped},
		{ID: 2, AlertType: "test", FilterAuthor: "bob", Notifier: byAuthor},
		{ID: 3, AlertType: "test", Notifier: broadcast},
	}
	m := &mockMetrics{}

	res, err := newEngine(&mockRecordStore{}, rules, m).Log(context.Background(), events.RawEvent{
		Actor: "bob", Context: "acme", Action: "exploded",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.KnownTaxonomy {
		t.Error("KnownTaxonomy should be false")
	}
	if scoped.calls() != 0 || byAuthor.calls() != 1 || broadcast.calls() != 1 {
		t.Errorf("calls scoped=%d author=%d broadcast=%d, want 0/1/1", scoped.calls(), byAuthor.calls(), broadcast.calls())
	}
	if m.custom[MetricUnknownContext] != 1 {
		t.Errorf("unknown taxonomy counter = %d", m.custom[MetricUnknownContext])
	}
}

func TestEngine_Log_MixedCaseTaxonomy(t *testing.T) {
	tax := taxonomy.NewRegistry()
	if err := tax.Parse([]byte("contexts:\n  - name: BuddyPress\n    actions:\n      Created: Created\n")); err != nil {
		t.Fatal(err)
	}
	scoped := &countingNotifier{}
	rules := []*alert.Rule{
		{ID: 1, AlertType: "test", FilterContext: "BuddyPress", FilterAction: "Created", Notifier: scoped},
	}
	eng := New(&mockRecordStore{}, matcher.NewMatcher(rules, tax), dispatch.New(dispatch.Options{}), nil)

	res, err := eng.Log(context.Background(), events.RawEvent{Actor: "alice", Context: "BuddyPress", Action: "Created"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.KnownTaxonomy || len(res.Matched) != 1 || scoped.calls() != 1 {
		t.Errorf("KnownTaxonomy=%v matched=%d calls=%d, want true/1/1", res.KnownTaxonomy, len(res.Matched), scoped.calls())
	}
}

func TestEngine_Log_NoMatches(t *testing.T) {
	res, err := newEngine(&mockRecordStore{}, nil, nil).Log(context.Background(), events.RawEvent{Context: "posts", Action: "created"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Report != nil || len(res.Matched) != 0 {
		t.Errorf("Result = %+v, want no dispatch", res)
	}
}

func TestEngine_Log_ReloadBetweenCalls(t *testing.T) {
	first := &countingNotifier{}
	second := &countingNotifier{}
	m := matcher.NewMatcher([]*alert.Rule{{ID: 1, AlertType: "test", Notifier: first}}, taxonomy.Default())
	eng := New(&mockRecordStore{}, m, dispatch.New(dispatch.Options{}), nil)

	ev := events.RawEvent{Context: "posts", Action: "created"}
	if _, err := eng.Log(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	m.UpdateRules([]*alert.Rule{{ID: 2, AlertType: "test", Notifier: second}})
	if _, err := eng.Log(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	if first.calls() != 1 || second.calls() != 1 {
		t.Errorf("first=%d second=%d, want 1/1", first.calls(), second.calls())
	}
}

func TestEngine_Log_Concurrent(t *testing.T) {
	n := &countingNotifier{}
	eng := newEngine(&mockRecordStore{}, []*alert.Rule{{ID: 1, AlertType: "test", Notifier: n}}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := eng.Log(context.Background(), events.RawEvent{Context: "posts", Action: "updated"}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if n.calls() != 20 {
		t.Errorf("calls = %d, want 20", n.calls())
	}
	seen := map[int64]bool{}
	for _, id := range n.records {
		if seen[id] {
			t.Errorf("record %d notified twice", id)
		}
		seen[id] = true
	}
}

func TestWrapMetrics(t *testing.T) {
	if _, ok := WrapMetrics(nil).(NoOpMetrics); !ok {
		t.Error("WrapMetrics(nil) should return NoOpMetrics")
	}
	m := &mockMetrics{}
	WrapMetrics(m).RecordReceived()
	if m.received != 1 {
		t.Error("adapter should forward calls")
	}
}

var _ notifier.Notifier = (*countingNotifier)(nil)
