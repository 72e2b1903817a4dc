package handlers

import (
	"context"

	"github.com/wgroenewold/stream/internal/alert"
	"github.com/wgroenewold/stream/internal/database"
	"github.com/wgroenewold/stream/internal/engine"
	"github.com/wgroenewold/stream/internal/events"
	"github.com/wgroenewold/stream/internal/record"
	"github.com/wgroenewold/stream/internal/taxonomy"
	"github.com/wgroenewold/stream/pkg/metrics"
)

type mockEngine struct {
	LogFn func(ctx context.Context, raw events.RawEvent) (*engine.Result, error)
}

func (m *mockEngine) Log(ctx context.Context, raw events.RawEvent) (*engine.Result, error) {
	if m.LogFn != nil {
		return m.LogFn(ctx, raw)
	}
	return &engine.Result{Record: &record.Record{ID: 1, Context: raw.Context, Action: raw.Action}, KnownTaxonomy: true}, nil
}

type mockRecords struct {
	GetRecordFn   func(ctx context.Context, id int64) (*record.Record, error)
	ListRecordsFn func(ctx context.Context, q database.RecordQuery) ([]*record.Record, error)
}

func (m *mockRecords) GetRecord(ctx context.Context, id int64) (*record.Record, error) {
	if m.GetRecordFn != nil {
		return m.GetRecordFn(ctx, id)
	}
	return &record.Record{ID: id}, nil
}

func (m *mockRecords) ListRecords(ctx context.Context, q database.RecordQuery) ([]*record.Record, error) {
	if m.ListRecordsFn != nil {
		return m.ListRecordsFn(ctx, q)
	}
	return nil, nil
}

type mockRules struct {
	SaveFn   func(ctx context.Context, rule *alert.Rule) (bool, error)
	LoadFn   func(ctx context.Context) ([]*alert.Rule, error)
	GetFn    func(ctx context.Context, id int64) (*alert.Rule, error)
	DeleteFn func(ctx context.Context, id int64) error
}

func (m *mockRules) Save(ctx context.Context, rule *alert.Rule) (bool, error) {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, rule)
	}
	if rule.ID == 0 {
		rule.ID = 1
	}
	return true, nil
}

func (m *mockRules) Load(ctx context.Context) ([]*alert.Rule, error) {
	if m.LoadFn != nil {
		return m.LoadFn(ctx)
	}
	return nil, nil
}

func (m *mockRules) Get(ctx context.Context, id int64) (*alert.Rule, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, id)
	}
	return &alert.Rule{ID: id, AlertType: "email"}, nil
}

func (m *mockRules) Delete(ctx context.Context, id int64) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, id)
	}
	return nil
}

type mockVersions struct {
	BumpFn func(ctx context.Context) (int64, error)
	bumps  int
}

func (m *mockVersions) Bump(ctx context.Context) (int64, error) {
	m.bumps++
	if m.BumpFn != nil {
		return m.BumpFn(ctx)
	}
	return int64(m.bumps), nil
}

type mockTaxonomy struct {
	contexts []taxonomy.Context
}

func (m *mockTaxonomy) Contexts() []taxonomy.Context { return m.contexts }

type mockMetricsReader struct {
	GetServiceMetricsFn func(ctx context.Context, name string) (*metrics.ServiceMetrics, error)
	ServiceNamesFn      func(ctx context.Context) ([]string, error)
}

func (m *mockMetricsReader) GetServiceMetrics(ctx context.Context, name string) (*metrics.ServiceMetrics, error) {
	if m.GetServiceMetricsFn != nil {
		return m.GetServiceMetricsFn(ctx, name)
	}
	return &metrics.ServiceMetrics{ServiceName: name, Status: "healthy"}, nil
}

func (m *mockMetricsReader) ServiceNames(ctx context.Context) ([]string, error) {
	if m.ServiceNamesFn != nil {
		return m.ServiceNamesFn(ctx)
	}
	return nil, nil
}

type mockHealth struct {
	err error
}

func (m *mockHealth) Ping(context.Context) error { return m.err }

// testDeps returns a fully mocked dependency set.
func testDeps() (Deps, *mockEngine, *mockRecords, *mockRules, *mockVersions) {
	eng := &mockEngine{}
	recs := &mockRecords{}
	rules := &mockRules{}
	versions := &mockVersions{}
	return Deps{
		Engine:   eng,
		Records:  recs,
		Rules:    rules,
		Versions: versions,
		Taxonomy: &mockTaxonomy{},
		Metrics:  &mockMetricsReader{},
		Health:   &mockHealth{},
	}, eng, recs, rules, versions
}
