package handlers

import (
	"context"
	"time"

	"github.com/wgroenewold/stream/internal/alert"
	"github.com/wgroenewold/stream/internal/database"
	"github.com/wgroenewold/stream/internal/engine"
	"github.com/wgroenewold/stream/internal/events"
	"github.com/wgroenewold/stream/internal/record"
	"github.com/wgroenewold/stream/internal/taxonomy"
	"github.com/wgroenewold/stream/pkg/metrics"
)

// EventLogger runs one raw event through the pipeline.
type EventLogger interface {
	Log(ctx context.Context, raw events.RawEvent) (*engine.Result, error)
}

// RecordReader reads stored records.
type RecordReader interface {
	GetRecord(ctx context.Context, id int64) (*record.Record, error)
	ListRecords(ctx context.Context, q database.RecordQuery) ([]*record.Record, error)
}

// RuleRepository is the rule persistence surface. *alert.Repository
// satisfies it.
type RuleRepository interface {
	Save(ctx context.Context, rule *alert.Rule) (bool, error)
	Load(ctx context.Context) ([]*alert.Rule, error)
	Get(ctx context.Context, id int64) (*alert.Rule, error)
	Delete(ctx context.Context, id int64) error
}

// VersionBumper signals that the stored rule set changed.
// *ruleset.Versioner satisfies it.
type VersionBumper interface {
	Bump(ctx context.Context) (int64, error)
}

// TaxonomySource lists the registered contexts and actions.
type TaxonomySource interface {
	Contexts() []taxonomy.Context
}

// MetricsReader reads service counters. *metrics.Reader satisfies it.
type MetricsReader interface {
	GetServiceMetrics(ctx context.Context, serviceName string) (*metrics.ServiceMetrics, error)
	ServiceNames(ctx context.Context) ([]string, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// MetricsRecorder receives HTTP request counters.
type MetricsRecorder interface {
	RecordReceived()
	RecordProcessed(latency time.Duration)
	RecordError()
	IncrementCustom(name string)
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

var _ MetricsRecorder = NoOpMetrics{}

func (NoOpMetrics) RecordReceived()                 {}
func (NoOpMetrics) RecordProcessed(_ time.Duration) {}
func (NoOpMetrics) RecordError()                    {}
func (NoOpMetrics) IncrementCustom(_ string)        {}
