package engine

import "time"

// Metrics receives engine counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// RecordReceived counts raw events handed to Log.
	RecordReceived()
	// RecordPublished counts successful alert deliveries.
	RecordPublished()
	// RecordError counts rejected events, store failures and failed deliveries.
	RecordError()
	// RecordProcessed records how long one Log call took.
	RecordProcessed(duration time.Duration)
	IncrementCustom(name string)
	AddCustom(name string, value uint64)
}

// Custom counter names.
const (
	MetricRecordsStored  = "records_stored"
	MetricRulesMatched   = "rules_matched"
	MetricUnknownContext = "unknown_taxonomy"
	MetricInvalidRecords = "invalid_records"
)

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordReceived()               {}
func (NoOpMetrics) RecordPublished()              {}
func (NoOpMetrics) RecordError()                  {}
func (NoOpMetrics) RecordProcessed(time.Duration) {}
func (NoOpMetrics) IncrementCustom(string)        {}
func (NoOpMetrics) AddCustom(string, uint64)      {}

// metricsCollector is the subset of *metrics.Collector the engine uses.
type metricsCollector interface {
	RecordReceived()
	RecordPublished()
	RecordError()
	RecordProcessed(duration time.Duration)
	IncrementCustom(name string)
	AddCustom(name string, value uint64)
}

type collectorAdapter struct {
	c metricsCollector
}

func (a *collectorAdapter) RecordReceived()                   { a.c.RecordReceived() }
func (a *collectorAdapter) RecordPublished()                  { a.c.RecordPublished() }
func (a *collectorAdapter) RecordError()                      { a.c.RecordError() }
func (a *collectorAdapter) RecordProcessed(d time.Duration)   { a.c.RecordProcessed(d) }
func (a *collectorAdapter) IncrementCustom(name string)       { a.c.IncrementCustom(name) }
func (a *collectorAdapter) AddCustom(name string, val uint64) { a.c.AddCustom(name, val) }

// WrapMetrics adapts a collector, or returns NoOpMetrics for nil.
func WrapMetrics(c metricsCollector) Metrics {
	if c == nil {
		return NoOpMetrics{}
	}
	return &collectorAdapter{c: c}
}
