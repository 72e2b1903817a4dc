// Package engine runs the per-event pipeline: normalize, persist, match,
// dispatch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wgroenewold/stream/internal/alert"
	"github.com/wgroenewold/stream/internal/dispatch"
	"github.com/wgroenewold/stream/internal/events"
	"github.com/wgroenewold/stream/internal/matcher"
	"github.com/wgroenewold/stream/internal/record"
)

// ErrRecordNotStored is returned when the record store accepts the insert
// but reports no id.
var ErrRecordNotStored = errors.New("record store returned no id")

// RecordStore persists records and assigns ids.
type RecordStore interface {
	InsertRecord(ctx context.Context, rec *record.Record) (int64, error)
}

// RuleSource provides the active rule set. *matcher.Matcher satisfies it.
type RuleSource interface {
	Snapshot() []*alert.Rule
	Taxonomy() matcher.Taxonomy
}

// Dispatcher delivers a persisted record to matched rules.
// *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec *record.Record, matches []*alert.Rule) (*dispatch.Report, error)
}

// Result describes what happened to one logged event.
type Result struct {
	Record        *record.Record
	Matched       []*alert.Rule
	Report        *dispatch.Report
	KnownTaxonomy bool
}

// Engine is safe for concurrent use; each Log call works on its own snapshot
// of the rule set.
type Engine struct {
	records    RecordStore
	rules      RuleSource
	dispatcher Dispatcher
	metrics    Metrics
}

// New creates an engine. A nil metrics uses NoOpMetrics.
func New(records RecordStore, rules RuleSource, dispatcher Dispatcher, metrics Metrics) *Engine {
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	return &Engine{
		records:    records,
		rules:      rules,
		dispatcher: dispatcher,
		metrics:    metrics,
	}
}

// Log records one event and notifies every matching rule.
//
// An invalid event or a failed insert returns an error and no notifier runs.
// Once the record is stored, delivery failures are reported in Result and
// never returned.
func (e *Engine) Log(ctx context.Context, raw events.RawEvent) (*Result, error) {
	start := time.Now()
	e.metrics.RecordReceived()

	rec := record.New(raw.Fields())
	if err := rec.Validate(); err != nil {
		e.metrics.RecordError()
		e.metrics.IncrementCustom(MetricInvalidRecords)
		return nil, fmt.Errorf("invalid record: %w", err)
	}

	id, err := e.records.InsertRecord(ctx, rec)
	if err == nil && id <= 0 {
		err = ErrRecordNotStored
	}
	if err != nil {
		e.metrics.RecordError()
		slog.Error("Failed to store record",
			"context", rec.Context,
			"action", rec.Action,
			"error", err,
		)
		return nil, fmt.Errorf("failed to store record: %w", err)
	}
	rec = rec.WithID(id)
	e.metrics.IncrementCustom(MetricRecordsStored)

	tax := e.rules.Taxonomy()
	known := tax == nil || tax.Known(rec.Context, rec.Action)
	if !known {
		e.metrics.IncrementCustom(MetricUnknownContext)
		slog.Debug("Record outside registered taxonomy",
			"record_id", rec.ID,
			"context", rec.Context,
			"action", rec.Action,
		)
	}

	matched := matcher.Match(rec, e.rules.Snapshot(), tax)
	result := &Result{Record: rec, Matched: matched, KnownTaxonomy: known}

	if len(matched) > 0 {
		e.metrics.AddCustom(MetricRulesMatched, uint64(len(matched)))
		report, err := e.dispatcher.Dispatch(ctx, rec, matched)
		if err != nil {
			// Only reachable if the record lost its id, which WithID rules out.
			return result, fmt.Errorf("failed to dispatch record %d: %w", rec.ID, err)
		}
		result.Report = report
		for i := 0; i < report.Succeeded; i++ {
			e.metrics.RecordPublished()
		}
		for i := 0; i < report.Failed; i++ {
			e.metrics.RecordError()
		}
	}

	e.metrics.RecordProcessed(time.Since(start))
	slog.Debug("Record logged",
		"record_id", rec.ID,
		"context", rec.Context,
		"action", rec.Action,
		"matched", len(matched),
	)
	return result, nil
}
