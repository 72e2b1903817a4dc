// Package dispatch invokes the notifiers of matched rules for one persisted
// record.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wgroenewold/stream/internal/alert"
	"github.com/wgroenewold/stream/internal/notifier"
	"github.com/wgroenewold/stream/internal/record"
)

// DefaultMaxConcurrency bounds parallel notifier calls per record.
const DefaultMaxConcurrency = 8

var (
	// ErrNotPersisted is returned when the record has no store id yet.
	ErrNotPersisted = errors.New("record must be persisted before dispatch")
	// ErrNoNotifier marks a matched rule whose alert type did not resolve.
	ErrNoNotifier = errors.New("rule has no notifier")
	// ErrNilRule marks a nil entry in the matched rule list.
	ErrNilRule = errors.New("matched rule is nil")
)

// NotifierFailure describes one failed delivery.
type NotifierFailure struct {
	AlertID   int64
	AlertType string
	RecordID  int64
	Err       error
}

func (f *NotifierFailure) Error() string {
	return fmt.Sprintf("notifier %q for alert %d on record %d: %v", f.AlertType, f.AlertID, f.RecordID, f.Err)
}

func (f *NotifierFailure) Unwrap() error { return f.Err }

// Outcome is the result of one rule's delivery.
type Outcome struct {
	AlertID   int64         `json:"alert_id"`
	AlertType string        `json:"alert_type"`
	Duration  time.Duration `json:"duration_ns"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
}

// OK reports whether the delivery succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Report summarizes a dispatch pass. Outcomes are in match order.
type Report struct {
	RecordID  int64     `json:"record_id"`
	Outcomes  []Outcome `json:"outcomes"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
}

// Err joins every delivery failure, or returns nil.
func (r *Report) Err() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// Options configures a Dispatcher.
type Options struct {
	MaxConcurrency int
	// Timeout bounds each notifier call; zero means no per-call deadline.
	Timeout time.Duration
}

// Dispatcher fans one record out to the notifiers of its matched rules.
// Safe for concurrent use.
type Dispatcher struct {
	maxConcurrency int
	timeout        time.Duration
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	return &Dispatcher{maxConcurrency: opts.MaxConcurrency, timeout: opts.Timeout}
}

// Dispatch calls Notify exactly once for every rule in matches and waits for
// all of them. A failing or panicking notifier does not affect the others;
// failures are reported, not returned. The only error is ErrNotPersisted, in
// which case no notifier runs.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *record.Record, matches []*alert.Rule) (*Report, error) {
	if !rec.Persisted() {
		return nil, ErrNotPersisted
	}

	report := &Report{RecordID: rec.ID, Outcomes: make([]Outcome, len(matches))}
	sem := make(chan struct{}, d.maxConcurrency)
	var wg sync.WaitGroup

	for i, rule := range matches {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, rule *alert.Rule) {
			defer wg.Done()
			defer func() { <-sem }()
			report.Outcomes[i] = d.deliver(ctx, rec, rule)
		}(i, rule)
	}
	wg.Wait()

	for _, o := range report.Outcomes {
		if o.Err != nil {
			report.Failed++
		} else {
			report.Succeeded++
		}
	}
	return report, nil
}

func (d *Dispatcher) deliver(ctx context.Context, rec *record.Record, rule *alert.Rule) (out Outcome) {
	start := time.Now()
	var alertID int64
	var alertType string

	fail := func(err error) {
		out.Err = &NotifierFailure{AlertID: alertID, AlertType: alertType, RecordID: rec.ID, Err: err}
		out.Error = out.Err.Error()
		slog.Error("Alert delivery failed",
			"record_id", rec.ID,
			"alert_id", alertID,
			"alert_type", alertType,
			"error", err,
		)
	}

	defer func() {
		out.Duration = time.Since(start)
		if p := recover(); p != nil {
			fail(fmt.Errorf("notifier panicked: %v", p))
		}
	}()

	if rule == nil {
		fail(ErrNilRule)
		return out
	}
	alertID, alertType = rule.ID, rule.AlertType
	out.AlertID, out.AlertType = alertID, alertType

	if rule.Notifier == nil {
		fail(ErrNoNotifier)
		return out
	}

	callCtx := notifier.WithRule(ctx, notifier.RuleInfo{ID: rule.ID, Type: rule.AlertType})
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, d.timeout)
		defer cancel()
	}

	meta := make(map[string]string, len(rule.AlertMeta))
	for k, v := range rule.AlertMeta {
		meta[k] = v
	}

	if err := rule.Notifier.Notify(callCtx, rec.ID, rec.Fields(), meta); err != nil {
		fail(err)
	}
	return out
}
