// Package emitter publishes generated events to the ingest topic, either as
// a one-off burst or at a fixed rate.
package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wgroenewold/stream/internal/events"
)

const progressInterval = 100

// EventPublisher writes raw events. *producer.Producer satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev *events.RawEvent) error
}

// EventSource yields the next event to publish. *generator.Generator satisfies it.
type EventSource interface {
	Generate() *events.RawEvent
}

// Emitter drives an EventSource into an EventPublisher.
type Emitter struct {
	source    EventSource
	publisher EventPublisher
}

// New creates an emitter.
func New(source EventSource, publisher EventPublisher) *Emitter {
	return &Emitter{source: source, publisher: publisher}
}

// Burst publishes n events back to back and returns how many were sent.
func (e *Emitter) Burst(ctx context.Context, n int) (int, error) {
	slog.Info("Starting burst", "total_events", n)
	start := time.Now()

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			slog.Warn("Burst cancelled", "sent", i, "requested", n)
			return i, err
		}
		if err := e.publishOne(ctx, i); err != nil {
			return i, err
		}
		if (i+1)%progressInterval == 0 {
			slog.Info("Burst progress", "sent", i+1, "total", n)
		}
	}

	slog.Info("Burst completed", "total_sent", n, "duration", time.Since(start))
	return n, nil
}

// Continuous publishes at rps events per second until duration elapses or
// ctx is cancelled. Cancellation is not an error.
func (e *Emitter) Continuous(ctx context.Context, rps float64, duration time.Duration) (int, error) {
	if rps <= 0 {
		return 0, fmt.Errorf("rps must be > 0")
	}
	slog.Info("Starting continuous mode", "target_rps", rps, "duration", duration)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / rps))
	defer ticker.Stop()
	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	sent := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("Continuous mode stopped", "sent", sent)
			return sent, nil
		case <-deadline.C:
			slog.Info("Duration reached", "total_sent", sent)
			return sent, nil
		case <-ticker.C:
			if err := e.publishOne(ctx, sent); err != nil {
				if ctx.Err() != nil {
					return sent, nil
				}
				return sent, err
			}
			sent++
		}
	}
}

func (e *Emitter) publishOne(ctx context.Context, i int) error {
	ev := e.source.Generate()
	if err := e.publisher.PublishEvent(ctx, ev); err != nil {
		return fmt.Errorf("failed to publish event %d: %w", i+1, err)
	}
	if i == 0 {
		slog.Info("Published first event (sample)",
			"actor", ev.Actor,
			"context", ev.Context,
			"action", ev.Action,
			"object_id", ev.ObjectID,
		)
	}
	return nil
}
