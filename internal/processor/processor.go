// Package processor feeds events from the ingest topic into the engine.
package processor

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/wgroenewold/stream/internal/engine"
	"github.com/wgroenewold/stream/internal/events"
)

// EventReader yields decoded events. *consumer.Consumer satisfies it.
type EventReader interface {
	ReadMessage(ctx context.Context) (*events.RawEvent, *kafka.Message, error)
}

// EventLogger records one event. *engine.Engine satisfies it.
type EventLogger interface {
	Log(ctx context.Context, raw events.RawEvent) (*engine.Result, error)
}

// Processor runs the consume loop.
type Processor struct {
	reader EventReader
	logger EventLogger
}

// NewProcessor creates a processor.
func NewProcessor(reader EventReader, logger EventLogger) *Processor {
	return &Processor{reader: reader, logger: logger}
}

// ProcessEvents reads events until ctx is cancelled. Undecodable messages
// and rejected events are logged and skipped; offsets are committed by the
// reader either way.
func (p *Processor) ProcessEvents(ctx context.Context) error {
	slog.Info("Starting event processing loop")

	for {
		select {
		case <-ctx.Done():
			slog.Info("Event processing loop stopped")
			return nil
		default:
		}

		ev, msg, err := p.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Event processing loop stopped")
				return nil
			}
			attrs := []any{"error", err}
			if msg != nil {
				attrs = append(attrs, "partition", msg.Partition, "offset", msg.Offset)
			}
			slog.Error("Failed to read event", attrs...)
			continue
		}

		result, err := p.logger.Log(ctx, *ev)
		if err != nil {
			slog.Error("Failed to log event",
				"context", ev.Context,
				"action", ev.Action,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}

		attrs := []any{
			"record_id", result.Record.ID,
			"context", result.Record.Context,
			"action", result.Record.Action,
			"matched", len(result.Matched),
		}
		if result.Report != nil && result.Report.Failed > 0 {
			slog.Warn("Event logged with failed alerts",
				append(attrs, "failed", result.Report.Failed, "error", result.Report.Err())...)
			continue
		}
		slog.Info("Event logged", attrs...)
	}
}
