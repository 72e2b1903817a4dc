// Package logsink writes alerts to the structured log. It is meant for
// development and for rules that only need an audit trail.
package logsink

import (
	"context"
	"log/slog"

	"github.com/wgroenewold/stream/internal/notifier"
	"github.com/wgroenewold/stream/internal/notifier/payload"
)

// Type is the alert_type handled by this notifier.
const Type = "log"

// Notifier logs each alert at Info level.
type Notifier struct {
	logger *slog.Logger
}

// New creates a log notifier. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

// Type returns the alert type this notifier handles.
func (n *Notifier) Type() string {
	return Type
}

// Notify logs the alert. It never fails.
func (n *Notifier) Notify(ctx context.Context, recordID int64, fields map[string]any, meta map[string]string) error {
	a := payload.Alert{RecordID: recordID, Fields: fields, Meta: meta}
	info, _ := notifier.RuleFromContext(ctx)
	n.logger.InfoContext(ctx, "Alert triggered",
		"alert_id", info.ID,
		"record_id", recordID,
		"context", a.Context(),
		"action", a.Action(),
		"actor", a.Actor(),
		"summary", a.Summary(),
	)
	return nil
}
