// Package broker forwards alerts to a message broker so other services can
// react to them.
package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wgroenewold/stream/internal/events"
	"github.com/wgroenewold/stream/internal/notifier"
)

// Type is the alert_type handled by this notifier.
const Type = "kafka"

// Publisher writes AlertTriggered messages. *producer.Producer satisfies it.
type Publisher interface {
	PublishAlert(ctx context.Context, alert *events.AlertTriggered) error
}

// Notifier publishes one AlertTriggered per delivery.
type Notifier struct {
	publisher Publisher
}

// New creates a broker notifier.
func New(p Publisher) *Notifier {
	return &Notifier{publisher: p}
}

// Type returns the alert type this notifier handles.
func (n *Notifier) Type() string {
	return Type
}

// Notify publishes the alert. The rule id is taken from the dispatch context
// when present.
func (n *Notifier) Notify(ctx context.Context, recordID int64, fields map[string]any, meta map[string]string) error {
	info, _ := notifier.RuleFromContext(ctx)
	msg := events.NewAlertTriggered(uuid.NewString(), info.ID, Type, recordID, fields, meta)

	if err := n.publisher.PublishAlert(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish alert for record %d: %w", recordID, err)
	}

	slog.Debug("Published alert",
		"record_id", recordID,
		"alert_id", info.ID,
		"dispatch_id", msg.DispatchID,
	)
	return nil
}
