package logsink

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/wgroenewold/stream/internal/notifier"
)

func TestNotifier_Notify(t *testing.T) {
	var buf bytes.Buffer
	n := New(slog.New(slog.NewTextHandler(&buf, nil)))
	if n.Type() != "log" {
		t.Errorf("Type() = %s", n.Type())
	}

	ctx := notifier.WithRule(context.Background(), notifier.RuleInfo{ID: 4, Type: "log"})
	err := n.Notify(ctx, 21, map[string]any{"actor": "bob", "context": "users", "action": "login"}, nil)
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Alert triggered", "alert_id=4", "record_id=21", "context=users", "actor=bob"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestNew_DefaultLogger(t *testing.T) {
	if New(nil).logger == nil {
		t.Error("New(nil) logger should default")
	}
}
