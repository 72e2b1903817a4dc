// Package slack delivers alerts to Slack Incoming Webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wgroenewold/stream/internal/notifier"
	"github.com/wgroenewold/stream/internal/notifier/payload"
	"github.com/wgroenewold/stream/internal/notifier/retry"
)

// Type is the alert_type handled by this notifier.
const Type = "slack"

// MetaWebhookURL is the alert_meta key holding the Incoming Webhook URL.
const MetaWebhookURL = "webhook_url"

// Notifier posts alerts to a Slack webhook.
type Notifier struct {
	httpClient *http.Client
	retry      retry.Config
}

// New creates a Slack notifier with the default retry policy.
func New() *Notifier {
	return NewWithClient(&http.Client{Timeout: 30 * time.Second}, retry.DefaultConfig())
}

// NewWithClient creates a Slack notifier with a custom client and policy.
func NewWithClient(client *http.Client, cfg retry.Config) *Notifier {
	return &Notifier{httpClient: client, retry: cfg}
}

// Type returns the alert type this notifier handles.
func (n *Notifier) Type() string {
	return Type
}

// Notify posts the alert to the "webhook_url" meta value.
func (n *Notifier) Notify(ctx context.Context, recordID int64, fields map[string]any, meta map[string]string) error {
	url := meta[MetaWebhookURL]
	if url == "" {
		return fmt.Errorf("slack webhook URL is required")
	}
	if !notifier.IsValidURL(url) {
		return fmt.Errorf("invalid Slack webhook URL: %q (must be an HTTP/HTTPS URL, not a channel name)", url)
	}

	body, err := json.Marshal(payload.BuildSlackPayload(payload.Alert{RecordID: recordID, Fields: fields, Meta: meta}))
	if err != nil {
		return fmt.Errorf("failed to marshal Slack payload: %w", err)
	}

	err = retry.Do(ctx, n.retry, fmt.Sprintf("slack_%d", recordID), func() error {
		return n.post(ctx, url, body)
	})
	if err != nil {
		slog.Error("Failed to send Slack alert",
			"error", err,
			"webhook_url", maskURL(url),
			"record_id", recordID,
		)
		return err
	}

	slog.Info("Sent Slack alert", "record_id", recordID)
	return nil
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Slack notification to %s: %w", maskURL(url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &retry.StatusError{Endpoint: "slack webhook", Code: resp.StatusCode}
	}
	return nil
}

// maskURL shortens a webhook URL for logging; the path carries the secret.
func maskURL(url string) string {
	if len(url) > 50 {
		return url[:30] + "..." + url[len(url)-10:]
	}
	return url
}
