// Package webhook delivers alerts as JSON HTTP POSTs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wgroenewold/stream/internal/notifier"
	"github.com/wgroenewold/stream/internal/notifier/payload"
	"github.com/wgroenewold/stream/internal/notifier/retry"
)

// Type is the alert_type handled by this notifier.
const Type = "webhook"

// MetaURL is the alert_meta key holding the endpoint.
const MetaURL = "url"

// HeaderDispatchID carries the per-delivery id; it is stable across retries
// so receivers can deduplicate.
const HeaderDispatchID = "X-Stream-Dispatch-Id"

var dummyHosts = []string{
	"example.com",
	"example.org",
	"example.net",
	"test.com",
	"invalid",
}

// Notifier posts alerts to arbitrary webhook endpoints.
type Notifier struct {
	httpClient *http.Client
	retry      retry.Config
	skipDummy  bool
}

// New creates a webhook notifier with the default retry policy.
func New() *Notifier {
	return NewWithClient(&http.Client{Timeout: 30 * time.Second}, retry.DefaultConfig())
}

// NewWithClient creates a webhook notifier with a custom client and policy.
func NewWithClient(client *http.Client, cfg retry.Config) *Notifier {
	return &Notifier{httpClient: client, retry: cfg}
}

// SkipDummyHosts makes Notify accept reserved documentation hosts
// (example.com, test.com, .invalid) without sending a request. Off by
// default; seeded development rule sets point at these hosts.
func (n *Notifier) SkipDummyHosts(enabled bool) *Notifier {
	n.skipDummy = enabled
	return n
}

// Type returns the alert type this notifier handles.
func (n *Notifier) Type() string {
	return Type
}

// Notify posts the alert to the "url" meta value.
func (n *Notifier) Notify(ctx context.Context, recordID int64, fields map[string]any, meta map[string]string) error {
	endpoint := meta[MetaURL]
	if endpoint == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !notifier.IsValidURL(endpoint) {
		return fmt.Errorf("invalid webhook URL: %q (must be an HTTP/HTTPS URL)", endpoint)
	}
	if n.skipDummy && isDummyURL(endpoint) {
		slog.Info("Skipping dummy webhook endpoint", "webhook_url", endpoint, "record_id", recordID)
		return nil
	}

	dispatchID := uuid.NewString()
	body, err := json.Marshal(payload.BuildWebhookPayload(dispatchID, payload.Alert{RecordID: recordID, Fields: fields, Meta: meta}))
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	err = retry.Do(ctx, n.retry, "webhook_"+dispatchID, func() error {
		return n.post(ctx, endpoint, dispatchID, body)
	})
	if err != nil {
		slog.Error("Failed to send webhook alert",
			"error", err,
			"webhook_url", endpoint,
			"record_id", recordID,
			"dispatch_id", dispatchID,
		)
		return err
	}

	slog.Info("Sent webhook alert",
		"webhook_url", endpoint,
		"record_id", recordID,
		"dispatch_id", dispatchID,
	)
	return nil
}

func (n *Notifier) post(ctx context.Context, endpoint, dispatchID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderDispatchID, dispatchID)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &retry.StatusError{Endpoint: "webhook", Code: resp.StatusCode}
	}
	return nil
}

func isDummyURL(endpoint string) bool {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}
	for _, dummy := range dummyHosts {
		if host == dummy || strings.HasSuffix(host, "."+dummy) {
			return true
		}
	}
	return false
}
