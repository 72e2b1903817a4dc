// Package email delivers alerts by email, over SMTP or through a hosted
// provider registry.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/wgroenewold/stream/internal/notifier/email/provider"
	"github.com/wgroenewold/stream/internal/notifier/payload"
)

// Type is the alert_type handled by this notifier.
const Type = "email"

// Meta keys read from a rule's alert_meta.
const (
	MetaRecipients = "recipients"
	MetaSubject    = "subject"
)

// Config holds SMTP configuration.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

// Notifier sends alert emails. When a provider registry is attached it is
// used instead of SMTP.
type Notifier struct {
	cfg       Config
	providers *provider.Registry

	// sendMail is the plain SMTP path; replaced in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New creates an SMTP email notifier.
func New(cfg Config) *Notifier {
	return &Notifier{cfg: cfg, sendMail: smtp.SendMail}
}

// NewWithProviders creates an email notifier that sends through providers.
func NewWithProviders(from string, providers *provider.Registry) *Notifier {
	return &Notifier{cfg: Config{From: from}, providers: providers, sendMail: smtp.SendMail}
}

// Type returns the alert type this notifier handles.
func (n *Notifier) Type() string {
	return Type
}

// Notify emails the alert to the comma-separated "recipients" meta value.
func (n *Notifier) Notify(ctx context.Context, recordID int64, fields map[string]any, meta map[string]string) error {
	recipients := parseRecipients(meta[MetaRecipients])
	if len(recipients) == 0 {
		return fmt.Errorf("email recipient is required")
	}
	for _, r := range recipients {
		if !strings.Contains(r, "@") {
			return fmt.Errorf("invalid email address format: %q", r)
		}
	}

	p := payload.BuildEmailPayload(payload.Alert{RecordID: recordID, Fields: fields, Meta: meta})

	if n.providers != nil {
		err := n.providers.Send(ctx, &provider.EmailRequest{
			From:    n.cfg.From,
			To:      recipients,
			Subject: p.Subject,
			Body:    p.Body,
		})
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		slog.Info("Sent email alert", "record_id", recordID, "to", strings.Join(recipients, ", "))
		return nil
	}

	if err := n.sendSMTP(recipients, p); err != nil {
		slog.Error("Failed to send email",
			"error", err,
			"smtp_server", n.addr(),
			"record_id", recordID,
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	slog.Info("Sent email alert",
		"record_id", recordID,
		"to", strings.Join(recipients, ", "),
		"subject", p.Subject,
		"smtp_server", n.addr(),
	)
	return nil
}

func (n *Notifier) addr() string {
	return n.cfg.Host + ":" + n.cfg.Port
}

// envelopeFrom returns the SMTP envelope sender. Gmail rejects a sender that
// differs from the authenticated user.
func (n *Notifier) envelopeFrom() string {
	if strings.Contains(n.cfg.Host, "gmail.com") && n.cfg.User != "" {
		return n.cfg.User
	}
	return n.cfg.From
}

func (n *Notifier) sendSMTP(recipients []string, p payload.EmailPayload) error {
	port, err := strconv.Atoi(n.cfg.Port)
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %s", n.cfg.Port)
	}

	from := n.envelopeFrom()
	msg := buildMessage(from, recipients, p.Subject, p.Body)

	// 587 is STARTTLS, 465 implicit TLS; anything else is a plain relay such
	// as MailHog.
	if port == 587 || port == 465 {
		return n.sendWithTLS(n.addr(), port, from, recipients, msg)
	}

	var auth smtp.Auth
	if n.cfg.User != "" && n.cfg.Password != "" {
		auth = smtp.PlainAuth("", n.cfg.User, n.cfg.Password, n.cfg.Host)
	}
	return n.sendMail(n.addr(), auth, from, recipients, msg)
}
