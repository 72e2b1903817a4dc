package main

import (
	"context"
	"log/slog"

	"github.com/wgroenewold/stream/internal/config"
	"github.com/wgroenewold/stream/internal/notifier"
	"github.com/wgroenewold/stream/internal/notifier/broker"
	"github.com/wgroenewold/stream/internal/notifier/email"
	"github.com/wgroenewold/stream/internal/notifier/email/provider"
	"github.com/wgroenewold/stream/internal/notifier/logsink"
	"github.com/wgroenewold/stream/internal/notifier/slack"
	"github.com/wgroenewold/stream/internal/notifier/webhook"
)

// buildNotifiers registers one notifier per supported alert_type.
func buildNotifiers(ctx context.Context, cfg *config.Config, publisher broker.Publisher) *notifier.Registry {
	reg := notifier.NewRegistry()
	reg.Register(buildEmail(ctx, cfg))
	reg.Register(slack.New())
	reg.Register(webhook.New().SkipDummyHosts(cfg.SkipDummyWebhooks))
	reg.Register(broker.New(publisher))
	reg.Register(logsink.New(slog.Default()))
	return reg
}

func buildEmail(ctx context.Context, cfg *config.Config) *email.Notifier {
	if cfg.EmailProvider == config.EmailSMTP {
		return email.New(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
		})
	}

	providers := provider.NewRegistry()
	providers.Register(provider.NewSESProvider(ctx, cfg.SESRegion))
	providers.Register(provider.NewResendProvider(cfg.ResendAPIKey))

	fallback := config.EmailResend
	if cfg.EmailProvider == config.EmailResend {
		fallback = config.EmailSES
	}
	if err := providers.SetPrimary(cfg.EmailProvider); err != nil {
		slog.Warn("Failed to set primary email provider", "provider", cfg.EmailProvider, "error", err)
	}
	if err := providers.SetFallback(fallback); err != nil {
		slog.Warn("Failed to set fallback email provider", "provider", fallback, "error", err)
	}
	return email.NewWithProviders(cfg.EmailFrom, providers)
}
