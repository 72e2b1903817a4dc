package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wgroenewold/stream/internal/alert"
	"github.com/wgroenewold/stream/internal/config"
	"github.com/wgroenewold/stream/internal/consumer"
	"github.com/wgroenewold/stream/internal/database"
	"github.com/wgroenewold/stream/internal/dispatch"
	"github.com/wgroenewold/stream/internal/engine"
	"github.com/wgroenewold/stream/internal/handlers"
	"github.com/wgroenewold/stream/internal/matcher"
	"github.com/wgroenewold/stream/internal/processor"
	"github.com/wgroenewold/stream/internal/producer"
	"github.com/wgroenewold/stream/internal/router"
	"github.com/wgroenewold/stream/internal/ruleset"
	"github.com/wgroenewold/stream/internal/taxonomy"
	"github.com/wgroenewold/stream/pkg/metrics"
	"github.com/wgroenewold/stream/pkg/shared"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	slog.Info("Starting stream service",
		"http_port", cfg.HTTPPort,
		"kafka_brokers", cfg.KafkaBrokers,
		"events_topic", cfg.EventsTopic,
		"alerts_topic", cfg.AlertsTopic,
		"consumer_group_id", cfg.ConsumerGroupID,
		"consumer_enabled", !cfg.DisableConsumer,
		"postgres_dsn", shared.MaskDSN(cfg.PostgresDSN),
		"redis_addr", shared.MaskDSN(cfg.RedisAddr),
		"version_poll_interval", cfg.VersionPollInterval,
		"max_concurrency", cfg.MaxConcurrency,
		"email_provider", cfg.EmailProvider,
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	slog.Info("Connecting to PostgreSQL database")
	db, err := database.NewDB(cfg.PostgresDSN)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		slog.Info("Tip: Start Postgres with 'docker compose up -d postgres' or ensure Postgres is running")
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		slog.Error("Failed to apply schema", "error", err)
		os.Exit(1)
	}
	slog.Info("Successfully connected to PostgreSQL database")

	slog.Info("Connecting to Redis", "addr", shared.MaskDSN(cfg.RedisAddr))
	redisClient, err := shared.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		slog.Info("Tip: Start Redis with 'docker compose up -d redis'")
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.Info("Successfully connected to Redis")

	engineMetrics := metrics.NewCollector(cfg.ServiceName+"-engine", redisClient)
	engineMetrics.Start(ctx)
	defer engineMetrics.Stop()
	apiMetrics := metrics.NewCollector(cfg.ServiceName+"-api", redisClient)
	apiMetrics.Start(ctx)
	defer apiMetrics.Stop()

	tax := taxonomy.Default()
	if cfg.TaxonomyFile != "" {
		if err := tax.Load(cfg.TaxonomyFile); err != nil {
			slog.Error("Failed to load taxonomy file", "path", cfg.TaxonomyFile, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("Taxonomy ready", "contexts", tax.Len())

	slog.Info("Connecting to Kafka producer", "topic", cfg.AlertsTopic)
	alertProducer, err := producer.New(cfg.KafkaBrokers, cfg.AlertsTopic)
	if err != nil {
		slog.Error("Failed to create Kafka producer", "error", err)
		slog.Info("Tip: Start Kafka with 'docker compose up -d kafka'")
		os.Exit(1)
	}
	defer alertProducer.Close()

	notifiers := buildNotifiers(ctx, cfg, alertProducer)
	slog.Info("Registered notifiers", "types", notifiers.List())

	repo := alert.NewRepository(db, alert.WithResolver(notifiers))
	ruleMatcher := matcher.NewMatcher(nil, tax)
	versions := ruleset.NewVersioner(redisClient)

	reloader := ruleset.NewReloader(repo, ruleMatcher, versions, cfg.VersionPollInterval)
	if err := reloader.Start(ctx); err != nil {
		slog.Error("Failed to load alert rules", "error", err)
		os.Exit(1)
	}
	slog.Info("Alert rules loaded", "rule_count", ruleMatcher.RuleCount(), "version", reloader.Version())

	dispatcher := dispatch.New(dispatch.Options{
		MaxConcurrency: cfg.MaxConcurrency,
		Timeout:        cfg.NotifyTimeout,
	})
	eng := engine.New(db, ruleMatcher, dispatcher, engine.WrapMetrics(engineMetrics))

	h := handlers.NewHandlers(handlers.Deps{
		Engine:   eng,
		Records:  db,
		Rules:    repo,
		Versions: versions,
		Taxonomy: tax,
		Metrics:  metrics.NewReader(redisClient),
		Health:   db,
	})
	server := router.NewServer(cfg.HTTPPort, h, apiMetrics)

	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	if cfg.DisableConsumer {
		<-ctx.Done()
	} else {
		slog.Info("Connecting to Kafka consumer", "topic", cfg.EventsTopic)
		eventConsumer, err := consumer.NewConsumer(cfg.KafkaBrokers, cfg.EventsTopic, cfg.ConsumerGroupID)
		if err != nil {
			slog.Error("Failed to create Kafka consumer", "error", err)
			slog.Info("Tip: Start Kafka with 'docker compose up -d kafka'")
			os.Exit(1)
		}
		defer eventConsumer.Close()

		if err := processor.NewProcessor(eventConsumer, eng).ProcessEvents(ctx); err != nil {
			slog.Error("Event processing failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}

	slog.Info("Stream service stopped")
}
