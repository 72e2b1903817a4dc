// Command stream-emit publishes synthetic activity events to the ingest topic.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/wgroenewold/stream/internal/emitter"
	"github.com/wgroenewold/stream/internal/generator"
	"github.com/wgroenewold/stream/internal/producer"
	"github.com/wgroenewold/stream/internal/taxonomy"
	"github.com/wgroenewold/stream/pkg/shared"
)

type options struct {
	kafkaBrokers string
	topic        string
	rps          float64
	duration     time.Duration
	burst        int
	seed         int64
	actorDist    string
	taxonomyFile string
	single       string
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	var opts options
	flag.StringVar(&opts.kafkaBrokers, "kafka-brokers", shared.GetEnvOrDefault("KAFKA_BROKERS", "localhost:9092"), "Kafka broker addresses (comma-separated)")
	flag.StringVar(&opts.topic, "topic", shared.GetEnvOrDefault("EVENTS_TOPIC", "stream.events"), "Kafka topic for raw events")
	flag.Float64Var(&opts.rps, "rps", 10.0, "Events per second")
	flag.DurationVar(&opts.duration, "duration", 60*time.Second, "Duration to run (e.g., 60s, 5m)")
	flag.IntVar(&opts.burst, "burst", 0, "Burst mode: send N events immediately, then stop (0 = continuous)")
	flag.Int64Var(&opts.seed, "seed", 0, "Random seed for deterministic generation (0 = random)")
	flag.StringVar(&opts.actorDist, "actor-dist", generator.DefaultActorDist, "Actor distribution (format: actor:percent,...)")
	flag.StringVar(&opts.taxonomyFile, "taxonomy-file", shared.GetEnvOrDefault("TAXONOMY_FILE", ""), "Optional YAML file with extra contexts and actions")
	flag.StringVar(&opts.single, "single", "", "Send one event as actor/context/action and exit")
	flag.Parse()

	if err := opts.validate(); err != nil {
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

	slog.Info("Connecting to Kafka", "brokers", opts.kafkaBrokers, "topic", opts.topic)
	p, err := producer.New(opts.kafkaBrokers, opts.topic)
	if err != nil {
		slog.Error("Failed to create Kafka producer", "error", err)
		slog.Info("Tip: Start Kafka with 'docker compose up -d kafka'")
		os.Exit(1)
	}
	defer p.Close()

	if opts.single != "" {
		actor, ctxName, action, _ := splitSingle(opts.single)
		ev := generator.Fixed(actor, ctxName, action)
		if err := p.PublishEvent(ctx, ev); err != nil {
			slog.Error("Failed to publish event", "error", err)
			os.Exit(1)
		}
		slog.Info("Published single event", "actor", actor, "context", ctxName, "action", action)
		return
	}

	tax := taxonomy.Default()
	if opts.taxonomyFile != "" {
		if err := tax.Load(opts.taxonomyFile); err != nil {
			slog.Error("Failed to load taxonomy file", "path", opts.taxonomyFile, "error", err)
			os.Exit(1)
		}
	}
	gen, err := generator.New(tax, generator.Options{Seed: opts.seed, ActorDist: opts.actorDist})
	if err != nil {
		slog.Error("Failed to create generator", "error", err)
		os.Exit(1)
	}

	em := emitter.New(gen, p)
	var sent int
	if opts.burst > 0 {
		sent, err = em.Burst(ctx, opts.burst)
	} else {
		sent, err = em.Continuous(ctx, opts.rps, opts.duration)
	}
	if err != nil {
		slog.Error("Emitting failed", "sent", sent, "error", err)
		os.Exit(1)
	}
	slog.Info("Event emitter completed", "sent", sent)
}

func (o options) validate() error {
	if o.kafkaBrokers == "" {
		return fmt.Errorf("kafka-brokers cannot be empty")
	}
	if o.topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	if o.single != "" {
		if _, _, _, ok := splitSingle(o.single); !ok {
			return fmt.Errorf("single must be actor/context/action, got %q", o.single)
		}
		return nil
	}
	if o.burst < 0 {
		return fmt.Errorf("burst must be >= 0")
	}
	if o.burst == 0 {
		if o.rps <= 0 {
			return fmt.Errorf("rps must be > 0")
		}
		if o.duration <= 0 {
			return fmt.Errorf("duration must be > 0")
		}
	}
	if _, err := generator.ParseDistribution(o.actorDist); err != nil {
		return fmt.Errorf("actor-dist: %w", err)
	}
	return nil
}

// splitSingle parses "actor/context/action"; actor may be empty.
func splitSingle(s string) (actor, context, action string, ok bool) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
