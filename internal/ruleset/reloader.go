package ruleset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wgroenewold/stream/internal/alert"
)

// DefaultPollInterval is how often the version key is checked.
const DefaultPollInterval = 5 * time.Second

// Loader reads every stored rule. *alert.Repository satisfies it.
type Loader interface {
	Load(ctx context.Context) ([]*alert.Rule, error)
}

// Swapper receives a freshly loaded rule set. *matcher.Matcher satisfies it.
type Swapper interface {
	UpdateRules(rules []*alert.Rule)
}

// VersionSource reports the current rule-set version.
type VersionSource interface {
	Get(ctx context.Context) (int64, error)
}

// Reloader polls the version and swaps in a new rule set when it changes.
type Reloader struct {
	loader       Loader
	swapper      Swapper
	versions     VersionSource
	pollInterval time.Duration

	mu             sync.Mutex
	currentVersion int64
}

// NewReloader creates a reloader. A non-positive interval uses
// DefaultPollInterval.
func NewReloader(loader Loader, swapper Swapper, versions VersionSource, pollInterval time.Duration) *Reloader {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Reloader{
		loader:       loader,
		swapper:      swapper,
		versions:     versions,
		pollInterval: pollInterval,
	}
}

// Start loads the initial rule set and then polls in a background goroutine
// until ctx is cancelled.
func (r *Reloader) Start(ctx context.Context) error {
	version, err := r.versions.Get(ctx)
	if err != nil {
		return err
	}
	if err := r.reload(ctx, version); err != nil {
		return err
	}

	slog.Info("Starting rule version poller",
		"poll_interval", r.pollInterval,
		"initial_version", version,
	)

	go r.pollLoop(ctx)
	return nil
}

func (r *Reloader) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Rule version poller stopped")
			return
		case <-ticker.C:
			if err := r.checkAndReload(ctx); err != nil {
				// keep polling; the previous rule set stays active
				slog.Error("Failed to check/reload alert rules", "error", err)
			}
		}
	}
}

func (r *Reloader) checkAndReload(ctx context.Context) error {
	version, err := r.versions.Get(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	current := r.currentVersion
	r.mu.Unlock()
	if version == current {
		return nil
	}

	slog.Info("Rule version changed, reloading",
		"old_version", current,
		"new_version", version,
	)
	return r.reload(ctx, version)
}

func (r *Reloader) reload(ctx context.Context, version int64) error {
	rules, err := r.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload rules at version %d: %w", version, err)
	}
	r.swapper.UpdateRules(rules)

	r.mu.Lock()
	r.currentVersion = version
	r.mu.Unlock()

	slog.Info("Alert rules reloaded",
		"version", version,
		"rules_count", len(rules),
	)
	return nil
}

// ReloadNow reloads the rule set unconditionally.
func (r *Reloader) ReloadNow(ctx context.Context) error {
	version, err := r.versions.Get(ctx)
	if err != nil {
		return err
	}
	return r.reload(ctx, version)
}

// Version returns the version of the active rule set.
func (r *Reloader) Version() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentVersion
}
