// Package ruleset keeps the in-memory rule set in step with the alert store.
// Writers bump a Redis version key; every running instance polls it and
// reloads when it moves.
package ruleset

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// VersionKey is the Redis key holding the rule-set version.
const VersionKey = "alerts:version"

// Versioner reads and bumps the rule-set version.
type Versioner struct {
	client *redis.Client
	key    string
}

// NewVersioner creates a versioner on VersionKey.
func NewVersioner(client *redis.Client) *Versioner {
	return &Versioner{client: client, key: VersionKey}
}

// Get returns the current version, or 0 if no rule has been written yet.
func (v *Versioner) Get(ctx context.Context) (int64, error) {
	version, err := v.client.Get(ctx, v.key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get rule version: %w", err)
	}
	return version, nil
}

// Bump increments the version and returns the new value.
func (v *Versioner) Bump(ctx context.Context) (int64, error) {
	version, err := v.client.Incr(ctx, v.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to bump rule version: %w", err)
	}
	return version, nil
}
