package config

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fleetyard/eldcore/pkg/idempotency"
)

// CreateIdempotencyStore creates the replay store instance selected by
// the configuration.
//
// The badger and redis backends are wrapped in the fail-open decorator:
// a replay store outage degrades duplicate suppression instead of
// blocking ingestion. The memory backend cannot fail and is returned
// bare.
func CreateIdempotencyStore(cfg IdempotencyConfig) (idempotency.Store, error) {
	opts := idempotency.Options{
		InFlightTTL:  cfg.InFlightTTL,
		CompletedTTL: cfg.CompletedTTL,
	}

	switch cfg.Backend {
	case "memory", "":
		return idempotency.NewMemoryStore(opts), nil

	case "badger":
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger replay store requires path to be set")
		}
		st, err := idempotency.NewBadgerStore(cfg.Path, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger replay store: %w", err)
		}
		return idempotency.FailOpen(st), nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return idempotency.FailOpen(idempotency.NewRedisStore(client, opts)), nil

	default:
		return nil, fmt.Errorf("unknown idempotency backend: %q", cfg.Backend)
	}
}
