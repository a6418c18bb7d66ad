package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps idempotency records in Redis, for deployments running
// more than one ingestion replica: a claim taken on one replica must be
// visible to all of them. Acquisition rides on SETNX, expiry on key TTLs.
type RedisStore struct {
	client *redis.Client
	opts   Options
}

// NewRedisStore wraps an already-connected client. The caller owns
// connection configuration; Close releases the client.
func NewRedisStore(client *redis.Client, opts Options) *RedisStore {
	return &RedisStore{client: client, opts: opts.withDefaults()}
}

// Check implements Store.
func (s *RedisStore) Check(ctx context.Context, key string) (State, error) {
	val, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return State{Status: StatusAbsent}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to get idempotency record: %w", err)
	}
	return decodeState(val)
}

// SetInFlight implements Store.
func (s *RedisStore) SetInFlight(ctx context.Context, key string) (State, error) {
	val, err := encodeInFlight(time.Now().UTC())
	if err != nil {
		return State{}, err
	}

	// A key can expire between the failed SETNX and the GET; one more
	// SETNX round settles it. A second disappearance means a concurrent
	// claimant, which reads the same as in flight.
	for range 2 {
		acquired, err := s.client.SetNX(ctx, keyPrefix+key, val, s.opts.InFlightTTL).Result()
		if err != nil {
			return State{}, fmt.Errorf("failed to claim idempotency key: %w", err)
		}
		if acquired {
			return State{Status: StatusAbsent}, nil
		}

		existing, err := s.client.Get(ctx, keyPrefix+key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return State{}, fmt.Errorf("failed to get idempotency record: %w", err)
		}
		return decodeState(existing)
	}
	return State{Status: StatusInFlight}, nil
}

// SetCompleted implements Store.
func (s *RedisStore) SetCompleted(ctx context.Context, key string, statusCode int, body []byte) error {
	val, err := encodeCompleted(statusCode, body, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, keyPrefix+key, val, s.opts.CompletedTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache idempotency record: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to clear idempotency record: %w", err)
	}
	return nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
