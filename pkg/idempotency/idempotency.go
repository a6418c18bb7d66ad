// Package idempotency implements the keyed response cache that makes event
// submission safe to retry. A record moves absent → in_flight → completed,
// or back to absent when the request fails with a non-2xx outcome; completed
// records carry the exact response so a replayed request returns it
// byte-for-byte without re-executing the pipeline.
//
// Keys are scoped to the authenticated account (see Key) so one carrier's
// client key can never replay another's cached response.
//
// Three backends implement Store: an in-memory store (the default; replay
// protection resets on restart), an embedded BadgerDB store that persists
// records on a single node (TTL handled by badger entries), and a Redis
// store for multi-replica deployments (SETNX acquisition). All are safe for
// concurrent use. Wrap the durable ones with FailOpen for the ingestion
// path: the cache is auxiliary, and an unreachable store must never block
// an event from being recorded.
package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle position of an idempotency record.
type Status int

const (
	StatusAbsent    Status = iota // no record for the key
	StatusInFlight                // a request holding the key is executing
	StatusCompleted               // a prior request finished and cached its response
)

func (s Status) String() string {
	switch s {
	case StatusAbsent:
		return "absent"
	case StatusInFlight:
		return "in_flight"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Record is the cached outcome of a completed request.
type Record struct {
	StatusCode int       `json:"status_code"`
	Body       []byte    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// State is the observed state of a key. Record is non-nil only when
// Status is StatusCompleted.
type State struct {
	Status Status
	Record *Record
}

// Store is the idempotency record cache.
//
// SetInFlight is the serialization point: it atomically claims the key and
// returns the state that held before the call. StatusAbsent means the
// caller now owns the in-flight slot and must finish with SetCompleted or
// Clear; StatusInFlight means another request holds it (conflict);
// StatusCompleted means the cached response should be returned without
// re-executing.
type Store interface {
	// Check reports the current state of a key without claiming it.
	Check(ctx context.Context, key string) (State, error)

	// SetInFlight atomically transitions absent → in_flight and returns
	// the prior state.
	SetInFlight(ctx context.Context, key string) (State, error)

	// SetCompleted caches the response for a key the caller claimed.
	SetCompleted(ctx context.Context, key string, statusCode int, body []byte) error

	// Clear removes the record so the client may retry after a non-2xx
	// outcome. Clearing an absent key is a no-op.
	Clear(ctx context.Context, key string) error

	// Ping reports backend reachability for the readiness surface.
	Ping(ctx context.Context) error

	Close() error
}

const (
	// DefaultCompletedTTL bounds how long a cached response is replayable.
	DefaultCompletedTTL = 24 * time.Hour

	// DefaultInFlightTTL bounds how long an abandoned in-flight claim can
	// block retries. A request cancelled mid-pipeline leaves its record
	// in_flight; once the claim expires, the retry proceeds and finds the
	// committed event through the store's uniqueness check.
	DefaultInFlightTTL = 15 * time.Minute
)

// Options configures record lifetimes. Zero values take the defaults.
type Options struct {
	InFlightTTL  time.Duration
	CompletedTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.InFlightTTL <= 0 {
		o.InFlightTTL = DefaultInFlightTTL
	}
	if o.CompletedTTL <= 0 {
		o.CompletedTTL = DefaultCompletedTTL
	}
	return o
}

// Key scopes a client-supplied idempotency key to the authenticated
// account. Account IDs are UUIDs, so the separator cannot collide.
func Key(accountID, clientKey string) string {
	return accountID + ":" + clientKey
}

// storedRecord is the serialized form shared by the badger and redis
// backends.
type storedRecord struct {
	Status     string    `json:"status"`
	StatusCode int       `json:"status_code,omitempty"`
	Body       []byte    `json:"body,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	statusValueInFlight  = "in_flight"
	statusValueCompleted = "completed"
)

func encodeInFlight(now time.Time) ([]byte, error) {
	return json.Marshal(storedRecord{Status: statusValueInFlight, CreatedAt: now})
}

func encodeCompleted(statusCode int, body []byte, now time.Time) ([]byte, error) {
	return json.Marshal(storedRecord{
		Status:     statusValueCompleted,
		StatusCode: statusCode,
		Body:       body,
		CreatedAt:  now,
	})
}

func decodeState(val []byte) (State, error) {
	var sr storedRecord
	if err := json.Unmarshal(val, &sr); err != nil {
		return State{}, fmt.Errorf("corrupted idempotency record: %w", err)
	}
	switch sr.Status {
	case statusValueInFlight:
		return State{Status: StatusInFlight}, nil
	case statusValueCompleted:
		return State{
			Status: StatusCompleted,
			Record: &Record{
				StatusCode: sr.StatusCode,
				Body:       sr.Body,
				CreatedAt:  sr.CreatedAt,
			},
		}, nil
	default:
		return State{}, fmt.Errorf("corrupted idempotency record: unknown status %q", sr.Status)
	}
}
