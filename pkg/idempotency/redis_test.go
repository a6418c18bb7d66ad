package idempotency_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fleetyard/eldcore/pkg/idempotency"
)

func newRedisStore(t *testing.T, opts idempotency.Options) (*idempotency.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := idempotency.NewRedisStore(client, opts)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store, mr
}

func TestRedisStoreInFlightClaimExpires(t *testing.T) {
	store, mr := newRedisStore(t, idempotency.Options{InFlightTTL: 15 * time.Minute})
	ctx := t.Context()

	if _, err := store.SetInFlight(ctx, "u1:k1"); err != nil {
		t.Fatalf("SetInFlight() failed: %v", err)
	}
	prior, err := store.SetInFlight(ctx, "u1:k1")
	if err != nil {
		t.Fatalf("SetInFlight() failed: %v", err)
	}
	if prior.Status != idempotency.StatusInFlight {
		t.Fatalf("held claim reported %s, want %s", prior.Status, idempotency.StatusInFlight)
	}

	mr.FastForward(16 * time.Minute)

	prior, err = store.SetInFlight(ctx, "u1:k1")
	if err != nil {
		t.Fatalf("SetInFlight() failed: %v", err)
	}
	if prior.Status != idempotency.StatusAbsent {
		t.Errorf("expired claim still held: %s", prior.Status)
	}
}

func TestRedisStoreCompletedRecordExpires(t *testing.T) {
	store, mr := newRedisStore(t, idempotency.Options{CompletedTTL: 24 * time.Hour})
	ctx := t.Context()

	if _, err := store.SetInFlight(ctx, "u1:k1"); err != nil {
		t.Fatalf("SetInFlight() failed: %v", err)
	}
	if err := store.SetCompleted(ctx, "u1:k1", 201, []byte(`{}`)); err != nil {
		t.Fatalf("SetCompleted() failed: %v", err)
	}

	state, err := store.Check(ctx, "u1:k1")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if state.Status != idempotency.StatusCompleted {
		t.Fatalf("status = %s, want %s", state.Status, idempotency.StatusCompleted)
	}

	mr.FastForward(25 * time.Hour)

	state, err = store.Check(ctx, "u1:k1")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if state.Status != idempotency.StatusAbsent {
		t.Errorf("cached response outlived its TTL: %s", state.Status)
	}
}

func TestRedisStoreReportsOutage(t *testing.T) {
	store, mr := newRedisStore(t, idempotency.Options{})
	ctx := t.Context()
	mr.Close()

	if _, err := store.Check(ctx, "u1:k1"); err == nil {
		t.Error("Check() against a dead server succeeded")
	}
	if _, err := store.SetInFlight(ctx, "u1:k1"); err == nil {
		t.Error("SetInFlight() against a dead server succeeded")
	}
	if err := store.Ping(ctx); err == nil {
		t.Error("Ping() against a dead server succeeded")
	}
}
