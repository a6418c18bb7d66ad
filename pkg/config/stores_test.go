package config

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/fleetyard/eldcore/pkg/idempotency"
)

func TestCreateIdempotencyStore_Memory(t *testing.T) {
	st, err := CreateIdempotencyStore(IdempotencyConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("CreateIdempotencyStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	// The memory store is usable immediately
	ctx := t.Context()
	if _, err := st.SetInFlight(ctx, "acct:key"); err != nil {
		t.Fatalf("SetInFlight failed: %v", err)
	}
	state, err := st.Check(ctx, "acct:key")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if state.Status != idempotency.StatusInFlight {
		t.Errorf("Expected in_flight claim, got %s", state.Status)
	}
}

func TestCreateIdempotencyStore_EmptyBackendDefaultsToMemory(t *testing.T) {
	st, err := CreateIdempotencyStore(IdempotencyConfig{})
	if err != nil {
		t.Fatalf("CreateIdempotencyStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
}

func TestCreateIdempotencyStore_Badger(t *testing.T) {
	st, err := CreateIdempotencyStore(IdempotencyConfig{
		Backend:      "badger",
		Path:         t.TempDir(),
		CompletedTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("CreateIdempotencyStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := t.Context()
	if err := st.SetCompleted(ctx, "acct:key", 201, []byte(`{"success":true}`)); err != nil {
		t.Fatalf("SetCompleted failed: %v", err)
	}
	state, err := st.Check(ctx, "acct:key")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if state.Status != idempotency.StatusCompleted {
		t.Errorf("Expected completed record, got %s", state.Status)
	}
}

func TestCreateIdempotencyStore_BadgerRequiresPath(t *testing.T) {
	_, err := CreateIdempotencyStore(IdempotencyConfig{Backend: "badger"})
	if err == nil {
		t.Fatal("Expected error for badger backend without path")
	}
}

func TestCreateIdempotencyStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	st, err := CreateIdempotencyStore(IdempotencyConfig{
		Backend: "redis",
		Redis:   RedisConfig{Addr: mr.Addr()},
	})
	if err != nil {
		t.Fatalf("CreateIdempotencyStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := t.Context()
	if _, err := st.SetInFlight(ctx, "acct:key"); err != nil {
		t.Fatalf("SetInFlight failed: %v", err)
	}
	state, err := st.Check(ctx, "acct:key")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if state.Status != idempotency.StatusInFlight {
		t.Errorf("Expected in_flight claim, got %s", state.Status)
	}
}

func TestCreateIdempotencyStore_RedisFailsOpen(t *testing.T) {
	// Nothing is listening on this address; the fail-open wrapper must
	// degrade to "no record" instead of surfacing the outage.
	st, err := CreateIdempotencyStore(IdempotencyConfig{
		Backend: "redis",
		Redis:   RedisConfig{Addr: "127.0.0.1:1"},
	})
	if err != nil {
		t.Fatalf("CreateIdempotencyStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	state, err := st.Check(t.Context(), "acct:key")
	if err != nil {
		t.Fatalf("Expected fail-open Check, got error: %v", err)
	}
	if state.Status != idempotency.StatusAbsent {
		t.Errorf("Expected absent record from degraded store, got %s", state.Status)
	}
}

func TestCreateIdempotencyStore_UnknownBackend(t *testing.T) {
	_, err := CreateIdempotencyStore(IdempotencyConfig{Backend: "memcached"})
	if err == nil {
		t.Fatal("Expected error for unknown backend")
	}
}
