// Package storetest provides a conformance test suite for idempotency
// store implementations.
//
// All backends (memory, badger, redis) should pass these tests. The suite
// verifies the absent → in_flight → completed lifecycle, claim atomicity
// under concurrency, and key isolation, catching regressions when backend
// code changes.
//
// Usage:
//
//	func TestConformance(t *testing.T) {
//	    storetest.RunConformanceSuite(t, func(t *testing.T) idempotency.Store {
//	        return idempotency.NewMemoryStore(idempotency.Options{})
//	    })
//	}
//
// The factory receives *testing.T so it can use t.TempDir() for stores
// that need filesystem paths and t.Cleanup() for teardown.
package storetest

import (
	"bytes"
	"sync"
	"testing"

	"github.com/fleetyard/eldcore/pkg/idempotency"
)

// StoreFactory creates a fresh Store instance for each test.
type StoreFactory func(t *testing.T) idempotency.Store

// RunConformanceSuite runs the full conformance suite against the provided
// store factory. Each subtest gets a fresh store to ensure isolation.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	t.Run("CheckUnknownKey", func(t *testing.T) {
		store := factory(t)
		state, err := store.Check(t.Context(), "u1:k1")
		if err != nil {
			t.Fatalf("Check() failed: %v", err)
		}
		if state.Status != idempotency.StatusAbsent {
			t.Errorf("status = %s, want %s", state.Status, idempotency.StatusAbsent)
		}
		if state.Record != nil {
			t.Errorf("absent state carries a record: %+v", state.Record)
		}
	})

	t.Run("ClaimTransitionsToInFlight", func(t *testing.T) {
		store := factory(t)
		ctx := t.Context()

		prior, err := store.SetInFlight(ctx, "u1:k1")
		if err != nil {
			t.Fatalf("SetInFlight() failed: %v", err)
		}
		if prior.Status != idempotency.StatusAbsent {
			t.Fatalf("prior status = %s, want %s", prior.Status, idempotency.StatusAbsent)
		}

		state, err := store.Check(ctx, "u1:k1")
		if err != nil {
			t.Fatalf("Check() failed: %v", err)
		}
		if state.Status != idempotency.StatusInFlight {
			t.Errorf("status = %s, want %s", state.Status, idempotency.StatusInFlight)
		}
	})

	t.Run("SecondClaimConflicts", func(t *testing.T) {
		store := factory(t)
		ctx := t.Context()

		if _, err := store.SetInFlight(ctx, "u1:k1"); err != nil {
			t.Fatalf("SetInFlight() failed: %v", err)
		}
		prior, err := store.SetInFlight(ctx, "u1:k1")
		if err != nil {
			t.Fatalf("SetInFlight() failed: %v", err)
		}
		if prior.Status != idempotency.StatusInFlight {
			t.Errorf("prior status = %s, want %s", prior.Status, idempotency.StatusInFlight)
		}
	})

	t.Run("CompleteCachesResponse", func(t *testing.T) {
		store := factory(t)
		ctx := t.Context()
		body := []byte(`{"success":true,"data":{"id":"e-1"}}`)

		if _, err := store.SetInFlight(ctx, "u1:k1"); err != nil {
			t.Fatalf("SetInFlight() failed: %v", err)
		}
		if err := store.SetCompleted(ctx, "u1:k1", 201, body); err != nil {
			t.Fatalf("SetCompleted() failed: %v", err)
		}

		state, err := store.Check(ctx, "u1:k1")
		if err != nil {
			t.Fatalf("Check() failed: %v", err)
		}
		if state.Status != idempotency.StatusCompleted {
			t.Fatalf("status = %s, want %s", state.Status, idempotency.StatusCompleted)
		}
		if state.Record == nil {
			t.Fatal("completed state carries no record")
		}
		if state.Record.StatusCode != 201 {
			t.Errorf("status code = %d, want 201", state.Record.StatusCode)
		}
		if !bytes.Equal(state.Record.Body, body) {
			t.Errorf("body = %q, want %q", state.Record.Body, body)
		}
		if state.Record.CreatedAt.IsZero() {
			t.Error("record has no creation time")
		}
	})

	t.Run("ClaimAfterCompletionReturnsCache", func(t *testing.T) {
		store := factory(t)
		ctx := t.Context()
		body := []byte(`{"success":true}`)

		if _, err := store.SetInFlight(ctx, "u1:k1"); err != nil {
			t.Fatalf("SetInFlight() failed: %v", err)
		}
		if err := store.SetCompleted(ctx, "u1:k1", 201, body); err != nil {
			t.Fatalf("SetCompleted() failed: %v", err)
		}

		prior, err := store.SetInFlight(ctx, "u1:k1")
		if err != nil {
			t.Fatalf("SetInFlight() failed: %v", err)
		}
		if prior.Status != idempotency.StatusCompleted {
			t.Fatalf("prior status = %s, want %s", prior.Status, idempotency.StatusCompleted)
		}
		if prior.Record == nil || !bytes.Equal(prior.Record.Body, body) {
			t.Errorf("cached record = %+v, want body %q", prior.Record, body)
		}
	})

	t.Run("ClearReopensKey", func(t *testing.T) {
		store := factory(t)
		ctx := t.Context()

		if _, err := store.SetInFlight(ctx, "u1:k1"); err != nil {
			t.Fatalf("SetInFlight() failed: %v", err)
		}
		if err := store.Clear(ctx, "u1:k1"); err != nil {
			t.Fatalf("Clear() failed: %v", err)
		}

		prior, err := store.SetInFlight(ctx, "u1:k1")
		if err != nil {
			t.Fatalf("SetInFlight() failed: %v", err)
		}
		if prior.Status != idempotency.StatusAbsent {
			t.Errorf("prior status after clear = %s, want %s", prior.Status, idempotency.StatusAbsent)
		}
	})

	t.Run("ClearUnknownKeyIsNoop", func(t *testing.T) {
		store := factory(t)
		if err := store.Clear(t.Context(), "u1:never-seen"); err != nil {
			t.Errorf("Clear() on unknown key failed: %v", err)
		}
	})

	t.Run("KeysAreIsolated", func(t *testing.T) {
		store := factory(t)
		ctx := t.Context()

		if _, err := store.SetInFlight(ctx, idempotency.Key("u1", "k")); err != nil {
			t.Fatalf("SetInFlight() failed: %v", err)
		}

		// Same client key under another account must not collide.
		prior, err := store.SetInFlight(ctx, idempotency.Key("u2", "k"))
		if err != nil {
			t.Fatalf("SetInFlight() failed: %v", err)
		}
		if prior.Status != idempotency.StatusAbsent {
			t.Errorf("cross-account claim saw %s, want %s", prior.Status, idempotency.StatusAbsent)
		}
	})

	t.Run("ConcurrentClaimsAdmitOne", func(t *testing.T) {
		store := factory(t)
		ctx := t.Context()

		const claimants = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		acquired := 0

		for range claimants {
			wg.Add(1)
			go func() {
				defer wg.Done()
				prior, err := store.SetInFlight(ctx, "u1:contested")
				if err != nil {
					t.Errorf("SetInFlight() failed: %v", err)
					return
				}
				if prior.Status == idempotency.StatusAbsent {
					mu.Lock()
					acquired++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if acquired != 1 {
			t.Errorf("%d claimants acquired the key, want exactly 1", acquired)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		store := factory(t)
		if err := store.Ping(t.Context()); err != nil {
			t.Errorf("Ping() failed: %v", err)
		}
	})
}
