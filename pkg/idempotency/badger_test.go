package idempotency_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/fleetyard/eldcore/pkg/idempotency"
)

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idempotency.db")
	ctx := t.Context()
	body := []byte(`{"success":true,"data":{"id":"e-1"}}`)

	store, err := idempotency.NewBadgerStore(dbPath, idempotency.Options{})
	if err != nil {
		t.Fatalf("NewBadgerStore() failed: %v", err)
	}
	if _, err := store.SetInFlight(ctx, "u1:k1"); err != nil {
		t.Fatalf("SetInFlight() failed: %v", err)
	}
	if err := store.SetCompleted(ctx, "u1:k1", 201, body); err != nil {
		t.Fatalf("SetCompleted() failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// A restart must not forget cached responses inside their TTL.
	reopened, err := idempotency.NewBadgerStore(dbPath, idempotency.Options{})
	if err != nil {
		t.Fatalf("NewBadgerStore() reopen failed: %v", err)
	}
	t.Cleanup(func() {
		_ = reopened.Close()
	})

	state, err := reopened.Check(ctx, "u1:k1")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if state.Status != idempotency.StatusCompleted {
		t.Fatalf("status after reopen = %s, want %s", state.Status, idempotency.StatusCompleted)
	}
	if !bytes.Equal(state.Record.Body, body) {
		t.Errorf("body after reopen = %q, want %q", state.Record.Body, body)
	}
}

func TestBadgerStorePingAfterClose(t *testing.T) {
	store, err := idempotency.NewBadgerStore("", idempotency.Options{})
	if err != nil {
		t.Fatalf("NewBadgerStore() failed: %v", err)
	}
	if err := store.Ping(t.Context()); err != nil {
		t.Fatalf("Ping() on open store failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := store.Ping(t.Context()); err == nil {
		t.Error("Ping() on closed store succeeded")
	}
}
