package idempotency

import (
	"testing"
	"time"
)

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(Options{InFlightTTL: time.Minute, CompletedTTL: time.Hour})
	current := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }
	ctx := t.Context()

	prior, err := store.SetInFlight(ctx, "u1:k1")
	if err != nil {
		t.Fatalf("SetInFlight() failed: %v", err)
	}
	if prior.Status != StatusAbsent {
		t.Fatalf("prior status = %s, want %s", prior.Status, StatusAbsent)
	}

	// An abandoned claim stops blocking retries once its TTL passes.
	current = current.Add(2 * time.Minute)
	prior, err = store.SetInFlight(ctx, "u1:k1")
	if err != nil {
		t.Fatalf("SetInFlight() failed: %v", err)
	}
	if prior.Status != StatusAbsent {
		t.Errorf("expired claim still held: %s", prior.Status)
	}

	if err := store.SetCompleted(ctx, "u1:k1", 201, []byte(`{}`)); err != nil {
		t.Fatalf("SetCompleted() failed: %v", err)
	}
	current = current.Add(2 * time.Hour)
	state, err := store.Check(ctx, "u1:k1")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if state.Status != StatusAbsent {
		t.Errorf("cached response outlived its TTL: %s", state.Status)
	}
}

func TestKeyScoping(t *testing.T) {
	if Key("u1", "abc") == Key("u2", "abc") {
		t.Error("same client key under different accounts must not collide")
	}
	if got, want := Key("u1", "abc"), "u1:abc"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusAbsent, "absent"},
		{StatusInFlight, "in_flight"},
		{StatusCompleted, "completed"},
		{Status(9), "unknown(9)"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", int(tt.status), got, tt.want)
		}
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	if opts.InFlightTTL != DefaultInFlightTTL {
		t.Errorf("InFlightTTL = %v, want %v", opts.InFlightTTL, DefaultInFlightTTL)
	}
	if opts.CompletedTTL != DefaultCompletedTTL {
		t.Errorf("CompletedTTL = %v, want %v", opts.CompletedTTL, DefaultCompletedTTL)
	}

	opts = Options{InFlightTTL: time.Second, CompletedTTL: time.Minute}.withDefaults()
	if opts.InFlightTTL != time.Second || opts.CompletedTTL != time.Minute {
		t.Errorf("explicit TTLs overridden: %+v", opts)
	}
}

func TestDecodeStateRejectsGarbage(t *testing.T) {
	if _, err := decodeState([]byte("not json")); err == nil {
		t.Error("garbage payload decoded")
	}
	if _, err := decodeState([]byte(`{"status":"nonsense"}`)); err == nil {
		t.Error("unknown status decoded")
	}
}
