//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetyard/eldcore/pkg/eld"
)

func seedUnidentifiedRecord(t *testing.T, store *Store, deviceID string, startedAt time.Time) *eld.UnidentifiedDrivingRecord {
	t.Helper()
	rec := &eld.UnidentifiedDrivingRecord{
		VehicleID: "vehicle-1",
		DeviceID:  deviceID,
		CarrierID: "carrier-1",
		StartedAt: startedAt,
		EventID:   "event-" + deviceID,
	}
	if err := store.CreateUnidentifiedRecord(context.Background(), rec); err != nil {
		t.Fatalf("failed to create unidentified record: %v", err)
	}
	return rec
}

func TestUnidentifiedDrivingReview(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()
	started := time.Date(2026, 2, 15, 3, 12, 0, 0, time.UTC)

	rec := seedUnidentifiedRecord(t, store, "device-1", started)

	t.Run("created pending and open", func(t *testing.T) {
		got, err := store.GetUnidentifiedRecord(ctx, rec.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Status != eld.UnidentifiedPending {
			t.Errorf("expected pending, got %s", got.Status)
		}
		if got.EndedAt != nil {
			t.Errorf("expected open span, got ended at %v", got.EndedAt)
		}
	})

	t.Run("open span is findable by device", func(t *testing.T) {
		open, err := store.FindOpenUnidentifiedByDevice(ctx, "device-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if open == nil || open.ID != rec.ID {
			t.Fatalf("expected open record %s, got %+v", rec.ID, open)
		}

		none, err := store.FindOpenUnidentifiedByDevice(ctx, "device-9")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if none != nil {
			t.Errorf("expected no open record for unknown device, got %+v", none)
		}
	})

	t.Run("closing stamps end and mileage", func(t *testing.T) {
		ended := started.Add(42 * time.Minute)
		if err := store.CloseUnidentifiedRecord(ctx, rec.ID, ended, 31); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := store.GetUnidentifiedRecord(ctx, rec.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.EndedAt == nil || !got.EndedAt.Equal(ended) {
			t.Errorf("end not stamped: %v", got.EndedAt)
		}
		if got.AccumulatedMiles != 31 {
			t.Errorf("expected 31 miles, got %d", got.AccumulatedMiles)
		}

		// Closing again is a no-op, not an error.
		if err := store.CloseUnidentifiedRecord(ctx, rec.ID, ended.Add(time.Hour), 99); err != nil {
			t.Fatalf("second close errored: %v", err)
		}
		again, _ := store.GetUnidentifiedRecord(ctx, rec.ID)
		if again.AccumulatedMiles != 31 {
			t.Errorf("second close overwrote mileage: %d", again.AccumulatedMiles)
		}
	})

	t.Run("claim assigns the driver", func(t *testing.T) {
		eventID := "claimed-event-1"
		err := store.ClaimUnidentifiedRecord(ctx, rec.ID, "driver-1", &eventID, "confirmed by dispatch")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := store.GetUnidentifiedRecord(ctx, rec.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Status != eld.UnidentifiedClaimed {
			t.Errorf("expected claimed, got %s", got.Status)
		}
		if got.ClaimedByDriverID == nil || *got.ClaimedByDriverID != "driver-1" {
			t.Errorf("claimed driver not recorded: %v", got.ClaimedByDriverID)
		}
	})

	t.Run("second reviewer loses the race", func(t *testing.T) {
		err := store.ClaimUnidentifiedRecord(ctx, rec.ID, "driver-2", nil, "")
		if !errors.Is(err, eld.ErrUnidentifiedNotPending) {
			t.Errorf("expected ErrUnidentifiedNotPending, got %v", err)
		}
		err = store.RejectUnidentifiedRecord(ctx, rec.ID, "")
		if !errors.Is(err, eld.ErrUnidentifiedNotPending) {
			t.Errorf("expected ErrUnidentifiedNotPending, got %v", err)
		}
	})

	t.Run("rejection needs a pending record", func(t *testing.T) {
		other := seedUnidentifiedRecord(t, store, "device-2", started)
		if err := store.RejectUnidentifiedRecord(ctx, other.ID, "yard move by mechanic"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, _ := store.GetUnidentifiedRecord(ctx, other.ID)
		if got.Status != eld.UnidentifiedRejected {
			t.Errorf("expected rejected, got %s", got.Status)
		}
		if got.ReviewNotes != "yard move by mechanic" {
			t.Errorf("notes not recorded: %q", got.ReviewNotes)
		}
	})

	t.Run("listing filters by status", func(t *testing.T) {
		all, err := store.ListUnidentifiedRecords(ctx, "carrier-1", UnidentifiedFilter{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("expected 2 records, got %d", len(all))
		}

		claimed, err := store.ListUnidentifiedRecords(ctx, "carrier-1", UnidentifiedFilter{Status: eld.UnidentifiedClaimed})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(claimed) != 1 {
			t.Errorf("expected 1 claimed record, got %d", len(claimed))
		}
	})

	t.Run("missing record maps to sentinel", func(t *testing.T) {
		if _, err := store.GetUnidentifiedRecord(ctx, "missing"); !errors.Is(err, eld.ErrUnidentifiedNotFound) {
			t.Errorf("expected ErrUnidentifiedNotFound, got %v", err)
		}
		if err := store.ClaimUnidentifiedRecord(ctx, "missing", "driver-1", nil, ""); !errors.Is(err, eld.ErrUnidentifiedNotFound) {
			t.Errorf("expected ErrUnidentifiedNotFound, got %v", err)
		}
	})
}
