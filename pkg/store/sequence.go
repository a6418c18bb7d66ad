package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fleetyard/eldcore/internal/logger"
	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/fleetyard/eldcore/pkg/sequence"
)

var _ sequence.StateStore = (*Store)(nil)

// LoadState returns a scope's sequence counter, or a fresh zero state
// when the scope has never allocated. Implements sequence.StateStore.
func (s *Store) LoadState(ctx context.Context, scope eld.Scope) (*eld.SequenceIDState, error) {
	var state eld.SequenceIDState
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND log_date = ?", scope.DeviceID, scope.LogDate).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &eld.SequenceIDState{DeviceID: scope.DeviceID, LogDate: scope.LogDate}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveState persists counter state outside an event insert, e.g. for
// block reservations. Event inserts go through InsertEvent instead,
// which saves the counter in the same transaction as the row.
func (s *Store) SaveState(ctx context.Context, state *eld.SequenceIDState) error {
	return saveSequenceState(s.db.WithContext(ctx), state)
}

// saveSequenceState writes the counter guarded by its version. Version
// zero means the scope has no row yet and the save is an insert; any
// other version is a compare-and-set update. On success the in-memory
// version advances to match the stored row. A lost race returns
// eld.ErrStaleSequenceState with the state untouched, and the caller
// reloads and retries.
func saveSequenceState(db *gorm.DB, state *eld.SequenceIDState) error {
	if state.Version == 0 {
		state.Version = 1
		if err := db.Create(state).Error; err != nil {
			state.Version = 0
			if isUniqueConstraintError(err) {
				return eld.ErrStaleSequenceState
			}
			return fmt.Errorf("failed to insert sequence state: %w", err)
		}
		return nil
	}

	res := db.Model(&eld.SequenceIDState{}).
		Where("device_id = ? AND log_date = ? AND version = ?",
			state.DeviceID, state.LogDate, state.Version).
		Select("LastIssuedID", "Reservations", "Version").
		Updates(&eld.SequenceIDState{
			LastIssuedID: state.LastIssuedID,
			Reservations: state.Reservations,
			Version:      state.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update sequence state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return eld.ErrStaleSequenceState
	}

	state.Version++
	return nil
}

// SweepExpiredReservations drops expired and exhausted reservation
// blocks across all scopes and returns how many were removed. Scopes
// that lose the version race are skipped; whoever won pruned on their
// own save, and the next sweep catches anything left.
func (s *Store) SweepExpiredReservations(ctx context.Context, now time.Time) (int, error) {
	var states []*eld.SequenceIDState
	err := s.db.WithContext(ctx).
		Where("reservations IS NOT NULL").
		Find(&states).Error
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, state := range states {
		removed := state.PruneReservations(now)
		if removed == 0 {
			continue
		}
		if err := saveSequenceState(s.db.WithContext(ctx), state); err != nil {
			if errors.Is(err, eld.ErrStaleSequenceState) {
				logger.DebugCtx(ctx, "reservation sweep lost race, skipping scope",
					logger.DeviceID(state.DeviceID),
					logger.LogDate(state.LogDate),
				)
				continue
			}
			return swept, err
		}
		swept += removed
	}

	if swept > 0 {
		logger.InfoCtx(ctx, "swept expired sequence reservations", logger.Count(swept))
	}
	return swept, nil
}
