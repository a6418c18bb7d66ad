// Package sequence allocates the monotonic event sequence IDs that order
// every record within a (device, log date) scope.
//
// The counter state is persisted per scope and guarded by an optimistic
// compare-and-set: the in-process scope lock serializes allocations inside
// one server, the versioned save serializes them across servers. Proposed
// IDs from offline devices are accepted as long as they move the counter
// forward; skipped IDs are tolerated and surfaced as gap warnings rather
// than rejected, because FMCSA devices legitimately skip IDs across
// reboots and clock corrections.
package sequence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetyard/eldcore/internal/logger"
	"github.com/fleetyard/eldcore/pkg/eld"
)

// ReservationTTL is how long a pre-drawn block stays consumable.
const ReservationTTL = 24 * time.Hour

// casRetryLimit bounds reload-and-retry cycles when a save loses the
// cross-process compare-and-set race.
const casRetryLimit = 5

// StateStore persists per-scope counter state. Implemented by the event
// store; the allocator only needs these two calls.
type StateStore interface {
	// LoadState returns the counter row for the scope, or a fresh zero
	// state when the scope has never allocated.
	LoadState(ctx context.Context, scope eld.Scope) (*eld.SequenceIDState, error)

	// SaveState persists the state guarded by its version: the write
	// applies only when the stored row still carries state.Version, and
	// increments it. Returns eld.ErrStaleSequenceState on a lost race.
	SaveState(ctx context.Context, state *eld.SequenceIDState) error
}

// Issue decides the next sequence ID against the loaded state and mutates
// the state in place: counter advance, reservation consumption, and
// expired-block pruning. The caller persists the mutated state — typically
// in the same transaction that inserts the event, so the compare-and-set
// and the insert commit or fail together.
//
// With a proposed ID (offline-origin events) the ID must exceed the
// counter; skips of more than one produce a GAP_DETECTED warning, skips
// past LargeGapThreshold escalate to LARGE_GAP. Without one, the next ID
// comes from the device's active reservation block when it has one, else
// from the counter.
func Issue(state *eld.SequenceIDState, proposedID *int, now time.Time) (int, *eld.Warning, error) {
	state.PruneReservations(now)

	if proposedID != nil {
		p := *proposedID
		if p < eld.MinSequenceID || p > eld.MaxSequenceID {
			return 0, nil, eld.NewError(eld.CodeValidation,
				"sequence id %d outside domain [%d, %d]", p, eld.MinSequenceID, eld.MaxSequenceID)
		}
		if p <= state.LastIssuedID {
			return 0, nil, eld.NewError(eld.CodeNonMonotonic,
				"proposed sequence id %d is not greater than last issued id %d", p, state.LastIssuedID).
				WithMeta("proposed_id", p).
				WithMeta("last_issued_id", state.LastIssuedID)
		}

		warning := eld.GapWarning(p, state.LastIssuedID)
		if warning != nil {
			logger.Warn("sequence gap tolerated",
				logger.DeviceID(state.DeviceID),
				logger.LogDate(state.LogDate),
				logger.ProposedID(p),
				logger.LastIssuedID(state.LastIssuedID),
				logger.ErrorCode(string(warning.Code)),
				logger.KeyGapFrom, warning.Missing[0],
				logger.KeyGapTo, warning.Missing[len(warning.Missing)-1],
			)
		}
		state.LastIssuedID = p
		return p, warning, nil
	}

	if r := state.ActiveReservation(now); r != nil {
		id := r.NextID
		r.NextID++
		return id, nil, nil
	}

	if state.Exhausted() {
		return 0, nil, exhaustedError(state)
	}
	state.LastIssuedID++
	return state.LastIssuedID, nil, nil
}

func exhaustedError(state *eld.SequenceIDState) *eld.Error {
	return eld.NewError(eld.CodeSequenceExhausted,
		"sequence domain exhausted for device %s on %s", state.DeviceID, state.LogDate).
		WithMeta("last_issued_id", state.LastIssuedID)
}

// Allocator serves the standalone allocation surfaces: block reservation
// for offline devices and state reads for client recovery. It also owns
// the per-scope locks the ingestion pipeline holds across its
// read-prior, hash, insert sequence.
type Allocator struct {
	store StateStore
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds an allocator over the given state store.
func New(store StateStore) *Allocator {
	return &Allocator{
		store: store,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// LockScope serializes callers for one (device, log date) scope and
// returns the unlock. Hash-chain correctness requires exactly one event
// linking and committing per scope at any instant, so the ingestion
// pipeline holds this from the prior-event read through the insert.
func (a *Allocator) LockScope(scope eld.Scope) (unlock func()) {
	a.mu.Lock()
	key := scope.Key()
	l, ok := a.locks[key]
	if !ok {
		l = &sync.Mutex{}
		a.locks[key] = l
	}
	a.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Reserve pre-draws a block of count IDs for an offline device. The block
// spans [lastIssued+1, lastIssued+count] and the counter jumps past it, so
// online allocation continues beyond the block while the device consumes
// from inside it. Blocks expire after ReservationTTL; expired IDs are
// never reclaimed.
func (a *Allocator) Reserve(ctx context.Context, scope eld.Scope, count int) (*eld.Reservation, error) {
	if count < 1 {
		return nil, eld.NewError(eld.CodeValidation, "reservation count must be at least 1")
	}

	unlock := a.LockScope(scope)
	defer unlock()

	for attempt := 0; attempt < casRetryLimit; attempt++ {
		state, err := a.store.LoadState(ctx, scope)
		if err != nil {
			return nil, err
		}

		now := a.now()
		state.PruneReservations(now)

		if state.LastIssuedID+count > eld.MaxSequenceID {
			return nil, exhaustedError(state).
				WithMeta("requested_count", count)
		}

		reservation := eld.Reservation{
			ID:        uuid.New().String(),
			StartID:   state.LastIssuedID + 1,
			EndID:     state.LastIssuedID + count,
			NextID:    state.LastIssuedID + 1,
			ExpiresAt: now.Add(ReservationTTL),
		}
		state.Reservations = append(state.Reservations, reservation)
		state.LastIssuedID = reservation.EndID

		if err := a.store.SaveState(ctx, state); err != nil {
			if errors.Is(err, eld.ErrStaleSequenceState) {
				logger.Debug("sequence state raced during reserve, reloading",
					logger.DeviceID(scope.DeviceID),
					logger.LogDate(scope.LogDate),
					logger.Attempt(attempt+1),
				)
				continue
			}
			return nil, err
		}

		logger.Info("sequence block reserved",
			logger.DeviceID(scope.DeviceID),
			logger.LogDate(scope.LogDate),
			"reservation_id", reservation.ID,
			"start_id", reservation.StartID,
			"end_id", reservation.EndID,
		)
		return &reservation, nil
	}

	return nil, eld.WrapError(eld.CodeInternal, eld.ErrStaleSequenceState,
		"reservation for device %s on %s lost %d consecutive races", scope.DeviceID, scope.LogDate, casRetryLimit)
}

// State returns the current counter state for a scope. Clients call this
// through the sync status endpoint to resynchronize after a NON_MONOTONIC
// rejection.
func (a *Allocator) State(ctx context.Context, scope eld.Scope) (*eld.SequenceIDState, error) {
	return a.store.LoadState(ctx, scope)
}
