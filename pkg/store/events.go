package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/fleetyard/eldcore/pkg/sequence"
)

const (
	defaultListLimit = 500
	maxListLimit     = 5000
)

// scopeTimeBounds derives the timestamp window for a (device, log date)
// scope query. Events for a log date carry timestamps inside that
// calendar day in the driver's home-terminal zone, which can sit up to
// 14 hours either side of UTC; [day-1, day+2) in UTC covers every zone
// and keeps scope queries prunable on the partitioned events table.
func scopeTimeBounds(logDate string) (time.Time, time.Time, error) {
	day, err := eld.ParseLogDate(logDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid log date %q: %w", logDate, err)
	}
	return day.AddDate(0, 0, -1), day.AddDate(0, 0, 2), nil
}

// scopeQuery applies the scope predicate plus the partition-pruning
// timestamp window shared by every per-scope read.
func (s *Store) scopeQuery(ctx context.Context, scope eld.Scope) (*gorm.DB, error) {
	from, to, err := scopeTimeBounds(scope.LogDate)
	if err != nil {
		return nil, err
	}
	return s.db.WithContext(ctx).
		Where("device_id = ? AND log_date = ?", scope.DeviceID, scope.LogDate).
		Where("event_timestamp >= ? AND event_timestamp < ?", from, to), nil
}

// InsertEvent commits one linked event atomically with its sequence
// counter. The event row, the owning log period's event count, and the
// versioned counter update all land in a single transaction, so a
// crash can never leave an issued sequence ID without its event or an
// event without its counter advance.
//
// A unique violation on the active slot (device, log period, sequence)
// maps to eld.ErrDuplicateEvent; a lost counter race maps to
// eld.ErrStaleSequenceState. Both leave the transaction rolled back.
func (s *Store) InsertEvent(ctx context.Context, event *eld.Event, state *eld.SequenceIDState) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			if isUniqueConstraintError(err) {
				return eld.ErrDuplicateEvent
			}
			return fmt.Errorf("failed to insert event: %w", err)
		}

		if event.LogPeriodID != "" {
			if err := tx.Model(&eld.LogPeriod{}).
				Where("id = ?", event.LogPeriodID).
				UpdateColumn("event_count", gorm.Expr("event_count + 1")).Error; err != nil {
				return fmt.Errorf("failed to bump log period event count: %w", err)
			}
		}

		return saveSequenceState(tx, state)
	})
}

// FindEventByID loads a single event.
func (s *Store) FindEventByID(ctx context.Context, id string) (*eld.Event, error) {
	var event eld.Event
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		return nil, convertNotFoundError(err, eld.ErrEventNotFound)
	}
	return &event, nil
}

// FindBySlot loads the active event occupying a (scope, sequence ID)
// slot. Used to distinguish idempotent replays from true duplicates:
// the caller compares content hashes against the row found here.
func (s *Store) FindBySlot(ctx context.Context, scope eld.Scope, sequenceID int) (*eld.Event, error) {
	q, err := s.scopeQuery(ctx, scope)
	if err != nil {
		return nil, err
	}

	var event eld.Event
	err = q.Where("sequence_id = ? AND record_status = ?", sequenceID, eld.StatusActive).
		First(&event).Error
	if err != nil {
		return nil, convertNotFoundError(err, eld.ErrEventNotFound)
	}
	return &event, nil
}

// FindPriorForChain returns the chain predecessor for the next insert
// in a scope: the active event with the highest sequence ID. A nil
// event with nil error means the scope is empty and the next event is
// the genesis link.
//
// Callers must hold the scope lock from the prior read through the
// insert, otherwise two writers can link to the same predecessor.
func (s *Store) FindPriorForChain(ctx context.Context, scope eld.Scope) (*eld.Event, error) {
	q, err := s.scopeQuery(ctx, scope)
	if err != nil {
		return nil, err
	}

	var event eld.Event
	err = q.Where("record_status = ?", eld.StatusActive).
		Order("sequence_id DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ScopeOpts narrows a per-scope listing.
type ScopeOpts struct {
	// FromSequence / ToSequence bound the inclusive sequence ID range;
	// zero means unbounded on that side.
	FromSequence int
	ToSequence   int

	// IncludeInactive also returns superseded and rejected records.
	// The hash chain is defined over active records only.
	IncludeInactive bool
}

// FindByScope lists a scope's events in sequence order.
func (s *Store) FindByScope(ctx context.Context, scope eld.Scope, opts ScopeOpts) ([]*eld.Event, error) {
	q, err := s.scopeQuery(ctx, scope)
	if err != nil {
		return nil, err
	}

	if !opts.IncludeInactive {
		q = q.Where("record_status = ?", eld.StatusActive)
	}
	if opts.FromSequence > 0 {
		q = q.Where("sequence_id >= ?", opts.FromSequence)
	}
	if opts.ToSequence > 0 {
		q = q.Where("sequence_id <= ?", opts.ToSequence)
	}

	var events []*eld.Event
	if err := q.Order("sequence_id ASC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// FindByCarrierUpdatedAfter returns a carrier's server-side edits
// touched after the given instant, oldest first. This feeds sync
// delivery: anything carrier personnel changed since the device's last
// sync comes back flagged for driver review.
func (s *Store) FindByCarrierUpdatedAfter(ctx context.Context, carrierID string, after time.Time, limit int) ([]*eld.Event, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	var events []*eld.Event
	err := s.db.WithContext(ctx).
		Where("carrier_id = ? AND updated_at > ?", carrierID, after).
		Where("record_status <> ? OR record_origin = ?", eld.StatusActive, eld.OriginCarrierEdit).
		Order("updated_at ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// EventQuery selects events for the query and export surfaces. From and
// To are mandatory: the events table is partitioned by event timestamp
// and every query must carry a pruning predicate.
type EventQuery struct {
	CarrierID string
	DriverID  string
	DeviceID  string
	EventType eld.EventType // zero means all types

	From time.Time // inclusive
	To   time.Time // exclusive

	IncludeInactive bool

	Limit  int
	Offset int
}

// ListEvents runs an EventQuery, newest first. Queries without a
// timestamp range are rejected with eld.ErrMissingTimeRange rather
// than silently scanning every partition.
func (s *Store) ListEvents(ctx context.Context, q EventQuery) ([]*eld.Event, error) {
	if q.From.IsZero() || q.To.IsZero() {
		return nil, eld.ErrMissingTimeRange
	}

	limit := q.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	db := s.db.WithContext(ctx).
		Where("event_timestamp >= ? AND event_timestamp < ?", q.From, q.To)

	if q.CarrierID != "" {
		db = db.Where("carrier_id = ?", q.CarrierID)
	}
	if q.DriverID != "" {
		db = db.Where("driver_id = ?", q.DriverID)
	}
	if q.DeviceID != "" {
		db = db.Where("device_id = ?", q.DeviceID)
	}
	if q.EventType != 0 {
		db = db.Where("event_type = ?", q.EventType)
	}
	if !q.IncludeInactive {
		db = db.Where("record_status = ?", eld.StatusActive)
	}

	var events []*eld.Event
	err := db.Order("event_timestamp DESC").
		Limit(limit).
		Offset(q.Offset).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// SetEventRecordStatus transitions an event's record status, guarded by
// the expected current status so concurrent edits cannot clobber each
// other. Edit flows use this to retire the original version before
// inserting its replacement.
func (s *Store) SetEventRecordStatus(ctx context.Context, id string, from, to eld.RecordStatus) error {
	res := s.db.WithContext(ctx).Model(&eld.Event{}).
		Where("id = ? AND record_status = ?", id, from).
		Update("record_status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.FindEventByID(ctx, id); err != nil {
			return err
		}
		return eld.ErrEventStatusConflict
	}
	return nil
}

// DetectGaps compares a scope's issued counter against its committed
// sequence IDs and reports the holes. Gaps are derived, never stored:
// the counter says how many IDs went out, the rows say which came back.
func (s *Store) DetectGaps(ctx context.Context, scope eld.Scope) (sequence.GapReport, error) {
	state, err := s.LoadState(ctx, scope)
	if err != nil {
		return sequence.GapReport{}, err
	}

	q, err := s.scopeQuery(ctx, scope)
	if err != nil {
		return sequence.GapReport{}, err
	}

	var committed []int
	err = q.Model(&eld.Event{}).
		Where("record_status = ?", eld.StatusActive).
		Order("sequence_id ASC").
		Pluck("sequence_id", &committed).Error
	if err != nil {
		return sequence.GapReport{}, err
	}

	return sequence.DetectGaps(state.LastIssuedID, committed), nil
}
