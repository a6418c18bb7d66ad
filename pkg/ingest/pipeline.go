// Package ingest drives the event admission pipeline: validation,
// sequence allocation, hash-chain linking, log-period bookkeeping, and
// the durable commit, in that order, halting an event on its first hard
// failure.
//
// Chain correctness depends on exactly one event per (device, log date)
// scope moving through the read-link-insert window at a time. The
// pipeline holds the allocator's scope lock across that window; the
// versioned counter save catches the races an in-process lock cannot
// see, and the whole window re-runs on a lost save.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetyard/eldcore/internal/logger"
	"github.com/fleetyard/eldcore/internal/telemetry"
	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/fleetyard/eldcore/pkg/eld/hashchain"
	"github.com/fleetyard/eldcore/pkg/eld/validation"
	"github.com/fleetyard/eldcore/pkg/fleet"
	"github.com/fleetyard/eldcore/pkg/retry"
	"github.com/fleetyard/eldcore/pkg/sequence"
	"github.com/fleetyard/eldcore/pkg/store"
)

// casRetryLimit bounds reload cycles when another server instance
// advances the counter between our state read and commit.
const casRetryLimit = 5

// Duty-status code 3 marks driving time; unidentified driving review
// records open on it.
const dutyCodeDriving = 3

// EventStore is the persistence surface the pipeline drives.
// Implemented by *store.Store.
type EventStore interface {
	InsertEvent(ctx context.Context, event *eld.Event, state *eld.SequenceIDState) error
	FindEventByID(ctx context.Context, id string) (*eld.Event, error)
	FindBySlot(ctx context.Context, scope eld.Scope, sequenceID int) (*eld.Event, error)
	FindPriorForChain(ctx context.Context, scope eld.Scope) (*eld.Event, error)
	FindByScope(ctx context.Context, scope eld.Scope, opts store.ScopeOpts) ([]*eld.Event, error)

	EnsureLogPeriod(ctx context.Context, driverID, logDate, carrierID string) (*eld.LogPeriod, error)
	GetLogPeriod(ctx context.Context, driverID, logDate string) (*eld.LogPeriod, error)
	CertifyLogPeriod(ctx context.Context, id string, at time.Time) (*eld.LogPeriod, error)

	CreateDLQEntry(ctx context.Context, entry *eld.DLQEntry) error

	CreateUnidentifiedRecord(ctx context.Context, rec *eld.UnidentifiedDrivingRecord) error
	FindOpenUnidentifiedByDevice(ctx context.Context, deviceID string) (*eld.UnidentifiedDrivingRecord, error)
	CloseUnidentifiedRecord(ctx context.Context, id string, endedAt time.Time, miles int) error
}

// DriverDirectory resolves driver records for home-terminal timezone
// lookup. Satisfied by *fleet.Directory, so lookups share the registry
// circuit breaker with layer-3 validation.
type DriverDirectory interface {
	Driver(ctx context.Context, id string) (*fleet.Driver, error)
}

// Actor identifies the authenticated principal submitting events. The
// carrier scopes every cross-reference check; the device is stamped on
// events that omit their own.
type Actor struct {
	AccountID string
	CarrierID string
	DeviceID  string
}

// Result reports one committed (or replayed) event back to the client.
type Result struct {
	EventID     string `json:"event_id"`
	SequenceID  int    `json:"sequence_id"`
	ChainHash   string `json:"chain_hash"`
	LogDate     string `json:"log_date"`
	LogPeriodID string `json:"log_period_id,omitempty"`

	// Replayed marks an idempotent resubmission: the slot was already
	// occupied by a byte-identical event and its identity is returned
	// instead of a DUPLICATE rejection.
	Replayed bool `json:"replayed,omitempty"`

	// Warning carries the gap annotation when a proposed sequence ID
	// skipped ahead of the counter.
	Warning *eld.Warning `json:"warning,omitempty"`
}

// Pipeline wires the admission stages over a store, a validator, and
// the sequence allocator. Safe for concurrent use.
type Pipeline struct {
	store     EventStore
	validator *validation.Validator
	allocator *sequence.Allocator
	drivers   DriverDirectory
	policy    retry.Policy
	metrics   Metrics
	now       func() time.Time
}

// New builds a pipeline. A zero policy takes the retry package defaults
// (three attempts, one second base delay).
func New(st EventStore, validator *validation.Validator, allocator *sequence.Allocator, drivers DriverDirectory, policy retry.Policy) *Pipeline {
	return &Pipeline{
		store:     st,
		validator: validator,
		allocator: allocator,
		drivers:   drivers,
		policy:    policy,
		now:       time.Now,
	}
}

// Submit runs one event through the full pipeline and returns its
// committed identity. Rejections come back as *eld.Error with a stable
// code; infrastructure failures that survive the retry budget surface
// as the underlying *retry.Failure for the caller to map.
func (p *Pipeline) Submit(ctx context.Context, input *eld.EventInput, actor Actor) (*Result, error) {
	ctx, span := telemetry.StartSubmitSpan(ctx, input.DeviceID, int(input.EventType))
	defer span.End()
	ctx = telemetry.InjectTraceContext(ctx)

	start := p.now()
	res, err := p.submit(ctx, input, actor)

	outcome := observeOutcome(res, err)
	span.SetAttributes(telemetry.Outcome(outcome))
	if err != nil {
		telemetry.RecordError(ctx, err)
	} else {
		span.SetAttributes(
			telemetry.EventID(res.EventID),
			telemetry.SequenceID(int64(res.SequenceID)),
			telemetry.LogDate(res.LogDate),
		)
	}

	if p.metrics != nil {
		p.metrics.ObserveEvent(input.EventType, outcome)
		p.metrics.ObserveSubmitDuration(outcome, p.now().Sub(start))
	}
	return res, err
}

func (p *Pipeline) submit(ctx context.Context, input *eld.EventInput, actor Actor) (*Result, error) {
	sub, err := p.prepare(ctx, input, actor)
	if err != nil {
		return nil, err
	}

	unlock := p.allocator.LockScope(sub.scope)
	defer unlock()

	return p.commitLocked(ctx, sub)
}

// submission is a shape-checked input bound to its authoritative scope.
type submission struct {
	input *eld.EventInput
	actor Actor
	scope eld.Scope
}

// prepare runs the pre-lock stages: normalization, shape validation,
// and log-date resolution. Everything here depends only on the input
// and the driver registry, so batch processing runs it for every event
// before grouping by scope.
func (p *Pipeline) prepare(ctx context.Context, input *eld.EventInput, actor Actor) (submission, error) {
	input.Normalize()
	if input.DeviceID == "" {
		input.DeviceID = actor.DeviceID
	}

	if details := p.validator.Shape(input); len(details) > 0 {
		return submission{}, eld.NewValidationError(details...)
	}

	logDate, err := p.resolveLogDate(ctx, input)
	if err != nil {
		return submission{}, err
	}

	return submission{
		input: input,
		actor: actor,
		scope: eld.Scope{DeviceID: input.DeviceID, LogDate: logDate},
	}, nil
}

// resolveLogDate derives the event's record day from its timestamp in
// the driver's home-terminal timezone and cross-checks any day the
// client sent. Unidentified events have no driver account, so their
// record day is the UTC calendar day.
//
// A registry outage fails open, like layer 3: the client's own day is
// trusted when present, else UTC stands in.
func (p *Pipeline) resolveLogDate(ctx context.Context, input *eld.EventInput) (string, error) {
	if input.DriverID == "" || input.RecordOrigin == eld.OriginUnidentified {
		return matchProvidedLogDate(input, eld.LogDateFor(input.EventTimestamp, time.UTC))
	}

	driver, err := p.drivers.Driver(ctx, input.DriverID)
	switch {
	case err == nil:
		return matchProvidedLogDate(input, eld.LogDateFor(input.EventTimestamp, driver.Location()))
	case errors.Is(err, fleet.ErrNotFound):
		// Layer 3 rejects the unknown driver; derive in UTC so the
		// rejection still happens under a well-formed scope.
		return matchProvidedLogDate(input, eld.LogDateFor(input.EventTimestamp, time.UTC))
	default:
		if input.LogDate != "" && eld.ValidLogDate(input.LogDate) {
			logger.WarnCtx(ctx, "fleet registry unavailable, trusting client log date",
				logger.DriverID(input.DriverID),
				logger.LogDate(input.LogDate),
				logger.Err(err),
			)
			return input.LogDate, nil
		}
		logger.WarnCtx(ctx, "fleet registry unavailable, deriving log date in UTC",
			logger.DriverID(input.DriverID),
			logger.Err(err),
		)
		return eld.LogDateFor(input.EventTimestamp, time.UTC), nil
	}
}

// matchProvidedLogDate rejects a client-sent log date that disagrees
// with the server derivation. Devices compute the day locally; a
// disagreement means a stale timezone table or clock trouble, both
// worth a hard error over silent reassignment.
func matchProvidedLogDate(input *eld.EventInput, derived string) (string, error) {
	if input.LogDate != "" && input.LogDate != derived {
		return "", eld.NewValidationError(eld.FieldError{
			Field:   "log_date",
			Value:   input.LogDate,
			Message: fmt.Sprintf("does not match the event timestamp, which falls on %s in the driver's home terminal timezone", derived),
			Layer:   validation.LayerRules,
		})
	}
	return derived, nil
}

// commitLocked drives the under-lock stages, re-running the whole
// read-validate-link-insert window when the counter save loses the
// cross-instance compare-and-set.
func (p *Pipeline) commitLocked(ctx context.Context, sub submission) (*Result, error) {
	for attempt := 0; attempt < casRetryLimit; attempt++ {
		res, err := p.commit(ctx, sub)
		if err != nil && errors.Is(err, eld.ErrStaleSequenceState) {
			logger.DebugCtx(ctx, "sequence state raced during commit, reloading",
				logger.DeviceID(sub.scope.DeviceID),
				logger.LogDate(sub.scope.LogDate),
				logger.Attempt(attempt+1),
			)
			continue
		}
		return res, err
	}
	return nil, eld.WrapError(eld.CodeInternal, eld.ErrStaleSequenceState,
		"event commit for device %s on %s lost %d consecutive races",
		sub.scope.DeviceID, sub.scope.LogDate, casRetryLimit)
}

// commit is one pass through the under-lock stages: chain head read,
// layer 2 and 3 validation, sequence issue, linking, log-period
// binding, and the transactional insert.
func (p *Pipeline) commit(ctx context.Context, sub submission) (*Result, error) {
	prior, err := retry.DoValue(ctx, p.policy, "load chain head", func(ctx context.Context) (*eld.Event, error) {
		return p.store.FindPriorForChain(ctx, sub.scope)
	})
	if err != nil {
		return nil, err
	}

	if details := p.validator.Rules(sub.input, prior); len(details) > 0 {
		return nil, eld.NewValidationError(details...)
	}
	if details := p.validator.Existence(ctx, sub.input, sub.actor.CarrierID); len(details) > 0 {
		return nil, eld.NewValidationError(details...)
	}

	state, err := retry.DoValue(ctx, p.policy, "load sequence state", func(ctx context.Context) (*eld.SequenceIDState, error) {
		return p.allocator.State(ctx, sub.scope)
	})
	if err != nil {
		return nil, err
	}

	sequenceID, warning, err := sequence.Issue(state, sub.input.SequenceID, p.now())
	p.observeGap(warning)
	if err != nil {
		// A proposed ID at or behind the counter is either a replay of
		// the event already holding that slot or a true conflict.
		if de := eld.AsError(err); de.Code == eld.CodeNonMonotonic && sub.input.SequenceID != nil {
			res, collErr := p.resolveCollision(ctx, sub, *sub.input.SequenceID)
			if collErr != nil {
				return nil, collErr
			}
			if res != nil {
				return res, nil
			}
		}
		return nil, err
	}

	event := buildEvent(sub.input, sub.actor, sub.scope.LogDate, sequenceID)

	if err := hashchain.Link(event, prior); err != nil {
		return nil, eld.WrapError(eld.CodeInternal, err, "failed to link event into chain")
	}

	// Unidentified events carry no driver, so there is no driver-day
	// envelope to bind; the review record opened below tracks them.
	if event.DriverID != "" {
		period, err := retry.DoValue(ctx, p.policy, "ensure log period", func(ctx context.Context) (*eld.LogPeriod, error) {
			return p.store.EnsureLogPeriod(ctx, event.DriverID, event.LogDate, event.CarrierID)
		})
		if err != nil {
			return nil, err
		}
		event.LogPeriodID = period.ID
	}

	if err := retry.Do(ctx, p.policy, "persist event", func(ctx context.Context) error {
		return p.store.InsertEvent(ctx, event, state)
	}); err != nil {
		if errors.Is(err, eld.ErrDuplicateEvent) {
			res, collErr := p.resolveCollision(ctx, sub, sequenceID)
			if collErr != nil {
				return nil, collErr
			}
			if res != nil {
				return res, nil
			}
			return nil, eld.WrapError(eld.CodeDuplicate, err,
				"sequence id %d is contested in this scope", sequenceID)
		}
		return nil, err
	}

	logger.InfoCtx(ctx, "event ingested",
		logger.EventID(event.ID),
		logger.EventType(int(event.EventType)),
		logger.SequenceID(event.SequenceID),
		logger.DeviceID(event.DeviceID),
		logger.LogDate(event.LogDate),
	)

	p.afterCommit(ctx, event)

	return &Result{
		EventID:     event.ID,
		SequenceID:  event.SequenceID,
		ChainHash:   event.ChainHash,
		LogDate:     event.LogDate,
		LogPeriodID: event.LogPeriodID,
		Warning:     warning,
	}, nil
}

// resolveCollision inspects the active occupant of a contested slot.
// A byte-identical occupant means the client resent an event it already
// committed, so its identity comes back as an accepted replay. A
// different occupant is a DUPLICATE. No occupant returns (nil, nil) and
// the caller keeps its original error.
func (p *Pipeline) resolveCollision(ctx context.Context, sub submission, sequenceID int) (*Result, error) {
	existing, err := retry.DoValue(ctx, p.policy, "load contested slot", func(ctx context.Context) (*eld.Event, error) {
		return p.store.FindBySlot(ctx, sub.scope, sequenceID)
	})
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	candidate := buildEvent(sub.input, sub.actor, sub.scope.LogDate, sequenceID)
	candidateHash, err := hashchain.ContentHash(candidate)
	if err != nil {
		return nil, eld.WrapError(eld.CodeInternal, err, "failed to hash replay candidate")
	}

	if candidateHash == existing.ContentHash {
		logger.InfoCtx(ctx, "idempotent replay accepted",
			logger.EventID(existing.ID),
			logger.SequenceID(existing.SequenceID),
			logger.DeviceID(existing.DeviceID),
			logger.LogDate(existing.LogDate),
		)
		return &Result{
			EventID:     existing.ID,
			SequenceID:  existing.SequenceID,
			ChainHash:   existing.ChainHash,
			LogDate:     existing.LogDate,
			LogPeriodID: existing.LogPeriodID,
			Replayed:    true,
		}, nil
	}

	return nil, eld.NewError(eld.CodeDuplicate,
		"sequence id %d is already taken by a different event in this scope", sequenceID).
		WithMeta("existing_event_id", existing.ID)
}

// buildEvent maps a validated input to the persisted record shape.
func buildEvent(input *eld.EventInput, actor Actor, logDate string, sequenceID int) *eld.Event {
	return &eld.Event{
		ID:         uuid.New().String(),
		SequenceID: sequenceID,

		EventType: input.EventType,
		EventCode: input.EventCode,

		EventTimestamp: input.EventTimestamp,
		LogDate:        logDate,

		DriverID:  input.DriverID,
		VehicleID: input.VehicleID,
		DeviceID:  input.DeviceID,
		CarrierID: actor.CarrierID,

		RecordOrigin: input.RecordOrigin,
		RecordStatus: input.RecordStatus,

		AccumulatedMiles:    input.AccumulatedMiles,
		ElapsedEngineHours:  input.ElapsedEngineHours,
		Latitude:            input.Latitude,
		Longitude:           input.Longitude,
		LocationDescription: input.LocationDescription,

		MalfunctionIndicator:    input.MalfunctionIndicator,
		DataDiagnosticIndicator: input.DataDiagnosticIndicator,

		CertifiedLogDate: input.CertifiedLogDate,
	}
}

// afterCommit runs the bookkeeping a committed event triggers:
// certification retires its log period, unidentified driving opens or
// closes a review record. Failures are logged, never returned; the
// event is already durable, and re-running the bookkeeping is the
// repair path.
func (p *Pipeline) afterCommit(ctx context.Context, event *eld.Event) {
	if event.EventType == eld.EventTypeCertification {
		p.applyCertification(ctx, event)
	}
	if event.RecordOrigin == eld.OriginUnidentified {
		p.trackUnidentified(ctx, event)
	}
}

// applyCertification moves the certified day's log period to its
// certified (or recertified) status and audits the day for unpaired
// engine power events.
func (p *Pipeline) applyCertification(ctx context.Context, event *eld.Event) {
	period, err := p.store.GetLogPeriod(ctx, event.DriverID, event.CertifiedLogDate)
	if err != nil {
		logger.WarnCtx(ctx, "certification names a log period that does not exist",
			logger.DriverID(event.DriverID),
			logger.LogDate(event.CertifiedLogDate),
			logger.Err(err),
		)
		return
	}

	updated, err := p.store.CertifyLogPeriod(ctx, period.ID, event.EventTimestamp)
	if err != nil {
		logger.ErrorCtx(ctx, "failed to certify log period",
			logger.LogPeriodID(period.ID),
			logger.Err(err),
		)
		return
	}

	logger.InfoCtx(ctx, "log period certified",
		logger.LogPeriodID(updated.ID),
		logger.DriverID(event.DriverID),
		logger.LogDate(event.CertifiedLogDate),
		"status", string(updated.Status),
	)

	p.auditCertifiedDay(ctx, event)
}

// auditCertifiedDay flags engine power-ups on the certified day with no
// matching shut-down. The day is complete once certified, so a still
// unpaired power-up is a reportable compliance finding, not an event in
// transit.
func (p *Pipeline) auditCertifiedDay(ctx context.Context, event *eld.Event) {
	scope := eld.Scope{DeviceID: event.DeviceID, LogDate: event.CertifiedLogDate}
	events, err := p.store.FindByScope(ctx, scope, store.ScopeOpts{})
	if err != nil {
		logger.WarnCtx(ctx, "failed to audit certified day",
			logger.DeviceID(scope.DeviceID),
			logger.LogDate(scope.LogDate),
			logger.Err(err),
		)
		return
	}

	for _, unpaired := range validation.UnpairedPowerEvents(events, p.now()) {
		logger.WarnCtx(ctx, "certified day has an engine power-up without a shut-down",
			logger.EventID(unpaired.ID),
			logger.SequenceID(unpaired.SequenceID),
			logger.DeviceID(scope.DeviceID),
			logger.LogDate(scope.LogDate),
		)
	}
}

// trackUnidentified maintains the device's unidentified driving review
// record: a driving event opens one, any other unidentified activity
// closes the open one and credits the miles accumulated in between.
func (p *Pipeline) trackUnidentified(ctx context.Context, event *eld.Event) {
	open, err := p.store.FindOpenUnidentifiedByDevice(ctx, event.DeviceID)
	if err != nil {
		logger.ErrorCtx(ctx, "failed to look up open unidentified driving record",
			logger.DeviceID(event.DeviceID),
			logger.Err(err),
		)
		return
	}

	if isUnidentifiedDrivingStart(event) {
		if open != nil {
			return
		}
		rec := &eld.UnidentifiedDrivingRecord{
			VehicleID: event.VehicleID,
			DeviceID:  event.DeviceID,
			CarrierID: event.CarrierID,
			StartedAt: event.EventTimestamp,
			EventID:   event.ID,
		}
		if err := p.store.CreateUnidentifiedRecord(ctx, rec); err != nil {
			logger.ErrorCtx(ctx, "failed to open unidentified driving record",
				logger.DeviceID(event.DeviceID),
				logger.Err(err),
			)
			return
		}
		logger.InfoCtx(ctx, "unidentified driving record opened",
			"record_id", rec.ID,
			logger.DeviceID(event.DeviceID),
			logger.VehicleID(event.VehicleID),
		)
		return
	}

	if open == nil {
		return
	}

	miles := 0
	if opening, err := p.store.FindEventByID(ctx, open.EventID); err == nil {
		if d := event.AccumulatedMiles - opening.AccumulatedMiles; d > 0 {
			miles = d
		}
	}
	if err := p.store.CloseUnidentifiedRecord(ctx, open.ID, event.EventTimestamp, miles); err != nil {
		logger.ErrorCtx(ctx, "failed to close unidentified driving record",
			"record_id", open.ID,
			logger.Err(err),
		)
		return
	}
	logger.InfoCtx(ctx, "unidentified driving record closed",
		"record_id", open.ID,
		logger.DeviceID(event.DeviceID),
		logger.Count(miles),
	)
}

// isUnidentifiedDrivingStart reports whether the event begins a span of
// unattributed movement: a driving duty status or an intermediate log
// recorded mid-drive.
func isUnidentifiedDrivingStart(event *eld.Event) bool {
	switch event.EventType {
	case eld.EventTypeDutyStatus:
		return event.EventCode == dutyCodeDriving
	case eld.EventTypeIntermediate:
		return true
	}
	return false
}
