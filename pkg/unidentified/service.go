// Package unidentified implements the carrier review workflow over
// driving time recorded while no driver was logged in. Records are
// created by the ingestion pipeline; this service drives the
// pending → claimed|rejected lifecycle and re-emits claimed time as a
// proper driver event.
package unidentified

import (
	"context"
	"time"

	"github.com/fleetyard/eldcore/internal/logger"
	"github.com/fleetyard/eldcore/internal/telemetry"
	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/fleetyard/eldcore/pkg/ingest"
	"github.com/fleetyard/eldcore/pkg/store"
)

// Submitter runs a claim's re-emitted event through the full ingestion
// pipeline, so the attributed copy is validated, sequenced, and chained
// like any other event.
type Submitter interface {
	Submit(ctx context.Context, input *eld.EventInput, actor ingest.Actor) (*ingest.Result, error)
}

// RecordStore is the persistence surface the review workflow needs.
type RecordStore interface {
	GetUnidentifiedRecord(ctx context.Context, id string) (*eld.UnidentifiedDrivingRecord, error)
	ListUnidentifiedRecords(ctx context.Context, carrierID string, f store.UnidentifiedFilter) ([]*eld.UnidentifiedDrivingRecord, error)
	ClaimUnidentifiedRecord(ctx context.Context, id, driverID string, claimedEventID *string, notes string) error
	RejectUnidentifiedRecord(ctx context.Context, id, notes string) error
	FindEventByID(ctx context.Context, id string) (*eld.Event, error)
}

var (
	_ RecordStore = (*store.Store)(nil)
	_ Submitter   = (*ingest.Pipeline)(nil)
)

// Review is a queue entry with its compliance aging computed against
// the 8-day window at read time.
type Review struct {
	*eld.UnidentifiedDrivingRecord
	ComplianceViolation bool `json:"compliance_violation"`
}

// ClaimResult reports a successful claim: the updated record plus the
// event committed under the claiming driver.
type ClaimResult struct {
	Record *eld.UnidentifiedDrivingRecord `json:"record"`
	Event  *ingest.Result                 `json:"event"`
}

// Service owns the review queue operations. All operations are scoped
// to a carrier: a record belonging to another carrier is reported as
// not found rather than forbidden.
type Service struct {
	store    RecordStore
	pipeline Submitter
	now      func() time.Time
}

// New builds the review service over a record store and the ingestion
// pipeline.
func New(st RecordStore, pipeline Submitter) *Service {
	return &Service{store: st, pipeline: pipeline, now: time.Now}
}

// List pages a carrier's review queue, stamping each entry's
// compliance aging.
func (s *Service) List(ctx context.Context, carrierID string, f store.UnidentifiedFilter) ([]*Review, error) {
	if f.Status != "" && !f.Status.IsValid() {
		return nil, eld.NewError(eld.CodeValidation, "unknown unidentified status %q", f.Status)
	}

	recs, err := s.store.ListUnidentifiedRecords(ctx, carrierID, f)
	if err != nil {
		return nil, eld.WrapError(eld.CodeInternal, err, "failed to list unidentified driving records")
	}

	now := s.now().UTC()
	reviews := make([]*Review, 0, len(recs))
	for _, rec := range recs {
		reviews = append(reviews, &Review{
			UnidentifiedDrivingRecord: rec,
			ComplianceViolation:       rec.ComplianceViolation(now),
		})
	}
	return reviews, nil
}

// Get returns one carrier-owned record with its aging computed.
func (s *Service) Get(ctx context.Context, carrierID, id string) (*Review, error) {
	rec, err := s.scoped(ctx, carrierID, id)
	if err != nil {
		return nil, err
	}
	return &Review{
		UnidentifiedDrivingRecord: rec,
		ComplianceViolation:       rec.ComplianceViolation(s.now().UTC()),
	}, nil
}

// Claim assigns pending unidentified time to a driver. The opening
// event is re-submitted through the pipeline as a carrier edit under
// the driver, so the attributed copy lands in the driver's log period
// with a fresh sequence ID and chain position; the record then moves to
// claimed with a link to that event.
func (s *Service) Claim(ctx context.Context, id, driverID, notes string, actor ingest.Actor) (*ClaimResult, error) {
	if driverID == "" {
		return nil, eld.NewError(eld.CodeValidation, "driver_id is required to claim unidentified time")
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanClaim)
	defer span.End()
	span.SetAttributes(telemetry.DriverID(driverID), telemetry.CarrierID(actor.CarrierID))
	ctx = telemetry.InjectTraceContext(ctx)

	rec, err := s.scoped(ctx, actor.CarrierID, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != eld.UnidentifiedPending {
		return nil, eld.WrapError(eld.CodeValidation, eld.ErrUnidentifiedNotPending,
			"record %s is already %s", rec.ID, rec.Status)
	}

	opening, err := s.store.FindEventByID(ctx, rec.EventID)
	if err != nil {
		return nil, eld.WrapError(eld.CodeInternal, err, "failed to load the record's opening event")
	}

	input := attributedInput(opening, driverID)
	res, err := s.pipeline.Submit(ctx, input, actor)
	if err != nil {
		return nil, err
	}

	if err := s.store.ClaimUnidentifiedRecord(ctx, rec.ID, driverID, &res.EventID, notes); err != nil {
		// The attributed event is durable either way; a lost CAS means
		// another reviewer resolved the record while the pipeline ran.
		logger.WarnCtx(ctx, "claim lost the record to a concurrent review",
			"record_id", rec.ID,
			"event_id", res.EventID,
			"error", err,
		)
		return nil, err
	}

	logger.InfoCtx(ctx, "unidentified driving claimed",
		"record_id", rec.ID,
		"driver_id", driverID,
		"event_id", res.EventID,
	)

	claimed, err := s.store.GetUnidentifiedRecord(ctx, rec.ID)
	if err != nil {
		return nil, eld.WrapError(eld.CodeInternal, err, "failed to reload claimed record")
	}
	return &ClaimResult{Record: claimed, Event: res}, nil
}

// Reject marks pending unidentified time as reviewed and not
// attributable to any driver. Notes are required: an auditor reading
// the record later needs the reviewer's reasoning.
func (s *Service) Reject(ctx context.Context, carrierID, id, notes string) (*eld.UnidentifiedDrivingRecord, error) {
	if notes == "" {
		return nil, eld.NewError(eld.CodeValidation, "review notes are required to reject unidentified time")
	}

	rec, err := s.scoped(ctx, carrierID, id)
	if err != nil {
		return nil, err
	}

	if err := s.store.RejectUnidentifiedRecord(ctx, rec.ID, notes); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "unidentified driving rejected", "record_id", rec.ID)

	rejected, err := s.store.GetUnidentifiedRecord(ctx, rec.ID)
	if err != nil {
		return nil, eld.WrapError(eld.CodeInternal, err, "failed to reload rejected record")
	}
	return rejected, nil
}

// scoped loads a record and hides it from other carriers.
func (s *Service) scoped(ctx context.Context, carrierID, id string) (*eld.UnidentifiedDrivingRecord, error) {
	rec, err := s.store.GetUnidentifiedRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.CarrierID != carrierID {
		return nil, eld.ErrUnidentifiedNotFound
	}
	return rec, nil
}

// attributedInput copies the opening event's payload under the claiming
// driver. The copy goes in as a carrier edit: the original unidentified
// record stays untouched in its chain, and the attributed version is
// flagged for the driver to confirm on next sync.
func attributedInput(opening *eld.Event, driverID string) *eld.EventInput {
	return &eld.EventInput{
		EventType:               opening.EventType,
		EventCode:               opening.EventCode,
		EventTimestamp:          opening.EventTimestamp,
		DriverID:                driverID,
		VehicleID:               opening.VehicleID,
		DeviceID:                opening.DeviceID,
		RecordOrigin:            eld.OriginCarrierEdit,
		AccumulatedMiles:        opening.AccumulatedMiles,
		ElapsedEngineHours:      opening.ElapsedEngineHours,
		Latitude:                opening.Latitude,
		Longitude:               opening.Longitude,
		LocationDescription:     opening.LocationDescription,
		MalfunctionIndicator:    opening.MalfunctionIndicator,
		DataDiagnosticIndicator: opening.DataDiagnosticIndicator,
	}
}
