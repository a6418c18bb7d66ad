// Package dlq is the operator surface over parked event payloads:
// triage listings, manual retries through the full admission pipeline,
// terminal discards, and queue depth statistics.
package dlq

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/fleetyard/eldcore/internal/logger"
	"github.com/fleetyard/eldcore/internal/telemetry"
	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/fleetyard/eldcore/pkg/ingest"
	"github.com/fleetyard/eldcore/pkg/store"
)

// Submitter is the slice of the admission pipeline a retry drives.
type Submitter interface {
	Submit(ctx context.Context, input *eld.EventInput, actor ingest.Actor) (*ingest.Result, error)
}

// EntryStore is the slice of the event store the service needs.
type EntryStore interface {
	GetDLQEntry(ctx context.Context, id string) (*eld.DLQEntry, error)
	ListDLQEntries(ctx context.Context, status eld.DLQStatus, limit, offset int) ([]*eld.DLQEntry, error)
	MarkDLQRetrying(ctx context.Context, id string) error
	ResolveDLQEntry(ctx context.Context, id, resolvedBy string, eventID *string, notes string) error
	RequeueDLQEntry(ctx context.Context, id, failureReason string) error
	DiscardDLQEntry(ctx context.Context, id, resolvedBy, notes string) error
	DLQStats(ctx context.Context, alertThreshold int) (*eld.DLQStats, error)
}

var (
	_ EntryStore = (*store.Store)(nil)
	_ Submitter  = (*ingest.Pipeline)(nil)
)

// Metrics records operator drain activity and queue depth.
// A nil Metrics disables recording.
type Metrics interface {
	// ObserveRetry counts one retry outcome: resolved, failed, or
	// discarded.
	ObserveRetry(outcome string)

	// SetQueueDepth publishes current open-entry counts.
	SetQueueDepth(pending, retrying int)
}

// Retry outcomes recorded per drained entry.
const (
	RetryResolved  = "resolved"
	RetryFailed    = "failed"
	RetryDiscarded = "discarded"
)

// DefaultAlertThreshold is the pending-entry count above which stats
// report the alert flag.
const DefaultAlertThreshold = 100

// Service drains the dead letter queue under operator control.
type Service struct {
	store          EntryStore
	pipeline       Submitter
	alertThreshold int
	metrics        Metrics
}

// New builds the service. alertThreshold of zero disables depth alerts.
func New(st EntryStore, pipeline Submitter, alertThreshold int) *Service {
	return &Service{store: st, pipeline: pipeline, alertThreshold: alertThreshold}
}

// SetMetrics attaches a metrics sink. Pass nil to disable. Not safe to
// call once the service is serving.
func (s *Service) SetMetrics(m Metrics) {
	s.metrics = m
}

func (s *Service) observeRetry(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveRetry(outcome)
	}
}

// Get loads one entry including its parked payload.
func (s *Service) Get(ctx context.Context, id string) (*eld.DLQEntry, error) {
	return s.store.GetDLQEntry(ctx, id)
}

// List pages entries for triage, optionally filtered by status.
func (s *Service) List(ctx context.Context, status eld.DLQStatus, limit, offset int) ([]*eld.DLQEntry, error) {
	if status != "" && !status.IsValid() {
		return nil, eld.NewError(eld.CodeValidation, "unknown dead letter status %q", status)
	}
	return s.store.ListDLQEntries(ctx, status, limit, offset)
}

// Retry replays one parked payload through the admission pipeline. The
// entry is claimed with a compare-and-set first, so two operators
// cannot drive the same retry concurrently. The originally attempted
// sequence ID is never reused: the proposal is stripped and the
// allocator issues a fresh one, because the old slot may have been
// filled while the entry sat parked.
func (s *Service) Retry(ctx context.Context, id, operatorID string) (*ingest.Result, error) {
	ctx, span := telemetry.StartDLQSpan(ctx, telemetry.SpanDLQRetry, id, telemetry.OperatorID(operatorID))
	defer span.End()
	ctx = telemetry.InjectTraceContext(ctx)

	entry, err := s.store.GetDLQEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkDLQRetrying(ctx, id); err != nil {
		return nil, err
	}

	var input eld.EventInput
	if err := json.Unmarshal(entry.OriginalPayload, &input); err != nil {
		s.requeue(ctx, id, "parked payload does not unmarshal: "+err.Error())
		return nil, eld.WrapError(eld.CodeInternal, err,
			"dead letter entry %s holds an unreadable payload", id)
	}
	input.SequenceID = nil

	actor := ingest.Actor{
		AccountID: operatorID,
		CarrierID: entry.CarrierID,
		DeviceID:  entry.SourceDeviceID,
	}
	res, err := s.pipeline.Submit(ctx, &input, actor)
	if err != nil {
		s.requeue(ctx, id, err.Error())
		s.observeRetry(RetryFailed)
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "dead letter retry failed",
			logger.DLQID(id), logger.ErrorCode(string(eld.AsError(err).Code)), logger.Err(err))
		return nil, err
	}
	s.observeRetry(RetryResolved)

	notes := "retried through the ingestion pipeline"
	if res.Replayed {
		notes = "payload was already committed; resolved as an idempotent replay"
	}
	if err := s.store.ResolveDLQEntry(ctx, id, operatorID, &res.EventID, notes); err != nil {
		// The event is durable; only the bookkeeping failed. Leave the
		// entry in retrying rather than requeue it: a second submit
		// would allocate another fresh ID and commit a second event.
		logger.ErrorCtx(ctx, "dead letter entry committed but failed to close",
			logger.DLQID(id), logger.EventID(res.EventID), logger.Err(err))
		return res, nil
	}

	logger.InfoCtx(ctx, "dead letter entry resolved",
		logger.DLQID(id), logger.EventID(res.EventID), logger.SequenceID(res.SequenceID),
		logger.UserID(operatorID))
	return res, nil
}

// RedriveReport summarizes a bulk retry pass.
type RedriveReport struct {
	Attempted int `json:"attempted"`
	Resolved  int `json:"resolved"`
	Failed    int `json:"failed"`
}

// RetryPending replays up to limit pending entries. Entries that fail
// again return to pending with the new failure reason; the pass keeps
// going.
func (s *Service) RetryPending(ctx context.Context, operatorID string, limit int) (*RedriveReport, error) {
	entries, err := s.store.ListDLQEntries(ctx, eld.DLQPending, limit, 0)
	if err != nil {
		return nil, err
	}

	report := &RedriveReport{Attempted: len(entries)}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if _, err := s.Retry(ctx, entry.ID, operatorID); err != nil {
			report.Failed++
			continue
		}
		report.Resolved++
	}

	logger.InfoCtx(ctx, "dead letter redrive finished",
		logger.Count(report.Attempted),
		slog.Int("resolved", report.Resolved),
		slog.Int("failed", report.Failed))
	return report, nil
}

// Discard terminally drops a pending entry. Discard beats retry for
// payloads that can no longer pass validation, like events parked past
// the ingestion window.
func (s *Service) Discard(ctx context.Context, id, operatorID, notes string) error {
	if err := s.store.DiscardDLQEntry(ctx, id, operatorID, notes); err != nil {
		return err
	}
	s.observeRetry(RetryDiscarded)
	logger.InfoCtx(ctx, "dead letter entry discarded",
		logger.DLQID(id), logger.UserID(operatorID))
	return nil
}

// Stats aggregates queue depth and flags when pending work exceeds the
// configured alert threshold.
func (s *Service) Stats(ctx context.Context) (*eld.DLQStats, error) {
	stats, err := s.store.DLQStats(ctx, s.alertThreshold)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SetQueueDepth(stats.Pending, stats.Retrying)
	}
	if stats.AlertThresholdExceeded {
		logger.WarnCtx(ctx, "dead letter queue depth exceeds alert threshold",
			logger.Count(stats.Pending), slog.Int("alert_threshold", s.alertThreshold))
	}
	return stats, nil
}

func (s *Service) requeue(ctx context.Context, id, reason string) {
	if err := s.store.RequeueDLQEntry(ctx, id, reason); err != nil {
		logger.ErrorCtx(ctx, "failed to requeue dead letter entry",
			logger.DLQID(id), logger.Err(err))
	}
}
