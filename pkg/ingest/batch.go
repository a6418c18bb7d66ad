package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fleetyard/eldcore/internal/logger"
	"github.com/fleetyard/eldcore/internal/telemetry"
	"github.com/fleetyard/eldcore/pkg/eld"
)

// MaxBatchSize caps one batch submission.
const MaxBatchSize = 100

// API surfaces recorded on dead-letter entries for operator attribution.
const (
	EndpointBatch = "/events/batch"
	EndpointSync  = "/sync/events"
)

// Accepted pairs a committed event's identity with its submission index.
type Accepted struct {
	Index int `json:"index"`
	Result
}

// Rejected reports one event that did not commit. DLQEntryID is set
// only for infrastructure failures, where the payload was parked for
// operator retry; validation rejections are final and carry none.
type Rejected struct {
	Index      int        `json:"index"`
	Error      *eld.Error `json:"error"`
	DLQEntryID string     `json:"dlq_entry_id,omitempty"`
}

// BatchSummary totals a batch run.
type BatchSummary struct {
	Total            int   `json:"total"`
	Accepted         int   `json:"accepted"`
	Rejected         int   `json:"rejected"`
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// BatchResult is the per-event outcome of a batch run, indices in
// submission order.
type BatchResult struct {
	Accepted []Accepted   `json:"accepted"`
	Rejected []Rejected   `json:"rejected"`
	Summary  BatchSummary `json:"summary"`
}

// SubmitBatch runs up to MaxBatchSize events through the pipeline. One
// event's rejection never fails the batch; the result carries every
// outcome and the caller maps it to a multi-status response.
func (p *Pipeline) SubmitBatch(ctx context.Context, inputs []*eld.EventInput, actor Actor) (*BatchResult, error) {
	if len(inputs) == 0 {
		return nil, eld.NewError(eld.CodeValidation, "batch must contain at least one event")
	}
	if len(inputs) > MaxBatchSize {
		return nil, eld.NewError(eld.CodeValidation,
			"batch of %d events exceeds the limit of %d", len(inputs), MaxBatchSize).
			WithMeta("batch_size", len(inputs)).
			WithMeta("max_batch_size", MaxBatchSize)
	}
	return p.Run(ctx, inputs, actor, EndpointBatch), nil
}

// outcome is one event's terminal state inside a run.
type outcome struct {
	result     *Result
	err        *eld.Error
	dlqEntryID string
}

// Run pushes every input through the full pipeline: events sharing a
// scope stay sequential in submission order under a single lock hold,
// distinct scopes run in parallel. Validation rejections are final;
// failures that survive the retry budget are parked on the dead letter
// queue and the rejection carries the entry ID.
//
// The single lock hold per scope is what makes the response chain
// literal: a rejected event's successor links to the last accepted
// hash, with no interleaved commit from another request in between.
func (p *Pipeline) Run(ctx context.Context, inputs []*eld.EventInput, actor Actor, endpoint string) *BatchResult {
	ctx, span := telemetry.StartBatchSpan(ctx, actor.DeviceID, len(inputs))
	defer span.End()
	ctx = telemetry.InjectTraceContext(ctx)

	start := p.now()

	subs := make([]submission, len(inputs))
	outcomes := make([]outcome, len(inputs))
	groups := make(map[string][]int)

	for i, input := range inputs {
		sub, err := p.prepare(ctx, input, actor)
		if err != nil {
			p.observeEvent(input.EventType, nil, err)
			outcomes[i] = outcome{err: eld.AsError(err)}
			continue
		}
		subs[i] = sub
		key := sub.scope.Key()
		groups[key] = append(groups[key], i)
	}

	var wg sync.WaitGroup
	for _, indices := range groups {
		wg.Add(1)
		go func(indices []int) {
			defer wg.Done()
			p.runGroup(ctx, subs, indices, outcomes, endpoint)
		}(indices)
	}
	wg.Wait()

	result := assemble(outcomes, start, p.now())
	span.SetAttributes(
		telemetry.Accepted(result.Summary.Accepted),
		telemetry.Rejected(result.Summary.Rejected),
	)
	if p.metrics != nil {
		p.metrics.ObserveBatch(result.Summary.Total, result.Summary.Accepted, result.Summary.Rejected)
	}

	logger.InfoCtx(ctx, "batch processed",
		logger.Endpoint(endpoint),
		logger.BatchSize(result.Summary.Total),
		"accepted", result.Summary.Accepted,
		"rejected", result.Summary.Rejected,
		logger.DurationMs(float64(result.Summary.ProcessingTimeMs)),
	)
	return result
}

// runGroup commits one scope's events in submission order. Each
// goroutine writes only its own indices into outcomes, so the slice
// needs no lock.
func (p *Pipeline) runGroup(ctx context.Context, subs []submission, indices []int, outcomes []outcome, endpoint string) {
	scope := subs[indices[0]].scope
	unlock := p.allocator.LockScope(scope)
	defer unlock()

	for _, i := range indices {
		res, err := p.commitLocked(ctx, subs[i])
		p.observeEvent(subs[i].input.EventType, res, err)
		if err == nil {
			outcomes[i] = outcome{result: res}
			continue
		}

		o := outcome{err: eld.AsError(err)}
		if isInfrastructure(err) {
			if id, dlqErr := p.deadLetter(ctx, subs[i], endpoint, i, err); dlqErr == nil {
				o.dlqEntryID = id
			}
		}
		outcomes[i] = o
	}
}

// isInfrastructure separates failures worth dead-lettering from
// client-correctable rejections. Domain codes are final answers the
// client can act on; everything else means the server could not do its
// job and the payload must not be lost.
func isInfrastructure(err error) bool {
	de := eld.AsError(err)
	switch de.Code {
	case eld.CodeValidation, eld.CodeDuplicate, eld.CodeNonMonotonic, eld.CodeSequenceExhausted:
		return false
	}
	return true
}

// deadLetter parks a failed event's payload for operator review. The
// payload is preserved verbatim so a retry re-runs the full pipeline on
// exactly what the device sent.
func (p *Pipeline) deadLetter(ctx context.Context, sub submission, endpoint string, index int, cause error) (string, error) {
	payload, err := json.Marshal(sub.input)
	if err != nil {
		logger.ErrorCtx(ctx, "failed to serialize dead letter payload",
			logger.BatchIndex(index),
			logger.Err(err),
		)
		return "", err
	}

	now := p.now().UTC()
	idx := index
	entry := &eld.DLQEntry{
		OriginalPayload: payload,
		SourceDeviceID:  sub.input.DeviceID,
		SourceEndpoint:  endpoint,
		CarrierID:       sub.actor.CarrierID,
		BatchIndex:      &idx,
		FailureReason:   cause.Error(),
		ErrorCode:       string(eld.AsError(cause).Code),
		FirstFailureAt:  now,
		LastFailureAt:   now,
	}

	if err := p.store.CreateDLQEntry(ctx, entry); err != nil {
		logger.ErrorCtx(ctx, "failed to write dead letter entry",
			logger.BatchIndex(index),
			logger.DeviceID(sub.input.DeviceID),
			logger.Err(err),
		)
		return "", err
	}

	if p.metrics != nil {
		p.metrics.ObserveDeadLetter()
	}
	logger.WarnCtx(ctx, "event parked on dead letter queue",
		logger.DLQID(entry.ID),
		logger.BatchIndex(index),
		logger.DeviceID(sub.input.DeviceID),
		logger.Endpoint(endpoint),
		logger.ErrorCode(entry.ErrorCode),
	)
	return entry.ID, nil
}

func assemble(outcomes []outcome, start, end time.Time) *BatchResult {
	result := &BatchResult{
		Accepted: make([]Accepted, 0, len(outcomes)),
		Rejected: make([]Rejected, 0),
	}
	for i, o := range outcomes {
		if o.result != nil {
			result.Accepted = append(result.Accepted, Accepted{Index: i, Result: *o.result})
			continue
		}
		result.Rejected = append(result.Rejected, Rejected{Index: i, Error: o.err, DLQEntryID: o.dlqEntryID})
	}
	result.Summary = BatchSummary{
		Total:            len(outcomes),
		Accepted:         len(result.Accepted),
		Rejected:         len(result.Rejected),
		ProcessingTimeMs: end.Sub(start).Milliseconds(),
	}
	return result
}
