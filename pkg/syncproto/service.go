// Package syncproto implements the offline drain protocol. A device
// reconnecting after a coverage gap uploads its buffered events in one
// request and receives the server-side edits recorded while it was
// away, plus a new cursor for the next drain.
package syncproto

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/fleetyard/eldcore/internal/logger"
	"github.com/fleetyard/eldcore/internal/telemetry"
	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/fleetyard/eldcore/pkg/ingest"
	"github.com/fleetyard/eldcore/pkg/store"
)

// MaxSyncEvents caps one drain request. Devices buffering more split
// the upload across requests, oldest days first.
const MaxSyncEvents = 500

// serverEventLimit caps the edit feed per response; anything beyond it
// is picked up by the next sync because the cursor only advances to the
// instant captured before the query.
const serverEventLimit = 500

// Runner is the slice of the admission pipeline a drain feeds.
type Runner interface {
	Run(ctx context.Context, inputs []*eld.EventInput, actor ingest.Actor, endpoint string) *ingest.BatchResult
}

// EventSource supplies the carrier's server-side edit feed.
type EventSource interface {
	FindByCarrierUpdatedAfter(ctx context.Context, carrierID string, after time.Time, limit int) ([]*eld.Event, error)
}

var (
	_ Runner      = (*ingest.Pipeline)(nil)
	_ EventSource = (*store.Store)(nil)
)

// Request is a device's drain submission. SyncedUpToAt is the cursor
// returned by the previous sync; the zero value replays the whole edit
// history, which is what a freshly provisioned device wants.
type Request struct {
	DeviceID     string            `json:"device_id" validate:"required"`
	SyncedUpToAt time.Time         `json:"synced_up_to_at"`
	Events       []*eld.EventInput `json:"events" validate:"max=500,dive"`
}

// Response reports per-event outcomes for the drained buffer alongside
// the server-edit feed. Indices refer to the request's events array.
type Response struct {
	Accepted        []ingest.Accepted   `json:"accepted"`
	Rejected        []ingest.Rejected   `json:"rejected"`
	ServerEvents    []*eld.Event        `json:"server_events"`
	NewSyncedUpToAt time.Time           `json:"new_synced_up_to_at"`
	Summary         ingest.BatchSummary `json:"summary"`
}

// Service drives drain requests through the admission pipeline one log
// date at a time.
type Service struct {
	events   EventSource
	pipeline Runner
	now      func() time.Time
}

// New builds the sync service over the shared pipeline and store.
func New(events EventSource, pipeline Runner) *Service {
	return &Service{events: events, pipeline: pipeline, now: time.Now}
}

// Sync drains the device's buffer and returns the edit feed. Buffered
// events are grouped by log date and the groups run oldest first, so a
// multi-day backlog lands in chronological order and each day's chain
// grows the way it would have grown online. Per-event failures reject
// that event only; the drain keeps going.
func (s *Service) Sync(ctx context.Context, req *Request, actor ingest.Actor) (*Response, error) {
	if req.DeviceID == "" {
		return nil, eld.NewError(eld.CodeValidation, "device_id is required")
	}
	if len(req.Events) > MaxSyncEvents {
		return nil, eld.NewError(eld.CodeValidation,
			"sync of %d events exceeds the limit of %d", len(req.Events), MaxSyncEvents).
			WithMeta("event_count", len(req.Events)).
			WithMeta("max_sync_events", MaxSyncEvents)
	}
	actor.DeviceID = req.DeviceID

	ctx, span := telemetry.StartSyncSpan(ctx, req.DeviceID, len(req.Events),
		telemetry.SyncCursor(req.SyncedUpToAt.Format(time.RFC3339)))
	defer span.End()
	ctx = telemetry.InjectTraceContext(ctx)

	start := s.now()
	resp := &Response{
		Accepted: make([]ingest.Accepted, 0, len(req.Events)),
		Rejected: make([]ingest.Rejected, 0),
	}

	for _, g := range groupByLogDate(req.Events) {
		res := s.pipeline.Run(ctx, g.inputs, actor, ingest.EndpointSync)
		for _, acc := range res.Accepted {
			acc.Index = g.indices[acc.Index]
			resp.Accepted = append(resp.Accepted, acc)
		}
		for _, rej := range res.Rejected {
			rej.Index = g.indices[rej.Index]
			resp.Rejected = append(resp.Rejected, rej)
		}
	}
	sort.Slice(resp.Accepted, func(i, j int) bool { return resp.Accepted[i].Index < resp.Accepted[j].Index })
	sort.Slice(resp.Rejected, func(i, j int) bool { return resp.Rejected[i].Index < resp.Rejected[j].Index })

	// Capture the cursor before querying: edits landing between the
	// query and the response are re-delivered next sync rather than
	// lost in the gap.
	cursor := s.now().UTC()
	serverEvents, err := s.events.FindByCarrierUpdatedAfter(ctx, actor.CarrierID, req.SyncedUpToAt, serverEventLimit)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, eld.WrapError(eld.CodeInternal, err, "failed to load the server edit feed")
	}
	for _, ev := range serverEvents {
		ev.RequiresDriverReview = true
	}
	resp.ServerEvents = serverEvents
	resp.NewSyncedUpToAt = cursor
	span.SetAttributes(telemetry.ServerFeed(len(serverEvents)))

	end := s.now()
	resp.Summary = ingest.BatchSummary{
		Total:            len(req.Events),
		Accepted:         len(resp.Accepted),
		Rejected:         len(resp.Rejected),
		ProcessingTimeMs: end.Sub(start).Milliseconds(),
	}

	logger.InfoCtx(ctx, "device sync completed",
		logger.DeviceID(req.DeviceID),
		logger.BatchSize(len(req.Events)),
		slog.Int("accepted", resp.Summary.Accepted),
		slog.Int("rejected", resp.Summary.Rejected),
		slog.Int("server_events", len(serverEvents)),
		logger.DurationMs(float64(resp.Summary.ProcessingTimeMs)))
	return resp, nil
}

// logDateGroup is one day's slice of the drain, with indices back into
// the request array.
type logDateGroup struct {
	day     time.Time
	indices []int
	inputs  []*eld.EventInput
}

// groupByLogDate buckets events by their client log date, falling back
// to the UTC calendar date of the timestamp when the client sent none.
// The fallback is a grouping key only; the pipeline still derives the
// authoritative log date per event.
func groupByLogDate(events []*eld.EventInput) []*logDateGroup {
	byDay := make(map[string]*logDateGroup)
	for i, ev := range events {
		key := ev.LogDate
		day, err := eld.ParseLogDate(key, time.UTC)
		if err != nil {
			key = eld.LogDateFor(ev.EventTimestamp, time.UTC)
			day, _ = eld.ParseLogDate(key, time.UTC)
		}

		g, ok := byDay[key]
		if !ok {
			g = &logDateGroup{day: day}
			byDay[key] = g
		}
		g.indices = append(g.indices, i)
		g.inputs = append(g.inputs, ev)
	}

	groups := make([]*logDateGroup, 0, len(byDay))
	for _, g := range byDay {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].day.Before(groups[j].day) })
	return groups
}
