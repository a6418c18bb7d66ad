package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetyard/eldcore/pkg/api/middleware"
	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/fleetyard/eldcore/pkg/eld/hashchain"
	"github.com/fleetyard/eldcore/pkg/ingest"
	"github.com/fleetyard/eldcore/pkg/sequence"
	"github.com/fleetyard/eldcore/pkg/store"
)

// HeaderDeviceID names the submitting ELD unit on ingestion requests.
const HeaderDeviceID = "X-Device-Id"

// EventsHandler serves event ingestion and the query surfaces.
type EventsHandler struct {
	pipeline *ingest.Pipeline
	store    *store.Store
}

// NewEventsHandler creates a handler over the ingestion pipeline and
// the event store.
func NewEventsHandler(pipeline *ingest.Pipeline, st *store.Store) *EventsHandler {
	return &EventsHandler{pipeline: pipeline, store: st}
}

// actorFrom builds the pipeline actor for a request. The carrier always
// comes from the token; the device comes from the X-Device-Id header
// when present, else from a device-provisioned token.
func actorFrom(r *http.Request) ingest.Actor {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		return ingest.Actor{}
	}
	actor := ingest.Actor{
		AccountID: claims.AccountID,
		CarrierID: claims.CarrierID,
		DeviceID:  claims.DeviceID,
	}
	if device := r.Header.Get(HeaderDeviceID); device != "" {
		actor.DeviceID = device
	}
	return actor
}

// carrierFrom returns the authenticated carrier, or "" when the
// request carries no claims.
func carrierFrom(r *http.Request) string {
	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		return claims.CarrierID
	}
	return ""
}

// Submit handles POST /events - single event ingestion.
//
// Returns 201 with the committed identity, 400 on validation
// rejection, 409 on a duplicate slot. Idempotency-key replay is
// handled by middleware before the request reaches here.
func (h *EventsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var input eld.EventInput
	if !decodeJSONBody(w, r, &input) {
		return
	}

	result, err := h.pipeline.Submit(r.Context(), &input, actorFrom(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteData(w, http.StatusCreated, result)
}

// BatchRequest is the body of POST /events/batch.
type BatchRequest struct {
	Events []*eld.EventInput `json:"events" validate:"required,min=1,max=100,dive"`
}

// SubmitBatch handles POST /events/batch - up to 100 events from one
// device.
//
// Status reflects the outcome mix: 201 all accepted, 207 partial, 400
// all rejected. The body always carries every per-event outcome; on
// 400 the envelope additionally carries the batch-level error.
func (h *EventsHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.pipeline.SubmitBatch(r.Context(), req.Events, actorFrom(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	switch {
	case result.Summary.Rejected == 0:
		WriteData(w, http.StatusCreated, result)
	case result.Summary.Accepted == 0:
		WriteJSON(w, http.StatusBadRequest, Envelope{
			Success: false,
			Data:    result,
			Error:   eld.NewError(eld.CodeValidation, "all events in the batch were rejected"),
		})
	default:
		WriteData(w, http.StatusMultiStatus, result)
	}
}

// queryMeta is the paging metadata on list responses.
type queryMeta struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// Query handles GET /events - the paged cross-scope query surface.
//
// start_date and end_date (MMDDYY log dates, end inclusive) are
// required: the store refuses unbounded scans over the partitioned
// table. Results are always scoped to the token's carrier.
func (h *EventsHandler) Query(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	q := r.URL.Query()

	from, to, err := parseDateRange(q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		WriteError(w, err)
		return
	}

	query := store.EventQuery{
		CarrierID: claims.CarrierID,
		DriverID:  q.Get("driver_id"),
		DeviceID:  q.Get("device_id"),
		From:      from,
		To:        to,
		Limit:     intParam(q.Get("limit"), 0),
		Offset:    intParam(q.Get("offset"), 0),
	}
	if raw := q.Get("event_type"); raw != "" {
		et := intParam(raw, -1)
		if !eld.EventType(et).IsValid() {
			WriteError(w, eld.NewError(eld.CodeValidation, "event_type %q is not in the 1-7 domain", raw))
			return
		}
		query.EventType = eld.EventType(et)
	}
	query.IncludeInactive = q.Get("include_inactive") == "true"

	events, err := h.store.ListEvents(r.Context(), query)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteDataMeta(w, http.StatusOK, events, queryMeta{
		Limit:  query.Limit,
		Offset: query.Offset,
		Count:  len(events),
	})
}

// Scope handles GET /events/{deviceID}/{logDate} - every event in one
// sequence scope, in sequence order.
func (h *EventsHandler) Scope(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopeFrom(w, r)
	if !ok {
		return
	}

	opts := store.ScopeOpts{
		FromSequence:    intParam(r.URL.Query().Get("from_sequence"), 0),
		ToSequence:      intParam(r.URL.Query().Get("to_sequence"), 0),
		IncludeInactive: r.URL.Query().Get("include_inactive") == "true",
	}

	events, err := h.store.FindByScope(r.Context(), scope, opts)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteDataMeta(w, http.StatusOK, events, queryMeta{Count: len(events)})
}

// gapsResponse is the body of the gap report.
type gapsResponse struct {
	ExpectedCount int                 `json:"expected_count"`
	Gaps          []sequence.GapRange `json:"gaps"`
}

// Gaps handles GET /events/{deviceID}/{logDate}/gaps - the holes
// between the counter's high-water mark and the committed rows.
func (h *EventsHandler) Gaps(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopeFrom(w, r)
	if !ok {
		return
	}

	report, err := h.store.DetectGaps(r.Context(), scope)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteData(w, http.StatusOK, gapsResponse{
		ExpectedCount: report.Expected,
		Gaps:          report.Ranges(),
	})
}

// Verify handles GET /events/{deviceID}/{logDate}/verify - walks the
// scope's active chain and reports the first broken link, if any.
func (h *EventsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopeFrom(w, r)
	if !ok {
		return
	}

	events, err := h.store.FindByScope(r.Context(), scope, store.ScopeOpts{})
	if err != nil {
		WriteError(w, err)
		return
	}

	result, err := hashchain.Verify(events)
	if err != nil {
		WriteError(w, eld.WrapError(eld.CodeInternal, err, "chain verification failed"))
		return
	}

	WriteData(w, http.StatusOK, result)
}

// scopeFrom reads and validates the {deviceID}/{logDate} route pair.
func (h *EventsHandler) scopeFrom(w http.ResponseWriter, r *http.Request) (eld.Scope, bool) {
	deviceID := chi.URLParam(r, "deviceID")
	logDate := chi.URLParam(r, "logDate")
	if !eld.ValidLogDate(logDate) {
		WriteError(w, eld.NewError(eld.CodeValidation, "log date %q is not a valid MMDDYY date", logDate))
		return eld.Scope{}, false
	}
	return eld.Scope{DeviceID: deviceID, LogDate: logDate}, true
}

// parseDateRange converts inclusive MMDDYY bounds into the store's
// [from, to) timestamp predicate.
func parseDateRange(start, end string) (time.Time, time.Time, error) {
	if start == "" || end == "" {
		return time.Time{}, time.Time{}, eld.NewError(eld.CodeValidation,
			"start_date and end_date are required")
	}
	from, err := eld.ParseLogDate(start, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, eld.NewError(eld.CodeValidation,
			"start_date %q is not a valid MMDDYY date", start)
	}
	endDay, err := eld.ParseLogDate(end, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, eld.NewError(eld.CodeValidation,
			"end_date %q is not a valid MMDDYY date", end)
	}
	to := endDay.Add(24 * time.Hour)
	if to.Before(from) {
		return time.Time{}, time.Time{}, eld.NewError(eld.CodeValidation,
			"end_date precedes start_date")
	}
	return from, to, nil
}

// intParam parses a query integer, falling back on absence or junk.
func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
