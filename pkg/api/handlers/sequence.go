package handlers

import (
	"net/http"
	"time"

	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/fleetyard/eldcore/pkg/sequence"
)

// SequenceHandler serves the allocator's client-facing surfaces:
// block reservation for offline devices and counter state for
// NON_MONOTONIC recovery.
type SequenceHandler struct {
	allocator *sequence.Allocator
}

// NewSequenceHandler creates a handler over the allocator.
func NewSequenceHandler(allocator *sequence.Allocator) *SequenceHandler {
	return &SequenceHandler{allocator: allocator}
}

// ReserveRequest is the body of POST /events/sequence-ids/reserve.
type ReserveRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	LogDate  string `json:"log_date" validate:"required,len=6,numeric"`
	Count    int    `json:"count" validate:"required,min=1"`
}

// reserveResponse is the committed block.
type reserveResponse struct {
	ReservationID string    `json:"reservation_id"`
	StartID       int       `json:"start_id"`
	EndID         int       `json:"end_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Reserve handles POST /events/sequence-ids/reserve - pre-draws a
// block of IDs a device will consume while offline.
func (h *SequenceHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	scope, ok := h.reserveScope(w, &req)
	if !ok {
		return
	}

	reservation, err := h.allocator.Reserve(r.Context(), scope, req.Count)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteData(w, http.StatusCreated, reserveResponse{
		ReservationID: reservation.ID,
		StartID:       reservation.StartID,
		EndID:         reservation.EndID,
		ExpiresAt:     reservation.ExpiresAt,
	})
}

// Status handles GET /sync/status - the scope's counter state.
//
// A device that took a NON_MONOTONIC rejection calls this to learn the
// last issued ID and any reservation blocks before resubmitting. The
// device defaults to the one bound to the token or named by the
// X-Device-Id header; log_date defaults to today in UTC.
func (h *SequenceHandler) Status(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	deviceID := q.Get("device_id")
	if deviceID == "" {
		deviceID = actorFrom(r).DeviceID
	}
	if deviceID == "" {
		WriteError(w, eld.NewError(eld.CodeValidation, "device_id is required"))
		return
	}

	logDate := q.Get("log_date")
	if logDate == "" {
		logDate = eld.LogDateFor(time.Now(), time.UTC)
	}
	if !eld.ValidLogDate(logDate) {
		WriteError(w, eld.NewError(eld.CodeValidation, "log date %q is not a valid MMDDYY date", logDate))
		return
	}

	state, err := h.allocator.State(r.Context(), eld.Scope{DeviceID: deviceID, LogDate: logDate})
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteData(w, http.StatusOK, state)
}

// reserveScope validates the request fields into a scope.
func (h *SequenceHandler) reserveScope(w http.ResponseWriter, req *ReserveRequest) (eld.Scope, bool) {
	if req.DeviceID == "" {
		WriteError(w, eld.NewError(eld.CodeValidation, "device_id is required"))
		return eld.Scope{}, false
	}
	if !eld.ValidLogDate(req.LogDate) {
		WriteError(w, eld.NewError(eld.CodeValidation, "log date %q is not a valid MMDDYY date", req.LogDate))
		return eld.Scope{}, false
	}
	return eld.Scope{DeviceID: req.DeviceID, LogDate: req.LogDate}, true
}
