package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/fleetyard/eldcore/pkg/store"
	"github.com/fleetyard/eldcore/pkg/unidentified"
)

// UnidentifiedHandler serves the carrier review workflow over
// unidentified driving records.
type UnidentifiedHandler struct {
	service *unidentified.Service
}

// NewUnidentifiedHandler creates a handler over the review service.
func NewUnidentifiedHandler(service *unidentified.Service) *UnidentifiedHandler {
	return &UnidentifiedHandler{service: service}
}

// List handles GET /unidentified-driving - review queue for the
// authenticated carrier, pending first by default.
func (h *UnidentifiedHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := eld.UnidentifiedStatus(q.Get("status"))
	if status != "" && !status.IsValid() {
		WriteError(w, eld.NewError(eld.CodeValidation,
			"status %q is not one of pending, claimed, rejected", q.Get("status")))
		return
	}
	filter := store.UnidentifiedFilter{
		Status:    status,
		VehicleID: q.Get("vehicle_id"),
		Limit:     intParam(q.Get("limit"), 0),
		Offset:    intParam(q.Get("offset"), 0),
	}

	reviews, err := h.service.List(r.Context(), carrierFrom(r), filter)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteDataMeta(w, http.StatusOK, reviews, queryMeta{
		Limit:  filter.Limit,
		Offset: filter.Offset,
		Count:  len(reviews),
	})
}

// Get handles GET /unidentified-driving/{recordID}.
func (h *UnidentifiedHandler) Get(w http.ResponseWriter, r *http.Request) {
	review, err := h.service.Get(r.Context(), carrierFrom(r), chi.URLParam(r, "recordID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, http.StatusOK, review)
}

// ClaimRequest attributes an unidentified driving record to a driver.
type ClaimRequest struct {
	DriverID string `json:"driver_id" validate:"required"`
	Notes    string `json:"notes"`
}

// Claim handles POST /unidentified-driving/{recordID}/claim.
//
// Re-emits the recorded span under the named driver as a carrier edit
// and returns both the closed record and the attributed event.
func (h *UnidentifiedHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.service.Claim(r.Context(), chi.URLParam(r, "recordID"), req.DriverID, req.Notes, actorFrom(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, http.StatusOK, result)
}

// RejectRequest annotates a rejection with the reviewer's reason.
type RejectRequest struct {
	Notes string `json:"notes" validate:"required"`
}

// Reject handles POST /unidentified-driving/{recordID}/reject.
func (h *UnidentifiedHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	record, err := h.service.Reject(r.Context(), carrierFrom(r), chi.URLParam(r, "recordID"), req.Notes)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, http.StatusOK, record)
}
