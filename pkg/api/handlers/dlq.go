package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetyard/eldcore/pkg/dlq"
	"github.com/fleetyard/eldcore/pkg/eld"
)

// DLQHandler serves the admin dead-letter surface. Every route sits
// behind the admin role check in the router.
type DLQHandler struct {
	service *dlq.Service
}

// NewDLQHandler creates a handler over the dead-letter service.
func NewDLQHandler(service *dlq.Service) *DLQHandler {
	return &DLQHandler{service: service}
}

// List handles GET /admin/dlq - parked entries for triage, optionally
// filtered by status.
func (h *DLQHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := eld.DLQStatus(q.Get("status"))
	if status != "" && !status.IsValid() {
		WriteError(w, eld.NewError(eld.CodeValidation,
			"status %q is not one of pending, retrying, resolved, discarded", q.Get("status")))
		return
	}
	limit := intParam(q.Get("limit"), 0)
	offset := intParam(q.Get("offset"), 0)

	entries, err := h.service.List(r.Context(), status, limit, offset)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteDataMeta(w, http.StatusOK, entries, queryMeta{
		Limit:  limit,
		Offset: offset,
		Count:  len(entries),
	})
}

// Get handles GET /admin/dlq/{entryID}.
func (h *DLQHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.Get(r.Context(), chi.URLParam(r, "entryID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, http.StatusOK, entry)
}

// Retry handles POST /admin/dlq/{entryID}/retry - replays one parked
// payload through the full admission pipeline.
func (h *DLQHandler) Retry(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Retry(r.Context(), chi.URLParam(r, "entryID"), actorFrom(r).AccountID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, http.StatusOK, result)
}

// RedriveRequest bounds a bulk retry pass.
type RedriveRequest struct {
	Limit int `json:"limit" validate:"omitempty,min=1"`
}

// defaultRedriveLimit bounds a redrive pass that names no limit, so an
// accidental empty POST cannot replay the entire queue.
const defaultRedriveLimit = 50

// Redrive handles POST /admin/dlq/retry - replays pending entries
// oldest-first up to the requested limit.
func (h *DLQHandler) Redrive(w http.ResponseWriter, r *http.Request) {
	req := RedriveRequest{Limit: defaultRedriveLimit}
	if r.ContentLength != 0 {
		if !decodeJSONBody(w, r, &req) {
			return
		}
	}
	if req.Limit <= 0 {
		req.Limit = defaultRedriveLimit
	}

	report, err := h.service.RetryPending(r.Context(), actorFrom(r).AccountID, req.Limit)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, http.StatusOK, report)
}

// DiscardRequest annotates a terminal drop with the operator's reason.
type DiscardRequest struct {
	Notes string `json:"notes" validate:"required"`
}

// Discard handles POST /admin/dlq/{entryID}/discard.
func (h *DLQHandler) Discard(w http.ResponseWriter, r *http.Request) {
	var req DiscardRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Notes == "" {
		WriteError(w, eld.NewError(eld.CodeValidation, "notes are required to discard an entry"))
		return
	}

	id := chi.URLParam(r, "entryID")
	if err := h.service.Discard(r.Context(), id, actorFrom(r).AccountID, req.Notes); err != nil {
		WriteError(w, err)
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, http.StatusOK, entry)
}

// Stats handles GET /admin/dlq/stats - queue depth per status plus the
// alert flag operators page on.
func (h *DLQHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, http.StatusOK, stats)
}
