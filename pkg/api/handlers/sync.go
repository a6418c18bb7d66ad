package handlers

import (
	"net/http"

	"github.com/fleetyard/eldcore/pkg/syncproto"
)

// SyncHandler serves the offline drain protocol.
type SyncHandler struct {
	service *syncproto.Service
}

// NewSyncHandler creates a handler over the sync service.
func NewSyncHandler(service *syncproto.Service) *SyncHandler {
	return &SyncHandler{service: service}
}

// Events handles POST /sync/events - a device draining its offline
// buffer.
//
// A well-formed drain always returns 200: per-event rejections ride in
// the body and must not fail the exchange, or the device would retry
// the whole buffer forever. Only malformed requests (missing device,
// oversize batch) get an error status.
func (h *SyncHandler) Events(w http.ResponseWriter, r *http.Request) {
	var req syncproto.Request
	if !decodeJSONBody(w, r, &req) {
		return
	}

	resp, err := h.service.Sync(r.Context(), &req, actorFrom(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteData(w, http.StatusOK, resp)
}
