// Package handlers provides HTTP handlers for the eldcore API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fleetyard/eldcore/internal/logger"
	"github.com/fleetyard/eldcore/pkg/eld"
)

// Envelope is the wire shape of every API response. Success selects
// which of Data and Error is populated; Meta carries paging and other
// response-level context.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Meta    any        `json:"meta,omitempty"`
	Error   *eld.Error `json:"error,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encodeBody(w, payload)
}

// encodeBody encodes the payload after the status line is out. The
// status cannot be rewritten at this point, so a failure is only
// logged.
func encodeBody(w http.ResponseWriter, payload any) {
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode API response", "error", err)
	}
}

// WriteData writes a success envelope.
func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Envelope{Success: true, Data: data})
}

// WriteDataMeta writes a success envelope with response metadata.
func WriteDataMeta(w http.ResponseWriter, status int, data, meta any) {
	WriteJSON(w, status, Envelope{Success: true, Data: data, Meta: meta})
}

// WriteError maps any error onto the failure envelope. Domain errors
// keep their wire code and status; everything else is masked as
// INTERNAL_ERROR so infrastructure details never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	domainErr := toWireError(err)
	if domainErr.Code == eld.CodeInternal {
		logger.Error("API request failed", "error", err)
	}
	WriteJSON(w, domainErr.HTTPStatus(), Envelope{Success: false, Error: domainErr})
}

// toWireError translates store sentinels that reach the handler layer
// uncoded into coded wire errors. Anything unrecognized falls through
// to eld.AsError's INTERNAL_ERROR masking.
func toWireError(err error) *eld.Error {
	switch {
	case errors.Is(err, eld.ErrEventNotFound),
		errors.Is(err, eld.ErrLogPeriodNotFound),
		errors.Is(err, eld.ErrDLQEntryNotFound),
		errors.Is(err, eld.ErrUnidentifiedNotFound):
		return eld.WrapError(eld.CodeNotFound, err, "%s", err.Error())
	case errors.Is(err, eld.ErrDLQIllegalTransition),
		errors.Is(err, eld.ErrUnidentifiedNotPending):
		return eld.WrapError(eld.CodeValidation, err, "%s", err.Error())
	default:
		return eld.AsError(err)
	}
}

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns false after writing the error response if decoding fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, eld.NewError(eld.CodePayloadTooLarge,
				"request body exceeds the %d byte limit", maxErr.Limit))
			return false
		}
		WriteError(w, eld.NewError(eld.CodeValidation, "request body is not valid JSON"))
		return false
	}
	return true
}
