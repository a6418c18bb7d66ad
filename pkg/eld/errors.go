package eld

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable wire error code. These values are part of the API
// contract; clients branch on them.
type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeDuplicate           Code = "DUPLICATE"
	CodeNonMonotonic        Code = "NON_MONOTONIC"
	CodeSequenceExhausted   Code = "SEQUENCE_EXHAUSTED"
	CodeIdempotencyConflict Code = "IDEMPOTENCY_CONFLICT"
	CodeNotFound            Code = "NOT_FOUND"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodePayloadTooLarge     Code = "PAYLOAD_TOO_LARGE"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeInternal            Code = "INTERNAL_ERROR"

	// Warning codes. Never returned as errors: they annotate accepted
	// events whose proposed sequence ID skipped ahead.
	CodeGapDetected Code = "GAP_DETECTED"
	CodeLargeGap    Code = "LARGE_GAP"
)

// FieldError is a per-field validation diagnostic. Layer identifies the
// pipeline stage that produced it (1 shape, 2 business rules, 3
// cross-reference).
type FieldError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
	Layer   int    `json:"layer"`
}

func (f FieldError) String() string {
	return fmt.Sprintf("%s: %s (layer %d)", f.Field, f.Message, f.Layer)
}

// Error is a domain error carrying a stable wire code, an operator
// message, and optional per-field details. It wraps the underlying
// cause for errors.Is/As.
type Error struct {
	Code    Code         `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`

	// Meta carries machine-readable context for conflict codes, such as
	// the counter value behind a NON_MONOTONIC rejection.
	Meta map[string]any `json:"meta,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// HTTPStatus maps the code to the status the API surface returns.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeDuplicate, CodeNonMonotonic, CodeIdempotencyConflict:
		return http.StatusConflict
	case CodeSequenceExhausted:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// NewError builds a domain error with a code and formatted message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a domain error around a cause.
func WrapError(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithMeta attaches a machine-readable detail and returns the error for
// chaining.
func (e *Error) WithMeta(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]any, 2)
	}
	e.Meta[key] = value
	return e
}

// NewValidationError builds a VALIDATION_ERROR with field diagnostics.
func NewValidationError(details ...FieldError) *Error {
	msg := "event failed validation"
	if len(details) == 1 {
		msg = details[0].String()
	}
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// AsError extracts a *Error from err, or wraps err as INTERNAL_ERROR so
// every failure crossing the API boundary carries a stable code.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return &Error{Code: CodeInternal, Message: "internal error", cause: err}
}

// Warning annotates an accepted event: the proposed sequence ID skipped
// ahead of the counter, which FMCSA tolerates but compliance export must
// flag.
type Warning struct {
	Code       Code   `json:"code"`
	SequenceID int    `json:"sequence_id"`
	Missing    []int  `json:"missing,omitempty"`
	Message    string `json:"message"`
}

// GapWarning builds the warning for a proposed ID that jumped past
// lastIssued+1. Jumps beyond lastIssued+LargeGapThreshold escalate to
// LARGE_GAP.
func GapWarning(proposedID, lastIssuedID int) *Warning {
	gap := proposedID - lastIssuedID - 1
	if gap <= 0 {
		return nil
	}

	missing := make([]int, 0, gap)
	for id := lastIssuedID + 1; id < proposedID; id++ {
		missing = append(missing, id)
	}

	code := CodeGapDetected
	if proposedID > lastIssuedID+LargeGapThreshold {
		code = CodeLargeGap
	}

	return &Warning{
		Code:       code,
		SequenceID: proposedID,
		Missing:    missing,
		Message:    fmt.Sprintf("sequence gap of %d before id %d", gap, proposedID),
	}
}

// LargeGapThreshold is the gap width past which GAP_DETECTED escalates
// to LARGE_GAP.
const LargeGapThreshold = 10

// Sentinel errors shared across the ingestion core.
var (
	ErrEventNotFound        = errors.New("event not found")
	ErrLogPeriodNotFound    = errors.New("log period not found")
	ErrSequenceStateMissing = errors.New("sequence state not found")
	ErrDLQEntryNotFound     = errors.New("dlq entry not found")
	ErrUnidentifiedNotFound = errors.New("unidentified driving record not found")
	ErrDuplicateEvent       = errors.New("event already exists for scope and sequence id")
	ErrStaleSequenceState   = errors.New("sequence state changed concurrently")
	ErrMissingTimeRange     = errors.New("event query requires a timestamp range predicate")

	ErrEventStatusConflict    = errors.New("event record status changed concurrently")
	ErrDLQIllegalTransition   = errors.New("dlq entry status does not allow this transition")
	ErrUnidentifiedNotPending = errors.New("unidentified driving record already reviewed")
)
