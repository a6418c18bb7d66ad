package eld

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeDuplicate, http.StatusConflict},
		{CodeNonMonotonic, http.StatusConflict},
		{CodeIdempotencyConflict, http.StatusConflict},
		{CodeSequenceExhausted, http.StatusConflict},
		{CodeNotFound, http.StatusNotFound},
		{CodePayloadTooLarge, http.StatusRequestEntityTooLarge},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			e := NewError(tt.code, "boom")
			if got := e.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	e := WrapError(CodeInternal, cause, "persist failed")

	if !errors.Is(e, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	wrapped := fmt.Errorf("outer: %w", e)
	var de *Error
	if !errors.As(wrapped, &de) {
		t.Fatal("errors.As should find *Error through wrapping")
	}
	if de.Code != CodeInternal {
		t.Errorf("code = %s, want INTERNAL_ERROR", de.Code)
	}
}

func TestAsError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		if AsError(nil) != nil {
			t.Error("AsError(nil) should be nil")
		}
	})

	t.Run("passes through domain errors", func(t *testing.T) {
		e := NewError(CodeDuplicate, "seq 42 taken")
		if got := AsError(fmt.Errorf("ingest: %w", e)); got.Code != CodeDuplicate {
			t.Errorf("code = %s, want DUPLICATE", got.Code)
		}
	})

	t.Run("wraps unknown errors as internal", func(t *testing.T) {
		got := AsError(errors.New("disk on fire"))
		if got.Code != CodeInternal {
			t.Errorf("code = %s, want INTERNAL_ERROR", got.Code)
		}
		if !errors.Is(got, got.Unwrap()) {
			t.Error("cause should be preserved")
		}
	})
}

func TestGapWarning(t *testing.T) {
	tests := []struct {
		name        string
		proposed    int
		lastIssued  int
		wantNil     bool
		wantCode    Code
		wantMissing []int
	}{
		{"consecutive id produces no warning", 43, 42, true, "", nil},
		{"jump of two", 44, 42, false, CodeGapDetected, []int{43}},
		{"jump of five", 47, 42, false, CodeGapDetected, []int{43, 44, 45, 46}},
		{"jump of ten stays detected", 52, 42, false, CodeGapDetected, nil},
		{"jump of eleven escalates", 53, 42, false, CodeLargeGap, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := GapWarning(tt.proposed, tt.lastIssued)
			if tt.wantNil {
				if w != nil {
					t.Fatalf("expected no warning, got %+v", w)
				}
				return
			}
			if w == nil {
				t.Fatal("expected a warning")
			}
			if w.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", w.Code, tt.wantCode)
			}
			if w.SequenceID != tt.proposed {
				t.Errorf("sequence id = %d, want %d", w.SequenceID, tt.proposed)
			}
			if tt.wantMissing != nil {
				if len(w.Missing) != len(tt.wantMissing) {
					t.Fatalf("missing = %v, want %v", w.Missing, tt.wantMissing)
				}
				for i, id := range tt.wantMissing {
					if w.Missing[i] != id {
						t.Errorf("missing[%d] = %d, want %d", i, w.Missing[i], id)
					}
				}
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	single := NewValidationError(FieldError{Field: "latitude", Message: "out of range", Layer: 1})
	if single.Message != "latitude: out of range (layer 1)" {
		t.Errorf("single-detail message = %q", single.Message)
	}

	multi := NewValidationError(
		FieldError{Field: "latitude", Message: "out of range", Layer: 1},
		FieldError{Field: "event_type", Message: "unknown", Layer: 1},
	)
	if len(multi.Details) != 2 {
		t.Errorf("details = %d, want 2", len(multi.Details))
	}
}
