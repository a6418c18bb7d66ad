package validation

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/fleetyard/eldcore/pkg/eld"
)

// Shape runs layer 1: structural constraints from the input's validate
// tags plus the format checks tags cannot express (calendar validity of
// MMDDYY fields). Returns one diagnostic per offending field.
func (v *Validator) Shape(input *eld.EventInput) []eld.FieldError {
	var details []eld.FieldError

	if err := v.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			// InvalidValidationError only occurs for non-struct input.
			details = append(details, eld.FieldError{
				Field:   "event",
				Message: err.Error(),
				Layer:   LayerShape,
			})
			return details
		}
		for _, fe := range verrs {
			details = append(details, eld.FieldError{
				Field:   fe.Field(),
				Value:   fmt.Sprintf("%v", fe.Value()),
				Message: shapeMessage(fe),
				Layer:   LayerShape,
			})
		}
	}

	// len=6,numeric admits impossible calendar days like 023026.
	if input.LogDate != "" && !eld.ValidLogDate(input.LogDate) {
		details = append(details, eld.FieldError{
			Field:   "log_date",
			Value:   input.LogDate,
			Message: "is not a valid MMDDYY day",
			Layer:   LayerShape,
		})
	}
	if input.CertifiedLogDate != "" && !eld.ValidLogDate(input.CertifiedLogDate) {
		details = append(details, eld.FieldError{
			Field:   "certified_log_date",
			Value:   input.CertifiedLogDate,
			Message: "is not a valid MMDDYY day",
			Layer:   LayerShape,
		})
	}

	return details
}

// shapeMessage renders a tag failure as a human diagnostic.
func shapeMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "numeric":
		return "must contain only digits"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s constraint", fe.Tag())
	}
}
