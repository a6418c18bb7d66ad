// Package validation implements the three-layer admission pipeline for
// incoming events: shape (layer 1), FMCSA business rules (layer 2), and
// registry cross-reference (layer 3). Layers run in strict order and a
// failing layer stops the pipeline, so a malformed payload never reaches
// the registry and a rule violation is reported before an existence one.
//
// Layer 3 fails open: when the fleet registry cannot answer, the event is
// admitted with a warning log. Losing compliance data over a registry
// outage is worse than admitting an event the registry would have vouched
// for anyway.
package validation

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/fleetyard/eldcore/pkg/fleet"
)

// Validation layers, recorded on every FieldError.
const (
	LayerShape     = 1
	LayerRules     = 2
	LayerExistence = 3
)

// Layer-2 rule windows.
const (
	// TimestampPastWindow bounds how old an event may claim to be.
	// Devices resync up to 30 days of offline backlog.
	TimestampPastWindow = 30 * 24 * time.Hour

	// TimestampFutureSkew tolerates device clock drift ahead of the
	// server.
	TimestampFutureSkew = 5 * time.Minute

	// CertificationWindowDays is how far back a driver may certify a log
	// date, per 49 CFR 395.
	CertificationWindowDays = 13
)

// RegistryLookup is the fleet read surface layer 3 consults. Satisfied
// by *fleet.Directory.
type RegistryLookup interface {
	Driver(ctx context.Context, id string) (*fleet.Driver, error)
	Vehicle(ctx context.Context, id string) (*fleet.Vehicle, error)
	Device(ctx context.Context, id string) (*fleet.Device, error)
}

// Validator runs the admission pipeline. Safe for concurrent use.
type Validator struct {
	validate *validator.Validate
	registry RegistryLookup
	now      func() time.Time
}

// New builds a validator over the given registry.
func New(registry RegistryLookup) *Validator {
	v := validator.New()

	// Report JSON field names, not Go struct names, in diagnostics.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{
		validate: v,
		registry: registry,
		now:      time.Now,
	}
}

// Validate runs the three layers in order, short-circuiting on the first
// layer that fails. prior is the scope's current chain head (nil for the
// first event of a log date); layer 2 checks counter monotonicity against
// it. Returns nil when the event is admissible.
func (v *Validator) Validate(ctx context.Context, input *eld.EventInput, carrierID string, prior *eld.Event) error {
	if details := v.Shape(input); len(details) > 0 {
		return eld.NewValidationError(details...)
	}
	if details := v.Rules(input, prior); len(details) > 0 {
		return eld.NewValidationError(details...)
	}
	if details := v.Existence(ctx, input, carrierID); len(details) > 0 {
		return eld.NewValidationError(details...)
	}
	return nil
}
