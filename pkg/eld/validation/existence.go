package validation

import (
	"context"
	"errors"

	"github.com/fleetyard/eldcore/internal/logger"
	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/fleetyard/eldcore/pkg/fleet"
)

// Existence runs layer 3: every referenced fleet record must exist, be
// active, and belong to the submitting carrier. A registry outage skips
// the affected check with a warning instead of rejecting the event.
func (v *Validator) Existence(ctx context.Context, input *eld.EventInput, carrierID string) []eld.FieldError {
	var details []eld.FieldError

	if input.DriverID != "" {
		switch driver, err := v.registry.Driver(ctx, input.DriverID); {
		case errors.Is(err, fleet.ErrNotFound):
			details = append(details, existenceError("driver_id", input.DriverID, "unknown driver"))
		case errors.Is(err, fleet.ErrUnavailable):
			v.failOpen(ctx, "driver_id", err)
		case err != nil:
			v.failOpen(ctx, "driver_id", err)
		case driver.CarrierID != carrierID:
			details = append(details, existenceError("driver_id", input.DriverID, "driver does not belong to this carrier"))
		case !driver.Active:
			details = append(details, existenceError("driver_id", input.DriverID, "driver is not active"))
		}
	}

	switch vehicle, err := v.registry.Vehicle(ctx, input.VehicleID); {
	case errors.Is(err, fleet.ErrNotFound):
		details = append(details, existenceError("vehicle_id", input.VehicleID, "unknown vehicle"))
	case errors.Is(err, fleet.ErrUnavailable):
		v.failOpen(ctx, "vehicle_id", err)
	case err != nil:
		v.failOpen(ctx, "vehicle_id", err)
	case vehicle.CarrierID != carrierID:
		details = append(details, existenceError("vehicle_id", input.VehicleID, "vehicle does not belong to this carrier"))
	case !vehicle.Active:
		details = append(details, existenceError("vehicle_id", input.VehicleID, "vehicle is not active"))
	}

	if input.DeviceID == "" {
		details = append(details, existenceError("device_id", "", "is required"))
	} else {
		switch device, err := v.registry.Device(ctx, input.DeviceID); {
		case errors.Is(err, fleet.ErrNotFound):
			details = append(details, existenceError("device_id", input.DeviceID, "unknown device"))
		case errors.Is(err, fleet.ErrUnavailable):
			v.failOpen(ctx, "device_id", err)
		case err != nil:
			v.failOpen(ctx, "device_id", err)
		case device.CarrierID != carrierID:
			details = append(details, existenceError("device_id", input.DeviceID, "device is not registered to this carrier"))
		case !device.Active:
			details = append(details, existenceError("device_id", input.DeviceID, "device is not commissioned"))
		}
	}

	return details
}

func existenceError(field, value, message string) eld.FieldError {
	return eld.FieldError{Field: field, Value: value, Message: message, Layer: LayerExistence}
}

// failOpen logs a skipped cross-reference check. Better to accept the
// event than to lose compliance data to a registry outage.
func (v *Validator) failOpen(ctx context.Context, field string, err error) {
	logger.WarnCtx(ctx, "fleet registry unavailable, skipping cross-reference check",
		logger.Field(field),
		logger.Layer(LayerExistence),
		logger.Err(err),
	)
}
