package validation

import (
	"fmt"
	"time"

	"github.com/fleetyard/eldcore/pkg/eld"
)

// Duty-status event codes (event type 1), per the FMCSA event table:
// 1 off-duty, 2 sleeper berth, 3 driving, 4 on-duty not driving.
const (
	dutyStatusCodeMin = 1
	dutyStatusCodeMax = 4
)

// Rules runs layer 2: FMCSA business rules dispatched by event type,
// plus the cross-type timestamp window and counter monotonicity against
// the scope's current head event. Engine power-off pairing is checked
// asynchronously at certification time (see UnpairedPowerEvents), not
// here: the matching event legitimately arrives up to a day later.
func (v *Validator) Rules(input *eld.EventInput, prior *eld.Event) []eld.FieldError {
	var details []eld.FieldError
	now := v.now()

	if input.EventTimestamp.Before(now.Add(-TimestampPastWindow)) {
		details = append(details, eld.FieldError{
			Field:   "event_timestamp",
			Value:   input.EventTimestamp.Format(time.RFC3339),
			Message: "is older than the 30-day ingestion window",
			Layer:   LayerRules,
		})
	}
	if input.EventTimestamp.After(now.Add(TimestampFutureSkew)) {
		details = append(details, eld.FieldError{
			Field:   "event_timestamp",
			Value:   input.EventTimestamp.Format(time.RFC3339),
			Message: "is more than 5 minutes in the future",
			Layer:   LayerRules,
		})
	}

	if input.DriverID == "" && input.RecordOrigin != eld.OriginUnidentified {
		details = append(details, eld.FieldError{
			Field:   "driver_id",
			Message: "is required unless the record origin is unidentified",
			Layer:   LayerRules,
		})
	}

	// Monotonicity is a property of the device's own recording stream.
	// Carrier edits attribute historical spans whose counters predate
	// the scope's current head, so they are exempt.
	if prior != nil && input.RecordOrigin != eld.OriginCarrierEdit {
		if input.AccumulatedMiles < prior.AccumulatedMiles {
			details = append(details, eld.FieldError{
				Field:   "accumulated_miles",
				Value:   fmt.Sprintf("%d", input.AccumulatedMiles),
				Message: fmt.Sprintf("decreased from %d within the log date", prior.AccumulatedMiles),
				Layer:   LayerRules,
			})
		}
		if input.ElapsedEngineHours < prior.ElapsedEngineHours {
			details = append(details, eld.FieldError{
				Field:   "elapsed_engine_hours",
				Value:   fmt.Sprintf("%d", input.ElapsedEngineHours),
				Message: fmt.Sprintf("decreased from %d within the log date", prior.ElapsedEngineHours),
				Layer:   LayerRules,
			})
		}
	}

	switch input.EventType {
	case eld.EventTypeDutyStatus:
		if input.EventCode < dutyStatusCodeMin || input.EventCode > dutyStatusCodeMax {
			details = append(details, eld.FieldError{
				Field:   "event_code",
				Value:   fmt.Sprintf("%d", input.EventCode),
				Message: "duty-status change requires a duty-status code 1-4",
				Layer:   LayerRules,
			})
		}
	case eld.EventTypeCertification:
		details = append(details, v.certificationRules(input, now)...)
	case eld.EventTypeLogin:
		if input.DriverID == "" {
			details = append(details, eld.FieldError{
				Field:   "driver_id",
				Message: "login and logout events require a driver account",
				Layer:   LayerRules,
			})
		}
	}

	return details
}

// certificationRules checks the certified log date against the 13-day
// window of 49 CFR 395.8: a driver certifies today's or a recent past
// day, never a future one.
func (v *Validator) certificationRules(input *eld.EventInput, now time.Time) []eld.FieldError {
	if input.CertifiedLogDate == "" {
		return []eld.FieldError{{
			Field:   "certified_log_date",
			Message: "certification events require a certified log date",
			Layer:   LayerRules,
		}}
	}

	day, err := eld.ParseLogDate(input.CertifiedLogDate, time.UTC)
	if err != nil {
		// Layer 1 already rejects malformed days; guard anyway.
		return []eld.FieldError{{
			Field:   "certified_log_date",
			Value:   input.CertifiedLogDate,
			Message: "is not a valid MMDDYY day",
			Layer:   LayerRules,
		}}
	}

	today := now.UTC().Truncate(24 * time.Hour)
	if day.After(today) {
		return []eld.FieldError{{
			Field:   "certified_log_date",
			Value:   input.CertifiedLogDate,
			Message: "cannot be in the future",
			Layer:   LayerRules,
		}}
	}
	if day.Before(today.AddDate(0, 0, -CertificationWindowDays)) {
		return []eld.FieldError{{
			Field:   "certified_log_date",
			Value:   input.CertifiedLogDate,
			Message: fmt.Sprintf("is outside the %d-day certification window", CertificationWindowDays),
			Layer:   LayerRules,
		}}
	}
	return nil
}

// UnpairedPowerEvents scans a log date's events for engine power-ups with
// no matching shut-down within 24 hours. Run at certification time, when
// the day is complete; a power-up near midnight pairs with a shut-down on
// the next log date, so only pairs overdue by the full window are
// reported.
func UnpairedPowerEvents(events []*eld.Event, now time.Time) []*eld.Event {
	var open []*eld.Event
	var unpaired []*eld.Event

	for _, e := range events {
		if e.EventType != eld.EventTypeEnginePower || !e.IsActive() {
			continue
		}
		if isPowerUp(e.EventCode) {
			open = append(open, e)
			continue
		}
		// Shut-down closes the most recent open power-up.
		if len(open) > 0 {
			open = open[:len(open)-1]
		}
	}

	for _, e := range open {
		if now.Sub(e.EventTimestamp) > 24*time.Hour {
			unpaired = append(unpaired, e)
		}
	}
	return unpaired
}

// Engine power event codes: 1 and 2 are power-up (conventional and
// reduced precision), 3 and 4 the matching shut-downs.
func isPowerUp(code int) bool {
	return code == 1 || code == 2
}
