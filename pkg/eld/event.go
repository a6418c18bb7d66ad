package eld

import (
	"fmt"
	"time"
)

// Sequence IDs live in the 16-bit FMCSA domain. MinSequenceID is the first
// ID issued in a fresh (device, log date) scope; allocation past
// MaxSequenceID fails with SEQUENCE_EXHAUSTED.
const (
	MinSequenceID = 1
	MaxSequenceID = 65535
)

// MaxLocationLength bounds the free-text location description per
// FMCSA Appendix A.
const MaxLocationLength = 60

// EventType is the FMCSA event type code (table 6 of Appendix A).
type EventType int

const (
	EventTypeDutyStatus    EventType = 1 // Change in driver's duty status
	EventTypeIntermediate  EventType = 2 // Intermediate log while driving
	EventTypeSpecialDuty   EventType = 3 // Personal use / yard moves
	EventTypeCertification EventType = 4 // Driver's certification of a daily record
	EventTypeLogin         EventType = 5 // Driver login/logout activity
	EventTypeEnginePower   EventType = 6 // Engine power-up / shut-down
	EventTypeMalfunction   EventType = 7 // Malfunction / data diagnostic
)

// IsValid checks whether the type is within the FMCSA domain.
func (t EventType) IsValid() bool {
	return t >= EventTypeDutyStatus && t <= EventTypeMalfunction
}

func (t EventType) String() string {
	switch t {
	case EventTypeDutyStatus:
		return "duty_status"
	case EventTypeIntermediate:
		return "intermediate"
	case EventTypeSpecialDuty:
		return "special_duty"
	case EventTypeCertification:
		return "certification"
	case EventTypeLogin:
		return "login"
	case EventTypeEnginePower:
		return "engine_power"
	case EventTypeMalfunction:
		return "malfunction"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// RecordOrigin identifies who produced the event record.
type RecordOrigin int

const (
	OriginAuto         RecordOrigin = 1 // Automatically recorded by the device
	OriginDriver       RecordOrigin = 2 // Entered or edited by the driver
	OriginCarrierEdit  RecordOrigin = 3 // Edit requested by carrier personnel
	OriginUnidentified RecordOrigin = 4 // Assumed from the unidentified driver profile
)

// IsValid checks whether the origin is within the FMCSA domain.
func (o RecordOrigin) IsValid() bool {
	return o >= OriginAuto && o <= OriginUnidentified
}

func (o RecordOrigin) String() string {
	switch o {
	case OriginAuto:
		return "auto"
	case OriginDriver:
		return "driver"
	case OriginCarrierEdit:
		return "carrier_edit"
	case OriginUnidentified:
		return "unidentified"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// RecordStatus tracks the edit lifecycle of an immutable event record.
// Edits never mutate payload fields; they flip the status and link a
// replacement record.
type RecordStatus int

const (
	StatusActive                  RecordStatus = 1
	StatusInactiveChanged         RecordStatus = 2
	StatusInactiveChangeRequested RecordStatus = 3
	StatusInactiveChangeRejected  RecordStatus = 4
)

// IsValid checks whether the status is within the FMCSA domain.
func (s RecordStatus) IsValid() bool {
	return s >= StatusActive && s <= StatusInactiveChangeRejected
}

func (s RecordStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactiveChanged:
		return "inactive_changed"
	case StatusInactiveChangeRequested:
		return "inactive_change_requested"
	case StatusInactiveChangeRejected:
		return "inactive_change_rejected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Event is a single immutable ELD record. Once committed it is never
// mutated except for the record status transition on edits.
//
// Rows live in the month-partitioned eld_events table; the composite
// unique index on (device_id, log_date, sequence_id) only covers
// active records so an edited record's slot can be re-occupied by its
// replacement.
type Event struct {
	ID         string `gorm:"primaryKey;size:36" json:"id"`
	SequenceID int    `gorm:"not null;index:idx_events_period_seq,priority:2" json:"sequence_id"`

	EventType EventType `gorm:"not null;index:idx_events_driver_type_time,priority:2" json:"event_type"`
	EventCode int       `gorm:"not null" json:"event_code"`

	EventTimestamp time.Time `gorm:"not null;index:idx_events_driver_time,priority:2,sort:desc;index:idx_events_driver_type_time,priority:3,sort:desc" json:"event_timestamp"`
	LogDate        string    `gorm:"not null;size:6" json:"log_date"`

	DriverID    string `gorm:"size:36;index:idx_events_driver_time,priority:1;index:idx_events_driver_type_time,priority:1" json:"driver_id,omitempty"`
	VehicleID   string `gorm:"not null;size:36" json:"vehicle_id"`
	DeviceID    string `gorm:"not null;size:36" json:"device_id"`
	CarrierID   string `gorm:"not null;size:36;index" json:"carrier_id"`
	LogPeriodID string `gorm:"size:36;index:idx_events_period_seq,priority:1" json:"log_period_id"`

	RecordOrigin RecordOrigin `gorm:"not null" json:"record_origin"`
	RecordStatus RecordStatus `gorm:"not null;default:1" json:"record_status"`

	AccumulatedMiles    int      `gorm:"not null" json:"accumulated_miles"`
	ElapsedEngineHours  int      `gorm:"not null" json:"elapsed_engine_hours"`
	Latitude            *float64 `json:"latitude,omitempty"`
	Longitude           *float64 `json:"longitude,omitempty"`
	LocationDescription string   `gorm:"size:60" json:"location_description,omitempty"`

	MalfunctionIndicator    bool `gorm:"default:false" json:"malfunction_indicator"`
	DataDiagnosticIndicator bool `gorm:"default:false" json:"data_diagnostic_indicator"`

	// CertifiedLogDate is only set on certification events (type 4)
	// and names the MMDDYY record day being certified.
	CertifiedLogDate string `gorm:"size:6" json:"certified_log_date,omitempty"`

	ContentHash       string  `gorm:"not null;size:64" json:"content_hash"`
	ChainHash         string  `gorm:"not null;size:64" json:"chain_hash"`
	PreviousChainHash *string `gorm:"size:64" json:"previous_chain_hash,omitempty"`
	CheckValue        int     `gorm:"not null;default:0" json:"check_value"`

	// RequiresDriverReview marks carrier-side edits the driver has not
	// yet confirmed; sync delivery surfaces these to the device.
	RequiresDriverReview bool `gorm:"default:false" json:"requires_driver_review,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`
}

// TableName returns the table name for Event.
func (Event) TableName() string {
	return "eld_events"
}

// Scope returns the (device, log date) pair the event's sequence ID and
// chain live in.
func (e *Event) Scope() Scope {
	return Scope{DeviceID: e.DeviceID, LogDate: e.LogDate}
}

// IsActive reports whether the record participates in the hash chain.
func (e *Event) IsActive() bool {
	return e.RecordStatus == StatusActive
}

// IsServerEdit reports whether the record is a server-side change the
// device may not have seen yet (sync delivery predicate).
func (e *Event) IsServerEdit() bool {
	return e.RecordStatus != StatusActive || e.RecordOrigin == OriginCarrierEdit
}

// EventInput is the wire shape of a submitted event, before sequence
// allocation and hashing. Binding-level (layer 1) constraints are
// expressed as validate tags; layer 2 and 3 run in the validation
// pipeline.
type EventInput struct {
	EventType EventType `json:"event_type" validate:"required,min=1,max=7"`
	EventCode int       `json:"event_code" validate:"min=0,max=9"`

	EventTimestamp time.Time `json:"event_timestamp" validate:"required"`

	// SequenceID, when present, is the device-proposed ID for events
	// recorded offline. Absent means the allocator mints the next ID.
	SequenceID *int `json:"sequence_id,omitempty" validate:"omitempty,min=1,max=65535"`

	// LogDate is optional; the server derives it from the timestamp in
	// the driver's home-terminal timezone and rejects a mismatch.
	LogDate string `json:"log_date,omitempty" validate:"omitempty,len=6,numeric"`

	DriverID  string `json:"driver_id,omitempty" validate:"omitempty,max=36"`
	VehicleID string `json:"vehicle_id" validate:"required,max=36"`
	DeviceID  string `json:"device_id,omitempty" validate:"omitempty,max=36"`

	RecordOrigin RecordOrigin `json:"record_origin" validate:"required,min=1,max=4"`
	RecordStatus RecordStatus `json:"record_status,omitempty" validate:"omitempty,min=1,max=4"`

	AccumulatedMiles    int      `json:"accumulated_miles" validate:"min=0"`
	ElapsedEngineHours  int      `json:"elapsed_engine_hours" validate:"min=0"`
	Latitude            *float64 `json:"latitude,omitempty" validate:"omitempty,min=-90,max=90"`
	Longitude           *float64 `json:"longitude,omitempty" validate:"omitempty,min=-180,max=180"`
	LocationDescription string   `json:"location_description,omitempty" validate:"max=60"`

	MalfunctionIndicator    bool `json:"malfunction_indicator,omitempty"`
	DataDiagnosticIndicator bool `json:"data_diagnostic_indicator,omitempty"`

	CertifiedLogDate string `json:"certified_log_date,omitempty" validate:"omitempty,len=6,numeric"`
}

// Normalize fills derived defaults that binding leaves zero.
func (in *EventInput) Normalize() {
	if in.RecordStatus == 0 {
		in.RecordStatus = StatusActive
	}
}
