package eld

import (
	"time"
)

// UnidentifiedReviewWindow is how long a carrier has to assign or
// reject unidentified driving time before it becomes a compliance
// violation (49 CFR 395.32).
const UnidentifiedReviewWindow = 8 * 24 * time.Hour

// UnidentifiedStatus is the review state of an unidentified driving record.
type UnidentifiedStatus string

const (
	UnidentifiedPending  UnidentifiedStatus = "pending"
	UnidentifiedClaimed  UnidentifiedStatus = "claimed"
	UnidentifiedRejected UnidentifiedStatus = "rejected"
)

// IsValid checks if the status is a known UnidentifiedStatus.
func (s UnidentifiedStatus) IsValid() bool {
	switch s {
	case UnidentifiedPending, UnidentifiedClaimed, UnidentifiedRejected:
		return true
	}
	return false
}

// UnidentifiedDrivingRecord tracks engine-on movement recorded while no
// driver was logged in. Created automatically when a driving event
// arrives with the unidentified record origin; a carrier reviewer later
// claims it for a driver or rejects it.
type UnidentifiedDrivingRecord struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	VehicleID string `gorm:"not null;size:36;index" json:"vehicle_id"`
	DeviceID  string `gorm:"not null;size:36" json:"device_id"`
	CarrierID string `gorm:"not null;size:36;index" json:"carrier_id"`

	StartedAt        time.Time  `gorm:"not null" json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	AccumulatedMiles int        `gorm:"not null;default:0" json:"accumulated_miles"`

	// EventID references the unidentified driving event that opened
	// this record.
	EventID string `gorm:"not null;size:36" json:"event_id"`

	Status            UnidentifiedStatus `gorm:"not null;default:pending;size:20;index" json:"status"`
	ClaimedByDriverID *string            `gorm:"size:36" json:"claimed_by_driver_id,omitempty"`
	ClaimedEventID    *string            `gorm:"size:36" json:"claimed_event_id,omitempty"`
	ReviewNotes       string             `gorm:"size:1024" json:"review_notes,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for UnidentifiedDrivingRecord.
func (UnidentifiedDrivingRecord) TableName() string {
	return "unidentified_driving_records"
}

// ComplianceViolation reports whether the record has sat pending past
// the review window.
func (r *UnidentifiedDrivingRecord) ComplianceViolation(now time.Time) bool {
	return r.Status == UnidentifiedPending && now.Sub(r.StartedAt) > UnidentifiedReviewWindow
}
