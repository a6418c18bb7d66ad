package eld

import (
	"encoding/json"
	"time"
)

// DLQStatus is the lifecycle state of a dead-letter entry.
type DLQStatus string

const (
	DLQPending   DLQStatus = "pending"
	DLQRetrying  DLQStatus = "retrying"
	DLQResolved  DLQStatus = "resolved"
	DLQDiscarded DLQStatus = "discarded"
)

// IsValid checks if the status is a known DLQStatus.
func (s DLQStatus) IsValid() bool {
	switch s {
	case DLQPending, DLQRetrying, DLQResolved, DLQDiscarded:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s DLQStatus) Terminal() bool {
	return s == DLQResolved || s == DLQDiscarded
}

// DLQEntry holds an event payload that could not be ingested after
// retries. Only pending entries are retry- or discard-eligible; resolved
// and discarded are terminal.
type DLQEntry struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	OriginalPayload json.RawMessage `gorm:"not null" json:"original_payload,omitempty"`

	SourceDeviceID string `gorm:"not null;size:36;index" json:"source_device_id"`
	SourceEndpoint string `gorm:"not null;size:40;index" json:"source_endpoint"`
	CarrierID      string `gorm:"size:36;index" json:"carrier_id"`
	BatchIndex     *int   `json:"batch_index,omitempty"`

	FailureReason string `gorm:"not null;size:1024" json:"failure_reason"`
	ErrorCode     string `gorm:"size:40" json:"error_code,omitempty"`

	RetryCount     int       `gorm:"not null;default:0" json:"retry_count"`
	FirstFailureAt time.Time `gorm:"not null" json:"first_failure_at"`
	LastFailureAt  time.Time `gorm:"not null" json:"last_failure_at"`

	Status          DLQStatus `gorm:"not null;default:pending;size:20;index" json:"status"`
	ResolvedBy      string    `gorm:"size:36" json:"resolved_by,omitempty"`
	ResolvedEventID *string   `gorm:"size:36" json:"resolved_event_id,omitempty"`
	ResolutionNotes string    `gorm:"size:1024" json:"resolution_notes,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for DLQEntry.
func (DLQEntry) TableName() string {
	return "dlq_entries"
}

// DLQStats summarizes queue depth per status for the admin surface.
type DLQStats struct {
	Pending                int  `json:"pending"`
	Retrying               int  `json:"retrying"`
	Resolved               int  `json:"resolved"`
	Discarded              int  `json:"discarded"`
	Total                  int  `json:"total"`
	AlertThresholdExceeded bool `json:"alert_threshold_exceeded"`
}
