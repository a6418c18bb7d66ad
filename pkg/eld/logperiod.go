package eld

import (
	"time"
)

// LogPeriodStatus is the lifecycle state of a driver-day record envelope.
type LogPeriodStatus string

const (
	LogPeriodOpen        LogPeriodStatus = "open"
	LogPeriodClosed      LogPeriodStatus = "closed"
	LogPeriodCertified   LogPeriodStatus = "certified"
	LogPeriodRecertified LogPeriodStatus = "recertified"
	LogPeriodRejected    LogPeriodStatus = "rejected"
)

// IsValid checks if the status is a known LogPeriodStatus.
func (s LogPeriodStatus) IsValid() bool {
	switch s {
	case LogPeriodOpen, LogPeriodClosed, LogPeriodCertified, LogPeriodRecertified, LogPeriodRejected:
		return true
	}
	return false
}

// LogPeriod is the driver-day envelope. Exactly one exists per
// (driver, log date); it is created lazily by the ingestion pipeline on
// the first event of the day and mutated only by certification handling.
type LogPeriod struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	DriverID  string `gorm:"not null;size:36;uniqueIndex:idx_log_periods_driver_date,priority:1" json:"driver_id"`
	LogDate   string `gorm:"not null;size:6;uniqueIndex:idx_log_periods_driver_date,priority:2" json:"log_date"`
	CarrierID string `gorm:"not null;size:36;index" json:"carrier_id"`

	Status     LogPeriodStatus `gorm:"not null;default:open;size:20" json:"status"`
	EventCount int             `gorm:"not null;default:0" json:"event_count"`

	CertifiedAt     *time.Time `json:"certified_at,omitempty"`
	RejectionReason string     `gorm:"size:255" json:"rejection_reason,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for LogPeriod.
func (LogPeriod) TableName() string {
	return "log_periods"
}

// CertifiedStatusAfter returns the status a certification event moves
// the period to: certified on first certification, recertified after.
// A rejected period that was certified before recertifies; CertifiedAt
// is the witness, it survives rejection.
func (p *LogPeriod) CertifiedStatusAfter() LogPeriodStatus {
	if p.CertifiedAt != nil || p.Status == LogPeriodCertified || p.Status == LogPeriodRecertified {
		return LogPeriodRecertified
	}
	return LogPeriodCertified
}
