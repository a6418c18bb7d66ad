// Package fleet holds the carrier registry: the carriers, drivers,
// vehicles, and devices that ingested events must reference. The
// ingestion pipeline treats these as slow-moving reference data and
// reads them through a circuit-broken Directory so registry outages
// degrade cross-reference validation instead of blocking ingestion.
package fleet

import (
	"time"
)

// Carrier is a motor carrier operating under a USDOT number.
type Carrier struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	Name        string `gorm:"not null;size:255" json:"name"`
	USDOTNumber string `gorm:"uniqueIndex;size:12" json:"usdot_number"`
	Active      bool   `gorm:"default:true" json:"active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Carrier.
func (Carrier) TableName() string {
	return "carriers"
}

// Driver is a driver account under a carrier. HomeTerminalTZ governs
// which calendar day an event belongs to: the 24-hour log period starts
// at midnight in this zone, not UTC.
type Driver struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	CarrierID string `gorm:"not null;size:36;index" json:"carrier_id"`

	Username      string `gorm:"uniqueIndex;not null;size:60" json:"username"`
	FirstName     string `gorm:"size:60" json:"first_name"`
	LastName      string `gorm:"size:60" json:"last_name"`
	LicenseNumber string `gorm:"size:60" json:"license_number"`
	LicenseState  string `gorm:"size:2" json:"license_state"`

	// HomeTerminalTZ is an IANA zone name, e.g. America/New_York.
	HomeTerminalTZ string `gorm:"not null;size:64;default:UTC" json:"home_terminal_tz"`

	// ExemptDriver marks short-haul drivers exempt from ELD use; their
	// events still ingest but certification rules differ downstream.
	ExemptDriver bool `gorm:"default:false" json:"exempt_driver"`

	Active bool `gorm:"default:true" json:"active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Driver.
func (Driver) TableName() string {
	return "drivers"
}

// Location resolves the driver's home-terminal timezone. Unknown or
// empty zone names fall back to UTC so log-date derivation stays
// deterministic; the zone is validated when the driver record is
// created, so a fallback here means hand-edited data.
func (d *Driver) Location() *time.Location {
	if d.HomeTerminalTZ == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(d.HomeTerminalTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Vehicle is a commercial motor vehicle under a carrier.
type Vehicle struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	CarrierID string `gorm:"not null;size:36;index" json:"carrier_id"`

	VIN             string `gorm:"size:17" json:"vin"`
	PowerUnitNumber string `gorm:"not null;size:10" json:"power_unit_number"`

	Active bool `gorm:"default:true" json:"active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Vehicle.
func (Vehicle) TableName() string {
	return "vehicles"
}

// Device is a registered ELD unit. A device reports for one vehicle at a
// time; VehicleID tracks the current pairing.
type Device struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	CarrierID string `gorm:"not null;size:36;index" json:"carrier_id"`

	SerialNumber string `gorm:"uniqueIndex;not null;size:60" json:"serial_number"`

	// RegistrationID is the FMCSA-assigned ELD registration identifier.
	RegistrationID string `gorm:"size:8" json:"registration_id"`

	VehicleID *string `gorm:"size:36" json:"vehicle_id,omitempty"`

	Active bool `gorm:"default:true" json:"active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Device.
func (Device) TableName() string {
	return "devices"
}

// AllModels returns the registry models for migration registration.
func AllModels() []any {
	return []any{
		&Carrier{},
		&Driver{},
		&Vehicle{},
		&Device{},
	}
}
