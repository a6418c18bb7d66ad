package eld

import (
	"time"
)

// Reservation is a pre-drawn block of sequence IDs handed to a device
// before it goes offline. Blocks are consumed, never returned: once the
// counter has moved past a block (or the block expires) the IDs inside
// it are gone for the log date.
type Reservation struct {
	ID        string    `json:"id"`
	StartID   int       `json:"start_id"`
	EndID     int       `json:"end_id"`
	NextID    int       `json:"next_id"` // next unconsumed ID within the block
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the block is past its expiry.
func (r *Reservation) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Exhausted reports whether every ID in the block has been issued.
func (r *Reservation) Exhausted() bool {
	return r.NextID > r.EndID
}

// Remaining returns how many IDs are still consumable in the block.
func (r *Reservation) Remaining() int {
	if r.Exhausted() {
		return 0
	}
	return r.EndID - r.NextID + 1
}

// SequenceIDState is the per-(device, log date) counter row. LastIssuedID
// is strictly monotonic; every allocation is a transactional
// compare-and-set against it.
type SequenceIDState struct {
	DeviceID string `gorm:"primaryKey;size:36" json:"device_id"`
	LogDate  string `gorm:"primaryKey;size:6" json:"log_date"`

	LastIssuedID int `gorm:"not null;default:0" json:"last_issued_id"`

	Reservations []Reservation `gorm:"serializer:json" json:"reservations,omitempty"`

	// Version guards the compare-and-set: every save increments it, and a
	// save conditioned on a stale version affects zero rows.
	Version int64 `gorm:"not null;default:0" json:"version"`

	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for SequenceIDState.
func (SequenceIDState) TableName() string {
	return "sequence_id_states"
}

// Scope returns the scope this counter serves.
func (s *SequenceIDState) Scope() Scope {
	return Scope{DeviceID: s.DeviceID, LogDate: s.LogDate}
}

// Exhausted reports whether the counter has hit the top of the 16-bit
// domain for this log date.
func (s *SequenceIDState) Exhausted() bool {
	return s.LastIssuedID >= MaxSequenceID
}

// ActiveReservation returns the first unexpired, unexhausted block, or
// nil when the device has nothing pre-drawn.
func (s *SequenceIDState) ActiveReservation(now time.Time) *Reservation {
	for i := range s.Reservations {
		r := &s.Reservations[i]
		if !r.Expired(now) && !r.Exhausted() {
			return r
		}
	}
	return nil
}

// PruneReservations drops expired and exhausted blocks. Returns how many
// were removed.
func (s *SequenceIDState) PruneReservations(now time.Time) int {
	kept := s.Reservations[:0]
	removed := 0
	for _, r := range s.Reservations {
		if r.Expired(now) || r.Exhausted() {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.Reservations = kept
	return removed
}
