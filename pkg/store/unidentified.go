package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fleetyard/eldcore/pkg/eld"
)

// CreateUnidentifiedRecord opens a review record for driving time with
// no logged-in driver.
func (s *Store) CreateUnidentifiedRecord(ctx context.Context, rec *eld.UnidentifiedDrivingRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = eld.UnidentifiedPending
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// GetUnidentifiedRecord loads a review record.
func (s *Store) GetUnidentifiedRecord(ctx context.Context, id string) (*eld.UnidentifiedDrivingRecord, error) {
	var rec eld.UnidentifiedDrivingRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		return nil, convertNotFoundError(err, eld.ErrUnidentifiedNotFound)
	}
	return &rec, nil
}

// UnidentifiedFilter narrows a review queue listing. Zero values mean
// no filter on that column.
type UnidentifiedFilter struct {
	Status    eld.UnidentifiedStatus
	VehicleID string
	Limit     int
	Offset    int
}

// ListUnidentifiedRecords pages a carrier's review queue newest first,
// optionally filtered by status and vehicle.
func (s *Store) ListUnidentifiedRecords(ctx context.Context, carrierID string, f UnidentifiedFilter) ([]*eld.UnidentifiedDrivingRecord, error) {
	limit := f.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	db := s.db.WithContext(ctx).Where("carrier_id = ?", carrierID)
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.VehicleID != "" {
		db = db.Where("vehicle_id = ?", f.VehicleID)
	}

	var recs []*eld.UnidentifiedDrivingRecord
	err := db.Order("started_at DESC").
		Limit(limit).
		Offset(f.Offset).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// FindOpenUnidentifiedByDevice returns the device's most recent
// still-open span, or nil when nothing is open. The pipeline closes it
// when the vehicle stops moving or a driver logs in.
func (s *Store) FindOpenUnidentifiedByDevice(ctx context.Context, deviceID string) (*eld.UnidentifiedDrivingRecord, error) {
	var rec eld.UnidentifiedDrivingRecord
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND ended_at IS NULL AND status = ?", deviceID, eld.UnidentifiedPending).
		Order("started_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CloseUnidentifiedRecord stamps the end of an open span and its
// accumulated mileage. The record stays pending for carrier review.
func (s *Store) CloseUnidentifiedRecord(ctx context.Context, id string, endedAt time.Time, miles int) error {
	res := s.db.WithContext(ctx).Model(&eld.UnidentifiedDrivingRecord{}).
		Where("id = ? AND ended_at IS NULL", id).
		Updates(map[string]any{
			"ended_at":          endedAt,
			"accumulated_miles": miles,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish missing from already closed; the latter is fine.
		_, err := s.GetUnidentifiedRecord(ctx, id)
		return err
	}
	return nil
}

// ClaimUnidentifiedRecord assigns pending unidentified time to a
// driver. Compare-and-set on pending: a second reviewer racing on the
// same record gets eld.ErrUnidentifiedNotPending.
func (s *Store) ClaimUnidentifiedRecord(ctx context.Context, id, driverID string, claimedEventID *string, notes string) error {
	res := s.db.WithContext(ctx).Model(&eld.UnidentifiedDrivingRecord{}).
		Where("id = ? AND status = ?", id, eld.UnidentifiedPending).
		Updates(map[string]any{
			"status":               eld.UnidentifiedClaimed,
			"claimed_by_driver_id": driverID,
			"claimed_event_id":     claimedEventID,
			"review_notes":         notes,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetUnidentifiedRecord(ctx, id); err != nil {
			return err
		}
		return eld.ErrUnidentifiedNotPending
	}
	return nil
}

// RejectUnidentifiedRecord marks pending unidentified time as reviewed
// and not attributable to any driver.
func (s *Store) RejectUnidentifiedRecord(ctx context.Context, id, notes string) error {
	res := s.db.WithContext(ctx).Model(&eld.UnidentifiedDrivingRecord{}).
		Where("id = ? AND status = ?", id, eld.UnidentifiedPending).
		Updates(map[string]any{
			"status":       eld.UnidentifiedRejected,
			"review_notes": notes,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetUnidentifiedRecord(ctx, id); err != nil {
			return err
		}
		return eld.ErrUnidentifiedNotPending
	}
	return nil
}
