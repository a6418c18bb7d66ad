package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fleetyard/eldcore/pkg/eld"
)

// EnsureLogPeriod finds or creates the driver-day envelope. The
// (driver, log date) unique index makes the create race-safe: two
// concurrent first-events of the day both come back holding the same
// row, whoever lost the insert re-reads the winner's.
func (s *Store) EnsureLogPeriod(ctx context.Context, driverID, logDate, carrierID string) (*eld.LogPeriod, error) {
	var period eld.LogPeriod
	err := s.db.WithContext(ctx).
		Where("driver_id = ? AND log_date = ?", driverID, logDate).
		First(&period).Error
	if err == nil {
		return &period, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	period = eld.LogPeriod{
		ID:        uuid.New().String(),
		DriverID:  driverID,
		LogDate:   logDate,
		CarrierID: carrierID,
		Status:    eld.LogPeriodOpen,
	}
	if err := s.db.WithContext(ctx).Create(&period).Error; err != nil {
		if isUniqueConstraintError(err) {
			err = s.db.WithContext(ctx).
				Where("driver_id = ? AND log_date = ?", driverID, logDate).
				First(&period).Error
			if err != nil {
				return nil, err
			}
			return &period, nil
		}
		return nil, fmt.Errorf("failed to create log period: %w", err)
	}
	return &period, nil
}

// GetLogPeriod loads the envelope for a driver-day.
func (s *Store) GetLogPeriod(ctx context.Context, driverID, logDate string) (*eld.LogPeriod, error) {
	var period eld.LogPeriod
	err := s.db.WithContext(ctx).
		Where("driver_id = ? AND log_date = ?", driverID, logDate).
		First(&period).Error
	if err != nil {
		return nil, convertNotFoundError(err, eld.ErrLogPeriodNotFound)
	}
	return &period, nil
}

// GetLogPeriodByID loads the envelope by primary key.
func (s *Store) GetLogPeriodByID(ctx context.Context, id string) (*eld.LogPeriod, error) {
	var period eld.LogPeriod
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&period).Error
	if err != nil {
		return nil, convertNotFoundError(err, eld.ErrLogPeriodNotFound)
	}
	return &period, nil
}

// ListLogPeriodsByDriver returns a driver's envelopes in arrival order.
// Log dates are MMDDYY strings and do not sort chronologically across
// year boundaries, so ordering rides on creation time instead.
func (s *Store) ListLogPeriodsByDriver(ctx context.Context, driverID string, limit int) ([]*eld.LogPeriod, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	var periods []*eld.LogPeriod
	err := s.db.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Order("created_at DESC").
		Limit(limit).
		Find(&periods).Error
	if err != nil {
		return nil, err
	}
	return periods, nil
}

// CertifyLogPeriod marks the envelope certified as of the given instant
// and returns the updated row. First certification lands on certified,
// any later one on recertified, including after a rejection.
func (s *Store) CertifyLogPeriod(ctx context.Context, id string, at time.Time) (*eld.LogPeriod, error) {
	var period *eld.LogPeriod
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p eld.LogPeriod
		if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
			return convertNotFoundError(err, eld.ErrLogPeriodNotFound)
		}

		p.Status = p.CertifiedStatusAfter()
		p.CertifiedAt = &at
		p.RejectionReason = ""

		if err := tx.Model(&eld.LogPeriod{}).
			Where("id = ?", id).
			Select("Status", "CertifiedAt", "RejectionReason").
			Updates(&p).Error; err != nil {
			return fmt.Errorf("failed to certify log period: %w", err)
		}

		period = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return period, nil
}

// RejectLogPeriod marks a certified envelope rejected, recording why.
// Used when carrier review bounces a certification back to the driver.
func (s *Store) RejectLogPeriod(ctx context.Context, id string, reason string) (*eld.LogPeriod, error) {
	var period *eld.LogPeriod
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p eld.LogPeriod
		if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
			return convertNotFoundError(err, eld.ErrLogPeriodNotFound)
		}

		p.Status = eld.LogPeriodRejected
		p.RejectionReason = reason

		if err := tx.Model(&eld.LogPeriod{}).
			Where("id = ?", id).
			Select("Status", "RejectionReason").
			Updates(&p).Error; err != nil {
			return fmt.Errorf("failed to reject log period: %w", err)
		}

		period = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return period, nil
}
