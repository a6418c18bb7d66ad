package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetyard/eldcore/pkg/fleet"
)

// The registry read methods implement fleet.Lookup; the validation
// pipeline reaches them through the circuit-broken fleet.Directory.
var _ fleet.Lookup = (*Store)(nil)

// Driver loads a driver by ID.
func (s *Store) Driver(ctx context.Context, id string) (*fleet.Driver, error) {
	var driver fleet.Driver
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&driver).Error
	if err != nil {
		return nil, convertNotFoundError(err, fleet.ErrNotFound)
	}
	return &driver, nil
}

// Vehicle loads a vehicle by ID.
func (s *Store) Vehicle(ctx context.Context, id string) (*fleet.Vehicle, error) {
	var vehicle fleet.Vehicle
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&vehicle).Error
	if err != nil {
		return nil, convertNotFoundError(err, fleet.ErrNotFound)
	}
	return &vehicle, nil
}

// Device loads a device by ID.
func (s *Store) Device(ctx context.Context, id string) (*fleet.Device, error) {
	var device fleet.Device
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&device).Error
	if err != nil {
		return nil, convertNotFoundError(err, fleet.ErrNotFound)
	}
	return &device, nil
}

// Carrier loads a carrier by ID.
func (s *Store) Carrier(ctx context.Context, id string) (*fleet.Carrier, error) {
	var carrier fleet.Carrier
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&carrier).Error
	if err != nil {
		return nil, convertNotFoundError(err, fleet.ErrNotFound)
	}
	return &carrier, nil
}

// DriverByUsername resolves a driver account name for authentication.
func (s *Store) DriverByUsername(ctx context.Context, username string) (*fleet.Driver, error) {
	var driver fleet.Driver
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&driver).Error
	if err != nil {
		return nil, convertNotFoundError(err, fleet.ErrNotFound)
	}
	return &driver, nil
}

// DeviceBySerial resolves an ELD unit by its serial number.
func (s *Store) DeviceBySerial(ctx context.Context, serial string) (*fleet.Device, error) {
	var device fleet.Device
	err := s.db.WithContext(ctx).Where("serial_number = ?", serial).First(&device).Error
	if err != nil {
		return nil, convertNotFoundError(err, fleet.ErrNotFound)
	}
	return &device, nil
}

// CreateCarrier registers a carrier.
func (s *Store) CreateCarrier(ctx context.Context, carrier *fleet.Carrier) error {
	if carrier.ID == "" {
		carrier.ID = uuid.New().String()
	}
	if err := s.db.WithContext(ctx).Create(carrier).Error; err != nil {
		if isUniqueConstraintError(err) {
			return fleet.ErrDuplicate
		}
		return fmt.Errorf("failed to create carrier: %w", err)
	}
	return nil
}

// CreateDriver registers a driver. The home-terminal zone is validated
// here so log-date derivation downstream never has to guess.
func (s *Store) CreateDriver(ctx context.Context, driver *fleet.Driver) error {
	if driver.ID == "" {
		driver.ID = uuid.New().String()
	}
	if driver.HomeTerminalTZ == "" {
		driver.HomeTerminalTZ = "UTC"
	}
	if _, err := time.LoadLocation(driver.HomeTerminalTZ); err != nil {
		return fmt.Errorf("invalid home terminal timezone %q: %w", driver.HomeTerminalTZ, err)
	}
	if err := s.db.WithContext(ctx).Create(driver).Error; err != nil {
		if isUniqueConstraintError(err) {
			return fleet.ErrDuplicate
		}
		return fmt.Errorf("failed to create driver: %w", err)
	}
	return nil
}

// CreateVehicle registers a vehicle.
func (s *Store) CreateVehicle(ctx context.Context, vehicle *fleet.Vehicle) error {
	if vehicle.ID == "" {
		vehicle.ID = uuid.New().String()
	}
	if err := s.db.WithContext(ctx).Create(vehicle).Error; err != nil {
		if isUniqueConstraintError(err) {
			return fleet.ErrDuplicate
		}
		return fmt.Errorf("failed to create vehicle: %w", err)
	}
	return nil
}

// CreateDevice registers an ELD unit.
func (s *Store) CreateDevice(ctx context.Context, device *fleet.Device) error {
	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	if err := s.db.WithContext(ctx).Create(device).Error; err != nil {
		if isUniqueConstraintError(err) {
			return fleet.ErrDuplicate
		}
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

// ListDriversByCarrier returns a carrier's drivers.
func (s *Store) ListDriversByCarrier(ctx context.Context, carrierID string) ([]*fleet.Driver, error) {
	var drivers []*fleet.Driver
	err := s.db.WithContext(ctx).
		Where("carrier_id = ?", carrierID).
		Order("username ASC").
		Find(&drivers).Error
	if err != nil {
		return nil, err
	}
	return drivers, nil
}

// ListDevicesByCarrier returns a carrier's registered ELD units.
func (s *Store) ListDevicesByCarrier(ctx context.Context, carrierID string) ([]*fleet.Device, error) {
	var devices []*fleet.Device
	err := s.db.WithContext(ctx).
		Where("carrier_id = ?", carrierID).
		Order("serial_number ASC").
		Find(&devices).Error
	if err != nil {
		return nil, err
	}
	return devices, nil
}
