package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fleetyard/eldcore/internal/logger"
)

// ErrNotFound marks a definitive miss: the registry answered and the
// record does not exist.
var ErrNotFound = errors.New("fleet record not found")

// ErrUnavailable marks a lookup outage: the registry could not answer,
// so cross-reference checks fail open.
var ErrUnavailable = errors.New("fleet directory unavailable")

// ErrDuplicate marks a write that collides with an existing record on a
// unique field (USDOT number, username, device serial).
var ErrDuplicate = errors.New("fleet record already exists")

// Lookup is the registry read surface the directory wraps. Implemented
// by the event store's fleet queries.
type Lookup interface {
	Driver(ctx context.Context, id string) (*Driver, error)
	Vehicle(ctx context.Context, id string) (*Vehicle, error)
	Device(ctx context.Context, id string) (*Device, error)
}

// Directory fronts the registry with a circuit breaker. A definitive
// not-found passes through untouched and never counts against the
// breaker; infrastructure failures trip it after three consecutive
// losses, after which lookups return ErrUnavailable immediately until
// the registry recovers.
type Directory struct {
	lookup  Lookup
	breaker *gobreaker.CircuitBreaker
}

// NewDirectory wraps the lookup with the registry circuit breaker.
func NewDirectory(lookup Lookup) *Directory {
	settings := gobreaker.Settings{
		Name:        "fleet-directory",
		MaxRequests: 2,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("fleet directory breaker state changed",
				logger.Component(name),
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &Directory{
		lookup:  lookup,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Driver looks up a driver by ID.
func (d *Directory) Driver(ctx context.Context, id string) (*Driver, error) {
	v, err := d.breaker.Execute(func() (interface{}, error) {
		return d.lookup.Driver(ctx, id)
	})
	if err != nil {
		return nil, d.translate(err)
	}
	return v.(*Driver), nil
}

// Vehicle looks up a vehicle by ID.
func (d *Directory) Vehicle(ctx context.Context, id string) (*Vehicle, error) {
	v, err := d.breaker.Execute(func() (interface{}, error) {
		return d.lookup.Vehicle(ctx, id)
	})
	if err != nil {
		return nil, d.translate(err)
	}
	return v.(*Vehicle), nil
}

// Device looks up a device by ID.
func (d *Directory) Device(ctx context.Context, id string) (*Device, error) {
	v, err := d.breaker.Execute(func() (interface{}, error) {
		return d.lookup.Device(ctx, id)
	})
	if err != nil {
		return nil, d.translate(err)
	}
	return v.(*Device), nil
}

// translate maps breaker and infrastructure errors to ErrUnavailable,
// keeping definitive misses distinct.
func (d *Directory) translate(err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
