package fleet

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeLookup struct {
	drivers  map[string]*Driver
	vehicles map[string]*Vehicle
	devices  map[string]*Device
	err      error
	calls    int
}

func (f *fakeLookup) Driver(_ context.Context, id string) (*Driver, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if d, ok := f.drivers[id]; ok {
		return d, nil
	}
	return nil, ErrNotFound
}

func (f *fakeLookup) Vehicle(_ context.Context, id string) (*Vehicle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vehicles[id]; ok {
		return v, nil
	}
	return nil, ErrNotFound
}

func (f *fakeLookup) Device(_ context.Context, id string) (*Device, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if d, ok := f.devices[id]; ok {
		return d, nil
	}
	return nil, ErrNotFound
}

func TestDirectoryHit(t *testing.T) {
	lookup := &fakeLookup{
		drivers: map[string]*Driver{"D1": {ID: "D1", CarrierID: "C1", Active: true}},
	}
	dir := NewDirectory(lookup)

	drv, err := dir.Driver(context.Background(), "D1")
	if err != nil {
		t.Fatal(err)
	}
	if drv.ID != "D1" {
		t.Errorf("driver id = %s, want D1", drv.ID)
	}
}

func TestDirectoryNotFoundPassesThrough(t *testing.T) {
	dir := NewDirectory(&fakeLookup{})

	_, err := dir.Driver(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatal("a definitive miss must not look like an outage")
	}
}

func TestDirectoryOutageMapsToUnavailable(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("dial tcp: connection refused")}
	dir := NewDirectory(lookup)

	_, err := dir.Vehicle(context.Background(), "V1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestDirectoryBreakerTrips(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("connection refused")}
	dir := NewDirectory(lookup)
	ctx := context.Background()

	for range 3 {
		if _, err := dir.Device(ctx, "DEV1"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("want ErrUnavailable, got %v", err)
		}
	}
	if lookup.calls != 3 {
		t.Fatalf("lookup calls = %d, want 3", lookup.calls)
	}

	// Breaker is open now: the registry must not be touched again.
	if _, err := dir.Device(ctx, "DEV1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable while open, got %v", err)
	}
	if lookup.calls != 3 {
		t.Errorf("open breaker still reached the registry (%d calls)", lookup.calls)
	}
}

func TestDirectoryMissesDoNotTripBreaker(t *testing.T) {
	lookup := &fakeLookup{}
	dir := NewDirectory(lookup)
	ctx := context.Background()

	for range 10 {
		if _, err := dir.Driver(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	}
	if lookup.calls != 10 {
		t.Errorf("lookup calls = %d, want 10: misses must keep the breaker closed", lookup.calls)
	}
}

func TestDriverLocation(t *testing.T) {
	tests := []struct {
		name string
		tz   string
		want string
	}{
		{"named zone", "America/New_York", "America/New_York"},
		{"empty falls back", "", "UTC"},
		{"garbage falls back", "Mars/Olympus_Mons", "UTC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Driver{HomeTerminalTZ: tt.tz}
			if got := d.Location().String(); got != tt.want {
				t.Errorf("location = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDriverLocationLogDateBoundary(t *testing.T) {
	// 2026-02-16T02:00Z is still Feb 15 at an eastern home terminal.
	d := &Driver{HomeTerminalTZ: "America/New_York"}
	ts := time.Date(2026, 2, 16, 2, 0, 0, 0, time.UTC)
	if got := ts.In(d.Location()).Format("010206"); got != "021526" {
		t.Errorf("log date = %s, want 021526", got)
	}
}
