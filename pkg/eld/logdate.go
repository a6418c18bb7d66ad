package eld

import (
	"fmt"
	"time"
)

// LogDateLayout is the MMDDYY layout used throughout the FMCSA wire
// protocol for record days.
const LogDateLayout = "010206"

// Scope is the (device, log date) pair that owns a sequence-ID counter
// and a hash chain. Counters and chains reset at the log-date boundary.
type Scope struct {
	DeviceID string
	LogDate  string
}

// Key returns a stable string form suitable for map keys and locks.
func (s Scope) Key() string {
	return s.DeviceID + "|" + s.LogDate
}

func (s Scope) String() string {
	return s.Key()
}

// LogDateFor converts an event timestamp to the MMDDYY record day in the
// driver's home-terminal timezone. A timestamp exactly at midnight
// belongs to the new day.
func LogDateFor(ts time.Time, homeTerminal *time.Location) string {
	if homeTerminal == nil {
		homeTerminal = time.UTC
	}
	return ts.In(homeTerminal).Format(LogDateLayout)
}

// ParseLogDate parses an MMDDYY record day. The returned time is
// midnight of that day in the given timezone.
func ParseLogDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(LogDateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid log date %q: expected MMDDYY: %w", s, err)
	}
	return t, nil
}

// ValidLogDate reports whether s is a well-formed MMDDYY day.
func ValidLogDate(s string) bool {
	_, err := ParseLogDate(s, time.UTC)
	return err == nil
}

// LogDateRange returns the [start, end) instants covering the record day
// in the given timezone. Used to build the partition-range predicate for
// scope queries.
func LogDateRange(logDate string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := ParseLogDate(logDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}
