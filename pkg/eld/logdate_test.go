package eld

import (
	"testing"
	"time"
)

func TestLogDateFor(t *testing.T) {
	eastern, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	tests := []struct {
		name string
		ts   time.Time
		loc  *time.Location
		want string
	}{
		{
			"afternoon eastern",
			time.Date(2026, 2, 15, 14, 30, 0, 0, eastern),
			eastern,
			"021526",
		},
		{
			"utc instant converted to home terminal",
			time.Date(2026, 2, 16, 3, 0, 0, 0, time.UTC), // 22:00 Feb 15 eastern
			eastern,
			"021526",
		},
		{
			"exactly midnight belongs to the new day",
			time.Date(2026, 2, 16, 0, 0, 0, 0, eastern),
			eastern,
			"021626",
		},
		{
			"one second before midnight stays on the old day",
			time.Date(2026, 2, 15, 23, 59, 59, 0, eastern),
			eastern,
			"021526",
		},
		{
			"nil location falls back to utc",
			time.Date(2026, 2, 15, 23, 0, 0, 0, time.UTC),
			nil,
			"021526",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LogDateFor(tt.ts, tt.loc); got != tt.want {
				t.Errorf("LogDateFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseLogDate(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"021526", false},
		{"123125", false},
		{"010100", false},
		{"131526", true},  // month 13
		{"023026", true},  // Feb 30
		{"0215026", true}, // too long
		{"21526", true},   // too short
		{"abcdef", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseLogDate(tt.input, time.UTC)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLogDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got := ValidLogDate(tt.input); got == tt.wantErr {
				t.Errorf("ValidLogDate(%q) = %v, wantErr %v", tt.input, got, tt.wantErr)
			}
		})
	}
}

func TestLogDateRange(t *testing.T) {
	eastern, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	start, end, err := LogDateRange("021526", eastern)
	if err != nil {
		t.Fatalf("LogDateRange: %v", err)
	}

	if !start.Equal(time.Date(2026, 2, 15, 0, 0, 0, 0, eastern)) {
		t.Errorf("start = %v, want midnight Feb 15 eastern", start)
	}
	if got := end.Sub(start); got != 24*time.Hour {
		t.Errorf("range length = %v, want 24h", got)
	}
}

func TestScopeKey(t *testing.T) {
	s := Scope{DeviceID: "DEV1", LogDate: "021526"}
	if got := s.Key(); got != "DEV1|021526" {
		t.Errorf("Key() = %q", got)
	}
	if s.String() != s.Key() {
		t.Error("String() should equal Key()")
	}
}
