package config

import (
	"fmt"
	"testing"
	"time"
)

func TestLoadWindows(t *testing.T) {
	// Verify that the hour window is shorter than the day window
	if HourWindow >= DayWindow {
		t.Errorf("HourWindow (%v) should be less than DayWindow (%v)", HourWindow, DayWindow)
	}

	// Verify SQL strings match Go durations
	tests := []struct {
		name        string
		duration    time.Duration
		sqlInterval string
	}{
		{"day", DayWindow, SQLDayWindowInterval},
		{"hour", HourWindow, SQLHourWindowInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Logf("SQL interval: %s, Go duration: %v", tt.sqlInterval, tt.duration)

			n, err := parseInterval(tt.sqlInterval)
			if err != nil {
				t.Fatalf("Failed to parse SQL interval %q: %v", tt.sqlInterval, err)
			}
			if n != tt.duration {
				t.Errorf("SQL interval %q (%v) does not match Go duration %v",
					tt.sqlInterval, n, tt.duration)
			}
		})
	}
}

func TestRateLimitDefaults(t *testing.T) {
	if DefaultIngestBurst < DefaultIngestRatePerSecond {
		t.Errorf("DefaultIngestBurst (%d) should be at least DefaultIngestRatePerSecond (%d)",
			DefaultIngestBurst, DefaultIngestRatePerSecond)
	}
}

// parseInterval parses a PostgreSQL interval string like "24 hours"
func parseInterval(s string) (time.Duration, error) {
	var value int
	var unit string
	_, err := fmt.Sscanf(s, "%d %s", &value, &unit)
	if err != nil {
		return 0, err
	}

	switch unit {
	case "hours", "hour":
		return time.Duration(value) * time.Hour, nil
	case "minutes", "minute":
		return time.Duration(value) * time.Minute, nil
	default:
		return 0, fmt.Errorf("unknown unit: %s", unit)
	}
}
