package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/kamipay/pixrouter/internal/types"
)

func TestTimeWindowOvernight(t *testing.T) {
	// 22:00-06:00 in São Paulo crosses midnight.
	cfg := map[string]any{
		"type": "TIME_WINDOW", "tz": "America/Sao_Paulo",
		"start": "22:00", "end": "06:00",
	}

	tests := []struct {
		name string
		now  string
		want bool
	}{
		{"late evening", "2026-08-21T23:30:00-03:00", true},
		{"early morning", "2026-08-22T05:59:59-03:00", true},
		{"at start", "2026-08-21T22:00:00-03:00", true},
		{"at end", "2026-08-22T06:00:00-03:00", true},
		{"midday", "2026-08-21T12:00:00-03:00", false},
		{"just before start", "2026-08-21T21:59:59-03:00", false},
		{"just after end", "2026-08-22T06:00:01-03:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustBuild(t, cfg)
			now, err := time.Parse(time.RFC3339, tt.now)
			if err != nil {
				t.Fatalf("parse %q: %v", tt.now, err)
			}
			if got := m.Match(types.Context{"now": now}); got != tt.want {
				t.Errorf("Match(now=%s) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestTimeWindowConvertsZone(t *testing.T) {
	m := mustBuild(t, map[string]any{
		"type": "TIME_WINDOW", "tz": "America/Sao_Paulo",
		"start": "09:00", "end": "18:00",
	})
	// 14:00 UTC is 11:00 in São Paulo (UTC-3), inside business hours.
	now := time.Date(2026, 8, 21, 14, 0, 0, 0, time.UTC)
	if !m.Match(types.Context{"now": now}) {
		t.Error("instant should be converted into the configured zone before checking")
	}
	// 23:00 UTC is 20:00 in São Paulo, outside.
	now = time.Date(2026, 8, 21, 23, 0, 0, 0, time.UTC)
	if m.Match(types.Context{"now": now}) {
		t.Error("20:00 local must be outside 09:00-18:00")
	}
}

func TestTimeWindowWeekdays(t *testing.T) {
	m := mustBuild(t, map[string]any{
		"type": "TIME_WINDOW", "tz": "UTC",
		"start": "00:00", "end": "23:59:59",
		"days_of_week": []any{"mon", "Tuesday", "WED"},
	})

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"monday", time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC), true},
		{"wednesday", time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC), true},
		{"saturday", time.Date(2026, 8, 22, 10, 0, 0, 0, time.UTC), false},
		{"sunday", time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Match(types.Context{"now": tt.now}); got != tt.want {
				t.Errorf("Match(%s) = %v, want %v", tt.now.Weekday(), got, tt.want)
			}
		})
	}
}

func TestTimeWindowFallsBackToWallClock(t *testing.T) {
	m := mustBuild(t, map[string]any{
		"type": "TIME_WINDOW", "tz": "UTC",
		"start": "00:00", "end": "23:59:59",
	})
	// Without a "now" value the matcher uses the real clock; a full-day
	// window always matches.
	if !m.Match(types.Context{}) {
		t.Error("full-day window must match the current instant")
	}
}

func TestTimeWindowBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  map[string]any
	}{
		{"missing tz", map[string]any{"type": "TIME_WINDOW", "start": "09:00", "end": "18:00"}},
		{"unknown tz", map[string]any{"type": "TIME_WINDOW", "tz": "Mars/Olympus", "start": "09:00", "end": "18:00"}},
		{"bad clock", map[string]any{"type": "TIME_WINDOW", "tz": "UTC", "start": "9am", "end": "18:00"}},
		{"hour out of range", map[string]any{"type": "TIME_WINDOW", "tz": "UTC", "start": "25:00", "end": "18:00"}},
		{"bad day", map[string]any{"type": "TIME_WINDOW", "tz": "UTC", "start": "09:00", "end": "18:00", "days_of_week": []any{"holiday"}}},
		{"days not array", map[string]any{"type": "TIME_WINDOW", "tz": "UTC", "start": "09:00", "end": "18:00", "days_of_week": "mon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildLeaf(tt.cfg); !errors.Is(err, types.ErrInvalidMatcherConfig) {
				t.Errorf("buildLeaf() error = %v, want ErrInvalidMatcherConfig", err)
			}
		})
	}
}
