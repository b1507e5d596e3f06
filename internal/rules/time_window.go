package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kamipay/pixrouter/internal/types"
)

func init() {
	RegisterMatcher("TIME_WINDOW", "v1", newTimeWindow)
}

var weekdayNames = map[string]int{
	"mon": 0, "monday": 0,
	"tue": 1, "tuesday": 1,
	"wed": 2, "wednesday": 2,
	"thu": 3, "thursday": 3,
	"fri": 4, "friday": 4,
	"sat": 5, "saturday": 5,
	"sun": 6, "sunday": 6,
}

// timeWindowMatcher checks whether the evaluation instant falls inside a
// clock window in a fixed time zone, optionally restricted to weekdays
// (0=Monday..6=Sunday). Windows with start > end cross midnight: 22:00-06:00
// matches late evening and early morning. Bounds are inclusive.
type timeWindowMatcher struct {
	loc   *time.Location
	start int // seconds since midnight
	end   int
	days  map[int]struct{} // nil means any day
}

func newTimeWindow(cfg map[string]any) (Matcher, error) {
	tzName, err := cfgString(cfg, "tz")
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown tz %q", types.ErrInvalidMatcherConfig, tzName)
	}

	startS, err := cfgString(cfg, "start")
	if err != nil {
		return nil, err
	}
	endS, err := cfgString(cfg, "end")
	if err != nil {
		return nil, err
	}
	start, err := parseClock(startS)
	if err != nil {
		return nil, err
	}
	end, err := parseClock(endS)
	if err != nil {
		return nil, err
	}

	var days map[int]struct{}
	if rawDays, present := cfg["days_of_week"]; present && rawDays != nil {
		list, ok := rawDays.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: \"days_of_week\" must be an array of day names", types.ErrInvalidMatcherConfig)
		}
		days = make(map[int]struct{}, len(list))
		for _, raw := range list {
			name, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("%w: days must be strings", types.ErrInvalidMatcherConfig)
			}
			idx, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				return nil, fmt.Errorf("%w: unknown day %q", types.ErrInvalidMatcherConfig, name)
			}
			days[idx] = struct{}{}
		}
	}

	return &timeWindowMatcher{loc: loc, start: start, end: end, days: days}, nil
}

// parseClock accepts "HH:MM" or "HH:MM:SS" and returns seconds since
// midnight.
func parseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: clock %q must be HH:MM or HH:MM:SS", types.ErrInvalidMatcherConfig, s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("%w: clock %q must be numeric", types.ErrInvalidMatcherConfig, s)
		}
		nums[i] = n
	}
	hh, mm, ss := nums[0], nums[1], nums[2]
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 || ss < 0 || ss > 59 {
		return 0, fmt.Errorf("%w: clock %q out of range", types.ErrInvalidMatcherConfig, s)
	}
	return hh*3600 + mm*60 + ss, nil
}

func (m *timeWindowMatcher) Match(ctx types.Context) bool {
	now, ok := GetField(ctx, "now").(time.Time)
	if !ok {
		now = time.Now()
	}
	now = now.In(m.loc)

	if m.days != nil {
		// time.Weekday starts at Sunday; shift so Monday is 0.
		wd := (int(now.Weekday()) + 6) % 7
		if _, allowed := m.days[wd]; !allowed {
			return false
		}
	}

	secs := now.Hour()*3600 + now.Minute()*60 + now.Second()
	if m.start <= m.end {
		return m.start <= secs && secs <= m.end
	}
	return secs >= m.start || secs <= m.end
}

func (m *timeWindowMatcher) Name() string {
	return "TIME_WINDOW"
}
