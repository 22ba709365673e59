package cache

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a minimal parsed janitor cadence.
type Schedule struct {
	Hour    int
	Minute  int
	Weekday *time.Weekday // nil = daily
}

// ParseSchedule parses a sweep cadence expression.
// Supported formats:
//   - "daily"            → every day at 00:00 UTC
//   - "daily:HH:MM"      → every day at HH:MM UTC
//   - "HH:MM"            → every day at HH:MM UTC
//   - "weekly"           → every Monday at 00:00 UTC
//   - "weekly:Day"       → every Day at 00:00 UTC (e.g. "weekly:sun")
//   - "weekly:Day:HH:MM" → every Day at HH:MM UTC
func ParseSchedule(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Schedule{}, fmt.Errorf("empty schedule expression")
	}

	switch {
	case expr == "daily":
		return Schedule{}, nil

	case expr == "weekly":
		mon := time.Monday
		return Schedule{Weekday: &mon}, nil

	case strings.HasPrefix(expr, "daily:"):
		h, m, err := parseHHMM(strings.TrimPrefix(expr, "daily:"))
		if err != nil {
			return Schedule{}, err
		}
		return Schedule{Hour: h, Minute: m}, nil

	case strings.HasPrefix(expr, "weekly:"):
		rest := strings.TrimPrefix(expr, "weekly:")
		parts := strings.SplitN(rest, ":", 2)
		day, err := parseWeekday(parts[0])
		if err != nil {
			return Schedule{}, err
		}
		h, m := 0, 0
		if len(parts) == 2 {
			h, m, err = parseHHMM(parts[1])
			if err != nil {
				return Schedule{}, err
			}
		}
		return Schedule{Hour: h, Minute: m, Weekday: &day}, nil

	default:
		h, m, err := parseHHMM(expr)
		if err != nil {
			return Schedule{}, fmt.Errorf("unrecognized schedule expression: %q", expr)
		}
		return Schedule{Hour: h, Minute: m}, nil
	}
}

// NextAfter returns the next occurrence of this schedule after t.
func (s Schedule) NextAfter(t time.Time) time.Time {
	t = t.UTC()
	candidate := time.Date(t.Year(), t.Month(), t.Day(), s.Hour, s.Minute, 0, 0, time.UTC)

	if s.Weekday == nil {
		if !candidate.After(t) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate
	}

	for i := range 8 {
		check := candidate.AddDate(0, 0, i)
		if check.Weekday() == *s.Weekday && check.After(t) {
			return check
		}
	}
	return candidate.AddDate(0, 0, 7)
}

func parseHHMM(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour %q", parts[0])
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute %q", parts[1])
	}
	return h, m, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sun", "sunday":
		return time.Sunday, nil
	case "mon", "monday":
		return time.Monday, nil
	case "tue", "tuesday":
		return time.Tuesday, nil
	case "wed", "wednesday":
		return time.Wednesday, nil
	case "thu", "thursday":
		return time.Thursday, nil
	case "fri", "friday":
		return time.Friday, nil
	case "sat", "saturday":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
}
