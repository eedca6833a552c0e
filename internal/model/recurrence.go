package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidWeekday   = errors.New("model: weekday out of range")
	ErrInvalidTimeOfDay = errors.New("model: invalid time of day")
)

func ValidateWeekday(weekday int) error {
	if weekday < 0 || weekday > 6 {
		return fmt.Errorf("%w: %d", ErrInvalidWeekday, weekday)
	}
	return nil
}

// ParseTimeOfDay parses "HH:MM". Missing or unparseable components default to
// zero, so a record carrying a mangled time fires at midnight instead of never.
func ParseTimeOfDay(s string) (hour, minute int) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) > 0 {
		if v, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
			hour = v
		}
	}
	if len(parts) > 1 {
		if v, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
			minute = v
		}
	}
	return hour, minute
}

// ValidateTimeOfDay rejects anything but a well-formed "HH:MM" in range.
// Malformed input never reaches the store; ParseTimeOfDay's zero defaults only
// cover records that predate validation.
func ValidateTimeOfDay(s string) error {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return nil
}

// NextOccurrence returns the soonest instant strictly after `after` that falls
// on the given weekday (0=Sunday..6=Saturday) at timeOfDay ("HH:MM"). The
// result is never `after` itself and never more than 7 days ahead of it.
func NextOccurrence(weekday int, timeOfDay string, after time.Time) time.Time {
	hour, minute := ParseTimeOfDay(timeOfDay)
	y, m, d := after.Date()
	candidate := time.Date(y, m, d, hour, minute, 0, 0, after.Location())

	diff := (weekday - int(candidate.Weekday()) + 7) % 7
	if diff == 0 && !candidate.After(after) {
		diff = 7
	}
	return candidate.AddDate(0, 0, diff)
}
