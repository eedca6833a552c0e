package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidNotifyMode = errors.New("model: invalid notify mode")
	ErrInvalidThreshold  = errors.New("model: invalid threshold value")
)

// ScheduledRecurrence is a weekly repeating reminder rule. Rules are
// configuration, not work: creating one populates ReminderRecords, deleting
// one removes every record it spawned.
type ScheduledRecurrence struct {
	ID        string
	Weekdays  []int
	TimeOfDay string
	Label     string
	CreatedAt time.Time
}

func (r ScheduledRecurrence) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("model: recurrence id is required")
	}
	if len(r.Weekdays) == 0 {
		return errors.New("model: recurrence requires at least one weekday")
	}
	s := make([]int, len(r.Weekdays))
	copy(s, r.Weekdays)
	sort.Ints(s)
	for i, d := range s {
		if err := ValidateWeekday(d); err != nil {
			return err
		}
		if i > 0 && d == s[i-1] {
			return errors.New("model: duplicate weekday in recurrence")
		}
	}
	return ValidateTimeOfDay(r.TimeOfDay)
}

type NotifyMode string

const (
	// NotifyAtCross fires when the concentration curve is predicted to drop
	// under the threshold.
	NotifyAtCross NotifyMode = "at_cross"
	// NotifyImmediateIfBelow fires right away whenever the current level is
	// already under the threshold.
	NotifyImmediateIfBelow NotifyMode = "immediate_if_below"
)

func (m NotifyMode) IsValid() bool {
	switch m {
	case NotifyAtCross, NotifyImmediateIfBelow:
		return true
	default:
		return false
	}
}

// ThresholdRule is a reminder rule tied to the simulated concentration curve
// dropping below a value.
type ThresholdRule struct {
	ID        string
	Threshold float64
	Mode      NotifyMode
	Label     string
	CreatedAt time.Time
}

func (r ThresholdRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("model: threshold rule id is required")
	}
	if r.Threshold <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, r.Threshold)
	}
	if !r.Mode.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidNotifyMode, r.Mode)
	}
	return nil
}
