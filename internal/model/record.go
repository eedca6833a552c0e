package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidSourceKind = errors.New("model: invalid source kind")

type SourceKind string

const (
	SourceScheduled SourceKind = "scheduled"
	SourceThreshold SourceKind = "threshold"
)

func (k SourceKind) IsValid() bool {
	switch k {
	case SourceScheduled, SourceThreshold:
		return true
	default:
		return false
	}
}

// ScheduledMeta ties a record back to the weekly recurrence rule that spawned it.
type ScheduledMeta struct {
	RecurrenceID string `json:"recurrence_id"`
	Weekday      int    `json:"weekday"`
	TimeOfDay    string `json:"time_of_day"`
}

// ThresholdMeta ties a record back to the threshold rule that spawned it.
type ThresholdMeta struct {
	ThresholdID    string  `json:"threshold_id"`
	ThresholdValue float64 `json:"threshold_value"`
}

// ReminderRecord is one unit of durable notification work. Records are consumed
// exactly once, by whichever scheduler observes them due first.
type ReminderRecord struct {
	ID        string
	DueAt     time.Time
	Title     string
	Body      string
	Source    SourceKind
	Scheduled *ScheduledMeta
	Threshold *ThresholdMeta
}

func (r ReminderRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("model: record id is required")
	}
	if r.DueAt.IsZero() {
		return errors.New("model: record due time is required")
	}
	if !r.Source.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidSourceKind, r.Source)
	}
	switch r.Source {
	case SourceScheduled:
		if r.Scheduled == nil {
			return errors.New("model: scheduled record requires scheduled meta")
		}
		if err := ValidateWeekday(r.Scheduled.Weekday); err != nil {
			return err
		}
	case SourceThreshold:
		if r.Threshold == nil {
			return errors.New("model: threshold record requires threshold meta")
		}
	}
	return nil
}

// ScheduledRecordID builds the deterministic id for a scheduled occurrence.
// Determinism is what keeps the "at most one pending record per
// (recurrence, weekday)" invariant without any locking: two actors that
// regenerate the same occurrence produce the same id and the second insert
// upserts over the first.
func ScheduledRecordID(recurrenceID string, weekday int, dueAt time.Time) string {
	return fmt.Sprintf("%s-%d-%d", recurrenceID, weekday, dueAt.UnixMilli())
}

// ThresholdCrossRecordID builds the id for a predicted-crossing record.
func ThresholdCrossRecordID(thresholdID string, crossAt time.Time) string {
	return fmt.Sprintf("%s-cross-%d", thresholdID, crossAt.UnixMilli())
}

// ThresholdImmediateRecordID builds the id for an already-below record.
func ThresholdImmediateRecordID(thresholdID string, at time.Time) string {
	return fmt.Sprintf("%s-now-%d", thresholdID, at.UnixMilli())
}

// NewScheduledRecord builds the pending record for one weekday occurrence of
// a recurrence rule. Both the rule service and the foreground planner go
// through here so the two contexts derive byte-identical records.
func NewScheduledRecord(rule ScheduledRecurrence, weekday int, occurrence time.Time) ReminderRecord {
	return ReminderRecord{
		ID:     ScheduledRecordID(rule.ID, weekday, occurrence),
		DueAt:  occurrence,
		Title:  rule.Label,
		Body:   rule.TimeOfDay,
		Source: SourceScheduled,
		Scheduled: &ScheduledMeta{
			RecurrenceID: rule.ID,
			Weekday:      weekday,
			TimeOfDay:    rule.TimeOfDay,
		},
	}
}

// NewThresholdRecord builds a record for a threshold rule, either at the
// predicted crossing or at "now" for immediate mode.
func NewThresholdRecord(rule ThresholdRule, id string, due time.Time) ReminderRecord {
	title := rule.Label
	if title == "" {
		title = "Level below threshold"
	}
	return ReminderRecord{
		ID:     id,
		DueAt:  due,
		Title:  title,
		Body:   fmt.Sprintf("Estimated level below %.1f pg/mL", rule.Threshold),
		Source: SourceThreshold,
		Threshold: &ThresholdMeta{
			ThresholdID:    rule.ID,
			ThresholdValue: rule.Threshold,
		},
	}
}

// Successor returns the next occurrence record for a consumed scheduled
// record. The due time goes through NextOccurrence, the same wall-clock
// weekday math every other actor uses, so both schedulers derive the same
// deterministic id even across a DST transition, and a record consumed after
// a long outage regenerates at the next future occurrence instead of
// replaying missed weeks. It returns false for non-scheduled records.
func (r ReminderRecord) Successor(now time.Time) (ReminderRecord, bool) {
	if r.Source != SourceScheduled || r.Scheduled == nil {
		return ReminderRecord{}, false
	}
	// A record consumed inside the sweep slack is not yet due; floor the
	// search at its own due time so the successor is never the occurrence
	// being consumed.
	after := now
	if r.DueAt.After(after) {
		after = r.DueAt.In(now.Location())
	}
	nextDue := NextOccurrence(r.Scheduled.Weekday, r.Scheduled.TimeOfDay, after)
	next := r
	next.ID = ScheduledRecordID(r.Scheduled.RecurrenceID, r.Scheduled.Weekday, nextDue)
	next.DueAt = nextDue
	return next, true
}
