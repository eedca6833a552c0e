// Package rules is the CRUD surface the UI layer drives. Creating a rule
// immediately populates the reminder records it implies; deleting a rule
// removes every record it spawned, so neither scheduler can fire for a rule
// that no longer exists.
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ametov/dosewatch/internal/model"
	"github.com/ametov/dosewatch/internal/sim"
	"github.com/ametov/dosewatch/internal/storage"
)

type Service struct {
	Repo storage.Repository
	Log  zerolog.Logger
}

// CreateRecurrence validates and persists a weekly rule, then populates one
// pending record per weekday at its next occurrence. Malformed input is
// rejected here and never reaches the store.
func (s *Service) CreateRecurrence(ctx context.Context, weekdays []int, timeOfDay, label string, now time.Time) (model.ScheduledRecurrence, error) {
	rule := model.ScheduledRecurrence{
		ID:        uuid.NewString(),
		Weekdays:  weekdays,
		TimeOfDay: timeOfDay,
		Label:     label,
		CreatedAt: now.UTC(),
	}
	if err := rule.Validate(); err != nil {
		return model.ScheduledRecurrence{}, err
	}

	err := s.Repo.InTx(ctx, func(tx storage.Repository) error {
		if err := tx.CreateRecurrence(ctx, rule); err != nil {
			return fmt.Errorf("persist recurrence: %w", err)
		}
		for _, weekday := range rule.Weekdays {
			occurrence := model.NextOccurrence(weekday, rule.TimeOfDay, now)
			if err := tx.PutRecord(ctx, model.NewScheduledRecord(rule, weekday, occurrence)); err != nil {
				return fmt.Errorf("populate weekday %d: %w", weekday, err)
			}
		}
		return nil
	})
	if err != nil {
		return model.ScheduledRecurrence{}, err
	}
	return rule, nil
}

// DeleteRecurrence removes the rule and every record whose meta names it.
// Records carry no index on meta, so this is a full scan filtered in memory.
func (s *Service) DeleteRecurrence(ctx context.Context, id string) error {
	return s.Repo.InTx(ctx, func(tx storage.Repository) error {
		if err := tx.DeleteRecurrence(ctx, id); err != nil {
			return err
		}
		return deleteRecordsWhere(ctx, tx, func(rec model.ReminderRecord) bool {
			return rec.Scheduled != nil && rec.Scheduled.RecurrenceID == id
		})
	})
}

// CreateThreshold validates and persists a threshold rule and populates its
// record: a predicted-crossing record for at_cross, or an immediate record
// for immediate_if_below when the level is already under the threshold. A
// missing or never-crossing curve is a normal outcome and populates nothing.
func (s *Service) CreateThreshold(ctx context.Context, threshold float64, mode model.NotifyMode, label string, curve sim.Curve, now time.Time) (model.ThresholdRule, error) {
	rule := model.ThresholdRule{
		ID:        uuid.NewString(),
		Threshold: threshold,
		Mode:      mode,
		Label:     label,
		CreatedAt: now.UTC(),
	}
	if err := rule.Validate(); err != nil {
		return model.ThresholdRule{}, err
	}

	err := s.Repo.InTx(ctx, func(tx storage.Repository) error {
		if err := tx.CreateThreshold(ctx, rule); err != nil {
			return fmt.Errorf("persist threshold: %w", err)
		}

		switch rule.Mode {
		case model.NotifyAtCross:
			crossAt, ok := sim.FindCrossing(curve, rule.Threshold, now)
			if !ok {
				return nil
			}
			return tx.PutRecord(ctx, model.NewThresholdRecord(rule, model.ThresholdCrossRecordID(rule.ID, crossAt), crossAt))
		case model.NotifyImmediateIfBelow:
			level, ok := sim.LevelAt(curve, now)
			if !ok || level >= rule.Threshold {
				return nil
			}
			return tx.PutRecord(ctx, model.NewThresholdRecord(rule, model.ThresholdImmediateRecordID(rule.ID, now), now))
		}
		return nil
	})
	if err != nil {
		return model.ThresholdRule{}, err
	}
	return rule, nil
}

// DeleteThreshold removes the rule and every record whose meta names it.
func (s *Service) DeleteThreshold(ctx context.Context, id string) error {
	return s.Repo.InTx(ctx, func(tx storage.Repository) error {
		if err := tx.DeleteThreshold(ctx, id); err != nil {
			return err
		}
		return deleteRecordsWhere(ctx, tx, func(rec model.ReminderRecord) bool {
			return rec.Threshold != nil && rec.Threshold.ThresholdID == id
		})
	})
}

func deleteRecordsWhere(ctx context.Context, tx storage.Repository, match func(model.ReminderRecord) bool) error {
	all, err := tx.ListRecords(ctx)
	if err != nil {
		return fmt.Errorf("scan records: %w", err)
	}
	for _, rec := range all {
		if !match(rec) {
			continue
		}
		if err := tx.DeleteRecord(ctx, rec.ID); err != nil {
			return fmt.Errorf("delete record %s: %w", rec.ID, err)
		}
	}
	return nil
}
