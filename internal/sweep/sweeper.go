// Package sweep implements the background pass that delivers due reminder
// records. The host owns the wake cadence: a sweep may run every few minutes
// or not for days, and both are normal. All the engine promises is one sweep
// per invocation.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ametov/dosewatch/internal/metrics"
	"github.com/ametov/dosewatch/internal/model"
	"github.com/ametov/dosewatch/internal/notify"
	"github.com/ametov/dosewatch/internal/storage"
)

// DefaultSlack is the forward window added to "now" when querying due
// records, tolerating the wake mechanism's imprecision.
const DefaultSlack = time.Minute

type Sweeper struct {
	Repo       storage.Repository
	Dispatcher notify.Dispatcher
	Log        zerolog.Logger

	// Slack widens the due query into the near future. Zero means DefaultSlack.
	Slack time.Duration
}

func (s *Sweeper) slack() time.Duration {
	if s.Slack > 0 {
		return s.Slack
	}
	return DefaultSlack
}

// Sweep delivers every record due by now plus slack, in due order. The sweep
// is silent: a record whose consumption fails is logged and left in place for
// the next wake, and never blocks its siblings. The count of consumed records
// is returned.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	metrics.SweepRuns.Inc()

	due, err := s.Repo.DueBefore(ctx, now.Add(s.slack()))
	if err != nil {
		return 0, fmt.Errorf("query due records: %w", err)
	}

	consumed := 0
	for _, rec := range due {
		if err := s.ConsumeOne(ctx, rec, now); err != nil {
			metrics.SweepRecordFailures.Inc()
			s.Log.Error().Err(err).Str("record_id", rec.ID).Msg("sweep: record left for next wake")
			continue
		}
		consumed++
	}
	return consumed, nil
}

// ConsumeOne delivers one record and retires it: deliver, delete, and for
// scheduled records insert the next occurrence. Delete and reinsert
// run in one transaction, delete first, so a crash in between leaves a
// missing successor (self-healing on the next rule edit) rather than a
// duplicate delivery. The successor's deterministic id makes a duplicate wake
// converge on a single pending record.
func (s *Sweeper) ConsumeOne(ctx context.Context, rec model.ReminderRecord, now time.Time) error {
	if err := s.Dispatcher.Deliver(ctx, rec); err != nil {
		return fmt.Errorf("deliver: %w", err)
	}

	return s.Repo.InTx(ctx, func(tx storage.Repository) error {
		if err := tx.DeleteRecord(ctx, rec.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// The other scheduler consumed it first; its regeneration
				// already happened and the dedupe tag collapsed the alert.
				return nil
			}
			return err
		}
		next, ok := rec.Successor(now)
		if !ok {
			return nil
		}
		if err := tx.PutRecord(ctx, next); err != nil {
			return err
		}
		metrics.SuccessorsRegenerated.Inc()
		return nil
	})
}
