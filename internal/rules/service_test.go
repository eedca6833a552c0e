package rules

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ametov/dosewatch/internal/model"
	"github.com/ametov/dosewatch/internal/sim"
	"github.com/ametov/dosewatch/internal/storage"
)

func setupService(t *testing.T) (*Service, *storage.SQLiteRepository) {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "rules-test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.MigrateUp(db); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	repo, err := storage.NewSQLiteRepository(db)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	return &Service{Repo: repo, Log: zerolog.Nop()}, repo
}

var now = time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC)

func TestCreateRecurrencePopulatesPerWeekday(t *testing.T) {
	svc, repo := setupService(t)
	ctx := context.Background()

	rule, err := svc.CreateRecurrence(ctx, []int{1, 3, 5}, "08:00", "morning dose", now)
	if err != nil {
		t.Fatalf("create recurrence: %v", err)
	}

	records, err := repo.ListRecords(ctx)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for _, weekday := range rule.Weekdays {
		occurrence := model.NextOccurrence(weekday, rule.TimeOfDay, now)
		id := model.ScheduledRecordID(rule.ID, weekday, occurrence)
		rec, err := repo.GetRecord(ctx, id)
		if err != nil {
			t.Fatalf("missing record for weekday %d: %v", weekday, err)
		}
		if !rec.DueAt.After(now) {
			t.Fatalf("occurrence %v not strictly future of %v", rec.DueAt, now)
		}
		if rec.Scheduled == nil || rec.Scheduled.RecurrenceID != rule.ID {
			t.Fatalf("record %s not linked to rule %s", id, rule.ID)
		}
	}
}

func TestCreateRecurrenceRejectsMalformedInput(t *testing.T) {
	svc, repo := setupService(t)
	ctx := context.Background()

	cases := []struct {
		name      string
		weekdays  []int
		timeOfDay string
	}{
		{"no weekdays", nil, "08:00"},
		{"weekday out of range", []int{7}, "08:00"},
		{"duplicate weekday", []int{1, 1}, "08:00"},
		{"bad time of day", []int{1}, "25:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateRecurrence(ctx, tc.weekdays, tc.timeOfDay, "", now); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	records, err := repo.ListRecords(ctx)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("rejected input must not populate records, got %d", len(records))
	}
}

func TestDeleteRecurrenceRemovesOnlyItsRecords(t *testing.T) {
	svc, repo := setupService(t)
	ctx := context.Background()

	doomed, err := svc.CreateRecurrence(ctx, []int{1, 2}, "08:00", "", now)
	if err != nil {
		t.Fatalf("create doomed: %v", err)
	}
	kept, err := svc.CreateRecurrence(ctx, []int{4}, "19:00", "", now)
	if err != nil {
		t.Fatalf("create kept: %v", err)
	}

	if err := svc.DeleteRecurrence(ctx, doomed.ID); err != nil {
		t.Fatalf("delete recurrence: %v", err)
	}

	records, err := repo.ListRecords(ctx)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 surviving record, got %d", len(records))
	}
	if records[0].Scheduled.RecurrenceID != kept.ID {
		t.Fatalf("survivor belongs to %s, want %s", records[0].Scheduled.RecurrenceID, kept.ID)
	}
	if _, err := repo.GetRecurrence(ctx, doomed.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected rule deleted, got %v", err)
	}
}

func TestCreateThresholdAtCrossPopulatesCrossingRecord(t *testing.T) {
	svc, repo := setupService(t)
	ctx := context.Background()

	curve := sim.Curve{
		StartedAt: now,
		Samples:   []sim.Sample{{TimeHours: 0, Concentration: 80}, {TimeHours: 10, Concentration: 20}},
	}
	rule, err := svc.CreateThreshold(ctx, 50, model.NotifyAtCross, "low level", curve, now)
	if err != nil {
		t.Fatalf("create threshold: %v", err)
	}

	crossAt, ok := sim.FindCrossing(curve, rule.Threshold, now)
	if !ok {
		t.Fatalf("expected a crossing in the test curve")
	}
	rec, err := repo.GetRecord(ctx, model.ThresholdCrossRecordID(rule.ID, crossAt))
	if err != nil {
		t.Fatalf("expected crossing record: %v", err)
	}
	if !rec.DueAt.Equal(crossAt) {
		t.Fatalf("record due %v, want %v", rec.DueAt, crossAt)
	}
}

func TestCreateThresholdNeverCrossingPopulatesNothing(t *testing.T) {
	svc, repo := setupService(t)
	ctx := context.Background()

	curve := sim.Curve{
		StartedAt: now,
		Samples:   []sim.Sample{{TimeHours: 0, Concentration: 80}, {TimeHours: 10, Concentration: 70}},
	}
	if _, err := svc.CreateThreshold(ctx, 50, model.NotifyAtCross, "", curve, now); err != nil {
		t.Fatalf("create threshold: %v", err)
	}

	records, err := repo.ListRecords(ctx)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("no crossing means no record, got %d", len(records))
	}
}

func TestCreateThresholdImmediateIfBelow(t *testing.T) {
	svc, repo := setupService(t)
	ctx := context.Background()

	curve := sim.Curve{
		StartedAt: now.Add(-time.Hour),
		Samples:   []sim.Sample{{TimeHours: 0, Concentration: 40}, {TimeHours: 10, Concentration: 40}},
	}
	rule, err := svc.CreateThreshold(ctx, 60, model.NotifyImmediateIfBelow, "", curve, now)
	if err != nil {
		t.Fatalf("create threshold: %v", err)
	}

	rec, err := repo.GetRecord(ctx, model.ThresholdImmediateRecordID(rule.ID, now))
	if err != nil {
		t.Fatalf("expected immediate record: %v", err)
	}
	if !rec.DueAt.Equal(now) {
		t.Fatalf("immediate record due %v, want %v", rec.DueAt, now)
	}

	// A level above the threshold populates nothing.
	above, err := svc.CreateThreshold(ctx, 30, model.NotifyImmediateIfBelow, "", curve, now)
	if err != nil {
		t.Fatalf("create above-threshold rule: %v", err)
	}
	if _, err := repo.GetRecord(ctx, model.ThresholdImmediateRecordID(above.ID, now)); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected no record for above-threshold level, got %v", err)
	}
}

func TestCreateThresholdRejectsMalformedInput(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	if _, err := svc.CreateThreshold(ctx, 0, model.NotifyAtCross, "", sim.Curve{}, now); !errors.Is(err, model.ErrInvalidThreshold) {
		t.Fatalf("expected ErrInvalidThreshold, got %v", err)
	}
	if _, err := svc.CreateThreshold(ctx, 50, "sometimes", "", sim.Curve{}, now); !errors.Is(err, model.ErrInvalidNotifyMode) {
		t.Fatalf("expected ErrInvalidNotifyMode, got %v", err)
	}
}

func TestDeleteThresholdRemovesItsRecords(t *testing.T) {
	svc, repo := setupService(t)
	ctx := context.Background()

	curve := sim.Curve{
		StartedAt: now,
		Samples:   []sim.Sample{{TimeHours: 0, Concentration: 80}, {TimeHours: 10, Concentration: 20}},
	}
	rule, err := svc.CreateThreshold(ctx, 50, model.NotifyAtCross, "", curve, now)
	if err != nil {
		t.Fatalf("create threshold: %v", err)
	}
	if err := svc.DeleteThreshold(ctx, rule.ID); err != nil {
		t.Fatalf("delete threshold: %v", err)
	}

	records, err := repo.ListRecords(ctx)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected records removed with the rule, got %d", len(records))
	}
	if _, err := repo.GetThreshold(ctx, rule.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected rule deleted, got %v", err)
	}
}
