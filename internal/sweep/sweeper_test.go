package sweep

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ametov/dosewatch/internal/model"
	"github.com/ametov/dosewatch/internal/notify"
	"github.com/ametov/dosewatch/internal/storage"
)

func setupRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "sweep-test.db"))
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
	return repo
}

// failingNotifier rejects sends for one tag and accepts the rest.
type failingNotifier struct {
	failTag string
	sent    []notify.Notification
}

func (f *failingNotifier) Available(ctx context.Context) error { return nil }

func (f *failingNotifier) Send(ctx context.Context, n notify.Notification) error {
	if n.Tag == f.failTag {
		return errors.New("send rejected")
	}
	f.sent = append(f.sent, n)
	return nil
}

func newSweeper(repo storage.Repository, notifier notify.Notifier) *Sweeper {
	return &Sweeper{
		Repo:       repo,
		Dispatcher: notify.Dispatcher{Notifier: notifier, Log: zerolog.Nop()},
		Log:        zerolog.Nop(),
	}
}

func scheduledRecord(recurrenceID string, weekday int, due time.Time) model.ReminderRecord {
	return model.ReminderRecord{
		ID:     model.ScheduledRecordID(recurrenceID, weekday, due),
		DueAt:  due,
		Title:  "morning dose",
		Body:   "08:00",
		Source: model.SourceScheduled,
		Scheduled: &model.ScheduledMeta{
			RecurrenceID: recurrenceID,
			Weekday:      weekday,
			TimeOfDay:    "08:00",
		},
	}
}

func TestSweepDeliversAndRegeneratesSuccessor(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 9, 8, 5, 0, 0, time.UTC)
	due := now.Add(-5 * time.Minute)

	rec := scheduledRecord("rec-1", 1, due)
	if err := repo.PutRecord(ctx, rec); err != nil {
		t.Fatalf("put record: %v", err)
	}

	notifier := &failingNotifier{}
	s := newSweeper(repo, notifier)
	consumed, err := s.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if consumed != 1 {
		t.Fatalf("expected 1 consumed, got %d", consumed)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(notifier.sent))
	}

	if _, err := repo.GetRecord(ctx, rec.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected consumed record deleted, got %v", err)
	}

	nextDue := due.Add(7 * 24 * time.Hour)
	next, err := repo.GetRecord(ctx, model.ScheduledRecordID("rec-1", 1, nextDue))
	if err != nil {
		t.Fatalf("expected successor record: %v", err)
	}
	if !next.DueAt.Equal(nextDue) {
		t.Fatalf("successor due at %v, want %v", next.DueAt, nextDue)
	}
}

func TestDuplicateWakeConvergesOnOnePendingRecord(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 9, 8, 5, 0, 0, time.UTC)

	rec := scheduledRecord("rec-1", 1, now.Add(-time.Minute))
	if err := repo.PutRecord(ctx, rec); err != nil {
		t.Fatalf("put record: %v", err)
	}

	s := newSweeper(repo, &failingNotifier{})
	if _, err := s.Sweep(ctx, now); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	consumed, err := s.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if consumed != 0 {
		t.Fatalf("second sweep consumed %d, want 0", consumed)
	}

	all, err := repo.ListRecords(ctx)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one pending record, got %d", len(all))
	}
}

func TestConsumeSkipsSuccessorWhenAlreadyConsumed(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 9, 8, 5, 0, 0, time.UTC)

	// The record was never stored, as if the other scheduler already
	// consumed and regenerated it.
	stale := scheduledRecord("rec-1", 1, now.Add(-time.Minute))
	notifier := &failingNotifier{}
	s := newSweeper(repo, notifier)

	if err := s.ConsumeOne(ctx, stale, now); err != nil {
		t.Fatalf("consume stale record: %v", err)
	}
	all, err := repo.ListRecords(ctx)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("stale consume must not regenerate, got %d records", len(all))
	}
}

func TestThresholdRecordsAreNotRegenerated(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 9, 8, 5, 0, 0, time.UTC)
	due := now.Add(-time.Minute)

	rule := model.ThresholdRule{ID: "thr-1", Threshold: 50, Mode: model.NotifyAtCross, CreatedAt: now}
	rec := model.NewThresholdRecord(rule, model.ThresholdCrossRecordID(rule.ID, due), due)
	if err := repo.PutRecord(ctx, rec); err != nil {
		t.Fatalf("put record: %v", err)
	}

	s := newSweeper(repo, &failingNotifier{})
	if _, err := s.Sweep(ctx, now); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	all, err := repo.ListRecords(ctx)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("threshold record must not regenerate, got %d records", len(all))
	}
}

func TestFailedDeliveryLeavesRecordForNextWake(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 9, 8, 5, 0, 0, time.UTC)

	bad := scheduledRecord("rec-bad", 2, now.Add(-2*time.Minute))
	good := scheduledRecord("rec-good", 3, now.Add(-time.Minute))
	for _, rec := range []model.ReminderRecord{bad, good} {
		if err := repo.PutRecord(ctx, rec); err != nil {
			t.Fatalf("put record: %v", err)
		}
	}

	s := newSweeper(repo, &failingNotifier{failTag: bad.ID})
	consumed, err := s.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if consumed != 1 {
		t.Fatalf("expected 1 consumed despite sibling failure, got %d", consumed)
	}
	if _, err := repo.GetRecord(ctx, bad.ID); err != nil {
		t.Fatalf("failed record must stay stored: %v", err)
	}
	if _, err := repo.GetRecord(ctx, good.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected delivered sibling deleted, got %v", err)
	}
}

func TestSlackWidensTheDueWindow(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)

	soon := scheduledRecord("rec-soon", 1, now.Add(30*time.Second))
	far := scheduledRecord("rec-far", 1, now.Add(10*time.Minute))
	for _, rec := range []model.ReminderRecord{soon, far} {
		if err := repo.PutRecord(ctx, rec); err != nil {
			t.Fatalf("put record: %v", err)
		}
	}

	s := newSweeper(repo, &failingNotifier{})
	consumed, err := s.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if consumed != 1 {
		t.Fatalf("expected only the in-slack record consumed, got %d", consumed)
	}
	if _, err := repo.GetRecord(ctx, far.ID); err != nil {
		t.Fatalf("out-of-slack record must stay stored: %v", err)
	}
}
