package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ametov/dosewatch/internal/model"
)

var ErrNotFound = errors.New("storage: not found")

// Repository is the durable store shared by the foreground scheduler and the
// background sweeper. It is the only shared mutable state between the two.
type Repository interface {
	// PutRecord upserts by id. Writing the same id twice with identical
	// content is a no-op in effect, which is what makes deterministic-id
	// regeneration idempotent.
	PutRecord(ctx context.Context, rec model.ReminderRecord) error
	GetRecord(ctx context.Context, id string) (model.ReminderRecord, error)
	DeleteRecord(ctx context.Context, id string) error
	ListRecords(ctx context.Context) ([]model.ReminderRecord, error)
	// DueBefore returns every record with a due instant at or before the
	// given time, ordered by due time ascending.
	DueBefore(ctx context.Context, before time.Time) ([]model.ReminderRecord, error)

	CreateRecurrence(ctx context.Context, rule model.ScheduledRecurrence) error
	GetRecurrence(ctx context.Context, id string) (model.ScheduledRecurrence, error)
	DeleteRecurrence(ctx context.Context, id string) error
	ListRecurrences(ctx context.Context) ([]model.ScheduledRecurrence, error)

	CreateThreshold(ctx context.Context, rule model.ThresholdRule) error
	GetThreshold(ctx context.Context, id string) (model.ThresholdRule, error)
	DeleteThreshold(ctx context.Context, id string) error
	ListThresholds(ctx context.Context) ([]model.ThresholdRule, error)

	// InTx runs fn inside a single transaction so one sweep iteration
	// (deliver, delete, reinsert successor) can never be observed
	// half-applied. Calling InTx on a repository already inside a
	// transaction reuses it.
	InTx(ctx context.Context, fn func(Repository) error) error
}
