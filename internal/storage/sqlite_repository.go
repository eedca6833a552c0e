package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ametov/dosewatch/internal/model"
)

const sqliteTimeLayout = time.RFC3339Nano

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLiteRepository struct {
	db *sql.DB
	q  dbtx
}

func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	return &SQLiteRepository{db: db, q: db}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// InTx runs fn on a repository bound to a single transaction. Nested calls
// reuse the surrounding transaction.
func (r *SQLiteRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	if _, nested := r.q.(*sql.Tx); nested {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&SQLiteRepository{db: r.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) PutRecord(ctx context.Context, rec model.ReminderRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	meta, err := encodeMeta(rec)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO reminder_records (id, due_at, title, body, source_kind, meta)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			due_at = excluded.due_at,
			title = excluded.title,
			body = excluded.body,
			source_kind = excluded.source_kind,
			meta = excluded.meta`,
		rec.ID, rec.DueAt.UnixMilli(), rec.Title, rec.Body, string(rec.Source), meta,
	)
	return err
}

func (r *SQLiteRepository) GetRecord(ctx context.Context, id string) (model.ReminderRecord, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, due_at, title, body, source_kind, meta
		FROM reminder_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ReminderRecord{}, ErrNotFound
		}
		return model.ReminderRecord{}, err
	}
	return rec, nil
}

func (r *SQLiteRepository) DeleteRecord(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM reminder_records WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListRecords(ctx context.Context) ([]model.ReminderRecord, error) {
	return r.queryRecords(ctx, `
		SELECT id, due_at, title, body, source_kind, meta
		FROM reminder_records ORDER BY due_at ASC`)
}

func (r *SQLiteRepository) DueBefore(ctx context.Context, before time.Time) ([]model.ReminderRecord, error) {
	return r.queryRecords(ctx, `
		SELECT id, due_at, title, body, source_kind, meta
		FROM reminder_records WHERE due_at <= ? ORDER BY due_at ASC`, before.UnixMilli())
}

func (r *SQLiteRepository) queryRecords(ctx context.Context, query string, args ...any) ([]model.ReminderRecord, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.ReminderRecord, 0)
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateRecurrence(ctx context.Context, rule model.ScheduledRecurrence) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO scheduled_recurrences (id, weekdays, time_of_day, label, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rule.ID, encodeWeekdays(rule.Weekdays), rule.TimeOfDay, rule.Label, mustTime(rule.CreatedAt),
	)
	return err
}

func (r *SQLiteRepository) GetRecurrence(ctx context.Context, id string) (model.ScheduledRecurrence, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, weekdays, time_of_day, label, created_at
		FROM scheduled_recurrences WHERE id = ?`, id)
	rule, err := scanRecurrence(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ScheduledRecurrence{}, ErrNotFound
		}
		return model.ScheduledRecurrence{}, err
	}
	return rule, nil
}

func (r *SQLiteRepository) DeleteRecurrence(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM scheduled_recurrences WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListRecurrences(ctx context.Context) ([]model.ScheduledRecurrence, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, weekdays, time_of_day, label, created_at
		FROM scheduled_recurrences ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.ScheduledRecurrence, 0)
	for rows.Next() {
		rule, scanErr := scanRecurrence(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateThreshold(ctx context.Context, rule model.ThresholdRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO threshold_rules (id, threshold, notify_mode, label, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rule.ID, rule.Threshold, string(rule.Mode), rule.Label, mustTime(rule.CreatedAt),
	)
	return err
}

func (r *SQLiteRepository) GetThreshold(ctx context.Context, id string) (model.ThresholdRule, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, threshold, notify_mode, label, created_at
		FROM threshold_rules WHERE id = ?`, id)
	rule, err := scanThreshold(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ThresholdRule{}, ErrNotFound
		}
		return model.ThresholdRule{}, err
	}
	return rule, nil
}

func (r *SQLiteRepository) DeleteThreshold(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM threshold_rules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListThresholds(ctx context.Context) ([]model.ThresholdRule, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, threshold, notify_mode, label, created_at
		FROM threshold_rules ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.ThresholdRule, 0)
	for rows.Next() {
		rule, scanErr := scanThreshold(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func encodeMeta(rec model.ReminderRecord) (string, error) {
	var v any
	switch rec.Source {
	case model.SourceScheduled:
		v = rec.Scheduled
	case model.SourceThreshold:
		v = rec.Threshold
	}
	if v == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode meta: %w", err)
	}
	return string(raw), nil
}

func encodeWeekdays(days []int) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("decode weekdays %q: %w", raw, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func parseRequiredTime(v string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, v)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (model.ReminderRecord, error) {
	var out model.ReminderRecord
	var dueMs int64
	var source string
	var meta string
	if err := s.Scan(&out.ID, &dueMs, &out.Title, &out.Body, &source, &meta); err != nil {
		return model.ReminderRecord{}, err
	}
	out.DueAt = time.UnixMilli(dueMs).UTC()
	out.Source = model.SourceKind(source)
	switch out.Source {
	case model.SourceScheduled:
		var m model.ScheduledMeta
		if err := json.Unmarshal([]byte(meta), &m); err != nil {
			return model.ReminderRecord{}, fmt.Errorf("decode scheduled meta: %w", err)
		}
		out.Scheduled = &m
	case model.SourceThreshold:
		var m model.ThresholdMeta
		if err := json.Unmarshal([]byte(meta), &m); err != nil {
			return model.ReminderRecord{}, fmt.Errorf("decode threshold meta: %w", err)
		}
		out.Threshold = &m
	}
	return out, nil
}

func scanRecurrence(s scanner) (model.ScheduledRecurrence, error) {
	var out model.ScheduledRecurrence
	var weekdays string
	var created string
	if err := s.Scan(&out.ID, &weekdays, &out.TimeOfDay, &out.Label, &created); err != nil {
		return model.ScheduledRecurrence{}, err
	}
	days, err := decodeWeekdays(weekdays)
	if err != nil {
		return model.ScheduledRecurrence{}, err
	}
	createdAt, err := parseRequiredTime(created)
	if err != nil {
		return model.ScheduledRecurrence{}, err
	}
	out.Weekdays = days
	out.CreatedAt = createdAt
	return out, nil
}

func scanThreshold(s scanner) (model.ThresholdRule, error) {
	var out model.ThresholdRule
	var mode string
	var created string
	if err := s.Scan(&out.ID, &out.Threshold, &mode, &out.Label, &created); err != nil {
		return model.ThresholdRule{}, err
	}
	createdAt, err := parseRequiredTime(created)
	if err != nil {
		return model.ThresholdRule{}, err
	}
	out.Mode = model.NotifyMode(mode)
	out.CreatedAt = createdAt
	return out, nil
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
