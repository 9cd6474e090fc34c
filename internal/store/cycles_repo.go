package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"focuscycle/internal/core"
)

var ErrCycleNotFound = errors.New("cycle not found")

// CycleRecord is a journaled cycle together with its bookkeeping columns.
type CycleRecord struct {
	Cycle          core.Cycle
	ElapsedSeconds int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InsertCycle journals a newly created cycle.
func (s *Store) InsertCycle(ctx context.Context, cycle core.Cycle) error {
	now := formatTime(time.Now())
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO cycles (id, task, minutes_amount, status, start_date, ended_at, elapsed_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, cycle.ID, cycle.Task, cycle.MinutesAmount, cycle.Status, formatTime(cycle.StartDate),
		nullableTime(cycle.EndedAt), now, now)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

// MarkCycleEnded records the terminal transition of a running cycle. Cycles
// that already ended keep their first terminal status.
func (s *Store) MarkCycleEnded(ctx context.Context, id string, status core.CycleStatus, endedAt time.Time, elapsed int) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE cycles
		SET status = ?, ended_at = ?, elapsed_seconds = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, status, formatTime(endedAt), elapsed, formatTime(time.Now()), id, core.CycleStatusRunning)
	if err != nil {
		return fmt.Errorf("mark cycle ended: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark cycle ended rows: %w", err)
	}
	if rows == 0 {
		return ErrCycleNotFound
	}
	return nil
}

// GetCycle loads one journaled cycle.
func (s *Store) GetCycle(ctx context.Context, id string) (*CycleRecord, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, task, minutes_amount, status, start_date, ended_at, elapsed_seconds, created_at, updated_at
		FROM cycles WHERE id = ?
	`, id)
	rec, err := scanCycle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCycleNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListCycles returns journaled cycles, newest first.
func (s *Store) ListCycles(ctx context.Context, limit, offset int) ([]*CycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, task, minutes_amount, status, start_date, ended_at, elapsed_seconds, created_at, updated_at
		FROM cycles
		ORDER BY start_date DESC, created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()
	var records []*CycleRecord
	for rows.Next() {
		rec, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// PruneCycles deletes journaled cycles beyond the retention limit.
func (s *Store) PruneCycles(ctx context.Context) (int64, error) {
	if s.Retention <= 0 {
		return 0, nil
	}
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM cycles
		WHERE id IN (
			SELECT id FROM cycles
			ORDER BY start_date DESC, created_at DESC
			LIMIT -1 OFFSET ?
		)
	`, s.Retention)
	if err != nil {
		return 0, fmt.Errorf("prune cycles: %w", err)
	}
	return res.RowsAffected()
}

func scanCycle(scanner interface {
	Scan(dest ...any) error
}) (*CycleRecord, error) {
	var (
		id        string
		task      string
		minutes   int
		status    string
		startDate string
		endedAt   sql.NullString
		elapsed   int
		createdAt string
		updatedAt string
	)
	if err := scanner.Scan(&id, &task, &minutes, &status, &startDate, &endedAt, &elapsed, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan cycle: %w", err)
	}
	rec := &CycleRecord{
		Cycle: core.Cycle{
			ID:            id,
			Task:          task,
			MinutesAmount: minutes,
			Status:        core.CycleStatus(status),
		},
		ElapsedSeconds: elapsed,
	}
	var err error
	if rec.Cycle.StartDate, err = parseTime(startDate); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		if rec.Cycle.EndedAt, err = parseTime(endedAt.String); err != nil {
			return nil, err
		}
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return rec, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", value, err)
	}
	return t, nil
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return formatTime(value)
}
