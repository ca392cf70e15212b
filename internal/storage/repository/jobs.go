package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetJobCheckpoint возвращает время последнего запуска задачи. ok == false, если задача не запускалась.
func (s *Storage) GetJobCheckpoint(ctx context.Context, job string) (time.Time, bool, error) {
	const op = "storage.GetJobCheckpoint"
	var last time.Time
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT last_run_at FROM job_checkpoints WHERE job_name = $1`, job).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return last, true, nil
}

// SaveJobCheckpoint сохраняет время запуска задачи.
func (s *Storage) SaveJobCheckpoint(ctx context.Context, job string, at time.Time) error {
	const op = "storage.SaveJobCheckpoint"
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO job_checkpoints (job_name, last_run_at) VALUES ($1, $2)
		ON CONFLICT (job_name) DO UPDATE SET last_run_at = EXCLUDED.last_run_at`, job, at)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RecordWebhookEvent фиксирует событие шлюза. Возвращает false, если событие уже было обработано.
func (s *Storage) RecordWebhookEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	const op = "storage.RecordWebhookEvent"
	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, type) VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING`, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}
