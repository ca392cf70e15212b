package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

func encodeSlots(slots []string) (string, error) {
	if slots == nil {
		slots = []string{}
	}
	b, err := json.Marshal(slots)
	return string(b), err
}

func decodeSlots(raw []byte) ([]string, error) {
	var slots []string
	if len(raw) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, nil
	}
	return slots, nil
}

func scanTemplate(row scanner) (*models.ManagerSchedule, error) {
	m := &models.ManagerSchedule{}
	var raw []byte
	if err := row.Scan(&m.Weekday, &m.IsOpen, &m.OpenTime, &m.CloseTime, &raw); err != nil {
		return nil, err
	}
	slots, err := decodeSlots(raw)
	if err != nil {
		return nil, err
	}
	m.Slots = slots
	return m, nil
}

// GetWeeklyTemplate возвращает шаблон на день недели или nil, если он не задан.
func (s *Storage) GetWeeklyTemplate(ctx context.Context, weekday int) (*models.ManagerSchedule, error) {
	const op = "storage.GetWeeklyTemplate"
	m, err := scanTemplate(s.conn(ctx).QueryRowContext(ctx,
		`SELECT weekday, is_open, open_time, close_time, slots FROM manager_schedules WHERE weekday = $1`, weekday))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return m, nil
}

// ListWeeklyTemplates возвращает все заданные шаблоны.
func (s *Storage) ListWeeklyTemplates(ctx context.Context) ([]*models.ManagerSchedule, error) {
	const op = "storage.ListWeeklyTemplates"
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT weekday, is_open, open_time, close_time, slots FROM manager_schedules ORDER BY weekday`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return collect(rows, op, scanTemplate)
}

// UpsertWeeklyTemplate сохраняет шаблон на день недели.
func (s *Storage) UpsertWeeklyTemplate(ctx context.Context, m models.ManagerSchedule) error {
	const op = "storage.UpsertWeeklyTemplate"
	slots, err := encodeSlots(m.Slots)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO manager_schedules (weekday, is_open, open_time, close_time, slots)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (weekday) DO UPDATE SET
			is_open = EXCLUDED.is_open,
			open_time = EXCLUDED.open_time,
			close_time = EXCLUDED.close_time,
			slots = EXCLUDED.slots`,
		m.Weekday, m.IsOpen, m.OpenTime, m.CloseTime, slots)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func scanOverride(row scanner) (*models.ScheduleOverride, error) {
	o := &models.ScheduleOverride{}
	var open, closeAt sql.NullString
	var raw []byte
	if err := row.Scan(&o.Date, &o.IsClosed, &open, &closeAt, &raw, &o.Reason); err != nil {
		return nil, err
	}
	slots, err := decodeSlots(raw)
	if err != nil {
		return nil, err
	}
	o.OpenTime = stringPtr(open)
	o.CloseTime = stringPtr(closeAt)
	o.Slots = slots
	return o, nil
}

const overrideColumns = `date, is_closed, open_time, close_time, slots, reason`

// dateOnly отбрасывает время, сохраняя календарную дату в исходном часовом поясе.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetOverride возвращает исключение на дату или nil.
func (s *Storage) GetOverride(ctx context.Context, date time.Time) (*models.ScheduleOverride, error) {
	const op = "storage.GetOverride"
	o, err := scanOverride(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+overrideColumns+` FROM schedule_overrides WHERE date = $1`, dateOnly(date)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return o, nil
}

// ListOverrides возвращает исключения в интервале дат [from, to].
func (s *Storage) ListOverrides(ctx context.Context, from, to time.Time) ([]*models.ScheduleOverride, error) {
	const op = "storage.ListOverrides"
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+overrideColumns+` FROM schedule_overrides WHERE date >= $1 AND date <= $2 ORDER BY date`,
		dateOnly(from), dateOnly(to))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return collect(rows, op, scanOverride)
}

// UpsertOverride сохраняет исключение на дату.
func (s *Storage) UpsertOverride(ctx context.Context, o models.ScheduleOverride) error {
	const op = "storage.UpsertOverride"
	slots, err := encodeSlots(o.Slots)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO schedule_overrides (date, is_closed, open_time, close_time, slots, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (date) DO UPDATE SET
			is_closed = EXCLUDED.is_closed,
			open_time = EXCLUDED.open_time,
			close_time = EXCLUDED.close_time,
			slots = EXCLUDED.slots,
			reason = EXCLUDED.reason`,
		dateOnly(o.Date), o.IsClosed, nullString(o.OpenTime), nullString(o.CloseTime), slots, o.Reason)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteOverride удаляет исключение на дату.
func (s *Storage) DeleteOverride(ctx context.Context, date time.Time) error {
	const op = "storage.DeleteOverride"
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM schedule_overrides WHERE date = $1`, dateOnly(date))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(res, op, apperr.NotFound("no schedule override on %s", date.Format(models.DateLayout)))
}
