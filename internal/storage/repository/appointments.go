package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

var appointmentFields = []any{
	"id", "user_uid", "service_id", "start_time", "end_time", "status", "origin",
	"payment_status", "payment_amount", "voucher_id", "confirmed_by_admin", "notes",
	"canceled_by", "canceled_at", "cancellation_reason", "created_at", "updated_at",
}

const appointmentColumns = `id, user_uid, service_id, start_time, end_time, status, origin,
	payment_status, payment_amount, voucher_id, confirmed_by_admin, notes,
	canceled_by, canceled_at, cancellation_reason, created_at, updated_at`

func scanAppointment(row scanner) (*models.Appointment, error) {
	a := &models.Appointment{}
	var status, origin, paymentStatus string
	var voucherID sql.NullInt64
	var canceledBy sql.NullString
	var canceledAt sql.NullTime
	if err := row.Scan(&a.ID, &a.UserUID, &a.ServiceID, &a.StartTime, &a.EndTime, &status, &origin,
		&paymentStatus, &a.PaymentAmount, &voucherID, &a.ConfirmedByAdmin, &a.Notes,
		&canceledBy, &canceledAt, &a.CancellationReason, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = models.AppointmentStatus(status)
	a.Origin = models.Origin(origin)
	a.PaymentStatus = models.PaymentStatus(paymentStatus)
	a.VoucherID = int64Ptr(voucherID)
	if canceledBy.Valid {
		by := models.CancelActor(canceledBy.String)
		a.CanceledBy = &by
	}
	a.CanceledAt = timePtr(canceledAt)
	return a, nil
}

func canceledByValue(by *models.CancelActor) sql.NullString {
	if by == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*by), Valid: true}
}

// CreateAppointment сохраняет запись и возвращает её с присвоенным id.
func (s *Storage) CreateAppointment(ctx context.Context, a models.Appointment) (*models.Appointment, error) {
	const op = "storage.CreateAppointment"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	out, err := scanAppointment(s.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO appointments (user_uid, service_id, start_time, end_time, status, origin,
			payment_status, payment_amount, voucher_id, confirmed_by_admin, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+appointmentColumns,
		a.UserUID, a.ServiceID, a.StartTime, a.EndTime, string(a.Status), string(a.Origin),
		string(a.PaymentStatus), a.PaymentAmount, nullInt64(a.VoucherID), a.ConfirmedByAdmin, a.Notes))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// GetAppointment возвращает запись по id.
func (s *Storage) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	const op = "storage.GetAppointment"
	a, err := scanAppointment(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("appointment %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// UpdateAppointment перезаписывает изменяемые поля записи.
func (s *Storage) UpdateAppointment(ctx context.Context, a models.Appointment) (*models.Appointment, error) {
	const op = "storage.UpdateAppointment"
	out, err := scanAppointment(s.conn(ctx).QueryRowContext(ctx, `
		UPDATE appointments SET
			start_time = $2, end_time = $3, status = $4, payment_status = $5, payment_amount = $6,
			voucher_id = $7, confirmed_by_admin = $8, notes = $9, canceled_by = $10,
			canceled_at = $11, cancellation_reason = $12, updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		a.ID, a.StartTime, a.EndTime, string(a.Status), string(a.PaymentStatus), a.PaymentAmount,
		nullInt64(a.VoucherID), a.ConfirmedByAdmin, a.Notes, canceledByValue(a.CanceledBy),
		nullTime(a.CanceledAt), a.CancellationReason))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("appointment %d not found", a.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// ListAppointments возвращает записи по фильтру, отсортированные по времени начала.
func (s *Storage) ListAppointments(ctx context.Context, f models.AppointmentFilter) ([]*models.Appointment, error) {
	const op = "storage.ListAppointments"

	ds := s.dialect.From("appointments").Select(appointmentFields...).Order(goqu.C("start_time").Asc())
	if f.UserUID != nil {
		ds = ds.Where(goqu.C("user_uid").Eq(*f.UserUID))
	}
	if f.Status != nil {
		ds = ds.Where(goqu.C("status").Eq(string(*f.Status)))
	}
	if f.Origin != nil {
		ds = ds.Where(goqu.C("origin").Eq(string(*f.Origin)))
	}
	if f.From != nil {
		ds = ds.Where(goqu.C("start_time").Gte(*f.From))
	}
	if f.To != nil {
		ds = ds.Where(goqu.C("start_time").Lt(*f.To))
	}
	if f.Limit > 0 {
		ds = ds.Limit(uint(f.Limit))
	}
	if f.Offset > 0 {
		ds = ds.Offset(uint(f.Offset))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return collect(rows, op, scanAppointment)
}

// CountUserActiveAppointments считает не отменённые записи пользователя.
func (s *Storage) CountUserActiveAppointments(ctx context.Context, userUID string) (int, error) {
	const op = "storage.CountUserActiveAppointments"
	var n int
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM appointments WHERE user_uid = $1 AND status <> 'canceled'`, userUID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// CountSubscriptionAppointmentsBetween считает не отменённые записи пользователя по подписке
// с началом в интервале [from, to).
func (s *Storage) CountSubscriptionAppointmentsBetween(ctx context.Context, userUID string, from, to time.Time) (int, error) {
	const op = "storage.CountSubscriptionAppointmentsBetween"
	var n int
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE user_uid = $1 AND origin = 'subscription' AND status <> 'canceled'
		  AND start_time >= $2 AND start_time < $3`, userUID, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// CountAppointmentsAt считает не отменённые записи, начинающиеся ровно в start.
func (s *Storage) CountAppointmentsAt(ctx context.Context, start time.Time) (int, error) {
	const op = "storage.CountAppointmentsAt"
	var n int
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM appointments WHERE start_time = $1 AND status <> 'canceled'`, start).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// ListBookedStarts возвращает время начала не отменённых записей в интервале [from, to).
func (s *Storage) ListBookedStarts(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	const op = "storage.ListBookedStarts"
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT start_time FROM appointments
		WHERE status <> 'canceled' AND start_time >= $1 AND start_time < $2`, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return collect(rows, op, func(row scanner) (time.Time, error) {
		var t time.Time
		err := row.Scan(&t)
		return t, err
	})
}

// ListStalePendingPayments возвращает разовые записи, не оплаченные до createdBefore.
func (s *Storage) ListStalePendingPayments(ctx context.Context, createdBefore time.Time) ([]*models.Appointment, error) {
	const op = "storage.ListStalePendingPayments"
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE origin = 'single' AND status = 'pending' AND payment_status = 'pending'
		  AND created_at < $1
		ORDER BY created_at`, createdBefore)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return collect(rows, op, scanAppointment)
}

// ListOpenAppointmentsBetween возвращает записи pending и confirmed с началом в интервале [from, to).
func (s *Storage) ListOpenAppointmentsBetween(ctx context.Context, from, to time.Time) ([]*models.Appointment, error) {
	const op = "storage.ListOpenAppointmentsBetween"
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE status IN ('pending', 'confirmed') AND start_time >= $1 AND start_time < $2
		ORDER BY start_time`, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return collect(rows, op, scanAppointment)
}

// VoucherReserved сообщает, зарезервирован ли ваучер другой действующей записью.
func (s *Storage) VoucherReserved(ctx context.Context, voucherID, exceptAppointmentID int64) (bool, error) {
	const op = "storage.VoucherReserved"
	var exists bool
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE voucher_id = $1 AND id <> $2 AND status IN ('pending', 'confirmed')
		)`, voucherID, exceptAppointmentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}
