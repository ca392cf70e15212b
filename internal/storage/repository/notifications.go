package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

const notificationColumns = `id, user_uid, type, title, message, priority, is_read, appointment_id, created_at`

func scanNotification(row scanner) (*models.Notification, error) {
	n := &models.Notification{}
	var userUID sql.NullString
	var typ, priority string
	var appointmentID sql.NullInt64
	if err := row.Scan(&n.ID, &userUID, &typ, &n.Title, &n.Message, &priority, &n.IsRead,
		&appointmentID, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.UserUID = stringPtr(userUID)
	n.Type = models.NotificationType(typ)
	n.Priority = models.Priority(priority)
	n.AppointmentID = int64Ptr(appointmentID)
	return n, nil
}

// CreateNotification сохраняет уведомление.
func (s *Storage) CreateNotification(ctx context.Context, n models.Notification) (*models.Notification, error) {
	const op = "storage.CreateNotification"
	out, err := scanNotification(s.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO notifications (user_uid, type, title, message, priority, appointment_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+notificationColumns,
		nullString(n.UserUID), string(n.Type), n.Title, n.Message, string(n.Priority), nullInt64(n.AppointmentID)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// recipientCond выбирает уведомления получателя: пользователя или, для администратора,
// ещё и общие уведомления без пользователя.
func recipientCond(userUID string, admin bool) exp.Expression {
	own := goqu.C("user_uid").Eq(userUID)
	if admin {
		return goqu.Or(own, goqu.C("user_uid").IsNull())
	}
	return own
}

// ListNotifications возвращает уведомления получателя, новые первыми.
func (s *Storage) ListNotifications(ctx context.Context, userUID string, admin, unreadOnly bool, limit, offset int) ([]*models.Notification, error) {
	const op = "storage.ListNotifications"
	ds := s.dialect.From("notifications").
		Select("id", "user_uid", "type", "title", "message", "priority", "is_read", "appointment_id", "created_at").
		Where(recipientCond(userUID, admin)).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc())
	if unreadOnly {
		ds = ds.Where(goqu.C("is_read").IsFalse())
	}
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	if offset > 0 {
		ds = ds.Offset(uint(offset))
	}
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return collect(rows, op, scanNotification)
}

// CountUnreadNotifications считает непрочитанные уведомления получателя.
func (s *Storage) CountUnreadNotifications(ctx context.Context, userUID string, admin bool) (int, error) {
	const op = "storage.CountUnreadNotifications"
	query, args, err := s.dialect.From("notifications").
		Select(goqu.COUNT(goqu.Star())).
		Where(recipientCond(userUID, admin), goqu.C("is_read").IsFalse()).
		Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("%s: build query: %w", op, err)
	}
	var n int
	if err := s.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// MarkNotificationRead отмечает уведомление прочитанным, если оно принадлежит получателю.
func (s *Storage) MarkNotificationRead(ctx context.Context, id int64, userUID string, admin bool) error {
	const op = "storage.MarkNotificationRead"
	query, args, err := s.dialect.Update("notifications").
		Set(goqu.Record{"is_read": true}).
		Where(goqu.C("id").Eq(id), recipientCond(userUID, admin)).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("%s: build query: %w", op, err)
	}
	res, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(res, op, apperr.NotFound("notification %d not found", id))
}

// MarkAllNotificationsRead отмечает прочитанными все уведомления получателя.
func (s *Storage) MarkAllNotificationsRead(ctx context.Context, userUID string, admin bool) (int64, error) {
	const op = "storage.MarkAllNotificationsRead"
	query, args, err := s.dialect.Update("notifications").
		Set(goqu.Record{"is_read": true}).
		Where(recipientCond(userUID, admin), goqu.C("is_read").IsFalse()).
		Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("%s: build query: %w", op, err)
	}
	res, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
