package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

const subscriptionColumns = `id, user_uid, plan_id, status, start_date, end_date, min_commitment_end,
	stripe_subscription_id, canceled_at, created_at`

func scanSubscription(row scanner) (*models.Subscription, error) {
	sub := &models.Subscription{}
	var status string
	var endDate, canceledAt sql.NullTime
	var stripeID sql.NullString
	if err := row.Scan(&sub.ID, &sub.UserUID, &sub.PlanID, &status, &sub.StartDate, &endDate,
		&sub.MinCommitmentEnd, &stripeID, &canceledAt, &sub.CreatedAt); err != nil {
		return nil, err
	}
	sub.Status = models.SubscriptionStatus(status)
	sub.EndDate = timePtr(endDate)
	sub.CanceledAt = timePtr(canceledAt)
	sub.StripeSubscriptionID = stringPtr(stripeID)
	return sub, nil
}

func (s *Storage) getSubscriptionBy(ctx context.Context, op, where string, arg any) (*models.Subscription, error) {
	sub, err := scanSubscription(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// GetSubscriptionByUser возвращает подписку пользователя или nil.
func (s *Storage) GetSubscriptionByUser(ctx context.Context, userUID string) (*models.Subscription, error) {
	return s.getSubscriptionBy(ctx, "storage.GetSubscriptionByUser", "user_uid = $1", userUID)
}

// GetSubscriptionByStripeID возвращает подписку по идентификатору в платёжном шлюзе или nil.
func (s *Storage) GetSubscriptionByStripeID(ctx context.Context, stripeID string) (*models.Subscription, error) {
	return s.getSubscriptionBy(ctx, "storage.GetSubscriptionByStripeID", "stripe_subscription_id = $1", stripeID)
}

// UpsertSubscription создаёт подписку пользователя или перезаписывает существующую.
func (s *Storage) UpsertSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error) {
	const op = "storage.UpsertSubscription"
	out, err := scanSubscription(s.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO subscriptions (user_uid, plan_id, status, start_date, end_date, min_commitment_end,
			stripe_subscription_id, canceled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_uid) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			status = EXCLUDED.status,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			min_commitment_end = EXCLUDED.min_commitment_end,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			canceled_at = EXCLUDED.canceled_at
		RETURNING `+subscriptionColumns,
		sub.UserUID, sub.PlanID, string(sub.Status), sub.StartDate, nullTime(sub.EndDate),
		sub.MinCommitmentEnd, nullString(sub.StripeSubscriptionID), nullTime(sub.CanceledAt)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// UpdateSubscription сохраняет статус и даты подписки.
func (s *Storage) UpdateSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error) {
	const op = "storage.UpdateSubscription"
	out, err := scanSubscription(s.conn(ctx).QueryRowContext(ctx, `
		UPDATE subscriptions SET status = $2, end_date = $3, canceled_at = $4
		WHERE id = $1
		RETURNING `+subscriptionColumns,
		sub.ID, string(sub.Status), nullTime(sub.EndDate), nullTime(sub.CanceledAt)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("subscription %d not found", sub.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// ListExpiredFreeSubscriptions возвращает активные подписки без привязки к шлюзу, срок которых истёк.
func (s *Storage) ListExpiredFreeSubscriptions(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	const op = "storage.ListExpiredFreeSubscriptions"
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = 'active' AND stripe_subscription_id IS NULL
		  AND end_date IS NOT NULL AND end_date <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return collect(rows, op, scanSubscription)
}

// GetMonthlyUsage возвращает счётчик за месяц. Отсутствующая строка означает ноль.
func (s *Storage) GetMonthlyUsage(ctx context.Context, userUID string, month, year int) (models.MonthlyUsage, error) {
	const op = "storage.GetMonthlyUsage"
	usage := models.MonthlyUsage{UserUID: userUID, Month: month, Year: year}
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT total_treatments FROM monthly_usage
		WHERE user_uid = $1 AND month = $2 AND year = $3`, userUID, month, year).Scan(&usage.TotalTreatments)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return usage, fmt.Errorf("%s: %w", op, err)
	}
	return usage, nil
}

// IncrementMonthlyUsage увеличивает счётчик за месяц на единицу.
func (s *Storage) IncrementMonthlyUsage(ctx context.Context, userUID string, month, year int) error {
	const op = "storage.IncrementMonthlyUsage"
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO monthly_usage (user_uid, month, year, total_treatments)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (user_uid, month, year)
		DO UPDATE SET total_treatments = monthly_usage.total_treatments + 1`, userUID, month, year)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DecrementMonthlyUsage уменьшает счётчик за месяц на единицу, не ниже нуля.
func (s *Storage) DecrementMonthlyUsage(ctx context.Context, userUID string, month, year int) error {
	const op = "storage.DecrementMonthlyUsage"
	_, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE monthly_usage SET total_treatments = GREATEST(total_treatments - 1, 0)
		WHERE user_uid = $1 AND month = $2 AND year = $3`, userUID, month, year)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
