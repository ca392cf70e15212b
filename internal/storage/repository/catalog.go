package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

const serviceColumns = `id, name, category, description, duration_minutes, price, active, created_at`

func scanService(row scanner) (*models.Service, error) {
	svc := &models.Service{}
	if err := row.Scan(&svc.ID, &svc.Name, &svc.Category, &svc.Description,
		&svc.DurationMinutes, &svc.Price, &svc.Active, &svc.CreatedAt); err != nil {
		return nil, err
	}
	return svc, nil
}

// CreateService сохраняет новую процедуру.
func (s *Storage) CreateService(ctx context.Context, svc models.Service) (*models.Service, error) {
	const op = "storage.CreateService"
	row := s.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO services (name, category, description, duration_minutes, price, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+serviceColumns,
		svc.Name, svc.Category, svc.Description, svc.DurationMinutes, svc.Price, svc.Active)
	out, err := scanService(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// UpdateService перезаписывает поля процедуры.
func (s *Storage) UpdateService(ctx context.Context, svc models.Service) (*models.Service, error) {
	const op = "storage.UpdateService"
	row := s.conn(ctx).QueryRowContext(ctx, `
		UPDATE services SET name = $2, category = $3, description = $4,
			duration_minutes = $5, price = $6, active = $7
		WHERE id = $1
		RETURNING `+serviceColumns,
		svc.ID, svc.Name, svc.Category, svc.Description, svc.DurationMinutes, svc.Price, svc.Active)
	out, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("service %d not found", svc.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// GetService возвращает процедуру по id.
func (s *Storage) GetService(ctx context.Context, id int64) (*models.Service, error) {
	const op = "storage.GetService"
	out, err := scanService(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("service %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// ListServices возвращает процедуры, при activeOnly только активные.
func (s *Storage) ListServices(ctx context.Context, activeOnly bool) ([]*models.Service, error) {
	const op = "storage.ListServices"
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE active OR NOT $1 ORDER BY category, name`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return collect(rows, op, scanService)
}

// DeactivateService скрывает процедуру из каталога. Записи на неё сохраняются.
func (s *Storage) DeactivateService(ctx context.Context, id int64) error {
	const op = "storage.DeactivateService"
	res, err := s.conn(ctx).ExecContext(ctx, `UPDATE services SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(res, op, apperr.NotFound("service %d not found", id))
}

const planColumns = `id, name, tier, price, max_treatments_per_month, min_commitment_months, active,
	stripe_product_id, stripe_price_id, created_at`

func scanPlan(row scanner) (*models.Plan, error) {
	p := &models.Plan{}
	var productID, priceID sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Tier, &p.Price, &p.MaxTreatmentsPerMonth,
		&p.MinCommitmentMonths, &p.Active, &productID, &priceID, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.StripeProductID = stringPtr(productID)
	p.StripePriceID = stringPtr(priceID)
	return p, nil
}

// CreatePlan сохраняет план вместе со списком процедур.
func (s *Storage) CreatePlan(ctx context.Context, plan models.Plan) (*models.Plan, error) {
	const op = "storage.CreatePlan"
	var out *models.Plan
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		out, err = scanPlan(s.conn(ctx).QueryRowContext(ctx, `
			INSERT INTO subscription_plans (name, tier, price, max_treatments_per_month, min_commitment_months, active)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+planColumns,
			plan.Name, plan.Tier, plan.Price, plan.MaxTreatmentsPerMonth, plan.MinCommitmentMonths, plan.Active))
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := s.replacePlanServices(ctx, out.ID, plan.ServiceIDs); err != nil {
			return err
		}
		out.ServiceIDs = plan.ServiceIDs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdatePlan перезаписывает поля плана и список процедур.
func (s *Storage) UpdatePlan(ctx context.Context, plan models.Plan) (*models.Plan, error) {
	const op = "storage.UpdatePlan"
	var out *models.Plan
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		out, err = scanPlan(s.conn(ctx).QueryRowContext(ctx, `
			UPDATE subscription_plans SET name = $2, tier = $3, price = $4,
				max_treatments_per_month = $5, min_commitment_months = $6, active = $7
			WHERE id = $1
			RETURNING `+planColumns,
			plan.ID, plan.Name, plan.Tier, plan.Price, plan.MaxTreatmentsPerMonth, plan.MinCommitmentMonths, plan.Active))
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("plan %d not found", plan.ID)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := s.replacePlanServices(ctx, out.ID, plan.ServiceIDs); err != nil {
			return err
		}
		out.ServiceIDs = plan.ServiceIDs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Storage) replacePlanServices(ctx context.Context, planID int64, serviceIDs []int64) error {
	const op = "storage.replacePlanServices"
	if _, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM plan_services WHERE plan_id = $1`, planID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, id := range serviceIDs {
		if _, err := s.conn(ctx).ExecContext(ctx,
			`INSERT INTO plan_services (plan_id, service_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			planID, id); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

func (s *Storage) planServiceIDs(ctx context.Context, planID int64) ([]int64, error) {
	const op = "storage.planServiceIDs"
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT service_id FROM plan_services WHERE plan_id = $1 ORDER BY service_id`, planID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return collect(rows, op, func(row scanner) (int64, error) {
		var id int64
		err := row.Scan(&id)
		return id, err
	})
}

// GetPlan возвращает план по id.
func (s *Storage) GetPlan(ctx context.Context, id int64) (*models.Plan, error) {
	const op = "storage.GetPlan"
	p, err := scanPlan(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM subscription_plans WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("plan %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if p.ServiceIDs, err = s.planServiceIDs(ctx, id); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPlans возвращает планы, при activeOnly только активные.
func (s *Storage) ListPlans(ctx context.Context, activeOnly bool) ([]*models.Plan, error) {
	const op = "storage.ListPlans"
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+planColumns+` FROM subscription_plans WHERE active OR NOT $1 ORDER BY price`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	plans, err := collect(rows, op, scanPlan)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if p.ServiceIDs, err = s.planServiceIDs(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

// DeactivatePlan скрывает план. Действующие подписки сохраняются.
func (s *Storage) DeactivatePlan(ctx context.Context, id int64) error {
	const op = "storage.DeactivatePlan"
	res, err := s.conn(ctx).ExecContext(ctx, `UPDATE subscription_plans SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(res, op, apperr.NotFound("plan %d not found", id))
}

// SetPlanStripeIDs сохраняет идентификаторы продукта и цены в платёжном шлюзе.
func (s *Storage) SetPlanStripeIDs(ctx context.Context, planID int64, productID, priceID string) error {
	const op = "storage.SetPlanStripeIDs"
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE subscription_plans SET stripe_product_id = $2, stripe_price_id = $3 WHERE id = $1`,
		planID, productID, priceID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(res, op, apperr.NotFound("plan %d not found", planID))
}

// GetSystemConfig возвращает глобальные настройки клиники.
func (s *Storage) GetSystemConfig(ctx context.Context) (models.SystemConfig, error) {
	const op = "storage.GetSystemConfig"
	cfg := models.DefaultSystemConfig()
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT min_cancellation_hours, min_reschedule_hours, slot_duration_minutes,
			max_subscription_appointments_per_day, pending_payment_expiry_minutes
		FROM system_config WHERE id = 1`).
		Scan(&cfg.MinCancellationHours, &cfg.MinRescheduleHours, &cfg.SlotDurationMinutes,
			&cfg.MaxSubscriptionAppointmentsPerDay, &cfg.PendingPaymentExpiryMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultSystemConfig(), nil
	}
	if err != nil {
		return models.SystemConfig{}, fmt.Errorf("%s: %w", op, err)
	}
	return cfg, nil
}

// UpdateSystemConfig сохраняет глобальные настройки клиники.
func (s *Storage) UpdateSystemConfig(ctx context.Context, cfg models.SystemConfig) error {
	const op = "storage.UpdateSystemConfig"
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO system_config (id, min_cancellation_hours, min_reschedule_hours, slot_duration_minutes,
			max_subscription_appointments_per_day, pending_payment_expiry_minutes)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			min_cancellation_hours = EXCLUDED.min_cancellation_hours,
			min_reschedule_hours = EXCLUDED.min_reschedule_hours,
			slot_duration_minutes = EXCLUDED.slot_duration_minutes,
			max_subscription_appointments_per_day = EXCLUDED.max_subscription_appointments_per_day,
			pending_payment_expiry_minutes = EXCLUDED.pending_payment_expiry_minutes`,
		cfg.MinCancellationHours, cfg.MinRescheduleHours, cfg.SlotDurationMinutes,
		cfg.MaxSubscriptionAppointmentsPerDay, cfg.PendingPaymentExpiryMinutes)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
