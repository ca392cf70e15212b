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

const voucherColumns = `id, code, user_uid, type, service_id, any_service, plan_id, discount_percent,
	discount_amount, is_used, used_at, expires_at, reason, created_at`

func scanVoucher(row scanner) (*models.Voucher, error) {
	v := &models.Voucher{}
	var typ string
	var serviceID, planID sql.NullInt64
	var usedAt sql.NullTime
	if err := row.Scan(&v.ID, &v.Code, &v.UserUID, &typ, &serviceID, &v.AnyService, &planID,
		&v.DiscountPercent, &v.DiscountAmount, &v.IsUsed, &usedAt, &v.ExpiresAt, &v.Reason, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.Type = models.VoucherType(typ)
	v.ServiceID = int64Ptr(serviceID)
	v.PlanID = int64Ptr(planID)
	v.UsedAt = timePtr(usedAt)
	return v, nil
}

// CreateVoucher сохраняет новый ваучер.
func (s *Storage) CreateVoucher(ctx context.Context, v models.Voucher) (*models.Voucher, error) {
	const op = "storage.CreateVoucher"
	out, err := scanVoucher(s.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO vouchers (code, user_uid, type, service_id, any_service, plan_id,
			discount_percent, discount_amount, expires_at, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+voucherColumns,
		v.Code, v.UserUID, string(v.Type), nullInt64(v.ServiceID), v.AnyService, nullInt64(v.PlanID),
		v.DiscountPercent, v.DiscountAmount, v.ExpiresAt, v.Reason))
	if isUniqueViolation(err) {
		return nil, apperr.Validation("voucher code %s already exists", v.Code)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// GetVoucher возвращает ваучер по id.
func (s *Storage) GetVoucher(ctx context.Context, id int64) (*models.Voucher, error) {
	const op = "storage.GetVoucher"
	v, err := scanVoucher(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("voucher %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

// GetVoucherByCode возвращает ваучер по коду.
func (s *Storage) GetVoucherByCode(ctx context.Context, code string) (*models.Voucher, error) {
	const op = "storage.GetVoucherByCode"
	v, err := scanVoucher(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE code = $1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("voucher %s not found", code)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

// ListVouchersByUser возвращает ваучеры пользователя, новые первыми.
func (s *Storage) ListVouchersByUser(ctx context.Context, userUID string) ([]*models.Voucher, error) {
	const op = "storage.ListVouchersByUser"
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE user_uid = $1 ORDER BY created_at DESC`, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return collect(rows, op, scanVoucher)
}

// ListVouchers возвращает все ваучеры постранично.
func (s *Storage) ListVouchers(ctx context.Context, limit, offset int) ([]*models.Voucher, error) {
	const op = "storage.ListVouchers"
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+voucherColumns+` FROM vouchers ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return collect(rows, op, scanVoucher)
}

// ListVouchersExpiringBetween возвращает неиспользованные ваучеры со сроком в интервале (from, to].
func (s *Storage) ListVouchersExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.Voucher, error) {
	const op = "storage.ListVouchersExpiringBetween"
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT `+voucherColumns+` FROM vouchers
		WHERE NOT is_used AND expires_at > $1 AND expires_at <= $2
		ORDER BY expires_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return collect(rows, op, scanVoucher)
}

// MarkVoucherUsed погашает ваучер. Повторное погашение возвращает ошибку валидации.
func (s *Storage) MarkVoucherUsed(ctx context.Context, id int64, at time.Time) error {
	const op = "storage.MarkVoucherUsed"
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE vouchers SET is_used = TRUE, used_at = $2 WHERE id = $1 AND NOT is_used`, id, at)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(res, op, apperr.Validation("voucher %d is missing or already used", id))
}

// DeleteVoucher удаляет ваучер.
func (s *Storage) DeleteVoucher(ctx context.Context, id int64) error {
	const op = "storage.DeleteVoucher"
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM vouchers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(res, op, apperr.NotFound("voucher %d not found", id))
}
