// Package voucher выпускает, проверяет и погашает ваучеры клиентов.
package voucher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/sl"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// DefaultValidMonths срок действия ваучера, если администратор его не указал.
const DefaultValidMonths = 3

// expiringWindow за сколько до истечения клиент получает напоминание.
const expiringWindow = 7 * 24 * time.Hour

// Repository методы хранилища, нужные сервису ваучеров.
type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateVoucher(ctx context.Context, v models.Voucher) (*models.Voucher, error)
	GetVoucher(ctx context.Context, id int64) (*models.Voucher, error)
	GetVoucherByCode(ctx context.Context, code string) (*models.Voucher, error)
	ListVouchersByUser(ctx context.Context, userUID string) ([]*models.Voucher, error)
	ListVouchers(ctx context.Context, limit, offset int) ([]*models.Voucher, error)
	ListVouchersExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.Voucher, error)
	MarkVoucherUsed(ctx context.Context, id int64, at time.Time) error
	DeleteVoucher(ctx context.Context, id int64) error
	VoucherReserved(ctx context.Context, voucherID, exceptAppointmentID int64) (bool, error)
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	GetService(ctx context.Context, id int64) (*models.Service, error)
	GetPlan(ctx context.Context, id int64) (*models.Plan, error)
	GetSubscriptionByUser(ctx context.Context, userUID string) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error)
}

// Notifier создаёт уведомления.
type Notifier interface {
	Notify(ctx context.Context, userUID string, typ models.NotificationType, priority models.Priority, appointmentID *int64, title, message string)
}

// Service сервис ваучеров.
type Service struct {
	repo     Repository
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

// NewService создаёт сервис.
func NewService(repo Repository, notifier Notifier, log *slog.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, log: log, now: time.Now}
}

// NewCode генерирует код ваучера с префиксом по виду.
func NewCode(t models.VoucherType) string {
	prefix := "V"
	switch t {
	case models.VoucherFreeTreatment:
		prefix = "FT"
	case models.VoucherDiscount:
		prefix = "DC"
	case models.VoucherFreeMonth:
		prefix = "FM"
	}
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + "-" + raw[:12]
}

// Issue выпускает ваучер клиенту.
func (s *Service) Issue(ctx context.Context, req models.IssueVoucherRequest) (*models.Voucher, error) {
	const op = "voucher.Issue"
	if _, err := s.repo.GetUser(ctx, req.UserUID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	v := models.Voucher{
		Code:    NewCode(req.Type),
		UserUID: req.UserUID,
		Type:    req.Type,
		Reason:  req.Reason,
	}
	switch req.Type {
	case models.VoucherFreeTreatment:
		if req.ServiceID == nil && !req.AnyService {
			return nil, apperr.Validation("free-treatment voucher needs a service or any_service")
		}
		if req.ServiceID != nil {
			if _, err := s.repo.GetService(ctx, *req.ServiceID); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
		v.ServiceID = req.ServiceID
		v.AnyService = req.AnyService && req.ServiceID == nil
	case models.VoucherDiscount:
		if req.DiscountPercent <= 0 && req.DiscountAmount <= 0 {
			return nil, apperr.Validation("discount voucher needs discount_percent or discount_amount")
		}
		v.DiscountPercent = req.DiscountPercent
		v.DiscountAmount = req.DiscountAmount
	case models.VoucherFreeMonth:
		if req.PlanID == nil {
			return nil, apperr.Validation("free-month voucher needs a plan")
		}
		if _, err := s.repo.GetPlan(ctx, *req.PlanID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		v.PlanID = req.PlanID
	default:
		return nil, apperr.Validation("unknown voucher type %q", req.Type)
	}

	months := req.ValidMonths
	if months <= 0 {
		months = DefaultValidMonths
	}
	v.ExpiresAt = s.now().AddDate(0, months, 0)

	created, err := s.repo.CreateVoucher(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("voucher issued", slog.Int64("voucher_id", created.ID), slog.String("type", string(created.Type)))
	s.notifier.Notify(ctx, created.UserUID, models.NotifyVoucherIssued, models.PriorityNormal, nil,
		"Вам выдан ваучер",
		fmt.Sprintf("Ваучер %s действует до %s.", created.Code, created.ExpiresAt.Format(models.DateLayout)))
	return created, nil
}

// IssueCompensation выпускает скидочный ваучер на сумму amount вместо возврата денег.
func (s *Service) IssueCompensation(ctx context.Context, userUID string, amount int64, months int, reason string) (*models.Voucher, error) {
	const op = "voucher.IssueCompensation"
	v, err := s.repo.CreateVoucher(ctx, models.Voucher{
		Code:           NewCode(models.VoucherDiscount),
		UserUID:        userUID,
		Type:           models.VoucherDiscount,
		DiscountAmount: amount,
		ExpiresAt:      s.now().AddDate(0, months, 0),
		Reason:         reason,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.notifier.Notify(ctx, userUID, models.NotifyVoucherIssued, models.PriorityHigh, nil,
		"Компенсация за отмену",
		fmt.Sprintf("Вместо возврата вам выдан ваучер %s на скидку %d, действует до %s.",
			v.Code, amount, v.ExpiresAt.Format(models.DateLayout)))
	return v, nil
}

func (s *Service) lookup(ctx context.Context, userUID, code string, id int64) (*models.Voucher, error) {
	var (
		v   *models.Voucher
		err error
	)
	if code != "" {
		v, err = s.repo.GetVoucherByCode(ctx, strings.TrimSpace(code))
	} else {
		v, err = s.repo.GetVoucher(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	// чужой ваучер не раскрывается
	if v.UserUID != userUID {
		return nil, apperr.NotFound("voucher not found")
	}
	return v, nil
}

// Validate проверяет, можно ли использовать ваучер, и считает цену процедуры при serviceID.
// Непригодный ваучер возвращается с Valid=false и причиной.
func (s *Service) Validate(ctx context.Context, userUID string, req models.ValidateVoucherRequest) (*models.VoucherValidation, error) {
	const op = "voucher.Validate"
	v, err := s.lookup(ctx, userUID, req.Code, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res := &models.VoucherValidation{Voucher: v}
	reason, err := s.check(ctx, v, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if reason != "" {
		res.Reason = reason
		return res, nil
	}
	res.Valid = true
	if req.ServiceID != nil && v.Type != models.VoucherFreeMonth {
		svc, err := s.repo.GetService(ctx, *req.ServiceID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		price := v.PriceFor(svc.Price)
		res.FinalPrice = &price
	}
	return res, nil
}

// check возвращает причину непригодности или пустую строку.
func (s *Service) check(ctx context.Context, v *models.Voucher, serviceID *int64) (string, error) {
	if err := v.CheckUsable(s.now()); err != nil {
		return apperr.MessageOf(err), nil
	}
	switch v.Type {
	case models.VoucherFreeMonth:
		sub, err := s.repo.GetSubscriptionByUser(ctx, v.UserUID)
		if err != nil {
			return "", err
		}
		if sub != nil && sub.ActiveAt(s.now()) {
			return "free-month voucher requires no active subscription", nil
		}
		return "", nil
	case models.VoucherFreeTreatment, models.VoucherDiscount:
		if serviceID != nil {
			if err := v.CheckService(*serviceID); err != nil {
				return apperr.MessageOf(err), nil
			}
		}
		reserved, err := s.repo.VoucherReserved(ctx, v.ID, 0)
		if err != nil {
			return "", err
		}
		if reserved {
			return "voucher is already reserved by another appointment", nil
		}
		return "", nil
	default:
		panic(fmt.Sprintf("voucher: unknown voucher type %q", string(v.Type)))
	}
}

// ActivateFreeMonth активирует бесплатный месяц подписки и сразу погашает ваучер.
func (s *Service) ActivateFreeMonth(ctx context.Context, userUID string, voucherID int64) (*models.Subscription, error) {
	const op = "voucher.ActivateFreeMonth"
	v, err := s.lookup(ctx, userUID, "", voucherID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if v.Type != models.VoucherFreeMonth {
		return nil, apperr.Validation("voucher %s is not a free-month voucher", v.Code)
	}
	if v.PlanID == nil {
		return nil, apperr.Validation("voucher %s has no plan", v.Code)
	}
	reason, err := s.check(ctx, v, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if reason != "" {
		return nil, apperr.Validation("%s", reason)
	}

	now := s.now()
	end := now.AddDate(0, 1, 0)
	var sub *models.Subscription
	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.repo.UpsertSubscription(ctx, models.Subscription{
			UserUID:          userUID,
			PlanID:           *v.PlanID,
			Status:           models.SubscriptionActive,
			StartDate:        now,
			EndDate:          &end,
			MinCommitmentEnd: now,
		})
		if err != nil {
			return err
		}
		return s.repo.MarkVoucherUsed(ctx, v.ID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("free month activated", slog.String("user_uid", userUID), slog.Int64("voucher_id", v.ID))
	s.notifier.Notify(ctx, userUID, models.NotifySubscriptionActivated, models.PriorityNormal, nil,
		"Бесплатный месяц активирован",
		fmt.Sprintf("Подписка действует до %s.", end.Format(models.DateLayout)))
	return sub, nil
}

// ListMine возвращает ваучеры клиента.
func (s *Service) ListMine(ctx context.Context, userUID string) ([]*models.Voucher, error) {
	const op = "voucher.ListMine"
	list, err := s.repo.ListVouchersByUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

// ListAll возвращает все ваучеры для администратора.
func (s *Service) ListAll(ctx context.Context, limit, offset int) ([]*models.Voucher, error) {
	const op = "voucher.ListAll"
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	list, err := s.repo.ListVouchers(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

// Delete удаляет ваучер.
func (s *Service) Delete(ctx context.Context, id int64) error {
	const op = "voucher.Delete"
	if err := s.repo.DeleteVoucher(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// NotifyExpiring напоминает владельцам о ваучерах, истекающих в ближайшие 7 дней.
func (s *Service) NotifyExpiring(ctx context.Context) (int, error) {
	const op = "voucher.NotifyExpiring"
	now := s.now()
	list, err := s.repo.ListVouchersExpiringBetween(ctx, now, now.Add(expiringWindow))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	for _, v := range list {
		days := int(v.ExpiresAt.Sub(now).Hours()/24) + 1
		s.notifier.Notify(ctx, v.UserUID, models.NotifyVoucherExpiring, models.PriorityNormal, nil,
			"Ваучер скоро истечёт",
			fmt.Sprintf("Ваучер %s истекает через %d дн. (%s).", v.Code, days, v.ExpiresAt.Format(models.DateLayout)))
	}
	if len(list) > 0 {
		s.log.Info("expiring vouchers notified", sl.Op(op), slog.Int("count", len(list)))
	}
	return len(list), nil
}
