// Package subscription управляет подписками клиентов на планы: оформление через
// платёжный шлюз, отмена с льготным периодом, пауза и учёт квоты процедур.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/month"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/sl"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
	"github.com/magabrotheeeer/beauty-clinic/internal/paymentprovider"
)

// Repository определяет методы хранилища для работы с подписками.
type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetSubscriptionByUser(ctx context.Context, userUID string) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error)
	UpdateSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error)
	ListExpiredFreeSubscriptions(ctx context.Context, now time.Time) ([]*models.Subscription, error)
	GetPlan(ctx context.Context, id int64) (*models.Plan, error)
	SetPlanStripeIDs(ctx context.Context, planID int64, productID, priceID string) error
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, userUID, customerID string) error
	GetMonthlyUsage(ctx context.Context, userUID string, month, year int) (models.MonthlyUsage, error)
	GetVoucherByCode(ctx context.Context, code string) (*models.Voucher, error)
	MarkVoucherUsed(ctx context.Context, id int64, at time.Time) error
}

// Gateway операции платёжного шлюза, нужные подпискам.
type Gateway interface {
	GetOrCreateCustomer(ctx context.Context, user models.User) (string, error)
	EnsurePlanPrice(ctx context.Context, plan *models.Plan) (bool, error)
	CreateSubscriptionCheckout(ctx context.Context, customerID, userUID string, plan models.Plan, discount *paymentprovider.Discount) (*models.CheckoutSession, error)
	CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error)
}

// Notifier создаёт уведомления.
type Notifier interface {
	Notify(ctx context.Context, userUID string, typ models.NotificationType, priority models.Priority, appointmentID *int64, title, message string)
	NotifyAdmins(ctx context.Context, typ models.NotificationType, priority models.Priority, appointmentID *int64, title, message string)
}

// Service сервис подписок.
type Service struct {
	repo     Repository
	gateway  Gateway
	notifier Notifier
	loc      *time.Location
	log      *slog.Logger
	now      func() time.Time
}

// NewService создаёт сервис подписок.
func NewService(repo Repository, gateway Gateway, notifier Notifier, loc *time.Location, log *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, gateway: gateway, notifier: notifier, loc: loc, log: log, now: time.Now}
}

// GetMine возвращает подписку пользователя.
func (s *Service) GetMine(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "subscription.GetMine"
	sub, err := s.repo.GetSubscriptionByUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sub == nil {
		return nil, apperr.NotFound("subscription not found")
	}
	return sub, nil
}

// Subscribe оформляет подписку. Платный план возвращает ссылку на оплату,
// бесплатный активируется сразу.
func (s *Service) Subscribe(ctx context.Context, userUID string, req models.SubscribeRequest) (*models.SubscribeResult, error) {
	const op = "subscription.Subscribe"
	log := s.log.With(sl.Op(op), slog.String("user_uid", userUID))

	plan, err := s.repo.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !plan.Active {
		return nil, apperr.Validation("plan %q is not available", plan.Name)
	}
	current, err := s.repo.GetSubscriptionByUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := s.now()
	if current != nil && current.Status != models.SubscriptionCanceled &&
		(current.EndDate == nil || current.EndDate.After(now)) {
		return nil, apperr.Validation("user already has a %s subscription", current.Status)
	}

	var voucher *models.Voucher
	if code := strings.TrimSpace(req.VoucherCode); code != "" {
		voucher, err = s.discountVoucher(ctx, userUID, code)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if plan.Price == 0 || (voucher != nil && voucher.PriceFor(plan.Price) == 0) {
		sub, err := s.activate(ctx, userUID, plan, voucher)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("subscription activated without payment", slog.Int64("plan_id", plan.ID))
		return &models.SubscribeResult{Subscription: sub}, nil
	}

	user, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	customerID, err := s.customer(ctx, *user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	changed, err := s.gateway.EnsurePlanPrice(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if changed {
		if err := s.repo.SetPlanStripeIDs(ctx, plan.ID, *plan.StripeProductID, *plan.StripePriceID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	var discount *paymentprovider.Discount
	if voucher != nil {
		discount = &paymentprovider.Discount{PercentOff: voucher.DiscountPercent, AmountOff: voucher.DiscountAmount}
	}
	session, err := s.gateway.CreateSubscriptionCheckout(ctx, customerID, userUID, *plan, discount)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if voucher != nil {
		if err := s.repo.MarkVoucherUsed(ctx, voucher.ID, now); err != nil {
			log.Error("failed to mark subscription voucher used", slog.Int64("voucher_id", voucher.ID), sl.Err(err))
		}
	}
	log.Info("subscription checkout created", slog.String("session", session.ID))
	return &models.SubscribeResult{CheckoutURL: session.URL}, nil
}

// discountVoucher проверяет скидочный ваучер для оформления подписки.
func (s *Service) discountVoucher(ctx context.Context, userUID, code string) (*models.Voucher, error) {
	v, err := s.repo.GetVoucherByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if v.UserUID != userUID {
		return nil, apperr.NotFound("voucher not found")
	}
	if err := v.CheckUsable(s.now()); err != nil {
		return nil, err
	}
	if v.Type != models.VoucherDiscount {
		return nil, apperr.Validation("only discount vouchers apply to a subscription")
	}
	return v, nil
}

// activate создаёт активную подписку без оплаты через шлюз.
func (s *Service) activate(ctx context.Context, userUID string, plan *models.Plan, voucher *models.Voucher) (*models.Subscription, error) {
	now := s.now()
	var created *models.Subscription
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.repo.UpsertSubscription(ctx, models.Subscription{
			UserUID:          userUID,
			PlanID:           plan.ID,
			Status:           models.SubscriptionActive,
			StartDate:        now,
			MinCommitmentEnd: now.AddDate(0, plan.MinCommitmentMonths, 0),
		})
		if err != nil {
			return err
		}
		if voucher != nil {
			return s.repo.MarkVoucherUsed(ctx, voucher.ID, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, userUID, models.NotifySubscriptionActivated, models.PriorityNormal, nil,
		"Подписка оформлена", fmt.Sprintf("План %q активен.", plan.Name))
	return created, nil
}

// customer возвращает покупателя шлюза и запоминает его у пользователя.
func (s *Service) customer(ctx context.Context, user models.User) (string, error) {
	id, err := s.gateway.GetOrCreateCustomer(ctx, user)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID != id {
		if err := s.repo.SetStripeCustomerID(ctx, user.UID, id); err != nil {
			return "", err
		}
	}
	return id, nil
}

// Cancel отменяет подписку. Доступ сохраняется до ближайшей неоплаченной границы цикла,
// но не раньше окончания минимального срока.
func (s *Service) Cancel(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "subscription.Cancel"
	sub, err := s.GetMine(ctx, userUID)
	if err != nil {
		return nil, err
	}
	if err := sub.Status.Transition(models.SubscriptionCanceled); err != nil {
		return nil, err
	}

	now := s.now()
	end := month.NextCycleBoundary(sub.StartDate, now)
	if sub.MinCommitmentEnd.After(end) {
		end = sub.MinCommitmentEnd
	}
	if sub.StripeSubscriptionID != nil {
		periodEnd, err := s.gateway.CancelSubscriptionAtPeriodEnd(ctx, *sub.StripeSubscriptionID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if periodEnd.After(end) {
			end = periodEnd
		}
	}

	sub.Status = models.SubscriptionCanceled
	sub.CanceledAt = &now
	sub.EndDate = &end
	updated, err := s.repo.UpdateSubscription(ctx, *sub)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("subscription canceled", sl.Op(op), slog.String("user_uid", userUID), slog.Time("end_date", end))
	s.notifier.NotifyAdmins(ctx, models.NotifySubscriptionCanceled, models.PriorityNormal, nil,
		"Клиент отменил подписку", fmt.Sprintf("Подписка действует до %s.", end.In(s.loc).Format(models.DateLayout)))
	return updated, nil
}

// Pause приостанавливает подписку пользователя.
func (s *Service) Pause(ctx context.Context, userUID string) (*models.Subscription, error) {
	return s.move(ctx, "subscription.Pause", userUID, models.SubscriptionPaused)
}

// Resume возобновляет приостановленную подписку.
func (s *Service) Resume(ctx context.Context, userUID string) (*models.Subscription, error) {
	return s.move(ctx, "subscription.Resume", userUID, models.SubscriptionActive)
}

func (s *Service) move(ctx context.Context, op, userUID string, to models.SubscriptionStatus) (*models.Subscription, error) {
	sub, err := s.GetMine(ctx, userUID)
	if err != nil {
		return nil, err
	}
	if err := sub.Status.Transition(to); err != nil {
		return nil, err
	}
	sub.Status = to
	updated, err := s.repo.UpdateSubscription(ctx, *sub)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return updated, nil
}

// ExpireFreeMonths отменяет бесплатные подписки с истёкшим сроком.
func (s *Service) ExpireFreeMonths(ctx context.Context) (int, error) {
	const op = "subscription.ExpireFreeMonths"
	now := s.now()
	expired, err := s.repo.ListExpiredFreeSubscriptions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n := 0
	for _, sub := range expired {
		sub.Status = models.SubscriptionCanceled
		sub.CanceledAt = &now
		if _, err := s.repo.UpdateSubscription(ctx, *sub); err != nil {
			s.log.Error("failed to expire subscription", sl.Op(op), slog.Int64("subscription_id", sub.ID), sl.Err(err))
			continue
		}
		n++
		s.notifier.Notify(ctx, sub.UserUID, models.NotifySubscriptionExpired, models.PriorityNormal, nil,
			"Бесплатный месяц закончился", "Оформите подписку, чтобы продолжить записываться по плану.")
	}
	return n, nil
}

// Usage возвращает использование квоты за месяц. Нулевой месяц означает текущий.
func (s *Service) Usage(ctx context.Context, userUID string, m, y int) (*models.UsageReport, error) {
	const op = "subscription.Usage"
	if m == 0 || y == 0 {
		m, y = month.MonthYear(s.now(), s.loc)
	}
	if m < 1 || m > 12 {
		return nil, apperr.Validation("month must be between 1 and 12")
	}
	sub, err := s.GetMine(ctx, userUID)
	if err != nil {
		return nil, err
	}
	plan, err := s.repo.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	usage, err := s.repo.GetMonthlyUsage(ctx, userUID, m, y)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.UsageReport{
		Month:     m,
		Year:      y,
		Used:      usage.TotalTreatments,
		Quota:     plan.MaxTreatmentsPerMonth,
		Remaining: max(plan.MaxTreatmentsPerMonth-usage.TotalTreatments, 0),
	}, nil
}
