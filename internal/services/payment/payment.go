// Package payment связывает записи и подписки с платёжным шлюзом: страницы оплаты,
// личный кабинет, сохранённые карты, выручка и обработка вебхуков.
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/beauty-clinic/internal/cache"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/sl"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
	"github.com/magabrotheeeer/beauty-clinic/internal/paymentprovider"
)

const (
	revenueTTL     = 15 * time.Minute
	webhookLockTTL = 24 * time.Hour
)

// Repository методы хранилища, нужные платёжному сервису.
type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, userUID, customerID string) error
	GetAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	UpdateAppointment(ctx context.Context, a models.Appointment) (*models.Appointment, error)
	GetService(ctx context.Context, id int64) (*models.Service, error)
	GetPlan(ctx context.Context, id int64) (*models.Plan, error)
	GetSubscriptionByStripeID(ctx context.Context, stripeID string) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error)
	UpdateSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error)
	RecordWebhookEvent(ctx context.Context, eventID, eventType string) (bool, error)
}

// Gateway операции платёжного шлюза.
type Gateway interface {
	GetOrCreateCustomer(ctx context.Context, user models.User) (string, error)
	CreatePaymentCheckout(ctx context.Context, customerID string, a models.Appointment, serviceName string, amount int64, discount *paymentprovider.Discount) (*models.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*models.PortalSession, error)
	ListPaymentMethods(ctx context.Context, customerID string) ([]models.PaymentMethod, error)
	MonthlyRevenue(ctx context.Context, year, mon int, loc *time.Location) (models.Revenue, error)
	ParseWebhook(payload []byte, signature string) (*paymentprovider.Event, error)
}

// Cache кеш выручки и защита от повторной обработки вебхуков.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
	InvalidatePrefix(ctx context.Context, prefix string) error
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Notifier создаёт уведомления.
type Notifier interface {
	Notify(ctx context.Context, userUID string, typ models.NotificationType, priority models.Priority, appointmentID *int64, title, message string)
	NotifyAdmins(ctx context.Context, typ models.NotificationType, priority models.Priority, appointmentID *int64, title, message string)
}

// CanceledPayments возвращает оплату, пришедшую по уже отменённой записи.
type CanceledPayments interface {
	SettleCanceledPayment(ctx context.Context, appointmentID int64) (*models.CancelOutcome, error)
}

// Service платёжный сервис.
type Service struct {
	repo        Repository
	gateway     Gateway
	cache       Cache
	notifier    Notifier
	settler     CanceledPayments
	frontendURL string
	loc         *time.Location
	log         *slog.Logger
	now         func() time.Time
}

// NewService создаёт платёжный сервис. cache может быть nil.
func NewService(repo Repository, gateway Gateway, c Cache, notifier Notifier, settler CanceledPayments,
	frontendURL string, loc *time.Location, log *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:        repo,
		gateway:     gateway,
		cache:       c,
		notifier:    notifier,
		settler:     settler,
		frontendURL: frontendURL,
		loc:         loc,
		log:         log,
		now:         time.Now,
	}
}

// customer возвращает покупателя шлюза и сохраняет его идентификатор у пользователя.
func (s *Service) customer(ctx context.Context, userUID string) (string, error) {
	user, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return "", err
	}
	id, err := s.gateway.GetOrCreateCustomer(ctx, *user)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID != id {
		if err := s.repo.SetStripeCustomerID(ctx, userUID, id); err != nil {
			return "", err
		}
	}
	return id, nil
}

// CheckoutAppointment создаёт страницу оплаты разовой записи.
func (s *Service) CheckoutAppointment(ctx context.Context, actor models.Actor, appointmentID int64) (*models.CheckoutSession, error) {
	const op = "payment.CheckoutAppointment"
	a, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if a.UserUID != actor.UID {
		return nil, apperr.NotFound("appointment %d not found", appointmentID)
	}
	if a.Status.Terminal() {
		return nil, apperr.Validation("appointment is %s", a.Status)
	}
	if a.PaymentStatus != models.PaymentPending || a.PaymentAmount <= 0 {
		return nil, apperr.Validation("appointment does not require payment")
	}
	svc, err := s.repo.GetService(ctx, a.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	customerID, err := s.customer(ctx, a.UserUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	session, err := s.gateway.CreatePaymentCheckout(ctx, customerID, *a, svc.Name, a.PaymentAmount, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("appointment checkout created", sl.Op(op),
		slog.Int64("appointment_id", a.ID), slog.String("session", session.ID))
	return session, nil
}

// Portal создаёт сессию личного кабинета шлюза.
func (s *Service) Portal(ctx context.Context, userUID, returnURL string) (*models.PortalSession, error) {
	const op = "payment.Portal"
	if returnURL == "" {
		returnURL = s.frontendURL + "/account"
	}
	customerID, err := s.customer(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	session, err := s.gateway.CreatePortalSession(ctx, customerID, returnURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return session, nil
}

// PaymentMethods возвращает сохранённые карты без дублей.
func (s *Service) PaymentMethods(ctx context.Context, userUID string) ([]models.PaymentMethod, error) {
	const op = "payment.PaymentMethods"
	user, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return []models.PaymentMethod{}, nil
	}
	methods, err := s.gateway.ListPaymentMethods(ctx, *user.StripeCustomerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return methods, nil
}

// MonthlyRevenue возвращает выручку за месяц. Результат кешируется.
func (s *Service) MonthlyRevenue(ctx context.Context, year, month int) (*models.Revenue, error) {
	const op = "payment.MonthlyRevenue"
	if month < 1 || month > 12 {
		return nil, apperr.Validation("month must be between 1 and 12")
	}
	if year < 2000 || year > 2100 {
		return nil, apperr.Validation("year is out of range")
	}
	key := fmt.Sprintf("%s%04d-%02d", cache.PrefixRevenue, year, month)
	if s.cache != nil {
		var cached models.Revenue
		if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
			s.log.Warn("cache read failed", sl.Op(op), sl.Err(err))
		} else if ok {
			return &cached, nil
		}
	}
	rev, err := s.gateway.MonthlyRevenue(ctx, year, month, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, rev, revenueTTL); err != nil {
			s.log.Warn("cache write failed", sl.Op(op), sl.Err(err))
		}
	}
	return &rev, nil
}
