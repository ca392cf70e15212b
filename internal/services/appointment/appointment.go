// Package appointment реализует жизненный цикл записи: создание, подтверждение,
// завершение, отмену с возвратом или компенсацией и перенос.
package appointment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/beauty-clinic/internal/cache"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/metrics"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/month"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/sl"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Repository методы хранилища, нужные сервису записей.
type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateAppointment(ctx context.Context, a models.Appointment) (*models.Appointment, error)
	GetAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	UpdateAppointment(ctx context.Context, a models.Appointment) (*models.Appointment, error)
	ListAppointments(ctx context.Context, f models.AppointmentFilter) ([]*models.Appointment, error)
	CountUserActiveAppointments(ctx context.Context, userUID string) (int, error)
	CountSubscriptionAppointmentsBetween(ctx context.Context, userUID string, from, to time.Time) (int, error)
	CountAppointmentsAt(ctx context.Context, start time.Time) (int, error)
	ListStalePendingPayments(ctx context.Context, createdBefore time.Time) ([]*models.Appointment, error)
	ListOpenAppointmentsBetween(ctx context.Context, from, to time.Time) ([]*models.Appointment, error)

	GetVoucher(ctx context.Context, id int64) (*models.Voucher, error)
	GetVoucherByCode(ctx context.Context, code string) (*models.Voucher, error)
	VoucherReserved(ctx context.Context, voucherID, exceptAppointmentID int64) (bool, error)
	MarkVoucherUsed(ctx context.Context, id int64, at time.Time) error

	GetService(ctx context.Context, id int64) (*models.Service, error)
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	GetAnamnesis(ctx context.Context, userUID string) (*models.AnamnesisForm, error)
	GetSubscriptionByUser(ctx context.Context, userUID string) (*models.Subscription, error)
	GetPlan(ctx context.Context, id int64) (*models.Plan, error)
	GetMonthlyUsage(ctx context.Context, userUID string, month, year int) (models.MonthlyUsage, error)
	IncrementMonthlyUsage(ctx context.Context, userUID string, month, year int) error
	DecrementMonthlyUsage(ctx context.Context, userUID string, month, year int) error
	GetSystemConfig(ctx context.Context) (models.SystemConfig, error)
}

// Refunder операции платёжного шлюза по разовой записи: возврат оплаты и закрытие
// незавершённых страниц оплаты.
type Refunder interface {
	RefundAppointmentPayment(ctx context.Context, customerID string, appointmentID int64) (string, error)
	ExpireAppointmentCheckouts(ctx context.Context, customerID string, appointmentID int64) (int, error)
}

// Compensator выпускает скидочный ваучер вместо возврата денег.
type Compensator interface {
	IssueCompensation(ctx context.Context, userUID string, amount int64, months int, reason string) (*models.Voucher, error)
}

// Notifier создаёт уведомления клиенту и администраторам.
type Notifier interface {
	Notify(ctx context.Context, userUID string, typ models.NotificationType, priority models.Priority, appointmentID *int64, title, message string)
	NotifyAdmins(ctx context.Context, typ models.NotificationType, priority models.Priority, appointmentID *int64, title, message string)
}

// Cache кеш чтения записей.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	InvalidatePrefix(ctx context.Context, prefix string) error
}

// Service сервис записей.
type Service struct {
	repo        Repository
	refunder    Refunder
	compensator Compensator
	notifier    Notifier
	cache       Cache
	loc         *time.Location
	log         *slog.Logger
	now         func() time.Time
}

// NewService создаёт сервис записей. cache может быть nil.
func NewService(repo Repository, refunder Refunder, compensator Compensator, notifier Notifier,
	c Cache, loc *time.Location, log *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:        repo,
		refunder:    refunder,
		compensator: compensator,
		notifier:    notifier,
		cache:       c,
		loc:         loc,
		log:         log,
		now:         time.Now,
	}
}

// Create создаёт запись. Администратор может записать клиента, указав req.UserUID.
func (s *Service) Create(ctx context.Context, actor models.Actor, req models.CreateAppointmentRequest) (*models.Appointment, error) {
	const op = "appointment.Create"
	log := s.log.With(sl.Op(op))

	if !req.Origin.Valid() {
		return nil, apperr.Validation("unknown origin %q", req.Origin)
	}
	if req.Origin == models.OriginAdmin && !actor.IsAdmin() {
		return nil, apperr.Forbidden("only administrators can create admin appointments")
	}
	userUID := actor.UID
	if actor.IsAdmin() && req.UserUID != "" {
		userUID = req.UserUID
	}
	now := s.now()
	if !actor.IsAdmin() && !req.StartTime.After(now) {
		return nil, apperr.Validation("start_time must be in the future")
	}

	svc, err := s.repo.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !svc.Active {
		return nil, apperr.Validation("service %q is not available for booking", svc.Name)
	}

	if err := s.requireAnamnesis(ctx, userUID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// несколько рабочих мест: совпадение по времени не запрещено
	if n, err := s.repo.CountAppointmentsAt(ctx, req.StartTime); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	} else if n > 0 {
		log.Warn("slot already has bookings", slog.Time("start", req.StartTime), slog.Int("count", n))
	}

	a := models.Appointment{
		UserUID:   userUID,
		ServiceID: svc.ID,
		StartTime: req.StartTime,
		EndTime:   req.StartTime.Add(svc.Duration()),
		Status:    models.AppointmentPending,
		Origin:    req.Origin,
		Notes:     req.Notes,
	}

	consumeUsage := false
	switch req.Origin {
	case models.OriginSubscription:
		if err := s.checkSubscription(ctx, userUID, svc.ID, req.StartTime); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.PaymentStatus = models.PaymentNotRequired
		consumeUsage = true
	case models.OriginVoucher:
		v, err := s.reserveVoucher(ctx, userUID, req)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.VoucherID = &v.ID
		a.PaymentAmount = v.PriceFor(svc.Price)
		a.PaymentStatus = paymentFor(a.PaymentAmount)
	case models.OriginSingle:
		a.PaymentAmount = svc.Price
		a.PaymentStatus = paymentFor(a.PaymentAmount)
	case models.OriginAdmin:
		a.PaymentStatus = models.PaymentNotRequired
		a.Status = models.AppointmentConfirmed
		a.ConfirmedByAdmin = true
	}

	var created *models.Appointment
	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.repo.CreateAppointment(ctx, a)
		if err != nil {
			return err
		}
		if consumeUsage {
			m, y := month.MonthYear(a.StartTime, s.loc)
			return s.repo.IncrementMonthlyUsage(ctx, userUID, m, y)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx)
	metrics.AppointmentsCreated.WithLabelValues(string(created.Origin)).Inc()

	log.Info("appointment created", slog.Int64("id", created.ID), slog.String("origin", string(created.Origin)))
	when := s.format(created.StartTime)
	if actor.IsAdmin() {
		s.notifier.Notify(ctx, userUID, models.NotifyAppointmentCreated, models.PriorityNormal, &created.ID,
			"Вы записаны на процедуру", fmt.Sprintf("%s, %s.", svc.Name, when))
	} else {
		s.notifier.NotifyAdmins(ctx, models.NotifyAppointmentCreated, models.PriorityNormal, &created.ID,
			"Новая запись", fmt.Sprintf("%s, %s. Требуется подтверждение.", svc.Name, when))
	}
	return created, nil
}

func paymentFor(amount int64) models.PaymentStatus {
	if amount > 0 {
		return models.PaymentPending
	}
	return models.PaymentNotRequired
}

// requireAnamnesis требует анкету перед первой действующей записью пользователя.
func (s *Service) requireAnamnesis(ctx context.Context, userUID string) error {
	n, err := s.repo.CountUserActiveAppointments(ctx, userUID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	form, err := s.repo.GetAnamnesis(ctx, userUID)
	if err != nil {
		return err
	}
	if form == nil {
		return apperr.Validation("anamnesis form must be filled in before the first appointment")
	}
	return nil
}

// checkSubscription проверяет подписку, квоту месяца записи и дневной лимит.
func (s *Service) checkSubscription(ctx context.Context, userUID string, serviceID int64, start time.Time) error {
	sub, err := s.repo.GetSubscriptionByUser(ctx, userUID)
	if err != nil {
		return err
	}
	if sub == nil || !sub.EntitledAt(s.now()) {
		return apperr.Validation("active subscription required")
	}
	plan, err := s.repo.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return err
	}
	if len(plan.ServiceIDs) > 0 && !contains(plan.ServiceIDs, serviceID) {
		return apperr.Validation("service is not included in plan %q", plan.Name)
	}

	m, y := month.MonthYear(start, s.loc)
	if err := s.checkQuota(ctx, userUID, plan, m, y); err != nil {
		return err
	}

	cfg, err := s.repo.GetSystemConfig(ctx)
	if err != nil {
		return err
	}
	from, to := month.DayBounds(start, s.loc)
	n, err := s.repo.CountSubscriptionAppointmentsBetween(ctx, userUID, from, to)
	if err != nil {
		return err
	}
	if n >= cfg.MaxSubscriptionAppointmentsPerDay {
		return apperr.Validation("no more than %d subscription appointments per day", cfg.MaxSubscriptionAppointmentsPerDay)
	}
	return nil
}

func (s *Service) checkQuota(ctx context.Context, userUID string, plan *models.Plan, m, y int) error {
	usage, err := s.repo.GetMonthlyUsage(ctx, userUID, m, y)
	if err != nil {
		return err
	}
	if usage.TotalTreatments >= plan.MaxTreatmentsPerMonth {
		return apperr.Validation("monthly treatment quota exceeded (%d of %d used)", usage.TotalTreatments, plan.MaxTreatmentsPerMonth)
	}
	return nil
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// reserveVoucher проверяет ваучер для записи. Погашается он только при завершении процедуры.
func (s *Service) reserveVoucher(ctx context.Context, userUID string, req models.CreateAppointmentRequest) (*models.Voucher, error) {
	var (
		v   *models.Voucher
		err error
	)
	switch {
	case req.VoucherID != nil:
		v, err = s.repo.GetVoucher(ctx, *req.VoucherID)
	case req.VoucherCode != "":
		v, err = s.repo.GetVoucherByCode(ctx, req.VoucherCode)
	default:
		return nil, apperr.Validation("voucher_id or voucher_code is required for voucher appointments")
	}
	if err != nil {
		return nil, err
	}
	if v.UserUID != userUID {
		return nil, apperr.NotFound("voucher not found")
	}
	if err := v.CheckUsable(s.now()); err != nil {
		return nil, err
	}
	if err := v.CheckService(req.ServiceID); err != nil {
		return nil, err
	}
	reserved, err := s.repo.VoucherReserved(ctx, v.ID, 0)
	if err != nil {
		return nil, err
	}
	if reserved {
		return nil, apperr.Validation("voucher %s is already reserved by another appointment", v.Code)
	}
	return v, nil
}

// Get возвращает запись. Клиент видит только свои записи.
func (s *Service) Get(ctx context.Context, actor models.Actor, id int64) (*models.Appointment, error) {
	const op = "appointment.Get"
	key := fmt.Sprintf("%sid:%d", cache.PrefixAppointments, id)

	var a *models.Appointment
	if s.cache != nil {
		var cached models.Appointment
		if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
			s.log.Warn("cache read failed", sl.Op(op), sl.Err(err))
		} else if ok {
			a = &cached
		}
	}
	if a == nil {
		var err error
		a, err = s.repo.GetAppointment(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s.store(ctx, key, a)
	}
	if !actor.IsAdmin() && a.UserUID != actor.UID {
		return nil, apperr.NotFound("appointment %d not found", id)
	}
	return a, nil
}

// List возвращает записи по фильтру. Для клиента фильтр всегда ограничен его записями.
func (s *Service) List(ctx context.Context, actor models.Actor, f models.AppointmentFilter) ([]*models.Appointment, error) {
	const op = "appointment.List"
	if !actor.IsAdmin() {
		uid := actor.UID
		f.UserUID = &uid
	}
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	f.Limit = min(f.Limit, maxLimit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, apperr.Validation("to must not be before from")
	}

	key := cache.PrefixAppointments + "list:" + filterKey(f)
	if s.cache != nil {
		var cached []*models.Appointment
		if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
			s.log.Warn("cache read failed", sl.Op(op), sl.Err(err))
		} else if ok {
			return cached, nil
		}
	}
	list, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.store(ctx, key, list)
	return list, nil
}

func filterKey(f models.AppointmentFilter) string {
	str := func(p *string) string {
		if p == nil {
			return "*"
		}
		return *p
	}
	ts := func(p *time.Time) string {
		if p == nil {
			return "*"
		}
		return fmt.Sprint(p.Unix())
	}
	status, origin := "*", "*"
	if f.Status != nil {
		status = string(*f.Status)
	}
	if f.Origin != nil {
		origin = string(*f.Origin)
	}
	return fmt.Sprintf("%s:%s:%s:%s:%s:%d:%d", str(f.UserUID), status, origin, ts(f.From), ts(f.To), f.Limit, f.Offset)
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, 0); err != nil {
		s.log.Warn("cache write failed", slog.String("key", key), sl.Err(err))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePrefix(ctx, cache.PrefixAppointments); err != nil {
		s.log.Warn("cache invalidation failed", sl.Err(err))
	}
}

func (s *Service) format(t time.Time) string {
	return t.In(s.loc).Format("02.01.2006 15:04")
}

// owned загружает запись и скрывает чужие записи от клиента.
func (s *Service) owned(ctx context.Context, actor models.Actor, id int64) (*models.Appointment, error) {
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && a.UserUID != actor.UID {
		return nil, apperr.NotFound("appointment %d not found", id)
	}
	return a, nil
}

// Confirm подтверждает запись администратором.
func (s *Service) Confirm(ctx context.Context, id int64) (*models.Appointment, error) {
	const op = "appointment.Confirm"
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := a.Status.Transition(models.AppointmentConfirmed); err != nil {
		return nil, err
	}
	a.Status = models.AppointmentConfirmed
	a.ConfirmedByAdmin = true
	updated, err := s.repo.UpdateAppointment(ctx, *a)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx)
	s.notifier.Notify(ctx, updated.UserUID, models.NotifyAppointmentConfirmed, models.PriorityNormal, &updated.ID,
		"Запись подтверждена", fmt.Sprintf("Ждём вас %s.", s.format(updated.StartTime)))
	return updated, nil
}

// voucherUseError ошибка погашения ваучера внутри транзакции завершения.
type voucherUseError struct{ err error }

func (e *voucherUseError) Error() string { return "mark voucher used: " + e.err.Error() }
func (e *voucherUseError) Unwrap() error { return e.err }

// finish записывает завершённую запись и погашает её ваучер в одной транзакции.
// Если погасить ваучер не удалось, запись сохраняется без него.
func (s *Service) finish(ctx context.Context, a models.Appointment) (*models.Appointment, error) {
	var updated *models.Appointment
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.repo.UpdateAppointment(ctx, a)
		if err != nil {
			return err
		}
		if a.VoucherID != nil {
			if err := s.repo.MarkVoucherUsed(ctx, *a.VoucherID, s.now()); err != nil {
				return &voucherUseError{err: err}
			}
		}
		return nil
	})
	var vErr *voucherUseError
	if errors.As(err, &vErr) {
		s.log.Error("failed to mark voucher used, completing appointment without it",
			slog.Int64("appointment_id", a.ID), slog.Int64("voucher_id", *a.VoucherID), sl.Err(vErr.err))
		updated, err = s.repo.UpdateAppointment(ctx, a)
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Complete завершает процедуру. paid отмечает оплату на месте.
func (s *Service) Complete(ctx context.Context, id int64, paid bool) (*models.Appointment, error) {
	const op = "appointment.Complete"
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := a.Status.Transition(models.AppointmentCompleted); err != nil {
		return nil, err
	}
	a.Status = models.AppointmentCompleted
	if paid && a.PaymentStatus.CanTransition(models.PaymentPaid) {
		a.PaymentStatus = models.PaymentPaid
	}
	updated, err := s.finish(ctx, *a)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx)
	s.notifier.Notify(ctx, updated.UserUID, models.NotifyAppointmentCompleted, models.PriorityLow, &updated.ID,
		"Процедура завершена", "Спасибо, что выбрали нас.")
	return updated, nil
}

// MarkNoShow отмечает неявку клиента. Квота по подписке не возвращается.
func (s *Service) MarkNoShow(ctx context.Context, id int64) (*models.Appointment, error) {
	const op = "appointment.MarkNoShow"
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := a.Status.Transition(models.AppointmentNoShow); err != nil {
		return nil, err
	}
	a.Status = models.AppointmentNoShow
	updated, err := s.repo.UpdateAppointment(ctx, *a)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx)
	return updated, nil
}
