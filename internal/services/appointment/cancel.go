package appointment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/metrics"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/month"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/sl"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// Сроки действия компенсационных ваучеров в месяцах.
const (
	refundFailedVoucherMonths = 6
	lateCancelVoucherMonths   = 3
)

// Cancel отменяет запись. Возврат квоты, возврат денег и компенсация зависят от
// источника записи, инициатора и запаса времени до начала.
func (s *Service) Cancel(ctx context.Context, actor models.Actor, id int64, reason string) (*models.CancelOutcome, error) {
	const op = "appointment.Cancel"
	log := s.log.With(sl.Op(op), slog.Int64("appointment_id", id))

	a, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := a.Status.Transition(models.AppointmentCanceled); err != nil {
		return nil, err
	}
	cfg, err := s.repo.GetSystemConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	byClient := !actor.IsAdmin()
	adequate := a.NoticeHours(now) >= float64(cfg.MinCancellationHours)
	by := models.CanceledByAdmin
	if byClient {
		by = models.CanceledByClient
	}
	a.Status = models.AppointmentCanceled
	a.CanceledBy = &by
	a.CanceledAt = &now
	a.CancellationReason = reason

	out := &models.CancelOutcome{}
	restore := a.Origin == models.OriginSubscription && (!byClient || adequate)
	out.UsageRestored = restore
	out.TreatmentLost = a.Origin == models.OriginSubscription && !restore

	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		updated, err := s.repo.UpdateAppointment(ctx, *a)
		if err != nil {
			return err
		}
		out.Appointment = updated
		if restore {
			m, y := month.MonthYear(a.StartTime, s.loc)
			return s.repo.DecrementMonthlyUsage(ctx, a.UserUID, m, y)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx)
	metrics.AppointmentsCanceled.WithLabelValues(string(a.Origin), string(by)).Inc()

	if awaitsPayment(a) {
		s.expireCheckouts(ctx, log, a)
	}
	if a.Origin == models.OriginSingle && a.PaymentStatus == models.PaymentPaid {
		// администратор отменяет без штрафа: всегда пробуем вернуть деньги
		if !byClient || adequate {
			s.refundOrCompensate(ctx, log, out)
		} else {
			out.Voucher = s.compensate(ctx, log, out.Appointment, lateCancelVoucherMonths,
				"Компенсация за позднюю отмену записи")
		}
	}

	log.Info("appointment canceled",
		slog.String("by", string(by)),
		slog.Bool("usage_restored", out.UsageRestored),
		slog.Bool("refunded", out.Refunded),
		slog.Bool("voucher_issued", out.Voucher != nil))

	when := s.format(a.StartTime)
	if byClient {
		s.notifier.NotifyAdmins(ctx, models.NotifyAppointmentCanceled, models.PriorityNormal, &a.ID,
			"Клиент отменил запись", fmt.Sprintf("Запись на %s отменена. Причина: %s", when, reasonText(reason)))
	} else {
		s.notifier.Notify(ctx, a.UserUID, models.NotifyAppointmentCanceled, models.PriorityHigh, &a.ID,
			"Запись отменена", fmt.Sprintf("Запись на %s отменена клиникой. Причина: %s", when, reasonText(reason)))
	}
	return out, nil
}

func reasonText(reason string) string {
	if reason == "" {
		return "не указана"
	}
	return reason
}

// refundOrCompensate пытается вернуть оплату через шлюз, при любой ошибке выдаёт ваучер на 6 месяцев.
func (s *Service) refundOrCompensate(ctx context.Context, log *slog.Logger, out *models.CancelOutcome) {
	a := out.Appointment
	if err := s.refund(ctx, a); err != nil {
		log.Warn("refund failed, issuing compensation voucher", sl.Err(err))
		metrics.Refunds.WithLabelValues("voucher").Inc()
		out.Voucher = s.compensate(ctx, log, a, refundFailedVoucherMonths,
			"Компенсация: не удалось вернуть оплату")
		return
	}
	a.PaymentStatus = models.PaymentRefunded
	updated, err := s.repo.UpdateAppointment(ctx, *a)
	if err != nil {
		log.Error("refund succeeded but payment status was not saved", sl.Err(err))
	} else {
		out.Appointment = updated
		s.invalidate(ctx)
	}
	out.Refunded = true
	metrics.Refunds.WithLabelValues("refunded").Inc()
	s.notifier.Notify(ctx, a.UserUID, models.NotifyRefundIssued, models.PriorityHigh, &a.ID,
		"Оплата возвращена", fmt.Sprintf("Сумма %d возвращена на вашу карту.", a.PaymentAmount))
}

// SettleCanceledPayment возвращает оплату, которая пришла после отмены записи:
// возврат через шлюз, при ошибке ваучер на 6 месяцев. Запись без оплаты не трогается.
func (s *Service) SettleCanceledPayment(ctx context.Context, appointmentID int64) (*models.CancelOutcome, error) {
	const op = "appointment.SettleCanceledPayment"
	log := s.log.With(sl.Op(op), slog.Int64("appointment_id", appointmentID))

	a, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out := &models.CancelOutcome{Appointment: a}
	if a.Status != models.AppointmentCanceled || a.PaymentStatus != models.PaymentPaid {
		return out, nil
	}
	s.refundOrCompensate(ctx, log, out)
	s.notifier.NotifyAdmins(ctx, models.NotifyRefundIssued, models.PriorityHigh, &a.ID,
		"Оплата отменённой записи",
		fmt.Sprintf("По отменённой записи #%d пришла оплата %d. Возврат: %t, ваучер: %t.",
			a.ID, a.PaymentAmount, out.Refunded, out.Voucher != nil))
	return out, nil
}

// awaitsPayment сообщает, что у записи может быть открытая страница оплаты.
func awaitsPayment(a *models.Appointment) bool {
	return a.PaymentStatus == models.PaymentPending && a.PaymentAmount > 0
}

// expireCheckouts закрывает открытые страницы оплаты отменённой записи.
// Если шлюз недоступен, оплата всё равно будет возвращена при получении вебхука.
func (s *Service) expireCheckouts(ctx context.Context, log *slog.Logger, a *models.Appointment) {
	if s.refunder == nil {
		return
	}
	user, err := s.repo.GetUser(ctx, a.UserUID)
	if err != nil {
		log.Warn("failed to load user for checkout expiry", sl.Err(err))
		return
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return
	}
	n, err := s.refunder.ExpireAppointmentCheckouts(ctx, *user.StripeCustomerID, a.ID)
	if err != nil {
		log.Warn("failed to expire checkout sessions", sl.Err(err))
		return
	}
	if n > 0 {
		log.Info("checkout sessions expired", slog.Int("count", n))
	}
}

func (s *Service) refund(ctx context.Context, a *models.Appointment) error {
	if s.refunder == nil {
		return apperr.External("payment gateway is not configured", nil)
	}
	user, err := s.repo.GetUser(ctx, a.UserUID)
	if err != nil {
		return err
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return apperr.NotFound("user has no payment gateway customer")
	}
	refundID, err := s.refunder.RefundAppointmentPayment(ctx, *user.StripeCustomerID, a.ID)
	if err != nil {
		return err
	}
	s.log.Info("payment refunded", slog.Int64("appointment_id", a.ID), slog.String("refund_id", refundID))
	return nil
}

// compensate выдаёт скидочный ваучер на сумму оплаты. Ошибка выпуска логируется,
// отмена при этом уже сохранена.
func (s *Service) compensate(ctx context.Context, log *slog.Logger, a *models.Appointment, months int, reason string) *models.Voucher {
	v, err := s.compensator.IssueCompensation(ctx, a.UserUID, a.PaymentAmount, months, reason)
	if err != nil {
		log.Error("failed to issue compensation voucher",
			slog.Int64("amount", a.PaymentAmount), slog.Int("months", months), sl.Err(err))
		return nil
	}
	return v
}

// Reschedule переносит запись. Клиент не может переносить позже, чем за min_reschedule_hours
// до текущего начала. После переноса запись снова ждёт подтверждения.
func (s *Service) Reschedule(ctx context.Context, actor models.Actor, id int64, req models.RescheduleAppointmentRequest) (*models.Appointment, error) {
	const op = "appointment.Reschedule"
	log := s.log.With(sl.Op(op), slog.Int64("appointment_id", id))

	a, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !a.Status.Reschedulable() {
		return nil, apperr.Validation("appointment in status %s cannot be rescheduled", a.Status)
	}
	cfg, err := s.repo.GetSystemConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := s.now()
	if !actor.IsAdmin() {
		if a.NoticeHours(now) < float64(cfg.MinRescheduleHours) {
			return nil, apperr.Validation("appointments can be rescheduled no later than %d hours before start", cfg.MinRescheduleHours)
		}
		if !req.StartTime.After(now) {
			return nil, apperr.Validation("start_time must be in the future")
		}
	}

	var end time.Time
	if req.EndTime != nil {
		if !req.EndTime.After(req.StartTime) {
			return nil, apperr.Validation("end_time must be after start_time")
		}
		end = *req.EndTime
	} else {
		svc, err := s.repo.GetService(ctx, a.ServiceID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		end = req.StartTime.Add(svc.Duration())
	}

	if n, err := s.repo.CountAppointmentsAt(ctx, req.StartTime); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	} else if n > 0 {
		log.Warn("slot already has bookings", slog.Time("start", req.StartTime), slog.Int("count", n))
	}

	oldM, oldY := month.MonthYear(a.StartTime, s.loc)
	newM, newY := month.MonthYear(req.StartTime, s.loc)
	moveUsage := a.Origin == models.OriginSubscription && (oldM != newM || oldY != newY)
	if moveUsage {
		if err := s.checkMovedQuota(ctx, a.UserUID, newM, newY); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if a.Origin == models.OriginSubscription {
		if err := s.checkMovedDayCap(ctx, a, req.StartTime, cfg.MaxSubscriptionAppointmentsPerDay); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	oldStart := a.StartTime
	a.StartTime = req.StartTime
	a.EndTime = end
	a.Status = models.AppointmentPending
	a.ConfirmedByAdmin = false

	var updated *models.Appointment
	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.repo.UpdateAppointment(ctx, *a)
		if err != nil {
			return err
		}
		if !moveUsage {
			return nil
		}
		if err := s.repo.DecrementMonthlyUsage(ctx, a.UserUID, oldM, oldY); err != nil {
			return err
		}
		return s.repo.IncrementMonthlyUsage(ctx, a.UserUID, newM, newY)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx)

	msg := fmt.Sprintf("Запись перенесена с %s на %s.", s.format(oldStart), s.format(updated.StartTime))
	if actor.IsAdmin() {
		s.notifier.Notify(ctx, updated.UserUID, models.NotifyAppointmentRescheduled, models.PriorityHigh, &updated.ID,
			"Запись перенесена", msg)
	} else {
		s.notifier.NotifyAdmins(ctx, models.NotifyAppointmentRescheduled, models.PriorityNormal, &updated.ID,
			"Клиент перенёс запись", msg+" Требуется подтверждение.")
	}
	return updated, nil
}

// checkMovedDayCap проверяет дневной лимит записей по подписке в день, куда переносится a.
// Сама запись в счёт не входит.
func (s *Service) checkMovedDayCap(ctx context.Context, a *models.Appointment, newStart time.Time, limit int) error {
	from, to := month.DayBounds(newStart, s.loc)
	n, err := s.repo.CountSubscriptionAppointmentsBetween(ctx, a.UserUID, from, to)
	if err != nil {
		return err
	}
	if !a.StartTime.Before(from) && a.StartTime.Before(to) {
		n--
	}
	if n >= limit {
		return apperr.Validation("no more than %d subscription appointments per day", limit)
	}
	return nil
}

// checkMovedQuota проверяет квоту месяца, в который переносится запись по подписке.
func (s *Service) checkMovedQuota(ctx context.Context, userUID string, m, y int) error {
	sub, err := s.repo.GetSubscriptionByUser(ctx, userUID)
	if err != nil {
		return err
	}
	if sub == nil {
		return apperr.Validation("active subscription required")
	}
	plan, err := s.repo.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return err
	}
	return s.checkQuota(ctx, userUID, plan, m, y)
}

// ExpirePendingPayments отменяет разовые записи, не оплаченные за pending_payment_expiry_minutes.
func (s *Service) ExpirePendingPayments(ctx context.Context) (int, error) {
	const op = "appointment.ExpirePendingPayments"
	cfg, err := s.repo.GetSystemConfig(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	now := s.now()
	cutoff := now.Add(-time.Duration(cfg.PendingPaymentExpiryMinutes) * time.Minute)
	stale, err := s.repo.ListStalePendingPayments(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	by := models.CanceledBySystem
	expired := 0
	for _, a := range stale {
		if err := a.Status.Transition(models.AppointmentCanceled); err != nil {
			continue
		}
		a.Status = models.AppointmentCanceled
		a.CanceledBy = &by
		a.CanceledAt = &now
		a.CancellationReason = "payment expired"
		if _, err := s.repo.UpdateAppointment(ctx, *a); err != nil {
			s.log.Error("failed to expire appointment", sl.Op(op), slog.Int64("appointment_id", a.ID), sl.Err(err))
			continue
		}
		expired++
		s.expireCheckouts(ctx, s.log.With(sl.Op(op), slog.Int64("appointment_id", a.ID)), a)
		s.notifier.Notify(ctx, a.UserUID, models.NotifyAppointmentCanceled, models.PriorityNormal, &a.ID,
			"Запись отменена", fmt.Sprintf("Запись на %s не была оплачена вовремя и отменена.", s.format(a.StartTime)))
	}
	if expired > 0 {
		s.invalidate(ctx)
	}
	return expired, nil
}

// AutoCompletePast завершает незакрытые записи предыдущего календарного дня
// независимо от статуса оплаты.
func (s *Service) AutoCompletePast(ctx context.Context) (int, error) {
	const op = "appointment.AutoCompletePast"
	today, _ := month.DayBounds(s.now(), s.loc)
	yesterday := today.AddDate(0, 0, -1)
	open, err := s.repo.ListOpenAppointmentsBetween(ctx, yesterday, today)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	completed := 0
	for _, a := range open {
		a.Status = models.AppointmentCompleted
		a.ConfirmedByAdmin = true
		if _, err := s.finish(ctx, *a); err != nil {
			s.log.Error("failed to auto-complete appointment", sl.Op(op), slog.Int64("appointment_id", a.ID), sl.Err(err))
			continue
		}
		completed++
	}
	if completed > 0 {
		s.invalidate(ctx)
	}
	return completed, nil
}
