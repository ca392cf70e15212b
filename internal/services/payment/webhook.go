package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/beauty-clinic/internal/cache"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/metrics"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/sl"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
	"github.com/magabrotheeeer/beauty-clinic/internal/paymentprovider"
)

// afterCommit действия, которые выполняются только после фиксации транзакции:
// уведомления и обращения к шлюзу.
type afterCommit []func(ctx context.Context)

func (a *afterCommit) add(fn func(ctx context.Context)) {
	*a = append(*a, fn)
}

// HandleWebhook проверяет и обрабатывает событие шлюза. Каждое событие обрабатывается
// не более одного раза: блокировка в Redis отсекает параллельные повторы, строка
// webhook_events фиксирует обработку в той же транзакции, что и изменения.
// Уведомления уходят только после фиксации и не могут откатить изменения.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	const op = "payment.HandleWebhook"
	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log := s.log.With(sl.Op(op), slog.String("event_id", ev.ID), slog.String("type", ev.Type))

	lockKey := cache.PrefixWebhook + ev.ID
	if s.cache != nil {
		ok, err := s.cache.Acquire(ctx, lockKey, webhookLockTTL)
		switch {
		case err != nil:
			log.Warn("webhook lock unavailable, relying on database ledger", sl.Err(err))
		case !ok:
			log.Info("duplicate webhook delivery skipped")
			metrics.WebhookEvents.WithLabelValues(ev.Type, "duplicate").Inc()
			return nil
		}
	}

	processed := false
	var after afterCommit
	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		fresh, err := s.repo.RecordWebhookEvent(ctx, ev.ID, ev.Type)
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
		processed = true
		return s.dispatch(ctx, log, ev, &after)
	})
	if err != nil {
		if s.cache != nil {
			// повторная доставка шлюзом должна пройти
			if cerr := s.cache.Invalidate(ctx, lockKey); cerr != nil {
				log.Warn("failed to release webhook lock", sl.Err(cerr))
			}
		}
		metrics.WebhookEvents.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
	if !processed {
		log.Info("webhook already processed")
		metrics.WebhookEvents.WithLabelValues(ev.Type, "duplicate").Inc()
		return nil
	}
	metrics.WebhookEvents.WithLabelValues(ev.Type, "processed").Inc()
	for _, fn := range after {
		fn(ctx)
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, log *slog.Logger, ev *paymentprovider.Event, after *afterCommit) error {
	switch {
	case ev.Checkout != nil:
		return s.onCheckoutCompleted(ctx, log, ev.Checkout, after)
	case ev.Invoice != nil && ev.Type == paymentprovider.EventInvoicePaid:
		return s.onInvoicePaid(ctx, log, ev.Invoice)
	case ev.Invoice != nil && ev.Type == paymentprovider.EventInvoiceFailed:
		return s.onInvoiceFailed(ctx, log, ev.Invoice, after)
	case ev.Subscription != nil && ev.Type == paymentprovider.EventSubscriptionUpdated:
		return s.onSubscriptionUpdated(ctx, log, ev.Subscription)
	case ev.Subscription != nil && ev.Type == paymentprovider.EventSubscriptionDeleted:
		return s.onSubscriptionDeleted(ctx, log, ev.Subscription, after)
	default:
		log.Debug("webhook event ignored")
		return nil
	}
}

func (s *Service) onCheckoutCompleted(ctx context.Context, log *slog.Logger, c *paymentprovider.CheckoutCompleted, after *afterCommit) error {
	switch c.Kind {
	case models.CheckoutSubscription:
		plan, err := s.repo.GetPlan(ctx, c.PlanID)
		if err != nil {
			return err
		}
		now := s.now()
		var stripeID *string
		if c.SubscriptionID != "" {
			stripeID = &c.SubscriptionID
		}
		if _, err := s.repo.UpsertSubscription(ctx, models.Subscription{
			UserUID:              c.UserUID,
			PlanID:               plan.ID,
			Status:               models.SubscriptionActive,
			StartDate:            now,
			MinCommitmentEnd:     now.AddDate(0, plan.MinCommitmentMonths, 0),
			StripeSubscriptionID: stripeID,
		}); err != nil {
			return err
		}
		if c.CustomerID != "" {
			if err := s.repo.SetStripeCustomerID(ctx, c.UserUID, c.CustomerID); err != nil {
				return err
			}
		}
		log.Info("subscription activated", slog.String("user_uid", c.UserUID), slog.Int64("plan_id", plan.ID))
		after.add(func(ctx context.Context) {
			s.notifier.Notify(ctx, c.UserUID, models.NotifySubscriptionActivated, models.PriorityNormal, nil,
				"Подписка оформлена", fmt.Sprintf("План %q активен.", plan.Name))
			s.notifier.NotifyAdmins(ctx, models.NotifyPaymentReceived, models.PriorityNormal, nil,
				"Новая подписка", fmt.Sprintf("Клиент оформил план %q.", plan.Name))
		})
		return nil

	case models.CheckoutAppointment:
		a, err := s.repo.GetAppointment(ctx, c.AppointmentID)
		if err != nil {
			return err
		}
		if !a.PaymentStatus.CanTransition(models.PaymentPaid) {
			log.Warn("appointment payment already settled", slog.Int64("appointment_id", a.ID),
				slog.String("payment_status", string(a.PaymentStatus)))
			return nil
		}
		a.PaymentStatus = models.PaymentPaid
		if _, err := s.repo.UpdateAppointment(ctx, *a); err != nil {
			return err
		}
		after.add(s.invalidateAppointments(log))
		id := a.ID
		if a.Status == models.AppointmentCanceled {
			// сессия оплаты пережила отмену записи: деньги возвращаются или компенсируются ваучером
			log.Warn("payment received for canceled appointment", slog.Int64("appointment_id", id),
				slog.Int64("amount", c.AmountTotal))
			after.add(func(ctx context.Context) {
				s.settleCanceled(ctx, log, id)
			})
			return nil
		}
		log.Info("appointment paid", slog.Int64("appointment_id", id), slog.Int64("amount", c.AmountTotal))
		userUID := a.UserUID
		after.add(func(ctx context.Context) {
			s.notifier.Notify(ctx, userUID, models.NotifyPaymentReceived, models.PriorityNormal, &id,
				"Оплата получена", "Запись оплачена.")
			s.notifier.NotifyAdmins(ctx, models.NotifyPaymentReceived, models.PriorityNormal, &id,
				"Оплата записи", fmt.Sprintf("Получена оплата %d по записи #%d.", c.AmountTotal, id))
		})
		return nil

	default:
		log.Warn("checkout with unknown kind ignored", slog.String("kind", string(c.Kind)))
		return nil
	}
}

func (s *Service) invalidateAppointments(log *slog.Logger) func(ctx context.Context) {
	return func(ctx context.Context) {
		if s.cache == nil {
			return
		}
		if err := s.cache.InvalidatePrefix(ctx, cache.PrefixAppointments); err != nil {
			log.Warn("cache invalidation failed", sl.Err(err))
		}
	}
}

// settleCanceled возвращает оплату отменённой записи. Ошибка только логируется:
// событие уже зафиксировано, а статус paid позволяет вернуть деньги вручную.
func (s *Service) settleCanceled(ctx context.Context, log *slog.Logger, appointmentID int64) {
	if s.settler == nil {
		log.Error("payment for canceled appointment left unsettled", slog.Int64("appointment_id", appointmentID))
		return
	}
	out, err := s.settler.SettleCanceledPayment(ctx, appointmentID)
	if err != nil {
		log.Error("failed to settle payment for canceled appointment",
			slog.Int64("appointment_id", appointmentID), sl.Err(err))
		return
	}
	log.Info("payment for canceled appointment settled", slog.Int64("appointment_id", appointmentID),
		slog.Bool("refunded", out.Refunded), slog.Bool("voucher_issued", out.Voucher != nil))
}

// subscriptionFor находит подписку по идентификатору шлюза. Неизвестные подписки пропускаются.
func (s *Service) subscriptionFor(ctx context.Context, log *slog.Logger, stripeID string) (*models.Subscription, error) {
	if stripeID == "" {
		return nil, nil
	}
	sub, err := s.repo.GetSubscriptionByStripeID(ctx, stripeID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		log.Warn("webhook for unknown subscription", slog.String("subscription", stripeID))
	}
	return sub, nil
}

func (s *Service) onInvoicePaid(ctx context.Context, log *slog.Logger, inv *paymentprovider.InvoiceEvent) error {
	sub, err := s.subscriptionFor(ctx, log, inv.SubscriptionID)
	if err != nil || sub == nil {
		return err
	}
	switch sub.Status {
	case models.SubscriptionActive:
		if sub.EndDate == nil {
			return nil
		}
	case models.SubscriptionPaused:
	case models.SubscriptionCanceled:
		log.Warn("invoice paid for canceled subscription", slog.Int64("subscription_id", sub.ID))
		return nil
	}
	sub.Status = models.SubscriptionActive
	sub.EndDate = nil
	_, err = s.repo.UpdateSubscription(ctx, *sub)
	return err
}

func (s *Service) onInvoiceFailed(ctx context.Context, log *slog.Logger, inv *paymentprovider.InvoiceEvent, after *afterCommit) error {
	sub, err := s.subscriptionFor(ctx, log, inv.SubscriptionID)
	if err != nil || sub == nil {
		return err
	}
	userUID := sub.UserUID
	after.add(func(ctx context.Context) {
		s.notifier.Notify(ctx, userUID, models.NotifyPaymentFailed, models.PriorityHigh, nil,
			"Не удалось списать оплату", "Обновите карту в личном кабинете, чтобы подписка продолжила действовать.")
		s.notifier.NotifyAdmins(ctx, models.NotifyPaymentFailed, models.PriorityHigh, nil,
			"Ошибка оплаты подписки", fmt.Sprintf("Счёт %s на сумму %d не оплачен.", inv.InvoiceID, inv.AmountDue))
	})
	return nil
}

func (s *Service) onSubscriptionUpdated(ctx context.Context, log *slog.Logger, e *paymentprovider.SubscriptionEvent) error {
	sub, err := s.subscriptionFor(ctx, log, e.SubscriptionID)
	if err != nil || sub == nil {
		return err
	}
	changed := false
	if e.Status != sub.Status {
		if !sub.Status.CanTransition(e.Status) {
			log.Warn("gateway status change ignored",
				slog.String("from", string(sub.Status)), slog.String("to", string(e.Status)))
		} else {
			sub.Status = e.Status
			if e.Status == models.SubscriptionCanceled {
				now := s.now()
				sub.CanceledAt = &now
			}
			changed = true
		}
	}
	if e.CancelAtPeriodEnd && !e.CurrentPeriodEnd.IsZero() {
		end := e.CurrentPeriodEnd
		sub.EndDate = &end
		changed = true
	}
	if !changed {
		return nil
	}
	_, err = s.repo.UpdateSubscription(ctx, *sub)
	return err
}

func (s *Service) onSubscriptionDeleted(ctx context.Context, log *slog.Logger, e *paymentprovider.SubscriptionEvent, after *afterCommit) error {
	sub, err := s.subscriptionFor(ctx, log, e.SubscriptionID)
	if err != nil || sub == nil {
		return err
	}
	if sub.Status == models.SubscriptionCanceled && sub.EndDate != nil && !sub.EndDate.After(s.now()) {
		return nil
	}
	now := s.now()
	sub.Status = models.SubscriptionCanceled
	sub.EndDate = &now
	if sub.CanceledAt == nil {
		sub.CanceledAt = &now
	}
	if _, err := s.repo.UpdateSubscription(ctx, *sub); err != nil {
		return err
	}
	userUID := sub.UserUID
	after.add(func(ctx context.Context) {
		s.notifier.Notify(ctx, userUID, models.NotifySubscriptionCanceled, models.PriorityNormal, nil,
			"Подписка завершена", "Срок действия подписки закончился.")
	})
	return nil
}
