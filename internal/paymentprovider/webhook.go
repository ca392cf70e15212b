package paymentprovider

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/sl"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// Типы событий, которые обрабатывает клиника.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventInvoicePaid         = "invoice.payment_succeeded"
	EventInvoiceFailed       = "invoice.payment_failed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// CheckoutCompleted данные завершённой сессии оплаты.
type CheckoutCompleted struct {
	SessionID      string
	Kind           models.CheckoutKind
	UserUID        string
	PlanID         int64
	AppointmentID  int64
	CustomerID     string
	SubscriptionID string
	AmountTotal    int64
}

// InvoiceEvent данные счёта по подписке.
type InvoiceEvent struct {
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	AmountPaid     int64
	AmountDue      int64
}

// SubscriptionEvent данные изменения подписки шлюза.
type SubscriptionEvent struct {
	SubscriptionID    string
	CustomerID        string
	Status            models.SubscriptionStatus
	GatewayStatus     string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  time.Time
}

// Event событие вебхука, приведённое к доменным типам.
// Заполнено не более одного из полей Checkout, Invoice, Subscription.
type Event struct {
	ID           string
	Type         string
	Checkout     *CheckoutCompleted
	Invoice      *InvoiceEvent
	Subscription *SubscriptionEvent
}

// ParseWebhook проверяет подпись и разбирает событие. Без секрета подпись не проверяется.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (*Event, error) {
	const op = "paymentprovider.ParseWebhook"

	var event stripe.Event
	switch {
	case s.webhookSecret == "":
		s.log.Warn("webhook secret is not set, accepting unsigned event")
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, apperr.Validation("malformed webhook payload")
		}
	default:
		verified, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err == nil {
			event = verified
			break
		}
		if !s.allowUnverified {
			s.log.Warn("webhook signature verification failed", sl.Err(err))
			return nil, apperr.Validation("invalid webhook signature")
		}
		s.log.Warn("webhook signature verification failed, accepting unverified event", sl.Err(err))
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, apperr.Validation("malformed webhook payload")
		}
	}

	if event.ID == "" || event.Type == "" {
		return nil, apperr.Validation("webhook event has no id or type")
	}
	out, err := decodeEvent(event)
	if err != nil {
		s.log.Warn("cannot decode webhook event", sl.Op(op), slog.String("type", string(event.Type)), sl.Err(err))
		return nil, apperr.Validation("malformed %s event", event.Type)
	}
	return out, nil
}

func decodeEvent(event stripe.Event) (*Event, error) {
	out := &Event{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}
	raw := event.Data.Raw

	switch out.Type {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(raw, &sess); err != nil {
			return nil, err
		}
		c := &CheckoutCompleted{
			SessionID:   sess.ID,
			Kind:        models.CheckoutKind(sess.Metadata[MetaKind]),
			UserUID:     sess.Metadata[MetaUserUID],
			AmountTotal: sess.AmountTotal,
		}
		if v := sess.Metadata[MetaPlanID]; v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("plan_id: %w", err)
			}
			c.PlanID = id
		}
		if v := sess.Metadata[MetaAppointmentID]; v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("appointment_id: %w", err)
			}
			c.AppointmentID = id
		}
		if sess.Customer != nil {
			c.CustomerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			c.SubscriptionID = sess.Subscription.ID
		}
		out.Checkout = c

	case EventInvoicePaid, EventInvoiceFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, err
		}
		e := &InvoiceEvent{InvoiceID: inv.ID, AmountPaid: inv.AmountPaid, AmountDue: inv.AmountDue}
		if inv.Customer != nil {
			e.CustomerID = inv.Customer.ID
		}
		if inv.Subscription != nil {
			e.SubscriptionID = inv.Subscription.ID
		}
		out.Invoice = e

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, err
		}
		e := &SubscriptionEvent{
			SubscriptionID:    sub.ID,
			GatewayStatus:     string(sub.Status),
			Status:            MapSubscriptionStatus(sub.Status),
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		}
		if sub.CurrentPeriodEnd > 0 {
			e.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		}
		if sub.Customer != nil {
			e.CustomerID = sub.Customer.ID
		}
		out.Subscription = e
	}
	return out, nil
}

// MapSubscriptionStatus приводит статус подписки шлюза к статусу клиники.
func MapSubscriptionStatus(status stripe.SubscriptionStatus) models.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing, stripe.SubscriptionStatusPastDue:
		return models.SubscriptionActive
	case stripe.SubscriptionStatusPaused, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncomplete:
		return models.SubscriptionPaused
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return models.SubscriptionCanceled
	default:
		slog.Default().Warn("unknown gateway subscription status", slog.String("status", string(status)))
		return models.SubscriptionPaused
	}
}
