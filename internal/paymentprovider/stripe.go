// Package paymentprovider реализует платёжный шлюз клиники поверх Stripe.
package paymentprovider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/magabrotheeeer/beauty-clinic/internal/config"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/month"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/sl"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// Ключи metadata, которые шлюз возвращает в вебхуках.
const (
	MetaKind          = "kind"
	MetaUserUID       = "user_uid"
	MetaPlanID        = "plan_id"
	MetaAppointmentID = "appointment_id"
)

// ErrNotConfigured возвращается, когда секретный ключ шлюза не задан.
var ErrNotConfigured = errors.New("payment gateway is not configured")

// Discount скидка, применяемая к сессии оплаты через одноразовый купон.
type Discount struct {
	PercentOff int
	AmountOff  int64
}

// Stripe адаптер платёжного шлюза.
type Stripe struct {
	api             *client.API
	enabled         bool
	webhookSecret   string
	allowUnverified bool
	currency        string
	frontendURL     string
	log             *slog.Logger
}

// NewStripe создаёт адаптер. Без секретного ключа доступен только разбор вебхуков.
func NewStripe(cfg config.Stripe, frontendURL string, log *slog.Logger) *Stripe {
	return newStripe(cfg, frontendURL, log, nil)
}

func newStripe(cfg config.Stripe, frontendURL string, log *slog.Logger, backends *stripe.Backends) *Stripe {
	sc := &client.API{}
	sc.Init(cfg.StripeSecretKey, backends)
	currency := cfg.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &Stripe{
		api:             sc,
		enabled:         cfg.StripeSecretKey != "",
		webhookSecret:   cfg.StripeWebhookSecret,
		allowUnverified: cfg.AllowUnverifiedWebhooks,
		currency:        currency,
		frontendURL:     frontendURL,
		log:             log,
	}
}

// Enabled сообщает, задан ли секретный ключ.
func (s *Stripe) Enabled() bool {
	return s.enabled
}

// Currency валюта всех сумм шлюза.
func (s *Stripe) Currency() string {
	return s.currency
}

func (s *Stripe) check(op string) error {
	if !s.enabled {
		return apperr.External("payments are unavailable", fmt.Errorf("%s: %w", op, ErrNotConfigured))
	}
	return nil
}

func gatewayErr(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode == 404 {
		return apperr.NotFound("payment gateway object not found")
	}
	return apperr.External("payment gateway request failed", fmt.Errorf("%s: %w", op, err))
}

// GetOrCreateCustomer возвращает id клиента в шлюзе: сохранённый, найденный по email или новый.
func (s *Stripe) GetOrCreateCustomer(ctx context.Context, user models.User) (string, error) {
	const op = "paymentprovider.GetOrCreateCustomer"
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	if err := s.check(op); err != nil {
		return "", err
	}

	listParams := &stripe.CustomerListParams{Email: stripe.String(user.Email)}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)
	it := s.api.Customers.List(listParams)
	if it.Next() {
		return it.Customer().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", gatewayErr(op, err)
	}

	params := &stripe.CustomerParams{
		Email:    stripe.String(user.Email),
		Name:     stripe.String(user.FullName),
		Metadata: map[string]string{MetaUserUID: user.UID},
	}
	params.Context = ctx
	cust, err := s.api.Customers.New(params)
	if err != nil {
		return "", gatewayErr(op, err)
	}
	s.log.Info("stripe customer created", slog.String("user_uid", user.UID), slog.String("customer", cust.ID))
	return cust.ID, nil
}

// EnsurePlanPrice создаёт продукт и ежемесячную цену плана. При смене суммы создаётся новая цена,
// старая остаётся для истории счетов. Возвращает true, если идентификаторы плана изменились.
func (s *Stripe) EnsurePlanPrice(ctx context.Context, plan *models.Plan) (bool, error) {
	const op = "paymentprovider.EnsurePlanPrice"
	if err := s.check(op); err != nil {
		return false, err
	}
	changed := false

	if plan.StripeProductID == nil || *plan.StripeProductID == "" {
		params := &stripe.ProductParams{
			Name:     stripe.String(plan.Name),
			Metadata: map[string]string{MetaPlanID: strconv.FormatInt(plan.ID, 10)},
		}
		params.Context = ctx
		prod, err := s.api.Products.New(params)
		if err != nil {
			return false, gatewayErr(op, err)
		}
		plan.StripeProductID = &prod.ID
		plan.StripePriceID = nil
		changed = true
	}

	if plan.StripePriceID != nil && *plan.StripePriceID != "" {
		getParams := &stripe.PriceParams{}
		getParams.Context = ctx
		pr, err := s.api.Prices.Get(*plan.StripePriceID, getParams)
		switch {
		case err != nil:
			s.log.Warn("stripe price lookup failed, recreating", slog.Int64("plan_id", plan.ID), sl.Err(err))
			plan.StripePriceID = nil
		case pr.UnitAmount != plan.Price || string(pr.Currency) != s.currency:
			plan.StripePriceID = nil
		}
	}

	if plan.StripePriceID == nil || *plan.StripePriceID == "" {
		params := &stripe.PriceParams{
			Product:    plan.StripeProductID,
			Currency:   stripe.String(s.currency),
			UnitAmount: stripe.Int64(plan.Price),
			Recurring: &stripe.PriceRecurringParams{
				Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
			},
		}
		params.Context = ctx
		price, err := s.api.Prices.New(params)
		if err != nil {
			return false, gatewayErr(op, err)
		}
		plan.StripePriceID = &price.ID
		changed = true
	}
	return changed, nil
}

func (s *Stripe) coupon(ctx context.Context, op string, d *Discount) ([]*stripe.CheckoutSessionDiscountParams, error) {
	if d == nil || (d.PercentOff <= 0 && d.AmountOff <= 0) {
		return nil, nil
	}
	params := &stripe.CouponParams{Duration: stripe.String(string(stripe.CouponDurationOnce))}
	if d.PercentOff > 0 {
		params.PercentOff = stripe.Float64(float64(d.PercentOff))
	} else {
		params.AmountOff = stripe.Int64(d.AmountOff)
		params.Currency = stripe.String(s.currency)
	}
	params.Context = ctx
	c, err := s.api.Coupons.New(params)
	if err != nil {
		return nil, gatewayErr(op, err)
	}
	return []*stripe.CheckoutSessionDiscountParams{{Coupon: stripe.String(c.ID)}}, nil
}

func (s *Stripe) successURL() string {
	return s.frontendURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}"
}

func (s *Stripe) cancelURL() string {
	return s.frontendURL + "/payment/cancel"
}

// CreateSubscriptionCheckout создаёт сессию оформления подписки на план.
func (s *Stripe) CreateSubscriptionCheckout(ctx context.Context, customerID, userUID string, plan models.Plan, discount *Discount) (*models.CheckoutSession, error) {
	const op = "paymentprovider.CreateSubscriptionCheckout"
	if err := s.check(op); err != nil {
		return nil, err
	}
	if plan.StripePriceID == nil {
		return nil, apperr.Validation("plan %d has no gateway price", plan.ID)
	}
	discounts, err := s.coupon(ctx, op, discount)
	if err != nil {
		return nil, err
	}
	meta := map[string]string{
		MetaKind:    string(models.CheckoutSubscription),
		MetaUserUID: userUID,
		MetaPlanID:  strconv.FormatInt(plan.ID, 10),
	}
	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(customerID),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(s.successURL()),
		CancelURL:  stripe.String(s.cancelURL()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    plan.StripePriceID,
			Quantity: stripe.Int64(1),
		}},
		Discounts:        discounts,
		Metadata:         meta,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{Metadata: meta},
	}
	params.Context = ctx
	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, gatewayErr(op, err)
	}
	return &models.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CreatePaymentCheckout создаёт сессию разовой оплаты записи на сумму amount.
func (s *Stripe) CreatePaymentCheckout(ctx context.Context, customerID string, a models.Appointment, serviceName string, amount int64, discount *Discount) (*models.CheckoutSession, error) {
	const op = "paymentprovider.CreatePaymentCheckout"
	if err := s.check(op); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, apperr.Validation("nothing to pay for appointment %d", a.ID)
	}
	discounts, err := s.coupon(ctx, op, discount)
	if err != nil {
		return nil, err
	}
	meta := map[string]string{
		MetaKind:          string(models.CheckoutAppointment),
		MetaUserUID:       a.UserUID,
		MetaAppointmentID: strconv.FormatInt(a.ID, 10),
	}
	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(customerID),
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.successURL()),
		CancelURL:  stripe.String(s.cancelURL()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(s.currency),
				UnitAmount: stripe.Int64(amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(serviceName),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		Discounts:         discounts,
		Metadata:          meta,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: meta},
	}
	params.Context = ctx
	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, gatewayErr(op, err)
	}
	return &models.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CreatePortalSession возвращает ссылку на кабинет клиента в шлюзе.
func (s *Stripe) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*models.PortalSession, error) {
	const op = "paymentprovider.CreatePortalSession"
	if err := s.check(op); err != nil {
		return nil, err
	}
	if returnURL == "" {
		returnURL = s.frontendURL
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := s.api.BillingPortalSessions.New(params)
	if err != nil {
		return nil, gatewayErr(op, err)
	}
	return &models.PortalSession{URL: sess.URL}, nil
}

// ListPaymentMethods возвращает карты клиента без повторов по отпечатку карты.
func (s *Stripe) ListPaymentMethods(ctx context.Context, customerID string) ([]models.PaymentMethod, error) {
	const op = "paymentprovider.ListPaymentMethods"
	if err := s.check(op); err != nil {
		return nil, err
	}
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Context = ctx
	it := s.api.PaymentMethods.List(params)

	seen := make(map[string]struct{})
	methods := make([]models.PaymentMethod, 0)
	for it.Next() {
		pm := it.PaymentMethod()
		if pm.Card == nil {
			continue
		}
		key := pm.Card.Fingerprint
		if key == "" {
			key = pm.ID
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		methods = append(methods, models.PaymentMethod{
			ID:          pm.ID,
			Brand:       string(pm.Card.Brand),
			Last4:       pm.Card.Last4,
			ExpMonth:    int64(pm.Card.ExpMonth),
			ExpYear:     int64(pm.Card.ExpYear),
			Fingerprint: pm.Card.Fingerprint,
		})
	}
	if err := it.Err(); err != nil {
		return nil, gatewayErr(op, err)
	}
	return methods, nil
}

// MonthlyRevenue суммирует оплаченные счета и успешные разовые платежи всех клиентов за месяц.
// Выполняет запросы по каждому клиенту шлюза.
func (s *Stripe) MonthlyRevenue(ctx context.Context, year, mon int, loc *time.Location) (models.Revenue, error) {
	const op = "paymentprovider.MonthlyRevenue"
	rev := models.Revenue{Year: year, Month: mon, Currency: s.currency}
	if err := s.check(op); err != nil {
		return rev, err
	}
	from, to := month.Bounds(time.Date(year, time.Month(mon), 1, 0, 0, 0, 0, loc), loc)
	created := &stripe.RangeQueryParams{
		GreaterThanOrEqual: from.Unix(),
		LesserThan:         to.Unix(),
	}

	custParams := &stripe.CustomerListParams{}
	custParams.Context = ctx
	customers := s.api.Customers.List(custParams)
	for customers.Next() {
		cust := customers.Customer()

		invParams := &stripe.InvoiceListParams{
			Customer:     stripe.String(cust.ID),
			Status:       stripe.String(string(stripe.InvoiceStatusPaid)),
			CreatedRange: created,
		}
		invParams.Context = ctx
		invoices := s.api.Invoices.List(invParams)
		for invoices.Next() {
			rev.Invoices += invoices.Invoice().AmountPaid
		}
		if err := invoices.Err(); err != nil {
			return rev, gatewayErr(op, err)
		}

		piParams := &stripe.PaymentIntentListParams{
			Customer:     stripe.String(cust.ID),
			CreatedRange: created,
		}
		piParams.Context = ctx
		intents := s.api.PaymentIntents.List(piParams)
		for intents.Next() {
			pi := intents.PaymentIntent()
			if pi.Status != stripe.PaymentIntentStatusSucceeded || pi.Invoice != nil {
				continue
			}
			rev.Payments += pi.AmountReceived
		}
		if err := intents.Err(); err != nil {
			return rev, gatewayErr(op, err)
		}
	}
	if err := customers.Err(); err != nil {
		return rev, gatewayErr(op, err)
	}
	rev.Total = rev.Invoices + rev.Payments
	return rev, nil
}

// RefundAppointmentPayment находит успешный платёж клиента по записи и возвращает деньги.
func (s *Stripe) RefundAppointmentPayment(ctx context.Context, customerID string, appointmentID int64) (string, error) {
	const op = "paymentprovider.RefundAppointmentPayment"
	if err := s.check(op); err != nil {
		return "", err
	}
	want := strconv.FormatInt(appointmentID, 10)

	params := &stripe.PaymentIntentListParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	it := s.api.PaymentIntents.List(params)
	var intentID string
	for it.Next() {
		pi := it.PaymentIntent()
		if pi.Status == stripe.PaymentIntentStatusSucceeded && pi.Metadata[MetaAppointmentID] == want {
			intentID = pi.ID
			break
		}
	}
	if err := it.Err(); err != nil {
		return "", gatewayErr(op, err)
	}
	if intentID == "" {
		return "", apperr.NotFound("no payment found for appointment %d", appointmentID)
	}

	refundParams := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Metadata:      map[string]string{MetaAppointmentID: want},
	}
	refundParams.Context = ctx
	refund, err := s.api.Refunds.New(refundParams)
	if err != nil {
		return "", gatewayErr(op, err)
	}
	s.log.Info("payment refunded",
		slog.Int64("appointment_id", appointmentID),
		slog.String("payment_intent", intentID),
		slog.String("refund", refund.ID))
	return refund.ID, nil
}

// ExpireAppointmentCheckouts закрывает открытые страницы оплаты записи, чтобы по
// отменённой записи нельзя было заплатить. Возвращает число закрытых сессий.
func (s *Stripe) ExpireAppointmentCheckouts(ctx context.Context, customerID string, appointmentID int64) (int, error) {
	const op = "paymentprovider.ExpireAppointmentCheckouts"
	if err := s.check(op); err != nil {
		return 0, err
	}
	want := strconv.FormatInt(appointmentID, 10)

	params := &stripe.CheckoutSessionListParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	it := s.api.CheckoutSessions.List(params)
	var open []string
	for it.Next() {
		sess := it.CheckoutSession()
		if sess.Status == stripe.CheckoutSessionStatusOpen &&
			sess.Metadata[MetaKind] == string(models.CheckoutAppointment) &&
			sess.Metadata[MetaAppointmentID] == want {
			open = append(open, sess.ID)
		}
	}
	if err := it.Err(); err != nil {
		return 0, gatewayErr(op, err)
	}

	for _, id := range open {
		expireParams := &stripe.CheckoutSessionExpireParams{}
		expireParams.Context = ctx
		if _, err := s.api.CheckoutSessions.Expire(id, expireParams); err != nil {
			return 0, gatewayErr(op, err)
		}
		s.log.Info("checkout session expired", slog.Int64("appointment_id", appointmentID), slog.String("session", id))
	}
	return len(open), nil
}

// CancelSubscriptionAtPeriodEnd помечает подписку шлюза к отмене в конце оплаченного периода.
func (s *Stripe) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error) {
	const op = "paymentprovider.CancelSubscriptionAtPeriodEnd"
	if err := s.check(op); err != nil {
		return time.Time{}, err
	}
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx
	sub, err := s.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return time.Time{}, gatewayErr(op, err)
	}
	return time.Unix(sub.CurrentPeriodEnd, 0).UTC(), nil
}
