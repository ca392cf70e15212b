package paymentprovider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/magabrotheeeer/beauty-clinic/internal/config"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

const checkoutPayload = `{
	"id": "evt_checkout",
	"object": "event",
	"type": "checkout.session.completed",
	"data": {"object": {
		"id": "cs_1",
		"object": "checkout.session",
		"amount_total": 9900,
		"customer": "cus_1",
		"subscription": "sub_1",
		"metadata": {"kind": "subscription", "user_uid": "u-1", "plan_id": "3"}
	}}
}`

func sign(payload, secret string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestParseWebhook(t *testing.T) {
	tests := []struct {
		name            string
		secret          string
		allowUnverified bool
		signature       string
		wantErr         bool
	}{
		{name: "без секрета подпись не проверяется", signature: "garbage"},
		{name: "верная подпись", secret: "whsec_test", signature: sign(checkoutPayload, "whsec_test")},
		{name: "неверная подпись", secret: "whsec_test", signature: sign(checkoutPayload, "whsec_other"), wantErr: true},
		{name: "неверная подпись разрешена", secret: "whsec_test", allowUnverified: true, signature: "garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStripe(config.Stripe{
				StripeWebhookSecret:     tt.secret,
				AllowUnverifiedWebhooks: tt.allowUnverified,
			}, "", newNoopLogger())

			event, err := s.ParseWebhook([]byte(checkoutPayload), tt.signature)
			if tt.wantErr {
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "evt_checkout", event.ID)
			assert.Equal(t, EventCheckoutCompleted, event.Type)
			require.NotNil(t, event.Checkout)
			assert.Equal(t, models.CheckoutSubscription, event.Checkout.Kind)
			assert.Equal(t, "u-1", event.Checkout.UserUID)
			assert.Equal(t, int64(3), event.Checkout.PlanID)
			assert.Equal(t, "sub_1", event.Checkout.SubscriptionID)
			assert.Equal(t, "cus_1", event.Checkout.CustomerID)
			assert.Equal(t, int64(9900), event.Checkout.AmountTotal)
		})
	}
}

func TestParseWebhook_Kinds(t *testing.T) {
	s := NewStripe(config.Stripe{}, "", newNoopLogger())

	t.Run("оплата записи", func(t *testing.T) {
		event, err := s.ParseWebhook([]byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{
			"id":"cs_2","metadata":{"kind":"appointment","user_uid":"u-2","appointment_id":"15"}}}}`), "")
		require.NoError(t, err)
		assert.Equal(t, models.CheckoutAppointment, event.Checkout.Kind)
		assert.Equal(t, int64(15), event.Checkout.AppointmentID)
	})

	t.Run("счёт оплачен", func(t *testing.T) {
		event, err := s.ParseWebhook([]byte(`{"id":"evt_2","type":"invoice.payment_succeeded","data":{"object":{
			"id":"in_1","customer":"cus_1","subscription":"sub_1","amount_paid":9900}}}`), "")
		require.NoError(t, err)
		require.NotNil(t, event.Invoice)
		assert.Equal(t, "sub_1", event.Invoice.SubscriptionID)
		assert.Equal(t, int64(9900), event.Invoice.AmountPaid)
	})

	t.Run("подписка отменяется в конце периода", func(t *testing.T) {
		event, err := s.ParseWebhook([]byte(`{"id":"evt_3","type":"customer.subscription.updated","data":{"object":{
			"id":"sub_1","status":"active","cancel_at_period_end":true,"current_period_end":1767225600}}}`), "")
		require.NoError(t, err)
		require.NotNil(t, event.Subscription)
		assert.Equal(t, models.SubscriptionActive, event.Subscription.Status)
		assert.True(t, event.Subscription.CancelAtPeriodEnd)
		assert.Equal(t, time.Unix(1767225600, 0).UTC(), event.Subscription.CurrentPeriodEnd)
	})

	t.Run("неизвестный тип", func(t *testing.T) {
		event, err := s.ParseWebhook([]byte(`{"id":"evt_4","type":"charge.succeeded","data":{"object":{"id":"ch_1"}}}`), "")
		require.NoError(t, err)
		assert.Nil(t, event.Checkout)
		assert.Nil(t, event.Invoice)
		assert.Nil(t, event.Subscription)
	})

	t.Run("битые метаданные", func(t *testing.T) {
		_, err := s.ParseWebhook([]byte(`{"id":"evt_5","type":"checkout.session.completed","data":{"object":{
			"id":"cs_3","metadata":{"kind":"appointment","appointment_id":"abc"}}}}`), "")
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("без id", func(t *testing.T) {
		_, err := s.ParseWebhook([]byte(`{"type":"invoice.payment_failed"}`), "")
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("не json", func(t *testing.T) {
		_, err := s.ParseWebhook([]byte(`not json`), "")
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})
}

func TestMapSubscriptionStatus(t *testing.T) {
	tests := []struct {
		in   stripe.SubscriptionStatus
		want models.SubscriptionStatus
	}{
		{stripe.SubscriptionStatusActive, models.SubscriptionActive},
		{stripe.SubscriptionStatusTrialing, models.SubscriptionActive},
		{stripe.SubscriptionStatusPastDue, models.SubscriptionActive},
		{stripe.SubscriptionStatusPaused, models.SubscriptionPaused},
		{stripe.SubscriptionStatusUnpaid, models.SubscriptionPaused},
		{stripe.SubscriptionStatusIncomplete, models.SubscriptionPaused},
		{stripe.SubscriptionStatusCanceled, models.SubscriptionCanceled},
		{stripe.SubscriptionStatusIncompleteExpired, models.SubscriptionCanceled},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, MapSubscriptionStatus(tt.in))
		})
	}
}
