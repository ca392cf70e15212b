package payment

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/beauty-clinic/internal/http/middlewarectx"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

type ServiceMock struct{ mock.Mock }

func (m *ServiceMock) CheckoutAppointment(ctx context.Context, actor models.Actor, appointmentID int64) (*models.CheckoutSession, error) {
	args := m.Called(ctx, actor, appointmentID)
	return ptr[models.CheckoutSession](args.Get(0)), args.Error(1)
}

func (m *ServiceMock) Portal(ctx context.Context, userUID, returnURL string) (*models.PortalSession, error) {
	args := m.Called(ctx, userUID, returnURL)
	return ptr[models.PortalSession](args.Get(0)), args.Error(1)
}

func (m *ServiceMock) PaymentMethods(ctx context.Context, userUID string) ([]models.PaymentMethod, error) {
	args := m.Called(ctx, userUID)
	list, _ := args.Get(0).([]models.PaymentMethod)
	return list, args.Error(1)
}

func (m *ServiceMock) MonthlyRevenue(ctx context.Context, year, month int) (*models.Revenue, error) {
	args := m.Called(ctx, year, month)
	return ptr[models.Revenue](args.Get(0)), args.Error(1)
}

func (m *ServiceMock) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	return m.Called(ctx, string(payload), signature).Error(0)
}

func ptr[T any](v any) *T {
	if v == nil {
		return nil
	}
	return v.(*T)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var client = models.Actor{UID: "7a1c5a52-8c7e-4a35-9d3f-1f0b2f4f7d11", Role: models.RoleClient}

func do(h *Handler, req *http.Request, actor *models.Actor) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/stripe/appointments/{id}/checkout", h.Checkout)
	r.Post("/stripe/portal", h.Portal)
	r.Get("/stripe/payment-methods", h.PaymentMethods)
	r.Get("/admin/stripe/revenue", h.Revenue)
	r.Post("/stripe/webhook", h.Webhook)

	if actor != nil {
		req = req.WithContext(middlewarectx.WithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Checkout(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		setupMock func(*ServiceMock)
		status    int
		want      string
	}{
		{
			name: "сессия оплаты создана",
			url:  "/stripe/appointments/15/checkout",
			setupMock: func(m *ServiceMock) {
				m.On("CheckoutAppointment", mock.Anything, client, int64(15)).
					Return(&models.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/pay/cs_1"}, nil).Once()
			},
			status: http.StatusCreated,
			want:   `"url":"https://checkout.stripe.com/c/pay/cs_1"`,
		},
		{
			name: "запись уже оплачена",
			url:  "/stripe/appointments/15/checkout",
			setupMock: func(m *ServiceMock) {
				m.On("CheckoutAppointment", mock.Anything, client, int64(15)).
					Return(nil, apperr.Validation("appointment does not require payment")).Once()
			},
			status: http.StatusBadRequest,
			want:   "does not require payment",
		},
		{
			name:   "некорректный id",
			url:    "/stripe/appointments/0/checkout",
			status: http.StatusBadRequest,
			want:   "invalid id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			if tt.setupMock != nil {
				tt.setupMock(svc)
			}
			rec := do(New(newNoopLogger(), svc, nil), httptest.NewRequest(http.MethodPost, tt.url, nil), &client)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_Portal(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("Portal", mock.Anything, client.UID, "").Return(&models.PortalSession{URL: "https://billing.stripe.com/p/1"}, nil).Once()
	svc.On("Portal", mock.Anything, client.UID, "https://clinic.example/profile").
		Return(&models.PortalSession{URL: "https://billing.stripe.com/p/2"}, nil).Once()
	h := New(newNoopLogger(), svc, nil)

	rec := do(h, httptest.NewRequest(http.MethodPost, "/stripe/portal", nil), &client)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/p/1")

	rec = do(h, httptest.NewRequest(http.MethodPost, "/stripe/portal",
		bytes.NewBufferString(`{"return_url":"https://clinic.example/profile"}`)), &client)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/p/2")
	svc.AssertExpectations(t)
}

func TestHandler_PaymentMethods(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("PaymentMethods", mock.Anything, client.UID).
		Return([]models.PaymentMethod{{ID: "pm_1", Brand: "visa", Last4: "4242", Fingerprint: "fp"}}, nil).Once()

	rec := do(New(newNoopLogger(), svc, nil), httptest.NewRequest(http.MethodGet, "/stripe/payment-methods", nil), &client)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"last4":"4242"`)
	assert.NotContains(t, rec.Body.String(), "fp")
	svc.AssertExpectations(t)
}

func TestHandler_Revenue(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("MonthlyRevenue", mock.Anything, 2025, 3).
		Return(&models.Revenue{Year: 2025, Month: 3, Total: 125000, Currency: "eur"}, nil).Once()
	svc.On("MonthlyRevenue", mock.Anything, 2024, 13).
		Return(nil, apperr.Validation("month must be between 1 and 12")).Once()

	h := New(newNoopLogger(), svc, time.UTC)
	h.now = func() time.Time { return time.Date(2025, time.March, 15, 9, 0, 0, 0, time.UTC) }

	rec := do(h, httptest.NewRequest(http.MethodGet, "/admin/stripe/revenue", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":125000`)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/admin/stripe/revenue?year=2024&month=13", nil), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertExpectations(t)
}

func TestHandler_Webhook(t *testing.T) {
	payload := `{"id":"evt_1","type":"invoice.payment_succeeded"}`

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "событие обработано", status: http.StatusOK},
		{name: "неверная подпись", err: apperr.Validation("invalid webhook signature"), status: http.StatusBadRequest},
		{name: "сбой базы, Stripe повторит", err: errors.New("connection reset"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			svc.On("HandleWebhook", mock.Anything, payload, "t=1,v1=abc").Return(tt.err).Once()

			req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", bytes.NewBufferString(payload))
			req.Header.Set("Stripe-Signature", "t=1,v1=abc")
			rec := do(New(newNoopLogger(), svc, nil), req, nil)

			assert.Equal(t, tt.status, rec.Code)
			svc.AssertExpectations(t)
		})
	}
}
