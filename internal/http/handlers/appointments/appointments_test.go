package appointments

import (
	"bytes"
	"context"
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

func (m *ServiceMock) Create(ctx context.Context, actor models.Actor, req models.CreateAppointmentRequest) (*models.Appointment, error) {
	args := m.Called(ctx, actor, req)
	return ptr[models.Appointment](args.Get(0)), args.Error(1)
}

func (m *ServiceMock) Get(ctx context.Context, actor models.Actor, id int64) (*models.Appointment, error) {
	args := m.Called(ctx, actor, id)
	return ptr[models.Appointment](args.Get(0)), args.Error(1)
}

func (m *ServiceMock) List(ctx context.Context, actor models.Actor, f models.AppointmentFilter) ([]*models.Appointment, error) {
	args := m.Called(ctx, actor, f)
	list, _ := args.Get(0).([]*models.Appointment)
	return list, args.Error(1)
}

func (m *ServiceMock) Confirm(ctx context.Context, id int64) (*models.Appointment, error) {
	args := m.Called(ctx, id)
	return ptr[models.Appointment](args.Get(0)), args.Error(1)
}

func (m *ServiceMock) Complete(ctx context.Context, id int64, paid bool) (*models.Appointment, error) {
	args := m.Called(ctx, id, paid)
	return ptr[models.Appointment](args.Get(0)), args.Error(1)
}

func (m *ServiceMock) MarkNoShow(ctx context.Context, id int64) (*models.Appointment, error) {
	args := m.Called(ctx, id)
	return ptr[models.Appointment](args.Get(0)), args.Error(1)
}

func (m *ServiceMock) Cancel(ctx context.Context, actor models.Actor, id int64, reason string) (*models.CancelOutcome, error) {
	args := m.Called(ctx, actor, id, reason)
	return ptr[models.CancelOutcome](args.Get(0)), args.Error(1)
}

func (m *ServiceMock) Reschedule(ctx context.Context, actor models.Actor, id int64, req models.RescheduleAppointmentRequest) (*models.Appointment, error) {
	args := m.Called(ctx, actor, id, req)
	return ptr[models.Appointment](args.Get(0)), args.Error(1)
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

func router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/appointments", h.Create)
	r.Get("/appointments", h.List)
	r.Get("/appointments/{id}", h.Get)
	r.Post("/appointments/{id}/complete", h.Complete)
	r.Post("/appointments/{id}/cancel", h.Cancel)
	r.Post("/appointments/{id}/reschedule", h.Reschedule)
	return r
}

func do(h http.Handler, method, url, body string, actor *models.Actor) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if actor != nil {
		req = req.WithContext(middlewarectx.WithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Create(t *testing.T) {
	start := time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		body      string
		actor     *models.Actor
		setupMock func(*ServiceMock)
		status    int
		body200   string
	}{
		{
			name:  "запись создана",
			body:  `{"service_id":1,"start_time":"2025-03-12T10:00:00Z","origin":"single"}`,
			actor: &client,
			setupMock: func(m *ServiceMock) {
				m.On("Create", mock.Anything, client, models.CreateAppointmentRequest{
					ServiceID: 1, StartTime: start, Origin: models.OriginSingle,
				}).Return(&models.Appointment{ID: 7, Status: models.AppointmentPending}, nil)
			},
			status:  http.StatusCreated,
			body200: `"id":7`,
		},
		{
			name:   "без авторизации",
			body:   `{"service_id":1,"start_time":"2025-03-12T10:00:00Z","origin":"single"}`,
			status: http.StatusUnauthorized,
		},
		{
			name:    "неизвестный источник оплаты",
			body:    `{"service_id":1,"start_time":"2025-03-12T10:00:00Z","origin":"cash"}`,
			actor:   &client,
			status:  http.StatusBadRequest,
			body200: "field Origin must be one of",
		},
		{
			name:  "исчерпана квота подписки",
			body:  `{"service_id":1,"start_time":"2025-03-12T10:00:00Z","origin":"subscription"}`,
			actor: &client,
			setupMock: func(m *ServiceMock) {
				m.On("Create", mock.Anything, client, mock.Anything).
					Return(nil, apperr.Validation("monthly treatment quota exhausted"))
			},
			status:  http.StatusBadRequest,
			body200: "monthly treatment quota exhausted",
		},
		{
			name:  "администраторский источник для клиента",
			body:  `{"service_id":1,"start_time":"2025-03-12T10:00:00Z","origin":"admin"}`,
			actor: &client,
			setupMock: func(m *ServiceMock) {
				m.On("Create", mock.Anything, client, mock.Anything).Return(nil, apperr.Forbidden("admin origin requires admin"))
			},
			status: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			if tt.setupMock != nil {
				tt.setupMock(svc)
			}
			rec := do(router(New(newNoopLogger(), svc, time.UTC)), http.MethodPost, "/appointments", tt.body, tt.actor)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body200)
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_List(t *testing.T) {
	t.Run("фильтры передаются в сервис", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("List", mock.Anything, client, mock.MatchedBy(func(f models.AppointmentFilter) bool {
			return f.Status != nil && *f.Status == models.AppointmentConfirmed &&
				f.From != nil && f.From.Equal(time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)) &&
				f.To == nil && f.Limit == 10
		})).Return(nil, nil)

		rec := do(router(New(newNoopLogger(), svc, time.UTC)), http.MethodGet,
			"/appointments?status=confirmed&from=2025-03-01&limit=10", "", &client)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String())
	})

	t.Run("неизвестный статус", func(t *testing.T) {
		svc := new(ServiceMock)
		rec := do(router(New(newNoopLogger(), svc, time.UTC)), http.MethodGet, "/appointments?status=lost", "", &client)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("некорректная дата", func(t *testing.T) {
		svc := new(ServiceMock)
		rec := do(router(New(newNoopLogger(), svc, time.UTC)), http.MethodGet, "/appointments?to=01.03.2025", "", &client)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_Get(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("Get", mock.Anything, client, int64(99)).Return(nil, apperr.NotFound("appointment %d not found", 99))
	h := router(New(newNoopLogger(), svc, time.UTC))

	rec := do(h, http.MethodGet, "/appointments/99", "", &client)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "appointment 99 not found")

	rec = do(h, http.MethodGet, "/appointments/abc", "", &client)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_CompleteWithoutBody(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("Complete", mock.Anything, int64(5), false).Return(&models.Appointment{ID: 5, Status: models.AppointmentCompleted}, nil).Once()

	rec := do(router(New(newNoopLogger(), svc, time.UTC)), http.MethodPost, "/appointments/5/complete", "", &client)
	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestHandler_Cancel(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("Cancel", mock.Anything, client, int64(5), "заболела").Return(&models.CancelOutcome{
		Appointment: &models.Appointment{ID: 5, Status: models.AppointmentCanceled},
		Refunded:    true,
	}, nil).Once()

	rec := do(router(New(newNoopLogger(), svc, time.UTC)), http.MethodPost, "/appointments/5/cancel", `{"reason":"заболела"}`, &client)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"refunded":true`)
	svc.AssertExpectations(t)
}

func TestHandler_Reschedule(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("Reschedule", mock.Anything, client, int64(5), mock.Anything).
		Return(nil, apperr.Validation("too late to reschedule")).Once()
	h := router(New(newNoopLogger(), svc, time.UTC))

	rec := do(h, http.MethodPost, "/appointments/5/reschedule", `{"start_time":"2025-03-20T10:00:00Z"}`, &client)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "too late to reschedule")

	rec = do(h, http.MethodPost, "/appointments/5/reschedule", `{}`, &client)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "field StartTime is a required field")
	svc.AssertNumberOfCalls(t, "Reschedule", 1)
}
