package notifications

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/beauty-clinic/internal/http/middlewarectx"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

type ServiceMock struct{ mock.Mock }

func (m *ServiceMock) List(ctx context.Context, actor models.Actor, unreadOnly bool, limit, offset int) ([]*models.Notification, error) {
	args := m.Called(ctx, actor, unreadOnly, limit, offset)
	list, _ := args.Get(0).([]*models.Notification)
	return list, args.Error(1)
}

func (m *ServiceMock) UnreadCount(ctx context.Context, actor models.Actor) (int, error) {
	args := m.Called(ctx, actor)
	return args.Int(0), args.Error(1)
}

func (m *ServiceMock) MarkRead(ctx context.Context, actor models.Actor, id int64) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *ServiceMock) MarkAllRead(ctx context.Context, actor models.Actor) (int64, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).(int64), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var admin = models.Actor{UID: "c3d7a9f0-1b2e-4c5d-8e9f-0a1b2c3d4e5f", Role: models.RoleAdmin}

func do(h *Handler, method, url string, actor *models.Actor) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/notifications", h.List)
	r.Get("/notifications/unread-count", h.UnreadCount)
	r.Post("/notifications/{id}/read", h.MarkRead)
	r.Post("/notifications/read-all", h.MarkAllRead)

	req := httptest.NewRequest(method, url, nil)
	if actor != nil {
		req = req.WithContext(middlewarectx.WithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_List(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		setupMock func(*ServiceMock)
		status    int
		want      string
	}{
		{
			name: "только непрочитанные",
			url:  "/notifications?unread_only=true&limit=10",
			setupMock: func(m *ServiceMock) {
				m.On("List", mock.Anything, admin, true, 10, 0).Return([]*models.Notification{
					{ID: 1, Type: models.NotifyPaymentReceived, Title: "Оплата получена", Priority: models.PriorityNormal},
				}, nil).Once()
			},
			status: http.StatusOK,
			want:   `"type":"payment_received"`,
		},
		{
			name: "пустой список",
			url:  "/notifications",
			setupMock: func(m *ServiceMock) {
				m.On("List", mock.Anything, admin, false, 0, 0).Return(nil, nil).Once()
			},
			status: http.StatusOK,
			want:   `"data":[]`,
		},
		{
			name:   "некорректное смещение",
			url:    "/notifications?offset=x",
			status: http.StatusBadRequest,
			want:   "invalid offset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			if tt.setupMock != nil {
				tt.setupMock(svc)
			}
			rec := do(New(newNoopLogger(), svc), http.MethodGet, tt.url, &admin)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_ReadState(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("UnreadCount", mock.Anything, admin).Return(3, nil).Once()
	svc.On("MarkRead", mock.Anything, admin, int64(7)).Return(apperr.NotFound("notification 7 not found")).Once()
	svc.On("MarkAllRead", mock.Anything, admin).Return(int64(3), nil).Once()
	h := New(newNoopLogger(), svc)

	rec := do(h, http.MethodGet, "/notifications/unread-count", &admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":3`)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/notifications/7/read", &admin).Code)

	rec = do(h, http.MethodPost, "/notifications/read-all", &admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"updated":3`)

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/notifications/unread-count", nil).Code)
	svc.AssertExpectations(t)
}
