package schedule

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

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

type ServiceMock struct{ mock.Mock }

func (m *ServiceMock) ParseDate(value string) (time.Time, error) {
	d, err := time.ParseInLocation(models.DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid date %q: expected YYYY-MM-DD", value)
	}
	return d, nil
}

func (m *ServiceMock) Availability(ctx context.Context, date time.Time, serviceID *int64) ([]models.Slot, error) {
	args := m.Called(ctx, date, serviceID)
	slots, _ := args.Get(0).([]models.Slot)
	return slots, args.Error(1)
}

func (m *ServiceMock) AdminAvailability(ctx context.Context, date time.Time) ([]models.Slot, error) {
	args := m.Called(ctx, date)
	slots, _ := args.Get(0).([]models.Slot)
	return slots, args.Error(1)
}

func (m *ServiceMock) ListTemplates(ctx context.Context) ([]*models.ManagerSchedule, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]*models.ManagerSchedule)
	return list, args.Error(1)
}

func (m *ServiceMock) SaveTemplate(ctx context.Context, weekday int, req models.ScheduleTemplateRequest) (*models.ManagerSchedule, error) {
	args := m.Called(ctx, weekday, req)
	tpl, _ := args.Get(0).(*models.ManagerSchedule)
	return tpl, args.Error(1)
}

func (m *ServiceMock) ListOverrides(ctx context.Context, from, to time.Time) ([]*models.ScheduleOverride, error) {
	args := m.Called(ctx, from, to)
	list, _ := args.Get(0).([]*models.ScheduleOverride)
	return list, args.Error(1)
}

func (m *ServiceMock) SaveOverride(ctx context.Context, req models.ScheduleOverrideRequest) (*models.ScheduleOverride, error) {
	args := m.Called(ctx, req)
	o, _ := args.Get(0).(*models.ScheduleOverride)
	return o, args.Error(1)
}

func (m *ServiceMock) DeleteOverride(ctx context.Context, date time.Time) error {
	return m.Called(ctx, date).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/schedule/availability", h.Availability)
	r.Put("/admin/schedule/templates/{weekday}", h.SaveTemplate)
	r.Delete("/admin/schedule/overrides/{date}", h.DeleteOverride)
	return r
}

func TestHandler_Availability(t *testing.T) {
	day := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	serviceID := int64(2)

	tests := []struct {
		name   string
		url    string
		mock   func(*ServiceMock)
		status int
		want   string
	}{
		{
			name: "слоты на дату",
			url:  "/schedule/availability?date=2025-03-10",
			mock: func(m *ServiceMock) {
				m.On("Availability", mock.Anything, day, (*int64)(nil)).Return([]models.Slot{
					{Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour), Booked: true},
				}, nil)
			},
			status: http.StatusOK,
			want:   `"booked":true`,
		},
		{
			name: "с процедурой",
			url:  "/schedule/availability?date=2025-03-10&service_id=2",
			mock: func(m *ServiceMock) {
				m.On("Availability", mock.Anything, day, &serviceID).Return(nil, nil)
			},
			status: http.StatusOK,
			want:   `"data":[]`,
		},
		{
			name:   "дата в неверном формате",
			url:    "/schedule/availability?date=10.03.2025",
			status: http.StatusBadRequest,
			want:   "expected YYYY-MM-DD",
		},
		{
			name:   "некорректная процедура",
			url:    "/schedule/availability?date=2025-03-10&service_id=x",
			status: http.StatusBadRequest,
			want:   "invalid service_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			if tt.mock != nil {
				tt.mock(svc)
			}
			rec := httptest.NewRecorder()
			router(New(newNoopLogger(), svc)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_SaveTemplate(t *testing.T) {
	svc := new(ServiceMock)
	req := models.ScheduleTemplateRequest{IsOpen: true, OpenTime: "09:00", CloseTime: "18:00"}
	svc.On("SaveTemplate", mock.Anything, 1, req).
		Return(&models.ManagerSchedule{Weekday: 1, IsOpen: true, OpenTime: "09:00", CloseTime: "18:00"}, nil).Once()
	h := router(New(newNoopLogger(), svc))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/schedule/templates/1",
		bytes.NewBufferString(`{"is_open":true,"open_time":"09:00","close_time":"18:00"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"open_time":"09:00"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/schedule/templates/monday",
		bytes.NewBufferString(`{"is_open":false}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertExpectations(t)
}

func TestHandler_DeleteOverride(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("DeleteOverride", mock.Anything, time.Date(2025, time.March, 8, 0, 0, 0, 0, time.UTC)).
		Return(apperr.NotFound("override for 2025-03-08 not found")).Once()

	rec := httptest.NewRecorder()
	router(New(newNoopLogger(), svc)).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/schedule/overrides/2025-03-08", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	svc.AssertExpectations(t)
}
