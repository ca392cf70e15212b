package vouchers

import (
	"bytes"
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

func (m *ServiceMock) Issue(ctx context.Context, req models.IssueVoucherRequest) (*models.Voucher, error) {
	args := m.Called(ctx, req)
	return ptr[models.Voucher](args.Get(0)), args.Error(1)
}

func (m *ServiceMock) Validate(ctx context.Context, userUID string, req models.ValidateVoucherRequest) (*models.VoucherValidation, error) {
	args := m.Called(ctx, userUID, req)
	return ptr[models.VoucherValidation](args.Get(0)), args.Error(1)
}

func (m *ServiceMock) ActivateFreeMonth(ctx context.Context, userUID string, voucherID int64) (*models.Subscription, error) {
	args := m.Called(ctx, userUID, voucherID)
	return ptr[models.Subscription](args.Get(0)), args.Error(1)
}

func (m *ServiceMock) ListMine(ctx context.Context, userUID string) ([]*models.Voucher, error) {
	args := m.Called(ctx, userUID)
	list, _ := args.Get(0).([]*models.Voucher)
	return list, args.Error(1)
}

func (m *ServiceMock) ListAll(ctx context.Context, limit, offset int) ([]*models.Voucher, error) {
	args := m.Called(ctx, limit, offset)
	list, _ := args.Get(0).([]*models.Voucher)
	return list, args.Error(1)
}

func (m *ServiceMock) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
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

func do(h *Handler, method, url, body string, actor *models.Actor) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/vouchers", h.Mine)
	r.Post("/vouchers/validate", h.Validate)
	r.Post("/vouchers/{id}/activate", h.Activate)
	r.Post("/admin/vouchers", h.Issue)
	r.Get("/admin/vouchers", h.List)
	r.Delete("/admin/vouchers/{id}", h.Delete)

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if actor != nil {
		req = req.WithContext(middlewarectx.WithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Validate(t *testing.T) {
	serviceID := int64(3)
	final := int64(2500)

	tests := []struct {
		name      string
		body      string
		setupMock func(*ServiceMock)
		status    int
		want      string
	}{
		{
			name: "скидочный ваучер применим",
			body: `{"code":"BC-7K2M-Q9XD","service_id":3}`,
			setupMock: func(m *ServiceMock) {
				m.On("Validate", mock.Anything, client.UID, models.ValidateVoucherRequest{Code: "BC-7K2M-Q9XD", ServiceID: &serviceID}).
					Return(&models.VoucherValidation{Valid: true, FinalPrice: &final}, nil).Once()
			},
			status: http.StatusOK,
			want:   `"final_price":2500`,
		},
		{
			name: "ваучер просрочен",
			body: `{"code":"BC-AAAA-BBBB"}`,
			setupMock: func(m *ServiceMock) {
				m.On("Validate", mock.Anything, client.UID, mock.Anything).
					Return(&models.VoucherValidation{Valid: false, Reason: "voucher expired"}, nil).Once()
			},
			status: http.StatusOK,
			want:   `"valid":false`,
		},
		{
			name:   "пустой код",
			body:   `{"code":""}`,
			status: http.StatusBadRequest,
			want:   "field Code is a required field",
		},
		{
			name: "ваучер не найден",
			body: `{"code":"BC-NONE-0000"}`,
			setupMock: func(m *ServiceMock) {
				m.On("Validate", mock.Anything, client.UID, mock.Anything).
					Return(nil, apperr.NotFound("voucher not found")).Once()
			},
			status: http.StatusNotFound,
			want:   "voucher not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			if tt.setupMock != nil {
				tt.setupMock(svc)
			}
			rec := do(New(newNoopLogger(), svc), http.MethodPost, "/vouchers/validate", tt.body, &client)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_Activate(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("ActivateFreeMonth", mock.Anything, client.UID, int64(9)).
		Return(&models.Subscription{ID: 4, UserUID: client.UID, Status: models.SubscriptionActive}, nil).Once()
	h := New(newNoopLogger(), svc)

	rec := do(h, http.MethodPost, "/vouchers/9/activate", "", &client)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"active"`)

	rec = do(h, http.MethodPost, "/vouchers/abc/activate", "", &client)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertExpectations(t)
}

func TestHandler_Issue(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("Issue", mock.Anything, mock.MatchedBy(func(req models.IssueVoucherRequest) bool {
		return req.Type == models.VoucherFreeTreatment && req.AnyService
	})).Return(&models.Voucher{ID: 11, Code: "BC-7K2M-Q9XD", UserUID: client.UID}, nil).Once()
	h := New(newNoopLogger(), svc)

	rec := do(h, http.MethodPost, "/admin/vouchers",
		`{"user_uid":"7a1c5a52-8c7e-4a35-9d3f-1f0b2f4f7d11","type":"free_treatment","any_service":true}`, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"BC-7K2M-Q9XD"`)

	rec = do(h, http.MethodPost, "/admin/vouchers", `{"user_uid":"7a1c5a52-8c7e-4a35-9d3f-1f0b2f4f7d11","type":"gift"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "must be one of")
	svc.AssertExpectations(t)
}

func TestHandler_ListAndDelete(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("ListMine", mock.Anything, client.UID).Return(nil, nil).Once()
	svc.On("Delete", mock.Anything, int64(5)).Return(nil).Once()
	svc.On("Delete", mock.Anything, int64(6)).Return(apperr.NotFound("voucher 6 not found")).Once()
	h := New(newNoopLogger(), svc)

	rec := do(h, http.MethodGet, "/vouchers", "", &client)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)

	assert.Equal(t, http.StatusOK, do(h, http.MethodDelete, "/admin/vouchers/5", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodDelete, "/admin/vouchers/6", "", nil).Code)
	svc.AssertExpectations(t)
}
