package sender

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/smtp"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ListAdmins(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Connect() (smtp.Client, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(smtp.Client), args.Error(1)
}

func (m *MockTransport) From() string {
	return m.Called().String(0)
}

type MockSMTPClient struct {
	mock.Mock
}

func (m *MockSMTPClient) Mail(from string) error {
	return m.Called(from).Error(0)
}

func (m *MockSMTPClient) Rcpt(to string) error {
	return m.Called(to).Error(0)
}

func (m *MockSMTPClient) Data() (io.WriteCloser, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.WriteCloser), args.Error(1)
}

func (m *MockSMTPClient) Close() error {
	return m.Called().Error(0)
}

func (m *MockSMTPClient) Quit() error {
	return m.Called().Error(0)
}

// bufWriter собирает тело письма.
type bufWriter struct {
	strings.Builder
	closed bool
}

func (w *bufWriter) Close() error {
	w.closed = true
	return nil
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func expectDelivery(tr *MockTransport, recipients ...string) (*MockSMTPClient, *bufWriter) {
	client := new(MockSMTPClient)
	w := &bufWriter{}
	tr.On("From").Return("clinic@example.com")
	tr.On("Connect").Return(client, nil).Once()
	client.On("Mail", "clinic@example.com").Return(nil).Once()
	for _, r := range recipients {
		client.On("Rcpt", r).Return(nil).Once()
	}
	client.On("Data").Return(w, nil).Once()
	client.On("Quit").Return(nil).Once()
	client.On("Close").Return(nil).Once()
	return client, w
}

func TestService_SendClientNotification(t *testing.T) {
	t.Run("успешная отправка", func(t *testing.T) {
		tr := new(MockTransport)
		client, w := expectDelivery(tr, "anna@example.com")

		svc := NewService(new(MockRepository), tr, newNoopLogger())
		err := svc.SendClientNotification([]byte(`{"notification_id":1,"type":"refund_issued","email":"anna@example.com","username":"anna","title":"Возврат","message":"Деньги вернутся","priority":"high"}`))

		assert.NoError(t, err)
		assert.True(t, w.closed)
		assert.Contains(t, w.String(), "Subject: Возврат")
		assert.Contains(t, w.String(), "X-Priority: 1")
		assert.Contains(t, w.String(), "Здравствуйте, anna!")
		client.AssertExpectations(t)
		tr.AssertExpectations(t)
	})

	t.Run("битый json", func(t *testing.T) {
		tr := new(MockTransport)
		err := NewService(new(MockRepository), tr, newNoopLogger()).SendClientNotification([]byte(`invalid json`))
		assert.ErrorContains(t, err, "error unmarshalling message")
		tr.AssertNotCalled(t, "Connect")
	})

	t.Run("без адреса письмо не отправляется", func(t *testing.T) {
		tr := new(MockTransport)
		err := NewService(new(MockRepository), tr, newNoopLogger()).SendClientNotification([]byte(`{"notification_id":2}`))
		assert.NoError(t, err)
		tr.AssertNotCalled(t, "Connect")
	})

	t.Run("ошибка соединения", func(t *testing.T) {
		tr := new(MockTransport)
		tr.On("From").Return("clinic@example.com")
		tr.On("Connect").Return(nil, errors.New("connection error")).Once()
		err := NewService(new(MockRepository), tr, newNoopLogger()).SendClientNotification([]byte(`{"email":"a@b.c"}`))
		assert.ErrorContains(t, err, "connection error")
	})

	t.Run("ошибка RCPT", func(t *testing.T) {
		tr := new(MockTransport)
		client := new(MockSMTPClient)
		tr.On("From").Return("clinic@example.com")
		tr.On("Connect").Return(client, nil).Once()
		client.On("Mail", "clinic@example.com").Return(nil).Once()
		client.On("Rcpt", "a@b.c").Return(errors.New("mailbox unavailable")).Once()
		client.On("Close").Return(nil).Once()

		err := NewService(new(MockRepository), tr, newNoopLogger()).SendClientNotification([]byte(`{"email":"a@b.c"}`))
		assert.ErrorContains(t, err, "mailbox unavailable")
		client.AssertExpectations(t)
	})
}

func TestService_SendAdminNotification(t *testing.T) {
	t.Run("всем администраторам", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("ListAdmins", mock.Anything).Return([]*models.User{
			{Email: "admin1@example.com"}, {Email: ""}, {Email: "admin2@example.com"},
		}, nil).Once()
		tr := new(MockTransport)
		client, w := expectDelivery(tr, "admin1@example.com", "admin2@example.com")

		err := NewService(repo, tr, newNoopLogger()).SendAdminNotification([]byte(`{"title":"Новая запись","message":"m"}`))
		assert.NoError(t, err)
		assert.Contains(t, w.String(), "To: admin1@example.com, admin2@example.com")
		client.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	t.Run("нет администраторов", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("ListAdmins", mock.Anything).Return([]*models.User{}, nil).Once()
		tr := new(MockTransport)
		err := NewService(repo, tr, newNoopLogger()).SendAdminNotification([]byte(`{"title":"t"}`))
		assert.NoError(t, err)
		tr.AssertNotCalled(t, "Connect")
	})

	t.Run("ошибка базы", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("ListAdmins", mock.Anything).Return(nil, errors.New("db down")).Once()
		err := NewService(repo, new(MockTransport), newNoopLogger()).SendAdminNotification([]byte(`{"title":"t"}`))
		assert.ErrorContains(t, err, "db down")
	})
}
