package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/beauty-clinic/internal/migrations"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции.
func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("clinic"),
		postgres.WithUsername("clinic"),
		postgres.WithPassword("clinic"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, filepath.Join(root, "migrations")))
	require.NoError(t, CheckDatabaseReady(ctx, storage))
	return storage
}

// testFactory создаёт тестовые данные через методы хранилища.
type testFactory struct {
	t       *testing.T
	storage *Storage
}

func newTestFactory(t *testing.T, storage *Storage) *testFactory {
	return &testFactory{t: t, storage: storage}
}

func (f *testFactory) user(username string, role models.Role) string {
	uid, err := f.storage.CreateUser(context.Background(), models.User{
		UID:          uuid.NewString(),
		Email:        username + "@clinic.test",
		Username:     username,
		PasswordHash: "hash",
		Role:         role,
	})
	require.NoError(f.t, err)
	return uid
}

func (f *testFactory) service(name string, minutes int, price int64) *models.Service {
	svc, err := f.storage.CreateService(context.Background(), models.Service{
		Name: name, Category: "face", DurationMinutes: minutes, Price: price, Active: true,
	})
	require.NoError(f.t, err)
	return svc
}

func (f *testFactory) appointment(userUID string, serviceID int64, start time.Time, origin models.Origin, status models.AppointmentStatus) *models.Appointment {
	a, err := f.storage.CreateAppointment(context.Background(), models.Appointment{
		UserUID:       userUID,
		ServiceID:     serviceID,
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		Status:        status,
		Origin:        origin,
		PaymentStatus: models.PaymentNotRequired,
	})
	require.NoError(f.t, err)
	return a
}
