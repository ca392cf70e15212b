package clinic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/beauty-clinic/internal/cache"
	"github.com/magabrotheeeer/beauty-clinic/internal/config"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/appointments"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/catalog"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/health"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/notifications"
	paymenthandler "github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/payment"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/schedule"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/subscriptions"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/users"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/vouchers"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/middlewarectx"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/jwt"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/sl"
	"github.com/magabrotheeeer/beauty-clinic/internal/migrations"
	"github.com/magabrotheeeer/beauty-clinic/internal/paymentprovider"
	appointmentservice "github.com/magabrotheeeer/beauty-clinic/internal/services/appointment"
	authservice "github.com/magabrotheeeer/beauty-clinic/internal/services/auth"
	catalogservice "github.com/magabrotheeeer/beauty-clinic/internal/services/catalog"
	notificationservice "github.com/magabrotheeeer/beauty-clinic/internal/services/notification"
	paymentservice "github.com/magabrotheeeer/beauty-clinic/internal/services/payment"
	scheduleservice "github.com/magabrotheeeer/beauty-clinic/internal/services/schedule"
	"github.com/magabrotheeeer/beauty-clinic/internal/services/scheduler"
	subscriptionservice "github.com/magabrotheeeer/beauty-clinic/internal/services/subscription"
	userservice "github.com/magabrotheeeer/beauty-clinic/internal/services/user"
	voucherservice "github.com/magabrotheeeer/beauty-clinic/internal/services/voucher"
	"github.com/magabrotheeeer/beauty-clinic/internal/storage/repository"
)

const (
	migrationsPath  = "./migrations"
	shutdownTimeout = 15 * time.Second
)

// App HTTP API клиники и периодические задачи.
type App struct {
	server    *http.Server
	logger    *slog.Logger
	db        *repository.Storage
	cache     *cache.Cache
	conn      *amqp.Connection
	publisher *rabbitmq.Publisher
	scheduler *scheduler.Scheduler
}

// New подключает зависимости и собирает приложение. Redis и RabbitMQ необязательны:
// без Redis работают без кеша и блокировок, без RabbitMQ письма не отправляются.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	trustedProxies, err := middlewarectx.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, migrationsPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	app := &App{logger: logger, db: db}

	app.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		logger.Warn("redis unavailable, running without cache and job locks", sl.Err(err))
		app.cache = nil
	}

	var publisher notificationservice.Publisher
	app.conn, app.publisher, err = connectBroker(cfg.RabbitMQ)
	if err != nil {
		logger.Warn("rabbitmq unavailable, emails are disabled", sl.Err(err))
	} else {
		publisher = app.publisher
	}

	// Интерфейсы получают nil без типа, если Redis не подключён.
	var (
		apptCache    appointmentservice.Cache
		paymentCache paymentservice.Cache
		locker       scheduler.Locker
	)
	if app.cache != nil {
		apptCache, paymentCache, locker = app.cache, app.cache, app.cache
	}

	gateway := paymentprovider.NewStripe(cfg.Stripe, cfg.FrontendURL, logger)
	if !gateway.Enabled() {
		logger.Warn("stripe secret key is not set, payments are disabled")
	}

	notifier := notificationservice.NewService(db, publisher, logger)
	authService := authservice.NewService(db, jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL), logger)
	userService := userservice.NewService(db)
	catalogService := catalogservice.NewService(db, logger)
	scheduleService := scheduleservice.NewService(db, loc)
	voucherService := voucherservice.NewService(db, notifier, logger)
	subscriptionService := subscriptionservice.NewService(db, gateway, notifier, loc, logger)
	appointmentService := appointmentservice.NewService(db, gateway, voucherService, notifier, apptCache, loc, logger)
	paymentService := paymentservice.NewService(db, gateway, paymentCache, notifier, appointmentService, cfg.FrontendURL, loc, logger)

	app.scheduler = scheduler.New(db, locker, logger)
	for _, job := range buildJobs(cfg.Scheduler, loc, jobRunners{
		ExpirePendingPayments: appointmentService.ExpirePendingPayments,
		AutoComplete:          appointmentService.AutoCompletePast,
		NotifyExpiring:        voucherService.NotifyExpiring,
		ExpireFreeMonths:      subscriptionService.ExpireFreeMonths,
	}) {
		app.scheduler.Add(job)
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, authService, middlewarectx.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.RateIdleTTL, cfg.RateMaxClients), trustedProxies, Handlers{
		Login:         login.New(logger, authService),
		Register:      register.New(logger, authService),
		Health:        health.New(logger, app.healthChecks()),
		Users:         users.New(logger, userService),
		Catalog:       catalog.New(logger, catalogService),
		Schedule:      schedule.New(logger, scheduleService),
		Appointments:  appointments.New(logger, appointmentService, loc),
		Vouchers:      vouchers.New(logger, voucherService),
		Subscriptions: subscriptions.New(logger, subscriptionService, loc),
		Notifications: notifications.New(logger, notifier),
		Payment:       paymenthandler.New(logger, paymentService, loc),
	})

	app.server = &http.Server{
		Addr:         cfg.ListenAddress(),
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

func connectBroker(cfg config.RabbitMQ) (*amqp.Connection, *rabbitmq.Publisher, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.Retries, cfg.RetryDelay)
	if err != nil {
		return nil, nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.NotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}
	return conn, rabbitmq.NewPublisher(ch), nil
}

func (a *App) healthChecks() map[string]health.Check {
	checks := map[string]health.Check{
		"postgres": a.db.DB.PingContext,
	}
	if a.cache != nil {
		checks["redis"] = a.cache.Ping
	}
	if a.conn != nil {
		conn := a.conn
		checks["rabbitmq"] = func(context.Context) error {
			if conn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
	}
	return checks
}

// Run запускает планировщик и HTTP-сервер и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	jobsCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()

	var wg sync.WaitGroup
	if len(a.scheduler.Jobs()) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.scheduler.Run(jobsCtx)
		}()
	} else {
		a.logger.Info("periodic jobs are disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		runErr = a.server.Shutdown(timeoutCtx)
	}

	stopJobs()
	wg.Wait()
	a.close()
	return runErr
}

func (a *App) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
}
