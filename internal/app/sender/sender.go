// Package sender собирает notification-sender: потребителя очередей уведомлений,
// который отправляет письма клиентам и администраторам.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/beauty-clinic/internal/config"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/sl"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/smtp"
	senderservice "github.com/magabrotheeeer/beauty-clinic/internal/services/sender"
	"github.com/magabrotheeeer/beauty-clinic/internal/storage/repository"
)

// App приложение отправки писем.
type App struct {
	db            *repository.Storage
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.Service
	logger        *slog.Logger
}

// New подключается к базе и брокеру.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.Retries, cfg.RetryDelay)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.NotificationQueues())
	if err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)
	return &App{
		db:            db,
		conn:          conn,
		ch:            ch,
		senderService: senderservice.NewService(db, transport, logger),
		logger:        logger,
	}, nil
}

// Run слушает очереди до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, "notifications.client", a.logger, a.senderService.SendClientNotification)
	if err != nil {
		a.logger.Error("failed to start notifications.client consumer", sl.Err(err))
		a.close()
		return err
	}

	err = rabbitmq.ConsumerMessage(ctx, a.ch, "notifications.admin", a.logger, a.senderService.SendAdminNotification)
	if err != nil {
		a.logger.Error("failed to start notifications.admin consumer", sl.Err(err))
		a.close()
		return err
	}

	<-ctx.Done()
	a.logger.Info("Sender service shutting down gracefully")
	a.close()
	return nil
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
}
