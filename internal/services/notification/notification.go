// Package notification сохраняет уведомления в приложении и публикует их в брокер для отправки писем.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/sl"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// Repository методы хранилища, нужные сервису уведомлений.
type Repository interface {
	CreateNotification(ctx context.Context, n models.Notification) (*models.Notification, error)
	ListNotifications(ctx context.Context, userUID string, admin, unreadOnly bool, limit, offset int) ([]*models.Notification, error)
	CountUnreadNotifications(ctx context.Context, userUID string, admin bool) (int, error)
	MarkNotificationRead(ctx context.Context, id int64, userUID string, admin bool) error
	MarkAllNotificationsRead(ctx context.Context, userUID string, admin bool) (int64, error)
	GetUser(ctx context.Context, userUID string) (*models.User, error)
}

// Publisher публикует сообщения в exchange уведомлений.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// Service сервис уведомлений.
type Service struct {
	repo      Repository
	publisher Publisher
	log       *slog.Logger
}

// NewService создаёт сервис. publisher может быть nil, тогда письма не отправляются.
func NewService(repo Repository, publisher Publisher, log *slog.Logger) *Service {
	return &Service{repo: repo, publisher: publisher, log: log}
}

// Create сохраняет уведомление и публикует его в брокер. Ошибка публикации только логируется.
func (s *Service) Create(ctx context.Context, n models.Notification) (*models.Notification, error) {
	const op = "notification.Create"
	if n.Priority == "" {
		n.Priority = models.PriorityNormal
	}
	saved, err := s.repo.CreateNotification(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.publish(ctx, saved)
	return saved, nil
}

// Notify создаёт уведомление клиенту, ошибки только логируются.
func (s *Service) Notify(ctx context.Context, userUID string, typ models.NotificationType, priority models.Priority, appointmentID *int64, title, message string) {
	uid := userUID
	s.notify(ctx, models.Notification{
		UserUID: &uid, Type: typ, Priority: priority, AppointmentID: appointmentID, Title: title, Message: message,
	})
}

// NotifyAdmins создаёт уведомление для всех администраторов, ошибки только логируются.
func (s *Service) NotifyAdmins(ctx context.Context, typ models.NotificationType, priority models.Priority, appointmentID *int64, title, message string) {
	s.notify(ctx, models.Notification{
		Type: typ, Priority: priority, AppointmentID: appointmentID, Title: title, Message: message,
	})
}

func (s *Service) notify(ctx context.Context, n models.Notification) {
	if _, err := s.Create(ctx, n); err != nil {
		s.log.Warn("failed to create notification", slog.String("type", string(n.Type)), sl.Err(err))
	}
}

func (s *Service) publish(ctx context.Context, n *models.Notification) {
	if s.publisher == nil {
		return
	}
	msg := models.NotificationMessage{
		NotificationID: n.ID,
		Type:           n.Type,
		Title:          n.Title,
		Message:        n.Message,
		Priority:       n.Priority,
	}
	routingKey := rabbitmq.RoutingAdmin
	if n.UserUID != nil {
		routingKey = rabbitmq.RoutingClient
		user, err := s.repo.GetUser(ctx, *n.UserUID)
		if err != nil {
			s.log.Warn("cannot resolve notification recipient", slog.Int64("notification_id", n.ID), sl.Err(err))
			return
		}
		msg.Email = user.Email
		msg.Username = user.Username
	}
	if err := s.publisher.Publish(routingKey, msg); err != nil {
		s.log.Warn("failed to publish notification", slog.Int64("notification_id", n.ID), sl.Err(err))
	}
}

// List возвращает уведомления актора. Администратор видит также общие уведомления.
func (s *Service) List(ctx context.Context, actor models.Actor, unreadOnly bool, limit, offset int) ([]*models.Notification, error) {
	const op = "notification.List"
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	list, err := s.repo.ListNotifications(ctx, actor.UID, actor.IsAdmin(), unreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

// UnreadCount число непрочитанных уведомлений актора.
func (s *Service) UnreadCount(ctx context.Context, actor models.Actor) (int, error) {
	const op = "notification.UnreadCount"
	n, err := s.repo.CountUnreadNotifications(ctx, actor.UID, actor.IsAdmin())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// MarkRead отмечает уведомление прочитанным.
func (s *Service) MarkRead(ctx context.Context, actor models.Actor, id int64) error {
	const op = "notification.MarkRead"
	if id <= 0 {
		return apperr.Validation("invalid notification id")
	}
	if err := s.repo.MarkNotificationRead(ctx, id, actor.UID, actor.IsAdmin()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MarkAllRead отмечает прочитанными все уведомления актора и возвращает их число.
func (s *Service) MarkAllRead(ctx context.Context, actor models.Actor) (int64, error) {
	const op = "notification.MarkAllRead"
	n, err := s.repo.MarkAllNotificationsRead(ctx, actor.UID, actor.IsAdmin())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
