// Package sender отправляет письма по уведомлениям, полученным из брокера.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/sl"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/smtp"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// Repository нужен для поиска адресов администраторов.
type Repository interface {
	ListAdmins(ctx context.Context) ([]*models.User, error)
}

// Service отправитель писем.
type Service struct {
	repo      Repository
	transport smtp.TransportInterface
	log       *slog.Logger
}

// NewService создает новый экземпляр Service.
func NewService(repo Repository, transport smtp.TransportInterface, log *slog.Logger) *Service {
	return &Service{repo: repo, transport: transport, log: log}
}

// SendClientNotification отправляет письмо клиенту из сообщения очереди notifications.client.
func (s *Service) SendClientNotification(body []byte) error {
	const op = "sender.SendClientNotification"
	msg, err := decode(body)
	if err != nil {
		s.log.Error("failed to unmarshal message body", sl.Op(op), sl.Err(err))
		return err
	}
	if msg.Email == "" {
		s.log.Warn("client notification without email, skipping", slog.Int64("notification_id", msg.NotificationID))
		return nil
	}
	return s.sendEmail([]string{msg.Email}, msg.Title, clientBody(msg), msg.Priority)
}

// SendAdminNotification отправляет письмо всем администраторам.
func (s *Service) SendAdminNotification(body []byte) error {
	const op = "sender.SendAdminNotification"
	msg, err := decode(body)
	if err != nil {
		s.log.Error("failed to unmarshal message body", sl.Op(op), sl.Err(err))
		return err
	}
	admins, err := s.repo.ListAdmins(context.Background())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	to := make([]string, 0, len(admins))
	for _, a := range admins {
		if a.Email != "" {
			to = append(to, a.Email)
		}
	}
	if len(to) == 0 {
		s.log.Warn("no admin recipients, skipping", slog.Int64("notification_id", msg.NotificationID))
		return nil
	}
	return s.sendEmail(to, "[Клиника] "+msg.Title, msg.Message, msg.Priority)
}

func decode(body []byte) (models.NotificationMessage, error) {
	var msg models.NotificationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("error unmarshalling message: %w", err)
	}
	return msg, nil
}

func clientBody(msg models.NotificationMessage) string {
	name := msg.Username
	if name == "" {
		name = "клиент"
	}
	return fmt.Sprintf("Здравствуйте, %s!\n\n%s\n\nС уважением,\nкоманда клиники", name, msg.Message)
}

func (s *Service) sendEmail(to []string, subject, bodyText string, priority models.Priority) error {
	from := s.transport.From()
	headers := []string{
		"From: " + from,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
	}
	if priority == models.PriorityHigh {
		headers = append(headers, "X-Priority: 1")
	}
	msg := strings.Join(append(headers, "", bodyText), "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(from); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return err
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err := wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}
	if err := client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent", slog.Any("to", to))
	return nil
}
