// Package notifications реализует HTTP-обработчики уведомлений в приложении.
package notifications

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/response"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// Service бизнес-логика уведомлений. Администратор видит уведомления без получателя.
type Service interface {
	List(ctx context.Context, actor models.Actor, unreadOnly bool, limit, offset int) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, actor models.Actor) (int, error)
	MarkRead(ctx context.Context, actor models.Actor, id int64) error
	MarkAllRead(ctx context.Context, actor models.Actor) (int64, error)
}

// Handler обработчики /notifications.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// List godoc
// @Summary Уведомления
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param unread_only query bool false "Только непрочитанные"
// @Param limit query int false "Лимит"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response{data=[]models.Notification}
// @Router /notifications [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.notifications.list")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	limit, offset, ok := handlers.Paging(w, r)
	if !ok {
		return
	}
	list, err := h.service.List(r.Context(), actor, handlers.QueryBool(r, "unread_only"), limit, offset)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	response.OK(w, r, list)
}

// UnreadCount godoc
// @Summary Число непрочитанных
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=map[string]int}
// @Router /notifications/unread-count [get]
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.notifications.unread_count")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	n, err := h.service.UnreadCount(r.Context(), actor)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, map[string]int{"count": n})
}

// MarkRead godoc
// @Summary Отметить прочитанным
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param id path int true "ID уведомления"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /notifications/{id}/read [post]
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.notifications.mark_read")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	id, ok := handlers.ID(w, r, log, "id")
	if !ok {
		return
	}
	if err := h.service.MarkRead(r.Context(), actor, id); err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, map[string]int64{"id": id})
}

// MarkAllRead godoc
// @Summary Отметить все прочитанными
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=map[string]int64}
// @Router /notifications/read-all [post]
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.notifications.mark_all_read")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	n, err := h.service.MarkAllRead(r.Context(), actor)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, map[string]int64{"updated": n})
}
