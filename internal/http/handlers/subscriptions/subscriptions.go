// Package subscriptions реализует HTTP-обработчики абонементов.
package subscriptions

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/response"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// Service бизнес-логика абонементов.
type Service interface {
	GetMine(ctx context.Context, userUID string) (*models.Subscription, error)
	Subscribe(ctx context.Context, userUID string, req models.SubscribeRequest) (*models.SubscribeResult, error)
	Cancel(ctx context.Context, userUID string) (*models.Subscription, error)
	Pause(ctx context.Context, userUID string) (*models.Subscription, error)
	Resume(ctx context.Context, userUID string) (*models.Subscription, error)
	Usage(ctx context.Context, userUID string, month, year int) (*models.UsageReport, error)
}

// Handler обработчики /subscriptions.
type Handler struct {
	log      *slog.Logger
	service  Service
	loc      *time.Location
	validate *validator.Validate
	now      func() time.Time
}

// New создаёт Handler. loc определяет текущий месяц для отчёта об использовании.
func New(log *slog.Logger, service Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{log: log, service: service, loc: loc, validate: validator.New(), now: time.Now}
}

// Me godoc
// @Summary Текущий абонемент
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=models.Subscription}
// @Failure 404 {object} response.ErrorResponse
// @Router /subscriptions/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.subscriptions.me")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	sub, err := h.service.GetMine(r.Context(), actor.UID)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, sub)
}

// Subscribe godoc
// @Summary Оформить абонемент
// @Description Возвращает ссылку на оплату или сразу активный абонемент, если ваучер покрывает стоимость.
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.SubscribeRequest true "План и ваучер"
// @Success 201 {object} response.Response{data=models.SubscribeResult}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /subscriptions [post]
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.subscriptions.subscribe")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	var req models.SubscribeRequest
	if !response.Decode(w, r, log, h.validate, &req) {
		return
	}
	res, err := h.service.Subscribe(r.Context(), actor.UID, req)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	log.Info("subscription requested", slog.Int64("plan_id", req.PlanID))
	response.Created(w, r, res)
}

// Cancel godoc
// @Summary Отменить абонемент
// @Description До конца минимального срока абонемент действует до его окончания.
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=models.Subscription}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /subscriptions/me/cancel [post]
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.subscriptions.cancel")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	sub, err := h.service.Cancel(r.Context(), actor.UID)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, sub)
}

// Usage godoc
// @Summary Использование абонемента за месяц
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Param month query int false "Месяц, по умолчанию текущий"
// @Param year query int false "Год, по умолчанию текущий"
// @Success 200 {object} response.Response{data=models.UsageReport}
// @Failure 400 {object} response.ErrorResponse
// @Router /subscriptions/me/usage [get]
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.subscriptions.usage")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	now := h.now().In(h.loc)
	month, err := handlers.QueryInt(r, "month", int(now.Month()))
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, "invalid month")
		return
	}
	year, err := handlers.QueryInt(r, "year", now.Year())
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, "invalid year")
		return
	}
	report, err := h.service.Usage(r.Context(), actor.UID, month, year)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, report)
}

// Pause godoc
// @Summary Приостановить абонемент клиента
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Param user_uid path string true "UID клиента"
// @Success 200 {object} response.Response{data=models.Subscription}
// @Failure 400 {object} response.ErrorResponse
// @Router /admin/subscriptions/{user_uid}/pause [post]
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.subscriptions.pause")
	uid := chi.URLParam(r, "user_uid")
	sub, err := h.service.Pause(r.Context(), uid)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	log.Info("subscription paused", slog.String("user_uid", uid))
	response.OK(w, r, sub)
}

// Resume godoc
// @Summary Возобновить абонемент клиента
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Param user_uid path string true "UID клиента"
// @Success 200 {object} response.Response{data=models.Subscription}
// @Failure 400 {object} response.ErrorResponse
// @Router /admin/subscriptions/{user_uid}/resume [post]
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.subscriptions.resume")
	uid := chi.URLParam(r, "user_uid")
	sub, err := h.service.Resume(r.Context(), uid)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	log.Info("subscription resumed", slog.String("user_uid", uid))
	response.OK(w, r, sub)
}
