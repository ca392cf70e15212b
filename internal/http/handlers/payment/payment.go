// Package payment реализует HTTP-обработчики оплаты через Stripe.
package payment

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/response"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/sl"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// maxWebhookBody ограничение размера тела вебхука, как в примерах Stripe.
const maxWebhookBody = 65536

// Service бизнес-логика оплаты.
type Service interface {
	CheckoutAppointment(ctx context.Context, actor models.Actor, appointmentID int64) (*models.CheckoutSession, error)
	Portal(ctx context.Context, userUID, returnURL string) (*models.PortalSession, error)
	PaymentMethods(ctx context.Context, userUID string) ([]models.PaymentMethod, error)
	MonthlyRevenue(ctx context.Context, year, month int) (*models.Revenue, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// Handler обработчики /stripe.
type Handler struct {
	log     *slog.Logger
	service Service
	loc     *time.Location
	now     func() time.Time
}

// New создаёт Handler. loc определяет текущий месяц для отчёта о выручке.
func New(log *slog.Logger, service Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{log: log, service: service, loc: loc, now: time.Now}
}

type portalRequest struct {
	ReturnURL string `json:"return_url"`
}

// Checkout godoc
// @Summary Оплатить запись
// @Tags Stripe
// @Produce json
// @Security BearerAuth
// @Param id path int true "ID записи"
// @Success 201 {object} response.Response{data=models.CheckoutSession}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /stripe/appointments/{id}/checkout [post]
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.payment.checkout")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	id, ok := handlers.ID(w, r, log, "id")
	if !ok {
		return
	}
	session, err := h.service.CheckoutAppointment(r.Context(), actor, id)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	log.Info("checkout session created", slog.Int64("appointment_id", id), slog.String("session_id", session.ID))
	response.Created(w, r, session)
}

// Portal godoc
// @Summary Портал управления оплатой
// @Tags Stripe
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body portalRequest false "Адрес возврата"
// @Success 200 {object} response.Response{data=models.PortalSession}
// @Failure 400 {object} response.ErrorResponse
// @Router /stripe/portal [post]
func (h *Handler) Portal(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.payment.portal")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	var req portalRequest
	if r.ContentLength > 0 && !response.Decode(w, r, log, nil, &req) {
		return
	}
	session, err := h.service.Portal(r.Context(), actor.UID, req.ReturnURL)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, session)
}

// PaymentMethods godoc
// @Summary Сохранённые карты
// @Tags Stripe
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]models.PaymentMethod}
// @Router /stripe/payment-methods [get]
func (h *Handler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.payment.payment_methods")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	list, err := h.service.PaymentMethods(r.Context(), actor.UID)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	if list == nil {
		list = []models.PaymentMethod{}
	}
	response.OK(w, r, list)
}

// Revenue godoc
// @Summary Выручка за месяц
// @Tags Stripe
// @Produce json
// @Security BearerAuth
// @Param year query int false "Год, по умолчанию текущий"
// @Param month query int false "Месяц, по умолчанию текущий"
// @Success 200 {object} response.Response{data=models.Revenue}
// @Failure 400 {object} response.ErrorResponse
// @Router /admin/stripe/revenue [get]
func (h *Handler) Revenue(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.payment.revenue")
	now := h.now().In(h.loc)
	year, err := handlers.QueryInt(r, "year", now.Year())
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, "invalid year")
		return
	}
	month, err := handlers.QueryInt(r, "month", int(now.Month()))
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, "invalid month")
		return
	}
	rev, err := h.service.MonthlyRevenue(r.Context(), year, month)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, rev)
}

// Webhook godoc
// @Summary Вебхук Stripe
// @Description Подпись проверяется по заголовку Stripe-Signature. Ошибка обработки даёт 500, и Stripe повторит доставку.
// @Tags Stripe
// @Accept json
// @Produce json
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /stripe/webhook [post]
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.payment.webhook")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		response.Fail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()

	if err := h.service.HandleWebhook(r.Context(), body, r.Header.Get("Stripe-Signature")); err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, map[string]bool{"received": true})
}
