// Package vouchers реализует HTTP-обработчики ваучеров.
package vouchers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/response"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// Service бизнес-логика ваучеров.
type Service interface {
	Issue(ctx context.Context, req models.IssueVoucherRequest) (*models.Voucher, error)
	Validate(ctx context.Context, userUID string, req models.ValidateVoucherRequest) (*models.VoucherValidation, error)
	ActivateFreeMonth(ctx context.Context, userUID string, voucherID int64) (*models.Subscription, error)
	ListMine(ctx context.Context, userUID string) ([]*models.Voucher, error)
	ListAll(ctx context.Context, limit, offset int) ([]*models.Voucher, error)
	Delete(ctx context.Context, id int64) error
}

// Handler обработчики /vouchers.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service, validate: validator.New()}
}

// Mine godoc
// @Summary Мои ваучеры
// @Tags Vouchers
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]models.Voucher}
// @Router /vouchers [get]
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.vouchers.mine")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	list, err := h.service.ListMine(r.Context(), actor.UID)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	if list == nil {
		list = []*models.Voucher{}
	}
	response.OK(w, r, list)
}

// Validate godoc
// @Summary Проверить ваучер
// @Description Возвращает valid=false с причиной, если ваучер нельзя применить.
// @Tags Vouchers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ValidateVoucherRequest true "Код и процедура"
// @Success 200 {object} response.Response{data=models.VoucherValidation}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /vouchers/validate [post]
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.vouchers.validate")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	var req models.ValidateVoucherRequest
	if !response.Decode(w, r, log, h.validate, &req) {
		return
	}
	res, err := h.service.Validate(r.Context(), actor.UID, req)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, res)
}

// Activate godoc
// @Summary Активировать бесплатный месяц
// @Tags Vouchers
// @Produce json
// @Security BearerAuth
// @Param id path int true "ID ваучера"
// @Success 200 {object} response.Response{data=models.Subscription}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /vouchers/{id}/activate [post]
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.vouchers.activate")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	id, ok := handlers.ID(w, r, log, "id")
	if !ok {
		return
	}
	sub, err := h.service.ActivateFreeMonth(r.Context(), actor.UID, id)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	log.Info("free month activated", slog.Int64("voucher_id", id), slog.Int64("subscription_id", sub.ID))
	response.OK(w, r, sub)
}

// Issue godoc
// @Summary Выдать ваучер
// @Tags Vouchers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.IssueVoucherRequest true "Параметры ваучера"
// @Success 201 {object} response.Response{data=models.Voucher}
// @Failure 400 {object} response.ErrorResponse
// @Router /admin/vouchers [post]
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.vouchers.issue")
	var req models.IssueVoucherRequest
	if !response.Decode(w, r, log, h.validate, &req) {
		return
	}
	v, err := h.service.Issue(r.Context(), req)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	log.Info("voucher issued", slog.Int64("id", v.ID), slog.String("user_uid", v.UserUID))
	response.Created(w, r, v)
}

// List godoc
// @Summary Все ваучеры
// @Tags Vouchers
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Лимит"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response{data=[]models.Voucher}
// @Router /admin/vouchers [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.vouchers.list")
	limit, offset, ok := handlers.Paging(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListAll(r.Context(), limit, offset)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	if list == nil {
		list = []*models.Voucher{}
	}
	response.OK(w, r, list)
}

// Delete godoc
// @Summary Удалить ваучер
// @Tags Vouchers
// @Produce json
// @Security BearerAuth
// @Param id path int true "ID ваучера"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/vouchers/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.vouchers.delete")
	id, ok := handlers.ID(w, r, log, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, map[string]int64{"id": id})
}
