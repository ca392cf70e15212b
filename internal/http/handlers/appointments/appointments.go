// Package appointments реализует HTTP-обработчики записей на процедуры.
package appointments

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/response"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// Service бизнес-логика записей.
type Service interface {
	Create(ctx context.Context, actor models.Actor, req models.CreateAppointmentRequest) (*models.Appointment, error)
	Get(ctx context.Context, actor models.Actor, id int64) (*models.Appointment, error)
	List(ctx context.Context, actor models.Actor, f models.AppointmentFilter) ([]*models.Appointment, error)
	Confirm(ctx context.Context, id int64) (*models.Appointment, error)
	Complete(ctx context.Context, id int64, paid bool) (*models.Appointment, error)
	MarkNoShow(ctx context.Context, id int64) (*models.Appointment, error)
	Cancel(ctx context.Context, actor models.Actor, id int64, reason string) (*models.CancelOutcome, error)
	Reschedule(ctx context.Context, actor models.Actor, id int64, req models.RescheduleAppointmentRequest) (*models.Appointment, error)
}

// Handler обработчики /appointments.
type Handler struct {
	log      *slog.Logger
	service  Service
	loc      *time.Location
	validate *validator.Validate
}

// New создаёт Handler. loc задаёт пояс для дат в фильтрах.
func New(log *slog.Logger, service Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{log: log, service: service, loc: loc, validate: validator.New()}
}

// Create godoc
// @Summary Записаться на процедуру
// @Description Создаёт запись. Источник оплаты: subscription, single, voucher или admin (только администратор).
// @Tags Appointments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateAppointmentRequest true "Данные записи"
// @Success 201 {object} response.Response{data=models.Appointment}
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /appointments [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.appointments.create")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	var req models.CreateAppointmentRequest
	if !response.Decode(w, r, log, h.validate, &req) {
		return
	}
	a, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.Created(w, r, a)
}

// List godoc
// @Summary Список записей
// @Description Клиент видит свои записи, администратор все, с фильтрами.
// @Tags Appointments
// @Produce json
// @Security BearerAuth
// @Param status query string false "Статус"
// @Param origin query string false "Источник оплаты"
// @Param from query string false "Начало периода (YYYY-MM-DD или RFC 3339)"
// @Param to query string false "Конец периода"
// @Param user_uid query string false "Клиент (только администратор)"
// @Param limit query int false "Лимит"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response{data=[]models.Appointment}
// @Failure 400 {object} response.ErrorResponse
// @Router /appointments [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.appointments.list")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	f, ok := h.filter(w, r)
	if !ok {
		return
	}
	list, err := h.service.List(r.Context(), actor, f)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	if list == nil {
		list = []*models.Appointment{}
	}
	response.OK(w, r, list)
}

func (h *Handler) filter(w http.ResponseWriter, r *http.Request) (models.AppointmentFilter, bool) {
	var f models.AppointmentFilter
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		st := models.AppointmentStatus(v)
		if !st.Valid() {
			response.Fail(w, r, http.StatusBadRequest, "invalid status")
			return f, false
		}
		f.Status = &st
	}
	if v := q.Get("origin"); v != "" {
		o := models.Origin(v)
		if !o.Valid() {
			response.Fail(w, r, http.StatusBadRequest, "invalid origin")
			return f, false
		}
		f.Origin = &o
	}
	if v := q.Get("user_uid"); v != "" {
		f.UserUID = &v
	}
	from, err := handlers.QueryTime(r, "from", h.loc)
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, "invalid from")
		return f, false
	}
	to, err := handlers.QueryTime(r, "to", h.loc)
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, "invalid to")
		return f, false
	}
	f.From, f.To = from, to
	limit, offset, ok := handlers.Paging(w, r)
	if !ok {
		return f, false
	}
	f.Limit, f.Offset = limit, offset
	return f, true
}

// Get godoc
// @Summary Получить запись
// @Tags Appointments
// @Produce json
// @Security BearerAuth
// @Param id path int true "ID записи"
// @Success 200 {object} response.Response{data=models.Appointment}
// @Failure 404 {object} response.ErrorResponse
// @Router /appointments/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.appointments.get")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	id, ok := handlers.ID(w, r, log, "id")
	if !ok {
		return
	}
	a, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, a)
}

// Confirm godoc
// @Summary Подтвердить запись
// @Tags Appointments
// @Produce json
// @Security BearerAuth
// @Param id path int true "ID записи"
// @Success 200 {object} response.Response{data=models.Appointment}
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Router /appointments/{id}/confirm [post]
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.appointments.confirm")
	id, ok := handlers.ID(w, r, log, "id")
	if !ok {
		return
	}
	a, err := h.service.Confirm(r.Context(), id)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, a)
}

// Complete godoc
// @Summary Завершить запись
// @Description paid=true отмечает оплату на месте. Ваучер записи помечается использованным.
// @Tags Appointments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "ID записи"
// @Param request body models.CompleteAppointmentRequest false "Оплата"
// @Success 200 {object} response.Response{data=models.Appointment}
// @Failure 400 {object} response.ErrorResponse
// @Router /appointments/{id}/complete [post]
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.appointments.complete")
	id, ok := handlers.ID(w, r, log, "id")
	if !ok {
		return
	}
	var req models.CompleteAppointmentRequest
	if r.ContentLength != 0 && !response.Decode(w, r, log, nil, &req) {
		return
	}
	a, err := h.service.Complete(r.Context(), id, req.Paid)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, a)
}

// NoShow godoc
// @Summary Отметить неявку
// @Tags Appointments
// @Produce json
// @Security BearerAuth
// @Param id path int true "ID записи"
// @Success 200 {object} response.Response{data=models.Appointment}
// @Failure 400 {object} response.ErrorResponse
// @Router /appointments/{id}/no-show [post]
func (h *Handler) NoShow(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.appointments.no_show")
	id, ok := handlers.ID(w, r, log, "id")
	if !ok {
		return
	}
	a, err := h.service.MarkNoShow(r.Context(), id)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, a)
}

// Cancel godoc
// @Summary Отменить запись
// @Description Возвращает итог отмены: возврат оплаты, компенсационный ваучер, возврат квоты.
// @Tags Appointments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "ID записи"
// @Param request body models.CancelAppointmentRequest false "Причина"
// @Success 200 {object} response.Response{data=models.CancelOutcome}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /appointments/{id}/cancel [post]
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.appointments.cancel")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	id, ok := handlers.ID(w, r, log, "id")
	if !ok {
		return
	}
	var req models.CancelAppointmentRequest
	if r.ContentLength != 0 && !response.Decode(w, r, log, h.validate, &req) {
		return
	}
	out, err := h.service.Cancel(r.Context(), actor, id, req.Reason)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, out)
}

// Reschedule godoc
// @Summary Перенести запись
// @Tags Appointments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "ID записи"
// @Param request body models.RescheduleAppointmentRequest true "Новое время"
// @Success 200 {object} response.Response{data=models.Appointment}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /appointments/{id}/reschedule [post]
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.appointments.reschedule")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	id, ok := handlers.ID(w, r, log, "id")
	if !ok {
		return
	}
	var req models.RescheduleAppointmentRequest
	if !response.Decode(w, r, log, h.validate, &req) {
		return
	}
	a, err := h.service.Reschedule(r.Context(), actor, id, req)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, a)
}
