// Package schedule реализует HTTP-обработчики расписания: свободные слоты,
// недельный шаблон и исключения по датам.
package schedule

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/response"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// Service бизнес-логика расписания.
type Service interface {
	ParseDate(value string) (time.Time, error)
	Availability(ctx context.Context, date time.Time, serviceID *int64) ([]models.Slot, error)
	AdminAvailability(ctx context.Context, date time.Time) ([]models.Slot, error)
	ListTemplates(ctx context.Context) ([]*models.ManagerSchedule, error)
	SaveTemplate(ctx context.Context, weekday int, req models.ScheduleTemplateRequest) (*models.ManagerSchedule, error)
	ListOverrides(ctx context.Context, from, to time.Time) ([]*models.ScheduleOverride, error)
	SaveOverride(ctx context.Context, req models.ScheduleOverrideRequest) (*models.ScheduleOverride, error)
	DeleteOverride(ctx context.Context, date time.Time) error
}

// Handler обработчики /schedule.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service, validate: validator.New()}
}

func (h *Handler) date(w http.ResponseWriter, r *http.Request, log *slog.Logger, raw string) (time.Time, bool) {
	d, err := h.service.ParseDate(raw)
	if err != nil {
		response.FromError(w, r, log, err)
		return time.Time{}, false
	}
	return d, true
}

func slotsOrEmpty(slots []models.Slot) []models.Slot {
	if slots == nil {
		return []models.Slot{}
	}
	return slots
}

// Availability godoc
// @Summary Свободные слоты на дату
// @Tags Schedule
// @Produce json
// @Param date query string true "Дата YYYY-MM-DD"
// @Param service_id query int false "Процедура: слоты, где она не помещается до закрытия, скрываются"
// @Success 200 {object} response.Response{data=[]models.Slot}
// @Failure 400 {object} response.ErrorResponse
// @Router /schedule/availability [get]
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.schedule.availability")
	date, ok := h.date(w, r, log, r.URL.Query().Get("date"))
	if !ok {
		return
	}
	serviceID, err := handlers.QueryInt64(r, "service_id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, "invalid service_id")
		return
	}
	slots, err := h.service.Availability(r.Context(), date, serviceID)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, slotsOrEmpty(slots))
}

// AdminAvailability godoc
// @Summary Слоты для записи администратором
// @Description Окно 06:00-21:00 без учета часов работы, закрытые дни пустые.
// @Tags Schedule
// @Produce json
// @Security BearerAuth
// @Param date query string true "Дата YYYY-MM-DD"
// @Success 200 {object} response.Response{data=[]models.Slot}
// @Failure 400 {object} response.ErrorResponse
// @Router /admin/schedule/availability [get]
func (h *Handler) AdminAvailability(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.schedule.admin_availability")
	date, ok := h.date(w, r, log, r.URL.Query().Get("date"))
	if !ok {
		return
	}
	slots, err := h.service.AdminAvailability(r.Context(), date)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, slotsOrEmpty(slots))
}

// ListTemplates godoc
// @Summary Недельный шаблон
// @Tags Schedule
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]models.ManagerSchedule}
// @Router /admin/schedule/templates [get]
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.schedule.list_templates")
	list, err := h.service.ListTemplates(r.Context())
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	if list == nil {
		list = []*models.ManagerSchedule{}
	}
	response.OK(w, r, list)
}

// SaveTemplate godoc
// @Summary Сохранить шаблон дня недели
// @Tags Schedule
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param weekday path int true "День недели, 0 воскресенье"
// @Param request body models.ScheduleTemplateRequest true "Часы работы"
// @Success 200 {object} response.Response{data=models.ManagerSchedule}
// @Failure 400 {object} response.ErrorResponse
// @Router /admin/schedule/templates/{weekday} [put]
func (h *Handler) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.schedule.save_template")
	weekday, err := strconv.Atoi(chi.URLParam(r, "weekday"))
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, "invalid weekday")
		return
	}
	var req models.ScheduleTemplateRequest
	if !response.Decode(w, r, log, h.validate, &req) {
		return
	}
	tpl, err := h.service.SaveTemplate(r.Context(), weekday, req)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	log.Info("schedule template saved", slog.Int("weekday", weekday))
	response.OK(w, r, tpl)
}

// ListOverrides godoc
// @Summary Исключения за период
// @Tags Schedule
// @Produce json
// @Security BearerAuth
// @Param from query string true "Начало YYYY-MM-DD"
// @Param to query string true "Конец YYYY-MM-DD"
// @Success 200 {object} response.Response{data=[]models.ScheduleOverride}
// @Failure 400 {object} response.ErrorResponse
// @Router /admin/schedule/overrides [get]
func (h *Handler) ListOverrides(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.schedule.list_overrides")
	from, ok := h.date(w, r, log, r.URL.Query().Get("from"))
	if !ok {
		return
	}
	to, ok := h.date(w, r, log, r.URL.Query().Get("to"))
	if !ok {
		return
	}
	list, err := h.service.ListOverrides(r.Context(), from, to)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	if list == nil {
		list = []*models.ScheduleOverride{}
	}
	response.OK(w, r, list)
}

// SaveOverride godoc
// @Summary Сохранить исключение на дату
// @Tags Schedule
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ScheduleOverrideRequest true "Исключение"
// @Success 200 {object} response.Response{data=models.ScheduleOverride}
// @Failure 400 {object} response.ErrorResponse
// @Router /admin/schedule/overrides [put]
func (h *Handler) SaveOverride(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.schedule.save_override")
	var req models.ScheduleOverrideRequest
	if !response.Decode(w, r, log, h.validate, &req) {
		return
	}
	o, err := h.service.SaveOverride(r.Context(), req)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	log.Info("schedule override saved", slog.String("date", req.Date))
	response.OK(w, r, o)
}

// DeleteOverride godoc
// @Summary Удалить исключение
// @Tags Schedule
// @Produce json
// @Security BearerAuth
// @Param date path string true "Дата YYYY-MM-DD"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/schedule/overrides/{date} [delete]
func (h *Handler) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.schedule.delete_override")
	raw := chi.URLParam(r, "date")
	date, ok := h.date(w, r, log, raw)
	if !ok {
		return
	}
	if err := h.service.DeleteOverride(r.Context(), date); err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, map[string]string{"date": raw})
}
