// Package catalog реализует HTTP-обработчики процедур, тарифных планов и настроек клиники.
package catalog

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/middlewarectx"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/response"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// Service бизнес-логика каталога.
type Service interface {
	CreateService(ctx context.Context, req models.ServiceRequest) (*models.Service, error)
	UpdateService(ctx context.Context, id int64, req models.ServiceRequest) (*models.Service, error)
	GetService(ctx context.Context, id int64) (*models.Service, error)
	ListServices(ctx context.Context, includeInactive bool) ([]*models.Service, error)
	DeleteService(ctx context.Context, id int64) error
	CreatePlan(ctx context.Context, req models.PlanRequest) (*models.Plan, error)
	UpdatePlan(ctx context.Context, id int64, req models.PlanRequest) (*models.Plan, error)
	GetPlan(ctx context.Context, id int64) (*models.Plan, error)
	ListPlans(ctx context.Context, includeInactive bool) ([]*models.Plan, error)
	DeletePlan(ctx context.Context, id int64) error
	Config(ctx context.Context) (models.SystemConfig, error)
	UpdateConfig(ctx context.Context, req models.SystemConfigRequest) (models.SystemConfig, error)
}

// Handler обработчики /services, /plans и /config.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service, validate: validator.New()}
}

// includeInactive неактивные позиции видит только администратор. Публичные
// маршруты идут без JWT, поэтому там актора нет.
func includeInactive(r *http.Request) bool {
	actor, ok := middlewarectx.ActorFrom(r.Context())
	return ok && actor.IsAdmin()
}

// ListServices godoc
// @Summary Список процедур
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Response{data=[]models.Service}
// @Router /services [get]
// @Router /admin/services [get]
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.catalog.list_services")
	list, err := h.service.ListServices(r.Context(), includeInactive(r))
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	if list == nil {
		list = []*models.Service{}
	}
	response.OK(w, r, list)
}

// GetService godoc
// @Summary Получить процедуру
// @Tags Catalog
// @Produce json
// @Param id path int true "ID процедуры"
// @Success 200 {object} response.Response{data=models.Service}
// @Failure 404 {object} response.ErrorResponse
// @Router /services/{id} [get]
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.catalog.get_service")
	id, ok := handlers.ID(w, r, log, "id")
	if !ok {
		return
	}
	svc, err := h.service.GetService(r.Context(), id)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, svc)
}

// CreateService godoc
// @Summary Создать процедуру
// @Tags Catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ServiceRequest true "Процедура"
// @Success 201 {object} response.Response{data=models.Service}
// @Failure 400 {object} response.ErrorResponse
// @Router /services [post]
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.catalog.create_service")
	var req models.ServiceRequest
	if !response.Decode(w, r, log, h.validate, &req) {
		return
	}
	svc, err := h.service.CreateService(r.Context(), req)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	log.Info("service created", slog.Int64("id", svc.ID))
	response.Created(w, r, svc)
}

// UpdateService godoc
// @Summary Изменить процедуру
// @Tags Catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "ID процедуры"
// @Param request body models.ServiceRequest true "Процедура"
// @Success 200 {object} response.Response{data=models.Service}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /services/{id} [put]
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.catalog.update_service")
	id, ok := handlers.ID(w, r, log, "id")
	if !ok {
		return
	}
	var req models.ServiceRequest
	if !response.Decode(w, r, log, h.validate, &req) {
		return
	}
	svc, err := h.service.UpdateService(r.Context(), id, req)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, svc)
}

// DeleteService godoc
// @Summary Снять процедуру с продажи
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Param id path int true "ID процедуры"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /services/{id} [delete]
func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.catalog.delete_service")
	id, ok := handlers.ID(w, r, log, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteService(r.Context(), id); err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, map[string]any{"id": id, "active": false})
}

// ListPlans godoc
// @Summary Список тарифных планов
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Response{data=[]models.Plan}
// @Router /plans [get]
// @Router /admin/plans [get]
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.catalog.list_plans")
	list, err := h.service.ListPlans(r.Context(), includeInactive(r))
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	if list == nil {
		list = []*models.Plan{}
	}
	response.OK(w, r, list)
}

// GetPlan godoc
// @Summary Получить тарифный план
// @Tags Catalog
// @Produce json
// @Param id path int true "ID плана"
// @Success 200 {object} response.Response{data=models.Plan}
// @Failure 404 {object} response.ErrorResponse
// @Router /plans/{id} [get]
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.catalog.get_plan")
	id, ok := handlers.ID(w, r, log, "id")
	if !ok {
		return
	}
	plan, err := h.service.GetPlan(r.Context(), id)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, plan)
}

// CreatePlan godoc
// @Summary Создать тарифный план
// @Tags Catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.PlanRequest true "План"
// @Success 201 {object} response.Response{data=models.Plan}
// @Failure 400 {object} response.ErrorResponse
// @Router /plans [post]
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.catalog.create_plan")
	var req models.PlanRequest
	if !response.Decode(w, r, log, h.validate, &req) {
		return
	}
	plan, err := h.service.CreatePlan(r.Context(), req)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	log.Info("plan created", slog.Int64("id", plan.ID))
	response.Created(w, r, plan)
}

// UpdatePlan godoc
// @Summary Изменить тарифный план
// @Tags Catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "ID плана"
// @Param request body models.PlanRequest true "План"
// @Success 200 {object} response.Response{data=models.Plan}
// @Failure 400 {object} response.ErrorResponse
// @Router /plans/{id} [put]
func (h *Handler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.catalog.update_plan")
	id, ok := handlers.ID(w, r, log, "id")
	if !ok {
		return
	}
	var req models.PlanRequest
	if !response.Decode(w, r, log, h.validate, &req) {
		return
	}
	plan, err := h.service.UpdatePlan(r.Context(), id, req)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, plan)
}

// DeletePlan godoc
// @Summary Архивировать тарифный план
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Param id path int true "ID плана"
// @Success 200 {object} response.Response
// @Router /plans/{id} [delete]
func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.catalog.delete_plan")
	id, ok := handlers.ID(w, r, log, "id")
	if !ok {
		return
	}
	if err := h.service.DeletePlan(r.Context(), id); err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, map[string]any{"id": id, "active": false})
}

// GetConfig godoc
// @Summary Настройки клиники
// @Tags Config
// @Produce json
// @Success 200 {object} response.Response{data=models.SystemConfig}
// @Router /config [get]
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.catalog.get_config")
	cfg, err := h.service.Config(r.Context())
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, cfg)
}

// UpdateConfig godoc
// @Summary Изменить настройки клиники
// @Description Меняются только переданные поля.
// @Tags Config
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.SystemConfigRequest true "Настройки"
// @Success 200 {object} response.Response{data=models.SystemConfig}
// @Failure 400 {object} response.ErrorResponse
// @Router /config [patch]
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.catalog.update_config")
	var req models.SystemConfigRequest
	if !response.Decode(w, r, log, h.validate, &req) {
		return
	}
	cfg, err := h.service.UpdateConfig(r.Context(), req)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	log.Info("system config updated")
	response.OK(w, r, cfg)
}
