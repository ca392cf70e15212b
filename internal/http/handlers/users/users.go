// Package users реализует HTTP-обработчики профиля и медицинской анкеты.
package users

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/response"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// Service бизнес-логика пользователей.
type Service interface {
	Get(ctx context.Context, userUID string) (*models.User, error)
	Update(ctx context.Context, userUID string, req models.UpdateProfileRequest) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	GetAnamnesis(ctx context.Context, userUID string) (*models.AnamnesisForm, error)
	SaveAnamnesis(ctx context.Context, userUID string, req models.AnamnesisRequest) (*models.AnamnesisForm, error)
}

// Handler обработчики /users.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service, validate: validator.New()}
}

// Me godoc
// @Summary Профиль текущего пользователя
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=models.User}
// @Failure 401 {object} response.ErrorResponse
// @Router /users/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.users.me")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	u, err := h.service.Get(r.Context(), actor.UID)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, u)
}

// UpdateMe godoc
// @Summary Изменить профиль
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.UpdateProfileRequest true "Изменяемые поля"
// @Success 200 {object} response.Response{data=models.User}
// @Failure 400 {object} response.ErrorResponse
// @Router /users/me [patch]
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.users.update_me")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	var req models.UpdateProfileRequest
	if !response.Decode(w, r, log, h.validate, &req) {
		return
	}
	u, err := h.service.Update(r.Context(), actor.UID, req)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, u)
}

// GetAnamnesis godoc
// @Summary Медицинская анкета
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=models.AnamnesisForm}
// @Failure 404 {object} response.ErrorResponse
// @Router /users/me/anamnesis [get]
func (h *Handler) GetAnamnesis(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.users.get_anamnesis")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	form, err := h.service.GetAnamnesis(r.Context(), actor.UID)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, form)
}

// SaveAnamnesis godoc
// @Summary Заполнить медицинскую анкету
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.AnamnesisRequest true "Анкета"
// @Success 200 {object} response.Response{data=models.AnamnesisForm}
// @Failure 400 {object} response.ErrorResponse
// @Router /users/me/anamnesis [put]
func (h *Handler) SaveAnamnesis(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.users.save_anamnesis")
	actor, ok := handlers.Actor(w, r, log)
	if !ok {
		return
	}
	var req models.AnamnesisRequest
	if !response.Decode(w, r, log, h.validate, &req) {
		return
	}
	form, err := h.service.SaveAnamnesis(r.Context(), actor.UID, req)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, form)
}

// List godoc
// @Summary Список клиентов
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Лимит"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response{data=[]models.User}
// @Failure 403 {object} response.ErrorResponse
// @Router /admin/users [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.users.list")
	limit, offset, ok := handlers.Paging(w, r)
	if !ok {
		return
	}
	list, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	if list == nil {
		list = []*models.User{}
	}
	response.OK(w, r, list)
}

// Get godoc
// @Summary Профиль клиента
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param uid path string true "UID клиента"
// @Success 200 {object} response.Response{data=models.User}
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/users/{uid} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.users.get")
	u, err := h.service.Get(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		response.FromError(w, r, log, err)
		return
	}
	response.OK(w, r, u)
}
