// Package user управляет профилем клиента и анкетой анамнеза.
package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// Repository методы хранилища пользователей.
type Repository interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	UpdateUser(ctx context.Context, user models.User) error
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	GetAnamnesis(ctx context.Context, userUID string) (*models.AnamnesisForm, error)
	UpsertAnamnesis(ctx context.Context, f models.AnamnesisForm) (*models.AnamnesisForm, error)
}

// Service сервис профилей.
type Service struct {
	repo Repository
}

// NewService создаёт сервис.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get возвращает профиль пользователя.
func (s *Service) Get(ctx context.Context, userUID string) (*models.User, error) {
	const op = "user.Get"
	u, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// Update применяет частичное обновление профиля.
func (s *Service) Update(ctx context.Context, userUID string, req models.UpdateProfileRequest) (*models.User, error) {
	const op = "user.Update"
	u, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if req.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.FullName != nil {
		u.FullName = *req.FullName
	}
	if req.Phone != nil {
		u.Phone = *req.Phone
	}
	if err := s.repo.UpdateUser(ctx, *u); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// List возвращает пользователей для администратора.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	const op = "user.List"
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	users, err := s.repo.ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

// GetAnamnesis возвращает анкету пользователя.
func (s *Service) GetAnamnesis(ctx context.Context, userUID string) (*models.AnamnesisForm, error) {
	const op = "user.GetAnamnesis"
	f, err := s.repo.GetAnamnesis(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if f == nil {
		return nil, apperr.NotFound("anamnesis form is not filled")
	}
	return f, nil
}

// SaveAnamnesis сохраняет анкету. Без согласия на обработку данных анкета не принимается.
func (s *Service) SaveAnamnesis(ctx context.Context, userUID string, req models.AnamnesisRequest) (*models.AnamnesisForm, error) {
	const op = "user.SaveAnamnesis"
	if !req.Consent {
		return nil, apperr.Validation("consent is required")
	}
	f, err := s.repo.UpsertAnamnesis(ctx, models.AnamnesisForm{
		UserUID:     userUID,
		Allergies:   req.Allergies,
		Medications: req.Medications,
		SkinType:    req.SkinType,
		Conditions:  req.Conditions,
		Notes:       req.Notes,
		Consent:     req.Consent,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return f, nil
}
