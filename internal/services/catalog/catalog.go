// Package catalog управляет процедурами, тарифными планами и настройками клиники.
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// Repository методы хранилища каталога.
type Repository interface {
	CreateService(ctx context.Context, svc models.Service) (*models.Service, error)
	UpdateService(ctx context.Context, svc models.Service) (*models.Service, error)
	GetService(ctx context.Context, id int64) (*models.Service, error)
	ListServices(ctx context.Context, activeOnly bool) ([]*models.Service, error)
	DeactivateService(ctx context.Context, id int64) error

	CreatePlan(ctx context.Context, plan models.Plan) (*models.Plan, error)
	UpdatePlan(ctx context.Context, plan models.Plan) (*models.Plan, error)
	GetPlan(ctx context.Context, id int64) (*models.Plan, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]*models.Plan, error)
	DeactivatePlan(ctx context.Context, id int64) error

	GetSystemConfig(ctx context.Context) (models.SystemConfig, error)
	UpdateSystemConfig(ctx context.Context, cfg models.SystemConfig) error
}

// Service сервис каталога.
type Service struct {
	repo Repository
	log  *slog.Logger
}

// NewService создаёт сервис.
func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// CreateService добавляет процедуру.
func (s *Service) CreateService(ctx context.Context, req models.ServiceRequest) (*models.Service, error) {
	const op = "catalog.CreateService"
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	svc, err := s.repo.CreateService(ctx, models.Service{
		Name:            req.Name,
		Category:        req.Category,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
		Active:          active,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("service created", slog.Int64("service_id", svc.ID))
	return svc, nil
}

// UpdateService изменяет процедуру.
func (s *Service) UpdateService(ctx context.Context, id int64, req models.ServiceRequest) (*models.Service, error) {
	const op = "catalog.UpdateService"
	current, err := s.repo.GetService(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	current.Name = req.Name
	current.Category = req.Category
	current.Description = req.Description
	current.DurationMinutes = req.DurationMinutes
	current.Price = req.Price
	if req.Active != nil {
		current.Active = *req.Active
	}
	updated, err := s.repo.UpdateService(ctx, *current)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return updated, nil
}

// GetService возвращает процедуру.
func (s *Service) GetService(ctx context.Context, id int64) (*models.Service, error) {
	const op = "catalog.GetService"
	svc, err := s.repo.GetService(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return svc, nil
}

// ListServices возвращает процедуры. Клиенты видят только активные.
func (s *Service) ListServices(ctx context.Context, includeInactive bool) ([]*models.Service, error) {
	const op = "catalog.ListServices"
	list, err := s.repo.ListServices(ctx, !includeInactive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

// DeleteService снимает процедуру с продажи. Записи на неё сохраняются.
func (s *Service) DeleteService(ctx context.Context, id int64) error {
	const op = "catalog.DeleteService"
	if err := s.repo.DeactivateService(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Service) checkPlanServices(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := s.repo.GetService(ctx, id); err != nil {
			if apperr.IsNotFound(err) {
				return apperr.Validation("service %d does not exist", id)
			}
			return err
		}
	}
	return nil
}

// CreatePlan добавляет тарифный план.
func (s *Service) CreatePlan(ctx context.Context, req models.PlanRequest) (*models.Plan, error) {
	const op = "catalog.CreatePlan"
	if err := s.checkPlanServices(ctx, req.ServiceIDs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	plan, err := s.repo.CreatePlan(ctx, models.Plan{
		Name:                  req.Name,
		Tier:                  req.Tier,
		Price:                 req.Price,
		MaxTreatmentsPerMonth: req.MaxTreatmentsPerMonth,
		MinCommitmentMonths:   req.MinCommitmentMonths,
		Active:                active,
		ServiceIDs:            req.ServiceIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("plan created", slog.Int64("plan_id", plan.ID))
	return plan, nil
}

// UpdatePlan изменяет план. Цена в шлюзе пересоздаётся при следующем оформлении подписки.
func (s *Service) UpdatePlan(ctx context.Context, id int64, req models.PlanRequest) (*models.Plan, error) {
	const op = "catalog.UpdatePlan"
	if err := s.checkPlanServices(ctx, req.ServiceIDs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	current, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	current.Name = req.Name
	current.Tier = req.Tier
	current.Price = req.Price
	current.MaxTreatmentsPerMonth = req.MaxTreatmentsPerMonth
	current.MinCommitmentMonths = req.MinCommitmentMonths
	current.ServiceIDs = req.ServiceIDs
	if req.Active != nil {
		current.Active = *req.Active
	}
	updated, err := s.repo.UpdatePlan(ctx, *current)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return updated, nil
}

// GetPlan возвращает план.
func (s *Service) GetPlan(ctx context.Context, id int64) (*models.Plan, error) {
	const op = "catalog.GetPlan"
	plan, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plan, nil
}

// ListPlans возвращает планы. Клиенты видят только активные.
func (s *Service) ListPlans(ctx context.Context, includeInactive bool) ([]*models.Plan, error) {
	const op = "catalog.ListPlans"
	list, err := s.repo.ListPlans(ctx, !includeInactive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

// DeletePlan снимает план с продажи. Действующие подписки сохраняются.
func (s *Service) DeletePlan(ctx context.Context, id int64) error {
	const op = "catalog.DeletePlan"
	if err := s.repo.DeactivatePlan(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Config возвращает настройки клиники.
func (s *Service) Config(ctx context.Context) (models.SystemConfig, error) {
	const op = "catalog.Config"
	cfg, err := s.repo.GetSystemConfig(ctx)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", op, err)
	}
	return cfg, nil
}

// UpdateConfig применяет частичное обновление настроек.
func (s *Service) UpdateConfig(ctx context.Context, req models.SystemConfigRequest) (models.SystemConfig, error) {
	const op = "catalog.UpdateConfig"
	cfg, err := s.repo.GetSystemConfig(ctx)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", op, err)
	}
	cfg = req.Apply(cfg)
	if err := s.repo.UpdateSystemConfig(ctx, cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("system config updated", slog.Any("config", cfg))
	return cfg, nil
}
