package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-visit-api/internal/dto"
	"github.com/noah-isme/sma-visit-api/internal/models"
	appErrors "github.com/noah-isme/sma-visit-api/pkg/errors"
)

type entityStore interface {
	FindByID(ctx context.Context, tenantID, id string) (*models.Entity, error)
	Create(ctx context.Context, entity *models.Entity) error
	Deactivate(ctx context.Context, tenantID, id string) error
}

// RegistryService manages pre-registered entities.
type RegistryService struct {
	repo      entityStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRegistryService constructs the service.
func NewRegistryService(repo entityStore, validate *validator.Validate, logger *zap.Logger) *RegistryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistryService{repo: repo, validator: validate, logger: logger}
}

// Register adds a student, bus, staff member or registered visitor.
func (s *RegistryService) Register(ctx context.Context, req dto.RegisterEntityRequest) (*models.Entity, error) {
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid entity payload")
	}
	switch req.Category {
	case models.CategoryStudent, models.CategoryBus, models.CategoryStaff, models.CategoryRegisteredVisitor:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "category cannot be pre-registered")
	}
	if req.ID != "" {
		existing, err := s.repo.FindByID(ctx, req.TenantID, req.ID)
		if err != nil {
			return nil, appErrors.Storage(err, "failed to check entity")
		}
		if existing != nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "entity already registered")
		}
	}
	entity := &models.Entity{
		ID:            req.ID,
		TenantID:      req.TenantID,
		Category:      req.Category,
		DisplayName:   req.DisplayName,
		ContactNumber: strings.TrimSpace(req.ContactNumber),
	}
	if err := s.repo.Create(ctx, entity); err != nil {
		return nil, appErrors.Storage(err, "failed to register entity")
	}
	s.logger.Info("entity registered", zap.String("tenant_id", entity.TenantID), zap.String("entity_id", entity.ID), zap.String("category", string(entity.Category)))
	return entity, nil
}

// Get returns an entity of the tenant.
func (s *RegistryService) Get(ctx context.Context, tenantID, id string) (*models.Entity, error) {
	entity, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to load entity")
	}
	if entity == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "entity not found")
	}
	return entity, nil
}

// Deactivate retires an entity while keeping its visit history.
func (s *RegistryService) Deactivate(ctx context.Context, tenantID, id string) error {
	if err := s.repo.Deactivate(ctx, tenantID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "entity not found")
		}
		return appErrors.Storage(err, "failed to deactivate entity")
	}
	return nil
}
