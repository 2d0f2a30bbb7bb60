package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-visit-api/internal/dto"
	"github.com/noah-isme/sma-visit-api/internal/models"
	"github.com/noah-isme/sma-visit-api/internal/repository"
	"github.com/noah-isme/sma-visit-api/pkg/config"
	appErrors "github.com/noah-isme/sma-visit-api/pkg/errors"
)

type purposeStore interface {
	FindByID(ctx context.Context, tenantID string, id int64) (*models.Purpose, error)
	FindActive(ctx context.Context, tenantID string, categoryID int, id int64) (*models.Purpose, error)
	ExistsByName(ctx context.Context, tenantID string, categoryID int, name string, excludeID int64) (bool, error)
	Create(ctx context.Context, purpose *models.Purpose) error
	Rename(ctx context.Context, tenantID string, id int64, name, actor string) error
	Deactivate(ctx context.Context, tenantID string, id int64, actor string) error
	List(ctx context.Context, filter models.PurposeFilter) ([]models.Purpose, error)
}

// PurposeService manages the per-tenant purpose catalog and resolves purpose selections.
type PurposeService struct {
	repo      purposeStore
	defaults  config.PurposeConfig
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPurposeService constructs the catalog service.
func NewPurposeService(repo purposeStore, defaults config.PurposeConfig, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *PurposeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurposeService{repo: repo, defaults: defaults, audit: audit, validator: validate, logger: logger}
}

// Resolve turns a purpose selection into the snapshot stored on a visit record.
//
// A nil purposeID falls back to the module default from configuration. The
// custom sentinel -1 requires non-empty freeText and yields a nil id.
func (s *PurposeService) Resolve(ctx context.Context, tenantID string, categoryID int, purposeID *int64, freeText string) (*dto.ResolvedPurpose, error) {
	module, ok := models.ModuleByID(categoryID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown purpose category %d", categoryID))
	}

	var id int64
	switch {
	case purposeID == nil:
		fallback, ok := s.defaults.DefaultFor(string(module))
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("purpose is required for %s", module))
		}
		id = fallback
	case *purposeID == models.CustomPurposeID:
		text := strings.TrimSpace(freeText)
		if text == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "custom purpose text is required")
		}
		return &dto.ResolvedPurpose{Name: text, CategoryID: categoryID}, nil
	case *purposeID > 0:
		id = *purposeID
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid purpose id")
	}

	purpose, err := s.repo.FindActive(ctx, tenantID, categoryID, id)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to load purpose")
	}
	if purpose == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("purpose %d not found", id))
	}
	resolvedID := purpose.ID
	return &dto.ResolvedPurpose{PurposeID: &resolvedID, Name: purpose.Name, CategoryID: purpose.CategoryID}, nil
}

// Add creates a catalog purpose.
func (s *PurposeService) Add(ctx context.Context, req dto.CreatePurposeRequest) (*models.Purpose, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid purpose payload")
	}
	name, err := catalogName(req.Name)
	if err != nil {
		return nil, err
	}
	if _, ok := models.ModuleByID(req.CategoryID); !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown purpose category %d", req.CategoryID))
	}
	exists, err := s.repo.ExistsByName(ctx, req.TenantID, req.CategoryID, name, 0)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to check purpose name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "purpose name already used")
	}

	purpose := &models.Purpose{
		TenantID:   req.TenantID,
		CategoryID: req.CategoryID,
		Name:       name,
		CreatedBy:  req.Actor,
		UpdatedBy:  req.Actor,
	}
	if err := s.repo.Create(ctx, purpose); err != nil {
		if errors.Is(err, repository.ErrDuplicatePurpose) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "purpose name already used")
		}
		return nil, appErrors.Storage(err, "failed to create purpose")
	}

	s.emitAudit(ctx, req.TenantID, req.Actor, models.AuditActionPurposeCreate, purpose.ID, nil, purpose)
	return purpose, nil
}

// Update renames an active catalog purpose.
func (s *PurposeService) Update(ctx context.Context, req dto.UpdatePurposeRequest) (*models.Purpose, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid purpose payload")
	}
	name, err := catalogName(req.Name)
	if err != nil {
		return nil, err
	}
	current, err := s.repo.FindByID(ctx, req.TenantID, req.ID)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to load purpose")
	}
	if current == nil || !current.IsActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "purpose not found")
	}
	exists, err := s.repo.ExistsByName(ctx, req.TenantID, current.CategoryID, name, current.ID)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to check purpose name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "purpose name already used")
	}
	if err := s.repo.Rename(ctx, req.TenantID, current.ID, name, req.Actor); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "purpose not found")
		case errors.Is(err, repository.ErrDuplicatePurpose):
			return nil, appErrors.Clone(appErrors.ErrConflict, "purpose name already used")
		}
		return nil, appErrors.Storage(err, "failed to rename purpose")
	}

	updated := *current
	updated.Name = name
	updated.UpdatedBy = req.Actor
	s.emitAudit(ctx, req.TenantID, req.Actor, models.AuditActionPurposeUpdate, current.ID, current, &updated)
	return &updated, nil
}

// Delete deactivates a catalog purpose. Visits keep their name snapshot.
func (s *PurposeService) Delete(ctx context.Context, tenantID string, id int64, actor string) error {
	current, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return appErrors.Storage(err, "failed to load purpose")
	}
	if current == nil {
		return appErrors.Clone(appErrors.ErrNotFound, "purpose not found")
	}
	if !current.IsActive {
		return appErrors.Clone(appErrors.ErrAlreadyDeleted, "purpose already deleted")
	}
	if err := s.repo.Deactivate(ctx, tenantID, id, actor); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrAlreadyDeleted, "purpose already deleted")
		}
		return appErrors.Storage(err, "failed to delete purpose")
	}
	s.emitAudit(ctx, tenantID, actor, models.AuditActionPurposeDelete, id, current, nil)
	return nil
}

// List returns the catalog of a tenant, optionally for one category.
func (s *PurposeService) List(ctx context.Context, filter models.PurposeFilter) ([]models.Purpose, error) {
	if strings.TrimSpace(filter.TenantID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "tenant is required")
	}
	if filter.CategoryID != 0 {
		if _, ok := models.ModuleByID(filter.CategoryID); !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown purpose category %d", filter.CategoryID))
		}
	}
	purposes, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to list purposes")
	}
	return purposes, nil
}

func (s *PurposeService) emitAudit(ctx context.Context, tenantID, actor, action string, id int64, before, after interface{}) {
	emitAudit(ctx, s.audit, s.logger, "purpose-service", &models.AuditLog{
		TenantID:   tenantID,
		UserID:     optionalString(actor),
		Action:     action,
		Resource:   "purpose",
		ResourceID: optionalString(strconv.FormatInt(id, 10)),
		OldValues:  auditPayload(before),
		NewValues:  auditPayload(after),
	})
}

// catalogName trims name and rejects the label reserved for custom purposes,
// which would otherwise share a statistics row with them.
func catalogName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "purpose name is required")
	}
	if strings.EqualFold(name, models.OtherPurposeLabel) {
		return "", appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("purpose name %q is reserved", models.OtherPurposeLabel))
	}
	return name, nil
}
