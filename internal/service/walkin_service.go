package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/sma-visit-api/internal/dto"
	"github.com/noah-isme/sma-visit-api/internal/models"
	appErrors "github.com/noah-isme/sma-visit-api/pkg/errors"
)

// WalkInService tracks ad-hoc visitors whose identity lives on the visit row.
type WalkInService struct {
	engine    *LifecycleService
	validator *validator.Validate
}

// NewWalkInService wraps an engine over the walk-in path.
func NewWalkInService(engine *LifecycleService) *WalkInService {
	return &WalkInService{engine: engine, validator: validator.New()}
}

// CheckIn creates a visitor key and opens its first visit.
func (s *WalkInService) CheckIn(ctx context.Context, req dto.WalkInRequest) (*dto.TransitionResult, error) {
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.ContactNumber = strings.TrimSpace(req.ContactNumber)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid walk-in payload")
	}
	category := req.Category
	if category == "" {
		category = models.CategoryUnregisteredVisitor
	}
	if !category.Valid() || category == models.CategoryGatePass {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported walk-in category")
	}
	subject := models.Entity{
		ID:            uuid.NewString(),
		TenantID:      req.TenantID,
		Category:      category,
		DisplayName:   req.DisplayName,
		ContactNumber: req.ContactNumber,
		IsActive:      true,
	}
	return s.engine.Admit(ctx, subject, req.PurposeSelection, req.Actor)
}

// ReEnter opens another visit for a known visitor.
func (s *WalkInService) ReEnter(ctx context.Context, req dto.ReEnterRequest) (*dto.TransitionResult, error) {
	return s.engine.Depart(ctx, dto.DepartRequest{
		TenantID:         req.TenantID,
		EntityID:         req.VisitorID,
		Actor:            req.Actor,
		PurposeSelection: req.PurposeSelection,
	})
}

// CheckOut closes the visitor's open visit.
func (s *WalkInService) CheckOut(ctx context.Context, tenantID, visitorID, actor string) (*dto.TransitionResult, error) {
	return s.engine.Return(ctx, dto.ReturnRequest{TenantID: tenantID, EntityID: visitorID, Actor: actor})
}

// Status reports whether the visitor is inside.
func (s *WalkInService) Status(ctx context.Context, tenantID, visitorID string) (*models.VisitStatus, error) {
	return s.engine.Status(ctx, tenantID, visitorID)
}
