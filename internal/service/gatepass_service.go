package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-visit-api/internal/dto"
	"github.com/noah-isme/sma-visit-api/internal/models"
	appErrors "github.com/noah-isme/sma-visit-api/pkg/errors"
)

type entityCreator interface {
	CreateWithTx(ctx context.Context, tx *sqlx.Tx, entity *models.Entity) error
}

// GatePassConfig holds gate-pass business rules.
type GatePassConfig struct {
	// DailyThrottle rejects a second request from a contact number that still
	// has an unfinished pass created on the same tenant-local day.
	DailyThrottle bool
}

// GatePassService handles gate-pass requests and delegates the rest of the
// lifecycle to the engine over the registered-entity path.
type GatePassService struct {
	engine    *LifecycleService
	db        txProvider
	entities  entityCreator
	passes    gatePassLog
	purposes  purposeResolver
	clock     TenantClock
	cfg       GatePassConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGatePassService constructs the service.
func NewGatePassService(engine *LifecycleService, db txProvider, entities entityCreator, passes gatePassLog, purposes purposeResolver, clock TenantClock, cfg GatePassConfig, logger *zap.Logger) *GatePassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatePassService{
		engine:    engine,
		db:        db,
		entities:  entities,
		passes:    passes,
		purposes:  purposes,
		clock:     clock,
		cfg:       cfg,
		validator: validator.New(),
		logger:    logger,
	}
}

// Request creates a gate-pass entity with a record pending approval.
func (s *GatePassService) Request(ctx context.Context, req dto.GatePassRequest) (*dto.GatePassResult, error) {
	req.ContactNumber = strings.TrimSpace(req.ContactNumber)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid gate pass payload")
	}
	purpose, err := s.purposes.Resolve(ctx, req.TenantID, models.ModuleGatePass.ID(), req.PurposeID, req.PurposeText)
	if err != nil {
		return nil, err
	}

	var (
		entity = &models.Entity{
			TenantID:      req.TenantID,
			Category:      models.CategoryGatePass,
			DisplayName:   req.DisplayName,
			ContactNumber: req.ContactNumber,
		}
		result *dto.GatePassResult
	)
	err = withTx(ctx, s.db, nil, func(tx *sqlx.Tx) error {
		now := s.clock.Now()
		if s.cfg.DailyThrottle {
			if err := s.passes.LockContact(ctx, tx, req.TenantID, req.ContactNumber); err != nil {
				return appErrors.Storage(err, "failed to lock contact number")
			}
			from, to := DayBounds(now, s.clock.Location(req.TenantID))
			open, err := s.passes.CountOpenGatePasses(ctx, tx, req.TenantID, req.ContactNumber, from, to)
			if err != nil {
				return appErrors.Storage(err, "failed to check gate pass throttle")
			}
			if open > 0 {
				return appErrors.Clone(appErrors.ErrDuplicateRequest, "a gate pass for this contact number is still active today")
			}
		}

		entity.CreatedAt = now
		if err := s.entities.CreateWithTx(ctx, tx, entity); err != nil {
			return appErrors.Storage(err, "failed to register gate pass")
		}
		pending := models.ApprovalPending
		record := newVisitRecord(entity, purpose, req.Actor, now)
		record.ApprovalState = &pending
		if err := s.passes.Insert(ctx, tx, record); err != nil {
			return appErrors.Storage(err, "failed to store gate pass request")
		}
		result = &dto.GatePassResult{
			PassID:      entity.ID,
			VisitID:     record.ID,
			State:       models.StatePendingApproval,
			PurposeName: record.PurposeName,
			RequestedAt: now,
		}
		return nil
	})

	var transition *dto.TransitionResult
	if result != nil {
		transition = &dto.TransitionResult{VisitID: result.VisitID, EntityID: result.PassID, Category: models.CategoryGatePass, State: result.State}
	}
	s.engine.afterTransition(ctx, req.TenantID, entity.ID, models.CategoryGatePass, actionRequest, req.Actor, transition, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Approve marks a pending pass ready for entry.
func (s *GatePassService) Approve(ctx context.Context, tenantID, visitID, actor string) (*dto.TransitionResult, error) {
	return s.engine.Approve(ctx, tenantID, visitID, actor)
}

// Reject terminally refuses a pending pass.
func (s *GatePassService) Reject(ctx context.Context, tenantID, visitID, actor string) (*dto.TransitionResult, error) {
	return s.engine.Reject(ctx, tenantID, visitID, actor)
}

// RecordEntry records the holder entering the premises.
func (s *GatePassService) RecordEntry(ctx context.Context, tenantID, passID, actor string) (*dto.TransitionResult, error) {
	return s.engine.Depart(ctx, dto.DepartRequest{TenantID: tenantID, EntityID: passID, Actor: actor})
}

// RecordExit records the holder leaving the premises.
func (s *GatePassService) RecordExit(ctx context.Context, tenantID, passID, actor string) (*dto.TransitionResult, error) {
	return s.engine.Return(ctx, dto.ReturnRequest{TenantID: tenantID, EntityID: passID, Actor: actor})
}

// Status reports the pass state.
func (s *GatePassService) Status(ctx context.Context, tenantID, passID string) (*models.VisitStatus, error) {
	return s.engine.Status(ctx, tenantID, passID)
}
