package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-visit-api/internal/dto"
	"github.com/noah-isme/sma-visit-api/internal/models"
	"github.com/noah-isme/sma-visit-api/internal/repository"
	appErrors "github.com/noah-isme/sma-visit-api/pkg/errors"
	"github.com/noah-isme/sma-visit-api/pkg/logger"
)

const (
	actionDepart  = "depart"
	actionReturn  = "return"
	actionApprove = "approve"
	actionReject  = "reject"
	actionRequest = "request"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// visitLog is one storage path of visit records. LockSubject must serialize
// concurrent transitions on the same subject until the transaction ends.
type visitLog interface {
	Source() models.Source
	LockSubject(ctx context.Context, tx *sqlx.Tx, tenantID, subjectID string) (*models.Entity, error)
	FindSubject(ctx context.Context, tenantID, subjectID string) (*models.Entity, error)
	LatestForUpdate(ctx context.Context, tx *sqlx.Tx, tenantID, subjectID string) (*models.VisitRecord, error)
	Latest(ctx context.Context, tenantID, subjectID string) (*models.VisitRecord, error)
	Insert(ctx context.Context, tx *sqlx.Tx, record *models.VisitRecord) error
	Close(ctx context.Context, tx *sqlx.Tx, params repository.VisitTransition) error
}

// gatePassLog is a visitLog that also stores the approval workflow.
type gatePassLog interface {
	visitLog
	OpenApproved(ctx context.Context, tx *sqlx.Tx, params repository.VisitTransition) error
	LockVisit(ctx context.Context, tx *sqlx.Tx, tenantID, visitID string) (*models.VisitRecord, error)
	SetApproval(ctx context.Context, tx *sqlx.Tx, params repository.ApprovalParams) error
	LockContact(ctx context.Context, tx *sqlx.Tx, tenantID, contact string) error
	CountOpenGatePasses(ctx context.Context, tx *sqlx.Tx, tenantID, contact string, from, to time.Time) (int, error)
}

type purposeResolver interface {
	Resolve(ctx context.Context, tenantID string, categoryID int, purposeID *int64, freeText string) (*dto.ResolvedPurpose, error)
}

type reportInvalidator interface {
	Invalidate(ctx context.Context, pattern string)
}

// LifecycleOption configures a LifecycleService.
type LifecycleOption func(*LifecycleService)

// WithLifecycleAudit enables the audit trail.
func WithLifecycleAudit(audit auditLogger) LifecycleOption {
	return func(s *LifecycleService) {
		s.audit = audit
	}
}

// WithLifecycleCache invalidates cached reports of a tenant after each transition.
func WithLifecycleCache(cache reportInvalidator) LifecycleOption {
	return func(s *LifecycleService) {
		s.cache = cache
	}
}

// WithLifecycleMetrics records transition counters.
func WithLifecycleMetrics(metrics *MetricsService) LifecycleOption {
	return func(s *LifecycleService) {
		s.metrics = metrics
	}
}

// WithLifecycleValidator overrides the request validator.
func WithLifecycleValidator(validate *validator.Validate) LifecycleOption {
	return func(s *LifecycleService) {
		if validate != nil {
			s.validator = validate
		}
	}
}

// LifecycleService runs the departure/return state machine over one storage path.
// Every transition is a single transaction that locks the subject first.
type LifecycleService struct {
	db        txProvider
	visits    visitLog
	purposes  purposeResolver
	clock     TenantClock
	audit     auditLogger
	cache     reportInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLifecycleService constructs the engine over visits.
func NewLifecycleService(db txProvider, visits visitLog, purposes purposeResolver, clock TenantClock, logger *zap.Logger, opts ...LifecycleOption) *LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &LifecycleService{
		db:        db,
		visits:    visits,
		purposes:  purposes,
		clock:     clock,
		validator: validator.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Source reports the storage path the engine writes to.
func (s *LifecycleService) Source() models.Source {
	return s.visits.Source()
}

// Depart opens a visit. For gate passes it records entry of an approved pass.
func (s *LifecycleService) Depart(ctx context.Context, req dto.DepartRequest) (*dto.TransitionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid departure payload")
	}

	var (
		category models.Category
		result   *dto.TransitionResult
	)
	err := withTx(ctx, s.db, nil, func(tx *sqlx.Tx) error {
		entity, err := s.visits.LockSubject(ctx, tx, req.TenantID, req.EntityID)
		if err != nil {
			return appErrors.Storage(err, "failed to lock entity")
		}
		if entity == nil || !entity.IsActive {
			return appErrors.Clone(appErrors.ErrNotFound, "entity not found")
		}
		category = entity.Category

		latest, err := s.visits.LatestForUpdate(ctx, tx, req.TenantID, req.EntityID)
		if err != nil {
			return appErrors.Storage(err, "failed to load latest visit")
		}
		variant := entity.Category.Variant()
		state := deriveState(variant, latest)
		if err := guardDepart(variant, state); err != nil {
			return err
		}

		now := s.clock.Now()
		var record *models.VisitRecord
		if variant == models.VariantGatePass {
			record, err = s.enterGatePass(ctx, tx, latest, state, now, req.Actor)
		} else {
			record, err = s.open(ctx, tx, entity, req.PurposeSelection, now, req.Actor)
		}
		if err != nil {
			return err
		}
		result = s.transitionResult(record, deriveState(variant, record), now)
		return nil
	})
	s.afterTransition(ctx, req.TenantID, req.EntityID, category, actionDepart, req.Actor, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Admit registers a new ad-hoc subject and opens its first visit in one transaction.
func (s *LifecycleService) Admit(ctx context.Context, subject models.Entity, selection dto.PurposeSelection, actor string) (*dto.TransitionResult, error) {
	if subject.Category.Variant() == models.VariantGatePass {
		return nil, appErrors.Clone(appErrors.ErrValidation, "gate passes must be requested")
	}
	var result *dto.TransitionResult
	err := withTx(ctx, s.db, nil, func(tx *sqlx.Tx) error {
		existing, err := s.visits.LockSubject(ctx, tx, subject.TenantID, subject.ID)
		if err != nil {
			return appErrors.Storage(err, "failed to lock visitor")
		}
		if existing != nil {
			return appErrors.Clone(appErrors.ErrConflict, "visitor already registered")
		}
		now := s.clock.Now()
		record, err := s.open(ctx, tx, &subject, selection, now, actor)
		if err != nil {
			return err
		}
		result = s.transitionResult(record, models.StateDeparted, now)
		return nil
	})
	s.afterTransition(ctx, subject.TenantID, subject.ID, subject.Category, actionDepart, actor, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Return closes the open visit of an entity.
func (s *LifecycleService) Return(ctx context.Context, req dto.ReturnRequest) (*dto.TransitionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid return payload")
	}

	var (
		category models.Category
		result   *dto.TransitionResult
	)
	err := withTx(ctx, s.db, nil, func(tx *sqlx.Tx) error {
		entity, err := s.visits.LockSubject(ctx, tx, req.TenantID, req.EntityID)
		if err != nil {
			return appErrors.Storage(err, "failed to lock entity")
		}
		if entity == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "entity not found")
		}
		category = entity.Category

		latest, err := s.visits.LatestForUpdate(ctx, tx, req.TenantID, req.EntityID)
		if err != nil {
			return appErrors.Storage(err, "failed to load latest visit")
		}
		variant := entity.Category.Variant()
		if err := guardReturn(deriveState(variant, latest)); err != nil {
			return err
		}

		now := s.clock.Now()
		err = s.visits.Close(ctx, tx, repository.VisitTransition{TenantID: req.TenantID, VisitID: latest.ID, At: now, Actor: req.Actor})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNoOpenVisit, "entity has no open visit")
			}
			return appErrors.Storage(err, "failed to close visit")
		}
		closed := *latest
		closed.ReturnTime = &now
		closed.UpdatedBy = req.Actor
		closed.UpdatedAt = now
		result = s.transitionResult(&closed, deriveState(variant, &closed), now)
		return nil
	})
	s.afterTransition(ctx, req.TenantID, req.EntityID, category, actionReturn, req.Actor, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Status reports the current state and the legal next action. It never writes.
func (s *LifecycleService) Status(ctx context.Context, tenantID, entityID string) (*models.VisitStatus, error) {
	entity, err := s.visits.FindSubject(ctx, tenantID, entityID)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to load entity")
	}
	if entity == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "entity not found")
	}
	latest, err := s.visits.Latest(ctx, tenantID, entityID)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to load latest visit")
	}
	variant := entity.Category.Variant()
	state := deriveState(variant, latest)
	status := &models.VisitStatus{
		EntityID:   entity.ID,
		Category:   entity.Category,
		State:      state,
		NextAction: nextAction(variant, state),
	}
	if !entity.IsActive && status.NextAction != models.ActionReturn {
		status.NextAction = models.ActionNone
	}
	if latest != nil {
		status.VisitID = latest.ID
		status.PurposeName = latest.PurposeName
		status.DepartureTime = latest.DepartureTime
		status.ReturnTime = latest.ReturnTime
	}
	return status, nil
}

// Approve moves a pending gate pass to ready-for-entry.
func (s *LifecycleService) Approve(ctx context.Context, tenantID, visitID, actor string) (*dto.TransitionResult, error) {
	return s.decide(ctx, tenantID, visitID, actor, models.ApprovalApproved)
}

// Reject closes a pending gate pass for good.
func (s *LifecycleService) Reject(ctx context.Context, tenantID, visitID, actor string) (*dto.TransitionResult, error) {
	return s.decide(ctx, tenantID, visitID, actor, models.ApprovalRejected)
}

func (s *LifecycleService) decide(ctx context.Context, tenantID, visitID, actor string, decision models.ApprovalState) (*dto.TransitionResult, error) {
	action := actionApprove
	if decision == models.ApprovalRejected {
		action = actionReject
	}
	passes, ok := s.visits.(gatePassLog)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "gate passes are not stored on this path")
	}
	if tenantID == "" || visitID == "" || actor == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "tenant, visit and actor are required")
	}

	var (
		entityID string
		result   *dto.TransitionResult
	)
	err := withTx(ctx, s.db, nil, func(tx *sqlx.Tx) error {
		record, err := passes.LockVisit(ctx, tx, tenantID, visitID)
		if err != nil {
			return appErrors.Storage(err, "failed to lock gate pass")
		}
		if record == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "gate pass not found")
		}
		entityID = record.EntityID
		if record.Category.Variant() != models.VariantGatePass {
			return appErrors.Clone(appErrors.ErrInvalidState, "visit is not a gate pass")
		}
		if err := guardDecision(deriveState(models.VariantGatePass, record)); err != nil {
			return err
		}

		now := s.clock.Now()
		err = passes.SetApproval(ctx, tx, repository.ApprovalParams{TenantID: tenantID, VisitID: visitID, State: decision, Actor: actor, At: now})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrInvalidState, "gate pass is not pending approval")
			}
			return appErrors.Storage(err, "failed to record gate pass decision")
		}
		decided := *record
		decided.ApprovalState = &decision
		decided.ApprovedBy = &actor
		decided.ApprovedAt = &now
		result = s.transitionResult(&decided, deriveState(models.VariantGatePass, &decided), now)
		return nil
	})
	s.afterTransition(ctx, tenantID, entityID, models.CategoryGatePass, action, actor, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// open resolves the purpose and inserts a new open record for entity.
func (s *LifecycleService) open(ctx context.Context, tx *sqlx.Tx, entity *models.Entity, selection dto.PurposeSelection, now time.Time, actor string) (*models.VisitRecord, error) {
	purpose, err := s.purposes.Resolve(ctx, entity.TenantID, entity.Category.Module().ID(), selection.PurposeID, selection.PurposeText)
	if err != nil {
		return nil, err
	}
	record := newVisitRecord(entity, purpose, actor, now)
	record.DepartureTime = &now
	if err := s.visits.Insert(ctx, tx, record); err != nil {
		if errors.Is(err, repository.ErrOpenVisitExists) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyDeparted, "entity already has an open visit")
		}
		return nil, appErrors.Storage(err, "failed to insert visit")
	}
	return record, nil
}

// enterGatePass opens the approved record, or after an exit inserts a new
// record carrying the original approval.
func (s *LifecycleService) enterGatePass(ctx context.Context, tx *sqlx.Tx, latest *models.VisitRecord, state models.VisitState, now time.Time, actor string) (*models.VisitRecord, error) {
	passes, ok := s.visits.(gatePassLog)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "gate passes are not stored on this path")
	}
	if state == models.StateReadyForEntry {
		err := passes.OpenApproved(ctx, tx, repository.VisitTransition{TenantID: latest.TenantID, VisitID: latest.ID, At: now, Actor: actor})
		if err != nil {
			switch {
			case errors.Is(err, repository.ErrOpenVisitExists):
				return nil, appErrors.Clone(appErrors.ErrAlreadyDeparted, "gate pass already entered")
			case errors.Is(err, sql.ErrNoRows):
				return nil, appErrors.Clone(appErrors.ErrInvalidState, "gate pass is not approved")
			}
			return nil, appErrors.Storage(err, "failed to record gate pass entry")
		}
		entered := *latest
		entered.DepartureTime = &now
		entered.UpdatedBy = actor
		entered.UpdatedAt = now
		return &entered, nil
	}

	reentry := *latest
	reentry.ID = ""
	reentry.DepartureTime = &now
	reentry.ReturnTime = nil
	reentry.CreatedBy = actor
	reentry.UpdatedBy = actor
	reentry.CreatedAt = now
	if err := passes.Insert(ctx, tx, &reentry); err != nil {
		if errors.Is(err, repository.ErrOpenVisitExists) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyDeparted, "gate pass already entered")
		}
		return nil, appErrors.Storage(err, "failed to record gate pass re-entry")
	}
	return &reentry, nil
}

func (s *LifecycleService) transitionResult(record *models.VisitRecord, state models.VisitState, at time.Time) *dto.TransitionResult {
	return &dto.TransitionResult{
		VisitID:     record.ID,
		EntityID:    record.EntityID,
		Category:    record.Category,
		State:       state,
		PurposeID:   record.PurposeID,
		PurposeName: record.PurposeName,
		At:          at,
		AtDisplay:   HumanTime(at, s.clock.Location(record.TenantID)),
		Source:      s.visits.Source(),
		NextAction:  nextAction(record.Category.Variant(), state),
	}
}

func (s *LifecycleService) afterTransition(ctx context.Context, tenantID, entityID string, category models.Category, action, actor string, result *dto.TransitionResult, err error) {
	log := logger.FromContext(ctx, s.logger).With(
		zap.String("tenant_id", tenantID),
		zap.String("entity_id", entityID),
		zap.String("category", string(category)),
		zap.String("action", action),
		zap.String("source", string(s.visits.Source())),
	)
	if err != nil {
		code := appErrors.Code(err)
		s.metrics.RecordTransition(category, action, code)
		if appErrors.Retryable(err) || code == appErrors.ErrInternal.Code {
			log.Error("visit transition failed", zap.String("code", code), zap.Error(err))
		} else {
			log.Info("visit transition rejected", zap.String("code", code), zap.String("reason", err.Error()))
		}
		return
	}

	s.metrics.RecordTransition(category, action, "ok")
	log.Info("visit transition", zap.String("visit_id", result.VisitID), zap.String("state", string(result.State)))
	emitAudit(ctx, s.audit, log, "lifecycle-service", &models.AuditLog{
		TenantID:   tenantID,
		UserID:     optionalString(actor),
		Action:     auditAction(action),
		Resource:   "visit",
		ResourceID: optionalString(result.VisitID),
		NewValues:  auditPayload(result),
	})
	if s.cache != nil {
		s.cache.Invalidate(ctx, repository.TenantCachePattern(tenantID))
	}
}

func auditAction(action string) string {
	switch action {
	case actionApprove:
		return models.AuditActionGatePassApprove
	case actionReject:
		return models.AuditActionGatePassReject
	case actionRequest:
		return models.AuditActionGatePassRequest
	case actionReturn:
		return models.AuditActionVisitReturn
	default:
		return models.AuditActionVisitDepart
	}
}

func newVisitRecord(entity *models.Entity, purpose *dto.ResolvedPurpose, actor string, now time.Time) *models.VisitRecord {
	return &models.VisitRecord{
		EntityID:          entity.ID,
		TenantID:          entity.TenantID,
		Category:          entity.Category,
		DisplayName:       entity.DisplayName,
		ContactNumber:     entity.ContactNumber,
		PurposeID:         purpose.PurposeID,
		PurposeName:       purpose.Name,
		PurposeCategoryID: purpose.CategoryID,
		CreatedBy:         actor,
		UpdatedBy:         actor,
		CreatedAt:         now,
	}
}

// withTx runs fn inside a transaction, rolling back on any error.
func withTx(ctx context.Context, db txProvider, opts *sql.TxOptions, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return appErrors.Storage(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Storage(err, "failed to commit transaction")
	}
	return nil
}
