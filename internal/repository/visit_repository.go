package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-visit-api/internal/models"
)

const visitColumns = `id, entity_id, tenant_id, category, display_name, contact_number, departure_time, return_time,
	purpose_id, purpose_name, purpose_category_id, approval_state, approved_by, approved_at,
	created_by, updated_by, is_active, created_at, updated_at`

// VisitTransition carries the values written when a visit is opened or closed.
type VisitTransition struct {
	TenantID string
	VisitID  string
	At       time.Time
	Actor    string
}

// ApprovalParams records a gate-pass approval decision.
type ApprovalParams struct {
	TenantID string
	VisitID  string
	State    models.ApprovalState
	Actor    string
	At       time.Time
}

// VisitRepository persists visit records of pre-registered entities.
type VisitRepository struct {
	db *sqlx.DB
}

// NewVisitRepository constructs the repository.
func NewVisitRepository(db *sqlx.DB) *VisitRepository {
	return &VisitRepository{db: db}
}

// Source identifies the storage path served by the repository.
func (r *VisitRepository) Source() models.Source {
	return models.SourceHistory
}

// LockSubject locks the entity row so concurrent transitions on it serialize.
func (r *VisitRepository) LockSubject(ctx context.Context, tx *sqlx.Tx, tenantID, entityID string) (*models.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE tenant_id = $1 AND id = $2 FOR UPDATE`
	var entity models.Entity
	if err := tx.GetContext(ctx, &entity, query, tenantID, entityID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock entity: %w", err)
	}
	return &entity, nil
}

// FindSubject loads the entity without locking.
func (r *VisitRepository) FindSubject(ctx context.Context, tenantID, entityID string) (*models.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE tenant_id = $1 AND id = $2`
	var entity models.Entity
	if err := r.db.GetContext(ctx, &entity, query, tenantID, entityID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find entity: %w", err)
	}
	return &entity, nil
}

// LatestForUpdate returns and locks the most recent active record of the entity.
func (r *VisitRepository) LatestForUpdate(ctx context.Context, tx *sqlx.Tx, tenantID, entityID string) (*models.VisitRecord, error) {
	return r.latest(ctx, tx, tenantID, entityID, " FOR UPDATE")
}

// Latest returns the most recent active record of the entity.
func (r *VisitRepository) Latest(ctx context.Context, tenantID, entityID string) (*models.VisitRecord, error) {
	return r.latest(ctx, r.db, tenantID, entityID, "")
}

func (r *VisitRepository) latest(ctx context.Context, q sqlx.QueryerContext, tenantID, entityID, lock string) (*models.VisitRecord, error) {
	query := `SELECT ` + visitColumns + `
FROM visit_records
WHERE tenant_id = $1 AND entity_id = $2 AND is_active
ORDER BY departure_time DESC NULLS FIRST, created_at DESC
LIMIT 1` + lock
	var record models.VisitRecord
	if err := sqlx.GetContext(ctx, q, &record, query, tenantID, entityID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest visit: %w", err)
	}
	return &record, nil
}

// LockVisit loads a visit by id and locks it.
func (r *VisitRepository) LockVisit(ctx context.Context, tx *sqlx.Tx, tenantID, visitID string) (*models.VisitRecord, error) {
	query := `SELECT ` + visitColumns + ` FROM visit_records WHERE tenant_id = $1 AND id = $2 AND is_active FOR UPDATE`
	var record models.VisitRecord
	if err := tx.GetContext(ctx, &record, query, tenantID, visitID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock visit: %w", err)
	}
	return &record, nil
}

// Insert stores a new visit record.
func (r *VisitRepository) Insert(ctx context.Context, tx *sqlx.Tx, record *models.VisitRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = record.CreatedAt
	record.IsActive = true

	const query = `INSERT INTO visit_records (
	id, entity_id, tenant_id, category, display_name, contact_number, departure_time, return_time,
	purpose_id, purpose_name, purpose_category_id, approval_state, approved_by, approved_at,
	created_by, updated_by, is_active, created_at, updated_at
) VALUES (
	:id, :entity_id, :tenant_id, :category, :display_name, :contact_number, :departure_time, :return_time,
	:purpose_id, :purpose_name, :purpose_category_id, :approval_state, :approved_by, :approved_at,
	:created_by, :updated_by, :is_active, :created_at, :updated_at
)`
	if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
		if isUniqueViolation(err, constraintOpenVisit) {
			return ErrOpenVisitExists
		}
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

// Close stamps the return time of an open visit.
func (r *VisitRepository) Close(ctx context.Context, tx *sqlx.Tx, params VisitTransition) error {
	const query = `UPDATE visit_records SET return_time = $1, updated_by = $2, updated_at = $1
WHERE tenant_id = $3 AND id = $4 AND departure_time IS NOT NULL AND return_time IS NULL`
	result, err := tx.ExecContext(ctx, query, params.At, params.Actor, params.TenantID, params.VisitID)
	if err != nil {
		return fmt.Errorf("close visit: %w", err)
	}
	return affected(result, "close visit")
}

// OpenApproved stamps the entry time of an approved gate pass.
func (r *VisitRepository) OpenApproved(ctx context.Context, tx *sqlx.Tx, params VisitTransition) error {
	const query = `UPDATE visit_records SET departure_time = $1, updated_by = $2, updated_at = $1
WHERE tenant_id = $3 AND id = $4 AND departure_time IS NULL AND approval_state = 'APPROVED'`
	result, err := tx.ExecContext(ctx, query, params.At, params.Actor, params.TenantID, params.VisitID)
	if err != nil {
		if isUniqueViolation(err, constraintOpenVisit) {
			return ErrOpenVisitExists
		}
		return fmt.Errorf("open approved visit: %w", err)
	}
	return affected(result, "open approved visit")
}

// SetApproval records the decision on a pending gate pass.
func (r *VisitRepository) SetApproval(ctx context.Context, tx *sqlx.Tx, params ApprovalParams) error {
	const query = `UPDATE visit_records SET approval_state = $1, approved_by = $2, approved_at = $3, updated_by = $2, updated_at = $3
WHERE tenant_id = $4 AND id = $5 AND approval_state = 'PENDING'`
	result, err := tx.ExecContext(ctx, query, string(params.State), params.Actor, params.At, params.TenantID, params.VisitID)
	if err != nil {
		return fmt.Errorf("set approval: %w", err)
	}
	return affected(result, "set approval")
}

// LockContact serializes gate-pass requests of one contact number until the transaction ends.
func (r *VisitRepository) LockContact(ctx context.Context, tx *sqlx.Tx, tenantID, contact string) error {
	const query = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err := tx.ExecContext(ctx, query, "gatepass:"+tenantID+":"+contact); err != nil {
		return fmt.Errorf("lock gate pass contact: %w", err)
	}
	return nil
}

// CountOpenGatePasses counts non-rejected gate passes of a contact created in [from, to) that are not closed.
func (r *VisitRepository) CountOpenGatePasses(ctx context.Context, tx *sqlx.Tx, tenantID, contact string, from, to time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM visit_records
WHERE tenant_id = $1 AND category = 'GATE_PASS' AND contact_number = $2
	AND created_at >= $3 AND created_at < $4
	AND return_time IS NULL AND approval_state <> 'REJECTED' AND is_active`
	var count int
	if err := tx.GetContext(ctx, &count, query, tenantID, contact, from, to); err != nil {
		return 0, fmt.Errorf("count gate passes: %w", err)
	}
	return count, nil
}

func affected(result sql.Result, op string) error {
	if err := checkAffected(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("%s rows: %w", op, err)
	}
	return nil
}
