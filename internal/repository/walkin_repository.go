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

const walkInColumns = `id, tenant_id, visitor_id, category, display_name, contact_number, departure_time, return_time,
	purpose_id, purpose_name, purpose_category_id, created_by, updated_by, is_active, created_at, updated_at`

// WalkInRepository persists ad-hoc visits where identity and visit share a row.
// Rows of one visitor share visitor_id so re-entries stay linked.
type WalkInRepository struct {
	db *sqlx.DB
}

// NewWalkInRepository constructs the repository.
func NewWalkInRepository(db *sqlx.DB) *WalkInRepository {
	return &WalkInRepository{db: db}
}

// Source identifies the storage path served by the repository.
func (r *WalkInRepository) Source() models.Source {
	return models.SourceWalkIn
}

// LockSubject takes a transaction-scoped advisory lock on the visitor and
// returns the identity carried by its latest row.
func (r *WalkInRepository) LockSubject(ctx context.Context, tx *sqlx.Tx, tenantID, visitorID string) (*models.Entity, error) {
	const lockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err := tx.ExecContext(ctx, lockQuery, "walkin:"+tenantID+":"+visitorID); err != nil {
		return nil, fmt.Errorf("lock walk-in visitor: %w", err)
	}
	row, err := r.latest(ctx, tx, tenantID, visitorID, "")
	if err != nil || row == nil {
		return nil, err
	}
	return walkInEntity(row), nil
}

// FindSubject returns the visitor identity without locking.
func (r *WalkInRepository) FindSubject(ctx context.Context, tenantID, visitorID string) (*models.Entity, error) {
	row, err := r.latest(ctx, r.db, tenantID, visitorID, "")
	if err != nil || row == nil {
		return nil, err
	}
	return walkInEntity(row), nil
}

// LatestForUpdate returns and locks the visitor's most recent row.
func (r *WalkInRepository) LatestForUpdate(ctx context.Context, tx *sqlx.Tx, tenantID, visitorID string) (*models.VisitRecord, error) {
	row, err := r.latest(ctx, tx, tenantID, visitorID, " FOR UPDATE")
	if err != nil || row == nil {
		return nil, err
	}
	record := row.VisitRecord()
	return &record, nil
}

// Latest returns the visitor's most recent row.
func (r *WalkInRepository) Latest(ctx context.Context, tenantID, visitorID string) (*models.VisitRecord, error) {
	row, err := r.latest(ctx, r.db, tenantID, visitorID, "")
	if err != nil || row == nil {
		return nil, err
	}
	record := row.VisitRecord()
	return &record, nil
}

func (r *WalkInRepository) latest(ctx context.Context, q sqlx.QueryerContext, tenantID, visitorID, lock string) (*models.WalkInVisit, error) {
	query := `SELECT ` + walkInColumns + `
FROM walkin_visits
WHERE tenant_id = $1 AND visitor_id = $2 AND is_active
ORDER BY departure_time DESC, created_at DESC
LIMIT 1` + lock
	var row models.WalkInVisit
	if err := sqlx.GetContext(ctx, q, &row, query, tenantID, visitorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest walk-in visit: %w", err)
	}
	return &row, nil
}

// Insert stores a walk-in row. record.EntityID is the visitor id.
func (r *WalkInRepository) Insert(ctx context.Context, tx *sqlx.Tx, record *models.VisitRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.UpdatedAt = record.CreatedAt
	record.IsActive = true

	row := models.WalkInVisit{
		ID:                record.ID,
		TenantID:          record.TenantID,
		VisitorID:         record.EntityID,
		Category:          record.Category,
		DisplayName:       record.DisplayName,
		ContactNumber:     record.ContactNumber,
		DepartureTime:     record.DepartureTime,
		ReturnTime:        record.ReturnTime,
		PurposeID:         record.PurposeID,
		PurposeName:       record.PurposeName,
		PurposeCategoryID: record.PurposeCategoryID,
		CreatedBy:         record.CreatedBy,
		UpdatedBy:         record.UpdatedBy,
		IsActive:          record.IsActive,
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         record.UpdatedAt,
	}
	const query = `INSERT INTO walkin_visits (
	id, tenant_id, visitor_id, category, display_name, contact_number, departure_time, return_time,
	purpose_id, purpose_name, purpose_category_id, created_by, updated_by, is_active, created_at, updated_at
) VALUES (
	:id, :tenant_id, :visitor_id, :category, :display_name, :contact_number, :departure_time, :return_time,
	:purpose_id, :purpose_name, :purpose_category_id, :created_by, :updated_by, :is_active, :created_at, :updated_at
)`
	if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
		if isUniqueViolation(err, constraintOpenWalkIn) {
			return ErrOpenVisitExists
		}
		return fmt.Errorf("insert walk-in visit: %w", err)
	}
	return nil
}

// Close stamps the return time of an open walk-in row.
func (r *WalkInRepository) Close(ctx context.Context, tx *sqlx.Tx, params VisitTransition) error {
	const query = `UPDATE walkin_visits SET return_time = $1, updated_by = $2, updated_at = $1
WHERE tenant_id = $3 AND id = $4 AND departure_time IS NOT NULL AND return_time IS NULL`
	result, err := tx.ExecContext(ctx, query, params.At, params.Actor, params.TenantID, params.VisitID)
	if err != nil {
		return fmt.Errorf("close walk-in visit: %w", err)
	}
	return affected(result, "close walk-in visit")
}

func walkInEntity(row *models.WalkInVisit) *models.Entity {
	return &models.Entity{
		ID:            row.VisitorID,
		TenantID:      row.TenantID,
		Category:      row.Category,
		DisplayName:   row.DisplayName,
		ContactNumber: row.ContactNumber,
		IsActive:      row.IsActive,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}
