package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-visit-api/internal/models"
)

const purposeColumns = `id, tenant_id, category_id, name, is_active, created_by, updated_by, created_at, updated_at`

// PurposeRepository persists the per-tenant purpose catalog.
type PurposeRepository struct {
	db *sqlx.DB
}

// NewPurposeRepository constructs the repository.
func NewPurposeRepository(db *sqlx.DB) *PurposeRepository {
	return &PurposeRepository{db: db}
}

// FindByID returns a purpose regardless of its active flag.
func (r *PurposeRepository) FindByID(ctx context.Context, tenantID string, id int64) (*models.Purpose, error) {
	query := `SELECT ` + purposeColumns + ` FROM purposes WHERE tenant_id = $1 AND id = $2`
	var purpose models.Purpose
	if err := r.db.GetContext(ctx, &purpose, query, tenantID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find purpose: %w", err)
	}
	return &purpose, nil
}

// FindActive returns the active purpose with the id inside the tenant and category.
func (r *PurposeRepository) FindActive(ctx context.Context, tenantID string, categoryID int, id int64) (*models.Purpose, error) {
	query := `SELECT ` + purposeColumns + ` FROM purposes WHERE tenant_id = $1 AND category_id = $2 AND id = $3 AND is_active`
	var purpose models.Purpose
	if err := r.db.GetContext(ctx, &purpose, query, tenantID, categoryID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active purpose: %w", err)
	}
	return &purpose, nil
}

// ExistsByName performs a case-insensitive lookup among active purposes, ignoring excludeID.
func (r *PurposeRepository) ExistsByName(ctx context.Context, tenantID string, categoryID int, name string, excludeID int64) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM purposes
	WHERE tenant_id = $1 AND category_id = $2 AND LOWER(name) = LOWER($3) AND is_active AND id <> $4
)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, tenantID, categoryID, strings.TrimSpace(name), excludeID); err != nil {
		return false, fmt.Errorf("check purpose name: %w", err)
	}
	return exists, nil
}

// Create inserts a purpose and fills its generated id.
func (r *PurposeRepository) Create(ctx context.Context, purpose *models.Purpose) error {
	now := time.Now().UTC()
	purpose.CreatedAt = now
	purpose.UpdatedAt = now
	purpose.IsActive = true
	const query = `INSERT INTO purposes (tenant_id, category_id, name, is_active, created_by, updated_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		purpose.TenantID, purpose.CategoryID, purpose.Name, purpose.IsActive,
		purpose.CreatedBy, purpose.UpdatedBy, purpose.CreatedAt, purpose.UpdatedAt,
	).Scan(&purpose.ID)
	if err != nil {
		if isUniqueViolation(err, constraintPurposeName) {
			return ErrDuplicatePurpose
		}
		return fmt.Errorf("create purpose: %w", err)
	}
	return nil
}

// Rename updates the name of an active purpose.
func (r *PurposeRepository) Rename(ctx context.Context, tenantID string, id int64, name, actor string) error {
	const query = `UPDATE purposes SET name = $1, updated_by = $2, updated_at = $3 WHERE tenant_id = $4 AND id = $5 AND is_active`
	result, err := r.db.ExecContext(ctx, query, name, actor, time.Now().UTC(), tenantID, id)
	if err != nil {
		if isUniqueViolation(err, constraintPurposeName) {
			return ErrDuplicatePurpose
		}
		return fmt.Errorf("rename purpose: %w", err)
	}
	if err := checkAffected(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("rename purpose rows: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a purpose. Returns sql.ErrNoRows when it is already inactive.
func (r *PurposeRepository) Deactivate(ctx context.Context, tenantID string, id int64, actor string) error {
	const query = `UPDATE purposes SET is_active = FALSE, updated_by = $1, updated_at = $2 WHERE tenant_id = $3 AND id = $4 AND is_active`
	result, err := r.db.ExecContext(ctx, query, actor, time.Now().UTC(), tenantID, id)
	if err != nil {
		return fmt.Errorf("deactivate purpose: %w", err)
	}
	if err := checkAffected(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("deactivate purpose rows: %w", err)
	}
	return nil
}

// List returns catalog purposes ordered by name.
func (r *PurposeRepository) List(ctx context.Context, filter models.PurposeFilter) ([]models.Purpose, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT ` + purposeColumns + ` FROM purposes WHERE tenant_id = $1`)
	args := []interface{}{filter.TenantID}
	if filter.CategoryID > 0 {
		args = append(args, filter.CategoryID)
		fmt.Fprintf(&query, " AND category_id = $%d", len(args))
	}
	if !filter.IncludeInactive {
		query.WriteString(" AND is_active")
	}
	query.WriteString(" ORDER BY category_id ASC, LOWER(name) ASC")

	var purposes []models.Purpose
	if err := r.db.SelectContext(ctx, &purposes, query.String(), args...); err != nil {
		return nil, fmt.Errorf("list purposes: %w", err)
	}
	return purposes, nil
}
