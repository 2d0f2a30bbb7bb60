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

const entityColumns = `id, tenant_id, category, display_name, contact_number, is_active, created_at, updated_at`

// EntityRepository persists pre-registered trackable subjects.
type EntityRepository struct {
	db *sqlx.DB
}

// NewEntityRepository constructs the repository.
func NewEntityRepository(db *sqlx.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

// FindByID returns the entity or nil when the tenant has no such entity.
func (r *EntityRepository) FindByID(ctx context.Context, tenantID, id string) (*models.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE tenant_id = $1 AND id = $2`
	var entity models.Entity
	if err := r.db.GetContext(ctx, &entity, query, tenantID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find entity: %w", err)
	}
	return &entity, nil
}

// Create inserts a new entity.
func (r *EntityRepository) Create(ctx context.Context, entity *models.Entity) error {
	return r.create(ctx, r.db, entity)
}

// CreateWithTx inserts a new entity inside the caller's transaction.
func (r *EntityRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, entity *models.Entity) error {
	return r.create(ctx, tx, entity)
}

func (r *EntityRepository) create(ctx context.Context, exec sqlx.ExtContext, entity *models.Entity) error {
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	entity.UpdatedAt = now
	entity.IsActive = true

	const query = `INSERT INTO entities (id, tenant_id, category, display_name, contact_number, is_active, created_at, updated_at)
VALUES (:id, :tenant_id, :category, :display_name, :contact_number, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, entity); err != nil {
		return fmt.Errorf("create entity: %w", err)
	}
	return nil
}

// Deactivate soft-deletes an entity. Its visit history is kept.
func (r *EntityRepository) Deactivate(ctx context.Context, tenantID, id string) error {
	const query = `UPDATE entities SET is_active = FALSE, updated_at = $1 WHERE tenant_id = $2 AND id = $3 AND is_active`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), tenantID, id)
	if err != nil {
		return fmt.Errorf("deactivate entity: %w", err)
	}
	if err := checkAffected(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("deactivate entity rows: %w", err)
	}
	return nil
}
