package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-visit-api/internal/models"
)

// TenantRepository reads the tenant registry.
type TenantRepository struct {
	db *sqlx.DB
}

// NewTenantRepository constructs the repository.
func NewTenantRepository(db *sqlx.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// ListActive returns active tenants ordered by id.
func (r *TenantRepository) ListActive(ctx context.Context) ([]models.Tenant, error) {
	const query = `SELECT id, name, is_active, created_at FROM tenants WHERE is_active ORDER BY id ASC`
	var tenants []models.Tenant
	if err := r.db.SelectContext(ctx, &tenants, query); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}
