package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-visit-api/internal/models"
)

func TestPurposeRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newVisitRepoMock(t)
	defer cleanup()
	repo := NewPurposeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO purposes`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))

	purpose := &models.Purpose{TenantID: "tenant-1", CategoryID: 1, Name: "Delivery", CreatedBy: "admin", UpdatedBy: "admin"}
	require.NoError(t, repo.Create(context.Background(), purpose))
	assert.Equal(t, int64(12), purpose.ID)
	assert.True(t, purpose.IsActive)
	assert.False(t, purpose.CreatedAt.IsZero())
}

func TestPurposeRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newVisitRepoMock(t)
	defer cleanup()
	repo := NewPurposeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO purposes`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_purposes_active_name"})

	err := repo.Create(context.Background(), &models.Purpose{TenantID: "tenant-1", CategoryID: 1, Name: "delivery"})
	assert.ErrorIs(t, err, ErrDuplicatePurpose)
}

func TestPurposeRepositoryExistsByName(t *testing.T) {
	db, mock, cleanup := newVisitRepoMock(t)
	defer cleanup()
	repo := NewPurposeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`LOWER(name) = LOWER($3)`)).
		WithArgs("tenant-1", 1, "Delivery", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByName(context.Background(), "tenant-1", 1, "  Delivery ", 0)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPurposeRepositoryFindActiveMissing(t *testing.T) {
	db, mock, cleanup := newVisitRepoMock(t)
	defer cleanup()
	repo := NewPurposeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM purposes WHERE tenant_id = $1 AND category_id = $2 AND id = $3 AND is_active`)).
		WithArgs("tenant-1", 3, int64(99)).
		WillReturnError(sql.ErrNoRows)

	purpose, err := repo.FindActive(context.Background(), "tenant-1", 3, 99)
	require.NoError(t, err)
	assert.Nil(t, purpose)
}

func TestPurposeRepositoryDeactivateAlreadyInactive(t *testing.T) {
	db, mock, cleanup := newVisitRepoMock(t)
	defer cleanup()
	repo := NewPurposeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE purposes SET is_active = FALSE`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Deactivate(context.Background(), "tenant-1", 5, "admin")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestPurposeRepositoryListByCategory(t *testing.T) {
	db, mock, cleanup := newVisitRepoMock(t)
	defer cleanup()
	repo := NewPurposeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM purposes WHERE tenant_id = $1 AND category_id = $2 AND is_active ORDER BY category_id ASC`)).
		WithArgs("tenant-1", 4).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "category_id", "name", "is_active", "created_by", "updated_by"}).
			AddRow(int64(1), "tenant-1", 4, "Field trip", true, "admin", "admin"))

	purposes, err := repo.List(context.Background(), models.PurposeFilter{TenantID: "tenant-1", CategoryID: 4})
	require.NoError(t, err)
	require.Len(t, purposes, 1)
	assert.Equal(t, "Field trip", purposes[0].Name)
}
