package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-visit-api/internal/models"
)

var walkInRowColumns = []string{
	"id", "tenant_id", "visitor_id", "category", "display_name", "contact_number", "departure_time", "return_time",
	"purpose_id", "purpose_name", "purpose_category_id", "created_by", "updated_by", "is_active", "created_at", "updated_at",
}

func TestWalkInRepositoryLockSubjectTakesAdvisoryLock(t *testing.T) {
	db, mock, cleanup := newVisitRepoMock(t)
	defer cleanup()
	repo := NewWalkInRepository(db)
	departed := time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)
	returned := departed.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)).
		WithArgs("walkin:tenant-1:visitor-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM walkin_visits`)).
		WithArgs("tenant-1", "visitor-1").
		WillReturnRows(sqlmock.NewRows(walkInRowColumns).
			AddRow("row-1", "tenant-1", "visitor-1", "UNREGISTERED_VISITOR", "Pak Joko", "0812", departed, returned,
				nil, "Delivery", 1, "guard", "guard", true, departed, returned))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	entity, err := repo.LockSubject(context.Background(), tx, "tenant-1", "visitor-1")
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, "visitor-1", entity.ID)
	assert.Equal(t, "Pak Joko", entity.DisplayName)
	assert.Equal(t, models.CategoryUnregisteredVisitor, entity.Category)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWalkInRepositoryLatestMapsVisitor(t *testing.T) {
	db, mock, cleanup := newVisitRepoMock(t)
	defer cleanup()
	repo := NewWalkInRepository(db)
	departed := time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM walkin_visits`)).
		WithArgs("tenant-1", "visitor-1").
		WillReturnRows(sqlmock.NewRows(walkInRowColumns).
			AddRow("row-2", "tenant-1", "visitor-1", "UNREGISTERED_VISITOR", "Pak Joko", "0812", departed, nil,
				nil, "Delivery", 1, "guard", "guard", true, departed, departed))

	record, err := repo.Latest(context.Background(), "tenant-1", "visitor-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "visitor-1", record.EntityID)
	assert.True(t, record.IsOpen())
	assert.Equal(t, models.SourceWalkIn, repo.Source())
}

func TestWalkInRepositoryInsertMapsOpenVisitViolation(t *testing.T) {
	db, mock, cleanup := newVisitRepoMock(t)
	defer cleanup()
	repo := NewWalkInRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO walkin_visits`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_walkin_visits_open"})
	mock.ExpectRollback()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	departed := time.Now().UTC()
	err = repo.Insert(context.Background(), tx, &models.VisitRecord{
		EntityID:      "visitor-1",
		TenantID:      "tenant-1",
		Category:      models.CategoryUnregisteredVisitor,
		DepartureTime: &departed,
	})
	assert.ErrorIs(t, err, ErrOpenVisitExists)
	require.NoError(t, tx.Rollback())
}
