package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-visit-api/internal/models"
)

func TestActivityRepositoryCategoryCountsInsideSnapshot(t *testing.T) {
	db, mock, cleanup := newVisitRepoMock(t)
	defer cleanup()
	history := NewHistoryActivityRepository()
	walkIns := NewWalkInActivityRepository()
	from := time.Date(2024, 2, 29, 17, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM visit_records`)).
		WithArgs("tenant-1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"category", "checkins", "checkouts"}).
			AddRow("STUDENT", 4, 3).
			AddRow("REGISTERED_VISITOR", 2, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM walkin_visits`)).
		WithArgs("tenant-1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"category", "checkins", "checkouts"}).
			AddRow("UNREGISTERED_VISITOR", 5, 3))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	historyRows, err := history.CategoryCounts(context.Background(), tx, "tenant-1", from, to)
	require.NoError(t, err)
	walkInRows, err := walkIns.CategoryCounts(context.Background(), tx, "tenant-1", from, to)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Len(t, historyRows, 2)
	assert.Equal(t, models.CategoryStudent, historyRows[0].Category)
	assert.Equal(t, 4, historyRows[0].Checkins)
	require.Len(t, walkInRows, 1)
	assert.Equal(t, 3, walkInRows[0].Checkouts)
	assert.Equal(t, models.SourceHistory, history.Source())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryPurposeCounts(t *testing.T) {
	db, mock, cleanup := newVisitRepoMock(t)
	defer cleanup()
	repo := NewWalkInActivityRepository()
	from := time.Date(2024, 2, 29, 17, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`CASE WHEN purpose_id IS NULL THEN $4 ELSE purpose_name END AS purpose_name`)).
		WithArgs("tenant-1", from, to, models.OtherPurposeLabel, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"purpose_name", "checkins", "checkouts"}).
			AddRow("Delivery", 5, 3).
			AddRow("Other", 1, 0))

	rows, err := repo.PurposeCounts(context.Background(), db, "tenant-1", from, to, models.ModuleVisitor.Categories())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Delivery", rows[0].PurposeName)
	assert.Equal(t, models.OtherPurposeLabel, rows[1].PurposeName)
}

func TestActivityRepositoryPurposeCountsWithoutCategories(t *testing.T) {
	rows, err := NewHistoryActivityRepository().PurposeCounts(context.Background(), nil, "tenant-1", time.Now(), time.Now(), nil)
	require.NoError(t, err)
	assert.Nil(t, rows)
}
