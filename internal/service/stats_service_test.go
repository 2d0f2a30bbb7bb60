package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-visit-api/internal/models"
	appErrors "github.com/noah-isme/sma-visit-api/pkg/errors"
)

type activityStub struct {
	source     models.Source
	categories []models.CategoryCountRow
	purposes   map[models.Module][]models.PurposeCountRow
	err        error
	windows    [][2]time.Time
}

func (a *activityStub) Source() models.Source {
	return a.source
}

func (a *activityStub) CategoryCounts(ctx context.Context, q sqlx.QueryerContext, tenantID string, from, to time.Time) ([]models.CategoryCountRow, error) {
	a.windows = append(a.windows, [2]time.Time{from, to})
	if a.err != nil {
		return nil, a.err
	}
	return a.categories, nil
}

func (a *activityStub) PurposeCounts(ctx context.Context, q sqlx.QueryerContext, tenantID string, from, to time.Time, categories []models.Category) ([]models.PurposeCountRow, error) {
	if a.err != nil {
		return nil, a.err
	}
	if len(categories) == 0 {
		return nil, nil
	}
	return a.purposes[categories[0].Module()], nil
}

// deliveryFixture has walk-in visitors 3/1 and registered visitors 2/2, all for Delivery.
func deliveryFixture() (*activityStub, *activityStub) {
	walkIn := &activityStub{
		source:     models.SourceWalkIn,
		categories: []models.CategoryCountRow{{Category: models.CategoryUnregisteredVisitor, Checkins: 3, Checkouts: 1}},
		purposes: map[models.Module][]models.PurposeCountRow{
			models.ModuleVisitor: {{PurposeName: "Delivery", Checkins: 3, Checkouts: 1}},
		},
	}
	history := &activityStub{
		source:     models.SourceHistory,
		categories: []models.CategoryCountRow{{Category: models.CategoryRegisteredVisitor, Checkins: 2, Checkouts: 2}},
		purposes: map[models.Module][]models.PurposeCountRow{
			models.ModuleVisitor: {{PurposeName: "Delivery", Checkins: 2, Checkouts: 2}},
		},
	}
	return walkIn, history
}

func TestStatsMergesBothStoragePaths(t *testing.T) {
	db, mock := newTxProviderMock(t)
	clock := newStubClock(time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC))
	walkIn, history := deliveryFixture()
	svc := NewStatsService(db, clock, NewMetricsService(), nil, walkIn, history)
	ctx := context.Background()
	date, err := ParseDate("2024-03-11", clock.Location("tenant-1"))
	require.NoError(t, err)

	expectCommit(mock)
	counts, err := svc.DailyCounts(ctx, "tenant-1", date)
	require.NoError(t, err)
	assert.Equal(t, models.ModuleCounts{Checkins: 5, Checkouts: 3, Inside: 2}, counts[models.ModuleVisitor])
	assert.Equal(t, models.ModuleCounts{}, counts[models.ModuleStudent])
	assert.Len(t, counts, len(models.Modules()))

	require.Len(t, walkIn.windows, 1)
	assert.Equal(t, time.Date(2024, 3, 10, 17, 0, 0, 0, time.UTC), walkIn.windows[0][0].UTC())
	assert.Equal(t, 24*time.Hour, walkIn.windows[0][1].Sub(walkIn.windows[0][0]))

	expectCommit(mock)
	breakdown, err := svc.PurposeBreakdown(ctx, "tenant-1", date, models.ModuleVisitor)
	require.NoError(t, err)
	assert.Equal(t, []models.PurposeCounts{{PurposeName: "Delivery", Checkins: 5, Checkouts: 3, Inside: 2}}, breakdown)

	expectCommit(mock)
	snapshot, err := svc.Snapshot(ctx, "tenant-1", date)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), snapshot.TakenAt)
	assert.Len(t, snapshot.Breakdowns, len(models.Modules()))
	assert.Empty(t, snapshot.Breakdowns[models.ModuleBus])

	result := Validate(snapshot.Counts, snapshot.Breakdowns)
	assert.True(t, result.IsValid)
	assert.Equal(t, models.ModuleCounts{Checkins: 5, Checkouts: 3, Inside: 2}, result.Totals.Grand)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsSortsBreakdownAndSkipsUnknownCategories(t *testing.T) {
	db, mock := newTxProviderMock(t)
	source := &activityStub{
		source: models.SourceHistory,
		categories: []models.CategoryCountRow{
			{Category: models.CategoryStudent, Checkins: 2, Checkouts: 3},
			{Category: "TEACHER", Checkins: 9, Checkouts: 9},
		},
		purposes: map[models.Module][]models.PurposeCountRow{
			models.ModuleStudent: {
				{PurposeName: "Other", Checkins: 1, Checkouts: 1},
				{PurposeName: "Medical", Checkins: 1, Checkouts: 2},
			},
		},
	}
	svc := NewStatsService(db, newStubClock(time.Now()), nil, nil, source)

	expectCommit(mock)
	counts, err := svc.DailyCounts(context.Background(), "tenant-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.ModuleCounts{Checkins: 2, Checkouts: 3, Inside: -1}, counts[models.ModuleStudent])

	expectCommit(mock)
	breakdown, err := svc.PurposeBreakdown(context.Background(), "tenant-1", time.Now(), models.ModuleStudent)
	require.NoError(t, err)
	require.Len(t, breakdown, 2)
	assert.Equal(t, "Medical", breakdown[0].PurposeName)
	assert.Equal(t, 0, breakdown[0].Inside)
	assert.Equal(t, "Other", breakdown[1].PurposeName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsStorageFailureRollsBack(t *testing.T) {
	db, mock := newTxProviderMock(t)
	source := &activityStub{source: models.SourceWalkIn, err: errors.New("statement timeout")}
	svc := NewStatsService(db, newStubClock(time.Now()), nil, nil, source)

	expectRollback(mock)
	_, err := svc.Snapshot(context.Background(), "tenant-1", time.Now())
	assert.True(t, appErrors.Retryable(err))

	_, err = svc.DailyCounts(context.Background(), " ", time.Now())
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = svc.PurposeBreakdown(context.Background(), "tenant-1", time.Now(), "teachers")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentMedicalDayEndToEnd(t *testing.T) {
	f := newLifecycleFixture(t, models.SourceHistory)
	f.student("stu-1")
	ctx := context.Background()

	expectCommit(f.mock)
	_, err := f.engine.Depart(ctx, departStudent("stu-1", int64Ptr(1)))
	require.NoError(t, err)

	status, err := f.engine.Status(ctx, "tenant-1", "stu-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateDeparted, status.State)
	assert.Equal(t, models.ActionReturn, status.NextAction)
	assert.Equal(t, "Medical", status.PurposeName)

	f.clock.advance(2 * time.Hour)
	expectCommit(f.mock)
	_, err = f.engine.Return(ctx, returnStudent("stu-1"))
	require.NoError(t, err)

	status, err = f.engine.Status(ctx, "tenant-1", "stu-1")
	require.NoError(t, err)
	assert.Equal(t, models.ActionDepart, status.NextAction)

	stats := NewStatsService(f.engine.db, f.clock, f.metrics, nil, memoryActivity{log: f.log}, memoryActivity{log: newMemoryVisitLog(models.SourceWalkIn)})
	date, err := ParseDate("2024-03-11", f.clock.Location("tenant-1"))
	require.NoError(t, err)

	expectCommit(f.mock)
	snapshot, err := stats.Snapshot(ctx, "tenant-1", date)
	require.NoError(t, err)
	assert.Equal(t, models.ModuleCounts{Checkins: 1, Checkouts: 1, Inside: 0}, snapshot.Counts[models.ModuleStudent])
	assert.Equal(t, []models.PurposeCounts{{PurposeName: "Medical", Checkins: 1, Checkouts: 1}}, snapshot.Breakdowns[models.ModuleStudent])

	result := Validate(snapshot.Counts, snapshot.Breakdowns)
	assert.True(t, result.IsValid)
	assert.Equal(t, models.ModuleCounts{Checkins: 1, Checkouts: 1}, result.Totals.Grand)

	expectCommit(f.mock)
	next, err := stats.DailyCounts(ctx, "tenant-1", date.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, models.ModuleCounts{}, next[models.ModuleStudent])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
