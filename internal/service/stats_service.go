package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-visit-api/internal/models"
	appErrors "github.com/noah-isme/sma-visit-api/pkg/errors"
)

// activitySource aggregates daily activity from one storage path.
type activitySource interface {
	Source() models.Source
	CategoryCounts(ctx context.Context, q sqlx.QueryerContext, tenantID string, from, to time.Time) ([]models.CategoryCountRow, error)
	PurposeCounts(ctx context.Context, q sqlx.QueryerContext, tenantID string, from, to time.Time, categories []models.Category) ([]models.PurposeCountRow, error)
}

var snapshotTxOptions = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// StatsService merges daily counts of both storage paths into per-module
// statistics. All reads of one call share a single repeatable-read snapshot.
type StatsService struct {
	db      txProvider
	sources []activitySource
	clock   TenantClock
	metrics *MetricsService
	logger  *zap.Logger
}

// NewStatsService constructs the aggregator over sources.
func NewStatsService(db txProvider, clock TenantClock, metrics *MetricsService, logger *zap.Logger, sources ...activitySource) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{db: db, sources: sources, clock: clock, metrics: metrics, logger: logger}
}

// DailyCounts returns checkins, checkouts and inside per module for the tenant-local date.
func (s *StatsService) DailyCounts(ctx context.Context, tenantID string, date time.Time) (map[models.Module]models.ModuleCounts, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "tenant is required")
	}
	from, to := DayBounds(date, s.clock.Location(tenantID))
	var counts map[models.Module]models.ModuleCounts
	err := withTx(ctx, s.db, snapshotTxOptions, func(tx *sqlx.Tx) error {
		var err error
		counts, err = s.counts(ctx, tx, tenantID, from, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// PurposeBreakdown returns per-purpose counts of one module sorted by purpose name.
func (s *StatsService) PurposeBreakdown(ctx context.Context, tenantID string, date time.Time, module models.Module) ([]models.PurposeCounts, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "tenant is required")
	}
	if module.ID() == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown module %q", module))
	}
	from, to := DayBounds(date, s.clock.Location(tenantID))
	var breakdown []models.PurposeCounts
	err := withTx(ctx, s.db, snapshotTxOptions, func(tx *sqlx.Tx) error {
		var err error
		breakdown, err = s.breakdown(ctx, tx, tenantID, from, to, module)
		return err
	})
	if err != nil {
		return nil, err
	}
	return breakdown, nil
}

// Snapshot reads counts and every module breakdown in one consistent snapshot.
func (s *StatsService) Snapshot(ctx context.Context, tenantID string, date time.Time) (*models.StatsSnapshot, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "tenant is required")
	}
	from, to := DayBounds(date, s.clock.Location(tenantID))
	snapshot := &models.StatsSnapshot{
		TenantID:   tenantID,
		Date:       from,
		Breakdowns: make(map[models.Module][]models.PurposeCounts, len(models.Modules())),
	}
	err := withTx(ctx, s.db, snapshotTxOptions, func(tx *sqlx.Tx) error {
		snapshot.TakenAt = s.clock.Now()
		counts, err := s.counts(ctx, tx, tenantID, from, to)
		if err != nil {
			return err
		}
		snapshot.Counts = counts
		for _, module := range models.Modules() {
			breakdown, err := s.breakdown(ctx, tx, tenantID, from, to, module)
			if err != nil {
				return err
			}
			snapshot.Breakdowns[module] = breakdown
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *StatsService) counts(ctx context.Context, q sqlx.QueryerContext, tenantID string, from, to time.Time) (map[models.Module]models.ModuleCounts, error) {
	counts := make(map[models.Module]models.ModuleCounts, len(models.Modules()))
	for _, module := range models.Modules() {
		counts[module] = models.ModuleCounts{}
	}
	for _, source := range s.sources {
		start := time.Now()
		rows, err := source.CategoryCounts(ctx, q, tenantID, from, to)
		s.metrics.ObserveDBQuery(string(source.Source())+"_category_counts", time.Since(start))
		if err != nil {
			return nil, appErrors.Storage(err, "failed to aggregate daily counts")
		}
		for _, row := range rows {
			module := row.Category.Module()
			if module == "" {
				s.logger.Warn("skipping unknown category", zap.String("tenant_id", tenantID), zap.String("category", string(row.Category)), zap.String("source", string(source.Source())))
				continue
			}
			current := counts[module]
			current.Checkins += row.Checkins
			current.Checkouts += row.Checkouts
			counts[module] = current
		}
	}
	for module, c := range counts {
		c.Inside = c.Checkins - c.Checkouts
		counts[module] = c
	}
	return counts, nil
}

func (s *StatsService) breakdown(ctx context.Context, q sqlx.QueryerContext, tenantID string, from, to time.Time, module models.Module) ([]models.PurposeCounts, error) {
	merged := make(map[string]*models.PurposeCounts)
	for _, source := range s.sources {
		start := time.Now()
		rows, err := source.PurposeCounts(ctx, q, tenantID, from, to, module.Categories())
		s.metrics.ObserveDBQuery(string(source.Source())+"_purpose_counts", time.Since(start))
		if err != nil {
			return nil, appErrors.Storage(err, "failed to aggregate purpose breakdown")
		}
		for _, row := range rows {
			entry, ok := merged[row.PurposeName]
			if !ok {
				entry = &models.PurposeCounts{PurposeName: row.PurposeName}
				merged[row.PurposeName] = entry
			}
			entry.Checkins += row.Checkins
			entry.Checkouts += row.Checkouts
		}
	}

	result := make([]models.PurposeCounts, 0, len(merged))
	for _, entry := range merged {
		entry.Inside = clampInside(entry.Checkins, entry.Checkouts)
		result = append(result, *entry)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PurposeName < result[j].PurposeName
	})
	return result, nil
}

func clampInside(checkins, checkouts int) int {
	if inside := checkins - checkouts; inside > 0 {
		return inside
	}
	return 0
}
