package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-visit-api/internal/models"
)

// ActivityRepository aggregates daily visit activity from one storage path.
// A checkin is a departure_time inside the window, a checkout a return_time.
type ActivityRepository struct {
	table  string
	source models.Source
}

// NewHistoryActivityRepository aggregates visit_records.
func NewHistoryActivityRepository() *ActivityRepository {
	return &ActivityRepository{table: "visit_records", source: models.SourceHistory}
}

// NewWalkInActivityRepository aggregates walkin_visits.
func NewWalkInActivityRepository() *ActivityRepository {
	return &ActivityRepository{table: "walkin_visits", source: models.SourceWalkIn}
}

// Source identifies the storage path.
func (r *ActivityRepository) Source() models.Source {
	return r.source
}

// CategoryCounts returns checkins and checkouts per category for [from, to).
// q is usually the snapshot transaction shared with the other path.
func (r *ActivityRepository) CategoryCounts(ctx context.Context, q sqlx.QueryerContext, tenantID string, from, to time.Time) ([]models.CategoryCountRow, error) {
	query := `SELECT category,
	COUNT(*) FILTER (WHERE departure_time >= $2 AND departure_time < $3) AS checkins,
	COUNT(*) FILTER (WHERE return_time >= $2 AND return_time < $3) AS checkouts
FROM ` + r.table + `
WHERE tenant_id = $1 AND is_active
	AND ((departure_time >= $2 AND departure_time < $3) OR (return_time >= $2 AND return_time < $3))
GROUP BY category
ORDER BY category`
	var rows []models.CategoryCountRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, tenantID, from, to); err != nil {
		return nil, fmt.Errorf("%s category counts: %w", r.source, err)
	}
	return rows, nil
}

// PurposeCounts returns checkins and checkouts per purpose for the categories.
// Records without a catalog purpose are grouped under models.OtherPurposeLabel.
func (r *ActivityRepository) PurposeCounts(ctx context.Context, q sqlx.QueryerContext, tenantID string, from, to time.Time, categories []models.Category) ([]models.PurposeCountRow, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, string(c))
	}
	query := `SELECT CASE WHEN purpose_id IS NULL THEN $4 ELSE purpose_name END AS purpose_name,
	COUNT(*) FILTER (WHERE departure_time >= $2 AND departure_time < $3) AS checkins,
	COUNT(*) FILTER (WHERE return_time >= $2 AND return_time < $3) AS checkouts
FROM ` + r.table + `
WHERE tenant_id = $1 AND is_active AND category = ANY($5)
	AND ((departure_time >= $2 AND departure_time < $3) OR (return_time >= $2 AND return_time < $3))
GROUP BY 1
ORDER BY 1`
	var rows []models.PurposeCountRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, tenantID, from, to, models.OtherPurposeLabel, pq.Array(names)); err != nil {
		return nil, fmt.Errorf("%s purpose counts: %w", r.source, err)
	}
	return rows, nil
}
