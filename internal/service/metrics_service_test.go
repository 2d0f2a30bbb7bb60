package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-visit-api/internal/models"
)

func TestMetricsServiceCounters(t *testing.T) {
	metrics := NewMetricsService()

	metrics.RecordTransition(models.CategoryStudent, actionDepart, "ok")
	metrics.RecordTransition(models.CategoryStudent, actionDepart, "ALREADY_DEPARTED")
	metrics.RecordDiscrepancies([]models.Discrepancy{{Module: models.ModuleBus, Kind: models.DiscrepancyInside}})
	metrics.ObserveReportBuild("ok", 20*time.Millisecond)
	metrics.ObserveDBQuery("history_category_counts", 4*time.Millisecond)
	metrics.ObserveHTTPRequest(http.MethodGet, "/healthz", http.StatusOK, time.Millisecond)

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(2), snapshot.TransitionsTotal)
	assert.Equal(t, uint64(1), snapshot.DiscrepanciesTotal)
	assert.Equal(t, uint64(1), snapshot.ReportsBuilt)
	assert.Equal(t, uint64(1), snapshot.RequestsTotal)
	assert.InDelta(t, 4.0, snapshot.AverageDBQueryDurationMs, 0.001)

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["visit_transitions_total"])
	assert.True(t, names["reconciliation_discrepancies_total"])
	assert.True(t, names["daily_report_builds_total"])
}

func TestMetricsHandlerExposesRegistry(t *testing.T) {
	metrics := NewMetricsService()
	metrics.RecordTransition(models.CategoryBus, actionReturn, "ok")

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `visit_transitions_total{action="return",category="BUS",outcome="ok"} 1`))
}

func TestMetricsServiceObservesQueueBacklog(t *testing.T) {
	metrics := NewMetricsService()
	pending := 3
	require.NoError(t, metrics.ObserveQueue("daily-reports", func() int { return pending }))
	assert.Error(t, metrics.ObserveQueue("daily-reports", func() int { return 0 }))

	pending = 5
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `job_queue_pending{queue="daily-reports"} 5`)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var metrics *MetricsService
	metrics.RecordTransition(models.CategoryBus, actionReturn, "ok")
	metrics.RecordDiscrepancies(nil)
	metrics.ObserveReportBuild("ok", 0)
	metrics.RecordCacheOperation(true, 0)
	metrics.ObserveHTTPRequest(http.MethodGet, "/", 500, 0)
	assert.NoError(t, metrics.ObserveQueue("daily-reports", func() int { return 1 }))

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, MetricsSnapshot{}, metrics.Snapshot())
}
