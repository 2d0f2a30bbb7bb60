package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-visit-api/internal/dto"
	"github.com/noah-isme/sma-visit-api/internal/models"
	"github.com/noah-isme/sma-visit-api/internal/repository"
	appErrors "github.com/noah-isme/sma-visit-api/pkg/errors"
	"github.com/noah-isme/sma-visit-api/pkg/jobs"
	"github.com/noah-isme/sma-visit-api/pkg/logger"
	"github.com/noah-isme/sma-visit-api/pkg/middleware/requestid"
)

type tenantLister interface {
	ListActive(ctx context.Context) ([]models.Tenant, error)
}

type snapshotReader interface {
	Snapshot(ctx context.Context, tenantID string, date time.Time) (*models.StatsSnapshot, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type reportCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
}

// ReportSink receives validated daily reports. Renderers and mailers live behind it.
type ReportSink interface {
	Deliver(ctx context.Context, report *models.DailyReport) error
}

// LogSink writes a structured summary of each report.
type LogSink struct {
	Logger *zap.Logger
}

// Deliver implements ReportSink.
func (s LogSink) Deliver(ctx context.Context, report *models.DailyReport) error {
	log := logger.FromContext(ctx, s.Logger)
	fields := []zap.Field{
		zap.String("tenant_id", report.TenantID),
		zap.String("date", report.Date.Format(dateLayout)),
		zap.Time("snapshot_at", report.SnapshotAt),
		zap.Int("checkins", report.Totals.Grand.Checkins),
		zap.Int("checkouts", report.Totals.Grand.Checkouts),
		zap.Int("inside", report.Totals.Grand.Inside),
		zap.Int("warnings", len(report.Warnings)),
	}
	for _, module := range models.Modules() {
		counts := report.Totals.Modules[module]
		fields = append(fields, zap.Any(string(module), counts))
	}
	log.Info("daily report", fields...)
	return nil
}

// ReportServiceConfig tunes the report pipeline.
type ReportServiceConfig struct {
	CacheTTL time.Duration
}

// ReportService aggregates, reconciles and delivers daily reports.
type ReportService struct {
	tenants tenantLister
	stats   snapshotReader
	cache   reportCache
	sink    ReportSink
	queue   jobDispatcher
	clock   TenantClock
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ReportServiceConfig
}

// NewReportService constructs the pipeline. A nil sink logs reports.
func NewReportService(tenants tenantLister, stats snapshotReader, cache reportCache, sink ReportSink, clock TenantClock, metrics *MetricsService, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = LogSink{Logger: logger}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	return &ReportService{
		tenants: tenants,
		stats:   stats,
		cache:   cache,
		sink:    sink,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// AttachQueue sets the dispatcher used by Enqueue. The queue's handler is
// usually HandleJob of the same service.
func (s *ReportService) AttachQueue(queue jobDispatcher) {
	s.queue = queue
}

// Build returns the reconciled report of a tenant for the tenant-local date.
func (s *ReportService) Build(ctx context.Context, tenantID string, date time.Time) (*models.DailyReport, error) {
	start := time.Now()
	day, _ := DayBounds(date, s.clock.Location(tenantID))
	key := repository.ReportCacheKey(tenantID, day)
	log := logger.FromContext(ctx, s.logger).With(zap.String("tenant_id", tenantID), zap.String("date", day.Format(dateLayout)))

	var cached models.DailyReport
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		s.metrics.ObserveReportBuild("cached", time.Since(start))
		return &cached, nil
	}

	snapshot, err := s.stats.Snapshot(ctx, tenantID, day)
	if err != nil {
		s.metrics.ObserveReportBuild(appErrors.Code(err), time.Since(start))
		return nil, err
	}
	result := Validate(snapshot.Counts, snapshot.Breakdowns)
	if !result.IsValid {
		s.metrics.RecordDiscrepancies(result.Discrepancies)
		for _, d := range result.Discrepancies {
			log.Warn("statistics discrepancy",
				zap.String("code", appErrors.ErrConsistencyWarning.Code),
				zap.String("module", string(d.Module)),
				zap.String("kind", string(d.Kind)),
				zap.Int("expected", d.Expected),
				zap.Int("actual", d.Actual),
			)
		}
	}

	report := &models.DailyReport{
		TenantID:    tenantID,
		Date:        day,
		GeneratedAt: s.clock.Now(),
		SnapshotAt:  snapshot.TakenAt,
		Totals:      result.Totals,
	}
	if len(result.Discrepancies) > 0 {
		report.Warnings = result.Discrepancies
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, report, s.cfg.CacheTTL)
	}
	s.metrics.ObserveReportBuild("ok", time.Since(start))
	return report, nil
}

// RunDaily builds and delivers the report of every active tenant, one tenant
// at a time. A failing tenant is recorded and skipped.
func (s *ReportService) RunDaily(ctx context.Context, date time.Time) (*dto.RunSummary, error) {
	runID := requestid.FromContext(ctx)
	if runID == "" {
		runID = requestid.Generate()
		ctx = requestid.NewContext(ctx, runID)
	}
	log := logger.FromContext(ctx, s.logger)

	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to list tenants")
	}

	summary := &dto.RunSummary{
		Date:      date,
		StartedAt: s.clock.Now(),
		Succeeded: make([]string, 0, len(tenants)),
	}
	log.Info("daily reconciliation started", zap.String("date", date.Format(dateLayout)), zap.Int("tenants", len(tenants)))
	for _, tenant := range tenants {
		report, err := s.deliver(ctx, tenant.ID, date)
		if err != nil {
			summary.Failed = append(summary.Failed, dto.TenantFailure{TenantID: tenant.ID, Code: appErrors.Code(err), Error: err.Error()})
			log.Error("daily report failed", zap.String("tenant_id", tenant.ID), zap.String("code", appErrors.Code(err)), zap.Error(err))
			continue
		}
		summary.Succeeded = append(summary.Succeeded, tenant.ID)
		summary.Warnings += len(report.Warnings)
	}
	summary.Duration = s.clock.Now().Sub(summary.StartedAt)
	log.Info("daily reconciliation finished",
		zap.Int("succeeded", len(summary.Succeeded)),
		zap.Int("failed", len(summary.Failed)),
		zap.Int("warnings", summary.Warnings),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// Enqueue schedules an on-demand report and returns the job id.
func (s *ReportService) Enqueue(tenantID string, date time.Time) (string, error) {
	if tenantID == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "tenant is required")
	}
	if s.queue == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "report queue not configured")
	}
	job := jobs.Job{ID: uuid.NewString(), TenantID: tenantID, Date: date}
	if err := s.queue.Enqueue(job); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to enqueue report")
	}
	return job.ID, nil
}

// HandleJob processes a queued report. Only retryable failures are returned to the queue.
func (s *ReportService) HandleJob(ctx context.Context, job jobs.Job) error {
	ctx = requestid.NewContext(ctx, job.ID)
	if _, err := s.deliver(ctx, job.TenantID, job.Date); err != nil {
		if appErrors.Retryable(err) {
			return err
		}
		logger.FromContext(ctx, s.logger).Error("report job dropped", zap.String("tenant_id", job.TenantID), zap.String("code", appErrors.Code(err)), zap.Error(err))
	}
	return nil
}

// JobFailed observes jobs that exhausted their retries.
func (s *ReportService) JobFailed(job jobs.Job, err error) {
	s.metrics.ObserveReportBuild("exhausted", 0)
	s.logger.Error("report job exhausted retries",
		zap.String("job_id", job.ID),
		zap.String("tenant_id", job.TenantID),
		zap.Int("attempts", job.Attempt),
		zap.Error(err),
	)
}

func (s *ReportService) deliver(ctx context.Context, tenantID string, date time.Time) (report *models.DailyReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = appErrors.Wrap(fmt.Errorf("panic: %v", r), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "report generation panicked")
		}
	}()
	report, err = s.Build(ctx, tenantID, date)
	if err != nil {
		return nil, err
	}
	if err := s.sink.Deliver(ctx, report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deliver report")
	}
	return report, nil
}
