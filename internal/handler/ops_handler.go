package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-visit-api/internal/service"
	appErrors "github.com/noah-isme/sma-visit-api/pkg/errors"
	"github.com/noah-isme/sma-visit-api/pkg/response"
)

// ReadinessCheck is one readiness dependency.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type reportEnqueuer interface {
	Enqueue(tenantID string, date time.Time) (string, error)
}

// OpsHandler serves the operational endpoints of the visit gateway.
type OpsHandler struct {
	metrics *service.MetricsService
	reports reportEnqueuer
	clock   service.TenantClock
	checks  []ReadinessCheck
	timeout time.Duration
}

// NewOpsHandler constructs the handler. reports may be nil when the queue is disabled.
func NewOpsHandler(metrics *service.MetricsService, reports reportEnqueuer, clock service.TenantClock, checks ...ReadinessCheck) *OpsHandler {
	return &OpsHandler{metrics: metrics, reports: reports, clock: clock, checks: checks, timeout: 2 * time.Second}
}

// Register mounts the ops routes on r.
func (h *OpsHandler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", h.Prometheus)
	r.POST("/ops/reports/:tenant", h.EnqueueReport)
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *OpsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health reports liveness with a counter summary.
func (h *OpsHandler) Health(c *gin.Context) {
	response.JSON(c, http.StatusOK, gin.H{"status": "ok", "metrics": h.metrics.Snapshot()})
}

// Ready checks every dependency and fails on the first unavailable one.
func (h *OpsHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			response.Error(c, appErrors.Storage(err, check.Name+" unavailable"))
			return
		}
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "ready"})
}

// EnqueueReport schedules an on-demand daily report. The date query defaults
// to the previous tenant-local day.
func (h *OpsHandler) EnqueueReport(c *gin.Context) {
	if h.reports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "report queue disabled"))
		return
	}
	tenantID := strings.TrimSpace(c.Param("tenant"))
	date := service.PreviousDay(h.clock, tenantID)
	if raw := c.Query("date"); raw != "" {
		parsed, err := service.ParseDate(raw, h.clock.Location(tenantID))
		if err != nil {
			response.Error(c, err)
			return
		}
		date = parsed
	}
	jobID, err := h.reports.Enqueue(tenantID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"job_id": jobID, "tenant_id": tenantID, "date": date.Format("2006-01-02")})
}
