package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-visit-api/internal/dto"
)

type dailyRunner interface {
	RunDaily(ctx context.Context, date time.Time) (*dto.RunSummary, error)
}

// Scheduler triggers the daily reconciliation for the previous tenant-local day.
type Scheduler struct {
	cron    *cron.Cron
	runner  dailyRunner
	clock   TenantClock
	timeout time.Duration
	logger  *zap.Logger
}

// NewScheduler registers the daily run on spec, a standard five-field cron expression.
func NewScheduler(runner dailyRunner, clock TenantClock, spec string, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	cronLog := cronLogger{logger: logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(clock.Location("")),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		runner:  runner,
		clock:   clock,
		timeout: timeout,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("register reconciliation schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("reconciliation scheduler started")
}

// Stop waits for a running reconciliation to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("reconciliation still running at shutdown")
	}
}

// RunOnce reconciles the previous day immediately.
func (s *Scheduler) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	date := PreviousDay(s.clock, "")
	if _, err := s.runner.RunDaily(ctx, date); err != nil {
		s.logger.Error("scheduled reconciliation failed", zap.String("date", date.Format(dateLayout)), zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
