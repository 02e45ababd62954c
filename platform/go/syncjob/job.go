// Package syncjob runs the recurring background refresh that pulls the
// latest upstream snapshots for every active tenant and persists them.
package syncjob

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	copilot "github.com/cw-konishi/copilot-metric-saver/domains/copilot/be/service"
	tenants "github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/service"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/metrics"
)

// ErrRunInProgress is returned by RunOnce when a previous run has not
// finished yet. Runs never overlap.
var ErrRunInProgress = errors.New("sync run already in progress")

// Config controls the job cadence and tenant selection.
type Config struct {
	// Interval between run starts. The first run fires immediately.
	Interval time.Duration
	// CollectTeamData includes team-scoped tenants in the run. When false
	// only organization- and enterprise-wide tenants are refreshed.
	CollectTeamData bool
}

// Job refreshes all active tenants on a fixed interval. A run iterates
// tenants and data kinds independently, so one failing tenant or kind
// never blocks the rest of the run.
type Job struct {
	registry *tenants.Registry
	factory  *copilot.Factory
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.SyncMetrics

	running atomic.Bool
}

// New constructs a Job instance.
func New(registry *tenants.Registry, factory *copilot.Factory, cfg Config, logger *zap.Logger, m *metrics.SyncMetrics) *Job {
	if registry == nil {
		panic("tenant registry is required")
	}
	if factory == nil {
		panic("data service factory is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 12 * time.Hour
	}
	return &Job{registry: registry, factory: factory, cfg: cfg, logger: logger, metrics: m}
}

// Run executes an immediate refresh and then repeats on the configured
// interval until the context is canceled.
func (j *Job) Run(ctx context.Context) {
	j.runAndLog(ctx)

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runAndLog(ctx)
		}
	}
}

func (j *Job) runAndLog(ctx context.Context) {
	report, err := j.RunOnce(ctx)
	if err != nil {
		j.logger.Error("sync run failed", zap.Error(err))
		return
	}
	j.logger.Info("sync run completed",
		zap.Int("tenants", len(report.Tenants)),
		zap.Int("failures", report.Failures()),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
}

// RunOnce performs a single refresh pass over the active tenants. It returns
// ErrRunInProgress when another run is still going; a failure to list the
// tenants aborts the run. Per-tenant failures are recorded in the report,
// not returned.
func (j *Job) RunOnce(ctx context.Context) (Report, error) {
	if !j.running.CompareAndSwap(false, true) {
		if j.metrics != nil {
			j.metrics.RunsTotal.WithLabelValues("skipped").Inc()
		}
		return Report{}, ErrRunInProgress
	}
	defer j.running.Store(false)

	report := Report{StartedAt: time.Now()}

	active, err := j.registry.ListActive(ctx)
	if err != nil {
		if j.metrics != nil {
			j.metrics.RunsTotal.WithLabelValues("aborted").Inc()
		}
		return Report{}, fmt.Errorf("list active tenants: %w", err)
	}

	for _, tenant := range active {
		if tenant.TeamSlug != "" && !j.cfg.CollectTeamData {
			continue
		}
		report.Tenants = append(report.Tenants, j.syncTenant(ctx, tenant))
	}

	report.FinishedAt = time.Now()
	if j.metrics != nil {
		j.metrics.RunsTotal.WithLabelValues("completed").Inc()
		j.metrics.LastRunUnix.Set(float64(report.FinishedAt.Unix()))
		j.metrics.TenantsInRun.Set(float64(len(report.Tenants)))
	}
	return report, nil
}

func (j *Job) syncTenant(ctx context.Context, tenant tenants.Tenant) TenantOutcome {
	outcome := TenantOutcome{Tenant: tenant.Key()}
	logger := j.logger.With(zap.String("tenant", tenant.Key()))

	saves := []struct {
		kind string
		save func(context.Context) (bool, error)
	}{
		{copilot.KindUsage, j.factory.UsageService(tenant).Save},
		{copilot.KindSeats, j.factory.SeatService(tenant).Save},
		{copilot.KindMetrics, j.factory.MetricsService(tenant).Save},
	}

	for _, s := range saves {
		saved, err := s.save(ctx)
		outcome.Kinds = append(outcome.Kinds, KindOutcome{Kind: s.kind, Saved: saved, Err: err})
		switch {
		case err != nil:
			logger.Warn("tenant sync failed", zap.String("kind", s.kind), zap.Error(err))
			j.countSave(s.kind, "failed")
		case !saved:
			logger.Debug("upstream returned no data", zap.String("kind", s.kind))
			j.countSave(s.kind, "empty")
		default:
			j.countSave(s.kind, "saved")
		}
	}
	return outcome
}

func (j *Job) countSave(kind, status string) {
	if j.metrics != nil {
		j.metrics.SavesTotal.WithLabelValues(kind, status).Inc()
	}
}
