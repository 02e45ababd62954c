package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SyncMetrics holds the Prometheus metrics published by the sync job.
type SyncMetrics struct {
	RunsTotal    *prometheus.CounterVec
	SavesTotal   *prometheus.CounterVec
	LastRunUnix  prometheus.Gauge
	TenantsInRun prometheus.Gauge
}

// NewSyncMetrics initializes and registers the sync job metrics.
func NewSyncMetrics() *SyncMetrics {
	return &SyncMetrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copilot_saver",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync runs by outcome.",
		}, []string{"outcome"}), // outcome: completed, aborted, skipped
		SavesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copilot_saver",
			Subsystem: "sync",
			Name:      "saves_total",
			Help:      "Total number of per-tenant save attempts by data kind and status.",
		}, []string{"kind", "status"}), // status: saved, empty, failed
		LastRunUnix: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "copilot_saver",
			Subsystem: "sync",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp of the last completed sync run.",
		}),
		TenantsInRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "copilot_saver",
			Subsystem: "sync",
			Name:      "tenants_in_run",
			Help:      "Number of active tenants processed by the last sync run.",
		}),
	}
}
