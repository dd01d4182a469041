// Package metrics exposes Prometheus instrumentation for the sync pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync runs
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voltline_sync_runs_total",
			Help: "Completed sync runs by type and recorded status",
		},
		[]string{"type", "status"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voltline_sync_duration_seconds",
			Help:    "Duration of sync runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"type"},
	)

	SyncRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voltline_sync_records_total",
			Help: "Records upserted by entity kind",
		},
		[]string{"kind"},
	)

	SyncRecordErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voltline_sync_record_errors_total",
			Help: "Records that failed to transform or upsert",
		},
	)

	SyncRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voltline_sync_rejected_total",
			Help: "Sync requests rejected because a run was already in flight",
		},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voltline_sync_last_success_timestamp",
			Help: "Unix timestamp of the last successful sync run",
		},
	)

	// Scheduler
	SchedulerSkippedTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voltline_scheduler_skipped_ticks_total",
			Help: "Scheduled ticks skipped because a run was in flight",
		},
	)

	// Remote API
	RemoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voltline_remote_requests_total",
			Help: "Remote page requests by outcome",
		},
		[]string{"outcome"},
	)

	RemoteRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voltline_remote_retries_total",
			Help: "Remote page requests retried after a network error",
		},
	)

	RemoteBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voltline_remote_circuit_breaker_state",
			Help: "Remote circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Derivation
	EnergyRowsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voltline_energy_usage_rows_written_total",
			Help: "Energy usage rows written by the derivation engine",
		},
	)
)

// RecordSyncRun records the outcome of a completed run.
func RecordSyncRun(syncType, status string, duration time.Duration, errorsCount int) {
	SyncRuns.WithLabelValues(syncType, status).Inc()
	SyncDuration.WithLabelValues(syncType).Observe(duration.Seconds())
	if errorsCount > 0 {
		SyncRecordErrors.Add(float64(errorsCount))
	}
	if status == "success" {
		SyncLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordRecords adds upserted record counts per entity kind.
func RecordRecords(counts map[string]int) {
	for kind, n := range counts {
		if n > 0 {
			SyncRecords.WithLabelValues(kind).Add(float64(n))
		}
	}
}
