// package metrics registers the prometheus collectors exported by the scrobble engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRuns counts sync runs by result (completed, aborted, failed, skipped).
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobblex_sync_runs_total",
			Help: "Total number of sync runs by result",
		},
		[]string{"result"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scrobblex_sync_duration_seconds",
			Help:    "Duration of sync runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	// Deliveries counts delivery attempts by event type and outcome
	// (processed, errored, quarantined, skipped, rate_limited).
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobblex_deliveries_total",
			Help: "Total number of event delivery outcomes",
		},
		[]string{"type", "outcome"},
	)

	Quarantines = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrobblex_quarantines_total",
			Help: "Total number of series quarantined",
		},
	)

	PendingEvents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scrobblex_pending_events",
			Help: "Pending events in the working set of the last sync run",
		},
		[]string{"type"},
	)

	QuotaRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scrobblex_quota_remaining",
			Help: "Last known remaining remote quota per user",
		},
		[]string{"user"},
	)

	// CleanupDeleted counts rows removed by retention cleanup by kind (processed, stale, orphaned).
	CleanupDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobblex_cleanup_deleted_total",
			Help: "Total number of rows removed by retention cleanup",
		},
		[]string{"kind"},
	)

	Alerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobblex_alerts_total",
			Help: "Total number of operator alerts raised",
		},
		[]string{"reason"},
	)

	// JobRetries counts whole-run retries performed by the scheduler.
	JobRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobblex_job_retries_total",
			Help: "Total number of scheduled job retries",
		},
		[]string{"job"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scrobblex_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobblex_circuit_breaker_requests_total",
			Help: "Total requests through the circuit breaker by result (success, failure, rejected)",
		},
		[]string{"name", "result"},
	)
)
