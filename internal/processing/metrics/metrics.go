package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackendCallsTotal tracks remote calls per backend and outcome
	BackendCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verdict_backend_calls_total",
			Help: "Total number of backend calls by result class",
		},
		[]string{"backend", "result"},
	)

	// BackendLatency tracks backend call latency
	BackendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verdict_backend_latency_seconds",
			Help:    "Backend call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// CooldownsReported tracks rate-limit hits recorded into the registry
	CooldownsReported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verdict_cooldowns_reported_total",
			Help: "Total number of rate-limit cooldowns recorded",
		},
		[]string{"backend"},
	)

	// ActiveCooldowns is the number of backends currently cooling down
	ActiveCooldowns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "verdict_active_cooldowns",
			Help: "Number of backends with an unexpired cooldown",
		},
	)

	// FallbackPasses counts full passes over a chain
	FallbackPasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "verdict_fallback_passes_total",
			Help: "Total number of passes over the backend chain",
		},
	)

	// FallbackBackoffSeconds observes how long the executor slept between passes
	FallbackBackoffSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verdict_fallback_backoff_seconds",
			Help:    "Backoff duration between chain passes",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"reason"},
	)

	// ChecksCompleted tracks finished checks by name and final status
	ChecksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verdict_checks_completed_total",
			Help: "Total number of checks that reached a final status",
		},
		[]string{"kind", "check", "status"},
	)

	// ChecksInFlight is the number of running check goroutines
	ChecksInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "verdict_checks_in_flight",
			Help: "Number of checks currently running",
		},
		[]string{"kind"},
	)

	// DBConnectionPoolUsage tracks the percentage of used DB connections
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "verdict_db_connection_pool_usage_percent",
			Help: "Percentage of database connections in use",
		},
	)
)
