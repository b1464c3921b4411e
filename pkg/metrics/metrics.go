package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records login attempts by result (success|failure|pending_approval).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campuslink_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// AdmissionOutcomes counts how pending login requests were settled (approved|rejected|expired).
	AdmissionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campuslink_admission_outcomes_total",
			Help: "Total number of settled login approval requests",
		},
		[]string{"outcome", "delivered"},
	)

	// AdmissionPending tracks login requests waiting for an operator decision.
	AdmissionPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campuslink_admission_pending",
			Help: "Number of login requests awaiting approval",
		},
	)

	// RealtimeConnections tracks open websocket connections.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campuslink_realtime_connections",
			Help: "Number of open realtime connections",
		},
	)

	// RealtimeDropped counts clients disconnected because their send buffer was full.
	RealtimeDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campuslink_realtime_dropped_clients_total",
			Help: "Total number of realtime clients dropped for backpressure",
		},
	)

	// NotificationsCreated counts persisted notifications by category.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campuslink_notifications_created_total",
			Help: "Total number of persisted notifications",
		},
		[]string{"category"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campuslink_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
