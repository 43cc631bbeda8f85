package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Milestone transitions, labeled by action and resulting status.
	TransitionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestone_transition_count",
			Help: "Total number of committed milestone transitions",
		},
		[]string{"action", "new_status"},
	)

	// Rejected transition requests, labeled by error kind.
	TransitionRejectedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestone_transition_rejected_count",
			Help: "Total number of rejected milestone transition requests",
		},
		[]string{"action", "reason"},
	)

	// Escrow ledger call latency (milliseconds).
	EscrowCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escrow_call_latency_ms",
			Help:    "Escrow ledger call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"operation", "status"},
	)

	// HTTP request latency (seconds).
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// MQ consume latency (milliseconds).
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// Notifications fanned out, labeled by audience role.
	NotificationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_count",
			Help: "Total number of notifications recorded",
		},
		[]string{"recipient_role", "status"},
	)
)

func RecordTransition(action, newStatus string) {
	TransitionCount.WithLabelValues(action, newStatus).Inc()
}

func RecordTransitionRejected(action, reason string) {
	TransitionRejectedCount.WithLabelValues(action, reason).Inc()
}

func RecordEscrowCallLatency(operation, status string, duration time.Duration) {
	EscrowCallLatency.WithLabelValues(operation, status).Observe(float64(duration.Milliseconds()))
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func IncrementNotification(recipientRole, status string) {
	NotificationCount.WithLabelValues(recipientRole, status).Inc()
}
