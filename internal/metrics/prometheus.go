package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Order submission outcomes
const (
	OutcomeCreated       = "created"
	OutcomeQueued        = "queued"
	OutcomeRejected      = "rejected"
	OutcomeHeaderFailed  = "header_failed"
	OutcomeLinesFailed   = "lines_failed"
	OutcomeCompensated   = "compensated"
	OutcomeValid         = "valid"
	OutcomeInvalid       = "invalid"
	OutcomeError         = "error"
	OutcomeNotifyDropped = "dropped"
	OutcomeNotifySent    = "sent"
)

var (
	// RequestsTotal tracks total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablepos_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration tracks HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tablepos_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// OrdersTotal tracks order submissions by outcome
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablepos_orders_total",
			Help: "Order submissions by outcome",
		},
		[]string{"outcome"},
	)

	// VerificationAttempts tracks slip verification calls per provider
	VerificationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablepos_verification_attempts_total",
			Help: "Payment slip verification attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// CircuitBreakerState tracks circuit breaker state (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tablepos_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"provider"},
	)

	// OfflineQueueSize is the number of submissions waiting for replay
	OfflineQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tablepos_offline_queue_size",
			Help: "Number of order submissions buffered while offline",
		},
	)

	// SyncItemsTotal tracks replayed submissions by outcome
	SyncItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablepos_sync_items_total",
			Help: "Offline submissions replayed, by outcome",
		},
		[]string{"outcome"},
	)

	// SyncPassesTotal counts drain passes, including skipped ones
	SyncPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablepos_sync_passes_total",
			Help: "Offline queue drain passes",
		},
		[]string{"result"},
	)

	// Online is 1 while the backend is reachable
	Online = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tablepos_online",
			Help: "Whether the order backend is reachable (1=online, 0=offline)",
		},
	)

	// NotificationsTotal tracks order-placed notifications by sink and outcome
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablepos_notifications_total",
			Help: "Order placed notifications by sink and outcome",
		},
		[]string{"sink", "outcome"},
	)
)

// PrometheusMiddleware creates a Gin middleware for automatic metrics collection
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		RequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
