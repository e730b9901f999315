package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	WebhookEvents       *prometheus.CounterVec
	CheckoutsCreated    *prometheus.CounterVec
	TrialsStarted       prometheus.Counter
	TrialsExpired       prometheus.Counter
	EmployersReconciled prometheus.Counter

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		// Business metrics
		WebhookEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stripe_webhook_events_total",
				Help: "Total number of Stripe webhook events received",
			},
			[]string{"event_type", "outcome"}, // processed, duplicate, ignored, error
		),
		CheckoutsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_sessions_created_total",
				Help: "Total number of checkout sessions created",
			},
			[]string{"plan"}, // starter, pro, student_premium
		),
		TrialsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "student_trials_started_total",
			Help: "Total number of student premium trials started",
		}),
		TrialsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "student_trials_expired_total",
			Help: "Total number of student premium trials expired",
		}),
		EmployersReconciled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "employers_reconciled_total",
			Help: "Total number of employer entitlement reconciliations",
		}),

		// Cache metrics
		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
	}

	return m
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			path := c.Path() // Use route pattern, not actual path

			err := next(c)

			status := c.Response().Status
			duration := time.Since(start).Seconds()

			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, strconv.Itoa(status)).Observe(duration)

			return err
		}
	}
}

// RecordWebhookEvent increments the webhook events counter
func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	m.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordCheckoutCreated increments the checkout sessions counter
func (m *Metrics) RecordCheckoutCreated(plan string) {
	m.CheckoutsCreated.WithLabelValues(plan).Inc()
}

// RecordTrialStarted increments the trials started counter
func (m *Metrics) RecordTrialStarted() {
	m.TrialsStarted.Inc()
}

// RecordTrialsExpired adds to the trials expired counter
func (m *Metrics) RecordTrialsExpired(count int64) {
	m.TrialsExpired.Add(float64(count))
}

// RecordEmployersReconciled adds to the reconciliation counter
func (m *Metrics) RecordEmployersReconciled(count int) {
	m.EmployersReconciled.Add(float64(count))
}

// RecordCacheHit increments cache hits counter
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss increments cache misses counter
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}
