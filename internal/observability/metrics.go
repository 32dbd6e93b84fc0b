package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route", "status"},
	)

	// Defense metrics
	CSRFFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_csrf_failures_total",
			Help: "Requests rejected by CSRF verification",
		},
	)

	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_login_attempts_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"},
	)

	ThrottleBlocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_login_throttle_blocks_total",
			Help: "Login checks refused because the identity is locked out",
		},
	)

	RateLimitRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	StoreFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_store_failures_total",
			Help: "Security store errors by component",
		},
		[]string{"component"},
	)

	EventsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_events_recorded_total",
			Help: "Security events by type and persistence result",
		},
		[]string{"event_type", "persisted"},
	)

	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_alerts_created_total",
			Help: "Security alerts raised by check kind and severity",
		},
		[]string{"check_kind", "severity"},
	)

	AlertDispatchFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_alert_dispatch_failures_total",
			Help: "Alert notifications that could not be delivered to a recipient",
		},
	)

	ThreatScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "security_threat_score",
			Help: "Most recent threat score (0-9)",
		},
	)
)
