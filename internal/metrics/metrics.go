package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandpay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bandpay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ChargesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandpay_charges_total",
			Help: "Total number of charge commits by outcome",
		},
		[]string{"status"},
	)

	TopUpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bandpay_topups_total",
			Help: "Total number of wallet top-ups",
		},
	)

	DeclinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandpay_declines_total",
			Help: "Total number of declined transactions by reason",
		},
		[]string{"reason"},
	)

	ReplayIncidentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bandpay_replay_incidents_total",
			Help: "Total number of counter replay incidents",
		},
	)

	ResyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandpay_resyncs_total",
			Help: "Total number of wristband counter resyncs",
		},
		[]string{"kind"},
	)

	RefundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bandpay_refunds_total",
			Help: "Total number of refunds",
		},
	)

	IncidentQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bandpay_incident_queue_length",
			Help: "Current length of the incident queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordCharge(status string) {
	ChargesTotal.WithLabelValues(status).Inc()
}

func RecordDecline(reason string) {
	DeclinesTotal.WithLabelValues(reason).Inc()
}

func RecordResync(kind string) {
	ResyncsTotal.WithLabelValues(kind).Inc()
}
