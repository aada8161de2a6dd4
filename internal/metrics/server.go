package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Server records traffic served by the mock API.
type Server struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseBytes   *prometheus.HistogramVec
	ErrorsTotal     *prometheus.CounterVec
	ThrottledTotal  *prometheus.CounterVec
	PanicsTotal     prometheus.Counter
}

// NewServer creates and registers the server collectors with reg.
func NewServer(reg prometheus.Registerer) *Server {
	return &Server{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "http_requests_total",
				Help:      "Requests served by method, route and status",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "http_request_duration_seconds",
				Help:      "Request handling time",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		ResponseBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "http_response_size_bytes",
				Help:      "Response body size",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
			},
			[]string{"method", "endpoint"},
		),
		ErrorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "http_errors_total",
				Help:      "Error responses by class",
			},
			[]string{"method", "endpoint", "status", "error_type"},
		),
		ThrottledTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "throttled_total",
				Help:      "Requests rejected with 429 by the throttle",
			},
			[]string{"reason"},
		),
		PanicsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "panics_total",
				Help:      "Handler panics recovered",
			},
		),
	}
}
