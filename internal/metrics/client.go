// Package metrics holds the Prometheus collectors for the API client and the
// mock API server.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pagewire/pagewire/internal/core/ratelimit"
	apperrors "github.com/pagewire/pagewire/internal/errors"
)

const namespace = "pagewire"

// Client records what the API client does: exchanges, retries, give-ups,
// pages and the last rate-limit budget seen. It satisfies client.Observer.
type Client struct {
	RequestsTotal         *prometheus.CounterVec
	RequestDuration       *prometheus.HistogramVec
	RetriesTotal          *prometheus.CounterVec
	BackoffSeconds        prometheus.Histogram
	RetriesExhaustedTotal *prometheus.CounterVec
	PagesFetchedTotal     prometheus.Counter
	ItemsFetchedTotal     prometheus.Counter
	RateLimitRemaining    prometheus.Gauge
	RateLimitLimit        prometheus.Gauge
}

// NewClient creates and registers the client collectors with reg.
func NewClient(reg prometheus.Registerer) *Client {
	return &Client{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "requests_total",
				Help:      "HTTP exchanges with the API by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "request_duration_seconds",
				Help:      "Duration of single HTTP exchanges",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		RetriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "retries_total",
				Help:      "Retries scheduled by failure kind",
			},
			[]string{"kind"},
		),
		BackoffSeconds: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "backoff_seconds",
				Help:      "Delay waited before each retry",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		RetriesExhaustedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "retries_exhausted_total",
				Help:      "Calls abandoned after retries were refused",
			},
			[]string{"reason"},
		),
		PagesFetchedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "pages_fetched_total",
				Help:      "Pages fetched from paginated endpoints",
			},
		),
		ItemsFetchedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "items_fetched_total",
				Help:      "Results fetched from paginated endpoints",
			},
		),
		RateLimitRemaining: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "rate_limit_remaining",
				Help:      "Requests left in the current window, as last reported",
			},
		),
		RateLimitLimit: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "rate_limit_limit",
				Help:      "Requests allowed per window, as last reported",
			},
		),
	}
}

func (m *Client) RequestCompleted(endpoint string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = apperrors.KindOf(err).String()
	}
	m.RequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Client) RetryScheduled(kind apperrors.Kind, delay time.Duration) {
	m.RetriesTotal.WithLabelValues(kind.String()).Inc()
	m.BackoffSeconds.Observe(delay.Seconds())
}

func (m *Client) RetriesExhausted(reason string) {
	m.RetriesExhaustedTotal.WithLabelValues(reasonLabel(reason)).Inc()
}

func (m *Client) RateLimitObserved(state ratelimit.State) {
	m.RateLimitRemaining.Set(float64(state.Remaining))
	m.RateLimitLimit.Set(float64(state.Limit))
}

func (m *Client) PageFetched(items int) {
	m.PagesFetchedTotal.Inc()
	m.ItemsFetchedTotal.Add(float64(items))
}

// reasonLabel folds free-form reasons into a bounded label set.
func reasonLabel(reason string) string {
	switch {
	case strings.Contains(reason, "retries exceeded"):
		return "max_retries"
	case strings.HasPrefix(reason, "cumulative delay budget"):
		return "budget"
	case strings.HasPrefix(reason, "non-retryable"):
		return "non_retryable"
	default:
		return "other"
	}
}
