package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pagewire/pagewire/internal/core/ratelimit"
	apperrors "github.com/pagewire/pagewire/internal/errors"
)

func TestClientRecordsExchanges(t *testing.T) {
	m := NewClient(prometheus.NewRegistry())

	m.RequestCompleted("users.list", nil, 20*time.Millisecond)
	m.RequestCompleted("users.list", &apperrors.APIError{Kind: apperrors.KindThrottled, Status: 429}, time.Millisecond)
	m.RequestCompleted("users.list", errors.New("boom"), time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("users.list", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("users.list", "throttled")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("users.list", "unknown")))
}

func TestClientRecordsRetriesAndPages(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewClient(reg)

	m.RetryScheduled(apperrors.KindThrottled, 250*time.Millisecond)
	m.RetryScheduled(apperrors.KindThrottled, 500*time.Millisecond)
	m.RetryScheduled(apperrors.KindServerFault, time.Second)
	m.RetriesExhausted("maximum retries exceeded")
	m.RetriesExhausted("cumulative delay budget exceeded: 91s > 90s")
	m.PageFetched(100)
	m.PageFetched(7)
	m.RateLimitObserved(ratelimit.State{Limit: 100, Remaining: 42})

	require.Equal(t, 2.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("throttled")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("server_fault")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RetriesExhaustedTotal.WithLabelValues("max_retries")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RetriesExhaustedTotal.WithLabelValues("budget")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.PagesFetchedTotal))
	require.Equal(t, 107.0, testutil.ToFloat64(m.ItemsFetchedTotal))
	require.Equal(t, 42.0, testutil.ToFloat64(m.RateLimitRemaining))
	require.Equal(t, 100.0, testutil.ToFloat64(m.RateLimitLimit))
	require.Equal(t, 1, testutil.CollectAndCount(m.BackoffSeconds))
}

func TestReasonLabel(t *testing.T) {
	tests := map[string]string{
		"maximum retries exceeded":                "max_retries",
		"cumulative delay budget exceeded: 1s>0s": "budget",
		"non-retryable error: request_rejected":   "non_retryable",
		"something else":                          "other",
	}
	for reason, want := range tests {
		require.Equal(t, want, reasonLabel(reason), reason)
	}
}

func TestServerRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewServer(reg)
	s.ThrottledTotal.WithLabelValues("every_nth").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
	require.Equal(t, 1.0, testutil.ToFloat64(s.ThrottledTotal.WithLabelValues("every_nth")))

	require.Panics(t, func() { NewServer(reg) })
}
