package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pagewire/pagewire/internal/core/ratelimit"
	apperrors "github.com/pagewire/pagewire/internal/errors"
	"github.com/pagewire/pagewire/internal/metrics"
	"github.com/pagewire/pagewire/internal/observability"
)

// Throttle reasons, used as the reason label of throttled_total.
const (
	ReasonEveryNth = "every_nth"
	ReasonWindow   = "window"
)

// ThrottleConfig shapes the throttle. Every answers every Nth request with
// 429; Limit requests are allowed per Window. Zero disables either rule.
type ThrottleConfig struct {
	Every      int
	RetryAfter time.Duration
	Limit      int
	Window     time.Duration
	Now        func() time.Time
}

// Throttle simulates API rate limiting. It is safe for concurrent use.
type Throttle struct {
	cfg     ThrottleConfig
	metrics *metrics.Server

	mu          sync.Mutex
	total       int64
	windowStart time.Time
	used        int
}

type throttleDecision struct {
	reason     string
	retryAfter time.Duration
	limit      int
	remaining  int
	reset      time.Time
}

func NewThrottle(cfg ThrottleConfig, m *metrics.Server) *Throttle {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Throttle{cfg: cfg, metrics: m}
}

func (t *Throttle) decide() throttleDecision {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.cfg.Now()
	if t.windowStart.IsZero() || !now.Before(t.windowStart.Add(t.cfg.Window)) {
		t.windowStart = now
		t.used = 0
	}
	t.total++

	d := throttleDecision{limit: t.cfg.Limit, reset: t.windowStart.Add(t.cfg.Window)}
	switch {
	case t.cfg.Every > 0 && t.total%int64(t.cfg.Every) == 0:
		d.reason = ReasonEveryNth
		d.retryAfter = t.cfg.RetryAfter
	case t.cfg.Limit > 0 && t.used >= t.cfg.Limit:
		d.reason = ReasonWindow
		d.retryAfter = d.reset.Sub(now)
	default:
		t.used++
	}
	if t.cfg.Limit > 0 {
		d.remaining = max(t.cfg.Limit-t.used, 0)
	}
	return d
}

// Middleware sets the rate-limit headers on every response and rejects
// throttled requests with 429 and Retry-After.
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := t.decide()

		if d.limit > 0 {
			w.Header().Set(ratelimit.HeaderLimit, strconv.Itoa(d.limit))
			w.Header().Set(ratelimit.HeaderRemaining, strconv.Itoa(d.remaining))
			w.Header().Set(ratelimit.HeaderReset, strconv.FormatInt(d.reset.Unix(), 10))
		}
		if d.reason == "" {
			next.ServeHTTP(w, r)
			return
		}

		seconds := int(math.Ceil(d.retryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set(ratelimit.HeaderRetryAfter, strconv.Itoa(seconds))

		if t.metrics != nil {
			t.metrics.ThrottledTotal.WithLabelValues(d.reason).Inc()
		}
		requestID := GetRequestID(r.Context())
		if observability.ServerLogger != nil {
			observability.ServerLogger.Debug("request throttled",
				zap.String("reason", d.reason),
				zap.Int("retry_after", seconds),
				zap.String("request_id", requestID),
			)
		}
		apperrors.RespondWithEnvelope(w, requestID, apperrors.NewRateLimitedError("rate limited, retry after "+strconv.Itoa(seconds)+"s"))
	})
}
