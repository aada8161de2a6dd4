package ratelimit

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	apperrors "github.com/pagewire/pagewire/internal/errors"
)

// maxFloatDelay keeps exponential growth finite before jitter is applied.
const maxFloatDelay = float64(math.MaxInt64 / 4)

// Calculator computes backoff delays and retry decisions. It holds no mutable
// state and is safe for concurrent use as long as its random source is.
type Calculator struct {
	cfg  Config
	rand func() float64
	now  func() time.Time
}

// CalculatorOption configures a Calculator.
type CalculatorOption func(*Calculator)

// WithRand replaces the uniform [0,1) source used for jitter.
func WithRand(fn func() float64) CalculatorOption {
	return func(c *Calculator) {
		if fn != nil {
			c.rand = fn
		}
	}
}

// WithClock replaces the clock used to evaluate reset times.
func WithClock(fn func() time.Time) CalculatorOption {
	return func(c *Calculator) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCalculator returns a calculator for cfg. cfg is expected to be valid.
func NewCalculator(cfg Config, opts ...CalculatorOption) *Calculator {
	c := &Calculator{
		cfg:  cfg,
		rand: rand.Float64,
		now:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Config returns the policy the calculator was built with.
func (c *Calculator) Config() Config {
	return c.cfg
}

// CalculateDelay returns how long to wait before the try after attempt.
//
// An explicit retry-after (when respected) or the suggested delay of a spent
// window is used as is, jittered, and is not clamped to MaxDelay. Otherwise
// the delay is BaseDelay*2^attempt scaled by the strategy multiplier,
// jittered, then clamped to MaxDelay.
func (c *Calculator) CalculateDelay(attempt Attempt, state *State) time.Duration {
	if state != nil {
		if c.cfg.RespectRetryAfter && state.HasRetryAfter() {
			return toDuration(c.jitter(float64(state.RetryAfter())))
		}
		if state.IsRateLimited() {
			suggested := state.SuggestedDelay(c.now())
			if state.HasRetryAfter() && !c.cfg.RespectRetryAfter {
				suggested = state.TimeUntilReset(c.now())
			}
			if suggested > 0 {
				return toDuration(c.jitter(float64(suggested)))
			}
		}
	}

	n := max(attempt.Number, 0)
	delay := float64(c.cfg.BaseDelay) * math.Pow(2, float64(n)) * c.cfg.Strategy.Multiplier()
	if math.IsInf(delay, 0) || delay > maxFloatDelay {
		delay = maxFloatDelay
	}
	delay = c.jitter(delay)
	if limit := float64(c.cfg.MaxDelay); delay > limit {
		delay = limit
	}
	return toDuration(delay)
}

// ShouldRetry decides what follows a failed attempt. It never returns
// DecisionProceed.
func (c *Calculator) ShouldRetry(attempt Attempt, err error, state *State) Decision {
	if attempt.Number > c.cfg.MaxRetries {
		return Reject("maximum retries exceeded")
	}

	kind := apperrors.KindOf(err)
	if !kind.Retryable() {
		return Reject(fmt.Sprintf("non-retryable error: %s", kind))
	}

	delay := c.CalculateDelay(attempt, state)
	budget := c.cfg.RetryBudget()
	if attempt.CumulativeDelay+delay > budget {
		return Reject(fmt.Sprintf("cumulative delay budget exceeded: waited %s, next %s, budget %s",
			attempt.CumulativeDelay, delay.Round(time.Millisecond), budget))
	}

	return Wait(delay, fmt.Sprintf("%s on attempt %d, retrying in %s",
		kind, attempt.Number+1, delay.Round(time.Millisecond)))
}

// jitter perturbs d uniformly within ±d*JitterFactor, floored at zero.
func (c *Calculator) jitter(d float64) float64 {
	factor := c.cfg.JitterFactor
	if factor <= 0 || d <= 0 {
		return math.Max(d, 0)
	}
	offset := (c.rand()*2 - 1) * d * factor
	return math.Max(d+offset, 0)
}

func toDuration(f float64) time.Duration {
	if f <= 0 || math.IsNaN(f) {
		return 0
	}
	if f >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(f)
}
