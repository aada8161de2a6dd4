// Package ratelimit implements the adaptive retry core: rate-limit state
// parsed from response headers, the backoff calculator, the retry executor and
// an optional tracker that shares rate-limit state across calls.
package ratelimit

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Rate limit response headers. Lookups go through http.Header.Get, so matching
// is case-insensitive.
const (
	HeaderLimit      = "X-Ratelimit-Limit"
	HeaderRemaining  = "X-Ratelimit-Remaining"
	HeaderReset      = "X-Ratelimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

const approachingLimitRatio = 0.2

// State is an immutable snapshot of the rate-limit signals attached to one
// HTTP exchange.
type State struct {
	Limit             int
	Remaining         int
	ResetUnix         int64
	RetryAfterSeconds *int
}

// FromHeaders extracts rate-limit state from response headers. It reports false
// when any of limit, remaining or reset is missing or malformed; a partially
// populated state is never returned.
func FromHeaders(h http.Header) (State, bool) {
	return fromHeadersAt(h, time.Now())
}

func fromHeadersAt(h http.Header, now time.Time) (State, bool) {
	if h == nil {
		return State{}, false
	}

	limit, ok := headerInt(h, HeaderLimit)
	if !ok || limit <= 0 {
		return State{}, false
	}
	remaining, ok := headerInt(h, HeaderRemaining)
	if !ok || remaining < 0 {
		return State{}, false
	}
	reset, ok := headerInt64(h, HeaderReset)
	if !ok || reset < 0 {
		return State{}, false
	}

	state := State{
		Limit:     limit,
		Remaining: remaining,
		ResetUnix: reset,
	}
	if seconds, ok := parseRetryAfter(h.Get(HeaderRetryAfter), now); ok {
		state.RetryAfterSeconds = &seconds
	}
	return state, true
}

// FromError extracts rate-limit state from a failure that carries response
// headers. It returns nil when none is available.
func FromError(err error) *State {
	var carrier interface{ RateLimitHeaders() http.Header }
	if !errors.As(err, &carrier) {
		return nil
	}
	state, ok := FromHeaders(carrier.RateLimitHeaders())
	if !ok {
		return nil
	}
	return &state
}

// ResetTime returns the window reset as a time.
func (s State) ResetTime() time.Time {
	return time.Unix(s.ResetUnix, 0)
}

// TimeUntilReset is the time left until the window resets, never negative.
func (s State) TimeUntilReset(now time.Time) time.Duration {
	d := s.ResetTime().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// IsRateLimited reports whether the window budget is spent.
func (s State) IsRateLimited() bool {
	return s.Remaining <= 0
}

// IsApproachingLimit reports whether less than a fifth of the window budget
// is left.
func (s State) IsApproachingLimit() bool {
	if s.Limit <= 0 {
		return false
	}
	return float64(s.Remaining)/float64(s.Limit) < approachingLimitRatio
}

// HasRetryAfter reports whether the server sent an explicit retry-after.
func (s State) HasRetryAfter() bool {
	return s.RetryAfterSeconds != nil
}

// RetryAfter returns the explicit retry-after, or zero.
func (s State) RetryAfter() time.Duration {
	if s.RetryAfterSeconds == nil {
		return 0
	}
	return time.Duration(*s.RetryAfterSeconds) * time.Second
}

// SuggestedDelay is how long the server signals suggest waiting before the
// next request: the explicit retry-after, else the time until reset when the
// budget is spent, else a pro-rated share of it when the budget is nearly
// spent, else zero.
func (s State) SuggestedDelay(now time.Time) time.Duration {
	switch {
	case s.HasRetryAfter():
		return s.RetryAfter()
	case s.IsRateLimited():
		return s.TimeUntilReset(now)
	case s.IsApproachingLimit():
		return s.TimeUntilReset(now) / time.Duration(max(s.Remaining, 1))
	default:
		return 0
	}
}

func headerInt(h http.Header, key string) (int, bool) {
	value, ok := headerInt64(h, key)
	if !ok || value > math.MaxInt32 || value < math.MinInt32 {
		return 0, false
	}
	return int(value), true
}

func headerInt64(h http.Header, key string) (int64, bool) {
	raw := strings.TrimSpace(h.Get(key))
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(raw string, now time.Time) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return seconds, true
	}

	if parsed, err := http.ParseTime(raw); err == nil {
		wait := parsed.Sub(now)
		if wait <= 0 {
			return 0, true
		}
		return int(math.Ceil(wait.Seconds())), true
	}

	return 0, false
}
