package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/pagewire/pagewire/internal/errors"
)

func rateHeaders(limit, remaining int, reset int64) http.Header {
	h := http.Header{}
	h.Set("x-ratelimit-limit", strconv.Itoa(limit))
	h.Set("x-ratelimit-remaining", strconv.Itoa(remaining))
	h.Set("x-ratelimit-reset", strconv.FormatInt(reset, 10))
	return h
}

func TestFromHeaders(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	h := rateHeaders(100, 42, now.Add(30*time.Second).Unix())

	state, ok := fromHeadersAt(h, now)
	require.True(t, ok)
	require.Equal(t, 100, state.Limit)
	require.Equal(t, 42, state.Remaining)
	require.Equal(t, now.Add(30*time.Second).Unix(), state.ResetUnix)
	require.False(t, state.HasRetryAfter())
	require.Equal(t, 30*time.Second, state.TimeUntilReset(now))
}

func TestFromHeadersRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("seconds", func(t *testing.T) {
		h := rateHeaders(10, 0, now.Unix())
		h.Set("retry-after", "5")
		state, ok := fromHeadersAt(h, now)
		require.True(t, ok)
		require.True(t, state.HasRetryAfter())
		require.Equal(t, 5*time.Second, state.RetryAfter())
	})

	t.Run("http date rounds up", func(t *testing.T) {
		h := rateHeaders(10, 0, now.Unix())
		h.Set("Retry-After", now.Add(2500*time.Millisecond).Format(http.TimeFormat))
		state, ok := fromHeadersAt(h, now)
		require.True(t, ok)
		// TimeFormat has second precision, so the header says now+2s.
		require.Equal(t, 2*time.Second, state.RetryAfter())
	})

	t.Run("past date is zero", func(t *testing.T) {
		h := rateHeaders(10, 0, now.Unix())
		h.Set("Retry-After", now.Add(-time.Minute).Format(http.TimeFormat))
		state, ok := fromHeadersAt(h, now)
		require.True(t, ok)
		require.True(t, state.HasRetryAfter())
		require.Zero(t, state.RetryAfter())
	})

	t.Run("garbage is ignored", func(t *testing.T) {
		h := rateHeaders(10, 0, now.Unix())
		h.Set("Retry-After", "soon")
		state, ok := fromHeadersAt(h, now)
		require.True(t, ok)
		require.False(t, state.HasRetryAfter())
	})
}

func TestFromHeadersRequiresCoreFields(t *testing.T) {
	now := time.Now()
	for _, missing := range []string{HeaderLimit, HeaderRemaining, HeaderReset} {
		t.Run("missing "+missing, func(t *testing.T) {
			h := rateHeaders(10, 5, now.Unix())
			h.Set("Retry-After", "3")
			h.Del(missing)
			_, ok := fromHeadersAt(h, now)
			require.False(t, ok)
		})
		t.Run("malformed "+missing, func(t *testing.T) {
			h := rateHeaders(10, 5, now.Unix())
			h.Set(missing, "ten")
			_, ok := fromHeadersAt(h, now)
			require.False(t, ok)
		})
	}

	_, ok := fromHeadersAt(rateHeaders(0, 0, now.Unix()), now)
	require.False(t, ok, "limit must be positive")
	_, ok = fromHeadersAt(rateHeaders(10, -1, now.Unix()), now)
	require.False(t, ok, "remaining must not be negative")
	_, ok = fromHeadersAt(nil, now)
	require.False(t, ok)
}

func TestStateDerivedValues(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	reset := now.Add(40 * time.Second).Unix()

	cases := []struct {
		name        string
		state       State
		limited     bool
		approaching bool
		suggested   time.Duration
	}{
		{name: "healthy", state: State{Limit: 100, Remaining: 80, ResetUnix: reset}},
		{name: "approaching", state: State{Limit: 100, Remaining: 4, ResetUnix: reset}, approaching: true, suggested: 10 * time.Second},
		{name: "spent", state: State{Limit: 100, Remaining: 0, ResetUnix: reset}, limited: true, approaching: true, suggested: 40 * time.Second},
		{name: "reset passed", state: State{Limit: 100, Remaining: 0, ResetUnix: now.Add(-time.Minute).Unix()}, limited: true, approaching: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.limited, tc.state.IsRateLimited())
			require.Equal(t, tc.approaching, tc.state.IsApproachingLimit())
			require.Equal(t, tc.suggested, tc.state.SuggestedDelay(now))
			require.GreaterOrEqual(t, tc.state.TimeUntilReset(now), time.Duration(0))
		})
	}

	seconds := 7
	withRetry := State{Limit: 100, Remaining: 50, ResetUnix: reset, RetryAfterSeconds: &seconds}
	require.Equal(t, 7*time.Second, withRetry.SuggestedDelay(now))
}

func TestFromError(t *testing.T) {
	h := rateHeaders(3, 0, time.Now().Add(time.Minute).Unix())
	h.Set("Retry-After", "1")
	err := fmt.Errorf("list users: %w", &apperrors.APIError{Kind: apperrors.KindThrottled, Status: 429, Headers: h})

	state := FromError(err)
	require.NotNil(t, state)
	require.Equal(t, 3, state.Limit)
	require.Equal(t, time.Second, state.RetryAfter())

	require.Nil(t, FromError(&apperrors.APIError{Kind: apperrors.KindThrottled, Status: 429}))
	require.Nil(t, FromError(fmt.Errorf("plain")))
}
