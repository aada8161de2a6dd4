package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/pagewire/pagewire/internal/core"
)

// TrackerStore persists shared rate-limit state per endpoint. A nil state
// with a nil error means nothing is recorded.
type TrackerStore interface {
	GetRateLimit(ctx context.Context, endpoint string) (*core.RateLimitState, error)
	UpdateRateLimit(ctx context.Context, endpoint string, state *core.RateLimitState) error
}

// Tracker shares the latest server rate-limit signals between calls so a
// caller can hold off while the budget of an endpoint is spent. Updates are
// serialised within a process; across processes the last writer wins.
type Tracker struct {
	Store TrackerStore
	Clock func() time.Time

	mu sync.Mutex
}

// NewTracker returns a tracker over store, or over a fresh in-memory store
// when store is nil.
func NewTracker(store TrackerStore) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{Store: store}
}

// Allow reports whether a request to endpoint may be sent now and, if not,
// how long to wait.
func (t *Tracker) Allow(ctx context.Context, endpoint string) (bool, time.Duration, error) {
	if t == nil || t.Store == nil {
		return true, 0, nil
	}

	state, err := t.Store.GetRateLimit(ctx, endpoint)
	if err != nil {
		return true, 0, err
	}
	if state == nil {
		return true, 0, nil
	}

	now := t.now()
	if state.BackingOff(now) {
		return false, state.BackoffUntil.Sub(now), nil
	}
	if state.Exhausted(now) {
		return false, state.ResetAt.Sub(now), nil
	}
	return true, 0, nil
}

// Observe records the rate-limit headers of one response.
func (t *Tracker) Observe(ctx context.Context, endpoint string, observed State) error {
	return t.update(ctx, endpoint, func(state *core.RateLimitState, now time.Time) {
		state.RequestCount++
		state.Limit = observed.Limit
		state.Remaining = observed.Remaining
		reset := observed.ResetTime().UTC()
		if state.ResetAt == nil || !state.ResetAt.Equal(reset) {
			state.WindowStart = now
		}
		state.ResetAt = &reset
	})
}

// Record429 applies a backoff window after a throttled response.
func (t *Tracker) Record429(ctx context.Context, endpoint string, backoff time.Duration) error {
	return t.update(ctx, endpoint, func(state *core.RateLimitState, now time.Time) {
		state.Last429At = &now
		if backoff > 0 {
			until := now.Add(backoff)
			if state.BackoffUntil == nil || until.After(*state.BackoffUntil) {
				state.BackoffUntil = &until
			}
		}
	})
}

func (t *Tracker) update(ctx context.Context, endpoint string, apply func(*core.RateLimitState, time.Time)) error {
	if t == nil || t.Store == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.Store.GetRateLimit(ctx, endpoint)
	if err != nil {
		return err
	}
	now := t.now()
	if state == nil {
		state = &core.RateLimitState{WindowStart: now}
	}
	apply(state, now)
	return t.Store.UpdateRateLimit(ctx, endpoint, state)
}

func (t *Tracker) now() time.Time {
	if t != nil && t.Clock != nil {
		return t.Clock()
	}
	return time.Now().UTC()
}

// MemoryStore is the process-local TrackerStore.
type MemoryStore struct {
	mu    sync.Mutex
	state map[string]core.RateLimitState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: make(map[string]core.RateLimitState)}
}

func (m *MemoryStore) GetRateLimit(_ context.Context, endpoint string) (*core.RateLimitState, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.state[endpoint]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (m *MemoryStore) UpdateRateLimit(_ context.Context, endpoint string, state *core.RateLimitState) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return errors.New("endpoint is required")
	}
	if state == nil {
		return errors.New("rate limit state is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		m.state = make(map[string]core.RateLimitState)
	}
	m.state[endpoint] = *state
	return nil
}
