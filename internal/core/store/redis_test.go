package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/pagewire/pagewire/internal/core"
	"github.com/pagewire/pagewire/internal/core/ratelimit"
)

var (
	_ RateLimitStore         = (*RedisStore)(nil)
	_ ratelimit.TrackerStore = (*RedisStore)(nil)
)

// newTestRedis connects to PAGEWIRE_TEST_REDIS_ADDR (default localhost:6379)
// and skips when no server answers.
func newTestRedis(t *testing.T) *RedisStore {
	t.Helper()

	addr := os.Getenv("PAGEWIRE_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping redis test: Redis not available (%v)", err)
	}

	prefix := fmt.Sprintf("pagewire-test:%d:", time.Now().UnixNano())
	store := NewRedisStore(client, prefix, time.Minute)
	t.Cleanup(func() {
		_, _ = store.ResetRateLimits(context.Background(), RateLimitQuery{All: true})
		_ = store.Close()
	})
	return store
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestRedis(t)

	missing, err := store.GetRateLimit(ctx, "api.pagewire.dev")
	require.NoError(t, err)
	require.Nil(t, missing)

	backoff := time.Now().UTC().Add(1500 * time.Millisecond)
	require.NoError(t, store.UpdateRateLimit(ctx, "api.pagewire.dev", &core.RateLimitState{
		RequestCount: 4,
		Limit:        10,
		Remaining:    6,
		WindowStart:  time.Now().UTC(),
		BackoffUntil: &backoff,
	}))

	got, err := store.GetRateLimit(ctx, "api.pagewire.dev")
	require.NoError(t, err)
	require.Equal(t, 4, got.RequestCount)
	require.True(t, got.BackoffUntil.Equal(backoff))

	ttl, err := store.client.TTL(ctx, store.key("api.pagewire.dev")).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
}

func TestRedisStoreAdmin(t *testing.T) {
	ctx := context.Background()
	store := newTestRedis(t)

	for _, endpoint := range []string{"api.pagewire.dev", "api.staging.pagewire.dev", "files.pagewire.dev"} {
		require.NoError(t, store.UpdateRateLimit(ctx, endpoint, &core.RateLimitState{RequestCount: 1, WindowStart: time.Now()}))
	}

	all, err := store.ListRateLimits(ctx, RateLimitQuery{All: true})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "api.pagewire.dev", all[0].Endpoint)

	count, err := store.CountRateLimits(ctx, RateLimitQuery{Prefix: "api."})
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, err = store.CountRateLimits(ctx, RateLimitQuery{Endpoint: "nope"})
	require.NoError(t, err)
	require.Zero(t, count)

	deleted, err := store.ResetRateLimits(ctx, RateLimitQuery{Prefix: "api."})
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)
}

func TestRedisSharedTracker(t *testing.T) {
	ctx := context.Background()
	store := newTestRedis(t)

	first := ratelimit.NewTracker(store)
	second := ratelimit.NewTracker(store)

	require.NoError(t, first.Record429(ctx, "api.pagewire.dev", 10*time.Second))

	allowed, wait, err := second.Allow(ctx, "api.pagewire.dev")
	require.NoError(t, err)
	require.False(t, allowed)
	require.Greater(t, wait, 5*time.Second)
}
