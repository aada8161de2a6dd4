package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pagewire/pagewire/internal/config"
	"github.com/pagewire/pagewire/internal/core"
)

const (
	defaultRedisPrefix = "pagewire:ratelimit:"
	redisScanCount     = 100
)

// RedisStore keeps one JSON document per endpoint under KeyPrefix+endpoint.
// Entries expire after TTL without updates so abandoned endpoints do not
// accumulate.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// OpenRedis connects to the configured server and pings it.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	return NewRedisStore(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisStore wraps an existing client. A zero ttl keeps entries forever.
func NewRedisStore(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *RedisStore) key(endpoint string) string {
	return r.keyPrefix + endpoint
}

func (r *RedisStore) GetRateLimit(ctx context.Context, endpoint string) (*core.RateLimitState, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	raw, err := r.client.Get(ctx, r.key(endpoint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}

	var state core.RateLimitState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode rate limit for %s: %w", endpoint, err)
	}
	return &state, nil
}

func (r *RedisStore) UpdateRateLimit(ctx context.Context, endpoint string, state *core.RateLimitState) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return errors.New("endpoint is required")
	}
	if state == nil {
		return errors.New("rate limit state is required")
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode rate limit: %w", err)
	}
	if err := r.client.Set(ctx, r.key(endpoint), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("store rate limit: %w", err)
	}
	return nil
}

func (r *RedisStore) ListRateLimits(ctx context.Context, q RateLimitQuery) ([]RateLimitEntry, error) {
	keys, err := r.matchingKeys(ctx, q)
	if err != nil {
		return nil, err
	}

	entries := []RateLimitEntry{}
	for _, key := range keys {
		endpoint := strings.TrimPrefix(key, r.keyPrefix)
		state, err := r.GetRateLimit(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		if state == nil {
			// Expired between SCAN and GET.
			continue
		}
		entries = append(entries, RateLimitEntry{Endpoint: endpoint, State: *state})
	}
	return entries, nil
}

func (r *RedisStore) CountRateLimits(ctx context.Context, q RateLimitQuery) (int, error) {
	keys, err := r.matchingKeys(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (r *RedisStore) ResetRateLimits(ctx context.Context, q RateLimitQuery) (int64, error) {
	keys, err := r.matchingKeys(ctx, q)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	deleted, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("reset rate limits: %w", err)
	}
	return deleted, nil
}

// matchingKeys returns the selected keys, sorted by endpoint.
func (r *RedisStore) matchingKeys(ctx context.Context, q RateLimitQuery) ([]string, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if endpoint := strings.TrimSpace(q.Endpoint); endpoint != "" && !q.All {
		n, err := r.client.Exists(ctx, r.key(endpoint)).Result()
		if err != nil {
			return nil, fmt.Errorf("list rate limits: %w", err)
		}
		if n == 0 {
			return nil, nil
		}
		return []string{r.key(endpoint)}, nil
	}

	pattern := escapeGlob(r.keyPrefix) + "*"
	if !q.All {
		pattern = escapeGlob(r.keyPrefix+strings.TrimSpace(q.Prefix)) + "*"
	}

	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	// SCAN may return a key more than once.
	slices.Sort(keys)
	return slices.Compact(keys), nil
}

func escapeGlob(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`).Replace(s)
}
