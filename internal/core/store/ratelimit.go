package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pagewire/pagewire/internal/core"
)

const rateLimitColumns = `endpoint, request_count, request_limit, remaining, window_start, reset_at, backoff_until, last_429_at`

// GetRateLimit returns stored rate limit state for an endpoint, or nil when
// nothing has been recorded.
func (s *Store) GetRateLimit(ctx context.Context, endpoint string) (*core.RateLimitState, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT `+rateLimitColumns+`
		FROM rate_limits
		WHERE endpoint = ?
	`, endpoint)

	entry, err := scanRateLimit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}
	return &entry.State, nil
}

// UpdateRateLimit persists rate limit state for an endpoint.
func (s *Store) UpdateRateLimit(ctx context.Context, endpoint string, state *core.RateLimitState) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return errors.New("endpoint is required")
	}
	if state == nil {
		return errors.New("rate limit state is required")
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO rate_limits (`+rateLimitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			request_count = excluded.request_count,
			request_limit = excluded.request_limit,
			remaining = excluded.remaining,
			window_start = excluded.window_start,
			reset_at = excluded.reset_at,
			backoff_until = excluded.backoff_until,
			last_429_at = excluded.last_429_at
	`,
		endpoint,
		state.RequestCount,
		state.Limit,
		state.Remaining,
		state.WindowStart.UTC().UnixMilli(),
		nullMillis(state.ResetAt),
		nullMillis(state.BackoffUntil),
		nullMillis(state.Last429At),
	)
	if err != nil {
		return fmt.Errorf("store rate limit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRateLimit(row rowScanner) (RateLimitEntry, error) {
	var (
		entry        RateLimitEntry
		windowStart  int64
		resetAt      sql.NullInt64
		backoffUntil sql.NullInt64
		last429At    sql.NullInt64
	)
	if err := row.Scan(
		&entry.Endpoint,
		&entry.State.RequestCount,
		&entry.State.Limit,
		&entry.State.Remaining,
		&windowStart,
		&resetAt,
		&backoffUntil,
		&last429At,
	); err != nil {
		return RateLimitEntry{}, err
	}

	entry.State.WindowStart = time.UnixMilli(windowStart).UTC()
	entry.State.ResetAt = fromNullMillis(resetAt)
	entry.State.BackoffUntil = fromNullMillis(backoffUntil)
	entry.State.Last429At = fromNullMillis(last429At)
	return entry, nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
