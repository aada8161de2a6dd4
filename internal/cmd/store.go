package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/pagewire/pagewire/internal/core/store"
)

const (
	backendMemory = "memory"
	backendLibsql = "libsql"
	backendRedis  = "redis"
)

// persistentBackend is the backend the rate-limit admin commands inspect.
// The memory backend lives only as long as one process, so the libsql store
// stands in for it.
func persistentBackend(backend string) string {
	switch strings.TrimSpace(backend) {
	case backendRedis:
		return backendRedis
	default:
		return backendLibsql
	}
}

// openRateLimitStore opens and, for libsql, migrates the tracker store.
func (a *app) openRateLimitStore(ctx context.Context, backend string) (store.RateLimitStore, error) {
	switch backend {
	case backendRedis:
		return store.OpenRedis(ctx, a.cfg.Redis)
	case backendLibsql:
		db, err := store.Open(ctx, a.cfg.Store)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("tracker backend %q has no persistent store", backend)
	}
}
