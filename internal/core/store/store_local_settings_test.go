//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagewire/pagewire/internal/config"
	"github.com/pagewire/pagewire/internal/core"
)

func TestOpenLocalStoreUsesWALWithBusyTimeout(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, config.StoreConfig{Path: "file:" + filepath.Join(t.TempDir(), "pagewire.db")})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.Equal(t, 1, db.DB.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, db.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
	require.Equal(t, localBusyTimeoutMillis, busyTimeout)
}

// Several CLI invocations open, write and close the same file at once.
func TestOpenLocalStoreConcurrentInvocations(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{Path: filepath.Join(t.TempDir(), "pagewire.db")}

	setup, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, setup.Migrate(ctx))
	require.NoError(t, setup.Close())

	const invocations = 8
	var wg sync.WaitGroup
	errs := make(chan error, invocations)
	for i := range invocations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			db, err := Open(ctx, cfg)
			if err != nil {
				errs <- err
				return
			}
			defer func() { _ = db.Close() }()
			reset := time.Now().Add(time.Minute).UTC()
			errs <- db.UpdateRateLimit(ctx, "api.pagewire.dev", &core.RateLimitState{
				Limit:       i + 1,
				ResetAt:     &reset,
				WindowStart: time.Now().UTC(),
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	db, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	state, err := db.GetRateLimit(ctx, "api.pagewire.dev")
	require.NoError(t, err)
	require.NotNil(t, state)
}
