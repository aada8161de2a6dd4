package store

import (
	"testing"

	"github.com/pagewire/pagewire/internal/config"
	"github.com/stretchr/testify/require"
)

func TestBuildLibsqlDSN(t *testing.T) {
	t.Run("URLUsesRawValue", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123", dsn)
	})

	t.Run("URLWithExistingQuery", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io?foo=bar",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123&foo=bar", dsn)
	})

	t.Run("PathWithFilePrefix", func(t *testing.T) {
		cfg := config.StoreConfig{Path: "file:./pagewire.db"}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "file:./pagewire.db", dsn)
	})

	t.Run("PathMissing", func(t *testing.T) {
		cfg := config.StoreConfig{}

		_, err := buildLibsqlDSN(cfg)
		require.Error(t, err)
	})

	t.Run("MemoryPath", func(t *testing.T) {
		cfg := config.StoreConfig{Path: ":memory:"}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, ":memory:", dsn)
	})
}

func TestRateLimitQuery(t *testing.T) {
	require.Error(t, RateLimitQuery{}.Validate())
	require.Error(t, RateLimitQuery{Endpoint: "  "}.Validate())
	require.NoError(t, RateLimitQuery{All: true}.Validate())

	q := RateLimitQuery{Prefix: "api."}
	require.True(t, q.Matches("api.pagewire.dev"))
	require.False(t, q.Matches("files.pagewire.dev"))

	where, args, err := q.whereClause()
	require.NoError(t, err)
	require.Contains(t, where, "LIKE")
	require.Equal(t, []any{"api.%"}, args)

	_, args, err = RateLimitQuery{Prefix: "100%_"}.whereClause()
	require.NoError(t, err)
	require.Equal(t, []any{`100\%\_%`}, args)

	require.True(t, RateLimitQuery{Endpoint: "a"}.Matches("a"))
	require.False(t, RateLimitQuery{Endpoint: "a"}.Matches("ab"))
}

func TestEscapeGlob(t *testing.T) {
	require.Equal(t, `pw:\*host\?\[1\]`, escapeGlob("pw:*host?[1]"))
}

func TestLocalPragmasSetBusyTimeoutBeforeWAL(t *testing.T) {
	pragmas := localPragmas()
	require.Len(t, pragmas, 2)
	require.Equal(t, "PRAGMA busy_timeout=5000", pragmas[0])
	require.Equal(t, "PRAGMA journal_mode=WAL", pragmas[1])
}
