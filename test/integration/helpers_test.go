package integration

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/pagewire/pagewire/internal/config"
	"github.com/pagewire/pagewire/internal/core/client"
	"github.com/pagewire/pagewire/internal/core/ratelimit"
	"github.com/pagewire/pagewire/internal/server"
)

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// fakeClock is shared by the mock server's throttle window and the client's
// sleeper so waits advance time instead of blocking.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// newMockServer binds to IPv4 loopback explicitly (avoiding IPv6-only defaults)
// and skips when the sandbox refuses to open sockets.
func newMockServer(t *testing.T, mock config.MockConfig, now func() time.Time) (*server.Server, *httptest.Server) {
	t.Helper()
	srv := server.New(server.Options{
		Mock:     mock,
		Registry: prometheus.NewRegistry(),
		Now:      now,
	})

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping mock server setup: %v", err)
		}
		require.NoError(t, err)
	}

	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return srv, ts
}

func newClient(t *testing.T, ts *httptest.Server, clock *fakeClock, policy ratelimit.Config, pageSize int, opts ...client.Option) *client.Client {
	t.Helper()
	opts = append([]client.Option{
		client.WithHTTPClient(ts.Client()),
		client.WithSleeper(clock.Sleep),
		client.WithCalculatorOptions(ratelimit.WithClock(clock.Now)),
	}, opts...)
	c, err := client.New(client.Config{
		BaseURL:   ts.URL,
		Token:     "integration",
		RateLimit: policy,
		PageSize:  pageSize,
	}, opts...)
	require.NoError(t, err)
	return c
}

func noJitter(cfg ratelimit.Config) ratelimit.Config {
	cfg.JitterFactor = 0
	return cfg
}
