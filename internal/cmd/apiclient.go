package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/pagewire/pagewire/internal/core/client"
	"github.com/pagewire/pagewire/internal/core/ratelimit"
	"github.com/pagewire/pagewire/internal/observability"
)

// newClient builds an API client from the loaded config. The returned
// cleanup closes the shared tracker store, if one was opened.
func (a *app) newClient(ctx context.Context) (*client.Client, func(), error) {
	policy, err := a.cfg.RateLimit.RetryPolicy()
	if err != nil {
		return nil, nil, &ConfigError{Err: err}
	}

	opts := []client.Option{client.WithLogger(observability.ClientLogger())}
	if a.cfg.Metrics.Enabled && a.metrics != nil {
		opts = append(opts, client.WithObserver(a.metrics))
	}

	cleanup := func() {}
	if a.cfg.RateLimit.SharedTracking {
		var trackerStore ratelimit.TrackerStore
		backend := a.cfg.RateLimit.TrackerBackend
		if backend == "" || backend == backendMemory {
			trackerStore = ratelimit.NewMemoryStore()
		} else {
			st, err := a.openRateLimitStore(ctx, backend)
			if err != nil {
				return nil, nil, err
			}
			trackerStore = st
			cleanup = func() {
				if err := st.Close(); err != nil {
					observability.CLILogger.Warn("close tracker store", zap.Error(err))
				}
			}
		}
		opts = append(opts, client.WithTracker(ratelimit.NewTracker(trackerStore)))
		observability.CLILogger.Debug("shared rate limit tracking enabled", zap.String("backend", backend))
	}

	c, err := client.New(client.Config{
		BaseURL:   a.cfg.API.BaseURL,
		Token:     a.cfg.API.Token,
		Version:   a.cfg.API.Version,
		UserAgent: a.cfg.API.UserAgent,
		Timeout:   a.cfg.API.Timeout,
		RateLimit: policy,
		PageSize:  a.cfg.Pagination.PageSize,
		MaxPages:  a.cfg.Pagination.MaxPages,
	}, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return c, cleanup, nil
}
