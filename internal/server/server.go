// Package server is the mock document API used for local development and
// integration tests. It serves deterministic fixtures with cursor pagination
// and simulates rate limiting.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pagewire/pagewire/internal/config"
	apperrors "github.com/pagewire/pagewire/internal/errors"
	"github.com/pagewire/pagewire/internal/metrics"
	"github.com/pagewire/pagewire/internal/observability"
	"github.com/pagewire/pagewire/internal/server/handlers"
	servermw "github.com/pagewire/pagewire/internal/server/middleware"
)

// Options configures a Server.
type Options struct {
	Server config.ServerConfig
	Mock   config.MockConfig

	// Registry receives the server metrics and backs /metrics. A fresh
	// registry is created when nil.
	Registry *prometheus.Registry

	// Now drives the throttle window; time.Now when nil.
	Now func() time.Time
}

// Server is the mock API HTTP server.
type Server struct {
	router   *chi.Mux
	mu       sync.Mutex
	server   *http.Server
	opts     Options
	registry *prometheus.Registry
	metrics  *metrics.Server
	fixtures *handlers.Fixtures
	throttle *servermw.Throttle
	health   *handlers.HealthManager
}

func New(opts Options) *Server {
	if opts.Registry == nil {
		opts.Registry = observability.NewRegistry()
	}
	m := metrics.NewServer(opts.Registry)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics(m))
	r.Use(servermw.Recovery(m))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router:   r,
		opts:     opts,
		registry: opts.Registry,
		metrics:  m,
		fixtures: handlers.NewFixtures(opts.Mock.Items),
		throttle: servermw.NewThrottle(servermw.ThrottleConfig{
			Every:      opts.Mock.ThrottleEvery,
			RetryAfter: opts.Mock.RetryAfter,
			Limit:      opts.Mock.Limit,
			Window:     opts.Mock.Window,
			Now:        opts.Now,
		}, m),
		health: handlers.NewHealthManager(handlers.AppVersion),
	}
	s.health.RegisterChecker("fixtures", handlers.CheckerFunc(func(context.Context) error {
		if _, ok := s.fixtures.Page(handlers.HomePageID); !ok {
			return errors.New("fixture workspace is empty")
		}
		return nil
	}))

	handlers.SetHTTPErrorResponder(HandleError)
	s.registerRoutes()
	return s
}

func (s *Server) addr() string {
	port := s.opts.Server.Port
	return net.JoinHostPort(s.opts.Server.Host, strconv.Itoa(port))
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Start listens on the configured address and blocks until shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr(), err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadTimeout:       durationOr(s.opts.Server.ReadTimeout, 30*time.Second),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      durationOr(s.opts.Server.WriteTimeout, 30*time.Second),
		IdleTimeout:       durationOr(s.opts.Server.IdleTimeout, 120*time.Second),
	}
	s.mu.Lock()
	s.server = httpServer
	s.mu.Unlock()

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting mock API server",
			zap.String("addr", ln.Addr().String()),
			zap.Int("items", s.opts.Mock.Items),
			zap.Int("throttle_every", s.opts.Mock.ThrottleEvery),
			zap.Int("limit", s.opts.Mock.Limit),
		)
	}

	if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a running server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.server
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down mock API server")
	}
	return httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Port() int {
	return s.opts.Server.Port
}

// Fixtures exposes the served workspace.
func (s *Server) Fixtures() *handlers.Fixtures {
	return s.fixtures
}

// Metrics exposes the server collectors.
func (s *Server) Metrics() *metrics.Server {
	return s.metrics
}
