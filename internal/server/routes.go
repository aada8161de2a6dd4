package server

import (
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pagewire/pagewire/internal/core/client"
	"github.com/pagewire/pagewire/internal/observability"
	"github.com/pagewire/pagewire/internal/server/handlers"
)

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.health.HealthHandler)
	s.router.Get("/health/live", s.health.Probe("live", 2*time.Second))
	s.router.Get("/health/ready", s.health.Probe("ready", 5*time.Second))
	s.router.Get("/health/startup", s.health.Probe("startup", 3*time.Second))

	s.router.Get("/version", handlers.VersionHandler(handlers.APIInfo{
		Version: client.DefaultVersion,
		Items:   s.opts.Mock.Items,
	}))
	s.router.Method("GET", "/metrics", observability.MetricsHandler(s.registry))

	api := handlers.NewAPI(s.fixtures, s.opts.Mock.PageSize)
	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.throttle.Middleware)
		api.Routes(r)
	})

	s.registerAdminEndpoint()
}

// registerAdminEndpoint exposes the gofulmen signal handler when an admin
// token is configured.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger
	if s.opts.Server.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no admin token set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.Server.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
	}
}
