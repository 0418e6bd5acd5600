// Package api exposes loglens's ambient ops surface: liveness, readiness,
// version, and Prometheus metrics. It carries no part of the tail engine
// itself — attach/detach/disconnect happen over whatever transport
// internal/session is wired to, not HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/loglens/loglens/internal/config"
	"github.com/loglens/loglens/internal/registry"
)

// Server bundles the ops HTTP surface: router, underlying http.Server,
// and the registry handle readiness checks against.
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	router     *mux.Router
	httpServer *http.Server
	registry   *registry.Registry
	startTime  time.Time
}

// NewServer builds a Server wired to reg for readiness checks.
func NewServer(cfg *config.Config, logger *zap.Logger, reg *registry.Registry) *Server {
	s := &Server{
		config:    cfg,
		logger:    logger,
		registry:  reg,
		router:    mux.NewRouter(),
		startTime: time.Now(),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start blocks serving the ops surface until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting ops server", zap.Int("port", s.config.Server.Port))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the ops server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
