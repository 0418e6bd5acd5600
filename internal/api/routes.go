package api

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loglens/loglens/internal/metrics"
)

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.router.Use(metrics.Middleware())
	s.router.Use(s.loggingMiddleware)
}
