// Package opsapi implements the optional ops HTTP surface: a thin second
// caller of the pipeline orchestrator so an operator can trigger or
// inspect a run without a shell. Grounded in the teacher's chi-routed
// internal/api package (setupRouter/Server.Start/Shutdown), generalized
// from crawl-request submission to orchestrator.Run invocations.
package opsapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/opsmedia/catalogpipe/internal/config"
	"github.com/opsmedia/catalogpipe/internal/domain"
	"github.com/opsmedia/catalogpipe/internal/orchestrator"
)

// Server exposes POST /runs, GET /runs/{id}, GET /healthz and GET /metrics.
// It never reimplements orchestration: POST /runs delegates to
// orchestrator.Run and GET /runs/{id} serves the status that run recorded.
type Server struct {
	cfg    config.OpsAPIConfig
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
	router http.Handler
	srv    *http.Server

	mu   sync.Mutex
	runs map[string]domain.RunStatus
}

// New builds a Server bound to cfg.Addr.
func New(cfg config.OpsAPIConfig, orch *orchestrator.Orchestrator, logger *zap.Logger) *Server {
	s := &Server{cfg: cfg, orch: orch, logger: logger, runs: make(map[string]domain.RunStatus)}
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/metrics", promhttp.Handler().(http.HandlerFunc))
	r.Get("/healthz", s.handleHealthz)
	r.Post("/runs", s.handleCreateRun)
	r.Get("/runs/{id}", s.handleGetRun)

	return r
}

// Start blocks serving on cfg.Addr.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) recordRun(status domain.RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[status.RunID] = status
}

func (s *Server) lookupRun(id string) (domain.RunStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.runs[id]
	return status, ok
}

func newRunID() string {
	return fmt.Sprintf("run-%d", time.Now().UnixNano())
}
