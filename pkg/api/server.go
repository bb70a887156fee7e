// Package api exposes the engine's HTTP control surface: stake sizing,
// portfolio allocation, arbitrage execution, and kill-switch control.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/oddsforge/betengine/pkg/bookmaker"
	"github.com/oddsforge/betengine/pkg/engine/orchestrator"
	"github.com/oddsforge/betengine/pkg/safety"
	"github.com/oddsforge/betengine/pkg/streaming"
)

// Server is the engine HTTP API server.
type Server struct {
	orch     *orchestrator.Orchestrator
	safety   *safety.Manager
	registry *bookmaker.Registry
	hub      *streaming.Hub
	log      *zap.Logger

	httpServer *http.Server
}

// NewServer builds the API server. hub may be nil to disable the
// WebSocket endpoint.
func NewServer(port string, orch *orchestrator.Orchestrator, sm *safety.Manager, registry *bookmaker.Registry, hub *streaming.Hub, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		orch:     orch,
		safety:   sm,
		registry: registry,
		hub:      hub,
		log:      log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/stake", s.handleStake)
		r.Post("/portfolio", s.handlePortfolio)
		r.Post("/arbitrage/execute", s.handleExecute)
		r.Get("/policy", s.handlePolicyStatus)
		r.Get("/safety", s.handleSafetyState)
		r.Post("/safety/activate", s.handleSafetyActivate)
		r.Post("/safety/deactivate", s.handleSafetyDeactivate)
		r.Get("/status", s.handleStatus)
	})
	if hub != nil {
		r.Get("/ws", hub.ServeWS)
	}

	s.httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("api server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
