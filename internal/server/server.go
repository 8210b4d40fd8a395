// Package server provides the HTTP server for the dashboard API.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/config"
	apierrors "github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/errors"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/handler"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/health"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/middleware"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
)

// Server represents the HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	handlers     *handler.Handlers
	admin        *handler.AdminHandlers
	healthCheck  *health.Checker
	errorHandler *apierrors.Handler
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates a new HTTP server.
func NewServer(cfg *config.Config, handlers *handler.Handlers, admin *handler.AdminHandlers, healthCheck *health.Checker, errorHandler *apierrors.Handler, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		router:       router,
		httpServer:   httpServer,
		handlers:     handlers,
		admin:        admin,
		healthCheck:  healthCheck,
		errorHandler: errorHandler,
		logger:       logger,
		cfg:          cfg,
	}
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes() {
	// Setup middleware chain
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.CORS([]string{"*"}),
	}

	// Add rate limiter if enabled
	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	// Apply middleware to router
	chain := middleware.Chain(middlewareChain...)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	// Health check endpoints
	s.router.HandleFunc("/health/live", s.healthCheck.Liveness).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", s.healthCheck.Readiness).Methods(http.MethodGet)

	// API v1 routes
	v1 := s.router.PathPrefix("/v1").Subrouter()

	// Dashboard endpoints
	dashboards := v1.PathPrefix("/dashboards").Subrouter()
	dashboards.HandleFunc("/appointments", s.handlers.Dashboard(model.KindAppointments)).Methods(http.MethodGet)
	dashboards.HandleFunc("/conversations", s.handlers.Dashboard(model.KindConversations)).Methods(http.MethodGet)
	dashboards.HandleFunc("/transactions", s.handlers.Dashboard(model.KindTransactions)).Methods(http.MethodGet)

	// Admin routes for snapshot inspection and forced refresh
	admin := v1.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/snapshots/{tenant_id}", s.admin.Snapshots).Methods(http.MethodGet)
	admin.HandleFunc("/refresh/{tenant_id}", s.admin.Refresh).Methods(http.MethodPost)

	// Not found handler
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.ErrorCodeInvalidRequest, "endpoint not found", requestID)
	})

	// Method not allowed handler
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, apierrors.ErrorCodeInvalidRequest, "method not allowed", requestID)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.Int("port", s.cfg.Server.Port),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// GetRouter returns the router for testing purposes.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}
