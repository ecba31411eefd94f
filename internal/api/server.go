// Package api provides the HTTP REST surface of the scanner. It wires
// the scan, device, health, metrics, and WebSocket endpoints under
// /api/v1 and owns server lifecycle and middleware.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	apihandlers "github.com/asplund/netasset/internal/api/handlers"
	"github.com/asplund/netasset/internal/api/middleware"
	"github.com/asplund/netasset/internal/config"
	"github.com/asplund/netasset/internal/logging"
	"github.com/asplund/netasset/internal/metrics"
	"github.com/asplund/netasset/internal/registry"
)

// Server timeout constants.
const (
	serverShutdownTimeout = 30 * time.Second
	serverReadTimeout     = 10 * time.Second
	serverWriteTimeout    = 30 * time.Second
	serverIdleTimeout     = 60 * time.Second
)

// Version is set at build time.
var Version = "dev"

// Server represents the API server.
type Server struct {
	httpServer   *http.Server
	router       *mux.Router
	config       *config.Config
	store        registry.Store
	orchestrator apihandlers.Orchestrator
	logger       *logging.Logger
	metrics      metrics.MetricsRegistry
}

// New creates a new API server instance.
func New(cfg *config.Config, store registry.Store, orchestrator apihandlers.Orchestrator,
	metricsRegistry metrics.MetricsRegistry) *Server {
	server := &Server{
		router:       mux.NewRouter(),
		config:       cfg,
		store:        store,
		orchestrator: orchestrator,
		logger:       logging.Default().WithComponent("api"),
		metrics:      metricsRegistry,
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.API.ListenAddr, strconv.Itoa(cfg.API.Port)),
		Handler:      server.router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	return server
}

// Start starts the API server and blocks until the context is canceled
// or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting API server", "address", s.httpServer.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped")
	return nil
}

// Router returns the configured router, mainly for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Address returns the server listen address.
func (s *Server) Address() string {
	return s.httpServer.Addr
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	slogger := s.logger.Logger

	scanHandler := apihandlers.NewScanHandler(s.orchestrator, s.store, slogger, s.metrics)
	deviceHandler := apihandlers.NewDeviceHandler(s.store, slogger, s.metrics)
	healthHandler := apihandlers.NewHealthHandler(slogger, Version)
	wsHandler := apihandlers.NewWebSocketHandler(s.orchestrator, slogger, s.metrics)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", healthHandler.Health).Methods("GET")
	api.HandleFunc("/version", healthHandler.Version).Methods("GET")

	api.HandleFunc("/scan/discover", scanHandler.Discover).Methods("POST")
	api.HandleFunc("/scan/status/{id}", scanHandler.Status).Methods("GET")
	api.HandleFunc("/scan/detailed", scanHandler.Detailed).Methods("POST")
	api.HandleFunc("/scans", scanHandler.List).Methods("GET")

	api.HandleFunc("/devices", deviceHandler.List).Methods("GET")
	api.HandleFunc("/devices/{id}", deviceHandler.Get).Methods("GET")
	api.HandleFunc("/devices/{id}", deviceHandler.Delete).Methods("DELETE")

	s.router.HandleFunc("/ws/scans/{id}", wsHandler.ScanProgress).Methods("GET")

	if s.config.Metrics.Enabled {
		if prom, ok := s.metrics.(*metrics.PrometheusRegistry); ok {
			s.router.Handle("/metrics", prom.Handler()).Methods("GET")
		}
	}
}

// setupMiddleware configures middleware for the API server. WebSocket
// routes bypass the request timeout; everything else is bounded.
func (s *Server) setupMiddleware() {
	slogger := s.logger.Logger

	s.router.Use(middleware.Recovery(slogger))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logging(slogger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(middleware.ContentType())

	if s.config.API.CORS.Enabled {
		corsOptions := handlers.AllowedOrigins(s.config.API.CORS.AllowedOrigins)
		corsHeaders := handlers.AllowedHeaders(s.config.API.CORS.AllowedHeaders)
		corsMethods := handlers.AllowedMethods(s.config.API.CORS.AllowedMethods)
		s.router.Use(handlers.CORS(corsOptions, corsHeaders, corsMethods))
	}
}
