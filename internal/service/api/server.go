package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"fitfeed/internal/config"
	apihttp "fitfeed/internal/http"
)

// APIService serves the product link HTTP API
type APIService struct {
	config *config.Config
	logger *slog.Logger

	// HTTP server
	server *http.Server
}

// New creates a new API service
func New(config *config.Config, logger *slog.Logger, deps apihttp.RouterDeps) *APIService {
	router := apihttp.NewRouter(logger, deps)

	return &APIService{
		config: config,
		logger: logger,
		server: &http.Server{
			Addr:              ":" + config.Port,
			Handler:           router.SetupRoutes(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Handler exposes the routed handler, mainly for tests
func (s *APIService) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving the API. It returns nil after a graceful Stop.
func (s *APIService) Start() error {
	s.logger.Info("Starting API server", "port", s.config.Port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the API server
func (s *APIService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}
