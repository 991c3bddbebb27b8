package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"reelfetch/internal/config"
	apihttp "reelfetch/internal/http"
)

// APIService serves the diagnostics API
type APIService struct {
	config *config.Config
	logger *slog.Logger
	server *http.Server
}

// New creates a new API service
func New(config *config.Config, logger *slog.Logger, deps apihttp.Dependencies) *APIService {
	router := apihttp.NewRouter(logger, deps)

	return &APIService{
		config: config,
		logger: logger,
		server: &http.Server{
			Addr:         ":" + config.Port,
			Handler:      router.SetupRoutes(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start serves until Stop is called; a clean shutdown returns nil
func (s *APIService) Start() error {
	s.logger.Info("Starting API server", "port", s.config.Port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the API server
func (s *APIService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}
