package http

import (
	"log/slog"
	"net/http"

	"reelfetch/internal/domain"
	"reelfetch/internal/http/handlers"
	"reelfetch/internal/http/middleware"
)

// Dependencies are the stores the API reads from. Queue may be nil, which
// disables queue stats and the admin enqueue endpoint.
type Dependencies struct {
	Extractions domain.ExtractionRepository
	Queue       Queue
	Checks      map[string]handlers.HealthCheck
	AdminAPIKey string
}

// Queue is what the API needs from the Redis queue
type Queue interface {
	handlers.QueueStatsReader
	handlers.JobEnqueuer
}

type Router struct {
	mux                *http.ServeMux
	auth               *middleware.AdminAuth
	healthHandler      *handlers.HealthHandler
	statsHandler       *handlers.StatsHandler
	extractionsHandler *handlers.ExtractionsHandler
	adminHandler       *handlers.AdminHandler
}

func NewRouter(logger *slog.Logger, deps Dependencies) *Router {
	r := &Router{
		mux:                http.NewServeMux(),
		auth:               middleware.NewAdminAuth(deps.AdminAPIKey, logger),
		healthHandler:      handlers.NewHealthHandler(logger, deps.Checks),
		statsHandler:       handlers.NewStatsHandler(logger, deps.Extractions, deps.Queue),
		extractionsHandler: handlers.NewExtractionsHandler(logger, deps.Extractions),
	}
	if deps.Queue != nil {
		r.adminHandler = handlers.NewAdminHandler(deps.Queue, logger)
	}
	return r
}

func (r *Router) SetupRoutes() http.Handler {
	// Health check
	r.mux.HandleFunc("GET /health", r.healthHandler.HandleHealth)

	// API v1 routes - extraction diagnostics
	r.mux.Handle("GET /api/v1/extractions", r.auth.AdminOnly(r.extractionsHandler.ListRecent))
	r.mux.Handle("GET /api/v1/extractions/{id}", r.auth.AdminOnly(r.extractionsHandler.GetByID))
	r.mux.Handle("GET /api/v1/stats", r.auth.AdminOnly(r.statsHandler.HandleStats))

	// API v1 routes - admin
	if r.adminHandler != nil {
		r.mux.Handle("POST /api/v1/admin/extractions", r.auth.AdminOnly(r.adminHandler.EnqueueExtraction))
	}

	return middleware.CORS(r.mux)
}
