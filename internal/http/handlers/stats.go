package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"reelfetch/internal/domain"
)

// QueueStatsReader is the part of the Redis queue the stats endpoint reads
type QueueStatsReader interface {
	GetQueueStats(ctx context.Context, jobType string) (map[string]int64, error)
}

type StatsHandler struct {
	logger *slog.Logger
	repo   domain.ExtractionRepository
	queue  QueueStatsReader
}

// StatsResponse combines per-strategy outcomes with the live queue state
type StatsResponse struct {
	Timestamp  time.Time              `json:"timestamp"`
	Strategies []*domain.StrategyStat `json:"strategies"`
	Queue      map[string]int64       `json:"queue,omitempty"`
}

// NewStatsHandler creates the stats handler; queue may be nil when Redis is not configured
func NewStatsHandler(logger *slog.Logger, repo domain.ExtractionRepository, queue QueueStatsReader) *StatsHandler {
	return &StatsHandler{
		logger: logger,
		repo:   repo,
		queue:  queue,
	}
}

// HandleStats handles GET /api/v1/stats
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	strategies, err := h.repo.StrategyStats(ctx)
	if err != nil {
		h.logger.Error("Failed to get strategy stats", "error", err)
		http.Error(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}
	if strategies == nil {
		strategies = []*domain.StrategyStat{}
	}

	resp := &StatsResponse{
		Timestamp:  time.Now().UTC(),
		Strategies: strategies,
	}

	// Queue stats are best effort; Postgres is the source of truth here
	if h.queue != nil {
		queue, err := h.queue.GetQueueStats(ctx, domain.JobTypeExtractMedia)
		if err != nil {
			h.logger.Warn("Failed to get queue stats", "error", err)
		} else {
			resp.Queue = queue
		}
	}

	writeJSON(w, http.StatusOK, resp, h.logger)
}
