package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"reelfetch/internal/domain"
	"reelfetch/internal/pkg/urldetector"
)

// JobEnqueuer is the part of the queue the admin endpoints write to
type JobEnqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload interface{}) error
}

// AdminHandler lets operators queue extractions without going through Discord
type AdminHandler struct {
	queue  JobEnqueuer
	logger *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(queue JobEnqueuer, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueRequest represents the request body for queuing an extraction
type EnqueueRequest struct {
	URL      string `json:"url"`
	Platform string `json:"platform,omitempty"`
	Quality  string `json:"quality,omitempty"`
	// ChannelID is where the worker delivers the media; empty means log only
	ChannelID string `json:"channel_id,omitempty"`
}

// EnqueueResponse is returned once the job is on the queue
type EnqueueResponse struct {
	RequestID string          `json:"request_id"`
	URL       string          `json:"url"`
	Platform  domain.Platform `json:"platform"`
	Quality   domain.Quality  `json:"quality"`
}

// EnqueueExtraction handles POST /api/v1/admin/extractions
func (h *AdminHandler) EnqueueExtraction(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	normalized, err := urldetector.NormalizeURL(req.URL)
	if err != nil {
		http.Error(w, "url is not valid: "+err.Error(), http.StatusBadRequest)
		return
	}

	var hint domain.Platform
	if req.Platform != "" {
		hint = domain.ParsePlatform(req.Platform)
	}
	mr := domain.NewMediaRequest(normalized, hint, domain.ParseQuality(req.Quality))
	job := domain.ExtractJob{
		RequestID: uuid.NewString(),
		URL:       mr.RawURL,
		Platform:  mr.Platform,
		Quality:   mr.Quality,
		ChannelID: req.ChannelID,
	}

	if err := h.queue.Enqueue(r.Context(), domain.JobTypeExtractMedia, job); err != nil {
		h.logger.Error("Failed to enqueue extraction", "error", err, "url", job.URL)
		http.Error(w, "Failed to enqueue extraction", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Extraction enqueued by admin",
		"request_id", job.RequestID,
		"url", job.URL,
		"platform", job.Platform)

	writeJSON(w, http.StatusAccepted, &EnqueueResponse{
		RequestID: job.RequestID,
		URL:       job.URL,
		Platform:  job.Platform,
		Quality:   job.Quality,
	}, h.logger)
}
