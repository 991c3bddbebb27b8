package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"reelfetch/internal/domain"
)

const (
	DefaultPaginationLimit = 25
	MaxPaginationLimit     = 200
)

type ExtractionsHandler struct {
	logger *slog.Logger
	repo   domain.ExtractionRepository
}

// ExtractionsResponse lists recent extraction records, newest first
type ExtractionsResponse struct {
	Extractions []*domain.ExtractionRecord `json:"extractions"`
	Count       int                        `json:"count"`
}

func NewExtractionsHandler(logger *slog.Logger, repo domain.ExtractionRepository) *ExtractionsHandler {
	return &ExtractionsHandler{
		logger: logger,
		repo:   repo,
	}
}

// ListRecent handles GET /api/v1/extractions?limit=N
func (h *ExtractionsHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list extractions", "error", err, "limit", limit)
		http.Error(w, "Failed to list extractions", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*domain.ExtractionRecord{}
	}

	writeJSON(w, http.StatusOK, &ExtractionsResponse{Extractions: records, Count: len(records)}, h.logger)
}

// GetByID handles GET /api/v1/extractions/{id}
func (h *ExtractionsHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid extraction ID", http.StatusBadRequest)
		return
	}

	record, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Extraction not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get extraction", "error", err, "extraction_id", id)
		http.Error(w, "Failed to get extraction", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, record, h.logger)
}

var errInvalidLimit = errors.New("limit must be a positive integer")

// parseLimit reads the limit query parameter, clamping it to MaxPaginationLimit
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return DefaultPaginationLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errInvalidLimit
	}
	if limit > MaxPaginationLimit {
		limit = MaxPaginationLimit
	}
	return limit, nil
}

// writeJSON writes data with the given status; encoding errors can only be logged
func writeJSON(w http.ResponseWriter, status int, data interface{}, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}
