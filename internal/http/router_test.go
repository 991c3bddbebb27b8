package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"reelfetch/internal/domain"
	"reelfetch/internal/http/handlers"
	"reelfetch/internal/pkg/logger"
)

type stubExtractions struct {
	records   []*domain.ExtractionRecord
	lastLimit int
}

func (s *stubExtractions) Create(ctx context.Context, record *domain.ExtractionRecord) error {
	s.records = append(s.records, record)
	return nil
}

func (s *stubExtractions) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExtractionRecord, error) {
	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubExtractions) ListRecent(ctx context.Context, limit int) ([]*domain.ExtractionRecord, error) {
	s.lastLimit = limit
	return s.records, nil
}

func (s *stubExtractions) StrategyStats(ctx context.Context) ([]*domain.StrategyStat, error) {
	return []*domain.StrategyStat{
		{Strategy: "direct_api", Status: domain.ExtractionStatusSucceeded, Count: 3},
		{Strategy: "none", Status: domain.ExtractionStatusFailed, Count: 1},
	}, nil
}

type stubQueue struct {
	enqueued []interface{}
}

func (q *stubQueue) GetQueueStats(ctx context.Context, jobType string) (map[string]int64, error) {
	return map[string]int64{"current_pending": 2}, nil
}

func (q *stubQueue) Enqueue(ctx context.Context, jobType string, payload interface{}) error {
	q.enqueued = append(q.enqueued, payload)
	return nil
}

func newTestHandler(t *testing.T, apiKey string) (http.Handler, *stubExtractions, *stubQueue) {
	t.Helper()
	repo := &stubExtractions{records: []*domain.ExtractionRecord{
		{ID: uuid.New(), RequestURL: "https://youtube.com/shorts/abc", Status: domain.ExtractionStatusSucceeded, Failures: []*domain.Failure{}},
	}}
	queue := &stubQueue{}
	router := NewRouter(logger.Discard(), Dependencies{
		Extractions: repo,
		Queue:       queue,
		AdminAPIKey: apiKey,
		Checks: map[string]handlers.HealthCheck{
			"postgres": func(ctx context.Context) error { return nil },
		},
	})
	return router.SetupRoutes(), repo, queue
}

func TestRoutes(t *testing.T) {
	handler, repo, _ := newTestHandler(t, "")
	known := repo.records[0].ID

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"health", http.MethodGet, "/health", http.StatusOK, `"status":"healthy"`},
		{"list", http.MethodGet, "/api/v1/extractions", http.StatusOK, `"count":1`},
		{"list bad limit", http.MethodGet, "/api/v1/extractions?limit=abc", http.StatusBadRequest, "limit"},
		{"get known", http.MethodGet, "/api/v1/extractions/" + known.String(), http.StatusOK, known.String()},
		{"get unknown", http.MethodGet, "/api/v1/extractions/" + uuid.NewString(), http.StatusNotFound, "not found"},
		{"get malformed", http.MethodGet, "/api/v1/extractions/not-a-uuid", http.StatusBadRequest, "Invalid"},
		{"stats", http.MethodGet, "/api/v1/stats", http.StatusOK, `"current_pending":2`},
		{"preflight", http.MethodOptions, "/api/v1/stats", http.StatusOK, ""},
		{"wrong method", http.MethodDelete, "/api/v1/extractions", http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.wantBody)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
				t.Errorf("missing CORS header, got %q", got)
			}
		})
	}
}

func TestListRecentClampsLimit(t *testing.T) {
	handler, repo, _ := newTestHandler(t, "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/extractions?limit=5000", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if repo.lastLimit != handlers.MaxPaginationLimit {
		t.Errorf("limit passed to repository = %d, want %d", repo.lastLimit, handlers.MaxPaginationLimit)
	}
}

func TestAdminAuth(t *testing.T) {
	handler, _, _ := newTestHandler(t, "secret")

	tests := []struct {
		name       string
		path       string
		auth       string
		wantStatus int
	}{
		{"health stays open", "/health", "", http.StatusOK},
		{"missing header", "/api/v1/stats", "", http.StatusUnauthorized},
		{"wrong key", "/api/v1/stats", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "/api/v1/stats", "Basic secret", http.StatusUnauthorized},
		{"valid key", "/api/v1/stats", "Bearer secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestAdminEnqueue(t *testing.T) {
	handler, _, queue := newTestHandler(t, "")

	t.Run("queues a normalized request", func(t *testing.T) {
		body := `{"url":"www.instagram.com/reel/Cx1AbC/?igsh=abc","quality":"best"}`
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/extractions", strings.NewReader(body)))

		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
		}
		var resp handlers.EnqueueResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.URL != "https://instagram.com/reel/Cx1AbC/" || resp.Platform != domain.PlatformInstagram || resp.Quality != domain.QualityBest {
			t.Errorf("unexpected response %+v", resp)
		}
		if len(queue.enqueued) != 1 {
			t.Fatalf("expected one job, got %d", len(queue.enqueued))
		}
		if job := queue.enqueued[0].(domain.ExtractJob); job.RequestID != resp.RequestID {
			t.Errorf("queued job %+v does not match response", job)
		}
	})

	t.Run("rejects a missing url", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/extractions", strings.NewReader(`{}`)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHealthReportsFailingDependency(t *testing.T) {
	router := NewRouter(logger.Discard(), Dependencies{
		Extractions: &stubExtractions{},
		Checks: map[string]handlers.HealthCheck{
			"postgres": func(ctx context.Context) error { return nil },
			"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
		},
	})

	rec := httptest.NewRecorder()
	router.SetupRoutes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp handlers.HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Checks["redis"] != "connection refused" || resp.Checks["postgres"] != "ok" {
		t.Errorf("unexpected checks %v", resp.Checks)
	}
}

func TestAdminRoutesNeedQueue(t *testing.T) {
	router := NewRouter(logger.Discard(), Dependencies{Extractions: &stubExtractions{}})
	rec := httptest.NewRecorder()
	router.SetupRoutes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/extractions", strings.NewReader(`{"url":"https://youtube.com/shorts/a"}`)))
	if rec.Code == http.StatusAccepted {
		t.Error("admin enqueue should not be routed without a queue")
	}
}
