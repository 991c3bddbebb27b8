package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExtractionRecord is the diagnostics trail of one extraction call
type ExtractionRecord struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	RequestURL   string     `json:"request_url" db:"request_url"`
	CanonicalURL *string    `json:"canonical_url,omitempty" db:"canonical_url"`
	Platform     Platform   `json:"platform" db:"platform"`
	Quality      Quality    `json:"quality" db:"quality"`
	Status       string     `json:"status" db:"status"`
	ResultKind   ResultKind `json:"result_kind" db:"result_kind"`
	Strategy     *string    `json:"strategy,omitempty" db:"strategy"`
	Failures     []*Failure `json:"failures" db:"failures"`
	DurationMS   int64      `json:"duration_ms" db:"duration_ms"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Extraction status constants
const (
	ExtractionStatusSucceeded = "succeeded"
	ExtractionStatusFailed    = "failed"
)

// StrategyStat aggregates outcomes for one winning strategy (or "none")
type StrategyStat struct {
	Strategy string `json:"strategy"`
	Status   string `json:"status"`
	Count    int64  `json:"count"`
}

// ExtractionRepository defines the interface for the diagnostics store
type ExtractionRepository interface {
	// Create inserts a new extraction record
	Create(ctx context.Context, record *ExtractionRecord) error

	// GetByID returns one record, or sql.ErrNoRows when it does not exist
	GetByID(ctx context.Context, id uuid.UUID) (*ExtractionRecord, error)

	// ListRecent returns the most recent records, newest first
	ListRecent(ctx context.Context, limit int) ([]*ExtractionRecord, error)

	// StrategyStats returns outcome counts grouped by strategy and status
	StrategyStats(ctx context.Context) ([]*StrategyStat, error)
}

// QueueRepository defines the interface for job queue operations
type QueueRepository interface {
	// Enqueue adds a new job to the queue
	Enqueue(ctx context.Context, jobType string, payload interface{}) error

	// Dequeue retrieves the next job from the queue, or nil when none arrived in time
	Dequeue(ctx context.Context, jobType string) (*QueueJob, error)

	// Complete marks a job as completed
	Complete(ctx context.Context, jobID string) error

	// Fail marks a job as failed with error details
	Fail(ctx context.Context, jobID string, errorMsg string) error

	// GetPendingCount returns the number of pending jobs
	GetPendingCount(ctx context.Context, jobType string) (int, error)

	// ProcessRetryJobs moves due retries back onto the queue
	ProcessRetryJobs(ctx context.Context, jobType string) error
}

// QueueJob represents a job in the processing queue
type QueueJob struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Status    string                 `json:"status"`
	CreatedAt string                 `json:"created_at"`
	UpdatedAt *string                `json:"updated_at"`
}

// Job types
const (
	JobTypeExtractMedia = "extract_media"
)

// Job statuses
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// ExtractJob is the payload of an extract_media job
type ExtractJob struct {
	RequestID string   `json:"request_id"`
	URL       string   `json:"url"`
	Platform  Platform `json:"platform"`
	Quality   Quality  `json:"quality"`

	// Reply target in the conversational front-end
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id,omitempty"`
	GuildID   string `json:"guild_id,omitempty"`
	UserID    string `json:"user_id"`
}

// Request converts the job into a MediaRequest
func (j ExtractJob) Request() MediaRequest {
	return NewMediaRequest(j.URL, j.Platform, j.Quality)
}

// DecodeExtractJob converts a dequeued job payload back into an ExtractJob
func DecodeExtractJob(payload map[string]interface{}) (ExtractJob, error) {
	var job ExtractJob
	data, err := json.Marshal(payload)
	if err != nil {
		return job, fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, &job); err != nil {
		return job, fmt.Errorf("failed to decode extract job: %w", err)
	}
	if job.URL == "" {
		return job, fmt.Errorf("extract job has no url")
	}
	return job, nil
}
