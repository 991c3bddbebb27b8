package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"reelfetch/internal/domain"
)

// Key layout, all suffixed with the job type:
//
//	reelfetch:queue:<type>       pending job IDs (list)
//	reelfetch:processing:<type>  jobs handed to a worker (list)
//	reelfetch:retry:<type>       jobs waiting for their backoff (zset, score = due unix time)
//	reelfetch:dead:<type>        jobs out of retries (list)
//	reelfetch:stats:<type>       counters (hash)
//	reelfetch:job:<id>           job record (hash)
const keyPrefix = "reelfetch:"

const (
	maxRetries     = 3
	initialBackoff = 2 * time.Second
	maxBackoff     = 2 * time.Minute
	jobTTL         = 24 * time.Hour
	finishedJobTTL = 6 * time.Hour

	// dequeueBlock bounds each blocking pop so consumers notice shutdown
	dequeueBlock = 5 * time.Second
)

type queueKeys struct {
	queue, processing, retry, dead, stats string
}

func keysFor(jobType string) queueKeys {
	return queueKeys{
		queue:      keyPrefix + "queue:" + jobType,
		processing: keyPrefix + "processing:" + jobType,
		retry:      keyPrefix + "retry:" + jobType,
		dead:       keyPrefix + "dead:" + jobType,
		stats:      keyPrefix + "stats:" + jobType,
	}
}

func jobKey(id string) string {
	return keyPrefix + "job:" + id
}

// storedJob is the job record kept in Redis
type storedJob struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Payload    map[string]interface{} `json:"payload"`
	Status     string                 `json:"status"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  *time.Time             `json:"updated_at,omitempty"`
	RetryCount int                    `json:"retry_count"`
	MaxRetries int                    `json:"max_retries"`
	NextRetry  *time.Time             `json:"next_retry,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

func (j *storedJob) toDomain() *domain.QueueJob {
	out := &domain.QueueJob{
		ID:        j.ID,
		Type:      j.Type,
		Payload:   j.Payload,
		Status:    j.Status,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
	}
	if j.UpdatedAt != nil {
		updated := j.UpdatedAt.Format(time.RFC3339)
		out.UpdatedAt = &updated
	}
	return out
}

// QueueRepository implements domain.QueueRepository on Redis lists
type QueueRepository struct {
	client *redis.Client
	logger *slog.Logger
}

// NewQueueRepository creates a new Redis queue repository
func NewQueueRepository(client *redis.Client, logger *slog.Logger) *QueueRepository {
	return &QueueRepository{
		client: client,
		logger: logger,
	}
}

// Enqueue adds a new job to the queue
func (r *QueueRepository) Enqueue(ctx context.Context, jobType string, payload interface{}) error {
	payloadMap, err := toPayloadMap(payload)
	if err != nil {
		return err
	}

	job := &storedJob{
		ID:         uuid.NewString(),
		Type:       jobType,
		Payload:    payloadMap,
		Status:     domain.JobStatusPending,
		CreatedAt:  time.Now(),
		MaxRetries: maxRetries,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	keys := keysFor(jobType)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID),
		"data", string(data),
		"status", job.Status,
		"type", job.Type,
		"created_at", job.CreatedAt.Unix())
	pipe.Expire(ctx, jobKey(job.ID), jobTTL)
	pipe.LPush(ctx, keys.queue, job.ID)
	pipe.HIncrBy(ctx, keys.stats, "total_enqueued", 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	r.logger.Info("Job enqueued",
		"job_id", job.ID,
		"job_type", jobType)
	return nil
}

// Dequeue blocks for the next job; it returns nil, nil when none arrived in time
func (r *QueueRepository) Dequeue(ctx context.Context, jobType string) (*domain.QueueJob, error) {
	keys := keysFor(jobType)

	// The move into the processing list is atomic so a crashed worker loses nothing
	jobID, err := r.client.BRPopLPush(ctx, keys.queue, keys.processing, dequeueBlock).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	job, err := r.load(ctx, jobID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.logger.Warn("Job data expired, dropping", "job_id", jobID)
			r.client.LRem(ctx, keys.processing, 1, jobID)
			return nil, nil
		}
		return nil, err
	}

	now := time.Now()
	job.Status = domain.JobStatusProcessing
	job.UpdatedAt = &now

	pipe := r.client.TxPipeline()
	if err := r.save(ctx, pipe, job, jobTTL); err != nil {
		return nil, err
	}
	pipe.HIncrBy(ctx, keys.stats, "dequeued", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to update job status",
			"error", err,
			"job_id", jobID)
	}

	r.logger.Debug("Job dequeued",
		"job_id", job.ID,
		"job_type", jobType,
		"retry_count", job.RetryCount)

	return job.toDomain(), nil
}

// Complete marks a job as completed and removes it from the processing list
func (r *QueueRepository) Complete(ctx context.Context, jobID string) error {
	job, err := r.load(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job for completion: %w", err)
	}

	now := time.Now()
	job.Status = domain.JobStatusCompleted
	job.UpdatedAt = &now

	keys := keysFor(job.Type)
	pipe := r.client.TxPipeline()
	if err := r.save(ctx, pipe, job, finishedJobTTL); err != nil {
		return err
	}
	pipe.LRem(ctx, keys.processing, 1, jobID)
	pipe.HIncrBy(ctx, keys.stats, "completed", 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	r.logger.Debug("Job completed",
		"job_id", jobID,
		"job_type", job.Type)
	return nil
}

// Fail records errorMsg and schedules a retry with exponential backoff, or
// moves the job to the dead-letter list once its retries are spent.
func (r *QueueRepository) Fail(ctx context.Context, jobID string, errorMsg string) error {
	job, err := r.load(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job for failure: %w", err)
	}

	now := time.Now()
	job.Error = errorMsg
	job.UpdatedAt = &now
	job.RetryCount++

	keys := keysFor(job.Type)
	pipe := r.client.TxPipeline()

	if job.RetryCount <= job.MaxRetries {
		next := now.Add(retryDelay(job.RetryCount))
		job.NextRetry = &next
		job.Status = domain.JobStatusPending
		pipe.ZAdd(ctx, keys.retry, redis.Z{Score: float64(next.Unix()), Member: jobID})
		pipe.HIncrBy(ctx, keys.stats, "retried", 1)

		r.logger.Warn("Job scheduled for retry",
			"job_id", jobID,
			"job_type", job.Type,
			"retry_count", job.RetryCount,
			"next_retry", next,
			"error", errorMsg)
	} else {
		job.Status = domain.JobStatusFailed
		pipe.LPush(ctx, keys.dead, jobID)
		pipe.HIncrBy(ctx, keys.stats, "failed", 1)

		r.logger.Error("Job failed permanently",
			"job_id", jobID,
			"job_type", job.Type,
			"retry_count", job.RetryCount,
			"error", errorMsg)
	}

	if err := r.save(ctx, pipe, job, jobTTL); err != nil {
		return err
	}
	pipe.LRem(ctx, keys.processing, 1, jobID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to handle job failure: %w", err)
	}
	return nil
}

// GetPendingCount returns the number of jobs waiting in the queue
func (r *QueueRepository) GetPendingCount(ctx context.Context, jobType string) (int, error) {
	count, err := r.client.LLen(ctx, keysFor(jobType).queue).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get pending count: %w", err)
	}
	return int(count), nil
}

// ProcessRetryJobs moves retries whose backoff has elapsed back onto the queue.
// Several workers may call it concurrently; only the one whose ZREM wins re-queues a job.
func (r *QueueRepository) ProcessRetryJobs(ctx context.Context, jobType string) error {
	keys := keysFor(jobType)

	due, err := r.client.ZRangeByScore(ctx, keys.retry, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to get retry jobs: %w", err)
	}

	moved := 0
	for _, jobID := range due {
		removed, err := r.client.ZRem(ctx, keys.retry, jobID).Result()
		if err != nil {
			return fmt.Errorf("failed to claim retry job: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := r.client.LPush(ctx, keys.queue, jobID).Err(); err != nil {
			return fmt.Errorf("failed to requeue job %s: %w", jobID, err)
		}
		moved++
	}

	if moved > 0 {
		r.logger.Info("Requeued retry jobs",
			"job_type", jobType,
			"count", moved)
	}
	return nil
}

// GetQueueStats returns the counters and current list sizes for a job type
func (r *QueueRepository) GetQueueStats(ctx context.Context, jobType string) (map[string]int64, error) {
	keys := keysFor(jobType)

	counters, err := r.client.HGetAll(ctx, keys.stats).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}

	stats := make(map[string]int64, len(counters)+4)
	for k, v := range counters {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			stats[k] = n
		}
	}

	pipe := r.client.Pipeline()
	pending := pipe.LLen(ctx, keys.queue)
	processing := pipe.LLen(ctx, keys.processing)
	retrying := pipe.ZCard(ctx, keys.retry)
	dead := pipe.LLen(ctx, keys.dead)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to get queue lengths: %w", err)
	}

	stats["current_pending"] = pending.Val()
	stats["current_processing"] = processing.Val()
	stats["current_retrying"] = retrying.Val()
	stats["current_dead"] = dead.Val()
	return stats, nil
}

func (r *QueueRepository) load(ctx context.Context, jobID string) (*storedJob, error) {
	data, err := r.client.HGet(ctx, jobKey(jobID), "data").Result()
	if err != nil {
		return nil, err
	}
	var job storedJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

func (r *QueueRepository) save(ctx context.Context, pipe redis.Pipeliner, job *storedJob, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	fields := []interface{}{
		"data", string(data),
		"status", job.Status,
		"retry_count", job.RetryCount,
	}
	if job.UpdatedAt != nil {
		fields = append(fields, "updated_at", job.UpdatedAt.Unix())
	}
	if job.Error != "" {
		fields = append(fields, "error", job.Error)
	}
	pipe.HSet(ctx, jobKey(job.ID), fields...)
	pipe.Expire(ctx, jobKey(job.ID), ttl)
	return nil
}

// retryDelay is the backoff before the given (1-based) retry
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := initialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// toPayloadMap round-trips a typed payload through JSON into the generic job map
func toPayloadMap(payload interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload to map: %w", err)
	}
	return out, nil
}
