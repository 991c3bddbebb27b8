package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"reelfetch/internal/config"
	"reelfetch/internal/domain"
	"reelfetch/internal/service/extractor"
)

// retryInterval is how often due retries are moved back onto the queue
const retryInterval = 5 * time.Second

// WorkerService consumes extraction jobs from the queue
type WorkerService struct {
	config *config.Config
	logger *slog.Logger

	queueRepo domain.QueueRepository
	processor *JobProcessor
	pools     extractor.Pools

	// stopConsuming ends the dequeue loops; stopJobs interrupts in-flight jobs
	stopConsuming context.CancelFunc
	stopJobs      context.CancelFunc
	wg            sync.WaitGroup

	statsMu sync.Mutex
	stats   WorkerStats
}

// WorkerStats tracks worker performance metrics
type WorkerStats struct {
	JobsProcessed  int64
	JobsSucceeded  int64
	JobsFailed     int64
	LastJobTime    time.Time
	AverageJobTime time.Duration
}

// record adds one finished job to the running totals
func (s *WorkerStats) record(d time.Duration, ok bool) {
	s.JobsProcessed++
	if ok {
		s.JobsSucceeded++
	} else {
		s.JobsFailed++
	}
	s.LastJobTime = time.Now()
	s.AverageJobTime += (d - s.AverageJobTime) / time.Duration(s.JobsProcessed)
}

// New creates a new worker service; pools may be nil when no browser is configured
func New(
	config *config.Config,
	logger *slog.Logger,
	queueRepo domain.QueueRepository,
	processor *JobProcessor,
	pools extractor.Pools,
) *WorkerService {
	return &WorkerService{
		config:    config,
		logger:    logger,
		queueRepo: queueRepo,
		processor: processor,
		pools:     pools,
	}
}

// Start launches browser pools, the consumers and the retry mover. It returns
// once everything is running; call Stop to shut down.
func (w *WorkerService) Start(ctx context.Context) error {
	concurrency := w.config.Worker.Concurrency
	if concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be positive, got %d", concurrency)
	}

	// A pool that fails here is skipped by the chain, extraction carries on without it
	if err := w.pools.StartAll(ctx); err != nil {
		w.logger.Warn("Some browser pools failed to start", "error", err)
	}

	consumeCtx, stopConsuming := context.WithCancel(ctx)
	jobCtx, stopJobs := context.WithCancel(context.WithoutCancel(ctx))
	w.stopConsuming = stopConsuming
	w.stopJobs = stopJobs

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.consume(consumeCtx, jobCtx, id)
		}(i)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.moveRetries(consumeCtx)
	}()

	w.logger.Info("Worker service started",
		"concurrency", concurrency,
		"job_type", domain.JobTypeExtractMedia)
	return nil
}

// Stop stops dequeuing, waits for in-flight jobs up to the shutdown timeout,
// then closes the browser pools.
func (w *WorkerService) Stop() error {
	if w.stopConsuming == nil {
		return nil
	}
	w.logger.Info("Stopping worker service...")
	w.stopConsuming()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	timeout := w.config.Worker.ShutdownTimeout
	select {
	case <-done:
	case <-time.After(timeout):
		w.logger.Warn("In-flight jobs did not finish in time, interrupting", "timeout", timeout)
		w.stopJobs()
		<-done
	}
	w.stopJobs()

	closeCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := w.pools.CloseAll(closeCtx); err != nil {
		return fmt.Errorf("failed to close browser pools: %w", err)
	}

	w.logger.Info("Worker service stopped")
	return nil
}

// consume dequeues jobs until consumeCtx ends; jobs run on jobCtx so a
// shutdown lets them finish
func (w *WorkerService) consume(consumeCtx, jobCtx context.Context, id int) {
	logger := w.logger.With("consumer", id)
	for consumeCtx.Err() == nil {
		job, err := w.queueRepo.Dequeue(consumeCtx, domain.JobTypeExtractMedia)
		if err != nil {
			if consumeCtx.Err() != nil || errors.Is(err, context.Canceled) {
				break
			}
			logger.Error("Failed to dequeue job", "error", err)
			sleepCtx(consumeCtx, time.Second)
			continue
		}
		if job == nil {
			continue
		}
		w.processJob(jobCtx, job)
	}
	logger.Debug("Consumer stopped")
}

func (w *WorkerService) moveRetries(ctx context.Context) {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queueRepo.ProcessRetryJobs(ctx, domain.JobTypeExtractMedia); err != nil && ctx.Err() == nil {
				w.logger.Error("Failed to process retry jobs", "error", err)
			}
		}
	}
}

// processJob runs one job and settles it on the queue
func (w *WorkerService) processJob(ctx context.Context, job *domain.QueueJob) {
	start := time.Now()
	jobLogger := w.logger.With(
		"job_id", job.ID,
		"job_type", job.Type)

	var processingErr error
	switch job.Type {
	case domain.JobTypeExtractMedia:
		processingErr = w.processor.ProcessExtraction(ctx, job.Payload, jobLogger)
	default:
		processingErr = fmt.Errorf("unknown job type: %s", job.Type)
	}

	// Queue bookkeeping must happen even when the job was interrupted
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if processingErr != nil {
		jobLogger.Error("Job processing failed", "error", processingErr)
		if err := w.queueRepo.Fail(settleCtx, job.ID, processingErr.Error()); err != nil {
			jobLogger.Error("Failed to mark job as failed", "error", err)
		}
	} else if err := w.queueRepo.Complete(settleCtx, job.ID); err != nil {
		jobLogger.Error("Failed to mark job as completed", "error", err)
	}

	duration := time.Since(start)
	w.statsMu.Lock()
	w.stats.record(duration, processingErr == nil)
	w.statsMu.Unlock()
	jobLogger.Debug("Job processing completed",
		"duration", duration,
		"success", processingErr == nil)
}

// GetStats returns a snapshot of the worker statistics
func (w *WorkerService) GetStats() WorkerStats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

// HealthCheck reports whether the queue is reachable
func (w *WorkerService) HealthCheck(ctx context.Context) error {
	if _, err := w.queueRepo.GetPendingCount(ctx, domain.JobTypeExtractMedia); err != nil {
		return fmt.Errorf("queue connectivity check failed: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
