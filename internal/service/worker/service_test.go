package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"reelfetch/internal/config"
	"reelfetch/internal/domain"
	"reelfetch/internal/pkg/logger"
	"reelfetch/internal/service/extractor"
)

type fakeRunner struct {
	report func(ctx context.Context) *extractor.Report
	calls  int
}

func (r *fakeRunner) Run(ctx context.Context, req domain.MediaRequest) *extractor.Report {
	r.calls++
	return r.report(ctx)
}

type fakeRecords struct {
	mu      sync.Mutex
	created []*domain.ExtractionRecord
	err     error
}

func (r *fakeRecords) Create(ctx context.Context, record *domain.ExtractionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, record)
	return r.err
}

func (r *fakeRecords) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExtractionRecord, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeRecords) ListRecent(ctx context.Context, limit int) ([]*domain.ExtractionRecord, error) {
	return r.created, nil
}

func (r *fakeRecords) StrategyStats(ctx context.Context) ([]*domain.StrategyStat, error) {
	return nil, nil
}

type fakeDeliverer struct {
	mu         sync.Mutex
	deliveries []Delivery
	err        error
	// seen records whether result files existed while delivering
	seen []bool
}

func (d *fakeDeliverer) Deliver(ctx context.Context, dl Delivery) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries = append(d.deliveries, dl)
	exists := true
	if dl.Result != nil {
		for _, f := range dl.Result.Files() {
			if _, err := os.Stat(f); err != nil {
				exists = false
			}
		}
	}
	d.seen = append(d.seen, exists)
	return d.err
}

// fakeQueue hands out a fixed list of jobs then reports an empty queue
type fakeQueue struct {
	mu        sync.Mutex
	jobs      []*domain.QueueJob
	completed []string
	failed    []string
	retries   int
}

func (q *fakeQueue) Enqueue(ctx context.Context, jobType string, payload interface{}) error {
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context, jobType string) (*domain.QueueJob, error) {
	q.mu.Lock()
	if len(q.jobs) > 0 {
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()
		return job, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, nil
	}
}

func (q *fakeQueue) Complete(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, jobID)
	return nil
}

func (q *fakeQueue) Fail(ctx context.Context, jobID string, errorMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, jobID)
	return nil
}

func (q *fakeQueue) GetPendingCount(ctx context.Context, jobType string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs), nil
}

func (q *fakeQueue) ProcessRetryJobs(ctx context.Context, jobType string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retries++
	return nil
}

func (q *fakeQueue) settled() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.completed) + len(q.failed)
}

func extractPayload(url string) map[string]interface{} {
	return map[string]interface{}{
		"request_id": "req-1",
		"url":        url,
		"quality":    "standard",
		"channel_id": "chan",
		"message_id": "msg",
		"user_id":    "user",
	}
}

func videoReport(t *testing.T) *extractor.Report {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("mp4"), 0o600); err != nil {
		t.Fatal(err)
	}
	return &extractor.Report{
		Canonical: &domain.CanonicalURL{Value: "https://youtube.com/shorts/abc", Platform: domain.PlatformYouTube},
		Strategy:  "direct_api",
		Result:    &domain.VideoResult{LocalPath: path, Description: "clip"},
	}
}

func TestProcessExtraction(t *testing.T) {
	log := logger.Discard()

	t.Run("delivers, records and cleans up a success", func(t *testing.T) {
		report := videoReport(t)
		records := &fakeRecords{}
		deliverer := &fakeDeliverer{}
		p := NewJobProcessor(log, &fakeRunner{report: func(context.Context) *extractor.Report { return report }}, records, deliverer)

		if err := p.ProcessExtraction(context.Background(), extractPayload("https://youtube.com/shorts/abc"), log); err != nil {
			t.Fatalf("ProcessExtraction() error = %v", err)
		}

		if len(deliverer.deliveries) != 1 || !deliverer.seen[0] {
			t.Fatalf("expected one delivery with files present, got %+v", deliverer.deliveries)
		}
		if got := deliverer.deliveries[0].Canonical; got != "https://youtube.com/shorts/abc" {
			t.Errorf("delivery canonical = %q", got)
		}
		if len(records.created) != 1 || records.created[0].Status != domain.ExtractionStatusSucceeded {
			t.Errorf("expected a succeeded record, got %+v", records.created)
		}
		if _, err := os.Stat(report.Result.Files()[0]); !os.IsNotExist(err) {
			t.Errorf("result file should be removed after delivery, stat err = %v", err)
		}
	})

	t.Run("exhausted chain notifies the requester", func(t *testing.T) {
		records := &fakeRecords{}
		deliverer := &fakeDeliverer{}
		failed := &extractor.Report{Failures: []*domain.Failure{{Strategy: "html_scrape", Kind: domain.FailureBlocked}}}
		p := NewJobProcessor(log, &fakeRunner{report: func(context.Context) *extractor.Report { return failed }}, records, deliverer)

		if err := p.ProcessExtraction(context.Background(), extractPayload("https://instagram.com/reel/x/"), log); err != nil {
			t.Fatalf("ProcessExtraction() error = %v", err)
		}
		if len(deliverer.deliveries) != 1 || deliverer.deliveries[0].Result != nil {
			t.Errorf("expected a failure delivery, got %+v", deliverer.deliveries)
		}
		if len(records.created) != 1 || records.created[0].Status != domain.ExtractionStatusFailed {
			t.Errorf("expected a failed record, got %+v", records.created)
		}
	})

	t.Run("delivery errors are retried and still clean up", func(t *testing.T) {
		report := videoReport(t)
		deliverer := &fakeDeliverer{err: errors.New("discord unavailable")}
		p := NewJobProcessor(log, &fakeRunner{report: func(context.Context) *extractor.Report { return report }}, nil, deliverer)

		if err := p.ProcessExtraction(context.Background(), extractPayload("https://youtube.com/shorts/abc"), log); err == nil {
			t.Fatal("expected an error so the job is retried")
		}
		if _, err := os.Stat(report.Result.Files()[0]); !os.IsNotExist(err) {
			t.Error("result file should be removed even when delivery fails")
		}
	})

	t.Run("interrupted extraction is retried without notifying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		deliverer := &fakeDeliverer{}
		p := NewJobProcessor(log, &fakeRunner{report: func(context.Context) *extractor.Report { return &extractor.Report{} }}, nil, deliverer)

		if err := p.ProcessExtraction(ctx, extractPayload("https://youtube.com/shorts/abc"), log); err == nil {
			t.Fatal("expected an error")
		}
		if len(deliverer.deliveries) != 0 {
			t.Error("requester should not be told about an interrupted job")
		}
	})

	t.Run("invalid payload", func(t *testing.T) {
		runner := &fakeRunner{report: func(context.Context) *extractor.Report { return &extractor.Report{} }}
		p := NewJobProcessor(log, runner, nil, &fakeDeliverer{})

		if err := p.ProcessExtraction(context.Background(), map[string]interface{}{"channel_id": "x"}, log); err == nil {
			t.Fatal("expected an error for a payload without url")
		}
		if runner.calls != 0 {
			t.Error("chain should not run for an invalid payload")
		}
	})
}

func TestWorkerServiceProcessesQueue(t *testing.T) {
	log := logger.Discard()
	queue := &fakeQueue{jobs: []*domain.QueueJob{
		{ID: "ok", Type: domain.JobTypeExtractMedia, Payload: extractPayload("https://youtube.com/shorts/abc")},
		{ID: "bad", Type: domain.JobTypeExtractMedia, Payload: map[string]interface{}{}},
		{ID: "odd", Type: "unknown", Payload: map[string]interface{}{}},
	}}

	runner := &fakeRunner{report: func(context.Context) *extractor.Report {
		return &extractor.Report{Failures: []*domain.Failure{{Strategy: "browser", Kind: domain.FailureTimeout}}}
	}}
	processor := NewJobProcessor(log, runner, nil, &fakeDeliverer{})

	cfg := &config.Config{Worker: config.WorkerConfig{Concurrency: 2, ShutdownTimeout: time.Second}}
	w := New(cfg, log, queue, processor, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for queue.settled() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if len(queue.completed) != 1 || queue.completed[0] != "ok" {
		t.Errorf("completed = %v, want [ok]", queue.completed)
	}
	if len(queue.failed) != 2 {
		t.Errorf("failed = %v, want the invalid and unknown jobs", queue.failed)
	}

	stats := w.GetStats()
	if stats.JobsProcessed != 3 || stats.JobsSucceeded != 1 || stats.JobsFailed != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestWorkerServiceRejectsZeroConcurrency(t *testing.T) {
	cfg := &config.Config{Worker: config.WorkerConfig{Concurrency: 0}}
	w := New(cfg, logger.Discard(), &fakeQueue{}, nil, nil)
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected an error for zero concurrency")
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() on an unstarted worker = %v", err)
	}
}
