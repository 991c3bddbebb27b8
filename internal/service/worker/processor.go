package worker

import (
	"context"
	"fmt"
	"log/slog"

	"reelfetch/internal/domain"
	"reelfetch/internal/service/extractor"
)

// extractionRunner is the part of *extractor.Chain the worker needs
type extractionRunner interface {
	Run(ctx context.Context, req domain.MediaRequest) *extractor.Report
}

// JobProcessor runs extract_media jobs: extract, record, deliver, clean up
type JobProcessor struct {
	logger    *slog.Logger
	chain     extractionRunner
	records   domain.ExtractionRepository
	deliverer Deliverer
}

// NewJobProcessor creates a new job processor; records may be nil
func NewJobProcessor(
	logger *slog.Logger,
	chain extractionRunner,
	records domain.ExtractionRepository,
	deliverer Deliverer,
) *JobProcessor {
	return &JobProcessor{
		logger:    logger,
		chain:     chain,
		records:   records,
		deliverer: deliverer,
	}
}

// ProcessExtraction handles one extract_media payload. A returned error asks
// the queue to retry; exhausted strategies are delivered as a failure and succeed.
func (p *JobProcessor) ProcessExtraction(ctx context.Context, payload map[string]interface{}, logger *slog.Logger) error {
	job, err := domain.DecodeExtractJob(payload)
	if err != nil {
		return fmt.Errorf("invalid extract_media payload: %w", err)
	}

	req := job.Request()
	logger = logger.With(
		"request_id", job.RequestID,
		"url", req.RawURL,
		"platform", req.Platform,
		"quality", req.Quality)

	report := p.chain.Run(ctx, req)
	if report.Result != nil {
		defer func() {
			if err := extractor.RemoveResultFiles(report.Result); err != nil {
				logger.Warn("Failed to remove delivered files", "error", err)
			}
		}()
	}

	// A shutdown mid-extraction is retried rather than reported to the user
	if report.Result == nil && ctx.Err() != nil {
		return fmt.Errorf("extraction interrupted: %w", ctx.Err())
	}

	p.saveRecord(ctx, req, report, logger)

	delivery := Delivery{Job: job, Result: report.Result}
	if report.Canonical != nil {
		delivery.Canonical = report.Canonical.Value
	}
	if err := p.deliverer.Deliver(ctx, delivery); err != nil {
		return fmt.Errorf("failed to deliver result: %w", err)
	}

	if report.Result == nil {
		logger.Info("Extraction failed, requester notified",
			"failures", len(report.Failures),
			"error", report.Err())
	} else {
		logger.Info("Extraction delivered",
			"strategy", report.Strategy,
			"result", domain.DescribeResult(report.Result),
			"duration", report.Duration)
	}
	return nil
}

func (p *JobProcessor) saveRecord(ctx context.Context, req domain.MediaRequest, report *extractor.Report, logger *slog.Logger) {
	if p.records == nil {
		return
	}
	record := extractor.NewRecord(req, report)
	if err := p.records.Create(context.WithoutCancel(ctx), record); err != nil {
		logger.Error("Failed to store extraction record", "error", err)
	}
}
