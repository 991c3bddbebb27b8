package extractor

import (
	"time"

	"github.com/google/uuid"

	"reelfetch/internal/domain"
)

// NewRecord turns a chain report into the diagnostics record stored for it
func NewRecord(req domain.MediaRequest, report *Report) *domain.ExtractionRecord {
	record := &domain.ExtractionRecord{
		ID:         uuid.New(),
		RequestURL: req.RawURL,
		Platform:   req.Platform,
		Quality:    req.Quality,
		Status:     domain.ExtractionStatusFailed,
		ResultKind: domain.ResultEmpty,
		Failures:   report.Failures,
		DurationMS: report.Duration.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	if record.Failures == nil {
		record.Failures = []*domain.Failure{}
	}

	if report.Canonical != nil {
		canonical := report.Canonical.Value
		record.CanonicalURL = &canonical
		record.Platform = report.Canonical.Platform
	}
	if report.Result != nil {
		strategy := report.Strategy
		record.Status = domain.ExtractionStatusSucceeded
		record.ResultKind = report.Result.Kind()
		record.Strategy = &strategy
	}
	return record
}
