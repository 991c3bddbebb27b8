package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"reelfetch/internal/domain"
)

// maxListLimit caps ListRecent page sizes
const maxListLimit = 200

// ExtractionRepository implements domain.ExtractionRepository using PostgreSQL
type ExtractionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExtractionRepository creates a new PostgreSQL extraction repository
func NewExtractionRepository(db *sql.DB, logger *slog.Logger) *ExtractionRepository {
	return &ExtractionRepository{
		db:     db,
		logger: logger,
	}
}

const extractionColumns = `
	id, request_url, canonical_url, platform, quality, status,
	result_kind, strategy, failures, duration_ms, created_at`

// Create inserts a new extraction record
func (r *ExtractionRepository) Create(ctx context.Context, record *domain.ExtractionRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	failures := record.Failures
	if failures == nil {
		failures = []*domain.Failure{}
	}
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("failed to marshal extraction failures: %w", err)
	}

	query := `
		INSERT INTO extractions (` + extractionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()))
		RETURNING created_at`

	var createdAt interface{}
	if !record.CreatedAt.IsZero() {
		createdAt = record.CreatedAt
	}

	err = r.db.QueryRowContext(ctx, query,
		record.ID,
		record.RequestURL,
		record.CanonicalURL,
		record.Platform,
		record.Quality,
		record.Status,
		record.ResultKind,
		record.Strategy,
		failuresJSON,
		record.DurationMS,
		createdAt,
	).Scan(&record.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create extraction record",
			"error", err,
			"extraction_id", record.ID,
			"url", record.RequestURL)
		return fmt.Errorf("failed to create extraction record: %w", err)
	}

	r.logger.Debug("Extraction record created",
		"extraction_id", record.ID,
		"status", record.Status)
	return nil
}

// GetByID returns one extraction record, or sql.ErrNoRows
func (r *ExtractionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExtractionRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+extractionColumns+` FROM extractions WHERE id = $1`, id)
	record, err := scanExtraction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to query extraction: %w", err)
	}
	return record, nil
}

// ListRecent returns the newest records first
func (r *ExtractionRepository) ListRecent(ctx context.Context, limit int) ([]*domain.ExtractionRecord, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+extractionColumns+` FROM extractions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list extractions: %w", err)
	}
	defer rows.Close()

	var records []*domain.ExtractionRecord
	for rows.Next() {
		record, err := scanExtraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan extraction: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate extractions: %w", err)
	}
	return records, nil
}

// StrategyStats counts outcomes per winning strategy; failed extractions group under "none"
func (r *ExtractionRepository) StrategyStats(ctx context.Context) ([]*domain.StrategyStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(strategy, 'none'), status, COUNT(*)
		FROM extractions
		GROUP BY 1, 2
		ORDER BY 3 DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy stats: %w", err)
	}
	defer rows.Close()

	var stats []*domain.StrategyStat
	for rows.Next() {
		s := &domain.StrategyStat{}
		if err := rows.Scan(&s.Strategy, &s.Status, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan strategy stat: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate strategy stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExtraction(row rowScanner) (*domain.ExtractionRecord, error) {
	record := &domain.ExtractionRecord{}
	var canonicalURL, strategy sql.NullString
	var failuresJSON []byte

	err := row.Scan(
		&record.ID,
		&record.RequestURL,
		&canonicalURL,
		&record.Platform,
		&record.Quality,
		&record.Status,
		&record.ResultKind,
		&strategy,
		&failuresJSON,
		&record.DurationMS,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if canonicalURL.Valid {
		record.CanonicalURL = &canonicalURL.String
	}
	if strategy.Valid {
		record.Strategy = &strategy.String
	}

	record.Failures = []*domain.Failure{}
	if len(failuresJSON) > 0 {
		if err := json.Unmarshal(failuresJSON, &record.Failures); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failures of %s: %w", record.ID, err)
		}
	}
	return record, nil
}
