package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"reelfetch/internal/domain"
)

// Migration is one versioned schema change
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations are applied in order, each inside its own transaction
var migrations = []Migration{
	{
		Version: 1,
		Name:    "extractions",
		SQL: `
			CREATE TABLE IF NOT EXISTS extractions (
				id UUID PRIMARY KEY,
				request_url TEXT NOT NULL,
				canonical_url TEXT,
				platform VARCHAR(20) NOT NULL,
				quality VARCHAR(20) NOT NULL,
				status VARCHAR(20) NOT NULL,
				result_kind VARCHAR(20) NOT NULL DEFAULT 'empty',
				strategy VARCHAR(50),

				-- ordered [{strategy, kind, detail}]
				failures JSONB NOT NULL DEFAULT '[]',

				duration_ms BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),

				CHECK (status IN ('succeeded', 'failed')),
				CHECK (result_kind IN ('empty', 'video', 'photo_set'))
			);

			CREATE INDEX IF NOT EXISTS idx_extractions_created
			ON extractions(created_at DESC);

			CREATE INDEX IF NOT EXISTS idx_extractions_platform_status
			ON extractions(platform, status);
		`,
	},
	{
		Version: 2,
		Name:    "extractions_platform_constraint",
		SQL: `
			ALTER TABLE extractions DROP CONSTRAINT IF EXISTS extractions_platform_check;
			ALTER TABLE extractions ADD CONSTRAINT extractions_platform_check ` + platformConstraintSQL() + `;
		`,
	},
	{
		Version: 3,
		Name:    "extractions_strategy_index",
		SQL: `
			CREATE INDEX IF NOT EXISTS idx_extractions_strategy
			ON extractions(strategy) WHERE strategy IS NOT NULL;
		`,
	},
}

// platformConstraintSQL builds the CHECK clause from the known platforms
func platformConstraintSQL() string {
	quoted := make([]string, 0, len(domain.GetValidPlatforms()))
	for _, p := range domain.GetValidPlatforms() {
		quoted = append(quoted, "'"+string(p)+"'")
	}
	return "CHECK (platform IN (" + strings.Join(quoted, ", ") + "))"
}

// Open connects to PostgreSQL and verifies the connection
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// RunMigrations applies every migration newer than the recorded version
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current, err := GetMigrationStatus(ctx, db)
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range pendingMigrations(current) {
		logger.Info("Applying migration",
			"version", m.Version,
			"name", m.Name)

		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
		applied++
	}

	if applied == 0 {
		logger.Info("Database schema is up to date", "version", current)
	} else {
		logger.Info("Database migrations completed",
			"applied", applied,
			"version", migrations[len(migrations)-1].Version)
	}
	return nil
}

func pendingMigrations(current int) []Migration {
	var out []Migration
	for _, m := range migrations {
		if m.Version > current {
			out = append(out, m)
		}
	}
	return out
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Name, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO migrations (version, name) VALUES ($1, $2)", m.Version, m.Name); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}

// GetMigrationStatus returns the highest applied migration version
func GetMigrationStatus(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get migration status: %w", err)
	}
	return version, nil
}

// LatestVersion is the version the schema reaches after RunMigrations
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}

// ResetDatabase drops every table owned by the service
func ResetDatabase(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	logger.Warn("Resetting database - all data will be lost")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DROP TABLE IF EXISTS extractions CASCADE",
		"DROP TABLE IF EXISTS migrations CASCADE",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute drop statement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset transaction: %w", err)
	}

	logger.Info("Database reset completed")
	return nil
}
