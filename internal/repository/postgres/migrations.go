package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "product_links",
		SQL: `
			CREATE TABLE IF NOT EXISTS product_links (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				outfit_id UUID NOT NULL,
				url TEXT NOT NULL,
				domain VARCHAR(255),
				status VARCHAR(20) NOT NULL DEFAULT 'pending',
				is_valid BOOLEAN NOT NULL DEFAULT FALSE,

				-- SuccessMetadata or FailureMetadata, NULL until the first run
				metadata JSONB,

				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),

				CHECK (status IN ('pending', 'valid', 'invalid')),
				CHECK ((status = 'valid') = is_valid)
			);

			CREATE INDEX IF NOT EXISTS idx_product_links_outfit
			ON product_links(outfit_id);

			CREATE INDEX IF NOT EXISTS idx_product_links_pending
			ON product_links(created_at)
			WHERE status = 'pending';
		`,
	},
	{
		Version: 2,
		Name:    "product_links_domain_index",
		SQL: `
			CREATE INDEX IF NOT EXISTS idx_product_links_domain
			ON product_links(domain);
		`,
	},
}

// RunMigrations executes all pending database migrations
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	logger.Info("Running database migrations...")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := GetMigrationStatus(db)
	if err != nil {
		return err
	}

	logger.Info("Current migration version", "version", currentVersion)

	applied := 0
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		logger.Info("Applying migration",
			"version", migration.Version,
			"name", migration.Name,
		)

		if err := applyMigration(db, migration); err != nil {
			return err
		}

		applied++
		logger.Info("Migration applied successfully", "version", migration.Version)
	}

	if applied == 0 {
		logger.Info("No migrations to apply - database is up to date")
	} else {
		logger.Info("Database migrations completed", "applied", applied)
	}

	return nil
}

func applyMigration(db *sql.DB, migration Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
	}

	if _, err := tx.Exec("INSERT INTO migrations (version, name) VALUES ($1, $2)",
		migration.Version, migration.Name); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}
	return nil
}

// LatestMigrationVersion is the version RunMigrations brings a database to
func LatestMigrationVersion() int {
	return migrations[len(migrations)-1].Version
}

// GetMigrationStatus returns the current migration status
func GetMigrationStatus(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get migration status: %w", err)
	}
	return version, nil
}

// ClearProductLinks deletes every product link but keeps the schema
func ClearProductLinks(ctx context.Context, db *sql.DB, logger *slog.Logger) (int64, error) {
	result, err := db.ExecContext(ctx, "DELETE FROM product_links")
	if err != nil {
		return 0, fmt.Errorf("failed to clear product links: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared links: %w", err)
	}

	logger.Warn("Product links cleared", "deleted", deleted)
	return deleted, nil
}

// ResetDatabase drops all tables (for testing)
func ResetDatabase(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	logger.Warn("Resetting database - all data will be lost")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	dropSQL := []string{
		"DROP TABLE IF EXISTS product_links CASCADE",
		"DROP TABLE IF EXISTS migrations CASCADE",
	}

	for _, stmt := range dropSQL {
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
