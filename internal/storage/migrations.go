package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS invoices (
					id TEXT PRIMARY KEY,
					vendor_key TEXT NOT NULL,
					vendor_name TEXT NOT NULL,
					vendor_id TEXT NOT NULL DEFAULT '',
					invoice_number TEXT NOT NULL DEFAULT '',
					amount TEXT NOT NULL,
					currency TEXT NOT NULL,
					date TEXT NOT NULL,
					category TEXT NOT NULL DEFAULT '',
					extracted_text TEXT NOT NULL DEFAULT '',
					vendor_tax_id TEXT NOT NULL DEFAULT '',
					vendor_address TEXT NOT NULL DEFAULT '',
					extraction_confidence REAL NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_invoices_vendor_date ON invoices(vendor_key, date)`,

				`CREATE TABLE IF NOT EXISTS line_items (
					invoice_id TEXT NOT NULL,
					position INTEGER NOT NULL,
					description TEXT NOT NULL,
					amount TEXT NOT NULL,
					PRIMARY KEY (invoice_id, position),
					FOREIGN KEY (invoice_id) REFERENCES invoices(id) ON DELETE CASCADE
				)`,

				`CREATE TABLE IF NOT EXISTS vendor_profiles (
					vendor_key TEXT PRIMARY KEY,
					display_name TEXT NOT NULL DEFAULT '',
					has_tax_id BOOLEAN NOT NULL DEFAULT 0,
					has_address BOOLEAN NOT NULL DEFAULT 0,
					registry_checked BOOLEAN NOT NULL DEFAULT 0,
					registered BOOLEAN NOT NULL DEFAULT 0,
					last_updated DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS baselines (
					vendor_key TEXT NOT NULL,
					category TEXT NOT NULL,
					count INTEGER NOT NULL,
					mean REAL NOT NULL,
					m2 REAL NOT NULL,
					first_seen DATETIME,
					last_updated DATETIME,
					PRIMARY KEY (vendor_key, category)
				)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Track invoice outcomes",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`ALTER TABLE invoices ADD COLUMN outcome TEXT NOT NULL DEFAULT 'pending'`,
				`ALTER TABLE invoices ADD COLUMN outcome_at DATETIME`,
				`CREATE INDEX idx_invoices_outcome ON invoices(outcome)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Add vendor profile source and baseline vendor totals",
		Up: func(tx *sql.Tx) error {
			if err := execAll(tx, []string{
				`ALTER TABLE vendor_profiles ADD COLUMN source TEXT NOT NULL DEFAULT 'AUTO'`,
				`ALTER TABLE baselines ADD COLUMN vendor_total INTEGER NOT NULL DEFAULT 0`,
				`UPDATE baselines SET vendor_total = (
					SELECT SUM(b2.count) FROM baselines b2 WHERE b2.vendor_key = baselines.vendor_key
				)`,
			}); err != nil {
				return err
			}

			slog.Info("Backfilled baseline vendor totals")
			return nil
		},
	},
	{
		Version:     4,
		Description: "Track which approved invoices are folded into baselines",
		Up: func(tx *sql.Tx) error {
			// Every approval so far updated its baseline.
			return execAll(tx, []string{
				`ALTER TABLE invoices ADD COLUMN baseline_applied BOOLEAN NOT NULL DEFAULT 0`,
				`UPDATE invoices SET baseline_applied = 1 WHERE outcome = 'approved'`,
			})
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	// Get current version
	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// Update version
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Debug("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	// Verify we're at the expected schema version
	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
