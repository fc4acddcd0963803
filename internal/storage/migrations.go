package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version the application
// expects. A database that cannot be migrated to this version is a fatal
// error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS expenses (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					hash TEXT NOT NULL,
					status TEXT NOT NULL,
					date DATETIME NOT NULL,
					merchant TEXT NOT NULL,
					normalized_merchant TEXT,
					category TEXT,
					store_type TEXT,
					currency TEXT NOT NULL,
					notes TEXT,
					source TEXT NOT NULL,
					items TEXT,
					total REAL NOT NULL,
					confidence REAL DEFAULT 0,
					saved_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(user_id, hash)
				)`,
				`CREATE INDEX idx_expenses_date ON expenses(date)`,
				`CREATE INDEX idx_expenses_category ON expenses(category)`,
				`CREATE INDEX idx_expenses_merchant ON expenses(normalized_merchant)`,

				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT UNIQUE NOT NULL,
					description TEXT,
					is_active BOOLEAN DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS merchant_mappings (
					merchant TEXT PRIMARY KEY,
					canonical_name TEXT NOT NULL,
					category TEXT NOT NULL,
					use_count INTEGER DEFAULT 0,
					last_used DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS credit_balances (
					user_id TEXT NOT NULL,
					credit_type TEXT NOT NULL,
					balance INTEGER NOT NULL DEFAULT 0,
					PRIMARY KEY (user_id, credit_type)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add credit audit ledger",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS credit_ledger (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					credit_type TEXT NOT NULL,
					delta INTEGER NOT NULL,
					reason TEXT NOT NULL,
					request_id TEXT,
					note TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_credit_ledger_user ON credit_ledger(user_id, created_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Track merchant mapping provenance",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`ALTER TABLE merchant_mappings ADD COLUMN source TEXT DEFAULT 'AUTO'`); err != nil {
				return fmt.Errorf("failed to add source column: %w", err)
			}
			if _, err := tx.Exec(`CREATE INDEX idx_merchant_mappings_category ON merchant_mappings(category)`); err != nil {
				return fmt.Errorf("failed to create category index: %w", err)
			}
			return nil
		},
	},
	{
		Version:     4,
		Description: "Add statement import tracking",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS statement_imports (
					user_id TEXT NOT NULL,
					file_hash TEXT NOT NULL,
					source TEXT NOT NULL,
					tx_count INTEGER DEFAULT 0,
					imported_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (user_id, file_hash)
				)
			`)
			return err
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

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

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

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
