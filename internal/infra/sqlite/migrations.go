package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the latest schema version this package expects.
const SchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, q := range queries {
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Transactions and rules",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					tenant_id      TEXT NOT NULL,
					transaction_id TEXT NOT NULL,
					user_id        TEXT NOT NULL,
					institution    TEXT NOT NULL DEFAULT '',
					account_type   TEXT NOT NULL DEFAULT '',
					description    TEXT NOT NULL DEFAULT '',
					txn_date       TEXT NOT NULL,
					credit         REAL NOT NULL DEFAULT 0,
					debit          REAL NOT NULL DEFAULT 0,
					balance        REAL,
					category       TEXT NOT NULL DEFAULT '',
					sub_category   TEXT NOT NULL DEFAULT '',
					tagged_by      TEXT NOT NULL DEFAULT '',
					reason         TEXT NOT NULL DEFAULT '',
					confidence     REAL,
					embedding      TEXT,
					created_at     INTEGER NOT NULL,
					updated_at     INTEGER,
					deleted_at     INTEGER,
					PRIMARY KEY (tenant_id, transaction_id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(tenant_id, user_id)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(tenant_id, txn_date)`,
				`CREATE TABLE IF NOT EXISTS rules (
					tenant_id      TEXT NOT NULL,
					rule_id        TEXT NOT NULL,
					pattern_source TEXT NOT NULL,
					pattern_flags  TEXT NOT NULL DEFAULT '',
					category       TEXT NOT NULL,
					sub_category   TEXT NOT NULL DEFAULT '',
					side           TEXT NOT NULL DEFAULT 'ANY',
					reason         TEXT NOT NULL DEFAULT '',
					confidence     REAL,
					tagged_by      TEXT NOT NULL DEFAULT '',
					created_at     INTEGER NOT NULL,
					PRIMARY KEY (tenant_id, rule_id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_rules_order ON rules(tenant_id, created_at, rule_id)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Job queue, job status and change feed",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS job_queue (
					id            TEXT PRIMARY KEY,
					body          TEXT NOT NULL,
					visible_at    INTEGER NOT NULL,
					receipt       TEXT,
					receive_count INTEGER NOT NULL DEFAULT 0,
					created_at    INTEGER NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_job_queue_visible ON job_queue(visible_at, created_at)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_job_queue_receipt ON job_queue(receipt)`,
				`CREATE TABLE IF NOT EXISTS job_status (
					job_id     TEXT PRIMARY KEY,
					tenant_id  TEXT NOT NULL,
					blob_key   TEXT NOT NULL,
					status     TEXT NOT NULL,
					attempts   INTEGER NOT NULL DEFAULT 0,
					error      TEXT NOT NULL DEFAULT '',
					parsed     INTEGER NOT NULL DEFAULT 0,
					skipped    INTEGER NOT NULL DEFAULT 0,
					inserted   INTEGER NOT NULL DEFAULT 0,
					duplicates INTEGER NOT NULL DEFAULT 0,
					updated_at INTEGER NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS change_feed (
					seq            INTEGER PRIMARY KEY AUTOINCREMENT,
					event_name     TEXT NOT NULL,
					tenant_id      TEXT NOT NULL,
					transaction_id TEXT NOT NULL,
					new_image      TEXT,
					leased_until   INTEGER NOT NULL DEFAULT 0,
					created_at     INTEGER NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_change_feed_lease ON change_feed(leased_until, seq)`,
			})
		},
	},
}

// Migrate applies all pending database migrations.
func (d *DB) Migrate(ctx context.Context) error {
	// Get current version
	var currentVersion int
	if err := d.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		// Update version
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		d.log.Info().
			Int("version", migration.Version).
			Str("description", migration.Description).
			Msg("Applied migration")
	}

	// Verify we're at the expected schema version
	var finalVersion int
	if err := d.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion); err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != SchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", SchemaVersion, finalVersion)
	}
	return nil
}
