// Package sqlite implements the transaction, rule, job-queue and
// change-feed stores on a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DB wraps the SQLite handle shared by every store in this package.
type DB struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
	now  func() time.Time
}

// Open opens (creating if needed) the database at path. ":memory:" opens a
// private in-memory database.
func Open(path string, log zerolog.Logger) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("Open: database path is required")
	}

	dsn := ":memory:"
	if path != ":memory:" {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("Open: create database directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}

	// A single connection serializes writers and keeps an in-memory
	// database alive for the lifetime of the handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("Open: ping: %w", err)
	}

	return &DB{db: db, path: path, log: log, now: time.Now}, nil
}

// OpenMigrated opens the database and applies pending migrations.
func OpenMigrated(ctx context.Context, path string, log zerolog.Logger) (*DB, error) {
	d, err := Open(path, log)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// withTx runs fn inside a transaction, committing when fn returns nil.
func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: nanos(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
