// Package duckdb stores normalised heteroplasmy calls and run summaries in
// DuckDB so reports can query them by sample or position.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	_ "github.com/marcboeker/go-duckdb"
)

// lockWait bounds how long Open retries a file held by another process.
var lockWait = 30 * time.Second

// Store manages a DuckDB connection for call and run tables.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	var db *sql.DB
	open := func() error {
		var err error
		if db, err = sql.Open("duckdb", path); err == nil {
			if err = db.Ping(); err != nil {
				db.Close()
			}
		}
		if err != nil && !isLockError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = lockWait
	if err := backoff.Retry(open, b); err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// isLockError reports whether err is DuckDB refusing a file another
// process has open for writing.
func isLockError(err error) bool {
	return strings.Contains(err.Error(), "Could not set lock")
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		run_id VARCHAR PRIMARY KEY,
		started TIMESTAMP,
		command VARCHAR,
		input_path VARCHAR,
		input_size BIGINT,
		input_mtime TIMESTAMP,
		records_read BIGINT,
		records_skipped BIGINT,
		records_split BIGINT,
		records_written BIGINT,
		records_passed BIGINT,
		records_recomputed BIGINT,
		warnings BIGINT,
		filter_counts VARCHAR
	)`); err != nil {
		return err
	}
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS calls (
		run_id VARCHAR,
		sample VARCHAR,
		chrom VARCHAR,
		pos BIGINT,
		ref VARCHAR,
		alt VARCHAR,
		qual DOUBLE,
		filter VARCHAR,
		depth BIGINT,
		alt_count BIGINT,
		fraction DOUBLE,
		class VARCHAR,
		quality DOUBLE,
		PRIMARY KEY (run_id, sample, chrom, pos, ref, alt)
	)`)
	return err
}
