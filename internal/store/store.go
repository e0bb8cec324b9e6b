// Package store persists the repair ledger, inventory, imports, alert
// markers and background jobs in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite access for the ledger and jobs.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY under the worker pool.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS service_records (
			id TEXT PRIMARY KEY,
			customer_name TEXT NOT NULL DEFAULT '',
			customer_phone TEXT NOT NULL DEFAULT '',
			device_brand TEXT NOT NULL DEFAULT '',
			device_model TEXT NOT NULL DEFAULT '',
			damage_tags_json TEXT,
			complaint TEXT NOT NULL DEFAULT '',
			items_json TEXT,
			service_date TIMESTAMP,
			source_file TEXT,
			created_at TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_records_phone ON service_records(customer_phone);`,
		`CREATE INDEX IF NOT EXISTS idx_records_name ON service_records(customer_name);`,
		`CREATE TABLE IF NOT EXISTS spareparts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			brand TEXT,
			vendor TEXT,
			supplier TEXT,
			stock INTEGER,
			price INTEGER,
			updated_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS imports (
			filename TEXT PRIMARY KEY,
			import_id TEXT,
			records INTEGER,
			rejected INTEGER,
			imported_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS risk_alerts (
			alert_key TEXT PRIMARY KEY,
			device_key TEXT,
			total_services INTEGER,
			created_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject TEXT,
			stage TEXT,
			status TEXT,
			params_json TEXT,
			idempotency_key TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			started_at TIMESTAMP,
			finished_at TIMESTAMP
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_idem ON jobs(idempotency_key);`,
		`CREATE TABLE IF NOT EXISTS job_logs (
			job_id INTEGER,
			line TEXT,
			created_at TIMESTAMP
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Health returns err if DB not reachable.
func (s *Store) Health(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}
