package storage

import (
	"database/sql"
	"fmt"
)

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	Apply   func(tx *sql.Tx) error
}

// MigrationRunner applies pending migrations to a SQLite database.
type MigrationRunner struct {
	db         *sql.DB
	migrations []migration
}

// NewMigrationRunner creates a MigrationRunner with all registered migrations.
func NewMigrationRunner(db *sql.DB) *MigrationRunner {
	return &MigrationRunner{
		db: db,
		migrations: []migration{
			{Version: 1, Name: "initial_schema", Apply: migrateV001},
		},
	}
}

// Run enables WAL, ensures the schema_migrations table
// exists, then applies each migration that hasn't been recorded yet.
func (r *MigrationRunner) Run() error {
	// In-memory databases report "memory" here; that is fine.
	if _, err := r.db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range r.migrations {
		applied, err := r.isApplied(m.Version)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if applied {
			continue
		}

		if err := r.apply(m); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

// Version reports the highest applied migration.
func (r *MigrationRunner) Version() (int, error) {
	var v sql.NullInt64
	if err := r.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

func (r *MigrationRunner) isApplied(version int) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// apply executes a migration inside a transaction and records it.
func (r *MigrationRunner) apply(m migration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := m.Apply(tx); err != nil {
		return err
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		m.Version, m.Name,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}

// migrateV001 creates cases, docket_entries and cost_records.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cases (
			id                   TEXT PRIMARY KEY,
			court_id             TEXT NOT NULL,
			case_number          TEXT NOT NULL,
			case_name            TEXT NOT NULL DEFAULT '',
			priority             TEXT NOT NULL DEFAULT 'medium'
			                     CHECK (priority IN ('high', 'medium', 'low')),
			last_checked         TEXT,
			last_updated         TEXT,
			notification_enabled BOOLEAN NOT NULL DEFAULT 1,
			metadata             TEXT NOT NULL DEFAULT '{}',
			created_at           TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS docket_entries (
			case_id      TEXT NOT NULL REFERENCES cases(id),
			entry_number INTEGER NOT NULL,
			date_filed   TEXT,
			description  TEXT NOT NULL DEFAULT '',
			document_url TEXT NOT NULL DEFAULT '',
			first_seen   TEXT NOT NULL,
			PRIMARY KEY (case_id, entry_number)
		)`,

		`CREATE TABLE IF NOT EXISTS cost_records (
			id         TEXT PRIMARY KEY,
			case_id    TEXT,
			action     TEXT NOT NULL CHECK (action IN ('docket_check', 'document_fetch')),
			pages      INTEGER NOT NULL DEFAULT 0,
			cost       TEXT NOT NULL,
			quarter    TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_cases_priority       ON cases(priority)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_first_seen   ON docket_entries(first_seen)`,
		`CREATE INDEX IF NOT EXISTS idx_cost_records_quarter ON cost_records(quarter)`,
		`CREATE INDEX IF NOT EXISTS idx_cost_records_created ON cost_records(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_cost_records_case    ON cost_records(case_id)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
