package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB with reconcile-specific helpers.
type DB struct {
	*sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS line_items (
    id TEXT PRIMARY KEY,
    property_id TEXT NOT NULL,
    period_id TEXT NOT NULL,
    document_type TEXT NOT NULL CHECK(document_type IN ('balance_sheet','income_statement','cash_flow','rent_roll','mortgage_statement')),
    account_code TEXT NOT NULL,
    account_name TEXT NOT NULL,
    amount REAL NOT NULL,
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_line_items_scope ON line_items(property_id, period_id, document_type);
CREATE INDEX IF NOT EXISTS idx_line_items_code ON line_items(account_code);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    property_id TEXT NOT NULL,
    period_id TEXT NOT NULL,
    session_type TEXT NOT NULL DEFAULT 'full',
    status TEXT NOT NULL DEFAULT 'CREATED' CHECK(status IN ('CREATED','MATCHING','VALIDATING','REVIEW','COMPLETED','ERROR')),
    frozen_summary TEXT,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sessions_scope ON sessions(property_id, period_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

CREATE TABLE IF NOT EXISTS matches (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id),
    pair_key TEXT NOT NULL,
    match_type TEXT NOT NULL CHECK(match_type IN ('exact','fuzzy','calculated','inferred','rule_based')),
    tier_priority INTEGER NOT NULL,
    confidence INTEGER NOT NULL CHECK(confidence BETWEEN 0 AND 100),
    evidence TEXT NOT NULL DEFAULT '[]',
    left_item_id TEXT NOT NULL REFERENCES line_items(id),
    right_item_id TEXT NOT NULL REFERENCES line_items(id),
    related_item_ids TEXT NOT NULL DEFAULT '[]',
    approval_state TEXT NOT NULL DEFAULT 'pending' CHECK(approval_state IN ('pending','approved','rejected')),
    rejection_reason TEXT,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
    UNIQUE(session_id, pair_key)
);

CREATE INDEX IF NOT EXISTS idx_matches_session ON matches(session_id);
CREATE INDEX IF NOT EXISTS idx_matches_state ON matches(session_id, approval_state);

CREATE TABLE IF NOT EXISTS discrepancies (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id),
    item_key TEXT NOT NULL,
    left_item_id TEXT NOT NULL REFERENCES line_items(id),
    right_item_id TEXT,
    severity TEXT NOT NULL CHECK(severity IN ('low','medium','high','critical')),
    difference REAL NOT NULL DEFAULT 0,
    percent_variance REAL NOT NULL DEFAULT 0,
    within_tolerance INTEGER NOT NULL DEFAULT 0,
    description TEXT NOT NULL DEFAULT '',
    resolution_state TEXT NOT NULL DEFAULT 'open' CHECK(resolution_state IN ('open','resolved')),
    resolution_notes TEXT,
    corrected_value REAL,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    resolved_at DATETIME,
    UNIQUE(session_id, item_key)
);

CREATE INDEX IF NOT EXISTS idx_discrepancies_session ON discrepancies(session_id);
CREATE INDEX IF NOT EXISTS idx_discrepancies_severity ON discrepancies(session_id, severity);

CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    timestamp DATETIME NOT NULL DEFAULT (datetime('now')),
    actor_type TEXT NOT NULL CHECK(actor_type IN ('user','system')),
    actor_id TEXT NOT NULL,
    action TEXT NOT NULL,
    scope TEXT NOT NULL,
    scope_id TEXT NOT NULL DEFAULT '',
    session_id TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '',
    previous_value TEXT,
    new_value TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_events(session_id);
CREATE INDEX IF NOT EXISTS idx_audit_scope ON audit_events(scope, scope_id);
`
