package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Open opens (and creates if needed) the SQLite database at path and ensures
// required tables exist.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Basic health check + apply a few safe pragmas.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := Bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Bootstrap creates tables/indexes if missing.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
  id           INTEGER PRIMARY KEY AUTOINCREMENT,
  chat_id      TEXT NOT NULL UNIQUE,
  display_name TEXT NOT NULL DEFAULT '',
  avatar_ref   TEXT NOT NULL DEFAULT '',
  tier         TEXT NOT NULL DEFAULT 'free',
  created_at   TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS bots (
  id              TEXT PRIMARY KEY,
  tenant_id       INTEGER NOT NULL REFERENCES tenants(id),
  name            TEXT NOT NULL,
  language        TEXT NOT NULL,
  dir             TEXT NOT NULL,
  status          TEXT NOT NULL DEFAULT 'stopped',
  archive_digest  TEXT,
  created_at      TEXT NOT NULL,
  last_started_at TEXT,
  last_stopped_at TEXT
);`,
		`CREATE TABLE IF NOT EXISTS auth_codes (
  code         TEXT PRIMARY KEY,
  chat_id      TEXT NOT NULL,
  display_name TEXT NOT NULL DEFAULT '',
  avatar_ref   TEXT NOT NULL DEFAULT '',
  issued_at    TEXT NOT NULL,
  used         INTEGER NOT NULL DEFAULT 0
);`,
		`CREATE TABLE IF NOT EXISTS sessions (
  token      TEXT PRIMARY KEY,
  tenant_id  INTEGER NOT NULL REFERENCES tenants(id),
  created_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS bot_logs (
  id       INTEGER PRIMARY KEY AUTOINCREMENT,
  bot_id   TEXT NOT NULL,
  bot_name TEXT NOT NULL,
  stream   TEXT NOT NULL,
  chunk    TEXT NOT NULL,
  at       TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS bots_tenant_id_idx ON bots(tenant_id);`,
		`CREATE INDEX IF NOT EXISTS auth_codes_chat_id_used_idx ON auth_codes(chat_id, used);`,
		`CREATE INDEX IF NOT EXISTS bot_logs_bot_id_id_idx ON bot_logs(bot_id, id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
