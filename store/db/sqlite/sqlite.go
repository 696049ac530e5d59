// Package sqlite implements the store driver on SQLite with an FTS5
// full-text mirror of message content.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/Luppa90/vertex-local/store"
)

// DB is the SQLite driver.
type DB struct {
	db *sql.DB
}

// NewDB opens (or creates) the database at dsn. Use ":memory:" for tests.
func NewDB(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// A single connection keeps in-memory databases coherent and sidesteps
	// SQLITE_BUSY on concurrent writers; reads are cheap enough.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, errors.Wrap(err, "enable foreign keys")
	}
	return &DB{db: db}, nil
}

var _ store.Driver = (*DB)(nil)

// Migrate creates the schema. The full-text mirror is a plain FTS5 table
// written explicitly in the same transaction as each message mutation;
// there are deliberately no triggers, so the invariant is visible in code
// and holds identically on other engines.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			uid           TEXT NOT NULL UNIQUE,
			title         TEXT NOT NULL DEFAULT '',
			model         TEXT NOT NULL DEFAULT '',
			system_prompt TEXT NOT NULL DEFAULT '',
			params        TEXT NOT NULL DEFAULT '',
			created_ts    BIGINT NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
		`CREATE TABLE IF NOT EXISTS message (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
			role            TEXT NOT NULL CHECK (role IN ('user', 'model')),
			content         TEXT NOT NULL,
			seq             INTEGER NOT NULL DEFAULT 0,
			created_ts      BIGINT NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_conversation ON message(conversation_id, created_ts, seq)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS message_fts USING fts5(
			content,
			tokenize='porter unicode61'
		)`,
	}
	for _, s := range stmts {
		if _, err := d.db.ExecContext(ctx, s); err != nil {
			return errors.Wrap(err, "migrate")
		}
	}
	return nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}
