// Package postgres implements the store driver on PostgreSQL with a
// tsvector full-text mirror of message content.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/Luppa90/vertex-local/store"
)

// DB is the PostgreSQL driver.
type DB struct {
	db *sql.DB
}

// NewDB opens a connection pool for the given DSN.
func NewDB(dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	return &DB{db: db}, nil
}

var _ store.Driver = (*DB)(nil)

// Migrate creates the schema. As on SQLite, the mirror table is written
// explicitly inside each mutating transaction rather than by triggers.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation (
			id            SERIAL PRIMARY KEY,
			uid           TEXT   NOT NULL UNIQUE,
			title         TEXT   NOT NULL DEFAULT '',
			model         TEXT   NOT NULL DEFAULT '',
			system_prompt TEXT   NOT NULL DEFAULT '',
			params        TEXT   NOT NULL DEFAULT '',
			created_ts    BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
		)`,
		`CREATE TABLE IF NOT EXISTS message (
			id              SERIAL  PRIMARY KEY,
			conversation_id INTEGER NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
			role            TEXT    NOT NULL CHECK (role IN ('user', 'model')),
			content         TEXT    NOT NULL,
			seq             INTEGER NOT NULL DEFAULT 0,
			created_ts      BIGINT  NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_conversation ON message(conversation_id, created_ts, seq)`,
		`CREATE TABLE IF NOT EXISTS message_fts (
			message_id INTEGER  NOT NULL PRIMARY KEY,
			content    TEXT     NOT NULL,
			tsv        TSVECTOR NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_fts_tsv ON message_fts USING GIN (tsv)`,
	}
	for _, s := range stmts {
		if _, err := d.db.ExecContext(ctx, s); err != nil {
			return errors.Wrap(err, "migrate")
		}
	}
	return nil
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}
