package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Luppa90/vertex-local/store"
)

func (d *DB) AppendMessage(ctx context.Context, create *store.CreateMessage) (*store.Message, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin append message")
	}
	defer tx.Rollback()

	m, err := insertMessage(ctx, tx, create.ConversationID, create.Role, create.Content, time.Now().Unix(), nil)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit append message")
	}
	return m, nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, conversationID int32, role, content string, createdTs int64, seq *int32) (*store.Message, error) {
	m := &store.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedTs:      createdTs,
	}
	var err error
	if seq != nil {
		m.Seq = *seq
		err = tx.QueryRowContext(ctx,
			`INSERT INTO message (conversation_id, role, content, seq, created_ts)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			conversationID, role, content, m.Seq, createdTs,
		).Scan(&m.ID)
	} else {
		err = tx.QueryRowContext(ctx,
			`INSERT INTO message (conversation_id, role, content, seq, created_ts)
			 VALUES ($1, $2, $3,
			   (SELECT COALESCE(MAX(seq) + 1, 0) FROM message WHERE conversation_id = $4),
			   $5)
			 RETURNING id, seq`,
			conversationID, role, content, conversationID, createdTs,
		).Scan(&m.ID, &m.Seq)
	}
	if err != nil {
		return nil, errors.Wrap(err, "insert message")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO message_fts (message_id, content, tsv)
		 VALUES ($1, $2, to_tsvector('english', $2))`, m.ID, content); err != nil {
		return nil, errors.Wrap(err, "insert mirror row")
	}
	return m, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.ConversationID; v != nil {
		where, args = append(where, "conversation_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	query := fmt.Sprintf(
		`SELECT id, conversation_id, role, content, seq, created_ts
		 FROM message WHERE %s ORDER BY created_ts ASC, seq ASC, id ASC`,
		strings.Join(where, " AND "),
	)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	defer rows.Close()

	var list []*store.Message
	for rows.Next() {
		m := &store.Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Seq, &m.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (d *DB) GetMessage(ctx context.Context, id int32) (*store.Message, error) {
	list, err := d.ListMessages(ctx, &store.FindMessage{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

func (d *DB) UpdateMessageContent(ctx context.Context, id int32, content string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin update message")
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "UPDATE message SET content = $1 WHERE id = $2", content, id)
	if err != nil {
		return errors.Wrap(err, "update message")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE message_fts SET content = $1, tsv = to_tsvector('english', $1)
		 WHERE message_id = $2`, content, id); err != nil {
		return errors.Wrap(err, "rewrite mirror row")
	}
	return tx.Commit()
}

func (d *DB) DeleteMessage(ctx context.Context, id int32) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin delete message")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM message_fts WHERE message_id = $1", id); err != nil {
		return errors.Wrap(err, "delete mirror row")
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM message WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "delete message")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (d *DB) SearchMessages(ctx context.Context, query string, limit int) ([]*store.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT m.id, m.conversation_id, m.role, m.content, m.seq, m.created_ts,
		        c.uid,
		        ts_headline('english', f.content, websearch_to_tsquery('english', $1))
		 FROM message_fts f
		 JOIN message m ON m.id = f.message_id
		 JOIN conversation c ON c.id = m.conversation_id
		 WHERE f.tsv @@ websearch_to_tsquery('english', $1)
		 ORDER BY ts_rank(f.tsv, websearch_to_tsquery('english', $1)) DESC
		 LIMIT $2`,
		query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "search messages")
	}
	defer rows.Close()

	var results []*store.SearchResult
	for rows.Next() {
		r := &store.SearchResult{}
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.Role, &r.Content, &r.Seq, &r.CreatedTs,
			&r.ConversationUID, &r.Snippet); err != nil {
			return nil, errors.Wrap(err, "scan search result")
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
