package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/Luppa90/vertex-local/store"
)

// ReplaceAllMessages deletes every message row for the conversation and
// re-inserts the supplied list in order, inside one transaction. Rows share
// one created_ts; the seq column preserves insertion order so "ascending
// timestamp" reads reconstruct the submitted sequence even on ties.
func (d *DB) ReplaceAllMessages(ctx context.Context, replace *store.ReplaceAllMessages) ([]*store.Message, error) {
	var exists int
	if err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM conversation WHERE id = ?", replace.ConversationID).Scan(&exists); err != nil {
		return nil, errors.Wrap(err, "check conversation")
	}
	if exists == 0 {
		return nil, store.ErrNotFound
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin replace")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM message_fts WHERE rowid IN (
			SELECT id FROM message WHERE conversation_id = ?
		)`, replace.ConversationID); err != nil {
		return nil, errors.Wrap(err, "delete mirror rows")
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM message WHERE conversation_id = ?", replace.ConversationID); err != nil {
		return nil, errors.Wrap(err, "delete messages")
	}

	now := time.Now().Unix()
	inserted := make([]*store.Message, 0, len(replace.Messages)+1)
	for i, payload := range replace.Messages {
		seq := int32(i)
		m, err := insertMessage(ctx, tx, replace.ConversationID, payload.Role, payload.Content, now, &seq)
		if err != nil {
			return nil, err
		}
		inserted = append(inserted, m)
	}
	if replace.ModelText != nil {
		seq := int32(len(replace.Messages))
		m, err := insertMessage(ctx, tx, replace.ConversationID, store.RoleModel, *replace.ModelText, now, &seq)
		if err != nil {
			return nil, err
		}
		inserted = append(inserted, m)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit replace")
	}
	return inserted, nil
}

// BranchConversation snapshots the source prefix and writes the new
// conversation inside one transaction: either the whole branch exists
// afterward or none of it does.
func (d *DB) BranchConversation(ctx context.Context, branch *store.BranchConversation) (*store.Conversation, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin branch")
	}
	defer tx.Rollback()

	src := &store.Conversation{}
	err = tx.QueryRowContext(ctx,
		`SELECT id, uid, title, model, system_prompt, params, created_ts
		 FROM conversation WHERE uid = ?`, branch.SourceConversationUID,
	).Scan(&src.ID, &src.UID, &src.Title, &src.Model, &src.SystemPrompt, &src.Params, &src.CreatedTs)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load source conversation")
	}

	var pivotTs int64
	var pivotSeq int32
	err = tx.QueryRowContext(ctx,
		"SELECT created_ts, seq FROM message WHERE id = ? AND conversation_id = ?",
		branch.SourceMessageID, src.ID,
	).Scan(&pivotTs, &pivotSeq)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load branch point")
	}

	dst := &store.Conversation{
		UID:          branch.NewUID,
		Title:        src.Title + " (branch)",
		Model:        src.Model,
		SystemPrompt: src.SystemPrompt,
		Params:       src.Params,
	}
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO conversation (uid, title, model, system_prompt, params)
		 VALUES (?, ?, ?, ?, ?) RETURNING id, created_ts`,
		dst.UID, dst.Title, dst.Model, dst.SystemPrompt, dst.Params,
	).Scan(&dst.ID, &dst.CreatedTs); err != nil {
		return nil, errors.Wrap(err, "create branch conversation")
	}

	// Inclusive prefix: everything up to and including the branch point,
	// honoring the seq tie-break on equal timestamps.
	rows, err := tx.QueryContext(ctx,
		`SELECT role, content FROM message
		 WHERE conversation_id = ?
		   AND (created_ts < ? OR (created_ts = ? AND seq <= ?))
		 ORDER BY created_ts ASC, seq ASC, id ASC`,
		src.ID, pivotTs, pivotTs, pivotSeq)
	if err != nil {
		return nil, errors.Wrap(err, "read source prefix")
	}
	type pair struct{ role, content string }
	var prefix []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.role, &p.content); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan source prefix")
		}
		prefix = append(prefix, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "read source prefix")
	}

	now := time.Now().Unix()
	for i, p := range prefix {
		seq := int32(i)
		if _, err := insertMessage(ctx, tx, dst.ID, p.role, p.content, now, &seq); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit branch")
	}
	return dst, nil
}
