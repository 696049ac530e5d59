package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/Luppa90/vertex-local/store"
)

func (d *DB) ReplaceAllMessages(ctx context.Context, replace *store.ReplaceAllMessages) ([]*store.Message, error) {
	var exists int
	if err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM conversation WHERE id = $1", replace.ConversationID).Scan(&exists); err != nil {
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
		`DELETE FROM message_fts WHERE message_id IN (
			SELECT id FROM message WHERE conversation_id = $1
		)`, replace.ConversationID); err != nil {
		return nil, errors.Wrap(err, "delete mirror rows")
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM message WHERE conversation_id = $1", replace.ConversationID); err != nil {
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

func (d *DB) BranchConversation(ctx context.Context, branch *store.BranchConversation) (*store.Conversation, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin branch")
	}
	defer tx.Rollback()

	src := &store.Conversation{}
	err = tx.QueryRowContext(ctx,
		`SELECT id, uid, title, model, system_prompt, params, created_ts
		 FROM conversation WHERE uid = $1`, branch.SourceConversationUID,
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
		"SELECT created_ts, seq FROM message WHERE id = $1 AND conversation_id = $2",
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
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_ts`,
		dst.UID, dst.Title, dst.Model, dst.SystemPrompt, dst.Params,
	).Scan(&dst.ID, &dst.CreatedTs); err != nil {
		return nil, errors.Wrap(err, "create branch conversation")
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT role, content FROM message
		 WHERE conversation_id = $1
		   AND (created_ts < $2 OR (created_ts = $2 AND seq <= $3))
		 ORDER BY created_ts ASC, seq ASC, id ASC`,
		src.ID, pivotTs, pivotSeq)
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
