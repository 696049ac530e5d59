package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/Luppa90/vertex-local/store"
)

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	stmt := `INSERT INTO conversation (uid, title, model, system_prompt, params)
	         VALUES (?, ?, ?, ?, ?)
	         RETURNING id, created_ts`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UID, create.Title, create.Model, create.SystemPrompt, create.Params,
	).Scan(&create.ID, &create.CreatedTs); err != nil {
		return nil, errors.Wrap(err, "create conversation")
	}
	return create, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = ?"), append(args, *v)
	}
	if find.NonEmptyOnly {
		where = append(where, "EXISTS (SELECT 1 FROM message m WHERE m.conversation_id = conversation.id)")
	}
	query := fmt.Sprintf(
		`SELECT id, uid, title, model, system_prompt, params, created_ts
		 FROM conversation WHERE %s ORDER BY created_ts DESC, id DESC`,
		strings.Join(where, " AND "),
	)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	defer rows.Close()

	var list []*store.Conversation
	for rows.Next() {
		c := &store.Conversation{}
		if err := rows.Scan(&c.ID, &c.UID, &c.Title, &c.Model, &c.SystemPrompt, &c.Params, &c.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "scan conversation")
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (d *DB) GetConversation(ctx context.Context, find *store.FindConversation) (*store.Conversation, error) {
	list, err := d.ListConversations(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set, args := []string{}, []any{}
	if v := update.Title; v != nil {
		set, args = append(set, "title = ?"), append(args, *v)
	}
	if v := update.Model; v != nil {
		set, args = append(set, "model = ?"), append(args, *v)
	}
	if v := update.SystemPrompt; v != nil {
		set, args = append(set, "system_prompt = ?"), append(args, *v)
	}
	if v := update.Params; v != nil {
		set, args = append(set, "params = ?"), append(args, *v)
	}
	if len(set) == 0 {
		return d.GetConversation(ctx, &store.FindConversation{UID: &update.UID})
	}
	args = append(args, update.UID)
	stmt := fmt.Sprintf("UPDATE conversation SET %s WHERE uid = ?", strings.Join(set, ", "))
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "update conversation")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return d.GetConversation(ctx, &store.FindConversation{UID: &update.UID})
}

// DeleteConversation removes the conversation, its messages (via cascade)
// and their mirror rows, all inside one transaction. A missing UID is a
// no-op.
func (d *DB) DeleteConversation(ctx context.Context, uid string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin delete conversation")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM message_fts WHERE rowid IN (
			SELECT m.id FROM message m
			JOIN conversation c ON c.id = m.conversation_id
			WHERE c.uid = ?
		)`, uid); err != nil {
		return errors.Wrap(err, "delete mirror rows")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM conversation WHERE uid = ?", uid); err != nil {
		return errors.Wrap(err, "delete conversation")
	}
	return tx.Commit()
}
