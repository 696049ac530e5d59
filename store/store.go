package store

import (
	"context"
	"errors"
	"strings"
)

// Store is the conversation history store. It validates inputs and delegates
// persistence to the injected driver.
//
// Concurrent requests racing on the same conversation are not serialized:
// two interleaved ReplaceAllMessages calls each commit atomically and the
// last one to commit wins. Serializing per conversation is a deliberate
// extension point, not current behavior.
type Store struct {
	driver Driver
}

// New creates a Store backed by the given driver.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

// Migrate brings the underlying schema up to date.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

// Close releases the underlying driver.
func (s *Store) Close() error {
	return s.driver.Close()
}

// CreateConversation creates a new, empty conversation.
func (s *Store) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	if create.UID == "" {
		return nil, newValidationError("conversation uid required")
	}
	if create.Model == "" {
		return nil, newValidationError("model required")
	}
	return s.driver.CreateConversation(ctx, create)
}

// ListConversations lists conversations matching the filter, newest first.
func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

// GetConversation returns the first conversation matching the filter, or
// ErrNotFound.
func (s *Store) GetConversation(ctx context.Context, find *FindConversation) (*Conversation, error) {
	return s.driver.GetConversation(ctx, find)
}

// UpdateConversation applies the non-nil fields. A payload with nothing to
// apply is a ValidationError.
func (s *Store) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	if update.Title == nil && update.Model == nil && update.SystemPrompt == nil && update.Params == nil {
		return nil, newValidationError("no recognized field to update")
	}
	return s.driver.UpdateConversation(ctx, update)
}

// DeleteConversation deletes a conversation, its messages and their mirror
// rows. Idempotent.
func (s *Store) DeleteConversation(ctx context.Context, uid string) error {
	return s.driver.DeleteConversation(ctx, uid)
}

// AppendMessage inserts one message and its mirror row.
func (s *Store) AppendMessage(ctx context.Context, create *CreateMessage) (*Message, error) {
	if !IsValidRole(create.Role) {
		return nil, newValidationError("invalid role %q", create.Role)
	}
	if strings.TrimSpace(create.Content) == "" {
		return nil, newValidationError("message content required")
	}
	return s.driver.AppendMessage(ctx, create)
}

// ListMessages returns messages matching the filter in ascending
// (created_ts, seq) order.
func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

// GetMessage returns one message by ID, or ErrNotFound.
func (s *Store) GetMessage(ctx context.Context, id int32) (*Message, error) {
	return s.driver.GetMessage(ctx, id)
}

// UpdateMessageContent edits a message in place, mirror row included.
func (s *Store) UpdateMessageContent(ctx context.Context, id int32, content string) error {
	if strings.TrimSpace(content) == "" {
		return newValidationError("message content required")
	}
	return s.driver.UpdateMessageContent(ctx, id, content)
}

// DeleteMessage removes one message and its mirror row.
func (s *Store) DeleteMessage(ctx context.Context, id int32) error {
	return s.driver.DeleteMessage(ctx, id)
}

// ReplaceAllMessages makes the persisted message set exactly match the
// supplied ordered list, optionally followed by one model message, as a
// single transaction. Prior message identities are discarded.
func (s *Store) ReplaceAllMessages(ctx context.Context, replace *ReplaceAllMessages) ([]*Message, error) {
	for _, m := range replace.Messages {
		if !IsValidRole(m.Role) {
			return nil, newValidationError("invalid role %q", m.Role)
		}
	}
	msgs, err := s.driver.ReplaceAllMessages(ctx, replace)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Err: err}
	}
	return msgs, nil
}

// BranchConversation creates an independent conversation seeded with the
// source prefix up to and including the branch-point message.
func (s *Store) BranchConversation(ctx context.Context, branch *BranchConversation) (*Conversation, error) {
	if branch.NewUID == "" {
		return nil, newValidationError("new conversation uid required")
	}
	conv, err := s.driver.BranchConversation(ctx, branch)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Err: err}
	}
	return conv, nil
}

// SearchMessages runs a full-text query over message content.
func (s *Store) SearchMessages(ctx context.Context, query string, limit int) ([]*SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, newValidationError("search query required")
	}
	return s.driver.SearchMessages(ctx, query, limit)
}
