package store

import "context"

// Driver is the storage contract implemented per engine under store/db.
// Callers depend on this interface, never on a concrete engine.
//
// Every mutation of message content must leave the full-text mirror equal to
// the message table within the same transaction; the mirror never lags.
type Driver interface {
	Migrate(ctx context.Context) error

	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	GetConversation(ctx context.Context, find *FindConversation) (*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	// DeleteConversation cascades to messages and mirror rows. Deleting a
	// nonexistent UID is not an error.
	DeleteConversation(ctx context.Context, uid string) error

	AppendMessage(ctx context.Context, create *CreateMessage) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
	GetMessage(ctx context.Context, id int32) (*Message, error)
	UpdateMessageContent(ctx context.Context, id int32, content string) error
	DeleteMessage(ctx context.Context, id int32) error

	// ReplaceAllMessages runs as a single transaction: all-or-nothing.
	ReplaceAllMessages(ctx context.Context, replace *ReplaceAllMessages) ([]*Message, error)
	// BranchConversation reads the prefix and writes the new conversation
	// inside one transaction.
	BranchConversation(ctx context.Context, branch *BranchConversation) (*Conversation, error)

	SearchMessages(ctx context.Context, query string, limit int) ([]*SearchResult, error)

	Close() error
}
