package store

// Message roles. The upstream generation API distinguishes only the two.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// IsValidRole reports whether role is one of the accepted message roles.
func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleModel
}

// Conversation is a titled, modeled sequence of messages with an optional
// system instruction. The UID is assigned at creation and never changes.
type Conversation struct {
	ID           int32
	UID          string
	Title        string
	Model        string
	SystemPrompt string
	Params       string // free-form JSON blob, opaque to the store
	CreatedTs    int64
}

// Message is a single message within a conversation.
//
// Message IDs are NOT stable across reconciles: ReplaceAllMessages discards
// prior identities wholesale. Anything holding a message ID must re-read it
// after a reconcile, or snapshot whatever it needs beforehand.
type Message struct {
	ID             int32
	ConversationID int32
	Role           string
	Content        string
	Seq            int32 // insertion order within equal created_ts
	CreatedTs      int64
}

// FindConversation filters for ListConversations/GetConversation.
type FindConversation struct {
	ID  *int32
	UID *string

	// NonEmptyOnly restricts results to conversations with at least one
	// message. The default listing uses this.
	NonEmptyOnly bool
}

// UpdateConversation carries the mutable conversation fields. Nil fields are
// left untouched. Title and Params are only written by internal flows; the
// PATCH surface recognizes Model and SystemPrompt.
type UpdateConversation struct {
	UID          string
	Title        *string
	Model        *string
	SystemPrompt *string
	Params       *string
}

// FindMessage filters for ListMessages.
type FindMessage struct {
	ID             *int32
	ConversationID *int32
}

// MessagePayload is a role/content pair supplied by a client. A client
// history carries no IDs: it is an intent, not a patch.
type MessagePayload struct {
	Role    string
	Content string
}

// CreateMessage is the payload for AppendMessage.
type CreateMessage struct {
	ConversationID int32
	Role           string
	Content        string
}

// ReplaceAllMessages atomically swaps a conversation's entire message set
// for the supplied ordered list, optionally appending one model message.
type ReplaceAllMessages struct {
	ConversationID int32
	Messages       []MessagePayload
	// ModelText, when non-nil, is inserted last as a model-role message.
	ModelText *string
}

// BranchConversation copies the source prefix up to and including
// SourceMessageID into a brand new conversation.
type BranchConversation struct {
	SourceConversationUID string
	SourceMessageID       int32
	NewUID                string
}

// SearchResult is one full-text hit over message content.
type SearchResult struct {
	Message
	ConversationUID string
	Snippet         string
}
