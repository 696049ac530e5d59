package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Luppa90/vertex-local/store"
	"github.com/Luppa90/vertex-local/store/db/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sqlite.NewDB(":memory:")
	require.NoError(t, err)
	st := store.New(db)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func requireValidation(t *testing.T, err error) {
	t.Helper()
	var ve *store.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestCreateConversationValidation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.CreateConversation(ctx, &store.Conversation{Model: "m"})
	requireValidation(t, err)
	_, err = st.CreateConversation(ctx, &store.Conversation{UID: "u"})
	requireValidation(t, err)

	conv, err := st.CreateConversation(ctx, &store.Conversation{UID: "u", Model: "m"})
	require.NoError(t, err)
	require.NotZero(t, conv.ID)
	require.NotZero(t, conv.CreatedTs)
}

func TestUpdateConversationRequiresField(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpdateConversation(context.Background(), &store.UpdateConversation{UID: "u"})
	requireValidation(t, err)
}

func TestAppendMessageValidation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	conv, err := st.CreateConversation(ctx, &store.Conversation{UID: "u", Model: "m"})
	require.NoError(t, err)

	_, err = st.AppendMessage(ctx, &store.CreateMessage{
		ConversationID: conv.ID, Role: "assistant", Content: "hi",
	})
	requireValidation(t, err)

	_, err = st.AppendMessage(ctx, &store.CreateMessage{
		ConversationID: conv.ID, Role: store.RoleUser, Content: "   ",
	})
	requireValidation(t, err)
}

func TestReplaceAllMessagesValidation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	conv, err := st.CreateConversation(ctx, &store.Conversation{UID: "u", Model: "m"})
	require.NoError(t, err)

	_, err = st.ReplaceAllMessages(ctx, &store.ReplaceAllMessages{
		ConversationID: conv.ID,
		Messages:       []store.MessagePayload{{Role: "system", Content: "nope"}},
	})
	requireValidation(t, err)

	// A missing conversation surfaces as NotFound, not PersistenceError.
	_, err = st.ReplaceAllMessages(ctx, &store.ReplaceAllMessages{
		ConversationID: 999,
		Messages:       []store.MessagePayload{{Role: store.RoleUser, Content: "hi"}},
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestBranchConversationValidation(t *testing.T) {
	st := newTestStore(t)
	_, err := st.BranchConversation(context.Background(), &store.BranchConversation{
		SourceConversationUID: "src",
		SourceMessageID:       1,
	})
	requireValidation(t, err)
}

func TestSearchMessagesValidation(t *testing.T) {
	st := newTestStore(t)
	_, err := st.SearchMessages(context.Background(), "  ", 10)
	requireValidation(t, err)
}

func TestUpdateMessageContentValidation(t *testing.T) {
	st := newTestStore(t)
	err := st.UpdateMessageContent(context.Background(), 1, "")
	requireValidation(t, err)
}
