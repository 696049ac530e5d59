package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/require"

	"github.com/Luppa90/vertex-local/internal/profile"
	"github.com/Luppa90/vertex-local/plugin/llm"
	v1 "github.com/Luppa90/vertex-local/server/router/api/v1"
	"github.com/Luppa90/vertex-local/store"
	"github.com/Luppa90/vertex-local/store/db/sqlite"
)

// fakeLLM scripts the upstream generation service.
type fakeLLM struct {
	chunks       []string
	failAfter    int // fail after streaming this many chunks; -1 never fails
	completeText string
	completeErr  error
	tokens       int
}

func (f *fakeLLM) Complete(context.Context, string, string, []llm.Message) (string, error) {
	return f.completeText, f.completeErr
}

func (f *fakeLLM) Stream(_ context.Context, _, _ string, _ []llm.Message, onChunk func(string) error) error {
	for i, ch := range f.chunks {
		if f.failAfter >= 0 && i == f.failAfter {
			return &llm.UpstreamError{Err: fmt.Errorf("connection dropped")}
		}
		if err := onChunk(ch); err != nil {
			return err
		}
	}
	if f.failAfter >= 0 && f.failAfter >= len(f.chunks) {
		return &llm.UpstreamError{Err: fmt.Errorf("connection dropped")}
	}
	return nil
}

func (f *fakeLLM) CountTokens(context.Context, string, []llm.Message) (int, error) {
	return f.tokens, nil
}

func newTestEnv(t *testing.T, f *fakeLLM) (*echo.Echo, *store.Store) {
	t.Helper()
	db, err := sqlite.NewDB(":memory:")
	require.NoError(t, err)
	st := store.New(db)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	e := echo.New()
	v1.NewAPIV1Service(st, f, nil, &profile.Profile{Model: "test-model"}).RegisterRoutes(e)
	return e, st
}

func do(t *testing.T, e *echo.Echo, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func seedConversation(t *testing.T, st *store.Store, uid string) *store.Conversation {
	t.Helper()
	conv, err := st.CreateConversation(context.Background(), &store.Conversation{
		UID:   uid,
		Title: "New Chat",
		Model: "test-model",
	})
	require.NoError(t, err)
	return conv
}

func historyOf(t *testing.T, st *store.Store, conversationID int32) []string {
	t.Helper()
	msgs, err := st.ListMessages(context.Background(), &store.FindMessage{ConversationID: &conversationID})
	require.NoError(t, err)
	var out []string
	for _, m := range msgs {
		out = append(out, m.Role+":"+m.Content)
	}
	return out
}

func chatBody(pairs ...string) map[string]any {
	var msgs []map[string]string
	for i := 0; i+1 < len(pairs); i += 2 {
		msgs = append(msgs, map[string]string{"role": pairs[i], "content": pairs[i+1]})
	}
	return map[string]any{"messages": msgs}
}

func TestChatTurnStreamsAndPersists(t *testing.T) {
	f := &fakeLLM{chunks: []string{"Hello", " again!"}, failAfter: -1, completeText: "Greeting Chat"}
	e, st := newTestEnv(t, f)
	conv := seedConversation(t, st, "c1")

	rec := do(t, e, http.MethodPost, "/api/v1/conversations/c1/chat", chatBody("user", "Hi there"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Hello again!", rec.Body.String())

	require.Equal(t, []string{"user:Hi there", "model:Hello again!"}, historyOf(t, st, conv.ID))

	// Auto-title replaces the placeholder after the first completed turn.
	require.Eventually(t, func() bool {
		uid := conv.UID
		got, err := st.GetConversation(context.Background(), &store.FindConversation{UID: &uid})
		return err == nil && got.Title == "Greeting Chat"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChatEditScenario(t *testing.T) {
	f := &fakeLLM{chunks: []string{"Hello again!"}, failAfter: -1, completeErr: fmt.Errorf("no title")}
	e, st := newTestEnv(t, f)
	conv := seedConversation(t, st, "c1")

	_, err := st.ReplaceAllMessages(context.Background(), &store.ReplaceAllMessages{
		ConversationID: conv.ID,
		Messages: []store.MessagePayload{
			{Role: "user", Content: "Hi"},
			{Role: "model", Content: "Hello!"},
		},
	})
	require.NoError(t, err)

	// The client edited "Hi" to "Hi there", truncated at the edit and runs
	// a fresh turn with the truncated history.
	rec := do(t, e, http.MethodPost, "/api/v1/conversations/c1/chat", chatBody("user", "Hi there"))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, []string{"user:Hi there", "model:Hello again!"}, historyOf(t, st, conv.ID))
}

func TestChatMidStreamFailureLeavesHistoryUntouched(t *testing.T) {
	f := &fakeLLM{chunks: []string{"a", "b", "c", "d"}, failAfter: 3}
	e, st := newTestEnv(t, f)
	conv := seedConversation(t, st, "c1")

	_, err := st.ReplaceAllMessages(context.Background(), &store.ReplaceAllMessages{
		ConversationID: conv.ID,
		Messages: []store.MessagePayload{
			{Role: "user", Content: "old question"},
			{Role: "model", Content: "old answer"},
		},
	})
	require.NoError(t, err)
	before := historyOf(t, st, conv.ID)

	rec := do(t, e, http.MethodPost, "/api/v1/conversations/c1/chat", chatBody("user", "new question"))
	// Bytes were already on the wire: the body just ends, no error marker.
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "abc", rec.Body.String())

	require.Equal(t, before, historyOf(t, st, conv.ID))
}

func TestChatFailureBeforeFirstByte(t *testing.T) {
	f := &fakeLLM{failAfter: 0}
	e, st := newTestEnv(t, f)
	conv := seedConversation(t, st, "c1")

	rec := do(t, e, http.MethodPost, "/api/v1/conversations/c1/chat", chatBody("user", "Hi"))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Empty(t, historyOf(t, st, conv.ID))
}

func TestChatValidation(t *testing.T) {
	f := &fakeLLM{failAfter: -1}
	e, st := newTestEnv(t, f)
	seedConversation(t, st, "c1")

	rec := do(t, e, http.MethodPost, "/api/v1/conversations/c1/chat", map[string]any{"messages": []any{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/v1/conversations/c1/chat", chatBody("assistant", "wrong role"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/v1/conversations/missing/chat", chatBody("user", "Hi"))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReconcileEndpoint(t *testing.T) {
	f := &fakeLLM{failAfter: -1}
	e, st := newTestEnv(t, f)
	conv := seedConversation(t, st, "c1")

	rec := do(t, e, http.MethodPut, "/api/v1/conversations/c1/messages",
		chatBody("user", "q1", "model", "a1", "user", "q2"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"user:q1", "model:a1", "user:q2"}, historyOf(t, st, conv.ID))

	rec = do(t, e, http.MethodPut, "/api/v1/conversations/c1/messages",
		chatBody("narrator", "nope"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPut, "/api/v1/conversations/missing/messages",
		chatBody("user", "q1"))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConversationCRUD(t *testing.T) {
	f := &fakeLLM{failAfter: -1}
	e, _ := newTestEnv(t, f)

	rec := do(t, e, http.MethodPost, "/api/v1/conversations",
		map[string]string{"title": "My Chat", "model": "test-model", "systemPrompt": "be nice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		UID string `json:"uid"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.UID)

	rec = do(t, e, http.MethodGet, "/api/v1/conversations/"+created.UID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Title    string `json:"title"`
		Messages []any  `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	require.Equal(t, "My Chat", detail.Title)
	require.Empty(t, detail.Messages)

	// Only non-empty conversations are listed.
	rec = do(t, e, http.MethodGet, "/api/v1/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())

	rec = do(t, e, http.MethodPatch, "/api/v1/conversations/"+created.UID,
		map[string]string{"model": "other-model"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, e, http.MethodPatch, "/api/v1/conversations/"+created.UID, map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodDelete, "/api/v1/conversations/"+created.UID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, e, http.MethodGet, "/api/v1/conversations/"+created.UID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBranchEndpoint(t *testing.T) {
	f := &fakeLLM{failAfter: -1}
	e, st := newTestEnv(t, f)
	conv := seedConversation(t, st, "src")

	inserted, err := st.ReplaceAllMessages(context.Background(), &store.ReplaceAllMessages{
		ConversationID: conv.ID,
		Messages: []store.MessagePayload{
			{Role: "user", Content: "q1"},
			{Role: "model", Content: "a1"},
			{Role: "user", Content: "q2"},
		},
	})
	require.NoError(t, err)

	rec := do(t, e, http.MethodPost, "/api/v1/conversations/branch", map[string]any{
		"sourceConversationId": "src",
		"sourceMessageId":      inserted[1].ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		NewConversationID string `json:"newConversationId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	branched, err := st.GetConversation(context.Background(), &store.FindConversation{UID: &resp.NewConversationID})
	require.NoError(t, err)
	require.Equal(t, []string{"user:q1", "model:a1"}, historyOf(t, st, branched.ID))
	// Source untouched.
	require.Len(t, historyOf(t, st, conv.ID), 3)

	rec = do(t, e, http.MethodPost, "/api/v1/conversations/branch", map[string]any{
		"sourceConversationId": "src",
		"sourceMessageId":      99999,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/v1/conversations/branch", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessagePatchAndDelete(t *testing.T) {
	f := &fakeLLM{failAfter: -1}
	e, st := newTestEnv(t, f)
	conv := seedConversation(t, st, "c1")

	m, err := st.AppendMessage(context.Background(), &store.CreateMessage{
		ConversationID: conv.ID,
		Role:           store.RoleUser,
		Content:        "typo here",
	})
	require.NoError(t, err)

	rec := do(t, e, http.MethodPatch, fmt.Sprintf("/api/v1/messages/%d", m.ID),
		map[string]string{"content": "fixed"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []string{"user:fixed"}, historyOf(t, st, conv.ID))

	rec = do(t, e, http.MethodDelete, fmt.Sprintf("/api/v1/messages/%d", m.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, historyOf(t, st, conv.ID))

	rec = do(t, e, http.MethodDelete, fmt.Sprintf("/api/v1/messages/%d", m.ID), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodPatch, "/api/v1/messages/abc", map[string]string{"content": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCountTokensEndpoint(t *testing.T) {
	f := &fakeLLM{failAfter: -1, tokens: 42}
	e, _ := newTestEnv(t, f)

	rec := do(t, e, http.MethodPost, "/api/v1/tokens/count", chatBody("user", "count me"))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Tokens int `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 42, resp.Tokens)

	rec = do(t, e, http.MethodPost, "/api/v1/tokens/count", chatBody("user", "  "))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateTitleEndpoint(t *testing.T) {
	f := &fakeLLM{failAfter: -1, completeText: "  Concise Title  "}
	e, st := newTestEnv(t, f)
	conv := seedConversation(t, st, "c1")

	rec := do(t, e, http.MethodPost, "/api/v1/conversations/c1/title", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code) // no messages yet

	_, err := st.AppendMessage(context.Background(), &store.CreateMessage{
		ConversationID: conv.ID,
		Role:           store.RoleUser,
		Content:        "how do tides work?",
	})
	require.NoError(t, err)

	rec = do(t, e, http.MethodPost, "/api/v1/conversations/c1/title", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	uid := conv.UID
	got, err := st.GetConversation(context.Background(), &store.FindConversation{UID: &uid})
	require.NoError(t, err)
	require.Equal(t, "Concise Title", got.Title)
}

func TestSearchEndpoint(t *testing.T) {
	f := &fakeLLM{failAfter: -1}
	e, st := newTestEnv(t, f)
	conv := seedConversation(t, st, "c1")

	_, err := st.AppendMessage(context.Background(), &store.CreateMessage{
		ConversationID: conv.ID,
		Role:           store.RoleUser,
		Content:        "hello world",
	})
	require.NoError(t, err)

	rec := do(t, e, http.MethodGet, "/api/v1/search?q=hello", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hits []struct {
		ConversationID string `json:"conversationId"`
		Content        string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hits))
	require.Len(t, hits, 1)
	require.Equal(t, "c1", hits[0].ConversationID)

	rec = do(t, e, http.MethodGet, "/api/v1/search", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Semantic search is off without an embeddings configuration.
	rec = do(t, e, http.MethodGet, "/api/v1/search/semantic?q=hello", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
