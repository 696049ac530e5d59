package v1

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/Luppa90/vertex-local/store"
)

type messageListRequest struct {
	Messages []messagePayload `json:"messages"`
}

type messagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toStorePayloads(msgs []messagePayload) []store.MessagePayload {
	out := make([]store.MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, store.MessagePayload{Role: m.Role, Content: m.Content})
	}
	return out
}

func messageIDParam(c *echo.Context) (int32, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "malformed message id")
	}
	return int32(id), nil
}

func (s *APIV1Service) updateMessage(c *echo.Context) error {
	id, err := messageIDParam(c)
	if err != nil {
		return err
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed body")
	}
	ctx := c.Request().Context()
	if err := s.Store.UpdateMessageContent(ctx, id, req.Content); err != nil {
		return errToHTTP(err)
	}
	s.reindexMessage(id)
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) deleteMessage(c *echo.Context) error {
	id, err := messageIDParam(c)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteMessage(c.Request().Context(), id); err != nil {
		return errToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// reconcileMessages makes storage match the submitted history. No generation.
func (s *APIV1Service) reconcileMessages(c *echo.Context) error {
	uid := c.Param("uid")
	var req messageListRequest
	if err := c.Bind(&req); err != nil || req.Messages == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "messages required")
	}
	ctx := c.Request().Context()
	conv, err := s.Store.GetConversation(ctx, &store.FindConversation{UID: &uid})
	if err != nil {
		return errToHTTP(err)
	}
	inserted, err := s.Store.ReplaceAllMessages(ctx, &store.ReplaceAllMessages{
		ConversationID: conv.ID,
		Messages:       toStorePayloads(req.Messages),
	})
	if err != nil {
		return errToHTTP(err)
	}
	s.indexMessages(conv.UID, inserted)
	return c.JSON(http.StatusOK, toMessageResponses(inserted))
}

// reindexMessage refreshes one message's semantic index entry after an edit.
func (s *APIV1Service) reindexMessage(id int32) {
	if s.VectorStore == nil {
		return
	}
	go func() {
		ctx := context.Background()
		m, err := s.Store.GetMessage(ctx, id)
		if err != nil {
			return
		}
		conv, err := s.Store.GetConversation(ctx, &store.FindConversation{ID: &m.ConversationID})
		if err != nil {
			return
		}
		if err := s.VectorStore.UpsertMessage(ctx, conv.UID, m.ID, m.Content); err != nil {
			slog.Warn("semantic reindex failed", "message", id, "err", err)
		}
	}()
}

// indexMessages pushes a freshly committed message set into the semantic
// index. Best-effort; the transactional full-text mirror is the source of
// truth for search.
func (s *APIV1Service) indexMessages(conversationUID string, msgs []*store.Message) {
	if s.VectorStore == nil {
		return
	}
	snapshot := make([]*store.Message, len(msgs))
	copy(snapshot, msgs)
	go func() {
		ctx := context.Background()
		for _, m := range snapshot {
			if err := s.VectorStore.UpsertMessage(ctx, conversationUID, m.ID, m.Content); err != nil {
				slog.Warn("semantic index failed", "conversation", conversationUID, "message", m.ID, "err", err)
				return
			}
		}
	}()
}
