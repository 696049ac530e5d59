package v1

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/lithammer/shortuuid/v4"

	"github.com/Luppa90/vertex-local/plugin/llm"
	"github.com/Luppa90/vertex-local/store"
)

// placeholderTitle is assigned at creation and replaced by summarization.
const placeholderTitle = "New Chat"

type conversationRequest struct {
	Title        string `json:"title"`
	Model        string `json:"model"`
	SystemPrompt string `json:"systemPrompt"`
	Params       string `json:"params"`
}

type conversationPatchRequest struct {
	Model        *string `json:"model"`
	SystemPrompt *string `json:"systemPrompt"`
}

type conversationResponse struct {
	UID          string `json:"uid"`
	Title        string `json:"title"`
	Model        string `json:"model"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
	Params       string `json:"params,omitempty"`
	CreatedTs    int64  `json:"createdTs"`
}

type messageResponse struct {
	ID        int32  `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedTs int64  `json:"createdTs"`
}

type conversationDetailResponse struct {
	conversationResponse
	Messages []messageResponse `json:"messages"`
}

func toConversationResponse(conv *store.Conversation) conversationResponse {
	return conversationResponse{
		UID:          conv.UID,
		Title:        conv.Title,
		Model:        conv.Model,
		SystemPrompt: conv.SystemPrompt,
		Params:       conv.Params,
		CreatedTs:    conv.CreatedTs,
	}
}

func toMessageResponses(msgs []*store.Message) []messageResponse {
	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, messageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedTs: m.CreatedTs,
		})
	}
	return resp
}

func (s *APIV1Service) listConversations(c *echo.Context) error {
	convs, err := s.Store.ListConversations(c.Request().Context(), &store.FindConversation{
		NonEmptyOnly: true,
	})
	if err != nil {
		return errToHTTP(err)
	}
	resp := make([]conversationResponse, 0, len(convs))
	for _, conv := range convs {
		resp = append(resp, toConversationResponse(conv))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) createConversation(c *echo.Context) error {
	var req conversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed body")
	}
	if req.Title == "" {
		req.Title = placeholderTitle
	}
	if req.Model == "" {
		req.Model = s.Profile.Model
	}
	conv, err := s.Store.CreateConversation(c.Request().Context(), &store.Conversation{
		UID:          shortuuid.New(),
		Title:        req.Title,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Params:       req.Params,
	})
	if err != nil {
		return errToHTTP(err)
	}
	return c.JSON(http.StatusCreated, toConversationResponse(conv))
}

func (s *APIV1Service) getConversation(c *echo.Context) error {
	uid := c.Param("uid")
	ctx := c.Request().Context()
	conv, err := s.Store.GetConversation(ctx, &store.FindConversation{UID: &uid})
	if err != nil {
		return errToHTTP(err)
	}
	msgs, err := s.Store.ListMessages(ctx, &store.FindMessage{ConversationID: &conv.ID})
	if err != nil {
		return errToHTTP(err)
	}
	return c.JSON(http.StatusOK, conversationDetailResponse{
		conversationResponse: toConversationResponse(conv),
		Messages:             toMessageResponses(msgs),
	})
}

func (s *APIV1Service) updateConversation(c *echo.Context) error {
	uid := c.Param("uid")
	var req conversationPatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed body")
	}
	conv, err := s.Store.UpdateConversation(c.Request().Context(), &store.UpdateConversation{
		UID:          uid,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		return errToHTTP(err)
	}
	return c.JSON(http.StatusOK, toConversationResponse(conv))
}

func (s *APIV1Service) deleteConversation(c *echo.Context) error {
	if err := s.Store.DeleteConversation(c.Request().Context(), c.Param("uid")); err != nil {
		return errToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) branchConversation(c *echo.Context) error {
	var req struct {
		SourceConversationID string `json:"sourceConversationId"`
		SourceMessageID      int32  `json:"sourceMessageId"`
	}
	if err := c.Bind(&req); err != nil || req.SourceConversationID == "" || req.SourceMessageID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "sourceConversationId and sourceMessageId required")
	}
	conv, err := s.Store.BranchConversation(c.Request().Context(), &store.BranchConversation{
		SourceConversationUID: req.SourceConversationID,
		SourceMessageID:       req.SourceMessageID,
		NewUID:                shortuuid.New(),
	})
	if err != nil {
		return errToHTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"newConversationId": conv.UID})
}

// generateTitle derives a short title from the first exchange and persists it.
func (s *APIV1Service) generateTitle(c *echo.Context) error {
	uid := c.Param("uid")
	ctx := c.Request().Context()
	conv, err := s.Store.GetConversation(ctx, &store.FindConversation{UID: &uid})
	if err != nil {
		return errToHTTP(err)
	}
	msgs, err := s.Store.ListMessages(ctx, &store.FindMessage{ConversationID: &conv.ID})
	if err != nil {
		return errToHTTP(err)
	}
	if len(msgs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation has no messages")
	}
	title, err := s.titleFor(ctx, conv.Model, msgs[0].Content)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "title generation failed")
	}
	if _, err := s.Store.UpdateConversation(ctx, &store.UpdateConversation{
		UID:   uid,
		Title: &title,
	}); err != nil {
		return errToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"title": title})
}

func (s *APIV1Service) titleFor(ctx context.Context, model, firstMessage string) (string, error) {
	prompt := fmt.Sprintf(
		"Generate a short (5-7 word) title for a chat that starts with:\n%q\nReturn only the title, no quotes.",
		firstMessage,
	)
	title, err := s.LLM.Complete(ctx, model, "", []llm.Message{{Role: store.RoleUser, Content: prompt}})
	if err != nil {
		return "", err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("empty title")
	}
	return title, nil
}

// autoTitle replaces the placeholder title after the first completed turn.
// Fire-and-forget; failures only log.
func (s *APIV1Service) autoTitle(ctx context.Context, uid, model, firstMessage string) {
	title, err := s.titleFor(ctx, model, firstMessage)
	if err != nil {
		return
	}
	_, _ = s.Store.UpdateConversation(ctx, &store.UpdateConversation{UID: uid, Title: &title})
}
