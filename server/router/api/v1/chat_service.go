package v1

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/Luppa90/vertex-local/plugin/llm"
	"github.com/Luppa90/vertex-local/store"
)

func toLLMMessages(msgs []messagePayload) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func validateMessageList(msgs []messagePayload) error {
	for _, m := range msgs {
		if !store.IsValidRole(m.Role) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid role "+m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "empty message content")
		}
	}
	return nil
}

// handleChat runs one generation turn. The submitted history is authoritative:
// chunks stream back as a raw text body while an accumulator collects the full
// response, and only a cleanly completed generation is reconciled into
// storage. A mid-stream upstream failure truncates the body without a
// trailing error marker and leaves history untouched.
func (s *APIV1Service) handleChat(c *echo.Context) error {
	uid := c.Param("uid")
	var req messageListRequest
	if err := c.Bind(&req); err != nil || len(req.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages required")
	}
	if err := validateMessageList(req.Messages); err != nil {
		return err
	}

	conv, err := s.Store.GetConversation(c.Request().Context(), &store.FindConversation{UID: &uid})
	if err != nil {
		return errToHTTP(err)
	}

	// A caller disconnect must not cancel the generation: the upstream call
	// runs to completion or failure before reconciliation is attempted.
	ctx := context.WithoutCancel(c.Request().Context())

	rw := c.Response()
	var (
		accumulator strings.Builder
		wroteHeader bool
		writeErr    error
	)
	onChunk := func(chunk string) error {
		accumulator.WriteString(chunk)
		if writeErr != nil {
			return nil
		}
		if !wroteHeader {
			rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
			rw.Header().Set("Cache-Control", "no-cache")
			rw.Header().Set("X-Accel-Buffering", "no")
			rw.WriteHeader(http.StatusOK)
			wroteHeader = true
		}
		if _, err := io.WriteString(rw, chunk); err != nil {
			writeErr = err
			return nil
		}
		if f, ok := rw.(http.Flusher); ok {
			f.Flush()
		}
		return nil
	}

	if err := s.LLM.Stream(ctx, conv.Model, conv.SystemPrompt, toLLMMessages(req.Messages), onChunk); err != nil {
		if !wroteHeader {
			return echo.NewHTTPError(http.StatusBadGateway, "generation failed")
		}
		slog.Warn("generation failed mid-stream, history left untouched",
			"conversation", uid, "err", err)
		return nil
	}

	modelText := accumulator.String()
	inserted, err := s.Store.ReplaceAllMessages(ctx, &store.ReplaceAllMessages{
		ConversationID: conv.ID,
		Messages:       toStorePayloads(req.Messages),
		ModelText:      &modelText,
	})
	if err != nil {
		slog.Error("reconcile after completed turn failed", "conversation", uid, "err", err)
		if !wroteHeader {
			return errToHTTP(err)
		}
		return nil
	}

	if conv.Title == placeholderTitle && len(req.Messages) == 1 {
		go s.autoTitle(context.Background(), conv.UID, conv.Model, req.Messages[0].Content)
	}
	s.indexMessages(conv.UID, inserted)
	return nil
}

// countTokens reports the token count the model would see for a candidate
// history.
func (s *APIV1Service) countTokens(c *echo.Context) error {
	var req struct {
		Model    string           `json:"model"`
		Messages []messagePayload `json:"messages"`
	}
	if err := c.Bind(&req); err != nil || len(req.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages required")
	}
	if err := validateMessageList(req.Messages); err != nil {
		return err
	}
	if req.Model == "" {
		req.Model = s.Profile.Model
	}
	tokens, err := s.LLM.CountTokens(c.Request().Context(), req.Model, toLLMMessages(req.Messages))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "token count failed")
	}
	return c.JSON(http.StatusOK, map[string]int{"tokens": tokens})
}
