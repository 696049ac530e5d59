package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"
)

type searchHit struct {
	MessageID       int32  `json:"messageId"`
	ConversationUID string `json:"conversationId"`
	Role            string `json:"role"`
	Content         string `json:"content"`
	Snippet         string `json:"snippet"`
	CreatedTs       int64  `json:"createdTs"`
}

// searchMessages runs a full-text query over the transactional mirror.
func (s *APIV1Service) searchMessages(c *echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	results, err := s.Store.SearchMessages(c.Request().Context(), q, limit)
	if err != nil {
		return errToHTTP(err)
	}
	resp := make([]searchHit, 0, len(results))
	for _, r := range results {
		resp = append(resp, searchHit{
			MessageID:       r.ID,
			ConversationUID: r.ConversationUID,
			Role:            r.Role,
			Content:         r.Content,
			Snippet:         r.Snippet,
			CreatedTs:       r.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

type semanticHit struct {
	ConversationUID string  `json:"conversationId"`
	Content         string  `json:"content"`
	Score           float32 `json:"score"`
}

// searchSemantic queries the optional embedding index.
func (s *APIV1Service) searchSemantic(c *echo.Context) error {
	if s.VectorStore == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "semantic search is not configured")
	}
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	k, _ := strconv.Atoi(c.QueryParam("k"))
	if k <= 0 {
		k = 5
	}
	results, err := s.VectorStore.SearchSimilar(c.Request().Context(), q, k)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "semantic search failed")
	}
	resp := make([]semanticHit, 0, len(results))
	for _, r := range results {
		resp = append(resp, semanticHit{
			ConversationUID: r.ConversationUID,
			Content:         r.Content,
			Score:           r.Score,
		})
	}
	return c.JSON(http.StatusOK, resp)
}
