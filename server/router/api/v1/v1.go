// Package v1 is the HTTP surface of the conversation engine.
package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/Luppa90/vertex-local/internal/profile"
	"github.com/Luppa90/vertex-local/plugin/llm"
	"github.com/Luppa90/vertex-local/plugin/vectorstore"
	"github.com/Luppa90/vertex-local/store"
)

// APIV1Service bundles the dependencies every handler needs.
type APIV1Service struct {
	Store       *store.Store
	LLM         llm.Service
	VectorStore *vectorstore.Store // nil when embeddings are disabled
	Profile     *profile.Profile
}

// NewAPIV1Service creates the handler set.
func NewAPIV1Service(st *store.Store, svc llm.Service, vs *vectorstore.Store, p *profile.Profile) *APIV1Service {
	return &APIV1Service{
		Store:       st,
		LLM:         svc,
		VectorStore: vs,
		Profile:     p,
	}
}

// RegisterRoutes mounts the /api/v1 group.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/conversations", s.listConversations)
	g.POST("/conversations", s.createConversation)
	g.GET("/conversations/:uid", s.getConversation)
	g.PATCH("/conversations/:uid", s.updateConversation)
	g.DELETE("/conversations/:uid", s.deleteConversation)
	g.POST("/conversations/:uid/title", s.generateTitle)
	g.POST("/conversations/branch", s.branchConversation)
	g.PUT("/conversations/:uid/messages", s.reconcileMessages)
	g.POST("/conversations/:uid/chat", s.handleChat)
	g.PATCH("/messages/:id", s.updateMessage)
	g.DELETE("/messages/:id", s.deleteMessage)
	g.POST("/tokens/count", s.countTokens)
	g.GET("/search", s.searchMessages)
	g.GET("/search/semantic", s.searchSemantic)
}

// errToHTTP maps store errors onto HTTP status codes. Persistence detail is
// logged, not exposed.
func errToHTTP(err error) error {
	var ve *store.ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, ve.Reason)
	}
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	var pe *store.PersistenceError
	if errors.As(err, &pe) {
		slog.Error("storage failure", "err", pe.Err)
		return echo.NewHTTPError(http.StatusInternalServerError, "storage failure")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
