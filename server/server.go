// Package server wires the HTTP surface onto a net/http server.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/Luppa90/vertex-local/internal/profile"
	"github.com/Luppa90/vertex-local/plugin/llm"
	"github.com/Luppa90/vertex-local/plugin/vectorstore"
	apiv1 "github.com/Luppa90/vertex-local/server/router/api/v1"
	"github.com/Luppa90/vertex-local/store"
)

// Server hosts the API.
type Server struct {
	echo    *echo.Echo
	http    *http.Server
	profile *profile.Profile
}

// New assembles the router and its handlers.
func New(p *profile.Profile, st *store.Store, svc llm.Service, vs *vectorstore.Store) *Server {
	e := echo.New()
	e.Use(requestLogger)

	e.GET("/healthz", func(c *echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	apiv1.NewAPIV1Service(st, svc, vs, p).RegisterRoutes(e)

	return &Server{
		echo:    e,
		profile: p,
		http: &http.Server{
			Addr:    p.Addr,
			Handler: e,
			// No write timeout: chat responses stream for as long as the
			// generation runs.
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("listening", "addr", s.profile.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		start := time.Now()
		reqID := uuid.NewString()[:8]
		c.Response().Header().Set("X-Request-Id", reqID)
		err := next(c)
		slog.Info("request",
			"id", reqID,
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"duration", time.Since(start),
			"err", err,
		)
		return err
	}
}
