package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/baochat/baochat/internal/handler/conversation"
	"github.com/baochat/baochat/internal/handler/health"
	"github.com/baochat/baochat/internal/handler/ws"
	middlewarePkg "github.com/baochat/baochat/internal/middleware"
	chatservice "github.com/baochat/baochat/internal/service/chat"
	"github.com/baochat/baochat/internal/service/ollama"
	"github.com/baochat/baochat/internal/session"
	"github.com/baochat/baochat/internal/store"
)

// NewRouter wires HTTP and websocket routes to core services.
func NewRouter(st *store.Store, pipeline *chatservice.Pipeline, ollamaClient *ollama.Client, registry *session.Registry, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	conversationHandler := conversation.New(st, logger)
	healthHandler := health.New(ollamaClient, logger)
	wsHandler := ws.New(pipeline, st, registry, logger)

	r.Route("/api", func(api chi.Router) {
		conversationHandler.RegisterRoutes(api)
		healthHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
