package conversation

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	chatmodel "github.com/baochat/baochat/internal/model/chat"
	"github.com/baochat/baochat/internal/store"
	"github.com/baochat/baochat/pkg/utils"
)

// Store is the persistence surface the REST endpoints need.
type Store interface {
	CreateConversation(ctx context.Context) (chatmodel.Conversation, error)
	ListConversations(ctx context.Context) ([]chatmodel.ConversationSummary, error)
	History(ctx context.Context, conversationID string, limit int) ([]chatmodel.Message, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Handler serves conversation CRUD.
type Handler struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/conversations", h.create)
	r.Get("/conversations", h.list)
	r.Get("/conversations/{conversationID}/messages", h.messages)
	r.Delete("/conversations/{conversationID}", h.delete)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	conv, err := h.store.CreateConversation(r.Context())
	if err != nil {
		h.logger.Error("create conversation failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]string{"conversation_id": conv.ID})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.ListConversations(r.Context())
	if err != nil {
		h.logger.Error("list conversations failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if summaries == nil {
		summaries = []chatmodel.ConversationSummary{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"conversations": summaries})
}

func (h *Handler) messages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	messages, err := h.store.History(r.Context(), conversationID, limit)
	if err != nil {
		h.logger.Error("load messages failed", "conversation", conversationID, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if messages == nil {
		messages = []chatmodel.Message{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	if err := h.store.DeleteConversation(r.Context(), conversationID); err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			utils.RespondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("delete conversation failed", "conversation", conversationID, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":          "deleted",
		"conversation_id": conversationID,
	})
}
