package health

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/baochat/baochat/pkg/utils"
)

// ModelManager reports and repairs language model availability.
type ModelManager interface {
	Model() string
	ModelAvailable(ctx context.Context) bool
	EnsureModel(ctx context.Context) string
}

// Handler serves liveness and model setup endpoints.
type Handler struct {
	models ModelManager
	logger *slog.Logger
}

func New(models ModelManager, logger *slog.Logger) *Handler {
	return &Handler{models: models, logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/setup/model", h.setupModel)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "healthy",
		"ollama_connected": h.models.ModelAvailable(r.Context()),
		"model":            h.models.Model(),
	})
}

func (h *Handler) setupModel(w http.ResponseWriter, r *http.Request) {
	status := h.models.EnsureModel(r.Context())
	h.logger.Info("model setup", "model", h.models.Model(), "status", status)
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status": status,
		"model":  h.models.Model(),
	})
}
