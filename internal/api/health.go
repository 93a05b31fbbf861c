package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/botgate/internal/bot"
	"github.com/ashureev/botgate/internal/store"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo     store.Repository
	bindings map[string]bot.Binding
}

// NewHealthHandler creates a new health handler. repo may be nil when
// archiving is disabled.
func NewHealthHandler(repo store.Repository, bindings map[string]bot.Binding) *HealthHandler {
	return &HealthHandler{repo: repo, bindings: bindings}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			slog.Error("Health check failed", "error", err)
			status["status"] = "degraded"
			checks["database"] = "unreachable"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	for key, b := range h.bindings {
		if b.Alive(ctx) {
			checks["bot:"+key] = "ok"
		} else {
			status["status"] = "degraded"
			checks["bot:"+key] = "unreachable"
		}
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}
