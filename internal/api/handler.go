// Package api provides the HTTP (pull-style) handlers for the botgate API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/botgate/internal/bot"
	"github.com/ashureev/botgate/internal/config"
	"github.com/ashureev/botgate/internal/session"
	"github.com/ashureev/botgate/internal/store"
)

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

// Handler provides common handler dependencies.
type Handler struct {
	mgr        *session.Manager
	repo       store.Repository
	archiver   *store.Archiver
	bindings   map[string]bot.Binding
	defaultBot string
	cfg        *config.Config
	limiter    *RateLimiter
}

// NewHandler creates a new Handler. bindings maps bot keys to live
// runtime bindings; defaultBot is used when an authentication request
// names no bot. repo and archiver may be nil when archiving is disabled.
func NewHandler(mgr *session.Manager, repo store.Repository, archiver *store.Archiver, bindings map[string]bot.Binding, defaultBot string, cfg *config.Config) *Handler {
	return &Handler{
		mgr:        mgr,
		repo:       repo,
		archiver:   archiver,
		bindings:   bindings,
		defaultBot: defaultBot,
		cfg:        cfg,
		limiter:    NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration),
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// sessionError maps a resolution failure to its HTTP response. Unknown
// keys and not-yet-authenticated keys are surfaced distinctly so clients
// can tell "start over" from "finish authenticating".
func sessionError(w http.ResponseWriter, err error) {
	switch err {
	case session.ErrIllegalSession:
		Error(w, http.StatusUnauthorized, "illegal session")
	case session.ErrNotAuthenticated:
		Error(w, http.StatusForbidden, "session not authenticated")
	default:
		Error(w, http.StatusInternalServerError, "session resolution failed")
	}
}
