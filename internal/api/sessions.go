package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ashureev/botgate/internal/domain"
	"github.com/ashureev/botgate/internal/session"
)

// RegisterRoutes registers the session API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/session", h.CreateSession)
		r.Post("/session/authenticate", h.Authenticate)
		r.Get("/session/status", h.SessionStatus)
		r.Delete("/session", h.CloseSession)
		r.Get("/events", h.Events)
		r.Get("/history", h.History)
		r.Post("/messages", h.SendMessage)
		r.Get("/bots", h.Bots)
	})
}

// CreateSession handles POST /api/session. It allocates a fresh temporary
// session; the client must authenticate it before the timeout elapses.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.mgr.CreateTemporary()
	JSON(w, http.StatusCreated, map[string]interface{}{
		"session":    s.Key(),
		"expires_in": int(h.cfg.SessionTimeout.Seconds()),
	})
}

// authenticateRequest is the POST /api/session/authenticate payload.
type authenticateRequest struct {
	Key    string `json:"key,omitempty"`
	Secret string `json:"secret"`
	Bot    string `json:"bot,omitempty"`
}

// Authenticate handles POST /api/session/authenticate. A malformed
// payload or a bad secret never touches the registry.
func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(clientIP(r)) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req authenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Secret == "" {
		Error(w, http.StatusBadRequest, "secret is required")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.cfg.APISecret)) != 1 {
		slog.Warn("Authentication failed", "ip", clientIP(r))
		Error(w, http.StatusUnauthorized, "authentication failed")
		return
	}

	botKey := req.Bot
	if botKey == "" {
		botKey = h.defaultBot
	}
	binding, ok := h.bindings[botKey]
	if !ok {
		Error(w, http.StatusBadRequest, "unknown bot")
		return
	}

	key := req.Key
	if key == "" {
		key = h.cfg.SingleSessionKey
	}

	auth := h.mgr.Authenticate(key, binding)
	JSON(w, http.StatusOK, map[string]string{
		"session": auth.Key(),
		"bot":     binding.Key(),
	})
}

// Events handles GET /api/events: drain the session's unread queue. The
// first touch of an authenticated session installs the unread decorator.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	key := session.KeyFromRequest(r, h.cfg.SingleSessionKey)
	us, err := h.mgr.ResolveUnread(key)
	if err != nil {
		sessionError(w, err)
		return
	}

	events := us.DrainUnread()
	if events == nil {
		events = []domain.Event{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// sendMessageRequest is the POST /api/messages payload.
type sendMessageRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// SendMessage handles POST /api/messages: send a chat message through the
// session's bound bot runtime.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	key := session.KeyFromRequest(r, h.cfg.SingleSessionKey)
	us, err := h.mgr.ResolveUnread(key)
	if err != nil {
		sessionError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.To == "" || req.Body == "" {
		Error(w, http.StatusBadRequest, "to and body are required")
		return
	}

	msg := domain.OutboundMessage{
		ID:        uuid.NewString(),
		To:        req.To,
		Body:      req.Body,
		CreatedAt: time.Now(),
	}
	if err := us.Binding().Send(r.Context(), msg); err != nil {
		slog.Error("Message send failed", "session", key, "bot", us.Binding().Key(), "error", err)
		Error(w, http.StatusBadGateway, "message delivery failed")
		return
	}

	if h.archiver != nil {
		h.archiver.ArchiveMessage(us.Binding().Key(), msg)
	}
	JSON(w, http.StatusAccepted, map[string]string{"id": msg.ID})
}

// History handles GET /api/history: recent archived events for the
// session's bound bot.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	key := session.KeyFromRequest(r, h.cfg.SingleSessionKey)
	us, err := h.mgr.ResolveUnread(key)
	if err != nil {
		sessionError(w, err)
		return
	}
	if h.repo == nil {
		Error(w, http.StatusNotFound, "archive disabled")
		return
	}

	events, err := h.repo.RecentEvents(r.Context(), us.Binding().Key(), 50)
	if err != nil {
		slog.Error("History query failed", "session", key, "error", err)
		Error(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if events == nil {
		events = []*domain.Event{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// SessionStatus handles GET /api/session/status.
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	key := session.KeyFromRequest(r, h.cfg.SingleSessionKey)
	s := h.mgr.Lookup(key)
	if s == nil {
		Error(w, http.StatusUnauthorized, "illegal session")
		return
	}

	switch v := s.(type) {
	case *session.Temporary:
		JSON(w, http.StatusOK, map[string]interface{}{
			"state":      "pending",
			"created_at": v.CreatedAt(),
		})
	case *session.UnreadSession:
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		JSON(w, http.StatusOK, map[string]interface{}{
			"state":  "authenticated",
			"bot":    v.Binding().Key(),
			"alive":  v.Binding().Alive(ctx),
			"unread": v.Len(),
		})
	case *session.Authenticated:
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		JSON(w, http.StatusOK, map[string]interface{}{
			"state": "authenticated",
			"bot":   v.Binding().Key(),
			"alive": v.Binding().Alive(ctx),
		})
	}
}

// CloseSession handles DELETE /api/session. Closing an absent key is a
// no-op and still returns 204.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	key := session.KeyFromRequest(r, h.cfg.SingleSessionKey)
	h.mgr.CloseSession(key)
	w.WriteHeader(http.StatusNoContent)
}

// Bots handles GET /api/bots: every live bot binding across all
// authenticated sessions.
func (h *Handler) Bots(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	sessions := h.mgr.ListAuthenticated()
	out := make([]domain.BotStatus, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, domain.BotStatus{
			SessionKey: s.Key(),
			BotKey:     s.Binding().Key(),
			Alive:      s.Binding().Alive(ctx),
		})
	}
	JSON(w, http.StatusOK, map[string]interface{}{"bots": out})
}
