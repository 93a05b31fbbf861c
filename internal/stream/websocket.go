// Package stream provides the WebSocket push transport for chat events.
//
// Streaming clients consume runtime events as they arrive and therefore
// use the authenticated session directly, without the unread decorator
// that buffers events for polling clients.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/botgate/internal/bot"
	"github.com/ashureev/botgate/internal/domain"
	"github.com/ashureev/botgate/internal/session"
)

// Handler upgrades requests to WebSocket connections and forwards chat
// events for one authenticated session.
type Handler struct {
	mgr           *session.Manager
	dispatcher    *bot.Dispatcher
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new WebSocket handler.
func NewHandler(mgr *session.Manager, dispatcher *bot.Dispatcher, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		mgr:           mgr,
		dispatcher:    dispatcher,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// clientMessage is an inbound WebSocket frame.
type clientMessage struct {
	Type string `json:"type"`
	To   string `json:"to,omitempty"`
	Body string `json:"body,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade. Streaming
// connections must present an explicit session key; the single-session
// fallback applies to pull-style requests only.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := session.KeyFromRequest(r, "")
	auth, err := h.mgr.ResolveStream(key)
	if err != nil {
		switch err {
		case session.ErrNotAuthenticated:
			http.Error(w, "session not authenticated", http.StatusForbidden)
		default:
			http.Error(w, "illegal session", http.StatusUnauthorized)
		}
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session", key)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session", key)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Events arriving faster than the socket drains are dropped rather
	// than blocking the dispatcher; polling via /api/events is the
	// lossless path.
	events := make(chan domain.Event, 64)
	id, ok := h.dispatcher.Attach(key, func(ev domain.Event) {
		select {
		case events <- ev:
		default:
			slog.Warn("Stream buffer full, dropping event", "session", key, "event", ev.ID)
		}
	})
	if !ok {
		slog.Warn("Stream attach failed, no subscription", "session", key)
		return
	}
	defer h.dispatcher.Detach(key, id)

	slog.Info("Stream opened", "session", key, "bot", auth.Binding().Key(), "ip", r.RemoteAddr)

	go h.readLoop(ctx, cancel, ws, auth, key)
	h.writeLoop(ctx, ws, events, key)

	slog.Info("Stream closed", "session", key)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// writeLoop forwards dispatched events to the socket until the
// connection or the session goes away.
func (h *Handler) writeLoop(ctx context.Context, ws *websocket.Conn, events <-chan domain.Event, key string) {
	for {
		select {
		case ev := <-events:
			if err := writeJSON(ctx, ws, ev); err != nil {
				slog.Debug("Stream write failed", "session", key, "error", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readLoop consumes client frames: outbound sends and pings. Any read
// error tears the connection down.
func (h *Handler) readLoop(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, auth *session.Authenticated, key string) {
	defer cancel()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("Stream received malformed frame", "session", key, "error", err)
			continue
		}

		switch msg.Type {
		case "send":
			if msg.To == "" || msg.Body == "" {
				continue
			}
			out := domain.OutboundMessage{
				ID:        uuid.NewString(),
				To:        msg.To,
				Body:      msg.Body,
				CreatedAt: time.Now(),
			}
			if err := auth.Binding().Send(ctx, out); err != nil {
				slog.Error("Stream send failed", "session", key, "error", err)
			}
		case "ping":
			if err := writeJSON(ctx, ws, map[string]string{"type": "pong"}); err != nil {
				return
			}
		default:
			slog.Debug("Stream received unknown frame type", "session", key, "type", msg.Type)
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
