package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"computeruse-backend/internal/relay"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades session sockets and runs one relay per connection.
type WebSocketHandler struct {
	deps     relay.Deps
	hub      *relay.Hub
	upgrader *websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(deps relay.Deps, hub *relay.Hub, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	return &WebSocketHandler{
		deps:     deps,
		hub:      hub,
		upgrader: relay.NewUpgrader(allowedOrigins),
		logger:   logger.With("component", "websocket_handler"),
	}
}

// HandleSession handles GET /ws/session/{session_id}. The session is checked
// after the upgrade so a missing session is reported with a close code.
func (h *WebSocketHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "session_id")

	conn, err := relay.Upgrade(h.upgrader, w, r, h.logger.With("session_id", code))
	if err != nil {
		// The upgrader has already written an HTTP error.
		h.logger.Warn("WebSocket upgrade failed", "session_id", code, "error", err)
		return
	}
	unregister := h.hub.Register(code, conn)
	defer unregister()

	h.logger.Info("WebSocket connected", "session_id", code, "remote", r.RemoteAddr, "session_connections", h.hub.CountFor(code))
	err = relay.New(h.deps, code, conn).Run(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, relay.ErrSessionNotFound):
		h.logger.Info("WebSocket rejected, session not found", "session_id", code)
	default:
		h.logger.Error("Relay ended with error", "session_id", code, "error", err)
	}
	conn.Wait()
	h.logger.Info("WebSocket disconnected", "session_id", code)
}
