package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"computeruse-backend/internal/models"
	"computeruse-backend/internal/services"
	"computeruse-backend/pkg/httputil"

	"github.com/go-chi/chi/v5"
)

// SessionHandlers handles HTTP requests for session lifecycle and history.
type SessionHandlers struct {
	sessionService *services.SessionService
	logger         *slog.Logger
}

// NewSessionHandlers creates a new SessionHandlers instance.
func NewSessionHandlers(sessionService *services.SessionService, logger *slog.Logger) *SessionHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandlers{sessionService: sessionService, logger: logger.With("component", "session_handlers")}
}

// HandleCreateSession handles POST /api/session. An empty body is accepted.
func (h *SessionHandlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.sessionService.CreateSession(r.Context(), req)
	if err != nil {
		respondSessionError(w, h.logger, "", err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, resp)
}

// HandleGetSession handles GET /api/session/{session_id}.
func (h *SessionHandlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "session_id")
	resp, err := h.sessionService.GetSession(r.Context(), code)
	if err != nil {
		respondSessionError(w, h.logger, code, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleGetHistory handles GET /api/session/{session_id}/history.
func (h *SessionHandlers) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "session_id")
	resp, err := h.sessionService.GetHistory(r.Context(), code)
	if err != nil {
		respondSessionError(w, h.logger, code, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleListSessions handles GET /api/sessions.
func (h *SessionHandlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	resp, err := h.sessionService.ListSessions(r.Context())
	if err != nil {
		respondSessionError(w, h.logger, "", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleDeleteSession handles DELETE /api/session/{session_id}.
func (h *SessionHandlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "session_id")
	resp, err := h.sessionService.DeleteSession(r.Context(), code)
	if err != nil {
		respondSessionError(w, h.logger, code, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleSearch handles GET /api/sessions/search?q=&limit=.
func (h *SessionHandlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	resp, err := h.sessionService.Search(r.Context(), query, limit)
	if err != nil {
		if errors.Is(err, services.ErrEmptyQuery) {
			httputil.RespondError(w, http.StatusBadRequest, "Query parameter 'q' is required")
			return
		}
		respondSessionError(w, h.logger, "", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}
