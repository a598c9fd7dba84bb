package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"computeruse-backend/internal/store"
	"computeruse-backend/pkg/httputil"
)

// respondSessionError maps store and service errors for a session to a status code.
func respondSessionError(w http.ResponseWriter, logger *slog.Logger, code string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, fmt.Sprintf("Session %s not found", code))
	case errors.Is(err, store.ErrDuplicateSession):
		httputil.RespondError(w, http.StatusConflict, "Session already exists")
	default:
		logger.Error("Session request failed", "session_id", code, "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
