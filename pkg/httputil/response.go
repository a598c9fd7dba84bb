package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"computeruse-backend/internal/models"
)

// RespondJSON writes a JSON response with the given status code and payload.
func RespondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already written, just log the error
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// RespondError writes a JSON error response in the {"detail": ...} shape.
func RespondError(w http.ResponseWriter, statusCode int, message string) {
	RespondJSON(w, statusCode, models.ErrorResponse{Detail: message})
}
