package handlers

import (
	"context"
	"net/http"
	"time"

	"computeruse-backend/internal/models"
	"computeruse-backend/internal/relay"
	"computeruse-backend/internal/store"
	"computeruse-backend/pkg/httputil"
)

// HealthHandler reports liveness and dependency state.
type HealthHandler struct {
	store store.Store
	hub   *relay.Hub
}

func NewHealthHandler(s store.Store, hub *relay.Hub) *HealthHandler {
	return &HealthHandler{store: s, hub: hub}
}

// HandleHealth handles GET /health.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HandleDetails handles GET /health/details. It responds 503 when the
// database is unreachable.
func (h *HealthHandler) HandleDetails(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := models.HealthResponse{
		Status:            "ok",
		Database:          "ok",
		ActiveConnections: h.hub.Count(),
		Sessions:          h.hub.Sessions(),
	}
	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
		status = http.StatusServiceUnavailable
	}
	httputil.RespondJSON(w, status, resp)
}
