package api

import (
	"log/slog"
	"time"

	"computeruse-backend/internal/config"
	"computeruse-backend/internal/handlers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	SessionHandler   *handlers.SessionHandlers
	WebSocketHandler *handlers.WebSocketHandler
	HealthHandler    *handlers.HealthHandler
	Config           *config.Config
	Logger           *slog.Logger
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	// --- Base Middleware Stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger.With("component", "http")))
	r.Use(middleware.Recoverer)

	// --- CORS Configuration ---
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Requested-With"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: !allowsAnyOrigin(deps.Config.AllowedOrigins),
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	// --- Health ---
	if deps.HealthHandler != nil {
		r.Get("/health", deps.HealthHandler.HandleHealth)
		r.Get("/health/details", deps.HealthHandler.HandleDetails)
	}

	// --- Session API ---
	if deps.SessionHandler == nil {
		panic("SessionHandler dependency is nil in router setup")
	}
	r.Route("/api", func(r chi.Router) {
		// The socket route is outside this group; the timeout would cut it off.
		r.Use(middleware.Timeout(60 * time.Second))

		r.Post("/session", deps.SessionHandler.HandleCreateSession)
		r.Get("/session/{session_id}", deps.SessionHandler.HandleGetSession)
		r.Get("/session/{session_id}/history", deps.SessionHandler.HandleGetHistory)
		r.Delete("/session/{session_id}", deps.SessionHandler.HandleDeleteSession)
		r.Get("/sessions", deps.SessionHandler.HandleListSessions)
		r.Get("/sessions/search", deps.SessionHandler.HandleSearch)
	})

	// --- WebSocket ---
	if deps.WebSocketHandler != nil {
		r.Get("/ws/session/{session_id}", deps.WebSocketHandler.HandleSession)
	} else {
		logger.Warn("WebSocketHandler dependency is nil, skipping /ws routes")
	}

	return r
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return len(origins) == 0
}
