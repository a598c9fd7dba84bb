package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"computeruse-backend/internal/agent/claude"
	"computeruse-backend/internal/api"
	"computeruse-backend/internal/handlers"
	"computeruse-backend/internal/log"
	"computeruse-backend/internal/relay"
	"computeruse-backend/internal/services"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func init() {
	serveCmd.Flags().Bool("skip-migrations", false, "Do not apply migrations at startup")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		skipMigrations, err := cmd.Flags().GetBool("skip-migrations")
		if err != nil {
			return fmt.Errorf("failed to get skip-migrations flag: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openStore(ctx, cfg, logger, !skipMigrations)
		if err != nil {
			logger.Error("Database is not ready", "error", err)
			return err
		}
		defer s.Close()

		agentCfg := cfg.AgentConfig()
		logger.Info("Agent configured",
			"model", agentCfg.Model,
			"tool_version", agentCfg.ToolVersion,
			"api_key", log.MaskAPIKey(agentCfg.APIKey),
		)
		if !agentCfg.HasCredential() {
			logger.Warn("ANTHROPIC_API_KEY is not set, sessions will reply with a configuration notice")
		}

		loop := claude.New(claude.Options{
			Tools:   cfg.ToolOptions(),
			BaseURL: cfg.AnthropicBaseURL,
			Logger:  logger,
		})
		hub := relay.NewHub()

		sessionService := services.NewSessionService(s, logger)
		router := api.NewRouter(api.RouterDependencies{
			SessionHandler: handlers.NewSessionHandlers(sessionService, logger),
			WebSocketHandler: handlers.NewWebSocketHandler(relay.Deps{
				Store:  s,
				Loop:   loop,
				Config: agentCfg,
				Logger: logger,
			}, hub, cfg.AllowedOrigins, logger),
			HealthHandler: handlers.NewHealthHandler(s, hub),
			Config:        cfg,
			Logger:        logger,
		})

		server := &http.Server{
			Addr:              ":" + cfg.HTTPPort,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("Server starting", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("Shutting down...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			hub.CloseAll(relay.CloseGoingAway, "server shutting down")
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shutdown server: %w", err)
			}
			waitForRelays(shutdownCtx, hub)
			return nil
		})

		if err := g.Wait(); err != nil {
			logger.Error("Server stopped with error", "error", err)
			return err
		}
		logger.Info("Server shutdown complete")
		return nil
	},
}

// waitForRelays lets in-flight agent runs finish persisting.
func waitForRelays(ctx context.Context, hub *relay.Hub) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for hub.Count() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
