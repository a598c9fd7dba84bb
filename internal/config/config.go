package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"computeruse-backend/internal/agent"
	"computeruse-backend/internal/agent/tools"

	"github.com/joho/godotenv"
)

// Config holds application configuration values loaded from environment variables.
type Config struct {
	HTTPPort       string
	DatabaseURL    string
	AllowedOrigins []string

	AnthropicAPIKey  string
	AnthropicBaseURL string
	Model            string
	MaxTokens        int64
	ToolVersion      string
	ThinkingBudget   *int64

	LogLevel string
	LogFile  string

	Display     string
	ToolWorkDir string
}

// LoadConfig loads configuration from environment variables.
// It looks for a .env file first, then checks actual environment variables.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file (useful for development)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Could not load .env file, using environment variables only", "error", err)
	}

	cfg := &Config{
		HTTPPort:         getEnv("HTTP_PORT", "8081"),
		DatabaseURL:      databaseURL(),
		AllowedOrigins:   splitList(getEnv("ALLOWED_ORIGINS", "*")),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", ""),
		Model:            getEnv("ANTHROPIC_MODEL", agent.DefaultModel),
		MaxTokens:        getEnvInt("ANTHROPIC_MAX_TOKENS", agent.DefaultMaxTokens),
		ToolVersion:      getEnv("ANTHROPIC_TOOL_VERSION", agent.DefaultToolVersion),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFile:          getEnv("LOG_FILE", ""),
		Display:          getEnv("DISPLAY", tools.DefaultDisplay),
		ToolWorkDir:      getEnv("TOOL_WORKDIR", ""),
	}

	if raw := strings.TrimSpace(getEnv("ANTHROPIC_THINKING_BUDGET", "")); raw != "" {
		budget, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || budget <= 0 {
			slog.Warn("Invalid ANTHROPIC_THINKING_BUDGET, extended thinking disabled", "value", raw)
		} else {
			cfg.ThinkingBudget = &budget
		}
	}
	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		return nil, fmt.Errorf("invalid HTTP_PORT %q: %w", cfg.HTTPPort, err)
	}
	if _, err := tools.ForVersion(cfg.ToolVersion, tools.Options{}); err != nil {
		return nil, fmt.Errorf("invalid ANTHROPIC_TOOL_VERSION: %w", err)
	}

	return cfg, nil
}

// IsSQLite reports whether DatabaseURL selects the embedded SQLite backend.
func (c *Config) IsSQLite() bool {
	return IsSQLiteURL(c.DatabaseURL)
}

// IsSQLiteURL reports whether a database URL names a SQLite file.
func IsSQLiteURL(raw string) bool {
	return strings.HasPrefix(raw, "sqlite:") || strings.HasPrefix(raw, "file:")
}

// AgentConfig returns the per-invocation agent configuration.
func (c *Config) AgentConfig() agent.Config {
	return agent.Config{
		Model:          c.Model,
		MaxTokens:      c.MaxTokens,
		ToolVersion:    c.ToolVersion,
		ThinkingBudget: c.ThinkingBudget,
		APIKey:         c.AnthropicAPIKey,
	}.WithDefaults()
}

// ToolOptions returns the options for the computer tools.
func (c *Config) ToolOptions() tools.Options {
	return tools.Options{Display: c.Display, WorkDir: c.ToolWorkDir}
}

// databaseURL prefers DATABASE_URL and otherwise composes one from POSTGRES_*.
func databaseURL() string {
	if v := getEnv("DATABASE_URL", ""); v != "" {
		return v
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(getEnv("POSTGRES_USER", "computeruse"), getEnv("POSTGRES_PASSWORD", "computeruse123")),
		Host:   getEnv("POSTGRES_HOST", "postgres") + ":" + getEnv("POSTGRES_PORT", "5432"),
		Path:   "/" + getEnv("POSTGRES_DB", "chat_sessions"),
	}
	return u.String()
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value.
// Empty values count as unset.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int64) int64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return n
}
