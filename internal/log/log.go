package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the process logger.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// File routes JSON records to a rotating file instead of the console.
	File string
	// Console defaults to os.Stderr.
	Console io.Writer
}

// ParseLevel maps a level name to an slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(name) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// NewHandler builds the handler described by opts.
func NewHandler(opts Options) (slog.Handler, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	if opts.File != "" {
		logRotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // Max size in MB
			MaxBackups: 0,
			MaxAge:     30, // Days
			Compress:   false,
		}
		return slog.NewJSONHandler(logRotator, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		}), nil
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	logger := charmlog.New(console)
	logger.SetReportTimestamp(true)
	logger.SetLevel(charmlog.Level(level))
	return logger, nil
}

// Setup installs the configured logger as the slog default and returns it.
func Setup(opts Options) (*slog.Logger, error) {
	handler, err := NewHandler(opts)
	if err != nil {
		return nil, err
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// MaskAPIKey masks an API key by showing only the first and last 5 characters.
// For keys shorter than 10 characters, it shows first 2 and last 2 characters.
// Returns "***EMPTY***" for empty strings.
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return "***EMPTY***"
	}

	key := strings.TrimPrefix(apiKey, "Bearer ")
	key = strings.TrimPrefix(key, "sk-ant-")
	key = strings.TrimPrefix(key, "sk-")

	keyLen := len(key)
	switch {
	case keyLen <= 4:
		return strings.Repeat("*", keyLen)
	case keyLen <= 10:
		return key[:2] + strings.Repeat("*", keyLen-4) + key[keyLen-2:]
	default:
		return key[:5] + strings.Repeat("*", keyLen-10) + key[keyLen-5:]
	}
}
