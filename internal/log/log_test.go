package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]slog.Level{
		"":       slog.LevelInfo,
		"debug":  slog.LevelDebug,
		"INFO":   slog.LevelInfo,
		" warn ": slog.LevelWarn,
		"error":  slog.LevelError,
	} {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestConsoleHandlerFiltersByLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h, err := NewHandler(Options{Level: "warn", Console: &buf})
	require.NoError(t, err)
	logger := slog.New(h)

	logger.Info("quiet")
	assert.Empty(t, buf.String())

	logger.Warn("loud", "session_id", "abc")
	assert.Contains(t, buf.String(), "loud")
	assert.Contains(t, buf.String(), "abc")
}

func TestFileHandlerWritesJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "server.log")
	h, err := NewHandler(Options{Level: "debug", File: path})
	require.NoError(t, err)
	slog.New(h).Debug("hello", "component", "test")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "test", rec["component"])
	assert.Equal(t, "DEBUG", rec["level"])
}

func TestMaskAPIKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "***EMPTY***", MaskAPIKey(""))
	assert.Equal(t, "****", MaskAPIKey("abcd"))
	assert.Equal(t, "ab****gh", MaskAPIKey("abcdefgh"))
	assert.Equal(t, "abcde*****vwxyz", MaskAPIKey("sk-ant-abcdefghijvwxyz"))
}
