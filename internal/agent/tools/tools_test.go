package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bashCall(t *testing.T, command string) Call {
	t.Helper()
	input, err := json.Marshal(BashParams{Command: command})
	require.NoError(t, err)
	return Call{ID: "toolu_1", Name: BashToolName, Input: string(input)}
}

func TestBashToolRunsCommand(t *testing.T) {
	t.Parallel()

	res, err := NewBashTool("").Run(context.Background(), bashCall(t, "echo hello && echo world"))
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", res.Output)
	assert.Empty(t, res.Error)
}

func TestBashToolReportsExitStatusAndStderr(t *testing.T) {
	t.Parallel()

	res, err := NewBashTool("").Run(context.Background(), bashCall(t, "echo partial; echo oops >&2; exit 3"))
	require.NoError(t, err)
	assert.Equal(t, "partial\n", res.Output)
	assert.Contains(t, res.Error, "oops")
	assert.Contains(t, res.Error, "exit status 3")
}

func TestBashToolRejectsBadInput(t *testing.T) {
	t.Parallel()

	tool := NewBashTool("")
	res, err := tool.Run(context.Background(), Call{Name: BashToolName, Input: "not json"})
	require.NoError(t, err)
	assert.Contains(t, res.Error, "invalid parameters")

	res, err = tool.Run(context.Background(), bashCall(t, "  "))
	require.NoError(t, err)
	assert.Equal(t, "command is required", res.Error)

	res, err = tool.Run(context.Background(), bashCall(t, `echo "unterminated`))
	require.NoError(t, err)
	assert.Contains(t, res.Error, "parse command")
}

func TestBashToolUsesWorkDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	res, err := NewBashTool(dir).Run(context.Background(), bashCall(t, "pwd"))
	require.NoError(t, err)
	assert.Equal(t, dir, strings.TrimSpace(res.Output))
}

func TestTruncateOutput(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncateOutput("short"))
	long := strings.Repeat("line\n", MaxOutputLength)
	out := truncateOutput(long)
	assert.Less(t, len(out), len(long))
	assert.Contains(t, out, "lines truncated")

	// Both cut points fall inside a two-byte rune.
	wide := "a" + strings.Repeat("é", MaxOutputLength) + "b"
	out = truncateOutput(wide)
	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasPrefix(out, "a"))
	assert.True(t, strings.HasSuffix(out, "éb"))
}

func TestScreenshotCapturesCommandOutput(t *testing.T) {
	t.Parallel()

	shot := NewScreenshotTool(":7")
	shot.Command = `printf 'PNG%s' "$DISPLAY"`

	res, err := shot.Run(context.Background(), Call{Name: ScreenshotToolName})
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	raw, err := base64.StdEncoding.DecodeString(res.Base64Image)
	require.NoError(t, err)
	assert.Equal(t, "PNG:7", string(raw))
}

func TestScreenshotFailureIsReported(t *testing.T) {
	t.Parallel()

	shot := NewScreenshotTool("")
	assert.Equal(t, DefaultDisplay, shot.Display)

	shot.Command = "echo no display >&2; exit 1"
	res, err := shot.Run(context.Background(), Call{Name: ScreenshotToolName})
	require.NoError(t, err)
	assert.Empty(t, res.Base64Image)
	assert.Contains(t, res.Error, "no display")

	shot.Command = "true"
	res, err = shot.Run(context.Background(), Call{Name: ScreenshotToolName})
	require.NoError(t, err)
	assert.Contains(t, res.Error, "no image data")
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg, err := ForVersion(Version20250124, Options{Display: ":1"})
	require.NoError(t, err)

	infos := reg.Infos()
	require.Len(t, infos, 2)
	assert.Equal(t, BashToolName, infos[0].Name)
	assert.Equal(t, ScreenshotToolName, infos[1].Name)

	res := reg.Run(context.Background(), Call{Name: "mouse_move"})
	assert.Equal(t, "unknown tool: mouse_move", res.Error)

	res = reg.Run(context.Background(), bashCall(t, "echo hi"))
	assert.Equal(t, "hi\n", res.Output)

	_, err = ForVersion("computer_use_1999", Options{})
	assert.Error(t, err)
}
