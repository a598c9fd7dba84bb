package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"computeruse-backend/internal/agent"
)

const (
	ScreenshotToolName = "screenshot"

	// ScreenshotMediaType is the media type of captured images.
	ScreenshotMediaType = "image/png"

	DefaultDisplay = ":1"

	screenshotTimeout = 30 * time.Second
)

// DefaultScreenshotCommand dumps the root window of $DISPLAY as a PNG on stdout.
const DefaultScreenshotCommand = `xwd -display "$DISPLAY" -root | convert xwd:- png:-`

type ScreenshotTool struct {
	Display string
	Command string
}

func NewScreenshotTool(display string) *ScreenshotTool {
	if display == "" {
		display = DefaultDisplay
	}
	return &ScreenshotTool{Display: display, Command: DefaultScreenshotCommand}
}

func (s *ScreenshotTool) Info() ToolInfo {
	return ToolInfo{
		Name:        ScreenshotToolName,
		Description: "Capture the current screen of the computer as a PNG image.",
		Parameters:  map[string]any{},
	}
}

func (s *ScreenshotTool) Run(ctx context.Context, _ Call) (agent.ToolResult, error) {
	data, err := s.Capture(ctx)
	if err != nil {
		return agent.ToolResult{Error: err.Error()}, nil
	}
	return agent.ToolResult{Base64Image: data}, nil
}

// Capture returns the screen as base64-encoded PNG.
func (s *ScreenshotTool) Capture(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, screenshotTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	env := []string{"DISPLAY=" + s.Display}
	if err := runScript(ctx, s.Command, "", env, &stdout, &stderr); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("screenshot failed: %w: %s", err, msg)
		}
		return "", fmt.Errorf("screenshot failed: %w", err)
	}
	if stdout.Len() == 0 {
		return "", fmt.Errorf("screenshot failed: no image data")
	}
	return base64.StdEncoding.EncodeToString(stdout.Bytes()), nil
}
