package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"computeruse-backend/internal/agent"
)

const (
	BashToolName = "bash"

	DefaultBashTimeout = 2 * time.Minute
	MaxOutputLength    = 30000
)

type BashParams struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"` // milliseconds
}

const bashDescription = `Run a shell command on the computer and return its output.

HOW TO USE:
- Provide the command to run; pipes, redirects and && chains are supported
- Commands run non-interactively; avoid programs that wait for input
- GUI programs must be started in the background with DISPLAY set

LIMITATIONS:
- Output longer than 30000 characters is truncated in the middle
- Commands are killed after the timeout (default 2 minutes)`

type bashTool struct {
	workDir string
}

func NewBashTool(workDir string) BaseTool {
	return &bashTool{workDir: workDir}
}

func (b *bashTool) Info() ToolInfo {
	return ToolInfo{
		Name:        BashToolName,
		Description: bashDescription,
		Parameters: map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The command to execute",
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Optional timeout in milliseconds",
			},
		},
		Required: []string{"command"},
	}
}

func (b *bashTool) Run(ctx context.Context, call Call) (agent.ToolResult, error) {
	var params BashParams
	if err := json.Unmarshal([]byte(call.Input), &params); err != nil {
		return agent.ToolResult{Error: fmt.Sprintf("invalid parameters: %v", err)}, nil
	}
	if strings.TrimSpace(params.Command) == "" {
		return agent.ToolResult{Error: "command is required"}, nil
	}

	timeout := DefaultBashTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	err := runScript(ctx, params.Command, b.workDir, nil, &stdout, &stderr)

	res := agent.ToolResult{Output: truncateOutput(stdout.String())}
	errText := strings.TrimSpace(stderr.String())
	if err != nil {
		var exit *ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			errText = joinNonEmpty(errText, fmt.Sprintf("command timed out after %s", timeout))
		case errors.As(err, &exit):
			errText = joinNonEmpty(errText, exit.Error())
		default:
			errText = joinNonEmpty(errText, err.Error())
		}
	}
	res.Error = truncateOutput(errText)
	return res, nil
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n" + b
}

func truncateOutput(content string) string {
	if len(content) <= MaxOutputLength {
		return content
	}
	half := MaxOutputLength / 2
	head := half
	for head > 0 && !utf8.RuneStart(content[head]) {
		head--
	}
	tail := len(content) - half
	for tail < len(content) && !utf8.RuneStart(content[tail]) {
		tail++
	}
	start := content[:head]
	end := content[tail:]
	truncatedLines := strings.Count(content[head:tail], "\n")
	return fmt.Sprintf("%s\n\n... [%d lines truncated] ...\n\n%s", start, truncatedLines, end)
}
