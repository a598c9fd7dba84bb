// Package tools implements the computer tools the default agent loop offers
// the model: a shell and a screenshot of the virtual display.
package tools

import (
	"context"
	"fmt"
	"sort"

	"computeruse-backend/internal/agent"
)

// ToolInfo describes a tool to the model. Parameters is a JSON schema
// properties object.
type ToolInfo struct {
	Name        string
	Description string
	Parameters  map[string]any
	Required    []string
}

// Call is one tool invocation requested by the model.
type Call struct {
	ID    string
	Name  string
	Input string // raw JSON arguments
}

type BaseTool interface {
	Info() ToolInfo
	Run(ctx context.Context, call Call) (agent.ToolResult, error)
}

// Supported tool-set versions.
const (
	Version20250124 = "computer_use_20250124"
	Version20241022 = "computer_use_20241022"
)

// Options configures the tool set.
type Options struct {
	Display string // X display for screenshots, e.g. ":1"
	WorkDir string // working directory for shell commands
}

// Registry resolves tool calls by name.
type Registry struct {
	tools map[string]BaseTool
}

// ForVersion returns the tool set for a tool-set version.
func ForVersion(version string, opts Options) (*Registry, error) {
	switch version {
	case Version20250124, Version20241022:
		return NewRegistry(NewBashTool(opts.WorkDir), NewScreenshotTool(opts.Display)), nil
	default:
		return nil, fmt.Errorf("unsupported tool version %q", version)
	}
}

func NewRegistry(tools ...BaseTool) *Registry {
	r := &Registry{tools: make(map[string]BaseTool, len(tools))}
	for _, t := range tools {
		r.tools[t.Info().Name] = t
	}
	return r
}

// Infos returns the tool descriptions sorted by name.
func (r *Registry) Infos() []ToolInfo {
	infos := make([]ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		infos = append(infos, t.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Run executes a call. Unknown tools and tool failures are reported in the
// result rather than as an error so the model can see them.
func (r *Registry) Run(ctx context.Context, call Call) agent.ToolResult {
	t, ok := r.tools[call.Name]
	if !ok {
		return agent.ToolResult{Error: fmt.Sprintf("unknown tool: %s", call.Name)}
	}
	res, err := t.Run(ctx, call)
	if err != nil {
		return agent.ToolResult{Output: res.Output, Error: err.Error()}
	}
	return res
}
