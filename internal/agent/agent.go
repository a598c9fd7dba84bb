// Package agent defines the contract between the session relay and an agent
// loop: the loop reads a conversation history, appends its own turns to it,
// and reports incremental output through an Observer while it runs.
package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"computeruse-backend/internal/models"
)

const (
	DefaultModel       = "claude-sonnet-4-20250514"
	DefaultMaxTokens   = 4096
	DefaultToolVersion = "computer_use_20250124"
)

// Config is passed to every loop invocation.
type Config struct {
	Model          string
	MaxTokens      int64
	ToolVersion    string
	ThinkingBudget *int64 // nil disables extended thinking
	APIKey         string
}

// HasCredential reports whether an upstream API key is configured.
func (c Config) HasCredential() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.ToolVersion == "" {
		c.ToolVersion = DefaultToolVersion
	}
	return c
}

// Loop runs one agent invocation to completion. It is called once per inbound
// user message and never concurrently for the same History.
type Loop interface {
	Run(ctx context.Context, cfg Config, history *History, obs Observer) error
}

// LoopFunc adapts a function to the Loop interface.
type LoopFunc func(ctx context.Context, cfg Config, history *History, obs Observer) error

func (f LoopFunc) Run(ctx context.Context, cfg Config, history *History, obs Observer) error {
	return f(ctx, cfg, history, obs)
}

// Observer receives events in the order the loop produces them.
type Observer interface {
	Output(Output)
	ToolResult(result ToolResult, toolUseID string)
	APIError(err error)
}

// Output is one streamed unit of model output. The concrete types are
// TextOutput, ThinkingOutput, ImageOutput, ToolUseOutput and OtherOutput.
type Output interface {
	isOutput()
}

type TextOutput struct {
	Text string
}

type ThinkingOutput struct {
	Thinking string
}

// ImageOutput carries an inline image. Only SourceType "base64" is surfaced.
type ImageOutput struct {
	SourceType string
	MediaType  string
	Data       string
}

// ToolUseOutput is a request to invoke a tool.
type ToolUseOutput struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// OtherOutput is any block kind the relay has no mapping for.
type OtherOutput struct {
	Type string
	Raw  json.RawMessage
}

func (TextOutput) isOutput()     {}
func (ThinkingOutput) isOutput() {}
func (ImageOutput) isOutput()    {}
func (ToolUseOutput) isOutput()  {}
func (OtherOutput) isOutput()    {}

// ToolResult is the outcome of one tool invocation. Any combination of fields
// may be set.
type ToolResult struct {
	Output      string
	Base64Image string
	Error       string
}

// IsEmpty reports whether the result carries nothing.
func (r ToolResult) IsEmpty() bool {
	return r.Output == "" && r.Base64Image == "" && r.Error == ""
}

// Entry is one turn of the running history.
type Entry struct {
	Role    models.Role
	Content models.Content
}

// History is the append-only conversation handed to a Loop. Entries can be
// added but never removed or reordered.
type History struct {
	mu      sync.Mutex
	entries []Entry
}

// NewHistory returns a history seeded with entries.
func NewHistory(entries ...Entry) *History {
	h := &History{}
	h.entries = append(h.entries, entries...)
	return h
}

func (h *History) Append(e Entry) {
	h.mu.Lock()
	h.entries = append(h.entries, e)
	h.mu.Unlock()
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Entries returns a copy of all entries.
func (h *History) Entries() []Entry {
	return h.Since(0)
}

// Since returns a copy of the entries appended at or after index n.
func (h *History) Since(n int) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n >= len(h.entries) {
		return nil
	}
	out := make([]Entry, len(h.entries)-n)
	copy(out, h.entries[n:])
	return out
}
