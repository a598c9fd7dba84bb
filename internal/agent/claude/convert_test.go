package claude

import (
	"encoding/json"
	"testing"

	"computeruse-backend/internal/agent"
	"computeruse-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolUse(id string) models.Block {
	return models.Block{Type: models.BlockTypeToolUse, ID: id, Name: "bash", Input: json.RawMessage(`{"command":"ls"}`)}
}

func TestSanitizeDropsUnmatchedToolUse(t *testing.T) {
	t.Parallel()

	// A replayed history: the tool result was stored unwrapped.
	entries := []agent.Entry{
		{Role: models.RoleUser, Content: models.Content{models.TextBlock("list files")}},
		{Role: models.RoleAssistant, Content: models.Content{models.TextBlock("ok"), toolUse("t1")}},
		{Role: models.RoleUser, Content: models.Content{models.TextBlock("a.txt")}},
		{Role: models.RoleAssistant, Content: models.Content{toolUse("t2")}},
		{Role: models.RoleUser, Content: models.Content{models.TextBlock("next")}},
	}

	out := sanitizeHistory(entries, false)
	require.Len(t, out, 4)
	assert.Equal(t, models.Content{models.TextBlock("ok")}, out[1].Content)
	assert.Equal(t, "next", out[3].Content[0].Text)
}

func TestSanitizeKeepsMatchedPairs(t *testing.T) {
	t.Parallel()

	entries := []agent.Entry{
		{Role: models.RoleUser, Content: models.Content{models.TextBlock("go")}},
		{Role: models.RoleAssistant, Content: models.Content{
			{Type: models.BlockTypeThinking, Thinking: "hmm", Signature: "sig"},
			toolUse("t1"),
		}},
		{Role: models.RoleUser, Content: models.Content{toolResultBlock("t1", agent.ToolResult{Output: "a.txt"})}},
	}

	out := sanitizeHistory(entries, true)
	require.Len(t, out, 3)
	assert.Len(t, out[1].Content, 2)

	out = sanitizeHistory(entries, false)
	require.Len(t, out, 3)
	assert.Equal(t, models.Content{toolUse("t1")}, out[1].Content)
}

func TestSanitizeDropsOrphanToolResult(t *testing.T) {
	t.Parallel()

	entries := []agent.Entry{
		{Role: models.RoleUser, Content: models.Content{toolResultBlock("ghost", agent.ToolResult{Output: "x"})}},
		{Role: models.RoleUser, Content: models.Content{models.TextBlock("hi")}},
	}
	out := sanitizeHistory(entries, false)
	require.Len(t, out, 1)
	assert.Equal(t, "hi", out[0].Content[0].Text)
}

func TestToolResultBlock(t *testing.T) {
	t.Parallel()

	b := toolResultBlock("t1", agent.ToolResult{Output: "out", Base64Image: "AAAA"})
	assert.Equal(t, models.BlockTypeToolResult, b.Type)
	assert.False(t, b.IsError)
	require.Len(t, b.Content, 2)
	assert.Equal(t, "out", b.Content[0].Text)
	assert.Equal(t, models.BlockTypeImage, b.Content[1].Type)
	assert.Equal(t, "image/png", b.Content[1].Source.MediaType)

	e := toolResultBlock("t2", agent.ToolResult{Output: "ignored", Error: "boom"})
	assert.True(t, e.IsError)
	assert.Equal(t, models.Content{models.TextBlock("boom")}, e.Content)

	empty := toolResultBlock("t3", agent.ToolResult{})
	assert.Empty(t, empty.Content)
}

func TestConvertMessagesWireShape(t *testing.T) {
	t.Parallel()

	entries := []agent.Entry{
		{Role: models.RoleUser, Content: models.Content{models.TextBlock("look"), models.ImageBlock("image/png", "AAAA")}},
		{Role: models.RoleAssistant, Content: models.Content{toolUse("t1")}},
		{Role: models.RoleUser, Content: models.Content{toolResultBlock("t1", agent.ToolResult{Output: "ok", Base64Image: "BBBB"})}},
		{Role: models.RoleAssistant, Content: models.Content{models.TextBlock("")}},
	}

	msgs := convertMessages(entries)
	require.Len(t, msgs, 3)

	raw, err := json.Marshal(msgs)
	require.NoError(t, err)

	var decoded []struct {
		Role    string           `json:"role"`
		Content []map[string]any `json:"content"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "user", decoded[0].Role)
	assert.Equal(t, "text", decoded[0].Content[0]["type"])
	assert.Equal(t, "image", decoded[0].Content[1]["type"])
	assert.Equal(t, "assistant", decoded[1].Role)
	assert.Equal(t, "tool_use", decoded[1].Content[0]["type"])
	assert.Equal(t, "t1", decoded[1].Content[0]["id"])
	assert.Equal(t, "tool_result", decoded[2].Content[0]["type"])
	assert.Equal(t, "t1", decoded[2].Content[0]["tool_use_id"])
	inner, ok := decoded[2].Content[0]["content"].([]any)
	require.True(t, ok)
	assert.Len(t, inner, 2)
}
