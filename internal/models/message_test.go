package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		blocks []Block
		want   MessageType
	}{
		{"empty", nil, MessageTypeText},
		{"text only", []Block{TextBlock("a"), TextBlock("b")}, MessageTypeText},
		{"image only", []Block{ImageBlock("image/png", "AAAA")}, MessageTypeImage},
		{"mixed", []Block{TextBlock("look"), ImageBlock("image/png", "AAAA")}, MessageTypeImage},
		{"tool use is not an image", []Block{{Type: BlockTypeToolUse, ID: "t1", Name: "bash"}}, MessageTypeText},
		{
			"nested image inside tool result does not count",
			[]Block{{Type: BlockTypeToolResult, ToolUseID: "t1", Content: Content{ImageBlock("image/png", "AAAA")}}},
			MessageTypeText,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyContent(tt.blocks))
		})
	}
}

func TestContentUnmarshalBareString(t *testing.T) {
	t.Parallel()

	c, err := ParseContent([]byte(`"hello there"`))
	require.NoError(t, err)
	require.Len(t, c, 1)
	assert.Equal(t, BlockTypeText, c[0].Type)
	assert.Equal(t, "hello there", c[0].Text)
}

func TestContentUnmarshalBlocks(t *testing.T) {
	t.Parallel()

	raw := `[{"type":"text","text":"hi"},{"type":"image","source":{"type":"base64","media_type":"image/png","data":"QUJD"}}]`
	c, err := ParseContent([]byte(raw))
	require.NoError(t, err)
	require.Len(t, c, 2)
	require.NotNil(t, c[1].Source)
	assert.Equal(t, "image/png", c[1].Source.MediaType)
	assert.Equal(t, MessageTypeImage, ClassifyContent(c))
}

func TestContentNestedToolResultNormalizesString(t *testing.T) {
	t.Parallel()

	raw := `[{"type":"tool_result","tool_use_id":"toolu_1","content":"done"}]`
	c, err := ParseContent([]byte(raw))
	require.NoError(t, err)
	require.Len(t, c, 1)
	require.Len(t, c[0].Content, 1)
	assert.Equal(t, "done", c[0].Content[0].Text)
}

func TestContentRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseContent([]byte(`{"type":"text"}`))
	assert.Error(t, err)
}

func TestBlockMarshalOmitsUnusedFields(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(TextBlock("hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"text","text":"hi"}`, string(b))

	b, err = json.Marshal(ImageBlock("image/png", "QUJD"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"image","source":{"type":"base64","media_type":"image/png","data":"QUJD"}}`, string(b))
}

func TestDisplayNameFromPrompt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hello world", DisplayNameFromPrompt("hello world"))
	assert.Equal(t, DefaultSessionName, DisplayNameFromPrompt(""))
	assert.Equal(t, DefaultSessionName, DisplayNameFromPrompt("   \nsecond line"))
	assert.Equal(t, "first", DisplayNameFromPrompt("  first  \nsecond"))

	long := "This is a very long initial prompt that should be trimmed"
	name := DisplayNameFromPrompt(long)
	assert.Equal(t, "This is a very long ...", name)
	assert.LessOrEqual(t, len(name), 23)

	exact := strings.Repeat("x", 20)
	assert.Equal(t, exact, DisplayNameFromPrompt(exact))
}

func TestDisplayNameCountsCharactersNotBytes(t *testing.T) {
	t.Parallel()

	prompt := strings.Repeat("é", 25)
	name := DisplayNameFromPrompt(prompt)
	assert.Equal(t, strings.Repeat("é", 20)+"...", name)
}

func TestSessionName(t *testing.T) {
	t.Parallel()

	s := Session{}
	assert.Equal(t, DefaultSessionName, s.Name())
	n := "Demo"
	s.DisplayName = &n
	assert.Equal(t, "Demo", s.Name())
}
