package claude

import (
	"encoding/json"

	"computeruse-backend/internal/agent"
	"computeruse-backend/internal/agent/tools"
	"computeruse-backend/internal/models"

	"github.com/anthropics/anthropic-sdk-go"
)

// sanitizeHistory drops tool_use blocks whose tool_result is not in the
// following user entry, tool_result blocks with no preceding tool_use, and
// thinking blocks when keepThinking is false. Entries left empty are removed.
// Replayed histories contain tool results that were stored unwrapped, which
// the API would reject next to their tool_use blocks.
func sanitizeHistory(entries []agent.Entry, keepThinking bool) []agent.Entry {
	out := make([]agent.Entry, 0, len(entries))
	for i, e := range entries {
		var next, prev []models.Block
		if i+1 < len(entries) && entries[i+1].Role == models.RoleUser {
			next = entries[i+1].Content
		}
		if i > 0 && entries[i-1].Role == models.RoleAssistant {
			prev = entries[i-1].Content
		}

		kept := make(models.Content, 0, len(e.Content))
		for _, b := range e.Content {
			switch b.Type {
			case models.BlockTypeToolUse:
				if e.Role != models.RoleAssistant || !hasToolResult(next, b.ID) {
					continue
				}
			case models.BlockTypeToolResult:
				if e.Role != models.RoleUser || !hasToolUse(prev, b.ToolUseID) {
					continue
				}
			case models.BlockTypeThinking:
				if !keepThinking || e.Role != models.RoleAssistant {
					continue
				}
			}
			kept = append(kept, b)
		}
		if len(kept) == 0 {
			continue
		}
		out = append(out, agent.Entry{Role: e.Role, Content: kept})
	}
	return out
}

func hasToolResult(blocks []models.Block, id string) bool {
	for _, b := range blocks {
		if b.Type == models.BlockTypeToolResult && b.ToolUseID == id {
			return true
		}
	}
	return false
}

func hasToolUse(blocks []models.Block, id string) bool {
	for _, b := range blocks {
		if b.Type == models.BlockTypeToolUse && b.ID == id {
			return true
		}
	}
	return false
}

func convertMessages(entries []agent.Entry) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(entries))
	for _, e := range entries {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(e.Content))
		for _, b := range e.Content {
			if p, ok := convertBlock(b); ok {
				blocks = append(blocks, p)
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if e.Role == models.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}
	return messages
}

func convertBlock(b models.Block) (anthropic.ContentBlockParamUnion, bool) {
	switch b.Type {
	case models.BlockTypeText:
		if b.Text == "" {
			return anthropic.ContentBlockParamUnion{}, false
		}
		return anthropic.NewTextBlock(b.Text), true
	case models.BlockTypeImage:
		if b.Source == nil || b.Source.Data == "" {
			return anthropic.ContentBlockParamUnion{}, false
		}
		return anthropic.NewImageBlockBase64(b.Source.MediaType, b.Source.Data), true
	case models.BlockTypeToolUse:
		input := b.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		return anthropic.NewToolUseBlock(b.ID, input, b.Name), true
	case models.BlockTypeThinking:
		return anthropic.ContentBlockParamUnion{OfThinking: &anthropic.ThinkingBlockParam{
			Thinking:  b.Thinking,
			Signature: b.Signature,
		}}, true
	case models.BlockTypeToolResult:
		return anthropic.ContentBlockParamUnion{OfToolResult: &anthropic.ToolResultBlockParam{
			ToolUseID: b.ToolUseID,
			IsError:   anthropic.Bool(b.IsError),
			Content:   convertToolResultContent(b.Content),
		}}, true
	default:
		return anthropic.ContentBlockParamUnion{}, false
	}
}

func convertToolResultContent(content models.Content) []anthropic.ToolResultBlockParamContentUnion {
	out := make([]anthropic.ToolResultBlockParamContentUnion, 0, len(content))
	for _, b := range content {
		switch b.Type {
		case models.BlockTypeText:
			out = append(out, anthropic.ToolResultBlockParamContentUnion{
				OfText: &anthropic.TextBlockParam{Text: b.Text},
			})
		case models.BlockTypeImage:
			if b.Source == nil {
				continue
			}
			out = append(out, anthropic.ToolResultBlockParamContentUnion{
				OfImage: &anthropic.ImageBlockParam{
					Source: anthropic.ImageBlockParamSourceUnion{
						OfBase64: &anthropic.Base64ImageSourceParam{
							Data:      b.Source.Data,
							MediaType: anthropic.Base64ImageSourceMediaType(b.Source.MediaType),
						},
					},
				},
			})
		}
	}
	return out
}

func convertTools(infos []tools.ToolInfo) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(infos))
	for i, info := range infos {
		out[i] = anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        info.Name,
			Description: anthropic.String(info.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: info.Parameters,
				Required:   info.Required,
			},
		}}
	}
	return out
}

// toolResultBlock builds the tool_result block recorded in history. Errors
// replace any other output.
func toolResultBlock(toolUseID string, res agent.ToolResult) models.Block {
	block := models.Block{Type: models.BlockTypeToolResult, ToolUseID: toolUseID}
	if res.Error != "" {
		block.IsError = true
		block.Content = models.Content{models.TextBlock(res.Error)}
		return block
	}
	if res.Output != "" {
		block.Content = append(block.Content, models.TextBlock(res.Output))
	}
	if res.Base64Image != "" {
		block.Content = append(block.Content, models.ImageBlock(tools.ScreenshotMediaType, res.Base64Image))
	}
	return block
}

// responseContent converts response blocks into history blocks, keeping
// their wire shape.
func responseContent(blocks []anthropic.ContentBlockUnion) models.Content {
	out := make(models.Content, 0, len(blocks))
	for _, b := range blocks {
		var mb models.Block
		raw := b.RawJSON()
		if raw == "" || json.Unmarshal([]byte(raw), &mb) != nil {
			mb = models.Block{Type: b.Type, Text: b.Text, ID: b.ID, Name: b.Name, Input: b.Input, Thinking: b.Thinking, Signature: b.Signature}
		}
		out = append(out, mb)
	}
	return out
}

// toOutput maps a response block to the streamed output variant.
func toOutput(b anthropic.ContentBlockUnion) agent.Output {
	switch v := b.AsAny().(type) {
	case anthropic.TextBlock:
		return agent.TextOutput{Text: v.Text}
	case anthropic.ThinkingBlock:
		return agent.ThinkingOutput{Thinking: v.Thinking}
	case anthropic.ToolUseBlock:
		return agent.ToolUseOutput{ID: v.ID, Name: v.Name, Input: v.Input}
	default:
		return agent.OtherOutput{Type: b.Type, Raw: json.RawMessage(b.RawJSON())}
	}
}
