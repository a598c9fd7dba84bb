package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Role is the author of a message. Only RoleUser and RoleAssistant are produced.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageType is the stored classification of a message's content.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
)

// Block types understood by the relay and the agent loop.
const (
	BlockTypeText       = "text"
	BlockTypeImage      = "image"
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result"
	BlockTypeThinking   = "thinking"
)

// ImageSource is the inline payload of an image block.
type ImageSource struct {
	Type      string `json:"type"`       // always "base64"
	MediaType string `json:"media_type"` // e.g. "image/png"
	Data      string `json:"data"`
}

// Block is one typed unit of message content. Text and image blocks are the
// user-visible kinds; tool_use, tool_result and thinking blocks appear in the
// agent loop's own turns and are stored verbatim.
type Block struct {
	Type string `json:"type"`

	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string  `json:"tool_use_id,omitempty"`
	Content   Content `json:"content,omitempty"`
	IsError   bool    `json:"is_error,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// TextBlock returns a text block.
func TextBlock(text string) Block {
	return Block{Type: BlockTypeText, Text: text}
}

// ImageBlock returns a base64 image block.
func ImageBlock(mediaType, data string) Block {
	return Block{
		Type: BlockTypeImage,
		Source: &ImageSource{
			Type:      "base64",
			MediaType: mediaType,
			Data:      data,
		},
	}
}

// Content is an ordered sequence of blocks. It decodes either a JSON array of
// blocks or a bare JSON string, which becomes a single text block. Some
// historical rows stored content as a raw string.
type Content []Block

// UnmarshalJSON implements json.Unmarshaler.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = nil
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("decode string content: %w", err)
		}
		*c = Content{TextBlock(s)}
		return nil
	}
	var blocks []Block
	if err := json.Unmarshal(trimmed, &blocks); err != nil {
		return fmt.Errorf("decode content blocks: %w", err)
	}
	*c = blocks
	return nil
}

// ParseContent decodes stored or inbound content into normalized blocks.
func ParseContent(data []byte) (Content, error) {
	var c Content
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return c, nil
}

// ClassifyContent reports MessageTypeImage if any top-level block is an image.
func ClassifyContent(blocks []Block) MessageType {
	for _, b := range blocks {
		if b.Type == BlockTypeImage {
			return MessageTypeImage
		}
	}
	return MessageTypeText
}

// Message is one immutable turn in a session's conversation.
type Message struct {
	ID          int64       `db:"id"`
	SessionID   int64       `db:"session_id"`
	Role        Role        `db:"role"`
	Content     Content     `db:"content"`
	MessageType MessageType `db:"message_type"`
	CreatedAt   time.Time   `db:"created_at"`
}
