package models

import (
	"encoding/json"
	"time"
)

// --- Request Structs ---

// CreateSessionRequest defines the body for creating a session.
type CreateSessionRequest struct {
	SessionName   *string `json:"session_name,omitempty"` // Accepted for compatibility; used only as a name fallback
	DisplayName   *string `json:"display_name,omitempty"`
	InitialPrompt *string `json:"initial_prompt,omitempty"`
}

// --- Response Structs ---

// ErrorResponse defines the standard structure for API errors.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// CreateSessionResponse is returned after a session is created.
type CreateSessionResponse struct {
	SessionID   string `json:"session_id"`
	DisplayName string `json:"display_name"`
}

// SessionStatusResponse describes a single session.
type SessionStatusResponse struct {
	SessionID     string        `json:"session_id"`
	DisplayName   string        `json:"display_name"`
	Status        SessionStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	InitialPrompt *string       `json:"initial_prompt"`
	MessageCount  int64         `json:"message_count"`
}

// MessageResponse is one history entry.
type MessageResponse struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Content   Content   `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionHistoryResponse is a session with its full ordered message log.
type SessionHistoryResponse struct {
	SessionID     string            `json:"session_id"`
	DisplayName   string            `json:"display_name"`
	Status        SessionStatus     `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	InitialPrompt *string           `json:"initial_prompt"`
	Messages      []MessageResponse `json:"messages"`
}

// SessionListItem is one row of the session listing.
type SessionListItem struct {
	SessionID    string        `json:"session_id"`
	DisplayName  string        `json:"display_name"`
	Status       SessionStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	MessageCount int64         `json:"message_count"`
}

// SessionListResponse wraps the session listing.
type SessionListResponse struct {
	Sessions []SessionListItem `json:"sessions"`
}

// DeleteResponse confirms a deletion.
type DeleteResponse struct {
	Message string `json:"message"`
}

// SearchResult is one hit of a text search.
type SearchResult struct {
	SessionID        string    `json:"session_id"`
	DisplayName      string    `json:"display_name"`
	CreatedAt        time.Time `json:"created_at"`
	MessageID        int64     `json:"message_id"`
	MessageCreatedAt time.Time `json:"message_created_at"`
	Snippet          string    `json:"snippet"`
}

// SearchResponse wraps search hits.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// HealthResponse reports dependency state.
type HealthResponse struct {
	Status            string         `json:"status"`
	Database          string         `json:"database"`
	ActiveConnections int            `json:"active_connections"`
	Sessions          map[string]int `json:"sessions"` // live connections per session
}

// --- WebSocket DTOs ---

// InboundMessage is the only frame a client sends over the session socket.
type InboundMessage struct {
	Message string `json:"message"`
}

// EventType identifies an outbound socket event.
type EventType string

const (
	EventAgentMessage EventType = "agent_message"
	EventThinking     EventType = "thinking"
	EventImage        EventType = "image"
	EventOutput       EventType = "output"
)

// OutboundEvent is one frame streamed to the client.
type OutboundEvent struct {
	Type    EventType       `json:"type"`
	Message string          `json:"message,omitempty"`
	Data    string          `json:"data,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}
