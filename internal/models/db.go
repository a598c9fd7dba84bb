package models

import (
	"strings"
	"time"
)

// SessionStatus is the lifecycle state of a session. Only SessionStatusRunning
// is currently set.
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusError     SessionStatus = "error"
)

// DefaultSessionName is shown for sessions with no name and no usable prompt.
const DefaultSessionName = "New Session"

const displayNameMaxLen = 20

// Session represents a persistent conversation between a user and the agent.
type Session struct {
	ID            int64         `db:"id"`   // surrogate key
	Code          string        `db:"code"` // client-facing session_id
	DisplayName   *string       `db:"display_name"`
	Status        SessionStatus `db:"status"`
	CreatedAt     time.Time     `db:"created_at"`
	InitialPrompt *string       `db:"initial_prompt"`
}

// Name returns the display name, falling back to DefaultSessionName.
func (s *Session) Name() string {
	if s.DisplayName == nil || *s.DisplayName == "" {
		return DefaultSessionName
	}
	return *s.DisplayName
}

// SessionSummary is a session row as returned by listings.
type SessionSummary struct {
	Session
	MessageCount int64 `db:"message_count"`
}

// SearchHit is the most recent matching text message of one session.
type SearchHit struct {
	SessionCode      string
	DisplayName      *string
	SessionCreatedAt time.Time
	MessageID        int64
	MessageCreatedAt time.Time
	Snippet          string
}

// DisplayNameFromPrompt derives a session name from the first line of a prompt.
// Lines longer than 20 characters are cut to 20 and suffixed with "...".
func DisplayNameFromPrompt(prompt string) string {
	if prompt == "" {
		return DefaultSessionName
	}
	firstLine, _, _ := strings.Cut(prompt, "\n")
	firstLine = strings.TrimSpace(firstLine)
	runes := []rune(firstLine)
	if len(runes) > displayNameMaxLen {
		return string(runes[:displayNameMaxLen]) + "..."
	}
	if firstLine == "" {
		return DefaultSessionName
	}
	return firstLine
}
