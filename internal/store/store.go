package store

import (
	"context"
	"errors"

	"computeruse-backend/internal/models"
)

var (
	// ErrNotFound is returned when a specific record is not found.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateSession is returned when a session code is already taken.
	ErrDuplicateSession = errors.New("session already exists")
	// ErrEmptyContent is returned when a message has no content blocks.
	ErrEmptyContent = errors.New("message content is empty")
)

// CreateSessionParams contains parameters for creating a session.
type CreateSessionParams struct {
	Code          string
	DisplayName   *string // Optional, stored as NULL when nil
	InitialPrompt *string // Optional, immutable once set
}

// NewMessage is one message to append.
type NewMessage struct {
	Role    models.Role
	Content models.Content
}

// Store defines the interface for session and message persistence.
// Implementations must keep a session's messages totally ordered by id.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, arg CreateSessionParams) (*models.Session, error)
	GetSession(ctx context.Context, code string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]models.SessionSummary, error) // Newest first
	DeleteSession(ctx context.Context, code string) (bool, error)

	// Message operations
	AppendMessage(ctx context.Context, code string, role models.Role, content models.Content) (*models.Message, error)
	// AppendMessages inserts all messages in one transaction, contiguous in id order.
	AppendMessages(ctx context.Context, code string, msgs []NewMessage) ([]models.Message, error)
	ListMessages(ctx context.Context, code string) ([]models.Message, error) // Ascending by id
	CountMessages(ctx context.Context, code string) (int64, error)

	// Search
	SearchByText(ctx context.Context, query string, limit int) ([]models.SearchHit, error)

	Ping(ctx context.Context) error
	Close()
}

// PrepareMessage validates content and computes its classification.
func PrepareMessage(content models.Content) (models.MessageType, error) {
	if len(content) == 0 {
		return "", ErrEmptyContent
	}
	return models.ClassifyContent(content), nil
}
