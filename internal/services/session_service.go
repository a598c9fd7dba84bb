package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"computeruse-backend/internal/models"
	"computeruse-backend/internal/store"

	"github.com/google/uuid"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// ErrEmptyQuery is returned when a search has no query text.
var ErrEmptyQuery = errors.New("search query is required")

// SessionService handles session lifecycle and history queries.
type SessionService struct {
	store  store.Store
	logger *slog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(s store.Store, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{store: s, logger: logger.With("component", "session_service")}
}

// resolveDisplayName picks the first non-empty of display_name and
// session_name, then a name derived from the initial prompt.
func resolveDisplayName(req models.CreateSessionRequest) string {
	for _, candidate := range []*string{req.DisplayName, req.SessionName} {
		if candidate != nil && *candidate != "" {
			return *candidate
		}
	}
	if req.InitialPrompt != nil {
		return models.DisplayNameFromPrompt(*req.InitialPrompt)
	}
	return models.DefaultSessionName
}

// CreateSession creates a new running session with a fresh UUID.
func (s *SessionService) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.CreateSessionResponse, error) {
	name := resolveDisplayName(req)
	sess, err := s.store.CreateSession(ctx, store.CreateSessionParams{
		Code:          uuid.NewString(),
		DisplayName:   &name,
		InitialPrompt: req.InitialPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.logger.Info("Session created", "session_id", sess.Code, "display_name", name)
	return &models.CreateSessionResponse{SessionID: sess.Code, DisplayName: sess.Name()}, nil
}

// GetSession returns a session's status. Returns store.ErrNotFound if absent.
func (s *SessionService) GetSession(ctx context.Context, code string) (*models.SessionStatusResponse, error) {
	sess, err := s.store.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountMessages(ctx, code)
	if err != nil {
		return nil, err
	}
	return &models.SessionStatusResponse{
		SessionID:     sess.Code,
		DisplayName:   sess.Name(),
		Status:        sess.Status,
		CreatedAt:     sess.CreatedAt,
		InitialPrompt: sess.InitialPrompt,
		MessageCount:  count,
	}, nil
}

// GetHistory returns a session with its messages in id order.
func (s *SessionService) GetHistory(ctx context.Context, code string) (*models.SessionHistoryResponse, error) {
	sess, err := s.store.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, code)
	if err != nil {
		return nil, err
	}
	out := make([]models.MessageResponse, len(msgs))
	for i, m := range msgs {
		out[i] = models.MessageResponse{ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
	}
	return &models.SessionHistoryResponse{
		SessionID:     sess.Code,
		DisplayName:   sess.Name(),
		Status:        sess.Status,
		CreatedAt:     sess.CreatedAt,
		InitialPrompt: sess.InitialPrompt,
		Messages:      out,
	}, nil
}

// ListSessions returns all sessions, newest first.
func (s *SessionService) ListSessions(ctx context.Context) (*models.SessionListResponse, error) {
	items, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.SessionListItem, len(items))
	for i, it := range items {
		out[i] = models.SessionListItem{
			SessionID:    it.Code,
			DisplayName:  it.Name(),
			Status:       it.Status,
			CreatedAt:    it.CreatedAt,
			MessageCount: it.MessageCount,
		}
	}
	return &models.SessionListResponse{Sessions: out}, nil
}

// DeleteSession removes a session and its messages. Returns store.ErrNotFound if absent.
func (s *SessionService) DeleteSession(ctx context.Context, code string) (*models.DeleteResponse, error) {
	ok, err := s.store.DeleteSession(ctx, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrNotFound
	}
	s.logger.Info("Session deleted", "session_id", code)
	return &models.DeleteResponse{Message: fmt.Sprintf("Session %s deleted successfully.", code)}, nil
}

// ClampSearchLimit applies the default and bounds to a requested limit.
func ClampSearchLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSearchLimit
	case limit > MaxSearchLimit:
		return MaxSearchLimit
	default:
		return limit
	}
}

// Search finds the latest matching text message per session.
func (s *SessionService) Search(ctx context.Context, query string, limit int) (*models.SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	hits, err := s.store.SearchByText(ctx, query, ClampSearchLimit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]models.SearchResult, len(hits))
	for i, h := range hits {
		sess := models.Session{DisplayName: h.DisplayName}
		out[i] = models.SearchResult{
			SessionID:        h.SessionCode,
			DisplayName:      sess.Name(),
			CreatedAt:        h.SessionCreatedAt,
			MessageID:        h.MessageID,
			MessageCreatedAt: h.MessageCreatedAt,
			Snippet:          h.Snippet,
		}
	}
	return &models.SearchResponse{Results: out}, nil
}
