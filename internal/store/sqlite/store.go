// Package sqlite implements store.Store on an embedded SQLite database. It
// backs local development and the test suite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"computeruse-backend/internal/models"
	"computeruse-backend/internal/store"

	moderncsqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// Compile-time check to ensure Store implements store.Store
var _ store.Store = (*Store)(nil)

// Store is safe for concurrent use; SQLite serializes writers and the pool is
// limited to one connection.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens the database at path (":memory:" for a private in-memory database).
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := DSN(path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection: in-memory databases are per connection and SQLite
	// allows a single writer anyway.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping failed: %w", err)
	}
	return db, nil
}

// DSN builds a modernc DSN with foreign keys and a busy timeout enabled.
func DSN(path string) string {
	path = strings.TrimPrefix(path, "sqlite://")
	path = strings.TrimPrefix(path, "sqlite:")
	if path == "" {
		path = ":memory:"
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

// New wraps an opened and migrated database.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger.With("component", "sqlite_store")}
}

// DB exposes the underlying handle for migrations and health checks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("Closing database failed", "error", err)
	}
}

func now() time.Time { return time.Now().UTC() }

// CreateSession inserts a new session with status running.
func (s *Store) CreateSession(ctx context.Context, arg store.CreateSessionParams) (*models.Session, error) {
	sess := &models.Session{
		Code:          arg.Code,
		DisplayName:   arg.DisplayName,
		Status:        models.SessionStatusRunning,
		CreatedAt:     now(),
		InitialPrompt: arg.InitialPrompt,
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (code, display_name, status, created_at, initial_prompt) VALUES (?, ?, ?, ?, ?)`,
		sess.Code, sess.DisplayName, string(sess.Status), sess.CreatedAt, sess.InitialPrompt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateSession
		}
		return nil, fmt.Errorf("database error creating session: %w", err)
	}
	sess.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read session id: %w", err)
	}
	s.logger.Debug("Session created", "code", sess.Code, "id", sess.ID)
	return sess, nil
}

const sessionColumns = `id, code, display_name, status, created_at, initial_prompt`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner, extra ...any) (*models.Session, error) {
	var (
		sess          models.Session
		displayName   sql.NullString
		initialPrompt sql.NullString
		status        string
	)
	dest := append([]any{&sess.ID, &sess.Code, &displayName, &status, &sess.CreatedAt, &initialPrompt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	sess.Status = models.SessionStatus(status)
	if displayName.Valid {
		sess.DisplayName = &displayName.String
	}
	if initialPrompt.Valid {
		sess.InitialPrompt = &initialPrompt.String
	}
	return &sess, nil
}

// GetSession returns store.ErrNotFound if the code is unknown.
func (s *Store) GetSession(ctx context.Context, code string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE code = ?`, code)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching session: %w", err)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.code, s.display_name, s.status, s.created_at, s.initial_prompt,
		       (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		FROM sessions s
		ORDER BY s.created_at DESC, s.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("error querying sessions: %w", err)
	}
	defer rows.Close()

	var items []models.SessionSummary
	for rows.Next() {
		var count int64
		sess, err := scanSession(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("error scanning session row: %w", err)
		}
		items = append(items, models.SessionSummary{Session: *sess, MessageCount: count})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return items, nil
}

// DeleteSession removes the session and its messages in one transaction.
func (s *Store) DeleteSession(ctx context.Context, code string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM sessions WHERE code = ?`, code).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup session for delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	s.logger.Debug("Session deleted", "code", code)
	return true, nil
}

func (s *Store) AppendMessage(ctx context.Context, code string, role models.Role, content models.Content) (*models.Message, error) {
	msgs, err := s.AppendMessages(ctx, code, []store.NewMessage{{Role: role, Content: content}})
	if err != nil {
		return nil, err
	}
	return &msgs[0], nil
}

func (s *Store) AppendMessages(ctx context.Context, code string, msgs []store.NewMessage) ([]models.Message, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var sessionID int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM sessions WHERE code = ?`, code).Scan(&sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("lookup session for append: %w", err)
	}

	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		msgType, err := store.PrepareMessage(m.Content)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(m.Content)
		if err != nil {
			return nil, fmt.Errorf("encode message content: %w", err)
		}
		createdAt := now()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, role, content, message_type, created_at) VALUES (?, ?, ?, ?, ?)`,
			sessionID, string(m.Role), string(raw), string(msgType), createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("read message id: %w", err)
		}
		out = append(out, models.Message{
			ID:          id,
			SessionID:   sessionID,
			Role:        m.Role,
			Content:     m.Content,
			MessageType: msgType,
			CreatedAt:   createdAt,
		})
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return out, nil
}

func (s *Store) ListMessages(ctx context.Context, code string) ([]models.Message, error) {
	sess, err := s.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, message_type, created_at FROM messages WHERE session_id = ? ORDER BY id ASC`,
		sess.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	var items []models.Message
	for rows.Next() {
		var (
			m       models.Message
			role    string
			raw     string
			msgType string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &raw, &msgType, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message row: %w", err)
		}
		m.Content, err = models.ParseContent([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode message %d: %w", m.ID, err)
		}
		m.Role = models.Role(role)
		m.MessageType = models.MessageType(msgType)
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return items, nil
}

func (s *Store) CountMessages(ctx context.Context, code string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(m.id) FROM messages m JOIN sessions s ON s.id = m.session_id WHERE s.code = ?`, code,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// SearchByText scans text messages newest first and keeps the first hit per session.
func (s *Store) SearchByText(ctx context.Context, query string, limit int) ([]models.SearchHit, error) {
	if query == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.session_id, m.content, m.created_at, s.code, s.display_name, s.created_at
		FROM messages m
		JOIN sessions s ON s.id = m.session_id
		WHERE m.message_type = ?
		ORDER BY m.id DESC`, string(models.MessageTypeText))
	if err != nil {
		return nil, fmt.Errorf("error querying search candidates: %w", err)
	}
	defer rows.Close()

	seen := make(map[int64]bool)
	var hits []models.SearchHit
	for rows.Next() {
		var (
			hit         models.SearchHit
			sessionID   int64
			raw         string
			displayName sql.NullString
		)
		if err := rows.Scan(&hit.MessageID, &sessionID, &raw, &hit.MessageCreatedAt, &hit.SessionCode, &displayName, &hit.SessionCreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning search row: %w", err)
		}
		if seen[sessionID] {
			continue
		}
		content, err := models.ParseContent([]byte(raw))
		if err != nil {
			s.logger.Warn("Skipping undecodable message in search", "message_id", hit.MessageID, "error", err)
			continue
		}
		text := store.TextOf(content)
		if !store.Matches(text, query) {
			continue
		}
		seen[sessionID] = true
		if displayName.Valid {
			hit.DisplayName = &displayName.String
		}
		hit.Snippet = store.Snippet(text)
		hits = append(hits, hit)
		if len(hits) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search rows: %w", err)
	}
	return hits, nil
}

func isUniqueViolation(err error) bool {
	var se *moderncsqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE || code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
