package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"computeruse-backend/internal/models"
	"computeruse-backend/internal/store"
	"computeruse-backend/internal/store/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Compile-time check to ensure PostgresStore implements store.Store
var _ store.Store = (*PostgresStore)(nil)

const uniqueViolation = "23505"

type PostgresStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(db *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger.With("component", "postgres_store")}
}

// Connect opens a pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// Migrate applies pending migrations through a database/sql view of the pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return migrations.Up(ctx, db, migrations.Postgres)
}

// SchemaVersion returns the applied migration version.
func SchemaVersion(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return migrations.Version(ctx, db, migrations.Postgres)
}

// VerifySchema fails with migrations.ErrSchemaMissing if the tables are absent.
func VerifySchema(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return migrations.VerifySchema(ctx, db)
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *PostgresStore) Close() { s.db.Close() }

// -- name: CreateSession :one
const createSessionQuery = `
	INSERT INTO sessions (code, display_name, status, initial_prompt)
	VALUES ($1, $2, $3, $4)
	RETURNING id, code, display_name, status, created_at, initial_prompt`

// CreateSession inserts a new session with status running.
// Returns store.ErrDuplicateSession if the code is taken.
func (s *PostgresStore) CreateSession(ctx context.Context, arg store.CreateSessionParams) (*models.Session, error) {
	row := s.db.QueryRow(ctx, createSessionQuery,
		arg.Code, arg.DisplayName, string(models.SessionStatusRunning), arg.InitialPrompt,
	)
	sess, err := scanSession(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, store.ErrDuplicateSession
		}
		s.logger.Error("CreateSession failed", "code", arg.Code, "error", err)
		return nil, fmt.Errorf("database error creating session: %w", err)
	}
	s.logger.Debug("Session created", "code", sess.Code, "id", sess.ID)
	return sess, nil
}

func scanSession(row pgx.Row, extra ...any) (*models.Session, error) {
	var (
		sess   models.Session
		status string
	)
	dest := append([]any{&sess.ID, &sess.Code, &sess.DisplayName, &status, &sess.CreatedAt, &sess.InitialPrompt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	sess.Status = models.SessionStatus(status)
	return &sess, nil
}

// -- name: GetSession :one
const getSessionQuery = `
	SELECT id, code, display_name, status, created_at, initial_prompt
	FROM sessions
	WHERE code = $1`

// GetSession returns store.ErrNotFound if the code is unknown.
func (s *PostgresStore) GetSession(ctx context.Context, code string) (*models.Session, error) {
	sess, err := scanSession(s.db.QueryRow(ctx, getSessionQuery, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching session: %w", err)
	}
	return sess, nil
}

// -- name: ListSessions :many
const listSessionsQuery = `
	SELECT s.id, s.code, s.display_name, s.status, s.created_at, s.initial_prompt, COUNT(m.id)
	FROM sessions s
	LEFT JOIN messages m ON m.session_id = s.id
	GROUP BY s.id
	ORDER BY s.created_at DESC, s.id DESC`

func (s *PostgresStore) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	rows, err := s.db.Query(ctx, listSessionsQuery)
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
// It reports false if no such session existed.
func (s *PostgresStore) DeleteSession(ctx context.Context, code string) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	if err := tx.QueryRow(ctx, `SELECT id FROM sessions WHERE code = $1 FOR UPDATE`, code).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup session for delete: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE session_id = $1`, id); err != nil {
		return false, fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	s.logger.Debug("Session deleted", "code", code)
	return true, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, code string, role models.Role, content models.Content) (*models.Message, error) {
	msgs, err := s.AppendMessages(ctx, code, []store.NewMessage{{Role: role, Content: content}})
	if err != nil {
		return nil, err
	}
	return &msgs[0], nil
}

// -- name: InsertMessage :one
const insertMessageQuery = `
	INSERT INTO messages (session_id, role, content, message_type)
	VALUES ($1, $2, $3, $4)
	RETURNING id, created_at`

// AppendMessages locks the session row so concurrent writers to the same
// session get contiguous ids.
func (s *PostgresStore) AppendMessages(ctx context.Context, code string, msgs []store.NewMessage) ([]models.Message, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	out := make([]models.Message, 0, len(msgs))
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var sessionID int64
		if err := tx.QueryRow(ctx, `SELECT id FROM sessions WHERE code = $1 FOR UPDATE`, code).Scan(&sessionID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrNotFound
			}
			return fmt.Errorf("lookup session for append: %w", err)
		}
		for _, m := range msgs {
			msgType, err := store.PrepareMessage(m.Content)
			if err != nil {
				return err
			}
			raw, err := json.Marshal(m.Content)
			if err != nil {
				return fmt.Errorf("encode message content: %w", err)
			}
			msg := models.Message{
				SessionID:   sessionID,
				Role:        m.Role,
				Content:     m.Content,
				MessageType: msgType,
			}
			if err := tx.QueryRow(ctx, insertMessageQuery, sessionID, string(m.Role), raw, string(msgType)).
				Scan(&msg.ID, &msg.CreatedAt); err != nil {
				return fmt.Errorf("insert message: %w", err)
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// -- name: ListMessages :many
const listMessagesQuery = `
	SELECT id, session_id, role, content, message_type, created_at
	FROM messages
	WHERE session_id = $1
	ORDER BY id ASC`

func (s *PostgresStore) ListMessages(ctx context.Context, code string) ([]models.Message, error) {
	sess, err := s.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, listMessagesQuery, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	var items []models.Message
	for rows.Next() {
		var (
			m       models.Message
			role    string
			raw     []byte
			msgType string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &raw, &msgType, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message row: %w", err)
		}
		m.Content, err = models.ParseContent(raw)
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

// -- name: CountMessages :one
const countMessagesQuery = `
	SELECT COUNT(m.id)
	FROM messages m
	JOIN sessions s ON s.id = m.session_id
	WHERE s.code = $1`

func (s *PostgresStore) CountMessages(ctx context.Context, code string) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, countMessagesQuery, code).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
