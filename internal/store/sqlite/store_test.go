package sqlite

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"computeruse-backend/internal/models"
	"computeruse-backend/internal/store"
	"computeruse-backend/internal/store/migrations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func createSession(t *testing.T, s *Store, code string) *models.Session {
	t.Helper()
	sess, err := s.CreateSession(context.Background(), store.CreateSessionParams{Code: code})
	require.NoError(t, err)
	return sess
}

func TestDSN(t *testing.T) {
	t.Parallel()

	assert.True(t, strings.HasPrefix(DSN(":memory:"), "file::memory:?_pragma=foreign_keys(1)"))
	assert.True(t, strings.HasPrefix(DSN("sqlite://data/app.db"), "file:data/app.db?"))
	assert.True(t, strings.HasPrefix(DSN("file:x.db?mode=rwc"), "file:x.db?mode=rwc&_pragma"))
	assert.True(t, strings.HasPrefix(DSN(""), "file::memory:?"))
}

func TestMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	s := NewTestStore(t)
	ctx := context.Background()
	require.NoError(t, migrations.Up(ctx, s.DB(), migrations.SQLite))

	v, err := migrations.Version(ctx, s.DB(), migrations.SQLite)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestVerifySchemaFailsOnEmptyDatabase(t *testing.T) {
	t.Parallel()

	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	err = migrations.VerifySchema(context.Background(), db)
	assert.ErrorIs(t, err, migrations.ErrSchemaMissing)
}

func TestCreateAndGetSession(t *testing.T) {
	t.Parallel()

	s := NewTestStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, store.CreateSessionParams{
		Code:          "abc",
		DisplayName:   ptr("My session"),
		InitialPrompt: ptr("open the browser"),
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, models.SessionStatusRunning, created.Status)

	got, err := s.GetSession(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	require.NotNil(t, got.DisplayName)
	assert.Equal(t, "My session", *got.DisplayName)
	require.NotNil(t, got.InitialPrompt)
	assert.Equal(t, "open the browser", *got.InitialPrompt)
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, 0)

	_, err = s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateSessionRejectsDuplicateCode(t *testing.T) {
	t.Parallel()

	s := NewTestStore(t)
	createSession(t, s, "dup")

	_, err := s.CreateSession(context.Background(), store.CreateSessionParams{Code: "dup"})
	assert.ErrorIs(t, err, store.ErrDuplicateSession)
}

func TestNullDisplayNameRoundTrips(t *testing.T) {
	t.Parallel()

	s := NewTestStore(t)
	createSession(t, s, "n")

	got, err := s.GetSession(context.Background(), "n")
	require.NoError(t, err)
	assert.Nil(t, got.DisplayName)
	assert.Nil(t, got.InitialPrompt)
	assert.Equal(t, models.DefaultSessionName, got.Name())
}

func TestAppendMessagesKeepsOrderAndClassifies(t *testing.T) {
	t.Parallel()

	s := NewTestStore(t)
	ctx := context.Background()
	createSession(t, s, "s1")

	text, err := s.AppendMessage(ctx, "s1", models.RoleUser, models.Content{models.TextBlock("hi")})
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeText, text.MessageType)

	batch, err := s.AppendMessages(ctx, "s1", []store.NewMessage{
		{Role: models.RoleAssistant, Content: models.Content{models.TextBlock("looking")}},
		{Role: models.RoleUser, Content: models.Content{models.ImageBlock("image/png", "AAAA")}},
	})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Greater(t, batch[0].ID, text.ID)
	assert.Equal(t, batch[0].ID+1, batch[1].ID)
	assert.Equal(t, models.MessageTypeImage, batch[1].MessageType)

	msgs, err := s.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i := 1; i < len(msgs); i++ {
		assert.Less(t, msgs[i-1].ID, msgs[i].ID)
	}
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "looking", msgs[1].Content[0].Text)
	assert.Equal(t, models.MessageTypeImage, msgs[2].MessageType)
	require.NotNil(t, msgs[2].Content[0].Source)
	assert.Equal(t, "AAAA", msgs[2].Content[0].Source.Data)

	n, err := s.CountMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestAppendToUnknownSession(t *testing.T) {
	t.Parallel()

	s := NewTestStore(t)
	_, err := s.AppendMessage(context.Background(), "ghost", models.RoleUser, models.Content{models.TextBlock("x")})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.ListMessages(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAppendRejectsEmptyContentAtomically(t *testing.T) {
	t.Parallel()

	s := NewTestStore(t)
	ctx := context.Background()
	createSession(t, s, "s")

	_, err := s.AppendMessages(ctx, "s", []store.NewMessage{
		{Role: models.RoleUser, Content: models.Content{models.TextBlock("kept?")}},
		{Role: models.RoleAssistant, Content: nil},
	})
	assert.ErrorIs(t, err, store.ErrEmptyContent)

	n, err := s.CountMessages(ctx, "s")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConcurrentAppendsStayOrdered(t *testing.T) {
	t.Parallel()

	s := NewTestStore(t)
	ctx := context.Background()
	createSession(t, s, "c")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendMessage(ctx, "c", models.RoleUser, models.Content{models.TextBlock(fmt.Sprintf("m%d", i))})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := s.ListMessages(ctx, "c")
	require.NoError(t, err)
	require.Len(t, msgs, 20)
	for i := 1; i < len(msgs); i++ {
		assert.Less(t, msgs[i-1].ID, msgs[i].ID)
	}
}

func TestLegacyStringContentIsNormalized(t *testing.T) {
	t.Parallel()

	s := NewTestStore(t)
	ctx := context.Background()
	sess := createSession(t, s, "legacy")

	_, err := s.DB().ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, 'user', '"plain old text"', CURRENT_TIMESTAMP)`,
		sess.ID)
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, "legacy")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Content, 1)
	assert.Equal(t, models.BlockTypeText, msgs[0].Content[0].Type)
	assert.Equal(t, "plain old text", msgs[0].Content[0].Text)
	assert.Equal(t, models.MessageTypeText, msgs[0].MessageType)

	hits, err := s.SearchByText(ctx, "OLD", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "plain old text", hits[0].Snippet)
}

func TestListSessionsNewestFirstWithCounts(t *testing.T) {
	t.Parallel()

	s := NewTestStore(t)
	ctx := context.Background()
	createSession(t, s, "first")
	createSession(t, s, "second")
	_, err := s.AppendMessage(ctx, "first", models.RoleUser, models.Content{models.TextBlock("a")})
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, "first", models.RoleAssistant, models.Content{models.TextBlock("b")})
	require.NoError(t, err)

	items, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "second", items[0].Code)
	assert.Equal(t, int64(0), items[0].MessageCount)
	assert.Equal(t, "first", items[1].Code)
	assert.Equal(t, int64(2), items[1].MessageCount)
}

func TestDeleteSessionCascades(t *testing.T) {
	t.Parallel()

	s := NewTestStore(t)
	ctx := context.Background()
	createSession(t, s, "gone")
	_, err := s.AppendMessage(ctx, "gone", models.RoleUser, models.Content{models.TextBlock("bye")})
	require.NoError(t, err)

	ok, err := s.DeleteSession(ctx, "gone")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.GetSession(ctx, "gone")
	assert.ErrorIs(t, err, store.ErrNotFound)

	var orphans int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&orphans))
	assert.Zero(t, orphans)

	ok, err = s.DeleteSession(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearchByText(t *testing.T) {
	t.Parallel()

	s := NewTestStore(t)
	ctx := context.Background()
	createSession(t, s, "a")
	createSession(t, s, "b")

	_, err := s.AppendMessages(ctx, "a", []store.NewMessage{
		{Role: models.RoleUser, Content: models.Content{models.TextBlock("Hello"), models.TextBlock("World")}},
		{Role: models.RoleAssistant, Content: models.Content{models.TextBlock("hello again world")}},
	})
	require.NoError(t, err)
	_, err = s.AppendMessages(ctx, "b", []store.NewMessage{
		{Role: models.RoleUser, Content: models.Content{models.TextBlock("nothing here")}},
		{Role: models.RoleUser, Content: models.Content{models.TextBlock("hello"), models.ImageBlock("image/png", "aGVsbG8=")}},
	})
	require.NoError(t, err)

	t.Run("joined text blocks match across boundaries", func(t *testing.T) {
		hits, err := s.SearchByText(ctx, "hello world", 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "a", hits[0].SessionCode)
		assert.Equal(t, "Hello World", hits[0].Snippet)
	})

	t.Run("one hit per session, latest match", func(t *testing.T) {
		hits, err := s.SearchByText(ctx, "HELLO", 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "a", hits[0].SessionCode)
		assert.Equal(t, "hello again world", hits[0].Snippet)
	})

	t.Run("image messages are excluded", func(t *testing.T) {
		hits, err := s.SearchByText(ctx, "aGVsbG8", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("limit and empty query", func(t *testing.T) {
		hits, err := s.SearchByText(ctx, "e", 1)
		require.NoError(t, err)
		assert.Len(t, hits, 1)

		hits, err = s.SearchByText(ctx, "", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestSearchSnippetIsTruncated(t *testing.T) {
	t.Parallel()

	s := NewTestStore(t)
	ctx := context.Background()
	createSession(t, s, "long")
	_, err := s.AppendMessage(ctx, "long", models.RoleUser, models.Content{models.TextBlock("needle " + strings.Repeat("x", 500))})
	require.NoError(t, err)

	hits, err := s.SearchByText(ctx, "needle", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Len(t, []rune(hits[0].Snippet), store.SnippetMaxLen)
}
