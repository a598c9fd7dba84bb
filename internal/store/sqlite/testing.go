package sqlite

import (
	"context"
	"testing"

	"computeruse-backend/internal/store/migrations"

	"github.com/stretchr/testify/require"
)

// NewTestStore creates an in-memory store with all migrations applied.
// The database is closed when the test completes.
func NewTestStore(t testing.TB) *Store {
	t.Helper()

	ctx := context.Background()
	db, err := Open(ctx, ":memory:")
	require.NoError(t, err)

	require.NoError(t, migrations.Up(ctx, db, migrations.SQLite))
	require.NoError(t, migrations.VerifySchema(ctx, db))

	s := New(db, nil)
	t.Cleanup(s.Close)
	return s
}
