package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"computeruse-backend/internal/config"
	"computeruse-backend/internal/store"
	"computeruse-backend/internal/store/migrations"
	"computeruse-backend/internal/store/postgres"
	"computeruse-backend/internal/store/sqlite"
)

const connectTimeout = 10 * time.Second

// openStore connects to the configured backend, optionally applies
// migrations, and refuses to return a store whose schema is incomplete.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, migrate bool) (store.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if cfg.IsSQLite() {
		db, err := sqlite.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := migrations.Up(ctx, db, migrations.SQLite); err != nil {
				db.Close()
				return nil, err
			}
		}
		if err := migrations.VerifySchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		version, err := migrations.Version(ctx, db, migrations.SQLite)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to read schema version: %w", err)
		}
		logger.Info("SQLite store ready", "database", cfg.DatabaseURL, "schema_version", version)
		return sqlite.New(db, logger), nil
	}

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}
	if err := postgres.VerifySchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	version, err := postgres.SchemaVersion(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	logger.Info("Postgres store ready", "host", pool.Config().ConnConfig.Host, "schema_version", version)
	return postgres.NewPostgresStore(pool, logger), nil
}
