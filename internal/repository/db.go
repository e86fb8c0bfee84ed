package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewDB creates a new PostgreSQL connection pool.
func NewDB(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the initial schema migration.
//
// The UNIQUE constraint on esims.checkout_session_id is load-bearing: payment
// webhooks are delivered at least once and two deliveries for the same session
// may fulfill concurrently, so duplicate-suppression must live in the
// database, not only in application checks.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			password   TEXT NOT NULL,
			role       TEXT NOT NULL DEFAULT 'customer',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

		CREATE TABLE IF NOT EXISTS plans (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			type            TEXT NOT NULL DEFAULT 'standard',
			region          TEXT NOT NULL DEFAULT '',
			country         TEXT NOT NULL DEFAULT '',
			data_amount_gb  DOUBLE PRECISION NOT NULL DEFAULT 0,
			validity_days   INTEGER NOT NULL DEFAULT 0,
			price_cents     BIGINT NOT NULL DEFAULT 0,
			currency        TEXT NOT NULL DEFAULT 'EUR',
			package_code    TEXT NOT NULL UNIQUE,
			topup_available BOOLEAN NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS esims (
			id                  TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL DEFAULT '',
			plan_id             TEXT NOT NULL DEFAULT '',
			checkout_session_id TEXT NOT NULL UNIQUE,
			provider_order_no   TEXT NOT NULL DEFAULT '',
			iccid               TEXT NOT NULL DEFAULT '',
			activation_code     TEXT NOT NULL DEFAULT '',
			smdp_address        TEXT NOT NULL DEFAULT '',
			qr_code             TEXT NOT NULL DEFAULT '',
			status              TEXT NOT NULL,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_esims_provider_order_no ON esims(provider_order_no);
		CREATE INDEX IF NOT EXISTS idx_esims_iccid ON esims(iccid);

		CREATE TABLE IF NOT EXISTS topups (
			id                  TEXT PRIMARY KEY,
			esim_id             TEXT NOT NULL,
			package_code        TEXT NOT NULL,
			provider_topup_id   TEXT NOT NULL DEFAULT '',
			checkout_session_id TEXT NOT NULL,
			amount_cents        BIGINT NOT NULL DEFAULT 0,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_topups_esim_id ON topups(esim_id);

		CREATE TABLE IF NOT EXISTS system_cache (
			key        TEXT PRIMARY KEY,
			data       JSONB,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	_, err := pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
