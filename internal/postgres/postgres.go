package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"provider-integrity-go/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS provider_actions (
	id UUID PRIMARY KEY,
	provider TEXT NOT NULL,
	external_bet_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	user_id TEXT NOT NULL,
	external_transaction_id TEXT NOT NULL DEFAULT '',
	amount NUMERIC(36, 18),
	resulting_transaction_id TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	decline_code TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (provider, external_bet_id, event_type)
);

CREATE INDEX IF NOT EXISTS idx_provider_actions_user ON provider_actions(user_id);

CREATE TABLE IF NOT EXISTS bet_aggregates (
	id UUID PRIMARY KEY,
	provider TEXT NOT NULL,
	external_identifier TEXT NOT NULL,
	user_id TEXT NOT NULL,
	state TEXT NOT NULL,
	bet_amount NUMERIC(36, 18) NOT NULL DEFAULT 0,
	pay_amount NUMERIC(36, 18) NOT NULL DEFAULT 0,
	balance_type TEXT NOT NULL,
	game_identifier TEXT NOT NULL DEFAULT '',
	closed_out TIMESTAMPTZ,
	version BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (provider, external_identifier, user_id),
	CHECK ((state = 'settled') = (closed_out IS NOT NULL))
);
`

// Connect opens a PostgreSQL pool with the configured limits and verifies it.
func Connect(ctx context.Context, cfg models.DatabaseConfig) (*sql.DB, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx := ctx
	if cfg.PingTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.PingTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	zap.L().Info("Connected to PostgreSQL")
	return db, nil
}

// Migrate creates the action and aggregate tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate postgres schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
