package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Connect opens a pgx pool, retrying while the database comes up.
func Connect(ctx context.Context, databaseURL string, logger *logrus.Logger) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	var err error

	for i := 0; i < 10; i++ {
		pool, err = pgxpool.New(ctx, databaseURL)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		logger.WithError(err).WithField("attempt", i+1).Warn("Database not ready, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	return nil, fmt.Errorf("failed to connect to database: %w", err)
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS operators (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		hashed_password TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS agent_flags (
		agent_name TEXT PRIMARY KEY,
		paused BOOLEAN NOT NULL DEFAULT FALSE,
		reason TEXT NOT NULL DEFAULT '',
		paused_at TIMESTAMPTZ,
		paused_by TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS experiments (
		id UUID PRIMARY KEY,
		campaign_id TEXT NOT NULL,
		status TEXT NOT NULL,
		variants JSONB NOT NULL DEFAULT '[]'::jsonb,
		winner JSONB,
		metrics JSONB NOT NULL DEFAULT '{}'::jsonb,
		scores JSONB NOT NULL DEFAULT '{}'::jsonb,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_experiments_campaign ON experiments (campaign_id, started_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments (status)`,
	`CREATE TABLE IF NOT EXISTS safety_audit (
		id UUID PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL,
		original_text TEXT NOT NULL,
		action TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		campaign_id TEXT NOT NULL DEFAULT '',
		flagged_terms JSONB NOT NULL DEFAULT '[]'::jsonb
	)`,
	`CREATE INDEX IF NOT EXISTS idx_safety_audit_ts ON safety_audit (ts DESC)`,
	`CREATE TABLE IF NOT EXISTS blacklist_terms (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		term TEXT NOT NULL,
		category TEXT NOT NULL,
		severity TEXT NOT NULL,
		campaign_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE NULLS NOT DISTINCT (term, campaign_id)
	)`,
}

// EnsureSchema creates the governor tables when they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
