package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brandworks/social-automation/publication-governor/internal/gate"
)

// PostgresFlagStore persists agent pause flags in the agent_flags table.
type PostgresFlagStore struct {
	pool *pgxpool.Pool
}

// NewPostgresFlagStore creates a flag store backed by the given pool.
func NewPostgresFlagStore(pool *pgxpool.Pool) *PostgresFlagStore {
	return &PostgresFlagStore{pool: pool}
}

// Get returns the flag for an agent, or nil when none has been written.
func (s *PostgresFlagStore) Get(ctx context.Context, agentName string) (*gate.AgentFlag, error) {
	var flag gate.AgentFlag

	err := s.pool.QueryRow(ctx,
		`SELECT agent_name, paused, reason, paused_at, paused_by
		 FROM agent_flags
		 WHERE agent_name = $1`,
		agentName,
	).Scan(&flag.AgentName, &flag.Paused, &flag.Reason, &flag.PausedAt, &flag.PausedBy)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get agent flag: %w", err)
	}

	return &flag, nil
}

// Set upserts the flag for an agent.
func (s *PostgresFlagStore) Set(ctx context.Context, flag gate.AgentFlag) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_flags (agent_name, paused, reason, paused_at, paused_by, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (agent_name)
		 DO UPDATE SET paused = EXCLUDED.paused, reason = EXCLUDED.reason,
		               paused_at = EXCLUDED.paused_at, paused_by = EXCLUDED.paused_by,
		               updated_at = NOW()`,
		flag.AgentName, flag.Paused, flag.Reason, flag.PausedAt, flag.PausedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to set agent flag: %w", err)
	}

	return nil
}
