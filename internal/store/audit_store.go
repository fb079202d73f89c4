package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brandworks/social-automation/publication-governor/internal/safety"
)

// PostgresAuditStore persists the safety audit trail in the
// safety_audit table, pruned to maxEntries newest records.
type PostgresAuditStore struct {
	pool       *pgxpool.Pool
	maxEntries int
}

// NewPostgresAuditStore creates an audit store backed by the given pool.
func NewPostgresAuditStore(pool *pgxpool.Pool, maxEntries int) *PostgresAuditStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &PostgresAuditStore{pool: pool, maxEntries: maxEntries}
}

func (s *PostgresAuditStore) Append(ctx context.Context, entry safety.AuditEntry) error {
	terms, err := json.Marshal(entry.FlaggedTerms)
	if err != nil {
		return fmt.Errorf("failed to marshal flagged terms: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO safety_audit (id, ts, original_text, action, reason, campaign_id, flagged_terms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.Timestamp, entry.OriginalText, entry.Action, entry.Reason, entry.CampaignID, terms,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	// Keep only the newest maxEntries rows.
	_, err = s.pool.Exec(ctx,
		`DELETE FROM safety_audit
		 WHERE id NOT IN (
			 SELECT id FROM safety_audit ORDER BY ts DESC LIMIT $1
		 )`,
		s.maxEntries,
	)
	if err != nil {
		return fmt.Errorf("failed to prune audit trail: %w", err)
	}

	return nil
}

// List returns the newest entries first, up to limit (0 means all).
func (s *PostgresAuditStore) List(ctx context.Context, limit int) ([]safety.AuditEntry, error) {
	if limit <= 0 || limit > s.maxEntries {
		limit = s.maxEntries
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, ts, original_text, action, reason, campaign_id, flagged_terms
		 FROM safety_audit
		 ORDER BY ts DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}
	defer rows.Close()

	var out []safety.AuditEntry
	for rows.Next() {
		var entry safety.AuditEntry
		var terms []byte
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.OriginalText, &entry.Action, &entry.Reason, &entry.CampaignID, &terms); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if err := json.Unmarshal(terms, &entry.FlaggedTerms); err != nil {
			return nil, fmt.Errorf("failed to unmarshal flagged terms: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit trail: %w", err)
	}

	return out, nil
}

func (s *PostgresAuditStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM safety_audit`); err != nil {
		return fmt.Errorf("failed to clear audit trail: %w", err)
	}
	return nil
}
