package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brandworks/social-automation/publication-governor/internal/safety"
)

// BlacklistStore persists blacklist terms in the blacklist_terms table.
// Global terms have a NULL campaign_id; campaign additions carry one.
type BlacklistStore struct {
	pool *pgxpool.Pool
}

// NewBlacklistStore creates a blacklist store backed by the given pool.
func NewBlacklistStore(pool *pgxpool.Pool) *BlacklistStore {
	return &BlacklistStore{pool: pool}
}

// LoadGlobal reads the global term list. An empty table yields the
// built-in default list so a fresh deployment is never unprotected.
func (s *BlacklistStore) LoadGlobal(ctx context.Context) ([]safety.BlacklistEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT term, category, severity
		 FROM blacklist_terms
		 WHERE campaign_id IS NULL
		 ORDER BY term`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query blacklist terms: %w", err)
	}
	defer rows.Close()

	var entries []safety.BlacklistEntry
	for rows.Next() {
		var e safety.BlacklistEntry
		if err := rows.Scan(&e.Term, &e.Category, &e.Severity); err != nil {
			return nil, fmt.Errorf("failed to scan blacklist term: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blacklist terms: %w", err)
	}

	if len(entries) == 0 {
		return safety.DefaultBlacklist(), nil
	}
	return entries, nil
}

// SaveCampaignTerms persists campaign-specific blacklist additions so
// they survive restarts. Duplicate terms are ignored.
func (s *BlacklistStore) SaveCampaignTerms(ctx context.Context, campaignID string, entries []safety.BlacklistEntry) error {
	for _, e := range entries {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO blacklist_terms (term, category, severity, campaign_id)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (term, campaign_id) DO NOTHING`,
			e.Term, e.Category, e.Severity, campaignID,
		)
		if err != nil {
			return fmt.Errorf("failed to save campaign term %q: %w", e.Term, err)
		}
	}
	return nil
}

// LoadCampaignTerms reads every persisted campaign-specific term,
// grouped by campaign, for re-priming the filter on startup.
func (s *BlacklistStore) LoadCampaignTerms(ctx context.Context) (map[string][]safety.BlacklistEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT campaign_id, term, category, severity
		 FROM blacklist_terms
		 WHERE campaign_id IS NOT NULL
		 ORDER BY campaign_id, term`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign terms: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]safety.BlacklistEntry)
	for rows.Next() {
		var campaignID string
		var e safety.BlacklistEntry
		if err := rows.Scan(&campaignID, &e.Term, &e.Category, &e.Severity); err != nil {
			return nil, fmt.Errorf("failed to scan campaign term: %w", err)
		}
		out[campaignID] = append(out[campaignID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaign terms: %w", err)
	}

	return out, nil
}
