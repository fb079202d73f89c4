package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brandworks/social-automation/publication-governor/internal/experiment"
	"github.com/brandworks/social-automation/publication-governor/internal/publisher"
)

// PostgresExperimentStore persists experiments with variants, metrics,
// and scores held as jsonb columns.
type PostgresExperimentStore struct {
	pool *pgxpool.Pool
}

// NewPostgresExperimentStore creates an experiment store backed by the
// given pool.
func NewPostgresExperimentStore(pool *pgxpool.Pool) *PostgresExperimentStore {
	return &PostgresExperimentStore{pool: pool}
}

// Create inserts a new experiment record.
func (s *PostgresExperimentStore) Create(ctx context.Context, exp *experiment.Experiment) error {
	variants, metrics, scores, winner, err := marshalExperiment(exp)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO experiments (id, campaign_id, status, variants, winner, metrics, scores, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		exp.ID, exp.CampaignID, exp.Status, variants, winner, metrics, scores, exp.StartedAt, exp.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create experiment: %w", err)
	}

	return nil
}

// Update rewrites an existing experiment record.
func (s *PostgresExperimentStore) Update(ctx context.Context, exp *experiment.Experiment) error {
	variants, metrics, scores, winner, err := marshalExperiment(exp)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE experiments
		 SET status = $2, variants = $3, winner = $4, metrics = $5, scores = $6, completed_at = $7
		 WHERE id = $1`,
		exp.ID, exp.Status, variants, winner, metrics, scores, exp.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update experiment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return experiment.ErrExperimentNotFound
	}

	return nil
}

// Get retrieves one experiment by ID.
func (s *PostgresExperimentStore) Get(ctx context.Context, id string) (*experiment.Experiment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, campaign_id, status, variants, winner, metrics, scores, started_at, completed_at
		 FROM experiments
		 WHERE id = $1`,
		id,
	)

	exp, err := scanExperiment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, experiment.ErrExperimentNotFound
		}
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}

	return exp, nil
}

// ListByCampaign returns a campaign's experiments, newest first.
func (s *PostgresExperimentStore) ListByCampaign(ctx context.Context, campaignID string) ([]*experiment.Experiment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, campaign_id, status, variants, winner, metrics, scores, started_at, completed_at
		 FROM experiments
		 WHERE campaign_id = $1
		 ORDER BY started_at DESC`,
		campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query experiments: %w", err)
	}
	defer rows.Close()

	return collectExperiments(rows)
}

// ListRunning returns all experiments still in the running state.
func (s *PostgresExperimentStore) ListRunning(ctx context.Context) ([]*experiment.Experiment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, campaign_id, status, variants, winner, metrics, scores, started_at, completed_at
		 FROM experiments
		 WHERE status = $1
		 ORDER BY started_at DESC`,
		experiment.StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query running experiments: %w", err)
	}
	defer rows.Close()

	return collectExperiments(rows)
}

func marshalExperiment(exp *experiment.Experiment) (variants, metrics, scores, winner []byte, err error) {
	variants, err = json.Marshal(exp.Variants)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal variants: %w", err)
	}
	metrics, err = json.Marshal(exp.Metrics)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}
	scores, err = json.Marshal(exp.Scores)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal scores: %w", err)
	}
	if exp.Winner != nil {
		winner, err = json.Marshal(exp.Winner)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to marshal winner: %w", err)
		}
	}
	return variants, metrics, scores, winner, nil
}

func scanExperiment(row pgx.Row) (*experiment.Experiment, error) {
	var exp experiment.Experiment
	var variants, winner, metrics, scores []byte

	err := row.Scan(&exp.ID, &exp.CampaignID, &exp.Status, &variants, &winner, &metrics, &scores, &exp.StartedAt, &exp.CompletedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(variants, &exp.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	if winner != nil {
		var w experiment.Variant
		if err := json.Unmarshal(winner, &w); err != nil {
			return nil, fmt.Errorf("failed to unmarshal winner: %w", err)
		}
		exp.Winner = &w
	}
	exp.Metrics = make(map[string]publisher.PerformanceMetrics)
	if err := json.Unmarshal(metrics, &exp.Metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	exp.Scores = make(map[string]float64)
	if err := json.Unmarshal(scores, &exp.Scores); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scores: %w", err)
	}

	return &exp, nil
}

func collectExperiments(rows pgx.Rows) ([]*experiment.Experiment, error) {
	var out []*experiment.Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		out = append(out, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating experiments: %w", err)
	}
	return out, nil
}
