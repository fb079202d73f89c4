package experiment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/brandworks/social-automation/publication-governor/internal/publisher"
)

// Status is the experiment lifecycle state. Terminal states are final.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrExperimentNotFound is returned for unknown experiment IDs.
var ErrExperimentNotFound = errors.New("experiment not found")

// Variant is one candidate content item in a multi-arm experiment.
type Variant struct {
	ID             string     `json:"id"`
	Content        string     `json:"content"`
	SuffixLabel    string     `json:"suffix_label"`
	Posted         bool       `json:"posted"`
	ExternalPostID string     `json:"external_post_id,omitempty"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
}

// Experiment owns its variants exclusively; once created they are only
// mutated by the orchestrator's posting loop.
type Experiment struct {
	ID          string                                   `json:"id"`
	CampaignID  string                                   `json:"campaign_id"`
	Variants    []Variant                                `json:"variants"`
	Winner      *Variant                                 `json:"winner,omitempty"`
	Metrics     map[string]publisher.PerformanceMetrics `json:"metrics,omitempty"`
	Scores      map[string]float64                       `json:"scores,omitempty"`
	StartedAt   time.Time                                `json:"started_at"`
	CompletedAt *time.Time                               `json:"completed_at,omitempty"`
	Status      Status                                   `json:"status"`
}

// Terminal reports whether the experiment reached a final state.
func (e *Experiment) Terminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}

// Store persists experiment records.
type Store interface {
	Create(ctx context.Context, exp *Experiment) error
	Update(ctx context.Context, exp *Experiment) error
	Get(ctx context.Context, id string) (*Experiment, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*Experiment, error)
	ListRunning(ctx context.Context) ([]*Experiment, error)
}

// MemoryStore is the in-memory Store used for development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
}

// NewMemoryStore creates an empty in-memory experiment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{experiments: make(map[string]*Experiment)}
}

func (s *MemoryStore) Create(ctx context.Context, exp *Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.experiments[exp.ID] = cloneExperiment(exp)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, exp *Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.experiments[exp.ID]; !ok {
		return ErrExperimentNotFound
	}
	s.experiments[exp.ID] = cloneExperiment(exp)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.experiments[id]
	if !ok {
		return nil, ErrExperimentNotFound
	}
	return cloneExperiment(exp), nil
}

// ListByCampaign returns a campaign's experiments, newest first.
func (s *MemoryStore) ListByCampaign(ctx context.Context, campaignID string) ([]*Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Experiment
	for _, exp := range s.experiments {
		if exp.CampaignID == campaignID {
			out = append(out, cloneExperiment(exp))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *MemoryStore) ListRunning(ctx context.Context) ([]*Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Experiment
	for _, exp := range s.experiments {
		if exp.Status == StatusRunning {
			out = append(out, cloneExperiment(exp))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func cloneExperiment(exp *Experiment) *Experiment {
	clone := *exp
	clone.Variants = append([]Variant(nil), exp.Variants...)
	if exp.Winner != nil {
		winner := *exp.Winner
		clone.Winner = &winner
	}
	if exp.Metrics != nil {
		clone.Metrics = make(map[string]publisher.PerformanceMetrics, len(exp.Metrics))
		for k, v := range exp.Metrics {
			clone.Metrics[k] = v
		}
	}
	if exp.Scores != nil {
		clone.Scores = make(map[string]float64, len(exp.Scores))
		for k, v := range exp.Scores {
			clone.Scores[k] = v
		}
	}
	return &clone
}
