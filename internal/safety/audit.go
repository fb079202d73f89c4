package safety

import (
	"context"
	"sync"
	"time"
)

// Action is the outcome recorded for one safety check.
type Action string

const (
	ActionApproved Action = "approved"
	ActionRejected Action = "rejected"
	ActionRevised  Action = "revised"
)

// AuditEntry is the compliance record for one safety check.
type AuditEntry struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	OriginalText string    `json:"original_text"`
	Action       Action    `json:"action"`
	Reason       string    `json:"reason,omitempty"`
	CampaignID   string    `json:"campaign_id,omitempty"`
	FlaggedTerms []string  `json:"flagged_terms,omitempty"`
}

// AuditStore persists the safety audit trail. The trail must be
// retrievable and clearable by an operator.
type AuditStore interface {
	Append(ctx context.Context, entry AuditEntry) error
	List(ctx context.Context, limit int) ([]AuditEntry, error)
	Clear(ctx context.Context) error
}

// MemoryAuditStore keeps the newest maxEntries audit records in
// memory, dropping the oldest once full.
type MemoryAuditStore struct {
	mu         sync.Mutex
	entries    []AuditEntry
	maxEntries int
}

// NewMemoryAuditStore creates a capped in-memory audit store.
func NewMemoryAuditStore(maxEntries int) *MemoryAuditStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryAuditStore{maxEntries: maxEntries}
}

func (s *MemoryAuditStore) Append(ctx context.Context, entry AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[len(s.entries)-s.maxEntries:]
	}
	return nil
}

// List returns the newest entries first, up to limit (0 means all).
func (s *MemoryAuditStore) List(ctx context.Context, limit int) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]AuditEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *MemoryAuditStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
	return nil
}
