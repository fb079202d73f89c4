package store

import (
	"context"
	"sync"

	"github.com/brandworks/social-automation/publication-governor/internal/gate"
)

// MemoryFlagStore holds agent flags in memory for development mode.
type MemoryFlagStore struct {
	mu    sync.RWMutex
	flags map[string]gate.AgentFlag
}

// NewMemoryFlagStore creates an empty in-memory flag store.
func NewMemoryFlagStore() *MemoryFlagStore {
	return &MemoryFlagStore{flags: make(map[string]gate.AgentFlag)}
}

func (s *MemoryFlagStore) Get(ctx context.Context, agentName string) (*gate.AgentFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flag, ok := s.flags[agentName]
	if !ok {
		return nil, nil
	}
	return &flag, nil
}

func (s *MemoryFlagStore) Set(ctx context.Context, flag gate.AgentFlag) error {
	s.mu.Lock()
	s.flags[flag.AgentName] = flag
	s.mu.Unlock()
	return nil
}
