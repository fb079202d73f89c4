package gate

import "time"

// Clock abstracts wall time so cache expiry is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall-clock implementation used by default.
func SystemClock() Clock { return systemClock{} }

type cacheEntry struct {
	flag      *AgentFlag
	expiresAt time.Time
}

// flagCache is a TTL cache of flag-store reads keyed by agent name.
// It is a derived view only; pause/resume invalidate rather than update
// so a stale write race can never be cached.
type flagCache struct {
	ttl     time.Duration
	clock   Clock
	entries map[string]cacheEntry
}

func newFlagCache(ttl time.Duration, clock Clock) *flagCache {
	return &flagCache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]cacheEntry),
	}
}

func (c *flagCache) get(agentName string) (*AgentFlag, bool) {
	e, ok := c.entries[agentName]
	if !ok {
		return nil, false
	}
	if c.clock.Now().After(e.expiresAt) {
		delete(c.entries, agentName)
		return nil, false
	}
	return e.flag, true
}

func (c *flagCache) put(agentName string, flag *AgentFlag) {
	c.entries[agentName] = cacheEntry{
		flag:      flag,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
}

func (c *flagCache) invalidate(agentName string) {
	delete(c.entries, agentName)
}
