package gate

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL bounds how long a flag-store read is trusted.
const DefaultCacheTTL = 5 * time.Minute

// Gate is the pause/resume check every publish path must consult
// before acting. Reads go through a short-lived cache; writes
// invalidate the cache entry for that agent immediately.
type Gate struct {
	store  FlagStore
	logger *logrus.Logger
	clock  Clock

	mu    sync.Mutex
	cache *flagCache
	sf    singleflight.Group
}

// Option configures a Gate.
type Option func(*options)

type options struct {
	ttl   time.Duration
	clock Clock
}

// WithCacheTTL overrides the flag cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithClock injects a clock, used by tests to control cache expiry.
func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

// New creates a pause gate backed by the given flag store.
func New(store FlagStore, logger *logrus.Logger, opts ...Option) *Gate {
	o := options{ttl: DefaultCacheTTL, clock: SystemClock()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Gate{
		store:  store,
		logger: logger,
		clock:  o.clock,
		cache:  newFlagCache(o.ttl, o.clock),
	}
}

// IsPaused reports whether the agent is paused. Unknown agents default
// to not paused. Any flag-store read failure fails closed: the agent is
// treated as paused because publishing must never proceed on an
// uncertain gate state.
func (g *Gate) IsPaused(ctx context.Context, agentName string) bool {
	flag, err := g.lookup(ctx, agentName)
	if err != nil {
		g.logger.WithFields(logrus.Fields{
			"agent": agentName,
			"error": err.Error(),
		}).Error("Flag store read failed, treating agent as paused")
		return true
	}
	return flag != nil && flag.Paused
}

// RequireActive returns a *PausedError if the agent is paused (or the
// gate state is unreadable), carrying the stored reason when present.
func (g *Gate) RequireActive(ctx context.Context, agentName string) error {
	flag, err := g.lookup(ctx, agentName)
	if err != nil {
		g.logger.WithFields(logrus.Fields{
			"agent": agentName,
			"error": err.Error(),
		}).Error("Flag store read failed, treating agent as paused")
		return &PausedError{AgentName: agentName, Reason: "gate state unavailable"}
	}
	if flag != nil && flag.Paused {
		return &PausedError{AgentName: agentName, Reason: flag.Reason}
	}
	return nil
}

// Status returns the current flag for an agent. Agents with no stored
// flag report as not paused.
func (g *Gate) Status(ctx context.Context, agentName string) (AgentFlag, error) {
	flag, err := g.lookup(ctx, agentName)
	if err != nil {
		return AgentFlag{}, err
	}
	if flag == nil {
		return AgentFlag{AgentName: agentName, Paused: false}, nil
	}
	return *flag, nil
}

// lookup serves a flag from cache, collapsing concurrent store reads
// for the same agent into a single fetch.
func (g *Gate) lookup(ctx context.Context, agentName string) (*AgentFlag, error) {
	g.mu.Lock()
	if flag, ok := g.cache.get(agentName); ok {
		g.mu.Unlock()
		return flag, nil
	}
	g.mu.Unlock()

	result, err, _ := g.sf.Do(agentName, func() (interface{}, error) {
		flag, err := g.store.Get(ctx, agentName)
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.cache.put(agentName, flag)
		g.mu.Unlock()
		return flag, nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(*AgentFlag), nil
}

// Pause marks an agent paused. Pausing an already-paused agent is a
// no-op beyond refreshing the stored reason and actor.
func (g *Gate) Pause(ctx context.Context, agentName, reason, actor string) error {
	now := g.clock.Now()
	flag := AgentFlag{
		AgentName: agentName,
		Paused:    true,
		Reason:    reason,
		PausedAt:  &now,
		PausedBy:  actor,
	}
	if err := g.store.Set(ctx, flag); err != nil {
		return err
	}
	g.invalidate(agentName)
	g.logger.WithFields(logrus.Fields{
		"agent":  agentName,
		"reason": reason,
		"actor":  actor,
	}).Warn("Agent paused")
	return nil
}

// Resume clears an agent's pause flag. Resuming a never-paused agent
// is a no-op.
func (g *Gate) Resume(ctx context.Context, agentName, actor string) error {
	flag := AgentFlag{AgentName: agentName, Paused: false}
	if err := g.store.Set(ctx, flag); err != nil {
		return err
	}
	g.invalidate(agentName)
	g.logger.WithFields(logrus.Fields{
		"agent": agentName,
		"actor": actor,
	}).Info("Agent resumed")
	return nil
}

// EmergencyStopAll pauses every managed agent concurrently. A failure
// to pause one agent never blocks the others; all failures are
// collected and returned as a StopReport.
func (g *Gate) EmergencyStopAll(ctx context.Context, agents []string, reason string) StopReport {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		report StopReport
	)

	for _, agent := range agents {
		wg.Add(1)
		go func(agent string) {
			defer wg.Done()
			if err := g.Pause(ctx, agent, reason, "emergency-stop"); err != nil {
				mu.Lock()
				report.Failed = append(report.Failed, StopFailure{AgentName: agent, Err: err})
				mu.Unlock()
				return
			}
			mu.Lock()
			report.Stopped = append(report.Stopped, agent)
			mu.Unlock()
		}(agent)
	}
	wg.Wait()

	g.logger.WithFields(logrus.Fields{
		"reason":  reason,
		"stopped": len(report.Stopped),
		"failed":  len(report.Failed),
	}).Warn("Emergency stop executed")
	return report
}

func (g *Gate) invalidate(agentName string) {
	g.mu.Lock()
	g.cache.invalidate(agentName)
	g.mu.Unlock()
}

// StopFailure records one agent whose pause failed during an emergency stop.
type StopFailure struct {
	AgentName string
	Err       error
}

// StopReport summarizes an emergency stop.
type StopReport struct {
	Stopped []string
	Failed  []StopFailure
}
