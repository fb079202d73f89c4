package experiment

import (
	"sync"
	"time"
)

// EventType identifies an experiment lifecycle event.
type EventType string

const (
	EventVariantPosted     EventType = "variant_posted"
	EventVariantSkipped    EventType = "variant_skipped"
	EventEvaluationStarted EventType = "evaluation_started"
	EventWinnerSelected    EventType = "winner_selected"
	EventCompleted         EventType = "completed"
	EventFailed            EventType = "failed"
)

// Event is one observable step in an experiment run, streamed to
// dashboard subscribers over WebSocket.
type Event struct {
	ExperimentID string    `json:"experiment_id"`
	Type         EventType `json:"type"`
	VariantID    string    `json:"variant_id,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// eventBus fans experiment events out to subscribers. Slow subscribers
// drop events rather than blocking the run.
type eventBus struct {
	mu   sync.Mutex
	subs map[string][]chan Event
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[string][]chan Event)}
}

func (b *eventBus) subscribe(experimentID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[experimentID] = append(b.subs[experimentID], ch)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		channels := b.subs[experimentID]
		for i, c := range channels {
			if c == ch {
				b.subs[experimentID] = append(channels[:i], channels[i+1:]...)
				close(c)
				break
			}
		}
		if len(b.subs[experimentID]) == 0 {
			delete(b.subs, experimentID)
		}
	}
	return ch, unsubscribe
}

func (b *eventBus) publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[event.ExperimentID] {
		select {
		case ch <- event:
		default:
		}
	}
}
