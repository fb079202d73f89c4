package gate

import (
	"context"
	"fmt"
	"time"
)

// AgentFlag is one pause/resume record per agent name.
// When Paused is false the annotation fields are always empty.
type AgentFlag struct {
	AgentName string     `json:"agent_name"`
	Paused    bool       `json:"paused"`
	Reason    string     `json:"reason,omitempty"`
	PausedAt  *time.Time `json:"paused_at,omitempty"`
	PausedBy  string     `json:"paused_by,omitempty"`
}

// FlagStore is the persistence surface for agent flags. Get returns
// (nil, nil) when no flag exists for the agent.
type FlagStore interface {
	Get(ctx context.Context, agentName string) (*AgentFlag, error)
	Set(ctx context.Context, flag AgentFlag) error
}

// PausedError is returned when a publish attempt hits a paused agent.
type PausedError struct {
	AgentName string
	Reason    string
}

func (e *PausedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("agent %s is paused: %s", e.AgentName, e.Reason)
	}
	return fmt.Sprintf("agent %s is paused", e.AgentName)
}
