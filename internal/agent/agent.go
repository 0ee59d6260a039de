package agent

import (
	"context"

	"github.com/agentive-ai/fleet/internal/ledger"
)

// ResultStatus reports how an execution ended.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
)

// Result is the outcome of executing one task.
type Result struct {
	Status  ResultStatus       `json:"status"`
	Output  map[string]any     `json:"output,omitempty"`
	Error   string             `json:"error,omitempty"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Failed reports whether the result represents a failure.
func (r Result) Failed() bool {
	return r.Status == ResultFailed
}

// Capability describes what an agent can do. The answer must be stable: two
// calls on the same agent return the same capability set.
type Capability struct {
	TaskTypes   []string `json:"task_types"`
	Skills      []string `json:"skills,omitempty"`
	Description string   `json:"description,omitempty"`
}

// SupportsTaskType reports whether the capability covers a task type.
func (c Capability) SupportsTaskType(taskType string) bool {
	for _, t := range c.TaskTypes {
		if t == taskType {
			return true
		}
	}
	return false
}

// Agent is a worker that executes tasks. Implementations validate the task
// type before doing any work and must be safe for concurrent Execute calls.
type Agent interface {
	// ID returns the agent's unique identity on the bus.
	ID() string

	// Type returns the agent's type label, matched against Task.AgentType.
	Type() string

	// Execute runs one task to completion or failure.
	Execute(ctx context.Context, task ledger.Task) (Result, error)

	// Capabilities reports what the agent can do.
	Capabilities() Capability

	// Reset clears transient state so the agent can take on new work.
	Reset(ctx context.Context) error
}

// QueryHandler is implemented by agents that can answer free-form queries in
// addition to executing tasks.
type QueryHandler interface {
	HandleQuery(ctx context.Context, query string, queryContext map[string]any) (any, error)
}

// Voter is implemented by agents that can participate in consensus rounds.
type Voter interface {
	Vote(ctx context.Context, topic string, options []any, voteContext map[string]any) (vote any, confidence float64, rationale string, err error)
}
