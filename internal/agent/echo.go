package agent

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/agentive-ai/fleet/internal/ledger"
	"github.com/agentive-ai/fleet/internal/types"
)

// EchoAgent is a deterministic agent that reflects task parameters back as
// output. It exists for tests and as the simplest capability provider.
type EchoAgent struct {
	id        string
	agentType string
	executed  atomic.Int64
}

var _ Agent = (*EchoAgent)(nil)

// NewEchoAgent creates an echo agent of the given type.
func NewEchoAgent(id, agentType string) *EchoAgent {
	return &EchoAgent{id: id, agentType: agentType}
}

func (a *EchoAgent) ID() string {
	return a.id
}

func (a *EchoAgent) Type() string {
	return a.agentType
}

func (a *EchoAgent) Capabilities() Capability {
	return Capability{
		TaskTypes:   []string{a.agentType},
		Skills:      []string{"echo"},
		Description: "echoes task parameters back unchanged",
	}
}

func (a *EchoAgent) Execute(_ context.Context, task ledger.Task) (Result, error) {
	if task.AgentType != a.agentType {
		return Result{}, types.NewError(types.TASK_TYPE_UNSUPPORTED,
			fmt.Sprintf("agent %s does not support task type %q", a.id, task.AgentType))
	}

	a.executed.Add(1)
	return Result{
		Status: ResultCompleted,
		Output: map[string]any{
			"task":   task.Name,
			"echoed": task.Parameters,
		},
		Metrics: map[string]float64{"duration_seconds": 0},
	}, nil
}

// Executed returns how many tasks the agent has run.
func (a *EchoAgent) Executed() int64 {
	return a.executed.Load()
}

func (a *EchoAgent) Reset(context.Context) error {
	a.executed.Store(0)
	return nil
}
