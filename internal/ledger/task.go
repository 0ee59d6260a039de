package ledger

import (
	"fmt"
	"time"

	"github.com/agentive-ai/fleet/internal/types"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCanceled   TaskStatus = "canceled"

	// TaskStatusSkipped marks a step whose gating condition did not hold.
	// Distinct from canceled: nobody revoked the task, it was never due.
	TaskStatusSkipped TaskStatus = "skipped"
)

// IsTerminal returns true if the status represents a terminal state.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCanceled, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// Task is a unit of work assigned to an agent. Apart from Status, a task is
// immutable once dispatched.
type Task struct {
	ID          types.ID       `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	AgentType   string         `json:"agent_type" yaml:"agent_type"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Priority    int            `json:"priority" yaml:"priority"`
	Deadline    *time.Time     `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	Status      TaskStatus     `json:"status" yaml:"status"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
}

// NewTask creates a pending task targeting the given agent type.
func NewTask(name, description, agentType string, parameters map[string]any) Task {
	if parameters == nil {
		parameters = map[string]any{}
	}
	return Task{
		ID:          types.NewID(),
		Name:        name,
		Description: description,
		AgentType:   agentType,
		Parameters:  parameters,
		Status:      TaskStatusPending,
		CreatedAt:   time.Now(),
	}
}

// WithPriority returns a copy of the task with the given priority.
func (t Task) WithPriority(priority int) Task {
	t.Priority = priority
	return t
}

// WithDeadline returns a copy of the task with the given deadline.
func (t Task) WithDeadline(deadline time.Time) Task {
	t.Deadline = &deadline
	return t
}

// Cancel marks a non-terminal task as canceled. Cancellation is final.
func (t *Task) Cancel() error {
	if t.Status.IsTerminal() {
		return types.NewError(types.TASK_CANCELED,
			fmt.Sprintf("task %s is already in terminal state %s", t.Name, t.Status))
	}
	t.Status = TaskStatusCanceled
	return nil
}

// Condition gates the execution of a plan step on a previously recorded step
// result. A step whose condition evaluates false is skipped: handled, but
// neither completed nor failed.
type Condition struct {
	// StepName names the prior step whose result is inspected.
	StepName string `json:"step_name" yaml:"step_name"`

	// Field is the key looked up in the prior step's output. When empty the
	// condition checks the prior step's completion status instead.
	Field string `json:"field,omitempty" yaml:"field,omitempty"`

	// Equals is the value the field must equal for the condition to hold.
	// Ignored when Field is empty.
	Equals any `json:"equals,omitempty" yaml:"equals,omitempty"`
}

// PlanStep wraps a task with orchestration metadata: dependencies, a
// parallelism flag, and an optional skip condition.
type PlanStep struct {
	ID           types.ID   `json:"id" yaml:"id"`
	Task         Task       `json:"task" yaml:"task"`
	Dependencies []string   `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Parallel     bool       `json:"parallel" yaml:"parallel"`
	Condition    *Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
	Status       TaskStatus `json:"status" yaml:"status"`
}

// NewPlanStep creates a pending plan step for the given task.
// Dependencies reference other steps by task name.
func NewPlanStep(task Task, dependencies []string) PlanStep {
	return PlanStep{
		ID:           types.NewID(),
		Task:         task,
		Dependencies: dependencies,
		Status:       TaskStatusPending,
	}
}

// WithParallel returns a copy of the step flagged for concurrent execution
// with other ready parallel steps.
func (s PlanStep) WithParallel() PlanStep {
	s.Parallel = true
	return s
}

// WithCondition returns a copy of the step gated on a prior step result.
func (s PlanStep) WithCondition(cond Condition) PlanStep {
	s.Condition = &cond
	return s
}

// Name returns the step's task name, which identifies it within a plan.
func (s PlanStep) Name() string {
	return s.Task.Name
}

// ValidatePlan checks that every dependency and condition references a step
// present in the same plan and that no step depends on or is conditioned on
// itself.
func ValidatePlan(steps []PlanStep) error {
	names := make(map[string]bool, len(steps))
	for _, step := range steps {
		if step.Name() == "" {
			return types.NewError(types.PLAN_INVALID, "plan step has an unnamed task")
		}
		if names[step.Name()] {
			return types.NewError(types.PLAN_INVALID,
				fmt.Sprintf("duplicate step name %q in plan", step.Name()))
		}
		names[step.Name()] = true
	}

	for _, step := range steps {
		for _, dep := range step.Dependencies {
			if dep == step.Name() {
				return types.NewError(types.PLAN_INVALID,
					fmt.Sprintf("step %q depends on itself", step.Name()))
			}
			if !names[dep] {
				return types.NewError(types.PLAN_INVALID,
					fmt.Sprintf("step %q depends on unknown step %q", step.Name(), dep))
			}
		}

		if cond := step.Condition; cond != nil {
			if cond.StepName == "" {
				return types.NewError(types.PLAN_INVALID,
					fmt.Sprintf("step %q has a condition without a step name", step.Name()))
			}
			if cond.StepName == step.Name() {
				return types.NewError(types.PLAN_INVALID,
					fmt.Sprintf("step %q is conditioned on itself", step.Name()))
			}
			if !names[cond.StepName] {
				return types.NewError(types.PLAN_INVALID,
					fmt.Sprintf("step %q is conditioned on unknown step %q", step.Name(), cond.StepName))
			}
		}
	}

	return nil
}
