package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/agentive-ai/fleet/internal/types"
)

// TaskLedger is the shared record of what a workflow is trying to achieve:
// the goal, the facts and assumptions planning was based on, and the current
// plan. The plan is replaced wholesale by the planner and advanced step by
// step by the executor; the version counter increases on every plan swap.
type TaskLedger struct {
	mu sync.RWMutex

	id          types.ID
	goal        string
	facts       []string
	assumptions []string
	plan        []PlanStep
	version     int
	updatedAt   time.Time
}

// NewTaskLedger creates a ledger for the given goal at plan version 0.
func NewTaskLedger(goal string) *TaskLedger {
	return &TaskLedger{
		id:        types.NewID(),
		goal:      goal,
		updatedAt: time.Now(),
	}
}

// ID returns the ledger's identifier.
func (l *TaskLedger) ID() types.ID {
	return l.id
}

// Goal returns the workflow goal.
func (l *TaskLedger) Goal() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.goal
}

// AddFact records an observed fact supporting the plan.
func (l *TaskLedger) AddFact(fact string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.facts = append(l.facts, fact)
	l.updatedAt = time.Now()
}

// AddAssumption records an assumption the plan depends on.
func (l *TaskLedger) AddAssumption(assumption string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.assumptions = append(l.assumptions, assumption)
	l.updatedAt = time.Now()
}

// Facts returns a copy of the recorded facts.
func (l *TaskLedger) Facts() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.facts...)
}

// Assumptions returns a copy of the recorded assumptions.
func (l *TaskLedger) Assumptions() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.assumptions...)
}

// SetPlan validates and installs a new plan, bumping the plan version.
func (l *TaskLedger) SetPlan(steps []PlanStep) error {
	if err := ValidatePlan(steps); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.plan = append([]PlanStep(nil), steps...)
	l.version++
	l.updatedAt = time.Now()
	return nil
}

// Plan returns a copy of the current plan.
func (l *TaskLedger) Plan() []PlanStep {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]PlanStep(nil), l.plan...)
}

// Version returns the current plan version. Version 0 means no plan has been
// installed yet.
func (l *TaskLedger) Version() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// UpdatedAt returns the time of the last mutation.
func (l *TaskLedger) UpdatedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.updatedAt
}

// Step returns the named step from the current plan.
func (l *TaskLedger) Step(name string) (PlanStep, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, step := range l.plan {
		if step.Name() == name {
			return step, nil
		}
	}
	return PlanStep{}, types.NewError(types.PLAN_INVALID,
		fmt.Sprintf("no step named %q in plan version %d", name, l.version))
}

// SetStepStatus updates one step's status in place. Plan shape is untouched.
func (l *TaskLedger) SetStepStatus(name string, status TaskStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.plan {
		if l.plan[i].Name() == name {
			l.plan[i].Status = status
			l.plan[i].Task.Status = status
			l.updatedAt = time.Now()
			return nil
		}
	}
	return types.NewError(types.PLAN_INVALID,
		fmt.Sprintf("no step named %q in plan version %d", name, l.version))
}

// StepsWithStatus returns the steps currently in the given status.
func (l *TaskLedger) StepsWithStatus(status TaskStatus) []PlanStep {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []PlanStep
	for _, step := range l.plan {
		if step.Status == status {
			out = append(out, step)
		}
	}
	return out
}

// Snapshot captures the ledger state for inspection or serialization.
type Snapshot struct {
	ID          types.ID   `json:"id"`
	Goal        string     `json:"goal"`
	Facts       []string   `json:"facts"`
	Assumptions []string   `json:"assumptions"`
	Plan        []PlanStep `json:"plan"`
	Version     int        `json:"version"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Snapshot returns a point-in-time copy of the ledger.
func (l *TaskLedger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		ID:          l.id,
		Goal:        l.goal,
		Facts:       append([]string(nil), l.facts...),
		Assumptions: append([]string(nil), l.assumptions...),
		Plan:        append([]PlanStep(nil), l.plan...),
		Version:     l.version,
		UpdatedAt:   l.updatedAt,
	}
}
