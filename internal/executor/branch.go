package executor

import (
	"reflect"
	"sync"

	"github.com/agentive-ai/fleet/internal/ledger"
)

// StepOutcome is what the branch recorder remembers about a handled step.
type StepOutcome struct {
	Completed bool
	Output    map[string]any
}

// BranchRecorder tracks step outcomes within one run so later steps'
// conditions can be evaluated against them.
type BranchRecorder struct {
	mu       sync.RWMutex
	outcomes map[string]StepOutcome
}

// NewBranchRecorder creates an empty branch recorder.
func NewBranchRecorder() *BranchRecorder {
	return &BranchRecorder{outcomes: make(map[string]StepOutcome)}
}

// RecordOutcome stores a step's outcome for later condition checks.
func (b *BranchRecorder) RecordOutcome(stepName string, outcome StepOutcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outcomes[stepName] = outcome
}

// Outcome returns the recorded outcome for a step.
func (b *BranchRecorder) Outcome(stepName string) (StepOutcome, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	outcome, ok := b.outcomes[stepName]
	return outcome, ok
}

// Evaluate reports whether a condition holds against recorded outcomes.
// A nil condition always holds; a condition referencing an unrecorded step
// never does.
func (b *BranchRecorder) Evaluate(cond *ledger.Condition) bool {
	if cond == nil {
		return true
	}

	outcome, ok := b.Outcome(cond.StepName)
	if !ok {
		return false
	}

	if cond.Field == "" {
		return outcome.Completed
	}

	value, present := outcome.Output[cond.Field]
	if !present {
		return false
	}
	return reflect.DeepEqual(value, cond.Equals)
}
