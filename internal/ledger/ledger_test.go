package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoStepPlan() []PlanStep {
	return []PlanStep{
		NewPlanStep(NewTask("recon", "gather information", "recon", nil), nil),
		NewPlanStep(NewTask("report", "summarize findings", "writer", nil), []string{"recon"}),
	}
}

func TestTaskLedger_SetPlanBumpsVersion(t *testing.T) {
	ledger := NewTaskLedger("investigate the incident")
	assert.Equal(t, 0, ledger.Version())

	require.NoError(t, ledger.SetPlan(twoStepPlan()))
	assert.Equal(t, 1, ledger.Version())
	assert.Len(t, ledger.Plan(), 2)

	require.NoError(t, ledger.SetPlan(twoStepPlan()[:1]))
	assert.Equal(t, 2, ledger.Version())
	assert.Len(t, ledger.Plan(), 1)
}

func TestTaskLedger_SetPlanRejectsInvalidPlan(t *testing.T) {
	ledger := NewTaskLedger("goal")
	bad := []PlanStep{NewPlanStep(NewTask("a", "a", "worker", nil), []string{"ghost"})}

	require.Error(t, ledger.SetPlan(bad))
	assert.Equal(t, 0, ledger.Version())
	assert.Empty(t, ledger.Plan())
}

func TestTaskLedger_StepStatus(t *testing.T) {
	ledger := NewTaskLedger("goal")
	require.NoError(t, ledger.SetPlan(twoStepPlan()))

	require.NoError(t, ledger.SetStepStatus("recon", TaskStatusCompleted))

	step, err := ledger.Step("recon")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, step.Status)
	assert.Equal(t, TaskStatusCompleted, step.Task.Status)

	pending := ledger.StepsWithStatus(TaskStatusPending)
	require.Len(t, pending, 1)
	assert.Equal(t, "report", pending[0].Name())

	assert.Error(t, ledger.SetStepStatus("ghost", TaskStatusFailed))
	_, err = ledger.Step("ghost")
	assert.Error(t, err)
}

func TestTaskLedger_FactsAndAssumptions(t *testing.T) {
	ledger := NewTaskLedger("goal")
	ledger.AddFact("target is reachable")
	ledger.AddAssumption("credentials remain valid")

	assert.Equal(t, []string{"target is reachable"}, ledger.Facts())
	assert.Equal(t, []string{"credentials remain valid"}, ledger.Assumptions())

	snap := ledger.Snapshot()
	assert.Equal(t, ledger.ID(), snap.ID)
	assert.Equal(t, "goal", snap.Goal)
	assert.Len(t, snap.Facts, 1)
}

func TestTaskLedger_ConcurrentAccess(t *testing.T) {
	ledger := NewTaskLedger("goal")
	require.NoError(t, ledger.SetPlan(twoStepPlan()))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = ledger.SetStepStatus("recon", TaskStatusInProgress)
		}()
		go func() {
			defer wg.Done()
			_ = ledger.Plan()
			_ = ledger.Version()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ledger.Version())
}
