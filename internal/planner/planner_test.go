package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentive-ai/fleet/internal/ledger"
	"github.com/agentive-ai/fleet/internal/types"
)

func step(name, agentType string, deps ...string) ledger.PlanStep {
	return ledger.NewPlanStep(ledger.NewTask(name, "do "+name, agentType, nil), deps)
}

func TestCreateWorkflow_PersistsInitialVersion(t *testing.T) {
	history := NewInMemoryHistory()
	p := New(history)

	steps := []ledger.PlanStep{step("recon", "recon"), step("report", "writer", "recon")}
	workflowID, err := p.CreateWorkflow(context.Background(), "incident review", "review the incident", steps, "", []string{"ops"})
	require.NoError(t, err)
	require.False(t, workflowID.IsZero())

	version, err := history.GetVersion(context.Background(), workflowID, "")
	require.NoError(t, err)
	assert.Len(t, version.Steps, 2)
	assert.Equal(t, "system", version.CreatedBy)
	assert.True(t, version.ParentID.IsZero())
	assert.Equal(t, "incident review", version.Context["name"])
}

func TestCreateWorkflow_RejectsInvalidSteps(t *testing.T) {
	p := New(NewInMemoryHistory())

	_, err := p.CreateWorkflow(context.Background(), "broken", "", []ledger.PlanStep{step("a", "x", "ghost")}, "tester", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.NewError(types.PLAN_INVALID, "")))
}

func TestReplanWorkflow_CarriesCompletedDropsFailed(t *testing.T) {
	history := NewInMemoryHistory()
	p := New(history)

	steps := []ledger.PlanStep{
		step("recon", "recon"),
		step("exploit", "attacker", "recon"),
		step("report", "writer", "recon", "exploit"),
	}
	workflowID, err := p.CreateWorkflow(context.Background(), "assessment", "", steps, "tester", nil)
	require.NoError(t, err)

	parent, err := history.GetVersion(context.Background(), workflowID, "")
	require.NoError(t, err)

	newVersionID, err := p.ReplanWorkflow(context.Background(), workflowID, "",
		[]string{"recon"}, []string{"exploit"}, map[string]any{"reason": "tool unavailable"})
	require.NoError(t, err)

	version, err := history.GetVersion(context.Background(), workflowID, newVersionID)
	require.NoError(t, err)

	// Failed step gone, completed carried, survivor's dependency stripped.
	require.Len(t, version.Steps, 2)
	assert.Equal(t, "recon", version.Steps[0].Name())
	assert.Equal(t, ledger.TaskStatusCompleted, version.Steps[0].Status)
	assert.Equal(t, "report", version.Steps[1].Name())
	assert.Equal(t, ledger.TaskStatusPending, version.Steps[1].Status)
	assert.Equal(t, []string{"recon"}, version.Steps[1].Dependencies)

	// Lineage and replanning context.
	assert.Equal(t, parent.ID, version.ParentID)
	assert.Equal(t, "workflow_planner", version.CreatedBy)
	assert.Equal(t, 3, version.Context["total_steps"])
	assert.InDelta(t, 1.0/3.0, version.Context["completion_ratio"].(float64), 1e-9)
	assert.Equal(t, "tool unavailable", version.Context["reason"])

	details := version.Context["failed_step_details"].([]map[string]any)
	require.Len(t, details, 1)
	assert.Equal(t, "exploit", details[0]["name"])

	// Current version is now the replanned one.
	current, err := history.GetVersion(context.Background(), workflowID, "")
	require.NoError(t, err)
	assert.Equal(t, newVersionID, current.ID)
}

func TestReplanWorkflow_RejectsEmptyResult(t *testing.T) {
	history := NewInMemoryHistory()
	p := New(history)

	workflowID, err := p.CreateWorkflow(context.Background(), "doomed", "",
		[]ledger.PlanStep{step("only", "worker")}, "tester", nil)
	require.NoError(t, err)

	_, err = p.ReplanWorkflow(context.Background(), workflowID, "", nil, []string{"only"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dropped every step")
}

func TestReplanWorkflow_MissingVersionIsHardFailure(t *testing.T) {
	p := New(NewInMemoryHistory())

	newID, err := p.ReplanWorkflow(context.Background(), types.NewID(), "", nil, nil, nil)
	require.Error(t, err)
	assert.True(t, newID.IsZero())
	assert.True(t, errors.Is(err, types.NewError(types.REPLANNING_FAILED, "")))
	assert.True(t, errors.Is(err, types.NewError(types.VERSION_NOT_FOUND, "")))
}

func TestHistory_ExecutionLifecycle(t *testing.T) {
	history := NewInMemoryHistory()
	workflowID := types.NewID()

	_, err := history.StartExecution(context.Background(), workflowID, "")
	require.Error(t, err)

	versionID, err := history.CreateVersion(context.Background(), workflowID,
		[]ledger.PlanStep{step("recon", "recon")}, "tester", "v1", "", nil)
	require.NoError(t, err)

	execution, err := history.StartExecution(context.Background(), workflowID, "")
	require.NoError(t, err)
	assert.Equal(t, versionID, execution.VersionID)
	assert.Equal(t, "running", execution.Status)

	require.NoError(t, history.RecordStepResult(context.Background(), execution.ID, StepResult{
		StepName: "recon",
		Status:   "success",
	}))
	require.NoError(t, history.CompleteExecution(context.Background(), execution.ID, "success"))

	stored, err := history.GetExecution(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, "success", stored.Status)
	require.NotNil(t, stored.CompletedAt)
	require.Len(t, stored.StepResults, 1)
	assert.False(t, stored.StepResults[0].RecordedAt.IsZero())

	assert.Error(t, history.RecordStepResult(context.Background(), types.NewID(), StepResult{}))
	assert.Error(t, history.CompleteExecution(context.Background(), types.NewID(), "failed"))
}
