package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentive-ai/fleet/internal/llm"
	"github.com/agentive-ai/fleet/internal/types"
)

const plannedJSON = "```json\n" + `{
  "steps": [
    {"id": "recon", "description": "map the target", "agent": "recon", "depends_on": []},
    {"id": "scan_web", "description": "scan web surface", "agent": "scanner", "depends_on": ["recon"], "parallel": true},
    {"id": "scan_net", "description": "scan network surface", "agent": "scanner", "depends_on": ["recon"], "parallel": true},
    {"id": "report", "description": "write the report", "agent": "writer", "depends_on": ["scan_web", "scan_net"]}
  ]
}` + "\n```"

func TestPlanGoal_BuildsValidatedSteps(t *testing.T) {
	provider := llm.NewMockProvider(plannedJSON)
	g := NewGoalPlanner(provider, nil)

	steps, err := g.PlanGoal(context.Background(), "assess the target", []string{"recon", "scanner", "writer"})
	require.NoError(t, err)
	require.Len(t, steps, 4)

	assert.Equal(t, "recon", steps[0].Name())
	assert.Empty(t, steps[0].Dependencies)
	assert.True(t, steps[1].Parallel)
	assert.True(t, steps[2].Parallel)
	assert.Equal(t, []string{"scan_web", "scan_net"}, steps[3].Dependencies)
	assert.Equal(t, "scanner", steps[1].Task.AgentType)
}

func TestPlanGoal_RejectsUnknownAgentType(t *testing.T) {
	provider := llm.NewMockProvider(plannedJSON)
	g := NewGoalPlanner(provider, nil)

	_, err := g.PlanGoal(context.Background(), "assess the target", []string{"recon", "writer"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown agent type")
}

func TestPlanGoal_InvalidInputs(t *testing.T) {
	g := NewGoalPlanner(llm.NewMockProvider("unused"), nil)

	_, err := g.PlanGoal(context.Background(), "  ", []string{"recon"})
	assert.Error(t, err)

	_, err = g.PlanGoal(context.Background(), "goal", nil)
	assert.Error(t, err)
}

func TestPlanGoal_ModelFailures(t *testing.T) {
	failing := llm.NewMockProvider()
	failing.FailWith(errors.New("upstream down"))
	_, err := NewGoalPlanner(failing, nil).PlanGoal(context.Background(), "goal", []string{"recon"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.NewError(types.PLANNING_FAILED, "")))

	prose := llm.NewMockProvider("I cannot plan this.")
	_, err = NewGoalPlanner(prose, nil).PlanGoal(context.Background(), "goal", []string{"recon"})
	assert.Error(t, err)

	empty := llm.NewMockProvider(`{"steps": []}`)
	_, err = NewGoalPlanner(empty, nil).PlanGoal(context.Background(), "goal", []string{"recon"})
	assert.Error(t, err)

	badDeps := llm.NewMockProvider(`{"steps": [{"id": "a", "description": "x", "agent": "recon", "depends_on": ["ghost"]}]}`)
	_, err = NewGoalPlanner(badDeps, nil).PlanGoal(context.Background(), "goal", []string{"recon"})
	assert.Error(t, err)
}
