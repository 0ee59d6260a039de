package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentive-ai/fleet/internal/feedback"
	"github.com/agentive-ai/fleet/internal/ledger"
)

func TestManager_RegisterRejectsDuplicates(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(NewEchoAgent("worker-1", "echo")))

	err := m.Register(NewEchoAgent("worker-1", "echo"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	assert.Error(t, m.Register(nil))
}

func TestManager_UnregisterRemovesAgent(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(NewEchoAgent("worker-1", "echo")))
	require.NotNil(t, m.Get("worker-1"))

	m.Unregister("worker-1")
	assert.Nil(t, m.Get("worker-1"))
	assert.Empty(t, m.Agents())
}

func TestSelectAgentForTask_PrefersTypeMatch(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(NewEchoAgent("recon-1", "recon")))
	require.NoError(t, m.Register(NewEchoAgent("writer-1", "writer")))

	task := ledger.NewTask("gather", "gather information", "recon", nil)
	selected := m.SelectAgentForTask(context.Background(), task, nil)
	require.NotNil(t, selected)
	assert.Equal(t, "recon-1", selected.ID())
}

func TestSelectAgentForTask_NoPlausibleAgentReturnsNil(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(NewEchoAgent("writer-1", "writer")))

	task := ledger.NewTask("gather", "gather information", "recon", nil)
	assert.Nil(t, m.SelectAgentForTask(context.Background(), task, nil))

	empty := NewManager()
	assert.Nil(t, empty.SelectAgentForTask(context.Background(), task, nil))
}

func TestSelectAgentForTask_SpecializationBreaksTies(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(NewEchoAgent("recon-1", "recon")))
	require.NoError(t, m.Register(NewEchoAgent("recon-2", "recon")))
	require.NoError(t, m.RegisterSpecialization("recon-2", []string{"networking"}))

	task := ledger.NewTask("gather", "map the network", "recon", nil)
	selected := m.SelectAgentForTask(context.Background(), task, map[string]any{"domain": "networking"})
	require.NotNil(t, selected)
	assert.Equal(t, "recon-2", selected.ID())
}

func TestSelectAgentForTask_PerformanceBreaksTies(t *testing.T) {
	tracker := feedback.NewTracker()
	m := NewManager(WithFeedbackTracker(tracker))
	require.NoError(t, m.Register(NewEchoAgent("recon-1", "recon")))
	require.NoError(t, m.Register(NewEchoAgent("recon-2", "recon")))

	// recon-2 has a clean record, recon-1 keeps failing.
	tracker.TaskFailed("recon-1", time.Second)
	tracker.TaskCompleted("recon-2", time.Second)

	task := ledger.NewTask("gather", "gather information", "recon", nil)
	selected := m.SelectAgentForTask(context.Background(), task, nil)
	require.NotNil(t, selected)
	assert.Equal(t, "recon-2", selected.ID())
}

func TestRegisterSpecialization_UnknownAgent(t *testing.T) {
	m := NewManager()
	assert.Error(t, m.RegisterSpecialization("ghost", []string{"networking"}))
}

func TestResetAgentState(t *testing.T) {
	m := NewManager()
	echo := NewEchoAgent("worker-1", "echo")
	require.NoError(t, m.Register(echo))

	task := ledger.NewTask("noop", "noop", "echo", nil)
	_, err := echo.Execute(context.Background(), task)
	require.NoError(t, err)
	require.EqualValues(t, 1, echo.Executed())

	require.NoError(t, m.ResetAgentState(context.Background(), echo))
	assert.EqualValues(t, 0, echo.Executed())

	assert.NoError(t, m.ResetAgentState(context.Background(), nil))
}
