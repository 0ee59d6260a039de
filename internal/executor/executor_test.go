package executor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentive-ai/fleet/internal/agent"
	"github.com/agentive-ai/fleet/internal/ledger"
	"github.com/agentive-ai/fleet/internal/planner"
	"github.com/agentive-ai/fleet/internal/types"
)

// scriptedAgent executes tasks deterministically, failing named tasks a
// configured number of times and emitting configured outputs.
type scriptedAgent struct {
	id        string
	agentType string

	mu       sync.Mutex
	failures map[string]int
	outputs  map[string]map[string]any
	executed []string
}

var _ agent.Agent = (*scriptedAgent)(nil)

func newScriptedAgent(id, agentType string) *scriptedAgent {
	return &scriptedAgent{
		id:        id,
		agentType: agentType,
		failures:  make(map[string]int),
		outputs:   make(map[string]map[string]any),
	}
}

func (a *scriptedAgent) failTimes(taskName string, n int) *scriptedAgent {
	a.failures[taskName] = n
	return a
}

func (a *scriptedAgent) withOutput(taskName string, output map[string]any) *scriptedAgent {
	a.outputs[taskName] = output
	return a
}

func (a *scriptedAgent) ID() string   { return a.id }
func (a *scriptedAgent) Type() string { return a.agentType }

func (a *scriptedAgent) Capabilities() agent.Capability {
	return agent.Capability{TaskTypes: []string{a.agentType}}
}

func (a *scriptedAgent) Execute(_ context.Context, task ledger.Task) (agent.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.executed = append(a.executed, task.Name)

	if remaining := a.failures[task.Name]; remaining > 0 {
		a.failures[task.Name] = remaining - 1
		return agent.Result{Status: agent.ResultFailed, Error: "scripted failure"}, nil
	}

	output := a.outputs[task.Name]
	if output == nil {
		output = map[string]any{"task": task.Name}
	}
	return agent.Result{Status: agent.ResultCompleted, Output: output}, nil
}

func (a *scriptedAgent) Reset(context.Context) error { return nil }

func (a *scriptedAgent) executions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.executed...)
}

type fixture struct {
	manager  *agent.Manager
	history  *planner.InMemoryHistory
	progress *ledger.ProgressLedger
	planner  *planner.Planner
}

func newFixture(t *testing.T, agents ...agent.Agent) *fixture {
	t.Helper()
	f := &fixture{
		manager:  agent.NewManager(),
		history:  planner.NewInMemoryHistory(),
		progress: ledger.NewProgressLedger(),
	}
	f.planner = planner.New(f.history)
	for _, a := range agents {
		require.NoError(t, f.manager.Register(a))
	}
	return f
}

func (f *fixture) createWorkflow(t *testing.T, steps []ledger.PlanStep) types.ID {
	t.Helper()
	workflowID, err := f.planner.CreateWorkflow(context.Background(), "test", "", steps, "tester", nil)
	require.NoError(t, err)
	return workflowID
}

func step(name, agentType string, deps ...string) ledger.PlanStep {
	return ledger.NewPlanStep(ledger.NewTask(name, "do "+name, agentType, nil), deps)
}

func TestExecuteWorkflow_LinearPlanCompletes(t *testing.T) {
	worker := newScriptedAgent("worker-1", "worker")
	f := newFixture(t, worker)
	workflowID := f.createWorkflow(t, []ledger.PlanStep{
		step("a", "worker"),
		step("b", "worker", "a"),
		step("c", "worker", "b"),
	})

	e := New(f.manager, f.history, f.progress)
	result, err := e.ExecuteWorkflow(context.Background(), workflowID, "")
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, []string{"a", "b", "c"}, result.CompletedSteps)
	assert.Empty(t, result.FailedSteps)
	assert.Equal(t, 1.0, result.Metrics["success_rate"])

	// Dependency order was respected.
	assert.Equal(t, []string{"a", "b", "c"}, worker.executions())

	// Execution record and progress ledger reflect the run.
	execution, err := f.history.GetExecution(context.Background(), result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "success", execution.Status)
	assert.Len(t, execution.StepResults, 3)
	assert.Equal(t, ledger.StatusCompleted, f.progress.CurrentStatus())
}

func TestExecuteWorkflow_ParallelStepsAllComplete(t *testing.T) {
	worker := newScriptedAgent("worker-1", "worker")
	f := newFixture(t, worker)
	workflowID := f.createWorkflow(t, []ledger.PlanStep{
		step("fetch", "worker"),
		step("scan_web", "worker", "fetch").WithParallel(),
		step("scan_net", "worker", "fetch").WithParallel(),
		step("report", "worker", "scan_web", "scan_net"),
	})

	e := New(f.manager, f.history, f.progress, WithMaxParallel(2))
	result, err := e.ExecuteWorkflow(context.Background(), workflowID, "")
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, result.State)
	assert.ElementsMatch(t, []string{"fetch", "scan_web", "scan_net", "report"}, result.CompletedSteps)
	assert.Equal(t, "fetch", worker.executions()[0])
	assert.Equal(t, "report", worker.executions()[3])
}

func TestExecuteWorkflow_RetriesRecoverTransientFailures(t *testing.T) {
	worker := newScriptedAgent("worker-1", "worker").failTimes("flaky", 2)
	f := newFixture(t, worker)
	workflowID := f.createWorkflow(t, []ledger.PlanStep{step("flaky", "worker")})

	e := New(f.manager, f.history, f.progress, WithMaxTaskRetries(2))
	result, err := e.ExecuteWorkflow(context.Background(), workflowID, "")
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, []string{"flaky"}, result.CompletedSteps)
	assert.Equal(t, []string{"flaky"}, result.RetriedSteps)
	assert.Len(t, worker.executions(), 3)
}

func TestExecuteWorkflow_PersistentFailureBlocksRun(t *testing.T) {
	worker := newScriptedAgent("worker-1", "worker").failTimes("broken", 100)
	f := newFixture(t, worker)
	workflowID := f.createWorkflow(t, []ledger.PlanStep{
		step("setup", "worker"),
		step("broken", "worker", "setup"),
		step("downstream", "worker", "broken"),
	})

	e := New(f.manager, f.history, f.progress, WithMaxTaskRetries(1))
	result, err := e.ExecuteWorkflow(context.Background(), workflowID, "")
	require.NoError(t, err)

	assert.Equal(t, StateBlocked, result.State)
	assert.Equal(t, []string{"setup"}, result.CompletedSteps)
	assert.Equal(t, []string{"broken"}, result.FailedSteps)

	// The dependent step never ran.
	assert.NotContains(t, worker.executions(), "downstream")

	execution, err := f.history.GetExecution(context.Background(), result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "partial_success", execution.Status)
	assert.Equal(t, ledger.StatusStalled, f.progress.CurrentStatus())
}

func TestExecuteWorkflow_ConditionSkipsStep(t *testing.T) {
	worker := newScriptedAgent("worker-1", "worker").
		withOutput("probe", map[string]any{"vulnerable": false})
	f := newFixture(t, worker)

	exploit := step("exploit", "worker", "probe")
	exploit = exploit.WithCondition(ledger.Condition{StepName: "probe", Field: "vulnerable", Equals: true})
	cleanup := step("cleanup", "worker", "probe")

	workflowID := f.createWorkflow(t, []ledger.PlanStep{step("probe", "worker"), exploit, cleanup})

	e := New(f.manager, f.history, f.progress)
	result, err := e.ExecuteWorkflow(context.Background(), workflowID, "")
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, []string{"exploit"}, result.SkippedSteps)
	assert.ElementsMatch(t, []string{"probe", "cleanup"}, result.CompletedSteps)
	assert.NotContains(t, worker.executions(), "exploit")

	// The audit trail labels the step skipped, not canceled.
	entries := f.progress.EntriesForTask("exploit")
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.TaskStatusSkipped, entries[0].Status)
}

func TestExecuteWorkflow_NoSuitableAgentFailsStep(t *testing.T) {
	f := newFixture(t, newScriptedAgent("worker-1", "worker"))
	workflowID := f.createWorkflow(t, []ledger.PlanStep{step("drive", "driver")})

	e := New(f.manager, f.history, f.progress, WithMaxTaskRetries(0))
	result, err := e.ExecuteWorkflow(context.Background(), workflowID, "")
	require.NoError(t, err)

	assert.Equal(t, StateBlocked, result.State)
	assert.Equal(t, []string{"drive"}, result.FailedSteps)

	execution, err := f.history.GetExecution(context.Background(), result.ExecutionID)
	require.NoError(t, err)
	require.Len(t, execution.StepResults, 1)
	assert.Contains(t, execution.StepResults[0].Error, "no suitable agent")
}

func TestExecuteWorkflow_UnknownVersion(t *testing.T) {
	f := newFixture(t)
	e := New(f.manager, f.history, f.progress)

	result, err := e.ExecuteWorkflow(context.Background(), types.NewID(), "")
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestExecuteWorkflow_UnreachableStepsFailRun(t *testing.T) {
	worker := newScriptedAgent("worker-1", "worker")
	f := newFixture(t, worker)

	// Mutually dependent steps sneak past the planner only if written to
	// history directly.
	workflowID := types.NewID()
	a := step("a", "worker", "b")
	b := step("b", "worker", "a")
	_, err := f.history.CreateVersion(context.Background(), workflowID,
		[]ledger.PlanStep{a, b}, "tester", "cyclic", "", nil)
	require.NoError(t, err)

	e := New(f.manager, f.history, f.progress)
	result, err := e.ExecuteWorkflow(context.Background(), workflowID, "")
	require.NoError(t, err)

	assert.Equal(t, StateFailed, result.State)
	assert.Empty(t, result.CompletedSteps)
	assert.Equal(t, ledger.StatusFailed, f.progress.CurrentStatus())
}

func TestBranchRecorder_Evaluate(t *testing.T) {
	b := NewBranchRecorder()
	b.RecordOutcome("probe", StepOutcome{Completed: true, Output: map[string]any{"vulnerable": true}})
	b.RecordOutcome("failed_step", StepOutcome{Completed: false})

	assert.True(t, b.Evaluate(nil))
	assert.True(t, b.Evaluate(&ledger.Condition{StepName: "probe"}))
	assert.False(t, b.Evaluate(&ledger.Condition{StepName: "failed_step"}))
	assert.True(t, b.Evaluate(&ledger.Condition{StepName: "probe", Field: "vulnerable", Equals: true}))
	assert.False(t, b.Evaluate(&ledger.Condition{StepName: "probe", Field: "vulnerable", Equals: false}))
	assert.False(t, b.Evaluate(&ledger.Condition{StepName: "probe", Field: "missing", Equals: true}))
	assert.False(t, b.Evaluate(&ledger.Condition{StepName: "never_ran"}))
}
