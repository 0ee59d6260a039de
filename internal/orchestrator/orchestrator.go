package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentive-ai/fleet/internal/agent"
	"github.com/agentive-ai/fleet/internal/executor"
	"github.com/agentive-ai/fleet/internal/ledger"
	"github.com/agentive-ai/fleet/internal/planner"
	"github.com/agentive-ai/fleet/internal/types"
)

// RunStatus is the final status of an orchestrated run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunResult is the outcome of one orchestrated goal or plan run.
type RunResult struct {
	WorkflowID     types.ID           `json:"workflow_id"`
	Status         RunStatus          `json:"status"`
	CompletedSteps []string           `json:"completed_steps"`
	FailedSteps    []string           `json:"failed_steps"`
	SkippedSteps   []string           `json:"skipped_steps"`
	ReplanCount    int                `json:"replan_count"`
	Executions     []executor.Result  `json:"executions"`
	Metrics        map[string]float64 `json:"metrics"`
	Error          string             `json:"error,omitempty"`
	Ledger         ledger.Snapshot    `json:"ledger"`
}

// Orchestrator wires the planner, agent manager, and executor into the
// outer run loop: plan, execute, and replan while blocked until the replan
// budget runs out. All run state lives in explicit per-run objects.
type Orchestrator struct {
	manager     *agent.Manager
	history     planner.History
	planner     *planner.Planner
	goalPlanner *planner.GoalPlanner

	maxReplanAttempts int
	executorOpts      []executor.ExecutorOption
	logger            *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGoalPlanner enables goal-driven planning through a language model.
func WithGoalPlanner(gp *planner.GoalPlanner) Option {
	return func(o *Orchestrator) {
		o.goalPlanner = gp
	}
}

// WithMaxReplanAttempts bounds how many times a blocked run is replanned.
// Default 2.
func WithMaxReplanAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxReplanAttempts = n
		}
	}
}

// WithExecutorOptions passes options through to the per-run executor.
func WithExecutorOptions(opts ...executor.ExecutorOption) Option {
	return func(o *Orchestrator) {
		o.executorOpts = append(o.executorOpts, opts...)
	}
}

// WithLogger sets the structured logger used by the orchestrator.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an orchestrator over the given agent manager and history
// store.
func New(manager *agent.Manager, history planner.History, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		manager:           manager,
		history:           history,
		maxReplanAttempts: 2,
		logger:            slog.Default(),
	}
	o.planner = planner.New(history)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Planner returns the workflow planner used by this orchestrator.
func (o *Orchestrator) Planner() *planner.Planner {
	return o.planner
}

// RunGoal plans a goal through the language model and runs the resulting
// workflow.
func (o *Orchestrator) RunGoal(ctx context.Context, goal string) (*RunResult, error) {
	if o.goalPlanner == nil {
		return nil, types.NewError(types.PLANNING_FAILED, "no goal planner configured")
	}

	agentTypes := o.agentTypes()
	if len(agentTypes) == 0 {
		return nil, types.NewError(types.NO_SUITABLE_AGENT, "no agents registered")
	}

	steps, err := o.goalPlanner.PlanGoal(ctx, goal, agentTypes)
	if err != nil {
		return nil, err
	}

	return o.RunPlan(ctx, goal, steps)
}

// RunPlan creates a workflow from explicit steps and runs it to a terminal
// state, replanning while blocked.
func (o *Orchestrator) RunPlan(ctx context.Context, goal string, steps []ledger.PlanStep) (*RunResult, error) {
	taskLedger := ledger.NewTaskLedger(goal)
	if err := taskLedger.SetPlan(steps); err != nil {
		return nil, err
	}

	workflowID, err := o.planner.CreateWorkflow(ctx, goal, goal, steps, "orchestrator", nil)
	if err != nil {
		return nil, err
	}

	return o.run(ctx, workflowID, taskLedger)
}

// run is the outer loop: execute the current version, replan while the run
// comes back blocked, and stop when the run completes or the replan budget
// is spent.
func (o *Orchestrator) run(ctx context.Context, workflowID types.ID, taskLedger *ledger.TaskLedger) (*RunResult, error) {
	progress := ledger.NewProgressLedger()
	exec := executor.New(o.manager, o.history, progress, o.executorOpts...)

	out := &RunResult{
		WorkflowID: workflowID,
		Metrics:    map[string]float64{},
	}

	var versionID types.ID
	for attempt := 0; ; attempt++ {
		result, err := exec.ExecuteWorkflow(ctx, workflowID, versionID)
		if err != nil {
			out.Status = RunFailed
			out.Error = err.Error()
			out.Ledger = taskLedger.Snapshot()
			return out, err
		}
		out.Executions = append(out.Executions, *result)
		o.applyStepStatuses(taskLedger, result)

		switch result.State {
		case executor.StateCompleted:
			out.Status = RunCompleted
			o.finalize(out, result, progress)
			out.Ledger = taskLedger.Snapshot()
			return out, nil

		case executor.StateFailed:
			out.Status = RunFailed
			out.Error = "workflow has unreachable steps"
			o.finalize(out, result, progress)
			out.Ledger = taskLedger.Snapshot()
			return out, nil

		case executor.StateBlocked:
			if attempt >= o.maxReplanAttempts {
				out.Status = RunFailed
				out.Error = fmt.Sprintf("run still blocked after %d replanning attempts", o.maxReplanAttempts)
				o.finalize(out, result, progress)
				out.Ledger = taskLedger.Snapshot()
				return out, nil
			}

			newVersionID, err := o.planner.ReplanWorkflow(ctx, workflowID, versionID,
				result.CompletedSteps, result.FailedSteps,
				map[string]any{"replan_attempt": attempt + 1})
			if err != nil {
				out.Status = RunFailed
				out.Error = err.Error()
				o.finalize(out, result, progress)
				out.Ledger = taskLedger.Snapshot()
				return out, err
			}

			out.ReplanCount++
			versionID = newVersionID

			version, err := o.history.GetVersion(ctx, workflowID, newVersionID)
			if err == nil {
				if setErr := taskLedger.SetPlan(version.Steps); setErr != nil {
					o.logger.Warn("could not install replanned steps in task ledger", "error", setErr)
				}
			}

			o.logger.Info("replanned blocked run",
				"workflow_id", workflowID,
				"attempt", attempt+1,
				"new_version", newVersionID,
			)
		}
	}
}

// applyStepStatuses mirrors an execution attempt's outcomes into the task
// ledger.
func (o *Orchestrator) applyStepStatuses(taskLedger *ledger.TaskLedger, result *executor.Result) {
	for _, name := range result.CompletedSteps {
		_ = taskLedger.SetStepStatus(name, ledger.TaskStatusCompleted)
	}
	for _, name := range result.FailedSteps {
		_ = taskLedger.SetStepStatus(name, ledger.TaskStatusFailed)
	}
	for _, name := range result.SkippedSteps {
		_ = taskLedger.SetStepStatus(name, ledger.TaskStatusSkipped)
	}
}

// finalize folds the last execution attempt and progress metrics into the
// run result.
func (o *Orchestrator) finalize(out *RunResult, last *executor.Result, progress *ledger.ProgressLedger) {
	out.CompletedSteps = o.allCompleted(out)
	out.FailedSteps = last.FailedSteps
	out.SkippedSteps = last.SkippedSteps

	for name, value := range last.Metrics {
		out.Metrics[name] = value
	}
	out.Metrics["replan_count"] = float64(out.ReplanCount)
	out.Metrics["overall_success_rate"] = progress.SuccessRate()
}

// allCompleted deduplicates completed steps across execution attempts;
// replanned versions carry completed steps forward.
func (o *Orchestrator) allCompleted(out *RunResult) []string {
	seen := make(map[string]bool)
	var names []string
	for _, execution := range out.Executions {
		for _, name := range execution.CompletedSteps {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

func (o *Orchestrator) agentTypes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range o.manager.Agents() {
		if !seen[a.Type()] {
			seen[a.Type()] = true
			out = append(out, a.Type())
		}
	}
	return out
}
