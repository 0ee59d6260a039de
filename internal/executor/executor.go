package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/agentive-ai/fleet/internal/agent"
	"github.com/agentive-ai/fleet/internal/ledger"
	"github.com/agentive-ai/fleet/internal/planner"
	"github.com/agentive-ai/fleet/internal/types"
)

// RunState is the terminal state of one execution attempt.
type RunState string

const (
	// StateCompleted means every step finished or was skipped, none failed.
	StateCompleted RunState = "completed"

	// StateBlocked means failed steps stopped progress; replanning may
	// recover the run.
	StateBlocked RunState = "blocked"

	// StateFailed means the run ended with failures replanning cannot fix.
	StateFailed RunState = "failed"
)

// Result summarizes one execution attempt of a workflow version.
type Result struct {
	ExecutionID    types.ID           `json:"execution_id"`
	State          RunState           `json:"state"`
	CompletedSteps []string           `json:"completed_steps"`
	FailedSteps    []string           `json:"failed_steps"`
	SkippedSteps   []string           `json:"skipped_steps"`
	RetriedSteps   []string           `json:"retried_steps"`
	Metrics        map[string]float64 `json:"metrics"`
}

// Executor drives one workflow version through the step execution loop:
// compute executable steps, evaluate conditions, run ready steps, record
// progress, and stop for replanning when failures stall the run.
type Executor struct {
	manager  *agent.Manager
	history  planner.History
	progress *ledger.ProgressLedger

	maxTaskRetries      int
	baseIterations      int
	reflectionThreshold float64
	maxParallel         int

	tracer trace.Tracer
	logger *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxTaskRetries sets how many immediate retries a failed step gets.
// Retries are immediate; backing off would hold the whole batch hostage.
func WithMaxTaskRetries(n int) ExecutorOption {
	return func(e *Executor) {
		if n >= 0 {
			e.maxTaskRetries = n
		}
	}
}

// WithReflectionThreshold sets the completion ratio below which failures
// break the loop for replanning. Default 0.7.
func WithReflectionThreshold(threshold float64) ExecutorOption {
	return func(e *Executor) {
		if threshold > 0 && threshold <= 1 {
			e.reflectionThreshold = threshold
		}
	}
}

// WithMaxParallel caps how many parallel-flagged steps run concurrently.
// Default 5.
func WithMaxParallel(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// WithTracer enables OpenTelemetry spans per run and per step.
func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// WithExecutorLogger sets the structured logger used by the executor.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an executor over the given agent manager, history store, and
// progress ledger.
func New(manager *agent.Manager, history planner.History, progress *ledger.ProgressLedger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		manager:             manager,
		history:             history,
		progress:            progress,
		maxTaskRetries:      2,
		baseIterations:      10,
		reflectionThreshold: 0.7,
		maxParallel:         5,
		logger:              slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// stepReport is the outcome of running one step to its final attempt.
type stepReport struct {
	step    ledger.PlanStep
	result  agent.Result
	retried bool
}

// ExecuteWorkflow runs one version of a workflow. A zero versionID executes
// the current version. The returned Result is non-nil whenever an execution
// record was opened; a nil Result means the version could not be loaded.
func (e *Executor) ExecuteWorkflow(ctx context.Context, workflowID, versionID types.ID) (*Result, error) {
	version, err := e.history.GetVersion(ctx, workflowID, versionID)
	if err != nil {
		return nil, types.WrapError(types.EXECUTION_FAILED,
			fmt.Sprintf("cannot execute workflow %s", workflowID), err)
	}

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "executor.run",
			trace.WithAttributes(
				attribute.String("workflow.id", workflowID.String()),
				attribute.String("workflow.version_id", version.ID.String()),
				attribute.Int("workflow.step_count", len(version.Steps)),
			),
		)
		defer span.End()
	}

	execution, err := e.history.StartExecution(ctx, workflowID, version.ID)
	if err != nil {
		return nil, types.WrapError(types.EXECUTION_FAILED, "could not open execution record", err)
	}

	e.logger.Info("executing workflow",
		"workflow_id", workflowID,
		"version_id", version.ID,
		"execution_id", execution.ID,
		"steps", len(version.Steps),
	)

	run := &runState{
		branches: NewBranchRecorder(),
		handled:  make(map[string]bool),
	}
	// Steps carried forward as completed by a replan are done already.
	for _, step := range version.Steps {
		if step.Status == ledger.TaskStatusCompleted {
			run.handled[step.Name()] = true
			run.completed = append(run.completed, step.Name())
			run.branches.RecordOutcome(step.Name(), StepOutcome{Completed: true})
		}
	}
	startTime := time.Now()
	maxIterations := e.baseIterations
	if twice := 2 * len(version.Steps); twice > maxIterations {
		maxIterations = twice
	}

	iterations := 0
	for iterations < maxIterations {
		iterations++

		if err := ctx.Err(); err != nil {
			e.finishExecution(ctx, execution.ID, "failed")
			return e.buildResult(execution.ID, StateFailed, run, startTime, iterations, len(version.Steps)),
				types.WrapError(types.TASK_CANCELED, "workflow execution canceled", err)
		}

		if len(run.handled) >= len(version.Steps) {
			break
		}

		executable := e.executableSteps(version.Steps, run)
		if len(executable) == 0 {
			break
		}

		var ready []ledger.PlanStep
		for _, step := range executable {
			if !run.branches.Evaluate(step.Condition) {
				e.logger.Info("skipping step, condition not met", "step", step.Name())
				run.markSkipped(step.Name())
				e.progress.Record(step.Name(), ledger.TaskStatusSkipped, "condition not met", nil)
				continue
			}
			ready = append(ready, step)
		}

		reports := e.executeBatch(ctx, ready)

		for _, report := range reports {
			e.recordReport(ctx, execution.ID, run, report)
		}

		// Failures with little overall progress call for replanning rather
		// than grinding through the remaining steps.
		progressRatio := float64(len(run.completed)) / float64(max(1, len(version.Steps)))
		if len(run.failed) > 0 && progressRatio < e.reflectionThreshold && iterations > 1 {
			e.logger.Info("stopping for replanning",
				"progress", progressRatio,
				"failed_steps", len(run.failed),
			)
			break
		}
	}

	state := StateCompleted
	historyStatus := "success"
	switch {
	case len(run.failed) > 0:
		state = StateBlocked
		historyStatus = "failed"
		if len(run.completed) > 0 {
			historyStatus = "partial_success"
		}
	case len(run.handled) < len(version.Steps):
		// Nothing failed but steps remain unreachable: a dependency cycle
		// survived validation or the iteration cap hit.
		state = StateFailed
		historyStatus = "failed"
	}

	e.finishExecution(ctx, execution.ID, historyStatus)

	result := e.buildResult(execution.ID, state, run, startTime, iterations, len(version.Steps))
	switch state {
	case StateCompleted:
		e.progress.MarkCompleted(fmt.Sprintf("workflow %s completed", workflowID))
	case StateBlocked:
		e.progress.MarkStalled(fmt.Sprintf("workflow %s blocked on %d failed steps", workflowID, len(run.failed)))
	case StateFailed:
		e.progress.MarkFailed(fmt.Sprintf("workflow %s failed", workflowID))
	}

	return result, nil
}

// runState accumulates per-run bookkeeping.
type runState struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	skipped   []string
	retried   []string
	handled   map[string]bool
	branches  *BranchRecorder
}

func (r *runState) markSkipped(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = append(r.skipped, name)
	r.handled[name] = true
}

// executableSteps returns unhandled steps whose dependencies all completed
// and none failed.
func (e *Executor) executableSteps(steps []ledger.PlanStep, run *runState) []ledger.PlanStep {
	run.mu.Lock()
	defer run.mu.Unlock()

	completedSet := make(map[string]bool, len(run.completed))
	for _, name := range run.completed {
		completedSet[name] = true
	}
	failedSet := make(map[string]bool, len(run.failed))
	for _, name := range run.failed {
		failedSet[name] = true
	}

	var out []ledger.PlanStep
	for _, step := range steps {
		if run.handled[step.Name()] {
			continue
		}
		eligible := true
		for _, dep := range step.Dependencies {
			if !completedSet[dep] || failedSet[dep] {
				eligible = false
				break
			}
		}
		if eligible {
			out = append(out, step)
		}
	}
	return out
}

// executeBatch runs the ready steps. Steps flagged Parallel run concurrently
// under a semaphore when more than one is ready; everything else runs in
// plan order.
func (e *Executor) executeBatch(ctx context.Context, ready []ledger.PlanStep) []stepReport {
	var parallel, sequential []ledger.PlanStep
	for _, step := range ready {
		if step.Parallel {
			parallel = append(parallel, step)
		} else {
			sequential = append(sequential, step)
		}
	}
	if len(parallel) == 1 {
		sequential = append(parallel, sequential...)
		parallel = nil
	}

	reports := make([]stepReport, 0, len(ready))
	var mu sync.Mutex

	if len(parallel) > 0 {
		group, groupCtx := errgroup.WithContext(ctx)
		sem := make(chan struct{}, e.maxParallel)
		for _, step := range parallel {
			step := step
			group.Go(func() error {
				sem <- struct{}{}
				defer func() { <-sem }()

				report := e.executeWithRetries(groupCtx, step)
				mu.Lock()
				reports = append(reports, report)
				mu.Unlock()
				return nil
			})
		}
		// Step failures are reported, not returned; Wait only gathers.
		_ = group.Wait()
	}

	for _, step := range sequential {
		reports = append(reports, e.executeWithRetries(ctx, step))
	}

	return reports
}

// executeWithRetries runs one step, retrying failures immediately up to the
// retry budget.
func (e *Executor) executeWithRetries(ctx context.Context, step ledger.PlanStep) stepReport {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "executor.step",
			trace.WithAttributes(attribute.String("step.name", step.Name())),
		)
		defer span.End()
	}

	var result agent.Result
	retried := false
	for attempt := 0; attempt <= e.maxTaskRetries; attempt++ {
		if attempt > 0 {
			retried = true
			e.logger.Info("retrying failed step",
				"step", step.Name(),
				"attempt", attempt,
				"max_retries", e.maxTaskRetries,
			)
		}
		result = e.executeStep(ctx, step.Task)
		if !result.Failed() {
			break
		}
	}

	return stepReport{step: step, result: result, retried: retried}
}

// executeStep selects an agent and runs the task once, folding execution
// time into the result metrics. All failure modes come back as a failed
// Result; this method never returns an error.
func (e *Executor) executeStep(ctx context.Context, task ledger.Task) agent.Result {
	selected := e.manager.SelectAgentForTask(ctx, task, task.Parameters)
	if selected == nil {
		return agent.Result{
			Status: agent.ResultFailed,
			Error:  fmt.Sprintf("no suitable agent found for task: %s", task.Name),
		}
	}

	e.manager.Tracker().TaskReceived(selected.ID())

	started := time.Now()
	result, err := selected.Execute(ctx, task)
	elapsed := time.Since(started)

	if err != nil {
		result = agent.Result{Status: agent.ResultFailed, Error: err.Error()}
	}
	if result.Metrics == nil {
		result.Metrics = map[string]float64{}
	}
	result.Metrics["execution_time"] = elapsed.Seconds()

	if result.Failed() {
		e.manager.Tracker().TaskFailed(selected.ID(), elapsed)
	} else {
		e.manager.Tracker().TaskCompleted(selected.ID(), elapsed)
	}
	return result
}

// recordReport folds one step outcome into run state, history, progress
// ledger, and the branch recorder.
func (e *Executor) recordReport(ctx context.Context, executionID types.ID, run *runState, report stepReport) {
	name := report.step.Name()
	failed := report.result.Failed()

	run.mu.Lock()
	run.handled[name] = true
	if failed {
		run.failed = append(run.failed, name)
	} else {
		run.completed = append(run.completed, name)
	}
	if report.retried {
		run.retried = append(run.retried, name)
	}
	run.mu.Unlock()

	run.branches.RecordOutcome(name, StepOutcome{
		Completed: !failed,
		Output:    report.result.Output,
	})

	status := "success"
	taskStatus := ledger.TaskStatusCompleted
	if failed {
		status = "failure"
		taskStatus = ledger.TaskStatusFailed
	}

	if err := e.history.RecordStepResult(ctx, executionID, planner.StepResult{
		StepName: name,
		Status:   status,
		Output:   report.result.Output,
		Error:    report.result.Error,
		Metrics:  report.result.Metrics,
	}); err != nil {
		e.logger.Error("failed to record step result", "step", name, "error", err)
	}

	e.progress.Record(name, taskStatus, report.result.Error, report.result.Metrics)
}

func (e *Executor) finishExecution(ctx context.Context, executionID types.ID, status string) {
	if err := e.history.CompleteExecution(ctx, executionID, status); err != nil {
		e.logger.Error("failed to close execution record", "execution_id", executionID, "error", err)
	}
}

func (e *Executor) buildResult(executionID types.ID, state RunState, run *runState, startTime time.Time, iterations, totalSteps int) *Result {
	run.mu.Lock()
	defer run.mu.Unlock()

	successRate := 0.0
	if totalSteps > 0 {
		successRate = float64(len(run.completed)) / float64(totalSteps)
	}

	return &Result{
		ExecutionID:    executionID,
		State:          state,
		CompletedSteps: append([]string(nil), run.completed...),
		FailedSteps:    append([]string(nil), run.failed...),
		SkippedSteps:   append([]string(nil), run.skipped...),
		RetriedSteps:   append([]string(nil), run.retried...),
		Metrics: map[string]float64{
			"execution_time": time.Since(startTime).Seconds(),
			"success_rate":   successRate,
			"iterations":     float64(iterations),
		},
	}
}
