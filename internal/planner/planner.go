package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentive-ai/fleet/internal/ledger"
	"github.com/agentive-ai/fleet/internal/types"
)

// Planner creates workflows and replans them when execution stalls. Every
// plan change produces a new immutable version in the history store.
type Planner struct {
	history History
	logger  *slog.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the structured logger used by the planner.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a planner backed by the given history store.
func New(history History, opts ...Option) *Planner {
	p := &Planner{
		history: history,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreateWorkflow validates the steps and persists version 1 of a new
// workflow. It returns the workflow ID.
func (p *Planner) CreateWorkflow(ctx context.Context, name, description string, steps []ledger.PlanStep, creator string, tags []string) (types.ID, error) {
	if err := ledger.ValidatePlan(steps); err != nil {
		return "", err
	}
	if creator == "" {
		creator = "system"
	}

	workflowID := types.NewID()
	versionContext := map[string]any{
		"name":        name,
		"description": description,
	}
	if len(tags) > 0 {
		versionContext["tags"] = tags
	}

	if _, err := p.history.CreateVersion(ctx, workflowID, steps, creator,
		fmt.Sprintf("Initial version of %s", name), "", versionContext); err != nil {
		return "", types.WrapError(types.PLANNING_FAILED, "failed to persist initial version", err)
	}

	p.logger.Info("created workflow",
		"workflow_id", workflowID,
		"name", name,
		"steps", len(steps),
	)
	return workflowID, nil
}

// ReplanWorkflow builds a new plan version from execution results: completed
// steps are carried unchanged, failed steps are dropped, and surviving steps
// lose any dependency on a dropped step. The new version records its parent
// and a replanning context describing why it exists.
//
// A missing source version is a hard planning failure.
func (p *Planner) ReplanWorkflow(ctx context.Context, workflowID, versionID types.ID, completed, failed []string, extra map[string]any) (types.ID, error) {
	version, err := p.history.GetVersion(ctx, workflowID, versionID)
	if err != nil {
		p.logger.Error("cannot replan: version not found",
			"workflow_id", workflowID,
			"version_id", versionID,
		)
		return "", types.WrapError(types.REPLANNING_FAILED,
			fmt.Sprintf("cannot replan workflow %s", workflowID), err)
	}

	completedSet := toSet(completed)
	failedSet := toSet(failed)
	replanContext := replanningContext(version.Steps, completed, failed, extra)

	newSteps := make([]ledger.PlanStep, 0, len(version.Steps))
	for _, step := range version.Steps {
		if completedSet[step.Name()] {
			// Carried forward as done; the executor must not rerun it.
			step.Status = ledger.TaskStatusCompleted
			step.Task.Status = ledger.TaskStatusCompleted
			newSteps = append(newSteps, step)
			continue
		}
		if failedSet[step.Name()] {
			continue
		}

		var deps []string
		for _, dep := range step.Dependencies {
			if !failedSet[dep] {
				deps = append(deps, dep)
			}
		}
		step.Dependencies = deps
		newSteps = append(newSteps, step)
	}

	if len(newSteps) == 0 {
		return "", types.NewError(types.REPLANNING_FAILED,
			fmt.Sprintf("replanning workflow %s dropped every step", workflowID))
	}
	if err := ledger.ValidatePlan(newSteps); err != nil {
		return "", types.WrapError(types.REPLANNING_FAILED, "replanned steps are invalid", err)
	}

	newVersionID, err := p.history.CreateVersion(ctx, workflowID, newSteps, "workflow_planner",
		"Replanned version after execution failure", version.ID, replanContext)
	if err != nil {
		return "", types.WrapError(types.REPLANNING_FAILED, "failed to persist replanned version", err)
	}

	p.logger.Info("replanned workflow",
		"workflow_id", workflowID,
		"parent_version", version.ID,
		"new_version", newVersionID,
		"steps", len(newSteps),
	)
	return newVersionID, nil
}

// replanningContext summarizes execution state for the new version record.
func replanningContext(steps []ledger.PlanStep, completed, failed []string, extra map[string]any) map[string]any {
	failedSet := toSet(failed)

	var failedDetails []map[string]any
	for _, step := range steps {
		if failedSet[step.Name()] {
			failedDetails = append(failedDetails, map[string]any{
				"name":         step.Name(),
				"description":  step.Task.Description,
				"dependencies": step.Dependencies,
			})
		}
	}

	total := len(steps)
	if total == 0 {
		total = 1
	}

	out := map[string]any{
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
		"total_steps":         len(steps),
		"completed_steps":     completed,
		"failed_steps":        failed,
		"completion_ratio":    float64(len(completed)) / float64(total),
		"failed_step_details": failedDetails,
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}
