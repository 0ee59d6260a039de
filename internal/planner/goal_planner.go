package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentive-ai/fleet/internal/ledger"
	"github.com/agentive-ai/fleet/internal/llm"
	"github.com/agentive-ai/fleet/internal/types"
)

// GoalPlanner turns a goal statement into an executable plan by asking a
// language-model provider for a structured decomposition.
type GoalPlanner struct {
	provider llm.Provider
	logger   *slog.Logger
}

// NewGoalPlanner creates a goal planner over the given provider.
func NewGoalPlanner(provider llm.Provider, logger *slog.Logger) *GoalPlanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoalPlanner{provider: provider, logger: logger}
}

// plannedStep is the JSON shape the model is asked to produce per step.
type plannedStep struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Agent       string   `json:"agent"`
	DependsOn   []string `json:"depends_on"`
	Parallel    bool     `json:"parallel"`
}

// PlanGoal asks the provider to decompose a goal into steps restricted to
// the given agent types. The returned plan is validated before use.
func (g *GoalPlanner) PlanGoal(ctx context.Context, goal string, agentTypes []string) ([]ledger.PlanStep, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, types.NewError(types.PLANNING_FAILED, "goal must not be empty")
	}
	if len(agentTypes) == 0 {
		return nil, types.NewError(types.PLANNING_FAILED, "at least one agent type is required")
	}

	resp, err := g.provider.Complete(ctx, llm.Request{
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: goalPlannerSystemPrompt},
			{Role: llm.RoleUser, Content: goalPrompt(goal, agentTypes)},
		},
	})
	if err != nil {
		return nil, types.WrapError(types.PLANNING_FAILED, "planning request failed", err)
	}

	var parsed struct {
		Steps []plannedStep `json:"steps"`
	}
	if err := llm.ExtractInto(resp.Content, &parsed); err != nil {
		return nil, types.WrapError(types.PLANNING_FAILED, "could not parse planned steps", err)
	}
	if len(parsed.Steps) == 0 {
		return nil, types.NewError(types.PLANNING_FAILED, "model produced an empty plan")
	}

	allowed := toSet(agentTypes)
	steps := make([]ledger.PlanStep, 0, len(parsed.Steps))
	for _, ps := range parsed.Steps {
		if !allowed[ps.Agent] {
			return nil, types.NewError(types.PLANNING_FAILED,
				fmt.Sprintf("planned step %q targets unknown agent type %q", ps.ID, ps.Agent))
		}
		task := ledger.NewTask(ps.ID, ps.Description, ps.Agent, nil)
		step := ledger.NewPlanStep(task, ps.DependsOn)
		if ps.Parallel {
			step = step.WithParallel()
		}
		steps = append(steps, step)
	}

	if err := ledger.ValidatePlan(steps); err != nil {
		return nil, types.WrapError(types.PLANNING_FAILED, "model produced an invalid plan", err)
	}

	g.logger.Info("planned goal", "goal", goal, "steps", len(steps))
	return steps, nil
}

const goalPlannerSystemPrompt = "You are a workflow planner. Decompose goals into minimal ordered steps. " +
	"Respond only with JSON matching {\"steps\": [{\"id\": string, \"description\": string, " +
	"\"agent\": string, \"depends_on\": [string], \"parallel\": bool}]}."

func goalPrompt(goal string, agentTypes []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\n\n", goal)
	sb.WriteString("Available agent types:\n")
	for _, t := range agentTypes {
		fmt.Fprintf(&sb, "- %s\n", t)
	}
	sb.WriteString("\nEvery step's \"agent\" must be one of the available agent types. ")
	sb.WriteString("\"depends_on\" lists ids of steps that must complete first.")
	return sb.String()
}

// MarshalPlan renders a plan as indented JSON for display.
func MarshalPlan(steps []ledger.PlanStep) (string, error) {
	raw, err := json.MarshalIndent(steps, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
