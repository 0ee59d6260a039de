package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentive-ai/fleet/internal/llm"
	"github.com/agentive-ai/fleet/internal/planner"
	"github.com/agentive-ai/fleet/internal/types"
)

var (
	planFilePath   string
	planAgentTypes []string
)

var planCmd = &cobra.Command{
	Use:   "plan [goal]",
	Short: "Generate or validate a plan without running it",
	Long: `Plan prints the dependency-ordered plan for a goal without
executing anything.

With a goal argument, the configured language model decomposes the goal
across the agent types given with --agent-types. With --file, the YAML
plan definition is parsed and validated instead.`,
	Example: `  # Preview the plan for a goal
  fleet plan "index the support backlog" --agent-types research,writing

  # Validate a plan file and print its normalized form
  fleet plan --file plan.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planFilePath, "file", "f", "", "YAML plan file to validate")
	planCmd.Flags().StringSliceVar(&planAgentTypes, "agent-types", nil, "Agent types available to the planner")
}

func runPlan(cmd *cobra.Command, args []string) error {
	if planFilePath != "" {
		pf, err := loadPlanFile(planFilePath)
		if err != nil {
			return err
		}
		steps, err := pf.toPlanSteps()
		if err != nil {
			return err
		}

		out, err := planner.MarshalPlan(steps)
		if err != nil {
			return err
		}
		cmd.Println(out)
		return nil
	}

	if len(args) == 0 {
		return types.NewError(types.PLANNING_FAILED, "nothing to plan: give a goal or --file")
	}
	if len(planAgentTypes) == 0 {
		return types.NewError(types.PLANNING_FAILED,
			"goal planning needs --agent-types, e.g. --agent-types research,writing")
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}

	gp := planner.NewGoalPlanner(provider, nil)
	steps, err := gp.PlanGoal(cmd.Context(), strings.TrimSpace(args[0]), planAgentTypes)
	if err != nil {
		return err
	}

	out, err := planner.MarshalPlan(steps)
	if err != nil {
		return err
	}
	cmd.Println(out)
	return nil
}
