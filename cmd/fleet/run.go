package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentive-ai/fleet/internal/agent"
	"github.com/agentive-ai/fleet/internal/executor"
	"github.com/agentive-ai/fleet/internal/feedback"
	"github.com/agentive-ai/fleet/internal/llm"
	"github.com/agentive-ai/fleet/internal/message"
	"github.com/agentive-ai/fleet/internal/orchestrator"
	"github.com/agentive-ai/fleet/internal/planner"
	"github.com/agentive-ai/fleet/internal/protocol"
	"github.com/agentive-ai/fleet/internal/types"
)

var (
	runPlanPath string
	runAgents   []string
	runJSON     bool
)

var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Run a goal or a YAML-defined plan",
	Long: `Run executes a workflow to completion, replanning around failed
steps until the replan budget is spent.

With a goal argument, the configured language model decomposes the goal
into a plan across the registered agent types. With --file, the plan is
read from a YAML definition instead and no planning model is needed.`,
	Example: `  # Plan and run a goal with two agent types
  fleet run "summarize the quarterly reports" --agent writer:writing --agent analyst:analysis

  # Run a YAML-defined plan
  fleet run --file plan.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runPlanPath, "file", "f", "", "YAML plan file to execute")
	runCmd.Flags().StringArrayVar(&runAgents, "agent", nil, "Agent to register, as id:type (repeatable)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the full run result as JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	if runPlanPath == "" && len(args) == 0 {
		return types.NewError(types.PLANNING_FAILED, "nothing to run: give a goal or --file")
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}

	manager := agent.NewManager(agent.WithFeedbackTracker(feedback.NewTracker()))

	var pf *planFile
	if runPlanPath != "" {
		pf, err = loadPlanFile(runPlanPath)
		if err != nil {
			return err
		}
		if err := registerFileAgents(manager, pf, provider); err != nil {
			return err
		}
	}
	if err := registerFlagAgents(manager, provider); err != nil {
		return err
	}
	if len(manager.Agents()) == 0 {
		return types.NewError(types.NO_SUITABLE_AGENT,
			"no agents registered: use --agent or declare agents in the plan file")
	}

	// Attach every agent to the message bus so it answers task requests,
	// queries, capability requests, and feedback for the duration of the run.
	bus := message.NewInMemoryBus(message.WithQueueSize(cfg.Bus.QueueSize))
	bus.Start()
	defer bus.Stop()
	for _, a := range manager.Agents() {
		proto := protocol.New(a.ID(), bus,
			protocol.WithRetryPolicy(cfg.Protocol.RetryAttempts, cfg.Protocol.RetryBackoff))
		defer proto.Close()
		agent.NewEndpoint(a, proto, agent.WithEndpointTracker(manager.Tracker()))
	}

	orch := orchestrator.New(manager, planner.NewInMemoryHistory(),
		orchestrator.WithGoalPlanner(planner.NewGoalPlanner(provider, nil)),
		orchestrator.WithMaxReplanAttempts(cfg.Orchestrator.MaxReplanAttempts),
		orchestrator.WithExecutorOptions(
			executor.WithMaxTaskRetries(cfg.Orchestrator.MaxTaskRetries),
			executor.WithReflectionThreshold(cfg.Orchestrator.ReflectionThreshold),
			executor.WithMaxParallel(cfg.Orchestrator.MaxParallel),
		),
	)

	var result *orchestrator.RunResult
	if pf != nil {
		steps, err := pf.toPlanSteps()
		if err != nil {
			return err
		}
		result, err = orch.RunPlan(cmd.Context(), pf.Goal, steps)
		if err != nil {
			return err
		}
	} else {
		result, err = orch.RunGoal(cmd.Context(), args[0])
		if err != nil {
			return err
		}
	}

	if err := printRunResult(cmd, result); err != nil {
		return err
	}
	if result.Status != orchestrator.RunCompleted {
		return types.NewError(types.EXECUTION_FAILED,
			fmt.Sprintf("run finished %s: %s", result.Status, result.Error))
	}
	return nil
}

// registerFileAgents adds the agents a plan file declares, backed by the
// configured provider.
func registerFileAgents(manager *agent.Manager, pf *planFile, provider llm.Provider) error {
	for _, spec := range pf.Agents {
		if spec.ID == "" || spec.Type == "" {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				"plan file agents need both id and type")
		}

		var opts []agent.LLMAgentOption
		if spec.SystemPrompt != "" {
			opts = append(opts, agent.WithSystemPrompt(spec.SystemPrompt))
		}
		if len(spec.Skills) > 0 {
			opts = append(opts, agent.WithSkills(spec.Skills...))
		}

		if err := manager.Register(agent.NewLLMAgent(spec.ID, spec.Type, provider, opts...)); err != nil {
			return err
		}
		if len(spec.Domains) > 0 {
			if err := manager.RegisterSpecialization(spec.ID, spec.Domains); err != nil {
				return err
			}
		}
	}
	return nil
}

// registerFlagAgents adds agents given as repeated --agent id:type flags.
func registerFlagAgents(manager *agent.Manager, provider llm.Provider) error {
	for _, spec := range runAgents {
		id, agentType, ok := strings.Cut(spec, ":")
		if !ok || id == "" || agentType == "" {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("invalid --agent %q, expected id:type", spec))
		}
		if err := manager.Register(agent.NewLLMAgent(id, agentType, provider)); err != nil {
			return err
		}
	}
	return nil
}

// printRunResult renders the run outcome, as JSON with --json or as a
// short human summary otherwise.
func printRunResult(cmd *cobra.Command, result *orchestrator.RunResult) error {
	if runJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Workflow %s: %s\n", result.WorkflowID, result.Status)
	cmd.Printf("  completed: %s\n", joinOrNone(result.CompletedSteps))
	if len(result.FailedSteps) > 0 {
		cmd.Printf("  failed:    %s\n", strings.Join(result.FailedSteps, ", "))
	}
	if len(result.SkippedSteps) > 0 {
		cmd.Printf("  skipped:   %s\n", strings.Join(result.SkippedSteps, ", "))
	}
	if result.ReplanCount > 0 {
		cmd.Printf("  replans:   %d\n", result.ReplanCount)
	}
	if result.Error != "" {
		cmd.Printf("  error:     %s\n", result.Error)
	}
	return nil
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}
