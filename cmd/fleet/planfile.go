package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agentive-ai/fleet/internal/ledger"
	"github.com/agentive-ai/fleet/internal/types"
)

// planFile is the YAML shape of a plan definition. Steps reference each
// other by name; agents declared here are added to the run's agent pool.
type planFile struct {
	Goal   string          `yaml:"goal"`
	Agents []agentSpec     `yaml:"agents,omitempty"`
	Steps  []planStepEntry `yaml:"steps"`
}

type agentSpec struct {
	ID           string   `yaml:"id"`
	Type         string   `yaml:"type"`
	SystemPrompt string   `yaml:"system_prompt,omitempty"`
	Skills       []string `yaml:"skills,omitempty"`
	Domains      []string `yaml:"domains,omitempty"`
}

type planStepEntry struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Agent       string         `yaml:"agent"`
	Parameters  map[string]any `yaml:"parameters,omitempty"`
	Priority    int            `yaml:"priority,omitempty"`
	Parallel    bool           `yaml:"parallel,omitempty"`
	DependsOn   []string       `yaml:"depends_on,omitempty"`
	When        *conditionSpec `yaml:"when,omitempty"`
}

type conditionSpec struct {
	Step   string `yaml:"step"`
	Field  string `yaml:"field,omitempty"`
	Equals any    `yaml:"equals,omitempty"`
}

// loadPlanFile reads and validates a YAML plan definition.
func loadPlanFile(path string) (*planFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.PLAN_INVALID,
			fmt.Sprintf("failed to read plan file %s", path), err)
	}

	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, types.WrapError(types.PLAN_INVALID,
			fmt.Sprintf("failed to parse plan file %s", path), err)
	}

	if pf.Goal == "" {
		return nil, types.NewError(types.PLAN_INVALID, "plan file has no goal")
	}
	if len(pf.Steps) == 0 {
		return nil, types.NewError(types.PLAN_INVALID, "plan file has no steps")
	}
	return &pf, nil
}

// toPlanSteps converts plan file entries to executable plan steps and
// validates the dependency graph.
func (pf *planFile) toPlanSteps() ([]ledger.PlanStep, error) {
	steps := make([]ledger.PlanStep, 0, len(pf.Steps))
	for _, entry := range pf.Steps {
		task := ledger.NewTask(entry.Name, entry.Description, entry.Agent, entry.Parameters)
		if entry.Priority != 0 {
			task = task.WithPriority(entry.Priority)
		}

		step := ledger.NewPlanStep(task, entry.DependsOn)
		if entry.Parallel {
			step = step.WithParallel()
		}
		if entry.When != nil {
			step = step.WithCondition(ledger.Condition{
				StepName: entry.When.Step,
				Field:    entry.When.Field,
				Equals:   entry.When.Equals,
			})
		}
		steps = append(steps, step)
	}

	if err := ledger.ValidatePlan(steps); err != nil {
		return nil, err
	}
	return steps, nil
}
