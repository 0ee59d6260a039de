package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agentive-ai/fleet/internal/ledger"
	"github.com/agentive-ai/fleet/internal/llm"
	"github.com/agentive-ai/fleet/internal/types"
)

// LLMAgent is a general-purpose worker backed by a language-model provider.
// It executes tasks, answers queries, and votes in consensus rounds.
type LLMAgent struct {
	id           string
	agentType    string
	provider     llm.Provider
	systemPrompt string
	capability   Capability
	logger       *slog.Logger
}

var (
	_ Agent        = (*LLMAgent)(nil)
	_ QueryHandler = (*LLMAgent)(nil)
	_ Voter        = (*LLMAgent)(nil)
)

// LLMAgentOption configures an LLMAgent.
type LLMAgentOption func(*LLMAgent)

// WithSystemPrompt overrides the agent's system prompt.
func WithSystemPrompt(prompt string) LLMAgentOption {
	return func(a *LLMAgent) {
		if prompt != "" {
			a.systemPrompt = prompt
		}
	}
}

// WithSkills adds skill labels to the agent's reported capabilities.
func WithSkills(skills ...string) LLMAgentOption {
	return func(a *LLMAgent) {
		a.capability.Skills = append(a.capability.Skills, skills...)
	}
}

// WithAgentLogger sets the structured logger used by the agent.
func WithAgentLogger(logger *slog.Logger) LLMAgentOption {
	return func(a *LLMAgent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewLLMAgent creates a language-model-backed agent of the given type.
func NewLLMAgent(id, agentType string, provider llm.Provider, opts ...LLMAgentOption) *LLMAgent {
	a := &LLMAgent{
		id:        id,
		agentType: agentType,
		provider:  provider,
		systemPrompt: fmt.Sprintf(
			"You are %s, a %s agent in a multi-agent system. Complete the work you are given and answer concisely.",
			id, agentType),
		capability: Capability{
			TaskTypes:   []string{agentType},
			Description: fmt.Sprintf("language-model backed %s agent", agentType),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *LLMAgent) ID() string {
	return a.id
}

func (a *LLMAgent) Type() string {
	return a.agentType
}

func (a *LLMAgent) Capabilities() Capability {
	return Capability{
		TaskTypes:   append([]string(nil), a.capability.TaskTypes...),
		Skills:      append([]string(nil), a.capability.Skills...),
		Description: a.capability.Description,
	}
}

// Execute runs one task through the provider. Unsupported task types fail
// before any model call.
func (a *LLMAgent) Execute(ctx context.Context, task ledger.Task) (Result, error) {
	if !a.Capabilities().SupportsTaskType(task.AgentType) {
		return Result{}, types.NewError(types.TASK_TYPE_UNSUPPORTED,
			fmt.Sprintf("agent %s does not support task type %q", a.id, task.AgentType))
	}

	started := time.Now()
	prompt := taskPrompt(task)

	resp, err := a.provider.Complete(ctx, llm.Request{
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: a.systemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
	})
	elapsed := time.Since(started).Seconds()

	if err != nil {
		a.logger.Error("task execution failed", "agent_id", a.id, "task", task.Name, "error", err)
		return Result{
			Status:  ResultFailed,
			Error:   err.Error(),
			Metrics: map[string]float64{"duration_seconds": elapsed},
		}, nil
	}

	return Result{
		Status: ResultCompleted,
		Output: map[string]any{"response": resp.Content},
		Metrics: map[string]float64{
			"duration_seconds": elapsed,
		},
	}, nil
}

// HandleQuery answers a free-form query through the provider.
func (a *LLMAgent) HandleQuery(ctx context.Context, query string, queryContext map[string]any) (any, error) {
	var sb strings.Builder
	sb.WriteString(query)
	if len(queryContext) > 0 {
		raw, err := json.Marshal(queryContext)
		if err == nil {
			sb.WriteString("\n\nContext:\n")
			sb.Write(raw)
		}
	}

	resp, err := a.provider.Complete(ctx, llm.Request{
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: a.systemPrompt},
			{Role: llm.RoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}

// Vote asks the provider to choose among the options and reports the choice
// with a confidence and rationale.
func (a *LLMAgent) Vote(ctx context.Context, topic string, options []any, voteContext map[string]any) (any, float64, string, error) {
	prompt := votePrompt(topic, options, voteContext)

	resp, err := a.provider.Complete(ctx, llm.Request{
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: a.systemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, 0, "", err
	}

	var ballot struct {
		Vote       any     `json:"vote"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	}
	if err := llm.ExtractInto(resp.Content, &ballot); err != nil {
		return nil, 0, "", err
	}
	if ballot.Confidence < 0 || ballot.Confidence > 1 {
		ballot.Confidence = 0.5
	}
	return ballot.Vote, ballot.Confidence, ballot.Rationale, nil
}

// Reset is a no-op; the agent keeps no per-task state.
func (a *LLMAgent) Reset(context.Context) error {
	return nil
}

func taskPrompt(task ledger.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n", task.Name)
	if task.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", task.Description)
	}
	if len(task.Parameters) > 0 {
		raw, err := json.Marshal(task.Parameters)
		if err == nil {
			fmt.Fprintf(&sb, "Parameters: %s\n", raw)
		}
	}
	return sb.String()
}

func votePrompt(topic string, options []any, voteContext map[string]any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "A decision is needed on: %s\n", topic)
	fmt.Fprintf(&sb, "Options:\n")
	for _, opt := range options {
		fmt.Fprintf(&sb, "- %v\n", opt)
	}
	if len(voteContext) > 0 {
		raw, err := json.Marshal(voteContext)
		if err == nil {
			fmt.Fprintf(&sb, "Context: %s\n", raw)
		}
	}
	sb.WriteString("\nRespond with JSON: {\"vote\": <option>, \"confidence\": <0..1>, \"rationale\": <string>}")
	return sb.String()
}
