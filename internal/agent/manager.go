package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/agentive-ai/fleet/internal/feedback"
	"github.com/agentive-ai/fleet/internal/ledger"
	"github.com/agentive-ai/fleet/internal/types"
)

// Manager keeps the registry of available agents and picks the best
// candidate for each task.
type Manager struct {
	mu              sync.RWMutex
	agents          map[string]Agent
	specializations map[string][]string

	tracker *feedback.Tracker
	logger  *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the structured logger used by the manager.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithFeedbackTracker wires a feedback tracker into selection scoring.
func WithFeedbackTracker(tracker *feedback.Tracker) ManagerOption {
	return func(m *Manager) {
		if tracker != nil {
			m.tracker = tracker
		}
	}
}

// NewManager creates an empty agent manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		agents:          make(map[string]Agent),
		specializations: make(map[string][]string),
		tracker:         feedback.NewTracker(),
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tracker returns the feedback tracker used for selection scoring.
func (m *Manager) Tracker() *feedback.Tracker {
	return m.tracker
}

// Register adds an agent to the registry. Agent IDs must be unique.
func (m *Manager) Register(a Agent) error {
	if a == nil || a.ID() == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "agent must have a non-empty ID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.agents[a.ID()]; exists {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("agent %q is already registered", a.ID()))
	}
	m.agents[a.ID()] = a

	m.logger.Info("registered agent", "agent_id", a.ID(), "agent_type", a.Type())
	return nil
}

// Unregister removes an agent and its specializations from the registry.
func (m *Manager) Unregister(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.agents, agentID)
	delete(m.specializations, agentID)
}

// Get returns the agent with the given ID, or nil.
func (m *Manager) Get(agentID string) Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agents[agentID]
}

// Agents returns all registered agents.
func (m *Manager) Agents() []Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a)
	}
	return out
}

// RegisterSpecialization records domains an agent is particularly suited
// for. Domains boost selection when a task carries a matching domain.
func (m *Manager) RegisterSpecialization(agentID string, domains []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.agents[agentID]; !exists {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("cannot specialize unknown agent %q", agentID))
	}
	m.specializations[agentID] = append(m.specializations[agentID], domains...)
	return nil
}

// SelectAgentForTask picks the highest-scoring plausible agent for a task.
// It returns nil when no registered agent can plausibly handle it; absence
// of a candidate is an answer, not an error.
func (m *Manager) SelectAgentForTask(ctx context.Context, task ledger.Task, taskContext map[string]any) Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		best      Agent
		bestScore float64
	)
	for _, candidate := range m.agents {
		score := m.score(candidate, task, taskContext)
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}

	if best == nil {
		m.logger.Warn("no suitable agent for task",
			"task", task.Name,
			"agent_type", task.AgentType,
		)
		return nil
	}

	m.logger.Debug("selected agent for task",
		"task", task.Name,
		"agent_id", best.ID(),
		"score", bestScore,
	)
	return best
}

// score rates one candidate for a task. Type match dominates, capability
// coverage and specialization refine, historical performance breaks ties.
// A zero score means the candidate is not plausible at all.
func (m *Manager) score(candidate Agent, task ledger.Task, taskContext map[string]any) float64 {
	var score float64

	if candidate.Type() == task.AgentType {
		score += 2.0
	}
	if candidate.Capabilities().SupportsTaskType(task.AgentType) {
		score += 1.0
	}
	if score == 0 {
		return 0
	}

	if domain, ok := taskContext["domain"].(string); ok {
		for _, d := range m.specializations[candidate.ID()] {
			if d == domain {
				score += 0.5
				break
			}
		}
	}

	metrics := m.tracker.Metrics(candidate.ID())
	score += metrics.CompletionRate * 0.5
	score += metrics.AverageRating * 0.25

	return score
}

// ResetAgentState resets an agent and logs the outcome.
func (m *Manager) ResetAgentState(ctx context.Context, a Agent) error {
	if a == nil {
		return nil
	}
	if err := a.Reset(ctx); err != nil {
		m.logger.Error("agent reset failed", "agent_id", a.ID(), "error", err)
		return err
	}
	m.logger.Debug("agent state reset", "agent_id", a.ID())
	return nil
}
