package planner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentive-ai/fleet/internal/ledger"
	"github.com/agentive-ai/fleet/internal/types"
)

// Version is one immutable revision of a workflow's plan. Replanning creates
// a new version pointing at its parent; versions are never edited in place.
type Version struct {
	ID          types.ID          `json:"id"`
	WorkflowID  types.ID          `json:"workflow_id"`
	Steps       []ledger.PlanStep `json:"steps"`
	CreatedBy   string            `json:"created_by"`
	Description string            `json:"description,omitempty"`
	ParentID    types.ID          `json:"parent_id,omitempty"`
	Context     map[string]any    `json:"context,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// StepResult is the recorded outcome of one step within an execution.
type StepResult struct {
	StepName   string             `json:"step_name"`
	Status     string             `json:"status"`
	Output     map[string]any     `json:"output,omitempty"`
	Error      string             `json:"error,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	RecordedAt time.Time          `json:"recorded_at"`
}

// Execution is one run of a workflow version.
type Execution struct {
	ID          types.ID     `json:"id"`
	WorkflowID  types.ID     `json:"workflow_id"`
	VersionID   types.ID     `json:"version_id"`
	Status      string       `json:"status"`
	StepResults []StepResult `json:"step_results,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// History stores workflow versions and execution records.
type History interface {
	// CreateVersion appends a new version for a workflow and returns its ID.
	CreateVersion(ctx context.Context, workflowID types.ID, steps []ledger.PlanStep, createdBy, description string, parentID types.ID, versionContext map[string]any) (types.ID, error)

	// GetVersion returns a specific version, or the current (latest) version
	// when versionID is zero.
	GetVersion(ctx context.Context, workflowID, versionID types.ID) (Version, error)

	// StartExecution opens an execution record against a version.
	StartExecution(ctx context.Context, workflowID, versionID types.ID) (Execution, error)

	// RecordStepResult appends a step outcome to an open execution.
	RecordStepResult(ctx context.Context, executionID types.ID, result StepResult) error

	// CompleteExecution closes an execution with its final status.
	CompleteExecution(ctx context.Context, executionID types.ID, status string) error

	// GetExecution returns an execution record by ID.
	GetExecution(ctx context.Context, executionID types.ID) (Execution, error)
}

// InMemoryHistory is the in-process History implementation. Durable storage
// lives behind the same interface in external collaborators.
type InMemoryHistory struct {
	mu         sync.RWMutex
	versions   map[types.ID][]Version
	executions map[types.ID]*Execution
}

var _ History = (*InMemoryHistory)(nil)

// NewInMemoryHistory creates an empty history store.
func NewInMemoryHistory() *InMemoryHistory {
	return &InMemoryHistory{
		versions:   make(map[types.ID][]Version),
		executions: make(map[types.ID]*Execution),
	}
}

func (h *InMemoryHistory) CreateVersion(_ context.Context, workflowID types.ID, steps []ledger.PlanStep, createdBy, description string, parentID types.ID, versionContext map[string]any) (types.ID, error) {
	version := Version{
		ID:          types.NewID(),
		WorkflowID:  workflowID,
		Steps:       append([]ledger.PlanStep(nil), steps...),
		CreatedBy:   createdBy,
		Description: description,
		ParentID:    parentID,
		Context:     versionContext,
		CreatedAt:   time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.versions[workflowID] = append(h.versions[workflowID], version)
	return version.ID, nil
}

func (h *InMemoryHistory) GetVersion(_ context.Context, workflowID, versionID types.ID) (Version, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	versions := h.versions[workflowID]
	if len(versions) == 0 {
		return Version{}, types.NewError(types.VERSION_NOT_FOUND,
			fmt.Sprintf("workflow %s has no versions", workflowID))
	}

	if versionID.IsZero() {
		return versions[len(versions)-1], nil
	}
	for _, v := range versions {
		if v.ID == versionID {
			return v, nil
		}
	}
	return Version{}, types.NewError(types.VERSION_NOT_FOUND,
		fmt.Sprintf("version %s not found for workflow %s", versionID, workflowID))
}

func (h *InMemoryHistory) StartExecution(ctx context.Context, workflowID, versionID types.ID) (Execution, error) {
	version, err := h.GetVersion(ctx, workflowID, versionID)
	if err != nil {
		return Execution{}, err
	}

	execution := &Execution{
		ID:         types.NewID(),
		WorkflowID: workflowID,
		VersionID:  version.ID,
		Status:     "running",
		StartedAt:  time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.executions[execution.ID] = execution
	return *execution, nil
}

func (h *InMemoryHistory) RecordStepResult(_ context.Context, executionID types.ID, result StepResult) error {
	if result.RecordedAt.IsZero() {
		result.RecordedAt = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	execution, ok := h.executions[executionID]
	if !ok {
		return types.NewError(types.EXECUTION_FAILED,
			fmt.Sprintf("unknown execution %s", executionID))
	}
	execution.StepResults = append(execution.StepResults, result)
	return nil
}

func (h *InMemoryHistory) CompleteExecution(_ context.Context, executionID types.ID, status string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	execution, ok := h.executions[executionID]
	if !ok {
		return types.NewError(types.EXECUTION_FAILED,
			fmt.Sprintf("unknown execution %s", executionID))
	}
	now := time.Now()
	execution.Status = status
	execution.CompletedAt = &now
	return nil
}

func (h *InMemoryHistory) GetExecution(_ context.Context, executionID types.ID) (Execution, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	execution, ok := h.executions[executionID]
	if !ok {
		return Execution{}, types.NewError(types.EXECUTION_FAILED,
			fmt.Sprintf("unknown execution %s", executionID))
	}
	out := *execution
	out.StepResults = append([]StepResult(nil), execution.StepResults...)
	return out, nil
}
