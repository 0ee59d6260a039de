package ledger

import (
	"sync"
	"time"

	"github.com/agentive-ai/fleet/internal/types"
)

// WorkflowStatus is the rolled-up execution status derived from progress
// entries.
type WorkflowStatus string

const (
	StatusNotStarted WorkflowStatus = "not_started"
	StatusRunning    WorkflowStatus = "running"
	StatusStalled    WorkflowStatus = "stalled"
	StatusCompleted  WorkflowStatus = "completed"
	StatusFailed     WorkflowStatus = "failed"
)

// ProgressEntry is one observation appended to the progress log.
type ProgressEntry struct {
	ID        types.ID           `json:"id"`
	TaskName  string             `json:"task_name,omitempty"`
	Status    TaskStatus         `json:"status"`
	Message   string             `json:"message,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// MetricSummary aggregates one numeric metric across progress entries.
type MetricSummary struct {
	Count   int     `json:"count"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
}

// ProgressLedger is an append-only log of execution progress. Entries are
// never rewritten; all views (current status, per-task history, metric
// summaries) are derived from the flat log.
type ProgressLedger struct {
	mu       sync.RWMutex
	entries  []ProgressEntry
	byTask   map[string][]int
	status   WorkflowStatus
	terminal bool
}

// NewProgressLedger creates an empty progress ledger.
func NewProgressLedger() *ProgressLedger {
	return &ProgressLedger{
		byTask: make(map[string][]int),
		status: StatusNotStarted,
	}
}

// Record appends a progress entry and returns it with its assigned ID and
// timestamp.
func (l *ProgressLedger) Record(taskName string, status TaskStatus, msg string, metrics map[string]float64) ProgressEntry {
	entry := ProgressEntry{
		ID:        types.NewID(),
		TaskName:  taskName,
		Status:    status,
		Message:   msg,
		Metrics:   metrics,
		Timestamp: time.Now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if taskName != "" {
		l.byTask[taskName] = append(l.byTask[taskName], len(l.entries)-1)
	}
	if !l.terminal {
		l.status = rollupStatus(status)
	}
	return entry
}

// MarkStalled flags the workflow as stalled without attributing the stall to
// a particular task.
func (l *ProgressLedger) MarkStalled(reason string) ProgressEntry {
	entry := ProgressEntry{
		ID:        types.NewID(),
		Status:    TaskStatusInProgress,
		Message:   reason,
		Timestamp: time.Now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if !l.terminal {
		l.status = StatusStalled
	}
	return entry
}

// MarkCompleted marks the overall workflow as completed.
func (l *ProgressLedger) MarkCompleted(msg string) ProgressEntry {
	return l.markTerminal(StatusCompleted, TaskStatusCompleted, msg)
}

// MarkFailed marks the overall workflow as failed.
func (l *ProgressLedger) MarkFailed(msg string) ProgressEntry {
	return l.markTerminal(StatusFailed, TaskStatusFailed, msg)
}

func (l *ProgressLedger) markTerminal(overall WorkflowStatus, status TaskStatus, msg string) ProgressEntry {
	entry := ProgressEntry{
		ID:        types.NewID(),
		Status:    status,
		Message:   msg,
		Timestamp: time.Now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	l.status = overall
	l.terminal = true
	return entry
}

// CurrentStatus returns the rolled-up workflow status.
func (l *ProgressLedger) CurrentStatus() WorkflowStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Entries returns a copy of the full progress log in append order.
func (l *ProgressLedger) Entries() []ProgressEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]ProgressEntry(nil), l.entries...)
}

// EntriesForTask returns the progress entries recorded for one task, in
// append order.
func (l *ProgressLedger) EntriesForTask(taskName string) []ProgressEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	indexes := l.byTask[taskName]
	out := make([]ProgressEntry, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, l.entries[i])
	}
	return out
}

// FailedEntries returns every entry recorded with a failed status.
func (l *ProgressLedger) FailedEntries() []ProgressEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []ProgressEntry
	for _, entry := range l.entries {
		if entry.Status == TaskStatusFailed {
			out = append(out, entry)
		}
	}
	return out
}

// SuccessRate returns completed entries over completed-plus-failed entries.
// It returns 0 when nothing has finished.
func (l *ProgressLedger) SuccessRate() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var completed, failed int
	for _, entry := range l.entries {
		switch entry.Status {
		case TaskStatusCompleted:
			completed++
		case TaskStatusFailed:
			failed++
		}
	}
	if completed+failed == 0 {
		return 0
	}
	return float64(completed) / float64(completed+failed)
}

// MetricsSummary aggregates every numeric metric seen across the log.
func (l *ProgressLedger) MetricsSummary() map[string]MetricSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]MetricSummary)
	for _, entry := range l.entries {
		for name, value := range entry.Metrics {
			s, seen := out[name]
			if !seen {
				s = MetricSummary{Min: value, Max: value}
			}
			s.Count++
			s.Total += value
			if value < s.Min {
				s.Min = value
			}
			if value > s.Max {
				s.Max = value
			}
			out[name] = s
		}
	}
	for name, s := range out {
		s.Average = s.Total / float64(s.Count)
		out[name] = s
	}
	return out
}

// rollupStatus maps per-task activity onto the live workflow status. Task
// failures do not end the run here; the executor decides when the workflow
// as a whole is finished and records that through MarkCompleted or
// MarkFailed.
func rollupStatus(incoming TaskStatus) WorkflowStatus {
	switch incoming {
	case TaskStatusFailed:
		return StatusStalled
	default:
		return StatusRunning
	}
}
