package feedback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentive-ai/fleet/internal/types"
)

// Severity labels the urgency of a feedback entry, derived from its rating.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// LearningStrategy tags how an agent should incorporate a feedback entry.
// The tag is advisory metadata; the tracker itself never alters agent
// behavior.
type LearningStrategy string

const (
	StrategyImmediateAdjustment LearningStrategy = "immediate_adjustment"
	StrategyGradualAdjustment   LearningStrategy = "gradual_adjustment"
	StrategyReinforcement       LearningStrategy = "reinforcement"
)

// Entry is one piece of rated feedback about an agent.
type Entry struct {
	ID          types.ID         `json:"id"`
	AgentID     string           `json:"agent_id"`
	Source      string           `json:"source,omitempty"`
	Category    string           `json:"category"`
	Rating      float64          `json:"rating"`
	Description string           `json:"description,omitempty"`
	Suggestions []string         `json:"suggestions,omitempty"`
	Context     map[string]any   `json:"context,omitempty"`
	Severity    Severity         `json:"severity"`
	Strategy    LearningStrategy `json:"strategy"`
	Timestamp   time.Time        `json:"timestamp"`
}

// PerformanceMetrics summarizes an agent's tracked performance.
type PerformanceMetrics struct {
	TasksReceived        int     `json:"tasks_received"`
	TasksCompleted       int     `json:"tasks_completed"`
	TasksFailed          int     `json:"tasks_failed"`
	CompletionRate       float64 `json:"completion_rate"`
	AverageExecutionTime float64 `json:"average_execution_time_seconds"`
	AverageRating        float64 `json:"average_rating"`
	FeedbackCount        int     `json:"feedback_count"`
}

// Trend describes the direction of an agent's recent execution times
// relative to its overall history.
type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendDeclining        Trend = "declining"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

// Insights is a derived read on an agent's performance record.
type Insights struct {
	Trend    Trend    `json:"trend"`
	Concerns []string `json:"concerns,omitempty"`
}

// agentRecord holds per-agent counters and history. Execution times keep the
// full run so overall averages stay exact; trend detection looks at the most
// recent window.
type agentRecord struct {
	entries        []Entry
	tasksReceived  int
	tasksCompleted int
	tasksFailed    int
	executionTimes []float64
	ratingTotal    float64
}

// Tracker records feedback and task outcomes per agent and derives
// performance metrics and insights from them. All state is local to the
// tracker instance.
type Tracker struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	window  int
	records map[string]*agentRecord
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the structured logger used by the tracker.
func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithTrendWindow sets how many recent execution times trend detection
// compares against the overall average. Default 5.
func WithTrendWindow(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.window = n
		}
	}
}

// NewTracker creates an empty feedback tracker.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		logger:  slog.Default(),
		window:  5,
		records: make(map[string]*agentRecord),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record stores a feedback entry, deriving its severity and learning
// strategy from the rating. The rating must be within [0, 1].
func (t *Tracker) Record(entry Entry) (Entry, error) {
	if entry.AgentID == "" {
		return Entry{}, types.NewError(types.MESSAGE_VALIDATION_FAILED, "feedback entry requires an agent ID")
	}
	if entry.Rating < 0 || entry.Rating > 1 {
		return Entry{}, types.NewError(types.MESSAGE_VALIDATION_FAILED,
			fmt.Sprintf("feedback rating %.2f outside [0.0, 1.0]", entry.Rating))
	}

	if entry.ID.IsZero() {
		entry.ID = types.NewID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.Severity = SeverityForRating(entry.Rating)
	entry.Strategy = StrategyForRating(entry.Rating)

	t.mu.Lock()
	rec := t.record(entry.AgentID)
	rec.entries = append(rec.entries, entry)
	rec.ratingTotal += entry.Rating
	t.mu.Unlock()

	t.logger.Debug("recorded feedback",
		"agent_id", entry.AgentID,
		"category", entry.Category,
		"rating", entry.Rating,
		"severity", entry.Severity,
		"strategy", entry.Strategy,
	)
	return entry, nil
}

// TaskReceived counts a task handed to the agent.
func (t *Tracker) TaskReceived(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(agentID).tasksReceived++
}

// TaskCompleted counts a successful task and its execution time.
func (t *Tracker) TaskCompleted(agentID string, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.record(agentID)
	rec.tasksCompleted++
	rec.executionTimes = append(rec.executionTimes, duration.Seconds())
}

// TaskFailed counts a failed task and its execution time.
func (t *Tracker) TaskFailed(agentID string, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.record(agentID)
	rec.tasksFailed++
	rec.executionTimes = append(rec.executionTimes, duration.Seconds())
}

// History returns the agent's feedback entries, newest last. An empty
// category matches everything.
func (t *Tracker) History(agentID, category string) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[agentID]
	if !ok {
		return nil
	}
	var out []Entry
	for _, entry := range rec.entries {
		if category == "" || entry.Category == category {
			out = append(out, entry)
		}
	}
	return out
}

// Metrics returns the agent's current performance metrics. An unknown agent
// yields zero metrics.
func (t *Tracker) Metrics(agentID string) PerformanceMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[agentID]
	if !ok {
		return PerformanceMetrics{}
	}

	m := PerformanceMetrics{
		TasksReceived:  rec.tasksReceived,
		TasksCompleted: rec.tasksCompleted,
		TasksFailed:    rec.tasksFailed,
		FeedbackCount:  len(rec.entries),
	}
	if finished := rec.tasksCompleted + rec.tasksFailed; finished > 0 {
		m.CompletionRate = float64(rec.tasksCompleted) / float64(finished)
	}
	if len(rec.executionTimes) > 0 {
		m.AverageExecutionTime = mean(rec.executionTimes)
	}
	if len(rec.entries) > 0 {
		m.AverageRating = rec.ratingTotal / float64(len(rec.entries))
	}
	return m
}

// Insights derives trend and concern flags for an agent. The trend compares
// the most recent execution times against the overall average; it reports
// insufficient data until at least two windows of history exist.
func (t *Tracker) Insights(agentID string) Insights {
	t.mu.RLock()
	rec, ok := t.records[agentID]
	var times []float64
	if ok {
		times = append([]float64(nil), rec.executionTimes...)
	}
	t.mu.RUnlock()

	metrics := t.Metrics(agentID)

	out := Insights{Trend: TrendInsufficientData}
	if len(times) >= 2*t.window {
		overall := mean(times)
		recent := mean(times[len(times)-t.window:])
		switch {
		case recent < overall*0.9:
			out.Trend = TrendImproving
		case recent > overall*1.1:
			out.Trend = TrendDeclining
		default:
			out.Trend = TrendStable
		}
	}

	finished := metrics.TasksCompleted + metrics.TasksFailed
	if finished > 0 && metrics.CompletionRate < 0.5 {
		out.Concerns = append(out.Concerns,
			fmt.Sprintf("completion rate %.0f%% below 50%%", metrics.CompletionRate*100))
	}
	if metrics.FeedbackCount > 0 && metrics.AverageRating < 0.5 {
		out.Concerns = append(out.Concerns,
			fmt.Sprintf("average feedback rating %.2f below 0.5", metrics.AverageRating))
	}
	return out
}

// record returns the agent's record, creating it if needed. Callers must
// hold t.mu.
func (t *Tracker) record(agentID string) *agentRecord {
	rec, ok := t.records[agentID]
	if !ok {
		rec = &agentRecord{}
		t.records[agentID] = rec
	}
	return rec
}

// SeverityForRating buckets a rating into a severity label.
func SeverityForRating(rating float64) Severity {
	switch {
	case rating < 0.3:
		return SeverityHigh
	case rating < 0.7:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// StrategyForRating selects the learning strategy tag for a rating.
func StrategyForRating(rating float64) LearningStrategy {
	switch {
	case rating < 0.4:
		return StrategyImmediateAdjustment
	case rating >= 0.7:
		return StrategyReinforcement
	default:
		return StrategyGradualAdjustment
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}
