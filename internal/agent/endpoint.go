package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentive-ai/fleet/internal/feedback"
	"github.com/agentive-ai/fleet/internal/ledger"
	"github.com/agentive-ai/fleet/internal/message"
	"github.com/agentive-ai/fleet/internal/protocol"
	"github.com/agentive-ai/fleet/internal/types"
)

// Endpoint makes an agent reachable over the communication protocol in
// addition to direct calls. It registers handlers for task requests,
// queries, capability requests, and feedback, translating between message
// content and the agent's methods.
type Endpoint struct {
	agent   Agent
	proto   *protocol.Protocol
	tracker *feedback.Tracker
	logger  *slog.Logger
}

// EndpointOption configures an Endpoint.
type EndpointOption func(*Endpoint)

// WithEndpointTracker records task outcomes and incoming feedback on a
// shared tracker instead of the endpoint's own.
func WithEndpointTracker(tracker *feedback.Tracker) EndpointOption {
	return func(e *Endpoint) {
		if tracker != nil {
			e.tracker = tracker
		}
	}
}

// WithEndpointLogger sets the structured logger used by the endpoint.
func WithEndpointLogger(logger *slog.Logger) EndpointOption {
	return func(e *Endpoint) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEndpoint wires the agent's message handlers into the protocol.
func NewEndpoint(a Agent, proto *protocol.Protocol, opts ...EndpointOption) *Endpoint {
	e := &Endpoint{
		agent:   a,
		proto:   proto,
		tracker: feedback.NewTracker(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	proto.RegisterHandler(message.TypeTaskRequest, e.handleTaskRequest)
	proto.RegisterHandler(message.TypeQuery, e.handleQuery)
	proto.RegisterHandler(message.TypeCapabilityRequest, e.handleCapabilityRequest)
	proto.RegisterHandler(message.TypeFeedback, e.handleFeedback)
	return e
}

// Tracker returns the tracker recording this endpoint's task outcomes.
func (e *Endpoint) Tracker() *feedback.Tracker {
	return e.tracker
}

// handleTaskRequest executes the requested task and replies with a
// TASK_RESPONSE. Execution failures are reported in the response status,
// never as a handler error.
func (e *Endpoint) handleTaskRequest(ctx context.Context, msg message.Message) error {
	description, _ := msg.Content["task_description"].(string)
	parameters, _ := msg.Content["parameters"].(map[string]any)

	task := ledger.NewTask(description, description, e.agent.Type(), parameters)
	if raw, ok := msg.Content["deadline"].(string); ok && raw != "" {
		if deadline, err := time.Parse(time.RFC3339, raw); err == nil {
			task = task.WithDeadline(deadline)
		}
	}

	e.logger.Info("received task request",
		"agent_id", e.agent.ID(),
		"sender", msg.Sender,
	)

	e.tracker.TaskReceived(e.agent.ID())
	start := time.Now()
	result, err := e.agent.Execute(ctx, task)
	elapsed := time.Since(start)

	status := string(result.Status)
	errText := result.Error
	if err != nil {
		status = string(ResultFailed)
		errText = err.Error()
	}
	if status == string(ResultFailed) {
		e.tracker.TaskFailed(e.agent.ID(), elapsed)
	} else {
		e.tracker.TaskCompleted(e.agent.ID(), elapsed)
	}

	metrics := make(map[string]any, len(result.Metrics))
	for name, value := range result.Metrics {
		metrics[name] = value
	}

	_, sendErr := e.proto.SendTaskResponse(ctx, msg.ID, msg.Sender, status, result.Output, errText, metrics)
	return sendErr
}

// handleQuery answers a query through the agent's QueryHandler. Agents
// without query support reject the message, which surfaces as an ERROR
// reply to the sender.
func (e *Endpoint) handleQuery(ctx context.Context, msg message.Message) error {
	handler, ok := e.agent.(QueryHandler)
	if !ok {
		return types.NewError(types.UNHANDLED_MESSAGE_TYPE,
			fmt.Sprintf("agent %s does not answer queries", e.agent.ID()))
	}

	query, _ := msg.Content["query"].(string)
	queryContext, _ := msg.Content["context"].(map[string]any)

	result, err := handler.HandleQuery(ctx, query, queryContext)
	if err != nil {
		return err
	}

	_, sendErr := e.proto.SendQueryResponse(ctx, msg.ID, msg.Sender, result, 1.0, e.agent.ID())
	return sendErr
}

// handleCapabilityRequest reports the agent's capabilities and tracked
// performance metrics.
func (e *Endpoint) handleCapabilityRequest(ctx context.Context, msg message.Message) error {
	caps := e.agent.Capabilities()
	capabilities := []map[string]any{{
		"agent_type":  e.agent.Type(),
		"task_types":  caps.TaskTypes,
		"skills":      caps.Skills,
		"description": caps.Description,
	}}

	metrics := e.tracker.Metrics(e.agent.ID())
	performance := map[string]any{
		"tasks_received":  metrics.TasksReceived,
		"tasks_completed": metrics.TasksCompleted,
		"tasks_failed":    metrics.TasksFailed,
		"completion_rate": metrics.CompletionRate,
	}

	_, err := e.proto.SendCapabilityResponse(ctx, msg.ID, msg.Sender, capabilities, performance, nil)
	return err
}

// handleFeedback records rated feedback about this agent on the tracker.
func (e *Endpoint) handleFeedback(ctx context.Context, msg message.Message) error {
	category, _ := msg.Content["category"].(string)
	rating, _ := msg.Content["rating"].(float64)
	description, _ := msg.Content["description"].(string)
	feedbackContext, _ := msg.Content["context"].(map[string]any)

	_, err := e.tracker.Record(feedback.Entry{
		AgentID:     e.agent.ID(),
		Source:      msg.Sender,
		Category:    category,
		Rating:      rating,
		Description: description,
		Suggestions: stringSlice(msg.Content["improvement_suggestions"]),
		Context:     feedbackContext,
	})
	return err
}

// stringSlice tolerates both []string and the []any a decoded content map
// may carry.
func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if text, ok := item.(string); ok {
				out = append(out, text)
			}
		}
		return out
	default:
		return nil
	}
}
