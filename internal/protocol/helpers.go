package protocol

import (
	"context"
	"time"

	"github.com/agentive-ai/fleet/internal/message"
	"github.com/agentive-ai/fleet/internal/types"
)

// Typed convenience wrappers over SendMessage. Each assembles the content
// schema for its message type; none contain independent business logic.

// RequestTask asks another agent to perform a task.
func (p *Protocol) RequestTask(ctx context.Context, recipient, taskDescription string, parameters map[string]any, constraints map[string]any, deadline *time.Time) (types.ID, error) {
	if parameters == nil {
		parameters = map[string]any{}
	}
	content := map[string]any{
		"task_description": taskDescription,
		"parameters":       parameters,
		"constraints":      orEmptyMap(constraints),
		"deadline":         isoOrNil(deadline),
	}
	return p.SendMessage(ctx, recipient, message.TypeTaskRequest, content, SendOptions{})
}

// SendTaskResponse replies to a task request, correlated by the request's
// message ID.
func (p *Protocol) SendTaskResponse(ctx context.Context, requestID types.ID, recipient, status string, result map[string]any, errText string, metrics map[string]any) (types.ID, error) {
	content := map[string]any{
		"status":  status,
		"result":  orEmptyMap(result),
		"error":   errText,
		"metrics": orEmptyMap(metrics),
	}
	return p.SendMessage(ctx, recipient, message.TypeTaskResponse, content, SendOptions{CorrelationID: requestID})
}

// QueryAgent queries another agent for information.
func (p *Protocol) QueryAgent(ctx context.Context, recipient, query string, queryContext map[string]any, requiredFormat string) (types.ID, error) {
	content := map[string]any{
		"query":           query,
		"context":         orEmptyMap(queryContext),
		"required_format": requiredFormat,
	}
	return p.SendMessage(ctx, recipient, message.TypeQuery, content, SendOptions{})
}

// SendQueryResponse replies to a query.
func (p *Protocol) SendQueryResponse(ctx context.Context, queryID types.ID, recipient string, result any, confidence float64, source string) (types.ID, error) {
	content := map[string]any{
		"result":     result,
		"confidence": confidence,
		"source":     source,
	}
	return p.SendMessage(ctx, recipient, message.TypeQueryResponse, content, SendOptions{CorrelationID: queryID})
}

// SendStatusUpdate reports this agent's current status to another agent.
func (p *Protocol) SendStatusUpdate(ctx context.Context, recipient, status string, details, resources map[string]any) (types.ID, error) {
	content := map[string]any{
		"status":    status,
		"details":   orEmptyMap(details),
		"resources": orEmptyMap(resources),
	}
	return p.SendMessage(ctx, recipient, message.TypeStatusUpdate, content, SendOptions{})
}

// SendError sends a standardized error message. Error messages are sent with
// high priority.
func (p *Protocol) SendError(ctx context.Context, recipient string, payload message.ErrorPayload, correlationID types.ID) (types.ID, error) {
	return p.SendMessage(ctx, recipient, message.TypeError, payload.ToContent(), SendOptions{
		Priority:      message.PriorityHigh,
		CorrelationID: correlationID,
	})
}

// RequestCapabilities asks another agent to report its capabilities.
func (p *Protocol) RequestCapabilities(ctx context.Context, recipient string, capabilityTypes []string, detailLevel string) (types.ID, error) {
	if detailLevel == "" {
		detailLevel = "basic"
	}
	content := map[string]any{
		"capability_types": capabilityTypes,
		"detail_level":     detailLevel,
	}
	return p.SendMessage(ctx, recipient, message.TypeCapabilityRequest, content, SendOptions{})
}

// SendCapabilityResponse replies to a capability request.
func (p *Protocol) SendCapabilityResponse(ctx context.Context, requestID types.ID, recipient string, capabilities []map[string]any, performanceMetrics, limitations map[string]any) (types.ID, error) {
	content := map[string]any{
		"capabilities":        capabilities,
		"performance_metrics": orEmptyMap(performanceMetrics),
		"limitations":         orEmptyMap(limitations),
	}
	return p.SendMessage(ctx, recipient, message.TypeCapabilityResponse, content, SendOptions{CorrelationID: requestID})
}

// AnnounceDiscovery announces this agent's presence and capabilities,
// typically to a registry agent.
func (p *Protocol) AnnounceDiscovery(ctx context.Context, recipient, agentID, agentType string, capabilities []string, status string, resources, metadata map[string]any) (types.ID, error) {
	if status == "" {
		status = "active"
	}
	content := map[string]any{
		"agent_id":     agentID,
		"agent_type":   agentType,
		"capabilities": capabilities,
		"status":       status,
		"resources":    orEmptyMap(resources),
		"metadata":     orEmptyMap(metadata),
	}
	return p.SendMessage(ctx, recipient, message.TypeAgentDiscovery, content, SendOptions{})
}

// ConsensusRequestSpec describes a consensus round for RequestConsensus.
type ConsensusRequestSpec struct {
	ConsensusID     types.ID
	Topic           string
	Options         []any
	Context         map[string]any
	VotingMechanism string
	MinParticipants int
	Deadline        *time.Time
}

// RequestConsensus multicasts a consensus request to every recipient.
// It returns the per-recipient message IDs.
func (p *Protocol) RequestConsensus(ctx context.Context, recipients []string, spec ConsensusRequestSpec) (map[string]types.ID, error) {
	content := map[string]any{
		"consensus_id":     spec.ConsensusID.String(),
		"topic":            spec.Topic,
		"options":          spec.Options,
		"context":          orEmptyMap(spec.Context),
		"voting_mechanism": spec.VotingMechanism,
		"min_participants": spec.MinParticipants,
		"voting_deadline":  isoOrNil(spec.Deadline),
	}

	messageIDs := make(map[string]types.ID, len(recipients))
	for _, recipient := range recipients {
		id, err := p.SendMessage(ctx, recipient, message.TypeConsensusRequest, content, SendOptions{})
		if err != nil {
			return messageIDs, err
		}
		messageIDs[recipient] = id
	}
	return messageIDs, nil
}

// SendConsensusVote casts a vote in a consensus process, correlated to the
// original request message.
func (p *Protocol) SendConsensusVote(ctx context.Context, requestID types.ID, recipient string, consensusID types.ID, vote any, confidence float64, rationale string) (types.ID, error) {
	content := map[string]any{
		"consensus_id": consensusID.String(),
		"vote":         vote,
		"confidence":   confidence,
		"rationale":    rationale,
	}
	return p.SendMessage(ctx, recipient, message.TypeConsensusVote, content, SendOptions{CorrelationID: requestID})
}

// SendConsensusResult broadcasts the tallied result of a consensus process
// to all participants.
func (p *Protocol) SendConsensusResult(ctx context.Context, recipients []string, consensusID types.ID, result any, voteDistribution map[string]any, confidence float64, participantCount int) (map[string]types.ID, error) {
	content := map[string]any{
		"consensus_id":      consensusID.String(),
		"result":            result,
		"vote_distribution": orEmptyMap(voteDistribution),
		"confidence":        confidence,
		"participant_count": participantCount,
	}

	messageIDs := make(map[string]types.ID, len(recipients))
	for _, recipient := range recipients {
		id, err := p.SendMessage(ctx, recipient, message.TypeConsensusResult, content, SendOptions{})
		if err != nil {
			return messageIDs, err
		}
		messageIDs[recipient] = id
	}
	return messageIDs, nil
}

// NotifyConflict notifies agents about a conflict. Conflict notifications
// are sent with high priority.
func (p *Protocol) NotifyConflict(ctx context.Context, recipients []string, conflictType, description string, parties []string, impact map[string]any, resolutionDeadline *time.Time) (map[string]types.ID, error) {
	content := map[string]any{
		"conflict_type":       conflictType,
		"description":         description,
		"parties":             parties,
		"impact":              orEmptyMap(impact),
		"resolution_deadline": isoOrNil(resolutionDeadline),
	}

	messageIDs := make(map[string]types.ID, len(recipients))
	for _, recipient := range recipients {
		id, err := p.SendMessage(ctx, recipient, message.TypeConflictNotification, content, SendOptions{Priority: message.PriorityHigh})
		if err != nil {
			return messageIDs, err
		}
		messageIDs[recipient] = id
	}
	return messageIDs, nil
}

// SendConflictResolution distributes a conflict resolution to the involved
// agents.
func (p *Protocol) SendConflictResolution(ctx context.Context, recipients []string, conflictID types.ID, resolution, rationale string, requiredActions map[string][]string, verificationMethod string) (map[string]types.ID, error) {
	content := map[string]any{
		"conflict_id":         conflictID.String(),
		"resolution":          resolution,
		"rationale":           rationale,
		"required_actions":    requiredActions,
		"verification_method": verificationMethod,
	}

	messageIDs := make(map[string]types.ID, len(recipients))
	for _, recipient := range recipients {
		id, err := p.SendMessage(ctx, recipient, message.TypeConflictResolution, content, SendOptions{Priority: message.PriorityHigh})
		if err != nil {
			return messageIDs, err
		}
		messageIDs[recipient] = id
	}
	return messageIDs, nil
}

// SendFeedback sends rated feedback to another agent. The severity bucket is
// derived from the rating: below 0.3 high, below 0.7 medium, otherwise low.
func (p *Protocol) SendFeedback(ctx context.Context, recipient, category string, rating float64, description string, suggestions []string, feedbackContext map[string]any) (types.ID, error) {
	if suggestions == nil {
		suggestions = []string{}
	}
	content := map[string]any{
		"category":                category,
		"rating":                  rating,
		"description":             description,
		"improvement_suggestions": suggestions,
		"context":                 orEmptyMap(feedbackContext),
		"severity":                severityForRating(rating),
	}
	return p.SendMessage(ctx, recipient, message.TypeFeedback, content, SendOptions{})
}

// RequestCoordination asks another agent to coordinate activities.
func (p *Protocol) RequestCoordination(ctx context.Context, recipient, coordinationType string, activities []map[string]any, constraints map[string]any, dependencies map[string][]string, priority message.Priority) (types.ID, error) {
	content := map[string]any{
		"coordination_type": coordinationType,
		"activities":        activities,
		"constraints":       orEmptyMap(constraints),
		"dependencies":      dependencies,
	}
	return p.SendMessage(ctx, recipient, message.TypeCoordinationRequest, content, SendOptions{Priority: priority})
}

// SendCoordinationResponse replies to a coordination request.
func (p *Protocol) SendCoordinationResponse(ctx context.Context, requestID types.ID, recipient string, coordinationID types.ID, response string, availability, conditions, proposedSchedule map[string]any) (types.ID, error) {
	content := map[string]any{
		"coordination_id":   coordinationID.String(),
		"response":          response,
		"availability":      orEmptyMap(availability),
		"conditions":        orEmptyMap(conditions),
		"proposed_schedule": orEmptyMap(proposedSchedule),
	}
	return p.SendMessage(ctx, recipient, message.TypeCoordinationResponse, content, SendOptions{CorrelationID: requestID})
}

// SendTaskDecomposition shares a parent task's decomposition into subtasks.
func (p *Protocol) SendTaskDecomposition(ctx context.Context, recipient string, parentTaskID types.ID, subtasks []map[string]any, dependencies map[string][]string, allocationSuggestions map[string][]string, estimatedComplexity map[string]float64) (types.ID, error) {
	content := map[string]any{
		"parent_task_id":         parentTaskID.String(),
		"subtasks":               subtasks,
		"dependencies":           dependencies,
		"allocation_suggestions": allocationSuggestions,
		"estimated_complexity":   estimatedComplexity,
	}
	return p.SendMessage(ctx, recipient, message.TypeTaskDecomposition, content, SendOptions{})
}

// severityForRating buckets a feedback rating into a severity label.
func severityForRating(rating float64) string {
	switch {
	case rating < 0.3:
		return "high"
	case rating < 0.7:
		return "medium"
	default:
		return "low"
	}
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func isoOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
