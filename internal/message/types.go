package message

import (
	"time"

	"github.com/agentive-ai/fleet/internal/types"
)

// Type identifies the category and schema of a message exchanged between
// agents. The content payload of a message is interpreted according to its
// type.
type Type string

// Task messages
const (
	TypeTaskRequest       Type = "TASK_REQUEST"
	TypeTaskResponse      Type = "TASK_RESPONSE"
	TypeTaskDecomposition Type = "TASK_DECOMPOSITION"
)

// Query and status messages
const (
	TypeQuery         Type = "QUERY"
	TypeQueryResponse Type = "QUERY_RESPONSE"
	TypeStatusUpdate  Type = "STATUS_UPDATE"
)

// Capability and discovery messages
const (
	TypeCapabilityRequest  Type = "CAPABILITY_REQUEST"
	TypeCapabilityResponse Type = "CAPABILITY_RESPONSE"
	TypeAgentDiscovery     Type = "AGENT_DISCOVERY"
)

// Consensus messages
const (
	TypeConsensusRequest Type = "CONSENSUS_REQUEST"
	TypeConsensusVote    Type = "CONSENSUS_VOTE"
	TypeConsensusResult  Type = "CONSENSUS_RESULT"
)

// Collaboration messages
const (
	TypeFeedback             Type = "FEEDBACK"
	TypeConflictNotification Type = "CONFLICT_NOTIFICATION"
	TypeConflictResolution   Type = "CONFLICT_RESOLUTION"
	TypeCoordinationRequest  Type = "COORDINATION_REQUEST"
	TypeCoordinationResponse Type = "COORDINATION_RESPONSE"
)

// TypeError carries a structured error payload back to a sender.
const TypeError Type = "ERROR"

// String returns the string representation of the message type.
func (t Type) String() string {
	return string(t)
}

// Priority indicates how urgently a message should be handled relative to
// its peers. Priority is advisory; the bus preserves enqueue order.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
	PriorityUrgent Priority = 3
)

// Message is the envelope for all inter-agent communication.
// Messages are immutable once constructed; ownership transfers from the
// sender to the bus to the recipient's handler.
type Message struct {
	// ID uniquely identifies this message.
	ID types.ID `json:"id"`

	// Type determines the schema of Content.
	Type Type `json:"type"`

	// Sender is the agent ID that produced this message.
	Sender string `json:"sender"`

	// Recipient is the agent ID this message is addressed to.
	Recipient string `json:"recipient"`

	// Content is the typed payload. Required fields depend on Type.
	Content map[string]any `json:"content"`

	// Priority is an advisory urgency hint.
	Priority Priority `json:"priority"`

	// CorrelationID links a response to the request that caused it.
	// Zero for unsolicited messages.
	CorrelationID types.ID `json:"correlation_id,omitempty"`

	// Timestamp records when the message was constructed.
	Timestamp time.Time `json:"timestamp"`
}

// New constructs a message envelope with a fresh ID and timestamp.
func New(msgType Type, sender, recipient string, content map[string]any) Message {
	if content == nil {
		content = map[string]any{}
	}
	return Message{
		ID:        types.NewID(),
		Type:      msgType,
		Sender:    sender,
		Recipient: recipient,
		Content:   content,
		Priority:  PriorityNormal,
		Timestamp: time.Now(),
	}
}

// WithPriority returns a copy of the message with the given priority.
func (m Message) WithPriority(p Priority) Message {
	m.Priority = p
	return m
}

// WithCorrelation returns a copy of the message correlated to a prior message.
func (m Message) WithCorrelation(id types.ID) Message {
	m.CorrelationID = id
	return m
}

// ErrorPayload is the standardized content schema for ERROR messages.
// Recovery hints are advisory strings for a human operator and are never
// machine-parsed control flow.
type ErrorPayload struct {
	ErrorType     string         `json:"error_type"`
	Description   string         `json:"description"`
	Details       map[string]any `json:"details,omitempty"`
	RecoveryHints []string       `json:"recovery_hints,omitempty"`
}

// ToContent converts the payload into a message content map.
func (p ErrorPayload) ToContent() map[string]any {
	details := p.Details
	if details == nil {
		details = map[string]any{}
	}
	hints := p.RecoveryHints
	if hints == nil {
		hints = []string{}
	}
	return map[string]any{
		"error_type":     p.ErrorType,
		"description":    p.Description,
		"details":        details,
		"recovery_hints": hints,
	}
}

// ErrorPayloadFromContent reads a structured error payload out of an ERROR
// message's content. Missing fields yield zero values rather than errors so
// that diagnostic echoes are always readable.
func ErrorPayloadFromContent(content map[string]any) ErrorPayload {
	p := ErrorPayload{Details: map[string]any{}}
	if v, ok := content["error_type"].(string); ok {
		p.ErrorType = v
	}
	if v, ok := content["description"].(string); ok {
		p.Description = v
	}
	if v, ok := content["details"].(map[string]any); ok {
		p.Details = v
	}
	switch hints := content["recovery_hints"].(type) {
	case []string:
		p.RecoveryHints = hints
	case []any:
		for _, h := range hints {
			if s, ok := h.(string); ok {
				p.RecoveryHints = append(p.RecoveryHints, s)
			}
		}
	}
	return p
}
