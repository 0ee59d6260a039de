package protocol

import (
	"fmt"

	"github.com/agentive-ai/fleet/internal/message"
	"github.com/agentive-ai/fleet/internal/types"
)

// requiredContentFields maps message types to the content fields they must
// carry. Types absent from the table require only the envelope fields.
var requiredContentFields = map[message.Type][]string{
	message.TypeTaskRequest:          {"task_description", "parameters"},
	message.TypeTaskResponse:         {"status"},
	message.TypeQuery:                {"query"},
	message.TypeQueryResponse:        {"result"},
	message.TypeStatusUpdate:         {"status"},
	message.TypeCapabilityResponse:   {"capabilities"},
	message.TypeAgentDiscovery:       {"agent_id", "agent_type", "capabilities"},
	message.TypeConsensusRequest:     {"consensus_id", "topic", "options"},
	message.TypeConsensusVote:        {"consensus_id", "vote"},
	message.TypeConsensusResult:      {"consensus_id", "result"},
	message.TypeFeedback:             {"category", "rating"},
	message.TypeConflictNotification: {"conflict_type", "description", "parties"},
	message.TypeConflictResolution:   {"conflict_id", "resolution"},
	message.TypeCoordinationRequest:  {"coordination_type", "activities"},
	message.TypeCoordinationResponse: {"coordination_id", "response"},
	message.TypeTaskDecomposition:    {"parent_task_id", "subtasks"},
	message.TypeError:                {"error_type", "description"},
}

// ValidateMessage checks a message's envelope and type-specific content
// schema. It returns a MESSAGE_VALIDATION_FAILED error describing the first
// violation found.
func ValidateMessage(msg message.Message) error {
	if msg.ID.IsZero() {
		return validationError("message ID is required")
	}
	if msg.Type == "" {
		return validationError("message type is required")
	}
	if msg.Sender == "" {
		return validationError("sender is required")
	}
	if msg.Recipient == "" {
		return validationError("recipient is required")
	}
	if msg.Content == nil {
		return validationError("content must be a mapping")
	}

	for _, field := range requiredContentFields[msg.Type] {
		value, ok := msg.Content[field]
		if !ok || value == nil {
			return validationError(fmt.Sprintf("%s message requires content field %q", msg.Type, field))
		}
	}

	// Field-level checks beyond presence.
	switch msg.Type {
	case message.TypeTaskRequest:
		if _, ok := msg.Content["task_description"].(string); !ok {
			return validationError("task_description must be a string")
		}
		if _, ok := msg.Content["parameters"].(map[string]any); !ok {
			return validationError("parameters must be a mapping")
		}
	case message.TypeQuery:
		if _, ok := msg.Content["query"].(string); !ok {
			return validationError("query must be a string")
		}
	case message.TypeFeedback:
		rating, ok := toFloat(msg.Content["rating"])
		if !ok {
			return validationError("rating must be a number")
		}
		if rating < 0 || rating > 1 {
			return validationError("rating must be between 0.0 and 1.0")
		}
	case message.TypeConsensusVote:
		if conf, present := msg.Content["confidence"]; present {
			confidence, ok := toFloat(conf)
			if !ok || confidence < 0 || confidence > 1 {
				return validationError("confidence must be a number between 0.0 and 1.0")
			}
		}
	}

	return nil
}

func validationError(detail string) error {
	return types.NewError(types.MESSAGE_VALIDATION_FAILED, detail)
}

// toFloat normalizes numeric content values, which may arrive as several
// concrete types after JSON or YAML decoding.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
