package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentive-ai/fleet/internal/message"
	"github.com/agentive-ai/fleet/internal/types"
)

// Handler processes an incoming message of a registered type.
type Handler func(ctx context.Context, msg message.Message) error

// Protocol is a per-agent façade over the message bus. It builds and
// validates typed messages on the way out and dispatches incoming messages
// to exactly one handler per message type.
type Protocol struct {
	agentID string
	bus     message.Bus
	logger  *slog.Logger

	retryAttempts int
	retryBackoff  time.Duration

	mu       sync.RWMutex
	handlers map[message.Type]Handler
}

// Option is a functional option for configuring a Protocol.
type Option func(*Protocol)

// WithLogger sets the structured logger used by the protocol.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Protocol) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRetryPolicy overrides the bounded-retry policy used when publishing.
// The default is 3 attempts with a fixed 1s backoff between attempts.
func WithRetryPolicy(attempts int, backoff time.Duration) Option {
	return func(p *Protocol) {
		if attempts > 0 {
			p.retryAttempts = attempts
		}
		if backoff >= 0 {
			p.retryBackoff = backoff
		}
	}
}

// New creates a protocol bound to an agent ID and subscribes it to the bus.
func New(agentID string, bus message.Bus, opts ...Option) *Protocol {
	p := &Protocol{
		agentID:       agentID,
		bus:           bus,
		logger:        slog.Default(),
		retryAttempts: 3,
		retryBackoff:  time.Second,
		handlers:      make(map[message.Type]Handler),
	}
	for _, opt := range opts {
		opt(p)
	}

	bus.Subscribe(agentID, p.handleMessage)
	return p
}

// AgentID returns the agent identity this protocol speaks for.
func (p *Protocol) AgentID() string {
	return p.agentID
}

// Close unsubscribes the agent from the bus.
func (p *Protocol) Close() {
	p.bus.Unsubscribe(p.agentID)
}

// SendOptions carries optional envelope fields for SendMessage.
type SendOptions struct {
	Priority      message.Priority
	CorrelationID types.ID

	// SkipValidation bypasses outgoing message validation. Reserved for
	// diagnostic paths; normal sends always validate.
	SkipValidation bool
}

// SendMessage validates, builds, and publishes a message to another agent.
// It returns the message ID of the sent message.
//
// Validation failures abort the send and return a MESSAGE_VALIDATION_FAILED
// error; nothing is published. Transient publish failures are retried up to
// the configured attempt budget with a fixed backoff; exhausting the budget
// returns a MESSAGE_DELIVERY_FAILED error.
func (p *Protocol) SendMessage(ctx context.Context, recipient string, msgType message.Type, content map[string]any, opts SendOptions) (types.ID, error) {
	msg := message.New(msgType, p.agentID, recipient, content)
	if opts.Priority != 0 {
		msg = msg.WithPriority(opts.Priority)
	}
	if !opts.CorrelationID.IsZero() {
		msg = msg.WithCorrelation(opts.CorrelationID)
	}

	if !opts.SkipValidation {
		if err := ValidateMessage(msg); err != nil {
			p.logger.Error("outgoing message failed validation",
				"message_type", msgType,
				"recipient", recipient,
				"error", err,
			)
			return "", err
		}
	}

	if err := p.publishWithRetries(ctx, msg); err != nil {
		return "", err
	}

	return msg.ID, nil
}

// publishWithRetries publishes a message, retrying transient failures with a
// fixed backoff.
func (p *Protocol) publishWithRetries(ctx context.Context, msg message.Message) error {
	var lastErr error
	for attempt := 1; attempt <= p.retryAttempts; attempt++ {
		lastErr = p.bus.Publish(msg)
		if lastErr == nil {
			return nil
		}
		if !types.IsRetryable(lastErr) {
			break
		}

		p.logger.Warn("publish failed, retrying",
			"message_id", msg.ID,
			"attempt", attempt,
			"max_attempts", p.retryAttempts,
			"error", lastErr,
		)

		if attempt < p.retryAttempts {
			select {
			case <-ctx.Done():
				return types.WrapError(types.MESSAGE_DELIVERY_FAILED,
					"send canceled while backing off", ctx.Err())
			case <-time.After(p.retryBackoff):
			}
		}
	}

	return types.WrapError(types.MESSAGE_DELIVERY_FAILED,
		fmt.Sprintf("failed to send message to %s after %d attempts", msg.Recipient, p.retryAttempts),
		lastErr)
}

// RegisterHandler binds exactly one handler for a message type.
// Registering a second handler for the same type replaces the first.
func (p *Protocol) RegisterHandler(msgType message.Type, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[msgType] = handler
	p.logger.Debug("registered message handler", "message_type", msgType, "agent_id", p.agentID)
}

// handleMessage is the bus-facing entry point. It dispatches by message type
// through the handler table; an unhandled type produces a synthesized ERROR
// reply to the sender.
func (p *Protocol) handleMessage(ctx context.Context, msg message.Message) error {
	p.mu.RLock()
	handler, ok := p.handlers[msg.Type]
	p.mu.RUnlock()

	if !ok {
		p.logger.Warn("no handler registered for message type",
			"message_type", msg.Type,
			"agent_id", p.agentID,
			"sender", msg.Sender,
		)

		// Bus-synthesized messages get no reply, and an unhandled ERROR
		// never earns an ERROR back; two agents without ERROR handlers
		// would bounce replies forever.
		if msg.Sender == "message_bus" || msg.Type == message.TypeError {
			return nil
		}

		_, err := p.SendError(ctx, msg.Sender, message.ErrorPayload{
			ErrorType:   string(types.UNHANDLED_MESSAGE_TYPE),
			Description: fmt.Sprintf("no handler registered for message type %s", msg.Type),
			Details:     map[string]any{"message_type": msg.Type.String()},
			RecoveryHints: []string{
				fmt.Sprintf("Register a handler for message type %s", msg.Type),
				"Update the agent to support this message type",
				"Check if the message type is correct",
			},
		}, msg.ID)
		return err
	}

	if err := handler(ctx, msg); err != nil {
		p.logger.Error("message handler failed",
			"message_type", msg.Type,
			"message_id", msg.ID,
			"error", err,
		)

		_, sendErr := p.SendError(ctx, msg.Sender, message.ErrorPayload{
			ErrorType:   string(types.PROTOCOL_ERROR),
			Description: fmt.Sprintf("error handling message of type %s: %v", msg.Type, err),
			Details: map[string]any{
				"message_id":   msg.ID.String(),
				"message_type": msg.Type.String(),
			},
			RecoveryHints: []string{
				"Inspect the recipient agent logs for the underlying failure",
			},
		}, msg.ID)
		if sendErr != nil {
			p.logger.Error("failed to send error reply", "error", sendErr)
		}
		// The failure was reported to the sender; do not also fail bus delivery.
		return nil
	}

	return nil
}
