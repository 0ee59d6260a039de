package message

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/agentive-ai/fleet/internal/types"
)

// Handler processes a message delivered to a subscribed agent.
// A non-nil error causes the bus to synthesize an ERROR reply to the sender.
type Handler func(ctx context.Context, msg Message) error

// Bus routes messages between agent IDs with at-least-once delivery to a
// registered handler.
//
// Delivery model:
//   - Publish enqueues and returns immediately.
//   - A single consumer goroutine pops queued messages and invokes the
//     recipient's handler, so handling for a given agent is serialized
//     through that agent's handler unless the handler spawns its own work.
//   - Unknown recipients and handler failures produce a diagnostic ERROR
//     message addressed back to the sender, re-enqueued on the same queue.
//     This is an echo, not a delivery guarantee: messages still queued when
//     the consumer loop is stopped are dropped silently.
type Bus interface {
	// Subscribe registers a handler for an agent ID, replacing any previous
	// handler for the same ID.
	Subscribe(agentID string, handler Handler)

	// Unsubscribe removes the handler for an agent ID.
	Unsubscribe(agentID string)

	// Publish enqueues a message for delivery. It returns an error only if
	// the queue is full or the bus has been stopped.
	Publish(msg Message) error

	// Start launches the processing loop. Idempotent.
	Start()

	// Stop terminates the processing loop, draining the current iteration
	// before returning. Idempotent.
	Stop()
}

// busOptions holds configuration for InMemoryBus.
type busOptions struct {
	queueSize int
	logger    *slog.Logger
}

// BusOption is a functional option for configuring InMemoryBus.
type BusOption func(*busOptions)

// WithQueueSize sets the capacity of the internal message queue.
// Default: 256 messages.
func WithQueueSize(n int) BusOption {
	return func(o *busOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithBusLogger sets the structured logger used by the bus.
// Default: slog.Default().
func WithBusLogger(logger *slog.Logger) BusOption {
	return func(o *busOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// InMemoryBus implements Bus with a buffered channel queue and a single
// consumer goroutine.
type InMemoryBus struct {
	mu          sync.RWMutex
	subscribers map[string]Handler

	queue  chan Message
	logger *slog.Logger

	lifecycle sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}

	// stopped is read by Publish without the lifecycle mutex; Stop waits on
	// the consumer goroutine, which may itself publish error echoes.
	stopped atomic.Bool
}

// NewInMemoryBus creates a new bus with the given options.
// The bus must be started before published messages are delivered.
func NewInMemoryBus(opts ...BusOption) *InMemoryBus {
	options := &busOptions{
		queueSize: 256,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &InMemoryBus{
		subscribers: make(map[string]Handler),
		queue:       make(chan Message, options.queueSize),
		logger:      options.logger,
	}
}

// Subscribe registers a handler for an agent ID.
func (b *InMemoryBus) Subscribe(agentID string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[agentID] = handler
	b.logger.Debug("agent subscribed to message bus", "agent_id", agentID)
}

// Unsubscribe removes the handler for an agent ID.
func (b *InMemoryBus) Unsubscribe(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[agentID]; ok {
		delete(b.subscribers, agentID)
		b.logger.Debug("agent unsubscribed from message bus", "agent_id", agentID)
	}
}

// Publish enqueues a message for asynchronous delivery. Publishing before
// the first Start is allowed; the messages are delivered once the bus runs.
func (b *InMemoryBus) Publish(msg Message) error {
	if b.stopped.Load() {
		return types.NewError(types.MESSAGE_DELIVERY_FAILED, "message bus is stopped")
	}

	select {
	case b.queue <- msg:
		b.logger.Debug("message queued for delivery",
			"message_id", msg.ID,
			"type", msg.Type,
			"recipient", msg.Recipient,
		)
		return nil
	default:
		return types.NewRetryableError(types.MESSAGE_DELIVERY_FAILED,
			fmt.Sprintf("message queue full (capacity %d)", cap(b.queue)))
	}
}

// Start launches the consumer loop. Calling Start on a running bus is a no-op.
func (b *InMemoryBus) Start() {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	if b.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	b.running = true
	b.stopped.Store(false)

	go b.processMessages(ctx)
	b.logger.Info("message bus started")
}

// Stop terminates the consumer loop. The current delivery, if any, completes
// before Stop returns. Calling Stop on a stopped bus is a no-op.
func (b *InMemoryBus) Stop() {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	if !b.running {
		return
	}

	b.stopped.Store(true)
	b.cancel()
	<-b.done
	b.running = false
	b.logger.Info("message bus stopped")
}

// processMessages is the single-consumer delivery loop.
func (b *InMemoryBus) processMessages(ctx context.Context) {
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.queue:
			b.deliver(ctx, msg)
		}
	}
}

// deliver routes one message to its recipient's handler, synthesizing an
// ERROR echo on unknown recipients and handler failures.
func (b *InMemoryBus) deliver(ctx context.Context, msg Message) {
	b.mu.RLock()
	handler, ok := b.subscribers[msg.Recipient]
	b.mu.RUnlock()

	if !ok {
		b.logger.Warn("no handler found for recipient",
			"message_id", msg.ID,
			"recipient", msg.Recipient,
		)
		b.echoError(msg, ErrorPayload{
			ErrorType:   string(types.UNKNOWN_RECIPIENT),
			Description: fmt.Sprintf("no handler found for recipient %s", msg.Recipient),
			Details: map[string]any{
				"message_id":   msg.ID.String(),
				"message_type": msg.Type.String(),
				"recipient":    msg.Recipient,
			},
			RecoveryHints: []string{
				"Verify that the recipient agent ID is correct",
				"Check if the recipient agent is registered with the message bus",
				"Ensure the recipient agent is active and running",
			},
		})
		return
	}

	if err := b.safeHandle(ctx, handler, msg); err != nil {
		b.logger.Error("message delivery failed",
			"message_id", msg.ID,
			"recipient", msg.Recipient,
			"error", err,
		)
		b.echoError(msg, ErrorPayload{
			ErrorType:   string(types.MESSAGE_DELIVERY_FAILED),
			Description: fmt.Sprintf("failed to deliver message %s: %v", msg.ID, err),
			Details: map[string]any{
				"message_id":   msg.ID.String(),
				"message_type": msg.Type.String(),
				"sender":       msg.Sender,
				"recipient":    msg.Recipient,
			},
			RecoveryHints: []string{
				"Inspect the recipient handler logs for the underlying failure",
				"Retry the message if the failure is transient",
			},
		})
		return
	}

	b.logger.Debug("message delivered",
		"message_id", msg.ID,
		"recipient", msg.Recipient,
	)
}

// safeHandle invokes a handler, converting panics into errors so one
// misbehaving subscriber cannot kill the delivery loop.
func (b *InMemoryBus) safeHandle(ctx context.Context, handler Handler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, msg)
}

// echoError re-enqueues a synthesized ERROR message addressed to the sender
// of a failed delivery. Error echoes about error messages are not echoed
// again, to avoid loops.
func (b *InMemoryBus) echoError(original Message, payload ErrorPayload) {
	if original.Type == TypeError {
		return
	}

	errMsg := New(TypeError, busSenderID, original.Sender, payload.ToContent()).
		WithPriority(PriorityHigh).
		WithCorrelation(original.ID)

	if err := b.Publish(errMsg); err != nil {
		b.logger.Error("failed to enqueue error echo", "error", err)
	}
}

// busSenderID is the reserved sender identity for bus-synthesized messages.
const busSenderID = "message_bus"

// Ensure InMemoryBus implements Bus at compile time.
var _ Bus = (*InMemoryBus)(nil)
