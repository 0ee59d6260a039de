package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentive-ai/fleet/internal/message"
	"github.com/agentive-ai/fleet/internal/protocol"
	"github.com/agentive-ai/fleet/internal/types"
)

// Spec describes a consensus round to start.
type Spec struct {
	Topic           string
	Options         []any
	Participants    []string
	Context         map[string]any
	Mechanism       Mechanism
	MinParticipants int
	Deadline        *time.Time
}

// Coordinator runs consensus rounds from the requester side: it multicasts
// the request, records arriving votes, tallies at quorum or deadline, and
// broadcasts the outcome.
type Coordinator struct {
	proto  *protocol.Protocol
	logger *slog.Logger

	mu        sync.Mutex
	processes map[types.ID]*Process
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets the structured logger used by the coordinator.
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator creates a coordinator speaking through the given protocol
// and takes over its CONSENSUS_VOTE handling.
func NewCoordinator(proto *protocol.Protocol, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		proto:     proto,
		logger:    slog.Default(),
		processes: make(map[types.ID]*Process),
	}
	for _, opt := range opts {
		opt(c)
	}

	proto.RegisterHandler(message.TypeConsensusVote, c.handleVote)
	return c
}

// Start registers a new consensus process and multicasts the request to all
// participants. It returns the consensus ID.
func (c *Coordinator) Start(ctx context.Context, spec Spec) (types.ID, error) {
	if len(spec.Options) == 0 {
		return "", types.NewError(types.VOTE_INVALID, "consensus needs at least one option")
	}
	if len(spec.Participants) == 0 {
		return "", types.NewError(types.VOTE_INVALID, "consensus needs at least one participant")
	}
	if spec.Mechanism == "" {
		spec.Mechanism = MechanismMajority
	}

	consensusID := types.NewID()
	process := newProcess(consensusID, c.proto.AgentID(), spec.Topic, spec.Options,
		spec.Participants, spec.Mechanism, spec.MinParticipants, spec.Deadline)

	c.mu.Lock()
	c.processes[consensusID] = process
	c.mu.Unlock()

	_, err := c.proto.RequestConsensus(ctx, spec.Participants, protocol.ConsensusRequestSpec{
		ConsensusID:     consensusID,
		Topic:           spec.Topic,
		Options:         spec.Options,
		Context:         spec.Context,
		VotingMechanism: string(spec.Mechanism),
		MinParticipants: process.MinParticipants,
		Deadline:        spec.Deadline,
	})
	if err != nil {
		c.mu.Lock()
		delete(c.processes, consensusID)
		c.mu.Unlock()
		return "", err
	}

	c.logger.Info("started consensus",
		"consensus_id", consensusID,
		"topic", spec.Topic,
		"participants", len(spec.Participants),
		"mechanism", spec.Mechanism,
	)
	return consensusID, nil
}

// Outcome returns the tallied outcome for a process, or nil while voting is
// still open.
func (c *Coordinator) Outcome(consensusID types.ID) (*Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	process, ok := c.processes[consensusID]
	if !ok {
		return nil, types.NewError(types.CONSENSUS_NOT_FOUND,
			fmt.Sprintf("unknown consensus %s", consensusID))
	}
	return process.Outcome(), nil
}

// ExpireDeadline tallies a process whose deadline has passed, provided at
// least one vote arrived. Without votes the process closes as NoConsensus.
func (c *Coordinator) ExpireDeadline(ctx context.Context, consensusID types.ID) error {
	c.mu.Lock()
	process, ok := c.processes[consensusID]
	if !ok {
		c.mu.Unlock()
		return types.NewError(types.CONSENSUS_NOT_FOUND,
			fmt.Sprintf("unknown consensus %s", consensusID))
	}
	if process.Closed() {
		c.mu.Unlock()
		return nil
	}
	if !process.deadlinePassed(time.Now()) {
		c.mu.Unlock()
		return types.NewError(types.VOTE_INVALID,
			fmt.Sprintf("consensus %s deadline has not passed", consensusID))
	}

	if len(process.votes) == 0 {
		process.outcome = &Outcome{
			Result:           NoConsensus,
			VoteDistribution: map[string]int{},
		}
		c.mu.Unlock()
		return c.broadcast(ctx, process)
	}

	if _, err := process.tally(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()
	return c.broadcast(ctx, process)
}

// handleVote records an arriving CONSENSUS_VOTE and tallies when quorum is
// reached. Rejected votes surface as an error so the sender gets an ERROR
// reply.
func (c *Coordinator) handleVote(ctx context.Context, msg message.Message) error {
	consensusID := types.ID(stringField(msg.Content, "consensus_id"))
	ballot := Ballot{
		Vote:      msg.Content["vote"],
		Rationale: stringField(msg.Content, "rationale"),
	}
	if conf, ok := msg.Content["confidence"].(float64); ok {
		ballot.Confidence = conf
	}

	c.mu.Lock()
	process, ok := c.processes[consensusID]
	if !ok {
		c.mu.Unlock()
		return types.NewError(types.CONSENSUS_NOT_FOUND,
			fmt.Sprintf("unknown consensus %s", consensusID))
	}

	if err := process.recordVote(msg.Sender, ballot); err != nil {
		c.mu.Unlock()
		c.logger.Warn("rejected vote",
			"consensus_id", consensusID,
			"sender", msg.Sender,
			"error", err,
		)
		return err
	}

	c.logger.Debug("recorded vote",
		"consensus_id", consensusID,
		"sender", msg.Sender,
		"votes", len(process.votes),
		"quorum", process.MinParticipants,
	)

	if !process.quorumReached() {
		c.mu.Unlock()
		return nil
	}

	if _, err := process.tally(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	return c.broadcast(ctx, process)
}

// broadcast sends the tallied outcome to every participant.
func (c *Coordinator) broadcast(ctx context.Context, process *Process) error {
	outcome := process.Outcome()

	distribution := make(map[string]any, len(outcome.VoteDistribution))
	for option, count := range outcome.VoteDistribution {
		distribution[option] = count
	}

	_, err := c.proto.SendConsensusResult(ctx, process.Participants, process.ID,
		outcome.Result, distribution, outcome.Confidence, outcome.ParticipantCount)
	if err != nil {
		return err
	}

	c.logger.Info("consensus decided",
		"consensus_id", process.ID,
		"result", outcome.Result,
		"confidence", outcome.Confidence,
		"participants", outcome.ParticipantCount,
	)
	return nil
}

func stringField(content map[string]any, key string) string {
	s, _ := content[key].(string)
	return s
}
