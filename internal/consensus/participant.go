package consensus

import (
	"context"
	"log/slog"

	"github.com/agentive-ai/fleet/internal/agent"
	"github.com/agentive-ai/fleet/internal/message"
	"github.com/agentive-ai/fleet/internal/protocol"
	"github.com/agentive-ai/fleet/internal/types"
)

// Participant answers consensus requests on behalf of an agent. Agents that
// implement agent.Voter decide for themselves; everyone else falls back to
// the first offered option with neutral confidence.
type Participant struct {
	proto  *protocol.Protocol
	voter  agent.Voter
	logger *slog.Logger
}

// ParticipantOption configures a Participant.
type ParticipantOption func(*Participant)

// WithVoter lets the given voter decide this participant's ballots.
func WithVoter(voter agent.Voter) ParticipantOption {
	return func(p *Participant) {
		p.voter = voter
	}
}

// WithParticipantLogger sets the structured logger used by the participant.
func WithParticipantLogger(logger *slog.Logger) ParticipantOption {
	return func(p *Participant) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewParticipant wires consensus request handling into the protocol.
func NewParticipant(proto *protocol.Protocol, opts ...ParticipantOption) *Participant {
	p := &Participant{
		proto:  proto,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	proto.RegisterHandler(message.TypeConsensusRequest, p.handleRequest)
	return p
}

// handleRequest decides a ballot and replies with a CONSENSUS_VOTE.
func (p *Participant) handleRequest(ctx context.Context, msg message.Message) error {
	consensusID := types.ID(stringField(msg.Content, "consensus_id"))
	topic := stringField(msg.Content, "topic")
	options, _ := msg.Content["options"].([]any)
	voteContext, _ := msg.Content["context"].(map[string]any)

	if len(options) == 0 {
		return types.NewError(types.VOTE_INVALID, "consensus request carries no options")
	}

	ballot := p.decide(ctx, topic, options, voteContext)

	_, err := p.proto.SendConsensusVote(ctx, msg.ID, msg.Sender, consensusID,
		ballot.Vote, ballot.Confidence, ballot.Rationale)
	return err
}

// decide produces a ballot. Voter failures degrade to the fallback choice
// rather than abstaining.
func (p *Participant) decide(ctx context.Context, topic string, options []any, voteContext map[string]any) Ballot {
	if p.voter != nil {
		vote, confidence, rationale, err := p.voter.Vote(ctx, topic, options, voteContext)
		if err == nil {
			return Ballot{Vote: vote, Confidence: confidence, Rationale: rationale}
		}
		p.logger.Warn("voter failed, using fallback ballot",
			"agent_id", p.proto.AgentID(),
			"topic", topic,
			"error", err,
		)
	}

	return Ballot{
		Vote:       options[0],
		Confidence: 0.5,
		Rationale:  "default preference for the first option",
	}
}
