package consensus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentive-ai/fleet/internal/agent"
	"github.com/agentive-ai/fleet/internal/llm"
	"github.com/agentive-ai/fleet/internal/message"
	"github.com/agentive-ai/fleet/internal/protocol"
	"github.com/agentive-ai/fleet/internal/types"
)

func newTestBus(t *testing.T) *message.InMemoryBus {
	t.Helper()
	bus := message.NewInMemoryBus()
	bus.Start()
	t.Cleanup(bus.Stop)
	return bus
}

// resultInbox collects CONSENSUS_RESULT messages arriving at a participant.
type resultInbox struct {
	mu      sync.Mutex
	results []message.Message
}

func (in *resultInbox) handler(_ context.Context, msg message.Message) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.results = append(in.results, msg)
	return nil
}

func (in *resultInbox) wait(t *testing.T, n int) []message.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		in.mu.Lock()
		if len(in.results) >= n {
			out := append([]message.Message(nil), in.results...)
			in.mu.Unlock()
			return out
		}
		in.mu.Unlock()
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d consensus results", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func waitForOutcome(t *testing.T, c *Coordinator, id types.ID) *Outcome {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		outcome, err := c.Outcome(id)
		require.NoError(t, err)
		if outcome != nil {
			return outcome
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for consensus outcome")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestConsensusRound_DefaultVoters(t *testing.T) {
	bus := newTestBus(t)

	coordProto := protocol.New("coordinator", bus)
	defer coordProto.Close()
	coordinator := NewCoordinator(coordProto)

	inboxes := make(map[string]*resultInbox)
	for _, id := range []string{"p1", "p2", "p3"} {
		proto := protocol.New(id, bus)
		defer proto.Close()
		NewParticipant(proto)

		in := &resultInbox{}
		proto.RegisterHandler(message.TypeConsensusResult, in.handler)
		inboxes[id] = in
	}

	consensusID, err := coordinator.Start(context.Background(), Spec{
		Topic:        "deploy strategy",
		Options:      []any{"blue", "green"},
		Participants: []string{"p1", "p2", "p3"},
		Mechanism:    MechanismMajority,
	})
	require.NoError(t, err)

	outcome := waitForOutcome(t, coordinator, consensusID)

	// Default voters all pick the first option.
	assert.Equal(t, "blue", outcome.Result)
	assert.Equal(t, 3, outcome.ParticipantCount)
	assert.Equal(t, map[string]int{"blue": 3}, outcome.VoteDistribution)

	// Every participant receives the broadcast result.
	for id, in := range inboxes {
		results := in.wait(t, 1)
		assert.Equal(t, "blue", results[0].Content["result"], "participant %s", id)
		assert.EqualValues(t, 3, results[0].Content["participant_count"])
	}
}

func TestConsensusRound_ModelBackedVoter(t *testing.T) {
	bus := newTestBus(t)

	coordProto := protocol.New("coordinator", bus)
	defer coordProto.Close()
	coordinator := NewCoordinator(coordProto)

	// Two model-backed voters prefer green; one default voter picks blue.
	for _, id := range []string{"p1", "p2"} {
		proto := protocol.New(id, bus)
		defer proto.Close()
		voter := agent.NewLLMAgent(id, "analyst",
			llm.NewMockProvider(`{"vote": "green", "confidence": 0.9, "rationale": "capacity"}`))
		NewParticipant(proto, WithVoter(voter))
	}
	p3 := protocol.New("p3", bus)
	defer p3.Close()
	NewParticipant(p3)

	consensusID, err := coordinator.Start(context.Background(), Spec{
		Topic:        "deploy strategy",
		Options:      []any{"blue", "green"},
		Participants: []string{"p1", "p2", "p3"},
		Mechanism:    MechanismMajority,
	})
	require.NoError(t, err)

	outcome := waitForOutcome(t, coordinator, consensusID)
	assert.Equal(t, "green", outcome.Result)
	assert.Equal(t, map[string]int{"green": 2, "blue": 1}, outcome.VoteDistribution)
}

func TestCoordinator_LateVoteRejected(t *testing.T) {
	bus := newTestBus(t)
	coordProto := protocol.New("coordinator", bus)
	defer coordProto.Close()
	coordinator := NewCoordinator(coordProto)

	consensusID, err := coordinator.Start(context.Background(), Spec{
		Topic:           "pick one",
		Options:         []any{"blue", "green"},
		Participants:    []string{"p1", "p2"},
		Mechanism:       MechanismMajority,
		MinParticipants: 1,
	})
	require.NoError(t, err)

	vote := func(sender, option string) error {
		msg := message.New(message.TypeConsensusVote, sender, "coordinator", map[string]any{
			"consensus_id": consensusID.String(),
			"vote":         option,
			"confidence":   0.9,
		})
		return coordinator.handleVote(context.Background(), msg)
	}

	require.NoError(t, vote("p1", "green"))

	outcome := waitForOutcome(t, coordinator, consensusID)
	assert.Equal(t, "green", outcome.Result)

	// Quorum was one; the second vote is late.
	err = vote("p2", "blue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already decided")

	// The outcome did not change.
	final, err := coordinator.Outcome(consensusID)
	require.NoError(t, err)
	assert.Equal(t, "green", final.Result)
}

func TestCoordinator_DeadlineExpiry(t *testing.T) {
	bus := newTestBus(t)
	coordProto := protocol.New("coordinator", bus)
	defer coordProto.Close()
	coordinator := NewCoordinator(coordProto)

	past := time.Now().Add(-time.Second)
	consensusID, err := coordinator.Start(context.Background(), Spec{
		Topic:        "pick one",
		Options:      []any{"blue", "green"},
		Participants: []string{"p1", "p2", "p3"},
		Deadline:     &past,
	})
	require.NoError(t, err)

	// One vote arrives before anyone notices the deadline.
	msg := message.New(message.TypeConsensusVote, "p1", "coordinator", map[string]any{
		"consensus_id": consensusID.String(),
		"vote":         "green",
		"confidence":   0.6,
	})
	require.NoError(t, coordinator.handleVote(context.Background(), msg))

	require.NoError(t, coordinator.ExpireDeadline(context.Background(), consensusID))

	outcome, err := coordinator.Outcome(consensusID)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, "green", outcome.Result)
	assert.Equal(t, 1, outcome.ParticipantCount)

	// Expiring again is a no-op.
	assert.NoError(t, coordinator.ExpireDeadline(context.Background(), consensusID))
}

func TestCoordinator_DeadlineExpiryWithoutVotes(t *testing.T) {
	bus := newTestBus(t)
	coordProto := protocol.New("coordinator", bus)
	defer coordProto.Close()
	coordinator := NewCoordinator(coordProto)

	past := time.Now().Add(-time.Second)
	consensusID, err := coordinator.Start(context.Background(), Spec{
		Topic:        "pick one",
		Options:      []any{"blue"},
		Participants: []string{"p1"},
		Deadline:     &past,
	})
	require.NoError(t, err)

	require.NoError(t, coordinator.ExpireDeadline(context.Background(), consensusID))

	outcome, err := coordinator.Outcome(consensusID)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, NoConsensus, outcome.Result)
	assert.Equal(t, 0, outcome.ParticipantCount)
}

func TestCoordinator_StartValidation(t *testing.T) {
	bus := newTestBus(t)
	proto := protocol.New("coordinator", bus)
	defer proto.Close()
	coordinator := NewCoordinator(proto)

	_, err := coordinator.Start(context.Background(), Spec{
		Topic: "empty", Participants: []string{"p1"},
	})
	assert.Error(t, err)

	_, err = coordinator.Start(context.Background(), Spec{
		Topic: "empty", Options: []any{"blue"},
	})
	assert.Error(t, err)

	_, err = coordinator.Outcome(types.NewID())
	assert.Error(t, err)
}
