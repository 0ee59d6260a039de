package consensus

import (
	"fmt"
	"slices"
	"time"

	"github.com/agentive-ai/fleet/internal/types"
)

// Mechanism selects how votes are tallied.
type Mechanism string

const (
	// MechanismMajority picks the option with the most votes; ties go to
	// the option registered first.
	MechanismMajority Mechanism = "majority"

	// MechanismWeighted picks the option with the highest summed
	// confidence.
	MechanismWeighted Mechanism = "weighted"

	// MechanismUnanimous requires every vote to agree, otherwise the
	// outcome is NoConsensus.
	MechanismUnanimous Mechanism = "unanimous"
)

// NoConsensus is the non-error outcome when votes do not produce a winner.
const NoConsensus = "no consensus"

// Ballot is one participant's vote.
type Ballot struct {
	Vote       any     `json:"vote"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

// Outcome is the tallied result of a consensus process.
type Outcome struct {
	Result           any            `json:"result"`
	VoteDistribution map[string]int `json:"vote_distribution"`
	Confidence       float64        `json:"confidence"`
	ParticipantCount int            `json:"participant_count"`
}

// Process is one consensus round. A process is open until tallied; tallying
// is terminal and late votes are rejected.
type Process struct {
	ID              types.ID
	Requester       string
	Topic           string
	Options         []any
	Participants    []string
	Mechanism       Mechanism
	MinParticipants int
	Deadline        *time.Time

	votes   map[string]Ballot
	outcome *Outcome
}

// newProcess creates an open process. A zero MinParticipants means every
// participant must vote before the tally.
func newProcess(id types.ID, requester, topic string, options []any, participants []string, mechanism Mechanism, minParticipants int, deadline *time.Time) *Process {
	if minParticipants <= 0 || minParticipants > len(participants) {
		minParticipants = len(participants)
	}
	return &Process{
		ID:              id,
		Requester:       requester,
		Topic:           topic,
		Options:         options,
		Participants:    participants,
		Mechanism:       mechanism,
		MinParticipants: minParticipants,
		Deadline:        deadline,
		votes:           make(map[string]Ballot),
	}
}

// Closed reports whether the process has been tallied.
func (p *Process) Closed() bool {
	return p.outcome != nil
}

// Outcome returns the tallied outcome, or nil while the process is open.
func (p *Process) Outcome() *Outcome {
	return p.outcome
}

// recordVote stores a participant's ballot. It rejects votes after the
// tally, from unknown participants, and with out-of-range confidence.
func (p *Process) recordVote(participant string, ballot Ballot) error {
	if p.Closed() {
		return types.NewError(types.CONSENSUS_CLOSED,
			fmt.Sprintf("consensus %s is already decided", p.ID))
	}
	if !p.isParticipant(participant) {
		return types.NewError(types.VOTE_INVALID,
			fmt.Sprintf("%s is not a participant in consensus %s", participant, p.ID))
	}
	if ballot.Confidence < 0 || ballot.Confidence > 1 {
		return types.NewError(types.VOTE_INVALID,
			fmt.Sprintf("confidence %.2f outside [0.0, 1.0]", ballot.Confidence))
	}

	p.votes[participant] = ballot
	return nil
}

// isParticipant reports whether the named agent may vote in this process.
func (p *Process) isParticipant(participant string) bool {
	return slices.Contains(p.Participants, participant)
}

// quorumReached reports whether enough votes arrived to tally.
func (p *Process) quorumReached() bool {
	return len(p.votes) >= p.MinParticipants
}

// deadlinePassed reports whether the voting deadline, if any, is behind now.
func (p *Process) deadlinePassed(now time.Time) bool {
	return p.Deadline != nil && now.After(*p.Deadline)
}

// tally computes and pins the outcome. Tallying twice is an error.
func (p *Process) tally() (*Outcome, error) {
	if p.Closed() {
		return nil, types.NewError(types.CONSENSUS_CLOSED,
			fmt.Sprintf("consensus %s is already decided", p.ID))
	}
	if len(p.votes) == 0 {
		return nil, types.NewError(types.VOTE_INVALID,
			fmt.Sprintf("consensus %s has no votes to tally", p.ID))
	}

	var outcome Outcome
	switch p.Mechanism {
	case MechanismWeighted:
		outcome = p.tallyWeighted()
	case MechanismUnanimous:
		outcome = p.tallyUnanimous()
	default:
		outcome = p.tallyMajority()
	}
	outcome.ParticipantCount = len(p.votes)

	p.outcome = &outcome
	return p.outcome, nil
}

func (p *Process) tallyMajority() Outcome {
	counts := make(map[string]int)
	confidenceSums := make(map[string]float64)
	for _, ballot := range p.votes {
		key := optionKey(ballot.Vote)
		counts[key]++
		confidenceSums[key] += ballot.Confidence
	}

	winnerKey, winnerValue := p.pickWinner(func(key string) float64 {
		return float64(counts[key])
	})

	confidence := 0.0
	if counts[winnerKey] > 0 {
		confidence = confidenceSums[winnerKey] / float64(counts[winnerKey])
	}
	return Outcome{
		Result:           winnerValue,
		VoteDistribution: counts,
		Confidence:       confidence,
	}
}

func (p *Process) tallyWeighted() Outcome {
	counts := make(map[string]int)
	weights := make(map[string]float64)
	var totalWeight float64
	for _, ballot := range p.votes {
		key := optionKey(ballot.Vote)
		counts[key]++
		weights[key] += ballot.Confidence
		totalWeight += ballot.Confidence
	}

	winnerKey, winnerValue := p.pickWinner(func(key string) float64 {
		return weights[key]
	})

	confidence := 0.0
	if totalWeight > 0 {
		confidence = weights[winnerKey] / totalWeight
	}
	return Outcome{
		Result:           winnerValue,
		VoteDistribution: counts,
		Confidence:       confidence,
	}
}

func (p *Process) tallyUnanimous() Outcome {
	counts := make(map[string]int)
	var confidenceTotal float64
	for _, ballot := range p.votes {
		counts[optionKey(ballot.Vote)]++
		confidenceTotal += ballot.Confidence
	}

	if len(counts) != 1 {
		return Outcome{
			Result:           NoConsensus,
			VoteDistribution: counts,
			Confidence:       0,
		}
	}

	var winner any
	for _, ballot := range p.votes {
		winner = ballot.Vote
		break
	}
	return Outcome{
		Result:           winner,
		VoteDistribution: counts,
		Confidence:       confidenceTotal / float64(len(p.votes)),
	}
}

// pickWinner scores every voted option and returns the best. Ties resolve
// to whichever option was registered first; votes for unregistered options
// still count but rank after registered ones on a tie.
func (p *Process) pickWinner(score func(key string) float64) (string, any) {
	ranked := make(map[string]int, len(p.Options))
	values := make(map[string]any, len(p.Options))
	for i, option := range p.Options {
		key := optionKey(option)
		ranked[key] = i
		values[key] = option
	}

	var (
		bestKey   string
		bestValue any
		bestScore = -1.0
		bestRank  = len(p.Options) + 1
	)
	for _, ballot := range p.votes {
		key := optionKey(ballot.Vote)
		rank, registered := ranked[key]
		if !registered {
			rank = len(p.Options)
		}
		s := score(key)
		if s > bestScore || (s == bestScore && rank < bestRank) {
			bestKey = key
			bestScore = s
			bestRank = rank
			if registered {
				bestValue = values[key]
			} else {
				bestValue = ballot.Vote
			}
		}
	}
	return bestKey, bestValue
}

// optionKey canonicalizes an option value for counting. Votes arrive as
// decoded JSON, so equal options may differ in concrete type.
func optionKey(v any) string {
	return fmt.Sprintf("%v", v)
}
