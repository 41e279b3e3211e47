package sim

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// IBFT consensus states.
const (
	IBFTNewRound    = "NEW_ROUND"
	IBFTPrePrepared = "PREPREPARED"
	IBFTPrepared    = "PREPARED"
	IBFTRoundChange = "ROUND_CHANGE"
	IBFTCommitted   = "COMMITTED"
)

// IBFTStates fixes the statistics reporting order.
var IBFTStates = []string{IBFTNewRound, IBFTPrePrepared, IBFTPrepared, IBFTRoundChange, IBFTCommitted}

// IBFTMessageType enumerates the protocol's message kinds.
type IBFTMessageType int

const (
	IBFTPrePrepareMsg IBFTMessageType = iota
	IBFTPrepareMsg
	IBFTCommitMsg
	IBFTRoundChangeMsg
)

func (t IBFTMessageType) String() string {
	switch t {
	case IBFTPrePrepareMsg:
		return "PREPREPARE"
	case IBFTPrepareMsg:
		return "PREPARE"
	case IBFTCommitMsg:
		return "COMMIT"
	case IBFTRoundChangeMsg:
		return "ROUND_CHANGE"
	}
	return "UNKNOWN"
}

// PreparedCert records the round and block a validator prepared, carried
// inside ROUND_CHANGE messages so a new leader re-proposes it.
type PreparedCert struct {
	Round int
	Block string
}

// IBFTMessage is one IBFT protocol message. Messages are trusted by
// structure; no signatures are modeled.
type IBFTMessage struct {
	Type     IBFTMessageType
	Sender   int
	Instance int
	Round    int
	Block    string
	Prepared *PreparedCert
}

func (m *IBFTMessage) String() string {
	return fmt.Sprintf("IBFT %s h=%d r=%d from %d (%s)", m.Type, m.Instance, m.Round, m.Sender, m.Block)
}

// IBFTValidator runs the IBFT state machine on top of a fabric endpoint.
type IBFTValidator struct {
	*ValidatorCore

	n, f          int
	baseTimeLimit float64

	height int
	round  int
	state  string
	// targetRound is the round a ROUND_CHANGE broadcast is lobbying
	// for; it advances past round while timeouts accumulate.
	targetRound int

	proposal       string
	preparedCert   *PreparedCert
	consensusCount int
	decided        []string

	// prepares and commits map "h/r/block" to the voting senders.
	prepares map[string]map[int]bool
	commits  map[string]map[int]bool
	// roundChangeTargets maps, for the current instance, sender to the
	// highest round it asked to move to.
	roundChangeTargets map[int]int
	// buffered holds messages for future instances or future rounds
	// until the validator catches up.
	buffered []*IBFTMessage
}

// NewIBFTValidator creates validator vid of n running IBFT.
func NewIBFTValidator(id NodeID, vid, n int, baseTimeLimit float64,
	sampler *ExponentialSampler, uplinkRd *rand.Rand, notifier TimerNotifier) *IBFTValidator {
	return &IBFTValidator{
		ValidatorCore: NewValidatorCore(id, fmt.Sprintf("IBFT-%d", vid), vid,
			sampler, uplinkRd, notifier, IBFTStates),
		n:                  n,
		f:                  (n - 1) / 3,
		baseTimeLimit:      baseTimeLimit,
		state:              IBFTNewRound,
		prepares:           make(map[string]map[int]bool),
		commits:            make(map[string]map[int]bool),
		roundChangeTargets: make(map[int]int),
	}
}

// quorum is 2f+1 matching votes.
func (v *IBFTValidator) quorum() int { return 2*v.f + 1 }

// leader for view r of instance h is (h + r) mod N.
func (v *IBFTValidator) leader(h, r int) int { return (h + r) % v.n }

func (v *IBFTValidator) isLeader() bool { return v.leader(v.height, v.round) == v.ValidatorID() }

// ConsensusCount returns the number of decided instances.
func (v *IBFTValidator) ConsensusCount() int { return v.consensusCount }

// StateName returns the current consensus state.
func (v *IBFTValidator) StateName() string { return v.state }

// Decided returns the block decided at each height so far.
func (v *IBFTValidator) Decided() []string { return v.decided }

// Finalize charges the tail interval to the current state.
func (v *IBFTValidator) Finalize(finalTime float64) {
	v.FinalizeStats(v.state, finalTime)
}

// SnapshotLine renders the validator's final report line.
func (v *IBFTValidator) SnapshotLine() string {
	return fmt.Sprintf("%s: state=%s height=%d %s", v.Core().Name(), v.state, v.height, v.Statistics())
}

// Bootstrap enters view 0 of instance 0: the leader broadcasts its
// pre-prepare and everyone starts the round timer.
func (v *IBFTValidator) Bootstrap(now float64) []*Payload {
	return v.enterNewRound(now)
}

// Process consumes one protocol message. The drawn service time elapses
// before the message takes effect. The interval since the previous
// dispatch is charged to the state held throughout it, which is the
// state at entry: state only changes when an event is handled.
func (v *IBFTValidator) Process(now float64, p *Payload) (float64, []*Payload) {
	v.RecordElapsed(v.state, now)
	duration := v.Core().SampleServiceTime()
	end := now + duration

	var out []*Payload
	if msg, ok := p.Message.(*IBFTMessage); ok {
		out = v.handleMessage(end, msg)
	} else {
		logrus.Warnf("%s: dropping non-IBFT payload %s", v.Core().Name(), p)
	}

	v.Statistics().SetConsensusCount(v.consensusCount)
	return duration, out
}

// OnTimer fires the round timer: broadcast a round change lobbying for
// the next round and restart the timer with a doubled limit.
func (v *IBFTValidator) OnTimer(now float64, tag int) []*Payload {
	if !v.TimerTagValid(tag) {
		return nil
	}
	v.RecordElapsed(v.state, now)

	v.targetRound++
	v.state = IBFTRoundChange
	v.StartTimer(now, v.roundTimeLimit(v.targetRound))
	out := v.Broadcast(&IBFTMessage{
		Type:     IBFTRoundChangeMsg,
		Sender:   v.ValidatorID(),
		Instance: v.height,
		Round:    v.targetRound,
		Prepared: v.preparedCert,
	})
	return out
}

// roundTimeLimit is baseTimeLimit * 2^r.
func (v *IBFTValidator) roundTimeLimit(r int) float64 {
	return v.baseTimeLimit * math.Pow(2, float64(r))
}

func (v *IBFTValidator) handleMessage(now float64, m *IBFTMessage) []*Payload {
	if m.Instance < v.height {
		return nil // stale instance
	}
	if m.Instance > v.height {
		v.buffered = append(v.buffered, m)
		return nil
	}
	// A proposal or prepare for a round this validator has not entered
	// yet would be lost if dropped; park it until the round change
	// completes. Round changes and commits always flow: the former drive
	// round advancement, the latter can certify a decision the validator
	// missed.
	if (m.Type == IBFTPrePrepareMsg || m.Type == IBFTPrepareMsg) && m.Round > v.round {
		v.buffered = append(v.buffered, m)
		return nil
	}

	switch m.Type {
	case IBFTPrePrepareMsg:
		return v.onPrePrepare(now, m)
	case IBFTPrepareMsg:
		return v.onPrepare(now, m)
	case IBFTCommitMsg:
		return v.onCommit(now, m)
	case IBFTRoundChangeMsg:
		return v.onRoundChange(now, m)
	}
	return nil
}

func (v *IBFTValidator) onPrePrepare(now float64, m *IBFTMessage) []*Payload {
	if m.Round != v.round || m.Sender != v.leader(v.height, m.Round) {
		return nil
	}
	// The leader's pre-prepare doubles as its prepare vote.
	v.recordVote(v.prepares, m.Round, m.Block, m.Sender)
	if v.isLeader() || v.state != IBFTNewRound {
		return nil
	}
	v.proposal = m.Block
	v.state = IBFTPrePrepared
	return v.Broadcast(&IBFTMessage{
		Type:     IBFTPrepareMsg,
		Sender:   v.ValidatorID(),
		Instance: v.height,
		Round:    v.round,
		Block:    m.Block,
	})
}

func (v *IBFTValidator) onPrepare(now float64, m *IBFTMessage) []*Payload {
	v.recordVote(v.prepares, m.Round, m.Block, m.Sender)
	if v.state != IBFTPrePrepared || m.Round != v.round || m.Block != v.proposal {
		return nil
	}
	if v.countVotes(v.prepares, v.round, v.proposal) < v.quorum() {
		return nil
	}
	v.state = IBFTPrepared
	v.preparedCert = &PreparedCert{Round: v.round, Block: v.proposal}
	return v.Broadcast(&IBFTMessage{
		Type:     IBFTCommitMsg,
		Sender:   v.ValidatorID(),
		Instance: v.height,
		Round:    v.round,
		Block:    v.proposal,
	})
}

func (v *IBFTValidator) onCommit(now float64, m *IBFTMessage) []*Payload {
	v.recordVote(v.commits, m.Round, m.Block, m.Sender)
	if v.countVotes(v.commits, m.Round, m.Block) < v.quorum() {
		return nil
	}

	// 2f+1 commits certify the decision whatever the local phase: a
	// validator that fell behind in a round change catches up here.
	v.state = IBFTCommitted
	v.decided = append(v.decided, m.Block)
	v.consensusCount++
	logrus.Debugf("%s decided %q at height %d", v.Core().Name(), m.Block, v.height)
	return v.advanceInstance(now)
}

func (v *IBFTValidator) onRoundChange(now float64, m *IBFTMessage) []*Payload {
	if m.Round > v.roundChangeTargets[m.Sender] {
		v.roundChangeTargets[m.Sender] = m.Round
	}
	if m.Prepared != nil &&
		(v.preparedCert == nil || m.Prepared.Round > v.preparedCert.Round) {
		v.preparedCert = m.Prepared
	}

	// Count senders lobbying past the current round; a quorum moves the
	// instance to the lowest round they agree on.
	minTarget, count := 0, 0
	for _, target := range v.roundChangeTargets {
		if target < v.round+1 {
			continue
		}
		if count == 0 || target < minTarget {
			minTarget = target
		}
		count++
	}
	if count < v.quorum() {
		return nil
	}
	v.round = minTarget
	return v.enterNewRound(now)
}

// advanceInstance moves to instance h+1, view 0, and replays buffered
// future-instance messages.
func (v *IBFTValidator) advanceInstance(now float64) []*Payload {
	v.height++
	v.round = 0
	v.proposal = ""
	v.preparedCert = nil
	v.prepares = make(map[string]map[int]bool)
	v.commits = make(map[string]map[int]bool)
	v.roundChangeTargets = make(map[int]int)

	return v.enterNewRound(now)
}

// enterNewRound starts the current (height, round): reset per-round
// state, arm the round timer, as leader broadcast the pre-prepare, and
// replay buffered messages that were waiting for this round.
func (v *IBFTValidator) enterNewRound(now float64) []*Payload {
	v.state = IBFTNewRound
	v.targetRound = v.round
	v.proposal = ""
	v.StartTimer(now, v.roundTimeLimit(v.round))

	var out []*Payload
	if v.isLeader() {
		block := fmt.Sprintf("block<%d,%d,%d>", v.height, v.round, v.ValidatorID())
		if v.preparedCert != nil {
			block = v.preparedCert.Block
		}
		v.proposal = block
		v.state = IBFTPrePrepared
		out = v.Broadcast(&IBFTMessage{
			Type:     IBFTPrePrepareMsg,
			Sender:   v.ValidatorID(),
			Instance: v.height,
			Round:    v.round,
			Block:    block,
		})
	}

	pending := v.buffered
	v.buffered = nil
	for _, m := range pending {
		out = append(out, v.handleMessage(now, m)...)
	}
	return out
}

func (v *IBFTValidator) voteKey(round int, block string) string {
	return fmt.Sprintf("%d/%d/%s", v.height, round, block)
}

func (v *IBFTValidator) recordVote(votes map[string]map[int]bool, round int, block string, sender int) {
	key := v.voteKey(round, block)
	if votes[key] == nil {
		votes[key] = make(map[int]bool)
	}
	votes[key][sender] = true
}

func (v *IBFTValidator) countVotes(votes map[string]map[int]bool, round int, block string) int {
	return len(votes[v.voteKey(round, block)])
}
