package sim

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// HotStuff phases, one per view.
const (
	HSNewView   = "NEW_VIEW"
	HSPrepare   = "PREPARE"
	HSPreCommit = "PRE_COMMIT"
	HSCommit    = "COMMIT"
	HSDecide    = "DECIDE"
)

// HSStates fixes the statistics reporting order.
var HSStates = []string{HSNewView, HSPrepare, HSPreCommit, HSCommit, HSDecide}

// HSMessageType enumerates HotStuff message kinds; the same kind is used
// for the leader broadcast and, with Vote set, the replica's reply.
type HSMessageType int

const (
	HSNewViewMsg HSMessageType = iota
	HSPrepareMsg
	HSPreCommitMsg
	HSCommitMsg
	HSDecideMsg
)

func (t HSMessageType) String() string {
	switch t {
	case HSNewViewMsg:
		return "NEW_VIEW"
	case HSPrepareMsg:
		return "PREPARE"
	case HSPreCommitMsg:
		return "PRE_COMMIT"
	case HSCommitMsg:
		return "COMMIT"
	case HSDecideMsg:
		return "DECIDE"
	}
	return "UNKNOWN"
}

// QC is a quorum certificate: n-f matching votes of one type on one
// proposal in one view. Votes are trusted by structure, so the
// certificate carries no signature material.
type QC struct {
	Type  HSMessageType
	View  int
	Block string
}

// HSMessage is one HotStuff protocol message.
type HSMessage struct {
	Type    HSMessageType
	Vote    bool
	Sender  int
	View    int
	Block   string
	Justify *QC
}

func (m *HSMessage) String() string {
	kind := "msg"
	if m.Vote {
		kind = "vote"
	}
	return fmt.Sprintf("HS %s %s v=%d from %d (%s)", m.Type, kind, m.View, m.Sender, m.Block)
}

// HSValidator runs the HotStuff pacemaker on top of a fabric endpoint.
type HSValidator struct {
	*ValidatorCore

	n, f          int
	baseTimeLimit float64

	view  int
	phase string
	// timeoutStreak counts consecutive timed-out views since the last
	// decide; the per-view limit doubles with it.
	timeoutStreak int

	prepareQC *QC
	lockedQC  *QC

	consensusCount int
	decided        []string
	// decidedViews keys each decision by the view it closed, since a
	// replica that timed out past a view misses that decision entirely.
	decidedViews map[int]string

	// newViews maps view -> sender -> carried prepareQC.
	newViews map[int]map[int]*QC
	// votes maps "type/view/block" to the voting senders.
	votes map[string]map[int]bool
	// buffered holds messages for future views until the validator
	// advances.
	buffered []*HSMessage
}

// NewHSValidator creates validator vid of n running HotStuff.
func NewHSValidator(id NodeID, vid, n int, baseTimeLimit float64,
	sampler *ExponentialSampler, uplinkRd *rand.Rand, notifier TimerNotifier) *HSValidator {
	return &HSValidator{
		ValidatorCore: NewValidatorCore(id, fmt.Sprintf("HS-%d", vid), vid,
			sampler, uplinkRd, notifier, HSStates),
		n:             n,
		f:             (n - 1) / 3,
		baseTimeLimit: baseTimeLimit,
		phase:         HSNewView,
		decidedViews:  make(map[int]string),
		newViews:      make(map[int]map[int]*QC),
		votes:         make(map[string]map[int]bool),
	}
}

// threshold is n-f matching votes.
func (v *HSValidator) threshold() int { return v.n - v.f }

// leader rotates per view.
func (v *HSValidator) leader(view int) int { return view % v.n }

func (v *HSValidator) isLeader() bool { return v.leader(v.view) == v.ValidatorID() }

// ConsensusCount returns the number of decided views.
func (v *HSValidator) ConsensusCount() int { return v.consensusCount }

// StateName returns the current phase.
func (v *HSValidator) StateName() string { return v.phase }

// Decided returns the proposals decided so far in view order.
func (v *HSValidator) Decided() []string { return v.decided }

// DecidedViews returns the decisions keyed by the view that closed them.
func (v *HSValidator) DecidedViews() map[int]string { return v.decidedViews }

// Finalize charges the tail interval to the current phase.
func (v *HSValidator) Finalize(finalTime float64) {
	v.FinalizeStats(v.phase, finalTime)
}

// SnapshotLine renders the validator's final report line.
func (v *HSValidator) SnapshotLine() string {
	return fmt.Sprintf("%s: state=%s view=%d %s", v.Core().Name(), v.phase, v.view, v.Statistics())
}

// Bootstrap enters view 0: replicas send NEW_VIEW to leader(0).
func (v *HSValidator) Bootstrap(now float64) []*Payload {
	return v.enterView(now, 0)
}

// Process consumes one protocol message after the drawn service time.
// The interval since the previous dispatch is charged to the phase held
// throughout it, which is the phase at entry.
func (v *HSValidator) Process(now float64, p *Payload) (float64, []*Payload) {
	v.RecordElapsed(v.phase, now)
	duration := v.Core().SampleServiceTime()
	end := now + duration

	var out []*Payload
	if msg, ok := p.Message.(*HSMessage); ok {
		out = v.handleMessage(end, msg)
	} else {
		logrus.Warnf("%s: dropping non-HotStuff payload %s", v.Core().Name(), p)
	}

	v.Statistics().SetConsensusCount(v.consensusCount)
	return duration, out
}

// OnTimer advances to the next view and sends a fresh NEW_VIEW.
func (v *HSValidator) OnTimer(now float64, tag int) []*Payload {
	if !v.TimerTagValid(tag) {
		return nil
	}
	v.RecordElapsed(v.phase, now)
	v.timeoutStreak++
	return v.enterView(now, v.view+1)
}

// viewTimeLimit doubles per consecutive timed-out view.
func (v *HSValidator) viewTimeLimit() float64 {
	return v.baseTimeLimit * math.Pow(2, float64(v.timeoutStreak))
}

// enterView starts the pacemaker for the given view: arm the timer,
// send NEW_VIEW to the new leader (the leader records its own), and
// replay buffered messages that were waiting for this view.
func (v *HSValidator) enterView(now float64, view int) []*Payload {
	v.view = view
	v.phase = HSNewView
	v.StartTimer(now, v.viewTimeLimit())

	var out []*Payload
	if v.isLeader() {
		v.recordNewView(view, v.ValidatorID(), v.prepareQC)
		out = append(out, v.maybePropose(now)...)
	} else {
		out = append(out, v.Send(&HSMessage{
			Type:    HSNewViewMsg,
			Sender:  v.ValidatorID(),
			View:    view,
			Justify: v.prepareQC,
		}, v.leader(view)))
	}

	pending := v.buffered
	v.buffered = nil
	for _, m := range pending {
		out = append(out, v.handleMessage(now, m)...)
	}
	return out
}

func (v *HSValidator) handleMessage(now float64, m *HSMessage) []*Payload {
	if m.View < v.view {
		return nil // stale view
	}
	if m.View > v.view {
		v.buffered = append(v.buffered, m)
		return nil
	}

	if m.Vote {
		return v.onVote(now, m)
	}
	switch m.Type {
	case HSNewViewMsg:
		return v.onNewView(now, m)
	case HSPrepareMsg:
		return v.onPrepareProposal(now, m)
	case HSPreCommitMsg, HSCommitMsg:
		return v.onPhaseCert(now, m)
	case HSDecideMsg:
		return v.onDecide(now, m)
	}
	return nil
}

func (v *HSValidator) onNewView(now float64, m *HSMessage) []*Payload {
	if !v.isLeader() {
		return nil
	}
	v.recordNewView(m.View, m.Sender, m.Justify)
	return v.maybePropose(now)
}

// maybePropose fires once the leader has n-f NEW_VIEW messages: pick the
// highest prepareQC and broadcast the PREPARE proposal extending it.
func (v *HSValidator) maybePropose(now float64) []*Payload {
	if v.phase != HSNewView || len(v.newViews[v.view]) < v.threshold() {
		return nil
	}
	var highQC *QC
	for _, qc := range v.newViews[v.view] {
		if qc != nil && (highQC == nil || qc.View > highQC.View) {
			highQC = qc
		}
	}
	v.phase = HSPrepare
	block := fmt.Sprintf("node<%d,%d>", v.view, v.ValidatorID())
	return v.Broadcast(&HSMessage{
		Type:    HSPrepareMsg,
		Sender:  v.ValidatorID(),
		View:    v.view,
		Block:   block,
		Justify: highQC,
	})
}

// onPrepareProposal is the replica side of PREPARE: vote if the proposal
// is safe with respect to the locked QC.
func (v *HSValidator) onPrepareProposal(now float64, m *HSMessage) []*Payload {
	if m.Sender != v.leader(v.view) {
		return nil
	}
	if !v.safeProposal(m.Justify) {
		logrus.Debugf("%s rejects proposal %q at view %d", v.Core().Name(), m.Block, v.view)
		return nil
	}
	v.phase = HSPrepare
	return []*Payload{v.Send(&HSMessage{
		Type:   HSPrepareMsg,
		Vote:   true,
		Sender: v.ValidatorID(),
		View:   v.view,
		Block:  m.Block,
	}, v.leader(v.view))}
}

// safeProposal accepts when the justify extends past the locked QC (or
// nothing is locked yet).
func (v *HSValidator) safeProposal(justify *QC) bool {
	if v.lockedQC == nil {
		return true
	}
	if justify == nil {
		return false
	}
	return justify.Block == v.lockedQC.Block || justify.View > v.lockedQC.View
}

// onPhaseCert is the replica side of PRE_COMMIT and COMMIT: adopt the
// carried QC and vote the phase onward.
func (v *HSValidator) onPhaseCert(now float64, m *HSMessage) []*Payload {
	if m.Sender != v.leader(v.view) || m.Justify == nil {
		return nil
	}
	switch m.Type {
	case HSPreCommitMsg:
		v.prepareQC = m.Justify
		v.phase = HSPreCommit
	case HSCommitMsg:
		v.lockedQC = m.Justify
		v.phase = HSCommit
	}
	return []*Payload{v.Send(&HSMessage{
		Type:   m.Type,
		Vote:   true,
		Sender: v.ValidatorID(),
		View:   v.view,
		Block:  m.Justify.Block,
	}, v.leader(v.view))}
}

// onDecide executes the proposal and advances the pacemaker.
func (v *HSValidator) onDecide(now float64, m *HSMessage) []*Payload {
	if m.Sender != v.leader(v.view) || m.Justify == nil {
		return nil
	}
	v.phase = HSDecide
	v.decided = append(v.decided, m.Justify.Block)
	v.decidedViews[v.view] = m.Justify.Block
	v.consensusCount++
	v.timeoutStreak = 0
	logrus.Debugf("%s decided %q at view %d", v.Core().Name(), m.Justify.Block, v.view)
	return v.enterView(now, v.view+1)
}

// onVote is the leader side of vote collection; each threshold forms a
// QC and broadcasts the next phase.
func (v *HSValidator) onVote(now float64, m *HSMessage) []*Payload {
	if !v.isLeader() {
		return nil
	}
	v.recordVote(m.Type, m.View, m.Block, m.Sender)
	if v.countVotes(m.Type, m.View, m.Block) != v.threshold() {
		return nil
	}
	qc := &QC{Type: m.Type, View: m.View, Block: m.Block}
	var next HSMessageType
	switch m.Type {
	case HSPrepareMsg:
		next = HSPreCommitMsg
	case HSPreCommitMsg:
		next = HSCommitMsg
	case HSCommitMsg:
		next = HSDecideMsg
	default:
		return nil
	}
	return v.Broadcast(&HSMessage{
		Type:    next,
		Sender:  v.ValidatorID(),
		View:    v.view,
		Justify: qc,
	})
}

func (v *HSValidator) recordNewView(view, sender int, qc *QC) {
	if v.newViews[view] == nil {
		v.newViews[view] = make(map[int]*QC)
	}
	v.newViews[view][sender] = qc
}

func (v *HSValidator) voteKey(t HSMessageType, view int, block string) string {
	return fmt.Sprintf("%d/%d/%s", t, view, block)
}

func (v *HSValidator) recordVote(t HSMessageType, view int, block string, sender int) {
	key := v.voteKey(t, view, block)
	if v.votes[key] == nil {
		v.votes[key] = make(map[int]bool)
	}
	v.votes[key][sender] = true
}

func (v *HSValidator) countVotes(t HSMessageType, view int, block string) int {
	return len(v.votes[v.voteKey(t, view, block)])
}
