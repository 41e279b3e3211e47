package sim

import (
	"fmt"
	"math/rand"
)

// ConsensusNode is the endpoint-side contract the runner and snapshot
// rely on. IBFTValidator and HSValidator implement it.
type ConsensusNode interface {
	Node
	// ValidatorID is the integer id in [0, N); it equals the NodeID
	// because validators occupy the front of the arena.
	ValidatorID() int
	// ConsensusCount is the number of instances this validator decided.
	ConsensusCount() int
	// StateName names the current consensus state for the snapshot.
	StateName() string
	// Statistics exposes the per-state time accumulator.
	Statistics() *ConsensusStatistics
	// SetPeers publishes the validator-id vector broadcasts iterate.
	SetPeers(peers []NodeID)
	// Bootstrap emits the validator's initial payloads (e.g. the view-0
	// leader's pre-prepare) and starts its first round timer.
	Bootstrap(now float64) []*Payload
	// Finalize charges the tail interval up to the trial's final clock
	// so the per-state times sum to the final simulated time.
	Finalize(finalTime float64)
	// SnapshotLine renders the validator's final report line.
	SnapshotLine() string
}

// ValidatorCore carries the endpoint state shared by both consensus
// machines: identity, peers, uplinks, statistics, and timer versioning.
type ValidatorCore struct {
	core *NodeCore

	vid      int
	peers    []NodeID // all validator NodeIDs in id order, self included
	uplinks  []NodeID
	uplinkRd *rand.Rand

	stats        *ConsensusStatistics
	notifier     TimerNotifier
	timerTag     int
	lastRecorded float64
}

// NewValidatorCore wires a validator endpoint into the arena.
func NewValidatorCore(id NodeID, name string, vid int, sampler *ExponentialSampler,
	uplinkRd *rand.Rand, notifier TimerNotifier, states []string) *ValidatorCore {
	return &ValidatorCore{
		core:     NewNodeCore(id, name, sampler),
		vid:      vid,
		uplinkRd: uplinkRd,
		stats:    NewConsensusStatistics(states),
		notifier: notifier,
	}
}

// Core returns the shared node state.
func (v *ValidatorCore) Core() *NodeCore { return v.core }

// ValidatorID returns the validator's integer id.
func (v *ValidatorCore) ValidatorID() int { return v.vid }

// Statistics returns the per-state time accumulator.
func (v *ValidatorCore) Statistics() *ConsensusStatistics { return v.stats }

// SetPeers publishes the validator-id vector. Broadcasts iterate it in
// order, which keeps recipient-side event insertion reproducible.
func (v *ValidatorCore) SetPeers(peers []NodeID) {
	v.peers = append([]NodeID(nil), peers...)
}

// Peers returns the validator NodeID vector.
func (v *ValidatorCore) Peers() []NodeID { return v.peers }

// NumPeers returns N, the validator count.
func (v *ValidatorCore) NumPeers() int { return len(v.peers) }

// SetUplinks wires the endpoint's uplink switches.
func (v *ValidatorCore) SetUplinks(uplinks []NodeID) {
	v.uplinks = append([]NodeID(nil), uplinks...)
}

// NextHop picks uniformly at random among the endpoint's uplink
// switches, from the endpoint's own deterministic sub-stream.
func (v *ValidatorCore) NextHop(p *Payload) (NodeID, error) {
	if len(v.uplinks) == 0 {
		return NoNode, fmt.Errorf("uplinks not initialized for %s", v.core.Name())
	}
	return v.uplinks[v.uplinkRd.Intn(len(v.uplinks))], nil
}

// Send wraps msg for delivery to the validator with the given id.
func (v *ValidatorCore) Send(msg Message, dest int) *Payload {
	return NewPayload(msg, v.core.ID(), v.peers[dest])
}

// Broadcast wraps msg once per validator in id order, self included.
// Self-delivery goes through the fabric like any other message.
func (v *ValidatorCore) Broadcast(msg Message) []*Payload {
	payloads := make([]*Payload, 0, len(v.peers))
	for _, peer := range v.peers {
		payloads = append(payloads, NewPayload(msg, v.core.ID(), peer))
	}
	return payloads
}

// StartTimer bumps the timer version and registers an expiry at
// now+duration carrying the new tag. Earlier registrations become stale.
func (v *ValidatorCore) StartTimer(now, duration float64) {
	v.timerTag++
	v.notifier.NotifyAtTime(v.core.ID(), now+duration, v.timerTag)
}

// TimerTagValid reports whether an expiry tag is current.
func (v *ValidatorCore) TimerTagValid(tag int) bool {
	return tag == v.timerTag
}

// RecordElapsed charges the interval since the last record to state and
// advances the record mark to until. Dispatches at equal timestamps
// charge nothing.
func (v *ValidatorCore) RecordElapsed(state string, until float64) {
	if until <= v.lastRecorded {
		return
	}
	v.stats.AddTime(state, until-v.lastRecorded)
	v.lastRecorded = until
}

// FinalizeStats charges the tail interval up to the trial's final clock
// to state, so per-state times sum to the final simulated time.
func (v *ValidatorCore) FinalizeStats(state string, finalTime float64) {
	if finalTime > v.lastRecorded {
		v.RecordElapsed(state, finalTime)
	}
}
