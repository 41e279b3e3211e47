// sim/simulator.go
package sim

import (
	"container/heap"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// queuedEvent pairs an event with its insertion sequence number.
type queuedEvent struct {
	ev  Event
	seq uint64
}

// EventQueue implements heap.Interface and orders events by (time, seq).
// The sequence number makes ties dispatch in insertion order, which is
// required for reproducibility given identical seeds.
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-IntHeap
type EventQueue []queuedEvent

func (eq EventQueue) Len() int { return len(eq) }

func (eq EventQueue) Less(i, j int) bool {
	if eq[i].ev.Time() != eq[j].ev.Time() {
		return eq[i].ev.Time() < eq[j].ev.Time()
	}
	return eq[i].seq < eq[j].seq
}

func (eq EventQueue) Swap(i, j int) { eq[i], eq[j] = eq[j], eq[i] }

func (eq *EventQueue) Push(x any) {
	*eq = append(*eq, x.(queuedEvent))
}

func (eq *EventQueue) Pop() any {
	old := *eq
	n := len(old)
	item := old[n-1]
	*eq = old[0 : n-1]
	return item
}

// Simulator is the core object that holds simulation time, the node
// arena, and the event loop. Single-threaded: all state is touched only
// from the event-dispatch loop.
type Simulator struct {
	Clock float64
	// EventQueue holds all pending events in (time, seq) order.
	EventQueue EventQueue
	seq        uint64

	nodes      []Node
	validators []ConsensusNode

	// ConsensusLimit ends the trial once every validator has decided
	// this many instances.
	ConsensusLimit int
	// MaxRuntime bounds real (wall-clock) time spent in the loop.
	MaxRuntime time.Duration
	startedAt  time.Time
}

// NewSimulator creates an empty simulator; topology construction
// populates the arena.
func NewSimulator(consensusLimit int, maxRuntime time.Duration) *Simulator {
	return &Simulator{
		EventQueue:     make(EventQueue, 0),
		ConsensusLimit: consensusLimit,
		MaxRuntime:     maxRuntime,
		startedAt:      time.Now(),
	}
}

// AddNode places a node factory's product in the arena and returns its
// id. Validators are added first so a validator's integer id equals its
// NodeID.
func (s *Simulator) AddNode(build func(id NodeID) Node) Node {
	id := NodeID(len(s.nodes))
	n := build(id)
	s.nodes = append(s.nodes, n)
	return n
}

// RegisterValidator records a consensus endpoint for termination and
// snapshot purposes.
func (s *Simulator) RegisterValidator(v ConsensusNode) {
	s.validators = append(s.validators, v)
}

// Node returns the node with the given id, or an error if the id is not
// in the arena.
func (s *Simulator) Node(id NodeID) (Node, error) {
	if id < 0 || int(id) >= len(s.nodes) {
		return nil, newInvariantErrorf("node %d not in registry of %d nodes", id, len(s.nodes))
	}
	return s.nodes[id], nil
}

// mustNode is the event-side lookup; a miss is a broken kernel
// invariant and fatal.
func (s *Simulator) mustNode(id NodeID) Node {
	n, err := s.Node(id)
	if err != nil {
		panic(err)
	}
	return n
}

// Validators returns the registered consensus endpoints in id order.
func (s *Simulator) Validators() []ConsensusNode {
	return s.validators
}

// Schedule inserts an event into the queue, stamping it with the next
// insertion sequence number.
func (s *Simulator) Schedule(ev Event) {
	s.seq++
	heap.Push(&s.EventQueue, queuedEvent{ev: ev, seq: s.seq})
}

// NotifyAtTime implements TimerNotifier by scheduling a TimerExpiryEvent.
func (s *Simulator) NotifyAtTime(node NodeID, at float64, tag int) {
	s.Schedule(&TimerExpiryEvent{time: at, node: node, tag: tag})
}

// Step pops the earliest event, dispatches it, schedules its follow-up
// events, and returns a human-readable trace line.
func (s *Simulator) Step() string {
	item := heap.Pop(&s.EventQueue).(queuedEvent)
	ev := item.ev
	if ev.Time() < s.Clock {
		panic(newInvariantErrorf("event time %.3f before clock %.3f", ev.Time(), s.Clock))
	}
	s.Clock = ev.Time()
	logrus.Debugf("[t=%.3f] dispatching %T", s.Clock, ev)
	for _, next := range ev.Simulate(s) {
		s.Schedule(next)
	}
	return ev.String()
}

// IsOver reports trial termination: every validator reached the
// consensus limit, the queue drained, or the wall-clock budget expired.
func (s *Simulator) IsOver() bool {
	if len(s.EventQueue) == 0 {
		return true
	}
	if s.MaxRuntime > 0 && time.Since(s.startedAt) > s.MaxRuntime {
		logrus.Warnf("wall-clock budget %v expired at t=%.3f", s.MaxRuntime, s.Clock)
		return true
	}
	if len(s.validators) == 0 {
		return false
	}
	for _, v := range s.validators {
		if v.ConsensusCount() < s.ConsensusLimit {
			return false
		}
	}
	return true
}

// Snapshot lists every validator's state, per-state cumulative times,
// and consensus count.
func (s *Simulator) Snapshot() string {
	var sb strings.Builder
	sb.WriteString("Snapshot:\n")
	for _, v := range s.validators {
		sb.WriteString(v.SnapshotLine())
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("Final simulated time: %.3f", s.Clock))
	return sb.String()
}
