package sim

import "fmt"

// Event defines the interface for all simulation events.
// Each event has a Time (simulated seconds) and a Simulate method that
// advances state and returns the follow-up events to schedule.
//
// Events at equal Time dispatch in insertion order; the Simulator's
// queue attaches a monotonically increasing sequence number on Schedule.
type Event interface {
	Time() float64
	Simulate(s *Simulator) []Event
	String() string
}

// QueueMessageEvent represents a payload arriving at a node's ingress.
type QueueMessageEvent struct {
	time    float64
	node    NodeID
	payload *Payload
}

// NewQueueMessageEvent queues payload at node's ingress at time t.
func NewQueueMessageEvent(t float64, node NodeID, payload *Payload) *QueueMessageEvent {
	return &QueueMessageEvent{time: t, node: node, payload: payload}
}

// Time returns the scheduled time of the QueueMessageEvent.
func (e *QueueMessageEvent) Time() float64 { return e.time }

// Simulate appends the payload to the node's ingress queue and, if the
// node is idle, re-polls it so delivery is picked up immediately.
func (e *QueueMessageEvent) Simulate(s *Simulator) []Event {
	node := s.mustNode(e.node)
	node.Core().Enqueue(e.payload)
	if !node.Core().Busy() {
		return []Event{&PollQueueEvent{time: e.time, node: e.node}}
	}
	return nil
}

func (e *QueueMessageEvent) String() string {
	return fmt.Sprintf("%.3f (QueueMessage): Queued at node %d (%s)", e.time, e.node, e.payload)
}

// ProcessPayloadEvent represents a node starting to serve one payload.
// The node is busy for the drawn service duration; outbound payloads and
// the completion poll land at time+duration.
type ProcessPayloadEvent struct {
	time    float64
	node    NodeID
	payload *Payload
	endTime float64
}

// Time returns the scheduled time of the ProcessPayloadEvent.
func (e *ProcessPayloadEvent) Time() float64 { return e.time }

// Simulate runs the node's handler, converts the produced payloads into
// QueueMessageEvents at each next hop, and schedules the completion poll.
func (e *ProcessPayloadEvent) Simulate(s *Simulator) []Event {
	node := s.mustNode(e.node)
	duration, outbound := node.Process(e.time, e.payload)
	e.endTime = e.time + duration

	events := payloadsToQueueEvents(s, e.endTime, node, outbound)
	events = append(events, &PollQueueEvent{time: e.endTime, node: e.node, completion: true})
	return events
}

func (e *ProcessPayloadEvent) String() string {
	return fmt.Sprintf("%.3f-%.3f (ProcessPayload): Processing payload at node %d (%s)",
		e.time, e.endTime, e.node, e.payload)
}

// PollQueueEvent asks a node to pick up the next queued payload. A
// completion poll first releases the server (it marks the end of a
// ProcessPayloadEvent's busy interval).
type PollQueueEvent struct {
	time       float64
	node       NodeID
	completion bool
}

// NewPollQueueEvent creates an arrival-side poll at time t.
func NewPollQueueEvent(t float64, node NodeID) *PollQueueEvent {
	return &PollQueueEvent{time: t, node: node}
}

// Time returns the scheduled time of the PollQueueEvent.
func (e *PollQueueEvent) Time() float64 { return e.time }

// Simulate dequeues one payload into a ProcessPayloadEvent at the same
// time if the node is idle and its queue non-empty; otherwise the node
// stays (or becomes) idle.
func (e *PollQueueEvent) Simulate(s *Simulator) []Event {
	node := s.mustNode(e.node)
	core := node.Core()
	if e.completion {
		core.SetBusy(false)
	}
	if core.Busy() {
		return nil
	}
	p := core.Dequeue()
	if p == nil {
		return nil
	}
	core.SetBusy(true)
	return []Event{&ProcessPayloadEvent{time: e.time, node: e.node, payload: p}}
}

func (e *PollQueueEvent) String() string {
	return fmt.Sprintf("%.3f (PollQueue): Polling node %d", e.time, e.node)
}

// TimerExpiryEvent fires a consensus timeout at a node. The tag is the
// timer version at registration time; the node discards stale tags.
type TimerExpiryEvent struct {
	time float64
	node NodeID
	tag  int
}

// Time returns the scheduled time of the TimerExpiryEvent.
func (e *TimerExpiryEvent) Time() float64 { return e.time }

// Simulate invokes the node's timer handler and queues any payloads it
// produced. Timer handling itself consumes no service time.
func (e *TimerExpiryEvent) Simulate(s *Simulator) []Event {
	node := s.mustNode(e.node)
	outbound := node.OnTimer(e.time, e.tag)
	return payloadsToQueueEvents(s, e.time, node, outbound)
}

func (e *TimerExpiryEvent) String() string {
	return fmt.Sprintf("%.3f (TimerExpiry): Timer (tag %d) at node %d", e.time, e.tag, e.node)
}

// BootstrapEvent starts a validator's consensus protocol: the validator
// emits its initial payloads (the IBFT view-0 leader's proposal, or a
// HotStuff replica's NEW_VIEW) and arms its first timer.
type BootstrapEvent struct {
	time float64
	node NodeID
}

// NewBootstrapEvent creates the consensus bootstrap for node at time t.
func NewBootstrapEvent(t float64, node NodeID) *BootstrapEvent {
	return &BootstrapEvent{time: t, node: node}
}

// Time returns the scheduled time of the BootstrapEvent.
func (e *BootstrapEvent) Time() float64 { return e.time }

// Simulate invokes the validator's bootstrap and queues its payloads.
func (e *BootstrapEvent) Simulate(s *Simulator) []Event {
	node := s.mustNode(e.node)
	v, ok := node.(ConsensusNode)
	if !ok {
		panic(newInvariantErrorf("bootstrap scheduled for non-validator node %d", e.node))
	}
	return payloadsToQueueEvents(s, e.time, node, v.Bootstrap(e.time))
}

func (e *BootstrapEvent) String() string {
	return fmt.Sprintf("%.3f (Bootstrap): Starting consensus at node %d", e.time, e.node)
}

// payloadsToQueueEvents routes each outbound payload one hop and wraps
// it in a QueueMessageEvent at time t. Iteration order is the order the
// node emitted the payloads, which for broadcasts is validator-id order;
// insertion order at equal timestamps preserves it.
func payloadsToQueueEvents(s *Simulator, t float64, node Node, payloads []*Payload) []Event {
	events := make([]Event, 0, len(payloads))
	for _, p := range payloads {
		hop, err := node.NextHop(p)
		if err != nil {
			panic(newInvariantErrorf("no next hop from %s for %s: %v", node.Core().Name(), p, err))
		}
		events = append(events, &QueueMessageEvent{time: t, node: hop, payload: p})
	}
	return events
}
