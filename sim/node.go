package sim

// Node is the capability interface the simulator dispatches on. A node
// consumes one payload at a time (its single server), may produce
// outbound payloads, and may react to timer expiries.
type Node interface {
	// Core exposes the shared ingress queue, busy flag, and sampler.
	Core() *NodeCore
	// Process consumes one payload at time now. It returns the drawn
	// service duration and the outbound payloads decided during
	// processing (possibly none).
	Process(now float64, p *Payload) (float64, []*Payload)
	// OnTimer fires a timer expiry carrying the given version tag.
	// Implementations discard stale tags.
	OnTimer(now float64, tag int) []*Payload
	// NextHop picks the next node for an outbound payload leaving this
	// node: the routing table for switches, a random uplink for
	// endpoints.
	NextHop(p *Payload) (NodeID, error)
}

// NodeCore carries the state every node shares: identity, the FIFO
// ingress queue, the busy flag, and the service-time sampler.
//
// Invariant: a node is busy iff exactly one ProcessPayloadEvent for it
// is outstanding.
type NodeCore struct {
	id      NodeID
	name    string
	ingress []*Payload
	busy    bool
	sampler *ExponentialSampler
}

// NewNodeCore creates a core with an empty ingress queue.
func NewNodeCore(id NodeID, name string, sampler *ExponentialSampler) *NodeCore {
	return &NodeCore{id: id, name: name, sampler: sampler}
}

// ID returns the node's arena index.
func (c *NodeCore) ID() NodeID { return c.id }

// Name returns the node's display name.
func (c *NodeCore) Name() string { return c.name }

// Enqueue appends a payload to the back of the ingress queue.
func (c *NodeCore) Enqueue(p *Payload) {
	c.ingress = append(c.ingress, p)
}

// Dequeue removes the payload at the front of the ingress queue.
// Returns nil if the queue is empty.
func (c *NodeCore) Dequeue() *Payload {
	if len(c.ingress) == 0 {
		return nil
	}
	p := c.ingress[0]
	c.ingress = c.ingress[1:]
	return p
}

// QueueLen returns the number of queued payloads.
func (c *NodeCore) QueueLen() int { return len(c.ingress) }

// Busy reports whether the node's server is occupied.
func (c *NodeCore) Busy() bool { return c.busy }

// SetBusy flips the busy flag; only the poll/process events touch it.
func (c *NodeCore) SetBusy(b bool) { c.busy = b }

// SampleServiceTime draws the next service time for this node.
func (c *NodeCore) SampleServiceTime() float64 {
	return c.sampler.Sample()
}

// TimerNotifier registers timer expiries on behalf of nodes. The
// Simulator implements it by scheduling TimerExpiryEvents.
type TimerNotifier interface {
	NotifyAtTime(node NodeID, at float64, tag int)
}
