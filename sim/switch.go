package sim

import "fmt"

// Switch is a store-and-forward relay. It serves one payload at a time
// and forwards it along the shortest path its routing table prescribes.
type Switch struct {
	core *NodeCore

	// endpoints directly attached to this switch (delivery hops).
	endpoints []NodeID
	// neighbors are the forward switch-switch edges. For butterfly
	// fabrics the edge set is directed; for all other topologies both
	// directions are wired.
	neighbors []NodeID

	// routes maps every endpoint in the fabric to the next hop, either
	// a neighbor switch or a directly-attached endpoint. After
	// construction it covers every endpoint, except on a switch with no
	// forward edges, which holds routes only to its attached endpoints.
	routes map[NodeID]NodeID
}

// NewSwitch creates a switch with empty wiring.
func NewSwitch(id NodeID, name string, sampler *ExponentialSampler) *Switch {
	return &Switch{
		core:   NewNodeCore(id, name, sampler),
		routes: make(map[NodeID]NodeID),
	}
}

// Core returns the shared node state.
func (sw *Switch) Core() *NodeCore { return sw.core }

// SetEndpoints declares the endpoints directly attached to this switch.
func (sw *Switch) SetEndpoints(endpoints []NodeID) {
	sw.endpoints = append([]NodeID(nil), endpoints...)
}

// Endpoints returns the directly-attached endpoints.
func (sw *Switch) Endpoints() []NodeID { return sw.endpoints }

// SetNeighbors replaces the forward neighbor set.
func (sw *Switch) SetNeighbors(neighbors []NodeID) {
	sw.neighbors = append([]NodeID(nil), neighbors...)
}

// AddNeighbors appends forward neighbors, skipping self and duplicates.
func (sw *Switch) AddNeighbors(neighbors []NodeID) {
	for _, n := range neighbors {
		if n == sw.core.ID() {
			continue
		}
		dup := false
		for _, existing := range sw.neighbors {
			if existing == n {
				dup = true
				break
			}
		}
		if !dup {
			sw.neighbors = append(sw.neighbors, n)
		}
	}
}

// Neighbors returns the forward neighbor set.
func (sw *Switch) Neighbors() []NodeID { return sw.neighbors }

// SetRoute records the next hop for an endpoint.
func (sw *Switch) SetRoute(endpoint, hop NodeID) {
	sw.routes[endpoint] = hop
}

// Route returns the next hop toward endpoint.
func (sw *Switch) Route(endpoint NodeID) (NodeID, bool) {
	hop, ok := sw.routes[endpoint]
	return hop, ok
}

// Process relays one payload: draw the service time and emit exactly one
// outbound copy stamped with this switch as the last hop.
func (sw *Switch) Process(now float64, p *Payload) (float64, []*Payload) {
	return sw.core.SampleServiceTime(), []*Payload{p.Forwarded(sw.core.ID())}
}

// OnTimer is a no-op; switches register no timers.
func (sw *Switch) OnTimer(now float64, tag int) []*Payload { return nil }

// NextHop looks up the routing table for the payload's final
// destination.
func (sw *Switch) NextHop(p *Payload) (NodeID, error) {
	hop, ok := sw.routes[p.Dest]
	if !ok {
		return NoNode, fmt.Errorf("no route from %s to endpoint %d", sw.core.Name(), p.Dest)
	}
	return hop, nil
}
