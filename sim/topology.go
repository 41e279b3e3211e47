package sim

// Endpoint is the attachment-side view of a validator the topology
// constructors wire into the fabric.
type Endpoint interface {
	Node
	SetUplinks(uplinks []NodeID)
}

// switchFactory creates fabric switches in the simulator's arena with a
// shared service-time sampler configuration.
type switchFactory struct {
	s    *Simulator
	rate float64
	rng  *PartitionedRNG
}

func (f *switchFactory) new(name string) *Switch {
	sampler := NewExponentialSampler(f.rate, f.rng.ForSubsystem(SubsystemService))
	return f.s.AddNode(func(id NodeID) Node {
		return NewSwitch(id, name, sampler)
	}).(*Switch)
}

// BuildTopology constructs the fabric named by the configuration,
// wires endpoint uplinks and switch edges, and computes every routing
// table. It returns the switches grouped the way the constructor
// arranges them (grid rows, butterfly levels, or a single group).
func BuildTopology(s *Simulator, cfg *RunConfig, endpoints []Endpoint, rng *PartitionedRNG) ([][]*Switch, error) {
	factory := &switchFactory{s: s, rate: cfg.SwitchProcessingRate, rng: rng}
	switch cfg.NetworkType {
	case NetworkClique:
		return arrangeCliqueStructure(endpoints, factory)
	case NetworkMesh:
		return arrangeMeshStructure(endpoints, cfg.NetworkParameters, factory)
	case NetworkTorus:
		return arrangeTorusStructure(endpoints, cfg.NetworkParameters, factory)
	case NetworkButterfly:
		return arrangeButterflyStructure(endpoints, cfg.NetworkParameters, factory)
	case NetworkFoldedClos:
		return arrangeFoldedClosStructure(endpoints, cfg.NetworkParameters, factory)
	default:
		return nil, newTopologyErrorf("unknown network type %q", cfg.NetworkType)
	}
}

func ids(switches []*Switch) []NodeID {
	out := make([]NodeID, len(switches))
	for i, sw := range switches {
		out[i] = sw.Core().ID()
	}
	return out
}

func endpointIDs(endpoints []Endpoint) []NodeID {
	out := make([]NodeID, len(endpoints))
	for i, e := range endpoints {
		out[i] = e.Core().ID()
	}
	return out
}

func flatten(grouped [][]*Switch) []*Switch {
	var all []*Switch
	for _, group := range grouped {
		all = append(all, group...)
	}
	return all
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// intPow returns base^exp for small non-negative exponents.
func intPow(base, exp int) int {
	result := 1
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// ceilLog returns the smallest L with base^L >= n.
func ceilLog(n, base int) int {
	l, p := 0, 1
	for p < n {
		p *= base
		l++
	}
	return l
}
