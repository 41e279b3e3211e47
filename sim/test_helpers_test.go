package sim

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// cliqueConfig builds the canonical small test configuration: a clique
// of instantaneous validators and switches.
func cliqueConfig(numNodes, numConsensus int) *RunConfig {
	return &RunConfig{
		NumRuns:              1,
		NumConsensus:         numConsensus,
		StartingSeed:         0,
		SeedMultiplier:       100,
		NumNodes:             numNodes,
		NodeProcessingRate:   RateInstant,
		SwitchProcessingRate: RateInstant,
		BaseTimeLimit:        10000,
		NetworkType:          NetworkClique,
		ConsensusProtocol:    ProtocolIBFT,
	}
}

// runTrialForTest builds and runs trial 0 of cfg, discarding the trace.
func runTrialForTest(t *testing.T, cfg *RunConfig) (*Simulator, *TrialResult) {
	t.Helper()
	s, err := BuildTrial(cfg, 0, time.Minute)
	require.NoError(t, err)
	result, err := RunTrial(s, io.Discard)
	require.NoError(t, err)
	return s, result
}

// runTrialTrace builds and runs trial 0 of cfg, returning the trace.
func runTrialTrace(t *testing.T, cfg *RunConfig) (*Simulator, string) {
	t.Helper()
	s, err := BuildTrial(cfg, 0, time.Minute)
	require.NoError(t, err)
	var sb strings.Builder
	_, err = RunTrial(s, &sb)
	require.NoError(t, err)
	return s, sb.String()
}

// testEndpoint is a minimal fabric endpoint that records what it
// receives; used by kernel and routing tests that need no consensus.
type testEndpoint struct {
	core        *NodeCore
	uplinks     []NodeID
	received    []*Payload
	processedAt []float64
}

func newTestFabricEndpoint(s *Simulator, name string, sampler *ExponentialSampler) *testEndpoint {
	return s.AddNode(func(id NodeID) Node {
		return &testEndpoint{core: NewNodeCore(id, name, sampler)}
	}).(*testEndpoint)
}

func (e *testEndpoint) Core() *NodeCore { return e.core }

func (e *testEndpoint) Process(now float64, p *Payload) (float64, []*Payload) {
	e.received = append(e.received, p)
	e.processedAt = append(e.processedAt, now)
	return e.core.SampleServiceTime(), nil
}

func (e *testEndpoint) OnTimer(now float64, tag int) []*Payload { return nil }

func (e *testEndpoint) NextHop(p *Payload) (NodeID, error) {
	return e.uplinks[0], nil
}

func (e *testEndpoint) SetUplinks(uplinks []NodeID) { e.uplinks = uplinks }

// testMessage is an opaque payload body for fabric-only tests.
type testMessage string

func (m testMessage) String() string { return string(m) }

// newTestFabric builds a fabric of testEndpoints over the given
// topology with instantaneous switches.
func newTestFabric(t *testing.T, n int, network NetworkType, params []int) (*Simulator, []*testEndpoint, [][]*Switch) {
	t.Helper()
	s := NewSimulator(1, time.Minute)
	rng := NewPartitionedRNG(NewSimulationKey(0, 100, 0))
	stream := rng.ForSubsystem(SubsystemService)

	eps := make([]*testEndpoint, 0, n)
	ifaces := make([]Endpoint, 0, n)
	for i := 0; i < n; i++ {
		e := newTestFabricEndpoint(s, fmt.Sprintf("EP-%d", i), NewExponentialSampler(RateInstant, stream))
		eps = append(eps, e)
		ifaces = append(ifaces, e)
	}
	cfg := &RunConfig{NetworkType: network, NetworkParameters: params, SwitchProcessingRate: RateInstant}
	grouped, err := BuildTopology(s, cfg, ifaces, rng)
	require.NoError(t, err)
	return s, eps, grouped
}

// switchHops follows the routing tables from a switch toward an
// endpoint, returning the number of switch-to-switch hops taken.
func switchHops(t *testing.T, from *Switch, dest NodeID, all []*Switch) int {
	t.Helper()
	byID := make(map[NodeID]*Switch, len(all))
	for _, sw := range all {
		byID[sw.Core().ID()] = sw
	}
	cur := from
	hops := 0
	for !attachesEndpoint(cur, dest) {
		next, ok := cur.Route(dest)
		require.True(t, ok, "no route from %s to endpoint %d", cur.Core().Name(), dest)
		nextSwitch, isSwitch := byID[next]
		require.True(t, isSwitch, "route from %s to %d left the switch graph early", cur.Core().Name(), dest)
		cur = nextSwitch
		hops++
		require.LessOrEqual(t, hops, len(all), "routing loop toward endpoint %d", dest)
	}
	return hops
}
