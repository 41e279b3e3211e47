package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouting_CliqueSingleHop(t *testing.T) {
	_, eps, grouped := newTestFabric(t, 4, NetworkClique, nil)
	require.Len(t, grouped, 1)
	proxies := grouped[0]
	require.Len(t, proxies, 4)

	// A proxy reaches its own endpoint directly and any other in one
	// switch hop.
	assert.Equal(t, 0, switchHops(t, proxies[0], eps[0].Core().ID(), proxies))
	for i := 1; i < 4; i++ {
		assert.Equal(t, 1, switchHops(t, proxies[0], eps[i].Core().ID(), proxies))
	}
}

func TestRouting_MeshCornerToCorner(t *testing.T) {
	_, eps, grouped := newTestFabric(t, 9, NetworkMesh, []int{3})
	require.Len(t, grouped, 3)
	all := flatten(grouped)
	require.Len(t, all, 9)

	// Corner (0,0) to the opposite corner (2,2) is 4 switch hops
	// without wraparound.
	corner := grouped[0][0]
	opposite := eps[8].Core().ID()
	assert.Equal(t, 4, switchHops(t, corner, opposite, all))
}

func TestRouting_TorusWraparound(t *testing.T) {
	_, eps, grouped := newTestFabric(t, 9, NetworkTorus, []int{3})
	all := flatten(grouped)

	// The same corner pair shortcuts across the wraparound edges.
	corner := grouped[0][0]
	opposite := eps[8].Core().ID()
	assert.Equal(t, 2, switchHops(t, corner, opposite, all))
}

func TestRouting_TotalityOverFoldedClos(t *testing.T) {
	_, eps, grouped := newTestFabric(t, 64, NetworkFoldedClos, []int{5, 1, 0})
	all := flatten(grouped)

	// Every switch has a defined route to every endpoint, and following
	// routes terminates within the fabric diameter.
	for _, sw := range all {
		for _, e := range eps {
			_, ok := sw.Route(e.Core().ID())
			require.True(t, ok, "no route from %s to %s", sw.Core().Name(), e.Core().Name())
		}
	}
	for _, src := range eps {
		entry := switchByID(all, src.uplinks[0])
		require.NotNil(t, entry)
		for _, dst := range eps {
			hops := switchHops(t, entry, dst.Core().ID(), all)
			assert.LessOrEqual(t, hops, 2*len(grouped))
		}
	}
}

func TestRouting_ButterflyUpwardDelivery(t *testing.T) {
	_, eps, grouped := newTestFabric(t, 8, NetworkButterfly, []int{2, 0, 0})
	all := flatten(grouped)

	// Entry switches climb the directed fabric to the delivery layer
	// for every destination.
	for _, src := range eps {
		entry := switchByID(all, src.uplinks[0])
		require.NotNil(t, entry)
		for _, dst := range eps {
			switchHops(t, entry, dst.Core().ID(), all)
		}
	}
}

func TestRouting_UnreachableEndpointFails(t *testing.T) {
	stream := rand.New(rand.NewSource(0))
	sampler := NewExponentialSampler(RateInstant, stream)

	// Two connected switches serving endpoint 0, and an isolated island
	// switch serving endpoint 1.
	s1 := NewSwitch(10, "S1", sampler)
	s2 := NewSwitch(11, "S2", sampler)
	island := NewSwitch(12, "Island", sampler)
	s1.SetEndpoints([]NodeID{0})
	island.SetEndpoints([]NodeID{1})
	s1.SetNeighbors([]NodeID{11})
	s2.SetNeighbors([]NodeID{10})

	err := UpdateRoutingTables([]*Switch{s1, s2, island})
	require.Error(t, err)
	var topoErr *TopologyError
	assert.ErrorAs(t, err, &topoErr)
}

func TestRouting_LowerIDTieBreak(t *testing.T) {
	stream := rand.New(rand.NewSource(0))
	sampler := NewExponentialSampler(RateInstant, stream)

	// Diamond: source connects to two switches at equal distance from
	// the destination; the lower-id one must win.
	src := NewSwitch(10, "Src", sampler)
	left := NewSwitch(11, "Left", sampler)
	right := NewSwitch(12, "Right", sampler)
	dst := NewSwitch(13, "Dst", sampler)
	dst.SetEndpoints([]NodeID{0})

	src.SetNeighbors([]NodeID{12, 11}) // declaration order must not matter
	left.SetNeighbors([]NodeID{10, 13})
	right.SetNeighbors([]NodeID{10, 13})
	dst.SetNeighbors([]NodeID{11, 12})

	require.NoError(t, UpdateRoutingTables([]*Switch{src, left, right, dst}))
	hop, ok := src.Route(0)
	require.True(t, ok)
	assert.Equal(t, NodeID(11), hop)
}

func switchByID(all []*Switch, id NodeID) *Switch {
	for _, sw := range all {
		if sw.Core().ID() == id {
			return sw
		}
	}
	return nil
}
