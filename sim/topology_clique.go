package sim

import "fmt"

// arrangeCliqueStructure gives every endpoint a proxy switch and makes
// every proxy a neighbor of every other proxy. With the instantaneous
// switch rate the proxies are transparent and the fabric behaves as a
// fully connected graph.
func arrangeCliqueStructure(endpoints []Endpoint, factory *switchFactory) ([][]*Switch, error) {
	switches := make([]*Switch, 0, len(endpoints))
	for _, e := range endpoints {
		sw := factory.new(fmt.Sprintf("Switch-%s", e.Core().Name()))
		sw.SetEndpoints([]NodeID{e.Core().ID()})
		e.SetUplinks([]NodeID{sw.Core().ID()})
		switches = append(switches, sw)
	}

	allIDs := ids(switches)
	for i, sw := range switches {
		neighbors := make([]NodeID, 0, len(allIDs)-1)
		for j, id := range allIDs {
			if j != i {
				neighbors = append(neighbors, id)
			}
		}
		sw.SetNeighbors(neighbors)
	}

	if err := UpdateRoutingTables(switches); err != nil {
		return nil, err
	}
	return [][]*Switch{switches}, nil
}
