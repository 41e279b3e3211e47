package sim

import "sort"

// UpdateRoutingTables computes, for every switch in the fabric, the
// next hop toward every endpoint on a shortest path.
//
// For each endpoint the search is a BFS from the endpoint's attach
// switches, relaxing over the reversed switch-switch edges; a switch's
// next hop is then its forward neighbor with the smallest distance,
// ties broken by lower switch id. Directed fabrics (butterfly) work
// unchanged because only forward edges are followed hop by hop.
//
// Returns a TopologyError if any endpoint is unreachable from a switch
// that has forward edges. A switch with no forward edges gets routes
// only to the endpoints it attaches; it is not checked for the others.
func UpdateRoutingTables(switches []*Switch) error {
	index := make(map[NodeID]int, len(switches))
	for i, sw := range switches {
		index[sw.Core().ID()] = i
	}

	// Reverse adjacency over switch-switch edges.
	reverse := make([][]int, len(switches))
	for i, sw := range switches {
		for _, nb := range sw.Neighbors() {
			j, ok := index[nb]
			if !ok {
				return newTopologyErrorf("switch %s lists neighbor %d outside the fabric",
					sw.Core().Name(), nb)
			}
			reverse[j] = append(reverse[j], i)
		}
	}

	endpoints := collectEndpoints(switches)
	for _, endpoint := range endpoints {
		dist := bfsDistancesTo(switches, reverse, endpoint)
		for i, sw := range switches {
			if attachesEndpoint(sw, endpoint) {
				sw.SetRoute(endpoint, endpoint)
				continue
			}
			hop, found := NoNode, false
			best := 0
			for _, nb := range sw.Neighbors() {
				j := index[nb]
				if dist[j] < 0 {
					continue
				}
				if !found || dist[j] < best || (dist[j] == best && nb < hop) {
					hop, best, found = nb, dist[j], true
				}
			}
			if !found {
				// A switch with no forward edges is a terminal delivery
				// hop in a directed fabric; no route ever leads through
				// it toward an endpoint it does not attach.
				if len(sw.Neighbors()) == 0 {
					continue
				}
				return newTopologyErrorf("endpoint %d unreachable from switch %s (i=%d)",
					endpoint, sw.Core().Name(), i)
			}
			sw.SetRoute(endpoint, hop)
		}
	}
	return nil
}

// collectEndpoints returns the sorted union of directly-attached
// endpoints across the fabric.
func collectEndpoints(switches []*Switch) []NodeID {
	seen := make(map[NodeID]bool)
	for _, sw := range switches {
		for _, e := range sw.Endpoints() {
			seen[e] = true
		}
	}
	endpoints := make([]NodeID, 0, len(seen))
	for e := range seen {
		endpoints = append(endpoints, e)
	}
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i] < endpoints[j] })
	return endpoints
}

// bfsDistancesTo returns, per switch index, the hop distance to the
// endpoint's attach switches, or -1 when unreachable. Distances follow
// reversed edges so that forward hops descend toward the endpoint.
func bfsDistancesTo(switches []*Switch, reverse [][]int, endpoint NodeID) []int {
	dist := make([]int, len(switches))
	for i := range dist {
		dist[i] = -1
	}
	queue := make([]int, 0, len(switches))
	for i, sw := range switches {
		if attachesEndpoint(sw, endpoint) {
			dist[i] = 0
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, prev := range reverse[cur] {
			if dist[prev] < 0 {
				dist[prev] = dist[cur] + 1
				queue = append(queue, prev)
			}
		}
	}
	return dist
}

func attachesEndpoint(sw *Switch, endpoint NodeID) bool {
	for _, e := range sw.Endpoints() {
		if e == endpoint {
			return true
		}
	}
	return false
}
