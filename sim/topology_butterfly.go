package sim

import "fmt"

// arrangeButterflyStructure builds a unidirectional butterfly: switch
// edges point upward level by level, and the last layer delivers
// directly to consecutive radix-sized endpoint blocks (the pre-wired
// return path).
func arrangeButterflyStructure(endpoints []Endpoint, params []int, factory *switchFactory) ([][]*Switch, error) {
	grouped, err := arrangeButterflyLayers(endpoints, params, factory, false)
	if err != nil {
		return nil, err
	}

	radix := params[0]
	lastLayer := grouped[len(grouped)-1]
	numGroups := len(grouped[0])
	for i := 0; i < numGroups && i < len(lastLayer); i++ {
		if i*radix >= len(endpoints) {
			break
		}
		end := min((i+1)*radix, len(endpoints))
		lastLayer[i].SetEndpoints(endpointIDs(endpoints[i*radix : end]))
	}

	if err := UpdateRoutingTables(flatten(grouped)); err != nil {
		return nil, err
	}
	return grouped, nil
}

// arrangeFoldedClosStructure builds the same skeleton as the butterfly
// but with bidirectional switch edges; endpoints stay attached at the
// first layer and traffic descends back down to its destination.
func arrangeFoldedClosStructure(endpoints []Endpoint, params []int, factory *switchFactory) ([][]*Switch, error) {
	grouped, err := arrangeButterflyLayers(endpoints, params, factory, true)
	if err != nil {
		return nil, err
	}
	if err := UpdateRoutingTables(flatten(grouped)); err != nil {
		return nil, err
	}
	return grouped, nil
}

// arrangeButterflyLayers creates the layered switch skeleton shared by
// butterfly and folded-Clos. backward wires the downward edges and the
// first-layer endpoint delivery used by folded-Clos.
func arrangeButterflyLayers(endpoints []Endpoint, params []int, factory *switchFactory, backward bool) ([][]*Switch, error) {
	if len(params) < 3 {
		return nil, newTopologyErrorf("butterfly topologies need parameters [radix, initialConnection, layerScheme]")
	}
	radix, mode, scheme := params[0], params[1], params[2]
	if radix < 2 {
		return nil, newTopologyErrorf("radix must be >= 2, got %d", radix)
	}
	if mode != 0 && mode != 1 {
		return nil, newTopologyErrorf("initial connection parameter (second field) must be 0 or 1, got %d", mode)
	}
	if scheme != 0 && scheme != 1 {
		return nil, newTopologyErrorf("next layer parameter (third field) must be 0 or 1, got %d", scheme)
	}

	n := len(endpoints)
	minSwitches := ceilDiv(n, radix)
	levels := ceilLog(minSwitches, radix)
	numFirstLayer := intPow(radix, levels)

	blocks := firstLayerBlocks(endpoints, numFirstLayer, radix, mode)

	firstLayer := make([]*Switch, 0, numFirstLayer)
	for i := 0; i < numFirstLayer; i++ {
		sw := factory.new(treeSwitchName(1, 0, i))
		if backward {
			sw.SetEndpoints(endpointIDs(blocks[i]))
		}
		for _, e := range blocks[i] {
			e.SetUplinks([]NodeID{sw.Core().ID()})
		}
		firstLayer = append(firstLayer, sw)
	}

	grouped := [][]*Switch{firstLayer}
	prevGroups := [][]*Switch{firstLayer}
	layer := 2
	for {
		var newGroups [][]*Switch
		for g, prevGroup := range prevGroups {
			if scheme == 0 {
				newGroups = append(newGroups, addNextSwitchLayer(prevGroup, radix, layer, g, factory, backward)...)
			} else {
				newGroups = append(newGroups, addNextSwitchLayerWide(prevGroup, radix, layer, g, factory, backward)...)
			}
		}
		layer++
		prevGroups = newGroups

		var flat []*Switch
		for _, group := range newGroups {
			flat = append(flat, group...)
		}
		grouped = append(grouped, flat)

		if len(newGroups[0]) <= 1 {
			break
		}
	}
	return grouped, nil
}

// firstLayerBlocks assigns endpoints to first-layer switches. mode 0 is
// flushed (consecutive blocks of radix, trailing switches empty); mode 1
// is spread (balanced consecutive slices, remainder to the earliest
// groups).
func firstLayerBlocks(endpoints []Endpoint, numFirstLayer, radix, mode int) [][]Endpoint {
	n := len(endpoints)
	blocks := make([][]Endpoint, numFirstLayer)
	if mode == 1 {
		minPer := n / numFirstLayer
		extra := n % numFirstLayer
		start := 0
		for i := 0; i < numFirstLayer; i++ {
			end := start + minPer
			if i < extra {
				end++
			}
			blocks[i] = endpoints[start:end]
			start = end
		}
		return blocks
	}
	for i := 0; i < numFirstLayer; i++ {
		if i*radix >= n {
			break
		}
		blocks[i] = endpoints[i*radix : min((i+1)*radix, n)]
	}
	return blocks
}

// addNextSwitchLayer grows the next layer maximizing the number of
// groups: a group of m switches fans into radix groups of m/radix.
func addNextSwitchLayer(prevLayer []*Switch, radix, level, group int, factory *switchFactory, backward bool) [][]*Switch {
	numNodes := len(prevLayer)
	numGroups := max(numNodes/radix, 1)
	r := min(numNodes, radix)

	next := make([][]*Switch, r)
	for groupNumber := 0; groupNumber < numGroups; groupNumber++ {
		newGroup := make([]*Switch, r)
		for index := 0; index < r; index++ {
			newGroup[index] = factory.new(treeSwitchName(level, r*group+index, groupNumber))
		}
		prevGroup := make([]*Switch, r)
		for index := 0; index < r; index++ {
			prevGroup[index] = prevLayer[index*numGroups+groupNumber]
		}

		newIDs := ids(newGroup)
		for _, prev := range prevGroup {
			prev.AddNeighbors(newIDs)
		}
		if backward {
			prevIDs := ids(prevGroup)
			for _, sw := range newGroup {
				sw.SetNeighbors(prevIDs)
			}
		}
		for index := 0; index < r; index++ {
			next[index] = append(next[index], newGroup[index])
		}
	}
	return next
}

// addNextSwitchLayerWide grows the next layer maximizing group size: a
// group of m switches collapses into radix groups whose members each
// connect across all sub-blocks of the previous layer.
func addNextSwitchLayerWide(prevLayer []*Switch, radix, level, group int, factory *switchFactory, backward bool) [][]*Switch {
	numNodes := len(prevLayer)
	groupSize := intPow(radix, max(ceilLog(numNodes, radix)-1, 0))
	numGroups := max(numNodes/groupSize, 1)

	next := make([][]*Switch, numGroups)
	for groupNumber := 0; groupNumber < numGroups; groupNumber++ {
		for index := 0; index < groupSize; index++ {
			sw := factory.new(treeSwitchName(level, group*groupSize+groupNumber, index))
			prevNeighbors := make([]*Switch, numGroups)
			for prevIndex := 0; prevIndex < numGroups; prevIndex++ {
				prevNeighbors[prevIndex] = prevLayer[index+groupSize*prevIndex]
			}
			for _, prev := range prevNeighbors {
				prev.AddNeighbors([]NodeID{sw.Core().ID()})
			}
			if backward {
				sw.SetNeighbors(ids(prevNeighbors))
			}
			next[groupNumber] = append(next[groupNumber], sw)
		}
	}
	return next
}

func treeSwitchName(level, group, index int) string {
	return fmt.Sprintf("Tree-Switch-(level: %d, group: %d, index: %d)", level, group, index)
}
