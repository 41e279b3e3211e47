package sim

import "fmt"

// arrangeMeshStructure builds an n x (N/n) grid of switches with
// 4-neighborhoods and no wraparound. Each switch proxies exactly one
// endpoint.
func arrangeMeshStructure(endpoints []Endpoint, params []int, factory *switchFactory) ([][]*Switch, error) {
	n, m, err := gridDimensions(endpoints, params)
	if err != nil {
		return nil, err
	}

	grid := createSwitchGrid(endpoints, n, m, "Mesh-Switch-(x: %d, y: %d)", factory)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			var neighbors []NodeID
			for _, d := range [][2]int{{i - 1, j}, {i + 1, j}, {i, j - 1}, {i, j + 1}} {
				if d[0] >= 0 && d[0] < n && d[1] >= 0 && d[1] < m {
					neighbors = append(neighbors, grid[d[0]][d[1]].Core().ID())
				}
			}
			grid[i][j].SetNeighbors(neighbors)
		}
	}

	if err := UpdateRoutingTables(flatten(grid)); err != nil {
		return nil, err
	}
	return grid, nil
}

// arrangeTorusStructure builds the same grid as the mesh but with
// wraparound on both axes.
func arrangeTorusStructure(endpoints []Endpoint, params []int, factory *switchFactory) ([][]*Switch, error) {
	n, m, err := gridDimensions(endpoints, params)
	if err != nil {
		return nil, err
	}

	grid := createSwitchGrid(endpoints, n, m, "Torus-Switch-(x: %d, y: %d)", factory)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			sw := grid[i][j]
			for _, d := range [][2]int{{i - 1, j}, {i + 1, j}, {i, j - 1}, {i, j + 1}} {
				x := (d[0] + n) % n
				y := (d[1] + m) % m
				sw.AddNeighbors([]NodeID{grid[x][y].Core().ID()})
			}
		}
	}

	if err := UpdateRoutingTables(flatten(grid)); err != nil {
		return nil, err
	}
	return grid, nil
}

func gridDimensions(endpoints []Endpoint, params []int) (n, m int, err error) {
	if len(params) == 0 {
		return 0, 0, newTopologyErrorf("side length parameter required for grid topologies")
	}
	n = params[0]
	if n <= 0 {
		return 0, 0, newTopologyErrorf("side length must be positive, got %d", n)
	}
	if len(endpoints)%n != 0 {
		return 0, 0, newTopologyErrorf("side length %d does not divide number of nodes %d",
			n, len(endpoints))
	}
	return n, len(endpoints) / n, nil
}

// createSwitchGrid creates an n x m array of switches, each directly
// connected to a unique endpoint. Edges are wired by the callers.
func createSwitchGrid(endpoints []Endpoint, n, m int, nameFormat string, factory *switchFactory) [][]*Switch {
	grid := make([][]*Switch, n)
	for i := 0; i < n; i++ {
		grid[i] = make([]*Switch, m)
		for j := 0; j < m; j++ {
			sw := factory.new(fmt.Sprintf(nameFormat, i, j))
			endpoint := endpoints[i*m+j]
			sw.SetEndpoints([]NodeID{endpoint.Core().ID()})
			endpoint.SetUplinks([]NodeID{sw.Core().ID()})
			grid[i][j] = sw
		}
	}
	return grid
}
