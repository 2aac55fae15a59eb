package traverse

import (
	"fmt"
	"io"
	"sort"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
)

// WriteDOT renders the discovered reference graph in Graphviz DOT format.
func (r *Result) WriteDOT(w io.Writer) error {
	if err := draw.DOT(r.Graph, w); err != nil {
		return fmt.Errorf("failed to render graph: %w", err)
	}
	return nil
}

// EdgeCount returns the number of distinct reference edges discovered.
func (r *Result) EdgeCount() int {
	size, err := r.Graph.Size()
	if err != nil {
		return 0
	}
	return size
}

// Cycles returns the groups of modules that reference each other, directly
// or transitively. Each group is sorted by ID and groups are sorted by their
// first member. Self-references are reported as single-member groups.
func (r *Result) Cycles() ([][]string, error) {
	components, err := graph.StronglyConnectedComponents(r.Graph)
	if err != nil {
		return nil, fmt.Errorf("failed to compute strongly connected components: %w", err)
	}

	adjacency, err := r.Graph.AdjacencyMap()
	if err != nil {
		return nil, fmt.Errorf("failed to read adjacency map: %w", err)
	}

	var cycles [][]string
	for _, component := range components {
		if len(component) == 1 {
			id := component[0]
			if _, self := adjacency[id][id]; !self {
				continue
			}
		}
		sorted := append([]string(nil), component...)
		sort.Strings(sorted)
		cycles = append(cycles, sorted)
	}

	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i][0] < cycles[j][0]
	})
	return cycles, nil
}
