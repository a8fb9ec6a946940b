package crossproject

import (
	"context"
	"sort"

	"github.com/scooter-lacroix/leindex/internal/pdg"
	"github.com/scooter-lacroix/leindex/internal/types"
)

// DefaultPropagationDepth bounds how far a peer change walks through
// external edges.
const DefaultPropagationDepth = 2

// Merged is a cross-project graph: local nodes first, then every peer's
// nodes remapped into a dense non-overlapping id range and tagged external.
type Merged struct {
	Graph *pdg.Graph
	// Remap translates (source graph index, old id) to the merged id.
	// Index 0 is the local graph; peers follow in argument order.
	Remap []map[pdg.NodeID]pdg.NodeID

	maxDepth int
}

// Merge builds the merged view. Symbols colliding on (qualified name,
// project) keep the local copy; the peer's duplicate is dropped and its
// edges reattach to the survivor.
func Merge(local *pdg.Graph, peers []*pdg.Graph, maxDepth int) (*Merged, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultPropagationDepth
	}
	merged := &Merged{
		Graph:    pdg.New(),
		Remap:    make([]map[pdg.NodeID]pdg.NodeID, len(peers)+1),
		maxDepth: maxDepth,
	}

	sources := append([]*pdg.Graph{local}, peers...)
	for si, src := range sources {
		remap := make(map[pdg.NodeID]pdg.NodeID)
		merged.Remap[si] = remap
		external := si > 0
		for _, oldID := range src.NodeIDs() {
			n, ok := src.GetNode(oldID)
			if !ok {
				continue
			}
			var newID pdg.NodeID
			var err error
			if external {
				newID, err = merged.Graph.AddExternalNode(n.Project, n.SymbolRecord, n.ContentHash)
			} else {
				newID, err = merged.Graph.AddNode(n.Project, n.SymbolRecord, n.ContentHash)
			}
			if err != nil {
				// Collision with an earlier source: reattach to the survivor.
				if existing, found := merged.Graph.FindBySymbol(n.Project, n.QualifiedName); found {
					remap[oldID] = existing
					continue
				}
				return nil, err
			}
			remap[oldID] = newID
		}
	}

	for si, src := range sources {
		remap := merged.Remap[si]
		for _, e := range src.Edges() {
			from, okFrom := remap[e.From]
			to, okTo := remap[e.To]
			if !okFrom || !okTo {
				continue
			}
			var meta *pdg.EdgeMeta
			if e.Meta != nil {
				cp := *e.Meta
				meta = &cp
			}
			if err := merged.Graph.AddEdge(from, to, e.Kind, meta); err != nil {
				return nil, err
			}
		}
	}
	return merged, nil
}

// PropagateFrom returns the merged-graph nodes affected by a change at a
// peer node, walking impact edges outward but crossing at most maxDepth
// external boundaries. The seed is excluded.
func (m *Merged) PropagateFrom(ctx context.Context, seed pdg.NodeID) []pdg.NodeID {
	type frame struct {
		id    pdg.NodeID
		depth int
	}
	visited := map[pdg.NodeID]bool{seed: true}
	queue := []frame{{id: seed, depth: 0}}
	var affected []pdg.NodeID

	impact := map[types.EdgeKind]bool{
		types.EdgeCall:      true,
		types.EdgeWrites:    true,
		types.EdgeOverrides: true,
	}

	for len(queue) > 0 {
		if ctx.Err() != nil {
			return affected
		}
		cur := queue[0]
		queue = queue[1:]
		for _, e := range m.Graph.InEdges(cur.id) {
			if !impact[e.Kind] || visited[e.From] {
				continue
			}
			next, ok := m.Graph.GetNode(e.From)
			if !ok {
				continue
			}
			depth := cur.depth
			// Crossing into (or out of) an external node consumes a hop of
			// the bounded budget.
			curNode, _ := m.Graph.GetNode(cur.id)
			if next.External != curNode.External {
				depth++
			}
			if depth > m.maxDepth {
				continue
			}
			visited[e.From] = true
			affected = append(affected, e.From)
			queue = append(queue, frame{id: e.From, depth: depth})
		}
	}
	sortIDs(affected)
	return affected
}

func sortIDs(ids []pdg.NodeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
