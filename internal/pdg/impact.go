package pdg

import (
	"sort"

	"github.com/scooter-lacroix/leindex/internal/types"
)

// impactKinds are the edge kinds that propagate change impact.
var impactKinds = map[types.EdgeKind]bool{
	types.EdgeCall:      true,
	types.EdgeWrites:    true,
	types.EdgeOverrides: true,
}

// ForwardImpact returns the transitive closure over outgoing call/writes/
// overrides edges starting at seed, excluding the seed itself. The result is
// sorted by id.
func (g *Graph) ForwardImpact(seed NodeID) []NodeID {
	return g.impact(seed, false)
}

// BackwardImpact is ForwardImpact over incoming edges: everything that can
// reach seed through call/writes/overrides edges.
func (g *Graph) BackwardImpact(seed NodeID) []NodeID {
	return g.impact(seed, true)
}

func (g *Graph) impact(seed NodeID, reverse bool) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.slotFor(seed) == nil {
		return nil
	}

	visited := map[NodeID]bool{seed: true}
	stack := []NodeID{seed}
	var result []NodeID

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		s := g.slotFor(id)
		if s == nil {
			continue
		}
		edges := s.out
		if reverse {
			edges = s.in
		}
		for _, e := range edges {
			if !impactKinds[e.Kind] {
				continue
			}
			next := e.To
			if reverse {
				next = e.From
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			result = append(result, next)
			stack = append(stack, next)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
