// Package traversal implements gravity-ordered context expansion: starting
// from seed nodes, it walks the dependence graph outward and admits nodes in
// decreasing gravity until a token budget is exhausted.
package traversal

import (
	"container/heap"
	"context"
	"math"

	lcierr "github.com/scooter-lacroix/leindex/internal/errors"
	"github.com/scooter-lacroix/leindex/internal/pdg"
	"github.com/scooter-lacroix/leindex/internal/types"
)

// Options bound a single expansion.
type Options struct {
	TokenBudget int
	MaxDepth    int
	// EdgeWeights overrides the per-kind base weight table; nil keeps the
	// defaults.
	EdgeWeights map[types.EdgeKind]float64
}

// DefaultMaxDepth bounds how far from a seed the expansion walks.
const DefaultMaxDepth = 4

func defaultEdgeWeights() map[types.EdgeKind]float64 {
	return map[types.EdgeKind]float64{
		types.EdgeContains:  1.0,
		types.EdgeCall:      0.8,
		types.EdgeInherits:  0.6,
		types.EdgeOverrides: 0.7,
		types.EdgeReads:     0.4,
		types.EdgeWrites:    0.4,
		types.EdgeImports:   0.3,
	}
}

// Admitted is one node accepted into the expanded context, in admission
// order.
type Admitted struct {
	ID         pdg.NodeID
	Gravity    float64
	Depth      int
	TokenCount int
}

// Result is the ordered outcome of one expansion.
type Result struct {
	Nodes      []Admitted
	TokensUsed int
}

type candidate struct {
	id         pdg.NodeID
	gravity    float64
	depth      int
	complexity float64
	qname      string
	index      int // heap bookkeeping; -1 when popped
}

// candidateHeap is a max-heap: higher gravity first, ties broken by higher
// complexity then ascending qualified name, so expansion order is fully
// deterministic.
type candidateHeap []*candidate

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.gravity != b.gravity {
		return a.gravity > b.gravity
	}
	if a.complexity != b.complexity {
		return a.complexity > b.complexity
	}
	return a.qname < b.qname
}
func (h candidateHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *candidateHeap) Push(x any) {
	c := x.(*candidate)
	c.index = len(*h)
	*h = append(*h, c)
}
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	c.index = -1
	*h = old[:n-1]
	return c
}

// mass grows with node complexity: 1 + log(1 + complexity).
func mass(n pdg.Node) float64 {
	return 1 + math.Log(1+n.ComplexityScore)
}

// decay attenuates gravity with distance from the seed: 1/(1+d).
func decay(depth int) float64 {
	return 1 / float64(1+depth)
}

// Expand walks g from seeds and returns nodes in admission order. Seeds are
// always admitted while any output is demanded, even when a single seed's
// token count exceeds the budget; after such an overflow the budget is
// saturated and no further node is admitted. The walk checks ctx after each
// popped candidate.
func Expand(ctx context.Context, g *pdg.Graph, seeds []pdg.NodeID, opts Options) (Result, error) {
	var res Result
	if len(seeds) == 0 || opts.TokenBudget <= 0 {
		return res, nil
	}

	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	weights := opts.EdgeWeights
	if weights == nil {
		weights = defaultEdgeWeights()
	}

	h := &candidateHeap{}
	heap.Init(h)
	best := make(map[pdg.NodeID]*candidate)
	admitted := make(map[pdg.NodeID]bool)

	push := func(id pdg.NodeID, gravity float64, depth int) {
		if admitted[id] || depth > maxDepth {
			return
		}
		n, ok := g.GetNode(id)
		if !ok {
			return
		}
		if prev, seen := best[id]; seen {
			// Re-queue only when reached again with higher gravity.
			if gravity <= prev.gravity {
				return
			}
			prev.gravity = gravity
			prev.depth = depth
			if prev.index >= 0 {
				heap.Fix(h, prev.index)
				return
			}
			heap.Push(h, prev)
			return
		}
		c := &candidate{
			id:         id,
			gravity:    gravity,
			depth:      depth,
			complexity: n.ComplexityScore,
			qname:      n.QualifiedName,
		}
		best[id] = c
		heap.Push(h, c)
	}

	for _, seed := range seeds {
		push(seed, math.Inf(1), 0)
	}

	for h.Len() > 0 {
		if ctx.Err() != nil {
			return res, checkpointErr(ctx)
		}
		c := heap.Pop(h).(*candidate)
		if admitted[c.id] {
			continue
		}
		n, ok := g.GetNode(c.id)
		if !ok {
			continue
		}

		tokens := n.Complexity.TokenCount
		isSeed := math.IsInf(c.gravity, 1)
		if res.TokensUsed+tokens > opts.TokenBudget {
			if !isSeed {
				continue // may still fit a smaller candidate
			}
			// Oversized seed: admit, saturate the budget.
			res.Nodes = append(res.Nodes, Admitted{ID: c.id, Gravity: c.gravity, Depth: c.depth, TokenCount: tokens})
			res.TokensUsed = opts.TokenBudget
			admitted[c.id] = true
			continue
		}

		res.TokensUsed += tokens
		res.Nodes = append(res.Nodes, Admitted{ID: c.id, Gravity: c.gravity, Depth: c.depth, TokenCount: tokens})
		admitted[c.id] = true

		if res.TokensUsed >= opts.TokenBudget {
			break
		}

		// Neighbour gravity combines this node's pull with the edge weight
		// and the neighbour's own mass at the new distance.
		pull := c.gravity
		if isSeed {
			pull = 1
		}
		depth := c.depth + 1
		for _, e := range g.OutEdges(c.id) {
			relay(g, push, e.To, pull, weights[e.Kind], depth)
		}
		for _, e := range g.InEdges(c.id) {
			relay(g, push, e.From, pull, weights[e.Kind], depth)
		}
	}

	return res, nil
}

func relay(g *pdg.Graph, push func(pdg.NodeID, float64, int), id pdg.NodeID, pull, weight float64, depth int) {
	n, ok := g.GetNode(id)
	if !ok {
		return
	}
	push(id, pull*weight*decay(depth)*mass(n), depth)
}

func checkpointErr(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return lcierr.ErrTimeout
	}
	return lcierr.ErrCancelled
}
