// Package pdg implements the Program Dependence Graph: a typed multigraph of
// symbols with stable generational node ids, secondary indexes by qualified
// name and by file, transitive impact closures, and a canonical binary
// serialization.
//
// The graph is the single owner of node data. Other subsystems hold node ids
// and look nodes up on demand; an id whose slot has been reused is detected
// by its generation and treated as dead.
package pdg

import (
	"math"
	"sort"
	"sync"

	lcierr "github.com/scooter-lacroix/leindex/internal/errors"
	"github.com/scooter-lacroix/leindex/internal/types"
)

// NodeID packs a slot index (low 32 bits) and a generation (high 32 bits).
// Deleting a node bumps the slot's generation, so ids held by observers go
// stale instead of silently pointing at a reused slot.
type NodeID = types.SymbolID

func makeID(index, gen uint32) NodeID {
	return NodeID(uint64(gen)<<32 | uint64(index))
}

func splitID(id NodeID) (index, gen uint32) {
	return uint32(id), uint32(id >> 32)
}

// EdgeMeta is the optional per-edge payload.
type EdgeMeta struct {
	CallCount    int
	VariableName string
}

// Edge connects two live nodes. Duplicate (From, To, Kind) triples collapse
// into one edge with an accumulated CallCount.
type Edge struct {
	From NodeID
	To   NodeID
	Kind types.EdgeKind
	Meta *EdgeMeta
}

// Node is a symbol resident in the graph.
type Node struct {
	ID      NodeID
	Project types.ProjectID

	types.SymbolRecord

	// ComplexityScore is the scalar derived from the raw metrics; see
	// ComplexityScalar.
	ComplexityScore float64
	ContentHash     types.ContentHash

	IncomingCount int
	OutgoingCount int

	// External marks nodes imported from a peer project during a
	// cross-project merge.
	External bool
}

type slot struct {
	gen  uint32
	live bool
	node Node
	out  []Edge
	in   []Edge
}

type symKey struct {
	project types.ProjectID
	qname   string
}

// Graph is safe for many concurrent readers or one writer.
type Graph struct {
	mu    sync.RWMutex
	slots []slot
	free  []uint32

	symbols map[symKey]NodeID
	files   map[string]map[NodeID]struct{}

	nodeCount int
	edgeCount int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		symbols: make(map[symKey]NodeID),
		files:   make(map[string]map[NodeID]struct{}),
	}
}

const (
	complexityMin = 1.0
	complexityMax = 1e6
)

// ComplexityScalar derives the per-node complexity scalar from raw metrics:
// max(1, cyclomatic) * (1 + 0.1*nesting_depth) + 0.01*line_count, clamped to
// [1, 1e6].
func ComplexityScalar(m types.ComplexityMetrics) float64 {
	cyc := float64(m.Cyclomatic)
	if cyc < 1 {
		cyc = 1
	}
	v := cyc*(1+0.1*float64(m.NestingDepth)) + 0.01*float64(m.LineCount)
	if math.IsNaN(v) || v < complexityMin {
		return complexityMin
	}
	if v > complexityMax {
		return complexityMax
	}
	return v
}

// AddNode inserts a symbol and returns its id. The content hash is computed
// by the caller over the node's source slice.
func (g *Graph) AddNode(project types.ProjectID, rec types.SymbolRecord, hash types.ContentHash) (NodeID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addNodeLocked(project, rec, hash, false)
}

func (g *Graph) addNodeLocked(project types.ProjectID, rec types.SymbolRecord, hash types.ContentHash, external bool) (NodeID, error) {
	key := symKey{project: project, qname: rec.QualifiedName}
	if _, exists := g.symbols[key]; exists {
		return 0, lcierr.NewDuplicateSymbolError(rec.QualifiedName, string(project))
	}

	var index uint32
	if n := len(g.free); n > 0 {
		index = g.free[n-1]
		g.free = g.free[:n-1]
	} else {
		g.slots = append(g.slots, slot{})
		index = uint32(len(g.slots) - 1)
	}

	s := &g.slots[index]
	id := makeID(index, s.gen)
	s.live = true
	s.node = Node{
		ID:              id,
		Project:         project,
		SymbolRecord:    rec,
		ComplexityScore: ComplexityScalar(rec.Complexity),
		ContentHash:     hash,
		External:        external,
	}
	s.out = nil
	s.in = nil

	g.symbols[key] = id
	byFile := g.files[rec.FilePath]
	if byFile == nil {
		byFile = make(map[NodeID]struct{})
		g.files[rec.FilePath] = byFile
	}
	byFile[id] = struct{}{}
	g.nodeCount++
	return id, nil
}

// AddExternalNode inserts a node resolved from a peer project during a
// cross-project merge; it carries the origin tag.
func (g *Graph) AddExternalNode(project types.ProjectID, rec types.SymbolRecord, hash types.ContentHash) (NodeID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addNodeLocked(project, rec, hash, true)
}

func (g *Graph) slotFor(id NodeID) *slot {
	index, gen := splitID(id)
	if int(index) >= len(g.slots) {
		return nil
	}
	s := &g.slots[index]
	if !s.live || s.gen != gen {
		return nil
	}
	return s
}

// AddEdge connects two live nodes. A repeated (from, to, kind) triple merges
// into the existing edge, accumulating CallCount.
func (g *Graph) AddEdge(from, to NodeID, kind types.EdgeKind, meta *EdgeMeta) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	src := g.slotFor(from)
	if src == nil {
		return lcierr.NewUnknownEndpointError(uint64(from))
	}
	dst := g.slotFor(to)
	if dst == nil {
		return lcierr.NewUnknownEndpointError(uint64(to))
	}

	for i := range src.out {
		e := &src.out[i]
		if e.To == to && e.Kind == kind {
			if e.Meta == nil {
				e.Meta = &EdgeMeta{}
			}
			if meta != nil {
				e.Meta.CallCount += meta.CallCount
				if meta.VariableName != "" {
					e.Meta.VariableName = meta.VariableName
				}
			} else {
				e.Meta.CallCount++
			}
			for j := range dst.in {
				if dst.in[j].From == from && dst.in[j].Kind == kind {
					dst.in[j].Meta = e.Meta
					break
				}
			}
			return nil
		}
	}

	var m *EdgeMeta
	if meta != nil {
		cp := *meta
		m = &cp
	}
	edge := Edge{From: from, To: to, Kind: kind, Meta: m}
	src.out = append(src.out, edge)
	dst.in = append(dst.in, edge)
	src.node.OutgoingCount++
	dst.node.IncomingCount++
	g.edgeCount++
	return nil
}

// GetNode returns a copy of the node. Callers must not mutate the slices it
// shares with the graph.
func (g *Graph) GetNode(id NodeID) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := g.slotFor(id)
	if s == nil {
		return Node{}, false
	}
	return s.node, true
}

// FindBySymbol looks up a node id by (project, qualified name).
func (g *Graph) FindBySymbol(project types.ProjectID, qname string) (NodeID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.symbols[symKey{project: project, qname: qname}]
	return id, ok
}

// NodesInFile returns the ids of all nodes owned by a file, in id order.
func (g *Graph) NodesInFile(path string) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	byFile := g.files[path]
	if len(byFile) == 0 {
		return nil
	}
	ids := make([]NodeID, 0, len(byFile))
	for id := range byFile {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OutEdges returns a copy of the node's outgoing edges.
func (g *Graph) OutEdges(id NodeID) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := g.slotFor(id)
	if s == nil {
		return nil
	}
	out := make([]Edge, len(s.out))
	copy(out, s.out)
	return out
}

// InEdges returns a copy of the node's incoming edges.
func (g *Graph) InEdges(id NodeID) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := g.slotFor(id)
	if s == nil {
		return nil
	}
	in := make([]Edge, len(s.in))
	copy(in, s.in)
	return in
}

// RemoveFile deletes every node owned by path and every edge touching those
// nodes, keeping degree counts and indexes consistent.
func (g *Graph) RemoveFile(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	byFile := g.files[path]
	if len(byFile) == 0 {
		return
	}
	victims := make([]NodeID, 0, len(byFile))
	for id := range byFile {
		victims = append(victims, id)
	}
	sort.Slice(victims, func(i, j int) bool { return victims[i] < victims[j] })
	for _, id := range victims {
		g.removeNodeLocked(id)
	}
	delete(g.files, path)
}

func (g *Graph) removeNodeLocked(id NodeID) {
	s := g.slotFor(id)
	if s == nil {
		return
	}

	for _, e := range s.out {
		if dst := g.slotFor(e.To); dst != nil && e.To != id {
			dst.in = dropEdges(dst.in, func(x Edge) bool { return x.From == id })
			dst.node.IncomingCount = len(dst.in)
		}
		g.edgeCount--
	}
	for _, e := range s.in {
		if e.From == id {
			continue // self edge, already counted in out
		}
		if src := g.slotFor(e.From); src != nil {
			src.out = dropEdges(src.out, func(x Edge) bool { return x.To == id })
			src.node.OutgoingCount = len(src.out)
		}
		g.edgeCount--
	}

	delete(g.symbols, symKey{project: s.node.Project, qname: s.node.QualifiedName})
	if byFile := g.files[s.node.FilePath]; byFile != nil {
		delete(byFile, id)
		if len(byFile) == 0 {
			delete(g.files, s.node.FilePath)
		}
	}

	index, _ := splitID(id)
	s.live = false
	s.gen++
	s.node = Node{}
	s.out = nil
	s.in = nil
	g.free = append(g.free, index)
	g.nodeCount--
}

func dropEdges(edges []Edge, match func(Edge) bool) []Edge {
	kept := edges[:0]
	for _, e := range edges {
		if !match(e) {
			kept = append(kept, e)
		}
	}
	return kept
}

// NodeCount returns the number of live nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodeCount
}

// EdgeCount returns the number of distinct (from, to, kind) edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edgeCount
}

// NodeIDs returns every live node id in ascending order.
func (g *Graph) NodeIDs() []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]NodeID, 0, g.nodeCount)
	for i := range g.slots {
		if g.slots[i].live {
			ids = append(ids, g.slots[i].node.ID)
		}
	}
	return ids
}

// Edges returns every edge sorted by (from, to, kind).
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edges := make([]Edge, 0, g.edgeCount)
	for i := range g.slots {
		if g.slots[i].live {
			edges = append(edges, g.slots[i].out...)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return edges[i].Kind < edges[j].Kind
	})
	return edges
}
