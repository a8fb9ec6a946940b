package pdg

import "fmt"

// RestoreGraph rebuilds a graph from externally persisted nodes and edges
// (the durable store's row form), preserving node ids. Degree counts are
// recomputed from the edge list.
func RestoreGraph(nodes []Node, edges []Edge) (*Graph, error) {
	g := New()
	for _, n := range nodes {
		index, gen := splitID(n.ID)
		for int(index) >= len(g.slots) {
			g.slots = append(g.slots, slot{})
		}
		s := &g.slots[index]
		if s.live {
			return nil, fmt.Errorf("pdg: duplicate node id %d", n.ID)
		}
		s.gen = gen
		s.live = true
		s.node = n
		s.node.IncomingCount = 0
		s.node.OutgoingCount = 0

		key := symKey{project: n.Project, qname: n.QualifiedName}
		if _, exists := g.symbols[key]; exists {
			return nil, fmt.Errorf("pdg: duplicate symbol %q in project %q", n.QualifiedName, n.Project)
		}
		g.symbols[key] = n.ID
		byFile := g.files[n.FilePath]
		if byFile == nil {
			byFile = make(map[NodeID]struct{})
			g.files[n.FilePath] = byFile
		}
		byFile[n.ID] = struct{}{}
		g.nodeCount++
	}
	for i := range g.slots {
		if !g.slots[i].live {
			g.free = append(g.free, uint32(i))
		}
	}
	for _, e := range edges {
		src := g.slotFor(e.From)
		dst := g.slotFor(e.To)
		if src == nil || dst == nil {
			return nil, fmt.Errorf("pdg: edge references unknown node (%d -> %d)", e.From, e.To)
		}
		src.out = append(src.out, e)
		dst.in = append(dst.in, e)
		src.node.OutgoingCount++
		dst.node.IncomingCount++
		g.edgeCount++
	}
	return g, nil
}
