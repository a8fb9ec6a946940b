package pdg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/scooter-lacroix/leindex/internal/types"
)

// On-disk layout: magic, format version, then four length-prefixed sections
// (header, node table, edge table, symbol index), all integers little-endian
// fixed width. Nodes are written in ascending id order and edges sorted by
// (from, to, kind), so serialization is canonical: equal graphs produce equal
// bytes.
const (
	formatMagic   = 0x4C504447 // "LPDG"
	formatVersion = 1
)

type sectionWriter struct {
	buf bytes.Buffer
}

func (w *sectionWriter) u8(v uint8)   { w.buf.WriteByte(v) }
func (w *sectionWriter) u32(v uint32) { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *sectionWriter) u64(v uint64) { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *sectionWriter) f64(v float64) {
	w.u64(math.Float64bits(v))
}
func (w *sectionWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.buf.WriteString(s)
}

type sectionReader struct {
	data []byte
	off  int
	err  error
}

func (r *sectionReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *sectionReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.fail("pdg: truncated section at offset %d", r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *sectionReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *sectionReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *sectionReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *sectionReader) f64() float64 { return math.Float64frombits(r.u64()) }

func (r *sectionReader) str() string {
	n := int(r.u32())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

// Serialize renders the graph into its canonical byte form.
func (g *Graph) Serialize() []byte {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var header, nodeTab, edgeTab, symIdx sectionWriter

	ids := make([]NodeID, 0, g.nodeCount)
	for i := range g.slots {
		if g.slots[i].live {
			ids = append(ids, g.slots[i].node.ID)
		}
	}

	header.u64(uint64(len(ids)))
	header.u64(uint64(g.edgeCount))

	for _, id := range ids {
		writeNode(&nodeTab, &g.slots[uint32(id)].node)
	}

	edges := make([]Edge, 0, g.edgeCount)
	for i := range g.slots {
		if g.slots[i].live {
			edges = append(edges, g.slots[i].out...)
		}
	}
	sortEdges(edges)
	for _, e := range edges {
		edgeTab.u64(uint64(e.From))
		edgeTab.u64(uint64(e.To))
		edgeTab.u8(uint8(e.Kind))
		if e.Meta != nil {
			edgeTab.u8(1)
			edgeTab.u64(uint64(e.Meta.CallCount))
			edgeTab.str(e.Meta.VariableName)
		} else {
			edgeTab.u8(0)
		}
	}

	// Symbol index, sorted by (project, qname) for canonical output.
	type symEntry struct {
		project string
		qname   string
		id      NodeID
	}
	syms := make([]symEntry, 0, len(g.symbols))
	for k, id := range g.symbols {
		syms = append(syms, symEntry{project: string(k.project), qname: k.qname, id: id})
	}
	sortSyms := func(i, j int) bool {
		if syms[i].project != syms[j].project {
			return syms[i].project < syms[j].project
		}
		return syms[i].qname < syms[j].qname
	}
	sort.Slice(syms, sortSyms)
	symIdx.u64(uint64(len(syms)))
	for _, s := range syms {
		symIdx.str(s.project)
		symIdx.str(s.qname)
		symIdx.u64(uint64(s.id))
	}

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint32(formatMagic))
	binary.Write(&out, binary.LittleEndian, uint32(formatVersion))
	for _, sec := range []*sectionWriter{&header, &nodeTab, &edgeTab, &symIdx} {
		binary.Write(&out, binary.LittleEndian, uint64(sec.buf.Len()))
		out.Write(sec.buf.Bytes())
	}
	return out.Bytes()
}

func writeNode(w *sectionWriter, n *Node) {
	w.u64(uint64(n.ID))
	w.str(string(n.Project))
	w.str(n.QualifiedName)
	w.str(n.DisplayName)
	w.u8(uint8(n.Kind))
	w.str(n.Language)
	w.str(n.FilePath)
	w.u64(uint64(n.ByteRange.Start))
	w.u64(uint64(n.ByteRange.End))

	w.u32(uint32(len(n.Parameters)))
	for _, p := range n.Parameters {
		w.str(p.Name)
		w.str(p.Type)
	}
	w.str(n.ReturnType)
	if n.IsAsync {
		w.u8(1)
	} else {
		w.u8(0)
	}

	w.u32(uint32(len(n.Calls)))
	for _, c := range n.Calls {
		w.str(c)
	}
	w.u32(uint32(len(n.Supertypes)))
	for _, s := range n.Supertypes {
		w.str(s)
	}
	w.u32(uint32(len(n.Imports)))
	for _, s := range n.Imports {
		w.str(s)
	}

	w.u64(uint64(n.Complexity.Cyclomatic))
	w.u64(uint64(n.Complexity.NestingDepth))
	w.u64(uint64(n.Complexity.LineCount))
	w.u64(uint64(n.Complexity.TokenCount))
	w.f64(n.ComplexityScore)

	w.buf.Write(n.ContentHash[:])

	w.u32(uint32(len(n.Embedding)))
	for _, v := range n.Embedding {
		w.u32(math.Float32bits(v))
	}

	w.u32(uint32(n.IncomingCount))
	w.u32(uint32(n.OutgoingCount))
	if n.External {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func readNode(r *sectionReader) Node {
	var n Node
	n.ID = NodeID(r.u64())
	n.Project = types.ProjectID(r.str())
	n.QualifiedName = r.str()
	n.DisplayName = r.str()
	n.Kind = types.SymbolKind(r.u8())
	n.Language = r.str()
	n.FilePath = r.str()
	n.ByteRange.Start = int(r.u64())
	n.ByteRange.End = int(r.u64())

	if np := int(r.u32()); np > 0 && r.err == nil {
		n.Parameters = make([]types.Parameter, np)
		for i := range n.Parameters {
			n.Parameters[i].Name = r.str()
			n.Parameters[i].Type = r.str()
		}
	}
	n.ReturnType = r.str()
	n.IsAsync = r.u8() == 1

	if nc := int(r.u32()); nc > 0 && r.err == nil {
		n.Calls = make([]string, nc)
		for i := range n.Calls {
			n.Calls[i] = r.str()
		}
	}
	if ns := int(r.u32()); ns > 0 && r.err == nil {
		n.Supertypes = make([]string, ns)
		for i := range n.Supertypes {
			n.Supertypes[i] = r.str()
		}
	}
	if ni := int(r.u32()); ni > 0 && r.err == nil {
		n.Imports = make([]string, ni)
		for i := range n.Imports {
			n.Imports[i] = r.str()
		}
	}

	n.Complexity.Cyclomatic = int(r.u64())
	n.Complexity.NestingDepth = int(r.u64())
	n.Complexity.LineCount = int(r.u64())
	n.Complexity.TokenCount = int(r.u64())
	n.ComplexityScore = r.f64()

	copy(n.ContentHash[:], r.take(32))

	if ne := int(r.u32()); ne > 0 && r.err == nil {
		n.Embedding = make([]float32, ne)
		for i := range n.Embedding {
			n.Embedding[i] = math.Float32frombits(r.u32())
		}
	}

	n.IncomingCount = int(r.u32())
	n.OutgoingCount = int(r.u32())
	n.External = r.u8() == 1
	return n
}

// Deserialize reconstructs a graph from Serialize output. Node ids are
// preserved bit-for-bit, so Serialize(Deserialize(b)) == b.
func Deserialize(data []byte) (*Graph, error) {
	r := &sectionReader{data: data}
	if magic := r.u32(); magic != formatMagic {
		return nil, fmt.Errorf("pdg: bad magic %#x", magic)
	}
	if v := r.u32(); v != formatVersion {
		return nil, fmt.Errorf("pdg: unsupported format version %d", v)
	}

	sections := make([]*sectionReader, 4)
	for i := range sections {
		n := int(r.u64())
		sections[i] = &sectionReader{data: r.take(n)}
	}
	if r.err != nil {
		return nil, r.err
	}
	header, nodeTab, edgeTab, symIdx := sections[0], sections[1], sections[2], sections[3]

	nodeCount := int(header.u64())
	edgeCount := int(header.u64())

	g := New()
	for i := 0; i < nodeCount; i++ {
		n := readNode(nodeTab)
		if nodeTab.err != nil {
			return nil, nodeTab.err
		}
		index, gen := splitID(n.ID)
		for int(index) >= len(g.slots) {
			g.slots = append(g.slots, slot{})
		}
		s := &g.slots[index]
		s.gen = gen
		s.live = true
		s.node = n
		// Degree counts are rebuilt from the edge table below.
		s.node.IncomingCount = 0
		s.node.OutgoingCount = 0
		byFile := g.files[n.FilePath]
		if byFile == nil {
			byFile = make(map[NodeID]struct{})
			g.files[n.FilePath] = byFile
		}
		byFile[n.ID] = struct{}{}
		g.nodeCount++
	}

	// Dead slots between live indexes go on the free list at generation 0;
	// a reload never resurrects them with stale generations because ids
	// embed the generation.
	for i := range g.slots {
		if !g.slots[i].live {
			g.free = append(g.free, uint32(i))
		}
	}

	for i := 0; i < edgeCount; i++ {
		from := NodeID(edgeTab.u64())
		to := NodeID(edgeTab.u64())
		kind := types.EdgeKind(edgeTab.u8())
		var meta *EdgeMeta
		if edgeTab.u8() == 1 {
			meta = &EdgeMeta{
				CallCount:    int(edgeTab.u64()),
				VariableName: edgeTab.str(),
			}
		}
		if edgeTab.err != nil {
			return nil, edgeTab.err
		}
		src := g.slotFor(from)
		dst := g.slotFor(to)
		if src == nil || dst == nil {
			return nil, fmt.Errorf("pdg: edge references unknown node (%d -> %d)", from, to)
		}
		e := Edge{From: from, To: to, Kind: kind, Meta: meta}
		src.out = append(src.out, e)
		dst.in = append(dst.in, e)
		src.node.OutgoingCount++
		dst.node.IncomingCount++
		g.edgeCount++
	}

	symCount := int(symIdx.u64())
	for i := 0; i < symCount; i++ {
		project := types.ProjectID(symIdx.str())
		qname := symIdx.str()
		id := NodeID(symIdx.u64())
		if symIdx.err != nil {
			return nil, symIdx.err
		}
		g.symbols[symKey{project: project, qname: qname}] = id
	}
	if len(g.symbols) != g.nodeCount {
		return nil, fmt.Errorf("pdg: symbol index size %d does not match node count %d", len(g.symbols), g.nodeCount)
	}
	return g, nil
}

// EncodeNode renders one node in the same canonical form the node table
// uses; the durable store keeps this as its signature blob.
func EncodeNode(n Node) []byte {
	var w sectionWriter
	writeNode(&w, &n)
	return w.buf.Bytes()
}

// DecodeNode reverses EncodeNode.
func DecodeNode(data []byte) (Node, error) {
	r := &sectionReader{data: data}
	n := readNode(r)
	if r.err != nil {
		return Node{}, r.err
	}
	return n, nil
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return edges[i].Kind < edges[j].Kind
	})
}
