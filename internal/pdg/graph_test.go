package pdg

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lcierr "github.com/scooter-lacroix/leindex/internal/errors"
	"github.com/scooter-lacroix/leindex/internal/types"
)

const testProject = types.ProjectID("proj")

func rec(qname, file string) types.SymbolRecord {
	return types.SymbolRecord{
		QualifiedName: qname,
		DisplayName:   qname,
		Kind:          types.KindFunction,
		Language:      "python",
		FilePath:      file,
		ByteRange:     types.ByteRange{Start: 0, End: 10},
		Complexity:    types.ComplexityMetrics{Cyclomatic: 2, NestingDepth: 1, LineCount: 10, TokenCount: 40},
	}
}

func mustAdd(t *testing.T, g *Graph, qname, file string) NodeID {
	t.Helper()
	id, err := g.AddNode(testProject, rec(qname, file), types.ComputeContentHash([]byte(qname)))
	require.NoError(t, err)
	return id
}

func TestAddNodeDuplicateSymbol(t *testing.T) {
	g := New()
	mustAdd(t, g, "a.f", "a.py")

	_, err := g.AddNode(testProject, rec("a.f", "a.py"), types.ContentHash{})
	require.Error(t, err)
	var dup *lcierr.DuplicateSymbolError
	assert.ErrorAs(t, err, &dup)

	// Same qualified name in a different project is fine.
	_, err = g.AddNode("other", rec("a.f", "a.py"), types.ContentHash{})
	assert.NoError(t, err)
}

func TestAddEdgeUnknownEndpoint(t *testing.T) {
	g := New()
	a := mustAdd(t, g, "a.f", "a.py")

	err := g.AddEdge(a, NodeID(999), types.EdgeCall, nil)
	var unknown *lcierr.UnknownEndpointError
	assert.ErrorAs(t, err, &unknown)
	assert.Equal(t, 0, g.EdgeCount())
}

func TestDegreeCountsMatchLiveEdges(t *testing.T) {
	g := New()
	a := mustAdd(t, g, "a.f", "a.py")
	b := mustAdd(t, g, "b.f", "b.py")
	c := mustAdd(t, g, "c.f", "c.py")

	require.NoError(t, g.AddEdge(a, b, types.EdgeCall, nil))
	require.NoError(t, g.AddEdge(a, c, types.EdgeCall, nil))
	require.NoError(t, g.AddEdge(b, c, types.EdgeReads, nil))

	for _, id := range g.NodeIDs() {
		n, ok := g.GetNode(id)
		require.True(t, ok)
		assert.Equal(t, len(g.InEdges(id)), n.IncomingCount, "incoming for %s", n.QualifiedName)
		assert.Equal(t, len(g.OutEdges(id)), n.OutgoingCount, "outgoing for %s", n.QualifiedName)
	}
}

func TestDuplicateEdgeMergesCallCount(t *testing.T) {
	g := New()
	a := mustAdd(t, g, "a.f", "a.py")
	b := mustAdd(t, g, "b.f", "b.py")

	require.NoError(t, g.AddEdge(a, b, types.EdgeCall, &EdgeMeta{CallCount: 1}))
	require.NoError(t, g.AddEdge(a, b, types.EdgeCall, &EdgeMeta{CallCount: 2}))

	assert.Equal(t, 1, g.EdgeCount())
	out := g.OutEdges(a)
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].Meta.CallCount)

	n, _ := g.GetNode(b)
	assert.Equal(t, 1, n.IncomingCount)
}

func TestForwardAndBackwardImpact(t *testing.T) {
	g := New()
	caller := mustAdd(t, g, "caller", "a.py")
	callee := mustAdd(t, g, "callee", "a.py")
	leaf := mustAdd(t, g, "leaf", "a.py")
	bystander := mustAdd(t, g, "bystander", "a.py")

	require.NoError(t, g.AddEdge(caller, callee, types.EdgeCall, nil))
	require.NoError(t, g.AddEdge(callee, leaf, types.EdgeCall, nil))
	// reads edges do not propagate impact
	require.NoError(t, g.AddEdge(caller, bystander, types.EdgeReads, nil))

	assert.Equal(t, []NodeID{callee, leaf}, g.ForwardImpact(caller))
	assert.Equal(t, []NodeID{caller, callee}, g.BackwardImpact(leaf))
	assert.Empty(t, g.ForwardImpact(leaf))
}

func TestRemoveFilePreservesInvariants(t *testing.T) {
	g := New()
	a := mustAdd(t, g, "a.f", "a.py")
	b := mustAdd(t, g, "b.f", "b.py")
	c := mustAdd(t, g, "b.g", "b.py")

	require.NoError(t, g.AddEdge(a, b, types.EdgeCall, nil))
	require.NoError(t, g.AddEdge(b, c, types.EdgeContains, nil))
	require.NoError(t, g.AddEdge(c, a, types.EdgeWrites, nil))

	g.RemoveFile("b.py")

	assert.Equal(t, 1, g.NodeCount())
	assert.Equal(t, 0, g.EdgeCount())
	assert.Empty(t, g.NodesInFile("b.py"))

	// The survivor's counts reflect the removed edges.
	n, ok := g.GetNode(a)
	require.True(t, ok)
	assert.Equal(t, 0, n.IncomingCount)
	assert.Equal(t, 0, n.OutgoingCount)

	// Stale ids are dead, and the symbol index no longer resolves them.
	_, ok = g.GetNode(b)
	assert.False(t, ok)
	_, ok = g.FindBySymbol(testProject, "b.f")
	assert.False(t, ok)
}

func TestGenerationalIDsSurviveSlotReuse(t *testing.T) {
	g := New()
	mustAdd(t, g, "a.f", "a.py")
	stale := mustAdd(t, g, "b.f", "b.py")
	g.RemoveFile("b.py")

	// The freed slot is reused with a bumped generation.
	fresh := mustAdd(t, g, "c.f", "c.py")
	assert.NotEqual(t, stale, fresh)

	_, ok := g.GetNode(stale)
	assert.False(t, ok)
	n, ok := g.GetNode(fresh)
	require.True(t, ok)
	assert.Equal(t, "c.f", n.QualifiedName)
}

func TestComplexityScalar(t *testing.T) {
	cases := []struct {
		name string
		m    types.ComplexityMetrics
		want float64
	}{
		{"floor at one", types.ComplexityMetrics{}, 1.0},
		{"plain", types.ComplexityMetrics{Cyclomatic: 4, NestingDepth: 2, LineCount: 100}, 4*1.2 + 1.0},
		{"zero cyclomatic still counts lines", types.ComplexityMetrics{LineCount: 50}, 1.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, ComplexityScalar(tc.m), 1e-9)
		})
	}
}

func TestSerializeRoundtrip(t *testing.T) {
	g := New()
	a := mustAdd(t, g, "a.f", "a.py")
	b := mustAdd(t, g, "b.f", "b.py")

	full := rec("b.g", "b.py")
	full.Parameters = []types.Parameter{{Name: "user", Type: "User"}, {Name: "depth"}}
	full.ReturnType = "bool"
	full.IsAsync = true
	full.Calls = []string{"authenticate", "log"}
	full.Embedding = []float32{0.25, -1, 3.5}
	c, err := g.AddNode(testProject, full, types.ComputeContentHash([]byte("b.g")))
	require.NoError(t, err)

	require.NoError(t, g.AddEdge(a, b, types.EdgeCall, &EdgeMeta{CallCount: 2}))
	require.NoError(t, g.AddEdge(b, c, types.EdgeContains, nil))
	require.NoError(t, g.AddEdge(c, a, types.EdgeWrites, &EdgeMeta{VariableName: "state"}))

	data := g.Serialize()
	loaded, err := Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, g.NodeCount(), loaded.NodeCount())
	assert.Equal(t, g.EdgeCount(), loaded.EdgeCount())
	for _, id := range g.NodeIDs() {
		want, _ := g.GetNode(id)
		got, ok := loaded.GetNode(id)
		require.True(t, ok, "node %d missing after roundtrip", id)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, g.Edges(), loaded.Edges())

	// Canonical: re-serializing the loaded graph is byte-identical.
	assert.True(t, bytes.Equal(data, loaded.Serialize()))
}

func TestSerializeRoundtripAfterDeletions(t *testing.T) {
	g := New()
	mustAdd(t, g, "a.f", "a.py")
	mustAdd(t, g, "b.f", "b.py")
	mustAdd(t, g, "c.f", "c.py")
	g.RemoveFile("b.py")

	loaded, err := Deserialize(g.Serialize())
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.NodeCount())
	assert.True(t, bytes.Equal(g.Serialize(), loaded.Serialize()))
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	_, err := Deserialize([]byte("not a pdg"))
	assert.Error(t, err)

	_, err = Deserialize(nil)
	assert.Error(t, err)
}
