package traversal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lcierr "github.com/scooter-lacroix/leindex/internal/errors"
	"github.com/scooter-lacroix/leindex/internal/pdg"
	"github.com/scooter-lacroix/leindex/internal/types"
)

const proj = types.ProjectID("p")

func addNode(t *testing.T, g *pdg.Graph, qname string, tokens int) pdg.NodeID {
	t.Helper()
	id, err := g.AddNode(proj, types.SymbolRecord{
		QualifiedName: qname,
		DisplayName:   qname,
		Kind:          types.KindFunction,
		Language:      "python",
		FilePath:      "a.py",
		Complexity:    types.ComplexityMetrics{Cyclomatic: 1, LineCount: 5, TokenCount: tokens},
	}, types.ComputeContentHash([]byte(qname)))
	require.NoError(t, err)
	return id
}

func chain(t *testing.T, tokens int) (*pdg.Graph, []pdg.NodeID) {
	g := pdg.New()
	a := addNode(t, g, "a", tokens)
	b := addNode(t, g, "b", tokens)
	c := addNode(t, g, "c", tokens)
	require.NoError(t, g.AddEdge(a, b, types.EdgeCall, nil))
	require.NoError(t, g.AddEdge(b, c, types.EdgeCall, nil))
	return g, []pdg.NodeID{a, b, c}
}

func TestEmptySeedsYieldEmptyResult(t *testing.T) {
	g, _ := chain(t, 40)
	res, err := Expand(context.Background(), g, nil, Options{TokenBudget: 100})
	require.NoError(t, err)
	assert.Empty(t, res.Nodes)
	assert.Zero(t, res.TokensUsed)
}

func TestBudgetBoundaries(t *testing.T) {
	// Every node costs 40 tokens; the budget decides how many fit.
	cases := []struct {
		budget     int
		wantCount  int
		wantTokens int
	}{
		{budget: 100, wantCount: 2, wantTokens: 80},
		{budget: 80, wantCount: 2, wantTokens: 80},
		{budget: 79, wantCount: 1, wantTokens: 40},
	}
	for _, tc := range cases {
		g, ids := chain(t, 40)
		res, err := Expand(context.Background(), g, []pdg.NodeID{ids[0]}, Options{TokenBudget: tc.budget})
		require.NoError(t, err)
		assert.Len(t, res.Nodes, tc.wantCount, "budget %d", tc.budget)
		assert.Equal(t, tc.wantTokens, res.TokensUsed, "budget %d", tc.budget)
		assert.Equal(t, ids[0], res.Nodes[0].ID, "seed comes first")
		assert.LessOrEqual(t, res.TokensUsed, tc.budget)
	}
}

func TestOversizedSeedStillAdmitted(t *testing.T) {
	g := pdg.New()
	seed := addNode(t, g, "huge", 500)
	other := addNode(t, g, "other", 10)
	require.NoError(t, g.AddEdge(seed, other, types.EdgeCall, nil))

	res, err := Expand(context.Background(), g, []pdg.NodeID{seed}, Options{TokenBudget: 100})
	require.NoError(t, err)
	require.Len(t, res.Nodes, 1)
	assert.Equal(t, seed, res.Nodes[0].ID)
	// Budget saturates; nothing else fits after the overflow.
	assert.Equal(t, 100, res.TokensUsed)
}

func TestAdmissionOrderFollowsGravity(t *testing.T) {
	// contains (1.0) outweighs imports (0.3) at the same depth.
	g := pdg.New()
	seed := addNode(t, g, "seed", 10)
	contained := addNode(t, g, "contained", 10)
	imported := addNode(t, g, "imported", 10)
	require.NoError(t, g.AddEdge(seed, contained, types.EdgeContains, nil))
	require.NoError(t, g.AddEdge(seed, imported, types.EdgeImports, nil))

	res, err := Expand(context.Background(), g, []pdg.NodeID{seed}, Options{TokenBudget: 1000})
	require.NoError(t, err)
	require.Len(t, res.Nodes, 3)
	assert.Equal(t, seed, res.Nodes[0].ID)
	assert.Equal(t, contained, res.Nodes[1].ID)
	assert.Equal(t, imported, res.Nodes[2].ID)
	assert.Greater(t, res.Nodes[1].Gravity, res.Nodes[2].Gravity)
}

func TestDeterministicAcrossRuns(t *testing.T) {
	build := func() (*pdg.Graph, []pdg.NodeID) {
		g := pdg.New()
		var ids []pdg.NodeID
		for _, name := range []string{"s", "m", "x", "y", "z"} {
			ids = append(ids, addNode(t, g, name, 10))
		}
		require.NoError(t, g.AddEdge(ids[0], ids[1], types.EdgeCall, nil))
		require.NoError(t, g.AddEdge(ids[1], ids[2], types.EdgeCall, nil))
		require.NoError(t, g.AddEdge(ids[1], ids[3], types.EdgeReads, nil))
		require.NoError(t, g.AddEdge(ids[3], ids[4], types.EdgeWrites, nil))
		return g, ids
	}

	g1, seeds1 := build()
	first, err := Expand(context.Background(), g1, seeds1[:1], Options{TokenBudget: 100})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		g2, seeds2 := build()
		again, err := Expand(context.Background(), g2, seeds2[:1], Options{TokenBudget: 100})
		require.NoError(t, err)
		require.Len(t, again.Nodes, len(first.Nodes))
		for j := range first.Nodes {
			n1, _ := g1.GetNode(first.Nodes[j].ID)
			n2, _ := g2.GetNode(again.Nodes[j].ID)
			assert.Equal(t, n1.QualifiedName, n2.QualifiedName)
		}
	}
}

func TestMaxDepthBoundsWalk(t *testing.T) {
	g := pdg.New()
	prev := addNode(t, g, "n0", 1)
	seed := prev
	for i := 1; i <= 6; i++ {
		next := addNode(t, g, "n"+string(rune('0'+i)), 1)
		require.NoError(t, g.AddEdge(prev, next, types.EdgeCall, nil))
		prev = next
	}

	res, err := Expand(context.Background(), g, []pdg.NodeID{seed}, Options{TokenBudget: 1000, MaxDepth: 2})
	require.NoError(t, err)
	// Seed at depth 0 plus neighbours at depths 1 and 2.
	assert.Len(t, res.Nodes, 3)
	for _, a := range res.Nodes {
		assert.LessOrEqual(t, a.Depth, 2)
	}
}

func TestCancellationAtCheckpoint(t *testing.T) {
	g, ids := chain(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Expand(ctx, g, ids[:1], Options{TokenBudget: 100})
	assert.ErrorIs(t, err, lcierr.ErrCancelled)
}
