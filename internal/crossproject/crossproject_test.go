package crossproject

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scooter-lacroix/leindex/internal/pdg"
	"github.com/scooter-lacroix/leindex/internal/store"
	"github.com/scooter-lacroix/leindex/internal/types"
)

func TestGlobalIDDeterministicAndDistinct(t *testing.T) {
	a := GlobalID("p1", "lib.util.parse", "sig")
	assert.Equal(t, a, GlobalID("p1", "lib.util.parse", "sig"))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, GlobalID("p2", "lib.util.parse", "sig"))
	assert.NotEqual(t, a, GlobalID("p1", "lib.util.parse", "other"))
	// Field boundaries matter: ("ab","c") != ("a","bc").
	assert.NotEqual(t, GlobalID("p", "ab", "c"), GlobalID("p", "a", "bc"))
}

func TestResolveAmbiguousReturnsAllOrdered(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "store.db"), store.Config{WALEnabled: true})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	rows := []store.GlobalSymbol{
		{GlobalID: GlobalID("beta", "lib.util.parse", "sig"), Project: "beta", Symbol: "lib.util.parse",
			SignatureHash: "sig", Visibility: "public", NodeID: 1, IndexedAt: time.Unix(200, 0)},
		{GlobalID: GlobalID("alpha", "lib.util.parse", "sig"), Project: "alpha", Symbol: "lib.util.parse",
			SignatureHash: "sig", Visibility: "public", NodeID: 2, IndexedAt: time.Unix(100, 0)},
	}
	require.NoError(t, st.PutGlobalSymbols(ctx, rows))
	r := NewResolver(st, nil)

	// No context: most recently indexed first.
	got, err := r.Resolve(ctx, "lib.util.parse", "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.ProjectID("beta"), got[0].Project)

	// With a context project, same-project wins despite being older.
	got, err = r.Resolve(ctx, "lib.util.parse", "alpha")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.ProjectID("alpha"), got[0].Project)
	assert.Equal(t, types.ProjectID("beta"), got[1].Project)
}

func TestResolveRecencyOverride(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "store.db"), store.Config{WALEnabled: true})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.PutGlobalSymbols(ctx, []store.GlobalSymbol{
		{GlobalID: "g1", Project: "old-index", Symbol: "f", SignatureHash: "s1", Visibility: "public", IndexedAt: time.Unix(100, 0)},
		{GlobalID: "g2", Project: "new-index", Symbol: "f", SignatureHash: "s2", Visibility: "public", IndexedAt: time.Unix(200, 0)},
	}))

	// Git says the "old-index" copy was committed later.
	recency := func(g store.GlobalSymbol) (time.Time, bool) {
		if g.Project == "old-index" {
			return time.Unix(300, 0), true
		}
		return time.Time{}, false
	}
	got, err := NewResolver(st, recency).Resolve(ctx, "f", "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.ProjectID("old-index"), got[0].Project)
}

func buildProjectGraph(t *testing.T, project types.ProjectID, qnames ...string) *pdg.Graph {
	t.Helper()
	g := pdg.New()
	var prev pdg.NodeID
	for i, q := range qnames {
		id, err := g.AddNode(project, types.SymbolRecord{
			QualifiedName: q,
			DisplayName:   q,
			Kind:          types.KindFunction,
			Language:      "python",
			FilePath:      string(project) + ".py",
			Complexity:    types.ComplexityMetrics{Cyclomatic: 1, TokenCount: 5},
		}, types.ComputeContentHash([]byte(q)))
		require.NoError(t, err)
		if i > 0 {
			require.NoError(t, g.AddEdge(prev, id, types.EdgeCall, nil))
		}
		prev = id
	}
	return g
}

func TestMergeRemapsAndTagsExternals(t *testing.T) {
	local := buildProjectGraph(t, "local", "main", "helper")
	peer := buildProjectGraph(t, "peer", "lib.parse", "lib.inner")

	merged, err := Merge(local, []*pdg.Graph{peer}, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, merged.Graph.NodeCount())
	assert.Equal(t, 2, merged.Graph.EdgeCount())

	// Local nodes keep their tag; peer nodes are external.
	localID, ok := merged.Graph.FindBySymbol("local", "main")
	require.True(t, ok)
	n, _ := merged.Graph.GetNode(localID)
	assert.False(t, n.External)

	peerID, ok := merged.Graph.FindBySymbol("peer", "lib.parse")
	require.True(t, ok)
	n, _ = merged.Graph.GetNode(peerID)
	assert.True(t, n.External)

	// Remap covers every source node and lands on live merged ids.
	for si, remap := range merged.Remap {
		for _, newID := range remap {
			_, ok := merged.Graph.GetNode(newID)
			assert.True(t, ok, "source %d remapped to dead id", si)
		}
	}
}

func TestPropagateFromBoundsExternalDepth(t *testing.T) {
	local := buildProjectGraph(t, "local", "a", "b")
	peer := buildProjectGraph(t, "peer", "x")

	merged, err := Merge(local, []*pdg.Graph{peer}, 1)
	require.NoError(t, err)

	// local.b calls peer.x: a -> b -> x.
	bID, _ := merged.Graph.FindBySymbol("local", "b")
	xID, _ := merged.Graph.FindBySymbol("peer", "x")
	aID, _ := merged.Graph.FindBySymbol("local", "a")
	require.NoError(t, merged.Graph.AddEdge(bID, xID, types.EdgeCall, nil))

	affected := merged.PropagateFrom(context.Background(), xID)
	assert.Contains(t, affected, bID)
	assert.Contains(t, affected, aID)
	assert.NotContains(t, affected, xID)
}
