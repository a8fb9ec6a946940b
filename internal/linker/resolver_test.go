package linker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scooter-lacroix/leindex/internal/pdg"
	"github.com/scooter-lacroix/leindex/internal/types"
)

const proj = types.ProjectID("p")

func graphWith(t *testing.T, qnames ...string) (*pdg.Graph, map[string]pdg.NodeID) {
	t.Helper()
	g := pdg.New()
	ids := make(map[string]pdg.NodeID)
	for _, q := range qnames {
		id, err := g.AddNode(proj, types.SymbolRecord{
			QualifiedName: q,
			Kind:          types.KindFunction,
			Language:      "python",
			FilePath:      "a.py",
		}, types.ComputeContentHash([]byte(q)))
		require.NoError(t, err)
		ids[q] = id
	}
	return g, ids
}

func TestResolvePrefersEnclosingScope(t *testing.T) {
	g, ids := graphWith(t, "a.Session.renew", "b.renew", "a.Session.refresh")
	r := NewResolver(proj, g, []string{"a.Session.renew", "b.renew", "a.Session.refresh"})

	caller := types.SymbolRecord{QualifiedName: "a.Session.refresh", Language: "python"}
	id, ok := r.Resolve(caller, "self.renew")
	require.True(t, ok)
	assert.Equal(t, ids["a.Session.renew"], id)
}

func TestResolveFallsBackProjectWide(t *testing.T) {
	g, ids := graphWith(t, "lib.util.parse", "app.main")
	r := NewResolver(proj, g, []string{"lib.util.parse", "app.main"})

	caller := types.SymbolRecord{QualifiedName: "app.main", Language: "python"}
	id, ok := r.Resolve(caller, "parse")
	require.True(t, ok)
	assert.Equal(t, ids["lib.util.parse"], id)
}

func TestResolveUnknownName(t *testing.T) {
	g, _ := graphWith(t, "app.main")
	r := NewResolver(proj, g, []string{"app.main"})

	_, ok := r.Resolve(types.SymbolRecord{QualifiedName: "app.main", Language: "python"}, "print")
	assert.False(t, ok)
}

func TestNormalizePerLanguage(t *testing.T) {
	assert.Equal(t, "renew", normalize("python", "self.renew"))
	assert.Equal(t, "save", normalize("javascript", "this.save"))
	assert.Equal(t, "flush", normalize("cpp", "buffer::flush"))
	assert.Equal(t, "helper", normalize("php", "$this->helper"))
}
