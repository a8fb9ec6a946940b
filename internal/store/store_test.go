package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lcierr "github.com/scooter-lacroix/leindex/internal/errors"
	"github.com/scooter-lacroix/leindex/internal/pdg"
	"github.com/scooter-lacroix/leindex/internal/types"
)

const proj = types.ProjectID("p")

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store.db"), Config{WALEnabled: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func buildGraph(t *testing.T) *pdg.Graph {
	t.Helper()
	g := pdg.New()
	mk := func(qname, file string) pdg.NodeID {
		id, err := g.AddNode(proj, types.SymbolRecord{
			QualifiedName: qname,
			DisplayName:   qname,
			Kind:          types.KindFunction,
			Language:      "python",
			FilePath:      file,
			Complexity:    types.ComplexityMetrics{Cyclomatic: 1, LineCount: 3, TokenCount: 12},
			Embedding:     []float32{1, 0},
		}, types.ComputeContentHash([]byte(qname)))
		require.NoError(t, err)
		return id
	}
	a := mk("a.login", "a.py")
	b := mk("a.check", "a.py")
	require.NoError(t, g.AddEdge(a, b, types.EdgeCall, &pdg.EdgeMeta{CallCount: 2}))
	return g
}

func TestSaveAndLoadPDG(t *testing.T) {
	s := openTestStore(t)
	g := buildGraph(t)

	snaps := []FileSnapshot{{Path: "a.py", SizeBytes: 64, MtimeNanos: 1, ContentHash: types.ComputeContentHash([]byte("a"))}}
	require.NoError(t, s.SavePDG(context.Background(), proj, g, snaps, 0))

	loaded, err := s.LoadPDG(context.Background(), proj)
	require.NoError(t, err)
	assert.Equal(t, g.NodeCount(), loaded.NodeCount())
	assert.Equal(t, g.EdgeCount(), loaded.EdgeCount())
	for _, id := range g.NodeIDs() {
		want, _ := g.GetNode(id)
		got, ok := loaded.GetNode(id)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, g.Edges(), loaded.Edges())

	got, err := s.FileSnapshots(context.Background(), proj)
	require.NoError(t, err)
	assert.Equal(t, snaps[0], got["a.py"])
}

func TestSavePDGBatchSizeSmallerThanGraph(t *testing.T) {
	// A batch size of one forces every node and edge into its own
	// transaction; the reloaded graph must still be identical.
	s := openTestStore(t)
	g := pdg.New()
	var prev pdg.NodeID
	for i := 0; i < 5; i++ {
		id, err := g.AddNode(proj, types.SymbolRecord{
			QualifiedName: "f" + string(rune('0'+i)),
			Kind:          types.KindFunction,
			Language:      "python",
			FilePath:      "a.py",
		}, types.ComputeContentHash([]byte{byte(i)}))
		require.NoError(t, err)
		if i > 0 {
			require.NoError(t, g.AddEdge(prev, id, types.EdgeCall, nil))
		}
		prev = id
	}

	require.NoError(t, s.SavePDG(context.Background(), proj, g, nil, 1))

	loaded, err := s.LoadPDG(context.Background(), proj)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.NodeCount())
	assert.Equal(t, 4, loaded.EdgeCount())
	assert.Equal(t, g.Edges(), loaded.Edges())
}

func TestOpenTransactionsCounter(t *testing.T) {
	s := openTestStore(t)
	assert.Equal(t, 0, s.OpenTransactions())

	var inFlight int
	require.NoError(t, s.WithTx(context.Background(), func(tx *sql.Tx) error {
		inFlight = s.OpenTransactions()
		return nil
	}))
	assert.Equal(t, 1, inFlight)
	assert.Equal(t, 0, s.OpenTransactions())
}

func TestGetNodeMissing(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.GetNode(context.Background(), proj, 42)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteByFileRemovesNodesEdgesAndSnapshot(t *testing.T) {
	s := openTestStore(t)
	g := buildGraph(t)
	require.NoError(t, s.SavePDG(context.Background(), proj, g,
		[]FileSnapshot{{Path: "a.py", ContentHash: types.ContentHash{}}}, 0))

	require.NoError(t, s.WithTx(context.Background(), func(tx *sql.Tx) error {
		return DeleteByFile(context.Background(), tx, proj, "a.py")
	}))

	loaded, err := s.LoadPDG(context.Background(), proj)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.NodeCount())
	assert.Equal(t, 0, loaded.EdgeCount())

	snaps, err := s.FileSnapshots(context.Background(), proj)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestArtifactRoundtripAndPurge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	hash := types.ComputeContentHash([]byte("def f(): pass"))

	require.NoError(t, s.PutArtifact(ctx, hash, []byte("artifact-bytes")))
	got, ok, err := s.GetArtifact(ctx, hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("artifact-bytes"), got)

	n, err := s.ArtifactCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	deleted, err := s.DeleteArtifactsBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, ok, err = s.GetArtifact(ctx, hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGlobalSymbols(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rows := []GlobalSymbol{
		{GlobalID: "g1", Project: "p1", Symbol: "lib.util.parse", SignatureHash: "sig", Visibility: "public", NodeID: 1, IndexedAt: time.Unix(0, 100)},
		{GlobalID: "g2", Project: "p2", Symbol: "lib.util.parse", SignatureHash: "sig", Visibility: "public", NodeID: 2, IndexedAt: time.Unix(0, 200)},
	}
	require.NoError(t, s.PutGlobalSymbols(ctx, rows))

	got, err := s.GlobalSymbolsByName(ctx, "lib.util.parse")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.ProjectID("p1"), got[0].Project)
	assert.Equal(t, types.ProjectID("p2"), got[1].Project)
}

func TestReopenChecksSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.db")
	s, err := Open(path, Config{WALEnabled: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopen at the supported version works.
	s, err = Open(path, Config{WALEnabled: true})
	require.NoError(t, err)

	// Stamp a bogus future version; the next open must refuse.
	_, err = s.db.Exec("PRAGMA user_version=99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path, Config{WALEnabled: true})
	var mismatch *lcierr.SchemaMismatchError
	assert.ErrorAs(t, err, &mismatch)
}
