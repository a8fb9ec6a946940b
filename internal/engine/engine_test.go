package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scooter-lacroix/leindex/internal/config"
	"github.com/scooter-lacroix/leindex/internal/search"
)

func newProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return root
}

func openEngine(t *testing.T, root string) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Project.Name = "testproj"
	require.NoError(t, config.ValidateConfig(cfg))
	e, err := Open(cfg, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestIndexThenSearchTrivialProject(t *testing.T) {
	root := newProject(t, map[string]string{
		"a.py": "def login(user):\n  return authenticate(user)\n",
	})
	e := openEngine(t, root)

	stats, err := e.Index(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesParsed)
	assert.Equal(t, 1, stats.SuccessfulParses)
	assert.Zero(t, stats.FailedParses)
	assert.Greater(t, stats.PDGNodes, 0)

	results, err := e.Search(context.Background(), search.Query{Text: "login", TopK: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, "a.login", results[0].Symbol)
	assert.Equal(t, "a.py", results[0].FilePath)
	assert.Greater(t, results[0].Score.Overall, 0.0)
}

func TestCallEdgesAndImpact(t *testing.T) {
	root := newProject(t, map[string]string{
		"app.py": "def caller():\n  return callee()\n\ndef callee():\n  return leaf()\n\ndef leaf():\n  return 1\n",
	})
	e := openEngine(t, root)
	_, err := e.Index(context.Background(), false)
	require.NoError(t, err)

	forward, err := e.ForwardImpact("app.caller")
	require.NoError(t, err)
	require.Len(t, forward, 2)
	calleeID, ok := e.Graph().FindBySymbol("testproj", "app.callee")
	require.True(t, ok)
	leafID, ok := e.Graph().FindBySymbol("testproj", "app.leaf")
	require.True(t, ok)
	assert.ElementsMatch(t, []any{calleeID, leafID}, []any{forward[0], forward[1]})

	backward, err := e.BackwardImpact("app.leaf")
	require.NoError(t, err)
	callerID, _ := e.Graph().FindBySymbol("testproj", "app.caller")
	assert.Contains(t, backward, callerID)
	assert.Contains(t, backward, calleeID)
}

func TestIncrementalSkipAndForce(t *testing.T) {
	root := newProject(t, map[string]string{
		"a.py": "def f():\n  return 1\n",
		"b.py": "def g():\n  return 2\n",
	})
	e := openEngine(t, root)

	first, err := e.Index(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, first.FilesParsed)
	assert.Zero(t, first.SkippedUnchanged)

	// Untouched re-index serves every file from the snapshot.
	second, err := e.Index(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, second.FilesParsed)
	assert.Equal(t, 2, second.SkippedUnchanged)
	assert.Equal(t, 2, second.SuccessfulParses)

	// force re-parses everything.
	third, err := e.Index(context.Background(), true)
	require.NoError(t, err)
	assert.Zero(t, third.SkippedUnchanged)
	assert.Equal(t, 2, third.SuccessfulParses)
}

func TestReindexAfterEditReplacesNodes(t *testing.T) {
	root := newProject(t, map[string]string{
		"a.py": "def old_name():\n  return 1\n",
	})
	e := openEngine(t, root)
	_, err := e.Index(context.Background(), false)
	require.NoError(t, err)
	_, ok := e.Graph().FindBySymbol("testproj", "a.old_name")
	require.True(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"),
		[]byte("def new_name():\n  return 2\n"), 0o644))
	_, err = e.Index(context.Background(), true)
	require.NoError(t, err)

	_, ok = e.Graph().FindBySymbol("testproj", "a.old_name")
	assert.False(t, ok)
	_, ok = e.Graph().FindBySymbol("testproj", "a.new_name")
	assert.True(t, ok)
}

func TestParseErrorsCollectedNotFatal(t *testing.T) {
	root := newProject(t, map[string]string{
		"good.py":   "def ok():\n  return 1\n",
		"broken.py": "def broken(:\n",
	})
	e := openEngine(t, root)

	stats, err := e.Index(context.Background(), false)
	require.NoError(t, err) // 1/2 failures is at, not past, the 0.5 abort ratio
	assert.Equal(t, 1, stats.FailedParses)
	assert.Equal(t, 1, stats.SuccessfulParses)
	require.Len(t, stats.ParseErrors, 1)
}

func TestAnalyzeExpandsContextUnderBudget(t *testing.T) {
	root := newProject(t, map[string]string{
		"auth.py": "def login(user):\n  return check(user)\n\ndef check(user):\n  return user == \"ok\"\n",
	})
	e := openEngine(t, root)
	_, err := e.Index(context.Background(), false)
	require.NoError(t, err)

	out, err := e.Analyze(context.Background(), "show me how login works", 500)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Results)
	assert.NotEmpty(t, out.ContextText)
	assert.LessOrEqual(t, out.TokensUsed, 500)
	assert.Contains(t, out.ContextText, "login")
}

func TestDiagnosticsSnapshot(t *testing.T) {
	root := newProject(t, map[string]string{"a.py": "def f():\n  return 1\n"})
	e := openEngine(t, root)
	_, err := e.Index(context.Background(), false)
	require.NoError(t, err)

	d := e.Diagnostics()
	assert.Greater(t, d.BudgetBytes, uint64(0))
	assert.Greater(t, d.PDGNodes, 0)
	assert.NotEmpty(t, d.ThresholdState)
}

func TestPersistedGraphSurvivesReopen(t *testing.T) {
	root := newProject(t, map[string]string{
		"a.py": "def login(user):\n  return user\n",
	})

	e := openEngine(t, root)
	_, err := e.Index(context.Background(), false)
	require.NoError(t, err)
	nodes := e.Graph().NodeCount()
	require.NoError(t, e.Close())

	reopened := openEngine(t, root)
	assert.Equal(t, nodes, reopened.Graph().NodeCount())

	results, err := reopened.Search(context.Background(), search.Query{Text: "login", TopK: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestEnginesAreIsolated(t *testing.T) {
	rootA := newProject(t, map[string]string{"a.py": "def only_in_a():\n  return 1\n"})
	rootB := newProject(t, map[string]string{"b.py": "def only_in_b():\n  return 2\n"})

	ea := openEngine(t, rootA)
	eb := openEngine(t, rootB)
	_, err := ea.Index(context.Background(), false)
	require.NoError(t, err)
	_, err = eb.Index(context.Background(), false)
	require.NoError(t, err)

	results, err := ea.Search(context.Background(), search.Query{Text: "only_in_b", TopK: 5})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotContains(t, r.Symbol, "only_in_b")
	}
}
