// Package engine is the facade the CLI and the tool protocol drive: one
// Engine per project, owning its parser pool, dependence graph, search
// engine, durable store, incremental cache and memory manager. Engines are
// fully isolated; nothing engine-scoped lives in package globals.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scooter-lacroix/leindex/internal/cache"
	"github.com/scooter-lacroix/leindex/internal/classifier"
	"github.com/scooter-lacroix/leindex/internal/config"
	"github.com/scooter-lacroix/leindex/internal/crossproject"
	lcierr "github.com/scooter-lacroix/leindex/internal/errors"
	"github.com/scooter-lacroix/leindex/internal/git"
	"github.com/scooter-lacroix/leindex/internal/index"
	"github.com/scooter-lacroix/leindex/internal/memory"
	"github.com/scooter-lacroix/leindex/internal/metrics"
	"github.com/scooter-lacroix/leindex/internal/parser"
	"github.com/scooter-lacroix/leindex/internal/pdg"
	"github.com/scooter-lacroix/leindex/internal/search"
	"github.com/scooter-lacroix/leindex/internal/store"
	"github.com/scooter-lacroix/leindex/internal/traversal"
	"github.com/scooter-lacroix/leindex/internal/types"
	"github.com/scooter-lacroix/leindex/internal/vector"
)

// StateDirName is the per-project state directory.
const StateDirName = ".leindex"

// Engine ties the subsystems together for one project.
type Engine struct {
	cfg     *config.Config
	project types.ProjectID

	adapter  *parser.Adapter
	graph    *pdg.Graph
	searcher *search.Engine
	st       *store.Store
	cache    *cache.Incremental
	manager  *memory.Manager
	orch     *index.Orchestrator
	resolver *crossproject.Resolver
	gauges   *metrics.Set
	logger   *log.Logger
}

// Options tweak construction.
type Options struct {
	// Ephemeral skips the durable store (tests, one-shot queries).
	Ephemeral bool
	Logger    *log.Logger
}

// Open constructs an engine rooted at cfg.Project.Root, loading any
// previously persisted graph.
func Open(cfg *config.Config, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	project := types.ProjectID(cfg.Project.Name)
	if project == "" {
		project = types.ProjectID(filepath.Base(cfg.Project.Root))
	}

	e := &Engine{
		cfg:     cfg,
		project: project,
		adapter: parser.New(),
		graph:   pdg.New(),
		gauges:  metrics.New(),
		logger:  logger,
	}

	hnswParams := &vector.HNSWParams{
		M:              cfg.Search.HNSW.M,
		EfConstruction: cfg.Search.HNSW.EfConstruction,
		EfSearch:       cfg.Search.HNSW.EfSearch,
	}
	e.searcher = search.NewEngine(search.Options{
		VectorDim: cfg.Search.VectorDim,
		KStruct:   cfg.Search.KStruct,
		HNSW:      hnswParams,
		StopWords: cfg.Classifier.StopWords,
	})

	stateDir := filepath.Join(cfg.Project.Root, StateDirName)
	spillDir := filepath.Join(stateDir, "spill")
	if !opts.Ephemeral {
		st, err := store.Open(filepath.Join(stateDir, "store.db"), store.Config{
			WALEnabled: cfg.Store.WALEnabled,
			CachePages: cfg.Store.CachePages,
		})
		if err != nil {
			return nil, err
		}
		e.st = st
		e.resolver = crossproject.NewResolver(st, e.gitRecency())
	}
	e.cache = cache.New(cfg.Memory.TotalBudgetMB<<20/8, e.st, spillDir)

	mcfg := memory.Config{
		TotalBudgetBytes: uint64(cfg.Memory.TotalBudgetMB) << 20,
		SoftPercent:      cfg.Memory.SoftPercent,
		HardPercent:      cfg.Memory.HardPercent,
		EmergencyPercent: cfg.Memory.EmergencyPercent,
		SampleInterval:   time.Duration(cfg.Memory.SampleIntervalS) * time.Second,
	}
	e.manager = memory.NewManager(mcfg, logger)
	e.registerOwners()
	e.manager.Start()

	e.orch = index.NewOrchestrator(cfg, project, e.adapter, e.graph, e.searcher, e.st, e.cache, logger)

	if e.st != nil {
		if err := e.loadPersisted(); err != nil {
			e.manager.Stop()
			e.st.Close()
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) gitRecency() crossproject.RecencyFn {
	provider := git.NewRecencyProvider(e.cfg.Project.Root)
	return func(g store.GlobalSymbol) (time.Time, bool) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		node, ok, err := e.st.GetNode(ctx, g.Project, g.NodeID)
		if err != nil || !ok {
			return time.Time{}, false
		}
		return provider.LastCommitTime(ctx, node.FilePath)
	}
}

func (e *Engine) registerOwners() {
	e.manager.Register("incremental-cache", memory.PriorityLow, memory.Owner{
		Sample: func() uint64 {
			_, bytes, _, _ := e.cache.Stats()
			return uint64(bytes)
		},
		Spill: func(ctx context.Context) (uint64, error) {
			freed, err := e.cache.Spill(ctx)
			return uint64(freed), err
		},
		Warm: func(ctx context.Context, _ string) error {
			return e.cache.Warm(ctx)
		},
	})
	e.manager.Register("search-engine", memory.PriorityNormal, memory.Owner{
		Trim: func() { e.searcher.Compact() },
	})
	// The graph is the system of record between persists; never evicted.
	e.manager.Register("pdg", memory.PriorityCritical, memory.Owner{})
}

// loadPersisted restores the graph and search index from the store.
func (e *Engine) loadPersisted() error {
	ctx := context.Background()
	g, err := e.st.LoadPDG(ctx, e.project)
	if err != nil {
		return err
	}
	if g.NodeCount() == 0 {
		return nil
	}
	e.graph = g

	var views []search.NodeView
	for _, id := range g.NodeIDs() {
		n, ok := g.GetNode(id)
		if !ok || n.Kind == types.KindModule {
			continue
		}
		views = append(views, search.NodeView{
			ID:            id,
			FilePath:      n.FilePath,
			Symbol:        n.QualifiedName,
			DisplayName:   n.DisplayName,
			Language:      n.Language,
			Content:       e.readSlice(n),
			ByteRange:     n.ByteRange,
			Embedding:     n.Embedding,
			Complexity:    n.ComplexityScore,
			IncomingCount: n.IncomingCount,
			TokenCount:    n.Complexity.TokenCount,
		})
	}
	if err := e.searcher.IndexNodes(views); err != nil {
		return err
	}
	// The orchestrator keeps feeding the restored graph.
	e.orch = index.NewOrchestrator(e.cfg, e.project, e.adapter, e.graph, e.searcher, e.st, e.cache, e.logger)
	return nil
}

func (e *Engine) readSlice(n pdg.Node) string {
	src, err := os.ReadFile(filepath.Join(e.cfg.Project.Root, filepath.FromSlash(n.FilePath)))
	if err != nil || n.ByteRange.End > len(src) || n.ByteRange.Start > n.ByteRange.End {
		return ""
	}
	return string(src[n.ByteRange.Start:n.ByteRange.End])
}

// Graph exposes the dependence graph for read access.
func (e *Engine) Graph() *pdg.Graph { return e.graph }

// Searcher exposes the search engine.
func (e *Engine) Searcher() *search.Engine { return e.searcher }

// Project returns the engine's project id.
func (e *Engine) Project() types.ProjectID { return e.project }

// Index runs the pipeline, publishes global symbols for cross-project
// resolution, and refreshes the gauges.
func (e *Engine) Index(ctx context.Context, force bool) (*index.IndexStats, error) {
	stats, err := e.orch.IndexProject(ctx, force)
	if stats != nil {
		e.gauges.IndexedFiles.Set(float64(stats.FilesParsed))
		e.gauges.PDGNodes.Set(float64(e.graph.NodeCount()))
		e.gauges.PDGEdges.Set(float64(e.graph.EdgeCount()))
	}
	if err != nil {
		return stats, err
	}
	if e.st != nil {
		if perr := e.publishGlobalSymbols(ctx); perr != nil {
			return stats, perr
		}
	}
	return stats, nil
}

// publishGlobalSymbols upserts one row per symbol into the global table.
func (e *Engine) publishGlobalSymbols(ctx context.Context) error {
	now := time.Now()
	var rows []store.GlobalSymbol
	for _, id := range e.graph.NodeIDs() {
		n, ok := e.graph.GetNode(id)
		if !ok || n.Kind == types.KindModule {
			continue
		}
		sig := signatureOf(n)
		rows = append(rows, store.GlobalSymbol{
			GlobalID:      crossproject.GlobalID(e.project, n.QualifiedName, sig),
			Project:       e.project,
			Symbol:        n.QualifiedName,
			SignatureHash: sig,
			Visibility:    visibilityOf(n),
			NodeID:        id,
			IndexedAt:     now,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return e.st.PutGlobalSymbols(ctx, rows)
}

// signatureOf fingerprints a symbol's callable shape: parameters and return
// type, hashed so overload variants get distinct global ids.
func signatureOf(n pdg.Node) string {
	var b strings.Builder
	for _, p := range n.Parameters {
		b.WriteString(p.Name)
		b.WriteByte(':')
		b.WriteString(p.Type)
		b.WriteByte(',')
	}
	b.WriteString("->")
	b.WriteString(n.ReturnType)
	return types.ComputeContentHash([]byte(b.String())).ToHex()[:16]
}

// visibilityOf applies per-language convention: leading underscore or
// lowercase-in-Go means private.
func visibilityOf(n pdg.Node) string {
	name := n.DisplayName
	if name == "" {
		return "private"
	}
	if strings.HasPrefix(name, "_") {
		return "private"
	}
	if n.Language == "go" && name[0] >= 'a' && name[0] <= 'z' {
		return "private"
	}
	return "public"
}

// Search runs one ranked query.
func (e *Engine) Search(ctx context.Context, q search.Query) ([]search.Result, error) {
	return e.searcher.Search(ctx, q)
}

// AnalyzeResult is the outcome of a natural-language question: ranked hits
// plus budget-bounded expanded context.
type AnalyzeResult struct {
	Results        []search.Result           `json:"results"`
	Classification classifier.Classification `json:"-"`
	ContextText    string                    `json:"context_text"`
	TokensUsed     int                       `json:"tokens_used"`
	ProcessingMs   int64                     `json:"processing_time_ms"`
}

// Analyze classifies the question, searches, and expands context from the
// top hits under tokenBudget.
func (e *Engine) Analyze(ctx context.Context, question string, tokenBudget int) (*AnalyzeResult, error) {
	started := time.Now()
	if tokenBudget <= 0 {
		tokenBudget = 4000
	}

	results, cl, err := e.searcher.NaturalSearch(ctx, question, e.cfg.Search.DefaultTopK)
	if err != nil {
		return nil, err
	}

	out := &AnalyzeResult{Results: results, Classification: cl}

	seeds := make([]pdg.NodeID, 0, 3)
	for _, r := range results {
		if len(seeds) == 3 {
			break
		}
		seeds = append(seeds, r.ID)
	}
	if len(seeds) > 0 {
		expansion, err := traversal.Expand(ctx, e.graph, seeds, traversal.Options{
			TokenBudget: tokenBudget,
			MaxDepth:    e.cfg.Traversal.MaxDepth,
			EdgeWeights: edgeWeights(e.cfg),
		})
		if err != nil {
			return nil, err
		}
		out.TokensUsed = expansion.TokensUsed
		out.ContextText = e.renderContext(expansion)
	}
	out.ProcessingMs = time.Since(started).Milliseconds()
	return out, nil
}

func edgeWeights(cfg *config.Config) map[types.EdgeKind]float64 {
	if len(cfg.Traversal.EdgeWeights) == 0 {
		return nil
	}
	out := make(map[types.EdgeKind]float64, len(cfg.Traversal.EdgeWeights))
	for name, w := range cfg.Traversal.EdgeWeights {
		switch name {
		case "call":
			out[types.EdgeCall] = w
		case "contains":
			out[types.EdgeContains] = w
		case "inherits":
			out[types.EdgeInherits] = w
		case "reads":
			out[types.EdgeReads] = w
		case "writes":
			out[types.EdgeWrites] = w
		case "imports":
			out[types.EdgeImports] = w
		case "overrides":
			out[types.EdgeOverrides] = w
		}
	}
	return out
}

// renderContext prints the expansion in admission order, the natural
// outline order for a reader.
func (e *Engine) renderContext(res traversal.Result) string {
	var b strings.Builder
	for _, admitted := range res.Nodes {
		n, ok := e.graph.GetNode(admitted.ID)
		if !ok {
			continue // died since expansion; drop at render time
		}
		fmt.Fprintf(&b, "## %s (%s, %s)\n", n.QualifiedName, n.Kind, n.FilePath)
		if slice := e.readSlice(n); slice != "" {
			b.WriteString(slice)
			if !strings.HasSuffix(slice, "\n") {
				b.WriteByte('\n')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// ForwardImpact and BackwardImpact expose impact closures by symbol name.
func (e *Engine) ForwardImpact(qname string) ([]pdg.NodeID, error) {
	id, ok := e.graph.FindBySymbol(e.project, qname)
	if !ok {
		return nil, lcierr.NewInvalidQueryError("unknown symbol " + qname)
	}
	return e.graph.ForwardImpact(id), nil
}

func (e *Engine) BackwardImpact(qname string) ([]pdg.NodeID, error) {
	id, ok := e.graph.FindBySymbol(e.project, qname)
	if !ok {
		return nil, lcierr.NewInvalidQueryError("unknown symbol " + qname)
	}
	return e.graph.BackwardImpact(id), nil
}

// Resolver returns the cross-project resolver (nil for ephemeral engines).
func (e *Engine) Resolver() *crossproject.Resolver { return e.resolver }

// Diagnostics is the snapshot served by the diagnostics operation.
type Diagnostics struct {
	RSSBytes         uint64 `json:"rss_bytes"`
	BudgetBytes      uint64 `json:"budget"`
	CacheEntries     int    `json:"cache_entries"`
	OpenTransactions int    `json:"open_transactions"`
	ThresholdState   string `json:"threshold_state"`
	PDGNodes         int    `json:"pdg_nodes"`
	PDGEdges         int    `json:"pdg_edges"`
	IndexedSymbols   int    `json:"indexed_symbols"`
}

// Diagnostics samples current resource state and refreshes the gauges.
// Ephemeral engines have no store, hence zero open transactions.
func (e *Engine) Diagnostics() Diagnostics {
	entries, _, _, _ := e.cache.Stats()
	d := Diagnostics{
		RSSBytes:       e.manager.RSS(),
		BudgetBytes:    e.manager.Budget(),
		CacheEntries:   entries,
		ThresholdState: e.manager.State().String(),
		PDGNodes:       e.graph.NodeCount(),
		PDGEdges:       e.graph.EdgeCount(),
		IndexedSymbols: e.searcher.Len(),
	}
	if e.st != nil {
		d.OpenTransactions = e.st.OpenTransactions()
	}
	e.gauges.RSSBytes.Set(float64(d.RSSBytes))
	e.gauges.BudgetBytes.Set(float64(d.BudgetBytes))
	e.gauges.ThresholdState.Set(float64(e.manager.State()))
	e.gauges.CacheEntries.Set(float64(d.CacheEntries))
	e.gauges.OpenTransactions.Set(float64(d.OpenTransactions))
	e.gauges.PDGNodes.Set(float64(d.PDGNodes))
	e.gauges.PDGEdges.Set(float64(d.PDGEdges))
	return d
}

// Gauges exposes the Prometheus set for the serve command.
func (e *Engine) Gauges() *metrics.Set { return e.gauges }

// Spill forces caches to durable storage; a non-empty scope names one
// registered owner.
func (e *Engine) Spill(ctx context.Context, scope string) {
	if scope == "" {
		e.manager.SpillAll(ctx)
		return
	}
	e.manager.SpillOwner(ctx, scope)
}

// Warm restores spilled data.
func (e *Engine) Warm(ctx context.Context, strategy string) error {
	return e.manager.WarmAll(ctx, strategy)
}

// Close stops the sampler and checkpoints the store.
func (e *Engine) Close() error {
	e.manager.Stop()
	if e.st != nil {
		return e.st.Close()
	}
	return nil
}
