// Package index drives the indexing pipeline: discover files, parse them on
// a bounded worker pool, build the project's dependence graph, resolve call
// edges, feed the search engine, and persist everything in batched
// transactions. Incremental runs re-parse only files whose snapshot changed.
package index

import (
	"context"
	"log"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scooter-lacroix/leindex/internal/cache"
	"github.com/scooter-lacroix/leindex/internal/config"
	"github.com/scooter-lacroix/leindex/internal/debug"
	lcierr "github.com/scooter-lacroix/leindex/internal/errors"
	"github.com/scooter-lacroix/leindex/internal/linker"
	"github.com/scooter-lacroix/leindex/internal/parser"
	"github.com/scooter-lacroix/leindex/internal/pdg"
	"github.com/scooter-lacroix/leindex/internal/search"
	"github.com/scooter-lacroix/leindex/internal/store"
	"github.com/scooter-lacroix/leindex/internal/types"
)

// IndexStats is the report returned by one pipeline run.
type IndexStats struct {
	FilesParsed      int   `json:"files_parsed"`
	SuccessfulParses int   `json:"successful_parses"`
	FailedParses     int   `json:"failed_parses"`
	TotalSignatures  int   `json:"total_signatures"`
	PDGNodes         int   `json:"pdg_nodes"`
	PDGEdges         int   `json:"pdg_edges"`
	IndexingTimeMs   int64 `json:"indexing_time_ms"`

	// SkippedUnchanged counts files served from the incremental snapshot.
	SkippedUnchanged int `json:"skipped_unchanged"`
	// UnresolvedCalls counts call names with no project-local definition.
	UnresolvedCalls int `json:"unresolved_calls"`

	ParseErrors []error `json:"-"`
}

// Orchestrator owns one project's pipeline.
type Orchestrator struct {
	cfg     *config.Config
	project types.ProjectID
	adapter *parser.Adapter
	graph   *pdg.Graph
	engine  *search.Engine
	st      *store.Store
	cache   *cache.Incremental
	logger  *log.Logger
}

// NewOrchestrator wires the pipeline's collaborators. st and cache may be
// nil for in-memory-only runs (tests, ephemeral queries).
func NewOrchestrator(cfg *config.Config, project types.ProjectID, adapter *parser.Adapter,
	graph *pdg.Graph, engine *search.Engine, st *store.Store, c *cache.Incremental, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		cfg:     cfg,
		project: project,
		adapter: adapter,
		graph:   graph,
		engine:  engine,
		st:      st,
		cache:   c,
		logger:  logger,
	}
}

type parseOutcome struct {
	file    DiscoveredFile
	source  []byte
	records []types.SymbolRecord
	err     error
	skipped bool
}

// IndexProject runs the full pipeline. With force=false, files whose size,
// mtime and content hash match the previous snapshot keep their existing
// nodes.
func (o *Orchestrator) IndexProject(ctx context.Context, force bool) (*IndexStats, error) {
	started := time.Now()
	stats := &IndexStats{}

	files, err := Discover(o.cfg, o.adapter)
	if err != nil {
		return nil, err
	}
	stats.FilesParsed = len(files)
	debug.Logf("index: discovered %d files under %s", len(files), o.cfg.Project.Root)

	var snapshots map[string]store.FileSnapshot
	if o.st != nil && !force {
		if snapshots, err = o.st.FileSnapshots(ctx, o.project); err != nil {
			return nil, err
		}
	}

	outcomes := make([]parseOutcome, len(files))
	workers := o.cfg.Index.MaxParsers
	if workers <= 0 || workers > runtime.NumCPU() {
		workers = runtime.NumCPU()
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(workers)
	for i := range files {
		// Cancellation checkpoint at the start of each file.
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}
		i := i
		grp.Go(func() error {
			if err := checkpoint(gctx); err != nil {
				return err
			}
			outcomes[i] = o.parseFile(files[i], snapshots)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	var failures []error
	for i := range outcomes {
		out := &outcomes[i]
		switch {
		case out.skipped:
			stats.SkippedUnchanged++
			stats.SuccessfulParses++
		case out.err != nil:
			stats.FailedParses++
			failures = append(failures, out.err)
		default:
			stats.SuccessfulParses++
			stats.TotalSignatures += len(out.records)
		}
	}
	stats.ParseErrors = failures

	if stats.FilesParsed > 0 {
		ratio := float64(stats.FailedParses) / float64(stats.FilesParsed)
		if ratio > o.cfg.Index.AbortRatio {
			return stats, lcierr.NewIndexingAbortedError(ratio)
		}
	}

	// Files that vanished since the last run lose their nodes.
	o.removeDeletedFiles(files)

	changed := o.mergeIntoGraph(outcomes)
	o.resolveEdges(stats)

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	if err := o.feedSearchEngine(changed); err != nil {
		return nil, err
	}
	if o.st != nil {
		if err := o.persist(ctx, outcomes); err != nil {
			return nil, err
		}
	}

	stats.PDGNodes = o.graph.NodeCount()
	stats.PDGEdges = o.graph.EdgeCount()
	stats.IndexingTimeMs = time.Since(started).Milliseconds()
	o.logger.Printf("indexed %d files (%d parsed, %d skipped, %d failed) in %dms",
		stats.FilesParsed, stats.SuccessfulParses-stats.SkippedUnchanged,
		stats.SkippedUnchanged, stats.FailedParses, stats.IndexingTimeMs)
	return stats, nil
}

func (o *Orchestrator) parseFile(f DiscoveredFile, snapshots map[string]store.FileSnapshot) parseOutcome {
	out := parseOutcome{file: f}

	src, err := os.ReadFile(f.AbsPath)
	if err != nil {
		out.err = lcierr.NewIoError("read "+f.RelPath, err)
		return out
	}
	out.source = src

	if snap, ok := snapshots[f.RelPath]; ok &&
		snap.SizeBytes == f.Size && snap.MtimeNanos == f.MtimeNs &&
		snap.ContentHash == types.ComputeContentHash(src) {
		out.skipped = true
		return out
	}

	records, err := o.adapter.Parse(f.Language, f.RelPath, src)
	if err != nil {
		out.err = err
		return out
	}
	out.records = records
	return out
}

func (o *Orchestrator) removeDeletedFiles(current []DiscoveredFile) {
	live := make(map[string]bool, len(current))
	for _, f := range current {
		live[f.RelPath] = true
	}
	removed := 0
	for _, path := range o.graphFiles() {
		if !live[path] {
			for _, id := range o.graph.NodesInFile(path) {
				o.engine.RemoveNodes([]types.SymbolID{id})
			}
			o.graph.RemoveFile(path)
			removed++
		}
	}
	if removed > 0 {
		o.engine.Compact()
	}
}

func (o *Orchestrator) graphFiles() []string {
	seen := make(map[string]bool)
	var paths []string
	for _, id := range o.graph.NodeIDs() {
		if n, ok := o.graph.GetNode(id); ok && !seen[n.FilePath] {
			seen[n.FilePath] = true
			paths = append(paths, n.FilePath)
		}
	}
	sort.Strings(paths)
	return paths
}

// mergeIntoGraph replaces each re-parsed file's subgraph and returns the
// ids of nodes added in this run with each node's source slice.
func (o *Orchestrator) mergeIntoGraph(outcomes []parseOutcome) map[pdg.NodeID]string {
	added := make(map[pdg.NodeID]string)
	for i := range outcomes {
		out := &outcomes[i]
		if out.skipped || out.err != nil {
			continue
		}
		stale := o.graph.NodesInFile(out.file.RelPath)
		if len(stale) > 0 {
			o.engine.RemoveNodes(stale)
			o.graph.RemoveFile(out.file.RelPath)
		}
		for _, rec := range out.records {
			slice := sliceOf(out.source, rec.ByteRange)
			hash := types.ComputeContentHash(slice)
			id, err := o.graph.AddNode(o.project, rec, hash)
			if err != nil {
				// Duplicate qualified names inside one file (overloads,
				// conditional definitions): keep the first.
				debug.Logf("index: %v", err)
				continue
			}
			added[id] = string(slice)
			if o.cache != nil {
				o.cache.Put(hash, pdg.EncodeNode(mustNode(o.graph, id)))
			}
		}
	}
	return added
}

func sliceOf(src []byte, r types.ByteRange) []byte {
	if r.Start < 0 || r.End > len(src) || r.Start > r.End {
		return src
	}
	return src[r.Start:r.End]
}

func mustNode(g *pdg.Graph, id pdg.NodeID) pdg.Node {
	n, _ := g.GetNode(id)
	return n
}

// resolveEdges builds contains, inherits, imports and call edges over the
// whole graph. Re-running after a partial re-index is safe: duplicate
// edges merge.
func (o *Orchestrator) resolveEdges(stats *IndexStats) {
	qnames := make([]string, 0, o.graph.NodeCount())
	for _, id := range o.graph.NodeIDs() {
		if n, ok := o.graph.GetNode(id); ok {
			qnames = append(qnames, n.QualifiedName)
		}
	}
	resolver := linker.NewResolver(o.project, o.graph, qnames)

	for _, id := range o.graph.NodeIDs() {
		n, ok := o.graph.GetNode(id)
		if !ok {
			continue
		}

		// contains: parent qualifier one dot up.
		if i := strings.LastIndex(n.QualifiedName, "."); i > 0 {
			if parent, ok := o.graph.FindBySymbol(o.project, n.QualifiedName[:i]); ok {
				_ = o.graph.AddEdge(parent, id, types.EdgeContains, nil)
			}
		}

		for _, call := range n.Calls {
			callee, ok := resolver.Resolve(n.SymbolRecord, call)
			if !ok {
				stats.UnresolvedCalls++
				continue
			}
			if callee == id {
				continue
			}
			_ = o.graph.AddEdge(id, callee, types.EdgeCall, &pdg.EdgeMeta{CallCount: 1})
		}

		for _, super := range n.Supertypes {
			if parent, ok := resolver.Resolve(n.SymbolRecord, super); ok && parent != id {
				_ = o.graph.AddEdge(id, parent, types.EdgeInherits, nil)
				o.addOverrideEdges(id, parent)
			}
		}

		if n.Kind == types.KindModule {
			for _, imp := range n.Imports {
				target := strings.ReplaceAll(imp, "/", ".")
				if dep, ok := o.graph.FindBySymbol(o.project, target); ok && dep != id {
					_ = o.graph.AddEdge(id, dep, types.EdgeImports, nil)
				}
			}
		}
	}
}

// addOverrideEdges connects methods of a subclass to same-named methods of
// its parent class.
func (o *Orchestrator) addOverrideEdges(class, parent pdg.NodeID) {
	classNode, ok1 := o.graph.GetNode(class)
	parentNode, ok2 := o.graph.GetNode(parent)
	if !ok1 || !ok2 {
		return
	}
	for _, id := range o.graph.NodesInFile(classNode.FilePath) {
		n, ok := o.graph.GetNode(id)
		if !ok || n.Kind != types.KindMethod {
			continue
		}
		if !strings.HasPrefix(n.QualifiedName, classNode.QualifiedName+".") {
			continue
		}
		overridden, ok := o.graph.FindBySymbol(o.project, parentNode.QualifiedName+"."+n.DisplayName)
		if !ok {
			continue
		}
		_ = o.graph.AddEdge(id, overridden, types.EdgeOverrides, nil)
	}
}

func (o *Orchestrator) feedSearchEngine(added map[pdg.NodeID]string) error {
	views := make([]search.NodeView, 0, len(added))
	for id, content := range added {
		n, ok := o.graph.GetNode(id)
		if !ok || n.Kind == types.KindModule {
			// Module nodes anchor the graph but are not search hits; a
			// whole-file content match would shadow its own symbols.
			continue
		}
		views = append(views, search.NodeView{
			ID:            id,
			FilePath:      n.FilePath,
			Symbol:        n.QualifiedName,
			DisplayName:   n.DisplayName,
			Language:      n.Language,
			Content:       content,
			ByteRange:     n.ByteRange,
			Embedding:     n.Embedding,
			Complexity:    n.ComplexityScore,
			IncomingCount: n.IncomingCount,
			TokenCount:    n.Complexity.TokenCount,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Symbol < views[j].Symbol })
	return o.engine.IndexNodes(views)
}

func (o *Orchestrator) persist(ctx context.Context, outcomes []parseOutcome) error {
	snaps := make([]store.FileSnapshot, 0, len(outcomes))
	for i := range outcomes {
		out := &outcomes[i]
		if out.err != nil {
			continue
		}
		snaps = append(snaps, store.FileSnapshot{
			Path:        out.file.RelPath,
			SizeBytes:   out.file.Size,
			MtimeNanos:  out.file.MtimeNs,
			ContentHash: types.ComputeContentHash(out.source),
		})
	}
	return o.st.SavePDG(ctx, o.project, o.graph, snaps, o.cfg.Index.BatchSize)
}

func checkpoint(ctx context.Context) error {
	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return lcierr.ErrTimeout
		}
		return lcierr.ErrCancelled
	default:
		return nil
	}
}
