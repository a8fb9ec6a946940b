// Package search ranks PDG nodes against queries by combining semantic
// (vector), structural (centrality) and text scores. It holds only node ids
// plus a snapshot of searchable fields; the graph remains the owner of node
// data, and ids that died since indexing are dropped at render time.
package search

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/scooter-lacroix/leindex/internal/classifier"
	lcierr "github.com/scooter-lacroix/leindex/internal/errors"
	"github.com/scooter-lacroix/leindex/internal/semantic"
	"github.com/scooter-lacroix/leindex/internal/types"
	"github.com/scooter-lacroix/leindex/internal/vector"
)

// NodeView is the searchable snapshot of one PDG node.
type NodeView struct {
	ID            types.SymbolID
	FilePath      string
	Symbol        string // qualified name
	DisplayName   string
	Language      string
	Content       string // the node's source slice
	ByteRange     types.ByteRange
	Embedding     []float32
	Complexity    float64
	IncomingCount int
	TokenCount    int
}

// Query is one search request.
type Query struct {
	Text        string
	TopK        int
	QueryVector []float32
	Threshold   float64
	Intent      classifier.Intent
	Language    string
	FileGlob    string
}

// Result is one ranked hit.
type Result struct {
	Rank         int              `json:"rank"`
	ID           types.SymbolID   `json:"node_id"`
	FilePath     string           `json:"file_path"`
	Symbol       string           `json:"symbol_name"`
	Score        types.ScoreTuple `json:"score"`
	SnippetRange types.ByteRange  `json:"snippet_range"`
}

// Hybrid weights and constants.
const (
	weightSemantic   = 0.5
	weightStructural = 0.3
	weightText       = 0.2
	intentBoost      = 1.2
	// DefaultKStruct normalizes incoming-edge centrality.
	DefaultKStruct = 10

	invertedShards = 16
	scoreBatchSize = 256
)

type tokenShard struct {
	mu    sync.RWMutex
	terms map[string][]types.SymbolID
}

// Engine indexes NodeViews and answers ranked queries. Reads run
// concurrently; IndexNodes and RemoveNodes are exclusive writes.
type Engine struct {
	mu      sync.RWMutex
	views   map[types.SymbolID]NodeView
	tokens  map[types.SymbolID]map[string]struct{}
	kstruct int

	shards  [invertedShards]*tokenShard
	vectors *vector.Index
	cls     *classifier.Classifier
}

// Options configure an engine instance.
type Options struct {
	VectorDim int
	KStruct   int
	HNSW      *vector.HNSWParams // nil selects exact mode
	StopWords []string
}

// NewEngine builds an empty engine.
func NewEngine(opts Options) *Engine {
	kstruct := opts.KStruct
	if kstruct <= 0 {
		kstruct = DefaultKStruct
	}
	var vx *vector.Index
	if opts.HNSW != nil {
		vx = vector.NewHNSW(opts.VectorDim, *opts.HNSW)
	} else {
		vx = vector.NewExact(opts.VectorDim)
	}
	e := &Engine{
		views:   make(map[types.SymbolID]NodeView),
		tokens:  make(map[types.SymbolID]map[string]struct{}),
		kstruct: kstruct,
		vectors: vx,
		cls:     classifier.New(opts.StopWords),
	}
	for i := range e.shards {
		e.shards[i] = &tokenShard{terms: make(map[string][]types.SymbolID)}
	}
	return e
}

// Vectors exposes the engine's vector index (mode switching, diagnostics).
func (e *Engine) Vectors() *vector.Index { return e.vectors }

func (e *Engine) shardFor(term string) *tokenShard {
	return e.shards[xxhash.Sum64String(term)%invertedShards]
}

// IndexNodes snapshots views into the text and vector indexes. Views with a
// wrong-dimension embedding are rejected before anything mutates.
func (e *Engine) IndexNodes(views []NodeView) error {
	for _, v := range views {
		if len(v.Embedding) != 0 && len(v.Embedding) != e.vectors.Dim() {
			return lcierr.NewDimensionMismatchError(e.vectors.Dim(), len(v.Embedding))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, v := range views {
		set := semantic.TokenSet(v.Symbol + " " + v.Content)
		e.views[v.ID] = v
		e.tokens[v.ID] = set
		for term := range set {
			shard := e.shardFor(term)
			shard.mu.Lock()
			shard.terms[term] = append(shard.terms[term], v.ID)
			shard.mu.Unlock()
		}
		if len(v.Embedding) > 0 {
			if err := e.vectors.Insert(v.ID, v.Embedding); err != nil {
				return err
			}
		}
	}
	return nil
}

// RemoveNodes drops views; inverted-index postings for dead ids are skipped
// at query time and reclaimed by Compact.
func (e *Engine) RemoveNodes(ids []types.SymbolID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		delete(e.views, id)
		delete(e.tokens, id)
		e.vectors.Remove(id)
	}
}

// Compact rewrites every posting list, removing entries for ids no longer
// indexed.
func (e *Engine) Compact() {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, shard := range e.shards {
		shard.mu.Lock()
		for term, ids := range shard.terms {
			kept := ids[:0]
			for _, id := range ids {
				if _, live := e.views[id]; live {
					kept = append(kept, id)
				}
			}
			if len(kept) == 0 {
				delete(shard.terms, term)
			} else {
				shard.terms[term] = kept
			}
		}
		shard.mu.Unlock()
	}
}

// Len returns the number of indexed views.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.views)
}

// Search ranks indexed nodes against q. Cancellation is honored between
// scoring batches.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	if strings.TrimSpace(q.Text) == "" && len(q.QueryVector) == 0 {
		return nil, lcierr.NewInvalidQueryError("empty text and empty vector")
	}
	if len(q.QueryVector) != 0 && len(q.QueryVector) != e.vectors.Dim() {
		return nil, lcierr.NewDimensionMismatchError(e.vectors.Dim(), len(q.QueryVector))
	}
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}

	e.mu.RLock()
	candidates := make([]NodeView, 0, len(e.views))
	for _, v := range e.views {
		if q.Language != "" && v.Language != q.Language {
			continue
		}
		if q.FileGlob != "" && !globMatch(q.FileGlob, v.FilePath) {
			continue
		}
		candidates = append(candidates, v)
	}
	e.mu.RUnlock()
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Symbol < candidates[j].Symbol })

	semScores, err := e.semanticScores(q.QueryVector)
	if err != nil {
		return nil, err
	}

	queryTokens := semantic.TokenSet(q.Text)
	queryFolded := strings.ToLower(strings.TrimSpace(q.Text))
	tokenHits := e.postingUnion(queryTokens)

	scored := make([]Result, len(candidates))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(4)
	for start := 0; start < len(candidates); start += scoreBatchSize {
		if ctx.Err() != nil {
			return nil, cancellationError(ctx)
		}
		lo, hi := start, start+scoreBatchSize
		if hi > len(candidates) {
			hi = len(candidates)
		}
		grp.Go(func() error {
			if gctx.Err() != nil {
				return cancellationError(gctx)
			}
			for i := lo; i < hi; i++ {
				scored[i] = e.scoreOne(candidates[i], q, queryTokens, queryFolded, semScores, tokenHits)
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	kept := scored[:0]
	for _, r := range scored {
		if r.Score.Overall <= 0 || r.Score.Overall < q.Threshold {
			continue
		}
		kept = append(kept, r)
	}
	sortResults(kept)

	if q.Intent == classifier.IntentBottlenecks {
		kept = e.reorderByComplexity(kept, topK)
	}
	if len(kept) > topK {
		kept = kept[:topK]
	}
	for i := range kept {
		kept[i].Rank = i + 1
	}
	return kept, nil
}

func (e *Engine) semanticScores(queryVec []float32) (map[types.SymbolID]float64, error) {
	if len(queryVec) == 0 {
		return nil, nil
	}
	// Over-fetch so hybrid re-ranking has enough vector candidates.
	matches, err := e.vectors.Search(queryVec, e.vectors.Len())
	if err != nil {
		return nil, err
	}
	scores := make(map[types.SymbolID]float64, len(matches))
	for _, m := range matches {
		scores[m.ID] = m.Score
	}
	return scores, nil
}

// postingUnion collects every id holding at least one query token, straight
// from the sharded inverted index. Candidates outside the union cannot have
// a non-zero Jaccard score, so scoring skips their token sets entirely.
func (e *Engine) postingUnion(queryTokens map[string]struct{}) map[types.SymbolID]bool {
	hits := make(map[types.SymbolID]bool)
	for term := range queryTokens {
		shard := e.shardFor(term)
		shard.mu.RLock()
		for _, id := range shard.terms[term] {
			hits[id] = true
		}
		shard.mu.RUnlock()
	}
	return hits
}

func (e *Engine) scoreOne(v NodeView, q Query, queryTokens map[string]struct{}, queryFolded string, semScores map[types.SymbolID]float64, tokenHits map[types.SymbolID]bool) Result {
	var nodeTokens map[string]struct{}
	if tokenHits[v.ID] {
		e.mu.RLock()
		nodeTokens = e.tokens[v.ID]
		e.mu.RUnlock()
	}

	text := textScore(queryFolded, queryTokens, v, nodeTokens)
	sem := 0.0
	if semScores != nil {
		sem = semScores[v.ID]
	}
	structural := types.Clamp01(float64(v.IncomingCount) / float64(e.kstruct))

	// Intent re-ranking multiplies the matching component before mixing.
	switch q.Intent {
	case classifier.IntentText:
		text = types.Clamp01(text * intentBoost)
	case classifier.IntentWhereHandled:
		structural = types.Clamp01(structural * intentBoost)
	case classifier.IntentSemantic, classifier.IntentHowWorks:
		sem = types.Clamp01(sem * intentBoost)
	}

	overall := types.Clamp01(weightSemantic*sem + weightStructural*structural + weightText*text)
	return Result{
		ID:       v.ID,
		FilePath: v.FilePath,
		Symbol:   v.Symbol,
		Score: types.ScoreTuple{
			Semantic:   sem,
			Structural: structural,
			Text:       text,
			Overall:    overall,
		},
		SnippetRange: v.ByteRange,
	}
}

// textScore is max(substring match, Jaccard over token sets), with a
// Jaro-Winkler similarity floor against the display name for near-miss
// spellings.
func textScore(queryFolded string, queryTokens map[string]struct{}, v NodeView, nodeTokens map[string]struct{}) float64 {
	if queryFolded == "" {
		return 0
	}
	symbolFolded := strings.ToLower(v.Symbol)
	score := 0.0
	switch {
	case symbolFolded == queryFolded || strings.ToLower(v.DisplayName) == queryFolded:
		score = 1
	case strings.Contains(symbolFolded, queryFolded) || strings.Contains(strings.ToLower(v.Content), queryFolded):
		score = 1
	}
	if j := semantic.Jaccard(queryTokens, nodeTokens); j > score {
		score = j
	}
	if score < 1 {
		if sim := 0.7 * semantic.Similarity(queryFolded, strings.ToLower(v.DisplayName)); sim > score {
			score = sim
		}
	}
	return types.Clamp01(score)
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score.Overall != results[j].Score.Overall {
			return results[i].Score.Overall > results[j].Score.Overall
		}
		return results[i].Symbol < results[j].Symbol
	})
}

// reorderByComplexity re-sorts the top 3*topK window by node complexity for
// bottleneck queries.
func (e *Engine) reorderByComplexity(results []Result, topK int) []Result {
	window := 3 * topK
	if window > len(results) {
		window = len(results)
	}
	head := results[:window]
	e.mu.RLock()
	sort.SliceStable(head, func(i, j int) bool {
		ci := e.views[head[i].ID].Complexity
		cj := e.views[head[j].ID].Complexity
		if ci != cj {
			return ci > cj
		}
		return head[i].Symbol < head[j].Symbol
	})
	e.mu.RUnlock()
	return results
}

// SearchByComplexity returns the topK most complex indexed nodes.
func (e *Engine) SearchByComplexity(topK int) []Result {
	if topK <= 0 {
		topK = 10
	}
	e.mu.RLock()
	views := make([]NodeView, 0, len(e.views))
	for _, v := range e.views {
		views = append(views, v)
	}
	e.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool {
		if views[i].Complexity != views[j].Complexity {
			return views[i].Complexity > views[j].Complexity
		}
		return views[i].Symbol < views[j].Symbol
	})
	if len(views) > topK {
		views = views[:topK]
	}
	results := make([]Result, len(views))
	for i, v := range views {
		results[i] = Result{
			Rank:         i + 1,
			ID:           v.ID,
			FilePath:     v.FilePath,
			Symbol:       v.Symbol,
			SnippetRange: v.ByteRange,
			Score:        types.ScoreTuple{Overall: types.Clamp01(v.Complexity / 100)},
		}
	}
	return results
}

// NaturalSearch classifies a question and runs the resulting query.
func (e *Engine) NaturalSearch(ctx context.Context, question string, topK int) ([]Result, classifier.Classification, error) {
	cl := e.cls.Classify(question)
	text := strings.Join(cl.Terms, " ")
	if cl.Quoted != "" {
		text = cl.Quoted
	}
	q := Query{
		Text:     text,
		TopK:     topK,
		Intent:   cl.Intent,
		Language: cl.Filters.Language,
		FileGlob: cl.Filters.FileGlob,
	}
	if cl.Intent == classifier.IntentBottlenecks && strings.TrimSpace(text) == "" {
		return e.SearchByComplexity(topK), cl, nil
	}
	results, err := e.Search(ctx, q)
	return results, cl, err
}

func cancellationError(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return lcierr.ErrTimeout
	}
	return lcierr.ErrCancelled
}
