// Package vector stores per-node embeddings and answers cosine top-K
// queries, either exactly (linear scan) or approximately through an HNSW
// graph. The dimension is fixed at construction; every mutation is
// dimension-checked before it touches the index.
package vector

import (
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	lcierr "github.com/scooter-lacroix/leindex/internal/errors"
	"github.com/scooter-lacroix/leindex/internal/types"
)

// Mode selects the search strategy.
type Mode int

const (
	ModeExact Mode = iota
	ModeHNSW
)

// HNSWParams tune the approximate index.
type HNSWParams struct {
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultHNSWParams mirror the configuration defaults.
func DefaultHNSWParams() HNSWParams {
	return HNSWParams{M: 16, EfConstruction: 200, EfSearch: 64}
}

// Match is one search hit; Score is cosine similarity clamped to [0,1].
type Match struct {
	ID    types.SymbolID
	Score float64
}

// Index owns its embedding buffers. Concurrent searches are safe; mutations
// take the write lock.
type Index struct {
	mu     sync.RWMutex
	dim    int
	mode   Mode
	params HNSWParams

	// vectors is the authoritative copy in both modes; the HNSW graph is a
	// derived acceleration structure rebuilt on SwitchMode.
	vectors map[types.SymbolID][]float32
	graph   *hnsw.Graph[uint64]
}

// NewExact creates a linear-scan index of the given dimension.
func NewExact(dim int) *Index {
	return &Index{dim: dim, mode: ModeExact, vectors: make(map[types.SymbolID][]float32)}
}

// NewHNSW creates an HNSW-accelerated index.
func NewHNSW(dim int, params HNSWParams) *Index {
	idx := &Index{dim: dim, mode: ModeHNSW, params: params, vectors: make(map[types.SymbolID][]float32)}
	idx.graph = newGraph(params, params.EfSearch)
	return idx
}

func newGraph(params HNSWParams, ef int) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	if params.M > 0 {
		g.M = params.M
	}
	if ef > 0 {
		g.EfSearch = ef
	}
	g.Distance = hnsw.CosineDistance
	return g
}

// Dim returns the configured dimension.
func (x *Index) Dim() int { return x.dim }

// Mode returns the active search strategy.
func (x *Index) Mode() Mode {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.mode
}

// Len returns the number of stored vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Insert stores a vector under id, overwriting any previous value.
func (x *Index) Insert(id types.SymbolID, vec []float32) error {
	if len(vec) != x.dim {
		return lcierr.NewDimensionMismatchError(x.dim, len(vec))
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.insertLocked(id, vec)
	return nil
}

func (x *Index) insertLocked(id types.SymbolID, vec []float32) {
	owned := make([]float32, len(vec))
	copy(owned, vec)
	if x.mode == ModeHNSW {
		if _, exists := x.vectors[id]; exists {
			x.graph.Delete(uint64(id))
		}
		x.graph.Add(hnsw.MakeNode(uint64(id), owned))
	}
	x.vectors[id] = owned
}

// InsertBatch validates every vector before mutating anything, so a single
// mismatched vector leaves the index untouched.
func (x *Index) InsertBatch(ids []types.SymbolID, vecs [][]float32) error {
	if len(ids) != len(vecs) {
		return lcierr.NewDimensionMismatchError(len(ids), len(vecs))
	}
	for _, v := range vecs {
		if len(v) != x.dim {
			return lcierr.NewDimensionMismatchError(x.dim, len(v))
		}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for i, id := range ids {
		x.insertLocked(id, vecs[i])
	}
	return nil
}

// Remove deletes id's vector; removing an absent id is a no-op.
func (x *Index) Remove(id types.SymbolID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, exists := x.vectors[id]; !exists {
		return
	}
	delete(x.vectors, id)
	if x.mode == ModeHNSW {
		x.graph.Delete(uint64(id))
	}
}

// Search returns up to k matches by descending cosine similarity. Ties break
// by ascending id so results are stable.
func (x *Index) Search(query []float32, k int) ([]Match, error) {
	if len(query) != x.dim {
		return nil, lcierr.NewDimensionMismatchError(x.dim, len(query))
	}
	if k <= 0 {
		return nil, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.mode == ModeHNSW {
		nodes := x.graph.Search(query, k)
		matches := make([]Match, 0, len(nodes))
		for _, n := range nodes {
			matches = append(matches, Match{
				ID:    types.SymbolID(n.Key),
				Score: types.Clamp01(Cosine(query, n.Value)),
			})
		}
		sortMatches(matches)
		return matches, nil
	}

	matches := make([]Match, 0, len(x.vectors))
	for id, v := range x.vectors {
		matches = append(matches, Match{ID: id, Score: types.Clamp01(Cosine(query, v))})
	}
	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// SwitchMode migrates all entries into an HNSW graph built with params, or
// back to exact mode when params is nil.
func (x *Index) SwitchMode(params *HNSWParams) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if params == nil {
		x.mode = ModeExact
		x.graph = nil
		return
	}

	x.params = *params
	// Bulk build runs with ef_construction as the search width, then the
	// query-time ef_search takes over.
	g := newGraph(*params, params.EfConstruction)
	ids := make([]types.SymbolID, 0, len(x.vectors))
	for id := range x.vectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		g.Add(hnsw.MakeNode(uint64(id), x.vectors[id]))
	}
	if params.EfSearch > 0 {
		g.EfSearch = params.EfSearch
	}
	x.graph = g
	x.mode = ModeHNSW
}

func sortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
}

// Cosine returns the cosine similarity of two equal-length vectors, 0 when
// either has zero magnitude.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
