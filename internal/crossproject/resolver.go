// Package crossproject resolves symbols across project boundaries through
// the durable global symbol table and merges peer graphs into a single
// cross-project view with remapped, origin-tagged node ids.
package crossproject

import (
	"context"
	"sort"
	"time"

	"lukechampine.com/blake3"

	"github.com/scooter-lacroix/leindex/internal/store"
	"github.com/scooter-lacroix/leindex/internal/types"
)

// GlobalID derives the stable identity of one symbol occurrence:
// BLAKE3(project_id || qualified_name || signature_hash), hex encoded.
func GlobalID(project types.ProjectID, qname, signatureHash string) string {
	h := blake3.New(32, nil)
	h.Write([]byte(project))
	h.Write([]byte{0})
	h.Write([]byte(qname))
	h.Write([]byte{0})
	h.Write([]byte(signatureHash))
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return types.ContentHash(sum).ToHex()
}

// RecencyFn optionally overrides a candidate's effective index time, e.g.
// with the owning file's last git commit timestamp.
type RecencyFn func(store.GlobalSymbol) (time.Time, bool)

// Resolver orders global-symbol candidates for a caller.
type Resolver struct {
	st      *store.Store
	recency RecencyFn
}

// NewResolver builds a resolver over the store; recency may be nil.
func NewResolver(st *store.Store, recency RecencyFn) *Resolver {
	return &Resolver{st: st, recency: recency}
}

// Resolve returns every candidate for symbol, ordered by: same project as
// contextProject first, then most recently indexed, then lexicographic
// (project, signature). Identical signatures across projects both survive;
// the caller chooses.
func (r *Resolver) Resolve(ctx context.Context, symbol string, contextProject types.ProjectID) ([]store.GlobalSymbol, error) {
	candidates, err := r.st.GlobalSymbolsByName(ctx, symbol)
	if err != nil {
		return nil, err
	}
	r.order(candidates, contextProject)
	return candidates, nil
}

func (r *Resolver) effectiveTime(g store.GlobalSymbol) time.Time {
	if r.recency != nil {
		if at, ok := r.recency(g); ok {
			return at
		}
	}
	return g.IndexedAt
}

func (r *Resolver) order(candidates []store.GlobalSymbol, contextProject types.ProjectID) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		aSame := contextProject != "" && a.Project == contextProject
		bSame := contextProject != "" && b.Project == contextProject
		if aSame != bSame {
			return aSame
		}
		at, bt := r.effectiveTime(a), r.effectiveTime(b)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		return a.SignatureHash < b.SignatureHash
	})
}
