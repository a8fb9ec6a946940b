// Package cache memoizes per-node analysis artifacts keyed by content hash.
// Entries are pure functions of their hash, so invalidation is only ever
// time-based or capacity-based, never dependency-tracked. A bounded
// in-memory LRU tier sits over the durable store and an on-disk spill
// directory of <hash>.bin blobs.
package cache

import (
	"container/list"
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/scooter-lacroix/leindex/internal/pdg"
	"github.com/scooter-lacroix/leindex/internal/store"
	"github.com/scooter-lacroix/leindex/internal/types"
)

type entry struct {
	hash     types.ContentHash
	artifact []byte
	at       time.Time
	elem     *list.Element
}

// Incremental is the hash-keyed analysis cache. Externally thread-safe.
type Incremental struct {
	mu        sync.Mutex
	entries   map[types.ContentHash]*entry
	lru       *list.List // front = most recent
	sizeBytes int
	budget    int

	st       *store.Store
	spillDir string

	hits   uint64
	misses uint64
}

// DefaultBudgetBytes bounds the in-memory tier when no budget is configured.
const DefaultBudgetBytes = 64 << 20

// New creates a cache with the given in-memory budget in bytes. st may be
// nil (memory + spill dir only); spillDir may be empty (no disk tier).
func New(budget int, st *store.Store, spillDir string) *Incremental {
	if budget <= 0 {
		budget = DefaultBudgetBytes
	}
	return &Incremental{
		entries:  make(map[types.ContentHash]*entry),
		lru:      list.New(),
		budget:   budget,
		st:       st,
		spillDir: spillDir,
	}
}

// IsCached reports presence in the in-memory tier without promoting the
// entry. Constant time.
func (c *Incremental) IsCached(hash types.ContentHash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[hash]
	return ok
}

// Get returns the artifact for hash, consulting memory, then the spill
// directory, then the store. ok is false on a miss everywhere.
func (c *Incremental) Get(ctx context.Context, hash types.ContentHash) (artifact []byte, ok bool, err error) {
	c.mu.Lock()
	if e, found := c.entries[hash]; found {
		c.lru.MoveToFront(e.elem)
		c.hits++
		c.mu.Unlock()
		return e.artifact, true, nil
	}
	c.misses++
	c.mu.Unlock()

	if c.spillDir != "" {
		if blob, err := os.ReadFile(c.spillPath(hash)); err == nil {
			c.admit(hash, blob)
			return blob, true, nil
		}
	}
	if c.st != nil {
		blob, found, err := c.st.GetArtifact(ctx, hash)
		if err != nil {
			return nil, false, err
		}
		if found {
			c.admit(hash, blob)
			return blob, true, nil
		}
	}
	return nil, false, nil
}

// Put stores an artifact, evicting least-recently-used entries past the
// memory budget.
func (c *Incremental) Put(hash types.ContentHash, artifact []byte) {
	c.admit(hash, artifact)
}

func (c *Incremental) admit(hash types.ContentHash, artifact []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, found := c.entries[hash]; found {
		c.sizeBytes += len(artifact) - len(e.artifact)
		e.artifact = artifact
		e.at = time.Now()
		c.lru.MoveToFront(e.elem)
	} else {
		e := &entry{hash: hash, artifact: artifact, at: time.Now()}
		e.elem = c.lru.PushFront(e)
		c.entries[hash] = e
		c.sizeBytes += len(artifact)
	}

	for c.sizeBytes > c.budget && c.lru.Len() > 1 {
		c.evictOldestLocked()
	}
}

func (c *Incremental) evictOldestLocked() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	e := back.Value.(*entry)
	c.lru.Remove(back)
	delete(c.entries, e.hash)
	c.sizeBytes -= len(e.artifact)
}

// InvalidateBefore purges entries older than cutoff from every tier.
func (c *Incremental) InvalidateBefore(ctx context.Context, cutoff time.Time) error {
	c.mu.Lock()
	for hash, e := range c.entries {
		if e.at.Before(cutoff) {
			c.lru.Remove(e.elem)
			delete(c.entries, hash)
			c.sizeBytes -= len(e.artifact)
		}
	}
	c.mu.Unlock()

	if c.spillDir != "" {
		blobs, _ := filepath.Glob(filepath.Join(c.spillDir, "*.bin"))
		for _, p := range blobs {
			if info, err := os.Stat(p); err == nil && info.ModTime().Before(cutoff) {
				os.Remove(p)
			}
		}
	}
	if c.st != nil {
		if _, err := c.st.DeleteArtifactsBefore(ctx, cutoff); err != nil {
			return err
		}
	}
	return nil
}

// AffectedNodes returns the ids of nodes in the changed files whose content
// hash no longer matches, i.e. the minimal re-index set. newHashes maps each
// changed file to its freshly parsed (qualified name -> hash) set.
func AffectedNodes(g *pdg.Graph, newHashes map[string]map[string]types.ContentHash) map[pdg.NodeID]struct{} {
	affected := make(map[pdg.NodeID]struct{})
	for file, hashes := range newHashes {
		for _, id := range g.NodesInFile(file) {
			n, ok := g.GetNode(id)
			if !ok {
				continue
			}
			fresh, stillPresent := hashes[n.QualifiedName]
			if !stillPresent || fresh != n.ContentHash {
				affected[id] = struct{}{}
			}
		}
	}
	return affected
}

func (c *Incremental) spillPath(hash types.ContentHash) string {
	return filepath.Join(c.spillDir, hash.ToHex()+".bin")
}

// Spill writes every in-memory entry to the spill directory (and the store
// when present), then releases the memory. Returns bytes freed.
func (c *Incremental) Spill(ctx context.Context) (int, error) {
	c.mu.Lock()
	victims := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		victims = append(victims, e)
	}
	c.mu.Unlock()

	if c.spillDir != "" {
		if err := os.MkdirAll(c.spillDir, 0o755); err != nil {
			return 0, err
		}
	}
	for _, e := range victims {
		if c.spillDir != "" {
			if err := os.WriteFile(c.spillPath(e.hash), e.artifact, 0o644); err != nil {
				return 0, err
			}
		}
		if c.st != nil {
			if err := c.st.PutArtifact(ctx, e.hash, e.artifact); err != nil {
				return 0, err
			}
		}
	}

	c.mu.Lock()
	freed := c.sizeBytes
	c.entries = make(map[types.ContentHash]*entry)
	c.lru.Init()
	c.sizeBytes = 0
	c.mu.Unlock()
	return freed, nil
}

// Warm restores every spilled blob into memory in file-name order; the LRU
// budget applies as each blob is admitted, so earlier blobs may be evicted
// again.
func (c *Incremental) Warm(ctx context.Context) error {
	if c.spillDir == "" {
		return nil
	}
	blobs, err := filepath.Glob(filepath.Join(c.spillDir, "*.bin"))
	if err != nil {
		return err
	}
	for _, p := range blobs {
		name := filepath.Base(p)
		hash, err := types.ContentHashFromHex(name[:len(name)-len(".bin")])
		if err != nil {
			continue
		}
		blob, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		c.admit(hash, blob)
	}
	return nil
}

// Stats reports entry count, resident bytes, and hit/miss counters.
func (c *Incremental) Stats() (entries, bytes int, hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), c.sizeBytes, c.hits, c.misses
}
