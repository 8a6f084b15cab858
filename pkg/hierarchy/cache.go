package hierarchy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheConfig sizes the read-through cache
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// DefaultCacheConfig returns a small cache with a short TTL
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{Size: 4096, TTL: 30 * time.Second}
}

// CacheStats reports cache effectiveness
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Folders int   `json:"folders"`
	Docs    int   `json:"documents"`
}

// parentEntry keeps a nil parent distinguishable from a miss
type parentEntry struct {
	id *int64
}

// CachedIndex decorates an Index with LRU caches for folder parents and
// document placement. Every mutation made through it purges both caches;
// changes made behind its back are visible after TTL.
//
// A lookup that misses records the purge generation before reading next and
// stores its result only if no purge happened meanwhile, so a read racing a
// mutation never caches the pre-mutation value.
type CachedIndex struct {
	Index

	parents   *lru.LRU[int64, parentEntry]
	locations *lru.LRU[int64, parentEntry]
	hits      atomic.Int64
	misses    atomic.Int64

	mu  sync.Mutex // orders fills against Purge
	gen uint64
}

// NewCachedIndex wraps next
func NewCachedIndex(next Index, cfg CacheConfig) *CachedIndex {
	if cfg.Size <= 0 {
		cfg.Size = DefaultCacheConfig().Size
	}
	return &CachedIndex{
		Index:     next,
		parents:   lru.NewLRU[int64, parentEntry](cfg.Size, nil, cfg.TTL),
		locations: lru.NewLRU[int64, parentEntry](cfg.Size, nil, cfg.TTL),
	}
}

// ParentOf returns the cached parent of a folder
func (c *CachedIndex) ParentOf(ctx context.Context, folderID int64) (*int64, error) {
	if e, ok := c.parents.Get(folderID); ok {
		c.hits.Add(1)
		return cloneID(e.id), nil
	}
	c.misses.Add(1)

	gen := c.generation()
	parent, err := c.Index.ParentOf(ctx, folderID)
	if err != nil {
		return nil, err
	}
	c.fill(c.parents, gen, folderID, parent)
	return parent, nil
}

// AncestorsOf walks cached parent links
func (c *CachedIndex) AncestorsOf(ctx context.Context, folderID int64) ([]int64, error) {
	return walkAncestors(ctx, folderID, c.ParentOf)
}

// FolderOf returns the cached folder of a document
func (c *CachedIndex) FolderOf(ctx context.Context, documentID int64) (*int64, error) {
	if e, ok := c.locations.Get(documentID); ok {
		c.hits.Add(1)
		return cloneID(e.id), nil
	}
	c.misses.Add(1)

	gen := c.generation()
	folder, err := c.Index.FolderOf(ctx, documentID)
	if err != nil {
		return nil, err
	}
	c.fill(c.locations, gen, documentID, folder)
	return folder, nil
}

func (c *CachedIndex) CreateFolder(ctx context.Context, f Folder) (*Folder, error) {
	defer c.Purge()
	return c.Index.CreateFolder(ctx, f)
}

func (c *CachedIndex) MoveFolder(ctx context.Context, id int64, newParentID *int64) error {
	defer c.Purge()
	return c.Index.MoveFolder(ctx, id, newParentID)
}

func (c *CachedIndex) DeleteFolder(ctx context.Context, id int64) error {
	defer c.Purge()
	return c.Index.DeleteFolder(ctx, id)
}

func (c *CachedIndex) AddDocument(ctx context.Context, d Document) (*Document, error) {
	defer c.Purge()
	return c.Index.AddDocument(ctx, d)
}

func (c *CachedIndex) MoveDocument(ctx context.Context, id int64, folderID *int64) error {
	defer c.Purge()
	return c.Index.MoveDocument(ctx, id, folderID)
}

func (c *CachedIndex) DeleteDocument(ctx context.Context, id int64) error {
	defer c.Purge()
	return c.Index.DeleteDocument(ctx, id)
}

func (c *CachedIndex) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// fill caches id under key unless a purge ran after gen was read
func (c *CachedIndex) fill(cache *lru.LRU[int64, parentEntry], gen uint64, key int64, id *int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	cache.Add(key, parentEntry{id: cloneID(id)})
}

// Purge drops every cached entry and invalidates lookups in flight
func (c *CachedIndex) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.parents.Purge()
	c.locations.Purge()
}

// Stats returns hit/miss counters and current sizes
func (c *CachedIndex) Stats() CacheStats {
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Folders: c.parents.Len(),
		Docs:    c.locations.Len(),
	}
}
