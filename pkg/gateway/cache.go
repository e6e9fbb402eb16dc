package gateway

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheConfig configures the read cache
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// DefaultCacheConfig returns the default cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries: 1024,
		TTL:        30 * time.Second,
	}
}

// CacheStats are point-in-time cache counters
type CacheStats struct {
	Hits   int64
	Misses int64
	Size   int
}

// Cached serves point reads from an expiring LRU. Writes through this
// wrapper invalidate the affected key; writes made by other processes
// become visible once the entry expires.
type Cached struct {
	next   Gateway
	cache  *lru.LRU[string, Record]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCached wraps next with a read cache
func NewCached(next Gateway, config CacheConfig) *Cached {
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheConfig().MaxEntries
	}
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig().TTL
	}
	return &Cached{
		next:  next,
		cache: lru.NewLRU[string, Record](config.MaxEntries, nil, config.TTL),
	}
}

func cacheKey(accountID, collection, id string) string {
	return accountID + "/" + collection + "/" + id
}

func (c *Cached) Put(ctx context.Context, accountID, collection, id string, rec Record) error {
	c.cache.Remove(cacheKey(accountID, collection, id))
	return c.next.Put(ctx, accountID, collection, id, rec)
}

func (c *Cached) Get(ctx context.Context, accountID, collection, id string) (Record, error) {
	key := cacheKey(accountID, collection, id)
	if rec, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return append(Record(nil), rec...), nil
	}
	c.misses.Add(1)

	rec, err := c.next.Get(ctx, accountID, collection, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, append(Record(nil), rec...))
	return rec, nil
}

func (c *Cached) List(ctx context.Context, accountID, collection string) ([]Record, error) {
	return c.next.List(ctx, accountID, collection)
}

func (c *Cached) Remove(ctx context.Context, accountID, collection, id string) error {
	c.cache.Remove(cacheKey(accountID, collection, id))
	return c.next.Remove(ctx, accountID, collection, id)
}

func (c *Cached) Subscribe(ctx context.Context, accountID, collection string, fn SnapshotFunc) (Unsubscribe, error) {
	return c.next.Subscribe(ctx, accountID, collection, fn)
}

// Accounts forwards to the wrapped gateway when it can list accounts
func (c *Cached) Accounts(ctx context.Context) ([]string, error) {
	return ListAccounts(ctx, c.next)
}

// Stats returns the current cache counters
func (c *Cached) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.cache.Len(),
	}
}

// Purge drops every cached entry
func (c *Cached) Purge() {
	c.cache.Purge()
}
