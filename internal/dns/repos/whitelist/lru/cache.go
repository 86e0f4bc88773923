package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/exfil-watch/internal/dns/domain"
	"github.com/haukened/exfil-watch/internal/dns/repos/whitelist"
)

// decisionCache is an LRU-backed implementation of whitelist.DecisionCache.
type decisionCache struct {
	lru       *lru.Cache[string, domain.AllowDecision]
	capacity  int
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// disabledCache always misses; used when size <= 0.
type disabledCache struct{}

// New creates a DecisionCache with the given capacity. If size <= 0, a
// disabled cache is returned that always misses and tracks no metrics.
func New(size int) (whitelist.DecisionCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	dc := &decisionCache{capacity: size}
	// Purge-induced removals are counted as evictions too.
	cache, err := lru.NewWithEvict(size, func(_ string, _ domain.AllowDecision) {
		dc.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	return dc, nil
}

func (c *decisionCache) Get(name string) (domain.AllowDecision, bool) {
	if val, ok := c.lru.Get(name); ok {
		c.hits.Add(1)
		return val, true
	}
	c.misses.Add(1)
	return domain.AllowDecision{}, false
}

func (c *decisionCache) Put(name string, d domain.AllowDecision) {
	c.lru.Add(name, d)
}

func (c *decisionCache) Len() int { return c.lru.Len() }

func (c *decisionCache) Purge() { c.lru.Purge() }

func (c *decisionCache) Stats() whitelist.CacheStats {
	return whitelist.CacheStats{
		Capacity:  c.capacity,
		Size:      c.lru.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

func (d *disabledCache) Get(string) (domain.AllowDecision, bool) {
	return domain.AllowDecision{}, false
}

func (d *disabledCache) Put(string, domain.AllowDecision) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() whitelist.CacheStats { return whitelist.CacheStats{} }

var _ whitelist.DecisionCache = (*decisionCache)(nil)
var _ whitelist.DecisionCache = (*disabledCache)(nil)
