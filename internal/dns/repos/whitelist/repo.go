// Package whitelist decides whether a base domain is exempt from scoring.
//
// Lookups run through a Bloom prefilter (definite negatives return
// immediately), an LRU decision cache, and finally the authoritative store.
package whitelist

import (
	"sync"
	"sync/atomic"

	"github.com/haukened/exfil-watch/internal/dns/common/utils"
	"github.com/haukened/exfil-watch/internal/dns/domain"
)

// repository implements Repository over a Store, a Bloom filter built by a
// factory, and a DecisionCache.
type repository struct {
	mu      sync.RWMutex
	store   Store
	cache   DecisionCache
	bloom   BloomFilter
	factory BloomFactory
	fpRate  float64

	bloomRejects atomic.Uint64
	lastUpdate   atomic.Int64
}

// NewRepository constructs a Repository.
// fpRate is the target false-positive rate for the Bloom filter when rebuilding.
func NewRepository(store Store, cache DecisionCache, factory BloomFactory, fpRate float64) Repository {
	return &repository{store: store, cache: cache, factory: factory, fpRate: fpRate}
}

// Decide reports whether baseDomain ends with any whitelist entry.
// Policy: on store errors, prefer not-whitelisted so the query is still scored.
func (r *repository) Decide(baseDomain string) domain.AllowDecision {
	cn := utils.CanonicalDNSName(baseDomain)
	if cn == "" {
		return domain.EmptyDecision()
	}
	if !r.checkBloom(cn) {
		r.bloomRejects.Add(1)
		return domain.EmptyDecision()
	}
	if d, ok := r.checkCache(cn); ok {
		return d
	}
	dec, ok := r.checkStore(cn)
	if ok {
		r.updateCache(cn, dec)
	}
	return dec
}

// UpdateAll performs an atomic snapshot update across store, bloom, and cache.
func (r *repository) UpdateAll(rules []domain.AllowRule, version uint64, updatedUnix int64) error {
	if err := r.store.RebuildAll(rules, version, updatedUnix); err != nil {
		return err
	}

	bf := r.factory.New(uint64(len(rules)), r.fpRate)
	for _, ru := range rules {
		bf.Add([]byte(ru.Name))
	}

	r.mu.Lock()
	r.bloom = bf
	r.cache.Purge()
	r.mu.Unlock()
	r.lastUpdate.Store(updatedUnix)
	return nil
}

// Stats returns repository counters plus cache and store snapshots.
func (r *repository) Stats() RepoStats {
	return RepoStats{
		Cache:        r.cache.Stats(),
		Store:        r.store.Stats(),
		BloomRejects: r.bloomRejects.Load(),
		LastUpdate:   r.lastUpdate.Load(),
	}
}

// Close releases the underlying store.
func (r *repository) Close() error {
	return r.store.Close()
}

// checkBloom returns true if any suffix of cn may be an entry. With no filter
// loaded yet it returns true so the store stays authoritative.
func (r *repository) checkBloom(cn string) bool {
	r.mu.RLock()
	bf := r.bloom
	r.mu.RUnlock()
	if bf == nil {
		return true
	}
	maybe := false
	VisitSuffixes(cn, func(s string) bool {
		maybe = bf.MightContain([]byte(s))
		return !maybe
	})
	return maybe
}

func (r *repository) checkCache(cn string) (domain.AllowDecision, bool) {
	r.mu.RLock()
	d, ok := r.cache.Get(cn)
	r.mu.RUnlock()
	return d, ok
}

// checkStore consults the store. ok is false on error so the result is not cached.
func (r *repository) checkStore(cn string) (domain.AllowDecision, bool) {
	rule, found, err := r.store.FirstMatch(cn)
	if err != nil {
		return domain.EmptyDecision(), false
	}
	if !found {
		return domain.EmptyDecision(), true
	}
	return domain.AllowDecision{Allowed: true, MatchedRule: rule.Name, Source: rule.Source}, true
}

func (r *repository) updateCache(cn string, dec domain.AllowDecision) {
	r.mu.Lock()
	r.cache.Put(cn, dec)
	r.mu.Unlock()
}
