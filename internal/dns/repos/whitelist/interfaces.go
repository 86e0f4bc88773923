package whitelist

import "github.com/haukened/exfil-watch/internal/dns/domain"

// BloomFilter is the minimal interface the repository needs from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory creates Bloom filters sized for capacity and target FP rate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// BloomSizer computes Bloom filter parameters from capacity (n) and target FP rate (p).
// It returns m (number of bits) and k (number of hash functions).
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// DecisionCache caches whitelist decisions by canonical base domain.
type DecisionCache interface {
	Get(name string) (domain.AllowDecision, bool)
	Put(name string, d domain.AllowDecision)
	Len() int
	Purge()
	Stats() CacheStats
}

// Store is the authoritative whitelist index.
//   - FirstMatch returns the longest entry that name ends with
//   - RebuildAll atomically replaces the contents and metadata
type Store interface {
	FirstMatch(name string) (domain.AllowRule, bool, error)
	RebuildAll(rules []domain.AllowRule, version uint64, updatedUnix int64) error
	Stats() StoreStats
	Close() error
}

// Repository composes bloom → cache → store.
// Decide returns a value-type AllowDecision for a base domain.
// UpdateAll rebuilds the store, refreshes the Bloom filter, and clears the cache.
type Repository interface {
	Decide(baseDomain string) domain.AllowDecision
	UpdateAll(rules []domain.AllowRule, version uint64, updatedUnix int64) error
	Stats() RepoStats
	Close() error
}
