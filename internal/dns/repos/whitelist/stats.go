package whitelist

// CacheStats reports lightweight cache metrics.
// All fields are best-effort snapshots and may be updated concurrently.
type CacheStats struct {
	Capacity  int    // configured capacity (0 for disabled cache)
	Size      int    // current number of entries
	Hits      uint64 // total cache hits since construction
	Misses    uint64 // total cache misses since construction
	Evictions uint64 // total evictions since construction
}

// StoreStats reports store size and snapshot metadata.
type StoreStats struct {
	Version     uint64 // snapshot version (0 if unknown)
	UpdatedUnix int64  // last updated unix time (0 if unknown)
	Rules       uint64 // number of whitelist entries
}

// RepoStats aggregates repository counters with cache and store stats.
type RepoStats struct {
	Cache        CacheStats
	Store        StoreStats
	BloomRejects uint64 // lookups answered by the Bloom filter alone
	LastUpdate   int64  // unix seconds of the last successful UpdateAll
}
