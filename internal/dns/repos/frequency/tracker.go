// Package frequency tracks how often each base domain is queried within a
// trailing time window.
package frequency

import (
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxDomains bounds the number of base domains tracked at once.
const DefaultMaxDomains = 100_000

// ErrInvalidWindow is returned when the window duration is not positive.
var ErrInvalidWindow = errors.New("frequency window must be positive")

// Options configures a Tracker.
type Options struct {
	// Window is the trailing duration a query stays counted.
	Window time.Duration
	// MaxDomains caps the number of tracked base domains. When full, the least
	// recently observed domain is dropped. Zero selects DefaultMaxDomains.
	MaxDomains int
}

// Stats is a point-in-time snapshot of tracker bookkeeping.
type Stats struct {
	Domains   int    // base domains currently tracked
	Evictions uint64 // domains dropped because MaxDomains was reached
	Pruned    uint64 // domains removed because their window emptied
}

// window holds the timestamps of queries against one base domain in arrival
// order, which is not necessarily time order.
type window struct {
	stamps []time.Time
}

// Tracker keeps one sliding window per base domain. Stale timestamps are
// evicted lazily whenever a domain is accessed; there is no background timer.
// State lives in process memory only and is lost on restart.
//
// All methods are safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	window    time.Duration
	domains   *lru.Cache[string, *window]
	evictions uint64
	pruned    uint64
}

// New returns a Tracker for the given options.
func New(opts Options) (*Tracker, error) {
	if opts.Window <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWindow, opts.Window)
	}
	size := opts.MaxDomains
	if size <= 0 {
		size = DefaultMaxDomains
	}
	domains, err := lru.New[string, *window](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create domain index: %w", err)
	}
	return &Tracker{window: opts.Window, domains: domains}, nil
}

// Window returns the configured trailing window.
func (t *Tracker) Window() time.Duration {
	return t.window
}

// Observe records a query against base at now, evicts timestamps that fell out
// of the window, and returns how many queries in the window are not later than
// now (including this one).
func (t *Tracker) Observe(base string, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.domains.Get(base)
	if !ok {
		w = &window{}
		if t.domains.Add(base, w) {
			t.evictions++
		}
	}
	w.stamps = append(w.stamps, now)
	t.evict(w, now)
	return live(w, now)
}

// Count evicts stale timestamps for base and returns how many remain,
// without recording a new query. Domains left empty are forgotten.
func (t *Tracker) Count(base string, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.domains.Peek(base)
	if !ok {
		return 0
	}
	t.evict(w, now)
	if len(w.stamps) == 0 {
		t.domains.Remove(base)
		t.pruned++
	}
	return live(w, now)
}

// Prune sweeps every tracked domain, evicting stale timestamps and forgetting
// domains whose window is now empty. It returns the number of domains removed.
func (t *Tracker) Prune(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for _, base := range t.domains.Keys() {
		w, ok := t.domains.Peek(base)
		if !ok {
			continue
		}
		t.evict(w, now)
		if len(w.stamps) == 0 {
			t.domains.Remove(base)
			removed++
		}
	}
	t.pruned += uint64(removed)
	return removed
}

// Stats returns a snapshot of the tracker counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Domains:   t.domains.Len(),
		Evictions: t.evictions,
		Pruned:    t.pruned,
	}
}

// evict drops timestamps at least one window older than now. Events are
// timed by their sources and may arrive out of order, so every stamp is
// checked. Must hold t.mu.
func (t *Tracker) evict(w *window, now time.Time) {
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if now.Sub(ts) < t.window {
			kept = append(kept, ts)
		}
	}
	// clear the tail so dropped entries do not pin the backing array
	clear(w.stamps[len(kept):])
	w.stamps = kept
}

// live counts the stamps at or before now. Stamps ahead of now belong to a
// later event and are kept for later calls. Must hold t.mu.
func live(w *window, now time.Time) int {
	n := 0
	for _, ts := range w.stamps {
		if !ts.After(now) {
			n++
		}
	}
	return n
}
