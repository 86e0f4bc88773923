// Package memory provides an in-process whitelist store.
package memory

import (
	"sync"

	"github.com/haukened/exfil-watch/internal/dns/domain"
	"github.com/haukened/exfil-watch/internal/dns/repos/whitelist"
)

// store keeps whitelist entries in a map keyed by canonical name.
type store struct {
	mu      sync.RWMutex
	rules   map[string]domain.AllowRule
	version uint64
	updated int64
	closed  bool
}

// New returns an empty in-memory Store.
func New() whitelist.Store {
	return &store{rules: make(map[string]domain.AllowRule)}
}

// FirstMatch returns the longest entry that name ends with.
func (s *store) FirstMatch(name string) (domain.AllowRule, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.AllowRule{}, false, whitelist.ErrStoreClosed
	}
	var (
		match domain.AllowRule
		found bool
	)
	whitelist.VisitSuffixes(name, func(suffix string) bool {
		match, found = s.rules[suffix]
		return !found
	})
	return match, found, nil
}

// RebuildAll replaces the contents in one step.
func (s *store) RebuildAll(rules []domain.AllowRule, version uint64, updatedUnix int64) error {
	next := make(map[string]domain.AllowRule, len(rules))
	for _, r := range rules {
		if _, ok := next[r.Name]; !ok {
			next[r.Name] = r
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return whitelist.ErrStoreClosed
	}
	s.rules = next
	s.version = version
	s.updated = updatedUnix
	return nil
}

func (s *store) Stats() whitelist.StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return whitelist.StoreStats{
		Version:     s.version,
		UpdatedUnix: s.updated,
		Rules:       uint64(len(s.rules)),
	}
}

func (s *store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.rules = nil
	return nil
}
