// Package bolt persists the whitelist index in a bbolt database so large
// list directories need not be reparsed on every start.
package bolt

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/exfil-watch/internal/dns/domain"
	"github.com/haukened/exfil-watch/internal/dns/repos/whitelist"
)

var (
	bucketRules = []byte("rules")
	bucketMeta  = []byte("meta")

	keyVersion = []byte("version")
	keyUpdated = []byte("updated")
)

// boltStore implements whitelist.Store using bbolt. Keys are canonical
// entry names; values carry the added-at time and source.
type boltStore struct {
	mu     sync.RWMutex
	db     *bbolt.DB
	closed bool
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (whitelist.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open whitelist db %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRules); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// FirstMatch checks every suffix of name inside a single read transaction,
// longest first.
func (s *boltStore) FirstMatch(name string) (domain.AllowRule, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.AllowRule{}, false, whitelist.ErrStoreClosed
	}

	var (
		rule  domain.AllowRule
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRules)
		if b == nil {
			return nil
		}
		var decodeErr error
		whitelist.VisitSuffixes(name, func(suffix string) bool {
			v := b.Get([]byte(suffix))
			if v == nil {
				return true
			}
			rule, decodeErr = decodeRule(suffix, v)
			found = decodeErr == nil
			return false
		})
		return decodeErr
	})
	if err != nil {
		return domain.AllowRule{}, false, err
	}
	return rule, found, nil
}

// RebuildAll drops and recreates the rules bucket in one write transaction.
func (s *boltStore) RebuildAll(rules []domain.AllowRule, version uint64, updatedUnix int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return whitelist.ErrStoreClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketRules) != nil {
			if err := tx.DeleteBucket(bucketRules); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(bucketRules)
		if err != nil {
			return err
		}
		for _, r := range rules {
			key := []byte(r.Name)
			if b.Get(key) != nil {
				continue
			}
			if err := b.Put(key, encodeRule(r)); err != nil {
				return err
			}
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if err := meta.Put(keyVersion, uint64Bytes(version)); err != nil {
			return err
		}
		return meta.Put(keyUpdated, uint64Bytes(uint64(updatedUnix)))
	})
}

func (s *boltStore) Stats() whitelist.StoreStats {
	st := whitelist.StoreStats{}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return st
	}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketRules); b != nil {
			st.Rules = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketMeta); b != nil {
			if v := b.Get(keyVersion); len(v) == 8 {
				st.Version = binary.BigEndian.Uint64(v)
			}
			if v := b.Get(keyUpdated); len(v) == 8 {
				st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
			}
		}
		return nil
	})
	return st
}

// encodeRule lays out a value as 8 bytes of big-endian unix seconds
// followed by the source string.
func encodeRule(r domain.AllowRule) []byte {
	buf := make([]byte, 8+len(r.Source))
	binary.BigEndian.PutUint64(buf, uint64(r.AddedAt.Unix()))
	copy(buf[8:], r.Source)
	return buf
}

func decodeRule(name string, v []byte) (domain.AllowRule, error) {
	if len(v) < 8 {
		return domain.AllowRule{}, fmt.Errorf("corrupt whitelist value for %q: %d bytes", name, len(v))
	}
	return domain.AllowRule{
		Name:    name,
		AddedAt: time.Unix(int64(binary.BigEndian.Uint64(v[:8])), 0),
		Source:  string(v[8:]),
	}, nil
}

func uint64Bytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
