package store

import (
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

// RistrettoStore is a Store backend over github.com/dgraph-io/ristretto/v2,
// adapted from the teacher's cache/l1.go L1 cache. Ristretto has no atomic
// read-modify-write and no key enumeration, so RistrettoStore keeps a small
// guarded key index alongside the ristretto cache to supply both: Update
// takes the index's mutex for the read-modify-write, and Scan walks the
// index, re-reading each live value from ristretto.
type RistrettoStore[V any] struct {
	rc *ristretto.Cache[string, Record[V]]

	mu   sync.Mutex
	keys map[string]struct{}
}

// NewRistrettoStore creates a RistrettoStore whose ristretto cache can hold
// up to maxCost entries (each entry costs 1).
func NewRistrettoStore[V any](maxCost int64) (*RistrettoStore[V], error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, Record[V]]{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoStore[V]{rc: rc, keys: make(map[string]struct{})}, nil
}

func (s *RistrettoStore[V]) Get(k string) (Record[V], bool) {
	return s.rc.Get(k)
}

func (s *RistrettoStore[V]) Put(k string, r Record[V]) {
	s.mu.Lock()
	s.keys[k] = struct{}{}
	s.mu.Unlock()

	s.rc.Set(k, r, 1)
	s.rc.Wait()
}

func (s *RistrettoStore[V]) Remove(k string) bool {
	s.mu.Lock()
	_, existed := s.keys[k]
	delete(s.keys, k)
	s.mu.Unlock()

	s.rc.Del(k)
	return existed
}

func (s *RistrettoStore[V]) Update(k string, fn func(Record[V], bool) Record[V]) (Record[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rc.Get(k)
	next := fn(cur, ok)
	s.keys[k] = struct{}{}
	s.rc.Set(k, next, 1)
	s.rc.Wait()
	return next, true
}

func (s *RistrettoStore[V]) Scan(yield func(string, Record[V]) bool) {
	s.mu.Lock()
	snapshot := make([]string, 0, len(s.keys))
	for k := range s.keys {
		snapshot = append(snapshot, k)
	}
	s.mu.Unlock()

	for _, k := range snapshot {
		r, ok := s.rc.Get(k)
		if !ok {
			continue
		}
		if !yield(k, r) {
			return
		}
	}
}

func (s *RistrettoStore[V]) Clear() int {
	s.mu.Lock()
	n := len(s.keys)
	keys := make([]string, 0, n)
	for k := range s.keys {
		keys = append(keys, k)
	}
	s.keys = make(map[string]struct{})
	s.mu.Unlock()

	for _, k := range keys {
		s.rc.Del(k)
	}
	return n
}

func (s *RistrettoStore[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
