// Package bufstore keeps reference-counted in-memory sound data so that it can
// be addressed by a numeric key wherever a file name is accepted.
package bufstore

import (
	"io"
	"log"
)

type entry struct {
	data []byte
	refs int
}

// Store maps keys to owned byte buffers. It is not safe for concurrent use;
// all calls are expected to come from the engine's caller goroutine.
type Store struct {
	entries map[uint64]*entry
	nextKey uint64
	log     *log.Logger
}

func New(logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Store{
		entries: make(map[uint64]*entry),
		log:     logger,
	}
}

// NextKey returns a key that has never been handed out by this store.
func (s *Store) NextKey() uint64 {
	s.nextKey++
	for s.entries[s.nextKey] != nil || s.nextKey == 0 {
		s.nextKey++
	}
	return s.nextKey
}

// Add registers a copy of data under key. Registering an existing key only
// bumps its reference count; data is ignored in that case.
func (s *Store) Add(key uint64, data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if e, ok := s.entries[key]; ok {
		e.refs++
		return true
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.entries[key] = &entry{data: cp, refs: 1}
	return true
}

// Adopt is like Add but takes ownership of data instead of copying it.
func (s *Store) Adopt(key uint64, data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if e, ok := s.entries[key]; ok {
		e.refs++
		return true
	}
	s.entries[key] = &entry{data: data, refs: 1}
	return true
}

// Retain adds a reference to an existing key and reports whether it exists.
func (s *Store) Retain(key uint64) bool {
	e, ok := s.entries[key]
	if ok {
		e.refs++
	}
	return ok
}

// Release drops one reference to key and frees the buffer on the last one.
func (s *Store) Release(key uint64) {
	e, ok := s.entries[key]
	if !ok {
		s.log.Printf("bufstore: release of unknown key %d", key)
		return
	}
	e.refs--
	if e.refs <= 0 {
		e.data = nil
		delete(s.entries, key)
	}
}

// Get returns the buffer for key, or nil when absent. Callers must not modify
// the returned slice.
func (s *Store) Get(key uint64) []byte {
	if e, ok := s.entries[key]; ok {
		return e.data
	}
	return nil
}

func (s *Store) Has(key uint64) bool {
	_, ok := s.entries[key]
	return ok
}

// Count reports the reference count of key (0 when absent).
func (s *Store) Count(key uint64) int {
	if e, ok := s.entries[key]; ok {
		return e.refs
	}
	return 0
}

func (s *Store) Len() int { return len(s.entries) }
