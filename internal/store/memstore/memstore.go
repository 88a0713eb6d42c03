// Package memstore provides an in-process store.Backend.
// Records live only as long as the Store value; nothing is persisted.
package memstore

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/jmgilman/go/dictload/internal/store"
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("memstore: closed")

// Store is a mutex-guarded map of records.
type Store struct {
	mu      sync.RWMutex
	records map[string]store.Record
	closed  bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{records: make(map[string]store.Record)}
}

// Opener returns an opener that yields a fresh Store.
func Opener() store.Opener {
	return func(context.Context) (store.Backend, error) {
		return New(), nil
	}
}

// Get returns a copy of the record for key.
func (s *Store) Get(_ context.Context, key string) (store.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.Record{}, false, ErrClosed
	}
	rec, ok := s.records[key]
	if !ok {
		return store.Record{}, false, nil
	}
	rec.Payload = bytes.Clone(rec.Payload)
	return rec, true, nil
}

// Put upserts rec. The payload is copied.
func (s *Store) Put(_ context.Context, rec store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	rec.Payload = bytes.Clone(rec.Payload)
	s.records[rec.Key] = rec
	return nil
}

// SchemaVersion always reports the current version.
func (s *Store) SchemaVersion() int {
	return store.SchemaVersion
}

// Keys lists stored keys in ascending order.
func (s *Store) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// Clear removes every record.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	clear(s.records)
	return nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close drops all records.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.records = nil
	return nil
}

var (
	_ store.Backend    = (*Store)(nil)
	_ store.Maintainer = (*Store)(nil)
)
