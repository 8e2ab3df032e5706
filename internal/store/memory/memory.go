// Package memory implements store.Backend in process memory; intended for
// tests and local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"pkt.systems/countd/internal/store"
)

// Store keeps counter records in a mutex-guarded map.
type Store struct {
	mu      sync.RWMutex
	records map[string]*entry

	// Counters never decrease, so tracking the running maximum on every
	// write yields a correct constant-time ordering view.
	top    store.Record
	hasTop bool
}

type entry struct {
	record store.Record
	etag   string
}

// New returns a ready to use in-memory store.
func New() *Store {
	return &Store{records: make(map[string]*entry)}
}

// Close satisfies store.Backend but requires no action for the in-memory store.
func (s *Store) Close() error { return nil }

// Get returns a copy of the record stored for userID.
func (s *Store) Get(_ context.Context, userID string) (store.RecordResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[userID]
	if !ok {
		return store.RecordResult{}, store.ErrNotFound
	}
	return store.RecordResult{Record: e.record, ETag: e.etag}, nil
}

// Put writes record for userID, enforcing CAS when expectedETag is provided
// and create-only semantics when it is empty.
func (s *Store) Put(_ context.Context, userID string, record store.Record, expectedETag string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.records[userID]
	if expectedETag != "" {
		if !exists {
			return "", store.ErrNotFound
		}
		if existing.etag != expectedETag {
			return "", store.ErrCASMismatch
		}
	} else if exists {
		return "", store.ErrCASMismatch
	}
	etag := uuid.NewString()
	record.UserID = userID
	s.records[userID] = &entry{record: record, etag: etag}
	s.observeLocked(record)
	return etag, nil
}

// List returns every record sorted by user id.
func (s *Store) List(_ context.Context) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Record, 0, len(s.records))
	for _, e := range s.records {
		out = append(out, e.record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// IncrementBy applies a native atomic add with create-if-absent semantics.
func (s *Store) IncrementBy(_ context.Context, req store.IncrementRequest) (int64, error) {
	delta := req.Delta
	if delta == 0 {
		delta = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[req.UserID]
	if !ok {
		e = &entry{record: store.Record{UserID: req.UserID, Email: req.Email}}
		s.records[req.UserID] = e
	}
	e.record.Counter += delta
	e.etag = uuid.NewString()
	s.observeLocked(e.record)
	return e.record.Counter, nil
}

// Top returns the record holding the highest counter, or store.ErrNoData.
func (s *Store) Top(_ context.Context) (store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasTop {
		return store.Record{}, store.ErrNoData
	}
	return s.top, nil
}

func (s *Store) observeLocked(record store.Record) {
	switch {
	case !s.hasTop:
		s.top = record
		s.hasTop = true
	case record.Counter > s.top.Counter:
		s.top = record
	case record.Counter == s.top.Counter && strings.Compare(record.UserID, s.top.UserID) < 0:
		s.top = record
	case record.UserID == s.top.UserID:
		if record.Counter >= s.top.Counter {
			s.top = record
			return
		}
		// A direct Put demoted the leader; the running max is stale.
		s.rescanLocked()
	}
}

func (s *Store) rescanLocked() {
	s.hasTop = false
	for _, e := range s.records {
		if !s.hasTop || e.record.Counter > s.top.Counter ||
			(e.record.Counter == s.top.Counter && e.record.UserID < s.top.UserID) {
			s.top = e.record
			s.hasTop = true
		}
	}
}
