// Package store holds the in-memory job state shared by the engine and its readers.
//
// Every mutation builds a fresh map and publishes it with a single atomic swap,
// so a reader holding a Snapshot never observes a half-applied update. Writers
// are serialized; readers never block.
package store

import (
	"cmp"
	"errors"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/raphaelgruber/docwatch/internal/models"
)

// ErrNotFound is returned when a job is not present in the store.
var ErrNotFound = errors.New("job not found")

// Snapshot is an immutable view of the store at one point in time.
type Snapshot struct {
	jobs map[string]models.JobRecord
	// Version increases by one with every published mutation.
	Version uint64
}

// Get returns a copy of the record for id.
func (s Snapshot) Get(id string) (models.JobRecord, bool) {
	rec, ok := s.jobs[id]
	if !ok {
		return models.JobRecord{}, false
	}
	return rec.Clone(), true
}

// Len returns the number of records in the snapshot.
func (s Snapshot) Len() int {
	return len(s.jobs)
}

// Jobs returns copies of all records, most recent first.
func (s Snapshot) Jobs() []models.JobRecord {
	out := make([]models.JobRecord, 0, len(s.jobs))
	for _, rec := range s.jobs {
		out = append(out, rec.Clone())
	}
	slices.SortFunc(out, func(a, b models.JobRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.JobID, b.JobID)
	})
	return out
}

// Store is a copy-on-write job map.
type Store struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Snapshot]

	subMu  sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
}

// New creates an empty store.
func New() *Store {
	s := &Store{subs: make(map[int]chan Snapshot)}
	s.current.Store(&Snapshot{jobs: map[string]models.JobRecord{}})
	return s
}

// Snapshot returns the latest published view.
func (s *Store) Snapshot() Snapshot {
	return *s.current.Load()
}

// Get returns a copy of the latest record for id.
func (s *Store) Get(id string) (models.JobRecord, bool) {
	return s.Snapshot().Get(id)
}

// ListAll returns copies of all records, most recent first.
func (s *Store) ListAll() []models.JobRecord {
	return s.Snapshot().Jobs()
}

// ByStatus returns records currently in the given status.
func (s *Store) ByStatus(status models.Status) []models.JobRecord {
	var out []models.JobRecord
	for _, rec := range s.ListAll() {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	return s.Snapshot().Len()
}

// Upsert inserts or replaces a record.
func (s *Store) Upsert(rec models.JobRecord) {
	s.mutate(func(m map[string]models.JobRecord) bool {
		m[rec.JobID] = rec.Clone()
		return true
	})
}

// UpsertMany inserts or replaces several records in one published mutation.
func (s *Store) UpsertMany(recs []models.JobRecord) {
	if len(recs) == 0 {
		return
	}
	s.mutate(func(m map[string]models.JobRecord) bool {
		for _, rec := range recs {
			m[rec.JobID] = rec.Clone()
		}
		return true
	})
}

// Update applies fn to the latest version of the record for id.
// fn runs under the writer lock, so it always sees the newest state and must not block.
// Returns the updated record and whether it existed.
func (s *Store) Update(id string, fn func(rec models.JobRecord) models.JobRecord) (models.JobRecord, bool) {
	var updated models.JobRecord
	var found bool
	s.mutate(func(m map[string]models.JobRecord) bool {
		rec, ok := m[id]
		if !ok {
			return false
		}
		found = true
		next := fn(rec.Clone())
		next.JobID = id // primary key is immutable
		m[id] = next.Clone()
		updated = next
		return true
	})
	return updated, found
}

// Merge applies fn to the existing record (nil when absent) and stores the result.
// Used by list reconciliation, which may both create and update records.
func (s *Store) Merge(recs []models.JobRecord, fn func(existing *models.JobRecord, incoming models.JobRecord) models.JobRecord) {
	if len(recs) == 0 {
		return
	}
	s.mutate(func(m map[string]models.JobRecord) bool {
		for _, in := range recs {
			var existing *models.JobRecord
			if rec, ok := m[in.JobID]; ok {
				c := rec.Clone()
				existing = &c
			}
			m[in.JobID] = fn(existing, in.Clone()).Clone()
		}
		return true
	})
}

// Remove deletes the record for id. Returns false if it was absent.
func (s *Store) Remove(id string) bool {
	var removed bool
	s.mutate(func(m map[string]models.JobRecord) bool {
		if _, ok := m[id]; !ok {
			return false
		}
		delete(m, id)
		removed = true
		return true
	})
	return removed
}

// Reset drops every record.
func (s *Store) Reset() {
	s.mutate(func(m map[string]models.JobRecord) bool {
		clear(m)
		return true
	})
}

// mutate copies the current map, lets fn edit the copy, and publishes it if fn reports a change.
func (s *Store) mutate(fn func(m map[string]models.JobRecord) bool) {
	s.mu.Lock()
	prev := s.current.Load()
	next := maps.Clone(prev.jobs)
	if next == nil {
		next = map[string]models.JobRecord{}
	}
	if !fn(next) {
		s.mu.Unlock()
		return
	}
	snap := &Snapshot{jobs: next, Version: prev.Version + 1}
	s.current.Store(snap)
	// Notify under the writer lock so subscribers see versions in order.
	s.notify(*snap)
	s.mu.Unlock()
}

// Subscribe returns a channel that receives the latest snapshot after every mutation.
// Slow subscribers only ever see the newest snapshot; writers never block on them.
// The returned cancel func closes the channel.
func (s *Store) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			close(ch)
			s.subMu.Unlock()
		})
	}
	return ch, cancel
}

func (s *Store) notify(snap Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		sent := false
		for !sent {
			select {
			case ch <- snap:
				sent = true
			default:
				// Full: drop the oldest pending snapshot.
				select {
				case <-ch:
				default:
				}
			}
		}
	}
}
