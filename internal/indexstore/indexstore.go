// Package indexstore is the process-wide, in-memory mapping from 16-byte
// index-hash to a mutex-guarded index header. It is rehydrated from the
// durable store at startup and is the sole owner of index mutability: every
// mutating HNSW operation runs while holding the entry's mutex, and the map
// itself is a reader-writer lock held in shared mode across the lifetime of
// a single insert or search so the entry cannot be deleted underneath it.
package indexstore

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/orneryd/hiddb/internal/catalog"
	"github.com/orneryd/hiddb/internal/idhash"
	"github.com/orneryd/hiddb/internal/store"
)

// ErrExists is returned when an index already exists under its hash.
var ErrExists = errors.New("indexstore: index already exists")

// ErrNotFound is returned when no index exists under the given hash.
var ErrNotFound = errors.New("indexstore: index not found")

// Entry is one mutex-guarded index header. Rand is the index's level-
// assignment generator; per the design note that restored indices are not
// replayed from a persisted seed, every Entry — whether freshly created or
// rehydrated at startup — gets its own fresh generator.
type Entry struct {
	mu     sync.Mutex
	Header catalog.IndexHeader
	Rand   *rand.Rand
}

// Lock acquires the entry's exclusive mutex. Callers must call Unlock.
func (e *Entry) Lock() { e.mu.Lock() }

// Unlock releases the entry's exclusive mutex.
func (e *Entry) Unlock() { e.mu.Unlock() }

var seedCounter int64

func freshRand() *rand.Rand {
	seedCounter++
	return rand.New(rand.NewSource(time.Now().UnixNano() + seedCounter))
}

// Store is the process-wide index map.
type Store struct {
	mu      sync.RWMutex
	entries map[[16]byte]*Entry
}

// New returns an empty index store. Use Load to rehydrate from disk.
func New() *Store {
	return &Store{entries: make(map[[16]byte]*Entry)}
}

// Load rehydrates the index store by scanning every collection's index
// range in the durable store. It is called once at startup. It fails with
// ErrExists if two persisted headers map to the same index hash.
func Load(collections []catalog.Collection, s *store.Store) (*Store, error) {
	is := New()
	for _, c := range collections {
		headers, err := s.ScanIndicesInCollection(c.NameHash)
		if err != nil {
			return nil, err
		}
		for _, h := range headers {
			ih := idhash.IndexHash(h.CollectionHash, h.FieldHash)
			if _, dup := is.entries[ih]; dup {
				return nil, ErrExists
			}
			is.entries[ih] = &Entry{Header: h, Rand: freshRand()}
		}
	}
	return is, nil
}

// Create installs a freshly built index header under its hash. Fails with
// ErrExists if an entry is already registered for this (collection, field)
// pair.
func (is *Store) Create(h catalog.IndexHeader) (*Entry, error) {
	is.mu.Lock()
	defer is.mu.Unlock()

	ih := idhash.IndexHash(h.CollectionHash, h.FieldHash)
	if _, ok := is.entries[ih]; ok {
		return nil, ErrExists
	}
	entry := &Entry{Header: h, Rand: freshRand()}
	is.entries[ih] = entry
	return entry, nil
}

// Lookup returns the entry for (collectionHash, fieldHash) while holding the
// map's shared lock open for the duration of release(), which the caller
// must invoke once it is done using the entry (after acquiring, and
// releasing, the entry's own mutex).
//
// This mirrors the two-tier locking scheme: the map lock is held in shared
// mode across a whole insert or search so a concurrent Delete cannot free
// the entry out from under an in-flight operation.
func (is *Store) Lookup(collectionHash, fieldHash [8]byte) (entry *Entry, release func(), err error) {
	is.mu.RLock()
	ih := idhash.IndexHash(collectionHash, fieldHash)
	entry, ok := is.entries[ih]
	if !ok {
		is.mu.RUnlock()
		return nil, nil, ErrNotFound
	}
	return entry, is.mu.RUnlock, nil
}

// Delete removes the entry for (collectionHash, fieldHash), taking the map's
// exclusive lock. It is the caller's responsibility to have already removed
// the index's persisted state.
func (is *Store) Delete(collectionHash, fieldHash [8]byte) error {
	is.mu.Lock()
	defer is.mu.Unlock()

	ih := idhash.IndexHash(collectionHash, fieldHash)
	if _, ok := is.entries[ih]; !ok {
		return ErrNotFound
	}
	delete(is.entries, ih)
	return nil
}

// DeleteCollection removes every entry whose collection hash matches, taking
// the map's exclusive lock once for the whole cascade.
func (is *Store) DeleteCollection(collectionHash [8]byte) {
	is.mu.Lock()
	defer is.mu.Unlock()

	for ih, e := range is.entries {
		if e.Header.CollectionHash == collectionHash {
			delete(is.entries, ih)
		}
	}
}

// List returns every index header currently registered for a collection.
// Used where the caller only needs a point-in-time snapshot (read-only
// reporting); callers that go on to mutate through an entry must use
// ListLocked instead so a concurrent Delete/DeleteCollection cannot cascade
// the entry's store keys out from under them.
func (is *Store) List(collectionHash [8]byte) []*Entry {
	is.mu.RLock()
	defer is.mu.RUnlock()

	var out []*Entry
	for _, e := range is.entries {
		if e.Header.CollectionHash == collectionHash {
			out = append(out, e)
		}
	}
	return out
}

// ListLocked returns every index header registered for a collection while
// holding the map's shared lock open for the duration of release(), exactly
// like Lookup. Callers that insert into the returned entries must keep the
// lock held across the whole insert — List()-then-Lock() leaves a window
// where a concurrent Delete/DeleteCollection can cascade-delete the index's
// store keys before the insert's own entry.Lock() is acquired, resurrecting
// orphaned data for an index that no longer exists.
func (is *Store) ListLocked(collectionHash [8]byte) (entries []*Entry, release func()) {
	is.mu.RLock()
	for _, e := range is.entries {
		if e.Header.CollectionHash == collectionHash {
			entries = append(entries, e)
		}
	}
	return entries, is.mu.RUnlock
}
