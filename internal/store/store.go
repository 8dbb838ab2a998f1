// Package store is the durable-store adapter: it maps the catalog's entity
// codecs onto BadgerDB, keyed by the fixed 26-byte layout in internal/key.
//
// BadgerDB has no native column families. The original design calls for a
// "default" family (collections, indices, documents, vectors) and a
// "neighbors" family. Both are approximated here as key-prefix bands within
// a single *badger.DB — the same trick the teacher storage layer uses to
// fake per-label and per-edge-direction "indexes" with single-byte prefixes
// rather than separate keyspaces.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/hiddb/internal/catalog"
	"github.com/orneryd/hiddb/internal/key"
	"github.com/orneryd/hiddb/internal/sortedlist"
)

// ErrNotFound is returned when a lookup key has no record.
var ErrNotFound = errors.New("store: not found")

// ErrClosed is returned by any operation attempted after Close.
var ErrClosed = errors.New("store: closed")

// Store wraps a BadgerDB handle with typed helpers for every entity the
// catalog package defines.
type Store struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// Options configures Open.
type Options struct {
	// Path is the directory BadgerDB stores its files in. Required unless
	// InMemory is set.
	Path string

	// InMemory runs BadgerDB with no on-disk footprint. Used by tests.
	InMemory bool

	// SyncWrites forces fsync after every write.
	SyncWrites bool
}

// Open opens (or creates) a store at path with default options.
func Open(path string) (*Store, error) {
	return OpenWithOptions(Options{Path: path})
}

// OpenInMemory opens a store with no on-disk footprint, for tests.
func OpenInMemory() (*Store, error) {
	return OpenWithOptions(Options{InMemory: true})
}

// OpenWithOptions opens a store with full control over BadgerDB's
// durability/memory trade-offs.
func OpenWithOptions(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying BadgerDB handle. Safe to call more than
// once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Size returns BadgerDB's approximate on-disk footprint: LSM tree and value
// log, in bytes.
func (s *Store) Size() (lsm, vlog int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, 0
	}
	return s.db.Size()
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// --- low-level primitives ---------------------------------------------

func (s *Store) get(k []byte) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) put(k, v []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, v)
	})
}

func (s *Store) delete(k []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// scanPrefix calls fn for every key/value pair under prefix in key order.
// fn returning an error stops the scan and is returned as-is.
func (s *Store) scanPrefix(prefix []byte, fn func(k, v []byte) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := append([]byte(nil), item.Key()...)
			var verr error
			err := item.Value(func(val []byte) error {
				verr = fn(k, val)
				return nil
			})
			if err != nil {
				return err
			}
			if verr != nil {
				return verr
			}
		}
		return nil
	})
}

// deletePrefix removes every key under prefix.
func (s *Store) deletePrefix(prefix []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, append([]byte(nil), it.Item().Key()...))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- collections --------------------------------------------------------

// PutCollection writes (or overwrites) a collection record.
func (s *Store) PutCollection(c catalog.Collection) error {
	k := key.CollectionKey(c.NameHash)
	return s.put(k.Bytes(), c.Encode())
}

// GetCollection reads a collection record by name hash.
func (s *Store) GetCollection(nameHash [8]byte) (catalog.Collection, error) {
	k := key.CollectionKey(nameHash)
	raw, err := s.get(k.Bytes())
	if err != nil {
		return catalog.Collection{}, err
	}
	return catalog.DecodeCollection(raw)
}

// ScanCollections returns every collection record currently persisted.
func (s *Store) ScanCollections() ([]catalog.Collection, error) {
	prefix := key.NewPrefix().Type(key.Collection).Bytes()
	var out []catalog.Collection
	err := s.scanPrefix(prefix, func(_ []byte, v []byte) error {
		c, err := catalog.DecodeCollection(v)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

// DeleteDocumentsInCollection removes every document record under a
// collection without touching the collection record itself.
func (s *Store) DeleteDocumentsInCollection(collectionHash [8]byte) error {
	prefix := key.NewPrefix().Type(key.Document).CollectionID(collectionHash).Bytes()
	return s.deletePrefix(prefix)
}

// DeleteCollectionCascade removes a collection record and every index,
// document, and vector key under it.
func (s *Store) DeleteCollectionCascade(nameHash [8]byte) error {
	k := key.CollectionKey(nameHash)
	if err := s.delete(k.Bytes()); err != nil {
		return err
	}
	for _, typ := range []byte{key.Index, key.Document, key.Value, key.Neighbors, key.ReverseNeighbors} {
		prefix := key.NewPrefix().Type(typ).CollectionID(nameHash).Bytes()
		if err := s.deletePrefix(prefix); err != nil {
			return err
		}
	}
	return nil
}

// --- indices -------------------------------------------------------------

// PutIndex writes (or overwrites) an index header.
func (s *Store) PutIndex(h catalog.IndexHeader) error {
	k := key.IndexKey(h.CollectionHash, h.FieldHash)
	return s.put(k.Bytes(), h.Encode())
}

// GetIndex reads an index header by collection and field hash.
func (s *Store) GetIndex(collectionHash, fieldHash [8]byte) (catalog.IndexHeader, error) {
	k := key.IndexKey(collectionHash, fieldHash)
	raw, err := s.get(k.Bytes())
	if err != nil {
		return catalog.IndexHeader{}, err
	}
	return catalog.DecodeIndexHeader(raw)
}

// ScanIndicesInCollection returns every index header registered under one
// collection.
func (s *Store) ScanIndicesInCollection(collectionHash [8]byte) ([]catalog.IndexHeader, error) {
	prefix := key.NewPrefix().Type(key.Index).CollectionID(collectionHash).Bytes()
	var out []catalog.IndexHeader
	err := s.scanPrefix(prefix, func(_ []byte, v []byte) error {
		h, err := catalog.DecodeIndexHeader(v)
		if err != nil {
			return err
		}
		out = append(out, h)
		return nil
	})
	return out, err
}

// DeleteIndexCascade removes an index header and every vector and neighbor
// key registered under it.
func (s *Store) DeleteIndexCascade(collectionHash, fieldHash [8]byte) error {
	k := key.IndexKey(collectionHash, fieldHash)
	if err := s.delete(k.Bytes()); err != nil {
		return err
	}
	for _, typ := range []byte{key.Value, key.Neighbors, key.ReverseNeighbors} {
		prefix := key.NewPrefix().Type(typ).CollectionID(collectionHash).FieldID(fieldHash).Bytes()
		if err := s.deletePrefix(prefix); err != nil {
			return err
		}
	}
	return nil
}

// --- documents -----------------------------------------------------------

// PutDocument writes (or overwrites) a document record.
func (s *Store) PutDocument(collectionHash [8]byte, d catalog.Document) error {
	k := key.DocumentKey(collectionHash, d.IDHash)
	return s.put(k.Bytes(), d.Encode())
}

// GetDocument reads a document record by id hash.
func (s *Store) GetDocument(collectionHash, idHash [8]byte) (catalog.Document, error) {
	k := key.DocumentKey(collectionHash, idHash)
	raw, err := s.get(k.Bytes())
	if err != nil {
		return catalog.Document{}, err
	}
	return catalog.DecodeDocument(raw)
}

// DeleteDocument removes a document record. It does not remove any vector
// or neighbor entries derived from it; callers that also maintain an index
// over the document's field must clean those up separately.
func (s *Store) DeleteDocument(collectionHash, idHash [8]byte) error {
	k := key.DocumentKey(collectionHash, idHash)
	return s.delete(k.Bytes())
}

// --- vectors ---------------------------------------------------------------

// PutVector writes a document's indexed field value.
func (s *Store) PutVector(collectionHash, fieldHash, documentHash [8]byte, v []float64) error {
	k := key.ValueKey(collectionHash, fieldHash, documentHash)
	return s.put(k.Bytes(), catalog.EncodeVector(v))
}

// GetVector reads a document's indexed field value.
func (s *Store) GetVector(collectionHash, fieldHash, documentHash [8]byte) ([]float64, error) {
	k := key.ValueKey(collectionHash, fieldHash, documentHash)
	raw, err := s.get(k.Bytes())
	if err != nil {
		return nil, err
	}
	return catalog.DecodeVector(raw)
}

// DeleteVector removes a document's indexed field value.
func (s *Store) DeleteVector(collectionHash, fieldHash, documentHash [8]byte) error {
	k := key.ValueKey(collectionHash, fieldHash, documentHash)
	return s.delete(k.Bytes())
}

// --- neighbor lists ----------------------------------------------------

// PutNeighbors writes the persisted neighbor list for one node at one
// layer.
func (s *Store) PutNeighbors(collectionHash, fieldHash [8]byte, layer byte, documentHash [8]byte, l *sortedlist.List) error {
	k := key.NeighborsKey(collectionHash, fieldHash, layer, documentHash)
	return s.put(k.Bytes(), l.Encode())
}

// GetNeighbors reads the persisted neighbor list for one node at one layer.
// Returns an empty list, not an error, if no entry exists yet.
func (s *Store) GetNeighbors(collectionHash, fieldHash [8]byte, layer byte, documentHash [8]byte) (*sortedlist.List, error) {
	k := key.NeighborsKey(collectionHash, fieldHash, layer, documentHash)
	raw, err := s.get(k.Bytes())
	if errors.Is(err, ErrNotFound) {
		return sortedlist.New(), nil
	}
	if err != nil {
		return nil, err
	}
	return sortedlist.Decode(raw)
}

// DeleteNeighbors removes the persisted neighbor list for one node at one
// layer.
func (s *Store) DeleteNeighbors(collectionHash, fieldHash [8]byte, layer byte, documentHash [8]byte) error {
	k := key.NeighborsKey(collectionHash, fieldHash, layer, documentHash)
	return s.delete(k.Bytes())
}
