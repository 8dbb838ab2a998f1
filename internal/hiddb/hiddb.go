package hiddb

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/orneryd/hiddb/internal/catalog"
	"github.com/orneryd/hiddb/internal/hnsw"
	"github.com/orneryd/hiddb/internal/idhash"
	"github.com/orneryd/hiddb/internal/indexstore"
	"github.com/orneryd/hiddb/internal/store"
)

// DefaultK is the max out-degree per node per layer when a caller does not
// specify one.
const DefaultK = 16

// DefaultM is the branching factor used when a caller does not specify one.
const DefaultM = 2.0

// DefaultMaxNeighbors is applied to a search request with no max_neighbors.
const DefaultMaxNeighbors = 20

// DB is the façade over one open store and its rehydrated index-store.
type DB struct {
	store   *store.Store
	indexes *indexstore.Store

	defaultK int
	defaultM float64
}

// Open rehydrates the index-store from every collection already persisted
// in s and returns a ready façade. defaultK/defaultM (DefaultK/DefaultM when
// zero) are the k and m of every index created afterward.
func Open(s *store.Store, defaultK int, defaultM float64) (*DB, error) {
	collections, err := s.ScanCollections()
	if err != nil {
		return nil, err
	}
	is, err := indexstore.Load(collections, s)
	if err != nil {
		return nil, err
	}
	if defaultK == 0 {
		defaultK = DefaultK
	}
	if defaultM == 0 {
		defaultM = DefaultM
	}
	return &DB{store: s, indexes: is, defaultK: defaultK, defaultM: defaultM}, nil
}

// CollectionInfo is the summary returned for a collection.
type CollectionInfo struct {
	Name          string `json:"collection_name"`
	DocumentCount uint64 `json:"n_documents"`
}

// IndexInfo is the summary returned for an index.
type IndexInfo struct {
	FieldName      string  `json:"field_name"`
	Dimension      int     `json:"dimension"`
	DistanceMetric string  `json:"distance_metric"`
	K              int     `json:"k"`
	M              float64 `json:"m"`
	LayerCount     int     `json:"layer_count"`
	ElementCount   uint64  `json:"element_count"`
}

// CreateCollection persists a new, empty collection record.
func (db *DB) CreateCollection(name string) (CollectionInfo, error) {
	nameHash := idhash.Hash(name)
	if _, err := db.store.GetCollection(nameHash); err == nil {
		return CollectionInfo{}, &AlreadyExistsError{Kind: "collection", Name: name}
	}
	c := catalog.Collection{Name: name, NameHash: nameHash}
	if err := db.store.PutCollection(c); err != nil {
		return CollectionInfo{}, err
	}
	return CollectionInfo{Name: c.Name, DocumentCount: c.DocumentCount}, nil
}

// GetCollection re-fetches the current record so the document count is
// always fresh, rather than serving a cached value.
func (db *DB) GetCollection(name string) (CollectionInfo, error) {
	c, err := db.lookupCollection(name)
	if err != nil {
		return CollectionInfo{}, err
	}
	return CollectionInfo{Name: c.Name, DocumentCount: c.DocumentCount}, nil
}

// ListCollections returns every collection currently registered.
func (db *DB) ListCollections() ([]CollectionInfo, error) {
	collections, err := db.store.ScanCollections()
	if err != nil {
		return nil, err
	}
	out := make([]CollectionInfo, len(collections))
	for i, c := range collections {
		out[i] = CollectionInfo{Name: c.Name, DocumentCount: c.DocumentCount}
	}
	return out, nil
}

// DeleteCollection removes a collection and cascades to its indices,
// documents, vectors, and neighbor lists. Returns the record as it stood
// before deletion.
func (db *DB) DeleteCollection(name string) (CollectionInfo, error) {
	c, err := db.lookupCollection(name)
	if err != nil {
		return CollectionInfo{}, err
	}
	db.indexes.DeleteCollection(c.NameHash)
	if err := db.store.DeleteCollectionCascade(c.NameHash); err != nil {
		return CollectionInfo{}, err
	}
	return CollectionInfo{Name: c.Name, DocumentCount: c.DocumentCount}, nil
}

// CreateIndex builds a fresh index header for (collection, field) and
// installs a mutex-guarded in-memory entry for it. Fails if the collection
// is absent, if the index already exists, or if the collection has any
// documents — re-indexing a non-empty collection is out of scope.
func (db *DB) CreateIndex(collectionName, field string, dimension int) (IndexInfo, error) {
	c, err := db.lookupCollection(collectionName)
	if err != nil {
		return IndexInfo{}, err
	}
	if c.DocumentCount > 0 {
		return IndexInfo{}, &NotImplementedError{Operation: "create index on non-empty collection"}
	}

	fieldHash := idhash.Hash(field)
	if _, err := db.store.GetIndex(c.NameHash, fieldHash); err == nil {
		return IndexInfo{}, &AlreadyExistsError{Kind: "index", Name: field}
	}

	h := catalog.IndexHeader{
		CollectionName: c.Name,
		FieldName:      field,
		CollectionHash: c.NameHash,
		FieldHash:      fieldHash,
		IndexHash:      idhash.IndexHash(c.NameHash, fieldHash),
		DistanceMetric: "euclidean",
		Dimension:      dimension,
		K:              db.defaultK,
		M:              db.defaultM,
		ReverseSize:    1.0 / math.Log(db.defaultM),
		LayerCount:     1,
	}
	if err := db.store.PutIndex(h); err != nil {
		return IndexInfo{}, err
	}
	if _, err := db.indexes.Create(h); err != nil {
		return IndexInfo{}, err
	}
	return indexInfo(h), nil
}

// GetIndex returns the current header for (collectionName, field).
func (db *DB) GetIndex(collectionName, field string) (IndexInfo, error) {
	entry, release, err := db.lookupIndex(collectionName, field)
	if err != nil {
		return IndexInfo{}, err
	}
	defer release()
	entry.Lock()
	defer entry.Unlock()
	return indexInfo(entry.Header), nil
}

// ListIndices returns every index header registered under a collection.
func (db *DB) ListIndices(collectionName string) ([]IndexInfo, error) {
	c, err := db.lookupCollection(collectionName)
	if err != nil {
		return nil, err
	}
	entries := db.indexes.List(c.NameHash)
	out := make([]IndexInfo, 0, len(entries))
	for _, e := range entries {
		e.Lock()
		out = append(out, indexInfo(e.Header))
		e.Unlock()
	}
	return out, nil
}

// DeleteIndex removes an index. Per the preserved source behavior, the
// cascade deletes all documents in the collection, not only this field's
// contribution.
func (db *DB) DeleteIndex(collectionName, field string) error {
	c, err := db.lookupCollection(collectionName)
	if err != nil {
		return err
	}
	fieldHash := idhash.Hash(field)
	if _, err := db.store.GetIndex(c.NameHash, fieldHash); err != nil {
		return &DoesNotExistError{Kind: "index", Name: field}
	}
	if err := db.indexes.Delete(c.NameHash, fieldHash); err != nil {
		return err
	}
	if err := db.store.DeleteIndexCascade(c.NameHash, fieldHash); err != nil {
		return err
	}
	return db.store.DeleteDocumentsInCollection(c.NameHash)
}

// DocumentInput is one document in an insert request: a JSON object that
// must carry a string "id" field, plus zero or more named vector fields.
type DocumentInput = json.RawMessage

// InsertDocuments inserts each document: requires a string "id" field,
// fails if a document with that id already exists, persists the document
// record, increments the collection count, then for every currently
// indexed field present in the doc, validates shape and inserts into that
// field's HNSW index under its mutex.
func (db *DB) InsertDocuments(ctx context.Context, collectionName string, docs []DocumentInput) error {
	c, err := db.lookupCollection(collectionName)
	if err != nil {
		return err
	}

	for _, raw := range docs {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return &InvalidInputError{Reason: "document is not a JSON object"}
		}
		idRaw, ok := obj["id"]
		if !ok {
			return &MissingFieldError{Field: "id"}
		}
		var idStr string
		if err := json.Unmarshal(idRaw, &idStr); err != nil {
			return &MissingFieldError{Field: "id"}
		}

		idHash := idhash.Hash(idStr)
		if _, err := db.store.GetDocument(c.NameHash, idHash); err == nil {
			return &AlreadyExistsError{Kind: "document", Name: idStr}
		}

		doc := catalog.Document{IDUser: idStr, IDHash: idHash, Data: raw}
		if err := db.store.PutDocument(c.NameHash, doc); err != nil {
			return err
		}
		c.DocumentCount++
		if err := db.store.PutCollection(c); err != nil {
			return err
		}

		entries, release := db.indexes.ListLocked(c.NameHash)
		err := func() error {
			defer release()
			for _, entry := range entries {
				field := entry.Header.FieldName
				fieldRaw, present := obj[field]
				if !present {
					continue
				}
				var vec []float64
				if err := json.Unmarshal(fieldRaw, &vec); err != nil {
					return &InvalidInputError{Reason: fmt.Sprintf("field %q is not an array of numbers", field)}
				}
				if err := db.insertIntoIndex(ctx, entry, idHash, vec); err != nil {
					return err
				}
			}
			return nil
		}()
		if err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) insertIntoIndex(ctx context.Context, entry *indexstore.Entry, idHash [8]byte, vec []float64) error {
	entry.Lock()
	defer entry.Unlock()
	if err := hnsw.Insert(ctx, db.store, entry, idHash, vec); err != nil {
		var dm *hnsw.DimensionMismatchError
		if asDimensionMismatch(err, &dm) {
			return &DimensionMismatchError{Field: dm.Field, Index: dm.Index, Vector: dm.Vector}
		}
		return err
	}
	return nil
}

func asDimensionMismatch(err error, target **hnsw.DimensionMismatchError) bool {
	dm, ok := err.(*hnsw.DimensionMismatchError)
	if ok {
		*target = dm
	}
	return ok
}

// SearchRequest is a document-search query against one field's index.
type SearchRequest struct {
	FieldName    string
	Vectors      [][]float64
	IDs          []string
	MaxNeighbors int
}

// SearchDocuments resolves the index for FieldName and runs a query for
// each requested vector (or, with IDs, the document's own stored vector for
// that field), returning nearest-first id strings per query.
func (db *DB) SearchDocuments(ctx context.Context, collectionName string, req SearchRequest) ([][]string, error) {
	c, err := db.lookupCollection(collectionName)
	if err != nil {
		return nil, err
	}
	entry, release, err := db.lookupIndexByHash(c.NameHash, req.FieldName)
	if err != nil {
		return nil, err
	}
	defer release()

	maxNeighbors := req.MaxNeighbors
	if maxNeighbors == 0 {
		maxNeighbors = DefaultMaxNeighbors
	}

	var queries [][]float64
	switch {
	case len(req.Vectors) > 0:
		queries = req.Vectors
	case len(req.IDs) > 0:
		for _, idStr := range req.IDs {
			idHash := idhash.Hash(idStr)
			doc, err := db.store.GetDocument(c.NameHash, idHash)
			if err != nil {
				return nil, &DoesNotExistError{Kind: "document", Name: idStr}
			}
			vec, ok := doc.FieldVector(req.FieldName)
			if !ok {
				return nil, &InvalidInputError{Reason: fmt.Sprintf("document %q has no field %q", idStr, req.FieldName)}
			}
			queries = append(queries, vec)
		}
	default:
		return nil, &InvalidInputError{Reason: "search request needs vectors or ids"}
	}

	entry.Lock()
	header := entry.Header
	entry.Unlock()

	results := make([][]string, len(queries))
	for i, v := range queries {
		ids, err := hnsw.Query(ctx, db.store, header, v, maxNeighbors)
		if err != nil {
			var dm *hnsw.DimensionMismatchError
			if asDimensionMismatch(err, &dm) {
				return nil, &DimensionMismatchError{Field: dm.Field, Index: dm.Index, Vector: dm.Vector}
			}
			return nil, err
		}
		strs := make([]string, 0, len(ids))
		for _, idHash := range ids {
			doc, err := db.store.GetDocument(c.NameHash, idHash)
			if err != nil {
				continue
			}
			strs = append(strs, doc.IDUser)
		}
		results[i] = strs
	}
	return results, nil
}

// GetDocumentByID returns a document's raw JSON payload.
func (db *DB) GetDocumentByID(collectionName, id string) (json.RawMessage, error) {
	c, err := db.lookupCollection(collectionName)
	if err != nil {
		return nil, err
	}
	doc, err := db.store.GetDocument(c.NameHash, idhash.Hash(id))
	if err != nil {
		return nil, &DoesNotExistError{Kind: "document", Name: id}
	}
	return doc.Data, nil
}

// --- helpers -------------------------------------------------------------

func (db *DB) lookupCollection(name string) (catalog.Collection, error) {
	c, err := db.store.GetCollection(idhash.Hash(name))
	if err != nil {
		return catalog.Collection{}, &DoesNotExistError{Kind: "collection", Name: name}
	}
	return c, nil
}

func (db *DB) lookupIndex(collectionName, field string) (*indexstore.Entry, func(), error) {
	c, err := db.lookupCollection(collectionName)
	if err != nil {
		return nil, nil, err
	}
	return db.lookupIndexByHash(c.NameHash, field)
}

func (db *DB) lookupIndexByHash(collectionHash [8]byte, field string) (*indexstore.Entry, func(), error) {
	entry, release, err := db.indexes.Lookup(collectionHash, idhash.Hash(field))
	if err != nil {
		return nil, nil, &DoesNotExistError{Kind: "index", Name: field}
	}
	return entry, release, nil
}

func indexInfo(h catalog.IndexHeader) IndexInfo {
	return IndexInfo{
		FieldName:      h.FieldName,
		Dimension:      h.Dimension,
		DistanceMetric: h.DistanceMetric,
		K:              h.K,
		M:              h.M,
		LayerCount:     h.LayerCount,
		ElementCount:   h.ElementCount,
	}
}

