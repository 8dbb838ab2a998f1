// Package catalog defines the persisted entity types of the durable store —
// collection headers, index headers, documents, stored vectors, and the
// binary codecs that turn them into the compact blobs the store adapter
// writes. No entity type in this package performs I/O; internal/store
// composes these codecs with the key codec to read and write them.
package catalog

import "encoding/json"

// Collection is the persisted record for one collection.
type Collection struct {
	Name          string
	NameHash      [8]byte
	DocumentCount uint64
}

// IndexHeader is the persisted, and in-memory cached, record for one
// (collection, field) index. EntryPoint is nil when the index is empty.
type IndexHeader struct {
	CollectionName string
	FieldName      string
	CollectionHash [8]byte
	FieldHash      [8]byte
	IndexHash      [16]byte

	DistanceMetric string
	Dimension      int
	K              int // max neighbors per node per layer
	M              float64
	ReverseSize    float64 // 1 / ln(M)

	EntryPoint   *[8]byte
	LayerCount   int
	ElementCount uint64
}

// Document is the persisted record for one document: its user-facing id,
// the id's hash, and the original JSON payload.
type Document struct {
	IDUser string
	IDHash [8]byte
	Data   json.RawMessage
}

// FieldVector extracts the named field as a []float64, returning false if
// the field is absent, not an array, or contains non-numeric elements.
func (d Document) FieldVector(field string) ([]float64, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(d.Data, &obj); err != nil {
		return nil, false
	}
	raw, ok := obj[field]
	if !ok {
		return nil, false
	}
	var vec []float64
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false
	}
	return vec, true
}
