// Package key implements the 26-byte binary key schema that partitions the
// durable store's single ordered key space into typed regions: collection,
// index, document, value, and neighbor-list rows all share one keyspace so
// that a collection's rows stay co-located under prefix scans.
package key

// Type tags. Each is a distinct leading byte, mirroring the single-character
// tags of the original implementation ('c', 'i', 'd', 'v', 'n', 'r').
const (
	Collection       byte = 'c'
	Index            byte = 'i'
	Document         byte = 'd'
	Value            byte = 'v'
	Neighbors        byte = 'n'
	ReverseNeighbors byte = 'r'
)

// Size is the fixed length of a full key.
const Size = 26

// Key is a 26-byte layout: [type:1][collection:8][field:8][layer:1][document:8].
// Unused trailing fields are left zero-filled.
type Key [Size]byte

// New returns a zero-filled key with the given type tag set.
func New(typ byte) Key {
	var k Key
	k[0] = typ
	return k
}

func (k Key) Type() byte {
	return k[0]
}

func (k *Key) SetType(typ byte) {
	k[0] = typ
}

func (k Key) CollectionID() [8]byte {
	var id [8]byte
	copy(id[:], k[1:9])
	return id
}

func (k *Key) SetCollectionID(id [8]byte) {
	copy(k[1:9], id[:])
}

func (k Key) FieldID() [8]byte {
	var id [8]byte
	copy(id[:], k[9:17])
	return id
}

func (k *Key) SetFieldID(id [8]byte) {
	copy(k[9:17], id[:])
}

func (k Key) Layer() byte {
	return k[17]
}

func (k *Key) SetLayer(layer byte) {
	k[17] = layer
}

func (k Key) DocumentID() [8]byte {
	var id [8]byte
	copy(id[:], k[18:26])
	return id
}

func (k *Key) SetDocumentID(id [8]byte) {
	copy(k[18:26], id[:])
}

// Bytes returns the key as a byte slice suitable for store operations.
func (k Key) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, k[:])
	return b
}

// FromBytes parses a full 26-byte key. It panics if b is not exactly Size
// bytes long — callers only ever pass keys read back from the store itself.
func FromBytes(b []byte) Key {
	if len(b) != Size {
		panic("key: unexpected key length")
	}
	var k Key
	copy(k[:], b)
	return k
}

// CollectionKey builds the full key for a collection record.
func CollectionKey(collectionID [8]byte) Key {
	k := New(Collection)
	k.SetCollectionID(collectionID)
	return k
}

// IndexKey builds the full key for an index header record.
func IndexKey(collectionID, fieldID [8]byte) Key {
	k := New(Index)
	k.SetCollectionID(collectionID)
	k.SetFieldID(fieldID)
	return k
}

// DocumentKey builds the full key for a document record.
func DocumentKey(collectionID, documentID [8]byte) Key {
	k := New(Document)
	k.SetCollectionID(collectionID)
	k.SetDocumentID(documentID)
	return k
}

// ValueKey builds the full key for a stored vector.
func ValueKey(collectionID, fieldID, documentID [8]byte) Key {
	k := New(Value)
	k.SetCollectionID(collectionID)
	k.SetFieldID(fieldID)
	k.SetDocumentID(documentID)
	return k
}

// NeighborsKey builds the full key for a neighbor list at one layer.
func NeighborsKey(collectionID, fieldID [8]byte, layer byte, documentID [8]byte) Key {
	k := New(Neighbors)
	k.SetCollectionID(collectionID)
	k.SetFieldID(fieldID)
	k.SetLayer(layer)
	k.SetDocumentID(documentID)
	return k
}

// ReverseNeighborsKey builds the full key for a (currently unwritten)
// reverse-neighbor list. The tag is reserved for forward compatibility; no
// component in this module ever calls Put with it.
func ReverseNeighborsKey(collectionID, fieldID [8]byte, layer byte, documentID [8]byte) Key {
	k := New(ReverseNeighbors)
	k.SetCollectionID(collectionID)
	k.SetFieldID(fieldID)
	k.SetLayer(layer)
	k.SetDocumentID(documentID)
	return k
}

// Prefix is a fluent builder for key prefixes, used for ordered prefix scans
// and prefix deletes. Each step asserts the builder is at the expected
// length, mirroring the original Rust Prefix type's invariants.
type Prefix struct {
	b []byte
}

// NewPrefix starts a new prefix builder.
func NewPrefix() Prefix {
	return Prefix{b: make([]byte, 0, Size)}
}

func (p Prefix) Type(typ byte) Prefix {
	if len(p.b) != 0 {
		panic("key: Type must be the first prefix component")
	}
	p.b = append(p.b, typ)
	return p
}

func (p Prefix) CollectionID(id [8]byte) Prefix {
	if len(p.b) != 1 {
		panic("key: CollectionID must follow Type")
	}
	p.b = append(p.b, id[:]...)
	return p
}

func (p Prefix) FieldID(id [8]byte) Prefix {
	if len(p.b) != 9 {
		panic("key: FieldID must follow CollectionID")
	}
	p.b = append(p.b, id[:]...)
	return p
}

func (p Prefix) Layer(layer byte) Prefix {
	if len(p.b) != 17 {
		panic("key: Layer must follow FieldID")
	}
	p.b = append(p.b, layer)
	return p
}

func (p Prefix) DocumentID(id [8]byte) Prefix {
	if len(p.b) != 18 {
		panic("key: DocumentID must follow Layer")
	}
	p.b = append(p.b, id[:]...)
	return p
}

// Bytes returns the built prefix.
func (p Prefix) Bytes() []byte {
	out := make([]byte, len(p.b))
	copy(out, p.b)
	return out
}
