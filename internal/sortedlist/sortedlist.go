// Package sortedlist implements the ordered (score, id) sequence primitive
// used for persisted neighbor lists and, mirrored largest-first, for the
// HNSW candidate frontier. Insertion is binary-search based; NaN scores are
// rejected by the compare contract.
package sortedlist

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Entry is one (score, id) pair.
type Entry struct {
	Score float64
	ID    [8]byte
}

// List keeps entries ordered smallest-score-first. Ties are broken by
// insertion order: an equal score is inserted adjacent to existing equal
// entries without deduplication.
type List struct {
	data []Entry
}

// New returns an empty smallest-first list.
func New() *List {
	return &List{}
}

// FromSlice builds a list from an already-sorted slice, taking ownership of
// it without copying or re-validating order.
func FromSlice(entries []Entry) *List {
	return &List{data: entries}
}

// Insert inserts e keeping the list ordered smallest-first.
// Panics if e.Score is NaN: NaN cannot be ordered, and the original
// implementation's unwrap()-on-partial_cmp has the same effect.
func (l *List) Insert(e Entry) {
	if math.IsNaN(e.Score) {
		panic("sortedlist: NaN score")
	}
	idx := sort.Search(len(l.data), func(i int) bool {
		return l.data[i].Score >= e.Score
	})
	l.data = append(l.data, Entry{})
	copy(l.data[idx+1:], l.data[idx:])
	l.data[idx] = e
}

// Pop removes and returns the last (worst, i.e. largest-score) entry.
// Returns false if the list is empty.
func (l *List) Pop() (Entry, bool) {
	if len(l.data) == 0 {
		return Entry{}, false
	}
	last := l.data[len(l.data)-1]
	l.data = l.data[:len(l.data)-1]
	return last, true
}

// First returns the smallest-score entry.
func (l *List) First() (Entry, bool) {
	if len(l.data) == 0 {
		return Entry{}, false
	}
	return l.data[0], true
}

// Last returns the largest-score entry currently held.
func (l *List) Last() (Entry, bool) {
	if len(l.data) == 0 {
		return Entry{}, false
	}
	return l.data[len(l.data)-1], true
}

// NFirst returns the n smallest entries, or all of them if n exceeds Len.
func (l *List) NFirst(n int) []Entry {
	if n > len(l.data) {
		n = len(l.data)
	}
	out := make([]Entry, n)
	copy(out, l.data[:n])
	return out
}

// Len returns the number of entries.
func (l *List) Len() int {
	return len(l.data)
}

// Entries returns the underlying entries, smallest-first. The returned
// slice must not be mutated by the caller.
func (l *List) Entries() []Entry {
	return l.data
}

// Encode serializes the list as a compact binary blob: a little-endian
// uint32 count followed by count repetitions of (float64 score, 8-byte id).
func (l *List) Encode() []byte {
	buf := make([]byte, 4+len(l.data)*16)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(l.data)))
	off := 4
	for _, e := range l.data {
		binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(e.Score))
		copy(buf[off+8:off+16], e.ID[:])
		off += 16
	}
	return buf
}

// Decode parses the binary blob produced by Encode.
func Decode(b []byte) (*List, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("sortedlist: truncated header")
	}
	count := binary.LittleEndian.Uint32(b[0:4])
	want := 4 + int(count)*16
	if len(b) != want {
		return nil, fmt.Errorf("sortedlist: expected %d bytes, got %d", want, len(b))
	}
	data := make([]Entry, count)
	off := 4
	for i := range data {
		score := math.Float64frombits(binary.LittleEndian.Uint64(b[off : off+8]))
		var id [8]byte
		copy(id[:], b[off+8:off+16])
		data[i] = Entry{Score: score, ID: id}
		off += 16
	}
	return &List{data: data}, nil
}

// Reverse keeps entries ordered largest-score-first. It backs the HNSW
// search frontier, where the "nearest" candidate sits at the tail and Pop
// returns it — equivalent to popping the minimum off a min-heap without
// needing a second data structure.
type Reverse struct {
	data []Entry
}

// NewReverse returns an empty largest-first list.
func NewReverse() *Reverse {
	return &Reverse{}
}

// Insert inserts e keeping the list ordered largest-first.
func (r *Reverse) Insert(e Entry) {
	if math.IsNaN(e.Score) {
		panic("sortedlist: NaN score")
	}
	idx := sort.Search(len(r.data), func(i int) bool {
		return r.data[i].Score <= e.Score
	})
	r.data = append(r.data, Entry{})
	copy(r.data[idx+1:], r.data[idx:])
	r.data[idx] = e
}

// Pop removes and returns the last (smallest-score, i.e. nearest) entry.
func (r *Reverse) Pop() (Entry, bool) {
	if len(r.data) == 0 {
		return Entry{}, false
	}
	last := r.data[len(r.data)-1]
	r.data = r.data[:len(r.data)-1]
	return last, true
}

// Len returns the number of entries.
func (r *Reverse) Len() int {
	return len(r.data)
}
