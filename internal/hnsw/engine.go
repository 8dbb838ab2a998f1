// Package hnsw implements the persistent Hierarchical Navigable Small World
// graph: insertion, layer search, and query, operating against the durable
// store through its typed helpers and against an index header guarded by
// the caller's per-index mutex (internal/indexstore).
//
// Unlike the teacher's in-memory HNSWIndex, every layer touched here is read
// from and written back to the store on each step — there is no resident
// graph in RAM besides the header itself. ctx is accepted on every
// operation for tracing/metrics label passthrough only; it is not a
// cancellation point (a request aborted at the HTTP layer does not roll
// back a partially applied insert).
package hnsw

import (
	"context"
	"fmt"
	"math"

	"github.com/orneryd/hiddb/internal/catalog"
	"github.com/orneryd/hiddb/internal/indexstore"
	"github.com/orneryd/hiddb/internal/sortedlist"
	"github.com/orneryd/hiddb/internal/store"
)

// ErrCorrupt signals an invariant violation found mid-traversal: a neighbor
// id or an entry point with no stored vector. It is a hard fatal — the store
// is corrupt — not a user error. A missing neighbor list is not detected:
// store.GetNeighbors reads it as an empty list.
type ErrCorrupt struct {
	Reason string
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("hnsw: corrupt store: %s", e.Reason)
}

// RandomLevel draws a node's insertion level: ⌊−ln(U) · reverseSize⌋ where U
// is a fresh uniform sample in (0, 1].
func RandomLevel(r interface{ Float64() float64 }, reverseSize float64) int {
	u := r.Float64()
	for u <= 0 {
		u = r.Float64()
	}
	return int(math.Floor(-math.Log(u) * reverseSize))
}

// Insert adds one document's vector to the index. The caller must already
// hold entry's mutex for the duration of this call.
func Insert(ctx context.Context, s *store.Store, entry *indexstore.Entry, documentHash [8]byte, vector []float64) error {
	h := &entry.Header
	if len(vector) != h.Dimension {
		return &DimensionMismatchError{Field: h.FieldName, Index: h.Dimension, Vector: len(vector)}
	}

	collHash, fieldHash := h.CollectionHash, h.FieldHash

	// Step 1: persist the stored vector before anything references it.
	if err := s.PutVector(collHash, fieldHash, documentHash, vector); err != nil {
		return err
	}

	// Step 2: empty index.
	if h.EntryPoint == nil {
		if err := s.PutNeighbors(collHash, fieldHash, 0, documentHash, sortedlist.New()); err != nil {
			return err
		}
		ep := documentHash
		h.EntryPoint = &ep
		h.LayerCount = 1
		h.ElementCount = 1
		return s.PutIndex(*h)
	}

	level := RandomLevel(entry.Rand, h.ReverseSize)

	ep := *h.EntryPoint
	// Step 3: zoom-in phase, single-best search down to level+1.
	for l := h.LayerCount - 1; l > level; l-- {
		nearest, err := singleBestSearch(s, collHash, fieldHash, byte(l), ep, vector)
		if err != nil {
			return err
		}
		ep = nearest
	}

	// Step 4: beam search + bidirectional linking at every layer from
	// min(level, layerCount-1) down to 0.
	top := level
	if h.LayerCount-1 < top {
		top = h.LayerCount - 1
	}
	for l := top; l >= 0; l-- {
		candidates, err := layerSearch(s, collHash, fieldHash, byte(l), ep, vector, h.K)
		if err != nil {
			return err
		}
		selected := candidates.NFirst(h.K)

		for _, c := range selected {
			nVec, err := s.GetVector(collHash, fieldHash, c.ID)
			if err != nil {
				return &ErrCorrupt{Reason: "neighbor has no stored vector"}
			}
			nList, err := s.GetNeighbors(collHash, fieldHash, byte(l), c.ID)
			if err != nil {
				return err
			}
			nList.Insert(sortedlist.Entry{Score: hnswDistance(vector, nVec), ID: documentHash})
			if nList.Len() > h.K {
				nList.Pop()
			}
			if err := s.PutNeighbors(collHash, fieldHash, byte(l), c.ID, nList); err != nil {
				return err
			}
		}

		qList := sortedlist.New()
		for _, c := range selected {
			qList.Insert(c)
		}
		if err := s.PutNeighbors(collHash, fieldHash, byte(l), documentHash, qList); err != nil {
			return err
		}

		if first, ok := qList.First(); ok {
			ep = first.ID
		}
	}

	// Step 5: layer promotion.
	if level >= h.LayerCount {
		newTop := byte(h.LayerCount)
		if err := s.PutNeighbors(collHash, fieldHash, newTop, documentHash, sortedlist.New()); err != nil {
			return err
		}
		ep = documentHash
		h.EntryPoint = &ep
		h.LayerCount++
	}

	h.ElementCount++
	return s.PutIndex(*h)
}

// hnswDistance is the Euclidean distance used for all stored scores.
func hnswDistance(a, b []float64) float64 {
	return Euclidean(a, b)
}

// singleBestSearch performs the zoom-in step: seed the frontier with e and
// return the single nearest id found after exhausting the beam at layer L
// with beam size 1.
func singleBestSearch(s *store.Store, collHash, fieldHash [8]byte, layer byte, e [8]byte, v []float64) ([8]byte, error) {
	results, err := layerSearch(s, collHash, fieldHash, layer, e, v, 1)
	if err != nil {
		return [8]byte{}, err
	}
	first, ok := results.First()
	if !ok {
		return e, nil
	}
	return first.ID, nil
}

// layerSearch implements the beam search of one layer, seeded at e, keeping
// the k nearest results seen.
func layerSearch(s *store.Store, collHash, fieldHash [8]byte, layer byte, e [8]byte, v []float64, k int) (*sortedlist.List, error) {
	eVec, err := s.GetVector(collHash, fieldHash, e)
	if err != nil {
		return nil, &ErrCorrupt{Reason: "entry point has no stored vector"}
	}

	candidates := sortedlist.NewReverse()
	results := sortedlist.New()
	visited := map[[8]byte]bool{e: true}

	seedDist := hnswDistance(v, eVec)
	candidates.Insert(sortedlist.Entry{Score: seedDist, ID: e})
	results.Insert(sortedlist.Entry{Score: seedDist, ID: e})

	for candidates.Len() > 0 {
		c, _ := candidates.Pop()

		farthest, _ := results.Last()
		if c.Score*c.Score > farthest.Score*farthest.Score {
			break
		}

		neighbors, err := s.GetNeighbors(collHash, fieldHash, layer, c.ID)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors.Entries() {
			if visited[n.ID] {
				continue
			}
			visited[n.ID] = true

			nVec, err := s.GetVector(collHash, fieldHash, n.ID)
			if err != nil {
				return nil, &ErrCorrupt{Reason: "neighbor has no stored vector"}
			}
			d := hnswDistance(v, nVec)

			admit := results.Len() < k
			if !admit {
				farthest, _ := results.Last()
				admit = d < farthest.Score
			}
			if admit {
				candidates.Insert(sortedlist.Entry{Score: d, ID: n.ID})
				results.Insert(sortedlist.Entry{Score: d, ID: n.ID})
				if results.Len() > k {
					results.Pop()
				}
			}
		}
	}

	return results, nil
}

// Query performs knn_search(v, maxNeighbors): single-best refinement down
// to layer 1, a beam search at layer 0, then truncation.
func Query(ctx context.Context, s *store.Store, h catalog.IndexHeader, v []float64, maxNeighbors int) ([][8]byte, error) {
	if len(v) != h.Dimension {
		return nil, &DimensionMismatchError{Field: h.FieldName, Index: h.Dimension, Vector: len(v)}
	}
	if h.ElementCount == 0 {
		return nil, nil
	}

	ep := *h.EntryPoint
	for l := h.LayerCount - 1; l > 0; l-- {
		nearest, err := singleBestSearch(s, h.CollectionHash, h.FieldHash, byte(l), ep, v)
		if err != nil {
			return nil, err
		}
		ep = nearest
	}

	results, err := layerSearch(s, h.CollectionHash, h.FieldHash, 0, ep, v, h.K)
	if err != nil {
		return nil, err
	}

	nearest := results.NFirst(maxNeighbors)
	out := make([][8]byte, len(nearest))
	for i, e := range nearest {
		out[i] = e.ID
	}
	return out, nil
}
