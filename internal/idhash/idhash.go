// Package idhash computes the 8-byte non-cryptographic hash used to turn
// user-visible collection, field, and document id strings into the fixed
// width ids the key codec requires.
//
// The original implementation uses SeaHash; this module uses xxhash
// (github.com/cespare/xxhash/v2), already present in this module's
// dependency graph via BadgerDB/Ristretto. Both are fast, well-distributed
// 64-bit non-cryptographic hashes — nothing in the spec depends on which
// specific algorithm is used, only on its determinism and near-uniform
// spread, so swapping the algorithm changes no invariant.
package idhash

import "github.com/cespare/xxhash/v2"

// Hash returns the big-endian 8-byte hash of s.
func Hash(s string) [8]byte {
	sum := xxhash.Sum64String(s)
	var out [8]byte
	out[0] = byte(sum >> 56)
	out[1] = byte(sum >> 48)
	out[2] = byte(sum >> 40)
	out[3] = byte(sum >> 32)
	out[4] = byte(sum >> 24)
	out[5] = byte(sum >> 16)
	out[6] = byte(sum >> 8)
	out[7] = byte(sum)
	return out
}

// IndexHash concatenates a collection hash and field hash into the 16-byte
// index hash used as the index-store map key.
func IndexHash(collectionHash, fieldHash [8]byte) [16]byte {
	var out [16]byte
	copy(out[0:8], collectionHash[:])
	copy(out[8:16], fieldHash[:])
	return out
}
