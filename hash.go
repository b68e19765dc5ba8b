package kvdb

import (
	"kvdb/util"
)

// PartedHash is the single 64-bit hash of a key, sliced into the three fields
// that place the key: a 32-bit signature, a row index and a shard index. The
// fields come from disjoint bit ranges so that shard splits never perturb row
// or signature placement.
type PartedHash uint64

const (
	// emptySignature marks a free slot in a shard row.
	emptySignature uint32 = 0

	// reservedSignature replaces a natural signature of 0, so that a live
	// slot can always be told apart from a free one.
	reservedSignature uint32 = 0x12345678
)

// NewPartedHash hashes the raw key bytes. Pure and deterministic: the same
// key always yields the same hash for the lifetime of the on-disk format.
func NewPartedHash(key []byte) PartedHash {
	return PartedHash(util.Sum64(key))
}

// Signature returns the low 32 bits, used as a cheap pre-filter before an
// exact key comparison. Never returns emptySignature.
func (h PartedHash) Signature() uint32 {
	if s := uint32(h); s != emptySignature {
		return s
	}
	return reservedSignature
}

// Row returns the bucket index inside a shard header, taken from bits 32-47.
func (h PartedHash) Row() uint32 {
	return uint32(h>>32&0xffff) % rowCount
}

// Shard returns the shard index in [0, 65536), taken from the top 16 bits.
func (h PartedHash) Shard() uint32 {
	return uint32(h >> 48)
}
