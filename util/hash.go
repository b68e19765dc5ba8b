package util

import (
	"github.com/spaolacci/murmur3"
)

// hashSeed is fixed so that record placement is stable across processes.
// Changing it invalidates every persisted shard file.
const hashSeed = 923

// Sum64 hashes buf with fixed-seed murmur3.
// NOTE: the go runtime memhash is faster but reseeds on every process start,
// so it cannot be used as a persistent hash.
func Sum64(buf []byte) uint64 {
	return murmur3.Sum64WithSeed(buf, hashSeed)
}
