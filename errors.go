package kvdb

import "errors"

var (
	// ErrKeyTooLarge key length does not fit the 16-bit descriptor field.
	ErrKeyTooLarge = errors.New("kvdb: key exceeds 65535 bytes")

	// ErrValueTooLarge value length does not fit the 16-bit descriptor field.
	ErrValueTooLarge = errors.New("kvdb: value exceeds 65535 bytes")

	// ErrLogOverflow a shard's log region outgrew the 32-bit descriptor offset.
	ErrLogOverflow = errors.New("kvdb: shard log exceeds addressable range")

	// ErrShardFull a row overflowed in a shard that can no longer split.
	ErrShardFull = errors.New("kvdb: row full in minimal-width shard")

	// ErrInvalidShardLayout the shard files on disk do not form a contiguous
	// partition of the shard index space.
	ErrInvalidShardLayout = errors.New("kvdb: shard files do not partition the key space")
)
