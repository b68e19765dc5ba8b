package kvdb

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func initTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(DefaultConfig(t.TempDir()))
	assert.Nil(t, err)
	assert.NotNil(t, db)
	return db
}

// checkRanges asserts the shard-range invariant: contiguous, ascending,
// non-overlapping, jointly covering [0, 65536).
func checkRanges(t *testing.T, db *Store) {
	t.Helper()
	next := uint32(0)
	for _, sf := range db.shards {
		assert.Equal(t, next, sf.start)
		assert.Less(t, sf.start, sf.end)
		next = sf.end
	}
	assert.Equal(t, uint32(shardSpace), next)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(DefaultConfig(dir))
	assert.Nil(t, err)
	defer db.Close()

	// An empty directory starts with a single full-range shard.
	assert.Equal(t, 1, len(db.shards))
	checkRanges(t, db)
	_, err = os.Stat(filepath.Join(dir, "0-65536"))
	assert.Nil(t, err)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(DefaultConfig(""))
	assert.NotNil(t, err)
}

func TestStore_SetGet(t *testing.T) {
	db := initTestStore(t)
	defer db.Close()

	assert.Nil(t, db.Set([]byte("hello"), []byte("world")))

	v, ok, err := db.Get([]byte("hello"))
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("world"), v)

	_, ok, err = db.Get([]byte("nonexistent"))
	assert.Nil(t, err)
	assert.False(t, ok)
}

func TestStore_Remove(t *testing.T) {
	db := initTestStore(t)
	defer db.Close()

	assert.Nil(t, db.Set([]byte("hello"), []byte("world")))

	removed, err := db.Remove([]byte("hello"))
	assert.Nil(t, err)
	assert.True(t, removed)

	_, ok, err := db.Get([]byte("hello"))
	assert.Nil(t, err)
	assert.False(t, ok)

	removed, err = db.Remove([]byte("hello"))
	assert.Nil(t, err)
	assert.False(t, removed)
}

func TestStore_Overwrite(t *testing.T) {
	db := initTestStore(t)
	defer db.Close()

	assert.Nil(t, db.Set([]byte("k"), []byte("v1")))
	assert.Nil(t, db.Set([]byte("k"), []byte("v2")))

	v, ok, err := db.Get([]byte("k"))
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), v)

	count := 0
	assert.Nil(t, db.Iterate(func(_, _ []byte) bool {
		count++
		return true
	}))
	assert.Equal(t, 1, count)
}

func TestStore_SizeLimits(t *testing.T) {
	db := initTestStore(t)
	defer db.Close()

	assert.ErrorIs(t, db.Set(make([]byte, 65536), []byte("v")), ErrKeyTooLarge)
	assert.ErrorIs(t, db.Set([]byte("k"), make([]byte, 65536)), ErrValueTooLarge)

	// The caps themselves are representable.
	assert.Nil(t, db.Set(make([]byte, 65535), make([]byte, 65535)))
}

func TestStore_EmptyKeyAndValue(t *testing.T) {
	db := initTestStore(t)
	defer db.Close()

	assert.Nil(t, db.Set([]byte{}, []byte("v")))
	v, ok, err := db.Get([]byte{})
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	assert.Nil(t, db.Set([]byte("k"), []byte{}))
	v, ok, err = db.Get([]byte("k"))
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, len(v))
}

// The demo sequence of the process entry point.
func TestStore_Scenario(t *testing.T) {
	db := initTestStore(t)
	defer db.Close()

	assert.Nil(t, db.Set([]byte("hello"), []byte("world")))

	v, ok, err := db.Get([]byte("hello"))
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("world"), v)

	_, ok, err = db.Get([]byte("nonexistent"))
	assert.Nil(t, err)
	assert.False(t, ok)

	removed, err := db.Remove([]byte("hello"))
	assert.Nil(t, err)
	assert.True(t, removed)

	_, ok, err = db.Get([]byte("hello"))
	assert.Nil(t, err)
	assert.False(t, ok)

	const n = 100_000
	var key, value [4]byte
	for i := uint32(0); i < n; i++ {
		binary.LittleEndian.PutUint32(key[:], i)
		binary.LittleEndian.PutUint32(value[:], i*2)
		assert.Nil(t, db.Set(key[:], value[:]))
	}

	count := 0
	assert.Nil(t, db.Iterate(func(_, _ []byte) bool {
		count++
		return true
	}))
	assert.Equal(t, n, count)
}

// Bulk load past the capacity of the initial shard: splits must happen and
// every key must stay retrievable with its original value.
func TestStore_BulkLoadSplits(t *testing.T) {
	db := initTestStore(t)
	defer db.Close()

	const n = 100_000 // > rowWidth * rowCount
	var key, value [4]byte
	for i := uint32(0); i < n; i++ {
		binary.LittleEndian.PutUint32(key[:], i)
		binary.LittleEndian.PutUint32(value[:], i*2)
		assert.Nil(t, db.Set(key[:], value[:]))
	}

	assert.Greater(t, len(db.shards), 1)
	checkRanges(t, db)

	for i := uint32(0); i < n; i++ {
		binary.LittleEndian.PutUint32(key[:], i)
		v, ok, err := db.Get(key[:])
		assert.Nil(t, err)
		assert.True(t, ok, "key %d lost after split", i)
		assert.Equal(t, i*2, binary.LittleEndian.Uint32(v))
	}
}

func TestStore_IterateStopsEarly(t *testing.T) {
	db := initTestStore(t)
	defer db.Close()

	for i := 0; i < 100; i++ {
		assert.Nil(t, db.Set([]byte(fmt.Sprintf("key-%d", i)), []byte("v")))
	}
	count := 0
	assert.Nil(t, db.Iterate(func(_, _ []byte) bool {
		count++
		return count < 7
	}))
	assert.Equal(t, 7, count)
}

func TestStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(DefaultConfig(dir))
	assert.Nil(t, err)

	const n = 50_000 // force at least one split before reopening
	var key, value [4]byte
	for i := uint32(0); i < n; i++ {
		binary.LittleEndian.PutUint32(key[:], i)
		binary.LittleEndian.PutUint32(value[:], i*2)
		assert.Nil(t, db.Set(key[:], value[:]))
	}
	shardsBefore := len(db.shards)
	assert.Greater(t, shardsBefore, 1)
	assert.Nil(t, db.Sync())
	assert.Nil(t, db.Close())

	db, err = Open(DefaultConfig(dir))
	assert.Nil(t, err)
	defer db.Close()
	assert.Equal(t, shardsBefore, len(db.shards))
	checkRanges(t, db)

	for i := uint32(0); i < n; i += 997 {
		binary.LittleEndian.PutUint32(key[:], i)
		v, ok, err := db.Get(key[:])
		assert.Nil(t, err)
		assert.True(t, ok)
		assert.Equal(t, i*2, binary.LittleEndian.Uint32(v))
	}

	// The reopened store keeps accepting writes.
	assert.Nil(t, db.Set([]byte("after-reopen"), []byte("ok")))
	v, ok, err := db.Get([]byte("after-reopen"))
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("ok"), v)
}

func TestStore_SyncOnWrite(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.SyncOnWrite = true
	db, err := Open(cfg)
	assert.Nil(t, err)
	defer db.Close()

	assert.Nil(t, db.Set([]byte("k"), []byte("v")))
	v, ok, err := db.Get([]byte("k"))
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestOpen_InvalidShardLayout(t *testing.T) {
	// A lone shard file that does not reach the end of the index space.
	dir := t.TempDir()
	assert.Nil(t, os.WriteFile(filepath.Join(dir, "0-100"), nil, 0644))
	_, err := Open(DefaultConfig(dir))
	assert.ErrorIs(t, err, ErrInvalidShardLayout)

	// Overlapping ranges.
	dir = t.TempDir()
	assert.Nil(t, os.WriteFile(filepath.Join(dir, "0-65536"), nil, 0644))
	assert.Nil(t, os.WriteFile(filepath.Join(dir, "0-32768"), nil, 0644))
	_, err = Open(DefaultConfig(dir))
	assert.ErrorIs(t, err, ErrInvalidShardLayout)

	// A gap between ranges.
	dir = t.TempDir()
	assert.Nil(t, os.WriteFile(filepath.Join(dir, "0-16384"), nil, 0644))
	assert.Nil(t, os.WriteFile(filepath.Join(dir, "32768-65536"), nil, 0644))
	_, err = Open(DefaultConfig(dir))
	assert.ErrorIs(t, err, ErrInvalidShardLayout)

	// A range beyond the index space.
	dir = t.TempDir()
	assert.Nil(t, os.WriteFile(filepath.Join(dir, "0-65537"), nil, 0644))
	_, err = Open(DefaultConfig(dir))
	assert.ErrorIs(t, err, ErrInvalidShardLayout)
}

func TestOpen_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	assert.Nil(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	db, err := Open(DefaultConfig(dir))
	assert.Nil(t, err)
	defer db.Close()
	assert.Equal(t, 1, len(db.shards))
}
