package kvdb

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Store owns an ordered list of shard files that together partition the full
// shard index space [0, 65536) with no gaps or overlaps. Every operation
// hashes the key once, routes to the owning shard and delegates.
//
// A Store is single-owner: operations are synchronous and the design
// provides no locking, so concurrent use requires caller-level exclusivity.
type Store struct {
	cfg Config
	log *zap.Logger

	// shards is sorted ascending by range end; ranges are contiguous.
	shards []*ShardFile
}

// Open ensures the store directory exists and opens it. An empty directory
// is initialized with a single shard spanning the whole index space; an
// existing one is reopened from its shard files.
func Open(cfg Config) (*Store, error) {
	if cfg.DirPath == "" {
		return nil, errors.New("kvdb: dir path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.DirPath, os.ModePerm); err != nil {
		return nil, errors.Wrap(err, "create store directory")
	}

	db := &Store{cfg: cfg, log: logger}
	ranges, err := scanShardRanges(cfg.DirPath)
	if err != nil {
		return nil, err
	}

	if len(ranges) == 0 {
		sf, err := OpenShardFile(cfg.DirPath, 0, shardSpace)
		if err != nil {
			return nil, err
		}
		db.shards = []*ShardFile{sf}
		logger.Info("initialized store", zap.String("dir", cfg.DirPath))
		return db, nil
	}

	if err := validateShardRanges(ranges); err != nil {
		return nil, err
	}
	for _, r := range ranges {
		sf, err := loadShardFile(cfg.DirPath, r.start, r.end)
		if err != nil {
			db.closeQuiet()
			return nil, err
		}
		db.shards = append(db.shards, sf)
	}
	logger.Info("reopened store",
		zap.String("dir", cfg.DirPath),
		zap.Int("shards", len(db.shards)))
	return db, nil
}

// Get returns the value stored for key, and whether one exists.
func (db *Store) Get(key []byte) ([]byte, bool, error) {
	h := NewPartedHash(key)
	return db.locate(h.Shard()).Get(h, key)
}

// Set stores key/value, overwriting any previous value. When the target row
// of the owning shard is full, the shard is split and the whole lookup is
// retried; each split halves the range routed to the overflowing row, so
// the loop terminates.
func (db *Store) Set(key, value []byte) error {
	if len(key) > math.MaxUint16 {
		return ErrKeyTooLarge
	}
	if len(value) > math.MaxUint16 {
		return ErrValueTooLarge
	}
	h := NewPartedHash(key)
	if err := db.setHash(h, key, value); err != nil {
		return err
	}
	if db.cfg.SyncOnWrite {
		return db.locate(h.Shard()).Sync()
	}
	return nil
}

// Remove deletes key and reports whether a live entry was found.
func (db *Store) Remove(key []byte) (bool, error) {
	h := NewPartedHash(key)
	return db.locate(h.Shard()).Remove(h, key)
}

// Iterate calls fn for every live key/value pair of the store, shards in
// ascending range order. Iteration stops early when fn returns false.
func (db *Store) Iterate(fn func(key, value []byte) bool) error {
	stopped := false
	for _, sf := range db.shards {
		err := sf.Iterate(func(k, v []byte) bool {
			if !fn(k, v) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
		if stopped {
			return nil
		}
	}
	return nil
}

// Sync flushes every shard to stable storage.
func (db *Store) Sync() error {
	for _, sf := range db.shards {
		if err := sf.Sync(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every shard. The Store must not be used afterwards.
func (db *Store) Close() error {
	var firstErr error
	for _, sf := range db.shards {
		if err := sf.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	db.shards = nil
	return firstErr
}

func (db *Store) closeQuiet() {
	for _, sf := range db.shards {
		sf.closeQuiet()
	}
	db.shards = nil
}

// locate returns the shard owning the given shard index: the first shard in
// ascending range order whose end exceeds it. The ranges invariant makes a
// miss impossible; hitting one means the store state is broken beyond
// recovery, so this aborts instead of returning an error.
func (db *Store) locate(shard uint32) *ShardFile {
	for _, sf := range db.shards {
		if shard < sf.end {
			if shard < sf.start {
				panic(fmt.Sprintf("kvdb: shard ranges invariant broken: index %d below [%d, %d)", shard, sf.start, sf.end))
			}
			return sf
		}
	}
	panic(fmt.Sprintf("kvdb: shard ranges invariant broken: no shard owns index %d", shard))
}

func (db *Store) setHash(h PartedHash, key, value []byte) error {
	for {
		sf := db.locate(h.Shard())
		ok, err := sf.Set(h, key, value)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := db.split(sf); err != nil {
			return err
		}
	}
}

// split replaces shard sf with two half-range shards and redistributes its
// live entries. Redistribution re-inserts through setHash with a freshly
// computed hash, so a half that immediately overflows again is itself split;
// the recursion bottoms out at width-1 shards with ErrShardFull.
func (db *Store) split(sf *ShardFile) error {
	width := sf.end - sf.start
	if width < 2 {
		return ErrShardFull
	}
	// Widths start at 65536 and halve on every split, so mid is always an
	// exact bisection.
	mid := sf.start + width/2

	db.log.Info("splitting shard",
		zap.Uint32("start", sf.start),
		zap.Uint32("mid", mid),
		zap.Uint32("end", sf.end))

	bottom, err := OpenShardFile(db.cfg.DirPath, sf.start, mid)
	if err != nil {
		return err
	}
	top, err := OpenShardFile(db.cfg.DirPath, mid, sf.end)
	if err != nil {
		_ = bottom.Delete()
		return err
	}

	idx := -1
	for i, s := range db.shards {
		if s == sf {
			idx = i
			break
		}
	}
	if idx < 0 {
		panic("kvdb: splitting a shard that is not in the store")
	}
	replaced := make([]*ShardFile, 0, len(db.shards)+1)
	replaced = append(replaced, db.shards[:idx]...)
	replaced = append(replaced, bottom, top)
	replaced = append(replaced, db.shards[idx+1:]...)
	db.shards = replaced

	var setErr error
	iterErr := sf.Iterate(func(k, v []byte) bool {
		if setErr = db.setHash(NewPartedHash(k), k, v); setErr != nil {
			return false
		}
		return true
	})
	if setErr != nil {
		return setErr
	}
	if iterErr != nil {
		return iterErr
	}
	return sf.Delete()
}

type shardRange struct {
	start uint32
	end   uint32
}

// scanShardRanges collects the "{start}-{end}" shard files present in dir.
// Entries that do not follow the naming convention are ignored.
func scanShardRanges(dir string) ([]shardRange, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read store directory")
	}
	var ranges []shardRange
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		startStr, endStr, found := strings.Cut(entry.Name(), "-")
		if !found {
			continue
		}
		start, err := strconv.ParseUint(startStr, 10, 32)
		if err != nil {
			continue
		}
		end, err := strconv.ParseUint(endStr, 10, 32)
		if err != nil {
			continue
		}
		if start >= end || end > shardSpace {
			return nil, errors.Wrapf(ErrInvalidShardLayout, "bad shard range %q", entry.Name())
		}
		ranges = append(ranges, shardRange{start: uint32(start), end: uint32(end)})
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].end < ranges[j].end })
	return ranges, nil
}

// validateShardRanges checks that the sorted ranges are contiguous,
// non-overlapping and jointly cover [0, shardSpace).
func validateShardRanges(ranges []shardRange) error {
	next := uint32(0)
	for _, r := range ranges {
		if r.start != next {
			return errors.Wrapf(ErrInvalidShardLayout, "gap or overlap at index %d, found [%d, %d)", next, r.start, r.end)
		}
		next = r.end
	}
	if next != shardSpace {
		return errors.Wrapf(ErrInvalidShardLayout, "ranges end at %d, want %d", next, shardSpace)
	}
	return nil
}
