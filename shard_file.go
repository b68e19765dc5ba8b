package kvdb

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"kvdb/iocontroller"
	"kvdb/mmap"
	"kvdb/util"
)

// ShardFile owns one shard of the key space: the half-open shard index range
// [start, end), the backing file, the mapped directory header and the append
// cursor of the log region. All log writes are append-only; an update never
// overwrites previous log bytes, it only redirects a slot's descriptor.
type ShardFile struct {
	start uint32
	end   uint32

	header     *shardHeader
	headerCtrl *iocontroller.MMapController
	logCtrl    iocontroller.IOController

	// writeOff is the next free absolute file offset for log appends. It is
	// owned by the ShardFile; no implicit file-position cursor is used.
	writeOff int64
}

func shardFileName(start, end uint32) string {
	return fmt.Sprintf("%d-%d", start, end)
}

// OpenShardFile creates or truncates the shard's backing file, sizes it to
// exactly the fixed header, and maps the header region read/write.
func OpenShardFile(dir string, start, end uint32) (*ShardFile, error) {
	path := filepath.Join(dir, shardFileName(start, end))
	if util.PathExist(path) {
		if err := os.Remove(path); err != nil {
			return nil, errors.Wrap(err, "truncate shard file")
		}
	}
	return openShard(path, start, end, headerSize)
}

// loadShardFile maps an existing shard file without disturbing its log
// region. The append cursor resumes at the current end of the file.
func loadShardFile(dir string, start, end uint32) (*ShardFile, error) {
	path := filepath.Join(dir, shardFileName(start, end))
	sf, err := openShard(path, start, end, 0)
	if err != nil {
		return nil, err
	}
	size, err := sf.logCtrl.Size()
	if err != nil {
		sf.closeQuiet()
		return nil, errors.Wrap(err, "stat shard file")
	}
	sf.writeOff = size
	return sf, nil
}

func openShard(path string, start, end uint32, writeOff int64) (*ShardFile, error) {
	headerCtrl, err := iocontroller.NewMMapController(path, headerSize)
	if err != nil {
		return nil, errors.Wrapf(err, "map shard header %s", path)
	}
	logCtrl, err := iocontroller.NewFileIOController(path, headerSize)
	if err != nil {
		_ = headerCtrl.Close()
		return nil, errors.Wrapf(err, "open shard file %s", path)
	}
	// Row probing is random access over the mapped directory.
	_ = mmap.MAdvise(headerCtrl.Bytes(), true)

	return &ShardFile{
		start:      start,
		end:        end,
		header:     newShardHeader(headerCtrl.Bytes()),
		headerCtrl: headerCtrl,
		logCtrl:    logCtrl,
		writeOff:   writeOff,
	}, nil
}

// Get returns the value stored for key, if any. A signature match alone is
// not sufficient: the full key is read back from the log and compared.
func (s *ShardFile) Get(h PartedHash, key []byte) ([]byte, bool, error) {
	row := s.header.row(h.Row())
	sign := h.Signature()
	for i := 0; i < rowWidth; i++ {
		if row.signature(i) != sign {
			continue
		}
		k, v, err := s.readRecord(row.descriptor(i))
		if err != nil {
			return nil, false, err
		}
		if bytes.Equal(k, key) {
			return v, true, nil
		}
	}
	return nil, false, nil
}

// Set stores key/value in the row addressed by h. An existing entry for the
// same key is overwritten in place (its slot's descriptor is redirected to a
// fresh log record). Returns false without mutating the row when every slot
// is occupied; the Store resolves that by splitting this shard.
func (s *ShardFile) Set(h PartedHash, key, value []byte) (bool, error) {
	row := s.header.row(h.Row())
	sign := h.Signature()
	free := -1
	for i := 0; i < rowWidth; i++ {
		sg := row.signature(i)
		if sg == emptySignature {
			if free < 0 {
				free = i
			}
			continue
		}
		if sg != sign {
			continue
		}
		k, err := s.readKey(row.descriptor(i))
		if err != nil {
			return false, err
		}
		if !bytes.Equal(k, key) {
			continue
		}
		desc, err := s.appendRecord(key, value)
		if err != nil {
			return false, err
		}
		row.setDescriptor(i, desc)
		return true, nil
	}

	if free < 0 {
		return false, nil
	}
	desc, err := s.appendRecord(key, value)
	if err != nil {
		return false, err
	}
	// Descriptor first: a slot is live only once its signature is non-zero.
	row.setDescriptor(free, desc)
	row.setSignature(free, sign)
	return true, nil
}

// Remove clears the slot holding key, if any. Log bytes are not reclaimed;
// only the signature is reset so the slot becomes reusable.
func (s *ShardFile) Remove(h PartedHash, key []byte) (bool, error) {
	row := s.header.row(h.Row())
	sign := h.Signature()
	for i := 0; i < rowWidth; i++ {
		if row.signature(i) != sign {
			continue
		}
		k, err := s.readKey(row.descriptor(i))
		if err != nil {
			return false, err
		}
		if bytes.Equal(k, key) {
			row.setSignature(i, emptySignature)
			return true, nil
		}
	}
	return false, nil
}

// Iterate calls fn for every live key/value pair of this shard, row-major
// and slot-ascending. Iteration stops early when fn returns false. Each call
// is an independent full scan.
func (s *ShardFile) Iterate(fn func(key, value []byte) bool) error {
	for r := uint32(0); r < rowCount; r++ {
		row := s.header.row(r)
		for i := 0; i < rowWidth; i++ {
			if row.signature(i) == emptySignature {
				continue
			}
			k, v, err := s.readRecord(row.descriptor(i))
			if err != nil {
				return err
			}
			if !fn(k, v) {
				return nil
			}
		}
	}
	return nil
}

// Sync flushes the mapped header and the log region to stable storage.
func (s *ShardFile) Sync() error {
	if err := s.headerCtrl.Sync(); err != nil {
		return errors.Wrap(err, "sync shard header")
	}
	return errors.Wrap(s.logCtrl.Sync(), "sync shard log")
}

// Close unmaps the header and closes the backing file.
func (s *ShardFile) Close() error {
	if err := s.headerCtrl.Close(); err != nil {
		return errors.Wrap(err, "close shard header")
	}
	return errors.Wrap(s.logCtrl.Close(), "close shard file")
}

// Delete unmaps the header and removes the backing file from disk.
func (s *ShardFile) Delete() error {
	if err := s.headerCtrl.Close(); err != nil {
		return errors.Wrap(err, "close shard header")
	}
	return errors.Wrap(s.logCtrl.Delete(), "delete shard file")
}

func (s *ShardFile) closeQuiet() {
	_ = s.headerCtrl.Close()
	_ = s.logCtrl.Close()
}

// appendRecord writes key||value at the append cursor and returns the
// descriptor locating it. Lengths are validated by the Store before they
// reach this layer.
func (s *ShardFile) appendRecord(key, value []byte) (Descriptor, error) {
	rel := s.writeOff - headerSize
	if rel+int64(len(key)+len(value)) > math.MaxUint32 {
		return Descriptor{}, ErrLogOverflow
	}
	buf := make([]byte, 0, len(key)+len(value))
	buf = append(buf, key...)
	buf = append(buf, value...)
	n, err := s.logCtrl.Write(buf, s.writeOff)
	if err != nil {
		return Descriptor{}, errors.Wrap(err, "append log record")
	}
	if n != len(buf) {
		return Descriptor{}, errors.Errorf("short log append: wrote %d of %d bytes", n, len(buf))
	}
	desc := Descriptor{
		Offset: uint32(rel),
		KLen:   uint16(len(key)),
		VLen:   uint16(len(value)),
	}
	s.writeOff += int64(n)
	return desc, nil
}

// readKey reads only the key bytes of a record.
func (s *ShardFile) readKey(d Descriptor) ([]byte, error) {
	k := make([]byte, d.KLen)
	if d.KLen == 0 {
		return k, nil
	}
	if _, err := s.logCtrl.Read(k, headerSize+int64(d.Offset)); err != nil {
		return nil, errors.Wrap(err, "read log key")
	}
	return k, nil
}

// readRecord reads the key and value bytes of a record with one positional read.
func (s *ShardFile) readRecord(d Descriptor) ([]byte, []byte, error) {
	buf := make([]byte, int(d.KLen)+int(d.VLen))
	if len(buf) == 0 {
		return nil, nil, nil
	}
	if _, err := s.logCtrl.Read(buf, headerSize+int64(d.Offset)); err != nil {
		return nil, nil, errors.Wrap(err, "read log record")
	}
	return buf[:d.KLen], buf[d.KLen:], nil
}
