package kvdb

import (
	"encoding/binary"
	"fmt"
)

const (
	// rowWidth is the number of slots in one row.
	rowWidth = 512
	// rowCount is the number of rows in a shard header.
	rowCount = 64

	signatureSize  = 4
	descriptorSize = 8

	// rowSize is one row on disk: the signature array followed by the
	// parallel descriptor array.
	rowSize = rowWidth * (signatureSize + descriptorSize)

	// headerSize is the fixed directory region at the front of every shard
	// file. The append-only log region starts immediately after it.
	headerSize = rowCount * rowSize

	// shardSpace is the exclusive upper bound of the shard index range.
	shardSpace = 1 << 16
)

// Descriptor locates one key/value record in a shard's log region.
// Offset is relative to the end of the fixed-size header.
type Descriptor struct {
	Offset uint32
	KLen   uint16
	VLen   uint16
}

// shardHeader is a typed view over the mapped directory region of a shard
// file. All access goes through indexed, bounds-asserted accessors; the raw
// mapping is never handed out.
type shardHeader struct {
	buf []byte
}

func newShardHeader(buf []byte) *shardHeader {
	if len(buf) != headerSize {
		panic(fmt.Sprintf("kvdb: header mapping is %d bytes, want %d", len(buf), headerSize))
	}
	return &shardHeader{buf: buf}
}

func (h *shardHeader) row(i uint32) shardRow {
	if i >= rowCount {
		panic(fmt.Sprintf("kvdb: row index %d out of range", i))
	}
	off := int(i) * rowSize
	return shardRow{buf: h.buf[off : off+rowSize]}
}

// shardRow is one fixed-width open-addressed bucket: rowWidth signature
// slots and rowWidth parallel descriptors. A slot is live iff its signature
// is non-zero; the descriptor is only meaningful for live slots.
type shardRow struct {
	buf []byte
}

func (r shardRow) signature(slot int) uint32 {
	return binary.LittleEndian.Uint32(r.buf[r.signOffset(slot):])
}

func (r shardRow) setSignature(slot int, sign uint32) {
	binary.LittleEndian.PutUint32(r.buf[r.signOffset(slot):], sign)
}

func (r shardRow) descriptor(slot int) Descriptor {
	off := r.descOffset(slot)
	return Descriptor{
		Offset: binary.LittleEndian.Uint32(r.buf[off:]),
		KLen:   binary.LittleEndian.Uint16(r.buf[off+4:]),
		VLen:   binary.LittleEndian.Uint16(r.buf[off+6:]),
	}
}

func (r shardRow) setDescriptor(slot int, d Descriptor) {
	off := r.descOffset(slot)
	binary.LittleEndian.PutUint32(r.buf[off:], d.Offset)
	binary.LittleEndian.PutUint16(r.buf[off+4:], d.KLen)
	binary.LittleEndian.PutUint16(r.buf[off+6:], d.VLen)
}

func (r shardRow) signOffset(slot int) int {
	if slot < 0 || slot >= rowWidth {
		panic(fmt.Sprintf("kvdb: slot index %d out of range", slot))
	}
	return slot * signatureSize
}

func (r shardRow) descOffset(slot int) int {
	if slot < 0 || slot >= rowWidth {
		panic(fmt.Sprintf("kvdb: slot index %d out of range", slot))
	}
	return rowWidth*signatureSize + slot*descriptorSize
}
