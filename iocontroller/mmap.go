package iocontroller

import (
	"io"
	"os"

	"kvdb/mmap"
)

// MMapController maps the first fsize bytes of a file read/write and serves
// all I/O from the mapping. It backs the fixed-size directory region of a
// shard file; the region size never changes for the life of the controller.
type MMapController struct {
	fd     *os.File
	buf    []byte
	bufLen int64
}

// NewMMapController creates a controller over a mapping of fsize bytes.
// The file is created if absent and grown to at least fsize bytes first.
func NewMMapController(fName string, fsize int64) (*MMapController, error) {
	if fsize <= 0 {
		return nil, ErrInvalidFsize
	}
	file, err := openFile(fName, fsize)
	if err != nil {
		return nil, err
	}
	buf, err := mmap.MMap(file, true, fsize)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return &MMapController{fd: file, buf: buf, bufLen: int64(len(buf))}, nil
}

// Bytes exposes the mapped region. Mutations through the returned slice are
// visible to every reader of the file once synced.
func (m *MMapController) Bytes() []byte {
	return m.buf
}

// Write copies slice b into the mapped region at offset.
func (m *MMapController) Write(b []byte, offset int64) (int, error) {
	length := int64(len(b))
	if length <= 0 {
		return 0, nil
	}
	if offset < 0 || offset+length > m.bufLen {
		return 0, io.EOF
	}
	return copy(m.buf[offset:], b), nil
}

// Read copies from the mapped region at offset into slice b.
func (m *MMapController) Read(b []byte, offset int64) (int, error) {
	length := int64(len(b))
	if offset < 0 || offset+length > m.bufLen {
		return 0, io.EOF
	}
	return copy(b, m.buf[offset:]), nil
}

// Size reports the mapped length, not the underlying file size.
func (m *MMapController) Size() (int64, error) {
	return m.bufLen, nil
}

// Sync flushes the mapped region to the file's contents on disk.
func (m *MMapController) Sync() error {
	return mmap.MSync(m.buf)
}

// Close syncs and unmaps the region, then closes the fd.
func (m *MMapController) Close() error {
	if err := mmap.MSync(m.buf); err != nil {
		return err
	}
	if err := mmap.MUnmap(m.buf); err != nil {
		return err
	}
	m.buf = nil
	return m.fd.Close()
}

// Delete unmaps the region and removes the file on disk.
func (m *MMapController) Delete() error {
	if err := mmap.MUnmap(m.buf); err != nil {
		return err
	}
	m.buf = nil
	if err := m.fd.Close(); err != nil {
		return err
	}
	return os.Remove(m.fd.Name())
}
