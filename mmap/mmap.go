package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

// MMap uses the mmap system call to memory-map the first size bytes of a file.
// If writable is true, memory protection of the pages is set so that they may
// be written to as well.
func MMap(fd *os.File, writable bool, size int64) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	return unix.Mmap(int(fd.Fd()), 0, int(size), prot, unix.MAP_SHARED)
}

// MUnmap unmaps a mapped slice.
func MUnmap(b []byte) error {
	return unix.Munmap(b)
}

// MAdvise provides advice on memory usage.
// If the page references are expected to be in random order, set the
// randomRead flag to true.
func MAdvise(b []byte, randomRead bool) error {
	advice := unix.MADV_NORMAL
	if randomRead {
		advice = unix.MADV_RANDOM
	}
	return unix.Madvise(b, advice)
}

// MSync flushes the mapped region to the backing file.
func MSync(b []byte) error {
	return unix.Msync(b, unix.MS_SYNC)
}
