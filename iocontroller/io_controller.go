package iocontroller

// IOController abstracts positional I/O on a shard's backing file.
// Implementations never keep a shared stream cursor: the caller owns any
// append offset and every call addresses the file explicitly.
type IOController interface {
	// Write writes slice b at offset.
	// It returns the number of bytes written and any error encountered.
	Write(b []byte, offset int64) (int, error)

	// Read reads len(b) bytes at offset into b.
	// It returns the number of bytes read and any error encountered.
	Read(b []byte, offset int64) (int, error)

	// Size reports the current size of the backing file.
	Size() (int64, error)

	// Sync commits the current contents of the file from memory to stable storage.
	Sync() error

	// Close closes the file.
	Close() error

	// Delete deletes the file.
	Delete() error
}
