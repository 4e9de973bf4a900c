package interf

// Engine is the consumer-facing API of the paged cache. One Engine
// owns one fixed frame pool and one I/O worker; it is safe for
// concurrent use by multiple goroutines.
type Engine interface {

	// Open opens path through the engine's backend, in the given mode
	// and with the given replacement policy, and returns a Handle for
	// subsequent operations. Opening an already-open path fails with
	// ErrAlreadyInUse; reopening a path that was Close'd (but not
	// PermanentClose'd) reuses the existing descriptor and its
	// resident pages.
	Open(path string, mode Mode, policy Policy) (Handle, error)

	// Close flushes h's dirty frames and releases its backing handle,
	// but keeps the descriptor (and its resident pages) tracked so a
	// later Open of the same path can serve hits immediately. Close
	// blocks until the flush has completed.
	Close(h Handle) error

	// PermanentClose behaves like Close, additionally waiting for
	// every resident frame to become clean and unused and then erasing
	// all descriptor, page-index and policy-table state for h. After
	// PermanentClose returns, h is invalid.
	PermanentClose(h Handle) error

	// Flush writes back every dirty frame belonging to h without
	// closing it.
	Flush(h Handle) error

	// Read copies up to len(buf) bytes starting at h's current offset
	// into buf, advancing the offset by the number of bytes copied.
	// Reads past end-of-file are zero-filled.
	Read(h Handle, buf []byte) (int, error)

	// Write copies up to len(buf) bytes from buf to h's current
	// offset, advancing the offset by the number of bytes copied and
	// marking the touched frames dirty.
	Write(h Handle, buf []byte) (int, error)

	// Seek repositions h's offset per whence and returns the resulting
	// absolute offset. Seeking far from a pending prefetch cancels it.
	Seek(h Handle, offset int64, whence Whence) (int64, error)

	// GetLen returns the larger of the cached size and the backing
	// store's current size, and refreshes the cached size.
	GetLen(h Handle) (int64, error)

	// EOFReached reports whether the last I/O on h's backing handle
	// observed end-of-file.
	EOFReached(h Handle) (bool, error)

	// FileExists reports whether path can be opened by the engine's
	// backend, without creating a descriptor for it.
	FileExists(path string) bool

	// CheckCache ensures the pages covering [offset, offset+length)
	// (offset is h's current offset) are resident, enqueuing loads for
	// misses without waiting for them to complete. length ==
	// LenUnspecified prefetches DefaultPrefetchPages pages. Read and
	// Write call this internally; exposed so callers can prefetch
	// ahead of a planned access pattern.
	CheckCache(h Handle, length int64) error
}
