package interf

import (
	"errors"
	"io"
)

// Error results returned by Engine and Backend operations. Callers
// should compare with errors.Is; wrapped backing-store errors still
// satisfy errors.Is against these sentinels.
var (
	// ErrCantOpen is returned when the backing store can't be opened.
	ErrCantOpen = errors.New("storage: can't open backing store")

	// ErrAlreadyInUse is returned by Open when the path is already
	// open through this engine (only one consumer handle at a time).
	ErrAlreadyInUse = errors.New("storage: file already in use")

	// ErrInvalidParameter is returned on precondition violations, e.g.
	// an unknown Whence or a Seek to a negative offset.
	ErrInvalidParameter = errors.New("storage: invalid parameter")

	// ErrEOF is an alias of io.EOF, kept so call sites can speak in
	// terms of this package's sentinels consistently.
	ErrEOF = io.EOF

	// ErrCantRead is returned when a backing-store read fails.
	ErrCantRead = errors.New("storage: can't read backing store")

	// ErrCantWrite is returned when a backing-store write fails.
	ErrCantWrite = errors.New("storage: can't write backing store")

	// ErrUnavailable is returned when an operation can't make progress
	// right now (e.g. the descriptor is mid FLUSH_CLOSE).
	ErrUnavailable = errors.New("storage: unavailable")

	// ErrNoSuchHandle is returned when a Handle is not known to the
	// engine (never opened, or permanently closed).
	ErrNoSuchHandle = errors.New("storage: no such handle")

	// ErrUnsupported is returned by Backend implementations that can't
	// perform the requested operation at all (e.g. a read-only remote
	// backend asked to Write).
	ErrUnsupported = errors.New("storage: operation not supported by this backend")
)
