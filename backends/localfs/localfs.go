// Package localfs implements interf.Backend over the local filesystem
// via os.File, grounded in the distillation's original unbuffered file
// access layer (file_access_unbuffered_unix.cpp): open with the flags
// matching the requested Mode, read/write at an explicit position,
// Len via Stat, Close releases the descriptor.
package localfs

import (
	"fmt"
	"io"
	"os"

	interf "github.com/pagewright/pagecache/interfaces"
)

// interface check: interf.Backend
var _ interf.Backend = (*Backend)(nil)

// Backend is a interf.Backend backed by the OS filesystem.
type Backend struct{}

// New returns a localfs.Backend.
func New() *Backend {
	return &Backend{}
}

type handle struct {
	f   *os.File
	pos int64
}

// Open opens path with OS flags matching mode. ModeWrite and
// ModeWriteRead create the file if it doesn't exist; ModeRead requires
// it to exist.
func (b *Backend) Open(path string, mode interf.Mode) (interf.BackendHandle, error) {
	var flag int
	switch mode {
	case interf.ModeRead:
		flag = os.O_RDONLY
	case interf.ModeWrite:
		flag = os.O_WRONLY | os.O_CREATE
	case interf.ModeReadWrite, interf.ModeWriteRead:
		flag = os.O_RDWR | os.O_CREATE
	default:
		return nil, interf.ErrInvalidParameter
	}

	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("localfs: %w: %v", interf.ErrCantOpen, err)
	}
	return &handle{f: f}, nil
}

// Seek repositions h. The position is only applied lazily on the next
// Read/Write via pread/pwrite-style offset tracking, so concurrent
// Seek+Read pairs observe a consistent (offset, data) view under the
// caller's own synchronization (the engine serializes these per
// descriptor).
func (b *Backend) Seek(h interf.BackendHandle, offset int64) error {
	if offset < 0 {
		return interf.ErrInvalidParameter
	}
	h.(*handle).pos = offset
	return nil
}

func (b *Backend) Read(h interf.BackendHandle, buf []byte) (int, error) {
	hh := h.(*handle)
	n, err := hh.f.ReadAt(buf, hh.pos)
	hh.pos += int64(n)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("localfs: %w: %v", interf.ErrCantRead, err)
	}
	return n, err
}

func (b *Backend) Write(h interf.BackendHandle, buf []byte) (int, error) {
	hh := h.(*handle)
	n, err := hh.f.WriteAt(buf, hh.pos)
	hh.pos += int64(n)
	if err != nil {
		return n, fmt.Errorf("localfs: %w: %v", interf.ErrCantWrite, err)
	}
	return n, nil
}

func (b *Backend) Len(h interf.BackendHandle) (int64, error) {
	hh := h.(*handle)
	info, err := hh.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("localfs: %w: %v", interf.ErrCantRead, err)
	}
	return info.Size(), nil
}

func (b *Backend) Close(h interf.BackendHandle) error {
	hh := h.(*handle)
	if err := hh.f.Close(); err != nil {
		return fmt.Errorf("localfs: %w: %v", interf.ErrCantOpen, err)
	}
	return nil
}

// Exists reports whether path exists and is not a directory.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
