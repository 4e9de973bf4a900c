// Package ram implements an in-memory interf.Backend, grounded on the
// distillation's own _RamService/_RamReaderAt: a disposable, goroutine-safe
// []byte store keyed by path, useful for deterministic tests and
// scratch files that never need to survive the process.
package ram

import (
	"io"
	"sync"

	interf "github.com/pagewright/pagecache/interfaces"
)

// interface check: interf.Backend
var _ interf.Backend = (*Backend)(nil)

// Backend is an in-memory interf.Backend. Construct one with New: the
// zero value has no file map, and Open or Seed on it panics. Every
// Backend has its own independent file namespace.
type Backend struct {
	mux   sync.Mutex
	files map[string]*file
}

// New returns an empty ram.Backend.
func New() *Backend {
	return &Backend{files: make(map[string]*file)}
}

type file struct {
	mux  sync.RWMutex
	data []byte
}

type handle struct {
	f    *file
	pos  int64
	eof  bool
	mode interf.Mode
}

// Open returns a handle to path, creating an empty file on first use
// in any write mode. ModeRead on a path that was never written to (or
// preloaded with Seed) opens an empty, zero-length file rather than
// failing, matching the backend's "disposable scratch file" role.
func (b *Backend) Open(path string, mode interf.Mode) (interf.BackendHandle, error) {
	b.mux.Lock()
	f, ok := b.files[path]
	if !ok {
		f = &file{}
		b.files[path] = f
	}
	b.mux.Unlock()

	return &handle{f: f, mode: mode}, nil
}

// Seed preloads path with data, as if it had been written and flushed
// already. Intended for test setup.
func (b *Backend) Seed(path string, data []byte) {
	b.mux.Lock()
	f, ok := b.files[path]
	if !ok {
		f = &file{}
		b.files[path] = f
	}
	b.mux.Unlock()

	f.mux.Lock()
	f.data = append([]byte(nil), data...)
	f.mux.Unlock()
}

// Snapshot returns a copy of path's current bytes, for test assertions.
func (b *Backend) Snapshot(path string) []byte {
	b.mux.Lock()
	f, ok := b.files[path]
	b.mux.Unlock()
	if !ok {
		return nil
	}
	f.mux.RLock()
	defer f.mux.RUnlock()
	return append([]byte(nil), f.data...)
}

func (b *Backend) Seek(h interf.BackendHandle, offset int64) error {
	hh := h.(*handle)
	if offset < 0 {
		return interf.ErrInvalidParameter
	}
	hh.pos = offset
	return nil
}

func (b *Backend) Read(h interf.BackendHandle, buf []byte) (int, error) {
	hh := h.(*handle)
	hh.f.mux.RLock()
	defer hh.f.mux.RUnlock()

	if hh.pos >= int64(len(hh.f.data)) {
		hh.eof = true
		return 0, io.EOF
	}

	n := copy(buf, hh.f.data[hh.pos:])
	hh.pos += int64(n)
	hh.eof = hh.pos >= int64(len(hh.f.data))
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

func (b *Backend) Write(h interf.BackendHandle, buf []byte) (int, error) {
	hh := h.(*handle)
	hh.f.mux.Lock()
	defer hh.f.mux.Unlock()

	end := hh.pos + int64(len(buf))
	if end > int64(len(hh.f.data)) {
		grown := make([]byte, end)
		copy(grown, hh.f.data)
		hh.f.data = grown
	}
	n := copy(hh.f.data[hh.pos:end], buf)
	hh.pos += int64(n)
	return n, nil
}

func (b *Backend) Len(h interf.BackendHandle) (int64, error) {
	hh := h.(*handle)
	hh.f.mux.RLock()
	defer hh.f.mux.RUnlock()
	return int64(len(hh.f.data)), nil
}

func (b *Backend) Close(h interf.BackendHandle) error {
	_ = h.(*handle) // nothing to release
	return nil
}
