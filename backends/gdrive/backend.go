package gdrive

import (
	"fmt"
	"io"
	"sync"

	interf "github.com/pagewright/pagecache/interfaces"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/drive/v3"
)

// interface check: interf.Backend
var _ interf.Backend = (*Backend)(nil)

// Backend is a read-mostly interf.Backend over the Google Drive v3
// API. Open's path argument is a Drive file id. Because Drive files
// are immutable blobs uploaded as a whole (there is no in-place range
// write API), Write always fails with interf.ErrUnsupported; callers
// that need to produce a file should write it locally and upload it
// through the Drive API directly, outside of this cache.
//
// This backend keeps a bounded secondary sector cache
// (freecache+bpool) in front of the network, independent of the
// engine's own frame pool, matching the distillation's own
// _Cache/Pool() split between a small frame pool and a larger,
// longer-lived network-read cache.
type Backend struct {
	service *drive.Service
	cache   *sectorCache // nil disables the secondary cache
}

// New returns a Backend using service for API access. cacheSizeMB
// sizes the secondary sector cache (0 uses the minimum useful size);
// pass a negative size to disable the secondary cache entirely.
func New(service *drive.Service, cacheSizeMB int) *Backend {
	var c *sectorCache
	if cacheSizeMB >= 0 {
		c = newSectorCache(cacheSizeMB)
	}
	return &Backend{service: service, cache: c}
}

// handle is the BackendHandle concrete type returned by Open.
type handle struct {
	mux     sync.Mutex
	fileID  string
	size    int64
	pos     int64
	inner   []*innerReader
	eof     bool
	backend *Backend
	meta    File
}

// Meta returns the Drive metadata captured when h was opened.
func (hh *handle) Meta() File {
	hh.mux.Lock()
	defer hh.mux.Unlock()
	return hh.meta
}

// Open fetches metadata for the Drive file identified by path (a
// Drive file id) and returns a handle positioned at offset 0. Only
// interf.ModeRead is supported.
func (b *Backend) Open(path string, mode interf.Mode) (interf.BackendHandle, error) {
	if mode != interf.ModeRead {
		return nil, fmt.Errorf("gdrive: %w: only ModeRead is supported", interf.ErrUnsupported)
	}

	f, err := b.service.Files.Get(path).Fields("id, name, size, modifiedTime, md5Checksum").Do()
	if err != nil {
		return nil, fmt.Errorf("gdrive: %w: %v", interf.ErrCantOpen, err)
	}

	logrus.WithFields(logrus.Fields{"id": f.Id, "name": f.Name, "size": f.Size}).Debug("gdrive: opened file")

	meta := fileMeta{
		id:      f.Id,
		name:    f.Name,
		modTime: parseTime(f.ModifiedTime),
		size:    f.Size,
		md5:     f.Md5Checksum,
	}

	return &handle{
		fileID:  f.Id,
		size:    f.Size,
		inner:   make([]*innerReader, interf.MaxReadersPerFile),
		backend: b,
		meta:    meta,
	}, nil
}

// Seek repositions h; Drive reads are served by range requests so this
// never touches the network itself.
func (b *Backend) Seek(h interf.BackendHandle, offset int64) error {
	hh := h.(*handle)
	hh.mux.Lock()
	defer hh.mux.Unlock()
	if offset < 0 {
		return interf.ErrInvalidParameter
	}
	hh.pos = offset
	return nil
}

// Read reads up to len(buf) bytes from h's current position, splicing
// across sector boundaries exactly like the distillation's ReaderAt.
func (b *Backend) Read(h interf.BackendHandle, buf []byte) (int, error) {
	hh := h.(*handle)
	if len(buf) == 0 {
		return 0, nil
	}

	hh.mux.Lock()
	defer hh.mux.Unlock()

	if hh.pos >= hh.size {
		hh.eof = true
		return 0, io.EOF
	}

	sector := uint64(hh.pos) / sectorSize
	innerOff := int(uint64(hh.pos) % sectorSize)

	sbuf := hh.backend.sectorBuf()
	defer hh.backend.putSectorBuf(sbuf)

	read := 0
	var err error
	for {
		var b2 []byte
		b2, err = hh.getSector(sbuf, sector)

		if len(b2) < innerOff {
			b2 = b2[len(b2):]
		} else {
			b2 = b2[innerOff:]
		}

		n := copy(buf[read:], b2)
		sector++
		innerOff = 0
		read += n
		hh.pos += int64(n)

		if n == 0 || err != nil || read == len(buf) {
			if err == io.EOF && read == len(buf) {
				err = nil
			}
			hh.eof = errIsEOF(err)
			return read, err
		}
	}
}

// Write always fails: Drive files are immutable blobs once uploaded.
func (b *Backend) Write(interf.BackendHandle, []byte) (int, error) {
	return 0, interf.ErrUnsupported
}

// Meta returns the Drive metadata captured for h when it was opened.
func (b *Backend) Meta(h interf.BackendHandle) File {
	return h.(*handle).Meta()
}

// Len returns the cached file size from Open.
func (b *Backend) Len(h interf.BackendHandle) (int64, error) {
	hh := h.(*handle)
	hh.mux.Lock()
	defer hh.mux.Unlock()
	return hh.size, nil
}

// Close releases every open ranged download held by h.
func (b *Backend) Close(h interf.BackendHandle) error {
	hh := h.(*handle)
	hh.mux.Lock()
	defer hh.mux.Unlock()
	for i, r := range hh.inner {
		if r != nil {
			_ = r.Close()
			hh.inner[i] = nil
		}
	}
	return nil
}

//--------  HELPER  --------------------------------------------------------------------------------------------------//

func (b *Backend) sectorBuf() []byte {
	if b.cache != nil {
		return b.cache.Pool().Get()
	}
	return make([]byte, interf.SectorSize)
}

func (b *Backend) putSectorBuf(buf []byte) {
	if b.cache != nil {
		b.cache.Pool().Put(buf)
	}
}

// getSector returns the bytes of sector, consulting the secondary
// cache first and falling back to (and refilling from) the network.
func (hh *handle) getSector(buf []byte, sector uint64) ([]byte, error) {
	if hh.backend.cache != nil {
		if b, err := hh.backend.cache.Get(hh.fileID, sector, buf); err == nil {
			return b, nil
		}
	}

	c := bestConn(hh.inner, sector)
	if c == nil {
		var err error
		hh.inner, c, err = addConn(hh.backend.service, hh.fileID, hh.inner, sector)
		if err != nil {
			return buf[:0], err
		}
	}

	// skip forward to the requested sector, caching everything we skip
	for c.sector < sector {
		skip := c.sector
		n, err := c.read(buf)
		if hh.backend.cache != nil && n > 0 {
			_ = hh.backend.cache.Set(hh.fileID, skip, buf[:n])
		}
		if err != nil {
			_ = c.Close()
			return buf[:0], err
		}
	}

	n, err := c.read(buf)
	if err != nil {
		_ = c.Close()
	}
	if hh.backend.cache != nil && n > 0 && (err == nil || err == io.EOF) {
		_ = hh.backend.cache.Set(hh.fileID, sector, buf[:n])
	}
	return buf[:n], err
}

func errIsEOF(err error) bool {
	return err == io.EOF
}
