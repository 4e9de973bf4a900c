package gdrive

import (
	"encoding/binary"
	"runtime/debug"

	"github.com/coocood/freecache"
	"github.com/oxtoacart/bpool"
	interf "github.com/pagewright/pagecache/interfaces"
)

// interface check: interf.Cache
var _ interf.Cache = (*sectorCache)(nil)

// sectorCache is the secondary, sector-granularity cache kept in front
// of the Drive API by this backend, so repeated reads of the same
// sector don't pay a network round trip twice. It is independent of
// the engine's frame pool: frames are PageSize (4 KiB) and engine-wide,
// sectors are SectorSize (16 KiB) and specific to this backend.
type sectorCache struct {
	cache     *freecache.Cache
	pool      *bpool.BytePool
	sizeBytes int64
}

// newSectorCache returns a sector cache of at least cacheSizeMB
// megabytes (minimum ~17 MB, matching freecache's own minimum useful
// size for SectorSize-sized entries).
func newSectorCache(cacheSizeMB int) *sectorCache {
	min := ((1024 * interf.SectorSize) / (1024 * 1024)) + 1
	if cacheSizeMB < min {
		cacheSizeMB = min
	}

	cacheSize := cacheSizeMB * 1024 * 1024
	fCache := freecache.NewCache(cacheSize)
	debug.SetGCPercent(20)

	return &sectorCache{
		cache:     fCache,
		pool:      bpool.NewBytePool(300, interf.SectorSize),
		sizeBytes: int64(cacheSize),
	}
}

// Get returns the value or a 'not found' error. This method doesn't
// allocate memory when the capacity of buf is greater or equal to the
// stored value.
func (c *sectorCache) Get(fileID string, sector uint64, buf []byte) ([]byte, error) {
	return c.cache.GetWithBuf(c.key(fileID, sector), buf)
}

// Set stores data in the cache under (fileID, sector). Old data can be
// evicted if the cache is full. Entries expire after CacheExpireSeconds.
func (c *sectorCache) Set(fileID string, sector uint64, data []byte) error {
	return c.cache.Set(c.key(fileID, sector), data, interf.CacheExpireSeconds)
}

// Pool returns the shared byte pool backing this cache's buffers.
func (c *sectorCache) Pool() *bpool.BytePool {
	return c.pool
}

// Size returns the max. capacity of this cache in bytes.
func (c *sectorCache) Size() int64 {
	return c.sizeBytes
}

func (c *sectorCache) key(fileID string, sector uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], sector)
	return append(b[:], []byte(fileID)...)
}
