package interf

// PageSize is the fixed size of a page/frame in the cache, in bytes.
// Every page is aligned to a multiple of PageSize.
const PageSize = 4096

// NumFrames is the number of frames held by the frame pool. The pool
// occupies NumFrames * PageSize bytes of memory for the lifetime of
// the engine.
const NumFrames = 64

// KeepThreshold, LRUThreshold and FIFOThreshold are the default
// per-policy resident-page thresholds. They are policy-configurable
// via engine.WithPolicyThreshold.
const (
	KeepThreshold = 8
	LRUThreshold  = 8
	FIFOThreshold = 8
)

// LenUnspecified is the sentinel passed to CheckCache to request a
// prefetch of the default window (DefaultPrefetchPages pages) instead
// of a specific length.
const LenUnspecified = -1

// DefaultPrefetchPages is the number of pages prefetched by CheckCache
// when called with LenUnspecified.
const DefaultPrefetchPages = 8

// PrefixBits is the number of high bits of a page id reserved for the
// per-descriptor prefix. The remaining low bits encode a page-aligned
// file offset.
const PrefixBits = 24

// MaxPrefixes is the size of the prefix space (2^PrefixBits). The
// all-ones prefix is reserved, so the prefix pool hands out at most
// MaxPrefixes-1 prefixes concurrently.
const MaxPrefixes = 1 << PrefixBits

//--------------------------------------------------------------------------------------------------------------------
// The constants below describe the secondary sector cache kept by
// network-backed drivers (see backends/gdrive) in front of a slow
// backing store. They are independent of PageSize/NumFrames above.

// SectorSize is the size of a sector. A sector is a part of a file.
// It is comparable to sectors of a block device.
// The SectorSize is also the buffer size for the download.
const SectorSize = 16384 // 16 kiB

// MaxSectorJump determines how far you can jump forwards in an open reader.
// An open reader for google drive does not allow random read access.
// To reach a more distant sector, you either have to read up to this point or open a new reader.
// Opening a new reader often takes longer than reading unnecessary data.
const MaxSectorJump = (50 * 1024 * 1024) / SectorSize // 3200 sectors (=50 MiB, ~1sec with 400 MBit/s)

// MaxReadersPerFile determines how many open readers can be kept for later use. This should reduce reader openings.
const MaxReadersPerFile = 6

// CacheExpireSeconds is the default value n. The cache stores data for max. n seconds.
const CacheExpireSeconds = 2 * 24 * 60 * 60 // 2 days

// MaxFileSize defines the maximum size in byte of the supported files.
const MaxFileSize = 100 * 1024 * 1024 * 1024 // 100 GiB
