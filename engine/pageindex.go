package impl

import interf "github.com/pagewright/pagecache/interfaces"

// Page ids pack a 24-bit descriptor prefix and a 40-bit page-aligned
// byte offset into one uint64: prefix occupies the high bits, offset
// the low bits. noPage (all ones) is reserved and never produced by
// pageID because prefixPool never allocates prefixMask.
const (
	offsetBits = 40
	offsetMask = uint64(1)<<offsetBits - 1
	prefixMask = uint32(1)<<interf.PrefixBits - 1
)

// pageID packs prefix and a page-aligned offset into one page id.
// offset must already be a multiple of the pool's page size.
func pageID(prefix uint32, offset int64) uint64 {
	return uint64(prefix&prefixMask)<<offsetBits | (uint64(offset) & offsetMask)
}

// pagePrefix extracts the descriptor prefix encoded in p.
func pagePrefix(p uint64) uint32 {
	return uint32(p >> offsetBits)
}

// pageOffset extracts the page-aligned file offset encoded in p.
func pageOffset(p uint64) int64 {
	return int64(p & offsetMask)
}

// pageIndex maps page ids to the frame currently backing them. It is
// mutated only while the engine mutex is held.
type pageIndex struct {
	byPage map[uint64]*Frame
}

func newPageIndex() *pageIndex {
	return &pageIndex{byPage: make(map[uint64]*Frame)}
}

func (pi *pageIndex) lookup(p uint64) (*Frame, bool) {
	f, ok := pi.byPage[p]
	return f, ok
}

func (pi *pageIndex) insert(p uint64, f *Frame) {
	pi.byPage[p] = f
}

func (pi *pageIndex) remove(p uint64) {
	delete(pi.byPage, p)
}

// pagesForPrefix returns every page id currently indexed under prefix,
// used by Open's reopen path to retag a descriptor's pages when its
// policy changes.
func (pi *pageIndex) pagesForPrefix(prefix uint32) []uint64 {
	var out []uint64
	for p := range pi.byPage {
		if pagePrefix(p) == prefix {
			out = append(out, p)
		}
	}
	return out
}
