package impl

import (
	"math/rand"

	interf "github.com/pagewright/pagecache/interfaces"
)

// thresholds bundles the three policies' configured resident-page caps
// so the cross-policy eviction chains below can compare against all
// three regardless of which policy is actually short on room.
type thresholds struct {
	keep, lru, fifo int
}

// policyTables are the three engine-wide containers backing eviction
// (§4.3): KEEP, LRU and FIFO each hold the page ids of every resident
// page currently tagged to that policy, across every open descriptor.
// A descriptor only ever inserts/removes/touches the table matching
// its own policy, but evicting is allowed to borrow a victim from any
// of the three via the fallback chains below — a FIFO-heavy file can
// make room for a KEEP file's next page, and vice versa. This mirrors
// the original cache manager's rp_lru/rp_keep/rp_fifo, which all read
// from the same three process-wide page sets rather than anything
// scoped to one open file.
//
// Every method is called with the engine mutex held, matching every
// other structural table in the package (pageIndex, prefixPool).
type policyTables struct {
	keep orderedPageList
	lru  orderedPageList
	fifo orderedPageList
}

func newPolicyTables() *policyTables {
	return &policyTables{}
}

func (t *policyTables) listFor(p interf.Policy) *orderedPageList {
	switch p {
	case interf.PolicyLRU:
		return &t.lru
	case interf.PolicyFIFO:
		return &t.fifo
	default:
		return &t.keep
	}
}

// insert charges page to p's table.
func (t *policyTables) insert(page uint64, p interf.Policy) {
	t.listFor(p).pushFront(page)
}

// remove drops page from p's table, e.g. once it has actually been
// evicted or its descriptor has been torn down.
func (t *policyTables) remove(page uint64, p interf.Policy) {
	t.listFor(p).remove(page)
}

// touch re-orders page within p's table on access. KEEP and LRU move
// it to the front (re-insert with updated last_use); FIFO leaves
// insertion order untouched — only the frame's own last_use changes,
// which the caller sets before calling touch.
func (t *policyTables) touch(page uint64, p interf.Policy) {
	if p == interf.PolicyFIFO {
		return
	}
	t.listFor(p).touch(page)
}

// retag moves every page in pages from table "from" to table "to",
// used when open() reuses a descriptor under a different policy than
// it held before (§4.2: "re-tag resident pages if policy changed").
func (t *policyTables) retag(pages []uint64, from, to interf.Policy) {
	if from == to {
		return
	}
	for _, p := range pages {
		t.remove(p, from)
		t.insert(p, to)
	}
}

//--------------------------------------------------------------------------------------------------------------------

// evict picks a victim page for a frame allocation charged to policy
// p, following §4.3's per-policy fallback chain, and reports which
// table the victim actually came from — eviction is allowed to borrow
// across policies, so the victim's table does not necessarily match
// p. ok=false is eviction starvation: none of the three chains yielded
// a victim.
func (t *policyTables) evict(p interf.Policy, pages *pageIndex, tick uint64, th thresholds) (page uint64, tag interf.Policy, ok bool) {
	switch p {
	case interf.PolicyLRU:
		return t.evictLRU(pages, tick, th)
	case interf.PolicyFIFO:
		return t.evictFIFO(pages, tick, th)
	default:
		return t.evictKeep(pages, tick, th)
	}
}

// evictKeep: prefer the oldest FIFO page once FIFO is above its
// threshold; else an aged LRU page; else
// one of the two oldest KEEP pages, but only once KEEP itself holds
// more than half its threshold.
func (t *policyTables) evictKeep(pages *pageIndex, tick uint64, th thresholds) (uint64, interf.Policy, bool) {
	if t.fifo.len() > th.fifo {
		p, _ := t.fifo.back()
		return p, interf.PolicyFIFO, true
	}
	if p, ok := agedVictim(&t.lru, pages, tick, th.lru); ok {
		return p, interf.PolicyLRU, true
	}
	if t.keep.len() > th.keep/2 {
		p, _ := twoOldest(&t.keep)
		return p, interf.PolicyKeep, true
	}
	return 0, 0, false
}

// evictLRU: an aged LRU page first; else the oldest FIFO page once
// FIFO is above its threshold; else the oldest LRU page once LRU holds
// more than two entries.
func (t *policyTables) evictLRU(pages *pageIndex, tick uint64, th thresholds) (uint64, interf.Policy, bool) {
	if p, ok := agedVictim(&t.lru, pages, tick, th.lru); ok {
		return p, interf.PolicyLRU, true
	}
	if t.fifo.len() > th.fifo {
		p, _ := t.fifo.back()
		return p, interf.PolicyFIFO, true
	}
	if t.lru.len() > 2 {
		p, _ := t.lru.back()
		return p, interf.PolicyLRU, true
	}
	return 0, 0, false
}

// evictFIFO: the oldest FIFO page above threshold; else an aged LRU
// page; else the oldest FIFO page once above half its threshold.
func (t *policyTables) evictFIFO(pages *pageIndex, tick uint64, th thresholds) (uint64, interf.Policy, bool) {
	if t.fifo.len() > th.fifo {
		p, _ := t.fifo.back()
		return p, interf.PolicyFIFO, true
	}
	if p, ok := agedVictim(&t.lru, pages, tick, th.lru); ok {
		return p, interf.PolicyLRU, true
	}
	if t.fifo.len() > th.fifo/2 {
		p, _ := t.fifo.back()
		return p, interf.PolicyFIFO, true
	}
	return 0, 0, false
}

// agedVictim reports whether l's oldest entry has sat untouched for
// longer than thresh ticks (tick − last_use > LRU_THRESHOLD), and if
// so picks one of its two oldest entries via the random tie-break.
func agedVictim(l *orderedPageList, pages *pageIndex, tick uint64, thresh int) (uint64, bool) {
	back, ok := l.back()
	if !ok {
		return 0, false
	}
	f, ok := pages.lookup(back)
	if !ok || tick-f.lastUse <= uint64(thresh) {
		return 0, false
	}
	return twoOldest(l)
}

//--------------------------------------------------------------------------------------------------------------------

// orderedPageList is a front-to-back sequence of page ids: front is
// the most recently inserted or touched entry, back is the oldest. It
// backs all three engine-wide policy tables.
type orderedPageList struct {
	items []uint64
}

func (l *orderedPageList) pushFront(p uint64) {
	l.items = append(l.items, 0)
	copy(l.items[1:], l.items)
	l.items[0] = p
}

func (l *orderedPageList) remove(p uint64) bool {
	for i, q := range l.items {
		if q == p {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

// touch moves p to the front; a no-op if p isn't present.
func (l *orderedPageList) touch(p uint64) {
	if l.remove(p) {
		l.pushFront(p)
	}
}

func (l *orderedPageList) back() (uint64, bool) {
	if len(l.items) == 0 {
		return 0, false
	}
	return l.items[len(l.items)-1], true
}

func (l *orderedPageList) len() int { return len(l.items) }

// twoOldest returns one of l's two oldest (back-most) entries, picked
// at random: the purpose is to slightly randomize replacement so a
// pathological access pattern does not deterministically re-evict the
// just-loaded page. A single entry is returned outright.
func twoOldest(l *orderedPageList) (uint64, bool) {
	n := len(l.items)
	if n == 0 {
		return 0, false
	}
	if n == 1 || rand.Intn(2) == 0 {
		return l.items[n-1], true
	}
	return l.items[n-2], true
}
