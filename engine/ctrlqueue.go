package impl

import "sync"

// ctrlOp names the five operations the I/O worker understands.
type ctrlOp uint8

const (
	opLoad       ctrlOp = iota // bring a page in from the backend
	opStore                    // write a dirty page out to the backend
	opFlush                    // drain all pending STOREs for a descriptor
	opFlushClose               // flush, then release the descriptor's backend handle
	opQuit                     // stop the worker loop
)

// ctrlItem is one entry in the control queue. page/frame are unused
// for opFlush/opFlushClose/opQuit. done, if non-nil, is closed (with
// err set) once the worker has finished processing the item, letting a
// caller block on completion (Flush, PermanentClose, and synchronous
// writes all do this).
type ctrlItem struct {
	op    ctrlOp
	desc  *Descriptor
	frame *Frame
	page  uint64

	done chan error
}

func (c *ctrlItem) complete(err error) {
	if c.done != nil {
		c.done <- err
		close(c.done)
	}
}

// ctrlQueue is a FIFO control queue with a priority lane: pushFront
// jumps a small number of urgent items (FLUSH, FLUSH_CLOSE, and the
// synchronous STORE issued on eviction) ahead of ordinary LOAD/STORE
// traffic.
type ctrlQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []*ctrlItem
	quit  bool
}

func newCtrlQueue() *ctrlQueue {
	q := &ctrlQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// pushBack enqueues item as ordinary traffic.
func (q *ctrlQueue) pushBack(item *ctrlItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.cond.Signal()
}

// pushFront enqueues item ahead of everything currently waiting.
func (q *ctrlQueue) pushFront(item *ctrlItem) {
	q.mu.Lock()
	q.items = append([]*ctrlItem{item}, q.items...)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until an item is available or the queue has been told to
// quit, in which case it returns nil.
func (q *ctrlQueue) pop() *ctrlItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.quit {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item
}

// signalQuit wakes the worker loop so it observes quit and exits even
// if no opQuit item was ever pushed.
func (q *ctrlQueue) signalQuit() {
	q.mu.Lock()
	q.quit = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// cancelPendingLoads removes and returns every queued LOAD belonging to
// desc and matching page; a nil match drops every queued LOAD for desc.
// Used by Seek to drop prefetches the new position has made pointless,
// and by cancelAllPending ahead of FLUSH_CLOSE, where every queued op
// for the descriptor is about to be invalidated by the backend handle
// closing. STOREs are never touched by this variant: a queued write
// represents data the caller already handed over, and dropping it on a
// mere cursor move would silently lose it.
func (q *ctrlQueue) cancelPendingLoads(desc *Descriptor, match func(page uint64) bool) []*ctrlItem {
	return q.cancelPendingOp(desc, opLoad, match)
}

// cancelPendingStores removes and returns every queued STORE belonging
// to desc and matching page; a nil match drops every queued STORE for
// desc. Used when a frame is about to be reclaimed and rebound to a
// different page (any STORE still queued against the old binding would
// otherwise write the new page's bytes to the old page's backend offset
// once it finally runs — the caller is expected to have already written
// the current bytes back synchronously before calling this), and by
// Flush/cancelAllPending, where an inline FLUSH/FLUSH_CLOSE is about to
// store every dirty frame itself, making any separately queued STORE
// for the same descriptor redundant.
func (q *ctrlQueue) cancelPendingStores(desc *Descriptor, match func(page uint64) bool) []*ctrlItem {
	return q.cancelPendingOp(desc, opStore, match)
}

func (q *ctrlQueue) cancelPendingOp(desc *Descriptor, op ctrlOp, match func(page uint64) bool) []*ctrlItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	var kept, canceled []*ctrlItem
	for _, item := range q.items {
		if item.desc == desc && item.op == op && (match == nil || match(item.page)) {
			canceled = append(canceled, item)
			continue
		}
		kept = append(kept, item)
	}
	q.items = kept
	return canceled
}
