// Package impl implements the paged, write-back file cache: a fixed
// pool of fixed-size frames multiplexed across any number of open
// files, each governed by one of three per-file replacement policies,
// with all backend I/O funneled through a single worker draining a
// control queue. Everything above the backend boundary (interf.Backend)
// is storage-agnostic; see backends/localfs, backends/ram and
// backends/gdrive for concrete drivers.
package impl

import (
	"sync"

	interf "github.com/pagewright/pagecache/interfaces"
)

// Engine is the cache engine: one fixed frame pool, one backend, and
// any number of concurrently open Descriptors multiplexed across it.
type Engine struct {
	cfg     *config
	backend interf.Backend

	pool     *framePool
	pages    *pageIndex
	prefixes *prefixPool
	policies *policyTables
	queue    *ctrlQueue

	mu          sync.Mutex // the engine mutex: descriptor/path tables, page index, pool free list, tick
	descriptors map[interf.Handle]*Descriptor
	byPath      map[string]*Descriptor
	byPrefix    map[uint32]*Descriptor
	nextHandle  interf.Handle
	tick        uint64

	stat    *stat
	metrics *metrics

	workerDone chan struct{}
}

var _ interf.Engine = (*Engine)(nil)

// New builds an Engine backed by backend and starts its I/O worker.
func New(backend interf.Backend, opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	log = cfg.logger

	e := &Engine{
		cfg:         cfg,
		backend:     backend,
		pool:        newFramePool(cfg.frameCount, cfg.pageSize),
		pages:       newPageIndex(),
		prefixes:    newPrefixPool(),
		policies:    newPolicyTables(),
		queue:       newCtrlQueue(),
		descriptors: make(map[interf.Handle]*Descriptor),
		byPath:      make(map[string]*Descriptor),
		byPrefix:    make(map[uint32]*Descriptor),
		stat:        newStat(cfg.debugLvl),
		metrics:     newMetrics(cfg.registerer),
		workerDone:  make(chan struct{}),
	}
	go e.runWorker()
	return e
}

// Shutdown stops the I/O worker once it has drained the ops already
// queued. It issues no FLUSH of its own; call Flush or PermanentClose
// on every live handle first to be sure every dirty frame is written.
func (e *Engine) Shutdown() {
	e.queue.signalQuit()
	<-e.workerDone
}

// Stat returns a snapshot of the engine's debug counters (Loads,
// Evictions, CacheHits, ...), omitting any that are still zero. As a
// side effect it also refreshes the frames gauge in metrics.go, since
// frame occupancy has no dedicated event to hook and is cheapest to
// compute on demand rather than maintained incrementally.
func (e *Engine) Stat() map[string]uint64 {
	e.mu.Lock()
	free, resident, dirty := e.pool.occupancy()
	e.mu.Unlock()
	e.metrics.setFrames("free", float64(free))
	e.metrics.setFrames("resident", float64(resident))
	e.metrics.setFrames("dirty", float64(dirty))

	return e.stat.Stat()
}

//--------------------------------------------------------------------------------------------------------------------

// Open opens path through the engine's backend, in the given mode and
// with the given replacement policy. A path already open through this
// Engine fails with ErrAlreadyInUse; reopening a path that was Close'd
// (but not PermanentClose'd) reuses its descriptor and resident pages,
// updating mode and policy to the ones just requested.
func (e *Engine) Open(path string, mode interf.Mode, policy interf.Policy) (interf.Handle, error) {
	e.mu.Lock()
	if d, ok := e.byPath[path]; ok {
		if d.active {
			e.mu.Unlock()
			e.metrics.observeOp("open", "already_in_use")
			return 0, interf.ErrAlreadyInUse
		}
		d.active = true // claim it now so a concurrent Open sees active=true
		h := d.handle
		oldPolicy := d.policy
		e.mu.Unlock()

		bh, err := e.backend.Open(path, mode)
		if err != nil {
			e.mu.Lock()
			d.active = false
			e.mu.Unlock()
			e.metrics.observeOp("open", "backend_error")
			return 0, wrapf(err, "reopen %q", path)
		}

		e.mu.Lock()
		d.backendHandle = bh
		d.mode = mode
		if policy != oldPolicy {
			e.policies.retag(e.pages.pagesForPrefix(d.prefix), oldPolicy, policy)
		}
		d.policy = policy
		e.mu.Unlock()

		e.metrics.observeOp("open", "ok")
		return h, nil
	}

	prefix, err := e.prefixes.acquire()
	if err != nil {
		e.mu.Unlock()
		e.metrics.observeOp("open", "no_prefix")
		return 0, wrap(err, "acquire descriptor prefix")
	}

	e.nextHandle++
	h := e.nextHandle
	d := newDescriptor(h, prefix, path, mode, policy, e.backend)
	d.active = true
	e.byPath[path] = d
	e.descriptors[h] = d
	e.byPrefix[prefix] = d
	e.mu.Unlock()

	bh, err := e.backend.Open(path, mode)
	if err != nil {
		e.mu.Lock()
		delete(e.byPath, path)
		delete(e.descriptors, h)
		delete(e.byPrefix, prefix)
		e.mu.Unlock()
		e.prefixes.release(prefix)
		e.metrics.observeOp("open", "backend_error")
		return 0, wrapf(err, "open %q", path)
	}

	e.mu.Lock()
	d.backendHandle = bh
	e.mu.Unlock()

	if n, err := e.backend.Len(bh); err == nil {
		e.mu.Lock()
		d.size = n
		e.mu.Unlock()
	}

	e.metrics.observeOp("open", "ok")
	return h, nil
}

// lookup returns the descriptor behind h, or errInvalidHandle.
func (e *Engine) lookup(h interf.Handle) (*Descriptor, error) {
	e.mu.Lock()
	d, ok := e.descriptors[h]
	e.mu.Unlock()
	if !ok || !d.valid {
		return nil, errInvalidHandle
	}
	return d, nil
}

//--------------------------------------------------------------------------------------------------------------------

// closeBackend drains h's dirty frames and closes its backend handle,
// then marks it inactive. The descriptor, its resident pages, its
// Handle and its prefix all survive this call.
func (e *Engine) closeBackend(d *Descriptor) error {
	// FLUSH_CLOSE inline-flushes every dirty resident frame itself and
	// then releases the backend handle, so anything still sitting in
	// the queue for this descriptor is either redundant (a STORE) or
	// about to load into a handle that's going away (a LOAD). Drop both
	// before the handle is gone rather than let the worker later run a
	// backend op against a nilled handle.
	e.cancelAllPending(d)
	done := make(chan error, 1)
	e.queue.pushFront(&ctrlItem{op: opFlushClose, desc: d, done: done})
	err := <-done

	e.mu.Lock()
	d.active = false
	d.backendHandle = nil
	e.mu.Unlock()
	return err
}

// Close flushes h's dirty frames and releases its backend handle.
// Calling Close on an already-inactive handle is a no-op.
func (e *Engine) Close(h interf.Handle) error {
	d, err := e.lookup(h)
	if err != nil {
		return err
	}
	e.mu.Lock()
	active := d.active
	e.mu.Unlock()
	if !active {
		return nil
	}

	err = e.closeBackend(d)
	e.metrics.observeOp("close", resultOf(err))
	return wrap(err, "close")
}

// PermanentClose behaves like Close and then erases every trace of h:
// its resident frames return to the pool, its prefix returns to the
// prefix pool, and h itself becomes invalid.
func (e *Engine) PermanentClose(h interf.Handle) error {
	d, err := e.lookup(h)
	if err != nil {
		return err
	}

	e.mu.Lock()
	active := d.active
	e.mu.Unlock()

	var opErr error
	if active {
		opErr = e.closeBackend(d)
	} else {
		for _, item := range e.queue.cancelPendingStores(d, nil) {
			item.complete(nil)
		}
		done := make(chan error, 1)
		e.queue.pushFront(&ctrlItem{op: opFlush, desc: d, done: done})
		opErr = <-done
	}

	e.mu.Lock()
	d.valid = false
	for page, f := range d.resident {
		e.pages.remove(page)
		e.policies.remove(page, d.policy)
		d.clearReady(f)
		f.setOwningPage(noPage)
		e.pool.give(f)
	}
	d.resident = nil
	delete(e.byPath, d.path)
	delete(e.descriptors, h)
	delete(e.byPrefix, d.prefix)
	e.prefixes.release(d.prefix)
	e.mu.Unlock()

	e.metrics.observeOp("permanent_close", resultOf(opErr))
	return wrap(opErr, "permanent close")
}

// Flush writes back every dirty frame belonging to h without closing
// it.
func (e *Engine) Flush(h interf.Handle) error {
	d, err := e.lookup(h)
	if err != nil {
		return err
	}
	// The FLUSH op itself performs an inline STORE for every dirty
	// resident frame, so any STORE already queued for this descriptor
	// is now redundant; drop it before pushing FLUSH ahead of it.
	for _, item := range e.queue.cancelPendingStores(d, nil) {
		item.complete(nil)
	}
	done := make(chan error, 1)
	e.queue.pushFront(&ctrlItem{op: opFlush, desc: d, done: done})
	err = <-done
	e.metrics.observeOp("flush", resultOf(err))
	return wrap(err, "flush")
}

//--------------------------------------------------------------------------------------------------------------------

// Read copies len(buf) bytes starting at h's cursor into buf, splicing
// across as many pages as necessary, and advances the cursor by
// len(buf). Bytes at or past end-of-file read back as zero, exactly as
// if the file were mapped into memory with trailing zero pages.
func (e *Engine) Read(h interf.Handle, buf []byte) (int, error) {
	d, err := e.lookup(h)
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}

	ps := int64(e.cfg.pageSize)
	read := 0
	for read < len(buf) {
		pos := d.pos
		pageOff := pos - pos%ps

		f, err := e.getOrAlloc(d, pageOff)
		if err != nil {
			e.metrics.observeOp("read", "io_error")
			return read, wrap(err, "load page")
		}

		inPage := int(pos - pageOff)
		want := len(buf) - read
		if room := int(ps) - inPage; want > room {
			want = room
		}

		d.dataMu.RLock()
		n := copy(buf[read:read+want], f.buf[inPage:inPage+want])
		d.dataMu.RUnlock()

		read += n
		d.pos += int64(n)
	}

	e.checkCacheRange(d, d.pos, interf.LenUnspecified)
	e.metrics.observeOp("read", "ok")
	return read, nil
}

// Write copies len(buf) bytes from buf into h's cache starting at its
// cursor, marking every touched page dirty and scheduling it for
// writeback, then advances the cursor. The write is visible to
// subsequent reads immediately; persistence to the backend happens
// asynchronously unless the caller later calls Flush.
func (e *Engine) Write(h interf.Handle, buf []byte) (int, error) {
	d, err := e.lookup(h)
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}

	ps := int64(e.cfg.pageSize)
	written := 0
	for written < len(buf) {
		pos := d.pos
		pageOff := pos - pos%ps

		f, err := e.getOrAlloc(d, pageOff)
		if err != nil {
			e.metrics.observeOp("write", "io_error")
			return written, wrap(err, "load page")
		}

		inPage := int(pos - pageOff)
		room := int(ps) - inPage
		want := len(buf) - written
		if want > room {
			want = room
		}

		d.dataMu.Lock()
		n := copy(f.buf[inPage:inPage+want], buf[written:written+want])
		if inPage+n > f.usedSize {
			f.usedSize = inPage + n
		}
		d.dataMu.Unlock()

		d.markDirty(f, true)
		e.queue.pushBack(&ctrlItem{op: opStore, desc: d, frame: f, page: uint64(pageOff)})

		written += n
		d.pos += int64(n)
		if d.size == interf.LenUnspecified || d.pos > d.size {
			d.size = d.pos
		}
	}

	e.checkCacheRange(d, d.pos, interf.LenUnspecified)
	e.metrics.observeOp("write", "ok")
	return written, nil
}

// Seek repositions h's cursor per whence and cancels any outstanding
// prefetch the new position has made pointless.
func (e *Engine) Seek(h interf.Handle, offset int64, whence interf.Whence) (int64, error) {
	d, err := e.lookup(h)
	if err != nil {
		return 0, err
	}

	var base int64
	switch whence {
	case interf.WhenceSet:
		base = 0
	case interf.WhenceCur:
		base = d.pos
	case interf.WhenceEnd:
		n, err := e.GetLen(h)
		if err != nil {
			return 0, err
		}
		base = n
	default:
		return 0, interf.ErrInvalidParameter
	}

	newPos := base + offset
	if newPos < 0 {
		return 0, interf.ErrInvalidParameter
	}
	d.pos = newPos

	ps := int64(e.cfg.pageSize)
	window := ps * int64(e.cfg.frameCount)
	start := newPos - newPos%ps
	canceled := e.queue.cancelPendingLoads(d, func(page uint64) bool {
		off := pageOffset(page)
		return off < start || off >= start+window
	})
	e.stat.seekCancel(len(canceled))
	if len(canceled) > 0 {
		e.mu.Lock()
		for _, item := range canceled {
			e.untrack(d, item.page)
		}
		e.mu.Unlock()
	}
	for _, item := range canceled {
		item.complete(interf.ErrUnavailable)
	}

	return newPos, nil
}

// GetLen returns the larger of h's cached length and its backend's
// current length, refreshing the cached value. If h is currently
// inactive (Close'd but not reopened), the cached value alone is
// returned since there's no backend handle to query.
func (e *Engine) GetLen(h interf.Handle) (int64, error) {
	d, err := e.lookup(h)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	active := d.active
	bh := d.backendHandle
	cached := d.size
	e.mu.Unlock()

	if !active {
		if cached == interf.LenUnspecified {
			return 0, nil
		}
		return cached, nil
	}

	n, err := d.backend.Len(bh)
	if err != nil {
		return cached, wrap(err, "backend length")
	}
	if cached == interf.LenUnspecified || n > cached {
		cached = n
	}

	e.mu.Lock()
	d.size = cached
	e.mu.Unlock()
	return cached, nil
}

// EOFReached reports whether the last backend I/O issued for h
// observed end-of-file.
func (e *Engine) EOFReached(h interf.Handle) (bool, error) {
	d, err := e.lookup(h)
	if err != nil {
		return false, err
	}
	return d.sawEOF(), nil
}

// FileExists reports whether path can be opened by the engine's
// backend, without creating a descriptor for it.
func (e *Engine) FileExists(path string) bool {
	bh, err := e.backend.Open(path, interf.ModeRead)
	if err != nil {
		return false
	}
	_ = e.backend.Close(bh)
	return true
}

// CheckCache ensures the pages covering [offset, offset+length)
// (offset is h's current cursor) are resident, enqueuing loads for
// misses without waiting for them to complete. length ==
// LenUnspecified prefetches DefaultPrefetchPages pages instead.
func (e *Engine) CheckCache(h interf.Handle, length int64) error {
	d, err := e.lookup(h)
	if err != nil {
		return err
	}
	e.checkCacheRange(d, d.pos, length)
	return nil
}

//--------------------------------------------------------------------------------------------------------------------

// checkCacheRange enqueues non-blocking LOADs for every page covering
// [offset, offset+length) that isn't already resident. length ==
// LenUnspecified prefetches DefaultPrefetchPages pages starting at
// offset's page instead of a caller-given span.
func (e *Engine) checkCacheRange(d *Descriptor, offset, length int64) {
	ps := int64(e.cfg.pageSize)
	start := offset - offset%ps

	pages := interf.DefaultPrefetchPages
	if length != interf.LenUnspecified {
		if length <= 0 {
			return
		}
		end := offset + length
		pages = int((end - start + ps - 1) / ps)
	}

	for i := 0; i < pages; i++ {
		off := start + int64(i)*ps
		e.queuePrefetch(d, off)
	}
}

// queuePrefetch enqueues a non-blocking LOAD for the page at off
// within d, unless it's already resident or the pool has no frame to
// spare right now.
func (e *Engine) queuePrefetch(d *Descriptor, off int64) {
	e.mu.Lock()
	page := pageID(d.prefix, off)
	if _, already := d.resident[page]; already {
		e.mu.Unlock()
		return
	}
	f, ok := e.pool.take()
	if !ok {
		e.mu.Unlock()
		return // pool under pressure: skip prefetch rather than evict for it
	}
	e.tick++
	f.setOwningPage(page)
	f.setUsed(true)
	f.insTick = e.tick
	f.lastUse = e.tick
	d.resident[page] = f
	e.pages.insert(page, f)
	e.policies.insert(page, d.policy)
	e.mu.Unlock()

	e.queue.pushBack(&ctrlItem{op: opLoad, desc: d, frame: f, page: page})
}

// untrack drops page from d's resident set, the page index and its
// policy table, then returns the frame to the pool without flushing
// it. Used only for a LOAD cancelled before it ever completed — the
// frame was never read or written, so there is nothing to store back.
// Called with e.mu held.
func (e *Engine) untrack(d *Descriptor, page uint64) {
	f, ok := d.resident[page]
	if !ok {
		return
	}
	delete(d.resident, page)
	e.pages.remove(page)
	e.policies.remove(page, d.policy)
	f.setOwningPage(noPage)
	e.pool.give(f)
}

// cancelAllPending drops every queued LOAD and STORE belonging to d —
// used ahead of FLUSH_CLOSE, which will itself inline-store every
// dirty resident frame and then release the backend handle, making
// anything still queued for d either redundant or doomed to run
// against a handle that is about to disappear. Every dropped LOAD's
// page is untracked, since it will never become ready; dropped STOREs
// are simply absorbed into the flush that follows.
func (e *Engine) cancelAllPending(d *Descriptor) {
	loads := e.queue.cancelPendingLoads(d, nil)
	stores := e.queue.cancelPendingStores(d, nil)

	if len(loads) > 0 {
		e.mu.Lock()
		for _, item := range loads {
			e.untrack(d, item.page)
		}
		e.mu.Unlock()
	}
	for _, item := range loads {
		item.complete(interf.ErrUnavailable)
	}
	for _, item := range stores {
		item.complete(nil)
	}
}

// getOrAlloc returns the frame backing the page at off within d,
// loading and/or evicting as necessary, and blocks until the frame is
// ready to read or write.
func (e *Engine) getOrAlloc(d *Descriptor, off int64) (*Frame, error) {
	page := pageID(d.prefix, off)

	e.mu.Lock()
	e.tick++
	thisTick := e.tick

	if f, ok := d.resident[page]; ok {
		f.lastUse = thisTick
		e.policies.touch(page, d.policy)
		e.mu.Unlock()
		e.stat.cache(true)
		d.waitReady(f)
		return f, d.lastErr
	}
	e.stat.cache(false)

	f, ok := e.pool.take()
	if !ok {
		f, ok = e.evictGlobalLocked(d.policy, thisTick)
		if !ok {
			e.mu.Unlock()
			return nil, interf.ErrUnavailable
		}
	}
	// Defensive: give() already refuses to free-list a dirty frame, so
	// this never actually blocks, but a free-list frame is handed to a
	// new owner without the old one's cooperation and the spec calls
	// for the check anyway.
	d.waitClean(f)

	f.setOwningPage(page)
	f.setUsed(true)
	f.insTick = thisTick
	f.lastUse = thisTick
	d.resident[page] = f
	e.pages.insert(page, f)
	e.policies.insert(page, d.policy)
	e.mu.Unlock()

	done := make(chan error, 1)
	e.queue.pushBack(&ctrlItem{op: opLoad, desc: d, frame: f, page: page, done: done})
	err := <-done
	return f, err
}

// reclaimLocked evicts victim, tagged to policy tag, from whichever
// descriptor currently owns it (not necessarily the one that triggered
// the allocation — eviction borrows across policies and across
// files), flushing it first if dirty. Called with e.mu held; briefly
// releases it to perform a synchronous store, matching the rest of the
// engine's "release before blocking" discipline.
func (e *Engine) reclaimLocked(d *Descriptor, victim uint64, tag interf.Policy) {
	f := d.resident[victim]
	if f == nil {
		return
	}
	e.mu.Unlock()
	if f.dirty {
		e.storeSync(d, f, victim)
	}
	d.waitReady(f)
	// Any STORE still sitting in the queue for this exact page is now
	// stale: the synchronous store above (if any) already wrote f's
	// current bytes, and the frame is about to be rebound to a
	// different page. Drop the leftovers so a future dequeue doesn't
	// write the new page's bytes to victim's old backend offset.
	e.queue.cancelPendingStores(d, func(p uint64) bool { return p == victim })
	// f's LOAD (if any) has been waited on above and any dirty bytes are
	// now flushed, so ready no longer describes a pending I/O. Clear it
	// before the rebind below or setOwningPage will refuse to hand the
	// frame to a different page.
	d.clearReady(f)
	e.mu.Lock()

	delete(d.resident, victim)
	e.pages.remove(victim)
	e.policies.remove(victim, tag)
	f.setOwningPage(noPage)
	e.pool.give(f)
	e.stat.eviction(victim, policyName(tag))
	e.metrics.observeEviction(policyName(tag))
}

// evictGlobalLocked reclaims a frame via the engine-wide policy tables
// on behalf of a new allocation charged to policy p (§4.3): the victim
// may belong to any open descriptor, including one running a different
// policy than p, per the cross-policy fallback chains in policy.go.
// Called with e.mu held.
func (e *Engine) evictGlobalLocked(p interf.Policy, tick uint64) (*Frame, bool) {
	th := thresholds{
		keep: e.cfg.thresholds[interf.PolicyKeep],
		lru:  e.cfg.thresholds[interf.PolicyLRU],
		fifo: e.cfg.thresholds[interf.PolicyFIFO],
	}
	victim, tag, ok := e.policies.evict(p, e.pages, tick, th)
	if !ok {
		return nil, false
	}
	owner, ok := e.byPrefix[pagePrefix(victim)]
	if !ok {
		// The table entry outlived its descriptor somehow; drop the
		// stale entry and let the caller's caller retry.
		e.policies.remove(victim, tag)
		return nil, false
	}

	e.reclaimLocked(owner, victim, tag)
	// reclaimLocked returned the frame to the pool free list; pop it
	// straight back off rather than leaving it there for someone else
	// to take while we still mean to use it ourselves.
	return e.pool.take()
}

// storeSync writes f back to the backend synchronously and clears its
// dirty flag, for use on the eviction path where the caller must block
// until the write completes before reusing the frame.
func (e *Engine) storeSync(d *Descriptor, f *Frame, page uint64) {
	done := make(chan error, 1)
	item := &ctrlItem{op: opStore, desc: d, frame: f, page: page, done: done}
	e.queue.pushFront(item)
	<-done
}

func policyName(p interf.Policy) string {
	switch p {
	case interf.PolicyLRU:
		return "lru"
	case interf.PolicyFIFO:
		return "fifo"
	default:
		return "keep"
	}
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
