package impl

import (
	"sync"
	"sync/atomic"

	interf "github.com/pagewright/pagecache/interfaces"
)

// Descriptor is the open-file state behind one Handle: backend
// position, cursor, policy, and the set of pages currently resident in
// the frame pool on its behalf. Exactly one Descriptor backs one
// Handle; a path can't be opened a second time while its descriptor is
// still active (Open fails with ErrAlreadyInUse).
//
// A Descriptor outlives Close: Close only releases backendHandle and
// flips active to false, so a later Open of the same path can hand
// back the same Handle and find its resident pages still warm.
// PermanentClose is what actually erases it.
type Descriptor struct {
	handle interf.Handle
	prefix uint32
	path   string
	mode   interf.Mode
	policy interf.Policy

	backend       interf.Backend
	backendHandle interf.BackendHandle
	active        bool // true while backendHandle is open

	// dataMu is the data-plane lock: holders may read or write the byte
	// buffers of any frame owned by this descriptor. The worker takes it
	// for the duration of a LOAD/STORE; Read/Write take it to copy
	// into/out of already-resident pages.
	dataMu sync.RWMutex

	// stateMu guards everything below it, including the ready/dirty
	// flags of every Frame currently owned by this descriptor.
	stateMu   sync.Mutex
	readyCond *sync.Cond
	cleanCond *sync.Cond

	size int64 // known length, interf.LenUnspecified if not yet observed
	pos  int64 // next byte to read/write
	eof  int32 // 1 if the last backend I/O observed end-of-file

	valid   bool // false once PermanentClose has erased this descriptor
	lastErr error

	resident map[uint64]*Frame // pages currently resident for this descriptor
}

func newDescriptor(handle interf.Handle, prefix uint32, path string, mode interf.Mode, policy interf.Policy, backend interf.Backend) *Descriptor {
	d := &Descriptor{
		handle:   handle,
		prefix:   prefix,
		path:     path,
		mode:     mode,
		policy:   policy,
		backend:  backend,
		size:     interf.LenUnspecified,
		valid:    true,
		resident: make(map[uint64]*Frame),
	}
	d.readyCond = sync.NewCond(&d.stateMu)
	d.cleanCond = sync.NewCond(&d.stateMu)
	return d
}

func (d *Descriptor) setEOF(v bool) {
	n := int32(0)
	if v {
		n = 1
	}
	atomic.StoreInt32(&d.eof, n)
}

func (d *Descriptor) sawEOF() bool {
	return atomic.LoadInt32(&d.eof) != 0
}

// waitReady blocks until f is ready, i.e. its LOAD has completed.
func (d *Descriptor) waitReady(f *Frame) {
	d.stateMu.Lock()
	for !f.ready {
		d.readyCond.Wait()
	}
	d.stateMu.Unlock()
}

// waitClean blocks until f is no longer dirty, i.e. any pending STORE
// for it has completed.
func (d *Descriptor) waitClean(f *Frame) {
	d.stateMu.Lock()
	for f.dirty {
		d.cleanCond.Wait()
	}
	d.stateMu.Unlock()
}

// markReady flips f.ready and wakes every waiter on this descriptor.
// Callers must not hold d.stateMu.
func (d *Descriptor) markReady(f *Frame) {
	d.stateMu.Lock()
	f.ready = true
	d.stateMu.Unlock()
	d.readyCond.Broadcast()
}

// clearReady resets f.ready once it has been fully evicted (its LOAD,
// if any, has already been waited on and any dirty bytes already
// stored), so setOwningPage will accept rebinding it to a new page.
func (d *Descriptor) clearReady(f *Frame) {
	d.stateMu.Lock()
	f.ready = false
	d.stateMu.Unlock()
}

// markDirty flips f.dirty. v=true requires f.ready already true.
func (d *Descriptor) markDirty(f *Frame, v bool) {
	d.stateMu.Lock()
	f.setDirty(v)
	d.stateMu.Unlock()
	if !v {
		d.cleanCond.Broadcast()
	}
}

// prefixPool hands out the 24-bit descriptor prefixes used to build
// page ids. Prefixes are released back to the pool on PermanentClose
// and reused, rather than handed out from a monotonic counter, so a
// long-lived engine never exhausts the 2^24 prefix space.
type prefixPool struct {
	mu   sync.Mutex
	free []uint32
	next uint32 // watermark, used while free is empty
}

func newPrefixPool() *prefixPool {
	return &prefixPool{}
}

func (p *prefixPool) acquire() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		pfx := p.free[n-1]
		p.free = p.free[:n-1]
		return pfx, nil
	}
	if p.next >= prefixMask { // prefixMask itself stays reserved
		return 0, interf.ErrUnavailable
	}
	pfx := p.next
	p.next++
	return pfx, nil
}

func (p *prefixPool) release(prefix uint32) {
	p.mu.Lock()
	p.free = append(p.free, prefix)
	p.mu.Unlock()
}
