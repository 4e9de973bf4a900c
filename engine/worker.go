package impl

import (
	"io"
	"time"

	interf "github.com/pagewright/pagecache/interfaces"
)

// runWorker is the single background goroutine that drains the
// control queue and performs every byte of backend I/O the engine
// does. Nothing else reads or writes backend bytes: Read/Write only
// ever copy into or out of already-resident frames, and leave the
// actual LOAD or STORE to this loop (Open, GetLen, FileExists and
// Close only open, measure or close backend handles).
func (e *Engine) runWorker() {
	for {
		item := e.queue.pop()
		if item == nil {
			close(e.workerDone)
			return
		}
		switch item.op {
		case opLoad:
			e.processLoad(item)
		case opStore:
			e.processStore(item)
		case opFlush:
			e.processFlush(item, false)
		case opFlushClose:
			e.processFlush(item, true)
		case opQuit:
			item.complete(nil)
			close(e.workerDone)
			return
		}
	}
}

func (e *Engine) processLoad(item *ctrlItem) {
	d, f, page := item.desc, item.frame, item.page
	off := pageOffset(page)

	start := time.Now()
	d.dataMu.Lock()
	for i := range f.buf {
		f.buf[i] = 0
	}
	err := d.backend.Seek(d.backendHandle, off)
	n := 0
	if err == nil {
		n, err = readPage(d.backend, d.backendHandle, f.buf)
	}
	eofHit := err == io.EOF
	if eofHit {
		err = nil // a short or empty page at EOF is not a load failure
	}
	f.usedSize = n
	d.dataMu.Unlock()
	e.metrics.observeIO("load", time.Since(start).Seconds())

	d.setEOF(eofHit)
	d.markReady(f)
	d.lastErr = err
	if err != nil {
		log.WithError(err).WithField("page", page).Warn("pagecache: worker load failed")
	}
	e.stat.load(page, err)
	item.complete(err)
}

func (e *Engine) processStore(item *ctrlItem) {
	err := e.storeFrame(item.desc, item.frame, item.page)
	item.complete(err)
}

// storeFrame writes f's used bytes back to the backend at page and
// clears its dirty flag. Shared by processStore and processFlush.
func (e *Engine) storeFrame(d *Descriptor, f *Frame, page uint64) error {
	off := pageOffset(page)

	start := time.Now()
	d.dataMu.RLock()
	err := d.backend.Seek(d.backendHandle, off)
	if err == nil {
		_, err = d.backend.Write(d.backendHandle, f.buf[:f.usedSize])
	}
	d.dataMu.RUnlock()
	e.metrics.observeIO("store", time.Since(start).Seconds())

	d.markDirty(f, false)
	d.lastErr = err
	if err != nil {
		log.WithError(err).WithField("page", page).Warn("pagecache: worker store failed")
	}
	e.stat.store(page, err)
	return err
}

func (e *Engine) processFlush(item *ctrlItem, closeAfter bool) {
	d := item.desc

	e.mu.Lock()
	var dirtyFrames []*Frame
	var dirtyPages []uint64
	for page, f := range d.resident {
		if f.dirty {
			dirtyFrames = append(dirtyFrames, f)
			dirtyPages = append(dirtyPages, page)
		}
	}
	e.mu.Unlock()

	var firstErr error
	for i, f := range dirtyFrames {
		if err := e.storeFrame(d, f, dirtyPages[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if closeAfter {
		e.mu.Lock()
		bh := d.backendHandle
		e.mu.Unlock()
		if bh != nil {
			if err := d.backend.Close(bh); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	e.stat.flush(d.prefix, closeAfter)
	item.complete(firstErr)
}

// readPage fills buf completely from backend, treating a short final
// read as io.EOF rather than looping forever against a backend that
// legitimately has fewer bytes left than a full page.
func readPage(backend interf.Backend, h interf.BackendHandle, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := backend.Read(h, buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
	}
	return total, nil
}
