package impl

// framePool is the fixed-size array of Frames the engine multiplexes
// every resident page across. Frames are never allocated or freed
// individually at runtime; only their owning_page/used bookkeeping
// changes. All methods are called with the engine mutex held.
type framePool struct {
	frames []*Frame
	free   []*Frame // owningPage == noPage && !used
}

func newFramePool(count, pageSize int) *framePool {
	p := &framePool{frames: make([]*Frame, count), free: make([]*Frame, 0, count)}
	for i := range p.frames {
		f := newFrame(i, pageSize)
		p.frames[i] = f
		p.free = append(p.free, f)
	}
	return p
}

// take pops a free frame, or returns ok=false if none remain.
func (p *framePool) take() (*Frame, bool) {
	n := len(p.free)
	if n == 0 {
		return nil, false
	}
	f := p.free[n-1]
	p.free = p.free[:n-1]
	return f, true
}

// give returns a reclaimed frame to the free list. Callers must have
// already reset owningPage to noPage and confirmed !ready && !dirty.
func (p *framePool) give(f *Frame) {
	f.setUsed(false)
	p.free = append(p.free, f)
}

// occupancy reports how many frames are free, resident (bound to a
// page), and dirty (resident with unwritten changes), for the frames
// gauge in metrics.go.
func (p *framePool) occupancy() (free, resident, dirty int) {
	free = len(p.free)
	for _, f := range p.frames {
		if f.owningPage != noPage {
			resident++
			if f.dirty {
				dirty++
			}
		}
	}
	return free, resident, dirty
}
