package impl

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Debug levels, matching the three-tier scheme the rest of the module
// uses: errors/warnings always surface, Low adds rare structural
// events, High adds every control-queue dispatch.
const (
	DebugOff  = 0
	DebugLow  = 1
	DebugHigh = 2
)

// stat holds the engine's free-running debug counters. All fields are
// updated with atomic ops so Stat() is safe to call concurrently with
// the worker and any number of Engine callers.
type stat struct {
	debugLvl int32

	loads       uint64
	loadErrs    uint64
	stores      uint64
	storeErrs   uint64
	flushes     uint64
	flushCloses uint64
	evictions   uint64
	cacheHits   uint64
	cacheMisses uint64
	seekCancels uint64
}

func newStat(debugLvl int) *stat {
	return &stat{debugLvl: int32(debugLvl)}
}

// Stat returns a snapshot of every non-zero counter, keyed by name.
func (s *stat) Stat() map[string]uint64 {
	ret := map[string]uint64{
		"Loads":       atomic.LoadUint64(&s.loads),
		"LoadErrs":    atomic.LoadUint64(&s.loadErrs),
		"Stores":      atomic.LoadUint64(&s.stores),
		"StoreErrs":   atomic.LoadUint64(&s.storeErrs),
		"Flushes":     atomic.LoadUint64(&s.flushes),
		"FlushCloses": atomic.LoadUint64(&s.flushCloses),
		"Evictions":   atomic.LoadUint64(&s.evictions),
		"CacheHits":   atomic.LoadUint64(&s.cacheHits),
		"CacheMisses": atomic.LoadUint64(&s.cacheMisses),
		"SeekCancels": atomic.LoadUint64(&s.seekCancels),
	}
	for k, v := range ret {
		if v == 0 {
			delete(ret, k)
		}
	}
	return ret
}

func (s *stat) level() int32 { return atomic.LoadInt32(&s.debugLvl) }

func (s *stat) load(page uint64, err error) {
	atomic.AddUint64(&s.loads, 1)
	if err != nil {
		atomic.AddUint64(&s.loadErrs, 1)
	}
	if s.level() >= DebugHigh {
		log.WithFields(logrus.Fields{"page": page, "err": err}).Debug("pagecache: worker load")
	}
}

func (s *stat) store(page uint64, err error) {
	atomic.AddUint64(&s.stores, 1)
	if err != nil {
		atomic.AddUint64(&s.storeErrs, 1)
	}
	if s.level() >= DebugHigh {
		log.WithFields(logrus.Fields{"page": page, "err": err}).Debug("pagecache: worker store")
	}
}

func (s *stat) flush(prefix uint32, close bool) {
	if close {
		atomic.AddUint64(&s.flushCloses, 1)
	} else {
		atomic.AddUint64(&s.flushes, 1)
	}
	if s.level() >= DebugLow {
		log.WithFields(logrus.Fields{"prefix": prefix, "close": close}).Debug("pagecache: worker flush")
	}
}

func (s *stat) eviction(page uint64, policy string) {
	atomic.AddUint64(&s.evictions, 1)
	if s.level() >= DebugHigh {
		log.WithFields(logrus.Fields{"page": page, "policy": policy}).Debug("pagecache: evicted page")
	}
}

func (s *stat) cache(hit bool) {
	if hit {
		atomic.AddUint64(&s.cacheHits, 1)
	} else {
		atomic.AddUint64(&s.cacheMisses, 1)
	}
}

func (s *stat) seekCancel(n int) {
	if n <= 0 {
		return
	}
	atomic.AddUint64(&s.seekCancels, uint64(n))
	if s.level() >= DebugHigh {
		log.WithFields(logrus.Fields{"count": n}).Debug("pagecache: seek canceled prefetch")
	}
}
