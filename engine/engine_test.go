package impl_test

import (
	"bytes"
	"sync"
	"testing"

	impl "github.com/pagewright/pagecache/engine"
	interf "github.com/pagewright/pagecache/interfaces"
	"github.com/pagewright/pagecache/backends/ram"
)

func Test_OpenReadWrite_RoundTrip(t *testing.T) {
	backend := ram.New()
	e := impl.New(backend)
	defer e.Shutdown()

	h, err := e.Open("greeting.txt", interf.ModeReadWrite, interf.PolicyLRU)
	if err != nil {
		t.Fatalf("test error: open: %v", err)
	}

	want := []byte("hello, paged cache")
	if n, err := e.Write(h, want); err != nil || n != len(want) {
		t.Fatalf("test error: write: n=%d, err=%v", n, err)
	}
	if err := e.Flush(h); err != nil {
		t.Fatalf("test error: flush: %v", err)
	}

	if _, err := e.Seek(h, 0, interf.WhenceSet); err != nil {
		t.Fatalf("test error: seek: %v", err)
	}
	got := make([]byte, len(want))
	if n, err := e.Read(h, got); err != nil || n != len(want) {
		t.Fatalf("test error: read: n=%d, err=%v", n, err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("test error: got %q, want %q", got, want)
	}

	if snap := backend.Snapshot("greeting.txt"); !bytes.Equal(snap, want) {
		t.Fatalf("test error: backend snapshot %q, want %q", snap, want)
	}
}

func Test_Open_AlreadyInUse(t *testing.T) {
	backend := ram.New()
	e := impl.New(backend)
	defer e.Shutdown()

	if _, err := e.Open("f.dat", interf.ModeReadWrite, interf.PolicyLRU); err != nil {
		t.Fatalf("test error: first open: %v", err)
	}
	if _, err := e.Open("f.dat", interf.ModeReadWrite, interf.PolicyLRU); err != interf.ErrAlreadyInUse {
		t.Fatalf("test error: second open: got %v, want ErrAlreadyInUse", err)
	}
}

func Test_Close_Reopen_KeepsResidentPages(t *testing.T) {
	backend := ram.New()
	e := impl.New(backend)
	defer e.Shutdown()

	h, err := e.Open("warm.dat", interf.ModeReadWrite, interf.PolicyLRU)
	if err != nil {
		t.Fatalf("test error: open: %v", err)
	}
	payload := bytes.Repeat([]byte("x"), 100)
	if _, err := e.Write(h, payload); err != nil {
		t.Fatalf("test error: write: %v", err)
	}
	if err := e.Close(h); err != nil {
		t.Fatalf("test error: close: %v", err)
	}

	// Open is already in use only while active; after Close the same
	// path must be reopenable and must hand back the same handle.
	h2, err := e.Open("warm.dat", interf.ModeReadWrite, interf.PolicyLRU)
	if err != nil {
		t.Fatalf("test error: reopen: %v", err)
	}
	if h2 != h {
		t.Fatalf("test error: reopen handle %v, want original %v", h2, h)
	}

	if _, err := e.Seek(h2, 0, interf.WhenceSet); err != nil {
		t.Fatalf("test error: seek: %v", err)
	}
	got := make([]byte, len(payload))
	if _, err := e.Read(h2, got); err != nil {
		t.Fatalf("test error: read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("test error: got %q, want %q", got, payload)
	}
}

func Test_PermanentClose_InvalidatesHandle(t *testing.T) {
	backend := ram.New()
	e := impl.New(backend)
	defer e.Shutdown()

	h, err := e.Open("gone.dat", interf.ModeReadWrite, interf.PolicyLRU)
	if err != nil {
		t.Fatalf("test error: open: %v", err)
	}
	if err := e.PermanentClose(h); err != nil {
		t.Fatalf("test error: permanent close: %v", err)
	}

	if _, err := e.Read(h, make([]byte, 1)); err == nil {
		t.Fatalf("test error: read after permanent close should fail")
	}
	if _, err := e.GetLen(h); err == nil {
		t.Fatalf("test error: get len after permanent close should fail")
	}

	// The path must be reopenable as a brand-new descriptor.
	h2, err := e.Open("gone.dat", interf.ModeReadWrite, interf.PolicyLRU)
	if err != nil {
		t.Fatalf("test error: reopen after permanent close: %v", err)
	}
	if h2 == h {
		t.Fatalf("test error: reopen after permanent close reused old handle %v", h)
	}
}

func Test_Read_PastEOF_ZeroFilled(t *testing.T) {
	backend := ram.New()
	backend.Seed("short.dat", []byte("abc"))
	e := impl.New(backend)
	defer e.Shutdown()

	h, err := e.Open("short.dat", interf.ModeRead, interf.PolicyLRU)
	if err != nil {
		t.Fatalf("test error: open: %v", err)
	}

	buf := make([]byte, 10)
	n, err := e.Read(h, buf)
	if err != nil {
		t.Fatalf("test error: read: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("test error: read returned n=%d, want %d", n, len(buf))
	}
	want := []byte{'a', 'b', 'c', 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(buf, want) {
		t.Fatalf("test error: got %v, want %v", buf, want)
	}

	eof, err := e.EOFReached(h)
	if err != nil {
		t.Fatalf("test error: eof reached: %v", err)
	}
	if !eof {
		t.Fatalf("test error: expected EOFReached to be true after reading past end")
	}
}

func Test_CrossPage_ReadWrite(t *testing.T) {
	backend := ram.New()
	e := impl.New(backend, impl.WithPageSize(8), impl.WithFrameCount(4))
	defer e.Shutdown()

	h, err := e.Open("spanning.dat", interf.ModeReadWrite, interf.PolicyLRU)
	if err != nil {
		t.Fatalf("test error: open: %v", err)
	}

	payload := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	if n, err := e.Write(h, payload); err != nil || n != len(payload) {
		t.Fatalf("test error: write: n=%d, err=%v", n, err)
	}
	if err := e.Flush(h); err != nil {
		t.Fatalf("test error: flush: %v", err)
	}
	if _, err := e.Seek(h, 0, interf.WhenceSet); err != nil {
		t.Fatalf("test error: seek: %v", err)
	}

	got := make([]byte, len(payload))
	if n, err := e.Read(h, got); err != nil || n != len(payload) {
		t.Fatalf("test error: read: n=%d, err=%v", n, err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("test error: got %q, want %q", got, payload)
	}
}

func Test_GetLen_TracksMax(t *testing.T) {
	backend := ram.New()
	backend.Seed("grown.dat", bytes.Repeat([]byte("y"), 50))
	e := impl.New(backend)
	defer e.Shutdown()

	h, err := e.Open("grown.dat", interf.ModeReadWrite, interf.PolicyLRU)
	if err != nil {
		t.Fatalf("test error: open: %v", err)
	}
	n, err := e.GetLen(h)
	if err != nil || n != 50 {
		t.Fatalf("test error: get len: n=%d, err=%v", n, err)
	}

	if _, err := e.Seek(h, 100, interf.WhenceSet); err != nil {
		t.Fatalf("test error: seek: %v", err)
	}
	if _, err := e.Write(h, []byte("z")); err != nil {
		t.Fatalf("test error: write: %v", err)
	}
	n, err = e.GetLen(h)
	if err != nil || n != 101 {
		t.Fatalf("test error: get len after growth: n=%d, err=%v", n, err)
	}
}

func Test_Eviction_WithinSmallPool(t *testing.T) {
	backend := ram.New()
	e := impl.New(backend,
		impl.WithPageSize(4),
		impl.WithFrameCount(2),
		impl.WithPolicyThreshold(interf.PolicyLRU, 1),
	)
	defer e.Shutdown()

	h, err := e.Open("evicted.dat", interf.ModeReadWrite, interf.PolicyLRU)
	if err != nil {
		t.Fatalf("test error: open: %v", err)
	}

	payload := []byte("abcdefghijklmnopqrst") // 5 pages of 4 bytes
	if n, err := e.Write(h, payload); err != nil || n != len(payload) {
		t.Fatalf("test error: write: n=%d, err=%v", n, err)
	}
	if err := e.Flush(h); err != nil {
		t.Fatalf("test error: flush: %v", err)
	}

	stats := e.Stat()
	if stats["Evictions"] == 0 {
		t.Fatalf("test error: expected at least one eviction with a 2-frame pool, got %v", stats)
	}

	if _, err := e.Seek(h, 0, interf.WhenceSet); err != nil {
		t.Fatalf("test error: seek: %v", err)
	}
	got := make([]byte, len(payload))
	if n, err := e.Read(h, got); err != nil || n != len(payload) {
		t.Fatalf("test error: read: n=%d, err=%v", n, err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("test error: got %q, want %q", got, payload)
	}
}

// Test_Eviction_SingleFrame_NoCrossContamination stresses the one case
// where a stale queued STORE could otherwise write the wrong page's
// bytes to the wrong backend offset: with exactly one frame in the
// pool, every page write reuses the very same frame object evicted
// from the page before it.
func Test_Eviction_SingleFrame_NoCrossContamination(t *testing.T) {
	backend := ram.New()
	e := impl.New(backend,
		impl.WithPageSize(4),
		impl.WithFrameCount(1),
		impl.WithPolicyThreshold(interf.PolicyLRU, 0),
	)
	defer e.Shutdown()

	h, err := e.Open("single-frame.dat", interf.ModeReadWrite, interf.PolicyLRU)
	if err != nil {
		t.Fatalf("test error: open: %v", err)
	}

	payload := []byte("abcdefghijkl") // 3 pages of 4 bytes, one frame total
	if n, err := e.Write(h, payload); err != nil || n != len(payload) {
		t.Fatalf("test error: write: n=%d, err=%v", n, err)
	}
	if err := e.Flush(h); err != nil {
		t.Fatalf("test error: flush: %v", err)
	}

	if snap := backend.Snapshot("single-frame.dat"); !bytes.Equal(snap, payload) {
		t.Fatalf("test error: backend snapshot %q, want %q (a stale queued store would corrupt an earlier page)", snap, payload)
	}
}

func Test_Policy_Keep_PoolExhausted(t *testing.T) {
	backend := ram.New()
	e := impl.New(backend, impl.WithPageSize(4), impl.WithFrameCount(2))
	defer e.Shutdown()

	h, err := e.Open("kept.dat", interf.ModeReadWrite, interf.PolicyKeep)
	if err != nil {
		t.Fatalf("test error: open: %v", err)
	}

	// A KEEP allocation may borrow a victim from FIFO or an aged LRU
	// page, but neither table has any entries here, and KEEP only
	// volunteers one of its own once it holds more than half its
	// threshold (4, by default). With only 2 KEEP pages resident the
	// third write must fail once the pool is exhausted.
	if _, err := e.Write(h, []byte("abcd")); err != nil {
		t.Fatalf("test error: write page 0: %v", err)
	}
	if _, err := e.Write(h, []byte("efgh")); err != nil {
		t.Fatalf("test error: write page 1: %v", err)
	}
	if _, err := e.Write(h, []byte("ijkl")); err == nil {
		t.Fatalf("test error: expected write of a third page to fail with an exhausted pool")
	}
}

func Test_Flush_PersistsWithoutClose(t *testing.T) {
	backend := ram.New()
	e := impl.New(backend)
	defer e.Shutdown()

	h, err := e.Open("persisted.dat", interf.ModeReadWrite, interf.PolicyLRU)
	if err != nil {
		t.Fatalf("test error: open: %v", err)
	}
	if _, err := e.Write(h, []byte("durable")); err != nil {
		t.Fatalf("test error: write: %v", err)
	}
	if err := e.Flush(h); err != nil {
		t.Fatalf("test error: flush: %v", err)
	}
	if snap := backend.Snapshot("persisted.dat"); !bytes.Equal(snap, []byte("durable")) {
		t.Fatalf("test error: backend snapshot %q after flush, want %q", snap, "durable")
	}
}

func Test_FileExists(t *testing.T) {
	backend := ram.New()
	backend.Seed("present.dat", []byte("x"))
	e := impl.New(backend)
	defer e.Shutdown()

	if !e.FileExists("present.dat") {
		t.Fatalf("test error: expected present.dat to exist")
	}
	// the ram backend always succeeds at Open, so a never-seen path also
	// reports as existing; this matches its "disposable scratch file"
	// contract documented on ram.Backend.
	if !e.FileExists("never-seen.dat") {
		t.Fatalf("test error: expected ram backend to report any path as openable")
	}
}

func Test_Seek_CancelsDistantPrefetch(t *testing.T) {
	backend := ram.New()
	backend.Seed("windowed.dat", bytes.Repeat([]byte("w"), 64*4096))
	e := impl.New(backend)
	defer e.Shutdown()

	h, err := e.Open("windowed.dat", interf.ModeRead, interf.PolicyFIFO)
	if err != nil {
		t.Fatalf("test error: open: %v", err)
	}

	if err := e.CheckCache(h, 32*4096); err != nil {
		t.Fatalf("test error: check cache: %v", err)
	}
	if _, err := e.Seek(h, 1000*4096, interf.WhenceSet); err != nil {
		t.Fatalf("test error: seek: %v", err)
	}

	if stats := e.Stat(); stats["SeekCancels"] == 0 {
		t.Fatalf("test error: expected a forward seek far past a pending prefetch window to cancel at least one queued load, got %v", stats)
	}
}

func Test_Close_WaitsForConcurrentWriteToPersist(t *testing.T) {
	backend := ram.New()
	e := impl.New(backend)
	defer e.Shutdown()

	h, err := e.Open("concurrent.dat", interf.ModeWriteRead, interf.PolicyLRU)
	if err != nil {
		t.Fatalf("test error: open: %v", err)
	}

	// Write returns as soon as the dirty frame is marked and its STORE
	// is enqueued, before that STORE actually runs. Close must wait for
	// it rather than race the worker to the backend handle.
	payload := bytes.Repeat([]byte{0x41}, 64*1024)
	if _, err := e.Write(h, payload); err != nil {
		t.Fatalf("test error: write: %v", err)
	}

	if err := e.Close(h); err != nil {
		t.Fatalf("test error: close: %v", err)
	}
	if snap := backend.Snapshot("concurrent.dat"); !bytes.Equal(snap, payload) {
		t.Fatalf("test error: backend content after close doesn't match what was written")
	}
}

// Test_Policy_CrossBorrowEviction proves the policy tables are
// engine-wide: a KEEP allocation with its own table empty still
// succeeds by evicting a victim out of a different descriptor's FIFO
// table once FIFO is over its threshold.
func Test_Policy_CrossBorrowEviction(t *testing.T) {
	backend := ram.New()
	e := impl.New(backend,
		impl.WithPageSize(4),
		impl.WithFrameCount(2),
		impl.WithPolicyThreshold(interf.PolicyFIFO, 1),
	)
	defer e.Shutdown()

	fh, err := e.Open("fifo.dat", interf.ModeReadWrite, interf.PolicyFIFO)
	if err != nil {
		t.Fatalf("test error: open fifo.dat: %v", err)
	}
	if _, err := e.Write(fh, []byte("abcd")); err != nil {
		t.Fatalf("test error: write fifo page 0: %v", err)
	}
	if _, err := e.Write(fh, []byte("efgh")); err != nil {
		t.Fatalf("test error: write fifo page 1: %v", err)
	}
	// Both frames are now spoken for by fifo.dat, and FIFO holds more
	// pages than its threshold of 1.

	kh, err := e.Open("kept.dat", interf.ModeReadWrite, interf.PolicyKeep)
	if err != nil {
		t.Fatalf("test error: open kept.dat: %v", err)
	}
	if _, err := e.Write(kh, []byte("ijkl")); err != nil {
		t.Fatalf("test error: write kept page: %v", err)
	}

	stats := e.Stat()
	if stats["Evictions"] == 0 {
		t.Fatalf("test error: expected the KEEP write to evict a FIFO-owned page, got %v", stats)
	}
	// Eviction only flushed the page it reclaimed; the other fifo.dat
	// page stays resident and may still be dirty (its queued STORE need
	// not have run yet), so Flush before checking the backend.
	if err := e.Flush(fh); err != nil {
		t.Fatalf("test error: flush fifo.dat: %v", err)
	}
	if snap := backend.Snapshot("fifo.dat"); !bytes.Equal(snap, []byte("abcdefgh")) {
		t.Fatalf("test error: fifo.dat backend content %q, want %q (evicted page must flush before reuse)", snap, "abcdefgh")
	}
}

// Test_Seek_CancelledPrefetch_PageReusable proves a page whose prefetch
// LOAD was cancelled by a distant Seek is untracked, not left as a
// permanently unready frame: seeking back into the cancelled window
// and reading it must not deadlock.
func Test_Seek_CancelledPrefetch_PageReusable(t *testing.T) {
	backend := ram.New()
	backend.Seed("windowed.dat", bytes.Repeat([]byte("w"), 64*4096))
	e := impl.New(backend)
	defer e.Shutdown()

	h, err := e.Open("windowed.dat", interf.ModeRead, interf.PolicyFIFO)
	if err != nil {
		t.Fatalf("test error: open: %v", err)
	}

	if err := e.CheckCache(h, 32*4096); err != nil {
		t.Fatalf("test error: check cache: %v", err)
	}
	if _, err := e.Seek(h, 1000*4096, interf.WhenceSet); err != nil {
		t.Fatalf("test error: seek away: %v", err)
	}
	if stats := e.Stat(); stats["SeekCancels"] == 0 {
		t.Fatalf("test error: expected the distant seek to cancel queued prefetch loads, got %v", stats)
	}

	if _, err := e.Seek(h, 0, interf.WhenceSet); err != nil {
		t.Fatalf("test error: seek back: %v", err)
	}
	got := make([]byte, 4096)
	if n, err := e.Read(h, got); err != nil || n != len(got) {
		t.Fatalf("test error: read cancelled page: n=%d, err=%v", n, err)
	}
	if !bytes.Equal(got, bytes.Repeat([]byte("w"), 4096)) {
		t.Fatalf("test error: read cancelled page returned wrong content")
	}
}

// Test_Close_DropsOutstandingPrefetchLoad proves Close doesn't hang or
// crash while a prefetch LOAD for the same descriptor is still queued.
func Test_Close_DropsOutstandingPrefetchLoad(t *testing.T) {
	backend := ram.New()
	backend.Seed("prefetched.dat", bytes.Repeat([]byte("p"), 64*4096))
	e := impl.New(backend)
	defer e.Shutdown()

	h, err := e.Open("prefetched.dat", interf.ModeRead, interf.PolicyLRU)
	if err != nil {
		t.Fatalf("test error: open: %v", err)
	}
	if err := e.CheckCache(h, 32*4096); err != nil {
		t.Fatalf("test error: check cache: %v", err)
	}
	if err := e.Close(h); err != nil {
		t.Fatalf("test error: close with outstanding prefetch: %v", err)
	}
}

//--------------------------------------------------------------------------------------------------------------------//

func TestRace_ConcurrentHandles(t *testing.T) {
	backend := ram.New()
	e := impl.New(backend, impl.WithPageSize(16), impl.WithFrameCount(8))
	defer e.Shutdown()

	var wg sync.WaitGroup
	wg.Add(5)
	for n := 0; n < 5; n++ {
		idx := n
		go func() {
			defer wg.Done()
			path := "race-file"
			h, err := e.Open(pathFor(path, idx), interf.ModeReadWrite, interf.PolicyLRU)
			if err != nil {
				t.Errorf("test error: open: %v", err)
				return
			}
			payload := bytes.Repeat([]byte{byte('a' + idx)}, 200)
			for i := 0; i < 20; i++ {
				if _, err := e.Seek(h, 0, interf.WhenceSet); err != nil {
					t.Errorf("test error: seek: %v", err)
					return
				}
				if _, err := e.Write(h, payload); err != nil {
					t.Errorf("test error: write: %v", err)
					return
				}
				if _, err := e.Seek(h, 0, interf.WhenceSet); err != nil {
					t.Errorf("test error: seek: %v", err)
					return
				}
				got := make([]byte, len(payload))
				if _, err := e.Read(h, got); err != nil {
					t.Errorf("test error: read: %v", err)
					return
				}
				if !bytes.Equal(got, payload) {
					t.Errorf("test error: got %q, want %q", got, payload)
					return
				}
			}
			if err := e.PermanentClose(h); err != nil {
				t.Errorf("test error: permanent close: %v", err)
			}
		}()
	}
	wg.Wait()
}

func pathFor(base string, idx int) string {
	return base + "-" + string(rune('0'+idx))
}
