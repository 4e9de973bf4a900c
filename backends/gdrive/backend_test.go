package gdrive

import (
	"testing"

	interf "github.com/pagewright/pagecache/interfaces"
)

func Test_Open_RejectsNonReadModes(t *testing.T) {
	b := New(nil, -1) // no Drive service needed: Open must fail before touching it

	for _, mode := range []interf.Mode{interf.ModeWrite, interf.ModeReadWrite, interf.ModeWriteRead} {
		if _, err := b.Open("any-file-id", mode); err == nil {
			t.Fatalf("test error: expected Open(%v) to fail, since this backend only supports ModeRead", mode)
		}
	}
}

func Test_Write_AlwaysUnsupported(t *testing.T) {
	b := New(nil, -1)
	hh := &handle{fileID: "f", size: 10, backend: b}

	if _, err := b.Write(hh, []byte("x")); err != interf.ErrUnsupported {
		t.Fatalf("test error: write: got %v, want ErrUnsupported", err)
	}
}

func Test_Len_ReturnsCachedSize(t *testing.T) {
	b := New(nil, -1)
	hh := &handle{fileID: "f", size: 12345, backend: b}

	n, err := b.Len(hh)
	if err != nil || n != 12345 {
		t.Fatalf("test error: len: n=%d, err=%v, want 12345", n, err)
	}
}

func Test_Seek_NegativeOffset_Rejected(t *testing.T) {
	b := New(nil, -1)
	hh := &handle{fileID: "f", size: 10, backend: b}

	if err := b.Seek(hh, -1); err != interf.ErrInvalidParameter {
		t.Fatalf("test error: seek(-1): got %v, want ErrInvalidParameter", err)
	}
}

func Test_Read_PastEnd_IsEOFWithoutNetwork(t *testing.T) {
	b := New(nil, -1) // cache disabled, no inner readers ever touched
	hh := &handle{fileID: "f", size: 5, backend: b, pos: 5}

	n, err := b.Read(hh, make([]byte, 4))
	if n != 0 || err == nil {
		t.Fatalf("test error: read past end: n=%d, err=%v, want n=0, err=io.EOF", n, err)
	}
	if !hh.eof {
		t.Fatalf("test error: expected handle.eof to be set after reading past end")
	}
}

func Test_Meta_ReturnsCapturedMetadata(t *testing.T) {
	b := New(nil, -1)
	meta := fileMeta{id: "f", name: "report.pdf", modTime: 1533297810, size: 12345, md5: "abc123"}
	hh := &handle{fileID: "f", size: 12345, backend: b, meta: meta}

	got := b.Meta(hh)
	if got.Id() != "f" || got.Name() != "report.pdf" || got.ModTime() != 1533297810 || got.Size() != 12345 || got.Md5() != "abc123" {
		t.Fatalf("test error: unexpected meta %+v", got)
	}
}

func Test_Close_ReleasesInnerReaders_NoneOpen(t *testing.T) {
	b := New(nil, -1)
	hh := &handle{fileID: "f", size: 10, backend: b, inner: make([]*innerReader, interf.MaxReadersPerFile)}

	if err := b.Close(hh); err != nil {
		t.Fatalf("test error: close: %v", err)
	}
	for _, r := range hh.inner {
		if r != nil {
			t.Fatalf("test error: expected every inner reader slot to be nil after close")
		}
	}
}
