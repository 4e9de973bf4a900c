package gdrive

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	interf "github.com/pagewright/pagecache/interfaces"
	"google.golang.org/api/drive/v3"
)

const (
	sectorSize    = interf.SectorSize
	maxSectorJump = interf.MaxSectorJump
)

// innerReader is an open ranged HTTP download positioned at sector.
// It is reused across calls as long as the requested sector doesn't
// fall behind it or jump further ahead than MaxSectorJump — grounded
// directly on the distillation's own _Reader/bestConn/addConn scheme
// for Drive's non-seekable download streams.
type innerReader struct {
	body   io.ReadCloser
	sector uint64
	age    int64
}

func newInnerReader(body io.ReadCloser, sector uint64) *innerReader {
	return &innerReader{body: body, sector: sector, age: time.Now().UnixNano()}
}

func (r *innerReader) Close() error {
	if r.body != nil {
		_ = r.body.Close()
		r.body = nil
	}
	return nil
}

// read reads exactly one sector (or less, at EOF) into buf, which must
// be sectorSize bytes long.
func (r *innerReader) read(buf []byte) (n int, err error) {
	if r.body == nil {
		return 0, io.ErrClosedPipe
	}
	for n < len(buf) && err == nil {
		var nn int
		nn, err = r.body.Read(buf[n:])
		n += nn
	}
	if n > 0 {
		r.age = time.Now().UnixNano()
		r.sector++
	}
	if n >= len(buf) {
		return n, nil // ignore trailing error, buffer is full
	}
	return n, err
}

//--------------------------------------------------------------------------------------------------------------------

// bestConn returns the open reader best suited to continue at sector,
// or nil if none is usable (not yet opened, or too far behind/ahead).
func bestConn(inner []*innerReader, sector uint64) *innerReader {
	var bestDist uint64 = math.MaxUint64
	index := -1

	for k, v := range inner {
		if v == nil || v.body == nil {
			continue
		}
		if sector < v.sector || sector > v.sector+maxSectorJump {
			continue
		}
		dist := sector - v.sector
		if dist < bestDist {
			bestDist = dist
			index = k
		}
		if bestDist == 0 {
			break
		}
	}

	if index >= 0 {
		return inner[index]
	}
	return nil
}

// sortByAge sorts inner readers newest-first, invalid ones last.
func sortByAge(inner []*innerReader) {
	sort.Slice(inner, func(p, q int) bool {
		var ageP, ageQ int64 = math.MinInt64, math.MinInt64
		if inner[p] != nil && inner[p].body != nil {
			ageP = inner[p].age
		}
		if inner[q] != nil && inner[q].body != nil {
			ageQ = inner[q].age
		}
		return ageP > ageQ
	})
}

// addConn opens a new ranged download starting at sector and places it
// first in inner, closing the oldest entry to make room.
func addConn(service *drive.Service, fileID string, inner []*innerReader, sector uint64) ([]*innerReader, *innerReader, error) {
	sortByAge(inner)

	last := len(inner) - 1
	if last >= 0 && inner[last] != nil {
		_ = inner[last].Close()
	}
	for i := len(inner) - 1; i > 0; i-- {
		inner[i] = inner[i-1]
	}
	if len(inner) > 0 {
		inner[0] = nil
	}

	get := service.Files.Get(fileID)
	get.Header().Set("Range", fmt.Sprintf("bytes=%d-", sector*sectorSize))
	resp, err := get.Download()
	if err != nil {
		return inner, nil, fmt.Errorf("gdrive: open ranged download: %w", err)
	}

	r := newInnerReader(resp.Body, sector)
	if len(inner) > 0 {
		inner[0] = r
	}
	return inner, r, nil
}
