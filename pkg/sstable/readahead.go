package sstable

import (
	"slices"

	"spatiallsm/pkg/block"
	"spatiallsm/pkg/metrics"
	"spatiallsm/pkg/rtree"
)

// prefetcher serves the block reads of one query. Once two consecutive
// reads were adjacent in the file it reads ReadaheadSize bytes at once and
// answers the following reads from that buffer.
type prefetcher struct {
	r    *Reader
	size int

	next uint64
	run  int

	buf    []byte
	bufOff uint64

	nodes int
}

var _ rtree.BlockReader = (*prefetcher)(nil)

func (r *Reader) newPrefetcher() *prefetcher {
	return &prefetcher{r: r, size: r.opts.ReadaheadSize}
}

func (p *prefetcher) Prefetch(h block.Handle) {
	if h.Offset == p.next {
		p.run++
	} else {
		p.run = 0
	}
	p.next = h.Offset + h.Size + trailerSize

	if p.size <= 0 || p.run < 2 || p.covers(h) {
		return
	}
	n := max(uint64(p.size), h.Size+trailerSize)
	n = min(n, uint64(p.r.size)-min(h.Offset, uint64(p.r.size)))
	if n == 0 {
		return
	}
	buf := make([]byte, n)
	if err := p.r.readAt(buf, int64(h.Offset)); err != nil {
		// the direct read in ReadBlock reports the failure
		p.buf = nil
		return
	}
	p.buf, p.bufOff = buf, h.Offset
}

func (p *prefetcher) covers(h block.Handle) bool {
	end := h.Offset + h.Size + trailerSize
	return p.buf != nil && h.Offset >= p.bufOff && end <= p.bufOff+uint64(len(p.buf))
}

// ReadBlock reads an index node.
func (p *prefetcher) ReadBlock(h block.Handle) ([]byte, error) {
	p.nodes++
	return p.read(h)
}

func (p *prefetcher) read(h block.Handle) ([]byte, error) {
	cache := p.r.opts.Cache
	if cache != nil {
		if data, ok := cache.Get(p.r.opts.ID, h.Offset); ok {
			return data, nil
		}
	}

	var raw []byte
	if p.covers(h) {
		start := h.Offset - p.bufOff
		raw = slices.Clone(p.buf[start : start+h.Size+trailerSize])
		p.r.opts.Metrics.IncCounter(metrics.ReadaheadHits, nil, 1)
	} else {
		var err error
		if raw, err = p.r.readRaw(h); err != nil {
			return nil, err
		}
	}
	data, err := unwrapBlock(raw, h)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		cache.Set(p.r.opts.ID, h.Offset, data)
	}
	return data, nil
}
