package sstable

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/c2h5oh/datasize"

	"spatiallsm/pkg/block"
	"spatiallsm/pkg/dberrors"
	"spatiallsm/pkg/geometry"
	"spatiallsm/pkg/metrics"
	"spatiallsm/pkg/rtree"
)

// ReaderOptions configure an open table.
type ReaderOptions struct {
	// ID keys the table's blocks in Cache.
	ID    uint64
	Cache *BlockCache
	// ReadaheadSize is the number of bytes read at once after two
	// sequential block reads; zero disables readahead.
	ReadaheadSize int
	Metrics       metrics.Collector
}

// Reader serves spatial queries from one table file. It is safe for
// concurrent use.
type Reader struct {
	name   string
	f      io.ReaderAt
	closer io.Closer
	size   int64
	opts   ReaderOptions

	props     Properties
	format    rtree.Format
	height    int
	root      []byte
	meta      map[string]block.Handle
	filter    *idFilter
	fromValue bool
}

// Open opens the table file at path.
func Open(path string, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat table: %w", err)
	}
	r, err := NewReader(f, info.Size(), opts)
	if err != nil {
		if cerr := f.Close(); cerr != nil {
			slog.Warn("failed to close table after open error", "path", path, "error", cerr)
		}
		return nil, fmt.Errorf("table %s: %w", filepath.Base(path), err)
	}
	r.name = filepath.Base(path)
	r.closer = f

	slog.Debug("table opened",
		"path", r.name,
		"index", r.format,
		"height", r.height,
		"entries", r.props.Entries,
		"size", datasize.ByteSize(r.size).HR(),
	)
	return r, nil
}

// NewReader reads the footer, meta blocks and index root of a table of
// size bytes.
func NewReader(f io.ReaderAt, size int64, opts ReaderOptions) (*Reader, error) {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	r := &Reader{f: f, size: size, opts: opts}

	if size < FooterSize {
		return nil, fmt.Errorf("%w: file of %d bytes is too small", dberrors.ErrCorruption, size)
	}
	raw := make([]byte, FooterSize)
	if err := r.readAt(raw, size-FooterSize); err != nil {
		return nil, fmt.Errorf("read footer: %w", err)
	}
	ft, err := decodeFooter(raw)
	if err != nil {
		return nil, err
	}

	mi, err := r.readUncached(ft.metaindex)
	if err != nil {
		return nil, fmt.Errorf("read metaindex: %w", err)
	}
	if r.meta, err = decodeMetaindex(mi); err != nil {
		return nil, err
	}

	propsBlock, err := r.metaBlock(PropertiesBlock)
	if err != nil {
		return nil, err
	}
	if r.props, err = decodeProperties(propsBlock); err != nil {
		return nil, err
	}

	switch {
	case r.hasMeta(rtree.KeyOrderedMetaBlock):
		r.format = rtree.KeyOrdered
	case r.hasMeta(rtree.CurveOrderedMetaBlock):
		r.format = rtree.CurveOrdered
		r.fromValue = r.props.BoxSource == rtree.BoxFromValue.String()
	default:
		return nil, fmt.Errorf("%w: missing index height metadata", dberrors.ErrCorruption)
	}
	heightBlock, err := r.metaBlock(r.format.MetaBlockName())
	if err != nil {
		return nil, err
	}
	if r.height, err = rtree.DecodeHeight(heightBlock); err != nil {
		return nil, err
	}

	if r.hasMeta(FilterBlock) {
		data, err := r.metaBlock(FilterBlock)
		if err != nil {
			return nil, err
		}
		if r.filter, err = decodeIDFilter(data); err != nil {
			return nil, err
		}
	}

	if r.root, err = r.readUncached(ft.root); err != nil {
		return nil, fmt.Errorf("read index root: %w", err)
	}
	return r, nil
}

func decodeMetaindex(data []byte) (map[string]block.Handle, error) {
	it, err := block.NewIter(data, nil)
	if err != nil {
		return nil, fmt.Errorf("metaindex: %w", err)
	}
	meta := make(map[string]block.Handle, it.Len())
	for it.First(); it.Valid(); it.Next() {
		h, _, err := block.DecodeHandle(it.Value())
		if err != nil {
			return nil, fmt.Errorf("metaindex entry %q: %w", it.Key(), err)
		}
		meta[string(it.Key())] = h
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("metaindex: %w", err)
	}
	return meta, nil
}

func (r *Reader) hasMeta(name string) bool {
	_, ok := r.meta[name]
	return ok
}

func (r *Reader) metaBlock(name string) ([]byte, error) {
	h, ok := r.meta[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing meta block %q", dberrors.ErrCorruption, name)
	}
	data, err := r.readUncached(h)
	if err != nil {
		return nil, fmt.Errorf("meta block %q: %w", name, err)
	}
	return data, nil
}

func (r *Reader) Properties() Properties { return r.props }

func (r *Reader) Format() rtree.Format { return r.format }

// Height is the index height read from the height meta block.
func (r *Reader) Height() int { return r.height }

func (r *Reader) ID() uint64 { return r.opts.ID }

// Size is the table file size in bytes.
func (r *Reader) Size() int64 { return r.size }

// NewIndexIterator returns an unpositioned iterator over the index leaf
// entries intersecting query.
func (r *Reader) NewIndexIterator(query geometry.Box) *rtree.Iterator {
	return rtree.NewIterator(r.root, r.newPrefetcher(), r.format, r.height, query)
}

// RowBox is the box a row is matched by: the key box, or the value box for
// curve-ordered tables that index values.
func (r *Reader) RowBox(key, value []byte) (geometry.Box, error) {
	if r.fromValue {
		return geometry.DecodeValue(value)
	}
	return geometry.DecodeKey(key)
}

func (r *Reader) rowMatches(key, value []byte, query geometry.Box) (bool, error) {
	box, err := r.RowBox(key, value)
	if err != nil {
		return false, err
	}
	if r.fromValue {
		return geometry.IntersectsIgnoringID(box, query), nil
	}
	return geometry.Intersects(box, query), nil
}

// Query calls visit for every row whose box intersects query until visit
// returns false. An empty query visits every row.
func (r *Reader) Query(query geometry.Box, visit func(key, value []byte) bool) error {
	p := r.newPrefetcher()
	it := rtree.NewIterator(r.root, p, r.format, r.height, query)
	defer it.Close()
	defer r.reportNodes(p)

	for it.First(); it.Valid(); it.Next() {
		h := it.Handle()
		p.Prefetch(h)
		data, err := p.read(h)
		if err != nil {
			return fmt.Errorf("read data block %v: %w", h, err)
		}
		rows, err := block.NewIter(data, nil)
		if err != nil {
			return fmt.Errorf("data block %v: %w", h, err)
		}
		for rows.First(); rows.Valid(); rows.Next() {
			match, err := r.rowMatches(rows.Key(), rows.Value(), query)
			if err != nil {
				return fmt.Errorf("data block %v: %w", h, err)
			}
			if match && !visit(rows.Key(), rows.Value()) {
				return nil
			}
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("data block %v: %w", h, err)
		}
	}
	return it.Err()
}

// Get returns the first row stored under id. Curve-ordered indexes carry no
// identifier intervals, so for them Get scans every data block.
func (r *Reader) Get(id uint64) (key, value []byte, err error) {
	if !r.MayContain(id) {
		return nil, nil, dberrors.ErrNotFound
	}
	query := geometry.ByID(id)
	found := false
	err = r.Query(query, func(k, v []byte) bool {
		box, derr := geometry.DecodeKey(k)
		if derr != nil || box.ID.Min != id {
			return true
		}
		key, value, found = k, v, true
		return false
	})
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, dberrors.ErrNotFound
	}
	return key, value, nil
}

// MayContain reports whether the identifier filter admits id. Tables
// without a filter admit everything.
func (r *Reader) MayContain(id uint64) bool {
	return r.filter == nil || r.filter.mayContain(id)
}

func (r *Reader) reportNodes(p *prefetcher) {
	r.opts.Metrics.IncCounter(metrics.IndexNodesVisited, nil, float64(p.nodes))
}

// Close releases the file and drops the table's cached blocks.
func (r *Reader) Close() error {
	if r.opts.Cache != nil {
		r.opts.Cache.EvictTable(r.opts.ID)
	}
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func (r *Reader) readAt(dst []byte, off int64) error {
	n, err := r.f.ReadAt(dst, off)
	if n == len(dst) && (err == nil || errors.Is(err, io.EOF)) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: short read at %d: %d of %d bytes", dberrors.ErrCorruption, off, n, len(dst))
	}
	return err
}

func (r *Reader) readRaw(h block.Handle) ([]byte, error) {
	end := h.Offset + h.Size + trailerSize
	if end > uint64(r.size) || end < h.Offset {
		return nil, fmt.Errorf("%w: block %v past end of file", dberrors.ErrCorruption, h)
	}
	raw := make([]byte, h.Size+trailerSize)
	if err := r.readAt(raw, int64(h.Offset)); err != nil {
		return nil, err
	}
	r.opts.Metrics.IncCounter(metrics.BlockReads, nil, 1)
	return raw, nil
}

func (r *Reader) readUncached(h block.Handle) ([]byte, error) {
	raw, err := r.readRaw(h)
	if err != nil {
		return nil, err
	}
	return unwrapBlock(raw, h)
}
