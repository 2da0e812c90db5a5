package sstable

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/google/uuid"

	"spatiallsm/pkg/block"
	"spatiallsm/pkg/compression"
	"spatiallsm/pkg/config"
	"spatiallsm/pkg/dberrors"
	"spatiallsm/pkg/geometry"
	"spatiallsm/pkg/rtree"
	"spatiallsm/pkg/zcurve"
)

// WriterOptions shape a table file.
type WriterOptions struct {
	BlockSize          int
	BlockSizeDeviation int
	// IndexNodeSize is the byte budget of one index node.
	IndexNodeSize int
	Compression   compression.Type
	Index         rtree.Format
	// BoxSource and Grid apply to curve-ordered indexes only.
	BoxSource rtree.BoxSource
	Grid      zcurve.Grid
	// IndexPolicy overrides the size-based index node policy.
	IndexPolicy block.PolicyFactory
}

// DefaultWriterOptions mirror config.Default.
func DefaultWriterOptions() WriterOptions {
	opts, _ := WriterOptionsFromConfig(config.Default().Table)
	return opts
}

// WriterOptionsFromConfig converts the table section of the configuration.
func WriterOptionsFromConfig(cfg config.TableConfig) (WriterOptions, error) {
	ct, err := compression.ParseType(cfg.Compression)
	if err != nil {
		return WriterOptions{}, err
	}
	format, err := rtree.ParseFormat(cfg.Index)
	if err != nil {
		return WriterOptions{}, err
	}
	source := rtree.BoxFromKey
	if cfg.BoxSource == "value" {
		source = rtree.BoxFromValue
	}
	return WriterOptions{
		BlockSize:          cfg.BlockSize,
		BlockSizeDeviation: cfg.BlockSizeDeviation,
		IndexNodeSize:      cfg.IndexNodeSize,
		Compression:        ct,
		Index:              format,
		BoxSource:          source,
		Grid: zcurve.Grid{
			XMin: cfg.Curve.XMin,
			XMax: cfg.Curve.XMax,
			YMin: cfg.Curve.YMin,
			YMax: cfg.Curve.YMax,
			N:    cfg.Curve.Resolution,
		},
	}, nil
}

type metaEntry struct {
	name string
	h    block.Handle
}

// Writer streams rows into a table file. Rows are written in the order
// they are added; the spatial index is built alongside.
type Writer struct {
	w      io.Writer
	offset uint64
	opts   WriterOptions

	data    *block.Builder
	policy  block.FlushPolicy
	index   rtree.Builder
	lastKey []byte

	meta     []metaEntry
	ids      []uint64
	props    Properties
	finished bool
	buf      []byte
}

var _ rtree.NodeWriter = (*Writer)(nil)

// NewWriter returns a writer emitting the table to w.
func NewWriter(w io.Writer, opts WriterOptions) (*Writer, error) {
	if opts.BlockSize <= 0 {
		return nil, fmt.Errorf("%w: block size %d", dberrors.ErrInvalidArgument, opts.BlockSize)
	}
	nodePolicy := opts.IndexPolicy
	if nodePolicy == nil {
		if opts.IndexNodeSize <= 0 {
			return nil, fmt.Errorf("%w: index node size %d", dberrors.ErrInvalidArgument, opts.IndexNodeSize)
		}
		nodePolicy = block.SizePolicy(opts.IndexNodeSize, opts.BlockSizeDeviation)
	}

	var (
		index rtree.Builder
		err   error
	)
	switch opts.Index {
	case rtree.KeyOrdered:
		index = rtree.NewKeyOrderedBuilder(nodePolicy)
	case rtree.CurveOrdered:
		index, err = rtree.NewCurveOrderedBuilder(nodePolicy, opts.Grid, opts.BoxSource)
	default:
		err = fmt.Errorf("%w: index format %d", dberrors.ErrInvalidArgument, opts.Index)
	}
	if err != nil {
		return nil, err
	}

	data := block.NewBuilder()
	tw := &Writer{
		w:      w,
		opts:   opts,
		data:   data,
		policy: block.SizePolicy(opts.BlockSize, opts.BlockSizeDeviation)(data),
		index:  index,
		props: Properties{
			SessionID:   uuid.NewString(),
			Index:       opts.Index.String(),
			Compression: opts.Compression.String(),
		},
	}
	if opts.Index == rtree.CurveOrdered {
		tw.props.BoxSource = opts.BoxSource.String()
	}
	return tw, nil
}

// Add appends a row. Key-ordered indexes and curve-ordered indexes reading
// key boxes need a 40-byte key box; curve-ordered indexes reading value
// boxes need a value starting with a 32-byte value box.
func (w *Writer) Add(key, value []byte) error {
	if w.finished {
		return dberrors.ErrFinished
	}
	if !w.data.Empty() && w.policy.ShouldCut(key, value) {
		if err := w.flushData(key); err != nil {
			return err
		}
	}
	if err := w.index.OnKeyAdded(key, value); err != nil {
		return err
	}
	if kb, err := geometry.DecodeKey(key); err == nil {
		w.ids = append(w.ids, kb.ID.Min)
	}
	w.data.Add(key, value)
	w.lastKey = append(w.lastKey[:0], key...)
	w.props.Entries++
	return nil
}

// ObserveSeqN records the sequence number of a written row.
func (w *Writer) ObserveSeqN(seq uint64) {
	w.props.MaxSeqN = max(w.props.MaxSeqN, seq)
}

// RequestCut makes the next data block start a new index leaf.
func (w *Writer) RequestCut() { w.index.RequestCut() }

// EstimatedSize is the number of bytes written so far.
func (w *Writer) EstimatedSize() uint64 { return w.offset + uint64(w.data.CurrentSize()) }

func (w *Writer) flushData(firstKeyInNext []byte) error {
	h, err := w.writeBlock(w.data.Finish(), w.opts.Compression)
	if err != nil {
		return fmt.Errorf("write data block: %w", err)
	}
	w.props.DataBlocks++
	return w.index.AddIndexEntry(w.lastKey, firstKeyInNext, h)
}

// WriteIndexNode implements rtree.NodeWriter.
func (w *Writer) WriteIndexNode(contents []byte) (block.Handle, error) {
	return w.writeBlock(contents, w.opts.Compression)
}

// WriteMetaBlock implements rtree.NodeWriter.
func (w *Writer) WriteMetaBlock(name string, contents []byte) error {
	h, err := w.writeBlock(contents, compression.None)
	if err != nil {
		return err
	}
	w.meta = append(w.meta, metaEntry{name: name, h: h})
	return nil
}

func (w *Writer) writeBlock(contents []byte, t compression.Type) (block.Handle, error) {
	stored, t, err := compression.Compress(t, contents)
	if err != nil {
		return block.Handle{}, err
	}
	w.buf = appendTrailer(append(w.buf[:0], stored...), stored, t)
	if _, err := w.w.Write(w.buf); err != nil {
		return block.Handle{}, err
	}
	h := block.Handle{Offset: w.offset, Size: uint64(len(stored))}
	w.offset += uint64(len(w.buf))
	return h, nil
}

// Finish flushes the last data block, drives the index builder to
// completion and writes the meta blocks and footer.
func (w *Writer) Finish() (Properties, error) {
	if w.finished {
		return Properties{}, dberrors.ErrFinished
	}
	w.finished = true

	if !w.data.Empty() {
		if err := w.flushData(nil); err != nil {
			return Properties{}, err
		}
	}
	for {
		done, err := w.index.Finish(w)
		if err != nil {
			return Properties{}, fmt.Errorf("finish index: %w", err)
		}
		if done {
			break
		}
	}

	if len(w.ids) > 0 {
		filter := newIDFilter(len(w.ids))
		for _, id := range w.ids {
			filter.add(id)
		}
		w.ids = nil
		if err := w.WriteMetaBlock(FilterBlock, filter.encode()); err != nil {
			return Properties{}, fmt.Errorf("write identifier filter: %w", err)
		}
	}

	w.props.IndexNodes = w.index.NumNodes()
	w.props.IndexHeight = w.index.Height()
	w.props.CreatedAt = time.Now().UTC()
	props, err := w.props.encode()
	if err != nil {
		return Properties{}, fmt.Errorf("encode properties: %w", err)
	}
	if err := w.WriteMetaBlock(PropertiesBlock, props); err != nil {
		return Properties{}, fmt.Errorf("write properties: %w", err)
	}

	slices.SortFunc(w.meta, func(a, b metaEntry) int { return strings.Compare(a.name, b.name) })
	mi := block.NewBuilder()
	for _, m := range w.meta {
		mi.Add([]byte(m.name), m.h.Encode())
	}
	miHandle, err := w.writeBlock(mi.Finish(), compression.None)
	if err != nil {
		return Properties{}, fmt.Errorf("write metaindex: %w", err)
	}

	f := footer{metaindex: miHandle, root: w.index.RootHandle()}
	if _, err := w.w.Write(f.encode()); err != nil {
		return Properties{}, fmt.Errorf("write footer: %w", err)
	}
	w.offset += FooterSize
	return w.props, nil
}

// Size is the total file size once Finish returned.
func (w *Writer) Size() uint64 { return w.offset }

// Row is one table row.
type Row struct {
	Key   []byte
	Value []byte
	SeqN  uint64
}

// WriteFile writes rows into a new table at path, syncing it before
// returning. A partially written file is removed on failure.
func WriteFile(path string, opts WriterOptions, rows func(add func(Row) error) error) (props Properties, size uint64, err error) {
	f, err := os.Create(path)
	if err != nil {
		return Properties{}, 0, fmt.Errorf("create table: %w", err)
	}
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			if cerr := f.Close(); cerr != nil {
				slog.Warn("failed to close table after write error", "path", path, "error", cerr)
			}
		}
		if rerr := os.Remove(path); rerr != nil {
			slog.Warn("failed to remove partial table", "path", path, "error", rerr)
		}
	}()

	bw := bufio.NewWriterSize(f, 256<<10)
	w, err := NewWriter(bw, opts)
	if err != nil {
		return Properties{}, 0, err
	}
	err = rows(func(r Row) error {
		w.ObserveSeqN(r.SeqN)
		return w.Add(r.Key, r.Value)
	})
	if err != nil {
		return Properties{}, 0, err
	}
	if props, err = w.Finish(); err != nil {
		return Properties{}, 0, err
	}
	if err = bw.Flush(); err != nil {
		return Properties{}, 0, fmt.Errorf("flush table: %w", err)
	}
	if err = f.Sync(); err != nil {
		return Properties{}, 0, fmt.Errorf("sync table: %w", err)
	}
	closed = true
	if err = f.Close(); err != nil {
		return Properties{}, 0, fmt.Errorf("close table: %w", err)
	}

	slog.Debug("table written",
		"path", filepath.Base(path),
		"entries", props.Entries,
		"data_blocks", props.DataBlocks,
		"index", props.Index,
		"height", props.IndexHeight,
		"nodes", props.IndexNodes,
		"size", datasize.ByteSize(w.Size()).HR(),
	)
	return props, w.Size(), nil
}
