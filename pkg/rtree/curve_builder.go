package rtree

import (
	"fmt"
	"slices"

	"spatiallsm/pkg/block"
	"spatiallsm/pkg/geometry"
	"spatiallsm/pkg/zcurve"
)

// BoxSource tells the curve-ordered builder where each row keeps its box.
type BoxSource uint8

const (
	// BoxFromValue reads a 32-byte value box, as secondary index rows do.
	BoxFromValue BoxSource = iota
	// BoxFromKey reads the spatial part of a 40-byte key box.
	BoxFromKey
)

func (s BoxSource) String() string {
	if s == BoxFromKey {
		return "key"
	}
	return "value"
}

type curveEntry struct {
	box       geometry.Box
	handle    block.Handle
	cell      zcurve.Cell
	cutBefore bool
}

// CurveOrderedBuilder buffers one entry per data block and, on the first
// Finish call, sorts them along the Z-order of their centroids before
// packing. Node boxes carry no identifier interval.
type CurveOrderedBuilder struct {
	p       *packer
	grid    zcurve.Grid
	source  BoxSource
	sub     geometry.Box
	entries []curveEntry
	cut     bool
	packed  bool
}

var _ Builder = (*CurveOrderedBuilder)(nil)

// NewCurveOrderedBuilder creates a builder sorting entries on grid.
func NewCurveOrderedBuilder(policy block.PolicyFactory, grid zcurve.Grid, source BoxSource) (*CurveOrderedBuilder, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	return &CurveOrderedBuilder{
		p:      newPacker(CurveOrdered, policy),
		grid:   grid,
		source: source,
	}, nil
}

func (b *CurveOrderedBuilder) OnKeyAdded(key, value []byte) error {
	if err := b.p.checkBuilding(); err != nil {
		return err
	}
	var (
		box geometry.Box
		err error
	)
	if b.source == BoxFromKey {
		box, err = geometry.DecodeKey(key)
	} else {
		box, err = geometry.DecodeValue(value)
	}
	if err != nil {
		return fmt.Errorf("index %s box: %w", b.source, err)
	}
	b.sub.ExpandIgnoringID(box)
	return nil
}

func (b *CurveOrderedBuilder) AddIndexEntry(_, _ []byte, h block.Handle) error {
	if err := b.p.checkBuilding(); err != nil {
		return err
	}
	x, y := b.sub.Centroid()
	b.entries = append(b.entries, curveEntry{
		box:       b.sub,
		handle:    h,
		cell:      b.grid.Cell(x, y),
		cutBefore: b.cut,
	})
	b.sub.Clear()
	b.cut = false
	return nil
}

// RequestCut makes the next buffered data block start a new leaf once the
// entries are in curve order.
func (b *CurveOrderedBuilder) RequestCut() { b.cut = true }

func (b *CurveOrderedBuilder) Finish(w NodeWriter) (bool, error) {
	if !b.packed {
		b.pack()
	}
	return b.p.finish(w)
}

func (b *CurveOrderedBuilder) pack() {
	slices.SortStableFunc(b.entries, func(x, y curveEntry) int {
		return zcurve.Compare(x.cell, y.cell)
	})
	for _, e := range b.entries {
		if e.cutBefore {
			b.p.cutRequested = true
		}
		b.p.add(e.box, e.handle.Encode())
	}
	b.entries = nil
	b.packed = true
}

func (b *CurveOrderedBuilder) Format() Format { return CurveOrdered }

func (b *CurveOrderedBuilder) RootHandle() block.Handle { return b.p.root }

func (b *CurveOrderedBuilder) Height() int { return b.p.height }

func (b *CurveOrderedBuilder) NumNodes() int { return b.p.nodes }
