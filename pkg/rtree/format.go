// Package rtree builds and traverses the per-table spatial index.
//
// The index is an R-tree packed bottom-up while the table is written. Leaf
// nodes hold one entry per data block (enclosing box, data block handle);
// internal nodes hold one entry per child node (enclosing box, node handle).
// Height counts levels from the leaf nodes (1) up to the root and is stored
// in a meta block once the root is written.
package rtree

import (
	"encoding/binary"
	"fmt"
	"strings"

	"spatiallsm/pkg/dberrors"
	"spatiallsm/pkg/geometry"
)

// Format selects the leaf ordering of a tree and the box form of its entries.
type Format uint8

const (
	// KeyOrdered trees follow the table's key order; node boxes carry the
	// identifier interval (48 bytes).
	KeyOrdered Format = iota + 1
	// CurveOrdered trees follow the Z-order of data block centroids; node
	// boxes are spatial only (32 bytes).
	CurveOrdered
)

// Meta block names holding the tree height.
const (
	KeyOrderedMetaBlock   = "rtree.index.metadata"
	CurveOrderedMetaBlock = "rtree.secondary.index.metadata"
)

func (f Format) String() string {
	switch f {
	case KeyOrdered:
		return "key"
	case CurveOrdered:
		return "curve"
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// ParseFormat maps a configuration name onto a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "key", "key-ordered", "primary":
		return KeyOrdered, nil
	case "curve", "curve-ordered", "secondary", "zorder":
		return CurveOrdered, nil
	}
	return 0, fmt.Errorf("%w: unknown index format %q", dberrors.ErrInvalidArgument, name)
}

// BoxSize is the encoded width of a node entry key.
func (f Format) BoxSize() int {
	if f == CurveOrdered {
		return geometry.ValueSize
	}
	return geometry.QuerySize
}

// MetaBlockName is the name of the meta block holding the tree height.
func (f Format) MetaBlockName() string {
	if f == CurveOrdered {
		return CurveOrderedMetaBlock
	}
	return KeyOrderedMetaBlock
}

func (f Format) AppendBox(dst []byte, b geometry.Box) []byte {
	if f == CurveOrdered {
		return geometry.AppendValue(dst, b)
	}
	return geometry.AppendQuery(dst, b)
}

func (f Format) DecodeBox(data []byte) (geometry.Box, error) {
	if f == CurveOrdered {
		return geometry.DecodeValue(data)
	}
	return geometry.DecodeQuery(data)
}

// Intersects is the pruning predicate applied to node entries.
func (f Format) Intersects(entry, query geometry.Box) bool {
	if f == CurveOrdered {
		return geometry.IntersectsIgnoringID(entry, query)
	}
	return geometry.Intersects(entry, query)
}

func (f Format) expand(dst *geometry.Box, b geometry.Box) {
	if f == CurveOrdered {
		dst.ExpandIgnoringID(b)
		return
	}
	dst.Expand(b)
}

// EncodeHeight encodes the height meta block.
func EncodeHeight(height int) []byte {
	return binary.AppendUvarint(nil, uint64(height))
}

// DecodeHeight decodes the height meta block.
func DecodeHeight(data []byte) (int, error) {
	h, n := binary.Uvarint(data)
	if n <= 0 || h == 0 || h > 64 {
		return 0, fmt.Errorf("%w: bad index height metadata %x", dberrors.ErrCorruption, data)
	}
	return int(h), nil
}
