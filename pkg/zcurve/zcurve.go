// Package zcurve linearises two-dimensional points along a Z-order (Morton)
// curve over a discretised grid.
package zcurve

import (
	"cmp"
	"fmt"
	"math"

	"spatiallsm/pkg/dberrors"
)

// DefaultResolution is the number of cells per axis used when none is configured.
const DefaultResolution = 2048

// Grid maps a rectangular domain onto an n×n cell grid.
type Grid struct {
	XMin, XMax float64
	YMin, YMax float64
	N          uint32
}

// DefaultGrid covers the whole longitude/latitude domain.
func DefaultGrid() Grid {
	return Grid{XMin: -180, XMax: 180, YMin: -90, YMax: 90, N: DefaultResolution}
}

// Validate rejects grids that cannot discretise anything.
func (g Grid) Validate() error {
	if g.N == 0 {
		return fmt.Errorf("%w: zcurve grid resolution must be positive", dberrors.ErrInvalidArgument)
	}
	if !(g.XMax > g.XMin) || !(g.YMax > g.YMin) {
		return fmt.Errorf("%w: zcurve grid domain [%g,%g]x[%g,%g] is empty",
			dberrors.ErrInvalidArgument, g.XMin, g.XMax, g.YMin, g.YMax)
	}
	return nil
}

// Cell is a discretised grid position.
type Cell struct {
	X, Y uint32
}

// Cell returns the grid cell holding (x, y). Coordinates outside the domain
// are clamped to the border cells; NaN maps to cell zero.
func (g Grid) Cell(x, y float64) Cell {
	return Cell{
		X: discretise(x, g.XMin, g.XMax, g.N),
		Y: discretise(y, g.YMin, g.YMax, g.N),
	}
}

func discretise(v, lo, hi float64, n uint32) uint32 {
	step := (hi - lo) / float64(n)
	f := math.Floor((v - lo) / step)
	switch {
	case !(f >= 0):
		return 0
	case f >= float64(n-1):
		return n - 1
	}
	return uint32(f)
}

// lessMSB reports whether the most significant set bit of x is strictly
// below that of y.
func lessMSB(x, y uint32) bool {
	return x < y && x < (x^y)
}

// Compare orders two cells along the Z-order curve. The y axis decides only
// when its XOR has the strictly higher most significant bit; otherwise x
// does. The result equals comparing Interleave(a) with Interleave(b).
func Compare(a, b Cell) int {
	if lessMSB(a.X^b.X, a.Y^b.Y) {
		return cmp.Compare(a.Y, b.Y)
	}
	return cmp.Compare(a.X, b.X)
}

// Interleave returns the Morton code of c with the x bits in the odd
// positions.
func Interleave(c Cell) uint64 {
	return spread(c.Y) | spread(c.X)<<1
}

func spread(v uint32) uint64 {
	x := uint64(v)
	x = (x | x<<16) & 0x0000ffff0000ffff
	x = (x | x<<8) & 0x00ff00ff00ff00ff
	x = (x | x<<4) & 0x0f0f0f0f0f0f0f0f
	x = (x | x<<2) & 0x3333333333333333
	x = (x | x<<1) & 0x5555555555555555
	return x
}
