package geometry

import (
	"fmt"
	"math"
)

// Interval is a closed real interval. It may collapse to a point.
type Interval struct {
	Min float64
	Max float64
}

// IDInterval is a closed interval over object identifiers.
type IDInterval struct {
	Min uint64
	Max uint64
}

// Box is a minimum bounding rectangle over an identifier interval and two
// spatial intervals. The zero value is the empty box, which intersects every
// other box and is the identity element of Expand.
//
// Min <= Max is assumed for every interval and never checked.
type Box struct {
	ID IDInterval
	X  Interval
	Y  Interval

	set bool
}

// NewBox builds a non-empty box from its six bounds.
func NewBox(idMin, idMax uint64, xMin, xMax, yMin, yMax float64) Box {
	return Box{
		ID:  IDInterval{Min: idMin, Max: idMax},
		X:   Interval{Min: xMin, Max: xMax},
		Y:   Interval{Min: yMin, Max: yMax},
		set: true,
	}
}

// Point builds the degenerate box of a single object located at (x, y).
func Point(id uint64, x, y float64) Box {
	return NewBox(id, id, x, x, y, y)
}

// Window builds a box that is unconstrained on the identifier axis.
func Window(xMin, xMax, yMin, yMax float64) Box {
	return NewBox(0, math.MaxUint64, xMin, xMax, yMin, yMax)
}

// ByID builds a box matching a single identifier anywhere in space.
func ByID(id uint64) Box {
	return NewBox(id, id, math.Inf(-1), math.Inf(1), math.Inf(-1), math.Inf(1))
}

// IsEmpty reports whether no bound was ever set.
func (b Box) IsEmpty() bool { return !b.set }

// Clear resets the box to the empty box.
func (b *Box) Clear() { *b = Box{} }

func (b *Box) SetID(lo, hi uint64) {
	b.ID = IDInterval{Min: lo, Max: hi}
	b.set = true
}

func (b *Box) SetX(lo, hi float64) {
	b.X = Interval{Min: lo, Max: hi}
	b.set = true
}

func (b *Box) SetY(lo, hi float64) {
	b.Y = Interval{Min: lo, Max: hi}
	b.set = true
}

// Intersects reports whether a and b overlap on all three axes. Bounds are
// inclusive. An empty box intersects everything.
func Intersects(a, b Box) bool {
	if a.IsEmpty() || b.IsEmpty() {
		return true
	}
	if a.ID.Min > b.ID.Max || b.ID.Min > a.ID.Max {
		return false
	}
	return IntersectsIgnoringID(a, b)
}

// IntersectsIgnoringID is Intersects restricted to the two spatial axes.
func IntersectsIgnoringID(a, b Box) bool {
	if a.IsEmpty() || b.IsEmpty() {
		return true
	}
	if a.X.Min > b.X.Max || b.X.Min > a.X.Max {
		return false
	}
	if a.Y.Min > b.Y.Max || b.Y.Min > a.Y.Max {
		return false
	}
	return true
}

// Expand grows b in place to the union of b and other.
func (b *Box) Expand(other Box) {
	if other.IsEmpty() {
		return
	}
	if b.IsEmpty() {
		*b = other
		return
	}
	b.ID.Min = min(b.ID.Min, other.ID.Min)
	b.ID.Max = max(b.ID.Max, other.ID.Max)
	b.expandSpatial(other)
}

// ExpandIgnoringID grows only the spatial intervals. The identifier interval
// of an empty target stays zero.
func (b *Box) ExpandIgnoringID(other Box) {
	if other.IsEmpty() {
		return
	}
	if b.IsEmpty() {
		b.X, b.Y, b.set = other.X, other.Y, true
		return
	}
	b.expandSpatial(other)
}

func (b *Box) expandSpatial(other Box) {
	b.X.Min = math.Min(b.X.Min, other.X.Min)
	b.X.Max = math.Max(b.X.Max, other.X.Max)
	b.Y.Min = math.Min(b.Y.Min, other.Y.Min)
	b.Y.Max = math.Max(b.Y.Max, other.Y.Max)
}

// Union returns the union of a and b without modifying either.
func Union(a, b Box) Box {
	a.Expand(b)
	return a
}

// Area is the product of the two spatial widths; zero for points, segments
// and the empty box.
func Area(b Box) float64 {
	if b.IsEmpty() {
		return 0
	}
	return (b.X.Max - b.X.Min) * (b.Y.Max - b.Y.Min)
}

// OverlapArea is the area of the spatial intersection of a and b, or zero
// when they are disjoint.
func OverlapArea(a, b Box) float64 {
	if a.IsEmpty() || b.IsEmpty() {
		return 0
	}
	w := math.Min(a.X.Max, b.X.Max) - math.Max(a.X.Min, b.X.Min)
	h := math.Min(a.Y.Max, b.Y.Max) - math.Max(a.Y.Min, b.Y.Min)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Centroid returns the centre of the spatial rectangle.
func (b Box) Centroid() (x, y float64) {
	return (b.X.Min + b.X.Max) / 2, (b.Y.Min + b.Y.Max) / 2
}

func (b Box) String() string {
	if b.IsEmpty() {
		return "[empty]"
	}
	return fmt.Sprintf("[[%d,%d],[%g,%g],[%g,%g]]",
		b.ID.Min, b.ID.Max, b.X.Min, b.X.Max, b.Y.Min, b.Y.Max)
}
