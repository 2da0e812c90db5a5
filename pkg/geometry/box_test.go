package geometry

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"spatiallsm/pkg/dberrors"
)

func randomBox(r *rand.Rand) Box {
	x0, x1 := r.Float64()*1000, r.Float64()*1000
	y0, y1 := r.Float64()*1000, r.Float64()*1000
	id0, id1 := uint64(r.Intn(100)), uint64(r.Intn(100))
	return NewBox(min(id0, id1), max(id0, id1),
		math.Min(x0, x1), math.Max(x0, x1), math.Min(y0, y1), math.Max(y0, y1))
}

func TestIntersectsSymmetric(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		a, b := randomBox(r), randomBox(r)
		require.Equal(t, Intersects(a, b), Intersects(b, a), "a=%v b=%v", a, b)
		require.Equal(t, IntersectsIgnoringID(a, b), IntersectsIgnoringID(b, a))
		require.True(t, Intersects(a, a))
		if Intersects(a, b) {
			require.True(t, IntersectsIgnoringID(a, b))
		}
	}
}

func TestEmptyIntersectsEverything(t *testing.T) {
	var empty Box
	require.True(t, empty.IsEmpty())
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 100; i++ {
		b := randomBox(r)
		require.True(t, Intersects(empty, b))
		require.True(t, Intersects(b, empty))
		require.True(t, IntersectsIgnoringID(empty, b))
	}
	require.True(t, Intersects(empty, empty))
}

func TestIntersectsBoundsInclusive(t *testing.T) {
	a := NewBox(1, 1, 0, 10, 0, 10)
	require.True(t, Intersects(a, NewBox(1, 5, 10, 20, 10, 20)))
	require.False(t, Intersects(a, NewBox(2, 5, 0, 10, 0, 10)))
	require.True(t, IntersectsIgnoringID(a, NewBox(2, 5, 0, 10, 0, 10)))
	require.False(t, IntersectsIgnoringID(a, NewBox(0, 0, 10.5, 20, 0, 10)))
	require.False(t, IntersectsIgnoringID(a, NewBox(0, 0, 0, 10, -5, -0.1)))
}

func TestExpand(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		a, b := randomBox(r), randomBox(r)

		self := a
		self.Expand(a)
		require.Equal(t, a, self)

		u := Union(a, b)
		require.GreaterOrEqual(t, Area(u), math.Max(Area(a), Area(b)))
		require.True(t, Intersects(u, a))
		require.True(t, Intersects(u, b))
		require.LessOrEqual(t, u.ID.Min, a.ID.Min)
		require.GreaterOrEqual(t, u.X.Max, b.X.Max)
	}

	var acc Box
	b := NewBox(4, 9, 1, 2, 3, 4)
	acc.Expand(b)
	require.Equal(t, b, acc)
	acc.Expand(Box{})
	require.Equal(t, b, acc)
}

func TestExpandIgnoringID(t *testing.T) {
	var acc Box
	acc.ExpandIgnoringID(NewBox(7, 7, 1, 2, 3, 4))
	acc.ExpandIgnoringID(NewBox(9, 9, -1, 0, 5, 6))
	require.False(t, acc.IsEmpty())
	require.Equal(t, IDInterval{}, acc.ID)
	require.Equal(t, Interval{Min: -1, Max: 2}, acc.X)
	require.Equal(t, Interval{Min: 3, Max: 6}, acc.Y)
}

func TestAreaAndOverlap(t *testing.T) {
	require.Zero(t, Area(Point(1, 5, 5)))
	require.Zero(t, Area(Box{}))
	require.Equal(t, 6.0, Area(NewBox(0, 0, 0, 2, 0, 3)))

	a := NewBox(0, 0, 0, 4, 0, 4)
	require.Equal(t, 4.0, OverlapArea(a, NewBox(0, 0, 2, 6, 2, 6)))
	require.Zero(t, OverlapArea(a, NewBox(0, 0, 5, 6, 5, 6)))
	require.Zero(t, OverlapArea(a, NewBox(0, 0, 4, 6, 0, 4)))

	r := rand.New(rand.NewSource(4))
	for i := 0; i < 1000; i++ {
		x, y := randomBox(r), randomBox(r)
		o := OverlapArea(x, y)
		require.GreaterOrEqual(t, o, 0.0)
		if !IntersectsIgnoringID(x, y) {
			require.Zero(t, o)
		}
		require.InDelta(t, o, OverlapArea(y, x), 1e-9)
	}
}

func TestCentroid(t *testing.T) {
	x, y := NewBox(0, 0, 2, 4, -6, -2).Centroid()
	require.Equal(t, 3.0, x)
	require.Equal(t, -4.0, y)
}

func TestCodecs(t *testing.T) {
	b := NewBox(42, 42, -1.5, 2.25, 1e9, 1e10)

	key := EncodeKey(b)
	require.Len(t, key, KeySize)
	got, err := DecodeKey(key)
	require.NoError(t, err)
	require.Equal(t, b, got)

	q := NewBox(3, 99, 0, 1, 2, 3)
	qb := EncodeQuery(q)
	require.Len(t, qb, QuerySize)
	got, err = DecodeQuery(qb)
	require.NoError(t, err)
	require.Equal(t, q, got)

	v := EncodeValue(b)
	require.Len(t, v, ValueSize)
	got, err = DecodeValue(v)
	require.NoError(t, err)
	require.Equal(t, b.X, got.X)
	require.Equal(t, b.Y, got.Y)
	require.Equal(t, IDInterval{}, got.ID)

	// Little-endian identifier in the first eight bytes.
	require.Equal(t, byte(42), key[0])
	require.Equal(t, byte(3), qb[0])
	require.Equal(t, byte(99), qb[8])
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := DecodeKey(make([]byte, KeySize-1))
	require.True(t, errors.Is(err, dberrors.ErrCorruption))
	_, err = DecodeQuery(make([]byte, KeySize))
	require.True(t, errors.Is(err, dberrors.ErrCorruption))
	_, err = DecodeValue(nil)
	require.True(t, errors.Is(err, dberrors.ErrCorruption))
}

func TestCompareKeys(t *testing.T) {
	a := EncodeKey(Point(1, 100, 100))
	b := EncodeKey(Point(2, 0, 0))
	c := EncodeKey(Point(256, 0, 0))
	require.Negative(t, CompareKeys(a, b))
	require.Negative(t, CompareKeys(b, c))
	require.Positive(t, CompareKeys(c, a))
	require.Zero(t, CompareKeys(a, EncodeKey(Point(1, 100, 100))))
	require.NotZero(t, CompareKeys(a, EncodeKey(Point(1, 100, 101))))
}
