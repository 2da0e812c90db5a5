package rtree

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"spatiallsm/pkg/block"
	"spatiallsm/pkg/dberrors"
	"spatiallsm/pkg/geometry"
	"spatiallsm/pkg/zcurve"
)

var errInjected = errors.New("injected read failure")

// memFile keeps index nodes in memory and serves them back to iterators.
type memFile struct {
	data       []byte
	meta       map[string][]byte
	reads      int
	prefetches int
	failAt     int
}

func newMemFile() *memFile {
	return &memFile{meta: map[string][]byte{}}
}

func (m *memFile) WriteIndexNode(contents []byte) (block.Handle, error) {
	h := block.Handle{Offset: uint64(len(m.data)), Size: uint64(len(contents))}
	m.data = append(m.data, contents...)
	return h, nil
}

func (m *memFile) WriteMetaBlock(name string, contents []byte) error {
	m.meta[name] = append([]byte(nil), contents...)
	return nil
}

func (m *memFile) Prefetch(block.Handle) { m.prefetches++ }

func (m *memFile) ReadBlock(h block.Handle) ([]byte, error) {
	m.reads++
	if m.failAt > 0 && m.reads >= m.failAt {
		return nil, errInjected
	}
	return m.data[h.Offset : h.Offset+h.Size], nil
}

type tree struct {
	file       *memFile
	format     Format
	root       []byte
	height     int
	incomplete int
	nodes      int
}

func (tr *tree) iter(query geometry.Box) *Iterator {
	return NewIterator(tr.root, tr.file, tr.format, tr.height, query)
}

func addBlocks(t *testing.T, b Builder, blocks [][]geometry.Box) {
	t.Helper()
	for i, blk := range blocks {
		for _, box := range blk {
			require.NoError(t, b.OnKeyAdded(geometry.EncodeKey(box), geometry.EncodeValue(box)))
		}
		var next []byte
		if i+1 < len(blocks) {
			next = geometry.EncodeKey(blocks[i+1][0])
		}
		last := geometry.EncodeKey(blk[len(blk)-1])
		require.NoError(t, b.AddIndexEntry(last, next, block.Handle{Offset: uint64(i), Size: 1}))
	}
}

func finishAll(t *testing.T, b Builder) *tree {
	t.Helper()
	f := newMemFile()
	tr := &tree{file: f, format: b.Format()}
	for {
		done, err := b.Finish(f)
		require.NoError(t, err)
		if done {
			break
		}
		tr.incomplete++
	}
	height, err := DecodeHeight(f.meta[b.Format().MetaBlockName()])
	require.NoError(t, err)
	require.Equal(t, b.Height(), height)
	h := b.RootHandle()
	tr.root = f.data[h.Offset : h.Offset+h.Size]
	tr.height = height
	tr.nodes = b.NumNodes()
	return tr
}

func buildKeyOrdered(t *testing.T, blocks [][]geometry.Box, policy block.PolicyFactory) *tree {
	t.Helper()
	b := NewKeyOrderedBuilder(policy)
	addBlocks(t, b, blocks)
	return finishAll(t, b)
}

func buildCurveOrdered(t *testing.T, blocks [][]geometry.Box, policy block.PolicyFactory, grid zcurve.Grid, src BoxSource) *tree {
	t.Helper()
	b, err := NewCurveOrderedBuilder(policy, grid, src)
	require.NoError(t, err)
	addBlocks(t, b, blocks)
	return finishAll(t, b)
}

func collect(t *testing.T, it *Iterator) []uint64 {
	t.Helper()
	var out []uint64
	for it.First(); it.Valid(); it.Next() {
		out = append(out, it.Handle().Offset)
	}
	require.NoError(t, it.Err())
	return out
}

func bruteForce(blocks [][]geometry.Box, format Format, query geometry.Box) []uint64 {
	var out []uint64
	for i, blk := range blocks {
		var u geometry.Box
		for _, b := range blk {
			format.expand(&u, b)
		}
		if format.Intersects(u, query) {
			out = append(out, uint64(i))
		}
	}
	return out
}

func randomPoints(r *rand.Rand, n, perBlock int) [][]geometry.Box {
	var blocks [][]geometry.Box
	for i := 0; i < n; i += perBlock {
		var blk []geometry.Box
		for j := i; j < i+perBlock && j < n; j++ {
			blk = append(blk, geometry.Point(uint64(j), r.Float64()*1000, r.Float64()*1000))
		}
		blocks = append(blocks, blk)
	}
	return blocks
}

func randomQuery(r *rand.Rand, n int) geometry.Box {
	x, y := r.Float64()*1000, r.Float64()*1000
	w, h := r.Float64()*200, r.Float64()*200
	q := geometry.Window(x, x+w, y, y+h)
	if r.Intn(3) == 0 {
		lo := uint64(r.Intn(n))
		q.SetID(lo, lo+uint64(r.Intn(n/4+1)))
	}
	return q
}

func sorted(v []uint64) []uint64 {
	v = slices.Clone(v)
	slices.Sort(v)
	return v
}

var testGrid = zcurve.Grid{XMin: 0, XMax: 1000, YMin: 0, YMax: 1000, N: 64}

func TestSingleLeafQuery(t *testing.T) {
	a := geometry.Point(1, 110, 210)
	b := geometry.Point(2, 320, 410)
	c := geometry.Point(3, 5, 6)
	tr := buildKeyOrdered(t, [][]geometry.Box{{a}, {b}, {c}}, block.FixedCostPolicy(8, 4096))
	require.Equal(t, 2, tr.height)
	require.Equal(t, 1, tr.incomplete)

	it := tr.iter(geometry.NewBox(0, 5, 0, 100, 0, 1000000))
	it.First()
	require.True(t, it.Valid())
	require.Equal(t, c, it.Box())
	require.Equal(t, uint64(2), it.Handle().Offset)
	require.Equal(t, geometry.EncodeQuery(c), []byte(it.Key()))
	it.Next()
	require.False(t, it.Valid())
	require.NoError(t, it.Err())
}

func TestKeyOrderedMatchesBruteForce(t *testing.T) {
	cases := []struct {
		n, perBlock int
		policy      block.PolicyFactory
		minHeight   int
	}{
		{n: 1, perBlock: 1, policy: block.FixedCostPolicy(8, 4096), minHeight: 2},
		{n: 300, perBlock: 3, policy: block.FixedCostPolicy(8, 4096), minHeight: 2},
		{n: 1000, perBlock: 1, policy: block.FixedCostPolicy(1, 4), minHeight: 5},
		{n: 2000, perBlock: 4, policy: block.FixedCostPolicy(1, 16), minHeight: 3},
		{n: 3000, perBlock: 2, policy: block.SizePolicy(512, 10), minHeight: 3},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("n=%d/per=%d", tc.n, tc.perBlock), func(t *testing.T) {
			r := rand.New(rand.NewSource(int64(tc.n)))
			blocks := randomPoints(r, tc.n, tc.perBlock)
			tr := buildKeyOrdered(t, blocks, tc.policy)
			require.GreaterOrEqual(t, tr.height, tc.minHeight)
			require.Equal(t, tr.nodes-1, tr.incomplete)

			for i := 0; i < 200; i++ {
				q := randomQuery(r, tc.n)
				got := collect(t, tr.iter(q))
				require.Equal(t, bruteForce(blocks, KeyOrdered, q), got, "query %v", q)
			}
		})
	}
}

func TestHeightOneTree(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	blocks := randomPoints(r, 50, 1)
	nb := block.NewBuilder()
	for i, blk := range blocks {
		nb.Add(geometry.EncodeQuery(blk[0]), block.Handle{Offset: uint64(i), Size: 1}.Encode())
	}
	tr := &tree{file: newMemFile(), format: KeyOrdered, root: nb.Finish(), height: 1}

	for i := 0; i < 100; i++ {
		q := randomQuery(r, 50)
		want := bruteForce(blocks, KeyOrdered, q)
		require.Equal(t, want, collect(t, tr.iter(q)))

		var back []uint64
		it := tr.iter(q)
		for it.Last(); it.Valid(); it.Prev() {
			back = append(back, it.Handle().Offset)
		}
		require.NoError(t, it.Err())
		slices.Reverse(back)
		require.Equal(t, want, back)
	}
	require.Zero(t, tr.file.reads)
}

func TestEmptyTree(t *testing.T) {
	for _, b := range []Builder{
		NewKeyOrderedBuilder(block.FixedCostPolicy(8, 4096)),
		mustCurve(t, block.FixedCostPolicy(8, 4096)),
	} {
		tr := finishAll(t, b)
		require.Equal(t, 1, tr.height)
		require.Zero(t, tr.incomplete)
		require.Equal(t, 1, tr.nodes)
		require.Empty(t, collect(t, tr.iter(geometry.Box{})))
	}
}

func mustCurve(t *testing.T, policy block.PolicyFactory) *CurveOrderedBuilder {
	t.Helper()
	b, err := NewCurveOrderedBuilder(policy, testGrid, BoxFromValue)
	require.NoError(t, err)
	return b
}

func TestEmptyQueryVisitsEveryEntry(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	blocks := randomPoints(r, 5000, 1)

	tr := buildKeyOrdered(t, blocks, block.FixedCostPolicy(1, 10))
	require.GreaterOrEqual(t, tr.height, 3)
	got := collect(t, tr.iter(geometry.Box{}))
	require.Len(t, got, len(blocks))
	for i, off := range got {
		require.Equal(t, uint64(i), off)
	}

	ctr := buildCurveOrdered(t, blocks, block.FixedCostPolicy(1, 10), testGrid, BoxFromValue)
	got = collect(t, ctr.iter(geometry.Box{}))
	require.Len(t, got, len(blocks))
	require.Equal(t, sorted(got), collect(t, tr.iter(geometry.Box{})))
}

func TestFinishProtocol(t *testing.T) {
	b := NewKeyOrderedBuilder(block.FixedCostPolicy(8, 4096))
	addBlocks(t, b, [][]geometry.Box{{geometry.Point(1, 1, 1)}, {geometry.Point(2, 2, 2)}})

	f := newMemFile()
	done, err := b.Finish(f)
	require.NoError(t, err)
	require.False(t, done)
	require.Empty(t, f.meta)

	done, err = b.Finish(f)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, 2, b.Height())
	require.Equal(t, EncodeHeight(2), f.meta[KeyOrderedMetaBlock])

	done, err = b.Finish(f)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, 2, b.NumNodes())

	require.ErrorIs(t, b.AddIndexEntry(nil, nil, block.Handle{}), dberrors.ErrFinished)
	require.ErrorIs(t, b.OnKeyAdded(geometry.EncodeKey(geometry.Point(3, 0, 0)), nil), dberrors.ErrFinished)
}

func TestFinishCountsNonRootNodes(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	for _, n := range []int{1, 7, 64, 65, 500} {
		blocks := randomPoints(r, n, 1)
		tr := buildKeyOrdered(t, blocks, block.FixedCostPolicy(1, 8))
		require.Equal(t, tr.nodes-1, tr.incomplete, "n=%d", n)
		if n <= 8 {
			require.Equal(t, 2, tr.height)
			require.Equal(t, tr.height-1, tr.incomplete)
		}
	}
}

func TestHeightGrowth(t *testing.T) {
	build := func(n int) int {
		b := NewKeyOrderedBuilder(block.FixedCostPolicy(8, 4096))
		key := make([]byte, 0, geometry.KeySize)
		for i := 0; i < n; i++ {
			box := geometry.Point(uint64(i), float64(i%1000), float64(i/1000))
			key = geometry.AppendKey(key[:0], box)
			require.NoError(t, b.OnKeyAdded(key, nil))
			var next []byte
			if i+1 < n {
				next = key
			}
			require.NoError(t, b.AddIndexEntry(key, next, block.Handle{Offset: uint64(i), Size: 1}))
		}
		return finishAll(t, b).height
	}

	require.Equal(t, 2, build(1000))
	if testing.Short() {
		t.Skip("skipping one million entry build in short mode")
	}
	require.Equal(t, 3, build(1000000))
}

// walk checks that every internal entry box is the exact union of the
// entry boxes of the child it points to, and returns the leaf entry count.
func walk(t *testing.T, tr *tree, contents []byte, level int) (geometry.Box, int) {
	t.Helper()
	bi, err := block.NewIter(contents, nil)
	require.NoError(t, err)
	var union geometry.Box
	count := 0
	for bi.First(); bi.Valid(); bi.Next() {
		box, err := tr.format.DecodeBox(bi.Key())
		require.NoError(t, err)
		tr.format.expand(&union, box)
		if level == 1 {
			count++
			continue
		}
		h, _, err := block.DecodeHandle(bi.Value())
		require.NoError(t, err)
		childUnion, n := walk(t, tr, tr.file.data[h.Offset:h.Offset+h.Size], level-1)
		require.Equal(t, childUnion, box, "level %d entry is not the union of its child", level)
		count += n
	}
	require.NoError(t, bi.Err())
	return union, count
}

func TestNodeBoxesAreExactUnions(t *testing.T) {
	r := rand.New(rand.NewSource(13))
	blocks := randomPoints(r, 4000, 3)

	tr := buildKeyOrdered(t, blocks, block.SizePolicy(600, 10))
	_, n := walk(t, tr, tr.root, tr.height)
	require.Equal(t, len(blocks), n)

	ctr := buildCurveOrdered(t, blocks, block.SizePolicy(600, 10), testGrid, BoxFromKey)
	_, n = walk(t, ctr, ctr.root, ctr.height)
	require.Equal(t, len(blocks), n)
}

func TestCurveOrderedMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(17))
	blocks := randomPoints(r, 3000, 1)
	for _, src := range []BoxSource{BoxFromValue, BoxFromKey} {
		t.Run(src.String(), func(t *testing.T) {
			tr := buildCurveOrdered(t, blocks, block.FixedCostPolicy(1, 16), testGrid, src)
			require.GreaterOrEqual(t, tr.height, 3)
			for i := 0; i < 200; i++ {
				q := randomQuery(r, 3000)
				got := collect(t, tr.iter(q))
				require.Equal(t, bruteForce(blocks, CurveOrdered, q), sorted(got), "query %v", q)
			}
		})
	}
}

func TestCurveOrderedLeavesFollowZOrder(t *testing.T) {
	r := rand.New(rand.NewSource(19))
	blocks := randomPoints(r, 2000, 1)
	tr := buildCurveOrdered(t, blocks, block.FixedCostPolicy(1, 32), testGrid, BoxFromValue)

	it := tr.iter(geometry.Box{})
	var prev *zcurve.Cell
	n := 0
	for it.First(); it.Valid(); it.Next() {
		x, y := it.Box().Centroid()
		c := testGrid.Cell(x, y)
		if prev != nil {
			require.LessOrEqual(t, zcurve.Compare(*prev, c), 0)
		}
		prev = &c
		n++
	}
	require.NoError(t, it.Err())
	require.Equal(t, len(blocks), n)
}

func TestRequestCut(t *testing.T) {
	b := NewKeyOrderedBuilder(block.FixedCostPolicy(8, 4096))
	for i := 0; i < 4; i++ {
		key := geometry.EncodeKey(geometry.Point(uint64(i), float64(i), float64(i)))
		require.NoError(t, b.OnKeyAdded(key, nil))
		if i == 2 {
			b.RequestCut()
		}
		var next []byte
		if i < 3 {
			next = key
		}
		require.NoError(t, b.AddIndexEntry(key, next, block.Handle{Offset: uint64(i), Size: 1}))
	}
	tr := finishAll(t, b)
	require.Equal(t, 3, tr.nodes)
	require.Equal(t, 2, tr.height)
	require.Equal(t, []uint64{0, 1, 2, 3}, collect(t, tr.iter(geometry.Box{})))

	leaves, n := 0, 0
	root, err := block.NewIter(tr.root, nil)
	require.NoError(t, err)
	for root.First(); root.Valid(); root.Next() {
		h, _, err := block.DecodeHandle(root.Value())
		require.NoError(t, err)
		child, err := block.NewIter(tr.file.data[h.Offset:h.Offset+h.Size], nil)
		require.NoError(t, err)
		leaves++
		n += child.Len()
		if leaves == 1 {
			require.Equal(t, 2, child.Len())
		}
	}
	require.Equal(t, 2, leaves)
	require.Equal(t, 4, n)

	cb := mustCurve(t, block.FixedCostPolicy(8, 4096))
	for i := 0; i < 4; i++ {
		box := geometry.Point(uint64(i), float64(i), float64(i))
		require.NoError(t, cb.OnKeyAdded(geometry.EncodeKey(box), geometry.EncodeValue(box)))
		if i == 3 {
			cb.RequestCut()
		}
		require.NoError(t, cb.AddIndexEntry(nil, nil, block.Handle{Offset: uint64(i), Size: 1}))
	}
	require.Equal(t, 3, finishAll(t, cb).nodes)
}

func TestBackwardIteration(t *testing.T) {
	r := rand.New(rand.NewSource(23))
	blocks := randomPoints(r, 900, 1)

	tr := buildKeyOrdered(t, blocks, block.FixedCostPolicy(8, 4096))
	require.Equal(t, 2, tr.height)
	for i := 0; i < 50; i++ {
		q := randomQuery(r, 900)
		it := tr.iter(q)
		var back []uint64
		for it.Last(); it.Valid(); it.Prev() {
			back = append(back, it.Handle().Offset)
		}
		require.NoError(t, it.Err())
		slices.Reverse(back)
		require.Equal(t, bruteForce(blocks, KeyOrdered, q), back)
	}

	deep := buildKeyOrdered(t, blocks, block.FixedCostPolicy(1, 4))
	require.Greater(t, deep.height, 2)
	it := deep.iter(geometry.Box{})
	it.Last()
	require.False(t, it.Valid())
	require.ErrorIs(t, it.Err(), dberrors.ErrBackwardUnsupported)

	it = deep.iter(geometry.Box{})
	it.First()
	require.True(t, it.Valid())
	it.Prev()
	require.False(t, it.Valid())
	require.ErrorIs(t, it.Err(), dberrors.ErrBackwardUnsupported)
}

func TestReadFailureInvalidates(t *testing.T) {
	r := rand.New(rand.NewSource(29))
	blocks := randomPoints(r, 2000, 1)
	tr := buildKeyOrdered(t, blocks, block.FixedCostPolicy(1, 8))
	tr.file.failAt = 3

	it := tr.iter(geometry.Box{})
	n := 0
	for it.First(); it.Valid(); it.Next() {
		n++
	}
	require.Less(t, n, len(blocks))
	require.ErrorIs(t, it.Err(), errInjected)
	require.Nil(t, it.Key())
}

func TestPrefetchPrecedesEveryRead(t *testing.T) {
	r := rand.New(rand.NewSource(31))
	blocks := randomPoints(r, 1000, 1)
	tr := buildKeyOrdered(t, blocks, block.FixedCostPolicy(1, 8))
	collect(t, tr.iter(geometry.Window(0, 100, 0, 100)))
	require.Positive(t, tr.file.reads)
	require.Equal(t, tr.file.reads, tr.file.prefetches)
}

func TestSeekTargets(t *testing.T) {
	r := rand.New(rand.NewSource(37))
	blocks := randomPoints(r, 500, 1)
	tr := buildKeyOrdered(t, blocks, block.FixedCostPolicy(1, 16))

	window := geometry.Window(100, 400, 100, 400)
	it := tr.iter(geometry.Box{})
	it.Seek(geometry.EncodeValue(window))
	var got []uint64
	for ; it.Valid(); it.Next() {
		got = append(got, it.Handle().Offset)
	}
	require.NoError(t, it.Err())
	require.Equal(t, bruteForce(blocks, KeyOrdered, window), got)

	point := blocks[42][0]
	it.Seek(geometry.EncodeKey(point))
	require.True(t, it.Valid())
	require.Equal(t, uint64(42), it.Handle().Offset)
	it.Next()
	require.False(t, it.Valid())

	it.Seek(geometry.EncodeQuery(geometry.NewBox(10, 12, math.Inf(-1), math.Inf(1), math.Inf(-1), math.Inf(1))))
	got = got[:0]
	for ; it.Valid(); it.Next() {
		got = append(got, it.Handle().Offset)
	}
	require.Equal(t, []uint64{10, 11, 12}, got)

	it.Seek([]byte{1, 2, 3})
	require.False(t, it.Valid())
	require.ErrorIs(t, it.Err(), dberrors.ErrInvalidArgument)
}

func TestHeightMetadata(t *testing.T) {
	for _, h := range []int{1, 2, 3, 40} {
		got, err := DecodeHeight(EncodeHeight(h))
		require.NoError(t, err)
		require.Equal(t, h, got)
	}
	for _, bad := range [][]byte{nil, {0}, {0x80}} {
		_, err := DecodeHeight(bad)
		require.ErrorIs(t, err, dberrors.ErrCorruption)
	}
	it := NewIterator(nil, newMemFile(), KeyOrdered, 0, geometry.Box{})
	it.First()
	require.False(t, it.Valid())
	require.ErrorIs(t, it.Err(), dberrors.ErrCorruption)
}

func TestFormats(t *testing.T) {
	for name, want := range map[string]Format{"key": KeyOrdered, "curve": CurveOrdered, "secondary": CurveOrdered} {
		got, err := ParseFormat(name)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseFormat("hilbert")
	require.ErrorIs(t, err, dberrors.ErrInvalidArgument)
	require.Equal(t, 48, KeyOrdered.BoxSize())
	require.Equal(t, 32, CurveOrdered.BoxSize())

	_, err = NewCurveOrderedBuilder(block.FixedCostPolicy(1, 2), zcurve.Grid{}, BoxFromValue)
	require.ErrorIs(t, err, dberrors.ErrInvalidArgument)
}

func TestLastBlockJoinsOpenLeaf(t *testing.T) {
	var blocks [][]geometry.Box
	for i := 0; i < 5; i++ {
		blocks = append(blocks, []geometry.Box{geometry.Point(uint64(i), float64(i), float64(i))})
	}
	// four entries fill a leaf; the fifth is the table's last block
	tr := buildKeyOrdered(t, blocks, block.FixedCostPolicy(1, 4))
	require.Equal(t, 2, tr.height)
	require.Equal(t, 2, tr.nodes)
	require.Equal(t, []uint64{0, 1, 2, 3, 4}, collect(t, tr.iter(geometry.Box{})))

	// a requested cut still applies to the last block
	b := NewKeyOrderedBuilder(block.FixedCostPolicy(1, 4))
	for i, blk := range blocks {
		key := geometry.EncodeKey(blk[0])
		require.NoError(t, b.OnKeyAdded(key, nil))
		var next []byte
		if i+1 < len(blocks) {
			next = geometry.EncodeKey(blocks[i+1][0])
		} else {
			b.RequestCut()
		}
		require.NoError(t, b.AddIndexEntry(key, next, block.Handle{Offset: uint64(i), Size: 1}))
	}
	cut := finishAll(t, b)
	require.Equal(t, 3, cut.nodes)
	require.Equal(t, []uint64{0, 1, 2, 3, 4}, collect(t, cut.iter(geometry.Box{})))
}

func TestInvalidSeekIsNotPermanent(t *testing.T) {
	r := rand.New(rand.NewSource(31))
	blocks := randomPoints(r, 300, 1)
	tr := buildKeyOrdered(t, blocks, block.FixedCostPolicy(1, 4))
	require.Greater(t, tr.height, 2)

	it := tr.iter(geometry.Box{})
	it.Seek([]byte{1, 2, 3})
	require.False(t, it.Valid())
	require.ErrorIs(t, it.Err(), dberrors.ErrInvalidArgument)

	q := geometry.Window(0, 500, 0, 500)
	it.Seek(geometry.EncodeQuery(q))
	require.NoError(t, it.Err())
	var got []uint64
	for ; it.Valid(); it.Next() {
		got = append(got, it.Handle().Offset)
	}
	require.Equal(t, bruteForce(blocks, KeyOrdered, q), got)

	it.Last()
	require.ErrorIs(t, it.Err(), dberrors.ErrBackwardUnsupported)
	it.First()
	require.NoError(t, it.Err())
	require.True(t, it.Valid())

	// read failures stay
	tr.file.failAt = tr.file.reads + 1
	it.First()
	require.ErrorIs(t, it.Err(), errInjected)
	tr.file.failAt = 0
	it.Seek(nil)
	require.False(t, it.Valid())
	require.ErrorIs(t, it.Err(), errInjected)
}

func TestInvalidIteratorHasNoEntry(t *testing.T) {
	r := rand.New(rand.NewSource(37))
	blocks := randomPoints(r, 40, 1)
	tr := buildKeyOrdered(t, blocks, block.FixedCostPolicy(1, 8))

	it := tr.iter(geometry.Box{})
	for it.First(); it.Valid(); it.Next() {
		require.False(t, it.Box().IsEmpty())
	}
	require.NoError(t, it.Err())
	require.True(t, it.Box().IsEmpty())
	require.Zero(t, it.Handle())
	require.Nil(t, it.Key())

	it.First()
	require.True(t, it.Valid())
	it.Seek([]byte{0})
	require.Error(t, it.Err())
	require.True(t, it.Box().IsEmpty())
	require.Zero(t, it.Handle())
}
