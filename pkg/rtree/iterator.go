package rtree

import (
	"errors"
	"fmt"
	"math"

	"spatiallsm/pkg/block"
	"spatiallsm/pkg/dberrors"
	"spatiallsm/pkg/geometry"
	"spatiallsm/pkg/iterator"
)

// BlockReader materialises index nodes for an Iterator.
type BlockReader interface {
	// Prefetch is called before every ReadBlock with the handle about to be
	// read.
	Prefetch(h block.Handle)
	ReadBlock(h block.Handle) ([]byte, error)
}

type frame struct {
	it    *block.Iter
	level int
}

// Iterator performs a pruned depth-first walk over a persisted tree and
// yields every leaf entry whose box intersects the query. The key of an
// entry is its encoded box; the value is the encoded data block handle.
//
// Sibling entries are scanned linearly. Moving backward is only supported
// for trees of height 1 or 2.
type Iterator struct {
	r      BlockReader
	format Format
	height int
	root   []byte
	query  geometry.Box

	// stack[0] iterates the root node; the last frame is the current leaf.
	stack []frame
	box   geometry.Box
	h     block.Handle
	err   error
}

var _ iterator.Iterator = (*Iterator)(nil)

// NewIterator returns an unpositioned iterator over the tree whose root node
// contents are root. An empty query box matches every entry.
func NewIterator(root []byte, r BlockReader, format Format, height int, query geometry.Box) *Iterator {
	it := &Iterator{
		r:      r,
		format: format,
		height: height,
		root:   root,
		query:  query,
	}
	if height < 1 {
		it.err = fmt.Errorf("%w: index height %d", dberrors.ErrCorruption, height)
	}
	return it
}

// Query returns the box entries are matched against.
func (it *Iterator) Query() geometry.Box { return it.query }

// Seek replaces the query with target and positions on the first match.
// target is a 48-byte query box, a 40-byte key box or a 32-byte value box
// (any identifier); an empty target scans everything.
//
// A malformed target or an unsupported backward move invalidates the
// iterator until the next Seek, First or Last. Read and corruption errors
// are permanent.
func (it *Iterator) Seek(target []byte) {
	var (
		q   geometry.Box
		err error
	)
	switch len(target) {
	case 0:
	case geometry.QuerySize:
		q, err = geometry.DecodeQuery(target)
	case geometry.KeySize:
		q, err = geometry.DecodeKey(target)
	case geometry.ValueSize:
		q, err = geometry.DecodeValue(target)
		q.SetID(0, math.MaxUint64)
	default:
		err = fmt.Errorf("%w: seek target of %d bytes is not a box", dberrors.ErrInvalidArgument, len(target))
	}
	if err != nil {
		it.fail(err)
		return
	}
	it.query = q
	it.First()
}

// First positions on the first matching leaf entry.
func (it *Iterator) First() {
	if !it.reset() {
		return
	}
	it.stack[0].it.First()
	it.descend(true)
}

// Last positions on the last matching leaf entry.
func (it *Iterator) Last() {
	if !it.backwardSupported() || !it.reset() {
		return
	}
	it.stack[0].it.Last()
	it.descend(false)
}

func (it *Iterator) Next() {
	if !it.Valid() {
		return
	}
	it.top().it.Next()
	it.descend(true)
}

func (it *Iterator) Prev() {
	if !it.Valid() || !it.backwardSupported() {
		return
	}
	it.top().it.Prev()
	it.descend(false)
}

func (it *Iterator) Valid() bool {
	if it.err != nil || len(it.stack) == 0 {
		return false
	}
	f := it.top()
	return f.level == 1 && f.it.Valid()
}

// Key is the encoded box of the current leaf entry.
func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.top().it.Key()
}

// Value is the encoded handle of the data block the entry refers to.
func (it *Iterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.top().it.Value()
}

// Box is the decoded box of the current leaf entry.
func (it *Iterator) Box() geometry.Box {
	if !it.Valid() {
		return geometry.Box{}
	}
	return it.box
}

// Handle is the decoded data block handle of the current leaf entry.
func (it *Iterator) Handle() block.Handle {
	if !it.Valid() {
		return block.Handle{}
	}
	return it.h
}

// Height is the number of tree levels.
func (it *Iterator) Height() int { return it.height }

func (it *Iterator) Err() error { return it.err }

func (it *Iterator) Close() error {
	it.release(0)
	it.root = nil
	return nil
}

func (it *Iterator) top() *frame { return &it.stack[len(it.stack)-1] }

func (it *Iterator) reset() bool {
	if it.permanent() {
		return false
	}
	it.err = nil
	it.release(0)
	root, err := block.NewIter(it.root, nil)
	if err != nil {
		it.fail(fmt.Errorf("index root: %w", err))
		return false
	}
	it.stack = append(it.stack, frame{it: root, level: it.height})
	return true
}

func (it *Iterator) release(depth int) {
	for i := depth; i < len(it.stack); i++ {
		it.stack[i] = frame{}
	}
	it.stack = it.stack[:depth]
}

func (it *Iterator) backwardSupported() bool {
	if it.height > 2 {
		it.fail(dberrors.ErrBackwardUnsupported)
		return false
	}
	return true
}

func (it *Iterator) fail(err error) {
	if !it.permanent() {
		it.err = err
	}
	it.clearEntry()
	it.release(0)
}

// permanent reports an error that no repositioning can clear.
func (it *Iterator) permanent() bool {
	return it.err != nil &&
		!errors.Is(it.err, dberrors.ErrInvalidArgument) &&
		!errors.Is(it.err, dberrors.ErrBackwardUnsupported)
}

func (it *Iterator) clearEntry() {
	it.box = geometry.Box{}
	it.h = block.Handle{}
}

// descend settles on the nearest matching leaf entry in the direction of
// travel. Exhausted frames are popped and the parent advanced; matching
// internal entries get their child opened and pushed.
func (it *Iterator) descend(forward bool) {
	for len(it.stack) > 0 {
		f := it.top()
		for f.it.Valid() {
			match, err := it.matches(f.it.Key())
			if err != nil {
				it.fail(err)
				return
			}
			if match {
				break
			}
			it.step(f.it, forward)
		}
		if !f.it.Valid() {
			if err := f.it.Err(); err != nil {
				it.fail(fmt.Errorf("index node at level %d: %w", f.level, err))
				return
			}
			if len(it.stack) == 1 {
				it.clearEntry()
				return
			}
			it.release(len(it.stack) - 1)
			it.step(it.top().it, forward)
			continue
		}

		h, _, err := block.DecodeHandle(f.it.Value())
		if err != nil {
			it.fail(fmt.Errorf("index entry at level %d: %w", f.level, err))
			return
		}
		if f.level == 1 {
			it.h = h
			return
		}
		child, err := it.open(h)
		if err != nil {
			it.fail(err)
			return
		}
		if forward {
			child.First()
		} else {
			child.Last()
		}
		it.stack = append(it.stack, frame{it: child, level: f.level - 1})
	}
}

func (it *Iterator) step(bi *block.Iter, forward bool) {
	if forward {
		bi.Next()
	} else {
		bi.Prev()
	}
}

func (it *Iterator) matches(key []byte) (bool, error) {
	box, err := it.format.DecodeBox(key)
	if err != nil {
		return false, err
	}
	it.box = box
	return it.format.Intersects(box, it.query), nil
}

func (it *Iterator) open(h block.Handle) (*block.Iter, error) {
	it.r.Prefetch(h)
	data, err := it.r.ReadBlock(h)
	if err != nil {
		return nil, fmt.Errorf("read index node %v: %w", h, err)
	}
	bi, err := block.NewIter(data, nil)
	if err != nil {
		return nil, fmt.Errorf("index node %v: %w", h, err)
	}
	return bi, nil
}
