package memtable

import (
	"context"
	"sync/atomic"

	"github.com/zhangyunhao116/skipmap"

	"spatiallsm/pkg/geometry"
	"spatiallsm/pkg/spatial"
)

type concurrentSet = skipmap.FuncMap[uint64, Item]

// Table is one memtable generation: an identifier-ordered map plus an
// in-memory R-tree over the same items.
type Table struct {
	items   *concurrentSet
	index   *spatial.Index
	size    atomic.Uint64
	maxSeqN atomic.Uint64

	flushed chan struct{}
	err     error
}

func newTable() *Table {
	return &Table{
		items: skipmap.NewFunc[uint64, Item](func(a, b uint64) bool {
			return a < b
		}),
		index:   spatial.New(),
		flushed: make(chan struct{}),
	}
}

func (t *Table) put(it Item) error {
	if err := t.index.Insert(it.Box, it.ID); err != nil {
		return err
	}
	t.items.Store(it.ID, it)
	for {
		cur := t.maxSeqN.Load()
		if it.SeqN <= cur || t.maxSeqN.CompareAndSwap(cur, it.SeqN) {
			return nil
		}
	}
}

// MaxSeqN is the newest sequence number stored in this generation.
func (t *Table) MaxSeqN() uint64 { return t.maxSeqN.Load() }

// Get returns the newest item stored under id in this generation.
func (t *Table) Get(id uint64) (Item, bool) {
	return t.items.Load(id)
}

// Search calls visit once per identifier whose current box intersects
// query, until visit returns false.
func (t *Table) Search(query geometry.Box, visit func(Item) bool) {
	seen := make(map[uint64]struct{})
	t.index.Search(query, func(id uint64, _ geometry.Box) bool {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
		it, ok := t.items.Load(id)
		if !ok || !geometry.Intersects(it.Box, query) {
			return true
		}
		return visit(it)
	})
}

func (t *Table) Len() int { return t.items.Len() }

// Sorted returns the items in identifier order, which is table key order.
func (t *Table) Sorted() []Item {
	result := make([]Item, 0, t.items.Len())
	t.items.Range(func(_ uint64, value Item) bool {
		result = append(result, value)
		return true
	})
	return result
}

// Done records the outcome of flushing this generation and wakes Wait.
func (t *Table) Done(err error) {
	t.err = err
	close(t.flushed)
}

// Failed returns the error of a finished flush, or nil while the flush is
// pending or after it succeeded.
func (t *Table) Failed() error {
	select {
	case <-t.flushed:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until Done was called or ctx ends.
func (t *Table) Wait(ctx context.Context) error {
	select {
	case <-t.flushed:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SortedSet is a frozen generation handed to the flusher.
type SortedSet interface {
	Sorted() []Item
	Len() int
	Done(err error)
	Wait(ctx context.Context) error
}

var _ SortedSet = (*Table)(nil)
