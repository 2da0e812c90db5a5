// Package spatial is the in-memory R-tree used by the memtable before data
// reaches a table file. It is a proxy for github.com/dhconnelly/rtreego.
package spatial

import (
	"fmt"
	"math"
	"sync"

	"github.com/dhconnelly/rtreego"

	"spatiallsm/pkg/dberrors"
	"spatiallsm/pkg/geometry"
)

const (
	minChildren = 25
	maxChildren = 50
)

type entry struct {
	id   uint64
	box  geometry.Box
	rect rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect { return e.rect }

// Index stores (box, identifier) pairs. Entries are never removed; a newer
// entry for the same identifier is filtered by the caller.
//
// Inserts take an exclusive lock, searches a shared one.
type Index struct {
	mu   sync.RWMutex
	tree *rtreego.Rtree
	n    int
}

func New() *Index {
	return &Index{tree: rtreego.NewTree(2, minChildren, maxChildren)}
}

// Insert adds box under id. Only the spatial part of box is indexed.
func (ix *Index) Insert(box geometry.Box, id uint64) error {
	if box.IsEmpty() {
		return fmt.Errorf("%w: cannot index an empty box", dberrors.ErrInvalidArgument)
	}
	rect, err := rtreego.NewRectFromPoints(
		rtreego.Point{box.X.Min, box.Y.Min},
		rtreego.Point{box.X.Max, box.Y.Max},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", dberrors.ErrInvalidArgument, err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.tree.Insert(&entry{id: id, box: box, rect: rect})
	ix.n++
	return nil
}

// Search calls visit for every stored entry intersecting query, including
// the identifier interval, until visit returns false. An empty query
// visits everything.
func (ix *Index) Search(query geometry.Box, visit func(id uint64, box geometry.Box) bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	// rtreego treats touching rectangles as disjoint, so the search window
	// is widened by one ulp and matches are re-checked with inclusive bounds.
	// An abort only ends the current leaf inside rtreego, hence stopped.
	stopped := false
	ix.tree.SearchIntersect(searchRect(query), func(_ []rtreego.Spatial, obj rtreego.Spatial) (bool, bool) {
		if stopped {
			return true, true
		}
		e := obj.(*entry)
		if !geometry.Intersects(e.box, query) {
			return true, false
		}
		stopped = !visit(e.id, e.box)
		return true, stopped
	})
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.n
}

func searchRect(q geometry.Box) rtreego.Rect {
	lo := rtreego.Point{math.Inf(-1), math.Inf(-1)}
	hi := rtreego.Point{math.Inf(1), math.Inf(1)}
	if !q.IsEmpty() {
		lo = rtreego.Point{math.Nextafter(q.X.Min, math.Inf(-1)), math.Nextafter(q.Y.Min, math.Inf(-1))}
		hi = rtreego.Point{math.Nextafter(q.X.Max, math.Inf(1)), math.Nextafter(q.Y.Max, math.Inf(1))}
	}
	// Both points have two coordinates, so construction cannot fail.
	r, _ := rtreego.NewRectFromPoints(lo, hi)
	return r
}
