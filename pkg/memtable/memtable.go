package memtable

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"spatiallsm/pkg/config"
	"spatiallsm/pkg/dberrors"
)

var (
	ErrTooLargeEntry = errors.New("entry is too large")
)

type Memtable struct {
	cfg  *config.MemtableConfig
	ver  atomic.Uint64
	size atomic.Uint64

	underlying atomic.Pointer[Table]
	// frozen generations waiting for the flusher, oldest first
	imm atomic.Pointer[[]*Table]

	flushChan chan SortedSet
	mu        sync.Mutex
	cond      *sync.Cond
	// writes hold inflight shared while they insert into the active
	// generation; rotation takes it exclusively to freeze a quiet table.
	inflight sync.RWMutex
}

func New(cfg config.MemtableConfig) *Memtable {
	mt := Memtable{
		cfg:       &cfg,
		flushChan: make(chan SortedSet, cfg.FlushChanBuffSize),
	}
	mt.underlying.Store(newTable())
	mt.imm.Store(&[]*Table{})
	mt.cond = sync.NewCond(&mt.mu)

	return &mt
}

// Get returns the version of id with the highest sequence number across all
// generations.
func (mt *Memtable) Get(id uint64) (Item, bool) {
	var (
		best  Item
		found bool
	)
	for _, t := range mt.Tables() {
		if found && t.MaxSeqN() <= best.SeqN {
			continue
		}
		if it, ok := t.Get(id); ok && (!found || it.SeqN > best.SeqN) {
			best, found = it, true
		}
	}
	return best, found
}

// Tables returns the active generation followed by the frozen ones, newest
// first.
func (mt *Memtable) Tables() []*Table {
	imm := *mt.imm.Load()
	out := make([]*Table, 0, len(imm)+1)
	out = append(out, mt.underlying.Load())
	for i := len(imm) - 1; i >= 0; i-- {
		out = append(out, imm[i])
	}
	return out
}

// Put stores it, rotating the active generation to the flusher once the
// size threshold is crossed.
func (mt *Memtable) Put(it Item) error {
	if it.Box.IsEmpty() {
		return fmt.Errorf("%w: item %d has no box", dberrors.ErrInvalidArgument, it.ID)
	}
	var (
		entSize   = it.Size()
		threshold = uint64(mt.cfg.FlushThresholdBytes)
	)

	if entSize > threshold {
		return ErrTooLargeEntry
	}

	for {
		currentSize := mt.size.Load()
		newSize := currentSize + entSize

		if newSize < threshold {
			if mt.size.CompareAndSwap(currentSize, newSize) {
				break
			}
			continue
		}

		ver := mt.ver.Load()
		mt.mu.Lock()
		acquired := mt.ver.CompareAndSwap(ver, ver+1)
		if acquired {
			mt.rotate(entSize)
			mt.cond.Broadcast()
			mt.mu.Unlock()
			break
		} else {
			mt.cond.Wait()
			mt.mu.Unlock()
		}
	}

	mt.inflight.RLock()
	defer mt.inflight.RUnlock()
	return mt.underlying.Load().put(it)
}

// Rotate freezes the active generation and hands it to the flusher. It
// returns nil when the active generation is empty.
func (mt *Memtable) Rotate() SortedSet {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if mt.underlying.Load().Len() == 0 {
		return nil
	}
	mt.ver.Add(1)
	set := mt.rotate(0)
	mt.cond.Broadcast()
	return set
}

func (mt *Memtable) rotate(initSize uint64) *Table {
	mt.inflight.Lock()
	current := mt.underlying.Load()
	mt.updateImm(func(imm []*Table) []*Table {
		return append(slices.Clone(imm), current)
	})
	mt.underlying.Store(newTable())
	mt.size.Store(initSize)
	mt.inflight.Unlock()

	mt.flushChan <- current
	return current
}

// Release drops a flushed generation from the read path.
func (mt *Memtable) Release(set SortedSet) {
	mt.updateImm(func(imm []*Table) []*Table {
		return slices.DeleteFunc(slices.Clone(imm), func(t *Table) bool {
			return SortedSet(t) == set
		})
	})
}

func (mt *Memtable) updateImm(f func([]*Table) []*Table) {
	for {
		old := mt.imm.Load()
		next := f(*old)
		if mt.imm.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Size is the byte estimate of the active generation.
func (mt *Memtable) Size() uint64 { return mt.size.Load() }

func (mt *Memtable) FlushChan() <-chan SortedSet {
	return mt.flushChan
}

func (mt *Memtable) Close() {
	close(mt.flushChan)
}
