package memtable

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"spatiallsm/pkg/config"
	"spatiallsm/pkg/geometry"
)

func item(id uint64, x, y float64, seq uint64) Item {
	return Item{ID: id, Box: geometry.Point(id, x, y), Value: []byte("payload"), SeqN: seq}
}

func ids(items []Item) []uint64 {
	out := make([]uint64, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestMemtable_PutGetOverwrite(t *testing.T) {
	mt := New(config.MemtableConfig{FlushThresholdBytes: 1 << 20, FlushChanBuffSize: 1})

	if err := mt.Put(item(7, 1, 1, 1)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := mt.Put(item(7, 50, 50, 2)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := mt.Get(7)
	if !ok {
		t.Fatal("expected to find id 7")
	}
	if got.SeqN != 2 || got.Box.X.Min != 50 {
		t.Fatalf("expected newest version, got %+v", got)
	}

	// The stale box must not match any more.
	var found []Item
	mt.Tables()[0].Search(geometry.Window(0, 10, 0, 10), func(it Item) bool {
		found = append(found, it)
		return true
	})
	if len(found) != 0 {
		t.Fatalf("stale box matched: %+v", found)
	}

	found = found[:0]
	mt.Tables()[0].Search(geometry.Window(40, 60, 40, 60), func(it Item) bool {
		found = append(found, it)
		return true
	})
	if len(found) != 1 || found[0].SeqN != 2 {
		t.Fatalf("expected the newest version once, got %+v", found)
	}
}

func TestMemtable_RotateOnThreshold(t *testing.T) {
	sample := item(0, 0, 0, 0)
	mt := New(config.MemtableConfig{
		FlushThresholdBytes: int(sample.Size()*10 + 1),
		FlushChanBuffSize:   4,
	})

	for i := uint64(0); i < 25; i++ {
		if err := mt.Put(item(i, float64(i), float64(i), i+1)); err != nil {
			t.Fatalf("Put %d failed: %v", i, err)
		}
	}

	var rotated []SortedSet
	for len(rotated) < 2 {
		select {
		case ss := <-mt.FlushChan():
			rotated = append(rotated, ss)
		case <-time.After(time.Second):
			t.Fatalf("expected two rotations, got %d", len(rotated))
		}
	}
	if n := len(mt.Tables()); n != 3 {
		t.Fatalf("expected active + 2 frozen generations, got %d", n)
	}

	first := rotated[0].Sorted()
	if len(first) != 10 || first[0].ID != 0 || first[9].ID != 9 {
		t.Fatalf("unexpected first generation: %v", ids(first))
	}

	// Every item stays readable until its generation is released.
	for i := uint64(0); i < 25; i++ {
		if _, ok := mt.Get(i); !ok {
			t.Fatalf("id %d not readable", i)
		}
	}

	mt.Release(rotated[0])
	rotated[0].Done(nil)
	if err := rotated[0].Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned %v", err)
	}
	if _, ok := mt.Get(0); ok {
		t.Fatal("released generation is still readable")
	}
	if n := len(mt.Tables()); n != 2 {
		t.Fatalf("expected 2 generations after release, got %d", n)
	}
}

func TestMemtable_ExplicitRotate(t *testing.T) {
	mt := New(config.MemtableConfig{FlushThresholdBytes: 1 << 20, FlushChanBuffSize: 1})
	if set := mt.Rotate(); set != nil {
		t.Fatal("rotating an empty memtable must be a no-op")
	}

	if err := mt.Put(item(1, 1, 1, 1)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	set := mt.Rotate()
	if set == nil || set.Len() != 1 {
		t.Fatal("expected one frozen item")
	}
	if got := <-mt.FlushChan(); got != set {
		t.Fatal("rotated set was not handed to the flusher")
	}

	errFlush := errors.New("disk full")
	set.Done(errFlush)
	if err := set.Wait(context.Background()); !errors.Is(err, errFlush) {
		t.Fatalf("expected flush error, got %v", err)
	}
}

func TestMemtable_TooLarge(t *testing.T) {
	mt := New(config.MemtableConfig{FlushThresholdBytes: 16, FlushChanBuffSize: 1})
	if err := mt.Put(item(1, 1, 1, 1)); !errors.Is(err, ErrTooLargeEntry) {
		t.Fatalf("expected ErrTooLargeEntry, got %v", err)
	}
	if err := mt.Put(Item{ID: 1}); err == nil {
		t.Fatal("expected an error for an item without a box")
	}
}

func TestMemtable_ConcurrentPuts(t *testing.T) {
	sample := item(0, 0, 0, 0)
	mt := New(config.MemtableConfig{
		FlushThresholdBytes: int(sample.Size() * 100),
		FlushChanBuffSize:   64,
	})

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				id := uint64(g*1000 + i)
				if err := mt.Put(item(id, float64(i), float64(g), id)); err != nil {
					t.Errorf("Put failed: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	total := 0
	for _, tbl := range mt.Tables() {
		total += tbl.Len()
	}
	if total != 2000 {
		t.Fatalf("expected 2000 items across generations, got %d", total)
	}
}

func TestItemRowRoundTrip(t *testing.T) {
	in := Item{ID: 42, Box: geometry.NewBox(42, 42, 1, 2, 3, 4), Value: []byte("hello"), SeqN: 9}
	out, err := DecodeItem(in.Key(), in.EncodedValue())
	if err != nil {
		t.Fatalf("DecodeItem failed: %v", err)
	}
	if out.ID != 42 || out.SeqN != 9 || string(out.Value) != "hello" || out.Box != in.Box {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if _, err := DecodeItem(in.Key(), []byte{1}); err == nil {
		t.Fatal("expected corruption error for a short value")
	}
}

func TestMemtable_GetPrefersHigherSeqN(t *testing.T) {
	mt := New(config.MemtableConfig{FlushThresholdBytes: 1 << 20, FlushChanBuffSize: 1})

	if err := mt.Put(item(3, 1, 1, 9)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	set := mt.Rotate()
	if set == nil {
		t.Fatal("expected a frozen generation")
	}
	if err := mt.Put(item(3, 2, 2, 4)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := mt.Get(3)
	if !ok || got.SeqN != 9 {
		t.Fatalf("Get returned %+v, %v; want seq 9", got, ok)
	}
	tables := mt.Tables()
	if tables[0].MaxSeqN() != 4 || tables[1].MaxSeqN() != 9 {
		t.Fatalf("MaxSeqN = %d, %d; want 4, 9", tables[0].MaxSeqN(), tables[1].MaxSeqN())
	}
}

func TestTable_Failed(t *testing.T) {
	failing := newTable()
	if err := failing.Failed(); err != nil {
		t.Fatalf("pending flush reported %v", err)
	}
	errFlush := errors.New("disk full")
	failing.Done(errFlush)
	if err := failing.Failed(); !errors.Is(err, errFlush) {
		t.Fatalf("Failed() = %v, want %v", err, errFlush)
	}

	ok := newTable()
	ok.Done(nil)
	if err := ok.Failed(); err != nil {
		t.Fatalf("successful flush reported %v", err)
	}
}
