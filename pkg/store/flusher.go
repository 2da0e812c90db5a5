package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/c2h5oh/datasize"

	"spatiallsm/pkg/memtable"
	"spatiallsm/pkg/metrics"
	"spatiallsm/pkg/sstable"
)

// flusher turns frozen memtable generations into tables, one at a time and
// in rotation order.
type flusher struct {
	s *Store
	// serialises retries of failed generations
	retryMu sync.Mutex
}

// flush never fails the listener: a generation that could not be written
// stays readable in memory and its waiters get the error.
func (f *flusher) flush(ss memtable.SortedSet) error {
	err := f.write(ss)
	if err != nil {
		slog.Error("failed to flush memtable", "items", ss.Len(), "error", err)
	} else {
		f.s.mt.Release(ss)
	}
	ss.Done(err)
	return nil
}

// retry writes again the generations of frozen, oldest first, whose flush
// failed. A generation is released once its table is installed.
func (f *flusher) retry(frozen []*memtable.Table) error {
	f.retryMu.Lock()
	defer f.retryMu.Unlock()

	var errs []error
	for _, t := range frozen {
		if t.Failed() == nil || !slices.Contains(f.s.mt.Tables(), t) {
			continue
		}
		if err := f.write(t); err != nil {
			slog.Error("failed to flush memtable again", "items", t.Len(), "error", err)
			errs = append(errs, err)
			continue
		}
		f.s.mt.Release(t)
	}
	return errors.Join(errs...)
}

func (f *flusher) write(ss memtable.SortedSet) error {
	items := ss.Sorted()
	if len(items) == 0 {
		return nil
	}

	start := time.Now()
	s := f.s
	id := s.manifest.NextTableID()
	name := sstable.TableFileName(id)
	path := filepath.Join(s.cfg.Persistence.RootPath, name)

	props, size, err := sstable.WriteFile(path, s.opts, func(add func(sstable.Row) error) error {
		for i := range items {
			it := &items[i]
			if err := add(sstable.Row{Key: it.Key(), Value: it.EncodedValue(), SeqN: it.SeqN}); err != nil {
				return fmt.Errorf("add item %d: %w", it.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write table %s: %w", name, err)
	}

	r, err := s.openTable(id, name)
	if err != nil {
		return err
	}
	err = s.manifest.AddTable(sstable.TableInfo{
		ID:       id,
		FileName: name,
		Size:     size,
		Entries:  props.Entries,
		Index:    props.Index,
		Height:   props.IndexHeight,
		MaxSeqN:  props.MaxSeqN,
	})
	if err != nil {
		_ = r.Close()
		if rerr := os.Remove(path); rerr != nil {
			slog.Warn("failed to remove unregistered table", "path", path, "error", rerr)
		}
		return fmt.Errorf("register table %s: %w", name, err)
	}
	s.installTable(r)

	s.metrics.IncCounter(metrics.TablesWritten, nil, 1)
	s.metrics.ObserveHistogram(metrics.FlushDuration, nil, time.Since(start).Seconds())
	s.metrics.SetGauge(metrics.TableIndexHeight, map[string]string{"index": props.Index}, float64(props.IndexHeight))
	slog.Info("memtable flushed",
		"table", name,
		"entries", props.Entries,
		"size", datasize.ByteSize(size).HR(),
		"index", props.Index,
		"height", props.IndexHeight,
		"duration", time.Since(start),
	)
	return nil
}
