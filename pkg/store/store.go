package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"spatiallsm/pkg/clock"
	"spatiallsm/pkg/config"
	"spatiallsm/pkg/dberrors"
	"spatiallsm/pkg/geometry"
	"spatiallsm/pkg/listener"
	"spatiallsm/pkg/memtable"
	"spatiallsm/pkg/metrics"
	"spatiallsm/pkg/sstable"
)

type iSequence interface {
	Last() uint64
	Next() uint64
	AdvanceTo(seq uint64)
}

// Store keeps spatial objects in a memtable and, once flushed, in table
// files carrying a spatial index. The newest version of an object wins
// across all generations.
type Store struct {
	cfg     config.DB
	opts    sstable.WriterOptions
	seqN    iSequence
	metrics metrics.Collector

	mt       *memtable.Memtable
	flusher  *flusher
	manifest *sstable.Manifest
	cache    *sstable.BlockCache
	// live tables, newest first
	tables atomic.Pointer[[]*sstable.Reader]

	// writers hold lifecycle shared; Close takes it exclusively
	lifecycle sync.RWMutex
	closed    atomic.Bool
	close     func() error
}

// Stats is a snapshot of the store's shape.
type Stats struct {
	Tables        int    `json:"tables"`
	TableBytes    uint64 `json:"table_bytes"`
	Generations   int    `json:"memtable_generations"`
	MemtableBytes uint64 `json:"memtable_bytes"`
	LastSeqN      uint64 `json:"last_seq_n"`
}

// Open opens or creates the store under cfg.Persistence.RootPath and
// starts the background flusher.
func Open(cfg config.DB, m metrics.Collector) (*Store, error) {
	if m == nil {
		m = metrics.Noop{}
	}
	opts, err := sstable.WriterOptionsFromConfig(cfg.Table)
	if err != nil {
		return nil, err
	}
	dir := cfg.Persistence.RootPath
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	manifest := sstable.NewManifest(dir)
	if err := manifest.Load(); err != nil {
		return nil, err
	}

	s := &Store{
		cfg:      cfg,
		opts:     opts,
		seqN:     clock.NewSequence(manifest.PersistentID()),
		metrics:  m,
		mt:       memtable.New(cfg.Memtable),
		manifest: manifest,
		cache:    sstable.NewBlockCache(cfg.Persistence.Cache.Capacity, m),
	}

	var tables []*sstable.Reader
	for _, info := range manifest.Tables() {
		r, err := s.openTable(info.ID, info.FileName)
		if err != nil {
			closeTables(tables)
			return nil, err
		}
		// table properties win if the manifest lags behind
		s.seqN.AdvanceTo(r.Properties().MaxSeqN)
		tables = append(tables, r)
	}
	slices.Reverse(tables)
	s.tables.Store(&tables)
	m.SetGauge(metrics.LiveTables, nil, float64(len(tables)))

	s.flusher = &flusher{s: s}
	job := listener.New(s.mt.FlushChan(), s.flusher.flush)
	job.Start(context.Background())

	s.close = func() error {
		err := s.flush(context.Background())
		job.Stop()
		s.mt.Close()
		closeTables(s.liveTables())
		return err
	}

	slog.Info("store opened",
		"path", dir,
		"tables", len(tables),
		"seq_n", s.seqN.Last(),
		"index", opts.Index,
	)
	return s, nil
}

func (s *Store) openTable(id uint64, name string) (*sstable.Reader, error) {
	return sstable.Open(filepath.Join(s.cfg.Persistence.RootPath, name), sstable.ReaderOptions{
		ID:            id,
		Cache:         s.cache,
		ReadaheadSize: s.cfg.Persistence.ReadaheadSize,
		Metrics:       s.metrics,
	})
}

func closeTables(tables []*sstable.Reader) {
	for _, r := range tables {
		if err := r.Close(); err != nil {
			slog.Warn("failed to close table", "id", r.ID(), "error", err)
		}
	}
}

func (s *Store) liveTables() []*sstable.Reader {
	return *s.tables.Load()
}

// installTable makes r the newest table.
func (s *Store) installTable(r *sstable.Reader) {
	for {
		old := s.tables.Load()
		next := append([]*sstable.Reader{r}, *old...)
		if s.tables.CompareAndSwap(old, &next) {
			s.metrics.SetGauge(metrics.LiveTables, nil, float64(len(next)))
			return
		}
	}
}

// sources returns every generation, most recently created first. A table
// written by a retried flush can hold versions older than the tables after
// it, so versions are compared by sequence number, never by position.
func (s *Store) sources() []source {
	mts := s.mt.Tables()
	tables := s.liveTables()
	out := make([]source, 0, len(mts)+len(tables))
	for _, t := range mts {
		out = append(out, memSource{t})
	}
	for _, r := range tables {
		out = append(out, tableSource{r})
	}
	return out
}

// Put stores value under id with the given box, replacing any previous
// version of the object.
func (s *Store) Put(id uint64, box geometry.Box, value []byte) error {
	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()
	if s.closed.Load() {
		return dberrors.ErrClosed
	}
	if err := validateBox(box); err != nil {
		return err
	}
	box.SetID(id, id)
	err := s.mt.Put(memtable.Item{
		ID:    id,
		Box:   box,
		Value: slices.Clone(value),
		SeqN:  s.seqN.Next(),
	})
	if err != nil {
		return fmt.Errorf("put %d: %w", id, err)
	}
	s.metrics.IncCounter(metrics.PutsTotal, nil, 1)
	s.metrics.SetGauge(metrics.MemtableBytes, nil, float64(s.mt.Size()))
	return nil
}

// PutPoint stores a point object.
func (s *Store) PutPoint(id uint64, x, y float64, value []byte) error {
	return s.Put(id, geometry.Point(id, x, y), value)
}

// Get returns the newest version of the object id.
func (s *Store) Get(id uint64) (Object, error) {
	if s.closed.Load() {
		return Object{}, dberrors.ErrClosed
	}
	it, ok, err := newest(s.sources(), id)
	if err != nil {
		return Object{}, fmt.Errorf("get %d: %w", id, err)
	}
	if !ok {
		return Object{}, dberrors.ErrNotFound
	}
	return it, nil
}

// Query calls visit once for every object whose newest version intersects
// query, until visit returns false. An empty query visits every object.
func (s *Store) Query(ctx context.Context, query geometry.Box, visit func(Object) bool) error {
	if s.closed.Load() {
		return dberrors.ErrClosed
	}
	start := time.Now()
	var (
		sources = s.sources()
		visited = make(map[uint64]struct{})
		results int
		stopped bool
		inner   error
	)
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := src.search(query, func(obj Object) bool {
			if _, ok := visited[obj.ID]; ok {
				return true
			}
			stale, err := superseded(sources, obj)
			if err != nil {
				inner = err
				return false
			}
			if stale {
				return true
			}
			visited[obj.ID] = struct{}{}
			results++
			if !visit(obj) {
				stopped = true
				return false
			}
			return true
		})
		if err = errors.Join(err, inner); err != nil {
			return fmt.Errorf("query %v: %w", query, err)
		}
		if stopped {
			break
		}
	}
	s.metrics.ObserveHistogram(metrics.QueryDuration, nil, time.Since(start).Seconds())
	s.metrics.ObserveHistogram(metrics.QueryResults, nil, float64(results))
	return nil
}

// Flush writes the current memtable generation to a table and waits for
// it, together with every generation rotated before it. Generations whose
// earlier flush failed are written again; their errors are returned if that
// fails too.
func (s *Store) Flush(ctx context.Context) error {
	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()
	if s.closed.Load() {
		return dberrors.ErrClosed
	}
	return s.flush(ctx)
}

func (s *Store) flush(ctx context.Context) error {
	s.mt.Rotate()
	frozen := s.mt.Tables()[1:]
	for _, t := range frozen {
		if err := t.Wait(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	slices.Reverse(frozen)
	return s.flusher.retry(frozen)
}

// Stats reports the current shape of the store.
func (s *Store) Stats() Stats {
	return Stats{
		Tables:        len(s.liveTables()),
		TableBytes:    s.manifest.TotalSize(),
		Generations:   len(s.mt.Tables()),
		MemtableBytes: s.mt.Size(),
		LastSeqN:      s.seqN.Last(),
	}
}

// Close flushes the memtable, stops the flusher and closes every table.
func (s *Store) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if !s.closed.CompareAndSwap(false, true) {
		return dberrors.ErrClosed
	}
	err := s.close()
	slog.Info("store closed", "path", s.cfg.Persistence.RootPath, "error", err)
	return err
}
