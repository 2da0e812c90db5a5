package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/cockroachdb/pebble"

	"spatiallsm/pkg/geometry"
	"spatiallsm/pkg/zcurve"
)

// zorderStore keeps points in pebble under their Morton code. A window
// query scans the code range between the window's corners and filters the
// points outside the window.
type zorderStore struct {
	db   *pebble.DB
	grid zcurve.Grid
}

func openZOrder(dir string, grid zcurve.Grid) (*zorderStore, error) {
	opts := &pebble.Options{
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       4,
		L0StopWritesThreshold:       12,
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("pebble: open: %w", err)
	}
	return &zorderStore{db: db, grid: grid}, nil
}

func (z *zorderStore) Close() error { return z.db.Close() }

func (z *zorderStore) code(x, y float64) uint64 {
	return zcurve.Interleave(z.grid.Cell(x, y))
}

// encodeKey is the big-endian Morton code followed by the id, so keys sort
// along the curve.
func encodeKey(code, id uint64) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b, code)
	binary.BigEndian.PutUint64(b[8:], id)
	return b
}

func (z *zorderStore) load(points []point) error {
	b := z.db.NewBatch()
	var val [16]byte
	for i, p := range points {
		binary.LittleEndian.PutUint64(val[:8], math.Float64bits(p.x))
		binary.LittleEndian.PutUint64(val[8:], math.Float64bits(p.y))
		if err := b.Set(encodeKey(z.code(p.x, p.y), p.id), val[:], nil); err != nil {
			return err
		}
		if (i+1)%10000 == 0 {
			if err := b.Commit(pebble.NoSync); err != nil {
				return err
			}
			b = z.db.NewBatch()
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return err
	}
	return z.db.Flush()
}

func (z *zorderStore) query(q geometry.Box) ([]uint64, error) {
	lo := z.code(q.X.Min, q.Y.Min)
	hi := z.code(q.X.Max, q.Y.Max)
	iter, err := z.db.NewIter(&pebble.IterOptions{
		LowerBound: encodeKey(lo, 0),
		UpperBound: encodeKey(hi+1, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("pebble: range: %w", err)
	}

	var ids []uint64
	for valid := iter.First(); valid; valid = iter.Next() {
		k, v := iter.Key(), iter.Value()
		if len(k) != 16 || len(v) != 16 {
			_ = iter.Close()
			return nil, fmt.Errorf("pebble: unexpected row of %d/%d bytes", len(k), len(v))
		}
		id := binary.BigEndian.Uint64(k[8:])
		x := math.Float64frombits(binary.LittleEndian.Uint64(v[:8]))
		y := math.Float64frombits(binary.LittleEndian.Uint64(v[8:]))
		if geometry.Intersects(geometry.Point(id, x, y), q) {
			ids = append(ids, id)
		}
	}
	if err := iter.Error(); err != nil {
		_ = iter.Close()
		return nil, err
	}
	return ids, iter.Close()
}

func benchPebble(dir string, grid zcurve.Grid, points []point, windows []geometry.Box) (BenchmarkResult, error) {
	z, err := openZOrder(dir, grid)
	if err != nil {
		return BenchmarkResult{}, err
	}
	defer z.Close()

	start := time.Now()
	if err := z.load(points); err != nil {
		return BenchmarkResult{}, err
	}
	buildTime := time.Since(start)

	res := runQueries("pebble/zorder-scan", points, windows, z.query)
	res.BuildTime = buildTime
	m := z.db.Metrics()
	res.FileSize = int64(m.DiskSpaceUsage())
	return res, nil
}
