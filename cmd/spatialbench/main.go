package main

import (
	"cmp"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"time"

	"spatiallsm/pkg/config"
	"spatiallsm/pkg/geometry"
	"spatiallsm/pkg/memtable"
	"spatiallsm/pkg/sstable"
	"spatiallsm/pkg/zcurve"
)

type BenchmarkResult struct {
	Engine      string
	BuildTime   time.Duration
	FileSize    int64
	IndexHeight int
	Queries     int
	Results     int
	Mismatches  int
	AvgLatency  time.Duration
	MinLatency  time.Duration
	MaxLatency  time.Duration
	Counters    map[string]float64
}

type options struct {
	csvPath     string
	n           int
	queries     int
	window      float64
	seed        int64
	dir         string
	compression string
	blockSize   int
	nodeSize    int
	pebble      bool
}

func main() {
	var o options
	flag.StringVar(&o.csvPath, "csv", "", "CSV file of points (x,y or id,x,y); synthetic points when empty")
	flag.IntVar(&o.n, "n", 200000, "number of synthetic points")
	flag.IntVar(&o.queries, "queries", 1000, "number of window queries")
	flag.Float64Var(&o.window, "window", 0.01, "query window side as a fraction of the domain")
	flag.Int64Var(&o.seed, "seed", 1, "random seed")
	flag.StringVar(&o.dir, "dir", "", "working directory; a temporary one when empty")
	flag.StringVar(&o.compression, "compression", "snappy", "block compression: none, snappy or zstd")
	flag.IntVar(&o.blockSize, "block-size", 4096, "data block size in bytes")
	flag.IntVar(&o.nodeSize, "node-size", 4096, "index node size in bytes")
	flag.BoolVar(&o.pebble, "pebble", true, "also run the Z-order scan over pebble as a baseline")
	flag.Parse()

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "spatialbench: %v\n", err)
		os.Exit(1)
	}
}

func run(o options) error {
	dir := o.dir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "spatialbench")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	r := rand.New(rand.NewSource(o.seed))
	var (
		points []point
		err    error
	)
	if o.csvPath != "" {
		points, err = loadCSV(o.csvPath)
		if err != nil {
			return err
		}
	} else {
		points = synthetic(r, o.n)
	}
	if len(points) == 0 {
		return fmt.Errorf("no points to index")
	}
	grid := boundsOf(points)
	windows := randomWindows(r, grid, o.queries, o.window)

	fmt.Println("=== Spatial Index Benchmark ===")
	fmt.Printf("Points: %d, queries: %d, window: %.3f of domain\n", len(points), len(windows), o.window)
	fmt.Printf("Domain: [%g,%g]x[%g,%g]\n\n", grid.XMin, grid.XMax, grid.YMin, grid.YMax)

	for _, index := range []string{"key", "curve"} {
		res, err := benchTable(o, dir, index, grid, points, windows)
		if err != nil {
			return fmt.Errorf("%s index: %w", index, err)
		}
		printResult(res)
	}
	if o.pebble {
		res, err := benchPebble(filepath.Join(dir, "pebble"), grid, points, windows)
		if err != nil {
			return fmt.Errorf("pebble baseline: %w", err)
		}
		printResult(res)
	}
	fmt.Println("=== Benchmark Complete ===")
	return nil
}

func benchTable(o options, dir, index string, grid zcurve.Grid, points []point, windows []geometry.Box) (BenchmarkResult, error) {
	tc := config.Default().Table
	tc.Index = index
	tc.Compression = o.compression
	tc.BlockSize = o.blockSize
	tc.IndexNodeSize = o.nodeSize
	tc.Curve = config.CurveConfig{
		XMin: grid.XMin, XMax: grid.XMax,
		YMin: grid.YMin, YMax: grid.YMax,
		Resolution: grid.N,
	}
	opts, err := sstable.WriterOptionsFromConfig(tc)
	if err != nil {
		return BenchmarkResult{}, err
	}

	sorted := slices.Clone(points)
	slices.SortFunc(sorted, func(a, b point) int { return cmp.Compare(a.id, b.id) })

	path := filepath.Join(dir, index+".sst")
	start := time.Now()
	_, _, err = sstable.WriteFile(path, opts, func(add func(sstable.Row) error) error {
		for i, p := range sorted {
			it := memtable.Item{ID: p.id, Box: geometry.Point(p.id, p.x, p.y), SeqN: uint64(i + 1)}
			if err := add(sstable.Row{Key: it.Key(), Value: it.EncodedValue(), SeqN: it.SeqN}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return BenchmarkResult{}, err
	}
	buildTime := time.Since(start)

	c := newCounters()
	rd, err := sstable.Open(path, sstable.ReaderOptions{
		ID:            1,
		Cache:         sstable.NewBlockCache(config.Default().Persistence.Cache.Capacity, c),
		ReadaheadSize: config.Default().Persistence.ReadaheadSize,
		Metrics:       c,
	})
	if err != nil {
		return BenchmarkResult{}, err
	}
	defer rd.Close()

	res := runQueries("sstable/"+index, points, windows, func(q geometry.Box) ([]uint64, error) {
		var ids []uint64
		err := rd.Query(q, func(key, _ []byte) bool {
			kb, err := geometry.DecodeKey(key)
			if err == nil {
				ids = append(ids, kb.ID.Min)
			}
			return true
		})
		return ids, err
	})
	res.BuildTime = buildTime
	res.FileSize = rd.Size()
	res.IndexHeight = rd.Height()
	res.Counters = c.snapshot()
	return res, nil
}

// runQueries times every window and checks it against a linear scan.
func runQueries(engine string, points []point, windows []geometry.Box, query func(geometry.Box) ([]uint64, error)) BenchmarkResult {
	res := BenchmarkResult{Engine: engine, Queries: len(windows)}
	var sum time.Duration
	for i, q := range windows {
		start := time.Now()
		got, err := query(q)
		lat := time.Since(start)
		if err != nil {
			fmt.Printf("  query %d failed: %v\n", i, err)
			res.Mismatches++
			continue
		}

		sum += lat
		if res.MinLatency == 0 || lat < res.MinLatency {
			res.MinLatency = lat
		}
		res.MaxLatency = max(res.MaxLatency, lat)
		res.Results += len(got)

		slices.Sort(got)
		if !slices.Equal(got, linearScan(points, q)) {
			res.Mismatches++
		}
	}
	if len(windows) > 0 {
		res.AvgLatency = sum / time.Duration(len(windows))
	}
	return res
}

func linearScan(points []point, q geometry.Box) []uint64 {
	var out []uint64
	for _, p := range points {
		if geometry.Intersects(geometry.Point(p.id, p.x, p.y), q) {
			out = append(out, p.id)
		}
	}
	slices.Sort(out)
	return out
}

func printResult(result BenchmarkResult) {
	fmt.Printf("Engine: %s\n", result.Engine)
	fmt.Printf("  Build Time: %v\n", result.BuildTime)
	fmt.Printf("  File Size: %d bytes\n", result.FileSize)
	if result.IndexHeight > 0 {
		fmt.Printf("  Index Height: %d\n", result.IndexHeight)
	}
	fmt.Printf("  Queries: %d, results: %d\n", result.Queries, result.Results)
	fmt.Printf("  Mismatches vs linear scan: %d\n", result.Mismatches)
	fmt.Printf("  Avg Latency: %v\n", result.AvgLatency)
	fmt.Printf("  Min Latency: %v\n", result.MinLatency)
	fmt.Printf("  Max Latency: %v\n", result.MaxLatency)
	names := make([]string, 0, len(result.Counters))
	for name := range result.Counters {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Printf("  %s: %.0f\n", name, result.Counters[name])
	}
	fmt.Println()
}
