package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"spatiallsm/pkg/compression"
)

// BenchResult is the outcome of running one codec over every block.
type BenchResult struct {
	Codec          string
	Blocks         int
	StoredPlain    int
	OriginalSize   int64
	CompressedSize int64
	CompressTime   time.Duration
	DecompressTime time.Duration
}

func main() {
	var (
		input     = flag.String("input", "", "input file path, typically a table file")
		blockSize = flag.Int("block-size", 4096, "block size in bytes")
		codecs    = flag.String("codecs", "none,snappy,zstd", "comma separated codecs to compare")
	)
	flag.Parse()

	if *input == "" {
		log.Fatal("input file is required")
	}
	if *blockSize <= 0 {
		log.Fatal("block size must be positive")
	}
	if err := benchmark(*input, *blockSize, splitCodecs(*codecs)); err != nil {
		log.Fatalf("benchmark failed: %v", err)
	}
}

func splitCodecs(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// benchmark cuts the input into blocks the way a table writer does and runs
// each codec over them, verifying the round trip.
func benchmark(inputPath string, blockSize int, codecs []string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	var blocks [][]byte
	for off := 0; off < len(data); off += blockSize {
		blocks = append(blocks, data[off:min(off+blockSize, len(data))])
	}

	for _, name := range codecs {
		t, err := compression.ParseType(name)
		if err != nil {
			return err
		}
		res, err := run(t, blocks)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		printResult(res)
	}
	return nil
}

func run(t compression.Type, blocks [][]byte) (BenchResult, error) {
	res := BenchResult{Codec: t.String(), Blocks: len(blocks)}
	stored := make([][]byte, len(blocks))
	types := make([]compression.Type, len(blocks))

	start := time.Now()
	for i, b := range blocks {
		out, used, err := compression.Compress(t, b)
		if err != nil {
			return res, err
		}
		stored[i], types[i] = out, used
		res.OriginalSize += int64(len(b))
		res.CompressedSize += int64(len(out))
		if used == compression.None {
			res.StoredPlain++
		}
	}
	res.CompressTime = time.Since(start)

	start = time.Now()
	for i, s := range stored {
		out, err := compression.Decompress(types[i], s)
		if err != nil {
			return res, fmt.Errorf("block %d: %w", i, err)
		}
		if !bytes.Equal(out, blocks[i]) {
			return res, fmt.Errorf("block %d: round trip mismatch", i)
		}
	}
	res.DecompressTime = time.Since(start)
	return res, nil
}

func printResult(r BenchResult) {
	ratio := 100.0
	if r.OriginalSize > 0 {
		ratio = float64(r.CompressedSize) / float64(r.OriginalSize) * 100
	}
	fmt.Printf("\nCodec: %s\n", r.Codec)
	fmt.Printf("  Blocks: %d (%d stored plain)\n", r.Blocks, r.StoredPlain)
	fmt.Printf("  Original: %d bytes\n", r.OriginalSize)
	fmt.Printf("  Compressed: %d bytes\n", r.CompressedSize)
	fmt.Printf("  Ratio: %.2f%%\n", ratio)
	fmt.Printf("  Compress Time: %v\n", r.CompressTime)
	fmt.Printf("  Decompress Time: %v\n", r.DecompressTime)
}
