package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

type BenchmarkResult struct {
	TotalOps      int
	SuccessfulOps int
	FailedOps     int
	Duration      time.Duration
	OpsPerSec     float64
	AvgLatency    time.Duration
	MinLatency    time.Duration
	MaxLatency    time.Duration
	Results       int
}

var client = &http.Client{Timeout: 5 * time.Second}

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:8080", "spatialdb base URL")
		ops         = flag.Int("ops", 1000, "operations per test")
		concurrency = flag.Int("c", 10, "goroutines for the concurrent tests")
		window      = flag.Float64("window", 5, "query window side in degrees")
	)
	flag.Parse()

	fmt.Println("=== spatialdb HTTP Benchmark ===")
	fmt.Printf("Target: %s\n", *baseURL)
	fmt.Println()

	if !checkHealth(*baseURL) {
		fmt.Printf("ERROR: Node %s is not available\n", *baseURL)
		return
	}

	fmt.Printf("Test 1: Sequential Point Writes (%d operations)\n", *ops)
	printResult(benchmark(*ops, 1, func(r *rand.Rand, id uint64) (int, error) {
		return 0, putPoint(*baseURL, id, r)
	}))

	fmt.Printf("\nTest 2: Concurrent Point Writes (%d operations, %d goroutines)\n", *ops, *concurrency)
	printResult(benchmark(*ops, *concurrency, func(r *rand.Rand, id uint64) (int, error) {
		return 0, putPoint(*baseURL, uint64(*ops)+id, r)
	}))

	fmt.Printf("\nTest 3: Sequential Window Queries (%d operations)\n", *ops)
	printResult(benchmark(*ops, 1, func(r *rand.Rand, _ uint64) (int, error) {
		return queryWindow(*baseURL, r, *window)
	}))

	if err := flush(*baseURL); err != nil {
		fmt.Printf("\nflush failed: %v\n", err)
	}

	fmt.Printf("\nTest 4: Concurrent Window Queries after flush (%d operations, %d goroutines)\n", *ops, *concurrency)
	printResult(benchmark(*ops, *concurrency, func(r *rand.Rand, _ uint64) (int, error) {
		return queryWindow(*baseURL, r, *window)
	}))

	fmt.Println("\n=== Benchmark Complete ===")
}

func checkHealth(baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// benchmark spreads totalOps calls of op over concurrency goroutines. op
// returns the number of objects it received.
func benchmark(totalOps, concurrency int, op func(r *rand.Rand, id uint64) (int, error)) BenchmarkResult {
	start := time.Now()
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		result    BenchmarkResult
		latencies = make([]time.Duration, 0, totalOps)
	)

	opsPerGoroutine := totalOps / concurrency
	remainder := totalOps % concurrency
	next := 0
	for i := 0; i < concurrency; i++ {
		n := opsPerGoroutine
		if i < remainder {
			n++
		}
		first := next
		next += n

		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(goroutineID) + 1))
			for j := 0; j < n; j++ {
				opStart := time.Now()
				got, err := op(r, uint64(first+j))
				latency := time.Since(opStart)

				mu.Lock()
				if err == nil {
					result.SuccessfulOps++
					result.Results += got
				} else {
					result.FailedOps++
				}
				latencies = append(latencies, latency)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	result.TotalOps = totalOps
	result.Duration = time.Since(start)
	if len(latencies) > 0 {
		var sum time.Duration
		result.MinLatency, result.MaxLatency = latencies[0], latencies[0]
		for _, lat := range latencies {
			result.MinLatency = min(result.MinLatency, lat)
			result.MaxLatency = max(result.MaxLatency, lat)
			sum += lat
		}
		result.AvgLatency = sum / time.Duration(len(latencies))
	}
	result.OpsPerSec = float64(result.SuccessfulOps) / result.Duration.Seconds()
	return result
}

func putPoint(baseURL string, id uint64, r *rand.Rand) error {
	data := url.Values{}
	data.Set("id", strconv.FormatUint(id, 10))
	data.Set("x", strconv.FormatFloat(r.Float64()*360-180, 'f', -1, 64))
	data.Set("y", strconv.FormatFloat(r.Float64()*180-90, 'f', -1, 64))
	data.Set("value", fmt.Sprintf("bench_value_%d_%d", id, time.Now().UnixNano()))

	req, err := http.NewRequest(http.MethodPut, baseURL+"/api/points", strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(req, nil)
}

func queryWindow(baseURL string, r *rand.Rand, side float64) (int, error) {
	x, y := r.Float64()*(360-side)-180, r.Float64()*(180-side)-90
	q := url.Values{}
	q.Set("x_min", strconv.FormatFloat(x, 'f', -1, 64))
	q.Set("x_max", strconv.FormatFloat(x+side, 'f', -1, 64))
	q.Set("y_min", strconv.FormatFloat(y, 'f', -1, 64))
	q.Set("y_max", strconv.FormatFloat(y+side, 'f', -1, 64))

	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/query?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	var result struct {
		Count int `json:"count"`
	}
	err = do(req, &result)
	return result.Count, err
}

func flush(baseURL string) error {
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/flush", nil)
	if err != nil {
		return err
	}
	return do(req, nil)
}

func do(req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if out == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printResult(result BenchmarkResult) {
	fmt.Printf("  Total Operations: %d\n", result.TotalOps)
	fmt.Printf("  Successful: %d\n", result.SuccessfulOps)
	fmt.Printf("  Failed: %d\n", result.FailedOps)
	fmt.Printf("  Duration: %v\n", result.Duration)
	fmt.Printf("  Operations/sec: %.2f\n", result.OpsPerSec)
	fmt.Printf("  Avg Latency: %v\n", result.AvgLatency)
	fmt.Printf("  Min Latency: %v\n", result.MinLatency)
	fmt.Printf("  Max Latency: %v\n", result.MaxLatency)
	if result.Results > 0 {
		fmt.Printf("  Objects Returned: %d\n", result.Results)
	}
}
