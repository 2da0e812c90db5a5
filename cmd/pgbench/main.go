package main

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

type pgConfig struct {
	DatasetPath string
	DatasetName string
	Delimiter   rune
	RowLimit    int
	Queries     int
	Window      float64
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
}

type pgResult struct {
	Dataset    string        `json:"dataset"`
	Rows       int           `json:"rows"`
	WriteTime  time.Duration `json:"write_time_ns"`
	IndexTime  time.Duration `json:"index_time_ns"`
	Queries    int           `json:"queries"`
	Results    int           `json:"results"`
	AvgLatency time.Duration `json:"avg_latency_ns"`
	MaxLatency time.Duration `json:"max_latency_ns"`
	TableMB    float64       `json:"table_mb"`
	IndexMB    float64       `json:"index_mb"`
}

type point struct {
	id   int64
	x, y float64
}

func main() {
	cfg := parseFlags()

	if err := runBench(cfg); err != nil {
		log.Fatalf("bench failed: %v", err)
	}
}

func parseFlags() pgConfig {
	var (
		datasetPath = flag.String("dataset", "", "path to a CSV of points (x,y or id,x,y)")
		datasetName = flag.String("name", "", "logical dataset name")
		delimiter   = flag.String("delim", ",", "field delimiter")
		rowLimit    = flag.Int("limit", 0, "optional max rows (0 = all)")
		queries     = flag.Int("queries", 1000, "number of window queries")
		window      = flag.Float64("window", 0.01, "query window side as a fraction of the domain")
		dbHost      = flag.String("db-host", "localhost", "PostgreSQL host")
		dbPort      = flag.String("db-port", "5432", "PostgreSQL port")
		dbUser      = flag.String("db-user", "postgres", "PostgreSQL user")
		dbPassword  = flag.String("db-password", "postgres", "PostgreSQL password")
		dbName      = flag.String("db-name", "benchmark", "PostgreSQL database")
	)

	flag.Parse()

	if *datasetPath == "" {
		log.Fatal("dataset path is required")
	}

	if *datasetName == "" {
		base := filepath.Base(*datasetPath)
		*datasetName = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if len(*delimiter) != 1 {
		log.Fatal("delimiter must be a single rune")
	}

	return pgConfig{
		DatasetPath: *datasetPath,
		DatasetName: *datasetName,
		Delimiter:   ([]rune(*delimiter))[0],
		RowLimit:    *rowLimit,
		Queries:     *queries,
		Window:      *window,
		DBHost:      *dbHost,
		DBPort:      *dbPort,
		DBUser:      *dbUser,
		DBPassword:  *dbPassword,
		DBName:      *dbName,
	}
}

func readPoints(cfg pgConfig) ([]point, error) {
	file, err := os.Open(cfg.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("open CSV: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = cfg.Delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var points []point
	for line := 1; cfg.RowLimit == 0 || len(points) < cfg.RowLimit; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV: %w", err)
		}
		p, err := parseRecord(record, int64(len(points)))
		if err != nil {
			// header
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		points = append(points, p)
	}
	return points, nil
}

func parseRecord(rec []string, next int64) (point, error) {
	p := point{id: next}
	var err error
	switch len(rec) {
	case 2:
	case 3:
		if p.id, err = strconv.ParseInt(rec[0], 10, 64); err != nil {
			return p, err
		}
		rec = rec[1:]
	default:
		return p, fmt.Errorf("want 2 or 3 fields, got %d", len(rec))
	}
	if p.x, err = strconv.ParseFloat(rec[0], 64); err != nil {
		return p, err
	}
	p.y, err = strconv.ParseFloat(rec[1], 64)
	return p, err
}

func runBench(cfg pgConfig) error {
	points, err := readPoints(cfg)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return fmt.Errorf("no points in %s", cfg.DatasetPath)
	}

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	table := pq.QuoteIdentifier("bench_" + cfg.DatasetName)
	if _, err := db.Exec(fmt.Sprintf(`
		DROP TABLE IF EXISTS %s CASCADE;
		CREATE TABLE %s (
			id  BIGINT NOT NULL,
			pos POINT  NOT NULL
		);
	`, table, table)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	startWrite := time.Now()
	if err := copyPoints(db, "bench_"+cfg.DatasetName, points); err != nil {
		return fmt.Errorf("copy points: %w", err)
	}
	writeTime := time.Since(startWrite)

	startIndex := time.Now()
	if _, err := db.Exec(fmt.Sprintf("CREATE INDEX ON %s USING gist (pos); ANALYZE %s;", table, table)); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	indexTime := time.Since(startIndex)

	result := pgResult{
		Dataset:   cfg.DatasetName,
		Rows:      len(points),
		WriteTime: writeTime,
		IndexTime: indexTime,
		Queries:   cfg.Queries,
	}

	stmt, err := db.Prepare(fmt.Sprintf(
		"SELECT count(*) FROM %s WHERE pos <@ box(point($1, $2), point($3, $4))", table))
	if err != nil {
		return fmt.Errorf("prepare query: %w", err)
	}
	defer stmt.Close()

	xMin, xMax, yMin, yMax := bounds(points)
	w, h := (xMax-xMin)*cfg.Window, (yMax-yMin)*cfg.Window
	r := rand.New(rand.NewSource(1))
	var sum time.Duration
	for i := 0; i < cfg.Queries; i++ {
		x := xMin + r.Float64()*(xMax-xMin-w)
		y := yMin + r.Float64()*(yMax-yMin-h)

		start := time.Now()
		var n int
		if err := stmt.QueryRow(x, y, x+w, y+h).Scan(&n); err != nil {
			return fmt.Errorf("query %d: %w", i, err)
		}
		lat := time.Since(start)
		sum += lat
		result.MaxLatency = max(result.MaxLatency, lat)
		result.Results += n
	}
	if cfg.Queries > 0 {
		result.AvgLatency = sum / time.Duration(cfg.Queries)
	}

	if err := db.QueryRow(
		"SELECT pg_table_size($1::regclass) / 1024.0 / 1024.0, pg_indexes_size($1::regclass) / 1024.0 / 1024.0",
		table,
	).Scan(&result.TableMB, &result.IndexMB); err != nil {
		return fmt.Errorf("get sizes: %w", err)
	}

	// Save result
	if err := os.MkdirAll("bench-results", 0o755); err != nil {
		return fmt.Errorf("create bench-results: %w", err)
	}

	resultJSON, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	resultPath := filepath.Join("bench-results", fmt.Sprintf("pg_%s.json", cfg.DatasetName))
	if err := os.WriteFile(resultPath, resultJSON, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	// Print summary
	fmt.Printf("%s\trows=%d\twrite_ms=%d\tindex_ms=%d\tqueries=%d\tresults=%d\tavg_us=%d\tmax_us=%d\ttable_mb=%.2f\tindex_mb=%.2f\n",
		result.Dataset,
		result.Rows,
		result.WriteTime.Milliseconds(),
		result.IndexTime.Milliseconds(),
		result.Queries,
		result.Results,
		result.AvgLatency.Microseconds(),
		result.MaxLatency.Microseconds(),
		result.TableMB,
		result.IndexMB,
	)

	return nil
}

// copyPoints bulk loads points with COPY; positions go in the text form of
// the point type.
func copyPoints(db *sql.DB, table string, points []point) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(table, "id", "pos"))
	if err != nil {
		return err
	}
	for i, p := range points {
		if _, err := stmt.Exec(p.id, fmt.Sprintf("(%g,%g)", p.x, p.y)); err != nil {
			_ = stmt.Close()
			return err
		}
		if (i+1)%250000 == 0 {
			log.Printf("copied %d rows", i+1)
		}
	}
	if _, err := stmt.Exec(); err != nil {
		_ = stmt.Close()
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}
	return tx.Commit()
}

func bounds(points []point) (xMin, xMax, yMin, yMax float64) {
	xMin, yMin = math.Inf(1), math.Inf(1)
	xMax, yMax = math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		xMin, xMax = math.Min(xMin, p.x), math.Max(xMax, p.x)
		yMin, yMax = math.Min(yMin, p.y), math.Max(yMax, p.y)
	}
	return xMin, xMax, yMin, yMax
}
