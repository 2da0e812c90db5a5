package metrics

// Collector captures counters, gauges and histograms.
type Collector interface {
	IncCounter(name string, labels map[string]string, delta float64)
	SetGauge(name string, labels map[string]string, value float64)
	ObserveHistogram(name string, labels map[string]string, value float64)
}

// Metric names reported by the storage engine.
const (
	BlockCacheHits     = "block_cache_hits_total"
	BlockCacheMisses   = "block_cache_misses_total"
	BlockReads         = "block_reads_total"
	ReadaheadHits      = "readahead_hits_total"
	IndexNodesVisited  = "index_nodes_visited_total"
	QueryDuration      = "query_duration_seconds"
	QueryResults       = "query_results"
	FlushDuration      = "flush_duration_seconds"
	TablesWritten      = "tables_written_total"
	TableIndexHeight   = "table_index_height"
	MemtableBytes      = "memtable_bytes"
	LiveTables         = "live_tables"
	PutsTotal          = "puts_total"
	HTTPRequests       = "http_requests_total"
	HTTPRequestSeconds = "http_request_duration_seconds"
)

// Noop discards everything.
type Noop struct{}

func (Noop) IncCounter(string, map[string]string, float64)       {}
func (Noop) SetGauge(string, map[string]string, float64)         {}
func (Noop) ObserveHistogram(string, map[string]string, float64) {}
