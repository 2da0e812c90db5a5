package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector(t *testing.T) {
	p := NewPrometheus("spatiallsm")

	p.IncCounter(BlockCacheHits, map[string]string{"kind": "index"}, 1)
	p.IncCounter(BlockCacheHits, map[string]string{"kind": "index"}, 2)
	p.IncCounter(BlockCacheHits, map[string]string{"kind": "data"}, 1)
	p.SetGauge(LiveTables, nil, 4)
	p.ObserveHistogram(QueryDuration, map[string]string{"source": "table"}, 0.002)

	require.Equal(t, 3.0, testutil.ToFloat64(p.counters[BlockCacheHits].WithLabelValues("index")))
	require.Equal(t, 4.0, testutil.ToFloat64(p.gauges[LiveTables].WithLabelValues()))

	// Mismatched label sets are dropped, not panicked on.
	p.IncCounter(BlockCacheHits, map[string]string{"other": "x"}, 1)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	require.True(t, strings.Contains(text, `spatiallsm_block_cache_hits_total{kind="data"} 1`), text)
	require.True(t, strings.Contains(text, "spatiallsm_live_tables 4"))
	require.True(t, strings.Contains(text, "spatiallsm_query_duration_seconds_count"))
}

func TestNoop(t *testing.T) {
	var c Collector = Noop{}
	c.IncCounter("x", nil, 1)
	c.SetGauge("x", nil, 1)
	c.ObserveHistogram("x", nil, 1)
}
