package main

import (
	"sync"

	"spatiallsm/pkg/metrics"
)

// counters keeps the engine's counters in memory for the report.
type counters struct {
	mu sync.Mutex
	m  map[string]float64
}

var _ metrics.Collector = (*counters)(nil)

func newCounters() *counters { return &counters{m: make(map[string]float64)} }

func (c *counters) IncCounter(name string, _ map[string]string, delta float64) {
	c.mu.Lock()
	c.m[name] += delta
	c.mu.Unlock()
}

func (c *counters) SetGauge(string, map[string]string, float64)         {}
func (c *counters) ObserveHistogram(string, map[string]string, float64) {}

func (c *counters) snapshot() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.m))
	for k, v := range c.m {
		out[k] = v
	}
	return out
}
