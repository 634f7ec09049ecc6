package broker

import (
	"sync"
	"time"
)

// Metrics is a thread-safe counter/gauge registry for broker-level runtime
// stats (streams opened/closed, malformed frames seen, backend dial
// failures), queryable by a debug endpoint or a periodic log line.
//
// Grounded on the teacher's control/metrics.go MetricsRegistry (a
// sync.RWMutex-guarded map with Set/GetSnapshot), adapted from a free-form
// any-valued map to this domain's small, fixed set of int64 counters plus a
// last-updated timestamp, since the broker has no dynamic-config surface to
// justify a general "any" value type.
type Metrics struct {
	mu      sync.RWMutex
	counts  map[string]int64
	updated time.Time
}

// NewMetrics constructs an empty Metrics registry.
func NewMetrics() *Metrics {
	return &Metrics{counts: make(map[string]int64)}
}

// Incr adds delta to the named counter.
func (m *Metrics) Incr(name string, delta int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name] += delta
	m.updated = time.Now()
}

// Snapshot returns a copy of every counter's current value.
func (m *Metrics) Snapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}
