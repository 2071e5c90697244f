package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a single counter or histogram slot.
type MetricID uint8

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLockedOut
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricReplayDetected
	MetricSessionCreated
	MetricSessionRevoked
	MetricSessionSwept
	MetricLogout
	MetricLogoutAll
	MetricAuthorizeDenied
	MetricValidateLatency

	MetricIDCount
)

// HistogramBuckets is the number of fixed latency buckets.
const HistogramBuckets = 8

// BucketBounds are the histogram upper bounds. The final bucket is +Inf.
var BucketBounds = [HistogramBuckets - 1]time.Duration{
	time.Millisecond,
	2 * time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
}

// Config controls which metric families are active.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// paddedCounter occupies a full cache line to avoid false sharing between
// adjacent counters under concurrent increment.
type paddedCounter struct {
	value uint64
	_     [56]byte
}

// Metrics holds atomic counters and optional latency histograms. The zero
// value is unusable; construct via [New]. A nil *Metrics is a valid no-op
// receiver for every method.
type Metrics struct {
	enabled        bool
	latencyEnabled bool

	counters   [MetricIDCount]paddedCounter
	histograms [MetricIDCount][HistogramBuckets]paddedCounter
}

// Snapshot is a point-in-time deep copy of all metrics.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// New creates a Metrics instance. When cfg.Enabled is false every operation
// is a no-op and Snapshot returns empty maps.
func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:        cfg.Enabled,
		latencyEnabled: cfg.Enabled && cfg.EnableLatency,
	}
}

// Inc atomically increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add atomically adds n to the counter for id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= MetricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// LatencyEnabled reports whether Observe records anything.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.latencyEnabled
}

// Observe records a latency sample into the histogram for id.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.latencyEnabled || id >= MetricIDCount {
		return
	}

	bucket := HistogramBuckets - 1
	for i, bound := range BucketBounds {
		if d <= bound {
			bucket = i
			break
		}
	}
	atomic.AddUint64(&m.histograms[id][bucket].value, 1)
}

// Snapshot returns a deep copy of every nonzero counter and histogram.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if m == nil || !m.enabled {
		return snap
	}

	for id := MetricID(0); id < MetricIDCount; id++ {
		if v := atomic.LoadUint64(&m.counters[id].value); v > 0 {
			snap.Counters[id] = v
		}
	}

	if m.latencyEnabled {
		for id := MetricID(0); id < MetricIDCount; id++ {
			var (
				buckets [HistogramBuckets]uint64
				total   uint64
			)
			for i := range buckets {
				buckets[i] = atomic.LoadUint64(&m.histograms[id][i].value)
				total += buckets[i]
			}
			if total > 0 {
				snap.Histograms[id] = buckets[:]
			}
		}
	}

	return snap
}
