package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestCountersAndSnapshot(t *testing.T) {
	m := New(Config{Enabled: true})

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Add(MetricSessionSwept, 5)

	snap := m.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 2 {
		t.Fatalf("login success = %d, want 2", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricSessionSwept] != 5 {
		t.Fatalf("swept = %d, want 5", snap.Counters[MetricSessionSwept])
	}
	if _, ok := snap.Counters[MetricLoginFailure]; ok {
		t.Fatal("zero counters must be omitted from snapshots")
	}
}

func TestDisabledIsNoOp(t *testing.T) {
	m := New(Config{Enabled: false})
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricValidateLatency, time.Millisecond)

	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatal("disabled metrics must record nothing")
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLoginSuccess)
	m.Add(MetricSessionSwept, 3)
	m.Observe(MetricValidateLatency, time.Millisecond)
	if m.LatencyEnabled() {
		t.Fatal("nil metrics must report latency disabled")
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("nil metrics snapshot must be empty")
	}
}

func TestObserveBucketAssignment(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatency: true})

	m.Observe(MetricValidateLatency, 500*time.Microsecond) // bucket 0
	m.Observe(MetricValidateLatency, 4*time.Millisecond)   // bucket 2
	m.Observe(MetricValidateLatency, time.Second)          // overflow bucket

	snap := m.Snapshot()
	buckets, ok := snap.Histograms[MetricValidateLatency]
	if !ok {
		t.Fatal("expected a histogram for validate latency")
	}
	if len(buckets) != HistogramBuckets {
		t.Fatalf("bucket count = %d, want %d", len(buckets), HistogramBuckets)
	}
	if buckets[0] != 1 || buckets[2] != 1 || buckets[HistogramBuckets-1] != 1 {
		t.Fatalf("unexpected bucket distribution: %v", buckets)
	}
}

func TestConcurrentIncrement(t *testing.T) {
	m := New(Config{Enabled: true})

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Snapshot().Counters[MetricRefreshSuccess]; got != workers*perWorker {
		t.Fatalf("refresh success = %d, want %d", got, workers*perWorker)
	}
}
