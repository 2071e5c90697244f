// Package prometheus exposes authcore metrics as a
// prometheus.Collector.
//
// The collector reads a fresh snapshot on every scrape, so it carries no
// state of its own and never races the engine's hot-path counters.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/PBLC21/authcore"
)

const namespace = "authcore"

// SnapshotSource supplies point-in-time metric snapshots. *authcore.Engine
// satisfies it.
type SnapshotSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
}

// Exporter implements prometheus.Collector over an authcore metrics
// snapshot source. Register it with a prometheus.Registerer.
type Exporter struct {
	source       SnapshotSource
	counterDescs map[authcore.MetricID]*prometheus.Desc
	histoDescs   map[authcore.MetricID]*prometheus.Desc
}

// NewExporter creates a collector reading from source.
func NewExporter(source SnapshotSource) *Exporter {
	names := authcore.MetricNames()

	e := &Exporter{
		source:       source,
		counterDescs: make(map[authcore.MetricID]*prometheus.Desc, len(names)),
		histoDescs:   make(map[authcore.MetricID]*prometheus.Desc, len(names)),
	}

	for id, name := range names {
		e.counterDescs[id] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", name),
			"authcore counter "+name,
			nil, nil,
		)
		e.histoDescs[id] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", name+"_seconds"),
			"authcore latency histogram "+name,
			nil, nil,
		)
	}

	return e
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range e.counterDescs {
		ch <- desc
	}
	for _, desc := range e.histoDescs {
		ch <- desc
	}
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	snap := e.source.MetricsSnapshot()

	for id, value := range snap.Counters {
		desc, ok := e.counterDescs[id]
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(value))
	}

	bounds := authcore.LatencyBucketBounds()
	for id, bucketCounts := range snap.Histograms {
		desc, ok := e.histoDescs[id]
		if !ok {
			continue
		}

		var (
			count      uint64
			sum        float64
			cumulative = make(map[float64]uint64, len(bounds))
		)
		running := uint64(0)
		for i, bound := range bounds {
			if i < len(bucketCounts) {
				running += bucketCounts[i]
			}
			cumulative[bound.Seconds()] = running
		}
		for i, c := range bucketCounts {
			count += c
			// Approximate the sum with bucket upper bounds; the final
			// unbounded bucket contributes its lower bound.
			if i < len(bounds) {
				sum += float64(c) * bounds[i].Seconds()
			} else {
				sum += float64(c) * bounds[len(bounds)-1].Seconds()
			}
		}

		ch <- prometheus.MustNewConstHistogram(desc, count, sum, cumulative)
	}
}
