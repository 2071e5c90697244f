// Package otel bridges authcore counters to the OpenTelemetry metric API
// as asynchronous observable counters.
//
// Latency histograms are not bridged: the async instrument API has no
// histogram observation, and re-feeding bucket counts through a sync
// histogram would distort the distribution. Use the prometheus exporter
// when histograms matter.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/PBLC21/authcore"
)

const instrumentPrefix = "authcore."

// SnapshotSource supplies point-in-time metric snapshots. *authcore.Engine
// satisfies it.
type SnapshotSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
}

// Exporter holds the registered observable instruments. Unregister it when
// the engine shuts down.
type Exporter struct {
	registration metric.Registration
}

// Register creates one observable counter per authcore metric on the meter
// and observes a fresh snapshot on every collection cycle.
func Register(meter metric.Meter, source SnapshotSource) (*Exporter, error) {
	names := authcore.MetricNames()

	instruments := make(map[authcore.MetricID]metric.Int64ObservableCounter, len(names))
	observables := make([]metric.Observable, 0, len(names))

	for id, name := range names {
		counter, err := meter.Int64ObservableCounter(
			instrumentPrefix+name,
			metric.WithDescription("authcore counter "+name),
		)
		if err != nil {
			return nil, err
		}
		instruments[id] = counter
		observables = append(observables, counter)
	}

	registration, err := meter.RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			snap := source.MetricsSnapshot()
			for id, value := range snap.Counters {
				if instrument, ok := instruments[id]; ok {
					observer.ObserveInt64(instrument, int64(value))
				}
			}
			return nil
		},
		observables...,
	)
	if err != nil {
		return nil, err
	}

	return &Exporter{registration: registration}, nil
}

// Unregister detaches the callback from the meter.
func (e *Exporter) Unregister() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
