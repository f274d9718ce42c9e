// Package telemetry wires per-operation counters and histograms for the
// engine's store, search, and agent-memory subsystems into an OpenTelemetry
// meter. It mirrors the teacher's performance_metrics table, but as live
// instrumentation rather than a row written after the fact.
//
// A package-level default [Recorder] is available via [DefaultRecorder] for
// hosts that don't configure their own meter provider; tests and hosts that
// want isolation should build one with [NewRecorder] against a dedicated
// [metric.MeterProvider] instead.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all graphkeep metrics.
const meterName = "github.com/graphkeep/graphkeep"

// durationBuckets are histogram bucket boundaries in seconds, sized for
// in-process calls rather than network round trips.
var durationBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5,
}

// Recorder holds every OpenTelemetry instrument the engine emits. All
// fields are safe for concurrent use — the underlying OTel types handle
// their own synchronization.
type Recorder struct {
	// StoreWriteDuration tracks the latency of the facade's entity,
	// relation, observation, tag and parent mutations. Use with attribute.String("backend", "log"|"sqlite"),
	// attribute.String("op", ...).
	StoreWriteDuration metric.Float64Histogram

	// StoreWrites counts store mutations by backend, op, and status.
	StoreWrites metric.Int64Counter

	// SearchDuration tracks search-call latency. Use with
	// attribute.String("mode", "basic"|"ranked"|"bm25"|"boolean"|"fuzzy"|"hybrid").
	SearchDuration metric.Float64Histogram

	// SearchCalls counts search invocations by mode.
	SearchCalls metric.Int64Counter

	// DecayRuns counts ApplyDecay/ForgetWeakMemories sweeps by kind and status.
	DecayRuns metric.Int64Counter

	// DecayRunDuration tracks how long a decay or forget sweep took.
	DecayRunDuration metric.Float64Histogram

	// MemoriesForgotten counts entities removed by ForgetWeakMemories.
	MemoriesForgotten metric.Int64Counter

	// MemoriesPromoted counts working-memory promotions by target type.
	MemoriesPromoted metric.Int64Counter

	// ActiveWorkingSessions tracks the number of sessions with at least one
	// live working memory, as an up/down gauge.
	ActiveWorkingSessions metric.Int64UpDownCounter
}

// NewRecorder builds a fully initialized [Recorder] against the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewRecorder(mp metric.MeterProvider) (*Recorder, error) {
	m := mp.Meter(meterName)
	var err error
	r := &Recorder{}

	if r.StoreWriteDuration, err = m.Float64Histogram("graphkeep.store.write.duration",
		metric.WithDescription("Latency of store mutations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if r.StoreWrites, err = m.Int64Counter("graphkeep.store.writes",
		metric.WithDescription("Total store mutations by backend, operation, and status."),
	); err != nil {
		return nil, err
	}
	if r.SearchDuration, err = m.Float64Histogram("graphkeep.search.duration",
		metric.WithDescription("Latency of search calls by mode."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if r.SearchCalls, err = m.Int64Counter("graphkeep.search.calls",
		metric.WithDescription("Total search invocations by mode."),
	); err != nil {
		return nil, err
	}
	if r.DecayRuns, err = m.Int64Counter("graphkeep.decay.runs",
		metric.WithDescription("Total decay/forget sweeps by kind and status."),
	); err != nil {
		return nil, err
	}
	if r.DecayRunDuration, err = m.Float64Histogram("graphkeep.decay.run.duration",
		metric.WithDescription("Latency of a decay or forget sweep."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if r.MemoriesForgotten, err = m.Int64Counter("graphkeep.memories.forgotten",
		metric.WithDescription("Total entities removed by ForgetWeakMemories."),
	); err != nil {
		return nil, err
	}
	if r.MemoriesPromoted, err = m.Int64Counter("graphkeep.memories.promoted",
		metric.WithDescription("Total working-memory promotions by target type."),
	); err != nil {
		return nil, err
	}
	if r.ActiveWorkingSessions, err = m.Int64UpDownCounter("graphkeep.working_sessions.active",
		metric.WithDescription("Number of sessions with at least one live working memory."),
	); err != nil {
		return nil, err
	}

	return r, nil
}

var (
	defaultRecorder     *Recorder
	defaultRecorderOnce sync.Once
)

// DefaultRecorder returns the package-level [Recorder], creating it on
// first call from [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails, which should not
// happen against the global no-op provider.
func DefaultRecorder() *Recorder {
	defaultRecorderOnce.Do(func() {
		var err error
		defaultRecorder, err = NewRecorder(otel.GetMeterProvider())
		if err != nil {
			panic("telemetry: failed to create default recorder: " + err.Error())
		}
	})
	return defaultRecorder
}

// Attr is a convenience alias for attribute.String to shorten call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStoreWrite is a convenience method recording a store-write
// duration and counter increment with the standard attribute set.
func (r *Recorder) RecordStoreWrite(ctx context.Context, backend, op, status string, seconds float64) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("op", op),
		attribute.String("status", status),
	)
	r.StoreWriteDuration.Record(ctx, seconds, attrs)
	r.StoreWrites.Add(ctx, 1, attrs)
}

// RecordSearch is a convenience method recording a search-call duration
// and counter increment. resultCount is accepted but not recorded.
func (r *Recorder) RecordSearch(ctx context.Context, mode string, seconds float64, resultCount int) {
	if r == nil {
		return
	}
	attr := metric.WithAttributes(attribute.String("mode", mode))
	r.SearchDuration.Record(ctx, seconds, attr)
	r.SearchCalls.Add(ctx, 1, attr)
	_ = resultCount // not a metric dimension (unbounded cardinality)
}

// RecordDecayRun is a convenience method recording a decay/forget sweep.
func (r *Recorder) RecordDecayRun(ctx context.Context, kind, status string, seconds float64) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	)
	r.DecayRuns.Add(ctx, 1, attrs)
	r.DecayRunDuration.Record(ctx, seconds, attrs)
}

// RecordMemoriesForgotten adds n to the forgotten-memories counter.
func (r *Recorder) RecordMemoriesForgotten(ctx context.Context, n int) {
	if r == nil || n == 0 {
		return
	}
	r.MemoriesForgotten.Add(ctx, int64(n))
}

// RecordPromotion is a convenience method recording a working-memory
// promotion to the given target memory type.
func (r *Recorder) RecordPromotion(ctx context.Context, targetType string) {
	if r == nil {
		return
	}
	r.MemoriesPromoted.Add(ctx, 1, metric.WithAttributes(attribute.String("target_type", targetType)))
}

// AdjustActiveWorkingSessions adds delta (positive or negative) to the
// active-working-sessions gauge.
func (r *Recorder) AdjustActiveWorkingSessions(ctx context.Context, delta int) {
	if r == nil || delta == 0 {
		return
	}
	r.ActiveWorkingSessions.Add(ctx, int64(delta))
}
