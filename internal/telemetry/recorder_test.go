package telemetry

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestNewRecorderCreatesAllInstruments(t *testing.T) {
	mp := sdkmetric.NewMeterProvider()
	r, err := NewRecorder(mp)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if r.StoreWriteDuration == nil || r.StoreWrites == nil || r.SearchDuration == nil ||
		r.SearchCalls == nil || r.DecayRuns == nil || r.DecayRunDuration == nil ||
		r.MemoriesForgotten == nil || r.MemoriesPromoted == nil || r.ActiveWorkingSessions == nil {
		t.Error("expected every instrument to be non-nil")
	}
}

func TestRecorderMethodsNilSafe(t *testing.T) {
	var r *Recorder
	ctx := context.Background()

	// None of these should panic on a nil receiver.
	r.RecordStoreWrite(ctx, "log", "create_entities", "ok", 0.01)
	r.RecordSearch(ctx, "bm25", 0.02, 5)
	r.RecordDecayRun(ctx, "apply_decay", "ok", 0.03)
	r.RecordMemoriesForgotten(ctx, 3)
	r.RecordPromotion(ctx, "semantic")
	r.AdjustActiveWorkingSessions(ctx, 1)
}

func TestRecorderRecordMethodsDoNotPanic(t *testing.T) {
	mp := sdkmetric.NewMeterProvider()
	r, err := NewRecorder(mp)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	ctx := context.Background()

	r.RecordStoreWrite(ctx, "sqlite", "update_entity", "ok", 0.005)
	r.RecordSearch(ctx, "hybrid", 0.01, 10)
	r.RecordDecayRun(ctx, "forget_weak_memories", "ok", 0.02)
	r.RecordMemoriesForgotten(ctx, 2)
	r.RecordPromotion(ctx, "episodic")
	r.AdjustActiveWorkingSessions(ctx, -1)
}

func TestDefaultRecorderReturnsSamePointer(t *testing.T) {
	a := DefaultRecorder()
	b := DefaultRecorder()
	if a != b {
		t.Error("DefaultRecorder should return the same pointer across calls")
	}
}
