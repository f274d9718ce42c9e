package agentmemory

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/graphkeep/graphkeep/internal/graph"
)

func TestEffectiveImportanceNoTimestampsReturnsBase(t *testing.T) {
	e := &graph.Entity{Name: "e1", Importance: intPtr(7)}
	cfg := DefaultDecayConfig()
	got := EffectiveImportance(e, cfg, time.Now())
	if got != 7 {
		t.Errorf("EffectiveImportance = %f, want 7", got)
	}
}

func TestEffectiveImportanceDecaysWithAge(t *testing.T) {
	now := time.Now()
	created := now.Add(-90 * 24 * time.Hour) // exactly one semantic half-life
	e := &graph.Entity{
		Name:       "e1",
		Importance: intPtr(10),
		MemoryType: graph.MemoryTypeSemantic,
		CreatedAt:  created,
	}
	cfg := DefaultDecayConfig()
	cfg.ImportanceMod = false
	cfg.AccessMod = false

	got := EffectiveImportance(e, cfg, now)
	// decay = exp(-ln2 * 1) = 0.5, strength = 1, so effective = base*0.5 = 5
	if math.Abs(got-5) > 0.05 {
		t.Errorf("EffectiveImportance = %f, want ~5", got)
	}
}

func TestEffectiveImportanceClampedToMinImportance(t *testing.T) {
	now := time.Now()
	created := now.Add(-10 * 365 * 24 * time.Hour)
	e := &graph.Entity{Name: "e1", Importance: intPtr(1), MemoryType: graph.MemoryTypeWorking, CreatedAt: created}
	cfg := DefaultDecayConfig()
	got := EffectiveImportance(e, cfg, now)
	if got < float64(cfg.MinImportance) {
		t.Errorf("EffectiveImportance = %f, should never fall below MinImportance %d", got, cfg.MinImportance)
	}
}

func TestApplyDecayReportsAggregate(t *testing.T) {
	store := newTestStore(t)
	seedAgentEntity(t, store, &graph.Entity{Name: "a", Importance: intPtr(5), MemoryType: graph.MemoryTypeEpisodic})
	seedAgentEntity(t, store, &graph.Entity{Name: "b", Importance: intPtr(5), MemoryType: graph.MemoryTypeEpisodic})

	engine := NewDecayEngine(store, NewAccessTracker(store, DefaultAccessTrackerOptions()), DefaultDecayConfig())
	report, err := engine.ApplyDecay(context.Background(), 1.0)
	if err != nil {
		t.Fatalf("ApplyDecay: %v", err)
	}
	if report.EntitiesProcessed != 2 {
		t.Errorf("EntitiesProcessed = %d, want 2", report.EntitiesProcessed)
	}
}

func TestReinforceMemoryBumpsConfirmationAndClampsConfidence(t *testing.T) {
	store := newTestStore(t)
	seedAgentEntity(t, store, &graph.Entity{
		Name:       "mem1",
		MemoryType: graph.MemoryTypeSemantic,
		Confidence: func() *float64 { v := 0.95; return &v }(),
	})
	engine := NewDecayEngine(store, NewAccessTracker(store, DefaultAccessTrackerOptions()), DefaultDecayConfig())

	boost := 0.2
	if err := engine.ReinforceMemory(context.Background(), "mem1", ReinforceOptions{ConfidenceBoost: &boost}); err != nil {
		t.Fatalf("ReinforceMemory: %v", err)
	}

	e, _ := store.GetEntity("mem1")
	if e.ConfirmationCount != 1 {
		t.Errorf("ConfirmationCount = %d, want 1", e.ConfirmationCount)
	}
	if *e.Confidence != 1.0 {
		t.Errorf("Confidence = %f, want clamped to 1.0", *e.Confidence)
	}
}

func TestForgetWeakMemoriesDryRunDoesNotMutate(t *testing.T) {
	store := newTestStore(t)
	seedAgentEntity(t, store, &graph.Entity{Name: "weak", Importance: intPtr(1), MemoryType: graph.MemoryTypeEpisodic})

	engine := NewDecayEngine(store, nil, DefaultDecayConfig())
	report, err := engine.ForgetWeakMemories(context.Background(), ForgetOptions{EffectiveImportanceThreshold: 10, DryRun: true})
	if err != nil {
		t.Fatalf("ForgetWeakMemories: %v", err)
	}
	if len(report.Removed) != 1 {
		t.Fatalf("Removed = %v, want 1 entry", report.Removed)
	}
	if _, ok := store.GetEntity("weak"); !ok {
		t.Error("dry run must not remove the entity")
	}
}

func TestForgetWeakMemoriesRemovesAndProtectsTags(t *testing.T) {
	store := newTestStore(t)
	seedAgentEntity(t, store, &graph.Entity{Name: "weak", Importance: intPtr(1), MemoryType: graph.MemoryTypeEpisodic})
	seedAgentEntity(t, store, &graph.Entity{Name: "protected", Importance: intPtr(1), MemoryType: graph.MemoryTypeEpisodic, Tags: []string{"pinned"}})

	engine := NewDecayEngine(store, nil, DefaultDecayConfig())
	report, err := engine.ForgetWeakMemories(context.Background(), ForgetOptions{
		EffectiveImportanceThreshold: 10,
		ExcludeTags:                  []string{"pinned"},
	})
	if err != nil {
		t.Fatalf("ForgetWeakMemories: %v", err)
	}
	if report.MemoriesProtected != 1 {
		t.Errorf("MemoriesProtected = %d, want 1", report.MemoriesProtected)
	}
	if _, ok := store.GetEntity("weak"); ok {
		t.Error("weak memory should have been removed")
	}
	if _, ok := store.GetEntity("protected"); !ok {
		t.Error("protected memory should survive")
	}
}

func TestSchedulerStartStopIdempotent(t *testing.T) {
	store := newTestStore(t)
	engine := NewDecayEngine(store, nil, DefaultDecayConfig())
	sched := NewScheduler(engine, SchedulerOptions{Interval: time.Hour, AtRiskThreshold: 1.0})

	sched.Start(context.Background())
	sched.Start(context.Background()) // no-op, must not deadlock or panic
	sched.Stop()
	sched.Stop() // no-op
}
