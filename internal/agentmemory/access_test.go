package agentmemory

import (
	"math"
	"testing"
	"time"

	"github.com/graphkeep/graphkeep/internal/graph"
)

func TestAccessTrackerRecordAccessUpdatesStore(t *testing.T) {
	store := newTestStore(t)
	seedAgentEntity(t, store, &graph.Entity{
		Name:       "mem1",
		EntityType: "note",
		MemoryType: graph.MemoryTypeEpisodic,
	})

	tracker := NewAccessTracker(store, DefaultAccessTrackerOptions())
	tracker.RecordAccess("mem1", "sess-a")
	tracker.RecordAccess("mem1", "sess-a")
	tracker.RecordAccess("mem1", "sess-b")

	e, ok := store.GetEntity("mem1")
	if !ok {
		t.Fatal("entity missing after RecordAccess")
	}
	if e.AccessCount != 3 {
		t.Errorf("AccessCount = %d, want 3", e.AccessCount)
	}
	if e.LastAccessedAt == nil {
		t.Fatal("LastAccessedAt not set")
	}

	stats := tracker.Stats("mem1")
	if stats.TotalAccesses != 3 {
		t.Errorf("TotalAccesses = %d, want 3", stats.TotalAccesses)
	}
	if stats.AccessesBySession["sess-a"] != 2 || stats.AccessesBySession["sess-b"] != 1 {
		t.Errorf("unexpected session breakdown: %+v", stats.AccessesBySession)
	}
}

func TestAccessStatsAverageIntervalInfinityBelowTwo(t *testing.T) {
	s := &AccessStats{recent: []time.Time{time.Now()}}
	if !math.IsInf(s.AverageIntervalHours(), 1) {
		t.Errorf("expected +Inf for a single recorded access")
	}

	var empty *AccessStats
	if !math.IsInf(empty.AverageIntervalHours(), 1) {
		t.Errorf("expected +Inf for nil stats")
	}
}

func TestAccessStatsAverageIntervalComputesMeanDelta(t *testing.T) {
	base := time.Now()
	s := &AccessStats{recent: []time.Time{base, base.Add(time.Hour), base.Add(3 * time.Hour)}}
	got := s.AverageIntervalHours()
	if math.Abs(got-1.5) > 1e-9 {
		t.Errorf("AverageIntervalHours = %f, want 1.5", got)
	}
}

func TestRecencyScoreHalfLife(t *testing.T) {
	score := RecencyScore(24, 24)
	if math.Abs(score-0.5) > 1e-9 {
		t.Errorf("RecencyScore(24,24) = %f, want 0.5", score)
	}
	if RecencyScore(0, 24) != 1 {
		t.Errorf("RecencyScore(0,24) = %f, want 1", RecencyScore(0, 24))
	}
}

func TestAccessTrackerClassify(t *testing.T) {
	tracker := NewAccessTracker(newTestStore(t), DefaultAccessTrackerOptions())
	weekAgo := time.Now().Add(-7 * 24 * time.Hour)

	if got := tracker.Classify(50, weekAgo); got != PatternFrequent {
		t.Errorf("Classify(50/week) = %s, want frequent", got)
	}
	if got := tracker.Classify(10, weekAgo); got != PatternOccasional {
		t.Errorf("Classify(10/week) = %s, want occasional", got)
	}
	if got := tracker.Classify(2, weekAgo); got != PatternRare {
		t.Errorf("Classify(2/week) = %s, want rare", got)
	}
}
