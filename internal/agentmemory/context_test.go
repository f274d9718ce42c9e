package agentmemory

import (
	"context"
	"testing"
	"time"

	"github.com/graphkeep/graphkeep/internal/graph"
)

func newTestContextManager(t *testing.T, store graph.Store, opts ContextWindowOptions) *ContextWindowManager {
	t.Helper()
	tracker := NewAccessTracker(store, DefaultAccessTrackerOptions())
	decay := NewDecayEngine(store, tracker, DefaultDecayConfig())
	salience := NewSalienceEngine(decay, tracker, store.Indexes(), DefaultSalienceEngineOptions())
	return NewContextWindowManager(store, salience, opts)
}

func TestEstimateTokensCountsFieldsAndMultiplies(t *testing.T) {
	e := &graph.Entity{
		Name:         "alpha beta",
		EntityType:   "note",
		Observations: []string{"one two three"},
	}
	tokens := EstimateTokens(e, 1.0)
	// "alpha beta" (2) + "note" (1) + "one two three" (3) = 6 tokens
	if tokens != 6 {
		t.Errorf("EstimateTokens = %d, want 6", tokens)
	}
}

func TestRetrieveForContextRespectsBudget(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	for i := 0; i < 5; i++ {
		seedAgentEntity(t, store, &graph.Entity{
			Name:         "mem" + string(rune('a'+i)),
			EntityType:   "fact",
			Observations: []string{"some reasonably long observation text here"},
			MemoryType:   graph.MemoryTypeSemantic,
			Importance:   intPtr(5 + i),
			CreatedAt:    now,
			LastAccessedAt: &now,
		})
	}

	mgr := newTestContextManager(t, store, ContextWindowOptions{
		MaxTokens:             20,
		ReserveBuffer:         0,
		TokenMultiplier:       1.0,
		MaxEntitiesToConsider: 1000,
	})

	result := mgr.RetrieveForContext(context.Background(), RetrieveOptions{
		Include: IncludeFlags{Semantic: true},
	})

	if result.TotalTokens > 20 {
		t.Errorf("TotalTokens = %d, exceeds budget of 20", result.TotalTokens)
	}
	if len(result.Memories)+len(result.Excluded) != 5 {
		t.Errorf("expected every candidate to be either selected or excluded, got %d selected + %d excluded", len(result.Memories), len(result.Excluded))
	}
}

func TestRetrieveForContextMustIncludeAlwaysSelected(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	seedAgentEntity(t, store, &graph.Entity{
		Name: "lowpriority", EntityType: "fact", MemoryType: graph.MemoryTypeSemantic,
		Importance: intPtr(1), CreatedAt: now.Add(-365 * 24 * time.Hour),
		Observations: []string{"padding padding padding padding padding padding padding"},
	})

	mgr := newTestContextManager(t, store, ContextWindowOptions{
		MaxTokens: 1, ReserveBuffer: 0, TokenMultiplier: 1.0, MaxEntitiesToConsider: 1000,
	})

	result := mgr.RetrieveForContext(context.Background(), RetrieveOptions{
		Include:     IncludeFlags{Semantic: true},
		MustInclude: []string{"lowpriority"},
	})

	if len(result.Memories) != 1 || result.Memories[0].Name != "lowpriority" {
		t.Fatalf("expected must-include entity to be present despite tiny budget, got %+v", result.Memories)
	}
}

func TestRetrieveWithBudgetAllocationPartitionsByClass(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	seedAgentEntity(t, store, &graph.Entity{Name: "w1", EntityType: "note", MemoryType: graph.MemoryTypeWorking, Importance: intPtr(5), CreatedAt: now, SessionID: "s1"})
	seedAgentEntity(t, store, &graph.Entity{Name: "ep1", EntityType: "note", MemoryType: graph.MemoryTypeEpisodic, Importance: intPtr(5), CreatedAt: now, SessionID: "s1"})
	seedAgentEntity(t, store, &graph.Entity{Name: "se1", EntityType: "note", MemoryType: graph.MemoryTypeSemantic, Importance: intPtr(5), CreatedAt: now, SessionID: "s1"})

	mgr := newTestContextManager(t, store, ContextWindowOptions{
		MaxTokens: 1000, ReserveBuffer: 0, TokenMultiplier: 1.0, MaxEntitiesToConsider: 1000,
		WorkingBudgetFraction: 0.3, EpisodicBudgetFraction: 0.3, SemanticBudgetFraction: 0.4,
		RecentSessionCount: 5,
	})

	result := mgr.RetrieveWithBudgetAllocation(context.Background(), RetrieveOptions{})
	if len(result.Memories) != 3 {
		t.Fatalf("expected all three class memories retrieved with a generous budget, got %+v", result.Memories)
	}
}
