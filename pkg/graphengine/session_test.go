package graphengine

import (
	"context"
	"errors"
	"testing"

	"github.com/graphkeep/graphkeep/internal/agentmemory"
	"github.com/graphkeep/graphkeep/internal/graph"
)

func TestStartSessionReturnsUniqueIDs(t *testing.T) {
	f := newTestFacade(t)
	if f.StartSession() == f.StartSession() {
		t.Fatal("expected StartSession to return distinct ids")
	}
}

func TestCreateWorkingMemoryAndGetSessionMemories(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	session := f.StartSession()

	if _, err := f.CreateWorkingMemory(ctx, session, "remember this fact", agentmemory.CreateOptions{}); err != nil {
		t.Fatalf("CreateWorkingMemory: %v", err)
	}

	memories := f.GetSessionMemories(session, nil)
	if len(memories) != 1 {
		t.Fatalf("expected 1 working memory, got %d", len(memories))
	}
}

func TestEndSessionDeletesRemainingWorkingMemories(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	session := f.StartSession()

	if _, err := f.CreateWorkingMemory(ctx, session, "fact one", agentmemory.CreateOptions{}); err != nil {
		t.Fatalf("CreateWorkingMemory: %v", err)
	}
	if _, err := f.CreateWorkingMemory(ctx, session, "fact two", agentmemory.CreateOptions{}); err != nil {
		t.Fatalf("CreateWorkingMemory: %v", err)
	}

	deleted, err := f.EndSession(ctx, session)
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted working memories, got %d", deleted)
	}
	if len(f.GetSessionMemories(session, nil)) != 0 {
		t.Fatal("expected no memories left in the session after EndSession")
	}
}

func TestExtendTTLAndClearExpired(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	session := f.StartSession()

	e, err := f.CreateWorkingMemory(ctx, session, "transient fact", agentmemory.CreateOptions{})
	if err != nil {
		t.Fatalf("CreateWorkingMemory: %v", err)
	}
	if err := f.ExtendTTL(ctx, []string{e.Name}, 48); err != nil {
		t.Fatalf("ExtendTTL: %v", err)
	}

	n, err := f.ClearExpired(ctx)
	if err != nil {
		t.Fatalf("ClearExpired: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected nothing expired yet, got %d", n)
	}
}

func TestMarkForPromotionAndGetCandidates(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	session := f.StartSession()

	e, err := f.CreateWorkingMemory(ctx, session, "important fact", agentmemory.CreateOptions{})
	if err != nil {
		t.Fatalf("CreateWorkingMemory: %v", err)
	}
	if err := f.MarkForPromotion(ctx, e.Name, agentmemory.MarkForPromotionOptions{}); err != nil {
		t.Fatalf("MarkForPromotion: %v", err)
	}

	candidates := f.GetPromotionCandidates(session, nil)
	found := false
	for _, c := range candidates {
		if c.Entity.Name == e.Name {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %q among promotion candidates, got %+v", e.Name, candidates)
	}
}

func TestPromoteMemoryChangesMemoryType(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	session := f.StartSession()

	e, err := f.CreateWorkingMemory(ctx, session, "durable fact", agentmemory.CreateOptions{})
	if err != nil {
		t.Fatalf("CreateWorkingMemory: %v", err)
	}
	if err := f.PromoteMemory(ctx, e.Name, graph.MemoryTypeSemantic); err != nil {
		t.Fatalf("PromoteMemory: %v", err)
	}
	updated, ok := f.Store().GetEntity(e.Name)
	if !ok || updated.MemoryType != graph.MemoryTypeSemantic {
		t.Fatalf("expected %q promoted to semantic, got %+v", e.Name, updated)
	}
}

func TestConfirmMemoryIncreasesConfirmations(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	session := f.StartSession()

	e, err := f.CreateWorkingMemory(ctx, session, "recurring fact", agentmemory.CreateOptions{})
	if err != nil {
		t.Fatalf("CreateWorkingMemory: %v", err)
	}
	if _, err := f.ConfirmMemory(ctx, e.Name, nil); err != nil {
		t.Fatalf("ConfirmMemory: %v", err)
	}
}

func TestApplyDecayIsReadOnly(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	session := f.StartSession()
	if _, err := f.CreateWorkingMemory(ctx, session, "some fact", agentmemory.CreateOptions{}); err != nil {
		t.Fatalf("CreateWorkingMemory: %v", err)
	}

	before := f.GetSessionMemories(session, nil)
	report, err := f.ApplyDecay(ctx, 3.0)
	if err != nil {
		t.Fatalf("ApplyDecay: %v", err)
	}
	if report == nil {
		t.Fatal("expected a non-nil decay report")
	}
	after := f.GetSessionMemories(session, nil)
	if len(before) != len(after) {
		t.Fatalf("ApplyDecay must not mutate the store: before=%d after=%d", len(before), len(after))
	}
}

func TestForgetWeakMemoriesDryRunLeavesStoreUntouched(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	session := f.StartSession()
	if _, err := f.CreateWorkingMemory(ctx, session, "some fact", agentmemory.CreateOptions{}); err != nil {
		t.Fatalf("CreateWorkingMemory: %v", err)
	}

	report, err := f.ForgetWeakMemories(ctx, agentmemory.ForgetOptions{EffectiveImportanceThreshold: 0, DryRun: true})
	if err != nil {
		t.Fatalf("ForgetWeakMemories: %v", err)
	}
	if report == nil {
		t.Fatal("expected a non-nil forget report")
	}
	if len(f.GetSessionMemories(session, nil)) != 1 {
		t.Fatal("dry run must not remove anything")
	}
}

func TestRetrieveForContextReturnsWithinBudget(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	session := f.StartSession()
	if _, err := f.CreateWorkingMemory(ctx, session, "a fact worth remembering", agentmemory.CreateOptions{}); err != nil {
		t.Fatalf("CreateWorkingMemory: %v", err)
	}

	result := f.RetrieveForContext(ctx, agentmemory.RetrieveOptions{
		Include: agentmemory.IncludeFlags{Working: true, Episodic: true, Semantic: true, Procedural: true},
	})
	if result == nil {
		t.Fatal("expected a non-nil context result")
	}
}

func TestReinforceMemoryErrorsOnMissingEntity(t *testing.T) {
	f := newTestFacade(t)
	err := f.ReinforceMemory(context.Background(), "ghost", agentmemory.ReinforceOptions{})
	if !errors.Is(err, graph.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
