package graphengine

import (
	"context"
	"fmt"
	"time"

	"github.com/graphkeep/graphkeep/internal/agentmemory"
	"github.com/graphkeep/graphkeep/internal/graph"
)

// StartSession returns a fresh session identifier for a host that
// doesn't manage its own. Working memory has nothing to persist until
// the first CreateWorkingMemory call, so starting a session is pure ID
// generation — there is no session record to create up front.
func (f *Facade) StartSession() string {
	return NewSessionID()
}

// EndSession deletes every remaining working memory belonging to
// sessionID (anything not already promoted or expired), cascading to
// their relations. Use ClearExpired for the routine TTL sweep instead;
// EndSession is for a host that knows a session is over right now.
func (f *Facade) EndSession(ctx context.Context, sessionID string) (int, error) {
	memories := f.working.GetSessionMemories(sessionID, nil)
	names := make([]string, 0, len(memories))
	for _, m := range memories {
		names = append(names, m.Name)
	}
	deleted, err := f.DeleteEntities(ctx, names)
	if err != nil {
		return deleted, fmt.Errorf("graphengine: end_session %q: %w", sessionID, err)
	}
	f.telemetry.AdjustActiveWorkingSessions(ctx, -1)
	return deleted, nil
}

// CreateWorkingMemory creates a session-scoped working memory (spec.md §4.N).
func (f *Facade) CreateWorkingMemory(ctx context.Context, sessionID, content string, opts agentmemory.CreateOptions) (*graph.Entity, error) {
	e, err := f.working.CreateWorkingMemory(ctx, sessionID, content, opts)
	if err != nil {
		return nil, fmt.Errorf("graphengine: create_working_memory: %w", err)
	}
	f.telemetry.AdjustActiveWorkingSessions(ctx, 1)
	return e, nil
}

// GetSessionMemories returns sessionID's working memories, optionally filtered.
func (f *Facade) GetSessionMemories(sessionID string, filter *agentmemory.SessionFilter) []*graph.Entity {
	return f.working.GetSessionMemories(sessionID, filter)
}

// ExtendTTL pushes out the expiry of each named working memory.
func (f *Facade) ExtendTTL(ctx context.Context, names []string, hours float64) error {
	if err := f.working.ExtendTTL(ctx, names, hours); err != nil {
		return fmt.Errorf("graphengine: extend_ttl: %w", err)
	}
	return nil
}

// ClearExpired removes every working memory past its expires_at.
func (f *Facade) ClearExpired(ctx context.Context) (int, error) {
	n, err := f.working.ClearExpired(ctx)
	if err != nil {
		return n, fmt.Errorf("graphengine: clear_expired: %w", err)
	}
	return n, nil
}

// MarkForPromotion flags a working memory as a promotion candidate.
func (f *Facade) MarkForPromotion(ctx context.Context, name string, opts agentmemory.MarkForPromotionOptions) error {
	if err := f.working.MarkForPromotion(ctx, name, opts); err != nil {
		return fmt.Errorf("graphengine: mark_for_promotion: %w", err)
	}
	return nil
}

// GetPromotionCandidates ranks sessionID's working memories by promotion priority.
func (f *Facade) GetPromotionCandidates(sessionID string, criteria *agentmemory.PromotionCriteria) []agentmemory.PromotionCandidate {
	return f.working.GetPromotionCandidates(sessionID, criteria)
}

// PromoteMemory promotes a working memory to episodic/semantic/procedural.
func (f *Facade) PromoteMemory(ctx context.Context, name string, target graph.MemoryType) error {
	if err := f.working.PromoteMemory(ctx, name, target); err != nil {
		return fmt.Errorf("graphengine: promote_memory: %w", err)
	}
	f.telemetry.RecordPromotion(ctx, string(target))
	return nil
}

// ConfirmMemory bumps a memory's confidence/confirmation count, possibly
// auto-promoting it (spec.md §9 Open Question: always to semantic).
func (f *Facade) ConfirmMemory(ctx context.Context, name string, confidenceBoost *float64) (promoted bool, err error) {
	promoted, err = f.working.ConfirmMemory(ctx, name, confidenceBoost)
	if err != nil {
		return false, fmt.Errorf("graphengine: confirm_memory: %w", err)
	}
	if promoted {
		f.telemetry.RecordPromotion(ctx, string(graph.MemoryTypeSemantic))
	}
	return promoted, nil
}

// ReinforceMemory bumps a memory's confirmation count and confidence
// without promoting it (spec.md §4.L).
func (f *Facade) ReinforceMemory(ctx context.Context, name string, opts agentmemory.ReinforceOptions) error {
	if err := f.decay.ReinforceMemory(ctx, name, opts); err != nil {
		return fmt.Errorf("graphengine: reinforce_memory: %w", err)
	}
	return nil
}

// ForgetWeakMemories removes entities whose effective importance falls
// below the threshold, cascading to their relations (spec.md §4.L).
func (f *Facade) ForgetWeakMemories(ctx context.Context, opts agentmemory.ForgetOptions) (*agentmemory.ForgetReport, error) {
	start := time.Now()
	report, err := f.decay.ForgetWeakMemories(ctx, opts)
	if err != nil {
		f.telemetry.RecordDecayRun(ctx, "forget_weak_memories", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("graphengine: forget_weak_memories: %w", err)
	}
	status := "ok"
	if opts.DryRun {
		status = "dry_run"
	}
	f.telemetry.RecordDecayRun(ctx, "forget_weak_memories", status, time.Since(start).Seconds())
	f.telemetry.RecordMemoriesForgotten(ctx, len(report.Removed))
	return report, nil
}

// ApplyDecay runs a read-only decay sweep, reporting aggregate statistics
// without mutating the store (spec.md §4.L).
func (f *Facade) ApplyDecay(ctx context.Context, atRiskThreshold float64) (*agentmemory.DecayReport, error) {
	report, err := f.decay.ApplyDecay(ctx, atRiskThreshold)
	if err != nil {
		f.telemetry.RecordDecayRun(ctx, "apply_decay", "error", 0)
		return nil, fmt.Errorf("graphengine: apply_decay: %w", err)
	}
	f.telemetry.RecordDecayRun(ctx, "apply_decay", "ok", report.ProcessingTime.Seconds())
	return report, nil
}

// RetrieveForContext assembles a token-budgeted context window from
// salience-ranked agent memories (spec.md §4.O).
func (f *Facade) RetrieveForContext(ctx context.Context, opts agentmemory.RetrieveOptions) *agentmemory.ContextResult {
	return f.context.RetrieveForContext(ctx, opts)
}

// RetrieveWithBudgetAllocation assembles a context window using
// per-memory-class sub-budgets instead of a single greedy pack.
func (f *Facade) RetrieveWithBudgetAllocation(ctx context.Context, opts agentmemory.RetrieveOptions) *agentmemory.ContextResult {
	return f.context.RetrieveWithBudgetAllocation(ctx, opts)
}
