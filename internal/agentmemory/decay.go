package agentmemory

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/graphkeep/graphkeep/internal/graph"
)

// DecayConfig mirrors pkg/config.DecayConfig's fields this engine needs,
// kept free of a pkg/config import so agentmemory stays usable standalone.
type DecayConfig struct {
	HalfLifeByType  map[graph.MemoryType]time.Duration
	DefaultHalfLife time.Duration
	MinImportance   int
	// ImportanceMod/AccessMod gate the strength/half-life modifiers in
	// spec.md §4.L's formula; both default true in DefaultDecayConfig.
	ImportanceMod bool
	AccessMod     bool
}

// DefaultDecayConfig matches pkg/config.DefaultConfig()'s Decay section.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		HalfLifeByType: map[graph.MemoryType]time.Duration{
			graph.MemoryTypeWorking:    6 * time.Hour,
			graph.MemoryTypeEpisodic:   7 * 24 * time.Hour,
			graph.MemoryTypeSemantic:   90 * 24 * time.Hour,
			graph.MemoryTypeProcedural: 180 * 24 * time.Hour,
		},
		DefaultHalfLife: 7 * 24 * time.Hour,
		MinImportance:   1,
		ImportanceMod:   true,
		AccessMod:       true,
	}
}

func (c DecayConfig) halfLifeFor(memType graph.MemoryType) time.Duration {
	if hl, ok := c.HalfLifeByType[memType]; ok && hl > 0 {
		return hl
	}
	return c.DefaultHalfLife
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EffectiveImportance computes the decayed importance for e, per spec.md
// §4.L's named formula. now is threaded in so the calculation is
// deterministic and testable.
func EffectiveImportance(e *graph.Entity, cfg DecayConfig, now time.Time) float64 {
	base := float64(e.ImportanceOrDefault())

	var anchor time.Time
	switch {
	case e.LastAccessedAt != nil:
		anchor = *e.LastAccessedAt
	case !e.CreatedAt.IsZero():
		anchor = e.CreatedAt
	default:
		return math.Max(base, float64(cfg.MinImportance))
	}

	halfLife := cfg.halfLifeFor(e.MemoryType)
	halfLifeHours := halfLife.Hours()
	if cfg.ImportanceMod {
		halfLifeHours *= 1 + base/10
	}

	ageHours := now.Sub(anchor).Hours()
	decay := clamp(math.Exp(-math.Ln2*ageHours/halfLifeHours), 0, 1)

	strength := 1.0
	if cfg.AccessMod {
		strength = 1 + 0.1*float64(e.ConfirmationCount) + 0.01*float64(e.AccessCount)
	}

	effective := base * decay * strength
	return clamp(effective, float64(cfg.MinImportance), 10)
}

// DecayReport is applyDecay's read-only summary, per spec.md §4.L.
type DecayReport struct {
	EntitiesProcessed int
	AverageDecay      float64
	MemoriesAtRisk    int
	ProcessingTime    time.Duration
}

// ForgetOptions parameterizes forgetWeakMemories (spec.md §4.L).
type ForgetOptions struct {
	EffectiveImportanceThreshold float64
	OlderThanHours               *float64
	ExcludeTags                  []string
	DryRun                       bool
}

// ForgetReport summarizes a forgetWeakMemories sweep.
type ForgetReport struct {
	Removed          []string
	MemoriesTooYoung int
	MemoriesProtected int
	DryRun           bool
}

// DecayEngine implements spec.md §4.L's read-only sweep, the at-risk /
// decayed queries, reinforcement, and forgetting.
type DecayEngine struct {
	store   graph.Store
	tracker *AccessTracker
	cfg     DecayConfig
}

// NewDecayEngine wires a decay engine to store.
func NewDecayEngine(store graph.Store, tracker *AccessTracker, cfg DecayConfig) *DecayEngine {
	return &DecayEngine{store: store, tracker: tracker, cfg: cfg}
}

// ApplyDecay sweeps every agent entity and reports aggregate decay
// statistics. It never mutates the store — it is read-only, per spec.md
// §4.L.
func (d *DecayEngine) ApplyDecay(ctx context.Context, atRiskThreshold float64) (*DecayReport, error) {
	start := time.Now()
	entities := d.store.AllAgentEntities()

	report := &DecayReport{EntitiesProcessed: len(entities)}
	var totalDecay float64
	now := time.Now()
	for _, e := range entities {
		eff := EffectiveImportance(e, d.cfg, now)
		base := float64(e.ImportanceOrDefault())
		if base > 0 {
			totalDecay += 1 - eff/base
		}
		if eff < atRiskThreshold {
			report.MemoriesAtRisk++
		}
	}
	if len(entities) > 0 {
		report.AverageDecay = totalDecay / float64(len(entities))
	}
	report.ProcessingTime = time.Since(start)
	return report, nil
}

// GetDecayedMemories returns the agent entities whose effective importance
// is below threshold.
func (d *DecayEngine) GetDecayedMemories(threshold float64) []*graph.Entity {
	now := time.Now()
	var out []*graph.Entity
	for _, e := range d.store.AllAgentEntities() {
		if EffectiveImportance(e, d.cfg, now) < threshold {
			out = append(out, e)
		}
	}
	return out
}

// GetMemoriesAtRisk returns agent entities whose effective importance
// falls in [min_importance, threshold) — default threshold 1.0 per
// spec.md §4.L.
func (d *DecayEngine) GetMemoriesAtRisk(threshold float64) []*graph.Entity {
	if threshold <= 0 {
		threshold = 1.0
	}
	now := time.Now()
	min := float64(d.cfg.MinImportance)
	var out []*graph.Entity
	for _, e := range d.store.AllAgentEntities() {
		eff := EffectiveImportance(e, d.cfg, now)
		if eff >= min && eff < threshold {
			out = append(out, e)
		}
	}
	return out
}

// ReinforceOptions parameterizes reinforceMemory.
type ReinforceOptions struct {
	ConfirmationBoost int
	ConfidenceBoost   *float64
}

// ReinforceMemory bumps confirmation_count, clamps the new confidence to
// 1, updates last_modified/last_accessed_at, and records an access
// (spec.md §4.L).
func (d *DecayEngine) ReinforceMemory(ctx context.Context, name string, opts ReinforceOptions) error {
	e, ok := d.store.GetEntity(name)
	if !ok {
		return graph.ErrNotFound
	}
	boost := opts.ConfirmationBoost
	if boost == 0 {
		boost = 1
	}
	newCount := e.ConfirmationCount + boost

	update := &graph.PartialUpdate{ConfirmationCount: &newCount}
	if opts.ConfidenceBoost != nil {
		newConfidence := clamp(e.ConfidenceOrDefault()+*opts.ConfidenceBoost, 0, 1)
		update.Confidence = &newConfidence
	}
	now := time.Now()
	update.LastAccessedAt = &now

	if err := d.store.UpdateEntity(ctx, name, update); err != nil {
		return err
	}
	if d.tracker != nil {
		d.tracker.RecordAccess(name, e.SessionID)
	}
	return nil
}

// ForgetWeakMemories removes agent entities whose effective importance is
// below opts.EffectiveImportanceThreshold, skipping those too young or
// tag-protected, per spec.md §4.L.
func (d *DecayEngine) ForgetWeakMemories(ctx context.Context, opts ForgetOptions) (*ForgetReport, error) {
	report := &ForgetReport{DryRun: opts.DryRun}
	protect := make(map[string]struct{}, len(opts.ExcludeTags))
	for _, t := range opts.ExcludeTags {
		protect[t] = struct{}{}
	}

	now := time.Now()
	var toRemove []string
	for _, e := range d.store.AllAgentEntities() {
		if EffectiveImportance(e, d.cfg, now) >= opts.EffectiveImportanceThreshold {
			continue
		}
		if opts.OlderThanHours != nil {
			age := now.Sub(e.CreatedAt).Hours()
			if age < *opts.OlderThanHours {
				report.MemoriesTooYoung++
				continue
			}
		}
		if tagsIntersect(e.Tags, protect) {
			report.MemoriesProtected++
			continue
		}
		toRemove = append(toRemove, e.Name)
	}

	report.Removed = toRemove
	if opts.DryRun || len(toRemove) == 0 {
		return report, nil
	}

	g, err := d.store.GraphForMutation(ctx)
	if err != nil {
		return nil, err
	}
	remove := make(map[string]struct{}, len(toRemove))
	for _, n := range toRemove {
		remove[n] = struct{}{}
	}
	var keptEntities []*graph.Entity
	for _, e := range g.Entities {
		if _, drop := remove[e.Name]; !drop {
			keptEntities = append(keptEntities, e)
		}
	}
	var keptRelations []*graph.Relation
	for _, r := range g.Relations {
		_, dropFrom := remove[r.From]
		_, dropTo := remove[r.To]
		if !dropFrom && !dropTo {
			keptRelations = append(keptRelations, r)
		}
	}
	if err := d.store.SaveGraph(ctx, &graph.Graph{Entities: keptEntities, Relations: keptRelations}); err != nil {
		return nil, err
	}
	return report, nil
}

func tagsIntersect(tags []string, protect map[string]struct{}) bool {
	for _, t := range tags {
		if _, ok := protect[t]; ok {
			return true
		}
	}
	return false
}

// SchedulerOptions configures the decay scheduler's ticker loop.
type SchedulerOptions struct {
	Interval            time.Duration
	AtRiskThreshold     float64
	RunForget           bool
	ForgetOptions       ForgetOptions
	OnError             func(error)
}

// Scheduler runs ApplyDecay (and, if configured, ForgetWeakMemories) on a
// ticker, the way the teacher's daemon package owns a run loop — here
// generalized from an OS-level process daemon to an in-process
// background goroutine started and stopped alongside the facade.
type Scheduler struct {
	engine *DecayEngine
	opts   SchedulerOptions

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler wires a scheduler to engine.
func NewScheduler(engine *DecayEngine, opts SchedulerOptions) *Scheduler {
	return &Scheduler{engine: engine, opts: opts}
}

// Start runs the first tick immediately, then on opts.Interval. Idempotent:
// calling Start on an already-running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(runCtx)
}

// Stop halts the ticker loop. Safe to call when not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
}

// RunNow executes a tick immediately, independent of the ticker schedule.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.tick(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	s.tick(ctx)

	interval := s.opts.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	operation := func() error {
		_, err := s.engine.ApplyDecay(ctx, s.opts.AtRiskThreshold)
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		s.reportError(err)
		return
	}

	if s.opts.RunForget {
		if _, err := s.engine.ForgetWeakMemories(ctx, s.opts.ForgetOptions); err != nil {
			s.reportError(err)
		}
	}
}

func (s *Scheduler) reportError(err error) {
	log.LogError("decay_scheduler_tick", err)
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}
