package graphengine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/graphkeep/graphkeep/internal/agentmemory"
	"github.com/graphkeep/graphkeep/internal/graph"
	"github.com/graphkeep/graphkeep/internal/logging"
	"github.com/graphkeep/graphkeep/internal/search"
	"github.com/graphkeep/graphkeep/internal/telemetry"
	"github.com/graphkeep/graphkeep/internal/textalgo"
	"github.com/graphkeep/graphkeep/pkg/config"
)

var log = logging.GetLogger("graphengine")

// Facade is the single entry point a host embeds. It owns the store, the
// derived search/traversal components built over it, the agent-memory
// overlay, and the background decay scheduler. All fields are built once
// in Open and are safe for concurrent use via the components' own
// synchronization (the store's write mutex, each manager's mutex).
type Facade struct {
	cfg   *config.Config
	store graph.Store

	basic    *search.BasicSearcher
	ranked   *search.RankedSearcher
	bm25     *search.BM25Searcher
	boolean  *search.BooleanSearcher
	fuzzy    *search.FuzzySearcher
	hybrid   *search.HybridSearcher
	fts      *search.FTSSearcher // nil over the NDJSON log backend

	tracker  *agentmemory.AccessTracker
	decay    *agentmemory.DecayEngine
	salience *agentmemory.SalienceEngine
	working  *agentmemory.WorkingMemoryManager
	context  *agentmemory.ContextWindowManager
	sched    *agentmemory.Scheduler

	telemetry *telemetry.Recorder
}

// Option customizes Open beyond what config.Config carries.
type Option func(*openOptions)

type openOptions struct {
	telemetry *telemetry.Recorder
	semantic  search.SemanticScorer
}

// WithTelemetry installs a pre-built telemetry.Recorder (e.g. one built
// against a host's own meter provider) instead of the nil-recorder
// default. A nil Recorder here is a no-op per telemetry.Recorder's
// nil-receiver methods.
func WithTelemetry(r *telemetry.Recorder) Option {
	return func(o *openOptions) { o.telemetry = r }
}

// WithSemanticScorer installs the hybrid search's optional semantic lane.
// Embedding providers are out of scope for this engine (spec.md §1), so a
// host that wants a semantic lane supplies its own scorer function.
func WithSemanticScorer(fn search.SemanticScorer) Option {
	return func(o *openOptions) { o.semantic = fn }
}

// Open validates cfg, opens the configured store backend, and eagerly
// builds every component in the dependency order spec.md §4.P names:
// store -> indexes -> text algorithms -> basic/ranked/BM25/boolean/fuzzy
// -> traversal (stateless, needs no construction) -> access tracker ->
// decay -> salience -> working memory -> context manager -> scheduler.
func Open(cfg *config.Config, opts ...Option) (*Facade, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("graphengine: invalid config: %w", err)
	}

	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	store, err := openStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("graphengine: opening store: %w", err)
	}
	if err := store.EnsureLoaded(context.Background()); err != nil {
		return nil, fmt.Errorf("graphengine: loading store: %w", err)
	}

	f := &Facade{cfg: cfg, store: store, telemetry: o.telemetry}

	f.basic = search.NewBasicSearcher(store, cfg.Fuzzy.CacheTTL)
	f.ranked = search.NewRankedSearcher(store)
	f.bm25 = search.NewBM25Searcher(store, textalgo.BM25Params{K1: cfg.BM25.K1, B: cfg.BM25.B})
	f.boolean = search.NewBooleanSearcher(store)
	f.fuzzy = search.NewFuzzySearcher(store, search.FuzzySearcherOptions{
		Threshold:            cfg.Fuzzy.Threshold,
		ParallelMinEntities:  cfg.Fuzzy.ParallelMinEntities,
		ParallelMaxThreshold: cfg.Fuzzy.ParallelMaxThreshold,
		CacheTTL:             cfg.Fuzzy.CacheTTL,
		CacheMaxEntries:      cfg.Fuzzy.CacheMaxEntries,
	})
	f.hybrid = search.NewHybridSearcher(f.bm25, f.boolean, o.semantic, search.HybridWeights{
		Semantic: cfg.Hybrid.SemanticWeight,
		Lexical:  cfg.Hybrid.LexicalWeight,
		Symbolic: cfg.Hybrid.SymbolicWeight,
	}, cfg.Hybrid.LaneTimeout)
	f.fts, _ = search.NewFTSSearcher(store)

	f.tracker = agentmemory.NewAccessTracker(store, agentmemory.DefaultAccessTrackerOptions())
	f.decay = agentmemory.NewDecayEngine(store, f.tracker, decayConfigFrom(cfg.Decay))
	f.salience = agentmemory.NewSalienceEngine(f.decay, f.tracker, store.Indexes(), agentmemory.SalienceEngineOptions{
		Weights: agentmemory.SalienceWeights{
			Importance: cfg.Salience.ImportanceWeight,
			Recency:    cfg.Salience.RecencyWeight,
			Frequency:  cfg.Salience.FrequencyWeight,
			Context:    cfg.Salience.ContextWeight,
			Novelty:    cfg.Salience.NoveltyWeight,
		},
		RecencyHalfLifeHours: agentmemory.DefaultSalienceEngineOptions().RecencyHalfLifeHours,
		FrequencyNorm:        agentmemory.DefaultSalienceEngineOptions().FrequencyNorm,
	})
	f.working = agentmemory.NewWorkingMemoryManager(store, f.tracker, agentmemory.WorkingMemoryOptions{
		MaxPerSession: cfg.Working.MaxPerSession,
		DefaultTTL:    cfg.Working.DefaultTTL,
	})
	f.context = agentmemory.NewContextWindowManager(store, f.salience, agentmemory.ContextWindowOptions{
		MaxTokens:              cfg.Context.MaxTokens,
		ReserveBuffer:          cfg.Context.ReserveBuffer,
		TokenMultiplier:        cfg.Context.TokenMultiplier,
		MaxEntitiesToConsider:  cfg.Context.MaxEntitiesToConsider,
		WorkingBudgetFraction:  cfg.Context.WorkingBudgetFraction,
		EpisodicBudgetFraction: cfg.Context.EpisodicBudgetFraction,
		SemanticBudgetFraction: cfg.Context.SemanticBudgetFraction,
		RecentSessionCount:     agentmemory.DefaultContextWindowOptions().RecentSessionCount,
	})

	if cfg.Scheduler.Enabled {
		f.sched = agentmemory.NewScheduler(f.decay, agentmemory.SchedulerOptions{
			Interval:        cfg.Scheduler.Interval,
			AtRiskThreshold: 3.0,
			OnError: func(err error) {
				log.LogError("decay_scheduler_tick", err)
			},
		})
		f.sched.Start(context.Background())
	}

	log.LogOperation("open", "backend", cfg.Store.Backend, "path", cfg.Store.Path)
	return f, nil
}

func openStore(sc config.StoreConfig) (graph.Store, error) {
	switch sc.Backend {
	case "sqlite":
		return graph.OpenSQLStore(sc.Path)
	case "log":
		return graph.NewLogStore(sc.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}
}

func decayConfigFrom(dc config.DecayConfig) agentmemory.DecayConfig {
	out := agentmemory.DecayConfig{
		HalfLifeByType:  make(map[graph.MemoryType]time.Duration, len(dc.HalfLifeByType)),
		DefaultHalfLife: dc.DefaultHalfLife,
		MinImportance:   dc.MinImportance,
		ImportanceMod:   true,
		AccessMod:       true,
	}
	for memType, hl := range dc.HalfLifeByType {
		out.HalfLifeByType[graph.MemoryType(memType)] = hl
	}
	return out
}

// recordStoreWrite times fn and reports it to telemetry as a store
// mutation tagged with op, recording "ok" or "error" status depending on
// fn's return. The store backends themselves stay unaware of telemetry;
// every entity, relation, observation, tag and parent mutation the facade
// exposes funnels through here instead. The working-memory and decay
// operations write through their agentmemory managers and are not timed
// here.
func (f *Facade) recordStoreWrite(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := "ok"
	if err != nil {
		status = "error"
	}
	f.telemetry.RecordStoreWrite(ctx, f.cfg.Store.Backend, op, status, time.Since(start).Seconds())
	return err
}

// Telemetry returns the engine's OpenTelemetry recorder. Nil-safe: if
// telemetry was never configured via WithTelemetry, every Recorder method
// is a no-op on the nil receiver, so callers need not nil-check before use.
func (f *Facade) Telemetry() *telemetry.Recorder {
	return f.telemetry
}

// Store exposes the underlying graph.Store for a host that needs direct
// access beyond what the facade wraps (e.g. Compact, raw GetEntity).
func (f *Facade) Store() graph.Store {
	return f.store
}

// NewSessionID generates a fresh session identifier for StartSession
// callers that don't supply their own.
func NewSessionID() string {
	return uuid.NewString()
}

// Close tears down background work and releases backend resources: it
// stops the decay scheduler (if running) and closes the relational
// backend's *sql.DB (if the store is SQLite-backed). The log backend has
// nothing to close — every write already completed synchronously under
// the store's write mutex before AppendEntity/AppendRelation returned.
func (f *Facade) Close(ctx context.Context) error {
	if f.sched != nil {
		f.sched.Stop()
	}
	if closer, ok := f.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("graphengine: closing store: %w", err)
		}
	}
	log.LogOperation("close")
	return nil
}
