package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the full set of tunables the facade (pkg/graphengine) accepts.
// There is no file or environment loader: a host process builds one with
// DefaultConfig() and overrides only the fields it cares about, then passes
// it to graphengine.Open.
type Config struct {
	Store   StoreConfig   `json:"store"`
	Decay   DecayConfig   `json:"decay"`
	Salience SalienceConfig `json:"salience"`
	Working WorkingMemoryConfig `json:"working"`
	Context ContextWindowConfig `json:"context"`
	Fuzzy   FuzzySearchConfig   `json:"fuzzy"`
	BM25    BM25Config          `json:"bm25"`
	Hybrid  HybridConfig        `json:"hybrid"`
	Logging LoggingConfig       `json:"logging"`
	Scheduler SchedulerConfig   `json:"scheduler"`
}

// StoreConfig selects and configures the persistence backend (spec.md §4.B/§4.C).
type StoreConfig struct {
	// Backend is "log" (append-only NDJSON, §4.B) or "sqlite" (relational, §4.C).
	Backend string `json:"backend"`
	// Path is the NDJSON file path for the log backend, or the SQLite DSN
	// path for the relational backend.
	Path string `json:"path"`
}

// DecayConfig holds the exponential decay parameters of spec.md §4.L.
type DecayConfig struct {
	// HalfLifeByType maps a MemoryType to its decay half-life. Missing
	// entries fall back to DefaultHalfLife.
	HalfLifeByType  map[string]time.Duration `json:"half_life_by_type"`
	DefaultHalfLife time.Duration            `json:"default_half_life"`
	MinImportance   int                       `json:"min_importance"`
}

// SalienceConfig holds the weighted blend of spec.md §4.M. Weights are
// expected to sum to 1.0; Validate checks this within a small epsilon.
type SalienceConfig struct {
	ImportanceWeight float64 `json:"importance_weight"`
	RecencyWeight    float64 `json:"recency_weight"`
	FrequencyWeight  float64 `json:"frequency_weight"`
	ContextWeight    float64 `json:"context_weight"`
	NoveltyWeight    float64 `json:"novelty_weight"`
}

// WorkingMemoryConfig holds the per-session limits of spec.md §4.N.
type WorkingMemoryConfig struct {
	MaxPerSession int           `json:"max_per_session"`
	DefaultTTL    time.Duration `json:"default_ttl"`
}

// ContextWindowConfig holds the greedy-packing budget of spec.md §4.O.
type ContextWindowConfig struct {
	MaxTokens             int     `json:"max_tokens"`
	ReserveBuffer         int     `json:"reserve_buffer"`
	TokenMultiplier       float64 `json:"token_multiplier"`
	MaxEntitiesToConsider int     `json:"max_entities_to_consider"`

	// Budget split across memory classes; must sum to 1.0.
	WorkingBudgetFraction  float64 `json:"working_budget_fraction"`
	EpisodicBudgetFraction float64 `json:"episodic_budget_fraction"`
	SemanticBudgetFraction float64 `json:"semantic_budget_fraction"`
}

// FuzzySearchConfig holds the edit-distance search tunables of spec.md §4.H.
type FuzzySearchConfig struct {
	Threshold float64 `json:"threshold"`

	// ParallelMinEntities and ParallelMaxThreshold gate when the fuzzy
	// search dispatches its errgroup worker pool instead of scanning
	// serially: parallel fires when entity count >= ParallelMinEntities
	// AND Threshold < ParallelMaxThreshold.
	ParallelMinEntities  int     `json:"parallel_min_entities"`
	ParallelMaxThreshold float64 `json:"parallel_max_threshold"`

	CacheTTL      time.Duration `json:"cache_ttl"`
	CacheMaxEntries int         `json:"cache_max_entries"`
}

// BM25Config holds the Okapi BM25 parameters of spec.md §4.F.
type BM25Config struct {
	K1 float64 `json:"k1"`
	B  float64 `json:"b"`
}

// HybridConfig holds the fusion weights of spec.md §4.I. Weights are
// expected to sum to 1.0.
type HybridConfig struct {
	SemanticWeight float64 `json:"semantic_weight"`
	LexicalWeight  float64 `json:"lexical_weight"`
	SymbolicWeight float64 `json:"symbolic_weight"`

	// LaneTimeout bounds each scoring lane; a lane that exceeds it is
	// excluded from the fused result rather than blocking the others.
	LaneTimeout time.Duration `json:"lane_timeout"`
}

// LoggingConfig mirrors internal/logging.Config so a host can configure both
// with one value.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// SchedulerConfig controls the background decay sweep (spec.md §4.L/§4.P).
type SchedulerConfig struct {
	Enabled  bool          `json:"enabled"`
	Interval time.Duration `json:"interval"`
}

// DefaultConfig returns the engine's default tunables. A host embedding the
// engine typically calls this, overrides Store.Path, and passes the result
// to graphengine.Open.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".graphkeep")

	return &Config{
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    filepath.Join(dataDir, "graph.db"),
		},
		Decay: DecayConfig{
			HalfLifeByType: map[string]time.Duration{
				"working":   6 * time.Hour,
				"episodic":  7 * 24 * time.Hour,
				"semantic":  90 * 24 * time.Hour,
				"procedural": 180 * 24 * time.Hour,
			},
			DefaultHalfLife: 7 * 24 * time.Hour,
			MinImportance:   1,
		},
		Salience: SalienceConfig{
			ImportanceWeight: 0.25,
			RecencyWeight:    0.25,
			FrequencyWeight:  0.2,
			ContextWeight:    0.2,
			NoveltyWeight:    0.1,
		},
		Working: WorkingMemoryConfig{
			MaxPerSession: 100,
			DefaultTTL:    24 * time.Hour,
		},
		Context: ContextWindowConfig{
			MaxTokens:              4000,
			ReserveBuffer:          100,
			TokenMultiplier:        1.3,
			MaxEntitiesToConsider:  1000,
			WorkingBudgetFraction:  0.3,
			EpisodicBudgetFraction: 0.3,
			SemanticBudgetFraction: 0.4,
		},
		Fuzzy: FuzzySearchConfig{
			Threshold:            0.7,
			ParallelMinEntities:  500,
			ParallelMaxThreshold: 0.8,
			CacheTTL:             5 * time.Minute,
			CacheMaxEntries:      100,
		},
		BM25: BM25Config{
			K1: 1.2,
			B:  0.75,
		},
		Hybrid: HybridConfig{
			SemanticWeight: 0.5,
			LexicalWeight:  0.3,
			SymbolicWeight: 0.2,
			LaneTimeout:    2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Interval: 10 * time.Minute,
		},
	}
}

// Validate checks the configuration for internally-inconsistent values
// before the facade builds its component stack from it.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Store.Backend != "log" && c.Store.Backend != "sqlite" {
		return fmt.Errorf("store.backend must be 'log' or 'sqlite'")
	}

	if c.Decay.DefaultHalfLife <= 0 {
		return fmt.Errorf("decay.default_half_life must be > 0")
	}
	for memType, hl := range c.Decay.HalfLifeByType {
		if hl <= 0 {
			return fmt.Errorf("decay.half_life_by_type[%s] must be > 0", memType)
		}
	}

	if err := checkWeightsSumToOne("salience",
		c.Salience.ImportanceWeight, c.Salience.RecencyWeight, c.Salience.FrequencyWeight,
		c.Salience.ContextWeight, c.Salience.NoveltyWeight); err != nil {
		return err
	}

	if c.Working.MaxPerSession <= 0 {
		return fmt.Errorf("working.max_per_session must be > 0")
	}
	if c.Working.DefaultTTL <= 0 {
		return fmt.Errorf("working.default_ttl must be > 0")
	}

	if c.Context.MaxTokens <= 0 {
		return fmt.Errorf("context.max_tokens must be > 0")
	}
	if err := checkWeightsSumToOne("context budget",
		c.Context.WorkingBudgetFraction, c.Context.EpisodicBudgetFraction, c.Context.SemanticBudgetFraction); err != nil {
		return err
	}

	if c.Fuzzy.Threshold < 0 || c.Fuzzy.Threshold > 1 {
		return fmt.Errorf("fuzzy.threshold must be between 0 and 1")
	}

	if c.BM25.K1 <= 0 {
		return fmt.Errorf("bm25.k1 must be > 0")
	}
	if c.BM25.B < 0 || c.BM25.B > 1 {
		return fmt.Errorf("bm25.b must be between 0 and 1")
	}

	if err := checkWeightsSumToOne("hybrid",
		c.Hybrid.SemanticWeight, c.Hybrid.LexicalWeight, c.Hybrid.SymbolicWeight); err != nil {
		return err
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be > 0 when scheduler.enabled is true")
	}

	return nil
}

func checkWeightsSumToOne(name string, weights ...float64) error {
	var sum float64
	for _, w := range weights {
		if w < 0 {
			return fmt.Errorf("%s weights must be >= 0", name)
		}
		sum += w
	}
	const epsilon = 1e-6
	if sum < 1-epsilon || sum > 1+epsilon {
		return fmt.Errorf("%s weights must sum to 1.0, got %f", name, sum)
	}
	return nil
}

// EnsureStoreDir creates the directory holding Store.Path, if any.
func (c *Config) EnsureStoreDir() error {
	dir := filepath.Dir(c.Store.Path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	return nil
}
