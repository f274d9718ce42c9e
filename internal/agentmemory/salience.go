package agentmemory

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/graphkeep/graphkeep/internal/graph"
)

// SalienceWeights is the weighted blend spec.md §4.M names, with its
// stated defaults.
type SalienceWeights struct {
	Importance float64
	Recency    float64
	Frequency  float64
	Context    float64
	Novelty    float64
}

// DefaultSalienceWeights matches pkg/config.SalienceConfig's defaults.
func DefaultSalienceWeights() SalienceWeights {
	return SalienceWeights{Importance: 0.25, Recency: 0.25, Frequency: 0.2, Context: 0.2, Novelty: 0.1}
}

// RetrievalContext is the ctx spec.md §4.M's context_relevance term reads.
type RetrievalContext struct {
	CurrentTask    string
	CurrentSession string
	CurrentTaskID  string
	RecentEntities []string
}

// Components breaks a salience score down by term, for callers that want
// to explain a ranking.
type Components struct {
	Importance float64
	Recency    float64
	Frequency  float64
	Context    float64
	Novelty    float64
}

// Ranked pairs an entity with its computed salience.
type Ranked struct {
	Entity     *graph.Entity
	Salience   float64
	Components Components
}

// SalienceEngine computes spec.md §4.M's weighted blend over the decay
// engine's effective importance and the access tracker's recency/frequency
// signals.
type SalienceEngine struct {
	decay       *DecayEngine
	tracker     *AccessTracker
	indexes     *graph.Indexes
	weights     SalienceWeights
	recencyHalfLifeHours float64
	frequencyNorm        float64
}

// SalienceEngineOptions configures a SalienceEngine.
type SalienceEngineOptions struct {
	Weights              SalienceWeights
	RecencyHalfLifeHours float64
	FrequencyNorm        float64 // freq_norm in spec.md §4.M's clamp01(log(1+count)/log(1+freq_norm))
}

// DefaultSalienceEngineOptions matches the spec's stated defaults.
func DefaultSalienceEngineOptions() SalienceEngineOptions {
	return SalienceEngineOptions{
		Weights:              DefaultSalienceWeights(),
		RecencyHalfLifeHours: 24,
		FrequencyNorm:        100,
	}
}

// NewSalienceEngine wires a salience engine over decay/tracker/indexes.
func NewSalienceEngine(decay *DecayEngine, tracker *AccessTracker, indexes *graph.Indexes, opts SalienceEngineOptions) *SalienceEngine {
	return &SalienceEngine{
		decay:                decay,
		tracker:              tracker,
		indexes:              indexes,
		weights:              opts.Weights,
		recencyHalfLifeHours: opts.RecencyHalfLifeHours,
		frequencyNorm:        opts.FrequencyNorm,
	}
}

// Score computes salience for e under ctx, returning the total and its
// per-term breakdown (spec.md §4.M).
func (s *SalienceEngine) Score(e *graph.Entity, ctx RetrievalContext) (float64, Components) {
	now := time.Now()

	eff := EffectiveImportance(e, s.decay.cfg, now)
	importanceTerm := eff / 10

	age := s.ageHours(e, now)
	recencyTerm := RecencyScore(age, s.recencyHalfLifeHours)

	freqTerm := clamp(math.Log(1+float64(e.AccessCount))/math.Log(1+s.frequencyNorm), 0, 1)

	contextTerm := s.contextRelevance(e, ctx)
	noveltyTerm := s.novelty(e, now)

	components := Components{
		Importance: importanceTerm,
		Recency:    recencyTerm,
		Frequency:  freqTerm,
		Context:    contextTerm,
		Novelty:    noveltyTerm,
	}

	total := s.weights.Importance*importanceTerm +
		s.weights.Recency*recencyTerm +
		s.weights.Frequency*freqTerm +
		s.weights.Context*contextTerm +
		s.weights.Novelty*noveltyTerm

	return total, components
}

func (s *SalienceEngine) ageHours(e *graph.Entity, now time.Time) float64 {
	anchor := e.CreatedAt
	if e.LastAccessedAt != nil {
		anchor = *e.LastAccessedAt
	}
	if anchor.IsZero() {
		return 0
	}
	return now.Sub(anchor).Hours()
}

// contextRelevance blends a current_task text match, session/task match,
// and recent-entity co-reference (direct, or via a relation), per spec.md
// §4.M.
func (s *SalienceEngine) contextRelevance(e *graph.Entity, ctx RetrievalContext) float64 {
	var score float64
	var terms float64

	if ctx.CurrentTask != "" {
		terms++
		if textMatches(e, ctx.CurrentTask) {
			score++
		}
	}
	if ctx.CurrentSession != "" {
		terms++
		if e.SessionID == ctx.CurrentSession {
			score++
		}
	}
	if ctx.CurrentTaskID != "" {
		terms++
		if e.TaskID == ctx.CurrentTaskID {
			score++
		}
	}
	if len(ctx.RecentEntities) > 0 {
		terms++
		if s.coReferences(e.Name, ctx.RecentEntities) {
			score++
		}
	}

	if terms == 0 {
		return 0
	}
	return score / terms
}

func textMatches(e *graph.Entity, query string) bool {
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(e.Name), q) || strings.Contains(strings.ToLower(e.EntityType), q) {
		return true
	}
	for _, o := range e.Observations {
		if strings.Contains(strings.ToLower(o), q) {
			return true
		}
	}
	return false
}

func (s *SalienceEngine) coReferences(name string, recent []string) bool {
	for _, r := range recent {
		if r == name {
			return true
		}
	}
	if s.indexes == nil {
		return false
	}
	for _, rel := range s.indexes.Bidirectional(name) {
		other := rel.From
		if other == name {
			other = rel.To
		}
		for _, r := range recent {
			if r == other {
				return true
			}
		}
	}
	return false
}

// novelty is high when access_count is small relative to age — an entity
// seen often for its age is not novel, and a fresh entity with no
// accesses yet is maximally novel (spec.md §4.M).
func (s *SalienceEngine) novelty(e *graph.Entity, now time.Time) float64 {
	age := s.ageHours(e, now)
	if age <= 0 {
		age = 1
	}
	accessesPerHour := float64(e.AccessCount) / age
	return clamp(1/(1+accessesPerHour*24), 0, 1)
}

// RankBySalience scores every entity under ctx and returns them sorted
// descending by salience (spec.md §4.M rank_entities_by_salience).
func (s *SalienceEngine) RankBySalience(entities []*graph.Entity, ctx RetrievalContext) []Ranked {
	out := make([]Ranked, 0, len(entities))
	for _, e := range entities {
		score, components := s.Score(e, ctx)
		out = append(out, Ranked{Entity: e, Salience: score, Components: components})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Salience != out[j].Salience {
			return out[i].Salience > out[j].Salience
		}
		return out[i].Entity.Name < out[j].Entity.Name
	})
	return out
}
