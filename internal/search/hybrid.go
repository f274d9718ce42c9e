package search

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// SemanticScorer is a host-supplied lane: embedding providers are out of
// scope for this engine (spec.md §1/§6), so semantic scoring is injected
// rather than implemented here. A nil scorer simply drops the semantic
// lane from the fusion.
type SemanticScorer func(ctx context.Context, query string) (map[string]float64, error)

// HybridWeights controls how the three lanes are fused (spec.md §4.I).
type HybridWeights struct {
	Semantic float64
	Lexical  float64
	Symbolic float64
}

// HybridSearcher runs the lexical (BM25), symbolic (boolean), and an
// optional semantic lane concurrently, min-max normalizes each lane's
// scores to [0,1], and fuses them by weighted sum. A lane that errors or
// exceeds laneTimeout is excluded from the fusion rather than failing the
// whole search (spec.md §4.I "lane timeout/isolation"); the remaining
// lanes' weights are renormalized so they still sum to 1.
type HybridSearcher struct {
	lexical  *BM25Searcher
	symbolic *BooleanSearcher
	semantic SemanticScorer

	weights     HybridWeights
	laneTimeout time.Duration
}

// NewHybridSearcher wires the three lanes together.
func NewHybridSearcher(lexical *BM25Searcher, symbolic *BooleanSearcher, semantic SemanticScorer, weights HybridWeights, laneTimeout time.Duration) *HybridSearcher {
	return &HybridSearcher{
		lexical:     lexical,
		symbolic:    symbolic,
		semantic:    semantic,
		weights:     weights,
		laneTimeout: laneTimeout,
	}
}

type laneResult struct {
	name    string
	weight  float64
	scores  map[string]float64
	present bool
}

// Search runs every configured lane and returns the fused ranking.
func (h *HybridSearcher) Search(ctx context.Context, query string, filters ...Filter) ([]Result, error) {
	lanes := []*laneResult{
		{name: "lexical", weight: h.weights.Lexical},
		{name: "symbolic", weight: h.weights.Symbolic},
	}
	if h.semantic != nil {
		lanes = append(lanes, &laneResult{name: "semantic", weight: h.weights.Semantic})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, lane := range lanes {
		lane := lane
		g.Go(func() error {
			laneCtx := gctx
			var cancel context.CancelFunc
			if h.laneTimeout > 0 {
				laneCtx, cancel = context.WithTimeout(gctx, h.laneTimeout)
				defer cancel()
			}
			scores, err := h.runLane(laneCtx, lane.name, query)
			if err != nil || laneCtx.Err() != nil {
				// Lane isolation: a failing/timed-out lane is dropped,
				// not propagated — it never makes the whole search fail.
				return nil
			}
			lane.scores = scores
			lane.present = true
			return nil
		})
	}
	_ = g.Wait() // runLane never returns an error to the group; kept for interface symmetry

	return h.fuse(lanes, filters), nil
}

func (h *HybridSearcher) runLane(ctx context.Context, name, query string) (map[string]float64, error) {
	switch name {
	case "lexical":
		results := h.lexical.Search(query)
		return toScoreMap(results), nil
	case "symbolic":
		results, err := h.symbolic.Search(query)
		if err != nil {
			return nil, err
		}
		return toScoreMap(results), nil
	case "semantic":
		return h.semantic(ctx, query)
	default:
		return nil, nil
	}
}

func toScoreMap(results []Result) map[string]float64 {
	m := make(map[string]float64, len(results))
	for _, r := range results {
		m[r.EntityName] = r.Score
	}
	return m
}

func (h *HybridSearcher) fuse(lanes []*laneResult, filters []Filter) []Result {
	var totalWeight float64
	for _, lane := range lanes {
		if lane.present {
			normalizeMinMax(lane.scores)
			totalWeight += lane.weight
		}
	}
	if totalWeight == 0 {
		return nil
	}

	fused := make(map[string]float64)
	for _, lane := range lanes {
		if !lane.present {
			continue
		}
		w := lane.weight / totalWeight
		for entity, score := range lane.scores {
			fused[entity] += w * score
		}
	}

	out := make([]Result, 0, len(fused))
	for entity, score := range fused {
		if applyFilters(entity, filters) {
			out = append(out, Result{EntityName: entity, Score: score, MatchType: "hybrid"})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].EntityName < out[j].EntityName
	})
	return out
}

// normalizeMinMax rescales scores in place to [0,1]. A lane with a single
// distinct value (or none) is left at 1.0 for every present entity so it
// still contributes to the fusion instead of collapsing to zero.
func normalizeMinMax(scores map[string]float64) {
	if len(scores) == 0 {
		return
	}
	min, max := float64(0), float64(0)
	first := true
	for _, s := range scores {
		if first {
			min, max = s, s
			first = false
			continue
		}
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	if max == min {
		for k := range scores {
			scores[k] = 1.0
		}
		return
	}
	for k, s := range scores {
		scores[k] = (s - min) / (max - min)
	}
}
