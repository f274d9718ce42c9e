package agentmemory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/graphkeep/graphkeep/internal/graph"
)

// ContextWindowOptions mirrors pkg/config.ContextWindowConfig's fields.
type ContextWindowOptions struct {
	MaxTokens             int
	ReserveBuffer         int
	TokenMultiplier       float64
	MaxEntitiesToConsider int
	WorkingBudgetFraction  float64
	EpisodicBudgetFraction float64
	SemanticBudgetFraction float64
	RecentSessionCount     int
}

// DefaultContextWindowOptions matches pkg/config.ContextWindowConfig's
// defaults.
func DefaultContextWindowOptions() ContextWindowOptions {
	return ContextWindowOptions{
		MaxTokens:              4000,
		ReserveBuffer:          100,
		TokenMultiplier:        1.3,
		MaxEntitiesToConsider:  1000,
		WorkingBudgetFraction:  0.3,
		EpisodicBudgetFraction: 0.3,
		SemanticBudgetFraction: 0.4,
		RecentSessionCount:     5,
	}
}

// EstimateTokens counts space-separated tokens across name, entity_type,
// observations, and any set memory_type/session_id/task_id field, then
// multiplies by the configured token multiplier, rounding up (spec.md
// §4.O).
func EstimateTokens(e *graph.Entity, multiplier float64) int {
	var fields []string
	fields = append(fields, e.Name, e.EntityType)
	fields = append(fields, e.Observations...)
	if e.MemoryType != "" {
		fields = append(fields, string(e.MemoryType))
	}
	if e.SessionID != "" {
		fields = append(fields, e.SessionID)
	}
	if e.TaskID != "" {
		fields = append(fields, e.TaskID)
	}

	count := 0
	for _, f := range fields {
		count += len(strings.Fields(f))
	}
	tokens := float64(count) * multiplier
	return int(tokens) + boolToInt(tokens != float64(int(tokens)))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// IncludeFlags selects which memory classes retrieveForContext considers.
type IncludeFlags struct {
	Working    bool
	Episodic   bool
	Semantic   bool
	Procedural bool
}

// RetrieveOptions configures retrieveForContext (spec.md §4.O).
type RetrieveOptions struct {
	Include      IncludeFlags
	MustInclude  []string
	MinSalience  float64
	RetrievalCtx RetrievalContext
}

// ExcludeReason explains why a candidate was dropped.
type ExcludeReason string

const (
	ExcludeBudgetExceeded ExcludeReason = "budget_exceeded"
	ExcludeLowSalience    ExcludeReason = "low_salience"
)

// Excluded describes one entity left out of the final selection.
type Excluded struct {
	Entity   string
	Reason   ExcludeReason
	Tokens   int
	Salience float64
}

// Breakdown reports the token cost attributed to each memory class plus
// the must-include set.
type Breakdown struct {
	Working     int
	Episodic    int
	Semantic    int
	Procedural  int
	MustInclude int
}

// ContextResult is retrieveForContext's return value (spec.md §4.O).
type ContextResult struct {
	Memories    []*graph.Entity
	TotalTokens int
	Breakdown   Breakdown
	Excluded    []Excluded
	Suggestions []string
}

// ContextWindowManager packs agent entities into a token-bounded context
// window, greedily maximizing salience per token (spec.md §4.O).
type ContextWindowManager struct {
	store    graph.Store
	salience *SalienceEngine
	opts     ContextWindowOptions
}

// NewContextWindowManager wires a manager over store/salience.
func NewContextWindowManager(store graph.Store, salience *SalienceEngine, opts ContextWindowOptions) *ContextWindowManager {
	return &ContextWindowManager{store: store, salience: salience, opts: opts}
}

type scoredCandidate struct {
	entity     *graph.Entity
	tokens     int
	salience   float64
	components Components
}

func (c *ContextWindowManager) classIncluded(e *graph.Entity, include IncludeFlags) bool {
	switch e.MemoryType {
	case graph.MemoryTypeWorking:
		return include.Working
	case graph.MemoryTypeEpisodic:
		return include.Episodic
	case graph.MemoryTypeSemantic:
		return include.Semantic
	case graph.MemoryTypeProcedural:
		return include.Procedural
	default:
		return false
	}
}

func (c *ContextWindowManager) candidates(include IncludeFlags) []*graph.Entity {
	var out []*graph.Entity
	for _, e := range c.store.AllAgentEntities() {
		if c.classIncluded(e, include) {
			out = append(out, e)
		}
	}
	return out
}

// RetrieveForContext implements spec.md §4.O's packing algorithm.
func (c *ContextWindowManager) RetrieveForContext(ctx context.Context, opts RetrieveOptions) *ContextResult {
	budget := c.opts.MaxTokens - c.opts.ReserveBuffer
	if budget < 0 {
		budget = 0
	}

	entities := c.candidates(opts.Include)

	maxConsider := c.opts.MaxEntitiesToConsider
	if maxConsider > 0 && len(entities) > maxConsider {
		preRanked := c.salience.RankBySalience(entities, opts.RetrievalCtx)
		entities = entities[:0]
		for i := 0; i < maxConsider && i < len(preRanked); i++ {
			entities = append(entities, preRanked[i].Entity)
		}
	}

	mustInclude := make(map[string]struct{}, len(opts.MustInclude))
	for _, n := range opts.MustInclude {
		mustInclude[n] = struct{}{}
	}

	var must, optional []scoredCandidate
	for _, e := range entities {
		salience, components := c.salience.Score(e, opts.RetrievalCtx)
		tokens := EstimateTokens(e, c.opts.TokenMultiplier)
		sc := scoredCandidate{entity: e, tokens: tokens, salience: salience, components: components}
		if _, ok := mustInclude[e.Name]; ok {
			must = append(must, sc)
		} else {
			optional = append(optional, sc)
		}
	}

	sort.Slice(optional, func(i, j int) bool {
		ri := ratio(optional[i].salience, optional[i].tokens)
		rj := ratio(optional[j].salience, optional[j].tokens)
		if ri != rj {
			return ri > rj
		}
		return optional[i].entity.Name < optional[j].entity.Name
	})

	result := &ContextResult{}
	used := 0

	for _, sc := range must {
		result.Memories = append(result.Memories, sc.entity)
		used += sc.tokens
		result.Breakdown.MustInclude += sc.tokens
		addClassTokens(&result.Breakdown, sc.entity.MemoryType, sc.tokens)
	}

	var excluded []Excluded
	for _, sc := range optional {
		if sc.salience < opts.MinSalience {
			excluded = append(excluded, Excluded{Entity: sc.entity.Name, Reason: ExcludeLowSalience, Tokens: sc.tokens, Salience: sc.salience})
			continue
		}
		if used+sc.tokens > budget {
			excluded = append(excluded, Excluded{Entity: sc.entity.Name, Reason: ExcludeBudgetExceeded, Tokens: sc.tokens, Salience: sc.salience})
			continue
		}
		result.Memories = append(result.Memories, sc.entity)
		used += sc.tokens
		addClassTokens(&result.Breakdown, sc.entity.MemoryType, sc.tokens)
	}

	result.TotalTokens = used
	result.Excluded = excluded
	result.Suggestions = buildSuggestions(excluded)
	return result
}

func ratio(salience float64, tokens int) float64 {
	if tokens == 0 {
		return 0
	}
	return salience / float64(tokens)
}

func addClassTokens(b *Breakdown, memType graph.MemoryType, tokens int) {
	switch memType {
	case graph.MemoryTypeWorking:
		b.Working += tokens
	case graph.MemoryTypeEpisodic:
		b.Episodic += tokens
	case graph.MemoryTypeSemantic:
		b.Semantic += tokens
	case graph.MemoryTypeProcedural:
		b.Procedural += tokens
	}
}

func buildSuggestions(excluded []Excluded) []string {
	if len(excluded) == 0 {
		return nil
	}
	sorted := append([]Excluded(nil), excluded...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Salience > sorted[j].Salience })

	var suggestions []string
	top := sorted
	if len(top) > 3 {
		top = top[:3]
	}
	for _, e := range top {
		suggestions = append(suggestions, "consider including "+e.Entity+" (salience "+formatFloat(e.Salience)+")")
	}
	if len(excluded) > 3 {
		suggestions = append(suggestions, formatInt(len(excluded))+" entities excluded overall")
	}
	return suggestions
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

func formatInt(n int) string {
	return strconv.Itoa(n)
}

// RetrieveWithBudgetAllocation partitions the budget by class percentages
// and runs per-class retrieval before merging, per spec.md §4.O.
func (c *ContextWindowManager) RetrieveWithBudgetAllocation(ctx context.Context, opts RetrieveOptions) *ContextResult {
	budget := c.opts.MaxTokens - c.opts.ReserveBuffer
	if budget < 0 {
		budget = 0
	}

	mustInclude := make(map[string]struct{}, len(opts.MustInclude))
	var mustEntities []*graph.Entity
	mustTokens := 0
	for _, name := range opts.MustInclude {
		if e, ok := c.store.GetEntity(name); ok {
			mustInclude[name] = struct{}{}
			mustEntities = append(mustEntities, e)
			mustTokens += EstimateTokens(e, c.opts.TokenMultiplier)
		}
	}

	remaining := budget - mustTokens
	if remaining < 0 {
		remaining = 0
	}
	workingBudget := int(float64(remaining) * c.opts.WorkingBudgetFraction)
	episodicBudget := int(float64(remaining) * c.opts.EpisodicBudgetFraction)
	semanticBudget := remaining - workingBudget - episodicBudget

	merged := make(map[string]*graph.Entity)
	breakdown := Breakdown{}

	workingEntities := c.retrieveClass(graph.MemoryTypeWorking, workingBudget, opts.RetrievalCtx)
	for _, e := range workingEntities {
		merged[e.Name] = e
		breakdown.Working += EstimateTokens(e, c.opts.TokenMultiplier)
	}

	episodicEntities := c.retrieveRecentEpisodic(episodicBudget, opts.RetrievalCtx)
	for _, e := range episodicEntities {
		merged[e.Name] = e
		breakdown.Episodic += EstimateTokens(e, c.opts.TokenMultiplier)
	}

	semanticEntities := c.retrieveSemanticRelevant(semanticBudget, opts.RetrievalCtx)
	for _, e := range semanticEntities {
		merged[e.Name] = e
		breakdown.Semantic += EstimateTokens(e, c.opts.TokenMultiplier)
	}

	for _, e := range mustEntities {
		merged[e.Name] = e
	}
	breakdown.MustInclude = mustTokens

	var filtered []*graph.Entity
	var excluded []Excluded
	total := mustTokens
	for _, e := range merged {
		if _, isMust := mustInclude[e.Name]; isMust {
			continue
		}
		salience, _ := c.salience.Score(e, opts.RetrievalCtx)
		tokens := EstimateTokens(e, c.opts.TokenMultiplier)
		if salience < opts.MinSalience {
			excluded = append(excluded, Excluded{Entity: e.Name, Reason: ExcludeLowSalience, Tokens: tokens, Salience: salience})
			continue
		}
		filtered = append(filtered, e)
		total += tokens
	}
	filtered = append(filtered, mustEntities...)
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Name < filtered[j].Name })

	return &ContextResult{
		Memories:    filtered,
		TotalTokens: total,
		Breakdown:   breakdown,
		Excluded:    excluded,
		Suggestions: buildSuggestions(excluded),
	}
}

func (c *ContextWindowManager) retrieveClass(memType graph.MemoryType, budget int, rctx RetrievalContext) []*graph.Entity {
	var candidates []*graph.Entity
	for _, e := range c.store.AllAgentEntities() {
		if e.MemoryType == memType {
			candidates = append(candidates, e)
		}
	}
	return c.packByBudget(candidates, budget, rctx)
}

func (c *ContextWindowManager) retrieveRecentEpisodic(budget int, rctx RetrievalContext) []*graph.Entity {
	var candidates []*graph.Entity
	for _, e := range c.store.AllAgentEntities() {
		if e.MemoryType == graph.MemoryTypeEpisodic {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.After(candidates[j].CreatedAt) })
	return c.packByBudget(candidates, budget, rctx)
}

// retrieveSemanticRelevant scans the most recent RecentSessionCount
// sessions' semantic memories, per spec.md §4.O.
func (c *ContextWindowManager) retrieveSemanticRelevant(budget int, rctx RetrievalContext) []*graph.Entity {
	var candidates []*graph.Entity
	for _, e := range c.store.AllAgentEntities() {
		if e.MemoryType == graph.MemoryTypeSemantic {
			candidates = append(candidates, e)
		}
	}

	recentSessions := c.recentSessions(candidates)
	limit := c.opts.RecentSessionCount
	if limit <= 0 {
		limit = 5
	}
	if len(recentSessions) > limit {
		recentSessions = recentSessions[:limit]
	}
	allowed := make(map[string]struct{}, len(recentSessions))
	for _, s := range recentSessions {
		allowed[s] = struct{}{}
	}

	var filtered []*graph.Entity
	for _, e := range candidates {
		if e.SessionID == "" || hasSession(allowed, e.SessionID) {
			filtered = append(filtered, e)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].CreatedAt.After(filtered[j].CreatedAt) })
	return c.packByBudget(filtered, budget, rctx)
}

func hasSession(allowed map[string]struct{}, session string) bool {
	_, ok := allowed[session]
	return ok
}

func (c *ContextWindowManager) recentSessions(entities []*graph.Entity) []string {
	latest := make(map[string]time.Time)
	for _, e := range entities {
		if e.SessionID == "" {
			continue
		}
		if cur, ok := latest[e.SessionID]; !ok || e.CreatedAt.After(cur) {
			latest[e.SessionID] = e.CreatedAt
		}
	}
	sessions := make([]string, 0, len(latest))
	for s := range latest {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool { return latest[sessions[i]].After(latest[sessions[j]]) })
	return sessions
}

func (c *ContextWindowManager) packByBudget(candidates []*graph.Entity, budget int, rctx RetrievalContext) []*graph.Entity {
	type sc struct {
		entity *graph.Entity
		tokens int
		salience float64
	}
	scored := make([]sc, 0, len(candidates))
	for _, e := range candidates {
		salience, _ := c.salience.Score(e, rctx)
		tokens := EstimateTokens(e, c.opts.TokenMultiplier)
		scored = append(scored, sc{entity: e, tokens: tokens, salience: salience})
	}
	sort.Slice(scored, func(i, j int) bool {
		ri := ratio(scored[i].salience, scored[i].tokens)
		rj := ratio(scored[j].salience, scored[j].tokens)
		if ri != rj {
			return ri > rj
		}
		return scored[i].entity.Name < scored[j].entity.Name
	})

	var out []*graph.Entity
	used := 0
	for _, s := range scored {
		if used+s.tokens > budget {
			continue
		}
		out = append(out, s.entity)
		used += s.tokens
	}
	return out
}
