package search

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/graphkeep/graphkeep/internal/graph"
)

// BasicSearcher implements spec.md §4.E's plain substring search: a
// case-insensitive scan of name/type/observations/tags, backed by a small
// result cache so a host re-issuing the same query while the graph is
// unchanged doesn't re-scan. Grounded on the teacher's
// internal/search/engine.go dispatcher, reduced to the one mode that
// needs no scoring model.
type BasicSearcher struct {
	store graph.Store

	mu        sync.Mutex
	cache     map[string][]Result
	cacheTTL  time.Duration
	cachedAt  map[string]time.Time
}

// NewBasicSearcher returns a substring searcher over store, with results
// cached for ttl (zero disables caching).
func NewBasicSearcher(store graph.Store, ttl time.Duration) *BasicSearcher {
	b := &BasicSearcher{
		store:    store,
		cache:    make(map[string][]Result),
		cachedAt: make(map[string]time.Time),
		cacheTTL: ttl,
	}
	store.Events().Subscribe(func(graph.Event) { b.invalidate() })
	return b
}

func (b *BasicSearcher) invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = make(map[string][]Result)
	b.cachedAt = make(map[string]time.Time)
}

// Search returns every entity whose name, type, an observation, or a tag
// contains query (case-insensitive), sorted by name for stability
// (spec.md §8 "search-result stability").
func (b *BasicSearcher) Search(query string, filters ...Filter) []Result {
	key := strings.ToLower(query)

	b.mu.Lock()
	if b.cacheTTL > 0 {
		if cached, ok := b.cache[key]; ok && time.Since(b.cachedAt[key]) < b.cacheTTL {
			b.mu.Unlock()
			return filterResults(cached, filters)
		}
	}
	b.mu.Unlock()

	idx := b.store.Indexes()
	var out []Result
	for name, lc := range idx.LowercaseCache {
		if !applyFilters(name, filters) {
			continue
		}
		if matchesSubstring(lc, key) {
			out = append(out, Result{EntityName: name, Score: 1.0, MatchType: "basic"})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityName < out[j].EntityName })

	if b.cacheTTL > 0 {
		b.mu.Lock()
		b.cache[key] = out
		b.cachedAt[key] = time.Now()
		b.mu.Unlock()
	}
	return out
}

func matchesSubstring(lc *graph.LowercaseFields, key string) bool {
	if strings.Contains(lc.NameLC, key) || strings.Contains(lc.TypeLC, key) {
		return true
	}
	for _, o := range lc.ObservationsLC {
		if strings.Contains(o, key) {
			return true
		}
	}
	for _, t := range lc.TagsLC {
		if strings.Contains(t, key) {
			return true
		}
	}
	return false
}

func filterResults(results []Result, filters []Filter) []Result {
	if len(filters) == 0 {
		return results
	}
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if applyFilters(r.EntityName, filters) {
			out = append(out, r)
		}
	}
	return out
}
