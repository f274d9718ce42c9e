package search

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/graphkeep/graphkeep/internal/graph"
	"github.com/graphkeep/graphkeep/internal/textalgo"
)

// fuzzyCacheEntry is one TTL+LRU cache slot (spec.md §4.H).
type fuzzyCacheEntry struct {
	results  []Result
	cachedAt time.Time
}

// FuzzySearcher implements spec.md §4.H's edit-distance fuzzy matching.
// Below FuzzySearchConfig's parallel gate it scans serially; above it, it
// fans the candidate set out across an errgroup worker pool sized
// cpu-1, the "waitable completion primitive" spec.md §9 calls for.
type FuzzySearcher struct {
	store     graph.Store
	threshold float64

	parallelMinEntities  int
	parallelMaxThreshold float64

	mu        sync.Mutex
	cache     map[string]fuzzyCacheEntry
	cacheTTL  time.Duration
	cacheMax  int
	lru       []string // most-recently-used at the end
}

// FuzzySearcherOptions configures a FuzzySearcher; see
// pkg/config.FuzzySearchConfig for the matching host-facing knobs.
type FuzzySearcherOptions struct {
	Threshold            float64
	ParallelMinEntities  int
	ParallelMaxThreshold float64
	CacheTTL             time.Duration
	CacheMaxEntries      int
}

// NewFuzzySearcher returns a fuzzy searcher over store.
func NewFuzzySearcher(store graph.Store, opts FuzzySearcherOptions) *FuzzySearcher {
	return &FuzzySearcher{
		store:                store,
		threshold:            opts.Threshold,
		parallelMinEntities:  opts.ParallelMinEntities,
		parallelMaxThreshold: opts.ParallelMaxThreshold,
		cache:                make(map[string]fuzzyCacheEntry),
		cacheTTL:             opts.CacheTTL,
		cacheMax:             opts.CacheMaxEntries,
	}
}

// Search returns every entity whose name similarity to query is >=
// threshold (spec.md §8: reflexive at threshold 1.0 — Search(name) always
// includes name itself).
func (f *FuzzySearcher) Search(ctx context.Context, query string, filters ...Filter) ([]Result, error) {
	if cached, ok := f.lookupCache(query); ok {
		return filterResults(cached, filters), nil
	}

	entities := f.store.AllEntities()
	var results []Result
	var err error
	if len(entities) >= f.parallelMinEntities && f.threshold < f.parallelMaxThreshold {
		results, err = f.searchParallel(ctx, query, entities)
	} else {
		results = f.searchSerial(query, entities)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].EntityName < results[j].EntityName
	})

	f.storeCache(query, results)
	return filterResults(results, filters), nil
}

func (f *FuzzySearcher) searchSerial(query string, entities []*graph.Entity) []Result {
	var out []Result
	for _, e := range entities {
		if score := textalgo.Similarity(query, e.Name); score >= f.threshold {
			out = append(out, Result{EntityName: e.Name, Score: score, MatchType: "fuzzy"})
		}
	}
	return out
}

// searchParallel shards entities across cpu-1 workers (minimum 1), per
// spec.md §9's fixed worker-pool sizing for fuzzy search.
func (f *FuzzySearcher) searchParallel(ctx context.Context, query string, entities []*graph.Entity) ([]Result, error) {
	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}
	if workers > len(entities) {
		workers = len(entities)
	}
	if workers == 0 {
		return nil, nil
	}

	chunks := make([][]*graph.Entity, workers)
	for i, e := range entities {
		chunks[i%workers] = append(chunks[i%workers], e)
	}

	resultsPerChunk := make([][]Result, workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := range chunks {
		i := i
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			var local []Result
			for _, e := range chunks[i] {
				if score := textalgo.Similarity(query, e.Name); score >= f.threshold {
					local = append(local, Result{EntityName: e.Name, Score: score, MatchType: "fuzzy"})
				}
			}
			resultsPerChunk[i] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Result
	for _, chunk := range resultsPerChunk {
		out = append(out, chunk...)
	}
	return out, nil
}

func (f *FuzzySearcher) lookupCache(query string) ([]Result, bool) {
	if f.cacheTTL <= 0 {
		return nil, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.cache[query]
	if !ok || time.Since(entry.cachedAt) > f.cacheTTL {
		return nil, false
	}
	f.touchLRU(query)
	return entry.results, true
}

func (f *FuzzySearcher) storeCache(query string, results []Result) {
	if f.cacheTTL <= 0 || f.cacheMax <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.cache[query]; !exists && len(f.cache) >= f.cacheMax {
		f.evictOldest()
	}
	f.cache[query] = fuzzyCacheEntry{results: results, cachedAt: time.Now()}
	f.touchLRU(query)
}

func (f *FuzzySearcher) touchLRU(query string) {
	for i, k := range f.lru {
		if k == query {
			f.lru = append(f.lru[:i], f.lru[i+1:]...)
			break
		}
	}
	f.lru = append(f.lru, query)
}

func (f *FuzzySearcher) evictOldest() {
	if len(f.lru) == 0 {
		return
	}
	oldest := f.lru[0]
	f.lru = f.lru[1:]
	delete(f.cache, oldest)
}
