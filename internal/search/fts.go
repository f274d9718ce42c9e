package search

import (
	"context"

	"github.com/graphkeep/graphkeep/internal/graph"
)

// fullTextStore is implemented by graph.SQLStore. The log backend has no
// FTS5 index, so FTSSearcher is only ever constructed over a SQLite-backed
// Store; callers check availability with NewFTSSearcher's ok return.
type fullTextStore interface {
	FullTextSearch(ctx context.Context, q string, limit int) ([]graph.FTSMatch, error)
}

// FTSSearcher runs spec.md §4.C's full_text_search(q) -> [(name, score)]
// through SQLite's FTS5 extension, ranking hits with its built-in bm25().
// Unlike BasicSearcher/RankedSearcher/BM25Searcher, it does no work itself
// — SQLite evaluates the index and the ranking function server-side.
type FTSSearcher struct {
	store fullTextStore
}

// NewFTSSearcher returns an FTSSearcher over store, or ok=false if store's
// backend doesn't expose FullTextSearch (the NDJSON log backend).
func NewFTSSearcher(store graph.Store) (*FTSSearcher, bool) {
	fts, ok := store.(fullTextStore)
	if !ok {
		return nil, false
	}
	return &FTSSearcher{store: fts}, true
}

// Search returns up to limit matches for query, ranked by BM25 score
// descending (higher is more relevant). limit <= 0 means unbounded.
func (f *FTSSearcher) Search(ctx context.Context, query string, limit int, filters ...Filter) ([]Result, error) {
	matches, err := f.store.FullTextSearch(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(matches))
	for _, m := range matches {
		if !applyFilters(m.Name, filters) {
			continue
		}
		out = append(out, Result{EntityName: m.Name, Score: m.Score, MatchType: "fts"})
	}
	return out, nil
}
