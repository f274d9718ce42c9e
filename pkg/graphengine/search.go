package graphengine

import (
	"context"
	"fmt"

	"github.com/graphkeep/graphkeep/internal/graph"
	"github.com/graphkeep/graphkeep/internal/search"
)

// Subgraph is what every search method returns (spec.md §6): the matched
// entities plus every relation whose both endpoints were selected.
type Subgraph struct {
	Entities  []*graph.Entity
	Relations []*graph.Relation
	Scores    map[string]float64 // entity name -> relevance score
}

// subgraphFrom builds a Subgraph from a scored result set, pulling full
// entity records from the store and including only relations whose both
// endpoints are in the result set.
func (f *Facade) subgraphFrom(results []search.Result) Subgraph {
	scores := make(map[string]float64, len(results))
	selected := make(map[string]struct{}, len(results))
	entities := make([]*graph.Entity, 0, len(results))

	for _, r := range results {
		if _, dup := selected[r.EntityName]; dup {
			continue
		}
		selected[r.EntityName] = struct{}{}
		scores[r.EntityName] = r.Score
		if e, ok := f.store.GetEntity(r.EntityName); ok {
			entities = append(entities, e)
		}
	}

	var relations []*graph.Relation
	seen := make(map[string]struct{})
	for name := range selected {
		for _, rel := range f.store.Indexes().Outgoing(name) {
			if _, ok := selected[rel.To]; !ok {
				continue
			}
			if _, dup := seen[rel.Key()]; dup {
				continue
			}
			seen[rel.Key()] = struct{}{}
			relations = append(relations, rel)
		}
	}

	return Subgraph{Entities: entities, Relations: relations, Scores: scores}
}

// entityTypeFilter builds a search.Filter matching entities of the given
// type, or no-op when entityType is empty.
func entityTypeFilter(store graph.Store, entityType string) search.Filter {
	if entityType == "" {
		return func(string) bool { return true }
	}
	return func(name string) bool {
		e, ok := store.GetEntity(name)
		return ok && e.EntityType == entityType
	}
}

// SearchOptions narrows search_nodes/search_ranked/fuzzy_search to a
// subset of entities before or after scoring.
type SearchOptions struct {
	EntityType string
	Offset     int
	Limit      int
}

func paginate(results []search.Result, offset, limit int) []search.Result {
	if offset > 0 {
		if offset >= len(results) {
			return nil
		}
		results = results[offset:]
	}
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}

// SearchNodes implements spec.md §6's search_nodes: a substring match
// over name/type/observations/tags.
func (f *Facade) SearchNodes(query string, opts SearchOptions) (Subgraph, error) {
	if query == "" {
		return Subgraph{}, fmt.Errorf("%w: query is required", graph.ErrValidation)
	}
	results := f.basic.Search(query, entityTypeFilter(f.store, opts.EntityType))
	f.recordSearch("basic", len(results))
	return f.subgraphFrom(paginate(results, opts.Offset, opts.Limit)), nil
}

// SearchRanked implements spec.md §6's search_ranked: TF-IDF relevance
// ranking over the same candidate set as SearchNodes.
func (f *Facade) SearchRanked(query string, opts SearchOptions) (Subgraph, error) {
	if query == "" {
		return Subgraph{}, fmt.Errorf("%w: query is required", graph.ErrValidation)
	}
	results := f.ranked.Search(query, entityTypeFilter(f.store, opts.EntityType))
	f.recordSearch("ranked", len(results))
	return f.subgraphFrom(paginate(results, opts.Offset, opts.Limit)), nil
}

// BooleanSearch implements spec.md §6's boolean_search: an AND/OR/NOT
// expression matched as substrings of entity names, types, observations
// and tags.
func (f *Facade) BooleanSearch(expr string, opts SearchOptions) (Subgraph, error) {
	results, err := f.boolean.Search(expr, entityTypeFilter(f.store, opts.EntityType))
	if err != nil {
		return Subgraph{}, fmt.Errorf("graphengine: boolean_search: %w", err)
	}
	f.recordSearch("boolean", len(results))
	return f.subgraphFrom(paginate(results, opts.Offset, opts.Limit)), nil
}

// FuzzySearch implements spec.md §6's fuzzy_search: edit-distance
// similarity against every candidate name, at or above the threshold
// configured at Open (config.FuzzySearchConfig.Threshold). The threshold
// argument is only range-checked; it does not change the threshold used
// for matching.
func (f *Facade) FuzzySearch(ctx context.Context, query string, threshold float64, opts SearchOptions) (Subgraph, error) {
	if threshold < 0 || threshold > 1 {
		return Subgraph{}, fmt.Errorf("%w: threshold must be 0..1", graph.ErrValidation)
	}
	results, err := f.fuzzy.Search(ctx, query, entityTypeFilter(f.store, opts.EntityType))
	if err != nil {
		return Subgraph{}, fmt.Errorf("graphengine: fuzzy_search: %w", err)
	}
	f.recordSearch("fuzzy", len(results))
	return f.subgraphFrom(paginate(results, opts.Offset, opts.Limit)), nil
}

// BM25Search implements spec.md §4.F's Okapi BM25 ranking directly (the
// hybrid search's lexical lane, also exposed standalone since it's a
// meaningfully different ranking from TF-IDF's SearchRanked).
func (f *Facade) BM25Search(query string, opts SearchOptions) (Subgraph, error) {
	results := f.bm25.Search(query, entityTypeFilter(f.store, opts.EntityType))
	f.recordSearch("bm25", len(results))
	return f.subgraphFrom(paginate(results, opts.Offset, opts.Limit)), nil
}

// HybridSearch implements spec.md §6's hybrid_search: fuses the lexical
// (BM25), symbolic (boolean), and optional semantic lanes concurrently.
func (f *Facade) HybridSearch(ctx context.Context, query string, opts SearchOptions) (Subgraph, error) {
	results, err := f.hybrid.Search(ctx, query, entityTypeFilter(f.store, opts.EntityType))
	if err != nil {
		return Subgraph{}, fmt.Errorf("graphengine: hybrid_search: %w", err)
	}
	f.recordSearch("hybrid", len(results))
	return f.subgraphFrom(paginate(results, opts.Offset, opts.Limit)), nil
}

// FullTextSearch implements spec.md §4.C's full_text_search: SQLite FTS5's
// bm25() ranking, evaluated server-side against the entities_fts virtual
// table. Only available over the sqlite store backend; the NDJSON log
// backend has no FTS5 index, so this returns ErrValidation there.
func (f *Facade) FullTextSearch(ctx context.Context, query string, opts SearchOptions) (Subgraph, error) {
	if query == "" {
		return Subgraph{}, fmt.Errorf("%w: query is required", graph.ErrValidation)
	}
	if f.fts == nil {
		return Subgraph{}, fmt.Errorf("%w: full_text_search requires the sqlite store backend", graph.ErrValidation)
	}
	limit := opts.Limit
	if limit > 0 && opts.Offset > 0 {
		limit += opts.Offset
	}
	results, err := f.fts.Search(ctx, query, limit, entityTypeFilter(f.store, opts.EntityType))
	if err != nil {
		return Subgraph{}, fmt.Errorf("graphengine: full_text_search: %w", err)
	}
	f.recordSearch("fts", len(results))
	return f.subgraphFrom(paginate(results, opts.Offset, opts.Limit)), nil
}

// recordSearch is a no-op when telemetry was never configured (Recorder
// methods are nil-receiver-safe).
func (f *Facade) recordSearch(mode string, resultCount int) {
	f.telemetry.RecordSearch(context.Background(), mode, 0, resultCount)
}
