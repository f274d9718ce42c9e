package search

// Result is a single scored match, returned by every searcher in this
// package. MatchType records which lane produced the score, which the
// hybrid fuser and host callers use to explain a ranking (spec.md §4.E's
// SearchResult{Memory, Relevance, MatchType} shape in the teacher's
// engine.go, generalized from a flat memory table to a named entity).
type Result struct {
	EntityName string
	Score      float64
	MatchType  string
}

// Filter narrows a candidate set before or after scoring: entity type,
// tag set, session, or any other predicate a caller supplies.
type Filter func(name string) bool

// applyFilters reports whether name passes every filter.
func applyFilters(name string, filters []Filter) bool {
	for _, f := range filters {
		if !f(name) {
			return false
		}
	}
	return true
}
