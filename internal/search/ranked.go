package search

import (
	"sort"
	"strings"
	"sync"

	"github.com/graphkeep/graphkeep/internal/graph"
	"github.com/graphkeep/graphkeep/internal/textalgo"
)

// RankedSearcher implements spec.md §4.E's TF-IDF ranked search. Unlike
// BasicSearcher it maintains its own per-document term-frequency table,
// kept current by subscribing to the store's event bus rather than
// rebuilding on every query (spec.md §4.E "incremental event-driven
// maintenance").
type RankedSearcher struct {
	store graph.Store

	mu      sync.RWMutex
	docs    map[string]map[string]int // entity name -> term frequencies
	dirty   bool
}

// NewRankedSearcher builds the term-frequency table from store's current
// contents and keeps it current via the event bus.
func NewRankedSearcher(store graph.Store) *RankedSearcher {
	r := &RankedSearcher{store: store, docs: make(map[string]map[string]int)}
	r.rebuild()
	store.Events().Subscribe(r.onEvent)
	return r
}

func (r *RankedSearcher) onEvent(ev graph.Event) {
	switch ev.Kind {
	case graph.EntityCreated, graph.EntityUpdated, graph.ObservationAdded, graph.ObservationDeleted:
		r.reindexEntity(ev.Entity)
	case graph.EntityDeleted:
		r.mu.Lock()
		delete(r.docs, ev.Entity)
		r.mu.Unlock()
	case graph.GraphLoaded, graph.GraphSaved:
		r.rebuild()
	}
}

func (r *RankedSearcher) reindexEntity(name string) {
	e, ok := r.store.GetEntity(name)
	if !ok {
		r.mu.Lock()
		delete(r.docs, name)
		r.mu.Unlock()
		return
	}
	freqs := documentTermFrequencies(e)
	r.mu.Lock()
	r.docs[name] = freqs
	r.mu.Unlock()
}

func (r *RankedSearcher) rebuild() {
	docs := make(map[string]map[string]int)
	for _, e := range r.store.AllEntities() {
		docs[e.Name] = documentTermFrequencies(e)
	}
	r.mu.Lock()
	r.docs = docs
	r.mu.Unlock()
}

func documentTermFrequencies(e *graph.Entity) map[string]int {
	var sb strings.Builder
	sb.WriteString(e.Name)
	sb.WriteString(" ")
	sb.WriteString(e.EntityType)
	for _, o := range e.Observations {
		sb.WriteString(" ")
		sb.WriteString(o)
	}
	for _, t := range e.Tags {
		sb.WriteString(" ")
		sb.WriteString(t)
	}
	return textalgo.TermFrequencies(sb.String())
}

// Search scores every entity by TF-IDF against query's tokens and returns
// non-zero matches sorted by descending score, entity name breaking ties
// (spec.md §8 ranked-search ordering).
func (r *RankedSearcher) Search(query string, filters ...Filter) []Result {
	tokens := textalgo.Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	r.mu.RLock()
	docs := make([]map[string]int, 0, len(r.docs))
	names := make([]string, 0, len(r.docs))
	for name, freqs := range r.docs {
		names = append(names, name)
		docs = append(docs, freqs)
	}
	r.mu.RUnlock()

	corpus := textalgo.NewCorpus(docs)

	var out []Result
	for i, name := range names {
		if !applyFilters(name, filters) {
			continue
		}
		score := textalgo.TFIDF(docs[i], tokens, corpus)
		if score > 0 {
			out = append(out, Result{EntityName: name, Score: score, MatchType: "ranked"})
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
