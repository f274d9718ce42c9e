package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/graphkeep/graphkeep/internal/graph"
	"github.com/graphkeep/graphkeep/internal/textalgo"
)

func newTestStore(t *testing.T) graph.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.ndjson")
	store, err := graph.NewLogStore(path)
	if err != nil {
		t.Fatalf("NewLogStore: %v", err)
	}
	if err := store.EnsureLoaded(context.Background()); err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	return store
}

func seedEntity(t *testing.T, store graph.Store, name, entityType string, observations []string) {
	t.Helper()
	e := &graph.Entity{
		Name:         name,
		EntityType:   entityType,
		Observations: observations,
		CreatedAt:    time.Now(),
		LastModified: time.Now(),
	}
	if err := store.AppendEntity(context.Background(), e); err != nil {
		t.Fatalf("AppendEntity(%s): %v", name, err)
	}
}

func TestBasicSearcherSubstring(t *testing.T) {
	store := newTestStore(t)
	seedEntity(t, store, "Alice", "person", []string{"works at Acme Corp"})
	seedEntity(t, store, "Bob", "person", []string{"enjoys hiking"})

	b := NewBasicSearcher(store, time.Minute)
	results := b.Search("acme")
	if len(results) != 1 || results[0].EntityName != "Alice" {
		t.Fatalf("Search(acme) = %+v, want [Alice]", results)
	}
}

func TestRankedSearcherOrdersByScore(t *testing.T) {
	store := newTestStore(t)
	seedEntity(t, store, "DocA", "note", []string{"graph graph graph database"})
	seedEntity(t, store, "DocB", "note", []string{"graph database"})
	// DocC lacks "graph", so IDF(graph) = log(3/2) stays above zero.
	seedEntity(t, store, "DocC", "note", []string{"unrelated text"})

	r := NewRankedSearcher(store)
	results := r.Search("graph")
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].EntityName != "DocA" {
		t.Errorf("expected DocA to rank first (more occurrences), got %s", results[0].EntityName)
	}
}

func TestBM25SearcherMatches(t *testing.T) {
	store := newTestStore(t)
	seedEntity(t, store, "DocA", "note", []string{"the quick brown fox"})
	seedEntity(t, store, "DocB", "note", []string{"lazy dog sleeps"})

	s := NewBM25Searcher(store, textalgo.DefaultBM25Params())
	results := s.Search("fox")
	if len(results) != 1 || results[0].EntityName != "DocA" {
		t.Fatalf("Search(fox) = %+v, want [DocA]", results)
	}
}

func TestBooleanSearcherParenthesesAndOperators(t *testing.T) {
	store := newTestStore(t)
	seedEntity(t, store, "DocA", "note", []string{"cat dog"})
	seedEntity(t, store, "DocB", "note", []string{"cat bird"})
	seedEntity(t, store, "DocC", "note", []string{"fish"})

	b := NewBooleanSearcher(store)
	results, err := b.Search(`cat AND (dog OR bird)`)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	names := map[string]bool{}
	for _, r := range results {
		names[r.EntityName] = true
	}
	if !names["DocA"] || !names["DocB"] || names["DocC"] {
		t.Fatalf("unexpected match set: %+v", results)
	}
}

func TestBooleanSearcherNot(t *testing.T) {
	store := newTestStore(t)
	seedEntity(t, store, "DocA", "note", []string{"cat dog"})
	seedEntity(t, store, "DocB", "note", []string{"cat"})

	b := NewBooleanSearcher(store)
	results, err := b.Search(`cat AND NOT dog`)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].EntityName != "DocB" {
		t.Fatalf("Search(cat AND NOT dog) = %+v, want [DocB]", results)
	}
}

func TestBooleanSearcherRejectsImplicitAnd(t *testing.T) {
	store := newTestStore(t)
	seedEntity(t, store, "DocA", "note", []string{"cat dog"})

	b := NewBooleanSearcher(store)
	if _, err := b.Search(`cat dog`); !errors.Is(err, graph.ErrValidation) {
		t.Fatalf("Search(cat dog) error = %v, want ErrValidation (implicit AND must be rejected)", err)
	}
}

func TestBooleanSearcherFieldScopedAtoms(t *testing.T) {
	store := newTestStore(t)
	seedEntity(t, store, "Alice", "person", []string{"engineer"})
	seedEntity(t, store, "Bob", "person", []string{"manager"})
	seedEntity(t, store, "Acme", "company", []string{"engineering firm"})

	b := NewBooleanSearcher(store)
	results, err := b.Search(`name:Alice AND (type:person OR observation:engineer)`)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].EntityName != "Alice" {
		t.Fatalf("Search(name:Alice AND (type:person OR observation:engineer)) = %+v, want [Alice]", results)
	}
}

func TestFuzzySearcherReflexive(t *testing.T) {
	store := newTestStore(t)
	seedEntity(t, store, "Alice", "person", nil)

	f := NewFuzzySearcher(store, FuzzySearcherOptions{
		Threshold:            1.0,
		ParallelMinEntities:  500,
		ParallelMaxThreshold: 0.8,
		CacheTTL:             time.Minute,
		CacheMaxEntries:      10,
	})
	results, err := f.Search(context.Background(), "Alice")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].EntityName != "Alice" {
		t.Fatalf("Search(Alice) at threshold 1.0 = %+v, want [Alice]", results)
	}
}

func TestHybridSearcherFusesLexicalAndSymbolic(t *testing.T) {
	store := newTestStore(t)
	seedEntity(t, store, "DocA", "note", []string{"graph database engine"})
	seedEntity(t, store, "DocB", "note", []string{"unrelated content"})

	lexical := NewBM25Searcher(store, textalgo.DefaultBM25Params())
	symbolic := NewBooleanSearcher(store)
	h := NewHybridSearcher(lexical, symbolic, nil, HybridWeights{Lexical: 0.6, Symbolic: 0.4}, time.Second)

	results, err := h.Search(context.Background(), "graph")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 || results[0].EntityName != "DocA" {
		t.Fatalf("Search(graph) = %+v, want DocA first", results)
	}
}
