package graphengine

import (
	"context"
	"errors"
	"testing"

	"github.com/graphkeep/graphkeep/internal/graph"
)

func seedSearchable(t *testing.T, f *Facade) {
	t.Helper()
	_, err := f.CreateEntities(context.Background(), []NewEntity{
		{Name: "alice", EntityType: "person", Observations: []string{"loves distributed systems", "works on graph engines"}},
		{Name: "bob", EntityType: "person", Observations: []string{"loves distributed databases"}},
		{Name: "project-x", EntityType: "project", Observations: []string{"a graph engine project"}},
	})
	if err != nil {
		t.Fatalf("seedSearchable: %v", err)
	}
	if _, err := f.CreateRelations(context.Background(), []NewRelation{
		{From: "alice", To: "project-x", RelationType: "works_on"},
	}); err != nil {
		t.Fatalf("seed relation: %v", err)
	}
}

func TestSearchNodesReturnsSubgraphWithRelations(t *testing.T) {
	f := newTestFacade(t)
	seedSearchable(t, f)

	sg, err := f.SearchNodes("graph engine", SearchOptions{})
	if err != nil {
		t.Fatalf("SearchNodes: %v", err)
	}
	if len(sg.Entities) == 0 {
		t.Fatal("expected at least one matched entity")
	}
	names := map[string]bool{}
	for _, e := range sg.Entities {
		names[e.Name] = true
	}
	if names["alice"] && names["project-x"] && len(sg.Relations) == 0 {
		t.Fatal("expected the alice->project-x relation in the subgraph when both endpoints matched")
	}
}

func TestSearchNodesRejectsEmptyQuery(t *testing.T) {
	f := newTestFacade(t)
	_, err := f.SearchNodes("", SearchOptions{})
	if !errors.Is(err, graph.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSearchRankedFiltersByEntityType(t *testing.T) {
	f := newTestFacade(t)
	seedSearchable(t, f)

	sg, err := f.SearchRanked("graph", SearchOptions{EntityType: "project"})
	if err != nil {
		t.Fatalf("SearchRanked: %v", err)
	}
	for _, e := range sg.Entities {
		if e.EntityType != "project" {
			t.Fatalf("expected only project-type entities, got %q", e.EntityType)
		}
	}
}

func TestBooleanSearchMatchesConjunction(t *testing.T) {
	f := newTestFacade(t)
	seedSearchable(t, f)

	sg, err := f.BooleanSearch("distributed AND databases", SearchOptions{})
	if err != nil {
		t.Fatalf("BooleanSearch: %v", err)
	}
	found := false
	for _, e := range sg.Entities {
		if e.Name == "bob" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected bob to match 'distributed AND databases', got %+v", sg.Entities)
	}
}

func TestFuzzySearchRejectsBadThreshold(t *testing.T) {
	f := newTestFacade(t)
	_, err := f.FuzzySearch(context.Background(), "alicee", 1.5, SearchOptions{})
	if !errors.Is(err, graph.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestFuzzySearchFindsNearMiss(t *testing.T) {
	f := newTestFacade(t)
	seedSearchable(t, f)

	sg, err := f.FuzzySearch(context.Background(), "alicee", 0.7, SearchOptions{})
	if err != nil {
		t.Fatalf("FuzzySearch: %v", err)
	}
	found := false
	for _, e := range sg.Entities {
		if e.Name == "alice" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected alice to fuzzy-match 'alicee', got %+v", sg.Entities)
	}
}

func TestBM25SearchAndHybridSearchReturnResults(t *testing.T) {
	f := newTestFacade(t)
	seedSearchable(t, f)

	sg, err := f.BM25Search("graph engine", SearchOptions{})
	if err != nil {
		t.Fatalf("BM25Search: %v", err)
	}
	if len(sg.Entities) == 0 {
		t.Fatal("expected BM25Search to find matches")
	}

	hsg, err := f.HybridSearch(context.Background(), "graph engine", SearchOptions{})
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(hsg.Entities) == 0 {
		t.Fatal("expected HybridSearch to find matches without a semantic lane configured")
	}
}

func TestPaginateRespectsOffsetAndLimit(t *testing.T) {
	f := newTestFacade(t)
	seedSearchable(t, f)

	all, err := f.SearchNodes("graph", SearchOptions{})
	if err != nil {
		t.Fatalf("SearchNodes: %v", err)
	}
	limited, err := f.SearchNodes("graph", SearchOptions{Limit: 1})
	if err != nil {
		t.Fatalf("SearchNodes limited: %v", err)
	}
	if len(all.Entities) > 1 && len(limited.Entities) != 1 {
		t.Fatalf("expected Limit:1 to cap results, got %d", len(limited.Entities))
	}
}
