package traversal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/graphkeep/graphkeep/internal/graph"
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

func seedEntity(t *testing.T, store graph.Store, name string) {
	t.Helper()
	e := &graph.Entity{
		Name:         name,
		EntityType:   "node",
		CreatedAt:    time.Now(),
		LastModified: time.Now(),
	}
	if err := store.AppendEntity(context.Background(), e); err != nil {
		t.Fatalf("AppendEntity(%s): %v", name, err)
	}
}

func seedRelation(t *testing.T, store graph.Store, from, to, relType string) {
	t.Helper()
	r := &graph.Relation{From: from, To: to, RelationType: relType, CreatedAt: time.Now()}
	if err := store.AppendRelation(context.Background(), r); err != nil {
		t.Fatalf("AppendRelation(%s->%s): %v", from, to, err)
	}
}

// buildChain wires A -> B -> C -> D.
func buildChain(t *testing.T) (graph.Store, *graph.Indexes) {
	store := newTestStore(t)
	for _, name := range []string{"A", "B", "C", "D"} {
		seedEntity(t, store, name)
	}
	seedRelation(t, store, "A", "B", "knows")
	seedRelation(t, store, "B", "C", "knows")
	seedRelation(t, store, "C", "D", "knows")
	return store, store.Indexes()
}

func TestBFSRespectsDirectionAndDepth(t *testing.T) {
	_, idx := buildChain(t)

	out := BFS(idx, "A", Options{Direction: DirectionOut})
	want := []string{"A", "B", "C", "D"}
	if !equalStrings(out, want) {
		t.Fatalf("BFS unbounded = %v, want %v", out, want)
	}

	shallow := BFS(idx, "A", Options{Direction: DirectionOut, MaxDepth: 1})
	if !equalStrings(shallow, []string{"A", "B"}) {
		t.Fatalf("BFS depth=1 = %v, want [A B]", shallow)
	}

	reverse := BFS(idx, "D", Options{Direction: DirectionIn})
	if !equalStrings(reverse, []string{"D", "C", "B", "A"}) {
		t.Fatalf("BFS incoming from D = %v, want [D C B A]", reverse)
	}
}

func TestDFSVisitsAllReachable(t *testing.T) {
	_, idx := buildChain(t)
	out := DFS(idx, "A", Options{Direction: DirectionOut})
	want := []string{"A", "B", "C", "D"}
	if !equalStrings(out, want) {
		t.Fatalf("DFS = %v, want %v", out, want)
	}
}

func TestShortestPath(t *testing.T) {
	_, idx := buildChain(t)

	path := ShortestPath(idx, "A", "D", Options{Direction: DirectionOut})
	want := []string{"A", "B", "C", "D"}
	if !equalStrings(path, want) {
		t.Fatalf("ShortestPath(A,D) = %v, want %v", path, want)
	}

	if got := ShortestPath(idx, "D", "A", Options{Direction: DirectionOut}); got != nil {
		t.Fatalf("ShortestPath(D,A) outgoing-only = %v, want nil", got)
	}

	if got := ShortestPath(idx, "A", "A", Options{Direction: DirectionOut}); !equalStrings(got, []string{"A"}) {
		t.Fatalf("ShortestPath(A,A) = %v, want [A]", got)
	}
}

func TestConnectedComponents(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"A", "B", "C", "X", "Y"} {
		seedEntity(t, store, name)
	}
	seedRelation(t, store, "A", "B", "knows")
	seedRelation(t, store, "B", "C", "knows")
	seedRelation(t, store, "X", "Y", "knows")

	components := ConnectedComponents(store.Indexes(), []string{"A", "B", "C", "X", "Y"})
	if len(components) != 2 {
		t.Fatalf("expected 2 components, got %d: %v", len(components), components)
	}
	if !equalStrings(components[0], []string{"A", "B", "C"}) {
		t.Errorf("component 0 = %v, want [A B C]", components[0])
	}
	if !equalStrings(components[1], []string{"X", "Y"}) {
		t.Errorf("component 1 = %v, want [X Y]", components[1])
	}
}

func TestDegreeCentrality(t *testing.T) {
	_, idx := buildChain(t)
	degrees := DegreeCentrality(idx, []string{"A", "B", "C", "D"})
	if degrees["A"] != 1 || degrees["D"] != 1 {
		t.Errorf("endpoint degrees = A:%d D:%d, want 1 and 1", degrees["A"], degrees["D"])
	}
	if degrees["B"] != 2 || degrees["C"] != 2 {
		t.Errorf("middle degrees = B:%d C:%d, want 2 and 2", degrees["B"], degrees["C"])
	}
}

func TestBetweennessCentralityMiddleHighest(t *testing.T) {
	_, idx := buildChain(t)
	names := []string{"A", "B", "C", "D"}
	centrality := BetweennessCentrality(idx, names)

	if centrality["B"] <= centrality["A"] || centrality["C"] <= centrality["A"] {
		t.Fatalf("expected B and C to have higher betweenness than endpoint A: %+v", centrality)
	}
	if centrality["A"] != 0 || centrality["D"] != 0 {
		t.Errorf("endpoints should have zero betweenness on a chain, got A:%f D:%f", centrality["A"], centrality["D"])
	}
}

func TestPageRankSumsToOne(t *testing.T) {
	_, idx := buildChain(t)
	names := []string{"A", "B", "C", "D"}
	ranks := PageRank(idx, names, DefaultPageRankOptions())

	var total float64
	for _, name := range names {
		total += ranks[name]
	}
	if total < 0.99 || total > 1.01 {
		t.Fatalf("PageRank total = %f, want ~1.0", total)
	}
	// D is a sink reached from the rest of the chain and should accumulate
	// more rank than the source node A.
	if ranks["D"] <= ranks["A"] {
		t.Errorf("expected sink D to outrank source A: %+v", ranks)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
