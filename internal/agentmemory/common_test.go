package agentmemory

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

func seedAgentEntity(t *testing.T, store graph.Store, e *graph.Entity) {
	t.Helper()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.LastModified.IsZero() {
		e.LastModified = e.CreatedAt
	}
	if err := store.AppendEntity(context.Background(), e); err != nil {
		t.Fatalf("AppendEntity(%s): %v", e.Name, err)
	}
}

func intPtr(v int) *int { return &v }
