package graphengine

import (
	"context"
	"errors"
	"testing"

	"github.com/graphkeep/graphkeep/internal/graph"
)

func seedHierarchy(t *testing.T, f *Facade) {
	t.Helper()
	ctx := context.Background()
	_, err := f.CreateEntities(ctx, []NewEntity{
		{Name: "root", EntityType: "folder"},
		{Name: "child-a", EntityType: "folder", ParentName: "root"},
		{Name: "child-b", EntityType: "folder", ParentName: "root"},
		{Name: "grandchild", EntityType: "folder", ParentName: "child-a"},
	})
	if err != nil {
		t.Fatalf("seedHierarchy: %v", err)
	}
}

func TestGetChildrenReturnsDirectChildrenOnly(t *testing.T) {
	f := newTestFacade(t)
	seedHierarchy(t, f)
	children := f.GetChildren("root")
	if len(children) != 2 {
		t.Fatalf("expected 2 direct children, got %d", len(children))
	}
}

func TestGetDescendantsReturnsEntireSubtree(t *testing.T) {
	f := newTestFacade(t)
	seedHierarchy(t, f)
	descendants := f.GetDescendants("root")
	if len(descendants) != 3 {
		t.Fatalf("expected 3 descendants, got %d", len(descendants))
	}
}

func TestGetAncestorsWalksUpToRoot(t *testing.T) {
	f := newTestFacade(t)
	seedHierarchy(t, f)
	ancestors := f.GetAncestors("grandchild")
	if len(ancestors) != 2 || ancestors[0].Name != "child-a" || ancestors[1].Name != "root" {
		t.Fatalf("expected [child-a, root], got %+v", ancestors)
	}
}

func TestSetEntityParentRejectsCycle(t *testing.T) {
	f := newTestFacade(t)
	seedHierarchy(t, f)
	err := f.SetEntityParent(context.Background(), "root", strPtr("grandchild"))
	if !errors.Is(err, graph.ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestSetEntityParentNilClearsParent(t *testing.T) {
	f := newTestFacade(t)
	seedHierarchy(t, f)
	if err := f.SetEntityParent(context.Background(), "child-a", nil); err != nil {
		t.Fatalf("SetEntityParent: %v", err)
	}
	e, _ := f.Store().GetEntity("child-a")
	if e.ParentName != "" {
		t.Fatalf("expected cleared parent, got %q", e.ParentName)
	}
}

func TestSetEntityParentRejectsMissingEntity(t *testing.T) {
	f := newTestFacade(t)
	err := f.SetEntityParent(context.Background(), "ghost", strPtr("root"))
	if !errors.Is(err, graph.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
