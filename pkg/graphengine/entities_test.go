package graphengine

import (
	"context"
	"errors"
	"testing"

	"github.com/graphkeep/graphkeep/internal/graph"
)

func TestCreateEntitiesSkipsDuplicates(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	created, err := f.CreateEntities(ctx, []NewEntity{
		{Name: "alice", EntityType: "person"},
		{Name: "alice", EntityType: "person"},
		{Name: "bob", EntityType: "person"},
	})
	if err != nil {
		t.Fatalf("CreateEntities: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 created entities, got %d", len(created))
	}
}

func TestCreateEntitiesRejectsBadImportance(t *testing.T) {
	f := newTestFacade(t)
	bad := 11
	_, err := f.CreateEntities(context.Background(), []NewEntity{
		{Name: "alice", EntityType: "person", Importance: &bad},
	})
	if !errors.Is(err, graph.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreateEntitiesRejectsCyclicParent(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	if _, err := f.CreateEntities(ctx, []NewEntity{{Name: "root", EntityType: "folder"}}); err != nil {
		t.Fatalf("create root: %v", err)
	}
	if _, err := f.CreateEntities(ctx, []NewEntity{{Name: "child", EntityType: "folder", ParentName: "root"}}); err != nil {
		t.Fatalf("create child: %v", err)
	}
	// root -> child would make child its own ancestor's descendant AND ancestor.
	if _, err := f.UpdateEntity(ctx, "root", EntityUpdate{ParentName: strPtr("child")}); !errors.Is(err, graph.ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestUpdateEntityReturnsFalseForMissing(t *testing.T) {
	f := newTestFacade(t)
	ok, err := f.UpdateEntity(context.Background(), "ghost", EntityUpdate{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected false for a missing entity")
	}
}

func TestAddAndRemoveTags(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	if _, err := f.CreateEntities(ctx, []NewEntity{{Name: "alice", EntityType: "person", Tags: []string{"VIP"}}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.AddTags(ctx, "alice", []string{"Friend", "vip"}); err != nil {
		t.Fatalf("AddTags: %v", err)
	}
	e, _ := f.Store().GetEntity("alice")
	if len(e.Tags) != 2 {
		t.Fatalf("expected 2 deduped tags, got %v", e.Tags)
	}
	if err := f.RemoveTags(ctx, "alice", []string{"FRIEND"}); err != nil {
		t.Fatalf("RemoveTags: %v", err)
	}
	e, _ = f.Store().GetEntity("alice")
	if len(e.Tags) != 1 || e.Tags[0] != "vip" {
		t.Fatalf("expected only vip to remain, got %v", e.Tags)
	}
}

func TestSetImportanceRejectsOutOfRange(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	if _, err := f.CreateEntities(ctx, []NewEntity{{Name: "alice", EntityType: "person"}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.SetImportance(ctx, "alice", -1); !errors.Is(err, graph.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := f.SetImportance(ctx, "alice", 7); err != nil {
		t.Fatalf("SetImportance: %v", err)
	}
}

func TestAddObservationsSkipsDuplicatesAcrossBatch(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	if _, err := f.CreateEntities(ctx, []NewEntity{
		{Name: "alice", EntityType: "person", Observations: []string{"likes tea"}},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	results, err := f.AddObservations(ctx, []ObservationAdd{
		{Entity: "alice", Contents: []string{"likes tea", "likes coffee"}},
	})
	if err != nil {
		t.Fatalf("AddObservations: %v", err)
	}
	if len(results) != 1 || len(results[0].Added) != 1 || results[0].Added[0] != "likes coffee" {
		t.Fatalf("expected only the new observation to be added, got %+v", results)
	}
}

func TestAddObservationsErrorsOnMissingEntity(t *testing.T) {
	f := newTestFacade(t)
	_, err := f.AddObservations(context.Background(), []ObservationAdd{{Entity: "ghost", Contents: []string{"x"}}})
	if !errors.Is(err, graph.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteObservationsRemovesNamedContent(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	if _, err := f.CreateEntities(ctx, []NewEntity{
		{Name: "alice", EntityType: "person", Observations: []string{"likes tea", "likes coffee"}},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.DeleteObservations(ctx, []ObservationDelete{{Entity: "alice", Contents: []string{"likes tea"}}}); err != nil {
		t.Fatalf("DeleteObservations: %v", err)
	}
	e, _ := f.Store().GetEntity("alice")
	if len(e.Observations) != 1 || e.Observations[0] != "likes coffee" {
		t.Fatalf("expected only 'likes coffee' to remain, got %v", e.Observations)
	}
}

func TestDeleteEntitiesCascadesRelationsAndSkipsMissing(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	if _, err := f.CreateEntities(ctx, []NewEntity{
		{Name: "alice", EntityType: "person"},
		{Name: "bob", EntityType: "person"},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.CreateRelations(ctx, []NewRelation{{From: "alice", To: "bob", RelationType: "knows"}}); err != nil {
		t.Fatalf("create relation: %v", err)
	}

	deleted, err := f.DeleteEntities(ctx, []string{"alice", "ghost"})
	if err != nil {
		t.Fatalf("DeleteEntities: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deletion (ghost skipped), got %d", deleted)
	}
	if len(f.Store().Indexes().Outgoing("alice")) != 0 {
		t.Fatal("expected alice's relations to be gone after cascade delete")
	}
}

func strPtr(s string) *string { return &s }
