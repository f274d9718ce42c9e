package graphengine

import (
	"context"
	"fmt"

	"github.com/graphkeep/graphkeep/internal/graph"
)

// wouldCycle reports whether setting child's parent to candidateParent
// would make the parent chain re-enter child (spec.md §3 invariant 4).
// It walks ParentName via Store.GetEntity rather than the store's
// internal cache, since the facade lives outside the graph package.
func (f *Facade) wouldCycle(child, candidateParent string) bool {
	if child == candidateParent {
		return true
	}
	seen := map[string]bool{child: true}
	cur := candidateParent
	for cur != "" {
		if seen[cur] {
			return true
		}
		seen[cur] = true
		e, ok := f.store.GetEntity(cur)
		if !ok {
			return false
		}
		cur = e.ParentName
	}
	return false
}

// SetEntityParent sets (or, if parent is nil, clears) name's parent,
// rejecting a change that would introduce a cycle (spec.md §3 invariant 4).
func (f *Facade) SetEntityParent(ctx context.Context, name string, parent *string) error {
	if _, ok := f.store.GetEntity(name); !ok {
		return fmt.Errorf("%w: entity %q", graph.ErrNotFound, name)
	}
	if parent == nil || *parent == "" {
		return f.recordStoreWrite(ctx, "update_entity", func() error {
			return f.store.UpdateEntity(ctx, name, &graph.PartialUpdate{ClearParent: true})
		})
	}
	if _, ok := f.store.GetEntity(*parent); !ok {
		return fmt.Errorf("%w: parent_name %q does not exist", graph.ErrValidation, *parent)
	}
	if f.wouldCycle(name, *parent) {
		return fmt.Errorf("%w: setting parent %q on %q would cycle", graph.ErrCycle, *parent, name)
	}
	return f.recordStoreWrite(ctx, "update_entity", func() error {
		return f.store.UpdateEntity(ctx, name, &graph.PartialUpdate{ParentName: parent})
	})
}

// GetChildren returns every entity whose parent_name is name.
func (f *Facade) GetChildren(name string) []*graph.Entity {
	var children []*graph.Entity
	for _, e := range f.store.AllEntities() {
		if e.ParentName == name {
			children = append(children, e)
		}
	}
	return children
}

// GetDescendants returns every entity reachable by repeatedly following
// parent_name back to name, breadth-first.
func (f *Facade) GetDescendants(name string) []*graph.Entity {
	all := f.store.AllEntities()
	byParent := make(map[string][]*graph.Entity, len(all))
	for _, e := range all {
		if e.ParentName != "" {
			byParent[e.ParentName] = append(byParent[e.ParentName], e)
		}
	}

	var descendants []*graph.Entity
	queue := []string{name}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range byParent[cur] {
			descendants = append(descendants, child)
			queue = append(queue, child.Name)
		}
	}
	return descendants
}

// GetAncestors returns name's parent chain, nearest first, stopping at
// the first dangling or missing parent_name.
func (f *Facade) GetAncestors(name string) []*graph.Entity {
	var ancestors []*graph.Entity
	e, ok := f.store.GetEntity(name)
	if !ok {
		return nil
	}
	cur := e.ParentName
	seen := map[string]bool{name: true}
	for cur != "" && !seen[cur] {
		seen[cur] = true
		parent, ok := f.store.GetEntity(cur)
		if !ok {
			break
		}
		ancestors = append(ancestors, parent)
		cur = parent.ParentName
	}
	return ancestors
}
