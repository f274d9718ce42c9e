package graphengine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/graphkeep/graphkeep/internal/graph"
)

// NewEntity is the host-facing shape for create_entities (spec.md §6).
// Name and EntityType are required; the rest default per spec.md §3.
type NewEntity struct {
	Name         string
	EntityType   string
	Observations []string
	Tags         []string
	Importance   *int
	ParentName   string
}

// CreateEntities validates and appends each entity in order, skipping (not
// failing on) names that already exist — last-writer-wins is the store's
// job on the log backend; the facade instead treats a duplicate name as a
// conflict the caller can see in the returned slice's shorter length.
func (f *Facade) CreateEntities(ctx context.Context, entities []NewEntity) ([]*graph.Entity, error) {
	created := make([]*graph.Entity, 0, len(entities))
	now := time.Now()

	for _, ne := range entities {
		name := strings.TrimSpace(ne.Name)
		if name == "" {
			return created, fmt.Errorf("%w: entity name is required", graph.ErrValidation)
		}
		if _, exists := f.store.GetEntity(name); exists {
			continue
		}
		if ne.Importance != nil && (*ne.Importance < 0 || *ne.Importance > 10) {
			return created, fmt.Errorf("%w: importance must be 0..10", graph.ErrValidation)
		}
		if ne.ParentName != "" {
			if _, ok := f.store.GetEntity(ne.ParentName); !ok {
				return created, fmt.Errorf("%w: parent_name %q does not exist", graph.ErrValidation, ne.ParentName)
			}
			if f.wouldCycle(name, ne.ParentName) {
				return created, fmt.Errorf("%w: setting parent %q on %q would cycle", graph.ErrCycle, ne.ParentName, name)
			}
		}

		obs := dedupObservations(ne.Observations)
		e := &graph.Entity{
			Name:         name,
			EntityType:   strings.ToLower(ne.EntityType),
			Observations: obs,
			Tags:         normalizeTags(ne.Tags),
			Importance:   ne.Importance,
			ParentName:   ne.ParentName,
			CreatedAt:    now,
			LastModified: now,
		}
		if err := f.recordStoreWrite(ctx, "append_entity", func() error { return f.store.AppendEntity(ctx, e) }); err != nil {
			return created, fmt.Errorf("graphengine: create entity %q: %w", name, err)
		}
		created = append(created, e)
	}

	log.LogOperation("create_entities", "requested", len(entities), "created", len(created))
	return created, nil
}

// EntityUpdate is the host-facing shape for update_entity (spec.md §6).
// Nil fields are left untouched, matching graph.PartialUpdate's contract.
type EntityUpdate struct {
	EntityType  *string
	Tags        []string
	Importance  *int
	ParentName  *string
	ClearParent bool
}

// UpdateEntity applies a partial update to name, returning false (not an
// error) if name does not exist, matching spec.md §6's `-> bool` surface.
func (f *Facade) UpdateEntity(ctx context.Context, name string, upd EntityUpdate) (bool, error) {
	if _, ok := f.store.GetEntity(name); !ok {
		return false, nil
	}
	if upd.Importance != nil && (*upd.Importance < 0 || *upd.Importance > 10) {
		return false, fmt.Errorf("%w: importance must be 0..10", graph.ErrValidation)
	}
	if !upd.ClearParent && upd.ParentName != nil && *upd.ParentName != "" {
		if _, ok := f.store.GetEntity(*upd.ParentName); !ok {
			return false, fmt.Errorf("%w: parent_name %q does not exist", graph.ErrValidation, *upd.ParentName)
		}
		if f.wouldCycle(name, *upd.ParentName) {
			return false, fmt.Errorf("%w: setting parent %q on %q would cycle", graph.ErrCycle, *upd.ParentName, name)
		}
	}

	p := &graph.PartialUpdate{
		EntityType:  upd.EntityType,
		Importance:  upd.Importance,
		ParentName:  upd.ParentName,
		ClearParent: upd.ClearParent,
	}
	if upd.Tags != nil {
		p.Tags = normalizeTags(upd.Tags)
	}
	if err := f.recordStoreWrite(ctx, "update_entity", func() error { return f.store.UpdateEntity(ctx, name, p) }); err != nil {
		return false, fmt.Errorf("graphengine: update entity %q: %w", name, err)
	}
	return true, nil
}

// DeleteEntities removes each named entity, cascading to its relations
// (spec.md §3 invariant 5). Missing names are skipped, not errored.
func (f *Facade) DeleteEntities(ctx context.Context, names []string) (deleted int, err error) {
	for _, name := range names {
		if _, ok := f.store.GetEntity(name); !ok {
			continue
		}
		err := f.recordStoreWrite(ctx, "delete_entity", func() error {
			_, err := f.store.DeleteEntity(ctx, name)
			return err
		})
		if err != nil {
			return deleted, fmt.Errorf("graphengine: delete entity %q: %w", name, err)
		}
		deleted++
	}
	log.LogOperation("delete_entities", "requested", len(names), "deleted", deleted)
	return deleted, nil
}

// AddTags adds tags (normalized lowercase, deduplicated) to name.
func (f *Facade) AddTags(ctx context.Context, name string, tags []string) error {
	e, ok := f.store.GetEntity(name)
	if !ok {
		return fmt.Errorf("%w: entity %q", graph.ErrNotFound, name)
	}
	merged := append(append([]string(nil), e.Tags...), tags...)
	p := &graph.PartialUpdate{Tags: normalizeTags(merged)}
	return f.recordStoreWrite(ctx, "update_entity", func() error { return f.store.UpdateEntity(ctx, name, p) })
}

// RemoveTags removes tags from name, case-insensitively.
func (f *Facade) RemoveTags(ctx context.Context, name string, tags []string) error {
	e, ok := f.store.GetEntity(name)
	if !ok {
		return fmt.Errorf("%w: entity %q", graph.ErrNotFound, name)
	}
	remove := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		remove[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	kept := make([]string, 0, len(e.Tags))
	for _, t := range e.Tags {
		if _, drop := remove[t]; !drop {
			kept = append(kept, t)
		}
	}
	p := &graph.PartialUpdate{Tags: kept}
	return f.recordStoreWrite(ctx, "update_entity", func() error { return f.store.UpdateEntity(ctx, name, p) })
}

// SetImportance sets name's importance, rejecting values outside 0..10
// (spec.md §3 invariant 8).
func (f *Facade) SetImportance(ctx context.Context, name string, importance int) error {
	if importance < 0 || importance > 10 {
		return fmt.Errorf("%w: importance must be 0..10, got %d", graph.ErrValidation, importance)
	}
	if _, ok := f.store.GetEntity(name); !ok {
		return fmt.Errorf("%w: entity %q", graph.ErrNotFound, name)
	}
	p := &graph.PartialUpdate{Importance: &importance}
	return f.recordStoreWrite(ctx, "update_entity", func() error { return f.store.UpdateEntity(ctx, name, p) })
}

// ObservationAdd names the entity an observation batch targets.
type ObservationAdd struct {
	Entity   string
	Contents []string
}

// ObservationResult reports how many of a batch's contents were newly
// added to an entity (duplicates within an entity are forbidden, spec.md
// §3 invariant 3, so a resubmission is a no-op rather than an error).
type ObservationResult struct {
	Entity string
	Added  []string
}

// AddObservations appends new observations to each named entity in a
// single bulk-replace mutation, skipping ones the entity already has.
func (f *Facade) AddObservations(ctx context.Context, batch []ObservationAdd) ([]ObservationResult, error) {
	g, err := f.store.GraphForMutation(ctx)
	if err != nil {
		return nil, fmt.Errorf("graphengine: add observations: %w", err)
	}
	byName := make(map[string]*graph.Entity, len(g.Entities))
	for _, e := range g.Entities {
		byName[e.Name] = e
	}

	now := time.Now()
	results := make([]ObservationResult, 0, len(batch))
	for _, b := range batch {
		e, ok := byName[b.Entity]
		if !ok {
			return nil, fmt.Errorf("%w: entity %q", graph.ErrNotFound, b.Entity)
		}
		var added []string
		for _, c := range b.Contents {
			if e.HasObservation(c) {
				continue
			}
			e.Observations = append(e.Observations, c)
			added = append(added, c)
		}
		if len(added) > 0 {
			e.LastModified = now
		}
		results = append(results, ObservationResult{Entity: b.Entity, Added: added})
	}

	if err := f.recordStoreWrite(ctx, "add_observations", func() error { return f.store.SaveGraph(ctx, g) }); err != nil {
		return nil, fmt.Errorf("graphengine: add observations: %w", err)
	}
	return results, nil
}

// ObservationDelete names the entity an observation-removal batch targets.
type ObservationDelete struct {
	Entity   string
	Contents []string
}

// DeleteObservations removes the named observations from each entity in
// a single bulk-replace mutation.
func (f *Facade) DeleteObservations(ctx context.Context, batch []ObservationDelete) error {
	g, err := f.store.GraphForMutation(ctx)
	if err != nil {
		return fmt.Errorf("graphengine: delete observations: %w", err)
	}
	byName := make(map[string]*graph.Entity, len(g.Entities))
	for _, e := range g.Entities {
		byName[e.Name] = e
	}

	now := time.Now()
	for _, b := range batch {
		e, ok := byName[b.Entity]
		if !ok {
			return fmt.Errorf("%w: entity %q", graph.ErrNotFound, b.Entity)
		}
		remove := make(map[string]struct{}, len(b.Contents))
		for _, c := range b.Contents {
			remove[c] = struct{}{}
		}
		kept := e.Observations[:0]
		for _, o := range e.Observations {
			if _, drop := remove[o]; !drop {
				kept = append(kept, o)
			}
		}
		e.Observations = kept
		e.LastModified = now
	}

	if err := f.recordStoreWrite(ctx, "delete_observations", func() error { return f.store.SaveGraph(ctx, g) }); err != nil {
		return fmt.Errorf("graphengine: delete observations: %w", err)
	}
	return nil
}

// dedupObservations drops duplicate observations within a single entity,
// keeping first-seen order (spec.md §3 invariant 3).
func dedupObservations(obs []string) []string {
	if len(obs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(obs))
	out := make([]string, 0, len(obs))
	for _, o := range obs {
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}

// normalizeTags lowercases, trims, and deduplicates tags, the way the
// teacher's internal/memory/service.go normalizes memory tags.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		norm := strings.ToLower(strings.TrimSpace(t))
		if norm != "" && !seen[norm] {
			seen[norm] = true
			out = append(out, norm)
		}
	}
	return out
}
