package graph

import (
	"context"
	"sort"
	"sync"
)

// Store is the common contract both backends (§4.B append-only log,
// §4.C relational) implement. A single write mutex inside each
// implementation serializes every mutator; readers observe the cache
// before-or-after a writer, never mid-mutation (spec.md §5).
type Store interface {
	EnsureLoaded(ctx context.Context) error
	LoadGraph(ctx context.Context) (*Graph, error)
	GraphForMutation(ctx context.Context) (*Graph, error)
	SaveGraph(ctx context.Context, g *Graph) error

	AppendEntity(ctx context.Context, e *Entity) error
	AppendRelation(ctx context.Context, r *Relation) error
	UpdateEntity(ctx context.Context, name string, p *PartialUpdate) error
	DeleteEntity(ctx context.Context, name string) ([]*Relation, error)
	DeleteRelation(ctx context.Context, from, to, relationType string) error

	Compact(ctx context.Context) error
	ClearCache()

	Indexes() *Indexes
	Events() *Bus

	GetEntity(name string) (*Entity, bool)
	AllEntities() []*Entity
	AllAgentEntities() []*Entity
}

// cache is the shared in-memory state both backends protect with the
// same mutex they use to serialize persistence. It is never exposed
// directly; LoadGraph/GraphForMutation always return deep clones.
type cache struct {
	mu        sync.Mutex
	loaded    bool
	entities  map[string]*Entity
	relations map[string]*Relation // keyed by Relation.Key()
	idx       *Indexes
	bus       *Bus
}

func newCache() *cache {
	return &cache{
		entities:  make(map[string]*Entity),
		relations: make(map[string]*Relation),
		idx:       NewIndexes(),
		bus:       &Bus{},
	}
}

// snapshot returns a deep-cloned Graph safe for a caller to read without
// holding any lock.
func (c *cache) snapshot() *Graph {
	g := &Graph{
		Entities:  make([]*Entity, 0, len(c.entities)),
		Relations: make([]*Relation, 0, len(c.relations)),
	}
	for _, e := range c.entities {
		g.Entities = append(g.Entities, e.Clone())
	}
	for _, r := range c.relations {
		g.Relations = append(g.Relations, r.Clone())
	}
	sort.Slice(g.Entities, func(i, j int) bool { return g.Entities[i].Name < g.Entities[j].Name })
	sort.Slice(g.Relations, func(i, j int) bool {
		if g.Relations[i].From != g.Relations[j].From {
			return g.Relations[i].From < g.Relations[j].From
		}
		if g.Relations[i].To != g.Relations[j].To {
			return g.Relations[i].To < g.Relations[j].To
		}
		return g.Relations[i].RelationType < g.Relations[j].RelationType
	})
	return g
}

// rebuildFrom discards and recomputes the cache + indexes from g. Callers
// must hold c.mu.
func (c *cache) rebuildFrom(g *Graph) {
	c.entities = make(map[string]*Entity, len(g.Entities))
	for _, e := range g.Entities {
		c.entities[e.Name] = e.Clone()
	}
	c.relations = make(map[string]*Relation, len(g.Relations))
	for _, r := range g.Relations {
		c.relations[r.Key()] = r.Clone()
	}
	c.idx = NewIndexes()
	c.idx.Rebuild(&Graph{EntitiesSlice(c.entities), RelationsSlice(c.relations)})
	c.loaded = true
}

// EntitiesSlice converts the name->entity map into a slice, for Rebuild calls.
func EntitiesSlice(m map[string]*Entity) []*Entity {
	out := make([]*Entity, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	return out
}

// RelationsSlice converts the key->relation map into a slice.
func RelationsSlice(m map[string]*Relation) []*Relation {
	out := make([]*Relation, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	return out
}

// putEntity installs e in the cache (last-writer-wins on name collision,
// per spec.md §4.B) and maintains the indexes incrementally. Callers
// must hold c.mu.
func (c *cache) putEntity(e *Entity) {
	c.entities[e.Name] = e
	c.idx.AddEntity(e)
}

// putRelation installs r in the cache. Callers must hold c.mu.
func (c *cache) putRelation(r *Relation) {
	c.relations[r.Key()] = r
	c.idx.AddRelation(r)
}

// removeEntity drops e and cascades to every relation touching it
// (spec.md §3 invariant 5). Callers must hold c.mu.
func (c *cache) removeEntity(name string) []*Relation {
	delete(c.entities, name)
	removed := c.idx.RemoveEntity(name)
	for _, r := range removed {
		delete(c.relations, r.Key())
	}
	return removed
}

// removeRelation drops a single relation. Callers must hold c.mu.
func (c *cache) removeRelation(from, to, relationType string) bool {
	key := Relation{From: from, To: to, RelationType: relationType}.Key()
	r, ok := c.relations[key]
	if !ok {
		return false
	}
	delete(c.relations, key)
	c.idx.RemoveRelation(r)
	return true
}

// wouldCycle reports whether setting child's parent to candidateParent
// would make the parent chain re-enter child (spec.md §3 invariant 4).
// Callers must hold c.mu (or otherwise guarantee c.entities is stable).
func (c *cache) wouldCycle(child, candidateParent string) bool {
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
		e, ok := c.entities[cur]
		if !ok {
			return false
		}
		cur = e.ParentName
	}
	return false
}

// applyPartial mutates e in place according to p, honoring the overlay
// rules in spec.md §3 (ClearExpiresAt/ClearParent are explicit because a
// PartialUpdate field of nil means "leave untouched", not "clear").
func applyPartial(e *Entity, p *PartialUpdate) {
	if p.EntityType != nil {
		e.EntityType = *p.EntityType
	}
	if p.Tags != nil {
		e.Tags = p.Tags
	}
	if p.Importance != nil {
		e.Importance = p.Importance
	}
	if p.ClearParent {
		e.ParentName = ""
	} else if p.ParentName != nil {
		e.ParentName = *p.ParentName
	}
	if p.MemoryType != nil {
		e.MemoryType = *p.MemoryType
	}
	if p.SessionID != nil {
		e.SessionID = *p.SessionID
	}
	if p.TaskID != nil {
		e.TaskID = *p.TaskID
	}
	if p.ClearExpiresAt {
		e.ExpiresAt = nil
	} else if p.ExpiresAt != nil {
		e.ExpiresAt = p.ExpiresAt
	}
	if p.IsWorkingMemory != nil {
		e.IsWorkingMemory = *p.IsWorkingMemory
	}
	if p.AccessCount != nil {
		e.AccessCount = *p.AccessCount
	}
	if p.LastAccessedAt != nil {
		e.LastAccessedAt = p.LastAccessedAt
	}
	if p.Confidence != nil {
		e.Confidence = p.Confidence
	}
	if p.ConfirmationCount != nil {
		e.ConfirmationCount = *p.ConfirmationCount
	}
	if p.MarkedForPromotion != nil {
		e.MarkedForPromotion = *p.MarkedForPromotion
	}
	if p.Visibility != nil {
		e.Visibility = *p.Visibility
	}
	if p.PromotedAt != nil {
		e.PromotedAt = p.PromotedAt
	}
	if p.PromotedFrom != nil {
		e.PromotedFrom = *p.PromotedFrom
	}
}
