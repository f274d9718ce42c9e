package graph

import (
	"regexp"
	"strings"
)

// wordPattern matches §4.A's "alphanumeric, length >= 2" observation tokens.
var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// LowercaseFields is the pre-lowercased field cache (spec.md §4.A).
type LowercaseFields struct {
	NameLC         string
	TypeLC         string
	ObservationsLC []string
	TagsLC         []string
}

// Indexes holds every derived view spec.md §4.A requires. It never owns
// the canonical entities/relations — those live in the store's cache —
// but it is rebuilt from scratch on load and maintained incrementally on
// every mutation so it is always consistent with whatever the cache
// currently holds (spec.md §3 invariant 6).
type Indexes struct {
	NameIndex      map[string]*Entity
	TypeIndex      map[string]map[string]struct{}
	LowercaseCache map[string]*LowercaseFields

	fromIndex map[string]map[string]*Relation // from -> key -> relation
	toIndex   map[string]map[string]*Relation // to -> key -> relation

	observationIndex map[string]map[string]struct{} // word -> entity names
	nameToWords      map[string]map[string]struct{} // entity name -> words
}

// NewIndexes returns an empty index set.
func NewIndexes() *Indexes {
	return &Indexes{
		NameIndex:        make(map[string]*Entity),
		TypeIndex:        make(map[string]map[string]struct{}),
		LowercaseCache:   make(map[string]*LowercaseFields),
		fromIndex:        make(map[string]map[string]*Relation),
		toIndex:          make(map[string]map[string]*Relation),
		observationIndex: make(map[string]map[string]struct{}),
		nameToWords:      make(map[string]map[string]struct{}),
	}
}

// Rebuild discards all derived state and recomputes it from g. Used on
// load and after compaction.
func (idx *Indexes) Rebuild(g *Graph) {
	*idx = *NewIndexes()
	for _, e := range g.Entities {
		idx.indexEntity(e)
	}
	for _, r := range g.Relations {
		idx.indexRelation(r)
	}
}

func (idx *Indexes) indexEntity(e *Entity) {
	idx.NameIndex[e.Name] = e

	typeLC := strings.ToLower(e.EntityType)
	if idx.TypeIndex[typeLC] == nil {
		idx.TypeIndex[typeLC] = make(map[string]struct{})
	}
	idx.TypeIndex[typeLC][e.Name] = struct{}{}

	lc := &LowercaseFields{
		NameLC: strings.ToLower(e.Name),
		TypeLC: typeLC,
	}
	for _, o := range e.Observations {
		lc.ObservationsLC = append(lc.ObservationsLC, strings.ToLower(o))
	}
	for _, t := range e.Tags {
		lc.TagsLC = append(lc.TagsLC, strings.ToLower(t))
	}
	idx.LowercaseCache[e.Name] = lc

	idx.indexObservations(e)
}

func (idx *Indexes) indexObservations(e *Entity) {
	words := make(map[string]struct{})
	for _, o := range e.Observations {
		for _, w := range wordPattern.FindAllString(strings.ToLower(o), -1) {
			if len(w) < 2 {
				continue
			}
			words[w] = struct{}{}
		}
	}
	idx.nameToWords[e.Name] = words
	for w := range words {
		if idx.observationIndex[w] == nil {
			idx.observationIndex[w] = make(map[string]struct{})
		}
		idx.observationIndex[w][e.Name] = struct{}{}
	}
}

func (idx *Indexes) deindexObservations(name string) {
	for w := range idx.nameToWords[name] {
		delete(idx.observationIndex[w], name)
		if len(idx.observationIndex[w]) == 0 {
			delete(idx.observationIndex, w)
		}
	}
	delete(idx.nameToWords, name)
}

func (idx *Indexes) indexRelation(r *Relation) {
	if idx.fromIndex[r.From] == nil {
		idx.fromIndex[r.From] = make(map[string]*Relation)
	}
	idx.fromIndex[r.From][r.Key()] = r

	if idx.toIndex[r.To] == nil {
		idx.toIndex[r.To] = make(map[string]*Relation)
	}
	idx.toIndex[r.To][r.Key()] = r
}

func (idx *Indexes) deindexRelation(r *Relation) {
	if m, ok := idx.fromIndex[r.From]; ok {
		delete(m, r.Key())
		if len(m) == 0 {
			delete(idx.fromIndex, r.From)
		}
	}
	if m, ok := idx.toIndex[r.To]; ok {
		delete(m, r.Key())
		if len(m) == 0 {
			delete(idx.toIndex, r.To)
		}
	}
}

// AddEntity incrementally indexes a newly-created or updated entity.
func (idx *Indexes) AddEntity(e *Entity) {
	if old, ok := idx.NameIndex[e.Name]; ok {
		oldTypeLC := strings.ToLower(old.EntityType)
		delete(idx.TypeIndex[oldTypeLC], e.Name)
		idx.deindexObservations(e.Name)
	}
	idx.indexEntity(e)
}

// RemoveEntity drops e from every index, and every relation touching it.
func (idx *Indexes) RemoveEntity(name string) []*Relation {
	if e, ok := idx.NameIndex[name]; ok {
		delete(idx.TypeIndex[strings.ToLower(e.EntityType)], name)
	}
	delete(idx.NameIndex, name)
	delete(idx.LowercaseCache, name)
	idx.deindexObservations(name)

	var removed []*Relation
	for _, r := range idx.fromIndex[name] {
		removed = append(removed, r)
	}
	for _, r := range idx.toIndex[name] {
		if _, ok := idx.fromIndex[name][r.Key()]; !ok {
			removed = append(removed, r)
		}
	}
	for _, r := range removed {
		idx.deindexRelation(r)
	}
	delete(idx.fromIndex, name)
	delete(idx.toIndex, name)
	return removed
}

// AddRelation incrementally indexes a newly-created relation.
func (idx *Indexes) AddRelation(r *Relation) {
	idx.indexRelation(r)
}

// RemoveRelation removes r from the from/to indexes.
func (idx *Indexes) RemoveRelation(r *Relation) {
	idx.deindexRelation(r)
}

// Outgoing returns all relations with From == name.
func (idx *Indexes) Outgoing(name string) []*Relation {
	out := make([]*Relation, 0, len(idx.fromIndex[name]))
	for _, r := range idx.fromIndex[name] {
		out = append(out, r)
	}
	return out
}

// Incoming returns all relations with To == name.
func (idx *Indexes) Incoming(name string) []*Relation {
	out := make([]*Relation, 0, len(idx.toIndex[name]))
	for _, r := range idx.toIndex[name] {
		out = append(out, r)
	}
	return out
}

// Bidirectional unions Outgoing and Incoming, deduplicated by key.
func (idx *Indexes) Bidirectional(name string) []*Relation {
	seen := make(map[string]*Relation)
	for _, r := range idx.Outgoing(name) {
		seen[r.Key()] = r
	}
	for _, r := range idx.Incoming(name) {
		seen[r.Key()] = r
	}
	out := make([]*Relation, 0, len(seen))
	for _, r := range seen {
		out = append(out, r)
	}
	return out
}

// ByType returns the names of every entity whose (lowercased) type matches.
func (idx *Indexes) ByType(entityType string) []string {
	set := idx.TypeIndex[strings.ToLower(entityType)]
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	return out
}

// ObservationMatches returns the set of entity names whose observations
// contain the given (already-lowercased) token.
func (idx *Indexes) ObservationMatches(token string) map[string]struct{} {
	return idx.observationIndex[strings.ToLower(token)]
}
