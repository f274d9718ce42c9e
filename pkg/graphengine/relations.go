package graphengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/graphkeep/graphkeep/internal/graph"
)

// NewRelation is the host-facing shape for create_relations (spec.md §6).
type NewRelation struct {
	From         string
	To           string
	RelationType string
}

// CreateRelations appends each relation, skipping ones whose composite
// key already exists (spec.md §3 invariant 2). Endpoint entities are not
// required to exist on the log backend (spec.md §3 "may reference
// entities that do not (yet) exist"); the relational backend enforces
// that invariant itself via foreign keys at save time.
func (f *Facade) CreateRelations(ctx context.Context, relations []NewRelation) ([]*graph.Relation, error) {
	created := make([]*graph.Relation, 0, len(relations))
	now := time.Now()

	for _, nr := range relations {
		from, to, relType := strings.TrimSpace(nr.From), strings.TrimSpace(nr.To), strings.TrimSpace(nr.RelationType)
		if from == "" || to == "" || relType == "" {
			return created, fmt.Errorf("%w: from, to, and relation_type are all required", graph.ErrValidation)
		}
		key := graph.Relation{From: from, To: to, RelationType: relType}.Key()
		if existingKeyPresent(f.store.Indexes().Outgoing(from), key) {
			continue
		}

		r := &graph.Relation{From: from, To: to, RelationType: relType, CreatedAt: now, LastModified: now}
		if err := f.recordStoreWrite(ctx, "append_relation", func() error { return f.store.AppendRelation(ctx, r) }); err != nil {
			return created, fmt.Errorf("graphengine: create relation %s->%s: %w", from, to, err)
		}
		created = append(created, r)
	}

	log.LogOperation("create_relations", "requested", len(relations), "created", len(created))
	return created, nil
}

func existingKeyPresent(relations []*graph.Relation, key string) bool {
	for _, r := range relations {
		if r.Key() == key {
			return true
		}
	}
	return false
}

// RelationRef identifies a relation to delete by its composite key.
type RelationRef struct {
	From         string
	To           string
	RelationType string
}

// DeleteRelations removes each named relation, skipping ones that don't
// exist rather than erroring.
func (f *Facade) DeleteRelations(ctx context.Context, refs []RelationRef) (deleted int, err error) {
	for _, r := range refs {
		err := f.recordStoreWrite(ctx, "delete_relation", func() error {
			return f.store.DeleteRelation(ctx, r.From, r.To, r.RelationType)
		})
		if err != nil {
			if errors.Is(err, graph.ErrNotFound) {
				continue
			}
			return deleted, fmt.Errorf("graphengine: delete relation %s->%s: %w", r.From, r.To, err)
		}
		deleted++
	}
	return deleted, nil
}
