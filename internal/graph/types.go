// Package graph implements the core knowledge-graph store: entities,
// relations, derived indexes, and the two interchangeable persistence
// backends (append-only log and relational) described in spec.md §3–§4.B/C.
package graph

import (
	"strings"
	"time"
)

// MemoryType classifies an agent-memory entity. Zero value means the
// entity carries no agent-memory overlay (spec.md §3, §9 "agent overlay").
type MemoryType string

const (
	MemoryTypeNone      MemoryType = ""
	MemoryTypeWorking   MemoryType = "working"
	MemoryTypeEpisodic  MemoryType = "episodic"
	MemoryTypeSemantic  MemoryType = "semantic"
	MemoryTypeProcedural MemoryType = "procedural"
)

// Visibility controls who may see an agent-memory entity.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
	VisibilityPublic  Visibility = "public"
)

// Entity is a named node in the graph (spec.md §3).
//
// Name is the sole identity (case-sensitive exact match for equality,
// case-insensitive for search). Zero-value Importance/Confidence in Go
// terms means "unset"; callers compare against the pointer-typed fields
// below to distinguish "unset" from "explicitly zero".
type Entity struct {
	Name          string    `json:"name"`
	EntityType    string    `json:"entity_type"`
	Observations  []string  `json:"observations"`
	Tags          []string  `json:"tags,omitempty"`
	Importance    *int      `json:"importance,omitempty"`
	ParentName    string    `json:"parent_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastModified  time.Time `json:"last_modified"`

	// Agent-memory overlay. Recognized only when MemoryType != "".
	MemoryType          MemoryType `json:"memory_type,omitempty"`
	SessionID           string     `json:"session_id,omitempty"`
	TaskID              string     `json:"task_id,omitempty"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
	IsWorkingMemory     bool       `json:"is_working_memory,omitempty"`
	AccessCount         int        `json:"access_count,omitempty"`
	LastAccessedAt      *time.Time `json:"last_accessed_at,omitempty"`
	Confidence          *float64   `json:"confidence,omitempty"`
	ConfirmationCount   int        `json:"confirmation_count,omitempty"`
	MarkedForPromotion  bool       `json:"marked_for_promotion,omitempty"`
	Visibility          Visibility `json:"visibility,omitempty"`
	AgentID             string     `json:"agent_id,omitempty"`
	PromotedAt          *time.Time `json:"promoted_at,omitempty"`
	PromotedFrom        string     `json:"promoted_from,omitempty"`
}

// IsAgentEntity reports whether e carries the agent-memory overlay.
func (e *Entity) IsAgentEntity() bool {
	return e != nil && e.MemoryType != MemoryTypeNone
}

// ImportanceOrDefault returns e.Importance, defaulting to 5 per spec.md §3/§4.L.
func (e *Entity) ImportanceOrDefault() int {
	if e == nil || e.Importance == nil {
		return 5
	}
	return *e.Importance
}

// ConfidenceOrDefault returns e.Confidence, defaulting to 0.5 per spec.md §3.
func (e *Entity) ConfidenceOrDefault() float64 {
	if e == nil || e.Confidence == nil {
		return 0.5
	}
	return *e.Confidence
}

// Clone deep-copies e so callers mutating the result never alias store state.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	if e.Observations != nil {
		c.Observations = append([]string(nil), e.Observations...)
	}
	if e.Tags != nil {
		c.Tags = append([]string(nil), e.Tags...)
	}
	if e.Importance != nil {
		v := *e.Importance
		c.Importance = &v
	}
	if e.Confidence != nil {
		v := *e.Confidence
		c.Confidence = &v
	}
	if e.ExpiresAt != nil {
		v := *e.ExpiresAt
		c.ExpiresAt = &v
	}
	if e.LastAccessedAt != nil {
		v := *e.LastAccessedAt
		c.LastAccessedAt = &v
	}
	if e.PromotedAt != nil {
		v := *e.PromotedAt
		c.PromotedAt = &v
	}
	return &c
}

// HasObservation reports whether obs already exists (spec.md §3 invariant 3).
func (e *Entity) HasObservation(obs string) bool {
	for _, o := range e.Observations {
		if o == obs {
			return true
		}
	}
	return false
}

// HasTag reports whether tag (any case) is already present.
func (e *Entity) HasTag(tag string) bool {
	lc := strings.ToLower(tag)
	for _, t := range e.Tags {
		if t == lc {
			return true
		}
	}
	return false
}

// Relation is a directed typed edge (spec.md §3). The composite
// (From, To, RelationType) is the primary key.
type Relation struct {
	From         string    `json:"from"`
	To           string    `json:"to"`
	RelationType string    `json:"relation_type"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}

// Key returns the composite identity used for set membership / indexing.
func (r Relation) Key() string {
	return r.From + "\x00" + r.To + "\x00" + r.RelationType
}

// Clone returns a shallow copy (Relation has no slice/pointer fields).
func (r *Relation) Clone() *Relation {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Graph is a read-only snapshot of the whole store, as returned by
// LoadGraph / GraphForMutation (spec.md §4.B/C).
type Graph struct {
	Entities  []*Entity
	Relations []*Relation
}

// PartialUpdate carries the subset of entity fields an UpdateEntity call
// should apply; nil fields are left untouched.
type PartialUpdate struct {
	EntityType   *string
	Tags         []string
	Importance   *int
	ParentName   *string
	ClearParent  bool

	MemoryType         *MemoryType
	SessionID          *string
	TaskID             *string
	ExpiresAt          *time.Time
	ClearExpiresAt     bool
	IsWorkingMemory    *bool
	AccessCount        *int
	LastAccessedAt     *time.Time
	Confidence         *float64
	ConfirmationCount  *int
	MarkedForPromotion *bool
	Visibility         *Visibility
	PromotedAt         *time.Time
	PromotedFrom       *string
}
