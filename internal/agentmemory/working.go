package agentmemory

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/graphkeep/graphkeep/internal/graph"
)

// ErrSessionFull is returned when createWorkingMemory would exceed
// WorkingMemoryOptions.MaxPerSession.
var ErrSessionFull = fmt.Errorf("agentmemory: session memory limit reached")

// ErrNotWorkingMemory is returned by every working-memory mutator when the
// named entity does not exist, is not an agent entity, or is not of
// memory_type="working" (spec.md §4.N).
var ErrNotWorkingMemory = fmt.Errorf("agentmemory: entity is not a working memory")

// WorkingMemoryOptions configures a WorkingMemoryManager.
type WorkingMemoryOptions struct {
	MaxPerSession int
	DefaultTTL    time.Duration
}

// DefaultWorkingMemoryOptions matches pkg/config.WorkingMemoryConfig's
// defaults.
func DefaultWorkingMemoryOptions() WorkingMemoryOptions {
	return WorkingMemoryOptions{MaxPerSession: 100, DefaultTTL: 24 * time.Hour}
}

// CreateOptions configures createWorkingMemory.
type CreateOptions struct {
	EntityType string
	TaskID     string
	Importance *int
	Tags       []string
	TTL        time.Duration // zero means opts.DefaultTTL
}

// SessionFilter narrows getSessionMemories (spec.md §4.N).
type SessionFilter struct {
	EntityType      string
	TaskID          string
	MinImportance   *int
	MaxImportance   *int
	ExcludeExpired  bool
}

// PromotionCriteria configures getPromotionCandidates.
type PromotionCriteria struct {
	MinConfidence     *float64
	MinConfirmations  *int
	MinAccessCount    *int
}

// PromotionCandidate is one scored result of getPromotionCandidates.
type PromotionCandidate struct {
	Entity   *graph.Entity
	Priority float64
}

// WorkingMemoryManager implements spec.md §4.N's session-scoped working
// memory lifecycle: create, list, expire, extend, mark/promote/confirm.
type WorkingMemoryManager struct {
	store   graph.Store
	tracker *AccessTracker
	opts    WorkingMemoryOptions

	// AutoPromote, if true, makes confirmMemory call promoteMemory to
	// "semantic" once both thresholds are met (spec.md §9 open question 2:
	// the promoted target is always semantic, regardless of any
	// mark_for_promotion target tag).
	AutoPromote           bool
	AutoPromoteConfidence float64
	AutoPromoteConfirmations int

	mu           sync.Mutex
	sessionIndex map[string]map[string]struct{} // session -> entity names
}

// NewWorkingMemoryManager wires a manager to store.
func NewWorkingMemoryManager(store graph.Store, tracker *AccessTracker, opts WorkingMemoryOptions) *WorkingMemoryManager {
	return &WorkingMemoryManager{
		store:                    store,
		tracker:                  tracker,
		opts:                     opts,
		AutoPromoteConfidence:    0.8,
		AutoPromoteConfirmations: 3,
		sessionIndex:             make(map[string]map[string]struct{}),
	}
}

// CreateWorkingMemory stores content as a new working-memory entity in
// sessionID, per spec.md §4.N.
func (w *WorkingMemoryManager) CreateWorkingMemory(ctx context.Context, sessionID, content string, opts CreateOptions) (*graph.Entity, error) {
	w.mu.Lock()
	count := len(w.sessionIndex[sessionID])
	w.mu.Unlock()

	max := w.opts.MaxPerSession
	if max <= 0 {
		max = 100
	}
	if count >= max {
		return nil, ErrSessionFull
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = w.opts.DefaultTTL
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	now := time.Now()
	expires := now.Add(ttl)
	entityType := opts.EntityType
	if entityType == "" {
		entityType = "memory"
	}

	name := fmt.Sprintf("wm_%s_%d_%s", sessionID, now.UnixMilli(), fnv1aHex8(content))

	e := &graph.Entity{
		Name:            name,
		EntityType:      entityType,
		Observations:    []string{content},
		Tags:            opts.Tags,
		Importance:      opts.Importance,
		CreatedAt:       now,
		LastModified:    now,
		MemoryType:      graph.MemoryTypeWorking,
		SessionID:       sessionID,
		TaskID:          opts.TaskID,
		ExpiresAt:       &expires,
		IsWorkingMemory: true,
	}

	if err := w.store.AppendEntity(ctx, e); err != nil {
		return nil, err
	}

	w.mu.Lock()
	if w.sessionIndex[sessionID] == nil {
		w.sessionIndex[sessionID] = make(map[string]struct{})
	}
	w.sessionIndex[sessionID][name] = struct{}{}
	w.mu.Unlock()

	return e, nil
}

// GetSessionMemories returns every agent entity tagged with sessionID,
// rebuilding the in-memory session index from the store if it is missing,
// then applying filter (spec.md §4.N).
func (w *WorkingMemoryManager) GetSessionMemories(sessionID string, filter *SessionFilter) []*graph.Entity {
	names := w.sessionNames(sessionID)

	var out []*graph.Entity
	now := time.Now()
	for name := range names {
		e, ok := w.store.GetEntity(name)
		if !ok {
			continue
		}
		if !matchesSessionFilter(e, filter, now) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (w *WorkingMemoryManager) sessionNames(sessionID string) map[string]struct{} {
	w.mu.Lock()
	names, ok := w.sessionIndex[sessionID]
	w.mu.Unlock()
	if ok {
		return names
	}

	rebuilt := make(map[string]struct{})
	for _, e := range w.store.AllAgentEntities() {
		if e.SessionID == sessionID {
			rebuilt[e.Name] = struct{}{}
		}
	}
	if len(rebuilt) > 0 {
		w.mu.Lock()
		w.sessionIndex[sessionID] = rebuilt
		w.mu.Unlock()
	}
	return rebuilt
}

func matchesSessionFilter(e *graph.Entity, f *SessionFilter, now time.Time) bool {
	if f == nil {
		return true
	}
	if f.EntityType != "" && !strings.EqualFold(e.EntityType, f.EntityType) {
		return false
	}
	if f.TaskID != "" && e.TaskID != f.TaskID {
		return false
	}
	imp := e.ImportanceOrDefault()
	if f.MinImportance != nil && imp < *f.MinImportance {
		return false
	}
	if f.MaxImportance != nil && imp > *f.MaxImportance {
		return false
	}
	if f.ExcludeExpired && e.ExpiresAt != nil && e.ExpiresAt.Before(now) {
		return false
	}
	return true
}

// ClearExpired removes every working-memory entity whose expires_at has
// passed, plus its relations, and prunes the session index. Returns the
// count removed (spec.md §4.N).
func (w *WorkingMemoryManager) ClearExpired(ctx context.Context) (int, error) {
	now := time.Now()
	var expired []string
	for _, e := range w.store.AllAgentEntities() {
		if e.MemoryType == graph.MemoryTypeWorking && e.ExpiresAt != nil && e.ExpiresAt.Before(now) {
			expired = append(expired, e.Name)
		}
	}
	for _, name := range expired {
		if _, err := w.store.DeleteEntity(ctx, name); err != nil {
			return 0, err
		}
		w.pruneFromIndex(name)
	}
	return len(expired), nil
}

func (w *WorkingMemoryManager) pruneFromIndex(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, names := range w.sessionIndex {
		delete(names, name)
	}
}

func (w *WorkingMemoryManager) getWorkingEntity(name string) (*graph.Entity, error) {
	e, ok := w.store.GetEntity(name)
	if !ok || !e.IsAgentEntity() || e.MemoryType != graph.MemoryTypeWorking {
		return nil, ErrNotWorkingMemory
	}
	return e, nil
}

// ExtendTTL extends each named working memory's expiry by hours. If
// already expired, the TTL restarts from now; otherwise hours is added to
// the current expiry (spec.md §4.N).
func (w *WorkingMemoryManager) ExtendTTL(ctx context.Context, names []string, hours float64) error {
	if hours <= 0 {
		return fmt.Errorf("agentmemory: hours must be > 0")
	}
	now := time.Now()
	delta := time.Duration(hours * float64(time.Hour))

	for _, name := range names {
		e, err := w.getWorkingEntity(name)
		if err != nil {
			return err
		}
		var newExpiry time.Time
		if e.ExpiresAt == nil || e.ExpiresAt.Before(now) {
			newExpiry = now.Add(delta)
		} else {
			newExpiry = e.ExpiresAt.Add(delta)
		}
		update := &graph.PartialUpdate{ExpiresAt: &newExpiry}
		if err := w.store.UpdateEntity(ctx, name, update); err != nil {
			return err
		}
	}
	return nil
}

// MarkForPromotionOptions configures markForPromotion.
type MarkForPromotionOptions struct {
	TargetType string
}

// MarkForPromotion flags name for future promotion, tagging it with
// promote_to_{target} when a target type is given (spec.md §4.N).
func (w *WorkingMemoryManager) MarkForPromotion(ctx context.Context, name string, opts MarkForPromotionOptions) error {
	e, err := w.getWorkingEntity(name)
	if err != nil {
		return err
	}
	marked := true
	update := &graph.PartialUpdate{MarkedForPromotion: &marked}
	if opts.TargetType != "" {
		tag := "promote_to_" + opts.TargetType
		if !e.HasTag(tag) {
			update.Tags = append(append([]string(nil), e.Tags...), tag)
		}
	}
	return w.store.UpdateEntity(ctx, name, update)
}

// GetPromotionCandidates returns working memories of session scored by
// promotion priority, sorted descending, per spec.md §4.N's scoring rule.
func (w *WorkingMemoryManager) GetPromotionCandidates(session string, criteria *PromotionCriteria) []PromotionCandidate {
	var out []PromotionCandidate
	for _, e := range w.GetSessionMemories(session, nil) {
		if e.MemoryType != graph.MemoryTypeWorking {
			continue
		}
		var priority float64
		var qualifies bool

		if e.MarkedForPromotion {
			priority += 100
			qualifies = true
		}

		if criteria != nil {
			meets := true
			if criteria.MinConfidence != nil && e.ConfidenceOrDefault() < *criteria.MinConfidence {
				meets = false
			}
			if criteria.MinConfirmations != nil && e.ConfirmationCount < *criteria.MinConfirmations {
				meets = false
			}
			if criteria.MinAccessCount != nil && e.AccessCount < *criteria.MinAccessCount {
				meets = false
			}
			if meets && (criteria.MinConfidence != nil || criteria.MinConfirmations != nil || criteria.MinAccessCount != nil) {
				qualifies = true
				priority += 50*e.ConfidenceOrDefault() + 10*float64(e.ConfirmationCount) + float64(e.AccessCount)
			}
		}

		if qualifies {
			out = append(out, PromotionCandidate{Entity: e, Priority: priority})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Entity.Name < out[j].Entity.Name
	})
	return out
}

// PromoteMemory promotes name to target (default "episodic"), clearing
// its working-memory fields and recording provenance (spec.md §4.N).
func (w *WorkingMemoryManager) PromoteMemory(ctx context.Context, name string, target graph.MemoryType) error {
	if target == "" {
		target = graph.MemoryTypeEpisodic
	}
	e, err := w.getWorkingEntity(name)
	if err != nil {
		return err
	}

	now := time.Now()
	isWorking := false
	marked := false
	update := &graph.PartialUpdate{
		MemoryType:         &target,
		ClearExpiresAt:     true,
		IsWorkingMemory:    &isWorking,
		MarkedForPromotion: &marked,
		PromotedAt:         &now,
	}
	sessionID := e.SessionID
	update.PromotedFrom = &sessionID

	keptTags := make([]string, 0, len(e.Tags))
	for _, t := range e.Tags {
		if !strings.HasPrefix(t, "promote_to_") {
			keptTags = append(keptTags, t)
		}
	}
	if len(e.Tags) > 0 {
		update.Tags = keptTags
	}

	if err := w.store.UpdateEntity(ctx, name, update); err != nil {
		return err
	}
	w.pruneFromIndex(name)
	return nil
}

// ConfirmMemory increments confirmation_count, clamps the new confidence
// to 1, records an access, and — if AutoPromote is on and both thresholds
// are met — promotes the memory to "semantic" (spec.md §4.N, §9 open
// question 2).
func (w *WorkingMemoryManager) ConfirmMemory(ctx context.Context, name string, confidenceBoost *float64) (promoted bool, err error) {
	e, err := w.getWorkingEntity(name)
	if err != nil {
		return false, err
	}

	newCount := e.ConfirmationCount + 1
	update := &graph.PartialUpdate{ConfirmationCount: &newCount}
	newConfidence := e.ConfidenceOrDefault()
	if confidenceBoost != nil {
		newConfidence = clamp(newConfidence+*confidenceBoost, 0, 1)
		update.Confidence = &newConfidence
	}
	if err := w.store.UpdateEntity(ctx, name, update); err != nil {
		return false, err
	}
	if w.tracker != nil {
		w.tracker.RecordAccess(name, e.SessionID)
	}

	if w.AutoPromote && newCount >= w.AutoPromoteConfirmations && newConfidence >= w.AutoPromoteConfidence {
		if err := w.PromoteMemory(ctx, name, graph.MemoryTypeSemantic); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func fnv1aHex8(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}
