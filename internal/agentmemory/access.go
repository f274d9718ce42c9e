// Package agentmemory implements the agent-memory overlay of spec.md
// §4.K–§4.O: access tracking, importance decay, salience scoring,
// working-memory session management, and context-window packing, all
// layered over the same graph.Store the core entity/relation API uses.
// Grounded on the teacher's internal/memory/service.go CRUD/validate
// shape, generalized from single-memory rows to the engine's agent
// overlay fields (spec.md §3).
package agentmemory

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/graphkeep/graphkeep/internal/graph"
	"github.com/graphkeep/graphkeep/internal/logging"
)

var log = logging.GetLogger("agentmemory")

// AccessStats is the per-entity bookkeeping spec.md §4.K requires.
type AccessStats struct {
	TotalAccesses   int
	LastAccessedAt  time.Time
	AccessesBySession map[string]int

	recent []time.Time // ring buffer, most recent at the end
}

// PatternClass classifies how often an entity is accessed.
type PatternClass string

const (
	PatternFrequent   PatternClass = "frequent"
	PatternOccasional PatternClass = "occasional"
	PatternRare       PatternClass = "rare"
)

// AccessTrackerOptions configures an AccessTracker.
type AccessTrackerOptions struct {
	RingBufferSize     int
	RecencyHalfLifeHours float64
	FrequentThreshold  float64 // accesses/day
	OccasionalThreshold float64
}

// DefaultAccessTrackerOptions matches spec.md §4.K's stated defaults.
func DefaultAccessTrackerOptions() AccessTrackerOptions {
	return AccessTrackerOptions{
		RingBufferSize:       100,
		RecencyHalfLifeHours: 24,
		FrequentThreshold:    5,
		OccasionalThreshold:  1,
	}
}

// AccessTracker maintains in-memory access statistics per entity, mirrored
// into the store's access_count/last_accessed_at fields on every record.
type AccessTracker struct {
	store graph.Store
	opts  AccessTrackerOptions

	mu    sync.Mutex
	stats map[string]*AccessStats
}

// NewAccessTracker wires a tracker to store.
func NewAccessTracker(store graph.Store, opts AccessTrackerOptions) *AccessTracker {
	return &AccessTracker{
		store: store,
		opts:  opts,
		stats: make(map[string]*AccessStats),
	}
}

// RecordAccess registers an access to name in sessionID, and, if the
// entity exists in the store, updates its access_count/last_accessed_at.
func (t *AccessTracker) RecordAccess(name, sessionID string) {
	now := time.Now()

	t.mu.Lock()
	s, ok := t.stats[name]
	if !ok {
		s = &AccessStats{AccessesBySession: make(map[string]int)}
		t.stats[name] = s
	}
	s.TotalAccesses++
	s.LastAccessedAt = now
	if sessionID != "" {
		s.AccessesBySession[sessionID]++
	}
	s.recent = append(s.recent, now)
	if len(s.recent) > t.opts.RingBufferSize {
		s.recent = s.recent[len(s.recent)-t.opts.RingBufferSize:]
	}
	t.mu.Unlock()

	e, found := t.store.GetEntity(name)
	if !found {
		return
	}
	accessCount := e.AccessCount + 1
	update := &graph.PartialUpdate{
		AccessCount:    &accessCount,
		LastAccessedAt: &now,
	}
	if err := t.store.UpdateEntity(context.Background(), name, update); err != nil {
		log.LogError("record_access", err, "entity", name)
	}
}

// Stats returns a copy of the tracked statistics for name, or nil if
// nothing has been recorded.
func (t *AccessTracker) Stats(name string) *AccessStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stats[name]
	if !ok {
		return nil
	}
	cp := *s
	cp.AccessesBySession = make(map[string]int, len(s.AccessesBySession))
	for k, v := range s.AccessesBySession {
		cp.AccessesBySession[k] = v
	}
	cp.recent = append([]time.Time(nil), s.recent...)
	return &cp
}

// AverageIntervalHours is the mean gap, in hours, between consecutive
// recorded accesses in the ring buffer. Infinity for fewer than two
// recorded accesses, per spec.md §4.K.
func (s *AccessStats) AverageIntervalHours() float64 {
	if s == nil || len(s.recent) < 2 {
		return math.Inf(1)
	}
	var total float64
	for i := 1; i < len(s.recent); i++ {
		total += s.recent[i].Sub(s.recent[i-1]).Hours()
	}
	return total / float64(len(s.recent)-1)
}

// RecencyScore returns an exponential-decay recency score in [0,1] given
// the entity's age in hours (spec.md §4.K).
func RecencyScore(ageHours, halfLifeHours float64) float64 {
	if halfLifeHours <= 0 {
		halfLifeHours = 24
	}
	return math.Exp(-math.Ln2 * ageHours / halfLifeHours)
}

// Classify returns the pattern class for an entity first accessed at
// firstSeen, given its current total access count.
func (t *AccessTracker) Classify(totalAccesses int, firstSeen time.Time) PatternClass {
	days := math.Max(1, time.Since(firstSeen).Hours()/24)
	perDay := float64(totalAccesses) / days
	switch {
	case perDay >= t.opts.FrequentThreshold:
		return PatternFrequent
	case perDay >= t.opts.OccasionalThreshold:
		return PatternOccasional
	default:
		return PatternRare
	}
}
