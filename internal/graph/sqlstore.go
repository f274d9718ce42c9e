package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/graphkeep/graphkeep/internal/logging"
)

var sqlStoreLog = logging.GetLogger("graph.sqlstore")

// SQLStore is the relational backend (spec.md §4.C): entities and relations
// live in SQLite tables, with an FTS5 virtual table kept in sync by
// triggers. It embeds the same in-memory cache the log backend uses, so
// every read goes through the same snapshot/indexing machinery; SQLite is
// the durable source of truth, not the hot read path.
type SQLStore struct {
	*cache
	db   *sql.DB
	path string
}

// OpenSQLStore opens (creating if necessary) the SQLite database at path
// and initializes its schema. Mirrors the teacher's database.Open +
// InitSchema split, collapsed into one call since this backend has no
// other caller that needs the raw *sql.DB between the two steps.
func OpenSQLStore(path string) (*SQLStore, error) {
	sqlStoreLog.Info("opening sqlite store", "path", path)

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create store directory: %v", ErrIO, err)
		}
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrIO, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping sqlite: %v", ErrIO, err)
	}

	s := &SQLStore{cache: newCache(), db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	var tableName string
	err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='entities' LIMIT 1`).Scan(&tableName)
	if err == nil && tableName != "" {
		sqlStoreLog.Debug("schema already initialized")
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin schema transaction: %v", ErrIO, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(coreSchema); err != nil {
		return fmt.Errorf("%w: create core schema: %v", ErrIO, err)
	}
	if _, err := tx.Exec(ftsSchema); err != nil {
		sqlStoreLog.Warn("failed to create FTS5 schema, continuing without it", "error", err)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_version (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, schemaVersion); err != nil {
		return fmt.Errorf("%w: record schema version: %v", ErrIO, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit schema: %v", ErrIO, err)
	}
	sqlStoreLog.Info("sqlite schema initialized", "version", schemaVersion)
	return nil
}

// EnsureLoaded pulls every row out of SQLite into the cache, if not already
// loaded. Safe to call repeatedly.
func (s *SQLStore) EnsureLoaded(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	return s.loadLocked(ctx)
}

func (s *SQLStore) loadLocked(ctx context.Context) error {
	entities, err := s.readAllEntities(ctx)
	if err != nil {
		return err
	}
	relations, err := s.readAllRelations(ctx)
	if err != nil {
		return err
	}
	s.rebuildFrom(&Graph{Entities: entities, Relations: relations})
	s.bus.Publish(Event{Kind: GraphLoaded})
	return nil
}

func (s *SQLStore) readAllEntities(ctx context.Context) ([]*Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, entity_type, observations, tags, importance, parent_name,
			created_at, last_modified, memory_type, session_id, task_id,
			expires_at, is_working_memory, access_count, last_accessed_at,
			confidence, confirmation_count, marked_for_promotion, visibility,
			agent_id, promoted_at, promoted_from
		FROM entities`)
	if err != nil {
		return nil, fmt.Errorf("%w: read entities: %v", ErrIO, err)
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) readAllRelations(ctx context.Context) ([]*Relation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT from_name, to_name, relation_type, created_at, last_modified FROM relations`)
	if err != nil {
		return nil, fmt.Errorf("%w: read relations: %v", ErrIO, err)
	}
	defer rows.Close()

	var out []*Relation
	for rows.Next() {
		r := &Relation{}
		if err := rows.Scan(&r.From, &r.To, &r.RelationType, &r.CreatedAt, &r.LastModified); err != nil {
			return nil, fmt.Errorf("%w: scan relation: %v", ErrCorrupt, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*Entity, error) {
	e := &Entity{}
	var observationsJSON, tagsJSON string
	var importance sql.NullInt64
	var parentName sql.NullString
	var memoryType string
	var sessionID, taskID sql.NullString
	var expiresAt sql.NullTime
	var isWorking bool
	var accessCount int
	var lastAccessedAt sql.NullTime
	var confidence sql.NullFloat64
	var confirmationCount int
	var marked bool
	var visibility string
	var agentID sql.NullString
	var promotedAt sql.NullTime
	var promotedFrom sql.NullString

	if err := row.Scan(
		&e.Name, &e.EntityType, &observationsJSON, &tagsJSON, &importance, &parentName,
		&e.CreatedAt, &e.LastModified, &memoryType, &sessionID, &taskID,
		&expiresAt, &isWorking, &accessCount, &lastAccessedAt,
		&confidence, &confirmationCount, &marked, &visibility,
		&agentID, &promotedAt, &promotedFrom,
	); err != nil {
		return nil, fmt.Errorf("%w: scan entity: %v", ErrCorrupt, err)
	}

	if err := json.Unmarshal([]byte(observationsJSON), &e.Observations); err != nil {
		return nil, fmt.Errorf("%w: decode observations: %v", ErrCorrupt, err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
		return nil, fmt.Errorf("%w: decode tags: %v", ErrCorrupt, err)
	}
	if importance.Valid {
		v := int(importance.Int64)
		e.Importance = &v
	}
	if parentName.Valid {
		e.ParentName = parentName.String
	}
	e.MemoryType = MemoryType(memoryType)
	if sessionID.Valid {
		e.SessionID = sessionID.String
	}
	if taskID.Valid {
		e.TaskID = taskID.String
	}
	if expiresAt.Valid {
		v := expiresAt.Time
		e.ExpiresAt = &v
	}
	e.IsWorkingMemory = isWorking
	e.AccessCount = accessCount
	if lastAccessedAt.Valid {
		v := lastAccessedAt.Time
		e.LastAccessedAt = &v
	}
	if confidence.Valid {
		v := confidence.Float64
		e.Confidence = &v
	}
	e.ConfirmationCount = confirmationCount
	e.MarkedForPromotion = marked
	e.Visibility = Visibility(visibility)
	if agentID.Valid {
		e.AgentID = agentID.String
	}
	if promotedAt.Valid {
		v := promotedAt.Time
		e.PromotedAt = &v
	}
	if promotedFrom.Valid {
		e.PromotedFrom = promotedFrom.String
	}
	return e, nil
}

// LoadGraph and GraphForMutation both hand back a cache snapshot; SQLite
// transactions aren't needed for reads since the cache is the read path.
func (s *SQLStore) LoadGraph(ctx context.Context) (*Graph, error) {
	if err := s.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

func (s *SQLStore) GraphForMutation(ctx context.Context) (*Graph, error) {
	return s.LoadGraph(ctx)
}

// SaveGraph replaces the entire database contents with g, inside a single
// transaction, toggling foreign_keys off for the truncate+reinsert window
// the way the teacher's bulk-migration code does (internal/database
// operations migrating between session IDs) and re-enabling them once the
// transaction has ended. SQLite ignores PRAGMA foreign_keys inside a
// transaction, so both switches run on the pool's single connection
// outside it.
func (s *SQLStore) SaveGraph(ctx context.Context, g *Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = OFF`); err != nil {
		return fmt.Errorf("%w: disable foreign keys: %v", ErrIO, err)
	}
	defer s.db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON`)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin save transaction: %v", ErrIO, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM relations`); err != nil {
		return fmt.Errorf("%w: clear relations: %v", ErrIO, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities`); err != nil {
		return fmt.Errorf("%w: clear entities: %v", ErrIO, err)
	}
	for _, e := range g.Entities {
		if err := upsertEntityTx(ctx, tx, e); err != nil {
			return err
		}
	}
	for _, r := range g.Relations {
		if err := upsertRelationTx(ctx, tx, r); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit save: %v", ErrIO, err)
	}

	s.rebuildFrom(g)
	s.bus.Publish(Event{Kind: GraphSaved})
	return nil
}

func upsertEntityTx(ctx context.Context, tx *sql.Tx, e *Entity) error {
	observationsJSON, err := json.Marshal(e.Observations)
	if err != nil {
		return fmt.Errorf("%w: encode observations: %v", ErrValidation, err)
	}
	tagsJSON, err := json.Marshal(e.Tags)
	if err != nil {
		return fmt.Errorf("%w: encode tags: %v", ErrValidation, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (
			name, entity_type, observations, tags, importance, parent_name,
			created_at, last_modified, memory_type, session_id, task_id,
			expires_at, is_working_memory, access_count, last_accessed_at,
			confidence, confirmation_count, marked_for_promotion, visibility,
			agent_id, promoted_at, promoted_from
		) VALUES (?,?,?,?,?,NULLIF(?,''),?,?,?,NULLIF(?,''),NULLIF(?,''),?,?,?,?,?,?,?,?,NULLIF(?,''),?,NULLIF(?,''))
		ON CONFLICT(name) DO UPDATE SET
			entity_type=excluded.entity_type, observations=excluded.observations,
			tags=excluded.tags, importance=excluded.importance, parent_name=excluded.parent_name,
			last_modified=excluded.last_modified, memory_type=excluded.memory_type,
			session_id=excluded.session_id, task_id=excluded.task_id, expires_at=excluded.expires_at,
			is_working_memory=excluded.is_working_memory, access_count=excluded.access_count,
			last_accessed_at=excluded.last_accessed_at, confidence=excluded.confidence,
			confirmation_count=excluded.confirmation_count, marked_for_promotion=excluded.marked_for_promotion,
			visibility=excluded.visibility, agent_id=excluded.agent_id, promoted_at=excluded.promoted_at,
			promoted_from=excluded.promoted_from
	`,
		e.Name, e.EntityType, string(observationsJSON), string(tagsJSON), e.Importance, e.ParentName,
		e.CreatedAt, e.LastModified, string(e.MemoryType), e.SessionID, e.TaskID,
		e.ExpiresAt, e.IsWorkingMemory, e.AccessCount, e.LastAccessedAt,
		e.Confidence, e.ConfirmationCount, e.MarkedForPromotion, string(e.Visibility),
		e.AgentID, e.PromotedAt, e.PromotedFrom,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert entity %q: %v", ErrIO, e.Name, err)
	}
	return nil
}

func upsertRelationTx(ctx context.Context, tx *sql.Tx, r *Relation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO relations (from_name, to_name, relation_type, created_at, last_modified)
		VALUES (?,?,?,?,?)
		ON CONFLICT(from_name, to_name, relation_type) DO UPDATE SET last_modified=excluded.last_modified
	`, r.From, r.To, r.RelationType, r.CreatedAt, r.LastModified)
	if err != nil {
		return fmt.Errorf("%w: upsert relation %s->%s: %v", ErrIO, r.From, r.To, err)
	}
	return nil
}

// AppendEntity inserts or replaces a single entity row and its cache entry.
func (s *SQLStore) AppendEntity(ctx context.Context, e *Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ErrIO, err)
	}
	defer tx.Rollback()
	if err := upsertEntityTx(ctx, tx, e); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit entity: %v", ErrIO, err)
	}

	s.putEntity(e.Clone())
	s.bus.Publish(Event{Kind: EntityCreated, Entity: e.Name})
	return nil
}

// AppendRelation inserts or replaces a single relation row and its cache entry.
func (s *SQLStore) AppendRelation(ctx context.Context, r *Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ErrIO, err)
	}
	defer tx.Rollback()
	if err := upsertRelationTx(ctx, tx, r); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: relation %s->%s references a missing entity", ErrValidation, r.From, r.To)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit relation: %v", ErrIO, err)
	}

	s.putRelation(r.Clone())
	s.bus.Publish(Event{Kind: RelationCreated, Relation: r})
	return nil
}

func isForeignKeyViolation(err error) bool {
	return err != nil && (containsFold(err.Error(), "FOREIGN KEY constraint failed"))
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && indexFold(s, substr) >= 0
}

func indexFold(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if equalFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// UpdateEntity applies a partial update, rejecting a parent change that
// would introduce a cycle (spec.md §3 invariant 4).
func (s *SQLStore) UpdateEntity(ctx context.Context, name string, p *PartialUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entities[name]
	if !ok {
		return fmt.Errorf("%w: entity %q", ErrNotFound, name)
	}
	if p.ParentName != nil && !p.ClearParent && *p.ParentName != "" {
		if s.wouldCycle(name, *p.ParentName) {
			return fmt.Errorf("%w: setting parent of %q to %q", ErrCycle, name, *p.ParentName)
		}
	}

	updated := existing.Clone()
	applyPartial(updated, p)
	updated.LastModified = time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ErrIO, err)
	}
	defer tx.Rollback()
	if err := upsertEntityTx(ctx, tx, updated); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit update: %v", ErrIO, err)
	}

	s.putEntity(updated)
	s.bus.Publish(Event{Kind: EntityUpdated, Entity: name})
	return nil
}

// DeleteEntity removes the entity row; the relations FK is ON DELETE
// CASCADE so SQLite drops dependent relation rows itself, and the cache
// mirrors that via idx.RemoveEntity.
func (s *SQLStore) DeleteEntity(ctx context.Context, name string) ([]*Relation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[name]; !ok {
		return nil, fmt.Errorf("%w: entity %q", ErrNotFound, name)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE name = ?`, name); err != nil {
		return nil, fmt.Errorf("%w: delete entity %q: %v", ErrIO, name, err)
	}

	removed := s.removeEntity(name)
	s.bus.Publish(Event{Kind: EntityDeleted, Entity: name})
	return removed, nil
}

// DeleteRelation removes a single relation row.
func (s *SQLStore) DeleteRelation(ctx context.Context, from, to, relationType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM relations WHERE from_name=? AND to_name=? AND relation_type=?`, from, to, relationType)
	if err != nil {
		return fmt.Errorf("%w: delete relation %s->%s: %v", ErrIO, from, to, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: relation %s->%s (%s)", ErrNotFound, from, to, relationType)
	}

	s.removeRelation(from, to, relationType)
	s.bus.Publish(Event{Kind: RelationDeleted, Relation: &Relation{From: from, To: to, RelationType: relationType}})
	return nil
}

// Compact runs VACUUM and a WAL checkpoint, the relational analogue of the
// log backend's rewrite-from-snapshot compaction.
func (s *SQLStore) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("%w: checkpoint: %v", ErrIO, err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("%w: vacuum: %v", ErrIO, err)
	}
	return nil
}

// ClearCache forces the next EnsureLoaded to re-read SQLite from scratch.
func (s *SQLStore) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	s.entities = make(map[string]*Entity)
	s.relations = make(map[string]*Relation)
	s.idx = NewIndexes()
}

func (s *SQLStore) Indexes() *Indexes { s.mu.Lock(); defer s.mu.Unlock(); return s.idx }
func (s *SQLStore) Events() *Bus      { return s.bus }

func (s *SQLStore) GetEntity(name string) (*Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[name]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

func (s *SQLStore) AllEntities() []*Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e.Clone())
	}
	return out
}

func (s *SQLStore) AllAgentEntities() []*Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entity, 0)
	for _, e := range s.entities {
		if e.IsAgentEntity() {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Close closes the underlying *sql.DB (spec.md §6 Facade.Close).
func (s *SQLStore) Close() error {
	sqlStoreLog.Info("closing sqlite store")
	return s.db.Close()
}

// DB exposes the underlying connection to callers that need something
// beyond Store's interface, e.g. FullTextSearch's MATCH query or a host's
// own schema migrations.
func (s *SQLStore) DB() *sql.DB { return s.db }

// FTSMatch is one row of a FullTextSearch result: an entity name and its
// BM25 relevance score (higher is more relevant).
type FTSMatch struct {
	Name  string
	Score float64
}

// FullTextSearch runs q as an FTS5 MATCH query against entities_fts and
// ranks hits with SQLite's built-in bm25() (spec.md §4.C full_text_search).
// The whole query is treated as a single phrase rather than parsed as FTS5
// query syntax, so punctuation in q can't be misread as an operator.
// bm25() returns lower-is-better scores; FullTextSearch negates them so
// callers can treat the result the same as every other searcher's
// higher-is-better Score.
func (s *SQLStore) FullTextSearch(ctx context.Context, q string, limit int) ([]FTSMatch, error) {
	phrase := `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
	if limit <= 0 {
		limit = -1 // SQLite: LIMIT -1 means unbounded
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, bm25(entities_fts) AS rank
		FROM entities_fts
		WHERE entities_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, phrase, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: full text search: %v", ErrIO, err)
	}
	defer rows.Close()

	var out []FTSMatch
	for rows.Next() {
		var m FTSMatch
		if err := rows.Scan(&m.Name, &m.Score); err != nil {
			return nil, fmt.Errorf("%w: scan fts match: %v", ErrCorrupt, err)
		}
		m.Score = -m.Score
		out = append(out, m)
	}
	return out, rows.Err()
}

var _ Store = (*SQLStore)(nil)
