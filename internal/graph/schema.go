package graph

// schemaVersion is the relational backend's current schema generation.
const schemaVersion = 1

// coreSchema creates the entities/relations tables of spec.md §4.C. Entities
// are keyed on their caller-supplied Name (unlike the teacher's generated-UUID
// primary key) because Name is this engine's identity (spec.md §3).
const coreSchema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entities (
	name TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	observations TEXT NOT NULL DEFAULT '[]',
	tags TEXT NOT NULL DEFAULT '[]',
	importance INTEGER,
	parent_name TEXT REFERENCES entities(name) ON DELETE SET NULL,
	created_at DATETIME NOT NULL,
	last_modified DATETIME NOT NULL,

	-- Agent memory overlay (spec.md §3); only populated when memory_type is set.
	memory_type TEXT NOT NULL DEFAULT '',
	session_id TEXT,
	task_id TEXT,
	expires_at DATETIME,
	is_working_memory BOOLEAN NOT NULL DEFAULT 0,
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed_at DATETIME,
	confidence REAL,
	confirmation_count INTEGER NOT NULL DEFAULT 0,
	marked_for_promotion BOOLEAN NOT NULL DEFAULT 0,
	visibility TEXT NOT NULL DEFAULT 'private',
	agent_id TEXT,
	promoted_at DATETIME,
	promoted_from TEXT
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_entities_parent ON entities(parent_name);
CREATE INDEX IF NOT EXISTS idx_entities_memory_type ON entities(memory_type);
CREATE INDEX IF NOT EXISTS idx_entities_session ON entities(session_id);
CREATE INDEX IF NOT EXISTS idx_entities_working ON entities(is_working_memory);
CREATE INDEX IF NOT EXISTS idx_entities_expires ON entities(expires_at);
CREATE INDEX IF NOT EXISTS idx_entities_marked ON entities(marked_for_promotion);
CREATE INDEX IF NOT EXISTS idx_entities_importance ON entities(importance);
CREATE INDEX IF NOT EXISTS idx_entities_last_modified ON entities(last_modified);
CREATE INDEX IF NOT EXISTS idx_entities_created_at ON entities(created_at);
CREATE INDEX IF NOT EXISTS idx_entities_type_importance ON entities(entity_type, importance);

CREATE TABLE IF NOT EXISTS relations (
	from_name TEXT NOT NULL,
	to_name TEXT NOT NULL,
	relation_type TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	last_modified DATETIME NOT NULL,
	PRIMARY KEY (from_name, to_name, relation_type),
	FOREIGN KEY (from_name) REFERENCES entities(name) ON DELETE CASCADE,
	FOREIGN KEY (to_name) REFERENCES entities(name) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_relations_from ON relations(from_name);
CREATE INDEX IF NOT EXISTS idx_relations_to ON relations(to_name);
CREATE INDEX IF NOT EXISTS idx_relations_type ON relations(relation_type);
CREATE INDEX IF NOT EXISTS idx_relations_from_to ON relations(from_name, to_name);
CREATE INDEX IF NOT EXISTS idx_relations_to_from ON relations(to_name, from_name);

-- Embeddings live in a side table (spec.md §6: embedding providers are a
-- host-side concern) so the core schema never depends on a specific model
-- or dimension.
CREATE TABLE IF NOT EXISTS embeddings (
	entity_name TEXT PRIMARY KEY,
	embedding BLOB NOT NULL,
	model TEXT NOT NULL,
	dimension INTEGER NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY (entity_name) REFERENCES entities(name) ON DELETE CASCADE
);
`

// ftsSchema wires SQLite's FTS5 extension into the substring/ranked search
// components (spec.md §4.E/§4.F) as an additional, always-consistent index
// alongside the in-process inverted index internal/search maintains.
// Standalone (not external-content) FTS5, same choice the teacher makes in
// its schema.go, for reliable trigger-driven sync.
const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS entities_fts USING fts5(
	name UNINDEXED,
	entity_type,
	observations,
	tags
);

CREATE TRIGGER IF NOT EXISTS entities_fts_insert AFTER INSERT ON entities BEGIN
	INSERT INTO entities_fts(name, entity_type, observations, tags)
	VALUES (new.name, new.entity_type, new.observations, new.tags);
END;

CREATE TRIGGER IF NOT EXISTS entities_fts_delete AFTER DELETE ON entities BEGIN
	DELETE FROM entities_fts WHERE name = old.name;
END;

CREATE TRIGGER IF NOT EXISTS entities_fts_update AFTER UPDATE ON entities BEGIN
	UPDATE entities_fts SET
		entity_type = new.entity_type,
		observations = new.observations,
		tags = new.tags
	WHERE name = old.name;
END;
`
