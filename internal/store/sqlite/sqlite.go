// Package sqlite persists the knowledge graph in a single SQLite database.
//
// The driver is ncruces/go-sqlite3 (wazero-based, CGO-free). The database
// runs in WAL mode with foreign keys on; evidence rows cascade-delete with
// their parent entity or relationship. The find-or-create race is settled by
// a unique index plus insert-then-fetch, so concurrent extractors of the same
// entity converge on one row.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/archivistalabs/archivista/internal/knowledge"
	"go.uber.org/zap"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	entity_type     TEXT NOT NULL,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	confidence      REAL NOT NULL,
	evidence_count  INTEGER NOT NULL DEFAULT 0,
	source_document TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL,
	UNIQUE(user_id, name, entity_type)
);

CREATE INDEX IF NOT EXISTS idx_entities_user ON entities(user_id);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);
CREATE INDEX IF NOT EXISTS idx_entities_user_conf ON entities(user_id, confidence);

CREATE TABLE IF NOT EXISTS relationships (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	source_entity_id  TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	target_entity_id  TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	relationship_type TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	confidence        REAL NOT NULL,
	evidence_count    INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL,
	UNIQUE(user_id, source_entity_id, target_entity_id, relationship_type)
);

CREATE INDEX IF NOT EXISTS idx_relationships_user ON relationships(user_id);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_entity_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_entity_id);

CREATE TABLE IF NOT EXISTS evidence (
	id                  TEXT PRIMARY KEY,
	entity_id           TEXT REFERENCES entities(id) ON DELETE CASCADE,
	relationship_id     TEXT REFERENCES relationships(id) ON DELETE CASCADE,
	evidence_type       TEXT NOT NULL,
	source              TEXT NOT NULL DEFAULT '',
	strength            REAL NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	previous_confidence REAL NOT NULL,
	new_confidence      REAL NOT NULL,
	created_at          TEXT NOT NULL,
	CHECK ((entity_id IS NULL) != (relationship_id IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_evidence_entity ON evidence(entity_id);
CREATE INDEX IF NOT EXISTS idx_evidence_relationship ON evidence(relationship_id);
`

// Store is the SQLite-backed knowledge.Store.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ knowledge.Store = (*Store)(nil)

// New opens (creating if needed) the database at path and applies the schema.
func New(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(ON)"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", knowledge.ErrPersistence, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", knowledge.ErrPersistence, err)
	}

	logger.Info("sqlite store opened", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close database: %v", knowledge.ErrPersistence, err)
	}
	return nil
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", knowledge.ErrPersistence, op, err)
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return persistErr("commit transaction", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// rowScanner lets the scan helpers work with both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*knowledge.Entity, error) {
	var e knowledge.Entity
	var createdAt, updatedAt string
	err := row.Scan(&e.ID, &e.UserID, &e.Type, &e.Name, &e.Description,
		&e.Confidence, &e.EvidenceCount, &e.SourceDocument, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, knowledge.ErrEntityNotFound
		}
		return nil, persistErr("scan entity", err)
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

func scanRelationship(row rowScanner) (*knowledge.Relationship, error) {
	var r knowledge.Relationship
	var createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.UserID, &r.SourceEntityID, &r.TargetEntityID, &r.Type,
		&r.Description, &r.Confidence, &r.EvidenceCount, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, knowledge.ErrRelationshipNotFound
		}
		return nil, persistErr("scan relationship", err)
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

func scanEvidence(row rowScanner) (*knowledge.EvidenceRecord, error) {
	var rec knowledge.EvidenceRecord
	var entityID, relationshipID sql.NullString
	var createdAt string
	err := row.Scan(&rec.ID, &entityID, &relationshipID, &rec.Type, &rec.Source,
		&rec.Strength, &rec.Description, &rec.PreviousConfidence, &rec.NewConfidence, &createdAt)
	if err != nil {
		return nil, persistErr("scan evidence", err)
	}
	rec.EntityID = entityID.String
	rec.RelationshipID = relationshipID.String
	rec.CreatedAt = parseTime(createdAt)
	return &rec, nil
}

const entityColumns = "id, user_id, entity_type, name, description, confidence, evidence_count, source_document, created_at, updated_at"
const relationshipColumns = "id, user_id, source_entity_id, target_entity_id, relationship_type, description, confidence, evidence_count, created_at, updated_at"
const evidenceColumns = "id, entity_id, relationship_id, evidence_type, source, strength, description, previous_confidence, new_confidence, created_at"
