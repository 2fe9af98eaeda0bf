package sqlite

import (
	"context"
	"database/sql"

	"github.com/archivistalabs/archivista/internal/knowledge"
)

func insertEvidence(ctx context.Context, tx *sql.Tx, rec *knowledge.EvidenceRecord) error {
	entityID := sql.NullString{String: rec.EntityID, Valid: rec.EntityID != ""}
	relationshipID := sql.NullString{String: rec.RelationshipID, Valid: rec.RelationshipID != ""}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO evidence (`+evidenceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, entityID, relationshipID, rec.Type, rec.Source, rec.Strength,
		rec.Description, rec.PreviousConfidence, rec.NewConfidence, formatTime(rec.CreatedAt))
	if err != nil {
		return persistErr("insert evidence", err)
	}
	return nil
}

// EvidenceForEntity returns an entity's ledger, newest first.
func (s *Store) EvidenceForEntity(ctx context.Context, entityID string, limit int) ([]*knowledge.EvidenceRecord, error) {
	q := `SELECT ` + evidenceColumns + ` FROM evidence WHERE entity_id = ? ORDER BY rowid DESC`
	args := []any{entityID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEvidence(ctx, q, args...)
}

// EvidenceForRelationship returns a relationship's ledger, newest first.
func (s *Store) EvidenceForRelationship(ctx context.Context, relationshipID string, limit int) ([]*knowledge.EvidenceRecord, error) {
	q := `SELECT ` + evidenceColumns + ` FROM evidence WHERE relationship_id = ? ORDER BY rowid DESC`
	args := []any{relationshipID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEvidence(ctx, q, args...)
}

// RecentEvidence returns the newest evidence across the user's entities and
// relationships.
func (s *Store) RecentEvidence(ctx context.Context, userID string, limit int) ([]*knowledge.EvidenceRecord, error) {
	q := `
		SELECT ` + qualifiedEvidenceColumns + ` FROM evidence ev
		LEFT JOIN entities e ON ev.entity_id = e.id
		LEFT JOIN relationships r ON ev.relationship_id = r.id
		WHERE e.user_id = ? OR r.user_id = ?
		ORDER BY ev.rowid DESC`
	args := []any{userID, userID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEvidence(ctx, q, args...)
}

func (s *Store) CountEntityEvidence(ctx context.Context, entityID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM evidence WHERE entity_id = ?`, entityID).Scan(&n)
	if err != nil {
		return 0, persistErr("count evidence", err)
	}
	return n, nil
}

func (s *Store) queryEvidence(ctx context.Context, query string, args ...any) ([]*knowledge.EvidenceRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("query evidence", err)
	}
	defer rows.Close()

	var out []*knowledge.EvidenceRecord
	for rows.Next() {
		rec, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("query evidence", err)
	}
	return out, nil
}

const qualifiedEvidenceColumns = "ev.id, ev.entity_id, ev.relationship_id, ev.evidence_type, ev.source, ev.strength, ev.description, ev.previous_confidence, ev.new_confidence, ev.created_at"
