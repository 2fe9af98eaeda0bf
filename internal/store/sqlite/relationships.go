package sqlite

import (
	"context"
	"database/sql"

	"github.com/archivistalabs/archivista/internal/knowledge"
)

func (s *Store) CreateRelationship(ctx context.Context, candidate *knowledge.Relationship) (*knowledge.Relationship, error) {
	var created *knowledge.Relationship
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := entityExists(ctx, tx, candidate.UserID, candidate.SourceEntityID); err != nil {
			return err
		}
		if err := entityExists(ctx, tx, candidate.UserID, candidate.TargetEntityID); err != nil {
			return err
		}
		if err := insertRelationship(ctx, tx, candidate); err != nil {
			return err
		}
		created = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) FindOrCreateRelationship(ctx context.Context, candidate *knowledge.Relationship) (*knowledge.Relationship, bool, error) {
	var out *knowledge.Relationship
	var createdNew bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := entityExists(ctx, tx, candidate.UserID, candidate.SourceEntityID); err != nil {
			return err
		}
		if err := entityExists(ctx, tx, candidate.UserID, candidate.TargetEntityID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO relationships (`+relationshipColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, source_entity_id, target_entity_id, relationship_type) DO NOTHING`,
			candidate.ID, candidate.UserID, candidate.SourceEntityID, candidate.TargetEntityID,
			candidate.Type, candidate.Description, candidate.Confidence, candidate.EvidenceCount,
			formatTime(candidate.CreatedAt), formatTime(candidate.UpdatedAt))
		if err != nil {
			return persistErr("insert relationship", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return persistErr("insert relationship", err)
		}
		createdNew = n > 0

		row := tx.QueryRowContext(ctx, `
			SELECT `+relationshipColumns+` FROM relationships
			WHERE user_id = ? AND source_entity_id = ? AND target_entity_id = ? AND relationship_type = ?`,
			candidate.UserID, candidate.SourceEntityID, candidate.TargetEntityID, candidate.Type)
		out, err = scanRelationship(row)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, createdNew, nil
}

func (s *Store) GetRelationship(ctx context.Context, userID, relationshipID string) (*knowledge.Relationship, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+relationshipColumns+` FROM relationships WHERE id = ? AND user_id = ?`,
		relationshipID, userID)
	return scanRelationship(row)
}

func (s *Store) ListRelationships(ctx context.Context, userID string) ([]*knowledge.Relationship, error) {
	return s.queryRelationships(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE user_id = ? ORDER BY created_at, id`, userID)
}

func (s *Store) RelationshipsTouching(ctx context.Context, userID, entityID string) ([]*knowledge.Relationship, error) {
	return s.queryRelationships(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE user_id = ? AND (source_entity_id = ? OR target_entity_id = ?)
		ORDER BY created_at, id`, userID, entityID, entityID)
}

func (s *Store) ApplyRelationshipUpdate(ctx context.Context, userID, relationshipID string, newConfidence float64, evidence *knowledge.EvidenceRecord) error {
	if err := evidence.Validate(); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE relationships
			SET confidence = ?, evidence_count = evidence_count + 1, updated_at = ?
			WHERE id = ? AND user_id = ?`,
			newConfidence, formatTime(evidence.CreatedAt), relationshipID, userID)
		if err != nil {
			return persistErr("update relationship confidence", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return persistErr("update relationship confidence", err)
		}
		if n == 0 {
			return knowledge.ErrRelationshipNotFound
		}
		return insertEvidence(ctx, tx, evidence)
	})
}

func (s *Store) queryRelationships(ctx context.Context, query string, args ...any) ([]*knowledge.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("query relationships", err)
	}
	defer rows.Close()

	var out []*knowledge.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("query relationships", err)
	}
	return out, nil
}

func entityExists(ctx context.Context, tx *sql.Tx, userID, entityID string) error {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM entities WHERE id = ? AND user_id = ?`, entityID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return knowledge.ErrEntityNotFound
	}
	if err != nil {
		return persistErr("check entity exists", err)
	}
	return nil
}

func insertRelationship(ctx context.Context, tx *sql.Tx, r *knowledge.Relationship) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO relationships (`+relationshipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.SourceEntityID, r.TargetEntityID, r.Type, r.Description,
		r.Confidence, r.EvidenceCount, formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return persistErr("insert relationship", err)
	}
	return nil
}
