package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/archivistalabs/archivista/internal/knowledge"
)

func (s *Store) FindOrCreateEntity(ctx context.Context, candidate *knowledge.Entity) (*knowledge.Entity, bool, error) {
	if err := candidate.Validate(); err != nil {
		return nil, false, err
	}

	// Insert-then-fetch: the unique index decides the winner, losers read
	// the winning row. ON CONFLICT DO NOTHING keeps the loser's insert
	// silent instead of erroring.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, name, entity_type) DO NOTHING`,
		candidate.ID, candidate.UserID, candidate.Type, candidate.Name, candidate.Description,
		candidate.Confidence, candidate.EvidenceCount, candidate.SourceDocument,
		formatTime(candidate.CreatedAt), formatTime(candidate.UpdatedAt))
	if err != nil {
		return nil, false, persistErr("insert entity", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, persistErr("insert entity", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE user_id = ? AND name = ? AND entity_type = ?`,
		candidate.UserID, candidate.Name, candidate.Type)
	e, err := scanEntity(row)
	if err != nil {
		return nil, false, err
	}
	return e, inserted > 0, nil
}

func (s *Store) GetEntity(ctx context.Context, userID, entityID string) (*knowledge.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entityColumns+` FROM entities WHERE id = ? AND user_id = ?`,
		entityID, userID)
	return scanEntity(row)
}

func (s *Store) EntitiesByName(ctx context.Context, userID, name string) ([]*knowledge.Entity, error) {
	return s.queryEntities(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE user_id = ? AND name = ? ORDER BY created_at, id`, userID, name)
}

func (s *Store) EntitiesByNameAllUsers(ctx context.Context, name string) ([]*knowledge.Entity, error) {
	return s.queryEntities(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE name = ? ORDER BY created_at, id`, name)
}

func (s *Store) ListEntities(ctx context.Context, userID string) ([]*knowledge.Entity, error) {
	return s.queryEntities(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE user_id = ? ORDER BY created_at, id`, userID)
}

func (s *Store) EntitiesBelowConfidence(ctx context.Context, userID string, threshold float64, limit int) ([]*knowledge.Entity, error) {
	q := `SELECT ` + entityColumns + ` FROM entities
		WHERE user_id = ? AND confidence < ? ORDER BY confidence, id`
	args := []any{userID, threshold}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEntities(ctx, q, args...)
}

func (s *Store) ApplyEntityUpdate(ctx context.Context, userID, entityID string, newConfidence float64, evidence *knowledge.EvidenceRecord) error {
	if err := evidence.Validate(); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE entities
			SET confidence = ?, evidence_count = evidence_count + 1, updated_at = ?
			WHERE id = ? AND user_id = ?`,
			newConfidence, formatTime(evidence.CreatedAt), entityID, userID)
		if err != nil {
			return persistErr("update entity confidence", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return persistErr("update entity confidence", err)
		}
		if n == 0 {
			return knowledge.ErrEntityNotFound
		}
		return insertEvidence(ctx, tx, evidence)
	})
}

func (s *Store) DeleteEntity(ctx context.Context, userID, entityID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM entities WHERE id = ? AND user_id = ?`, entityID, userID)
		if err != nil {
			return persistErr("delete entity", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return persistErr("delete entity", err)
		}
		if n == 0 {
			return knowledge.ErrEntityNotFound
		}
		return nil
	})
}

func (s *Store) ConfidenceStatistics(ctx context.Context, userID string) (*knowledge.ConfidenceStatistics, error) {
	stats := &knowledge.ConfidenceStatistics{
		EntityDistribution: map[string]int{},
	}

	entities, err := s.ListEntities(ctx, userID)
	if err != nil {
		return nil, err
	}
	var entitySum float64
	for _, e := range entities {
		entitySum += e.Confidence
		stats.EntityDistribution[knowledge.ConfidenceLabel(e.Confidence)]++
	}
	stats.TotalEntities = len(entities)
	if len(entities) > 0 {
		stats.AvgEntityConfidence = entitySum / float64(len(entities))
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(confidence), 0) FROM relationships WHERE user_id = ?`, userID)
	if err := row.Scan(&stats.TotalRelationships, &stats.AvgRelationshipConfidence); err != nil {
		return nil, persistErr("relationship statistics", err)
	}

	row = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM evidence ev
		LEFT JOIN entities e ON ev.entity_id = e.id
		LEFT JOIN relationships r ON ev.relationship_id = r.id
		WHERE e.user_id = ? OR r.user_id = ?`, userID, userID)
	if err := row.Scan(&stats.TotalEvidence); err != nil {
		return nil, persistErr("evidence statistics", err)
	}
	return stats, nil
}

func (s *Store) KnowledgeGraph(ctx context.Context, userID string, minConfidence float64) (*knowledge.Graph, error) {
	entities, err := s.queryEntities(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE user_id = ? AND confidence >= ? ORDER BY created_at, id`,
		userID, minConfidence)
	if err != nil {
		return nil, err
	}
	rels, err := s.queryRelationships(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE user_id = ? AND confidence >= ?
		AND source_entity_id IN (SELECT id FROM entities WHERE user_id = ? AND confidence >= ?)
		AND target_entity_id IN (SELECT id FROM entities WHERE user_id = ? AND confidence >= ?)
		ORDER BY created_at, id`,
		userID, minConfidence, userID, minConfidence, userID, minConfidence)
	if err != nil {
		return nil, err
	}
	return &knowledge.Graph{
		Entities:      entities,
		Relationships: rels,
		MinConfidence: minConfidence,
		GeneratedAt:   time.Now().UTC(),
	}, nil
}

func (s *Store) queryEntities(ctx context.Context, query string, args ...any) ([]*knowledge.Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("query entities", err)
	}
	defer rows.Close()

	var out []*knowledge.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("query entities", err)
	}
	return out, nil
}
