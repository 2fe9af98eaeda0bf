package knowledge

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and ephemeral runs. All
// methods are safe for concurrent use; a single mutex gives the same
// at-most-one-winner find-or-create guarantee the SQLite store gets from its
// unique index.
type MemoryStore struct {
	mu            sync.RWMutex
	entities      map[string]*Entity
	relationships map[string]*Relationship
	evidence      map[string]*EvidenceRecord
	evidenceSeq   map[string]int
	nextSeq       int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:      make(map[string]*Entity),
		relationships: make(map[string]*Relationship),
		evidence:      make(map[string]*EvidenceRecord),
		evidenceSeq:   make(map[string]int),
	}
}

func (s *MemoryStore) FindOrCreateEntity(ctx context.Context, candidate *Entity) (*Entity, bool, error) {
	if err := candidate.Validate(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entities {
		if e.UserID == candidate.UserID && e.Name == candidate.Name && e.Type == candidate.Type {
			return cloneEntity(e), false, nil
		}
	}
	s.entities[candidate.ID] = cloneEntity(candidate)
	return cloneEntity(candidate), true, nil
}

func (s *MemoryStore) GetEntity(ctx context.Context, userID, entityID string) (*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEntityLocked(userID, entityID)
}

func (s *MemoryStore) getEntityLocked(userID, entityID string) (*Entity, error) {
	e, ok := s.entities[entityID]
	if !ok || e.UserID != userID {
		return nil, ErrEntityNotFound
	}
	return cloneEntity(e), nil
}

func (s *MemoryStore) EntitiesByName(ctx context.Context, userID, name string) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entity
	for _, e := range s.entities {
		if e.UserID == userID && e.Name == name {
			out = append(out, cloneEntity(e))
		}
	}
	sortEntitiesByCreation(out)
	return out, nil
}

func (s *MemoryStore) EntitiesByNameAllUsers(ctx context.Context, name string) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entity
	for _, e := range s.entities {
		if e.Name == name {
			out = append(out, cloneEntity(e))
		}
	}
	sortEntitiesByCreation(out)
	return out, nil
}

func (s *MemoryStore) ListEntities(ctx context.Context, userID string) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entity
	for _, e := range s.entities {
		if e.UserID == userID {
			out = append(out, cloneEntity(e))
		}
	}
	sortEntitiesByCreation(out)
	return out, nil
}

func (s *MemoryStore) EntitiesBelowConfidence(ctx context.Context, userID string, threshold float64, limit int) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entity
	for _, e := range s.entities {
		if e.UserID == userID && e.Confidence < threshold {
			out = append(out, cloneEntity(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence < out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ApplyEntityUpdate(ctx context.Context, userID, entityID string, newConfidence float64, evidence *EvidenceRecord) error {
	if err := evidence.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[entityID]
	if !ok || e.UserID != userID {
		return ErrEntityNotFound
	}
	e.Confidence = newConfidence
	e.EvidenceCount++
	e.UpdatedAt = time.Now().UTC()
	s.appendEvidenceLocked(evidence)
	return nil
}

func (s *MemoryStore) DeleteEntity(ctx context.Context, userID, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[entityID]
	if !ok || e.UserID != userID {
		return ErrEntityNotFound
	}
	delete(s.entities, entityID)
	for id, r := range s.relationships {
		if r.UserID == userID && r.Touches(entityID) {
			delete(s.relationships, id)
			s.dropEvidenceLocked("", id)
		}
	}
	s.dropEvidenceLocked(entityID, "")
	return nil
}

func (s *MemoryStore) CreateRelationship(ctx context.Context, candidate *Relationship) (*Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createRelationshipLocked(candidate)
}

func (s *MemoryStore) createRelationshipLocked(candidate *Relationship) (*Relationship, error) {
	if _, err := s.getEntityLocked(candidate.UserID, candidate.SourceEntityID); err != nil {
		return nil, err
	}
	if _, err := s.getEntityLocked(candidate.UserID, candidate.TargetEntityID); err != nil {
		return nil, err
	}
	s.relationships[candidate.ID] = cloneRelationship(candidate)
	return cloneRelationship(candidate), nil
}

func (s *MemoryStore) FindOrCreateRelationship(ctx context.Context, candidate *Relationship) (*Relationship, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.relationships {
		if r.UserID == candidate.UserID &&
			r.SourceEntityID == candidate.SourceEntityID &&
			r.TargetEntityID == candidate.TargetEntityID &&
			r.Type == candidate.Type {
			return cloneRelationship(r), false, nil
		}
	}
	created, err := s.createRelationshipLocked(candidate)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (s *MemoryStore) GetRelationship(ctx context.Context, userID, relationshipID string) (*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.relationships[relationshipID]
	if !ok || r.UserID != userID {
		return nil, ErrRelationshipNotFound
	}
	return cloneRelationship(r), nil
}

func (s *MemoryStore) ListRelationships(ctx context.Context, userID string) ([]*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Relationship
	for _, r := range s.relationships {
		if r.UserID == userID {
			out = append(out, cloneRelationship(r))
		}
	}
	sortRelationshipsByCreation(out)
	return out, nil
}

func (s *MemoryStore) RelationshipsTouching(ctx context.Context, userID, entityID string) ([]*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Relationship
	for _, r := range s.relationships {
		if r.UserID == userID && r.Touches(entityID) {
			out = append(out, cloneRelationship(r))
		}
	}
	sortRelationshipsByCreation(out)
	return out, nil
}

func (s *MemoryStore) ApplyRelationshipUpdate(ctx context.Context, userID, relationshipID string, newConfidence float64, evidence *EvidenceRecord) error {
	if err := evidence.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.relationships[relationshipID]
	if !ok || r.UserID != userID {
		return ErrRelationshipNotFound
	}
	r.Confidence = newConfidence
	r.EvidenceCount++
	r.UpdatedAt = time.Now().UTC()
	s.appendEvidenceLocked(evidence)
	return nil
}

func (s *MemoryStore) EvidenceForEntity(ctx context.Context, entityID string, limit int) ([]*EvidenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*EvidenceRecord
	for _, rec := range s.evidence {
		if rec.EntityID == entityID {
			out = append(out, cloneEvidence(rec))
		}
	}
	s.sortEvidenceNewestFirst(out)
	return capEvidence(out, limit), nil
}

func (s *MemoryStore) EvidenceForRelationship(ctx context.Context, relationshipID string, limit int) ([]*EvidenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*EvidenceRecord
	for _, rec := range s.evidence {
		if rec.RelationshipID == relationshipID {
			out = append(out, cloneEvidence(rec))
		}
	}
	s.sortEvidenceNewestFirst(out)
	return capEvidence(out, limit), nil
}

func (s *MemoryStore) RecentEvidence(ctx context.Context, userID string, limit int) ([]*EvidenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := make(map[string]bool)
	for id, e := range s.entities {
		if e.UserID == userID {
			owned[id] = true
		}
	}
	ownedRel := make(map[string]bool)
	for id, r := range s.relationships {
		if r.UserID == userID {
			ownedRel[id] = true
		}
	}

	var out []*EvidenceRecord
	for _, rec := range s.evidence {
		if owned[rec.EntityID] || ownedRel[rec.RelationshipID] {
			out = append(out, cloneEvidence(rec))
		}
	}
	s.sortEvidenceNewestFirst(out)
	return capEvidence(out, limit), nil
}

func (s *MemoryStore) CountEntityEvidence(ctx context.Context, entityID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.evidence {
		if rec.EntityID == entityID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ConfidenceStatistics(ctx context.Context, userID string) (*ConfidenceStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &ConfidenceStatistics{
		EntityDistribution: map[string]int{},
	}
	var entitySum, relSum float64
	for _, e := range s.entities {
		if e.UserID != userID {
			continue
		}
		stats.TotalEntities++
		entitySum += e.Confidence
		stats.EntityDistribution[ConfidenceLabel(e.Confidence)]++
	}
	for _, r := range s.relationships {
		if r.UserID != userID {
			continue
		}
		stats.TotalRelationships++
		relSum += r.Confidence
	}
	for _, rec := range s.evidence {
		if e, ok := s.entities[rec.EntityID]; ok && e.UserID == userID {
			stats.TotalEvidence++
		} else if r, ok := s.relationships[rec.RelationshipID]; ok && r.UserID == userID {
			stats.TotalEvidence++
		}
	}
	if stats.TotalEntities > 0 {
		stats.AvgEntityConfidence = entitySum / float64(stats.TotalEntities)
	}
	if stats.TotalRelationships > 0 {
		stats.AvgRelationshipConfidence = relSum / float64(stats.TotalRelationships)
	}
	return stats, nil
}

func (s *MemoryStore) KnowledgeGraph(ctx context.Context, userID string, minConfidence float64) (*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := &Graph{
		MinConfidence: minConfidence,
		GeneratedAt:   time.Now().UTC(),
	}
	kept := make(map[string]bool)
	for _, e := range s.entities {
		if e.UserID == userID && e.Confidence >= minConfidence {
			g.Entities = append(g.Entities, cloneEntity(e))
			kept[e.ID] = true
		}
	}
	for _, r := range s.relationships {
		if r.UserID == userID && r.Confidence >= minConfidence && kept[r.SourceEntityID] && kept[r.TargetEntityID] {
			g.Relationships = append(g.Relationships, cloneRelationship(r))
		}
	}
	sortEntitiesByCreation(g.Entities)
	sortRelationshipsByCreation(g.Relationships)
	return g, nil
}

func (s *MemoryStore) Close() error { return nil }

// appendEvidenceLocked records insertion order so newest-first listings are
// stable even when timestamps collide.
func (s *MemoryStore) appendEvidenceLocked(rec *EvidenceRecord) {
	s.evidence[rec.ID] = cloneEvidence(rec)
	s.nextSeq++
	s.evidenceSeq[rec.ID] = s.nextSeq
}

func (s *MemoryStore) dropEvidenceLocked(entityID, relationshipID string) {
	for id, rec := range s.evidence {
		if (entityID != "" && rec.EntityID == entityID) || (relationshipID != "" && rec.RelationshipID == relationshipID) {
			delete(s.evidence, id)
			delete(s.evidenceSeq, id)
		}
	}
}

func (s *MemoryStore) sortEvidenceNewestFirst(recs []*EvidenceRecord) {
	sort.Slice(recs, func(i, j int) bool {
		return s.evidenceSeq[recs[i].ID] > s.evidenceSeq[recs[j].ID]
	})
}

func capEvidence(recs []*EvidenceRecord, limit int) []*EvidenceRecord {
	if limit > 0 && len(recs) > limit {
		return recs[:limit]
	}
	return recs
}

func sortEntitiesByCreation(entities []*Entity) {
	sort.Slice(entities, func(i, j int) bool {
		if !entities[i].CreatedAt.Equal(entities[j].CreatedAt) {
			return entities[i].CreatedAt.Before(entities[j].CreatedAt)
		}
		return entities[i].ID < entities[j].ID
	})
}

func sortRelationshipsByCreation(rels []*Relationship) {
	sort.Slice(rels, func(i, j int) bool {
		if !rels[i].CreatedAt.Equal(rels[j].CreatedAt) {
			return rels[i].CreatedAt.Before(rels[j].CreatedAt)
		}
		return rels[i].ID < rels[j].ID
	})
}

func cloneEntity(e *Entity) *Entity {
	c := *e
	return &c
}

func cloneRelationship(r *Relationship) *Relationship {
	c := *r
	return &c
}

func cloneEvidence(rec *EvidenceRecord) *EvidenceRecord {
	c := *rec
	return &c
}
