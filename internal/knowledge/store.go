package knowledge

import (
	"context"
	"time"
)

// ConfidenceStatistics summarizes one user's graph for reporting.
type ConfidenceStatistics struct {
	TotalEntities             int            `json:"total_entities"`
	TotalRelationships        int            `json:"total_relationships"`
	TotalEvidence             int            `json:"total_evidence"`
	AvgEntityConfidence       float64        `json:"avg_entity_confidence"`
	AvgRelationshipConfidence float64        `json:"avg_relationship_confidence"`
	EntityDistribution        map[string]int `json:"entity_distribution"`
}

// Graph is a point-in-time snapshot of a user's knowledge graph filtered by a
// confidence floor.
type Graph struct {
	Entities      []*Entity       `json:"entities"`
	Relationships []*Relationship `json:"relationships"`
	MinConfidence float64         `json:"min_confidence"`
	GeneratedAt   time.Time       `json:"generated_at"`
}

// Store is the persistence boundary for the knowledge graph.
//
// Mutating operations are atomic: a confidence update and its evidence record
// commit together or not at all. FindOrCreateEntity guarantees at-most-one
// winner for concurrent calls on the same (user, name, type) key; losers
// receive the winner's row.
//
// Implementations map their own failures onto ErrPersistence and report
// missing rows with ErrEntityNotFound / ErrRelationshipNotFound.
type Store interface {
	// FindOrCreateEntity returns the existing entity with the candidate's
	// (user, name, type) key, or persists the candidate. The bool reports
	// whether a new row was created.
	FindOrCreateEntity(ctx context.Context, candidate *Entity) (*Entity, bool, error)

	// GetEntity fetches one entity by ID, scoped to the user.
	GetEntity(ctx context.Context, userID, entityID string) (*Entity, error)

	// EntitiesByName returns all of a user's entities sharing an exact name,
	// across entity types.
	EntitiesByName(ctx context.Context, userID, name string) ([]*Entity, error)

	// EntitiesByNameAllUsers returns every user's entities with an exact
	// name. Feeds the consensus aggregator.
	EntitiesByNameAllUsers(ctx context.Context, name string) ([]*Entity, error)

	// ListEntities returns all of a user's entities.
	ListEntities(ctx context.Context, userID string) ([]*Entity, error)

	// EntitiesBelowConfidence returns a user's entities with confidence
	// strictly below the threshold, lowest first. limit <= 0 means no limit.
	EntitiesBelowConfidence(ctx context.Context, userID string, threshold float64, limit int) ([]*Entity, error)

	// ApplyEntityUpdate sets the entity's confidence, bumps its evidence
	// count and UpdatedAt, and appends the evidence record atomically.
	ApplyEntityUpdate(ctx context.Context, userID, entityID string, newConfidence float64, evidence *EvidenceRecord) error

	// DeleteEntity removes an entity, its evidence, and any relationship
	// touching it (with that relationship's evidence).
	DeleteEntity(ctx context.Context, userID, entityID string) error

	// CreateRelationship persists a relationship. Both endpoints must exist
	// and belong to the same user or ErrEntityNotFound is returned.
	CreateRelationship(ctx context.Context, candidate *Relationship) (*Relationship, error)

	// FindOrCreateRelationship returns the existing relationship with the
	// candidate's (user, source, target, type) key, or persists the
	// candidate. The bool reports whether a new row was created.
	FindOrCreateRelationship(ctx context.Context, candidate *Relationship) (*Relationship, bool, error)

	// GetRelationship fetches one relationship by ID, scoped to the user.
	GetRelationship(ctx context.Context, userID, relationshipID string) (*Relationship, error)

	// ListRelationships returns all of a user's relationships.
	ListRelationships(ctx context.Context, userID string) ([]*Relationship, error)

	// RelationshipsTouching returns a user's relationships with the entity
	// at either end.
	RelationshipsTouching(ctx context.Context, userID, entityID string) ([]*Relationship, error)

	// ApplyRelationshipUpdate mirrors ApplyEntityUpdate for relationships.
	ApplyRelationshipUpdate(ctx context.Context, userID, relationshipID string, newConfidence float64, evidence *EvidenceRecord) error

	// EvidenceForEntity returns an entity's ledger, newest first.
	// limit <= 0 means no limit.
	EvidenceForEntity(ctx context.Context, entityID string, limit int) ([]*EvidenceRecord, error)

	// EvidenceForRelationship returns a relationship's ledger, newest first.
	EvidenceForRelationship(ctx context.Context, relationshipID string, limit int) ([]*EvidenceRecord, error)

	// RecentEvidence returns the newest evidence across a user's graph.
	RecentEvidence(ctx context.Context, userID string, limit int) ([]*EvidenceRecord, error)

	// CountEntityEvidence returns the ledger size for one entity.
	CountEntityEvidence(ctx context.Context, entityID string) (int, error)

	// ConfidenceStatistics aggregates counts, averages and the confidence
	// band distribution for one user.
	ConfidenceStatistics(ctx context.Context, userID string) (*ConfidenceStatistics, error)

	// KnowledgeGraph snapshots a user's entities and relationships at or
	// above a confidence floor.
	KnowledgeGraph(ctx context.Context, userID string, minConfidence float64) (*Graph, error)

	// Close releases storage resources.
	Close() error
}
