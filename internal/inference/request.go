package inference

import (
	"github.com/archivistalabs/archivista/internal/knowledge"
)

type targetKind int

const (
	targetNone targetKind = iota
	targetEntityByID
	targetEntityByName
	targetRelationshipByID
)

// Target selects what a confidence update applies to. Exactly one variant is
// set; construct values only through EntityByID, EntityByName or
// RelationshipByID. The zero Target is invalid and rejected by UpdateBelief.
type Target struct {
	kind           targetKind
	entityID       string
	entityName     string
	entityType     knowledge.EntityType
	relationshipID string
}

// EntityByID targets an existing entity.
func EntityByID(id string) Target {
	return Target{kind: targetEntityByID, entityID: id}
}

// EntityByName targets an entity by its de-duplication key, creating it at
// default confidence when absent. An empty entityType defaults to concept.
func EntityByName(name string, entityType knowledge.EntityType) Target {
	if entityType == "" {
		entityType = knowledge.EntityConcept
	}
	return Target{kind: targetEntityByName, entityName: name, entityType: entityType}
}

// RelationshipByID targets an existing relationship.
func RelationshipByID(id string) Target {
	return Target{kind: targetRelationshipByID, relationshipID: id}
}

// Request is one confidence update.
type Request struct {
	Target       Target
	EvidenceType knowledge.EvidenceType

	// Source labels the evidence origin (document name, user tag, system
	// pass).
	Source      string
	Description string

	// StrengthMultiplier scales the evidence type's base strength. Zero
	// means 1.0.
	StrengthMultiplier float64
}

func (r *Request) multiplier() float64 {
	if r.StrengthMultiplier == 0 {
		return 1.0
	}
	return r.StrengthMultiplier
}

// Result reports one applied update.
type Result struct {
	TargetKind         string  `json:"target_kind"`
	TargetID           string  `json:"target_id"`
	TargetName         string  `json:"target_name,omitempty"`
	Created            bool    `json:"created"`
	PreviousConfidence float64 `json:"previous_confidence"`
	NewConfidence      float64 `json:"new_confidence"`
	Strength           float64 `json:"strength"`
	EvidenceID         string  `json:"evidence_id"`

	// Warnings carries post-commit side-effect failures. The update itself
	// committed.
	Warnings []string `json:"warnings,omitempty"`
}

// BatchResult aggregates a sequence of updates. Success means an empty
// Errors list; partial progress is never rolled back.
type BatchResult struct {
	Results []*Result `json:"results"`
	Errors  []string  `json:"errors,omitempty"`
}

// OK reports whether every item in the batch succeeded.
func (b *BatchResult) OK() bool { return len(b.Errors) == 0 }

// ExtractedEntity is one entity reported by the document pipeline.
type ExtractedEntity struct {
	Name        string               `json:"name"`
	Type        knowledge.EntityType `json:"entity_type"`
	Description string               `json:"description,omitempty"`
}

// ExtractedRelationship is one relationship reported by the document
// pipeline, referencing entities by name.
type ExtractedRelationship struct {
	SourceName  string                     `json:"source_name"`
	TargetName  string                     `json:"target_name"`
	Type        knowledge.RelationshipType `json:"relationship_type"`
	Description string                     `json:"description,omitempty"`
}

// FeedbackType classifies explicit user feedback.
type FeedbackType string

const (
	FeedbackPositive   FeedbackType = "positive"
	FeedbackNegative   FeedbackType = "negative"
	FeedbackCorrection FeedbackType = "correction"
)

// Summary bundles graph statistics with the engine's effective settings.
type Summary struct {
	UserID     string                          `json:"user_id"`
	Statistics *knowledge.ConfidenceStatistics `json:"statistics"`
	Settings   map[string]any                  `json:"settings"`
}
