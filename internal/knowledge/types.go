package knowledge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityType classifies what kind of knowledge an entity represents.
type EntityType string

const (
	EntityConcept   EntityType = "concept"
	EntityTheory    EntityType = "theory"
	EntityAuthor    EntityType = "author"
	EntityFormula   EntityType = "formula"
	EntityTechnique EntityType = "technique"
	EntityMethod    EntityType = "method"
)

// ParseEntityType validates a raw string against the closed vocabulary.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	switch t {
	case EntityConcept, EntityTheory, EntityAuthor, EntityFormula, EntityTechnique, EntityMethod:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntityType, s)
}

// Complexity returns the domain-complexity score used by the uncertainty
// quantifier. Theories are the hardest to pin down, authors the easiest.
func (t EntityType) Complexity() float64 {
	switch t {
	case EntityConcept:
		return 0.3
	case EntityTheory:
		return 0.5
	case EntityFormula:
		return 0.2
	case EntityTechnique, EntityMethod:
		return 0.4
	case EntityAuthor:
		return 0.1
	default:
		return 0.3
	}
}

// RelationshipType classifies a directed edge between two entities.
type RelationshipType string

const (
	RelProposedBy      RelationshipType = "proposed_by"
	RelRelatedTo       RelationshipType = "related_to"
	RelPartOf          RelationshipType = "part_of"
	RelPrerequisiteFor RelationshipType = "prerequisite_for"
	RelExampleOf       RelationshipType = "example_of"
	RelContradicts     RelationshipType = "contradicts"
	RelExtends         RelationshipType = "extends"
)

// ParseRelationshipType validates a raw string against the closed vocabulary.
func ParseRelationshipType(s string) (RelationshipType, error) {
	t := RelationshipType(s)
	switch t {
	case RelProposedBy, RelRelatedTo, RelPartOf, RelPrerequisiteFor, RelExampleOf, RelContradicts, RelExtends:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRelationType, s)
}

// EvidenceType identifies the kind of signal justifying a confidence update.
type EvidenceType string

const (
	EvidenceDocumentExtraction   EvidenceType = "document_extraction"
	EvidenceUserFeedbackPositive EvidenceType = "user_feedback_positive"
	EvidenceUserFeedbackNegative EvidenceType = "user_feedback_negative"
	EvidenceCorroboration        EvidenceType = "corroboration"
	EvidenceContradiction        EvidenceType = "contradiction"
	EvidenceTemporalDecay        EvidenceType = "temporal_decay"
	EvidenceCrossReference       EvidenceType = "cross_reference"
	EvidenceAuthorityEndorsement EvidenceType = "authority_endorsement"
)

// ParseEvidenceType validates a raw string against the closed vocabulary.
// Unknown types fail loudly so typos cannot silently dilute the ledger.
func ParseEvidenceType(s string) (EvidenceType, error) {
	t := EvidenceType(s)
	if _, err := t.BaseStrength(); err != nil {
		return "", err
	}
	return t, nil
}

// BaseStrength returns the contract weight for an evidence type. These exact
// values are relied upon by every engine; changing one changes how the whole
// graph converges.
func (t EvidenceType) BaseStrength() (float64, error) {
	switch t {
	case EvidenceDocumentExtraction:
		return 0.6, nil
	case EvidenceUserFeedbackPositive:
		return 0.9, nil
	case EvidenceUserFeedbackNegative:
		return 0.1, nil
	case EvidenceCorroboration:
		return 0.7, nil
	case EvidenceContradiction:
		return 0.2, nil
	case EvidenceTemporalDecay:
		return -0.05, nil
	case EvidenceCrossReference:
		return 0.65, nil
	case EvidenceAuthorityEndorsement:
		return 0.85, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEvidenceType, t)
}

// Entity is a concept, theory, author, formula, technique or method extracted
// from a document, scoped to one user.
//
// Entities are created on first extraction (or looked up when a same-named
// entity already exists for the user) and mutated only through confidence
// updates. The core never hard-deletes entities; deletion is a collaborator
// concern and cascades to the evidence ledger.
type Entity struct {
	// ID is the unique entity identifier (UUID).
	ID string `json:"id"`

	// UserID identifies the owning user.
	UserID string `json:"user_id"`

	// Type is one of the fixed entity vocabulary.
	Type EntityType `json:"entity_type"`

	// Name is the display name and half of the de-duplication key.
	Name string `json:"name"`

	// Description provides free-text context.
	Description string `json:"description,omitempty"`

	// Confidence is the current belief score, always in [0.0, 1.0].
	Confidence float64 `json:"confidence"`

	// EvidenceCount tracks how many evidence records contributed to the score.
	EvidenceCount int `json:"evidence_count"`

	// SourceDocument names the document this entity was first extracted from.
	SourceDocument string `json:"source_document"`

	// CreatedAt is when the entity was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the confidence last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates an entity with a generated UUID and the default
// maximally-uncertain confidence.
func NewEntity(userID, name string, entityType EntityType, sourceDocument string) (*Entity, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if name == "" {
		return nil, ErrEmptyEntityName
	}
	if _, err := ParseEntityType(string(entityType)); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Entity{
		ID:             uuid.New().String(),
		UserID:         userID,
		Type:           entityType,
		Name:           name,
		Confidence:     DefaultConfidence,
		SourceDocument: sourceDocument,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Validate checks the entity invariants.
func (e *Entity) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: entity ID cannot be empty", ErrValidation)
	}
	if e.UserID == "" {
		return ErrEmptyUserID
	}
	if e.Name == "" {
		return ErrEmptyEntityName
	}
	if _, err := ParseEntityType(string(e.Type)); err != nil {
		return err
	}
	if e.Confidence < 0.0 || e.Confidence > 1.0 {
		return ErrInvalidConfidence
	}
	return nil
}

// AgeDays returns whole days elapsed since the entity was created.
func (e *Entity) AgeDays(now time.Time) int {
	return int(now.Sub(e.CreatedAt).Hours() / 24)
}

// Relationship is a directed, typed edge between two entities owned by the
// same user. Both endpoints must exist before the relationship is created.
type Relationship struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	SourceEntityID string           `json:"source_entity_id"`
	TargetEntityID string           `json:"target_entity_id"`
	Type           RelationshipType `json:"relationship_type"`
	Description    string           `json:"description,omitempty"`

	// Confidence is the current belief score, always in [0.0, 1.0].
	Confidence float64 `json:"confidence"`

	EvidenceCount int       `json:"evidence_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewRelationship creates a relationship between two existing entity IDs.
func NewRelationship(userID, sourceEntityID, targetEntityID string, relType RelationshipType, description string) (*Relationship, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if sourceEntityID == "" || targetEntityID == "" {
		return nil, fmt.Errorf("%w: relationship endpoints cannot be empty", ErrValidation)
	}
	if _, err := ParseRelationshipType(string(relType)); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Relationship{
		ID:             uuid.New().String(),
		UserID:         userID,
		SourceEntityID: sourceEntityID,
		TargetEntityID: targetEntityID,
		Type:           relType,
		Description:    description,
		Confidence:     DefaultConfidence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Touches reports whether the relationship has the given entity at either end.
func (r *Relationship) Touches(entityID string) bool {
	return r.SourceEntityID == entityID || r.TargetEntityID == entityID
}

// EvidenceRecord is one immutable entry in the evidence ledger. Exactly one
// of EntityID or RelationshipID is set.
type EvidenceRecord struct {
	ID             string       `json:"id"`
	EntityID       string       `json:"entity_id,omitempty"`
	RelationshipID string       `json:"relationship_id,omitempty"`
	Type           EvidenceType `json:"evidence_type"`

	// Source labels where the evidence came from (document name, user tag,
	// system pass).
	Source string `json:"source"`

	// Strength is the effective strength that was applied, after the base
	// weight and any caller multiplier.
	Strength float64 `json:"strength"`

	Description string `json:"description"`

	// PreviousConfidence and NewConfidence snapshot the score transition so
	// the ledger alone can reconstruct belief history.
	PreviousConfidence float64 `json:"previous_confidence"`
	NewConfidence      float64 `json:"new_confidence"`

	CreatedAt time.Time `json:"created_at"`
}

// NewEntityEvidence creates a ledger record for an entity update.
func NewEntityEvidence(entityID string, evType EvidenceType, source string, strength float64, description string, prev, next float64) (*EvidenceRecord, error) {
	rec := &EvidenceRecord{
		ID:                 uuid.New().String(),
		EntityID:           entityID,
		Type:               evType,
		Source:             source,
		Strength:           strength,
		Description:        description,
		PreviousConfidence: prev,
		NewConfidence:      next,
		CreatedAt:          time.Now().UTC(),
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// NewRelationshipEvidence creates a ledger record for a relationship update.
func NewRelationshipEvidence(relationshipID string, evType EvidenceType, source string, strength float64, description string, prev, next float64) (*EvidenceRecord, error) {
	rec := &EvidenceRecord{
		ID:                 uuid.New().String(),
		RelationshipID:     relationshipID,
		Type:               evType,
		Source:             source,
		Strength:           strength,
		Description:        description,
		PreviousConfidence: prev,
		NewConfidence:      next,
		CreatedAt:          time.Now().UTC(),
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate checks the one-target invariant and the evidence type.
func (r *EvidenceRecord) Validate() error {
	if (r.EntityID == "") == (r.RelationshipID == "") {
		return ErrAmbiguousEvidence
	}
	if _, err := r.Type.BaseStrength(); err != nil {
		return err
	}
	return nil
}
