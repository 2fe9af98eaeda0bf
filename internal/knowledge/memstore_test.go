package knowledge

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEntity(t *testing.T, userID, name string, entityType EntityType, doc string) *Entity {
	t.Helper()
	e, err := NewEntity(userID, name, entityType, doc)
	require.NoError(t, err)
	return e
}

func TestFindOrCreateEntity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, created, err := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Bayes Theorem", EntityTheory, "paper.pdf"))
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, DefaultConfidence, first.Confidence)

	// Same key returns the existing row, new identity is discarded.
	second, created, err := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Bayes Theorem", EntityTheory, "other.pdf"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "paper.pdf", second.SourceDocument)

	// Different type is a different row.
	_, created, err = store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Bayes Theorem", EntityFormula, "notes.pdf"))
	require.NoError(t, err)
	assert.True(t, created)

	// Different user is a different row.
	_, created, err = store.FindOrCreateEntity(ctx, mustEntity(t, "u2", "Bayes Theorem", EntityTheory, "paper.pdf"))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestFindOrCreateEntityConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	const workers = 16
	var wg sync.WaitGroup
	createdCount := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Entropy", EntityConcept, "doc.pdf"))
			assert.NoError(t, err)
			createdCount <- created
		}()
	}
	wg.Wait()
	close(createdCount)

	wins := 0
	for created := range createdCount {
		if created {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one goroutine should create the entity")

	all, err := store.ListEntities(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestApplyEntityUpdateAppendsEvidence(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	e, _, err := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Entropy", EntityConcept, "doc.pdf"))
	require.NoError(t, err)

	rec, err := NewEntityEvidence(e.ID, EvidenceDocumentExtraction, "doc.pdf", 0.48, "extracted", 0.5, 0.494)
	require.NoError(t, err)
	require.NoError(t, store.ApplyEntityUpdate(ctx, "u1", e.ID, 0.494, rec))

	got, err := store.GetEntity(ctx, "u1", e.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.494, got.Confidence, 1e-9)
	assert.Equal(t, 1, got.EvidenceCount)

	ledger, err := store.EvidenceForEntity(ctx, e.ID, 0)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, EvidenceDocumentExtraction, ledger[0].Type)
	assert.Equal(t, 0.5, ledger[0].PreviousConfidence)

	n, err := store.CountEntityEvidence(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestApplyEntityUpdateScopedToUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	e, _, err := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Entropy", EntityConcept, "doc.pdf"))
	require.NoError(t, err)

	rec, err := NewEntityEvidence(e.ID, EvidenceCorroboration, "system", 0.7, "", 0.5, 0.56)
	require.NoError(t, err)
	err = store.ApplyEntityUpdate(ctx, "u2", e.ID, 0.56, rec)
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestCreateRelationshipRequiresEndpoints(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a, _, err := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Bayes Theorem", EntityTheory, "doc.pdf"))
	require.NoError(t, err)

	rel, err := NewRelationship("u1", a.ID, "missing", RelProposedBy, "")
	require.NoError(t, err)
	_, err = store.CreateRelationship(ctx, rel)
	assert.ErrorIs(t, err, ErrEntityNotFound)

	b, _, err := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Thomas Bayes", EntityAuthor, "doc.pdf"))
	require.NoError(t, err)

	rel, err = NewRelationship("u1", a.ID, b.ID, RelProposedBy, "")
	require.NoError(t, err)
	created, err := store.CreateRelationship(ctx, rel)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfidence, created.Confidence)

	touching, err := store.RelationshipsTouching(ctx, "u1", b.ID)
	require.NoError(t, err)
	require.Len(t, touching, 1)
	assert.Equal(t, created.ID, touching[0].ID)
}

func TestFindOrCreateRelationshipIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "A", EntityConcept, "d"))
	b, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "B", EntityConcept, "d"))

	r1, _ := NewRelationship("u1", a.ID, b.ID, RelRelatedTo, "")
	first, created, err := store.FindOrCreateRelationship(ctx, r1)
	require.NoError(t, err)
	assert.True(t, created)

	r2, _ := NewRelationship("u1", a.ID, b.ID, RelRelatedTo, "")
	second, created, err := store.FindOrCreateRelationship(ctx, r2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// Reversed direction is a distinct edge.
	r3, _ := NewRelationship("u1", b.ID, a.ID, RelRelatedTo, "")
	_, created, err = store.FindOrCreateRelationship(ctx, r3)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestDeleteEntityCascades(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "A", EntityConcept, "d"))
	b, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "B", EntityConcept, "d"))
	rel, _ := NewRelationship("u1", a.ID, b.ID, RelRelatedTo, "")
	created, err := store.CreateRelationship(ctx, rel)
	require.NoError(t, err)

	recE, _ := NewEntityEvidence(a.ID, EvidenceDocumentExtraction, "d", 0.48, "", 0.5, 0.49)
	require.NoError(t, store.ApplyEntityUpdate(ctx, "u1", a.ID, 0.49, recE))
	recR, _ := NewRelationshipEvidence(created.ID, EvidenceCrossReference, "system", 0.1, "", 0.5, 0.46)
	require.NoError(t, store.ApplyRelationshipUpdate(ctx, "u1", created.ID, 0.46, recR))

	require.NoError(t, store.DeleteEntity(ctx, "u1", a.ID))

	_, err = store.GetEntity(ctx, "u1", a.ID)
	assert.ErrorIs(t, err, ErrEntityNotFound)
	_, err = store.GetRelationship(ctx, "u1", created.ID)
	assert.ErrorIs(t, err, ErrRelationshipNotFound)

	ledger, err := store.EvidenceForEntity(ctx, a.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, ledger)
	ledger, err = store.EvidenceForRelationship(ctx, created.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, ledger)

	// B survives.
	_, err = store.GetEntity(ctx, "u1", b.ID)
	assert.NoError(t, err)
}

func TestRecentEvidenceNewestFirstAndScoped(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "A", EntityConcept, "d"))
	other, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u2", "X", EntityConcept, "d"))

	for i, conf := range []float64{0.53, 0.56, 0.6} {
		rec, err := NewEntityEvidence(a.ID, EvidenceDocumentExtraction, "d", 0.48, "", 0.5, conf)
		require.NoError(t, err)
		require.NoError(t, store.ApplyEntityUpdate(ctx, "u1", a.ID, conf, rec), "update %d", i)
	}
	recOther, _ := NewEntityEvidence(other.ID, EvidenceDocumentExtraction, "d", 0.48, "", 0.5, 0.52)
	require.NoError(t, store.ApplyEntityUpdate(ctx, "u2", other.ID, 0.52, recOther))

	recent, err := store.RecentEvidence(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.InDelta(t, 0.6, recent[0].NewConfidence, 1e-9)
	assert.InDelta(t, 0.56, recent[1].NewConfidence, 1e-9)
}

func TestEntitiesBelowConfidence(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	low, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Low", EntityConcept, "d"))
	rec, _ := NewEntityEvidence(low.ID, EvidenceUserFeedbackNegative, "user", 0.1, "", 0.5, 0.2)
	require.NoError(t, store.ApplyEntityUpdate(ctx, "u1", low.ID, 0.2, rec))
	store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Mid", EntityConcept, "d"))

	got, err := store.EntitiesBelowConfidence(ctx, "u1", 0.4, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Low", got[0].Name)
}

func TestConfidenceStatistics(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "A", EntityConcept, "d"))
	b, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "B", EntityConcept, "d"))
	rec, _ := NewEntityEvidence(a.ID, EvidenceAuthorityEndorsement, "expert", 0.85, "", 0.5, 0.9)
	require.NoError(t, store.ApplyEntityUpdate(ctx, "u1", a.ID, 0.9, rec))
	rel, _ := NewRelationship("u1", a.ID, b.ID, RelRelatedTo, "")
	_, err := store.CreateRelationship(ctx, rel)
	require.NoError(t, err)

	stats, err := store.ConfidenceStatistics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEntities)
	assert.Equal(t, 1, stats.TotalRelationships)
	assert.Equal(t, 1, stats.TotalEvidence)
	assert.InDelta(t, 0.7, stats.AvgEntityConfidence, 1e-9)
	assert.InDelta(t, 0.5, stats.AvgRelationshipConfidence, 1e-9)
	assert.Equal(t, 1, stats.EntityDistribution["Very High"])
	assert.Equal(t, 1, stats.EntityDistribution["Moderate"])
}

func TestKnowledgeGraphFiltersByFloor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "A", EntityConcept, "d"))
	b, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "B", EntityConcept, "d"))
	c, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "C", EntityConcept, "d"))

	recA, _ := NewEntityEvidence(a.ID, EvidenceUserFeedbackPositive, "user", 0.9, "", 0.5, 0.8)
	require.NoError(t, store.ApplyEntityUpdate(ctx, "u1", a.ID, 0.8, recA))
	recC, _ := NewEntityEvidence(c.ID, EvidenceUserFeedbackNegative, "user", 0.1, "", 0.5, 0.2)
	require.NoError(t, store.ApplyEntityUpdate(ctx, "u1", c.ID, 0.2, recC))

	relAB, _ := NewRelationship("u1", a.ID, b.ID, RelRelatedTo, "")
	store.CreateRelationship(ctx, relAB)
	relAC, _ := NewRelationship("u1", a.ID, c.ID, RelRelatedTo, "")
	store.CreateRelationship(ctx, relAC)

	graph, err := store.KnowledgeGraph(ctx, "u1", 0.5)
	require.NoError(t, err)
	assert.Len(t, graph.Entities, 2)
	// Edge to the filtered-out entity C is dropped too.
	require.Len(t, graph.Relationships, 1)
	assert.Equal(t, b.ID, graph.Relationships[0].TargetEntityID)
}

func TestEvidenceRecordValidation(t *testing.T) {
	_, err := NewEntityEvidence("", EvidenceCorroboration, "s", 0.7, "", 0.5, 0.56)
	assert.ErrorIs(t, err, ErrAmbiguousEvidence)

	rec := &EvidenceRecord{ID: "x", EntityID: "e", RelationshipID: "r", Type: EvidenceCorroboration}
	assert.ErrorIs(t, rec.Validate(), ErrAmbiguousEvidence)

	rec = &EvidenceRecord{ID: "x", EntityID: "e", Type: EvidenceType("gossip")}
	assert.ErrorIs(t, rec.Validate(), ErrUnknownEvidenceType)
}

func TestEntityValidation(t *testing.T) {
	_, err := NewEntity("", "A", EntityConcept, "d")
	assert.ErrorIs(t, err, ErrEmptyUserID)
	_, err = NewEntity("u1", "", EntityConcept, "d")
	assert.ErrorIs(t, err, ErrEmptyEntityName)
	_, err = NewEntity("u1", "A", EntityType("gadget"), "d")
	assert.ErrorIs(t, err, ErrUnknownEntityType)

	e := mustEntity(t, "u1", "A", EntityConcept, "d")
	e.Confidence = 1.5
	assert.ErrorIs(t, e.Validate(), ErrInvalidConfidence)
}
