package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/archivistalabs/archivista/internal/knowledge"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func mustEntity(t *testing.T, userID, name string, entityType knowledge.EntityType, doc string) *knowledge.Entity {
	t.Helper()
	e, err := knowledge.NewEntity(userID, name, entityType, doc)
	require.NoError(t, err)
	return e
}

func TestFindOrCreateEntityRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, created, err := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Bayes Theorem", knowledge.EntityTheory, "paper.pdf"))
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, knowledge.DefaultConfidence, first.Confidence)

	// Same key returns the existing row.
	second, created, err := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Bayes Theorem", knowledge.EntityTheory, "other.pdf"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "paper.pdf", second.SourceDocument)

	// Different type is a different row.
	_, created, err = store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Bayes Theorem", knowledge.EntityFormula, "notes.pdf"))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestGetEntityScopedToUser(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	e, _, err := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Entropy", knowledge.EntityConcept, "doc.pdf"))
	require.NoError(t, err)

	_, err = store.GetEntity(ctx, "u2", e.ID)
	assert.ErrorIs(t, err, knowledge.ErrEntityNotFound)

	got, err := store.GetEntity(ctx, "u1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Entropy", got.Name)
}

func TestApplyEntityUpdateTransactional(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	e, _, err := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Entropy", knowledge.EntityConcept, "doc.pdf"))
	require.NoError(t, err)

	rec, err := knowledge.NewEntityEvidence(e.ID, knowledge.EvidenceDocumentExtraction, "doc.pdf", 0.48, "extracted", 0.5, 0.494)
	require.NoError(t, err)
	require.NoError(t, store.ApplyEntityUpdate(ctx, "u1", e.ID, 0.494, rec))

	got, err := store.GetEntity(ctx, "u1", e.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.494, got.Confidence, 1e-9)
	assert.Equal(t, 1, got.EvidenceCount)

	ledger, err := store.EvidenceForEntity(ctx, e.ID, 0)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, knowledge.EvidenceDocumentExtraction, ledger[0].Type)

	// Wrong user leaves both the row and the ledger untouched.
	rec2, err := knowledge.NewEntityEvidence(e.ID, knowledge.EvidenceCorroboration, "system", 0.7, "", 0.494, 0.56)
	require.NoError(t, err)
	err = store.ApplyEntityUpdate(ctx, "u2", e.ID, 0.56, rec2)
	assert.ErrorIs(t, err, knowledge.ErrEntityNotFound)

	n, err := store.CountEntityEvidence(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRelationshipEndpointsMustExist(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a, _, err := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Bayes Theorem", knowledge.EntityTheory, "doc.pdf"))
	require.NoError(t, err)

	rel, err := knowledge.NewRelationship("u1", a.ID, "missing", knowledge.RelProposedBy, "")
	require.NoError(t, err)
	_, err = store.CreateRelationship(ctx, rel)
	assert.ErrorIs(t, err, knowledge.ErrEntityNotFound)

	b, _, err := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Thomas Bayes", knowledge.EntityAuthor, "doc.pdf"))
	require.NoError(t, err)

	rel, err = knowledge.NewRelationship("u1", a.ID, b.ID, knowledge.RelProposedBy, "")
	require.NoError(t, err)
	created, err := store.CreateRelationship(ctx, rel)
	require.NoError(t, err)

	touching, err := store.RelationshipsTouching(ctx, "u1", b.ID)
	require.NoError(t, err)
	require.Len(t, touching, 1)
	assert.Equal(t, created.ID, touching[0].ID)
}

func TestFindOrCreateRelationshipIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "A", knowledge.EntityConcept, "d"))
	b, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "B", knowledge.EntityConcept, "d"))

	r1, _ := knowledge.NewRelationship("u1", a.ID, b.ID, knowledge.RelRelatedTo, "")
	first, created, err := store.FindOrCreateRelationship(ctx, r1)
	require.NoError(t, err)
	assert.True(t, created)

	r2, _ := knowledge.NewRelationship("u1", a.ID, b.ID, knowledge.RelRelatedTo, "")
	second, created, err := store.FindOrCreateRelationship(ctx, r2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// Reversed direction is a distinct edge.
	r3, _ := knowledge.NewRelationship("u1", b.ID, a.ID, knowledge.RelRelatedTo, "")
	_, created, err = store.FindOrCreateRelationship(ctx, r3)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestDeleteEntityCascades(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "A", knowledge.EntityConcept, "d"))
	b, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "B", knowledge.EntityConcept, "d"))
	rel, _ := knowledge.NewRelationship("u1", a.ID, b.ID, knowledge.RelRelatedTo, "")
	created, err := store.CreateRelationship(ctx, rel)
	require.NoError(t, err)

	recE, _ := knowledge.NewEntityEvidence(a.ID, knowledge.EvidenceDocumentExtraction, "d", 0.48, "", 0.5, 0.49)
	require.NoError(t, store.ApplyEntityUpdate(ctx, "u1", a.ID, 0.49, recE))
	recR, _ := knowledge.NewRelationshipEvidence(created.ID, knowledge.EvidenceCrossReference, "system", 0.1, "", 0.5, 0.46)
	require.NoError(t, store.ApplyRelationshipUpdate(ctx, "u1", created.ID, 0.46, recR))

	require.NoError(t, store.DeleteEntity(ctx, "u1", a.ID))

	_, err = store.GetEntity(ctx, "u1", a.ID)
	assert.ErrorIs(t, err, knowledge.ErrEntityNotFound)
	_, err = store.GetRelationship(ctx, "u1", created.ID)
	assert.ErrorIs(t, err, knowledge.ErrRelationshipNotFound)

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

func TestRecentEvidenceOrderingAndLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "A", knowledge.EntityConcept, "d"))
	other, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u2", "X", knowledge.EntityConcept, "d"))

	for _, conf := range []float64{0.53, 0.56, 0.6} {
		rec, err := knowledge.NewEntityEvidence(a.ID, knowledge.EvidenceDocumentExtraction, "d", 0.48, "", 0.5, conf)
		require.NoError(t, err)
		require.NoError(t, store.ApplyEntityUpdate(ctx, "u1", a.ID, conf, rec))
	}
	recOther, _ := knowledge.NewEntityEvidence(other.ID, knowledge.EvidenceDocumentExtraction, "d", 0.48, "", 0.5, 0.52)
	require.NoError(t, store.ApplyEntityUpdate(ctx, "u2", other.ID, 0.52, recOther))

	recent, err := store.RecentEvidence(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.InDelta(t, 0.6, recent[0].NewConfidence, 1e-9)
	assert.InDelta(t, 0.56, recent[1].NewConfidence, 1e-9)
}

func TestStatisticsAndGraph(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "A", knowledge.EntityConcept, "d"))
	b, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "B", knowledge.EntityConcept, "d"))
	c, _, _ := store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "C", knowledge.EntityConcept, "d"))

	recA, _ := knowledge.NewEntityEvidence(a.ID, knowledge.EvidenceAuthorityEndorsement, "expert", 0.85, "", 0.5, 0.9)
	require.NoError(t, store.ApplyEntityUpdate(ctx, "u1", a.ID, 0.9, recA))
	recC, _ := knowledge.NewEntityEvidence(c.ID, knowledge.EvidenceUserFeedbackNegative, "user", 0.1, "", 0.5, 0.2)
	require.NoError(t, store.ApplyEntityUpdate(ctx, "u1", c.ID, 0.2, recC))

	relAB, _ := knowledge.NewRelationship("u1", a.ID, b.ID, knowledge.RelRelatedTo, "")
	_, err := store.CreateRelationship(ctx, relAB)
	require.NoError(t, err)
	relAC, _ := knowledge.NewRelationship("u1", a.ID, c.ID, knowledge.RelRelatedTo, "")
	_, err = store.CreateRelationship(ctx, relAC)
	require.NoError(t, err)

	stats, err := store.ConfidenceStatistics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEntities)
	assert.Equal(t, 2, stats.TotalRelationships)
	assert.Equal(t, 2, stats.TotalEvidence)
	assert.Equal(t, 1, stats.EntityDistribution["Very High"])

	graph, err := store.KnowledgeGraph(ctx, "u1", 0.5)
	require.NoError(t, err)
	assert.Len(t, graph.Entities, 2)
	// Edge to the filtered-out entity C is dropped too.
	require.Len(t, graph.Relationships, 1)
	assert.Equal(t, b.ID, graph.Relationships[0].TargetEntityID)
}

func TestEntitiesByNameAcrossUsers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	store.FindOrCreateEntity(ctx, mustEntity(t, "u1", "Entropy", knowledge.EntityConcept, "d"))
	store.FindOrCreateEntity(ctx, mustEntity(t, "u2", "Entropy", knowledge.EntityConcept, "d"))
	store.FindOrCreateEntity(ctx, mustEntity(t, "u2", "Entropy", knowledge.EntityFormula, "d"))

	mine, err := store.EntitiesByName(ctx, "u1", "Entropy")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := store.EntitiesByNameAllUsers(ctx, "Entropy")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	low, err := store.EntitiesBelowConfidence(ctx, "u2", 0.6, 1)
	require.NoError(t, err)
	assert.Len(t, low, 1)
}
