package analysis

import (
	"context"
	"testing"

	"github.com/archivistalabs/archivista/internal/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEntity(t *testing.T, store *knowledge.MemoryStore, userID, name string, entityType knowledge.EntityType, doc string, confidence float64) *knowledge.Entity {
	t.Helper()
	e, err := knowledge.NewEntity(userID, name, entityType, doc)
	require.NoError(t, err)
	e.Confidence = confidence
	stored, created, err := store.FindOrCreateEntity(context.Background(), e)
	require.NoError(t, err)
	require.True(t, created)
	return stored
}

func TestConsensusUnweightedAcrossUsers(t *testing.T) {
	ctx := context.Background()
	store := knowledge.NewMemoryStore()
	consensus := NewConsensus(store)

	// u1 holds two occurrences; their mean is one vote, same as u2's single
	// occurrence.
	seedEntity(t, store, "u1", "Entropy", knowledge.EntityConcept, "a.pdf", 0.8)
	seedEntity(t, store, "u1", "Entropy", knowledge.EntityFormula, "b.pdf", 0.6)
	seedEntity(t, store, "u2", "Entropy", knowledge.EntityConcept, "c.pdf", 0.5)

	entry, err := consensus.ForName(ctx, "Entropy")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.UserCount)
	assert.InDelta(t, 0.7, entry.PerUser["u1"], 1e-9)
	assert.InDelta(t, 0.5, entry.PerUser["u2"], 1e-9)
	assert.InDelta(t, 0.6, entry.ConsensusConfidence, 1e-9)
}

func TestConsensusAgreementBands(t *testing.T) {
	tests := []struct {
		name      string
		userConfs []float64
		agreement string
	}{
		{"identical beliefs agree highly", []float64{0.7, 0.7, 0.7}, AgreementHigh},
		{"small spread is still high", []float64{0.68, 0.75}, AgreementHigh},
		{"moderate spread is medium", []float64{0.5, 0.8}, AgreementMedium},
		{"wide spread is low", []float64{0.2, 0.9}, AgreementLow},
		{"single user agrees with itself", []float64{0.4}, AgreementHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := knowledge.NewMemoryStore()
			for i, conf := range tt.userConfs {
				userID := string(rune('a' + i))
				seedEntity(t, store, userID, "Topic", knowledge.EntityConcept, "d.pdf", conf)
			}
			entry, err := NewConsensus(store).ForName(ctx, "Topic")
			require.NoError(t, err)
			assert.Equal(t, tt.agreement, entry.Agreement)
		})
	}
}

func TestConsensusNoUsers(t *testing.T) {
	ctx := context.Background()
	entry, err := NewConsensus(knowledge.NewMemoryStore()).ForName(ctx, "Ghost")
	require.NoError(t, err)
	assert.Equal(t, AgreementNone, entry.Agreement)
	assert.Zero(t, entry.UserCount)
	assert.Zero(t, entry.ConsensusConfidence)
}

func TestConsensusAllNames(t *testing.T) {
	ctx := context.Background()
	store := knowledge.NewMemoryStore()

	seedEntity(t, store, "u1", "Beta", knowledge.EntityConcept, "d.pdf", 0.5)
	seedEntity(t, store, "u1", "Alpha", knowledge.EntityConcept, "d.pdf", 0.5)
	seedEntity(t, store, "u2", "Gamma", knowledge.EntityConcept, "d.pdf", 0.5)

	entries, err := NewConsensus(store).AllNames(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Alpha", entries[0].Name)
	assert.Equal(t, "Beta", entries[1].Name)
}
