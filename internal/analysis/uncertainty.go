package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/archivistalabs/archivista/internal/knowledge"
)

// Uncertainty factor names.
const (
	FactorSparsity     = "evidence_sparsity"
	FactorReliability  = "source_reliability"
	FactorTemporal     = "temporal_decay"
	FactorDisagreement = "user_disagreement"
	FactorComplexity   = "domain_complexity"
)

// Factor weights, summing to 1.
var uncertaintyWeights = map[string]float64{
	FactorSparsity:     0.3,
	FactorReliability:  0.25,
	FactorTemporal:     0.2,
	FactorDisagreement: 0.15,
	FactorComplexity:   0.1,
}

// Evidence sparsity saturates here: ten or more records mean no sparsity
// uncertainty at all.
const sparsitySaturation = 10

// UncertaintyAnalysis breaks one entity's uncertainty into weighted factors.
type UncertaintyAnalysis struct {
	EntityID             string             `json:"entity_id"`
	Name                 string             `json:"name"`
	Confidence           float64            `json:"confidence"`
	TotalUncertainty     float64            `json:"total_uncertainty"`
	ConfidenceEquivalent float64            `json:"confidence_equivalent"`
	Factors              map[string]float64 `json:"factors"`
	Recommendations      []string           `json:"recommendations"`
}

// Quantifier scores how uncertain each belief is, beyond the raw confidence
// number.
type Quantifier struct {
	store     knowledge.Store
	consensus *Consensus
}

// NewQuantifier creates an uncertainty quantifier.
func NewQuantifier(store knowledge.Store) *Quantifier {
	return &Quantifier{store: store, consensus: NewConsensus(store)}
}

// Analyze quantifies the uncertainty of one entity.
func (q *Quantifier) Analyze(ctx context.Context, userID, entityID string) (*UncertaintyAnalysis, error) {
	ent, err := q.store.GetEntity(ctx, userID, entityID)
	if err != nil {
		return nil, err
	}

	evidenceCount, err := q.store.CountEntityEvidence(ctx, entityID)
	if err != nil {
		return nil, err
	}
	consensus, err := q.consensus.ForName(ctx, ent.Name)
	if err != nil {
		return nil, err
	}

	factors := map[string]float64{
		FactorSparsity:     sparsityFactor(evidenceCount),
		FactorReliability:  reliabilityFactor(ent.SourceDocument),
		FactorTemporal:     temporalFactor(ent.CreatedAt, time.Now().UTC()),
		FactorDisagreement: disagreementFactor(consensus.Agreement),
		FactorComplexity:   ent.Type.Complexity(),
	}

	var total float64
	for name, value := range factors {
		total += uncertaintyWeights[name] * value
	}
	total = knowledge.Clamp01(total)

	return &UncertaintyAnalysis{
		EntityID:             ent.ID,
		Name:                 ent.Name,
		Confidence:           ent.Confidence,
		TotalUncertainty:     total,
		ConfidenceEquivalent: 1 - total,
		Factors:              factors,
		Recommendations:      uncertaintyRecommendations(factors),
	}, nil
}

func sparsityFactor(evidenceCount int) float64 {
	if evidenceCount >= sparsitySaturation {
		return 0
	}
	return 1 - float64(evidenceCount)/sparsitySaturation
}

// reliabilityFactor scores the source document by name. Academic material is
// trusted most, surveys next, everything else gets a flat baseline.
func reliabilityFactor(sourceDocument string) float64 {
	lower := strings.ToLower(sourceDocument)
	var reliability float64
	switch {
	case strings.Contains(lower, "academic") || strings.Contains(lower, "research"):
		reliability = 0.9
	case strings.Contains(lower, "review") || strings.Contains(lower, "meta"):
		reliability = 0.8
	default:
		reliability = 0.6
	}
	return 1 - reliability
}

func temporalFactor(createdAt, now time.Time) float64 {
	ageDays := int(now.Sub(createdAt).Hours() / 24)
	switch {
	case ageDays < 30:
		return 0.1
	case ageDays < 180:
		return 0.3
	case ageDays < 365:
		return 0.5
	default:
		return 0.7
	}
}

func disagreementFactor(agreement string) float64 {
	switch agreement {
	case AgreementHigh:
		return 0.1
	case AgreementMedium:
		return 0.3
	case AgreementLow:
		return 0.6
	default:
		return 0
	}
}

func uncertaintyRecommendations(factors map[string]float64) []string {
	var out []string
	if factors[FactorSparsity] > 0.5 {
		out = append(out, "gather more evidence from additional documents")
	}
	if factors[FactorReliability] > 0.3 {
		out = append(out, "verify against academic or research sources")
	}
	if factors[FactorTemporal] > 0.4 {
		out = append(out, "refresh this knowledge from recent material")
	}
	if factors[FactorDisagreement] >= 0.6 {
		out = append(out, "reconcile disagreement between users")
	}
	if factors[FactorComplexity] >= 0.5 {
		out = append(out, "break this topic into simpler, verifiable pieces")
	}
	return out
}
