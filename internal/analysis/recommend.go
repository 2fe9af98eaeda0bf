package analysis

import (
	"context"
	"fmt"
	"sort"

	"github.com/archivistalabs/archivista/internal/knowledge"
)

// Recommendation categories.
const (
	CategoryLowConfidence = "low_confidence"
	CategoryIsolated      = "isolated"
	CategoryContradiction = "contradiction"
)

// Category parameters: what triggers each one and what acting on it is
// expected to buy.
const (
	lowConfidenceThreshold = 0.4
	contradictionRange     = 0.3

	priorityContradiction = 0.9
	priorityLowConfidence = 0.8
	priorityIsolated      = 0.6

	gainContradiction = 0.4
	gainLowConfidence = 0.3
	gainIsolated      = 0.2
)

// Recommendation is one suggested action to improve the graph.
type Recommendation struct {
	Category     string  `json:"category"`
	EntityID     string  `json:"entity_id,omitempty"`
	Name         string  `json:"name"`
	Confidence   float64 `json:"confidence"`
	Priority     float64 `json:"priority"`
	Suggestion   string  `json:"suggestion"`
	ExpectedGain float64 `json:"expected_gain"`
}

// Recommender surfaces weak spots in a user's graph.
type Recommender struct {
	store knowledge.Store
}

// NewRecommender creates a recommendation engine.
func NewRecommender(store knowledge.Store) *Recommender {
	return &Recommender{store: store}
}

// Recommend returns suggested actions sorted by priority, highest first.
// limit <= 0 means no cap.
func (r *Recommender) Recommend(ctx context.Context, userID string, limit int) ([]Recommendation, error) {
	entities, err := r.store.ListEntities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("recommend: %w", err)
	}

	var out []Recommendation
	byName := map[string][]*knowledge.Entity{}
	for _, ent := range entities {
		byName[ent.Name] = append(byName[ent.Name], ent)

		if ent.Confidence < lowConfidenceThreshold {
			out = append(out, Recommendation{
				Category:     CategoryLowConfidence,
				EntityID:     ent.ID,
				Name:         ent.Name,
				Confidence:   ent.Confidence,
				Priority:     priorityLowConfidence,
				Suggestion:   fmt.Sprintf("gather supporting evidence for %q", ent.Name),
				ExpectedGain: gainLowConfidence,
			})
		}

		rels, err := r.store.RelationshipsTouching(ctx, userID, ent.ID)
		if err != nil {
			return nil, fmt.Errorf("recommend: %w", err)
		}
		if len(rels) == 0 {
			out = append(out, Recommendation{
				Category:     CategoryIsolated,
				EntityID:     ent.ID,
				Name:         ent.Name,
				Confidence:   ent.Confidence,
				Priority:     priorityIsolated,
				Suggestion:   fmt.Sprintf("connect %q to related knowledge", ent.Name),
				ExpectedGain: gainIsolated,
			})
		}
	}

	// A wide confidence spread across same-named occurrences means the
	// evidence disagrees with itself.
	for name, group := range byName {
		if len(group) < 2 {
			continue
		}
		low, high := group[0].Confidence, group[0].Confidence
		for _, ent := range group[1:] {
			if ent.Confidence < low {
				low = ent.Confidence
			}
			if ent.Confidence > high {
				high = ent.Confidence
			}
		}
		if high-low > contradictionRange {
			out = append(out, Recommendation{
				Category:     CategoryContradiction,
				Name:         name,
				Confidence:   low,
				Priority:     priorityContradiction,
				Suggestion:   fmt.Sprintf("resolve conflicting evidence about %q", name),
				ExpectedGain: gainContradiction,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
