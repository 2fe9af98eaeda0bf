// Package analysis provides read-only views over the knowledge graph:
// improvement recommendations, uncertainty quantification, multi-user
// consensus, and a bundled report. Nothing in this package writes scores;
// all belief changes go through the inference engine.
package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/archivistalabs/archivista/internal/knowledge"
)

// Agreement levels for multi-user consensus.
const (
	AgreementHigh   = "high"
	AgreementMedium = "medium"
	AgreementLow    = "low"
	AgreementNone   = "none"
)

// Agreement classification boundaries on the stddev of per-user means.
const (
	agreementHighStddev   = 0.1
	agreementMediumStddev = 0.2
)

// ConsensusEntry summarizes what all users collectively believe about one
// entity name.
type ConsensusEntry struct {
	Name                string             `json:"name"`
	UserCount           int                `json:"user_count"`
	ConsensusConfidence float64            `json:"consensus_confidence"`
	Agreement           string             `json:"agreement"`
	PerUser             map[string]float64 `json:"per_user"`
}

// Consensus aggregates beliefs across users. Each user contributes one vote,
// the mean of their occurrences, regardless of how many entities they hold
// under the name.
type Consensus struct {
	store knowledge.Store
}

// NewConsensus creates a consensus aggregator.
func NewConsensus(store knowledge.Store) *Consensus {
	return &Consensus{store: store}
}

// ForName computes the consensus entry for one entity name.
func (c *Consensus) ForName(ctx context.Context, name string) (*ConsensusEntry, error) {
	entities, err := c.store.EntitiesByNameAllUsers(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("consensus for %q: %w", name, err)
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	for _, e := range entities {
		sums[e.UserID] += e.Confidence
		counts[e.UserID]++
	}

	entry := &ConsensusEntry{
		Name:    name,
		PerUser: map[string]float64{},
	}
	if len(sums) == 0 {
		entry.Agreement = AgreementNone
		return entry, nil
	}

	var total float64
	means := make([]float64, 0, len(sums))
	for userID, sum := range sums {
		mean := sum / float64(counts[userID])
		entry.PerUser[userID] = mean
		means = append(means, mean)
		total += mean
	}
	entry.UserCount = len(means)
	entry.ConsensusConfidence = total / float64(len(means))
	entry.Agreement = classifyAgreement(means, entry.ConsensusConfidence)
	return entry, nil
}

// AllNames computes consensus for every distinct entity name known to any
// user, sorted by name.
func (c *Consensus) AllNames(ctx context.Context, userID string) ([]*ConsensusEntry, error) {
	entities, err := c.store.ListEntities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("consensus names: %w", err)
	}

	seen := map[string]bool{}
	var names []string
	for _, e := range entities {
		if !seen[e.Name] {
			seen[e.Name] = true
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)

	out := make([]*ConsensusEntry, 0, len(names))
	for _, name := range names {
		entry, err := c.ForName(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func classifyAgreement(means []float64, mean float64) string {
	if len(means) == 0 {
		return AgreementNone
	}
	var variance float64
	for _, m := range means {
		variance += (m - mean) * (m - mean)
	}
	stddev := math.Sqrt(variance / float64(len(means)))

	switch {
	case stddev < agreementHighStddev:
		return AgreementHigh
	case stddev < agreementMediumStddev:
		return AgreementMedium
	default:
		return AgreementLow
	}
}
