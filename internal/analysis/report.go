package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/archivistalabs/archivista/internal/corroboration"
	"github.com/archivistalabs/archivista/internal/decay"
	"github.com/archivistalabs/archivista/internal/knowledge"
	"go.uber.org/zap"
)

// How many of the weakest entities get a full uncertainty breakdown in the
// report.
const reportUncertaintyBudget = 5

// Report bundles every analyzer's view of one user's graph.
type Report struct {
	UserID          string                          `json:"user_id"`
	GeneratedAt     time.Time                       `json:"generated_at"`
	Statistics      *knowledge.ConfidenceStatistics `json:"statistics"`
	Corroborations  []corroboration.Opportunity     `json:"corroboration_opportunities"`
	DecaySchedules  []decay.Schedule                `json:"decay_schedules"`
	Recommendations []Recommendation                `json:"recommendations"`
	Uncertainty     []*UncertaintyAnalysis          `json:"uncertainty_analyses"`
	Consensus       []*ConsensusEntry               `json:"consensus"`
	KeyInsights     []string                        `json:"key_insights"`
}

// Reporter composes the analyzers into one comprehensive report.
type Reporter struct {
	store        knowledge.Store
	corroborator *corroboration.Engine
	decayer      *decay.Engine
	recommender  *Recommender
	quantifier   *Quantifier
	consensus    *Consensus
	logger       *zap.Logger
}

// NewReporter creates a reporter over the given store and engines.
func NewReporter(store knowledge.Store, corroborator *corroboration.Engine, decayer *decay.Engine, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		store:        store,
		corroborator: corroborator,
		decayer:      decayer,
		recommender:  NewRecommender(store),
		quantifier:   NewQuantifier(store),
		consensus:    NewConsensus(store),
		logger:       logger,
	}
}

// Comprehensive runs every analyzer and distills key insights. The report is
// read-only: nothing it computes is written back.
func (r *Reporter) Comprehensive(ctx context.Context, userID string) (*Report, error) {
	stats, err := r.store.ConfidenceStatistics(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	opportunities, err := r.corroborator.FindOpportunities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	schedules, err := r.decayer.Analyze(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	recommendations, err := r.recommender.Recommend(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	consensus, err := r.consensus.AllNames(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	weakest, err := r.store.EntitiesBelowConfidence(ctx, userID, 1.01, reportUncertaintyBudget)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	uncertainty := make([]*UncertaintyAnalysis, 0, len(weakest))
	for _, ent := range weakest {
		ua, err := r.quantifier.Analyze(ctx, userID, ent.ID)
		if err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		uncertainty = append(uncertainty, ua)
	}

	report := &Report{
		UserID:          userID,
		GeneratedAt:     time.Now().UTC(),
		Statistics:      stats,
		Corroborations:  opportunities,
		DecaySchedules:  materialOnly(schedules),
		Recommendations: recommendations,
		Uncertainty:     uncertainty,
		Consensus:       consensus,
	}
	report.KeyInsights = insights(report)

	r.logger.Info("comprehensive report generated",
		zap.String("user_id", userID),
		zap.Int("entities", stats.TotalEntities),
		zap.Int("recommendations", len(recommendations)))
	return report, nil
}

func materialOnly(schedules []decay.Schedule) []decay.Schedule {
	var out []decay.Schedule
	for _, s := range schedules {
		if s.Material {
			out = append(out, s)
		}
	}
	return out
}

func insights(r *Report) []string {
	var out []string
	if r.Statistics.TotalEntities == 0 {
		return []string{"knowledge graph is empty; process documents to get started"}
	}

	out = append(out, fmt.Sprintf("%d entities averaging %.2f confidence",
		r.Statistics.TotalEntities, r.Statistics.AvgEntityConfidence))

	if n := len(r.Corroborations); n > 0 {
		out = append(out, fmt.Sprintf("%d entity names are corroborated across multiple documents", n))
	}
	if n := len(r.DecaySchedules); n > 0 {
		out = append(out, fmt.Sprintf("%d items are due for temporal decay", n))
	}

	contradictions := 0
	for _, rec := range r.Recommendations {
		if rec.Category == CategoryContradiction {
			contradictions++
		}
	}
	if contradictions > 0 {
		out = append(out, fmt.Sprintf("%d entity names carry contradictory evidence", contradictions))
	}

	disagreements := 0
	for _, entry := range r.Consensus {
		if entry.Agreement == AgreementLow {
			disagreements++
		}
	}
	if disagreements > 0 {
		out = append(out, fmt.Sprintf("users disagree on %d entity names", disagreements))
	}
	return out
}
