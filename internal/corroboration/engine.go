// Package corroboration strengthens beliefs that multiple independent
// documents agree on. An entity name extracted from several sources is better
// supported than the same name seen once, and every occurrence shares the
// boost.
package corroboration

import (
	"context"
	"fmt"
	"sort"

	"github.com/archivistalabs/archivista/internal/knowledge"
	"go.uber.org/zap"
)

// Defaults for engine construction.
const (
	DefaultThreshold        = 0.7
	DefaultMinDocuments     = 2
	DefaultMaxOpportunities = 10
	DefaultLearningRate     = 0.3

	strengthCap      = 0.9
	perDocumentBonus = 0.1
)

// Recommended action labels, strongest first.
const (
	ActionStrong   = "strong_corroboration"
	ActionModerate = "moderate_corroboration"
	ActionWeak     = "weak_corroboration"
	ActionNone     = "no_action"
)

// Opportunity is one corroborated entity name and the boost it would earn.
type Opportunity struct {
	Name            string   `json:"name"`
	EntityIDs       []string `json:"entity_ids"`
	SourceDocuments []string `json:"source_documents"`
	AvgConfidence   float64  `json:"avg_confidence"`
	Strength        float64  `json:"strength"`
	Action          string   `json:"action"`
}

// Result aggregates one corroboration pass.
type Result struct {
	OpportunitiesFound int      `json:"opportunities_found"`
	EntitiesUpdated    int      `json:"entities_updated"`
	Errors             []string `json:"errors,omitempty"`
}

// Engine discovers and applies corroboration for one user's graph.
type Engine struct {
	store            knowledge.Store
	logger           *zap.Logger
	threshold        float64
	minDocuments     int
	maxOpportunities int
	learningRate     float64
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithThreshold sets the minimum strength an opportunity needs before Apply
// will act on it.
func WithThreshold(threshold float64) Option {
	return func(e *Engine) { e.threshold = threshold }
}

// WithMinDocuments sets how many distinct source documents count as
// corroboration.
func WithMinDocuments(n int) Option {
	return func(e *Engine) {
		if n > 1 {
			e.minDocuments = n
		}
	}
}

// WithMaxOpportunities caps how many opportunities are returned and applied
// per pass.
func WithMaxOpportunities(n int) Option {
	return func(e *Engine) { e.maxOpportunities = n }
}

// New creates a corroboration engine with defaults.
func New(store knowledge.Store, opts ...Option) *Engine {
	e := &Engine{
		store:            store,
		logger:           zap.NewNop(),
		threshold:        DefaultThreshold,
		minDocuments:     DefaultMinDocuments,
		maxOpportunities: DefaultMaxOpportunities,
		learningRate:     DefaultLearningRate,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FindOpportunities groups the user's entities by exact name and keeps
// groups seen in at least minDocuments distinct source documents. Strength
// is the group's average confidence plus a bonus per extra document, capped.
// Results are ranked by strength, strongest first, capped at
// maxOpportunities.
func (e *Engine) FindOpportunities(ctx context.Context, userID string) ([]Opportunity, error) {
	entities, err := e.store.ListEntities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find corroboration: %w", err)
	}

	byName := map[string][]*knowledge.Entity{}
	for _, ent := range entities {
		byName[ent.Name] = append(byName[ent.Name], ent)
	}

	var out []Opportunity
	for name, group := range byName {
		opp, ok := e.opportunityFromGroup(name, group)
		if !ok {
			continue
		}
		out = append(out, opp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].Name < out[j].Name
	})
	if e.maxOpportunities > 0 && len(out) > e.maxOpportunities {
		out = out[:e.maxOpportunities]
	}
	return out, nil
}

// opportunityFromGroup evaluates one name's occurrences. ok is false when the
// group is not seen in enough distinct documents.
func (e *Engine) opportunityFromGroup(name string, group []*knowledge.Entity) (Opportunity, bool) {
	docs := map[string]bool{}
	var sum float64
	var ids []string
	for _, ent := range group {
		if ent.SourceDocument != "" {
			docs[ent.SourceDocument] = true
		}
		sum += ent.Confidence
		ids = append(ids, ent.ID)
	}
	if len(docs) < e.minDocuments {
		return Opportunity{}, false
	}

	avg := sum / float64(len(group))
	strength := avg + perDocumentBonus*float64(len(docs)-1)
	if strength > strengthCap {
		strength = strengthCap
	}

	docList := make([]string, 0, len(docs))
	for d := range docs {
		docList = append(docList, d)
	}
	sort.Strings(docList)
	sort.Strings(ids)

	return Opportunity{
		Name:            name,
		EntityIDs:       ids,
		SourceDocuments: docList,
		AvgConfidence:   avg,
		Strength:        strength,
		Action:          actionFor(strength),
	}, true
}

func actionFor(strength float64) string {
	switch {
	case strength >= 0.8:
		return ActionStrong
	case strength >= 0.7:
		return ActionModerate
	case strength >= 0.6:
		return ActionWeak
	default:
		return ActionNone
	}
}

// Apply boosts every occurrence of each opportunity at or above the
// threshold, appending a corroboration evidence record per occurrence.
// Per-entity failures are collected, not fatal.
func (e *Engine) Apply(ctx context.Context, userID string) (*Result, error) {
	opportunities, err := e.FindOpportunities(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := &Result{OpportunitiesFound: len(opportunities)}
	for _, opp := range opportunities {
		e.applyOpportunity(ctx, userID, opp, res)
	}

	e.logger.Info("corroboration pass complete",
		zap.String("user_id", userID),
		zap.Int("opportunities", res.OpportunitiesFound),
		zap.Int("entities_updated", res.EntitiesUpdated),
		zap.Int("errors", len(res.Errors)))
	return res, nil
}

// ApplyForName corroborates a single entity name, leaving the rest of the
// user's graph untouched. Used by the post-commit hook so that new evidence
// for one name never boosts unrelated names.
func (e *Engine) ApplyForName(ctx context.Context, userID, name string) (*Result, error) {
	group, err := e.store.EntitiesByName(ctx, userID, name)
	if err != nil {
		return nil, fmt.Errorf("corroborate %q: %w", name, err)
	}

	res := &Result{}
	opp, ok := e.opportunityFromGroup(name, group)
	if !ok {
		return res, nil
	}
	res.OpportunitiesFound = 1
	e.applyOpportunity(ctx, userID, opp, res)

	if res.EntitiesUpdated > 0 {
		e.logger.Info("name corroborated",
			zap.String("user_id", userID),
			zap.String("name", name),
			zap.Int("entities_updated", res.EntitiesUpdated))
	}
	return res, nil
}

func (e *Engine) applyOpportunity(ctx context.Context, userID string, opp Opportunity, res *Result) {
	if opp.Strength < e.threshold {
		return
	}
	for _, id := range opp.EntityIDs {
		if err := e.boost(ctx, userID, id, opp); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("entity %s: %v", id, err))
			e.logger.Warn("corroboration boost failed",
				zap.String("entity_id", id),
				zap.String("name", opp.Name),
				zap.Error(err))
			continue
		}
		res.EntitiesUpdated++
	}
}

func (e *Engine) boost(ctx context.Context, userID, entityID string, opp Opportunity) error {
	ent, err := e.store.GetEntity(ctx, userID, entityID)
	if err != nil {
		return err
	}

	next := knowledge.UpdateConfidence(ent.Confidence, opp.Strength, e.learningRate)
	desc := fmt.Sprintf("corroborated across %d documents", len(opp.SourceDocuments))
	rec, err := knowledge.NewEntityEvidence(entityID, knowledge.EvidenceCorroboration,
		"corroboration", opp.Strength, desc, ent.Confidence, next)
	if err != nil {
		return err
	}
	return e.store.ApplyEntityUpdate(ctx, userID, entityID, next, rec)
}
