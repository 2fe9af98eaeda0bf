// Package inference is the single write gateway for confidence scores. Every
// belief change flows through Engine.UpdateBelief, which resolves the target,
// applies the evidence-weighted update, persists score and ledger entry
// atomically, and then dispatches post-commit hooks.
package inference

import (
	"context"
	"fmt"
	"math"

	"github.com/archivistalabs/archivista/internal/corroboration"
	"github.com/archivistalabs/archivista/internal/decay"
	"github.com/archivistalabs/archivista/internal/knowledge"
	"go.uber.org/zap"
)

// Multipliers applied to document-extracted items. Relationships are harder
// to extract reliably than entities, so they earn less.
const (
	entityExtractionMultiplier       = 0.8
	relationshipExtractionMultiplier = 0.7
)

// DefaultLearningRate balances responsiveness against stability.
const DefaultLearningRate = 0.3

// Engine applies confidence updates for one user.
type Engine struct {
	store        knowledge.Store
	userID       string
	logger       *zap.Logger
	learningRate float64
	hooks        []Hook
	corroborator *corroboration.Engine
	decayer      *decay.Engine
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

// WithLearningRate sets the update learning rate. Values outside [0.1, 0.8]
// are silently clamped.
func WithLearningRate(rate float64) Option {
	return func(e *Engine) { e.learningRate = knowledge.ClampLearningRate(rate) }
}

// WithCorroboration wires a corroboration engine and registers its
// post-commit hook.
func WithCorroboration(c *corroboration.Engine) Option {
	return func(e *Engine) {
		e.corroborator = c
		e.hooks = append(e.hooks, &corroborationHook{engine: c})
	}
}

// WithDecay wires a decay engine for ApplyTemporalDecayToAll.
func WithDecay(d *decay.Engine) Option {
	return func(e *Engine) { e.decayer = d }
}

// WithPropagation registers the endorsement propagation hook.
func WithPropagation() Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, &propagationHook{engine: e})
	}
}

// WithHook registers an additional post-commit hook.
func WithHook(h Hook) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, h) }
}

// New creates an engine for one user. userID must be non-empty.
func New(store knowledge.Store, userID string, opts ...Option) (*Engine, error) {
	if userID == "" {
		return nil, knowledge.ErrEmptyUserID
	}
	e := &Engine{
		store:        store,
		userID:       userID,
		logger:       zap.NewNop(),
		learningRate: DefaultLearningRate,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// UserID returns the user this engine writes for.
func (e *Engine) UserID() string { return e.userID }

// LearningRate returns the effective (clamped) learning rate.
func (e *Engine) LearningRate() float64 { return e.learningRate }

// UpdateBelief applies one confidence update. Validation and missing-target
// problems come back as errors wrapping knowledge.ErrValidation or
// knowledge.ErrNotFound; only storage faults wrap knowledge.ErrPersistence.
func (e *Engine) UpdateBelief(ctx context.Context, req Request) (*Result, error) {
	base, err := req.EvidenceType.BaseStrength()
	if err != nil {
		updatesTotal.WithLabelValues("invalid", string(req.EvidenceType)).Inc()
		return nil, err
	}
	strength := base * req.multiplier()

	var res *Result
	switch req.Target.kind {
	case targetEntityByID:
		res, err = e.updateEntityByID(ctx, req, strength)
	case targetEntityByName:
		res, err = e.updateEntityByName(ctx, req, strength)
	case targetRelationshipByID:
		res, err = e.updateRelationship(ctx, req, strength)
	default:
		updatesTotal.WithLabelValues("invalid", string(req.EvidenceType)).Inc()
		return nil, knowledge.ErrNoTarget
	}
	if err != nil {
		updatesTotal.WithLabelValues("error", string(req.EvidenceType)).Inc()
		return nil, err
	}

	updatesTotal.WithLabelValues("applied", string(req.EvidenceType)).Inc()
	confidenceChange.Observe(math.Abs(res.NewConfidence - res.PreviousConfidence))
	e.logger.Debug("belief updated",
		zap.String("target_kind", res.TargetKind),
		zap.String("target_id", res.TargetID),
		zap.String("evidence_type", string(req.EvidenceType)),
		zap.Float64("previous", res.PreviousConfidence),
		zap.Float64("new", res.NewConfidence))

	e.dispatchHooks(ctx, req, res)
	return res, nil
}

func (e *Engine) updateEntityByID(ctx context.Context, req Request, strength float64) (*Result, error) {
	ent, err := e.store.GetEntity(ctx, e.userID, req.Target.entityID)
	if err != nil {
		return nil, err
	}
	return e.applyEntityUpdate(ctx, ent, false, req, strength)
}

func (e *Engine) updateEntityByName(ctx context.Context, req Request, strength float64) (*Result, error) {
	candidate, err := knowledge.NewEntity(e.userID, req.Target.entityName, req.Target.entityType, req.Source)
	if err != nil {
		return nil, err
	}
	ent, created, err := e.store.FindOrCreateEntity(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if created {
		entitiesCreated.Inc()
	}
	return e.applyEntityUpdate(ctx, ent, created, req, strength)
}

func (e *Engine) applyEntityUpdate(ctx context.Context, ent *knowledge.Entity, created bool, req Request, strength float64) (*Result, error) {
	next := knowledge.UpdateConfidence(ent.Confidence, strength, e.learningRate)
	rec, err := knowledge.NewEntityEvidence(ent.ID, req.EvidenceType, req.Source, strength,
		req.Description, ent.Confidence, next)
	if err != nil {
		return nil, err
	}
	if err := e.store.ApplyEntityUpdate(ctx, e.userID, ent.ID, next, rec); err != nil {
		return nil, err
	}
	return &Result{
		TargetKind:         "entity",
		TargetID:           ent.ID,
		TargetName:         ent.Name,
		Created:            created,
		PreviousConfidence: ent.Confidence,
		NewConfidence:      next,
		Strength:           strength,
		EvidenceID:         rec.ID,
	}, nil
}

func (e *Engine) updateRelationship(ctx context.Context, req Request, strength float64) (*Result, error) {
	rel, err := e.store.GetRelationship(ctx, e.userID, req.Target.relationshipID)
	if err != nil {
		return nil, err
	}
	next := knowledge.UpdateConfidence(rel.Confidence, strength, e.learningRate)
	rec, err := knowledge.NewRelationshipEvidence(rel.ID, req.EvidenceType, req.Source, strength,
		req.Description, rel.Confidence, next)
	if err != nil {
		return nil, err
	}
	if err := e.store.ApplyRelationshipUpdate(ctx, e.userID, rel.ID, next, rec); err != nil {
		return nil, err
	}
	return &Result{
		TargetKind:         "relationship",
		TargetID:           rel.ID,
		PreviousConfidence: rel.Confidence,
		NewConfidence:      next,
		Strength:           strength,
		EvidenceID:         rec.ID,
	}, nil
}

// dispatchHooks runs post-commit hooks. Failures surface as result warnings
// and metrics, never as update failures.
func (e *Engine) dispatchHooks(ctx context.Context, req Request, res *Result) {
	if len(e.hooks) == 0 {
		return
	}
	ev := Event{
		UserID:             e.userID,
		TargetKind:         res.TargetKind,
		TargetID:           res.TargetID,
		TargetName:         res.TargetName,
		EvidenceType:       req.EvidenceType,
		PreviousConfidence: res.PreviousConfidence,
		NewConfidence:      res.NewConfidence,
		Source:             req.Source,
	}
	for _, h := range e.hooks {
		if err := h.OnConfidenceUpdated(ctx, ev); err != nil {
			sideEffectFailures.WithLabelValues(h.Name()).Inc()
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s hook: %v", h.Name(), err))
			e.logger.Warn("post-commit hook failed",
				zap.String("hook", h.Name()),
				zap.String("target_id", res.TargetID),
				zap.Error(err))
		}
	}
}

// ProcessDocumentEvidence records extraction evidence for every entity and
// relationship a document produced. Entities are created on first sight;
// relationship endpoints are resolved by name. Per-item failures accumulate
// and do not stop the batch.
func (e *Engine) ProcessDocumentEvidence(ctx context.Context, documentID string, entities []ExtractedEntity, relationships []ExtractedRelationship) (*BatchResult, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: document ID cannot be empty", knowledge.ErrValidation)
	}

	batch := &BatchResult{}
	for _, ext := range entities {
		res, err := e.UpdateBelief(ctx, Request{
			Target:             EntityByName(ext.Name, ext.Type),
			EvidenceType:       knowledge.EvidenceDocumentExtraction,
			Source:             documentID,
			Description:        ext.Description,
			StrengthMultiplier: entityExtractionMultiplier,
		})
		if err != nil {
			batch.Errors = append(batch.Errors, fmt.Sprintf("entity %q: %v", ext.Name, err))
			continue
		}
		batch.Results = append(batch.Results, res)
	}

	for _, ext := range relationships {
		res, err := e.processExtractedRelationship(ctx, documentID, ext)
		if err != nil {
			batch.Errors = append(batch.Errors,
				fmt.Sprintf("relationship %q -> %q: %v", ext.SourceName, ext.TargetName, err))
			continue
		}
		batch.Results = append(batch.Results, res)
	}

	e.logger.Info("document evidence processed",
		zap.String("document_id", documentID),
		zap.Int("updates", len(batch.Results)),
		zap.Int("errors", len(batch.Errors)))
	return batch, nil
}

func (e *Engine) processExtractedRelationship(ctx context.Context, documentID string, ext ExtractedRelationship) (*Result, error) {
	source, err := e.resolveEntityByName(ctx, ext.SourceName, documentID)
	if err != nil {
		return nil, err
	}
	target, err := e.resolveEntityByName(ctx, ext.TargetName, documentID)
	if err != nil {
		return nil, err
	}

	candidate, err := knowledge.NewRelationship(e.userID, source.ID, target.ID, ext.Type, ext.Description)
	if err != nil {
		return nil, err
	}
	rel, _, err := e.store.FindOrCreateRelationship(ctx, candidate)
	if err != nil {
		return nil, err
	}

	return e.UpdateBelief(ctx, Request{
		Target:             RelationshipByID(rel.ID),
		EvidenceType:       knowledge.EvidenceDocumentExtraction,
		Source:             documentID,
		Description:        ext.Description,
		StrengthMultiplier: relationshipExtractionMultiplier,
	})
}

func (e *Engine) resolveEntityByName(ctx context.Context, name, documentID string) (*knowledge.Entity, error) {
	candidate, err := knowledge.NewEntity(e.userID, name, knowledge.EntityConcept, documentID)
	if err != nil {
		return nil, err
	}
	ent, created, err := e.store.FindOrCreateEntity(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if created {
		entitiesCreated.Inc()
	}
	return ent, nil
}

// ProcessUserFeedback converts explicit feedback into evidence. strength in
// (0, 1] scales the feedback's weight; zero means full strength. Corrections
// count as negative evidence at twice the negative base, landing on the
// contract's 0.2 before scaling.
func (e *Engine) ProcessUserFeedback(ctx context.Context, target Target, feedback FeedbackType, strength float64, comment string) (*Result, error) {
	if strength == 0 {
		strength = 1.0
	}
	if strength < 0 || strength > 1 {
		return nil, fmt.Errorf("%w: feedback strength %v outside (0, 1]", knowledge.ErrValidation, strength)
	}

	var evType knowledge.EvidenceType
	var multiplier float64
	switch feedback {
	case FeedbackPositive:
		evType, multiplier = knowledge.EvidenceUserFeedbackPositive, 1.0
	case FeedbackNegative:
		evType, multiplier = knowledge.EvidenceUserFeedbackNegative, 1.0
	case FeedbackCorrection:
		evType, multiplier = knowledge.EvidenceUserFeedbackNegative, 2.0
	default:
		return nil, fmt.Errorf("%w: unknown feedback type %q", knowledge.ErrValidation, feedback)
	}

	return e.UpdateBelief(ctx, Request{
		Target:             target,
		EvidenceType:       evType,
		Source:             "user_feedback",
		Description:        comment,
		StrengthMultiplier: multiplier * strength,
	})
}

// ProcessEvidenceBatch applies updates sequentially, accumulating per-item
// failures. Success means an empty error list.
func (e *Engine) ProcessEvidenceBatch(ctx context.Context, reqs []Request) (*BatchResult, error) {
	batch := &BatchResult{}
	for i, req := range reqs {
		res, err := e.UpdateBelief(ctx, req)
		if err != nil {
			batch.Errors = append(batch.Errors, fmt.Sprintf("item %d: %v", i, err))
			continue
		}
		batch.Results = append(batch.Results, res)
	}
	return batch, nil
}

// ApplyTemporalDecayToAll runs one decay pass over the user's whole graph.
func (e *Engine) ApplyTemporalDecayToAll(ctx context.Context) (*decay.Result, error) {
	if e.decayer == nil {
		return &decay.Result{}, nil
	}
	return e.decayer.Apply(ctx, e.userID, 0)
}

// RunCorroboration runs one corroboration pass over the user's graph.
func (e *Engine) RunCorroboration(ctx context.Context) (*corroboration.Result, error) {
	if e.corroborator == nil {
		return &corroboration.Result{}, nil
	}
	return e.corroborator.Apply(ctx, e.userID)
}

// ConfidenceSummary reports graph statistics together with the engine's
// effective settings.
func (e *Engine) ConfidenceSummary(ctx context.Context) (*Summary, error) {
	stats, err := e.store.ConfidenceStatistics(ctx, e.userID)
	if err != nil {
		return nil, err
	}
	return &Summary{
		UserID:     e.userID,
		Statistics: stats,
		Settings: map[string]any{
			"learning_rate":          e.learningRate,
			"corroboration_enabled":  e.corroborator != nil,
			"temporal_decay_enabled": e.decayer != nil,
			"hooks":                  len(e.hooks),
		},
	}, nil
}

// ExportEvidenceHistory returns the ledger for one entity or relationship,
// newest first. Exactly one of entityID or relationshipID must be set.
func (e *Engine) ExportEvidenceHistory(ctx context.Context, entityID, relationshipID string, limit int) ([]*knowledge.EvidenceRecord, error) {
	switch {
	case entityID != "" && relationshipID != "":
		return nil, knowledge.ErrAmbiguousEvidence
	case entityID != "":
		if _, err := e.store.GetEntity(ctx, e.userID, entityID); err != nil {
			return nil, err
		}
		return e.store.EvidenceForEntity(ctx, entityID, limit)
	case relationshipID != "":
		if _, err := e.store.GetRelationship(ctx, e.userID, relationshipID); err != nil {
			return nil, err
		}
		return e.store.EvidenceForRelationship(ctx, relationshipID, limit)
	default:
		return nil, knowledge.ErrNoTarget
	}
}
