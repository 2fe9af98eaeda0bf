// Package decay lowers confidence on knowledge that has not been refreshed,
// and hosts the background scheduler that runs maintenance passes.
package decay

import (
	"context"
	"fmt"
	"time"

	"github.com/archivistalabs/archivista/internal/knowledge"
	"go.uber.org/zap"
)

// Age buckets in days and the decay rate each one applies per pass.
const (
	freshAgeDays  = 30
	agingAgeDays  = 90
	staleAgeDays  = 365
	agingRate     = 0.02
	staleRate     = 0.05
	ancientRate   = 0.1
	halfRateAbove = 0.8
)

// Defaults for engine construction.
const (
	DefaultMateriality = 0.01
	DefaultFloor       = 0.1
)

// Schedule describes one candidate decay, including why.
type Schedule struct {
	TargetID    string  `json:"target_id"`
	TargetKind  string  `json:"target_kind"`
	Name        string  `json:"name"`
	AgeDays     int     `json:"age_days"`
	Confidence  float64 `json:"confidence"`
	DecayFactor float64 `json:"decay_factor"`
	Recommended float64 `json:"recommended_confidence"`
	Material    bool    `json:"material"`
	Reasoning   string  `json:"reasoning"`
}

// Result aggregates one decay pass.
type Result struct {
	EntitiesDecayed      int      `json:"entities_decayed"`
	RelationshipsDecayed int      `json:"relationships_decayed"`
	Skipped              int      `json:"skipped"`
	Errors               []string `json:"errors,omitempty"`
}

// Engine computes and applies temporal decay for one user's graph.
type Engine struct {
	store             knowledge.Store
	logger            *zap.Logger
	highConfThreshold float64
	materiality       float64
	floor             float64
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

// WithThresholds overrides the high-confidence threshold, the materiality
// threshold, and the confidence floor.
func WithThresholds(highConf, materiality, floor float64) Option {
	return func(e *Engine) {
		e.highConfThreshold = highConf
		e.materiality = materiality
		e.floor = floor
	}
}

// New creates a decay engine with default thresholds.
func New(store knowledge.Store, opts ...Option) *Engine {
	e := &Engine{
		store:             store,
		logger:            zap.NewNop(),
		highConfThreshold: halfRateAbove,
		materiality:       DefaultMateriality,
		floor:             DefaultFloor,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// rate returns the per-pass decay rate for an item's age, halved for
// well-established beliefs so strong knowledge fades slower.
func (e *Engine) rate(ageDays int, confidence float64) (float64, string) {
	var r float64
	var reason string
	switch {
	case ageDays < freshAgeDays:
		return 0, fmt.Sprintf("fresh knowledge (%dd old), no decay", ageDays)
	case ageDays < agingAgeDays:
		r, reason = agingRate, fmt.Sprintf("aging knowledge (%dd old), light decay", ageDays)
	case ageDays < staleAgeDays:
		r, reason = staleRate, fmt.Sprintf("stale knowledge (%dd old), standard decay", ageDays)
	default:
		r, reason = ancientRate, fmt.Sprintf("knowledge over a year old (%dd), heavy decay", ageDays)
	}
	if confidence >= e.highConfThreshold {
		r /= 2
		reason += "; high confidence halves the rate"
	}
	return r, reason
}

// schedule computes the decay plan for one item without applying it.
func (e *Engine) schedule(id, kind, name string, createdAt time.Time, confidence float64, now time.Time) Schedule {
	age := int(now.Sub(createdAt).Hours() / 24)
	rate, reason := e.rate(age, confidence)
	factor := 1.0 - rate
	recommended := confidence * factor
	if recommended < e.floor {
		recommended = e.floor
	}
	material := confidence-recommended >= e.materiality

	return Schedule{
		TargetID:    id,
		TargetKind:  kind,
		Name:        name,
		AgeDays:     age,
		Confidence:  confidence,
		DecayFactor: factor,
		Recommended: recommended,
		Material:    material,
		Reasoning:   reason,
	}
}

// Analyze returns the decay plan for every entity and relationship in the
// user's graph, newest reasoning included, without changing anything.
func (e *Engine) Analyze(ctx context.Context, userID string) ([]Schedule, error) {
	now := time.Now().UTC()

	entities, err := e.store.ListEntities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("analyze decay: %w", err)
	}
	rels, err := e.store.ListRelationships(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("analyze decay: %w", err)
	}

	schedules := make([]Schedule, 0, len(entities)+len(rels))
	for _, ent := range entities {
		schedules = append(schedules, e.schedule(ent.ID, "entity", ent.Name, ent.CreatedAt, ent.Confidence, now))
	}
	for _, rel := range rels {
		name := string(rel.Type)
		schedules = append(schedules, e.schedule(rel.ID, "relationship", name, rel.CreatedAt, rel.Confidence, now))
	}
	return schedules, nil
}

// Apply runs one decay pass over the user's graph. Only material decays are
// written; each write appends a temporal_decay evidence record. maxItems <= 0
// means no cap. Per-item failures are collected, not fatal.
func (e *Engine) Apply(ctx context.Context, userID string, maxItems int) (*Result, error) {
	schedules, err := e.Analyze(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	applied := 0
	for _, sched := range schedules {
		if !sched.Material {
			res.Skipped++
			continue
		}
		if maxItems > 0 && applied >= maxItems {
			res.Skipped++
			continue
		}

		if err := e.applyOne(ctx, userID, sched); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s %s: %v", sched.TargetKind, sched.TargetID, err))
			e.logger.Warn("decay application failed",
				zap.String("target_kind", sched.TargetKind),
				zap.String("target_id", sched.TargetID),
				zap.Error(err))
			continue
		}
		applied++
		if sched.TargetKind == "entity" {
			res.EntitiesDecayed++
		} else {
			res.RelationshipsDecayed++
		}
	}

	e.logger.Info("decay pass complete",
		zap.String("user_id", userID),
		zap.Int("entities_decayed", res.EntitiesDecayed),
		zap.Int("relationships_decayed", res.RelationshipsDecayed),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", len(res.Errors)))
	return res, nil
}

func (e *Engine) applyOne(ctx context.Context, userID string, sched Schedule) error {
	desc := fmt.Sprintf("temporal decay after %d days: %s", sched.AgeDays, sched.Reasoning)
	strength, _ := knowledge.EvidenceTemporalDecay.BaseStrength()

	if sched.TargetKind == "entity" {
		rec, err := knowledge.NewEntityEvidence(sched.TargetID, knowledge.EvidenceTemporalDecay,
			"temporal_decay", strength, desc, sched.Confidence, sched.Recommended)
		if err != nil {
			return err
		}
		return e.store.ApplyEntityUpdate(ctx, userID, sched.TargetID, sched.Recommended, rec)
	}
	rec, err := knowledge.NewRelationshipEvidence(sched.TargetID, knowledge.EvidenceTemporalDecay,
		"temporal_decay", strength, desc, sched.Confidence, sched.Recommended)
	if err != nil {
		return err
	}
	return e.store.ApplyRelationshipUpdate(ctx, userID, sched.TargetID, sched.Recommended, rec)
}
