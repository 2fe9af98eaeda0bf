package inference

import (
	"context"
	"fmt"

	"github.com/archivistalabs/archivista/internal/corroboration"
	"github.com/archivistalabs/archivista/internal/knowledge"
)

// Event describes a committed confidence update. Hooks run after the commit;
// by the time a hook sees the event the new score is durable.
type Event struct {
	UserID             string
	TargetKind         string
	TargetID           string
	TargetName         string
	EvidenceType       knowledge.EvidenceType
	PreviousConfidence float64
	NewConfidence      float64
	Source             string
}

// Hook reacts to committed confidence updates. Hook errors are reported as
// warnings on the triggering result and never fail the update.
type Hook interface {
	Name() string
	OnConfidenceUpdated(ctx context.Context, ev Event) error
}

// corroborationHook re-checks corroboration for the one entity name the
// committed update touched.
type corroborationHook struct {
	engine *corroboration.Engine
}

func (h *corroborationHook) Name() string { return "corroboration" }

func (h *corroborationHook) OnConfidenceUpdated(ctx context.Context, ev Event) error {
	if ev.TargetKind != "entity" || ev.TargetName == "" {
		return nil
	}
	switch ev.EvidenceType {
	case knowledge.EvidenceDocumentExtraction, knowledge.EvidenceUserFeedbackPositive:
	default:
		return nil
	}
	_, err := h.engine.ApplyForName(ctx, ev.UserID, ev.TargetName)
	return err
}

// Fixed evidence strength for endorsement propagation. A small pull toward
// 0.1 applied at the engine's learning rate, so connected relationships move
// a little per endorsement rather than tracking the entity's score.
const propagationStrength = 0.1

// propagationHook nudges relationships touching a positively endorsed entity,
// recorded as cross_reference evidence.
type propagationHook struct {
	engine *Engine
}

func (h *propagationHook) Name() string { return "propagation" }

func (h *propagationHook) OnConfidenceUpdated(ctx context.Context, ev Event) error {
	if ev.TargetKind != "entity" || ev.EvidenceType != knowledge.EvidenceUserFeedbackPositive {
		return nil
	}

	rels, err := h.engine.store.RelationshipsTouching(ctx, ev.UserID, ev.TargetID)
	if err != nil {
		return err
	}
	for _, rel := range rels {
		next := knowledge.UpdateConfidence(rel.Confidence, propagationStrength, h.engine.learningRate)
		desc := fmt.Sprintf("endorsement of %q propagated to connected relationship", ev.TargetName)
		rec, err := knowledge.NewRelationshipEvidence(rel.ID, knowledge.EvidenceCrossReference,
			"propagation", propagationStrength, desc, rel.Confidence, next)
		if err != nil {
			return err
		}
		if err := h.engine.store.ApplyRelationshipUpdate(ctx, ev.UserID, rel.ID, next, rec); err != nil {
			return err
		}
	}
	return nil
}
