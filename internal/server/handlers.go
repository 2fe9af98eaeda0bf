package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/archivistalabs/archivista/internal/inference"
	"github.com/archivistalabs/archivista/internal/knowledge"
)

// beliefRequest is the wire shape of one confidence update. Exactly one of
// entity_id, entity_name, relationship_id selects the target.
type beliefRequest struct {
	EntityID           string  `json:"entity_id"`
	EntityName         string  `json:"entity_name"`
	EntityType         string  `json:"entity_type"`
	RelationshipID     string  `json:"relationship_id"`
	EvidenceType       string  `json:"evidence_type"`
	Source             string  `json:"source"`
	Description        string  `json:"description"`
	StrengthMultiplier float64 `json:"strength_multiplier"`
}

func (r *beliefRequest) target() (inference.Target, error) {
	set := 0
	if r.EntityID != "" {
		set++
	}
	if r.EntityName != "" {
		set++
	}
	if r.RelationshipID != "" {
		set++
	}
	if set != 1 {
		return inference.Target{}, fmt.Errorf("%w: exactly one of entity_id, entity_name, relationship_id required", knowledge.ErrValidation)
	}

	switch {
	case r.EntityID != "":
		return inference.EntityByID(r.EntityID), nil
	case r.RelationshipID != "":
		return inference.RelationshipByID(r.RelationshipID), nil
	default:
		var entityType knowledge.EntityType
		if r.EntityType != "" {
			parsed, err := knowledge.ParseEntityType(r.EntityType)
			if err != nil {
				return inference.Target{}, err
			}
			entityType = parsed
		}
		return inference.EntityByName(r.EntityName, entityType), nil
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpdateBelief(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return httpError(c, err)
	}
	var req beliefRequest
	if err := c.Bind(&req); err != nil {
		return httpError(c, fmt.Errorf("%w: %v", knowledge.ErrValidation, err))
	}
	target, err := req.target()
	if err != nil {
		return httpError(c, err)
	}
	evType, err := knowledge.ParseEvidenceType(req.EvidenceType)
	if err != nil {
		return httpError(c, err)
	}

	engine, err := s.engineFor(uid)
	if err != nil {
		return httpError(c, err)
	}
	res, err := engine.UpdateBelief(c.Request().Context(), inference.Request{
		Target:             target,
		EvidenceType:       evType,
		Source:             req.Source,
		Description:        req.Description,
		StrengthMultiplier: req.StrengthMultiplier,
	})
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type documentEvidenceRequest struct {
	Entities      []inference.ExtractedEntity       `json:"entities"`
	Relationships []inference.ExtractedRelationship `json:"relationships"`
}

func (s *Server) handleDocumentEvidence(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return httpError(c, err)
	}
	var req documentEvidenceRequest
	if err := c.Bind(&req); err != nil {
		return httpError(c, fmt.Errorf("%w: %v", knowledge.ErrValidation, err))
	}

	engine, err := s.engineFor(uid)
	if err != nil {
		return httpError(c, err)
	}
	batch, err := engine.ProcessDocumentEvidence(c.Request().Context(), c.Param("id"), req.Entities, req.Relationships)
	if err != nil {
		return httpError(c, err)
	}
	status := http.StatusOK
	if !batch.OK() {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, batch)
}

type feedbackRequest struct {
	EntityID       string `json:"entity_id"`
	RelationshipID string `json:"relationship_id"`
	FeedbackType   string `json:"feedback_type"`
	// Strength scales the feedback in (0, 1]. Zero means 1.0.
	Strength float64 `json:"strength"`
	Comment  string  `json:"comment"`
}

func (s *Server) handleFeedback(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return httpError(c, err)
	}
	var req feedbackRequest
	if err := c.Bind(&req); err != nil {
		return httpError(c, fmt.Errorf("%w: %v", knowledge.ErrValidation, err))
	}

	var target inference.Target
	switch {
	case req.EntityID != "" && req.RelationshipID == "":
		target = inference.EntityByID(req.EntityID)
	case req.RelationshipID != "" && req.EntityID == "":
		target = inference.RelationshipByID(req.RelationshipID)
	default:
		return httpError(c, fmt.Errorf("%w: exactly one of entity_id, relationship_id required", knowledge.ErrValidation))
	}

	engine, err := s.engineFor(uid)
	if err != nil {
		return httpError(c, err)
	}
	res, err := engine.ProcessUserFeedback(c.Request().Context(), target, inference.FeedbackType(req.FeedbackType), req.Strength, req.Comment)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleDecay(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return httpError(c, err)
	}
	res, err := s.decayer.Apply(c.Request().Context(), uid, s.cfg.Decay.MaxItemsPerPass)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleSummary(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return httpError(c, err)
	}
	engine, err := s.engineFor(uid)
	if err != nil {
		return httpError(c, err)
	}
	summary, err := engine.ConfidenceSummary(c.Request().Context())
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) handleEvidence(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return httpError(c, err)
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return httpError(c, fmt.Errorf("%w: invalid limit %q", knowledge.ErrValidation, raw))
		}
		limit = parsed
	}

	engine, err := s.engineFor(uid)
	if err != nil {
		return httpError(c, err)
	}
	history, err := engine.ExportEvidenceHistory(c.Request().Context(),
		c.QueryParam("entity_id"), c.QueryParam("relationship_id"), limit)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"evidence": history})
}

func (s *Server) handleRecommendations(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return httpError(c, err)
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return httpError(c, fmt.Errorf("%w: invalid limit %q", knowledge.ErrValidation, raw))
		}
		limit = parsed
	}

	recs, err := s.recommender.Recommend(c.Request().Context(), uid, limit)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"recommendations": recs})
}

func (s *Server) handleReport(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return httpError(c, err)
	}
	report, err := s.reporter.Comprehensive(c.Request().Context(), uid)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}
