// Package server exposes the inference engine and analyzers over HTTP.
//
// Every request is scoped to one user via the X-User-ID header; engines are
// constructed per request on top of shared stores, so two users never share
// belief state. Validation failures map to 400, missing targets to 404, and
// storage faults to 500.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/archivistalabs/archivista/internal/analysis"
	"github.com/archivistalabs/archivista/internal/config"
	"github.com/archivistalabs/archivista/internal/corroboration"
	"github.com/archivistalabs/archivista/internal/decay"
	"github.com/archivistalabs/archivista/internal/inference"
	"github.com/archivistalabs/archivista/internal/knowledge"
)

// userHeader carries the per-request user scope.
const userHeader = "X-User-ID"

// Server is the archivistad HTTP front end.
type Server struct {
	echo         *echo.Echo
	cfg          *config.Config
	logger       *zap.Logger
	store        knowledge.Store
	corroborator *corroboration.Engine
	decayer      *decay.Engine
	recommender  *analysis.Recommender
	reporter     *analysis.Reporter
}

// New wires the HTTP server over a store and the shared engines.
func New(cfg *config.Config, store knowledge.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	corroborator := corroboration.New(store,
		corroboration.WithLogger(logger),
		corroboration.WithThreshold(cfg.Corroboration.Threshold),
		corroboration.WithMinDocuments(cfg.Corroboration.MinDocuments),
		corroboration.WithMaxOpportunities(cfg.Corroboration.MaxOpportunities))
	decayer := decay.New(store,
		decay.WithLogger(logger),
		decay.WithThresholds(cfg.Decay.HighConfidenceThreshold, cfg.Decay.MaterialityThreshold, cfg.Decay.Floor))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		echo:         e,
		cfg:          cfg,
		logger:       logger,
		store:        store,
		corroborator: corroborator,
		decayer:      decayer,
		recommender:  analysis.NewRecommender(store),
		reporter:     analysis.NewReporter(store, corroborator, decayer, logger),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/beliefs", s.handleUpdateBelief)
	v1.POST("/documents/:id/evidence", s.handleDocumentEvidence)
	v1.POST("/feedback", s.handleFeedback)
	v1.POST("/decay", s.handleDecay)
	v1.GET("/summary", s.handleSummary)
	v1.GET("/evidence", s.handleEvidence)
	v1.GET("/recommendations", s.handleRecommendations)
	v1.GET("/report", s.handleReport)
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.logger.Info("http server starting", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// engineFor builds a per-user inference engine honoring the configured
// toggles.
func (s *Server) engineFor(userID string) (*inference.Engine, error) {
	opts := []inference.Option{
		inference.WithLogger(s.logger),
		inference.WithLearningRate(s.cfg.Engine.LearningRate),
	}
	if s.cfg.CorroborationOn() {
		opts = append(opts, inference.WithCorroboration(s.corroborator))
	}
	if s.cfg.TemporalDecayOn() {
		opts = append(opts, inference.WithDecay(s.decayer))
	}
	if s.cfg.PropagationOn() {
		opts = append(opts, inference.WithPropagation())
	}
	return inference.New(s.store, userID, opts...)
}

func userID(c echo.Context) (string, error) {
	id := c.Request().Header.Get(userHeader)
	if id == "" {
		return "", fmt.Errorf("%w: missing %s header", knowledge.ErrValidation, userHeader)
	}
	return id, nil
}

// httpError maps the error taxonomy onto status codes.
func httpError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, knowledge.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, knowledge.ErrNotFound):
		status = http.StatusNotFound
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
