package inference

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "archivista",
		Subsystem: "inference",
		Name:      "updates_total",
		Help:      "Confidence updates by outcome and evidence type.",
	}, []string{"result", "evidence_type"})

	confidenceChange = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "archivista",
		Subsystem: "inference",
		Name:      "confidence_change",
		Help:      "Absolute confidence delta per applied update.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.4},
	})

	sideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "archivista",
		Subsystem: "inference",
		Name:      "side_effect_failures_total",
		Help:      "Post-commit hook failures by hook name.",
	}, []string{"hook"})

	entitiesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "archivista",
		Subsystem: "inference",
		Name:      "entities_created_total",
		Help:      "Entities created through by-name confidence updates.",
	})
)
