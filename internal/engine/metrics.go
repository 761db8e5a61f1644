package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the runtime counters of compiled models.
//
// One Metrics value may be shared by several Models (an ensemble); the
// prometheus collectors are safe for concurrent use.
type Metrics struct {
	Derivatives       prometheus.Counter
	DerivativeReuses  prometheus.Counter
	NodeEvaluations   prometheus.Counter
	NodeCacheHits     prometheus.Counter
	EventEffects      *prometheus.CounterVec
	ConstraintChanges *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. A nil
// registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Derivatives: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rxnsim",
			Subsystem: "engine",
			Name:      "derivatives_total",
			Help:      "Total number of derivative evaluations",
		}),
		DerivativeReuses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rxnsim",
			Subsystem: "engine",
			Name:      "derivative_reuses_total",
			Help:      "Derivative queries answered from the previous result",
		}),
		NodeEvaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rxnsim",
			Subsystem: "graph",
			Name:      "evaluations_total",
			Help:      "Compiled nodes recomputed",
		}),
		NodeCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rxnsim",
			Subsystem: "graph",
			Name:      "cache_hits_total",
			Help:      "Compiled node values served from cache",
		}),
		EventEffects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rxnsim",
				Subsystem: "events",
				Name:      "effects_total",
				Help:      "Event state machine transitions",
			},
			[]string{"event", "kind"},
		),
		ConstraintChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rxnsim",
				Subsystem: "constraints",
				Name:      "transitions_total",
				Help:      "Constraint violation and recovery transitions",
			},
			[]string{"state"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.Derivatives,
			m.DerivativeReuses,
			m.NodeEvaluations,
			m.NodeCacheHits,
			m.EventEffects,
			m.ConstraintChanges,
		)
	}
	return m
}

// metricsListener counts constraint transitions.
type metricsListener struct {
	m *Metrics
}

func (l metricsListener) ConstraintViolated(ConstraintViolation) {
	l.m.ConstraintChanges.WithLabelValues("violated").Inc()
}

func (l metricsListener) ConstraintRecovered(ConstraintViolation) {
	l.m.ConstraintChanges.WithLabelValues("recovered").Inc()
}

// graphCounters remembers the graph counters already flushed.
type graphCounters struct {
	evaluations int64
	cacheHits   int64
}

// flush adds the graph counter deltas since the previous flush.
func (m *Metrics) flush(g *Graph, last *graphCounters) {
	if m == nil {
		return
	}
	if d := g.evaluations - last.evaluations; d > 0 {
		m.NodeEvaluations.Add(float64(d))
	}
	if d := g.cacheHits - last.cacheHits; d > 0 {
		m.NodeCacheHits.Add(float64(d))
	}
	last.evaluations = g.evaluations
	last.cacheHits = g.cacheHits
}

func (m *Metrics) recordEffects(effects []Effect) {
	if m == nil {
		return
	}
	for _, fx := range effects {
		m.EventEffects.WithLabelValues(fx.EventID, fx.Kind.String()).Inc()
	}
}
