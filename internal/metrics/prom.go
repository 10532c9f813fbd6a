// Package metrics records model and solver statistics in Prometheus
// collectors. The CLI is short-lived, so collectors are usually dumped to a
// textfile for node_exporter instead of being scraped.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromRecorder implements solver.Recorder and schedule.ModelObserver.
type PromRecorder struct {
	solves      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	nodes       prometheus.Histogram
	objective   prometheus.Gauge
	variables   prometheus.Gauge
	constraints *prometheus.GaugeVec
}

// NewPromRecorder registers collectors on the default registerer.
func NewPromRecorder() (*PromRecorder, error) {
	return NewPromRecorderWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromRecorderWithRegistry registers collectors on reg, reusing any that
// are already registered. A nil reg means the default registerer.
func NewPromRecorderWithRegistry(reg prometheus.Registerer) (*PromRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	solves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaguesched_solves_total",
		Help: "Number of solver invocations by outcome",
	}, []string{"status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leaguesched_solve_duration_seconds",
		Help:    "Wall-clock time spent in the optimizer",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"status"})
	nodes := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "leaguesched_solve_nodes",
		Help:    "Branch-and-bound nodes explored per solve",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})
	objective := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "leaguesched_solve_objective",
		Help: "Objective value of the last solve",
	})
	variables := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "leaguesched_model_variables",
		Help: "Variables in the last built model",
	})
	constraints := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "leaguesched_model_constraints",
		Help: "Constraints in the last built model by family",
	}, []string{"family"})

	var err error
	if solves, err = register(reg, solves); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	if nodes, err = register(reg, nodes); err != nil {
		return nil, err
	}
	if objective, err = register(reg, objective); err != nil {
		return nil, err
	}
	if variables, err = register(reg, variables); err != nil {
		return nil, err
	}
	if constraints, err = register(reg, constraints); err != nil {
		return nil, err
	}

	return &PromRecorder{
		solves:      solves,
		duration:    duration,
		nodes:       nodes,
		objective:   objective,
		variables:   variables,
		constraints: constraints,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveSolve records one optimizer run. The objective gauge only moves
// when the run produced a schedule.
func (r *PromRecorder) ObserveSolve(status string, nodes int, elapsed time.Duration, objective float64, solved bool) {
	r.solves.WithLabelValues(status).Inc()
	r.duration.WithLabelValues(status).Observe(elapsed.Seconds())
	r.nodes.Observe(float64(nodes))
	if solved {
		r.objective.Set(objective)
	}
}

// ObserveModel records the size of a built model.
func (r *PromRecorder) ObserveModel(variables int, constraints map[string]int) {
	r.variables.Set(float64(variables))
	for family, n := range constraints {
		r.constraints.WithLabelValues(family).Set(float64(n))
	}
}

// WriteTextfile dumps everything g gathers to path in the text exposition
// format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return prometheus.WriteToTextfile(path, g)
}
