// Package solver defines the optimizer boundary for league models and ships a
// pure Go backend: depth-first branch-and-bound over LP relaxations solved by
// a bounded dual simplex on gonum dense matrices.
package solver

import (
	"context"
	"time"

	"github.com/derekprior/leaguesched/internal/model"
)

// Status is the outcome class of a solve.
type Status int

const (
	Optimal Status = iota
	Infeasible
	Unbounded
	TimedOut
	Error
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Infeasible:
		return "infeasible"
	case Unbounded:
		return "unbounded"
	case TimedOut:
		return "timed_out"
	default:
		return "error"
	}
}

// Outcome is what an Optimizer returns. Values holds one entry per model
// variable and is set only for Optimal, or for TimedOut when an incumbent was
// found before the budget ran out.
type Outcome struct {
	Status    Status
	Values    []float64
	Objective float64
	Reason    string
	Nodes     int
	Elapsed   time.Duration
}

// HasSolution reports whether Values can be decoded.
func (o Outcome) HasSolution() bool {
	return o.Values != nil
}

// Optimizer solves a model. Implementations must honor ctx cancellation by
// returning TimedOut rather than blocking.
type Optimizer interface {
	Solve(ctx context.Context, m *model.Model) Outcome
}

// OptimizerFunc adapts a function to Optimizer.
type OptimizerFunc func(ctx context.Context, m *model.Model) Outcome

func (f OptimizerFunc) Solve(ctx context.Context, m *model.Model) Outcome {
	return f(ctx, m)
}

// Recorder receives solve statistics. objective is meaningful only when
// solved is true.
type Recorder interface {
	ObserveSolve(status string, nodes int, elapsed time.Duration, objective float64, solved bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSolve(string, int, time.Duration, float64, bool) {}
