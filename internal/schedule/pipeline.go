package schedule

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/derekprior/leaguesched/internal/league"
	"github.com/derekprior/leaguesched/internal/model"
	"github.com/derekprior/leaguesched/internal/solver"
)

// ErrSolve matches every *SolveError via errors.Is.
var ErrSolve = errors.New("no schedule from solver")

// SolveError carries a solver outcome that produced no schedule: Infeasible,
// Unbounded, Error, or TimedOut without an incumbent.
type SolveError struct {
	Outcome solver.Outcome
}

func (e *SolveError) Error() string {
	if e.Outcome.Reason == "" {
		return fmt.Sprintf("solver finished %s", e.Outcome.Status)
	}
	return fmt.Sprintf("solver finished %s: %s", e.Outcome.Status, e.Outcome.Reason)
}

func (e *SolveError) Is(target error) bool {
	return target == ErrSolve
}

// ModelObserver receives the size of every built model.
type ModelObserver interface {
	ObserveModel(variables int, constraints map[string]int)
}

// RunOptions configures Run. A zero RunID gets a fresh UUID.
type RunOptions struct {
	RunID    string
	Anchor   time.Time
	Logger   *zerolog.Logger
	Observer ModelObserver
}

// Run builds the model of p, hands it to opt and decodes the answer. The
// outcome is returned even on error so callers can report it.
func Run(ctx context.Context, p *league.Problem, opt solver.Optimizer, opts RunOptions) (*Result, solver.Outcome, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	log = log.With().Str("run_id", runID).Logger()

	m, err := model.Build(p)
	if err != nil {
		log.Error().Err(err).Msg("model build failed")
		return nil, solver.Outcome{}, err
	}

	counts := make(map[string]int)
	for family, n := range m.Counts() {
		counts[string(family)] = n
	}
	if opts.Observer != nil {
		opts.Observer.ObserveModel(len(m.Vars), counts)
	}
	log.Debug().Int("vars", len(m.Vars)).Int("constraints", len(m.Constraints)).Msg("model built")

	out := opt.Solve(ctx, m)

	switch {
	case out.Status == solver.Optimal && out.HasSolution():
	case out.Status == solver.TimedOut && out.HasSolution():
		log.Warn().Str("reason", out.Reason).Msg("decoding best schedule found before the solver stopped")
	default:
		return nil, out, &SolveError{Outcome: out}
	}

	res, err := Decode(p, m, out.Values, opts.Anchor)
	if err != nil {
		log.Error().Err(err).Msg("decode failed")
		return nil, out, err
	}
	res.RunID = runID
	res.Partial = out.Status == solver.TimedOut

	if z := out.Values[m.Lateness]; math.Abs(z-float64(res.MaxLateness)) > 1e-6 {
		// z is only pushed down to the true overrun when lateness carries weight
		log.Debug().Float64("z", z).Int("max_lateness", res.MaxLateness).Msg("lateness bound is slack")
	}

	log.Info().
		Int("fixtures", len(res.Rows)).
		Int("max_lateness", res.MaxLateness).
		Float64("revenue", res.Revenue).
		Float64("objective", res.Objective).
		Bool("partial", res.Partial).
		Msg("schedule decoded")
	return res, out, nil
}

// Job is one independent league instance for RunAll.
type Job struct {
	Name    string
	Problem *league.Problem
	Anchor  time.Time
}

// JobResult is the outcome of one Job.
type JobResult struct {
	Name    string
	Result  *Result
	Outcome solver.Outcome
	Err     error
}

// RunAllOptions configures RunAll.
type RunAllOptions struct {
	// Parallelism caps concurrent solves; zero or less means one per job.
	Parallelism int
	// FailFast cancels the remaining jobs after the first failure.
	FailFast bool
	Logger   *zerolog.Logger
	Observer ModelObserver
}

// RunAll solves every job concurrently. Each job builds its own model, so
// nothing is shared between goroutines except opt, which must be safe for
// concurrent use. Results are in job order. The returned error is the first
// job failure when FailFast is set, and nil otherwise.
func RunAll(ctx context.Context, opt solver.Optimizer, jobs []Job, opts RunAllOptions) ([]JobResult, error) {
	results := make([]JobResult, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			log := zerolog.Nop()
			if opts.Logger != nil {
				log = opts.Logger.With().Str("league", job.Name).Logger()
			}
			res, out, err := Run(ctx, job.Problem, opt, RunOptions{
				Anchor:   job.Anchor,
				Logger:   &log,
				Observer: opts.Observer,
			})
			results[i] = JobResult{Name: job.Name, Result: res, Outcome: out, Err: err}
			if err != nil && opts.FailFast {
				return fmt.Errorf("%s: %w", job.Name, err)
			}
			return nil
		})
	}

	err := g.Wait()
	return results, err
}
