package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/derekprior/leaguesched/internal/model"
)

const (
	DefaultTolerance      = 1e-7
	DefaultIntegralityTol = 1e-6

	// nodes whose bound is within this of the incumbent are pruned, on top
	// of the slack the cost perturbation leaves in every bound
	pruneGap = 1e-6

	// every coldEvery restores rebuild from the slack basis
	coldEvery = 64
)

// Options tunes BranchAndBound. Zero limits mean no limit.
type Options struct {
	TimeLimit      time.Duration
	NodeLimit      int
	Tolerance      float64
	IntegralityTol float64
	Logger         *zerolog.Logger
	Recorder       Recorder
}

// BranchAndBound is a depth-first branch-and-bound optimizer over a bounded
// dual simplex. Branching only tightens bounds, so each child restarts from
// its parent's optimal basis. It branches on the most fractional integer
// column, exploring the side nearest the LP value first.
//
// Continuous variables whose rows have integer data on binaries only, unit
// coefficient on themselves and an integral right-hand side take integer
// values whenever the binaries do. They are branched on as integers.
type BranchAndBound struct {
	opts Options
	log  zerolog.Logger
	rec  Recorder
}

// NewBranchAndBound applies defaults to opts.
func NewBranchAndBound(opts Options) *BranchAndBound {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.IntegralityTol <= 0 {
		opts.IntegralityTol = DefaultIntegralityTol
	}
	b := &BranchAndBound{opts: opts, log: zerolog.Nop(), rec: nopRecorder{}}
	if opts.Logger != nil {
		b.log = *opts.Logger
	}
	if opts.Recorder != nil {
		b.rec = opts.Recorder
	}
	return b
}

// bound is one branching decision.
type bound struct {
	v      int
	lo, up float64
}

type node struct {
	id     int
	bounds []bound
	snap   *snapshot
	parent int
	depth  int
}

// search is the state of one Solve call.
type search struct {
	m          *model.Model
	tab        *tableau
	branchable []int
	current    int // node whose basis the tableau holds, 0 for none
	restores   int
	skipped    int
}

// Solve runs the search. It returns TimedOut, carrying the incumbent if one
// exists, when ctx is done or a limit is reached, and also when nodes had to
// be skipped after numerical failures, since optimality is then unproven.
func (b *BranchAndBound) Solve(ctx context.Context, m *model.Model) (out Outcome) {
	start := time.Now()
	log := b.log.With().Int("vars", len(m.Vars)).Int("constraints", len(m.Constraints)).Logger()

	defer func() {
		out.Elapsed = time.Since(start)
		b.rec.ObserveSolve(out.Status.String(), out.Nodes, out.Elapsed, out.Objective, out.HasSolution())
		ev := log.Info()
		if out.Status == Error {
			ev = log.Error()
		}
		ev.Str("status", out.Status.String()).
			Int("nodes", out.Nodes).
			Dur("elapsed", out.Elapsed).
			Str("reason", out.Reason).
			Msg("solve finished")
	}()

	if b.opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.TimeLimit)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return b.timedOut(out, nil, 0, reasonFor(err))
	}

	tab, err := newTableau(m, b.opts.Tolerance)
	if errors.Is(err, errRootInfeasible) {
		out.Status = Infeasible
		out.Reason = err.Error()
		return out
	}
	s := &search{m: m, tab: tab, branchable: branchable(m)}
	log.Debug().Int("rows", tab.m).Int("branchable", len(s.branchable)).Msg("relaxation built")

	gap := pruneGap + tab.shift
	stack := []node{{}}
	var best []float64
	bestObj := math.Inf(1)
	nextID := 0

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return b.timedOut(out, best, bestObj, reasonFor(err))
		}
		if b.opts.NodeLimit > 0 && out.Nodes >= b.opts.NodeLimit {
			return b.timedOut(out, best, bestObj, "node limit reached")
		}

		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out.Nodes++
		nextID++
		nd.id = nextID

		cutoff := math.Inf(1)
		if best != nil {
			cutoff = bestObj - gap
		}
		status, x, err := s.relax(ctx, nd, cutoff, b.opts.Tolerance)
		switch {
		case ctx.Err() != nil:
			return b.timedOut(out, best, bestObj, reasonFor(ctx.Err()))
		case err != nil:
			s.skipped++
			s.current = 0
			log.Warn().Err(err).Int("node", out.Nodes).Int("depth", nd.depth).Msg("skipping node after numerical failure")
			continue
		case status != lpOptimal:
			continue
		case tab.unbounded(x):
			out.Status = Unbounded
			out.Reason = "the relaxation improves without limit along a variable with no upper bound"
			return out
		}

		branch := s.mostFractional(x, b.opts.IntegralityTol)
		if branch < 0 {
			values := s.integral(x)
			obj := m.ObjectiveValue(values)
			if obj < bestObj-pruneGap {
				best, bestObj = values, obj
				log.Debug().Float64("objective", obj).Int("node", out.Nodes).Int("depth", nd.depth).Msg("new incumbent")
			}
			continue
		}

		snap := tab.snapshot()
		floor := math.Floor(x[branch])
		down := child(nd, snap, bound{branch, tab.lo[branch], floor})
		up := child(nd, snap, bound{branch, floor + 1, tab.up[branch]})
		if x[branch]-floor >= 0.5 {
			stack = append(stack, down, up)
		} else {
			stack = append(stack, up, down)
		}
	}

	if s.skipped > 0 {
		reason := fmt.Sprintf("search incomplete: %d nodes skipped after numerical failures", s.skipped)
		if best == nil {
			out.Status = Error
			out.Reason = reason
			return out
		}
		return b.timedOut(out, best, bestObj, reason)
	}
	if best == nil {
		out.Status = Infeasible
		out.Reason = "no integer assignment satisfies every constraint"
		return out
	}
	out.Status = Optimal
	out.Values = best
	out.Objective = bestObj
	return out
}

func child(parent node, snap *snapshot, bd bound) node {
	bounds := make([]bound, len(parent.bounds), len(parent.bounds)+1)
	copy(bounds, parent.bounds)
	return node{
		bounds: append(bounds, bd),
		snap:   snap,
		parent: parent.id,
		depth:  parent.depth + 1,
	}
}

// relax solves a node's relaxation. A child of the node the tableau holds
// continues from it; any other node restores its parent's basis. A numerical
// failure is retried once from the slack basis.
func (s *search) relax(ctx context.Context, nd node, cutoff, tol float64) (lpStatus, []float64, error) {
	cold := nd.snap == nil || s.current == 0
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			s.current = 0
			cold = true
		}
		if err = s.prepare(ctx, nd, cold); err != nil {
			if ctx.Err() != nil {
				return 0, nil, err
			}
			continue
		}
		s.tab.setBounds(s.branchable, nd.bounds)
		var status lpStatus
		var x []float64
		status, x, _, err = s.tab.dual(ctx, cutoff, tol)
		if err == nil {
			s.current = nd.id
			return status, x, nil
		}
		if ctx.Err() != nil {
			return 0, nil, err
		}
	}
	return 0, nil, eris.Wrapf(err, "node %d (depth %d)", nd.id, nd.depth)
}

func (s *search) prepare(ctx context.Context, nd node, cold bool) error {
	switch {
	case nd.snap == nil:
		s.tab.reset()
		return nil
	case !cold && nd.parent == s.current:
		return nil
	}
	s.restores++
	if s.restores%coldEvery == 0 {
		cold = true
	}
	err := s.tab.restore(ctx, nd.snap, cold)
	if errors.Is(err, errSingularBasis) && !cold {
		err = s.tab.restore(ctx, nd.snap, true)
	}
	return err
}

// mostFractional returns the branchable column farthest from integral, or -1.
func (s *search) mostFractional(x []float64, tol float64) int {
	branch, worst := -1, tol
	for _, j := range s.branchable {
		if s.tab.lo[j] == s.tab.up[j] {
			continue
		}
		frac := math.Abs(x[j] - math.Round(x[j]))
		if frac > worst {
			branch, worst = j, frac
		}
	}
	return branch
}

// integral returns the model's values with branchable columns rounded and
// the rest clamped to their bounds.
func (s *search) integral(x []float64) []float64 {
	values := make([]float64, len(s.m.Vars))
	copy(values, x[:len(values)])
	for i, v := range s.m.Vars {
		values[i] = math.Min(math.Max(values[i], v.Lower), v.Upper)
	}
	for _, j := range s.branchable {
		values[j] = math.Round(values[j])
	}
	return values
}

// branchable lists binaries followed by implied integers.
func branchable(m *model.Model) []int {
	var out []int
	for i, v := range m.Vars {
		if v.Kind == model.Binary {
			out = append(out, i)
		}
	}
	return append(out, impliedIntegers(m)...)
}

func impliedIntegers(m *model.Model) []int {
	isInt := func(f float64) bool { return !math.IsInf(f, 0) && f == math.Round(f) }

	ok := make([]bool, len(m.Vars))
	seen := make([]bool, len(m.Vars))
	for i, v := range m.Vars {
		ok[i] = v.Kind == model.Continuous && isInt(v.Lower) && isInt(v.Upper)
	}
	for _, c := range m.Constraints {
		coef := make(map[int]float64, len(c.Terms))
		for _, t := range c.Terms {
			coef[t.Var] += t.Coef
		}
		for v, a := range coef {
			if !ok[v] || a == 0 {
				continue
			}
			seen[v] = true
			if math.Abs(a) != 1 || !isInt(c.RHS) {
				ok[v] = false
				continue
			}
			for w, b := range coef {
				if w != v && b != 0 && (m.Vars[w].Kind != model.Binary || !isInt(b)) {
					ok[v] = false
					break
				}
			}
		}
	}
	var out []int
	for i := range m.Vars {
		if ok[i] && seen[i] {
			out = append(out, i)
		}
	}
	return out
}

func (b *BranchAndBound) timedOut(out Outcome, best []float64, bestObj float64, reason string) Outcome {
	out.Status = TimedOut
	out.Reason = reason
	if best != nil {
		out.Values = best
		out.Objective = bestObj
	}
	return out
}

func reasonFor(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "time limit reached"
	}
	return "cancelled"
}
