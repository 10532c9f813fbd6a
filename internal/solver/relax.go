package solver

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/derekprior/leaguesched/internal/model"
)

var (
	errRootInfeasible = errors.New("a constraint cannot hold for any assignment within the variable bounds")
	errSingularBasis  = errors.New("basis is numerically singular")
	errStalled        = errors.New("dual simplex made no progress within its iteration budget")
	errResidual       = errors.New("relaxation solution drifted from its rows")
)

const (
	// big boxes variables whose optimal side is unbounded. A variable with a
	// nonzero cost that ends near it makes the relaxation unbounded.
	big = 1e7

	pivotTol    = 1e-7
	dualTol     = 1e-9
	residualTol = 1e-6
	perturbBase = 1e-7
)

type lpStatus int

const (
	lpOptimal lpStatus = iota
	lpInfeasible
	lpCutoff
)

// tableau is the LP relaxation of a model in bounded form
//
//	min cᵀx  s.t.  Ax + s = b,  lo <= x <= up
//
// with one slack per row whose bounds carry the row sense: [0,∞) for <=,
// (-∞,0] for >= and [0,0] for =. The slack block is I, so [A | I] always has
// full row rank. Branching only moves bounds, which keeps the current basis
// dual feasible and lets a child start from its parent's basis.
//
// Nonbasic columns sit at a bound chosen by atUpper. Costs are perturbed by
// at most shift in objective terms to break dual degeneracy; bounds reported
// by dual subtract shift so they stay valid for the unperturbed problem.
type tableau struct {
	n, m int

	a *mat.Dense // original [A | I]
	b []float64

	c        []float64 // cost per column, slacks zero
	cp       []float64 // perturbed cost
	shift    float64
	constant float64

	rootLo, rootUp []float64
	lo, up         []float64
	art            []bool

	t       *mat.Dense // B⁻¹[A | I]
	rhs     []float64  // B⁻¹b
	d       []float64  // reduced costs under cp
	basis   []int
	isBasic []bool
	atUpper []bool

	pivots int
}

type presolvedRow struct {
	cols  []int
	coefs []float64
	sense model.Sense
	rhs   float64
}

// newTableau presolves the model rows against the variable bounds and lays
// out the rest. Rows whose activity range already satisfies them are dropped;
// an empty or impossible row fails with errRootInfeasible.
func newTableau(m *model.Model, tol float64) (*tableau, error) {
	n := len(m.Vars)
	lo := make([]float64, n)
	up := make([]float64, n)
	for i, v := range m.Vars {
		lo[i], up[i] = v.Lower, v.Upper
		if up[i] < lo[i]-tol {
			return nil, errRootInfeasible
		}
	}

	var rows []presolvedRow
	var spans []float64
	for _, c := range m.Constraints {
		merged := make(map[int]float64, len(c.Terms))
		var order []int
		for _, t := range c.Terms {
			if _, ok := merged[t.Var]; !ok {
				order = append(order, t.Var)
			}
			merged[t.Var] += t.Coef
		}
		row := presolvedRow{sense: c.Sense, rhs: c.RHS}
		for _, v := range order {
			if merged[v] != 0 {
				row.cols = append(row.cols, v)
				row.coefs = append(row.coefs, merged[v])
			}
		}

		minAct, maxAct := activity(row, lo, up)
		switch {
		case c.Sense != model.GreaterEqual && minAct > c.RHS+tol,
			c.Sense != model.LessEqual && maxAct < c.RHS-tol:
			return nil, errRootInfeasible
		case c.Sense == model.LessEqual && maxAct <= c.RHS+tol,
			c.Sense == model.GreaterEqual && minAct >= c.RHS-tol,
			len(row.cols) == 0:
			continue
		}
		rows = append(rows, row)
		spans = append(spans, math.Max(math.Abs(c.RHS-minAct), math.Abs(c.RHS-maxAct)))
	}

	rn := len(rows)
	cols := n + rn
	t := &tableau{
		n:        n,
		m:        rn,
		b:        make([]float64, rn),
		c:        make([]float64, cols),
		cp:       make([]float64, cols),
		constant: m.Objective.Constant,
		lo:       append(lo, make([]float64, rn)...),
		up:       append(up, make([]float64, rn)...),
		art:      make([]bool, cols),
		rhs:      make([]float64, rn),
		d:        make([]float64, cols),
		basis:    make([]int, rn),
		isBasic:  make([]bool, cols),
		atUpper:  make([]bool, cols),
	}
	for _, term := range m.Objective.Terms {
		t.c[term.Var] += term.Coef
	}
	if rn > 0 {
		t.a = mat.NewDense(rn, cols, nil)
		t.t = mat.NewDense(rn, cols, nil)
	}
	for i, row := range rows {
		for k, v := range row.cols {
			t.a.Set(i, v, row.coefs[k])
		}
		t.a.Set(i, n+i, 1)
		t.b[i] = row.rhs
		switch row.sense {
		case model.LessEqual:
			t.up[n+i] = math.Inf(1)
		case model.GreaterEqual:
			t.lo[n+i] = math.Inf(-1)
		}
	}
	t.rootLo = append([]float64(nil), t.lo...)
	t.rootUp = append([]float64(nil), t.up...)
	t.perturb(spans)
	return t, nil
}

func activity(row presolvedRow, lo, up []float64) (minAct, maxAct float64) {
	for k, v := range row.cols {
		a := row.coefs[k]
		if a > 0 {
			minAct += a * lo[v]
			maxAct += a * up[v]
		} else {
			minAct += a * up[v]
			maxAct += a * lo[v]
		}
	}
	return minAct, maxAct
}

// perturb nudges every column with a finite range toward the bound it
// naturally rests on. The nudge is a fixed function of the column index so
// repeated solves are identical.
func (t *tableau) perturb(spans []float64) {
	copy(t.cp, t.c)
	for j := range t.cp {
		var span float64
		upper := false
		if j < t.n {
			span = math.Max(math.Abs(t.lo[j]), math.Abs(t.up[j]))
			upper = t.c[j] < 0
		} else {
			if t.lo[j] == t.up[j] {
				continue
			}
			span = spans[j-t.n]
			upper = math.IsInf(t.lo[j], -1)
		}
		if math.IsInf(span, 0) || math.IsNaN(span) {
			continue
		}
		u := 0.5 + 0.5*float64((uint64(j)*2654435761)%1000003)/1000003
		delta := perturbBase * (1 + math.Abs(t.c[j])) * u
		if upper {
			t.cp[j] -= delta
		} else {
			t.cp[j] += delta
		}
		t.shift += delta * span
	}
}

func (t *tableau) row(i int) []float64 {
	return t.t.RawRowView(i)
}

// reset installs the all-slack basis. Every nonbasic structural rests on the
// bound its reduced cost prefers, which makes the basis dual feasible; an
// infinite preferred bound is replaced by ±big.
func (t *tableau) reset() {
	if t.m > 0 {
		t.t.Copy(t.a)
	}
	copy(t.rhs, t.b)
	copy(t.d, t.cp)
	for i := 0; i < t.m; i++ {
		if cb := t.cp[t.n+i]; cb != 0 {
			floats.AddScaled(t.d, -cb, t.a.RawRowView(i))
		}
	}
	for j := range t.isBasic {
		t.isBasic[j] = j >= t.n
		t.atUpper[j] = false
	}
	for i := range t.basis {
		t.basis[i] = t.n + i
	}
	for j := 0; j < t.n; j++ {
		t.atUpper[j] = t.d[j] < 0
		if t.atUpper[j] && math.IsInf(t.up[j], 1) {
			t.up[j], t.art[j] = big, true
		}
		if !t.atUpper[j] && math.IsInf(t.lo[j], -1) {
			t.lo[j], t.art[j] = -big, true
		}
	}
}

func (t *tableau) pivot(r, j int) {
	t.pivots++
	pr := t.row(r)
	inv := 1 / pr[j]
	floats.Scale(inv, pr)
	pr[j] = 1
	t.rhs[r] *= inv
	for i := 0; i < t.m; i++ {
		if i == r {
			continue
		}
		row := t.row(i)
		f := row[j]
		if f == 0 {
			continue
		}
		floats.AddScaled(row, -f, pr)
		row[j] = 0
		t.rhs[i] -= f * t.rhs[r]
	}
	if f := t.d[j]; f != 0 {
		floats.AddScaled(t.d, -f, pr)
		t.d[j] = 0
	}
	leaving := t.basis[r]
	t.isBasic[leaving] = false
	t.isBasic[j] = true
	t.basis[r] = j
}

// snapshot is a basis a node can be restarted from.
type snapshot struct {
	basis   []int
	atUpper []bool
}

func (t *tableau) snapshot() *snapshot {
	return &snapshot{
		basis:   append([]int(nil), t.basis...),
		atUpper: append([]bool(nil), t.atUpper...),
	}
}

// restore pivots the snapshot's basis back in. A warm restore starts from the
// current tableau and needs only the pivots that differ; a cold one starts
// from the slack basis and sheds accumulated rounding.
func (t *tableau) restore(ctx context.Context, s *snapshot, cold bool) error {
	if cold {
		t.reset()
	}
	target := make([]bool, len(t.isBasic))
	for _, j := range s.basis {
		target[j] = true
	}
	for _, j := range s.basis {
		if t.isBasic[j] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		r, best := -1, pivotTol
		for i := 0; i < t.m; i++ {
			if target[t.basis[i]] {
				continue
			}
			if a := math.Abs(t.t.At(i, j)); a > best {
				r, best = i, a
			}
		}
		if r < 0 {
			return errSingularBasis
		}
		t.pivot(r, j)
	}
	copy(t.atUpper, s.atUpper)
	return nil
}

// setBounds resets the branching columns to their root bounds and applies a
// node's branching decisions in order.
func (t *tableau) setBounds(branchable []int, bounds []bound) {
	for _, j := range branchable {
		t.lo[j], t.up[j] = t.rootLo[j], t.rootUp[j]
	}
	for _, bd := range bounds {
		t.lo[bd.v], t.up[bd.v] = bd.lo, bd.up
	}
}

func (t *tableau) nonbasicValue(j int) float64 {
	if t.atUpper[j] {
		return t.up[j]
	}
	return t.lo[j]
}

// primal returns every column's value under the current basis.
func (t *tableau) primal() []float64 {
	x := make([]float64, len(t.isBasic))
	var nb []int
	for j := range x {
		if t.isBasic[j] {
			continue
		}
		x[j] = t.nonbasicValue(j)
		if x[j] != 0 {
			nb = append(nb, j)
		}
	}
	for i := 0; i < t.m; i++ {
		row := t.row(i)
		v := t.rhs[i]
		for _, j := range nb {
			v -= row[j] * x[j]
		}
		x[t.basis[i]] = v
	}
	return x
}

// dual runs the bounded dual simplex from the current basis. Every iterate is
// dual feasible, so its perturbed objective less shift bounds the node from
// below; once that reaches cutoff the node cannot beat the incumbent.
// It returns the column values and that bound.
func (t *tableau) dual(ctx context.Context, cutoff, tol float64) (lpStatus, []float64, float64, error) {
	limit := 20*(len(t.isBasic)+t.m) + 100
	for iter := 0; iter < limit; iter++ {
		if err := ctx.Err(); err != nil {
			return 0, nil, 0, err
		}
		x := t.primal()
		bound := t.constant + floats.Dot(t.cp, x) - t.shift
		if bound >= cutoff {
			return lpCutoff, x, bound, nil
		}

		r := t.leavingRow(x, tol)
		if r < 0 {
			if err := t.residual(x); err != nil {
				return 0, nil, 0, err
			}
			return lpOptimal, x, bound, nil
		}
		leaving := t.basis[r]
		increase := x[leaving] < t.lo[leaving]

		j := t.enteringColumn(r, increase)
		if j < 0 {
			return lpInfeasible, nil, 0, nil
		}
		t.atUpper[leaving] = !increase
		t.pivot(r, j)
	}
	return 0, nil, 0, errStalled
}

// leavingRow picks the primal infeasible basic variable with the largest
// squared infeasibility over its dual steepest-edge weight. The slack block
// of a tableau row is the matching row of B⁻¹, so the weight is exact.
func (t *tableau) leavingRow(x []float64, tol float64) int {
	r, best := -1, 0.0
	for i := 0; i < t.m; i++ {
		j := t.basis[i]
		v := math.Max(t.lo[j]-x[j], x[j]-t.up[j])
		if v <= tol {
			continue
		}
		inv := t.row(i)[t.n:]
		w := floats.Dot(inv, inv)
		if score := v * v / w; score > best {
			r, best = i, score
		}
	}
	return r
}

// enteringColumn is a two-pass Harris ratio test over row r: the first pass
// finds the smallest ratio with dual slack relaxed by dualTol, the second
// takes the largest pivot among columns within it. No candidate means the
// row cannot be repaired and the node is infeasible.
func (t *tableau) enteringColumn(r int, increase bool) int {
	row := t.row(r)
	type candidate struct {
		j     int
		slack float64
		alpha float64
	}
	var cands []candidate
	limit := math.Inf(1)
	for j, a := range row {
		if t.isBasic[j] || t.lo[j] == t.up[j] || math.Abs(a) <= pivotTol {
			continue
		}
		var ok bool
		var ds float64
		if t.atUpper[j] {
			ok = (a > 0) == increase
			ds = -t.d[j]
		} else {
			ok = (a < 0) == increase
			ds = t.d[j]
		}
		if !ok {
			continue
		}
		ds = math.Max(ds, 0)
		alpha := math.Abs(a)
		cands = append(cands, candidate{j, ds, alpha})
		limit = math.Min(limit, (ds+dualTol)/alpha)
	}
	j, best := -1, 0.0
	for _, c := range cands {
		if c.slack/c.alpha <= limit && c.alpha > best {
			j, best = c.j, c.alpha
		}
	}
	return j
}

// residual recomputes the rows from the original matrix and reports drift.
func (t *tableau) residual(x []float64) error {
	for i := 0; i < t.m; i++ {
		lhs := floats.Dot(t.a.RawRowView(i), x)
		if math.Abs(lhs-t.b[i]) > residualTol*(1+math.Abs(t.b[i])) {
			return errResidual
		}
	}
	return nil
}

// unbounded reports whether a costed column ended on an artificial box.
func (t *tableau) unbounded(x []float64) bool {
	for j := 0; j < t.n; j++ {
		if t.art[j] && t.c[j] != 0 && math.Abs(x[j]) >= big/2 {
			return true
		}
	}
	return false
}
