package solver

import (
	"context"
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derekprior/leaguesched/internal/league/leaguetest"
	"github.com/derekprior/leaguesched/internal/model"
)

func fourTeamModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.Build(leaguetest.FourTeam())
	require.NoError(t, err)
	return m
}

func TestNewTableauDropsRedundantRows(t *testing.T) {
	m := fourTeamModel(t)
	require.Len(t, m.Constraints, 246)

	tab, err := newTableau(m, DefaultTolerance)
	require.NoError(t, err)
	// lateness rows of slots on or before their due date always hold:
	// 8 late slots * 12 fixtures remain of 168
	assert.Equal(t, 246-168+96, tab.m)
	assert.Equal(t, len(m.Vars)+tab.m, len(tab.isBasic))
}

func TestNewTableauMergesDuplicateTerms(t *testing.T) {
	m := &model.Model{
		Vars: []model.Variable{{Name: "a", Kind: model.Binary, Upper: 1}},
		Constraints: []model.Constraint{{
			Family: "capacity",
			Terms:  []model.Term{{Var: 0, Coef: 1}, {Var: 0, Coef: 1}},
			Sense:  model.LessEqual,
			RHS:    1,
		}},
	}
	tab, err := newTableau(m, DefaultTolerance)
	require.NoError(t, err)
	require.Equal(t, 1, tab.m)
	assert.Equal(t, 2.0, tab.a.At(0, 0))
}

func TestNewTableauRootInfeasible(t *testing.T) {
	tests := map[string]model.Constraint{
		"empty row": {Family: "capacity", Sense: model.GreaterEqual, RHS: 1},
		"activity too small": {
			Family: "completeness",
			Terms:  []model.Term{{Var: 0, Coef: 1}},
			Sense:  model.Equal,
			RHS:    2,
		},
	}
	for name, c := range tests {
		t.Run(name, func(t *testing.T) {
			m := &model.Model{
				Vars:        []model.Variable{{Name: "a", Kind: model.Binary, Upper: 1}},
				Constraints: []model.Constraint{c},
			}
			_, err := newTableau(m, DefaultTolerance)
			assert.ErrorIs(t, err, errRootInfeasible)
		})
	}
}

func TestDualRootRelaxation(t *testing.T) {
	m := fourTeamModel(t)
	tab, err := newTableau(m, DefaultTolerance)
	require.NoError(t, err)
	tab.reset()

	status, x, bound, err := tab.dual(context.Background(), math.Inf(1), DefaultTolerance)
	require.NoError(t, err)
	require.Equal(t, lpOptimal, status)

	values := x[:len(m.Vars)]
	for _, v := range m.Check(values, 1e-6) {
		assert.Equal(t, model.FamilyBounds, v.Family, "row violated: %s", v)
	}
	// the relaxation bounds the integer optimum of 6
	assert.LessOrEqual(t, bound, m.ObjectiveValue(values)+1e-9)
	assert.LessOrEqual(t, bound, 6.0)
}

func TestDualStopsAtCutoff(t *testing.T) {
	m := fourTeamModel(t)
	tab, err := newTableau(m, DefaultTolerance)
	require.NoError(t, err)
	tab.reset()

	// any finite bound reaches a cutoff of -Inf
	status, _, _, err := tab.dual(context.Background(), math.Inf(-1), DefaultTolerance)
	require.NoError(t, err)
	assert.Equal(t, lpCutoff, status)
}

func TestDualHonorsCancellation(t *testing.T) {
	m := fourTeamModel(t)
	tab, err := newTableau(m, DefaultTolerance)
	require.NoError(t, err)
	tab.reset()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, _, err = tab.dual(ctx, math.Inf(1), DefaultTolerance)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, tab.pivots)
}

func TestRestoreReturnsToSnapshot(t *testing.T) {
	m := fourTeamModel(t)
	tab, err := newTableau(m, DefaultTolerance)
	require.NoError(t, err)
	tab.reset()

	_, want, _, err := tab.dual(context.Background(), math.Inf(1), DefaultTolerance)
	require.NoError(t, err)
	snap := tab.snapshot()

	for _, cold := range []bool{true, false} {
		if !cold {
			// move away from the snapshot first
			tab.reset()
		}
		require.NoError(t, tab.restore(context.Background(), snap, cold))
		assert.ElementsMatch(t, snap.basis, tab.basis)
		got := tab.primal()
		for j := range want {
			assert.InDelta(t, want[j], got[j], 1e-6, "column %d", j)
		}
	}
}

// twinColumns has two variables with identical rows, so any basis holding
// both is singular.
func twinColumns() *model.Model {
	m := &model.Model{Lateness: -1}
	for _, name := range []string{"a", "b", "c"} {
		m.Vars = append(m.Vars, model.Variable{Name: name, Kind: model.Binary, Upper: 1})
	}
	m.Objective.Terms = []model.Term{{Var: 0, Coef: -1}, {Var: 1, Coef: -1}, {Var: 2, Coef: -1}}
	m.Constraints = []model.Constraint{
		{Family: "capacity", Terms: []model.Term{{Var: 0, Coef: 1}, {Var: 1, Coef: 1}}, Sense: model.LessEqual, RHS: 1},
		{Family: "capacity", Terms: []model.Term{{Var: 0, Coef: 1}, {Var: 1, Coef: 1}, {Var: 2, Coef: 1}}, Sense: model.LessEqual, RHS: 2},
	}
	return m
}

func TestRestoreSingularBasis(t *testing.T) {
	tab, err := newTableau(twinColumns(), DefaultTolerance)
	require.NoError(t, err)
	tab.reset()

	snap := &snapshot{basis: []int{0, 1}, atUpper: make([]bool, len(tab.atUpper))}
	err = tab.restore(context.Background(), snap, true)
	assert.ErrorIs(t, err, errSingularBasis)
}

func TestRelaxRecoversAfterSingularSnapshot(t *testing.T) {
	m := twinColumns()
	tab, err := newTableau(m, DefaultTolerance)
	require.NoError(t, err)
	s := &search{m: m, tab: tab, branchable: branchable(m)}

	bad := node{id: 2, parent: 1, snap: &snapshot{basis: []int{0, 1}, atUpper: make([]bool, len(tab.atUpper))}}
	_, _, err = s.relax(context.Background(), bad, math.Inf(1), DefaultTolerance)
	require.Error(t, err)
	assert.ErrorIs(t, eris.Cause(err), errSingularBasis)
	assert.Zero(t, s.current)

	// the tableau is still usable for the next node
	status, x, err := s.relax(context.Background(), node{id: 3}, math.Inf(1), DefaultTolerance)
	require.NoError(t, err)
	assert.Equal(t, lpOptimal, status)
	assert.InDelta(t, 1.0, x[0]+x[1], 1e-7)
	assert.InDelta(t, 1.0, x[2], 1e-7)
	assert.Equal(t, 3, s.current)
}

func TestImpliedIntegers(t *testing.T) {
	m := fourTeamModel(t)
	assert.Equal(t, []int{m.Lateness}, impliedIntegers(m))
	// binaries first, then the lateness variable
	bs := branchable(m)
	assert.Len(t, bs, len(m.Vars))
	assert.Equal(t, m.Lateness, bs[len(bs)-1])

	t.Run("fractional coefficient", func(t *testing.T) {
		m := &model.Model{
			Vars: []model.Variable{
				{Name: "x", Kind: model.Binary, Upper: 1},
				{Name: "y", Kind: model.Continuous, Upper: 4},
			},
			Constraints: []model.Constraint{{
				Family: "floor",
				Terms:  []model.Term{{Var: 1, Coef: 1}, {Var: 0, Coef: -0.5}},
				Sense:  model.GreaterEqual,
				RHS:    0,
			}},
		}
		assert.Empty(t, impliedIntegers(m))
	})

	t.Run("unbounded", func(t *testing.T) {
		m := &model.Model{
			Vars: []model.Variable{{Name: "y", Kind: model.Continuous, Upper: math.Inf(1)}},
			Constraints: []model.Constraint{{
				Family: "floor", Terms: []model.Term{{Var: 0, Coef: 1}}, Sense: model.GreaterEqual, RHS: 1,
			}},
		}
		assert.Empty(t, impliedIntegers(m))
	})
}
