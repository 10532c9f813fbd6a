package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derekprior/leaguesched/internal/league"
	"github.com/derekprior/leaguesched/internal/league/leaguetest"
	"github.com/derekprior/leaguesched/internal/model"
	"github.com/derekprior/leaguesched/internal/strategy"
)

const tol = 1e-9

func fourTeamValues(t *testing.T, m *model.Model, z float64) []float64 {
	t.Helper()
	return leaguetest.Values(m, leaguetest.FourTeamRound, z)
}

func TestBuildFourTeam(t *testing.T) {
	p := leaguetest.FourTeam()
	m, err := model.Build(p)
	require.NoError(t, err)

	t.Run("one binary per fixture and slot plus lateness", func(t *testing.T) {
		assert.Len(t, m.Vars, 12*14+1)
		binaries := 0
		for _, v := range m.Vars {
			if v.Kind == model.Binary {
				binaries++
				assert.Equal(t, 0.0, v.Lower)
				assert.Equal(t, 1.0, v.Upper)
			}
		}
		assert.Equal(t, 168, binaries)
	})

	t.Run("lateness variable", func(t *testing.T) {
		z := m.Vars[m.Lateness]
		assert.Equal(t, model.Continuous, z.Kind)
		assert.Equal(t, "z", z.Name)
		assert.Equal(t, 0.0, z.Lower)
		// worst possible overrun: day 9 on matchday 4 (due 7), day 11 on 5 (due 9), day 13 on 6 (due 11)
		assert.Equal(t, 2.0, z.Upper)
	})

	t.Run("constraint counts per family", func(t *testing.T) {
		assert.Equal(t, map[model.Family]int{
			model.FamilyCompleteness: 12,
			model.FamilyOneGame:      24,
			model.FamilyRest:         20,
			model.FamilyStreak:       8,
			model.FamilyCapacity:     14,
			model.FamilyLateness:     168,
		}, m.Counts())
	})

	t.Run("objective constant is weighted target revenue", func(t *testing.T) {
		assert.Equal(t, 100.0, m.Objective.Constant)
	})

	t.Run("feasible schedule satisfies every constraint", func(t *testing.T) {
		values := fourTeamValues(t, m, 2)
		assert.Empty(t, m.Check(values, tol))
	})

	t.Run("objective of the feasible schedule", func(t *testing.T) {
		// lateness 2 plus shortfall 100 - 96
		values := fourTeamValues(t, m, 2)
		assert.InDelta(t, 6.0, m.ObjectiveValue(values), tol)
	})

	t.Run("understated lateness is caught", func(t *testing.T) {
		values := fourTeamValues(t, m, 1)
		violations := m.Check(values, tol)
		require.NotEmpty(t, violations)
		for _, v := range violations {
			assert.Equal(t, model.FamilyLateness, v.Family)
		}
	})
}

func TestBuildDeterministic(t *testing.T) {
	a, err := model.Build(leaguetest.FourTeam())
	require.NoError(t, err)
	b, err := model.Build(leaguetest.FourTeam())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCheckCatchesEachFamily(t *testing.T) {
	p := leaguetest.FourTeam()
	m, err := model.Build(p)
	require.NoError(t, err)

	index := func(home, away string, md, day int) int {
		for i, v := range m.Vars {
			if v.Kind == model.Binary && v.Fixture.Home == home && v.Fixture.Away == away &&
				v.Slot.Matchday == md && v.Slot.Day == day {
				return i
			}
		}
		t.Fatalf("no variable for %s-%s md%d day%d", home, away, md, day)
		return -1
	}

	families := func(vs []model.Violation) map[model.Family]bool {
		out := make(map[model.Family]bool)
		for _, v := range vs {
			out[v.Family] = true
		}
		return out
	}

	t.Run("missing fixture", func(t *testing.T) {
		values := fourTeamValues(t, m, 2)
		values[index("1", "2", 1, 1)] = 0
		got := families(m.Check(values, tol))
		assert.True(t, got[model.FamilyCompleteness])
		assert.True(t, got[model.FamilyOneGame])
	})

	t.Run("slot over capacity", func(t *testing.T) {
		values := fourTeamValues(t, m, 2)
		// move 1-4 from matchday 3 day 6 onto matchday 1 day 1, which already holds two games
		values[index("1", "4", 3, 6)] = 0
		values[index("1", "4", 1, 1)] = 1
		got := families(m.Check(values, tol))
		assert.True(t, got[model.FamilyCapacity])
	})

	t.Run("insufficient rest", func(t *testing.T) {
		values := fourTeamValues(t, m, 2)
		// the round leaves gaps of 2 between some matchdays
		in := leaguetest.FourTeamInput()
		in.Params.MinRest = 3
		strict, err := model.Build(mustProblem(t, in))
		require.NoError(t, err)
		got := families(strict.Check(values, tol))
		assert.True(t, got[model.FamilyRest])
	})

	t.Run("fractional value", func(t *testing.T) {
		values := fourTeamValues(t, m, 2)
		values[index("1", "2", 1, 1)] = 0.5
		values[index("1", "2", 1, 0)] = 0.5
		got := families(m.Check(values, tol))
		assert.True(t, got[model.FamilyBounds])
	})

	t.Run("wrong vector length", func(t *testing.T) {
		got := m.Check([]float64{1}, tol)
		require.Len(t, got, 1)
		assert.Equal(t, model.FamilyBounds, got[0].Family)
	})
}

func TestStreakCapWindows(t *testing.T) {
	in := leaguetest.FourTeamInput()
	in.Params.StreakLimit = 2
	p := mustProblem(t, in)
	ix := model.NewIndex(p)

	cs, err := model.StreakCap(p, ix)
	require.NoError(t, err)

	// 6 matchdays, windows of 3: md1-3 .. md4-6, home and away, 4 teams
	assert.Len(t, cs, 4*4*2)

	labels := make(map[string]bool)
	for _, c := range cs {
		labels[c.Label] = true
		assert.Equal(t, model.LessEqual, c.Sense)
		assert.Equal(t, 2.0, c.RHS)
	}
	assert.True(t, labels["1/home@md1-md3"])
	assert.True(t, labels["4/away@md4-md6"])
	assert.False(t, labels["1/home@md5-md7"])

	t.Run("window terms only cover its matchdays", func(t *testing.T) {
		for _, c := range cs {
			if c.Label != "2/home@md2-md4" {
				continue
			}
			// team 2 hosts 3 fixtures, matchdays 2-4 have 3+2+3 slots
			assert.Len(t, c.Terms, 3*8)
		}
	})

	t.Run("home games in a window", func(t *testing.T) {
		m, err := model.Build(p)
		require.NoError(t, err)
		values := fourTeamValues(t, m, 2)
		var streaks []string
		for _, v := range m.Check(values, tol) {
			if v.Family == model.FamilyStreak {
				streaks = append(streaks, v.Label)
				assert.Equal(t, 3.0, v.LHS, v.Label)
			}
		}
		assert.Equal(t, []string{
			"1/home@md1-md3",
			"1/away@md4-md6",
			"2/home@md3-md5",
			"3/away@md2-md4",
		}, streaks)
	})
}

func TestStreakCapNoWindowWhenLimitCoversSeason(t *testing.T) {
	in := leaguetest.FourTeamInput()
	in.Params.StreakLimit = 6
	p := mustProblem(t, in)

	cs, err := model.StreakCap(p, model.NewIndex(p))
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestMinimumRestRows(t *testing.T) {
	p := leaguetest.TwoTeam()
	cs, err := model.MinimumRest(p, model.NewIndex(p))
	require.NoError(t, err)

	// two teams, only matchday 2 has a predecessor
	require.Len(t, cs, 2)
	for _, c := range cs {
		assert.Equal(t, model.GreaterEqual, c.Sense)
		assert.Equal(t, 1.0, c.RHS)

		var plus, minus int
		for _, term := range c.Terms {
			switch term.Coef {
			case 3:
				plus++
			case -1:
				minus++
			default:
				t.Errorf("unexpected coefficient %v in %s", term.Coef, c.Label)
			}
		}
		// both fixtures of the team on each side of the difference
		assert.Equal(t, 2, plus, c.Label)
		assert.Equal(t, 2, minus, c.Label)
	}
}

// A team with no game on the previous matchday would make the subtracted sum
// zero and the rest row trivially true. The one-game rule is what rejects such
// an assignment, so the pair must be checked together.
func TestMinimumRestBoundaryCoveredByOneGameRule(t *testing.T) {
	p := leaguetest.TwoTeam()
	m, err := model.Build(p)
	require.NoError(t, err)

	values := make([]float64, len(m.Vars))
	for i, v := range m.Vars {
		// both fixtures on matchday 2, nothing on matchday 1
		if v.Kind == model.Binary && v.Slot.Matchday == 2 {
			values[i] = 1
		}
	}
	values[m.Lateness] = 1

	var rest, oneGame bool
	for _, v := range m.Check(values, tol) {
		switch v.Family {
		case model.FamilyRest:
			rest = true
		case model.FamilyOneGame:
			oneGame = true
		}
	}
	assert.False(t, rest, "rest rows alone cannot see the empty matchday")
	assert.True(t, oneGame, "one-game rows must reject it")
}

func TestLatenessBoundRows(t *testing.T) {
	p := leaguetest.FourTeam()
	ix := model.NewIndex(p)
	cs, err := model.LatenessBound(p, ix)
	require.NoError(t, err)
	require.Len(t, cs, 168)

	first := cs[0]
	assert.Equal(t, "1 vs 2@md1/day0", first.Label)
	// day 0 contributes no assignment term
	assert.Equal(t, []model.Term{{Var: ix.Lateness(), Coef: 1}}, first.Terms)
	assert.Equal(t, -1.0, first.RHS)

	second := cs[1]
	require.Len(t, second.Terms, 2)
	assert.Equal(t, -1.0, second.Terms[1].Coef)
}

func TestVenueReservations(t *testing.T) {
	p := leaguetest.TwoTeam()
	ix := model.NewIndex(p)
	cs, err := model.VenueReservations(p, ix)
	require.NoError(t, err)
	require.Len(t, cs, 1)

	v, err := ix.Assignment(strategy.Fixture{Home: "A", Away: "B"}, league.SlotKey{Matchday: 1, Day: 1})
	require.NoError(t, err)
	assert.Equal(t, []model.Term{{Var: v, Coef: 1}}, cs[0].Terms)
	assert.Equal(t, 0.0, cs[0].RHS)
}

func TestVenueReservationOnDayWithoutSlots(t *testing.T) {
	in := leaguetest.TwoTeamInput()
	in.Reservations = []league.Reservation{{Team: "B", Day: 7}}
	p := mustProblem(t, in)

	cs, err := model.VenueReservations(p, model.NewIndex(p))
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestRuleWithForeignIndexFailsFast(t *testing.T) {
	four := leaguetest.FourTeam()
	two := model.NewIndex(leaguetest.TwoTeam())

	for name, rule := range map[string]model.Rule{
		"completeness": model.Completeness,
		"capacity":     model.SlotCapacity,
		"lateness":     model.LatenessBound,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := rule(four, two)
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrBuild)

			var be *model.BuildError
			require.ErrorAs(t, err, &be)
			assert.NotEmpty(t, be.Family)
		})
	}
}

func TestObjectiveTerms(t *testing.T) {
	p := leaguetest.TwoTeam()
	m, err := model.Build(p)
	require.NoError(t, err)

	// θ2·target
	assert.Equal(t, 50.0, m.Objective.Constant)

	coefs := make(map[string]float64)
	for _, term := range m.Objective.Terms {
		coefs[m.Vars[term.Var].Name] = term.Coef
	}
	assert.Equal(t, 1.0, coefs["z"])
	// revenue 2 on day 1, 5 on day 3; average popularity (2+4)/2 = 3
	assert.Equal(t, -6.0, coefs["x[A,B,1,1]"])
	assert.Equal(t, -15.0, coefs["x[B,A,2,3]"])
}

func TestObjectiveDropsZeroWeights(t *testing.T) {
	in := leaguetest.TwoTeamInput()
	in.Params.LatenessWeight = 0
	m, err := model.Build(mustProblem(t, in))
	require.NoError(t, err)

	for _, term := range m.Objective.Terms {
		assert.NotEqual(t, m.Lateness, term.Var)
	}
}

func mustProblem(t *testing.T, in league.Input) *league.Problem {
	t.Helper()
	p, err := league.New(in)
	require.NoError(t, err)
	return p
}
