package schedule

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derekprior/leaguesched/internal/league"
	"github.com/derekprior/leaguesched/internal/league/leaguetest"
	"github.com/derekprior/leaguesched/internal/model"
	"github.com/derekprior/leaguesched/internal/solver"
)

// roundOptimizer answers with leaguetest.FourTeamRound and counts calls.
type roundOptimizer struct {
	mu     sync.Mutex
	calls  int
	status solver.Status
}

func (o *roundOptimizer) Solve(_ context.Context, m *model.Model) solver.Outcome {
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()
	values := leaguetest.Values(m, leaguetest.FourTeamRound, 2)
	return solver.Outcome{Status: o.status, Values: values, Objective: m.ObjectiveValue(values), Nodes: 1}
}

type modelCounts struct {
	vars     int
	families map[string]int
}

func (c *modelCounts) ObserveModel(vars int, families map[string]int) {
	c.vars = vars
	c.families = families
}

func TestRunFourTeamLeague(t *testing.T) {
	opt := &roundOptimizer{status: solver.Optimal}
	obs := &modelCounts{}

	res, out, err := Run(context.Background(), leaguetest.FourTeam(), opt, RunOptions{
		RunID:    "run-1",
		Anchor:   anchor,
		Observer: obs,
	})
	require.NoError(t, err)
	assert.Equal(t, solver.Optimal, out.Status)
	assert.Equal(t, 1, opt.calls)

	assert.Equal(t, "run-1", res.RunID)
	assert.False(t, res.Partial)
	assert.Len(t, res.Rows, 12)

	matchdays := make(map[int]int)
	for _, r := range res.Rows {
		matchdays[r.Matchday]++
	}
	assert.Len(t, matchdays, 6)

	assert.GreaterOrEqual(t, res.MaxLateness, 0)
	assert.Equal(t, 169, obs.vars)
	assert.Equal(t, 12, obs.families["completeness"])
	assert.Equal(t, 8, obs.families["streak_cap"])
}

func TestRunFourTeamLeagueWithBranchAndBound(t *testing.T) {
	p := leaguetest.FourTeam()
	opt := solver.NewBranchAndBound(solver.Options{TimeLimit: time.Minute})

	res, out, err := Run(context.Background(), p, opt, RunOptions{Anchor: anchor})
	require.NoError(t, err)
	require.Equal(t, solver.Optimal, out.Status, out.Reason)
	assert.False(t, res.Partial)

	m, err := model.Build(p)
	require.NoError(t, err)
	assert.Empty(t, m.Check(out.Values, 1e-6))
	assert.InDelta(t, float64(res.MaxLateness), out.Values[m.Lateness], 1e-6)
	assert.InDelta(t, out.Objective, res.Objective, 1e-9)

	require.Len(t, res.Rows, 12)
	plays := make(map[string]map[int]int)
	for _, r := range res.Rows {
		for _, team := range []string{r.Home, r.Away} {
			if plays[team] == nil {
				plays[team] = make(map[int]int)
			}
			plays[team][r.Matchday]++
		}
	}
	require.Len(t, plays, 4)
	for team, byMatchday := range plays {
		for md := 1; md <= 6; md++ {
			assert.Equal(t, 1, byMatchday[md], "team %s on matchday %d", team, md)
		}
	}
}

func TestRunGeneratesRunID(t *testing.T) {
	res, _, err := Run(context.Background(), leaguetest.FourTeam(), &roundOptimizer{status: solver.Optimal}, RunOptions{Anchor: anchor})
	require.NoError(t, err)
	assert.Len(t, res.RunID, 36)
}

func TestRunMissingSlotsFailsBeforeSolving(t *testing.T) {
	in := leaguetest.FourTeamInput()
	var kept []league.Slot
	for _, s := range in.Slots {
		if s.Matchday != 3 {
			kept = append(kept, s)
		}
	}
	in.Slots = kept

	opt := &roundOptimizer{status: solver.Optimal}
	p, err := league.New(in)
	require.Error(t, err)
	assert.ErrorIs(t, err, league.ErrConfig)
	assert.Nil(t, p)
	assert.Equal(t, 0, opt.calls)
}

func TestRunUniqueAssignment(t *testing.T) {
	res, out, err := Run(context.Background(), leaguetest.TwoTeam(), solver.NewBranchAndBound(solver.Options{}), RunOptions{Anchor: anchor})
	require.NoError(t, err)
	require.Equal(t, solver.Optimal, out.Status)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, Row{
		Matchday: 1,
		Date:     anchor.AddDate(0, 0, 1),
		Day:      1,
		Home:     "B",
		Away:     "A",
		Label:    "Game 2",
		Revenue:  6,
		Lateness: 0,
	}, res.Rows[0])
	assert.Equal(t, Row{
		Matchday: 2,
		Date:     anchor.AddDate(0, 0, 3),
		Day:      3,
		Home:     "A",
		Away:     "B",
		Label:    "Game 1",
		Revenue:  15,
		Lateness: 1,
	}, res.Rows[1])
	assert.Equal(t, 1, res.MaxLateness)
	assert.InDelta(t, out.Values[len(out.Values)-1], float64(res.MaxLateness), 1e-6)
}

func TestRunSolverOutcomes(t *testing.T) {
	p := leaguetest.FourTeam()

	t.Run("infeasible is an error, not an empty schedule", func(t *testing.T) {
		opt := solver.OptimizerFunc(func(context.Context, *model.Model) solver.Outcome {
			return solver.Outcome{Status: solver.Infeasible, Reason: "no integer assignment"}
		})
		res, out, err := Run(context.Background(), p, opt, RunOptions{})
		assert.Nil(t, res)
		assert.Equal(t, solver.Infeasible, out.Status)
		assert.ErrorIs(t, err, ErrSolve)

		var se *SolveError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "solver finished infeasible: no integer assignment", se.Error())
	})

	t.Run("timed out with incumbent decodes a partial schedule", func(t *testing.T) {
		res, out, err := Run(context.Background(), p, &roundOptimizer{status: solver.TimedOut}, RunOptions{Anchor: anchor})
		require.NoError(t, err)
		assert.Equal(t, solver.TimedOut, out.Status)
		assert.True(t, res.Partial)
		assert.Len(t, res.Rows, 12)
	})

	t.Run("timed out without incumbent", func(t *testing.T) {
		opt := solver.OptimizerFunc(func(context.Context, *model.Model) solver.Outcome {
			return solver.Outcome{Status: solver.TimedOut, Reason: "time limit reached"}
		})
		_, out, err := Run(context.Background(), p, opt, RunOptions{})
		assert.ErrorIs(t, err, ErrSolve)
		assert.Equal(t, solver.TimedOut, out.Status)
	})

	t.Run("unbounded and error", func(t *testing.T) {
		for _, status := range []solver.Status{solver.Unbounded, solver.Error} {
			opt := solver.OptimizerFunc(func(context.Context, *model.Model) solver.Outcome {
				return solver.Outcome{Status: status}
			})
			_, _, err := Run(context.Background(), p, opt, RunOptions{})
			assert.ErrorIs(t, err, ErrSolve, status.String())
		}
	})

	t.Run("bad values surface as an integrity error", func(t *testing.T) {
		opt := solver.OptimizerFunc(func(_ context.Context, m *model.Model) solver.Outcome {
			return solver.Outcome{Status: solver.Optimal, Values: make([]float64, len(m.Vars))}
		})
		_, _, err := Run(context.Background(), p, opt, RunOptions{})
		assert.ErrorIs(t, err, ErrIntegrity)
		assert.NotErrorIs(t, err, ErrSolve)
	})
}

func TestRunLogsRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	_, _, err := Run(context.Background(), leaguetest.FourTeam(), &roundOptimizer{status: solver.Optimal}, RunOptions{
		RunID:  "abc",
		Anchor: anchor,
		Logger: &logger,
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"run_id":"abc"`)
	assert.Contains(t, buf.String(), `"message":"schedule decoded"`)
}

func TestRunAll(t *testing.T) {
	infeasible := leaguetest.TwoTeamInput()
	infeasible.Params.MinRest = 5
	bad, err := league.New(infeasible)
	require.NoError(t, err)

	jobs := []Job{
		{Name: "two", Problem: leaguetest.TwoTeam(), Anchor: anchor},
		{Name: "rested", Problem: bad, Anchor: anchor},
		{Name: "two-again", Problem: leaguetest.TwoTeam(), Anchor: anchor},
	}
	opt := solver.NewBranchAndBound(solver.Options{})

	t.Run("collects every job in order", func(t *testing.T) {
		results, err := RunAll(context.Background(), opt, jobs, RunAllOptions{Parallelism: 2})
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, "two", results[0].Name)
		require.NoError(t, results[0].Err)
		assert.Len(t, results[0].Result.Rows, 2)

		assert.Equal(t, "rested", results[1].Name)
		assert.ErrorIs(t, results[1].Err, ErrSolve)
		assert.Equal(t, solver.Infeasible, results[1].Outcome.Status)

		require.NoError(t, results[2].Err)
		assert.Equal(t, results[0].Result.Rows, results[2].Result.Rows)
		assert.NotEqual(t, results[0].Result.RunID, results[2].Result.RunID)
	})

	t.Run("fail fast", func(t *testing.T) {
		_, err := RunAll(context.Background(), opt, jobs, RunAllOptions{FailFast: true})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSolve)
		assert.Contains(t, err.Error(), "rested")
	})
}
