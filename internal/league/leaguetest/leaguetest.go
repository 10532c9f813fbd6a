// Package leaguetest provides small league instances shared by tests.
package leaguetest

import (
	"fmt"

	"github.com/derekprior/leaguesched/internal/league"
	"github.com/derekprior/leaguesched/internal/model"
)

// FourTeamInput is the four-team, six-matchday league: capacity 2, rest 1,
// streak limit 5, due dates 1,3,5,7,9,11.
func FourTeamInput() league.Input {
	return league.Input{
		Teams: []league.Team{
			{Name: "1", Popularity: 1},
			{Name: "2", Popularity: 3},
			{Name: "3", Popularity: 5},
			{Name: "4", Popularity: 3},
		},
		DueDates: map[int]int{1: 1, 2: 3, 3: 5, 4: 7, 5: 9, 6: 11},
		Slots: []league.Slot{
			{Matchday: 1, Day: 0, Revenue: 1},
			{Matchday: 1, Day: 1, Revenue: 3},
			{Matchday: 2, Day: 2, Revenue: 1},
			{Matchday: 2, Day: 3, Revenue: 3},
			{Matchday: 2, Day: 4, Revenue: 3},
			{Matchday: 3, Day: 5, Revenue: 1},
			{Matchday: 3, Day: 6, Revenue: 3},
			{Matchday: 4, Day: 7, Revenue: 1},
			{Matchday: 4, Day: 8, Revenue: 1},
			{Matchday: 4, Day: 9, Revenue: 3},
			{Matchday: 5, Day: 10, Revenue: 1},
			{Matchday: 5, Day: 11, Revenue: 1},
			{Matchday: 6, Day: 12, Revenue: 1},
			{Matchday: 6, Day: 13, Revenue: 3},
		},
		Params: league.Params{
			SlotCapacity:   2,
			MinRest:        1,
			StreakLimit:    5,
			LatenessWeight: 1,
			RevenueWeight:  1,
			TargetRevenue:  100,
		},
	}
}

// FourTeam returns FourTeamInput as a validated Problem.
func FourTeam() *league.Problem {
	return mustNew(FourTeamInput())
}

// FourTeamRound lists a feasible schedule for FourTeam as
// (home, away, matchday, day) rows: two games per slot on one day of every
// matchday, rounds mirrored in the second half.
var FourTeamRound = []Assignment{
	{"1", "2", 1, 1}, {"3", "4", 1, 1},
	{"1", "3", 2, 3}, {"4", "2", 2, 3},
	{"1", "4", 3, 6}, {"2", "3", 3, 6},
	{"2", "1", 4, 9}, {"4", "3", 4, 9},
	{"3", "1", 5, 11}, {"2", "4", 5, 11},
	{"4", "1", 6, 13}, {"3", "2", 6, 13},
}

// Assignment places Home vs Away on a matchday's day.
type Assignment struct {
	Home, Away    string
	Matchday, Day int
}

// Values encodes assignments as a value vector for m with the lateness
// variable set to z. It panics if m has no variable for an assignment.
func Values(m *model.Model, assignments []Assignment, z float64) []float64 {
	index := make(map[Assignment]int)
	for i, v := range m.Vars {
		if v.Kind == model.Binary {
			index[Assignment{v.Fixture.Home, v.Fixture.Away, v.Slot.Matchday, v.Slot.Day}] = i
		}
	}
	values := make([]float64, len(m.Vars))
	for _, a := range assignments {
		i, ok := index[a]
		if !ok {
			panic(fmt.Sprintf("no variable for %+v", a))
		}
		values[i] = 1
	}
	values[m.Lateness] = z
	return values
}

// TwoTeamInput is the smallest league: two teams, two matchdays with one slot
// each, capacity 1. Team A cannot host on day 1, which leaves exactly one
// feasible assignment: B hosts A on matchday 1 (day 1), A hosts B on
// matchday 2 (day 3).
func TwoTeamInput() league.Input {
	return league.Input{
		Teams: []league.Team{
			{Name: "A", Popularity: 2},
			{Name: "B", Popularity: 4},
		},
		DueDates: map[int]int{1: 1, 2: 2},
		Slots: []league.Slot{
			{Matchday: 1, Day: 1, Revenue: 2},
			{Matchday: 2, Day: 3, Revenue: 5},
		},
		Reservations: []league.Reservation{
			{Team: "A", Day: 1, Reason: "Concert"},
		},
		Params: league.Params{
			SlotCapacity:   1,
			MinRest:        1,
			StreakLimit:    1,
			LatenessWeight: 1,
			RevenueWeight:  1,
			TargetRevenue:  50,
		},
	}
}

// TwoTeam returns TwoTeamInput as a validated Problem.
func TwoTeam() *league.Problem {
	return mustNew(TwoTeamInput())
}

// WindowedInput is an n-team double round robin with matchday r due on day
// gap*r and playable on any day from the previous due date up to padding days
// late. Models grow quickly with n, so it suits solver budget tests rather
// than exact answers.
func WindowedInput(n, gap, padding int) league.Input {
	in := league.Input{
		DueDates: make(map[int]int),
		Params: league.Params{
			SlotCapacity:   n / 2,
			MinRest:        1,
			StreakLimit:    2,
			LatenessWeight: 10,
			RevenueWeight:  1,
			TargetRevenue:  1000,
		},
	}
	for i := 1; i <= n; i++ {
		in.Teams = append(in.Teams, league.Team{Name: fmt.Sprintf("T%d", i), Popularity: float64(i%3 + 1)})
	}
	for r := 1; r <= 2*(n-1); r++ {
		in.DueDates[r] = gap * r
		for d := gap * (r - 1); d < gap*r+padding; d++ {
			in.Slots = append(in.Slots, league.Slot{Matchday: r, Day: d, Revenue: float64(d%4 + 1)})
		}
	}
	return in
}

func mustNew(in league.Input) *league.Problem {
	p, err := league.New(in)
	if err != nil {
		panic(err)
	}
	return p
}
