package model

import (
	"fmt"

	"github.com/derekprior/leaguesched/internal/league"
)

// Completeness: every fixture is played in exactly one slot.
func Completeness(p *league.Problem, ix *Index) ([]Constraint, error) {
	var cs []Constraint
	for _, f := range p.Fixtures() {
		c := Constraint{Family: FamilyCompleteness, Label: f.String(), Sense: Equal, RHS: 1}
		for _, s := range p.Slots() {
			v, err := ix.Assignment(f, s.Key())
			if err != nil {
				return nil, buildErrorf(FamilyCompleteness, "%v", err)
			}
			c.Terms = append(c.Terms, Term{Var: v, Coef: 1})
		}
		cs = append(cs, c)
	}
	return cs, nil
}

// OneGamePerMatchday: every team plays exactly one game, home or away, on
// every matchday.
func OneGamePerMatchday(p *league.Problem, ix *Index) ([]Constraint, error) {
	var cs []Constraint
	for _, team := range p.TeamNames() {
		for _, md := range p.Matchdays() {
			terms, err := teamTerms(ix, team, p.SlotsFor(md), false)
			if err != nil {
				return nil, buildErrorf(FamilyOneGame, "%v", err)
			}
			cs = append(cs, Constraint{
				Family: FamilyOneGame,
				Label:  fmt.Sprintf("%s@md%d", team, md),
				Terms:  terms,
				Sense:  Equal,
				RHS:    1,
			})
		}
	}
	return cs, nil
}

// MinimumRest: the day a team plays on matchday r minus the day it plays on
// matchday r-1 is at least MinRest. Each side is the day-weighted sum of the
// team's assignment variables on that matchday, which OneGamePerMatchday pins
// to the chosen day. Matchday 1 has no predecessor and is skipped. A matchday
// without slots would make a side vacuously zero, so it is rejected instead.
func MinimumRest(p *league.Problem, ix *Index) ([]Constraint, error) {
	rest := float64(p.Params().MinRest)
	matchdays := p.Matchdays()

	var cs []Constraint
	for _, team := range p.TeamNames() {
		for i := 1; i < len(matchdays); i++ {
			cur, prev := matchdays[i], matchdays[i-1]
			curSlots, prevSlots := p.SlotsFor(cur), p.SlotsFor(prev)
			if len(curSlots) == 0 || len(prevSlots) == 0 {
				return nil, buildErrorf(FamilyRest, "matchday %d or %d has no slot window", prev, cur)
			}

			plus, err := teamTerms(ix, team, curSlots, true)
			if err != nil {
				return nil, buildErrorf(FamilyRest, "%v", err)
			}
			minus, err := teamTerms(ix, team, prevSlots, true)
			if err != nil {
				return nil, buildErrorf(FamilyRest, "%v", err)
			}
			for j := range minus {
				minus[j].Coef = -minus[j].Coef
			}

			cs = append(cs, Constraint{
				Family: FamilyRest,
				Label:  fmt.Sprintf("%s@md%d-md%d", team, prev, cur),
				Terms:  append(plus, minus...),
				Sense:  GreaterEqual,
				RHS:    rest,
			})
		}
	}
	return cs, nil
}

// StreakCap: in every window of StreakLimit+1 consecutive matchdays a team
// plays at most StreakLimit home games and at most StreakLimit away games.
// Windows never extend past the last matchday; when the limit is at least the
// number of matchdays there are no windows.
func StreakCap(p *league.Problem, ix *Index) ([]Constraint, error) {
	limit := p.Params().StreakLimit
	matchdays := p.Matchdays()

	var cs []Constraint
	for _, team := range p.TeamNames() {
		for start := 0; start+limit < len(matchdays); start++ {
			window := matchdays[start : start+limit+1]

			var slots []league.Slot
			for _, md := range window {
				mdSlots := p.SlotsFor(md)
				if len(mdSlots) == 0 {
					return nil, buildErrorf(FamilyStreak, "matchday %d in window md%d-md%d has no slot window", md, window[0], window[len(window)-1])
				}
				slots = append(slots, mdSlots...)
			}

			for _, side := range []string{"home", "away"} {
				c := Constraint{
					Family: FamilyStreak,
					Label:  fmt.Sprintf("%s/%s@md%d-md%d", team, side, window[0], window[len(window)-1]),
					Sense:  LessEqual,
					RHS:    float64(limit),
				}
				for _, f := range ix.TeamFixtures(team) {
					if (side == "home") != (f.Home == team) {
						continue
					}
					for _, s := range slots {
						v, err := ix.Assignment(f, s.Key())
						if err != nil {
							return nil, buildErrorf(FamilyStreak, "%v", err)
						}
						c.Terms = append(c.Terms, Term{Var: v, Coef: 1})
					}
				}
				cs = append(cs, c)
			}
		}
	}
	return cs, nil
}

// SlotCapacity: no slot hosts more than SlotCapacity fixtures.
func SlotCapacity(p *league.Problem, ix *Index) ([]Constraint, error) {
	k := float64(p.Params().SlotCapacity)

	var cs []Constraint
	for _, s := range p.Slots() {
		c := Constraint{
			Family: FamilyCapacity,
			Label:  fmt.Sprintf("md%d/day%d", s.Matchday, s.Day),
			Sense:  LessEqual,
			RHS:    k,
		}
		for _, f := range p.Fixtures() {
			v, err := ix.Assignment(f, s.Key())
			if err != nil {
				return nil, buildErrorf(FamilyCapacity, "%v", err)
			}
			c.Terms = append(c.Terms, Term{Var: v, Coef: 1})
		}
		cs = append(cs, c)
	}
	return cs, nil
}

// LatenessBound: for every fixture and slot, z >= day·x - due(matchday), so z
// is at least the overrun of every assigned fixture. Minimizing z drives it
// to the worst overrun of the schedule.
func LatenessBound(p *league.Problem, ix *Index) ([]Constraint, error) {
	z := ix.Lateness()

	var cs []Constraint
	for _, f := range p.Fixtures() {
		for _, s := range p.Slots() {
			due, ok := p.DueDate(s.Matchday)
			if !ok {
				return nil, buildErrorf(FamilyLateness, "matchday %d has no due date", s.Matchday)
			}
			v, err := ix.Assignment(f, s.Key())
			if err != nil {
				return nil, buildErrorf(FamilyLateness, "%v", err)
			}
			c := Constraint{
				Family: FamilyLateness,
				Label:  fmt.Sprintf("%s@md%d/day%d", f, s.Matchday, s.Day),
				Terms:  []Term{{Var: z, Coef: 1}},
				Sense:  GreaterEqual,
				RHS:    -float64(due),
			}
			if s.Day != 0 {
				c.Terms = append(c.Terms, Term{Var: v, Coef: -float64(s.Day)})
			}
			cs = append(cs, c)
		}
	}
	return cs, nil
}

// VenueReservations: a team never hosts on a day its venue is reserved.
// Reserved days without any slot produce no constraint.
func VenueReservations(p *league.Problem, ix *Index) ([]Constraint, error) {
	var cs []Constraint
	for _, r := range p.Reservations() {
		c := Constraint{
			Family: FamilyVenue,
			Label:  fmt.Sprintf("%s/day%d", r.Team, r.Day),
			Sense:  LessEqual,
			RHS:    0,
		}
		for _, f := range ix.TeamFixtures(r.Team) {
			if f.Home != r.Team {
				continue
			}
			for _, s := range p.Slots() {
				if s.Day != r.Day {
					continue
				}
				v, err := ix.Assignment(f, s.Key())
				if err != nil {
					return nil, buildErrorf(FamilyVenue, "%v", err)
				}
				c.Terms = append(c.Terms, Term{Var: v, Coef: 1})
			}
		}
		if len(c.Terms) > 0 {
			cs = append(cs, c)
		}
	}
	return cs, nil
}

// teamTerms collects the team's assignment variables over slots, weighted by
// the slot day when byDay is set and by 1 otherwise. Zero weights are dropped.
func teamTerms(ix *Index, team string, slots []league.Slot, byDay bool) ([]Term, error) {
	var terms []Term
	for _, f := range ix.TeamFixtures(team) {
		for _, s := range slots {
			v, err := ix.Assignment(f, s.Key())
			if err != nil {
				return nil, err
			}
			coef := 1.0
			if byDay {
				coef = float64(s.Day)
			}
			if coef == 0 {
				continue
			}
			terms = append(terms, Term{Var: v, Coef: coef})
		}
	}
	return terms, nil
}
