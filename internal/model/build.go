package model

import (
	"fmt"
	"math"

	"github.com/derekprior/leaguesched/internal/league"
	"github.com/derekprior/leaguesched/internal/strategy"
)

type assignKey struct {
	home, away string
	slot       league.SlotKey
}

// Index resolves (fixture, slot) pairs to variable indices for the rules.
type Index struct {
	problem  *league.Problem
	vars     []Variable
	byKey    map[assignKey]int
	lateness int
	// fixtures involving each team, in fixture order
	teamFixtures map[string][]strategy.Fixture
}

// NewIndex lays out the variables of p: one binary per (fixture, slot) in
// fixture order then slot order, followed by the lateness variable.
func NewIndex(p *league.Problem) *Index {
	ix := &Index{
		problem:      p,
		byKey:        make(map[assignKey]int),
		teamFixtures: make(map[string][]strategy.Fixture),
	}

	zUpper := 0.0
	for _, s := range p.Slots() {
		if due, ok := p.DueDate(s.Matchday); ok {
			zUpper = math.Max(zUpper, float64(s.Day-due))
		}
	}

	for _, f := range p.Fixtures() {
		ix.teamFixtures[f.Home] = append(ix.teamFixtures[f.Home], f)
		ix.teamFixtures[f.Away] = append(ix.teamFixtures[f.Away], f)
		for _, s := range p.Slots() {
			ix.byKey[assignKey{f.Home, f.Away, s.Key()}] = len(ix.vars)
			ix.vars = append(ix.vars, Variable{
				Name:    fmt.Sprintf("x[%s,%s,%d,%d]", f.Home, f.Away, s.Matchday, s.Day),
				Kind:    Binary,
				Lower:   0,
				Upper:   1,
				Fixture: f,
				Slot:    s,
			})
		}
	}

	ix.lateness = len(ix.vars)
	ix.vars = append(ix.vars, Variable{Name: "z", Kind: Continuous, Lower: 0, Upper: zUpper})
	return ix
}

// Assignment returns the variable placing f in slot s.
func (ix *Index) Assignment(f strategy.Fixture, s league.SlotKey) (int, error) {
	v, ok := ix.byKey[assignKey{f.Home, f.Away, s}]
	if !ok {
		return 0, fmt.Errorf("no variable for %s on matchday %d day %d", f, s.Matchday, s.Day)
	}
	return v, nil
}

// Lateness returns the index of z.
func (ix *Index) Lateness() int {
	return ix.lateness
}

// Len returns the number of variables.
func (ix *Index) Len() int {
	return len(ix.vars)
}

// TeamFixtures returns the fixtures a team plays in, home or away.
func (ix *Index) TeamFixtures(team string) []strategy.Fixture {
	return ix.teamFixtures[team]
}

// Rule generates one family of constraints.
type Rule func(p *league.Problem, ix *Index) ([]Constraint, error)

// Rules lists every constraint family in the order Build applies them.
var Rules = []Rule{
	Completeness,
	OneGamePerMatchday,
	MinimumRest,
	StreakCap,
	SlotCapacity,
	LatenessBound,
	VenueReservations,
}

// Build derives the model of p. It is deterministic: the same Problem always
// yields the same variable order, objective and constraint list.
func Build(p *league.Problem) (*Model, error) {
	ix := NewIndex(p)

	obj, err := buildObjective(p, ix)
	if err != nil {
		return nil, err
	}

	m := &Model{
		Vars:      ix.vars,
		Lateness:  ix.lateness,
		Objective: obj,
	}

	for _, rule := range Rules {
		cs, err := rule(p, ix)
		if err != nil {
			return nil, err
		}
		m.Constraints = append(m.Constraints, cs...)
	}

	if err := m.verify(); err != nil {
		return nil, err
	}
	return m, nil
}

// buildObjective encodes
//
//	θ1·z + θ2·(target − Σ x·revenue·(pop_home+pop_away)/2)
func buildObjective(p *league.Problem, ix *Index) (Objective, error) {
	params := p.Params()
	obj := Objective{Constant: params.RevenueWeight * params.TargetRevenue}
	if params.LatenessWeight != 0 {
		obj.Terms = append(obj.Terms, Term{Var: ix.lateness, Coef: params.LatenessWeight})
	}

	for _, f := range p.Fixtures() {
		home, okH := p.Popularity(f.Home)
		away, okA := p.Popularity(f.Away)
		if !okH || !okA {
			return Objective{}, buildErrorf("", "fixture %s references a team without popularity", f)
		}
		for _, s := range p.Slots() {
			v, err := ix.Assignment(f, s.Key())
			if err != nil {
				return Objective{}, buildErrorf("", "objective: %v", err)
			}
			coef := -params.RevenueWeight * s.Revenue * (home + away) / 2
			if coef != 0 {
				obj.Terms = append(obj.Terms, Term{Var: v, Coef: coef})
			}
		}
	}
	return obj, nil
}

func (m *Model) verify() error {
	check := func(where string, terms []Term) error {
		for _, t := range terms {
			if t.Var < 0 || t.Var >= len(m.Vars) {
				return fmt.Errorf("%s references undefined variable %d", where, t.Var)
			}
		}
		return nil
	}
	if err := check("objective", m.Objective.Terms); err != nil {
		return buildErrorf("", "%v", err)
	}
	for _, c := range m.Constraints {
		if err := check(c.Label, c.Terms); err != nil {
			return buildErrorf(c.Family, "%v", err)
		}
	}
	return nil
}
