// Package model turns a league instance into a mixed-integer linear program:
// one binary per (fixture, slot), one continuous lateness variable, a
// minimization objective and a list of typed constraint records. The model is
// a plain value; solver backends translate it into their own representation.
package model

import (
	"errors"
	"fmt"

	"github.com/derekprior/leaguesched/internal/league"
	"github.com/derekprior/leaguesched/internal/strategy"
)

type VarKind int

const (
	Binary VarKind = iota
	Continuous
)

func (k VarKind) String() string {
	if k == Binary {
		return "binary"
	}
	return "continuous"
}

// Variable is one decision variable. Fixture and Slot are set for assignment
// variables only.
type Variable struct {
	Name    string
	Kind    VarKind
	Lower   float64
	Upper   float64
	Fixture strategy.Fixture
	Slot    league.Slot
}

// Term is coef * vars[Var].
type Term struct {
	Var  int
	Coef float64
}

type Sense int

const (
	LessEqual Sense = iota
	Equal
	GreaterEqual
)

func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case Equal:
		return "="
	default:
		return ">="
	}
}

// Family tags the rule a constraint was generated by.
type Family string

const (
	FamilyCompleteness Family = "completeness"
	FamilyOneGame      Family = "one_game_per_matchday"
	FamilyRest         Family = "min_rest"
	FamilyStreak       Family = "streak_cap"
	FamilyCapacity     Family = "slot_capacity"
	FamilyLateness     Family = "lateness"
	FamilyVenue        Family = "venue_reservation"
)

// Constraint is sum(Terms) Sense RHS.
type Constraint struct {
	Family Family
	Label  string
	Terms  []Term
	Sense  Sense
	RHS    float64
}

func (c Constraint) String() string {
	return fmt.Sprintf("%s[%s] (%d terms) %s %g", c.Family, c.Label, len(c.Terms), c.Sense, c.RHS)
}

// Objective is Constant + sum(Terms), minimized.
type Objective struct {
	Constant float64
	Terms    []Term
}

// Model is the complete program. It is immutable once Build returns.
type Model struct {
	Vars        []Variable
	Lateness    int
	Objective   Objective
	Constraints []Constraint
}

// Counts returns the number of constraints per family.
func (m *Model) Counts() map[Family]int {
	counts := make(map[Family]int)
	for _, c := range m.Constraints {
		counts[c.Family]++
	}
	return counts
}

// Family returns the constraints of one family in build order.
func (m *Model) Family(f Family) []Constraint {
	var out []Constraint
	for _, c := range m.Constraints {
		if c.Family == f {
			out = append(out, c)
		}
	}
	return out
}

// ErrBuild matches every *BuildError via errors.Is.
var ErrBuild = errors.New("model build failed")

// BuildError reports an internal inconsistency found while assembling the
// model. A valid league.Problem never produces one.
type BuildError struct {
	Family Family
	Reason string
}

func (e *BuildError) Error() string {
	if e.Family == "" {
		return fmt.Sprintf("model build failed: %s", e.Reason)
	}
	return fmt.Sprintf("model build failed: %s: %s", e.Family, e.Reason)
}

func (e *BuildError) Is(target error) bool {
	return target == ErrBuild
}

func buildErrorf(f Family, format string, args ...any) error {
	return &BuildError{Family: f, Reason: fmt.Sprintf(format, args...)}
}
