package model

import (
	"fmt"
	"math"
)

// Violation is a constraint or bound not satisfied by a value vector.
type Violation struct {
	Family Family
	Label  string
	LHS    float64
	Sense  Sense
	RHS    float64
}

func (v Violation) String() string {
	return fmt.Sprintf("%s[%s]: %g %s %g violated", v.Family, v.Label, v.LHS, v.Sense, v.RHS)
}

// FamilyBounds tags variable bound and integrality violations reported by Check.
const FamilyBounds Family = "bounds"

// ObjectiveValue evaluates the objective at values.
func (m *Model) ObjectiveValue(values []float64) float64 {
	return m.Objective.Constant + dot(m.Objective.Terms, values)
}

// Check returns every constraint, bound, or integrality requirement violated
// by values by more than tol. values must have one entry per variable.
func (m *Model) Check(values []float64, tol float64) []Violation {
	if len(values) != len(m.Vars) {
		return []Violation{{
			Family: FamilyBounds,
			Label:  fmt.Sprintf("expected %d values, got %d", len(m.Vars), len(values)),
		}}
	}

	var out []Violation
	for i, v := range m.Vars {
		x := values[i]
		if x < v.Lower-tol {
			out = append(out, Violation{Family: FamilyBounds, Label: v.Name, LHS: x, Sense: GreaterEqual, RHS: v.Lower})
		}
		if x > v.Upper+tol {
			out = append(out, Violation{Family: FamilyBounds, Label: v.Name, LHS: x, Sense: LessEqual, RHS: v.Upper})
		}
		if v.Kind == Binary && math.Abs(x-math.Round(x)) > tol {
			out = append(out, Violation{Family: FamilyBounds, Label: v.Name + " integrality", LHS: x, Sense: Equal, RHS: math.Round(x)})
		}
	}

	for _, c := range m.Constraints {
		lhs := dot(c.Terms, values)
		if !satisfied(lhs, c.Sense, c.RHS, tol) {
			out = append(out, Violation{Family: c.Family, Label: c.Label, LHS: lhs, Sense: c.Sense, RHS: c.RHS})
		}
	}
	return out
}

func satisfied(lhs float64, sense Sense, rhs, tol float64) bool {
	switch sense {
	case LessEqual:
		return lhs <= rhs+tol
	case GreaterEqual:
		return lhs >= rhs-tol
	default:
		return math.Abs(lhs-rhs) <= tol
	}
}

func dot(terms []Term, values []float64) float64 {
	var sum float64
	for _, t := range terms {
		sum += t.Coef * values[t.Var]
	}
	return sum
}
