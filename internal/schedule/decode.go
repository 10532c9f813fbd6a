// Package schedule turns optimizer output into a season schedule and wires
// the build, solve and decode steps together.
package schedule

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/derekprior/leaguesched/internal/league"
	"github.com/derekprior/leaguesched/internal/model"
	"github.com/derekprior/leaguesched/internal/strategy"
)

// Threshold is the value at or above which an assignment variable counts as
// chosen.
const Threshold = 0.5

// Row is one scheduled fixture.
type Row struct {
	Matchday int
	Date     time.Time
	Day      int
	Home     string
	Away     string
	Label    string
	// Revenue is slot revenue times the mean popularity of the two teams.
	Revenue float64
	// Lateness is Day minus the matchday's due date; negative when early.
	Lateness int
}

// Game formats the row the way schedule files print it.
func (r Row) Game() string {
	return strategy.Fixture{Home: r.Home, Away: r.Away}.String()
}

// TeamMetrics holds per-team schedule statistics.
type TeamMetrics struct {
	Games      int
	Home       int
	Away       int
	Violations []string
}

// Result is a decoded schedule. It never aliases solver or problem state.
type Result struct {
	RunID       string
	Rows        []Row
	Warnings    []string
	TeamMetrics map[string]*TeamMetrics
	// MaxLateness is the largest overrun of any row, or 0 when every row is
	// on time.
	MaxLateness int
	Revenue     float64
	Objective   float64
	// Partial marks a schedule decoded from a timed out solve's incumbent.
	Partial bool
}

// ErrIntegrity matches every *IntegrityError via errors.Is.
var ErrIntegrity = errors.New("decoded schedule failed integrity check")

// IntegrityError reports an assignment that does not schedule every fixture
// exactly once. It points at a defect in the model or in the optimizer's
// values, never at the league configuration.
type IntegrityError struct {
	Missing    []string
	Duplicated []string
	Reason     string
}

func (e *IntegrityError) Error() string {
	var parts []string
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Duplicated) > 0 {
		parts = append(parts, "duplicated "+strings.Join(e.Duplicated, ", "))
	}
	return fmt.Sprintf("schedule integrity: %s", strings.Join(parts, "; "))
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// Decode reads the chosen assignment variables out of values, one per
// variable of m, and returns the schedule ordered by matchday, day, home and
// away. Dates are anchor plus the slot's day offset.
func Decode(p *league.Problem, m *model.Model, values []float64, anchor time.Time) (*Result, error) {
	if len(values) != len(m.Vars) {
		return nil, &IntegrityError{Reason: fmt.Sprintf("expected %d values, got %d", len(m.Vars), len(values))}
	}

	type pair struct{ home, away string }
	counts := make(map[pair]int)
	for _, f := range p.Fixtures() {
		counts[pair{f.Home, f.Away}] = 0
	}

	for i, v := range m.Vars {
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			return nil, &IntegrityError{Reason: fmt.Sprintf("value of %s is %v", v.Name, values[i])}
		}
	}

	var rows []Row
	var unknown []string
	for i, v := range m.Vars {
		if v.Kind != model.Binary || !(values[i] >= Threshold) {
			continue
		}
		key := pair{v.Fixture.Home, v.Fixture.Away}
		if _, ok := counts[key]; !ok {
			unknown = append(unknown, v.Fixture.String())
			continue
		}
		counts[key]++

		home, _ := p.Popularity(v.Fixture.Home)
		away, _ := p.Popularity(v.Fixture.Away)
		due, _ := p.DueDate(v.Slot.Matchday)
		rows = append(rows, Row{
			Matchday: v.Slot.Matchday,
			Date:     anchor.AddDate(0, 0, v.Slot.Day),
			Day:      v.Slot.Day,
			Home:     v.Fixture.Home,
			Away:     v.Fixture.Away,
			Label:    v.Fixture.Label,
			Revenue:  v.Slot.Revenue * (home + away) / 2,
			Lateness: v.Slot.Day - due,
		})
	}

	ie := &IntegrityError{}
	for _, f := range p.Fixtures() {
		switch n := counts[pair{f.Home, f.Away}]; {
		case n == 0:
			ie.Missing = append(ie.Missing, f.String())
		case n > 1:
			ie.Duplicated = append(ie.Duplicated, fmt.Sprintf("%s (x%d)", f, n))
		}
	}
	if len(unknown) > 0 {
		ie.Reason = "unknown fixtures " + strings.Join(unknown, ", ")
	}
	if len(ie.Missing) > 0 || len(ie.Duplicated) > 0 || ie.Reason != "" {
		return nil, ie
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Matchday != b.Matchday {
			return a.Matchday < b.Matchday
		}
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.Home != b.Home {
			return a.Home < b.Home
		}
		return a.Away < b.Away
	})

	res := &Result{Rows: rows, Objective: m.ObjectiveValue(values)}
	res.Warnings, res.TeamMetrics = buildMetrics(p, rows)
	for _, r := range rows {
		res.Revenue += r.Revenue
		if r.Lateness > res.MaxLateness {
			res.MaxLateness = r.Lateness
		}
	}
	return res, nil
}

func buildMetrics(p *league.Problem, rows []Row) ([]string, map[string]*TeamMetrics) {
	var warnings []string
	metrics := make(map[string]*TeamMetrics)
	for _, team := range p.TeamNames() {
		metrics[team] = &TeamMetrics{}
	}

	for _, r := range rows {
		metrics[r.Home].Games++
		metrics[r.Home].Home++
		metrics[r.Away].Games++
		metrics[r.Away].Away++

		if r.Lateness > 0 {
			w := fmt.Sprintf("%s on matchday %d played %d day(s) after its due date (%s)",
				r.Game(), r.Matchday, r.Lateness, r.Date.Format("01/02"))
			warnings = append(warnings, w)
			metrics[r.Home].Violations = append(metrics[r.Home].Violations, w)
			metrics[r.Away].Violations = append(metrics[r.Away].Violations, w)
		}
	}

	for _, team := range p.TeamNames() {
		m := metrics[team]
		if m.Home != m.Away {
			warnings = append(warnings, fmt.Sprintf(
				"%s home/away imbalance: %d home, %d away", team, m.Home, m.Away))
		}
	}
	return warnings, metrics
}
