// Package league holds the validated, immutable description of one league
// instance: teams, fixtures, matchdays with due dates, candidate slots and the
// scalar rules the model is built from.
package league

import (
	"math"
	"sort"

	"github.com/derekprior/leaguesched/internal/strategy"
)

type Team struct {
	Name       string
	Popularity float64
}

// Slot is a candidate calendar day for a matchday. Day is an offset from the
// league's anchor date.
type Slot struct {
	Matchday int
	Day      int
	Revenue  float64
}

// SlotKey identifies a slot.
type SlotKey struct {
	Matchday int
	Day      int
}

func (s Slot) Key() SlotKey {
	return SlotKey{Matchday: s.Matchday, Day: s.Day}
}

// Reservation blocks Team from hosting on Day.
type Reservation struct {
	Team   string
	Day    int
	Reason string
}

// Params are the scalar rules and objective weights. The two weights are
// independent penalties and are not normalized.
type Params struct {
	SlotCapacity   int
	MinRest        int
	StreakLimit    int
	LatenessWeight float64
	RevenueWeight  float64
	TargetRevenue  float64
}

// Input is the raw material for New. When Fixtures is nil a double round
// robin over Teams is generated; when Matchdays is zero it defaults to
// 2*(len(Teams)-1).
type Input struct {
	Teams        []Team
	Fixtures     []strategy.Fixture
	Matchdays    int
	DueDates     map[int]int
	Slots        []Slot
	Reservations []Reservation
	Params       Params
}

// Problem is a validated league instance. It is never mutated after New
// returns, so it can be shared freely between goroutines.
type Problem struct {
	teams        []Team
	popularity   map[string]float64
	fixtures     []strategy.Fixture
	matchdays    []int
	dueDates     map[int]int
	slots        []Slot
	slotsByDay   map[int][]Slot
	reservations []Reservation
	params       Params
}

// New validates in and returns the Problem. Every failure is a *ConfigError.
func New(in Input) (*Problem, error) {
	if len(in.Teams) < 2 {
		return nil, configErrorf("teams", "at least two teams are required, got %d", len(in.Teams))
	}

	p := &Problem{
		popularity: make(map[string]float64, len(in.Teams)),
		dueDates:   make(map[int]int, len(in.DueDates)),
		slotsByDay: make(map[int][]Slot),
		params:     in.Params,
	}

	for _, t := range in.Teams {
		if t.Name == "" {
			return nil, configErrorf("teams", "team name must not be empty")
		}
		if _, dup := p.popularity[t.Name]; dup {
			return nil, configErrorf("teams", "team %q appears more than once", t.Name)
		}
		if !(t.Popularity > 0) || math.IsInf(t.Popularity, 0) {
			return nil, configErrorf("teams", "popularity of %q must be positive, got %v", t.Name, t.Popularity)
		}
		p.popularity[t.Name] = t.Popularity
		p.teams = append(p.teams, t)
	}

	if err := p.setFixtures(in); err != nil {
		return nil, err
	}

	count := in.Matchdays
	if count == 0 {
		count = 2 * (len(in.Teams) - 1)
	}
	if count < 1 {
		return nil, configErrorf("matchdays", "must be at least 1, got %d", count)
	}
	for md := 1; md <= count; md++ {
		p.matchdays = append(p.matchdays, md)
	}

	for _, md := range p.matchdays {
		due, ok := in.DueDates[md]
		if !ok {
			return nil, configErrorf("due_dates", "matchday %d has no due date", md)
		}
		p.dueDates[md] = due
	}

	if err := p.setSlots(in.Slots); err != nil {
		return nil, err
	}

	if err := p.setParams(); err != nil {
		return nil, err
	}

	for _, r := range in.Reservations {
		if _, ok := p.popularity[r.Team]; !ok {
			return nil, configErrorf("venue_reservations", "unknown team %q", r.Team)
		}
		p.reservations = append(p.reservations, r)
	}
	sort.SliceStable(p.reservations, func(i, j int) bool {
		if p.reservations[i].Team != p.reservations[j].Team {
			return p.reservations[i].Team < p.reservations[j].Team
		}
		return p.reservations[i].Day < p.reservations[j].Day
	})

	return p, nil
}

func (p *Problem) setFixtures(in Input) error {
	if in.Fixtures == nil {
		names := make([]string, len(p.teams))
		for i, t := range p.teams {
			names[i] = t.Name
		}
		p.fixtures = (&strategy.DoubleRoundRobin{}).GenerateFixtures(names)
		return nil
	}

	type pair struct{ home, away string }
	seen := make(map[pair]bool, len(in.Fixtures))
	for _, f := range in.Fixtures {
		if f.Home == f.Away {
			return configErrorf("fixtures", "%s cannot play itself", f.Home)
		}
		for _, team := range []string{f.Home, f.Away} {
			if _, ok := p.popularity[team]; !ok {
				return configErrorf("fixtures", "fixture %s references unknown team %q", f, team)
			}
		}
		k := pair{f.Home, f.Away}
		if seen[k] {
			return configErrorf("fixtures", "fixture %s appears more than once", f)
		}
		seen[k] = true
		p.fixtures = append(p.fixtures, f)
	}
	if len(p.fixtures) == 0 {
		return configErrorf("fixtures", "at least one fixture is required")
	}
	return nil
}

func (p *Problem) setSlots(slots []Slot) error {
	seen := make(map[SlotKey]bool, len(slots))
	for _, s := range slots {
		if _, ok := p.dueDates[s.Matchday]; !ok {
			return configErrorf("slots", "slot on day %d references matchday %d outside 1..%d", s.Day, s.Matchday, len(p.matchdays))
		}
		if math.IsNaN(s.Revenue) || math.IsInf(s.Revenue, 0) || s.Revenue < 0 {
			return configErrorf("slots", "revenue of matchday %d day %d must be a non-negative number, got %v", s.Matchday, s.Day, s.Revenue)
		}
		if seen[s.Key()] {
			return configErrorf("slots", "matchday %d day %d listed more than once", s.Matchday, s.Day)
		}
		seen[s.Key()] = true
		p.slots = append(p.slots, s)
	}

	sort.Slice(p.slots, func(i, j int) bool {
		if p.slots[i].Matchday != p.slots[j].Matchday {
			return p.slots[i].Matchday < p.slots[j].Matchday
		}
		return p.slots[i].Day < p.slots[j].Day
	})
	for _, s := range p.slots {
		p.slotsByDay[s.Matchday] = append(p.slotsByDay[s.Matchday], s)
	}

	for _, md := range p.matchdays {
		if len(p.slotsByDay[md]) == 0 {
			return configErrorf("slots", "matchday %d has no valid slot", md)
		}
	}
	return nil
}

func (p *Problem) setParams() error {
	pr := p.params
	if pr.SlotCapacity <= 0 {
		return configErrorf("slot_capacity", "must be positive, got %d", pr.SlotCapacity)
	}
	if pr.MinRest < 0 {
		return configErrorf("min_rest", "must not be negative, got %d", pr.MinRest)
	}
	if pr.StreakLimit < 1 {
		return configErrorf("max_consecutive_home_or_away", "must be at least 1, got %d", pr.StreakLimit)
	}
	weights := []struct {
		name string
		w    float64
	}{
		{"lateness_weight", pr.LatenessWeight},
		{"revenue_weight", pr.RevenueWeight},
	}
	for _, w := range weights {
		if math.IsNaN(w.w) || math.IsInf(w.w, 0) || w.w < 0 {
			return configErrorf(w.name, "must be a non-negative number, got %v", w.w)
		}
	}
	if math.IsNaN(pr.TargetRevenue) || math.IsInf(pr.TargetRevenue, 0) {
		return configErrorf("target_revenue", "must be a finite number, got %v", pr.TargetRevenue)
	}
	return nil
}

// Teams returns the teams in configuration order.
func (p *Problem) Teams() []Team {
	return append([]Team(nil), p.teams...)
}

// TeamNames returns the team names in configuration order.
func (p *Problem) TeamNames() []string {
	names := make([]string, len(p.teams))
	for i, t := range p.teams {
		names[i] = t.Name
	}
	return names
}

// Popularity returns a team's popularity weight and whether the team exists.
func (p *Problem) Popularity(team string) (float64, bool) {
	w, ok := p.popularity[team]
	return w, ok
}

// Fixtures returns every fixture to schedule.
func (p *Problem) Fixtures() []strategy.Fixture {
	return append([]strategy.Fixture(nil), p.fixtures...)
}

// Matchdays returns 1..D.
func (p *Problem) Matchdays() []int {
	return append([]int(nil), p.matchdays...)
}

// DueDate returns the due day offset of a matchday.
func (p *Problem) DueDate(matchday int) (int, bool) {
	d, ok := p.dueDates[matchday]
	return d, ok
}

// Slots returns all valid slots ordered by matchday then day.
func (p *Problem) Slots() []Slot {
	return append([]Slot(nil), p.slots...)
}

// SlotsFor returns the valid slots of one matchday ordered by day.
func (p *Problem) SlotsFor(matchday int) []Slot {
	return append([]Slot(nil), p.slotsByDay[matchday]...)
}

// Reservations returns the venue reservations sorted by team then day.
func (p *Problem) Reservations() []Reservation {
	return append([]Reservation(nil), p.reservations...)
}

func (p *Problem) Params() Params {
	return p.params
}
