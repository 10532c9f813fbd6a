package league

import (
	"sort"

	"github.com/derekprior/leaguesched/internal/config"
	"github.com/derekprior/leaguesched/internal/strategy"
)

// Blackout is a day on which no game may be played, with a reason for display.
type Blackout struct {
	Day    int
	Reason string
}

// FromConfig derives the league instance from a loaded config and validates it.
func FromConfig(cfg *config.Config) (*Problem, error) {
	strat, err := strategy.Get(cfg.Strategy)
	if err != nil {
		return nil, configErrorf("strategy", "%v", err)
	}

	in := Input{
		Matchdays:    cfg.Matchdays,
		DueDates:     cfg.DueDates,
		Slots:        GenerateSlots(cfg),
		Reservations: reservations(cfg),
		Params: Params{
			SlotCapacity:   cfg.Rules.SlotCapacity,
			MinRest:        cfg.Rules.MinRest,
			StreakLimit:    cfg.Rules.MaxConsecutiveHomeOrAway,
			LatenessWeight: cfg.Objective.LatenessWeight,
			RevenueWeight:  cfg.Objective.RevenueWeight,
			TargetRevenue:  cfg.Objective.TargetRevenue,
		},
	}
	for _, t := range cfg.Teams {
		in.Teams = append(in.Teams, Team{Name: t.Name, Popularity: t.Popularity})
	}
	in.Fixtures = strat.GenerateFixtures(cfg.TeamNames())

	return New(in)
}

// GenerateSlots builds the candidate (matchday, day) slots, excluding blackout
// days. With a revenue table the table's keys are the candidates. Without one,
// matchday r may be played on any day in [due(r-1), due(r)+padding), with
// due(0) = 0, at the default revenue. Matchdays whose window cannot be derived
// because a due date is missing get no slots; New reports them.
func GenerateSlots(cfg *config.Config) []Slot {
	blackoutDays := cfg.BlackoutDays()

	var slots []Slot
	if len(cfg.Slots.Revenue) > 0 {
		for _, e := range cfg.Slots.Revenue {
			if blackoutDays[e.Day] {
				continue
			}
			slots = append(slots, Slot{Matchday: e.Matchday, Day: e.Day, Revenue: e.Revenue})
		}
	} else {
		padding := cfg.Slots.PaddingOrDefault()
		revenue := cfg.Slots.DefaultRevenueOrDefault()
		for md := 1; md <= cfg.MatchdayCount(); md++ {
			due, ok := cfg.DueDates[md]
			if !ok {
				continue
			}
			start := 0
			if md > 1 {
				prev, ok := cfg.DueDates[md-1]
				if !ok {
					continue
				}
				start = prev
			}
			for d := start; d < due+padding; d++ {
				if blackoutDays[d] {
					continue
				}
				slots = append(slots, Slot{Matchday: md, Day: d, Revenue: revenue})
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Matchday != slots[j].Matchday {
			return slots[i].Matchday < slots[j].Matchday
		}
		return slots[i].Day < slots[j].Day
	})

	return slots
}

// GenerateBlackouts returns every blacked-out day with its reason, for display
// alongside the schedule.
func GenerateBlackouts(cfg *config.Config) []Blackout {
	var blackouts []Blackout
	seen := make(map[int]bool)
	for _, b := range cfg.Blackouts {
		for _, d := range b.Offsets() {
			if seen[d] {
				continue
			}
			seen[d] = true
			blackouts = append(blackouts, Blackout{Day: d, Reason: b.Reason})
		}
	}

	sort.Slice(blackouts, func(i, j int) bool {
		return blackouts[i].Day < blackouts[j].Day
	})

	return blackouts
}

func reservations(cfg *config.Config) []Reservation {
	var res []Reservation
	for _, r := range cfg.VenueReservations {
		for _, d := range r.Offsets() {
			res = append(res, Reservation{Team: r.Team, Day: d, Reason: r.Reason})
		}
	}
	return res
}
