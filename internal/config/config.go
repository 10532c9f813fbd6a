package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Date is a wrapper around time.Time for YAML date parsing.
type Date struct {
	Time time.Time
}

func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	t, err := time.Parse("2006-01-02", value.Value)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", value.Value, err)
	}
	d.Time = t
	return nil
}

// DayRange blocks a set of day offsets, either a single day, an explicit list,
// or an inclusive start_day/end_day range.
type DayRange struct {
	Day      *int   `yaml:"day"`
	Days     []int  `yaml:"days"`
	StartDay *int   `yaml:"start_day"`
	EndDay   *int   `yaml:"end_day"`
	Reason   string `yaml:"reason"`
}

// Offsets returns all day offsets covered by this range, sorted and unique.
func (r *DayRange) Offsets() []int {
	seen := make(map[int]bool)
	if r.Day != nil {
		seen[*r.Day] = true
	}
	for _, d := range r.Days {
		seen[d] = true
	}
	if r.StartDay != nil && r.EndDay != nil {
		for d := *r.StartDay; d <= *r.EndDay; d++ {
			seen[d] = true
		}
	}
	days := make([]int, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Ints(days)
	return days
}

type Team struct {
	Name       string  `yaml:"name"`
	Popularity float64 `yaml:"popularity"`
}

// VenueReservation blocks a team's home venue on some days. The team may
// still play away on those days.
type VenueReservation struct {
	Team     string `yaml:"team"`
	DayRange `yaml:",inline"`
}

// RevenueEntry is one row of the (matchday, day) -> revenue table.
type RevenueEntry struct {
	Matchday int     `yaml:"matchday"`
	Day      int     `yaml:"day"`
	Revenue  float64 `yaml:"revenue"`
}

// Slots describes where each matchday may be played. When Revenue is set its
// keys are the candidate slots; otherwise each matchday gets the window
// [due(r-1), due(r)+Padding) with DefaultRevenue.
type Slots struct {
	Padding        *int           `yaml:"padding"`
	DefaultRevenue *float64       `yaml:"default_revenue"`
	Revenue        []RevenueEntry `yaml:"revenue"`
}

// PaddingOrDefault returns the window padding past a matchday's due date.
func (s Slots) PaddingOrDefault() int {
	if s.Padding == nil {
		return 3
	}
	return *s.Padding
}

// DefaultRevenueOrDefault returns the revenue of every window slot. It only
// applies when no revenue table is given; a table lists every candidate slot
// with its own revenue.
func (s Slots) DefaultRevenueOrDefault() float64 {
	if s.DefaultRevenue == nil {
		return 1
	}
	return *s.DefaultRevenue
}

type Rules struct {
	SlotCapacity             int `yaml:"slot_capacity"`
	MinRest                  int `yaml:"min_rest"`
	MaxConsecutiveHomeOrAway int `yaml:"max_consecutive_home_or_away"`
}

// Objective weights. LatenessWeight and RevenueWeight are independent
// penalties; they are not normalized against each other.
type Objective struct {
	LatenessWeight float64 `yaml:"lateness_weight"`
	RevenueWeight  float64 `yaml:"revenue_weight"`
	TargetRevenue  float64 `yaml:"target_revenue"`
}

type Solver struct {
	TimeLimit time.Duration `yaml:"time_limit"`
	NodeLimit int           `yaml:"node_limit"`
}

type Config struct {
	Name              string             `yaml:"name"`
	AnchorDate        Date               `yaml:"anchor_date"`
	Teams             []Team             `yaml:"teams"`
	Matchdays         int                `yaml:"matchdays"`
	DueDates          map[int]int        `yaml:"due_dates"`
	Blackouts         []DayRange         `yaml:"blackouts"`
	Slots             Slots              `yaml:"slots"`
	VenueReservations []VenueReservation `yaml:"venue_reservations"`
	Strategy          string             `yaml:"strategy"`
	Rules             Rules              `yaml:"rules"`
	Objective         Objective          `yaml:"objective"`
	Solver            Solver             `yaml:"solver"`
}

// TeamNames returns all team names in configuration order.
func (c *Config) TeamNames() []string {
	names := make([]string, 0, len(c.Teams))
	for _, t := range c.Teams {
		names = append(names, t.Name)
	}
	return names
}

// MatchdayCount returns the configured number of matchdays, defaulting to a
// double round robin: 2*(teams-1).
func (c *Config) MatchdayCount() int {
	if c.Matchdays > 0 {
		return c.Matchdays
	}
	if len(c.Teams) < 2 {
		return 0
	}
	return 2 * (len(c.Teams) - 1)
}

// BlackoutDays returns the union of all blackout day offsets.
func (c *Config) BlackoutDays() map[int]bool {
	days := make(map[int]bool)
	for i := range c.Blackouts {
		for _, d := range c.Blackouts[i].Offsets() {
			days[d] = true
		}
	}
	return days
}

// LoadFromBytes parses YAML bytes into a Config and validates it.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Strategy == "" {
		cfg.Strategy = "double_round_robin"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile reads and parses a YAML config file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromBytes(data)
}

// validate only checks the shape of the file. Whether the described league
// is a schedulable instance is decided by league.New.
func (c *Config) validate() error {
	if c.AnchorDate.Time.IsZero() {
		return fmt.Errorf("anchor_date is required")
	}

	if len(c.Teams) == 0 {
		return fmt.Errorf("at least one team is required")
	}

	if len(c.DueDates) == 0 {
		return fmt.Errorf("due_dates is required")
	}

	if c.Slots.Padding != nil && *c.Slots.Padding < 1 {
		return fmt.Errorf("slots.padding must be at least 1, got %d", *c.Slots.Padding)
	}

	if c.Solver.TimeLimit < 0 {
		return fmt.Errorf("solver.time_limit must not be negative")
	}
	if c.Solver.NodeLimit < 0 {
		return fmt.Errorf("solver.node_limit must not be negative")
	}

	for i, b := range c.Blackouts {
		if err := validateRange(b); err != nil {
			return fmt.Errorf("blackout %d: %w", i+1, err)
		}
	}

	for _, r := range c.VenueReservations {
		if r.Team == "" {
			return fmt.Errorf("venue reservation must name a team")
		}
		if err := validateRange(r.DayRange); err != nil {
			return fmt.Errorf("venue reservation for %q: %w", r.Team, err)
		}
	}

	return nil
}

func validateRange(r DayRange) error {
	hasSingle := r.Day != nil || len(r.Days) > 0
	hasRange := r.StartDay != nil || r.EndDay != nil
	if !hasSingle && !hasRange {
		return fmt.Errorf("must have either 'day', 'days' or 'start_day'/'end_day'")
	}
	if hasRange && (r.StartDay == nil || r.EndDay == nil) {
		return fmt.Errorf("range must have both 'start_day' and 'end_day'")
	}
	if hasRange && *r.EndDay < *r.StartDay {
		return fmt.Errorf("end_day must be on or after start_day")
	}
	return nil
}
