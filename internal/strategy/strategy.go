package strategy

import (
	"fmt"
)

// Fixture is an ordered pairing: Home hosts Away.
type Fixture struct {
	Home  string
	Away  string
	Label string // unique identifier like "Game 1"
}

// String formats the fixture the way schedules print it.
func (f Fixture) String() string {
	return fmt.Sprintf("%s vs %s", f.Home, f.Away)
}

// Strategy generates the list of fixtures for a season.
type Strategy interface {
	GenerateFixtures(teams []string) []Fixture
}

// Get returns a Strategy by name.
func Get(name string) (Strategy, error) {
	switch name {
	case "", "double_round_robin":
		return &DoubleRoundRobin{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy: %q", name)
	}
}

// DoubleRoundRobin generates every ordered pair of distinct teams once, so
// each team hosts every other team exactly once.
type DoubleRoundRobin struct{}

func (s *DoubleRoundRobin) GenerateFixtures(teams []string) []Fixture {
	var fixtures []Fixture
	gameNum := 1

	for _, home := range teams {
		for _, away := range teams {
			if home == away {
				continue
			}
			fixtures = append(fixtures, Fixture{
				Home:  home,
				Away:  away,
				Label: fmt.Sprintf("Game %d", gameNum),
			})
			gameNum++
		}
	}

	return fixtures
}
