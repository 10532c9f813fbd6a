// Package validator re-checks a written schedule file against the league
// rules, independently of the model that produced it.
package validator

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/derekprior/leaguesched/internal/excel"
	"github.com/derekprior/leaguesched/internal/export"
	"github.com/derekprior/leaguesched/internal/league"
	"github.com/derekprior/leaguesched/internal/strategy"
)

// Violation represents a constraint violation found during validation.
type Violation struct {
	Row     int
	Type    string // "error" or "warning"
	Message string
	Days    int // for lateness warnings: days past the due date
}

// Validate reads a schedule file (.xlsx master sheet, .json document, or CSV
// otherwise) and checks it against p. anchor converts file dates back to day
// offsets.
func Validate(p *league.Problem, anchor time.Time, path string) ([]Violation, error) {
	var games []parsedGame
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		games, err = readWorkbook(path, anchor)
	case ".json":
		games, err = readJSONFile(path, anchor)
	default:
		games, err = readCSVFile(path, anchor)
	}
	if err != nil {
		return nil, fmt.Errorf("reading assignments: %w", err)
	}
	return check(p, games), nil
}

// check runs every rule over already parsed games.
func check(p *league.Problem, games []parsedGame) []Violation {
	var violations []Violation

	// Check hard constraints
	violations = append(violations, checkGameCompleteness(p, games)...)
	violations = append(violations, checkSlots(p, games)...)
	violations = append(violations, checkOneGamePerMatchday(p, games)...)
	violations = append(violations, checkMinRest(p, games)...)
	violations = append(violations, checkStreaks(p, games)...)
	violations = append(violations, checkSlotCapacity(p, games)...)
	violations = append(violations, checkVenueReservations(p, games)...)

	// Check soft constraints
	violations = append(violations, checkLateness(p, games)...)

	return violations
}

type parsedGame struct {
	Row      int
	Matchday int
	Date     time.Time
	Day      int
	Home     string
	Away     string
}

func readCSVFile(path string, anchor time.Time) ([]parsedGame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return readCSV(f, anchor)
}

func readCSV(r io.Reader, anchor time.Time) ([]parsedGame, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("schedule is empty")
	}
	if strings.Join(records[0], ",") != strings.Join(export.Header, ",") {
		return nil, fmt.Errorf("unexpected header %v, want %v", records[0], export.Header)
	}

	var games []parsedGame
	for i, rec := range records[1:] {
		row := i + 2
		if len(rec) != 3 {
			return nil, fmt.Errorf("row %d: expected 3 fields, got %d", row, len(rec))
		}
		md, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: matchday %q: %w", row, rec[0], err)
		}
		date, err := time.Parse(export.DateFormat, rec[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: date %q: %w", row, rec[1], err)
		}
		home, away, ok := strings.Cut(rec[2], " vs ")
		if !ok {
			return nil, fmt.Errorf("row %d: game %q is not \"home vs away\"", row, rec[2])
		}
		games = append(games, parsedGame{
			Row:      row,
			Matchday: md,
			Date:     date,
			Day:      dayOffset(anchor, date),
			Home:     home,
			Away:     away,
		})
	}
	return games, nil
}

func readJSONFile(path string, anchor time.Time) ([]parsedGame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	var doc struct {
		Rows []struct {
			Matchday int    `json:"matchday"`
			Date     string `json:"date"`
			Home     string `json:"home"`
			Away     string `json:"away"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	games := make([]parsedGame, 0, len(doc.Rows))
	for i, r := range doc.Rows {
		date, err := time.Parse(export.DateFormat, r.Date)
		if err != nil {
			return nil, fmt.Errorf("row %d: date %q: %w", i+1, r.Date, err)
		}
		games = append(games, parsedGame{
			Row:      i + 1,
			Matchday: r.Matchday,
			Date:     date,
			Day:      dayOffset(anchor, date),
			Home:     r.Home,
			Away:     r.Away,
		})
	}
	return games, nil
}

func readWorkbook(path string, anchor time.Time) ([]parsedGame, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(excel.MasterSheet)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", excel.MasterSheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s is empty", excel.MasterSheet)
	}

	var games []parsedGame
	for i, row := range rows {
		if i == 0 {
			continue
		}
		// blackout lines have no matchday
		if len(row) < 5 || row[0] == "" || row[2] == "" {
			continue
		}

		date, err := time.Parse("01/02/2006", row[0])
		if err != nil {
			continue
		}
		md, err := strconv.Atoi(row[2])
		if err != nil {
			continue
		}

		for _, cell := range row[4:] {
			away, home, ok := parseGameCell(cell)
			if !ok {
				continue
			}
			games = append(games, parsedGame{
				Row:      i + 1,
				Matchday: md,
				Date:     date,
				Day:      dayOffset(anchor, date),
				Home:     home,
				Away:     away,
			})
		}
	}
	return games, nil
}

// parseGameCell parses "Away @ Home" and returns (away, home, true).
// Returns ("", "", false) if the cell doesn't match the game format.
func parseGameCell(cell string) (away, home string, ok bool) {
	away, home, ok = strings.Cut(cell, " @ ")
	if !ok || away == "" || home == "" {
		return "", "", false
	}
	return away, home, true
}

func dayOffset(anchor, date time.Time) int {
	return int(date.Sub(anchor).Round(24*time.Hour) / (24 * time.Hour))
}

func checkGameCompleteness(p *league.Problem, games []parsedGame) []Violation {
	type pair struct{ home, away string }
	rows := make(map[pair][]int)
	for _, g := range games {
		rows[pair{g.Home, g.Away}] = append(rows[pair{g.Home, g.Away}], g.Row)
	}

	var violations []Violation
	known := make(map[pair]bool)
	for _, f := range p.Fixtures() {
		k := pair{f.Home, f.Away}
		known[k] = true
		switch n := len(rows[k]); {
		case n == 0:
			violations = append(violations, Violation{
				Type:    "error",
				Message: fmt.Sprintf("%s is not scheduled", f),
			})
		case n > 1:
			violations = append(violations, Violation{
				Row:     rows[k][1],
				Type:    "error",
				Message: fmt.Sprintf("%s is scheduled %d times", f, n),
			})
		}
	}
	for _, g := range games {
		if !known[pair{g.Home, g.Away}] {
			violations = append(violations, Violation{
				Row:     g.Row,
				Type:    "error",
				Message: fmt.Sprintf("%s is not a fixture of this league", strategy.Fixture{Home: g.Home, Away: g.Away}),
			})
		}
	}
	return violations
}

func checkSlots(p *league.Problem, games []parsedGame) []Violation {
	valid := make(map[league.SlotKey]bool)
	for _, s := range p.Slots() {
		valid[s.Key()] = true
	}

	var violations []Violation
	for _, g := range games {
		if !valid[league.SlotKey{Matchday: g.Matchday, Day: g.Day}] {
			violations = append(violations, Violation{
				Row:  g.Row,
				Type: "error",
				Message: fmt.Sprintf("%s vs %s on %s is outside matchday %d's slots",
					g.Home, g.Away, g.Date.Format("01/02"), g.Matchday),
			})
		}
	}
	return violations
}

// teamDays maps team -> matchday -> days played.
func teamDays(games []parsedGame) map[string]map[int][]int {
	out := make(map[string]map[int][]int)
	for _, g := range games {
		for _, team := range []string{g.Home, g.Away} {
			if out[team] == nil {
				out[team] = make(map[int][]int)
			}
			out[team][g.Matchday] = append(out[team][g.Matchday], g.Day)
		}
	}
	return out
}

func checkOneGamePerMatchday(p *league.Problem, games []parsedGame) []Violation {
	days := teamDays(games)

	var violations []Violation
	for _, team := range p.TeamNames() {
		for _, md := range p.Matchdays() {
			if n := len(days[team][md]); n != 1 {
				violations = append(violations, Violation{
					Type:    "error",
					Message: fmt.Sprintf("%s plays %d games on matchday %d (want 1)", team, n, md),
				})
			}
		}
	}
	return violations
}

func checkMinRest(p *league.Problem, games []parsedGame) []Violation {
	rest := p.Params().MinRest
	days := teamDays(games)
	matchdays := p.Matchdays()

	var violations []Violation
	for _, team := range p.TeamNames() {
		for i := 1; i < len(matchdays); i++ {
			prev, cur := days[team][matchdays[i-1]], days[team][matchdays[i]]
			// matchdays without exactly one game are reported above
			if len(prev) != 1 || len(cur) != 1 {
				continue
			}
			if gap := cur[0] - prev[0]; gap < rest {
				violations = append(violations, Violation{
					Type: "error",
					Message: fmt.Sprintf("%s rests %d day(s) between matchdays %d and %d (min %d)",
						team, gap, matchdays[i-1], matchdays[i], rest),
				})
			}
		}
	}
	return violations
}

func checkStreaks(p *league.Problem, games []parsedGame) []Violation {
	limit := p.Params().StreakLimit
	matchdays := p.Matchdays()

	type sideKey struct {
		team     string
		matchday int
	}
	home := make(map[sideKey]int)
	away := make(map[sideKey]int)
	for _, g := range games {
		home[sideKey{g.Home, g.Matchday}]++
		away[sideKey{g.Away, g.Matchday}]++
	}

	var violations []Violation
	for _, team := range p.TeamNames() {
		for start := 0; start+limit < len(matchdays); start++ {
			window := matchdays[start : start+limit+1]
			for _, side := range []struct {
				name   string
				counts map[sideKey]int
			}{{"home", home}, {"away", away}} {
				n := 0
				for _, md := range window {
					n += side.counts[sideKey{team, md}]
				}
				if n > limit {
					violations = append(violations, Violation{
						Type: "error",
						Message: fmt.Sprintf("%s plays %d %s games in matchdays %d-%d (max %d)",
							team, n, side.name, window[0], window[len(window)-1], limit),
					})
				}
			}
		}
	}
	return violations
}

func checkSlotCapacity(p *league.Problem, games []parsedGame) []Violation {
	capacity := p.Params().SlotCapacity
	counts := make(map[league.SlotKey][]int)
	for _, g := range games {
		k := league.SlotKey{Matchday: g.Matchday, Day: g.Day}
		counts[k] = append(counts[k], g.Row)
	}

	keys := make([]league.SlotKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Matchday != keys[j].Matchday {
			return keys[i].Matchday < keys[j].Matchday
		}
		return keys[i].Day < keys[j].Day
	})

	var violations []Violation
	for _, k := range keys {
		if n := len(counts[k]); n > capacity {
			violations = append(violations, Violation{
				Row:     counts[k][capacity],
				Type:    "error",
				Message: fmt.Sprintf("%d games on matchday %d day %d (max %d)", n, k.Matchday, k.Day, capacity),
			})
		}
	}
	return violations
}

func checkVenueReservations(p *league.Problem, games []parsedGame) []Violation {
	type teamDay struct {
		team string
		day  int
	}
	reserved := make(map[teamDay]string)
	for _, r := range p.Reservations() {
		reserved[teamDay{r.Team, r.Day}] = r.Reason
	}

	var violations []Violation
	for _, g := range games {
		reason, ok := reserved[teamDay{g.Home, g.Day}]
		if !ok {
			continue
		}
		msg := fmt.Sprintf("%s hosts %s on %s but its venue is reserved", g.Home, g.Away, g.Date.Format("01/02"))
		if reason != "" {
			msg += " (" + reason + ")"
		}
		violations = append(violations, Violation{Row: g.Row, Type: "error", Message: msg})
	}
	return violations
}

func checkLateness(p *league.Problem, games []parsedGame) []Violation {
	var violations []Violation
	for _, g := range games {
		due, ok := p.DueDate(g.Matchday)
		if !ok || g.Day <= due {
			continue
		}
		violations = append(violations, Violation{
			Row:  g.Row,
			Type: "warning",
			Days: g.Day - due,
			Message: fmt.Sprintf("%s vs %s on matchday %d is %d day(s) past its due date: %s",
				g.Home, g.Away, g.Matchday, g.Day-due, g.Date.Format("01/02")),
		})
	}
	// Sort by severity: most days late first
	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Days > violations[j].Days
	})
	return violations
}
