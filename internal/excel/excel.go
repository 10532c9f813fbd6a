// Package excel renders a decoded schedule as a workbook: a master sheet of
// every candidate day, a summary sheet and one sheet per team.
package excel

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/derekprior/leaguesched/internal/export"
	"github.com/derekprior/leaguesched/internal/league"
	"github.com/derekprior/leaguesched/internal/schedule"
)

const (
	MasterSheet  = "Master Schedule"
	SummarySheet = "Summary"
)

// Generate creates the workbook. anchor turns slot day offsets into dates.
func Generate(p *league.Problem, result *schedule.Result, anchor time.Time, blackouts []league.Blackout) (*excelize.File, error) {
	f := excelize.NewFile()

	f.SetDefaultFont("Arial")

	if err := writeMasterSheet(f, p, result, anchor, blackouts); err != nil {
		return nil, fmt.Errorf("writing master sheet: %w", err)
	}

	if err := writeSummarySheet(f, p, result); err != nil {
		return nil, fmt.Errorf("writing summary sheet: %w", err)
	}

	if err := writeTeamSheets(f, p, result); err != nil {
		return nil, fmt.Errorf("writing team sheets: %w", err)
	}

	f.DeleteSheet("Sheet1")
	return f, nil
}

// WriteFile generates the workbook and saves it to path.
func WriteFile(path string, p *league.Problem, result *schedule.Result, anchor time.Time, blackouts []league.Blackout) error {
	f, err := Generate(p, result, anchor, blackouts)
	if err != nil {
		return &export.SinkError{Sink: "excel", Path: path, Err: err}
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return &export.SinkError{Sink: "excel", Path: path, Err: err}
	}
	return nil
}

type styles struct {
	header, cell, game, late int
}

func newStyles(f *excelize.File) styles {
	var s styles
	s.header, _ = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF", Size: 16, Family: "Arial"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#4472C4"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	s.cell, _ = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Size: 16, Family: "Arial"},
	})
	s.game, _ = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Size: 16, Family: "Arial"},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	s.late, _ = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Size: 16, Family: "Arial", Color: "#9C0006"},
	})
	return s
}

func writeHeaders(f *excelize.File, sheet string, headers []string, style int) {
	for i, h := range headers {
		f.SetCellValue(sheet, cellRef(i+1, 1), h)
	}
	if style != 0 {
		f.SetCellStyle(sheet, cellRef(1, 1), cellRef(len(headers), 1), style)
	}
}

func writeMasterSheet(f *excelize.File, p *league.Problem, result *schedule.Result, anchor time.Time, blackouts []league.Blackout) error {
	sheet := MasterSheet
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	st := newStyles(f)

	capacity := p.Params().SlotCapacity
	headers := []string{"Date", "Day", "Matchday", "Revenue"}
	for i := 1; i <= capacity; i++ {
		headers = append(headers, fmt.Sprintf("Game %d", i))
	}
	writeHeaders(f, sheet, headers, st.header)

	// a calendar day can be a candidate for two overlapping matchday windows
	type lineKey struct {
		day      int
		matchday int
	}
	type line struct {
		revenue float64
		games   []string
		reason  string
	}
	lines := make(map[lineKey]*line)
	for _, s := range p.Slots() {
		lines[lineKey{s.Day, s.Matchday}] = &line{revenue: s.Revenue}
	}
	for _, r := range result.Rows {
		l, ok := lines[lineKey{r.Day, r.Matchday}]
		if !ok {
			return fmt.Errorf("%s scheduled on matchday %d day %d, which is not a slot", r.Game(), r.Matchday, r.Day)
		}
		l.games = append(l.games, fmt.Sprintf("%s @ %s", r.Away, r.Home))
	}
	for _, b := range blackouts {
		lines[lineKey{b.Day, 0}] = &line{reason: b.Reason}
	}

	keys := make([]lineKey, 0, len(lines))
	for k := range lines {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].day != keys[j].day {
			return keys[i].day < keys[j].day
		}
		return keys[i].matchday < keys[j].matchday
	})

	for i, k := range keys {
		row := i + 2
		l := lines[k]
		date := anchor.AddDate(0, 0, k.day)
		f.SetCellValue(sheet, cellRef(1, row), date.Format("01/02/2006"))
		f.SetCellValue(sheet, cellRef(2, row), date.Format("Mon"))
		if k.matchday > 0 {
			f.SetCellValue(sheet, cellRef(3, row), k.matchday)
			f.SetCellValue(sheet, cellRef(4, row), l.revenue)
		}

		if l.reason != "" {
			f.SetCellValue(sheet, cellRef(5, row), l.reason)
		}
		for gi, g := range l.games {
			f.SetCellValue(sheet, cellRef(5+gi, row), g)
		}

		if st.cell != 0 {
			f.SetCellStyle(sheet, cellRef(1, row), cellRef(4, row), st.cell)
			f.SetCellStyle(sheet, cellRef(5, row), cellRef(len(headers), row), st.game)
		}
	}

	// Set column widths (sized for Arial 16)
	f.SetColWidth(sheet, "A", "A", 18)
	f.SetColWidth(sheet, "B", "B", 8)
	f.SetColWidth(sheet, "C", "D", 14)
	for i := 0; i < capacity; i++ {
		col := colLetter(i + 5)
		f.SetColWidth(sheet, col, col, 30)
	}

	// Conditional formatting: blackout reasons in game columns get light red
	lastRow := len(keys) + 1
	redFill, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#FFC7CE"}},
		Font: &excelize.Font{Size: 16, Family: "Arial"},
	})
	for i := 0; i < capacity; i++ {
		col := colLetter(i + 5)
		cellRange := fmt.Sprintf("%s2:%s%d", col, col, lastRow)
		topCell := fmt.Sprintf("%s2", col)
		formula := fmt.Sprintf(`AND(%s<>"",ISERROR(FIND(" @ ",%s)))`, topCell, topCell)
		f.SetConditionalFormat(sheet, cellRange, []excelize.ConditionalFormatOptions{
			{
				Type:     "formula",
				Criteria: formula,
				Format:   &redFill,
			},
		})
	}

	return nil
}

func writeSummarySheet(f *excelize.File, p *league.Problem, result *schedule.Result) error {
	sheet := SummarySheet
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	st := newStyles(f)

	summary := [][2]any{
		{"Run", result.RunID},
		{"Fixtures", len(result.Rows)},
		{"Max lateness (days)", result.MaxLateness},
		{"Weighted revenue", result.Revenue},
		{"Objective", result.Objective},
		{"Partial", strconv.FormatBool(result.Partial)},
	}
	for i, kv := range summary {
		f.SetCellValue(sheet, cellRef(1, i+1), kv[0])
		f.SetCellValue(sheet, cellRef(2, i+1), kv[1])
	}

	top := len(summary) + 2
	headers := []string{"Team", "Games", "Home", "Away", "Warnings"}
	for i, h := range headers {
		f.SetCellValue(sheet, cellRef(i+1, top), h)
	}
	if st.header != 0 {
		f.SetCellStyle(sheet, cellRef(1, top), cellRef(len(headers), top), st.header)
	}

	for i, team := range p.TeamNames() {
		row := top + 1 + i
		m := result.TeamMetrics[team]
		if m == nil {
			m = &schedule.TeamMetrics{}
		}
		f.SetCellValue(sheet, cellRef(1, row), team)
		f.SetCellValue(sheet, cellRef(2, row), m.Games)
		f.SetCellValue(sheet, cellRef(3, row), m.Home)
		f.SetCellValue(sheet, cellRef(4, row), m.Away)
		f.SetCellValue(sheet, cellRef(5, row), len(m.Violations))
	}

	for i, w := range result.Warnings {
		f.SetCellValue(sheet, cellRef(7, i+1), w)
	}

	f.SetColWidth(sheet, "A", "A", 24)
	f.SetColWidth(sheet, "B", "E", 14)
	f.SetColWidth(sheet, "G", "G", 80)
	return nil
}

func writeTeamSheets(f *excelize.File, p *league.Problem, result *schedule.Result) error {
	st := newStyles(f)
	for _, team := range p.TeamNames() {
		sheet := team
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("sheet for %q: %w", team, err)
		}

		headers := []string{"Date", "Day", "Matchday", "Opponent", "Home/Away", "Game", "Days late"}
		writeHeaders(f, sheet, headers, st.header)

		row := 2
		for _, r := range result.Rows {
			var opponent, homeAway string
			switch team {
			case r.Home:
				opponent, homeAway = r.Away, "Home"
			case r.Away:
				opponent, homeAway = r.Home, "Away"
			default:
				continue
			}
			f.SetCellValue(sheet, cellRef(1, row), r.Date.Format("01/02/2006"))
			f.SetCellValue(sheet, cellRef(2, row), r.Date.Format("Mon"))
			f.SetCellValue(sheet, cellRef(3, row), r.Matchday)
			f.SetCellValue(sheet, cellRef(4, row), opponent)
			f.SetCellValue(sheet, cellRef(5, row), homeAway)
			f.SetCellValue(sheet, cellRef(6, row), r.Label)
			late := 0
			if r.Lateness > 0 {
				late = r.Lateness
			}
			f.SetCellValue(sheet, cellRef(7, row), late)

			style := st.cell
			if late > 0 {
				style = st.late
			}
			if style != 0 {
				f.SetCellStyle(sheet, cellRef(1, row), cellRef(len(headers), row), style)
			}
			row++
		}

		// Set column widths (sized for Arial 16)
		widths := map[string]float64{"A": 18, "B": 8, "C": 12, "D": 16, "E": 14, "F": 14, "G": 12}
		for col, w := range widths {
			f.SetColWidth(sheet, col, col, w)
		}
	}

	return nil
}

func cellRef(col, row int) string {
	return fmt.Sprintf("%s%d", colLetter(col), row)
}

func colLetter(col int) string {
	result := ""
	for col > 0 {
		col--
		result = string(rune('A'+col%26)) + result
		col /= 26
	}
	return result
}
