// Package export writes decoded schedules to files. Every sink failure is a
// *SinkError; the schedule itself stays valid when a sink fails.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/derekprior/leaguesched/internal/schedule"
)

// DateFormat is the date layout of every schedule file.
const DateFormat = "2006-01-02"

// Header is the first CSV row.
var Header = []string{"matchday", "date", "game"}

// ErrSink matches every *SinkError via errors.Is.
var ErrSink = errors.New("schedule sink failed")

// SinkError reports a failed write to one output.
type SinkError struct {
	Sink string
	Path string
	Err  error
}

func (e *SinkError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s sink: %v", e.Sink, e.Err)
	}
	return fmt.Sprintf("%s sink %s: %v", e.Sink, e.Path, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

func (e *SinkError) Is(target error) bool {
	return target == ErrSink
}

// WriteCSV writes one row per fixture with a matchday,date,game header.
func WriteCSV(w io.Writer, res *schedule.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range res.Rows {
		rec := []string{
			strconv.Itoa(r.Matchday),
			r.Date.Format(DateFormat),
			r.Game(),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonRow struct {
	Matchday int     `json:"matchday"`
	Date     string  `json:"date"`
	Home     string  `json:"home"`
	Away     string  `json:"away"`
	Revenue  float64 `json:"revenue"`
	Lateness int     `json:"lateness"`
}

type jsonSchedule struct {
	RunID       string    `json:"run_id"`
	Partial     bool      `json:"partial"`
	MaxLateness int       `json:"max_lateness"`
	Revenue     float64   `json:"revenue"`
	Objective   float64   `json:"objective"`
	Rows        []jsonRow `json:"rows"`
	Warnings    []string  `json:"warnings,omitempty"`
}

// WriteJSON writes the schedule and its summary as one JSON document.
func WriteJSON(w io.Writer, res *schedule.Result) error {
	doc := jsonSchedule{
		RunID:       res.RunID,
		Partial:     res.Partial,
		MaxLateness: res.MaxLateness,
		Revenue:     res.Revenue,
		Objective:   res.Objective,
		Rows:        make([]jsonRow, 0, len(res.Rows)),
		Warnings:    res.Warnings,
	}
	for _, r := range res.Rows {
		doc.Rows = append(doc.Rows, jsonRow{
			Matchday: r.Matchday,
			Date:     r.Date.Format(DateFormat),
			Home:     r.Home,
			Away:     r.Away,
			Revenue:  r.Revenue,
			Lateness: r.Lateness,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteFile writes res to path, as JSON when path ends in .json and as CSV
// otherwise. "-" writes CSV to stdout.
func WriteFile(path string, res *schedule.Result) error {
	if path == "-" {
		if err := WriteCSV(os.Stdout, res); err != nil {
			return &SinkError{Sink: "csv", Err: err}
		}
		return nil
	}

	sink, write := "csv", WriteCSV
	if strings.EqualFold(filepath.Ext(path), ".json") {
		sink, write = "json", WriteJSON
	}

	f, err := os.Create(path)
	if err != nil {
		return &SinkError{Sink: sink, Path: path, Err: err}
	}
	if err := write(f, res); err != nil {
		_ = f.Close()
		return &SinkError{Sink: sink, Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &SinkError{Sink: sink, Path: path, Err: err}
	}
	return nil
}
