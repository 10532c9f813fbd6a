// Package archive keeps a history of solved schedules in SQLite.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/derekprior/leaguesched/internal/export"
	"github.com/derekprior/leaguesched/internal/schedule"
	"github.com/derekprior/leaguesched/internal/solver"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id       TEXT PRIMARY KEY,
    league       TEXT NOT NULL,
    created_at   INTEGER NOT NULL,
    status       TEXT NOT NULL,
    objective    REAL,
    max_lateness INTEGER,
    revenue      REAL,
    partial      INTEGER NOT NULL DEFAULT 0,
    nodes        INTEGER,
    elapsed_ms   INTEGER
);
CREATE TABLE IF NOT EXISTS fixtures (
    run_id   TEXT NOT NULL REFERENCES runs(run_id),
    matchday INTEGER NOT NULL,
    day      INTEGER NOT NULL,
    date     TEXT NOT NULL,
    home     TEXT NOT NULL,
    away     TEXT NOT NULL,
    label    TEXT,
    revenue  REAL,
    lateness INTEGER,
    PRIMARY KEY(run_id, home, away)
);`

// Store persists runs in a SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Run is one archived solve.
type Run struct {
	League    string
	CreatedAt time.Time
	Outcome   solver.Outcome
	Result    *schedule.Result
}

// RunSummary is a row of the runs table.
type RunSummary struct {
	RunID       string
	League      string
	CreatedAt   time.Time
	Status      string
	Objective   float64
	MaxLateness int
	Revenue     float64
	Partial     bool
	Nodes       int
	Elapsed     time.Duration
}

// Open opens or creates the database and ensures schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &export.SinkError{Sink: "archive", Path: path, Err: err}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, &export.SinkError{Sink: "archive", Path: path, Err: err}
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) fail(err error) error {
	return &export.SinkError{Sink: "archive", Path: s.path, Err: err}
}

// Save records a run and its fixtures in one transaction. The result's
// RunID is the key; saving the same run twice fails.
func (s *Store) Save(ctx context.Context, r Run) error {
	if r.Result == nil {
		return s.fail(fmt.Errorf("run of %q has no schedule", r.League))
	}
	if r.Result.RunID == "" {
		return s.fail(fmt.Errorf("run of %q has no run id", r.League))
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail(err)
	}
	defer func() { _ = tx.Rollback() }()

	res := r.Result
	partial := 0
	if res.Partial {
		partial = 1
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO runs
        (run_id, league, created_at, status, objective, max_lateness, revenue, partial, nodes, elapsed_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, r.League, created.Unix(), r.Outcome.Status.String(), res.Objective,
		res.MaxLateness, res.Revenue, partial, r.Outcome.Nodes, r.Outcome.Elapsed.Milliseconds())
	if err != nil {
		return s.fail(err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fixtures
        (run_id, matchday, day, date, home, away, label, revenue, lateness)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return s.fail(err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range res.Rows {
		if _, err := stmt.ExecContext(ctx, res.RunID, row.Matchday, row.Day,
			row.Date.Format(export.DateFormat), row.Home, row.Away, row.Label, row.Revenue, row.Lateness); err != nil {
			return s.fail(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.fail(err)
	}
	return nil
}

// Runs returns the runs of a league, newest first. An empty league lists
// every run.
func (s *Store) Runs(ctx context.Context, league string) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, league, created_at, status, objective,
        max_lateness, revenue, partial, nodes, elapsed_ms
        FROM runs WHERE ? = '' OR league = ? ORDER BY created_at DESC, run_id`, league, league)
	if err != nil {
		return nil, s.fail(err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var created, elapsed int64
		if err := rows.Scan(&r.RunID, &r.League, &created, &r.Status, &r.Objective,
			&r.MaxLateness, &r.Revenue, &r.Partial, &r.Nodes, &elapsed); err != nil {
			return nil, s.fail(err)
		}
		r.CreatedAt = time.Unix(created, 0).UTC()
		r.Elapsed = time.Duration(elapsed) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(err)
	}
	return out, nil
}

// Fixtures returns the archived rows of a run in schedule order.
func (s *Store) Fixtures(ctx context.Context, runID string) ([]schedule.Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT matchday, day, date, home, away, label, revenue, lateness
        FROM fixtures WHERE run_id = ? ORDER BY matchday, day, home, away`, runID)
	if err != nil {
		return nil, s.fail(err)
	}
	defer func() { _ = rows.Close() }()

	var out []schedule.Row
	for rows.Next() {
		var r schedule.Row
		var date string
		if err := rows.Scan(&r.Matchday, &r.Day, &date, &r.Home, &r.Away, &r.Label, &r.Revenue, &r.Lateness); err != nil {
			return nil, s.fail(err)
		}
		if r.Date, err = time.Parse(export.DateFormat, date); err != nil {
			return nil, s.fail(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }
