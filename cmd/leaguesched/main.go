package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/derekprior/leaguesched/internal/archive"
	"github.com/derekprior/leaguesched/internal/config"
	"github.com/derekprior/leaguesched/internal/excel"
	"github.com/derekprior/leaguesched/internal/export"
	"github.com/derekprior/leaguesched/internal/league"
	"github.com/derekprior/leaguesched/internal/logging"
	"github.com/derekprior/leaguesched/internal/metrics"
	"github.com/derekprior/leaguesched/internal/schedule"
	"github.com/derekprior/leaguesched/internal/solver"
	"github.com/derekprior/leaguesched/internal/validator"
)

const defaultConfigFile = "config.yaml"

func resolveConfigPath(configFlag string) (string, error) {
	if configFlag != "" {
		return configFlag, nil
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile, nil
	}
	return "", fmt.Errorf("no config file found. Either create %s in the current directory or pass --config", defaultConfigFile)
}

type generateOptions struct {
	output      string
	xlsx        string
	archive     string
	metricsFile string
}

type batchOptions struct {
	outDir   string
	parallel int
	failFast bool
}

func main() {
	var logLevel string
	rootCmd := &cobra.Command{
		Use:   "leaguesched",
		Short: "Double round-robin league scheduler",
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	newLogger := func() zerolog.Logger {
		return logging.New("cli").Level(logging.Level(logLevel))
	}

	var initOutputPath string
	initCmd := &cobra.Command{
		Use:          "init",
		Short:        "Create a starter config.yaml in the current directory",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(initOutputPath)
		},
	}
	initCmd.Flags().StringVarP(&initOutputPath, "output", "o", defaultConfigFile, "Output path for the config file")

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Generate and validate schedules",
	}

	var configFile string
	scheduleCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default: config.yaml in current directory)")

	var gen generateOptions
	generateCmd := &cobra.Command{
		Use:          "generate",
		Short:        "Solve the schedule described by a config file",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := resolveConfigPath(configFile)
			if err != nil {
				return err
			}
			return runGenerate(cmd.Context(), newLogger(), configPath, gen)
		},
	}
	generateCmd.Flags().StringVarP(&gen.output, "output", "o", "schedule.csv", "Output CSV (or .json) path, - for stdout")
	generateCmd.Flags().StringVar(&gen.xlsx, "xlsx", "", "Also write an Excel workbook to this path")
	generateCmd.Flags().StringVar(&gen.archive, "archive", "", "Record the run in this SQLite database")
	generateCmd.Flags().StringVar(&gen.metricsFile, "metrics-file", "", "Write solver metrics in Prometheus text format to this path")

	validateCmd := &cobra.Command{
		Use:          "validate <schedule>",
		Short:        "Validate a schedule file (.csv, .json or .xlsx) against config rules",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := resolveConfigPath(configFile)
			if err != nil {
				return err
			}
			return runValidate(configPath, args[0])
		},
	}

	var batch batchOptions
	batchCmd := &cobra.Command{
		Use:          "batch <config>...",
		Short:        "Solve several independent leagues concurrently",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), newLogger(), args, batch)
		},
	}
	batchCmd.Flags().StringVar(&batch.outDir, "out-dir", ".", "Directory for <league>.csv outputs")
	batchCmd.Flags().IntVar(&batch.parallel, "parallel", 0, "Maximum concurrent solves (0: one per league)")
	batchCmd.Flags().BoolVar(&batch.failFast, "fail-fast", false, "Stop the remaining leagues after the first failure")

	var historyLeague string
	historyCmd := &cobra.Command{
		Use:          "history <runs.db>",
		Short:        "List archived runs",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), args[0], historyLeague)
		},
	}
	historyCmd.Flags().StringVar(&historyLeague, "league", "", "Only list runs of this league")

	scheduleCmd.AddCommand(generateCmd, validateCmd, batchCmd, historyCmd)
	rootCmd.AddCommand(initCmd, scheduleCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func runInit(outputPath string) error {
	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("%s already exists; remove it first or use -o to write elsewhere", outputPath)
	}

	if err := os.WriteFile(outputPath, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("✓ Created %s\n", outputPath)
	return nil
}

const configTemplate = `# League Season Configuration
# ==========================
# Every day is an integer offset from anchor_date (day 0).

name: spring-league
anchor_date: "2026-04-25"

# Teams and their popularity weights. A slot's revenue is scaled by the
# mean popularity of the two teams playing in it.
teams:
  - {name: Cubs, popularity: 3}
  - {name: Padres, popularity: 2}
  - {name: Pirates, popularity: 1}
  - {name: Royals, popularity: 2}

# Number of matchdays. Defaults to a double round robin: 2 * (teams - 1).
# matchdays: 6

# Soft deadline of every matchday, as a day offset. Games played after their
# matchday's due date add to the season's lateness.
due_dates: {1: 2, 2: 5, 3: 8, 4: 11, 5: 14, 6: 17}

# Blackouts are days on which no game is played. Use day, days, or an
# inclusive start_day/end_day range.
blackouts:
  - days: [9]
    reason: "Holiday"

# Matchday r may be played on any day in [due(r-1), due(r) + padding).
# Give a revenue table instead to list the candidate slots explicitly:
#   revenue:
#     - {matchday: 1, day: 1, revenue: 3}
slots:
  padding: 3
  default_revenue: 1

# A venue reservation stops a team from hosting on those days. The team may
# still play away.
venue_reservations:
  - team: Cubs
    start_day: 3
    end_day: 4
    reason: "Stadium concert"

strategy: double_round_robin

# Rules are hard constraints. A schedule that violates these is invalid.
rules:
  slot_capacity: 2                 # Max games on one (matchday, day) slot
  min_rest: 1                      # Min days between a team's consecutive matchdays
  max_consecutive_home_or_away: 2  # Max home (or away) games in a row

# The objective minimizes lateness_weight * max lateness plus
# revenue_weight * (target_revenue - weighted revenue).
objective:
  lateness_weight: 10
  revenue_weight: 1
  target_revenue: 100

# Solver limits. A limit that stops the search keeps the best schedule found
# so far and marks it partial. Zero means no limit.
solver:
  time_limit: 60s
  node_limit: 50000
`

func loadProblem(configPath string) (*config.Config, *league.Problem, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	p, err := league.FromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, p, nil
}

func leagueName(cfg *config.Config, configPath string) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return strings.TrimSuffix(filepath.Base(configPath), filepath.Ext(configPath))
}

func runGenerate(ctx context.Context, log zerolog.Logger, configPath string, opts generateOptions) error {
	cfg, p, err := loadProblem(configPath)
	if err != nil {
		return err
	}
	name := leagueName(cfg, configPath)
	log = log.With().Str("league", name).Logger()

	reg := prometheus.NewRegistry()
	rec, err := metrics.NewPromRecorderWithRegistry(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	opt := solver.NewBranchAndBound(solver.Options{
		TimeLimit: cfg.Solver.TimeLimit,
		NodeLimit: cfg.Solver.NodeLimit,
		Logger:    &log,
		Recorder:  rec,
	})

	fmt.Printf("Scheduling %d fixtures over %d matchdays into %d candidate slots...\n",
		len(p.Fixtures()), len(p.Matchdays()), len(p.Slots()))

	started := time.Now()
	result, outcome, err := schedule.Run(ctx, p, opt, schedule.RunOptions{
		Anchor:   cfg.AnchorDate.Time,
		Logger:   &log,
		Observer: rec,
	})

	// metrics are worth keeping for failed solves too
	var sinkErrs []error
	if opts.metricsFile != "" {
		if werr := metrics.WriteTextfile(opts.metricsFile, reg); werr != nil {
			sinkErrs = append(sinkErrs, &export.SinkError{Sink: "metrics", Path: opts.metricsFile, Err: werr})
		}
	}

	if err != nil {
		var se *schedule.SolveError
		if errors.As(err, &se) {
			fmt.Fprintf(os.Stderr, "✗ No schedule: solver finished %s (%s)\n", se.Outcome.Status, se.Outcome.Reason)
		}
		return errors.Join(append([]error{err}, sinkErrs...)...)
	}

	if result.Partial {
		fmt.Fprintf(os.Stderr, "⚠ Solver stopped early (%s); keeping the best schedule found\n", outcome.Reason)
	} else {
		fmt.Printf("✓ All %d fixtures scheduled in %s (%d nodes)\n",
			len(result.Rows), time.Since(started).Round(time.Millisecond), outcome.Nodes)
	}
	printSummary(p, result)

	if err := export.WriteFile(opts.output, result); err != nil {
		sinkErrs = append(sinkErrs, err)
	} else if opts.output != "-" {
		fmt.Printf("\n✓ Schedule saved to %s\n", opts.output)
	}

	if opts.xlsx != "" {
		if err := excel.WriteFile(opts.xlsx, p, result, cfg.AnchorDate.Time, league.GenerateBlackouts(cfg)); err != nil {
			sinkErrs = append(sinkErrs, err)
		} else {
			fmt.Printf("✓ Workbook saved to %s\n", opts.xlsx)
		}
	}

	if opts.archive != "" {
		if err := archiveRun(ctx, opts.archive, archive.Run{
			League:  name,
			Outcome: outcome,
			Result:  result,
		}); err != nil {
			sinkErrs = append(sinkErrs, err)
		} else {
			fmt.Printf("✓ Run %s archived in %s\n", result.RunID, opts.archive)
		}
	}

	for _, e := range sinkErrs {
		fmt.Fprintf(os.Stderr, "✗ %s\n", e)
	}
	return errors.Join(sinkErrs...)
}

func archiveRun(ctx context.Context, path string, run archive.Run) error {
	store, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(ctx, run)
}

func printSummary(p *league.Problem, result *schedule.Result) {
	fmt.Printf("\nMax lateness: %d day(s)   Weighted revenue: %.2f   Objective: %.2f\n",
		result.MaxLateness, result.Revenue, result.Objective)

	fmt.Println("\nPer Team Metrics:")
	fmt.Printf("  %-15s %6s %5s %5s\n", "Team", "Games", "Home", "Away")
	for _, team := range p.TeamNames() {
		m := result.TeamMetrics[team]
		if m == nil {
			m = &schedule.TeamMetrics{}
		}
		fmt.Printf("  %-15s %6d %5d %5d\n", team, m.Games, m.Home, m.Away)
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, w := range result.Warnings {
			fmt.Printf("  ⚠ %s\n", w)
		}
	} else {
		fmt.Println("\n✓ Every matchday played by its due date")
	}
}

func runValidate(configPath, schedulePath string) error {
	cfg, p, err := loadProblem(configPath)
	if err != nil {
		return err
	}

	violations, err := validator.Validate(p, cfg.AnchorDate.Time, schedulePath)
	if err != nil {
		return fmt.Errorf("validating: %w", err)
	}

	errors := 0
	warnings := 0
	for _, v := range violations {
		switch v.Type {
		case "error":
			errors++
			fmt.Printf("✗ Rule violation: %s\n", v.Message)
		case "warning":
			warnings++
			fmt.Printf("⚠ Late: %s\n", v.Message)
		}
	}

	fmt.Printf("\nValidation complete: %d rule violations, %d late games\n", errors, warnings)

	if errors > 0 {
		return fmt.Errorf("%d constraint violations found", errors)
	}
	return nil
}

func runBatch(ctx context.Context, log zerolog.Logger, configPaths []string, opts batchOptions) error {
	jobs := make([]schedule.Job, 0, len(configPaths))
	var limits config.Solver
	for i, path := range configPaths {
		cfg, p, err := loadProblem(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		// the optimizer is shared by every job, so the first config sets its limits
		if i == 0 {
			limits = cfg.Solver
		}
		jobs = append(jobs, schedule.Job{
			Name:    leagueName(cfg, path),
			Problem: p,
			Anchor:  cfg.AnchorDate.Time,
		})
	}

	rec, err := metrics.NewPromRecorder()
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	opt := solver.NewBranchAndBound(solver.Options{
		TimeLimit: limits.TimeLimit,
		NodeLimit: limits.NodeLimit,
		Logger:    &log,
		Recorder:  rec,
	})

	results, runErr := schedule.RunAll(ctx, opt, jobs, schedule.RunAllOptions{
		Parallelism: opts.parallel,
		FailFast:    opts.failFast,
		Logger:      &log,
		Observer:    rec,
	})

	failed := 0
	fmt.Printf("  %-20s %-10s %8s %10s  %s\n", "League", "Status", "Late", "Objective", "Output")
	for _, r := range results {
		status := r.Outcome.Status.String()
		if r.Err != nil || r.Result == nil {
			if !errors.Is(r.Err, schedule.ErrSolve) {
				status = "failed"
			}
			failed++
			msg := "not run"
			if r.Err != nil {
				msg = r.Err.Error()
			}
			fmt.Printf("  %-20s %-10s %8s %10s  %s\n", r.Name, status, "-", "-", msg)
			continue
		}
		out := filepath.Join(opts.outDir, r.Name+".csv")
		if err := export.WriteFile(out, r.Result); err != nil {
			failed++
			out = err.Error()
		}
		fmt.Printf("  %-20s %-10s %8d %10.2f  %s\n", r.Name, status, r.Result.MaxLateness, r.Result.Objective, out)
	}

	if runErr != nil {
		return runErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d leagues failed", failed, len(results))
	}
	return nil
}

func runHistory(ctx context.Context, path, leagueFilter string) error {
	store, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(ctx, leagueFilter)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No archived runs")
		return nil
	}

	fmt.Printf("  %-36s %-16s %-20s %-10s %5s %10s\n", "Run", "League", "Created", "Status", "Late", "Objective")
	for _, r := range runs {
		status := r.Status
		if r.Partial {
			status += "*"
		}
		fmt.Printf("  %-36s %-16s %-20s %-10s %5d %10.2f\n",
			r.RunID, r.League, r.CreatedAt.Format("2006-01-02 15:04:05"), status, r.MaxLateness, r.Objective)
	}
	return nil
}
