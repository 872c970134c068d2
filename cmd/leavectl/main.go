/*
main.go - leavectl entry point

PURPOSE:
  Runs the leave engine's batch triggers against a configured store, either
  once from the command line or continuously as a scheduler daemon.

COMMANDS:
  recalculate   recompute every employee's balances as of now (or -as-of)
  reset         start a new leave cycle: zero accrued/taken/balance
  migrate       refresh cached store data, then recompute everyone
  run           start the scheduler: periodic recompute + July 1 reset

COMMAND-LINE FLAGS (all commands):
  -driver   sqlite | postgres | file   (env LEAVE_DB_DRIVER, default sqlite)
  -db       SQLite database or JSON file path (env LEAVE_DB_PATH)
  -dsn      PostgreSQL URL (env DATABASE_URL)
  -as-of    evaluation instant, YYYY-MM-DD or RFC3339 (not for run)
  -tz       timezone name (env LEAVE_TIMEZONE)

ENVIRONMENT:
  A .env file in the working directory is loaded first. See config/config.go.

EXIT STATUS:
  0 on success, 1 when a run fails, 2 on usage errors.

EXAMPLES:
  ./leavectl recalculate -db ./data/leave.db
  ./leavectl migrate -driver file -db ./data/db.json
  ./leavectl reset -as-of 2025-07-01
  LEAVE_DB_DRIVER=postgres DATABASE_URL=postgres://... ./leavectl run

SEE ALSO:
  - leave/runner.go: the triggers
  - scheduler/scheduler.go: daemon mode
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/scheduler"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/store/postgres"
	"github.com/warp/leave-engine/store/sqlite"
)

const usage = `usage: leavectl <command> [flags]

commands:
  recalculate   recompute balances for every employee
  reset         reset balances for a new leave cycle
  migrate       refresh cached data and recompute
  run           run the scheduler until interrupted
`

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cmd, args := args[0], args[1:]

	cfg, err := config.Read()
	if err != nil {
		fmt.Fprintf(stderr, "leavectl: %v\n", err)
		return 1
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Database.Driver, "driver", cfg.Database.Driver, "storage driver: sqlite, postgres or file")
	fs.StringVar(&cfg.Database.Path, "db", cfg.Database.Path, "SQLite database or JSON file path")
	fs.StringVar(&cfg.Database.URL, "dsn", cfg.Database.URL, "PostgreSQL connection URL")
	fs.StringVar(&cfg.App.Timezone, "tz", cfg.App.Timezone, "timezone for cycle boundaries and dates")
	fs.StringVar(&cfg.App.LogLevel, "log-level", cfg.App.LogLevel, "debug, info, warn or error")
	asOfFlag := fs.String("as-of", "", "evaluation instant (YYYY-MM-DD or RFC3339); default now")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "leavectl: %v\n", err)
		return 2
	}

	logger := cfg.NewLogger()
	loc, _ := cfg.Location()

	asOf, err := parseAsOf(*asOfFlag, loc)
	if err != nil {
		fmt.Fprintf(stderr, "leavectl: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Database.Driver, "error", err)
		return 1
	}
	defer closeStore()

	runner := leave.NewRunner(store, logger)
	runner.Location = loc

	switch cmd {
	case "recalculate":
		res, err := runner.Recalculate(ctx, asOf)
		return report(logger, "recalculate", res.Processed, res.Updated, err)
	case "reset":
		res, err := runner.ResetCycle(ctx, asOf)
		return report(logger, "reset", res.Processed, res.Updated, err)
	case "migrate":
		res, err := runner.Migrate(ctx, asOf)
		return report(logger, "migrate", res.Processed, res.Updated, err)
	case "run":
		return daemon(ctx, runner, cfg, loc, logger)
	default:
		fmt.Fprintf(stderr, "leavectl: unknown command %q\n\n%s", cmd, usage)
		return 2
	}
}

func daemon(ctx context.Context, runner *leave.Runner, cfg *config.Config, loc *time.Location, logger *slog.Logger) int {
	s := scheduler.New(runner, logger)
	s.RecalcInterval = cfg.Scheduler.RecalcInterval
	s.Debounce = cfg.Scheduler.Debounce
	s.Location = loc

	s.Start(ctx)
	<-ctx.Done()

	logger.Info("shutting down")
	s.Stop()
	return 0
}

func report(logger *slog.Logger, cmd string, processed, updated int, err error) int {
	if err != nil {
		var pe *leave.PersistError
		if errors.As(err, &pe) {
			logger.Error(cmd+" failed to persist", "pending", pe.Pending, "error", pe.Err)
		} else {
			logger.Error(cmd+" failed", "error", err)
		}
		return 1
	}
	logger.Info(cmd+" completed", "processed", processed, "updated", updated)
	return 0
}

// openStore connects to the configured backend and returns a close function.
func openStore(ctx context.Context, db config.DatabaseConfig) (leave.Store, func(), error) {
	switch db.Driver {
	case config.DriverSQLite:
		s, err := sqlite.New(db.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case config.DriverPostgres:
		s, err := postgres.Connect(ctx, db.URL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.DriverFile:
		s, err := memory.Open(db.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown driver %q", db.Driver)
	}
}

// parseAsOf accepts RFC3339 instants and the date forms generic.ParseDate
// knows. Empty means now.
func parseAsOf(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	if t, ok := generic.ParseDate(s, loc); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid -as-of %q", s)
}
