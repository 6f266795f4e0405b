package main

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/aristath/backtester/internal/loader"
	"github.com/aristath/backtester/internal/modules/backtest"
	"github.com/aristath/backtester/internal/modules/panels"
)

type runsCmd struct {
	limit int
	json  bool
}

func (*runsCmd) Name() string     { return "runs" }
func (*runsCmd) Synopsis() string { return "list archived runs, newest first" }
func (*runsCmd) Usage() string {
	return `backtest runs [-limit n] [-json]
`
}

func (c *runsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "limit", 20, "maximum number of runs to list")
	f.BoolVar(&c.json, "json", false, "print JSON instead of a table")
}

func (c *runsCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	_, container, _, err := openContainer(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	infos, err := container.BacktestService.List(c.limit)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	if c.json {
		if err := printJSON(stdout, infos); err != nil {
			fail(err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSIGNAL\tFROM\tTO\tFINAL\tREBALANCES")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.4f\t%d\n",
			info.ID,
			info.CreatedAt.Format("2006-01-02 15:04"),
			info.SignalMode,
			panels.FormatDate(info.FirstDate),
			panels.FormatDate(info.LastDate),
			info.FinalValue,
			info.Rebalances,
		)
	}
	if err := tw.Flush(); err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type showCmd struct {
	series string
}

func (*showCmd) Name() string     { return "show" }
func (*showCmd) Synopsis() string { return "print the summary of an archived run" }
func (*showCmd) Usage() string {
	return `backtest show [-series <file>] <id>

  Prints the run summary as JSON. With -series the index series is written
  to the file as Date,Value CSV ("-" for stdout, replacing the summary).
`
}

func (c *showCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.series, "series", "", "write the index series CSV to this file")
}

func (c *showCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	_, container, _, err := openContainer(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	rec, err := container.BacktestService.Get(f.Arg(0))
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	switch c.series {
	case "":
	case "-":
		if err := loader.WriteSeries(stdout, rec.Index); err != nil {
			fail(err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	default:
		if err := loader.WriteSeriesFile(c.series, rec.Index); err != nil {
			fail(err)
			return subcommands.ExitFailure
		}
	}

	out := struct {
		ID        string           `json:"id"`
		CreatedAt time.Time        `json:"created_at"`
		Summary   backtest.Summary `json:"summary"`
	}{rec.ID, rec.CreatedAt, rec.Summary}
	if err := printJSON(stdout, out); err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type deleteCmd struct{}

func (*deleteCmd) Name() string             { return "delete" }
func (*deleteCmd) Synopsis() string         { return "delete an archived run" }
func (*deleteCmd) Usage() string            { return "backtest delete <id>\n" }
func (*deleteCmd) SetFlags(f *flag.FlagSet) {}

func (c *deleteCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	_, container, _, err := openContainer(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	if err := container.BacktestService.Delete(f.Arg(0)); err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "Deleted run %s\n", f.Arg(0))
	return subcommands.ExitSuccess
}
