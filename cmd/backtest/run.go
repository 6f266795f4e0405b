package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/aristath/backtester/internal/loader"
	"github.com/aristath/backtester/internal/modules/backtest"
	"github.com/aristath/backtester/internal/modules/panels"
)

type runCmd struct {
	prices string
	caps   string
	out    string
	signal string
	save   bool
	quiet  bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run a backtest over price and market cap CSV files" }
func (*runCmd) Usage() string {
	return `backtest run -prices <file> -caps <file> [-signal lagged20|reference] [-out <file>] [-save]

  Runs the top-10 market cap, momentum-weighted backtest and writes the
  index series as Date,Value CSV (stdout by default). The run summary is
  printed to stderr as JSON.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.prices, "prices", "", "CSV file of daily prices (Date column plus one column per security)")
	f.StringVar(&c.caps, "caps", "", "CSV file of market capitalizations, same layout")
	f.StringVar(&c.out, "out", "", "output CSV file for the index series (default stdout)")
	f.StringVar(&c.signal, "signal", string(backtest.SignalLagged20), "signal mode (lagged20, reference)")
	f.BoolVar(&c.save, "save", false, "archive the run in the backtests database")
	f.BoolVar(&c.quiet, "q", false, "do not print the summary")
}

func (c *runCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if c.prices == "" || c.caps == "" {
		fmt.Fprintf(stderr, "Error: -prices and -caps are required\n\n%s", c.Usage())
		return subcommands.ExitUsageError
	}
	mode, err := backtest.ParseSignalMode(c.signal)
	if err != nil {
		fail(err)
		return subcommands.ExitUsageError
	}

	rawPrices, err := loader.ReadPanelFile(c.prices)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	rawCaps, err := loader.ReadPanelFile(c.caps)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	prices, caps, err := panels.Align(rawPrices, rawCaps)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	svc := backtest.NewService(nil, nil, nil, mode, newLogger())
	result, summary, err := svc.RunPanels(ctx, prices, caps, backtest.RunOptions{SignalMode: mode})
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	if c.out == "" || c.out == "-" {
		err = loader.WriteSeries(stdout, result.Index)
	} else {
		err = loader.WriteSeriesFile(c.out, result.Index)
	}
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	if c.save {
		id, err := archive(ctx, backtest.NewRecord(result, summary))
		if err != nil {
			fail(err)
			return subcommands.ExitFailure
		}
		fmt.Fprintf(stderr, "Saved run %s\n", id)
	}

	if !c.quiet {
		if err := printJSON(stderr, summary); err != nil {
			fail(err)
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

func archive(ctx context.Context, rec *backtest.Record) (string, error) {
	_, container, _, err := openContainer(ctx)
	if err != nil {
		return "", err
	}
	defer container.Close()

	if err := container.RunRepo.Save(rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}
