package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/aristath/backtester/internal/loader"
	"github.com/aristath/backtester/internal/modules/history"
)

type importCmd struct {
	kind    string
	replace bool
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import a price or market cap CSV into the history database" }
func (*importCmd) Usage() string {
	return `backtest import -kind price|market_cap [-replace] <file>

  Upserts every cell of the CSV file into the stored panel of that kind.
  With -replace the stored panel is dropped first, so dates and symbols
  missing from the file do not survive. Empty, NaN and null cells are
  stored as missing observations.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "kind", "", "panel kind (price, market_cap)")
	f.BoolVar(&c.replace, "replace", false, "replace the stored panel instead of merging into it")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	kind, err := history.ParseKind(c.kind)
	if err != nil || f.NArg() != 1 {
		if err != nil {
			fail(err)
		}
		fmt.Fprint(stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	raw, err := loader.ReadPanelFile(f.Arg(0))
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	_, container, _, err := openContainer(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	importPanel := container.BacktestService.Import
	if c.replace {
		importPanel = container.BacktestService.ReplaceHistory
	}
	written, err := importPanel(kind, raw)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	stats, err := container.HistoryRepo.Stats(kind)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	fmt.Fprintf(stdout, "Imported %d %s observations (%d dates, %d symbols stored)\n",
		written, kind, stats.Dates, stats.Symbols)
	return subcommands.ExitSuccess
}
