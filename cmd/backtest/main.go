// Command backtest runs the momentum-weighted top-cap backtest from CSV files
// and manages the stored history, run archive and backups.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
)

var commands = []subcommands.Command{
	&runCmd{},
	&importCmd{},
	&runsCmd{},
	&showCmd{},
	&deleteCmd{},
	&backupCmd{},
	&serveCmd{},
}

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	for _, c := range commands {
		commander.Register(c, "")
	}

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}
