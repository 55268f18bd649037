// Command ledgerctl runs ledger, analytics and AI operations from the command line.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&snapshotCmd{}, "ledger")
	commander.Register(&extractCmd{}, "ai")
	commander.Register(&auditCmd{}, "ai")
	commander.Register(&watchCmd{}, "events")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
