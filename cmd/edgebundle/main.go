package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/edgebundle/cmd/edgebundle/commands"
	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
	"git.home.luguber.info/inful/edgebundle/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("edgebundle"),
		kong.Description("Bundle a framework's intermediate build output into a single edge worker."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)
	global := commands.NewGlobal()
	if err := parser.Run(global, cli); err != nil {
		errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
