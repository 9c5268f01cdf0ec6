package commands

import (
	"fmt"

	"git.home.luguber.info/inful/edgebundle/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite an existing options file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	path := first(root.Config, config.DefaultFileName)
	if err := config.Init(path, i.Force); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.Out, "Wrote %s\n", path)
	return nil
}
