package commands

import (
	"fmt"

	"git.home.luguber.info/inful/taxosync/internal/config"
	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite existing configuration file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	fmt.Fprintf(g.Out, "Writing configuration to %s\n", root.Config)
	if err := config.Init(root.Config, i.Force); err != nil {
		return terrors.Wrap(err, terrors.CategoryConfig, terrors.SeverityError, "initialization failed")
	}
	fmt.Fprintln(g.Out, "initialized successfully")
	return nil
}
