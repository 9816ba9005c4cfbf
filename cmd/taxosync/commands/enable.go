package commands

import (
	"context"
	"fmt"
)

// EnableCmd implements the 'enable' command.
type EnableCmd struct {
	Name string `arg:"" help:"Taxonomy name"`
}

func (e *EnableCmd) Run(g *Global, root *CLI) error {
	return setEnabled(g, root, e.Name, true)
}

// DisableCmd implements the 'disable' command.
type DisableCmd struct {
	Name string `arg:"" help:"Taxonomy name"`
}

func (d *DisableCmd) Run(g *Global, root *CLI) error {
	return setEnabled(g, root, d.Name, false)
}

func setEnabled(g *Global, root *CLI, name string, enabled bool) error {
	ctx := context.Background()
	a, err := root.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := a.Syncer.SetEnabled(ctx, name, enabled); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Fprintf(g.Out, "%s %s\n", name, state)
	return nil
}
