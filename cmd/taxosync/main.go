package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/taxosync/cmd/taxosync/commands"
	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
	"git.home.luguber.info/inful/taxosync/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("taxosync"),
		kong.Description("Keep local copies of Open Food Facts taxonomies fresh."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	err := parser.Run(&commands.Global{Out: os.Stdout}, cli)
	if err == nil {
		return
	}

	adapter := terrors.NewCLIErrorAdapter(cli.Verbose, slog.Default())
	adapter.Log(err)
	fmt.Fprintln(os.Stderr, adapter.FormatError(err))
	os.Exit(adapter.ExitCodeFor(err))
}
